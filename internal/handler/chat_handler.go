package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/closetiq/internal/chat"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/validation"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Create(ctx context.Context, userID, sessionType, title string) (*model.ChatSession, error)
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.ChatSession, model.Pagination, error)
	Get(ctx context.Context, userID, id string) (*model.ChatSession, error)
	History(ctx context.Context, userID, id string) (*chat.History, error)
	Send(ctx context.Context, userID, id, content, sessionType string) (*chat.Exchange, error)
	Delete(ctx context.Context, userID, id string) error
}

// ChatHandler はチャットセッションのHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

type createSessionRequest struct {
	SessionType string `json:"sessionType" validate:"omitempty,oneof=general style_advice outfit_help"`
	Title       string `json:"title" validate:"max=100"`
}

type sendMessageRequest struct {
	Content     string `json:"content" validate:"required,min=1,max=1000"`
	SessionType string `json:"sessionType" validate:"omitempty,oneof=general style_advice outfit_help"`
}

// Create はセッションを作成する。
// POST /api/chat/sessions
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.Create(r.Context(), userID, req.SessionType, req.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, session, "Chat session created successfully")
}

// List はセッション一覧を返す。
// GET /api/chat/sessions
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	page, err := validation.ParsePagination(r.URL.Query(), chat.DefaultListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	sessions, pg, err := h.service.List(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeList(w, "sessions", sessions, pg)
}

// Get はセッションを返す。
// GET /api/chat/sessions/{id}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, session, "")
}

// SendMessage は発言を追加し、アシスタントの返答とともに返す。
// POST /api/chat/sessions/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	ex, err := h.service.Send(r.Context(), userID, id, req.Content, req.SessionType)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, ex, "")
}

// History は発言履歴を返す。
// GET /api/chat/sessions/{id}/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	hist, err := h.service.History(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, hist, "")
}

// Delete はセッションを削除する。
// DELETE /api/chat/sessions/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, "Chat session deleted successfully")
}
