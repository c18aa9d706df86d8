package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/validation"
	"github.com/hitoshi/closetiq/internal/wardrobe"
)

// wardrobeListLimit はワードローブ一覧の既定件数。
const wardrobeListLimit = 10

// WardrobeServiceInterface はワードローブハンドラーが必要とするサービスインターフェース。
type WardrobeServiceInterface interface {
	Create(ctx context.Context, userID string, in wardrobe.CreateInput) (*model.Wardrobe, error)
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error)
	ListShared(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error)
	Get(ctx context.Context, userID, id string) (*wardrobe.Detail, error)
	Update(ctx context.Context, userID, id string, in wardrobe.UpdateInput) (*model.Wardrobe, error)
	Delete(ctx context.Context, userID, id string) error
	Share(ctx context.Context, userID, id, username string) (*model.Wardrobe, error)
}

// WardrobeHandler はワードローブ管理のHTTPハンドラー。
type WardrobeHandler struct {
	service WardrobeServiceInterface
}

// NewWardrobeHandler はWardrobeHandlerを生成する。
func NewWardrobeHandler(service WardrobeServiceInterface) *WardrobeHandler {
	return &WardrobeHandler{service: service}
}

type createWardrobeRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Visibility  string   `json:"visibility" validate:"omitempty,oneof=private public shared"`
	Tags        []string `json:"tags"`
	IsDefault   bool     `json:"isDefault"`
}

type updateWardrobeRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Visibility  *string  `json:"visibility" validate:"omitempty,oneof=private public shared"`
	Tags        []string `json:"tags"`
	IsDefault   *bool    `json:"isDefault"`
}

type shareWardrobeRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
}

// Create はワードローブを作成する。
// POST /api/wardrobes
func (h *WardrobeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req createWardrobeRequest
	if !decode(w, r, &req) {
		return
	}
	wd, err := h.service.Create(r.Context(), userID, wardrobe.CreateInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, wd, "Wardrobe created successfully")
}

// List はワードローブ一覧を返す。
// GET /api/wardrobes
func (h *WardrobeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	page, err := validation.ParsePagination(r.URL.Query(), wardrobeListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	wardrobes, pg, err := h.service.List(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeList(w, "wardrobes", wardrobes, pg)
}

// ListShared は公開または共有されたワードローブ一覧を返す。
// GET /api/wardrobes/shared
func (h *WardrobeHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	page, err := validation.ParsePagination(r.URL.Query(), wardrobeListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	wardrobes, pg, err := h.service.ListShared(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeList(w, "wardrobes", wardrobes, pg)
}

// Get はアイテムを展開したワードローブを返す。
// GET /api/wardrobes/{id}
func (h *WardrobeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, detail, "")
}

// Update はワードローブを更新する。
// PUT /api/wardrobes/{id}
func (h *WardrobeHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateWardrobeRequest
	if !decode(w, r, &req) {
		return
	}
	wd, err := h.service.Update(r.Context(), userID, id, wardrobe.UpdateInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, wd, "Wardrobe updated successfully")
}

// Delete はワードローブと含まれるアイテムを削除する。
// DELETE /api/wardrobes/{id}
func (h *WardrobeHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	writeMessage(w, "Wardrobe deleted successfully")
}

// Share はワードローブを他ユーザーと共有する。
// POST /api/wardrobes/{id}/share
func (h *WardrobeHandler) Share(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req shareWardrobeRequest
	if !decode(w, r, &req) {
		return
	}
	wd, err := h.service.Share(r.Context(), userID, id, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"wardrobeId": wd.ID,
		"sharedWith": wd.SharedWith,
	}, "Wardrobe shared successfully")
}
