// Package chat はスタイル相談チャットのセッション管理と返答生成を提供する。
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
)

// DefaultListLimit は一覧の既定件数。
const DefaultListLimit = 10

// Exchange は1往復の発言。
type Exchange struct {
	SessionID   string            `json:"sessionId"`
	UserMessage model.ChatMessage `json:"userMessage"`
	AIResponse  model.ChatMessage `json:"aiResponse"`
}

// History はセッションの発言履歴。
type History struct {
	Messages      []model.ChatMessage `json:"messages"`
	TotalMessages int                 `json:"totalMessages"`
}

// Service はチャットのサービス層。
type Service struct {
	repo      repository.ChatRepository
	responder Responder
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ChatRepository, responder Responder) *Service {
	return &Service{
		repo:      repo,
		responder: responder,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
	}
}

// Create はセッションを作成する。タイトル省略時は「<種別> session」になる。
func (s *Service) Create(ctx context.Context, userID, sessionType, title string) (*model.ChatSession, error) {
	if sessionType == "" {
		sessionType = model.SessionTypeGeneral
	}
	if title == "" {
		title = sessionType + " session"
	}
	now := s.now().UTC()
	session := &model.ChatSession{
		ID:            uuid.New().String(),
		UserID:        userID,
		SessionType:   sessionType,
		Title:         s.sanitizer.Sanitize(title),
		Messages:      []model.ChatMessage{},
		IsActive:      true,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return session, nil
}

// List はセッション一覧を最終発言の新しい順で返す。
func (s *Service) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.ChatSession, model.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, userID, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	return sessions, model.NewPagination(total, page), nil
}

// Get は所有者のセッションを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.ChatSession, error) {
	session, err := s.repo.FindOwned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}
	if session == nil {
		return nil, model.NewOwnedNotFoundError("Chat session")
	}
	return session, nil
}

// History はセッションの発言履歴を返す。
func (s *Service) History(ctx context.Context, userID, id string) (*History, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &History{Messages: session.Messages, TotalMessages: len(session.Messages)}, nil
}

// Send はユーザー発言とアシスタントの返答をセッションに追記する。
// sessionTypeが空の場合はセッションの種別で返答する。
func (s *Service) Send(ctx context.Context, userID, id, content, sessionType string) (*Exchange, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sessionType == "" {
		sessionType = session.SessionType
	}

	userMsg := model.ChatMessage{
		Role:      model.RoleUser,
		Content:   truncate(s.sanitizer.Sanitize(content), model.MaxChatMessageLength),
		Timestamp: s.now().UTC(),
	}
	history := append(session.Messages, userMsg)
	reply := s.responder.Reply(ctx, sessionType, history)
	aiMsg := model.ChatMessage{
		Role:      model.RoleAssistant,
		Content:   truncate(reply, model.MaxChatMessageLength),
		Timestamp: s.now().UTC(),
	}

	updated, err := s.repo.AppendMessages(ctx, id, userID, []model.ChatMessage{userMsg, aiMsg}, aiMsg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append chat messages: %w", err)
	}
	if updated == nil {
		return nil, model.NewOwnedNotFoundError("Chat session")
	}
	return &Exchange{SessionID: id, UserMessage: userMsg, AIResponse: aiMsg}, nil
}

// Delete はセッションを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	if !deleted {
		return model.NewOwnedNotFoundError("Chat session")
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
