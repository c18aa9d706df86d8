// Package wardrobe はワードローブ管理のドメインロジックを提供する。
package wardrobe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
	"github.com/hitoshi/closetiq/internal/storage"
)

// CreateInput はワードローブ作成の入力。
type CreateInput struct {
	Name        string
	Description string
	Visibility  string
	Tags        []string
	IsDefault   bool
}

// UpdateInput はワードローブ更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name        *string
	Description *string
	Visibility  *string
	Tags        []string
	IsDefault   *bool
}

// Detail はアイテム本体を展開したワードローブ。
type Detail struct {
	*model.Wardrobe
	Items []*model.ClothingItem `json:"items"`
}

// Service はワードローブ管理のサービス層。
type Service struct {
	wardrobes repository.WardrobeRepository
	clothing  repository.ClothingRepository
	users     repository.UserRepository
	images    storage.ImageStore
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	wardrobes repository.WardrobeRepository,
	clothing repository.ClothingRepository,
	users repository.UserRepository,
	images storage.ImageStore,
) *Service {
	return &Service{
		wardrobes: wardrobes,
		clothing:  clothing,
		users:     users,
		images:    images,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
	}
}

// Create はワードローブを作成する。ユーザーの最初のワードローブはデフォルトになる。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Wardrobe, error) {
	count, err := s.wardrobes.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count wardrobes: %w", err)
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	now := s.now().UTC()
	w := &model.Wardrobe{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        in.Name,
		Description: s.sanitizer.Sanitize(in.Description),
		ItemIDs:     []string{},
		IsDefault:   count == 0 || in.IsDefault,
		Visibility:  visibility,
		SharedWith:  []string{},
		Tags:        nonNil(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.wardrobes.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create wardrobe: %w", err)
	}
	if w.IsDefault && count > 0 {
		if err := s.wardrobes.ClearDefault(ctx, userID, w.ID); err != nil {
			return nil, fmt.Errorf("failed to clear default wardrobe: %w", err)
		}
	}
	return w, nil
}

// List はユーザーのワードローブ一覧を返す。
func (s *Service) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error) {
	list, total, err := s.wardrobes.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list wardrobes: %w", err)
	}
	return list, model.NewPagination(total, page), nil
}

// ListShared は他ユーザーの公開ワードローブと自分に共有されたワードローブを返す。
func (s *Service) ListShared(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error) {
	list, total, err := s.wardrobes.ListShared(ctx, userID, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list shared wardrobes: %w", err)
	}
	return list, model.NewPagination(total, page), nil
}

// Get は閲覧可能なワードローブをアイテム付きで返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*Detail, error) {
	w, err := s.wardrobes.FindAccessible(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wardrobe: %w", err)
	}
	if w == nil {
		return nil, model.NewOwnedNotFoundError("Wardrobe")
	}

	items := []*model.ClothingItem{}
	if len(w.ItemIDs) > 0 {
		items, err = s.clothing.FindByIDs(ctx, w.ItemIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load wardrobe items: %w", err)
		}
	}
	return &Detail{Wardrobe: w, Items: items}, nil
}

// Update はワードローブを更新する。isDefaultをtrueにすると他のデフォルトは外れる。
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*model.Wardrobe, error) {
	w, err := s.wardrobes.FindOwned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wardrobe: %w", err)
	}
	if w == nil {
		return nil, model.NewOwnedNotFoundError("Wardrobe")
	}

	if in.Name != nil {
		w.Name = *in.Name
	}
	if in.Description != nil {
		w.Description = s.sanitizer.Sanitize(*in.Description)
	}
	if in.Visibility != nil {
		w.Visibility = *in.Visibility
	}
	if in.Tags != nil {
		w.Tags = in.Tags
	}
	makeDefault := in.IsDefault != nil && *in.IsDefault && !w.IsDefault
	if in.IsDefault != nil {
		w.IsDefault = *in.IsDefault
	}
	w.UpdatedAt = s.now().UTC()

	if err := s.wardrobes.Update(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to update wardrobe: %w", err)
	}
	if makeDefault {
		if err := s.wardrobes.ClearDefault(ctx, userID, w.ID); err != nil {
			return nil, fmt.Errorf("failed to clear default wardrobe: %w", err)
		}
	}
	return w, nil
}

// Delete はワードローブと所属アイテムを削除する。デフォルトのワードローブは削除できない。
// アイテム画像の削除は失敗してもログのみとする。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	w, err := s.wardrobes.FindOwned(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to find wardrobe: %w", err)
	}
	if w == nil {
		return model.NewOwnedNotFoundError("Wardrobe")
	}
	if w.IsDefault {
		return model.NewDefaultWardrobeError()
	}

	keys, err := s.clothing.ListImageKeysByWardrobe(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list item images: %w", err)
	}

	deleted, err := s.wardrobes.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete wardrobe: %w", err)
	}
	if !deleted {
		return model.NewOwnedNotFoundError("Wardrobe")
	}

	for _, key := range keys {
		if err := s.images.Delete(ctx, key); err != nil {
			slog.Warn("failed to delete item image",
				slog.String("wardrobe_id", id),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	slog.Info("wardrobe deleted",
		slog.String("user_id", userID),
		slog.String("wardrobe_id", id),
		slog.Int("images", len(keys)),
	)
	return nil
}

// Share はワードローブを指定ユーザー名のユーザーに共有する。
func (s *Service) Share(ctx context.Context, userID, id, username string) (*model.Wardrobe, error) {
	target, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if target == nil {
		return nil, model.NewNotFoundError("User")
	}
	if target.ID == userID {
		return nil, model.NewBadRequestError("Cannot share a wardrobe with yourself")
	}

	w, err := s.wardrobes.AddSharedUser(ctx, id, userID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to share wardrobe: %w", err)
	}
	if w == nil {
		return nil, model.NewOwnedNotFoundError("Wardrobe")
	}
	return w, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
