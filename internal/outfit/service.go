// Package outfit はコーディネートの生成・保存・評価を提供する。
package outfit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
)

// DefaultListLimit は一覧の既定件数。
const DefaultListLimit = 10

// SaveInput はコーディネート保存の入力。
type SaveInput struct {
	Name        string
	Description string
	ItemIDs     []string
	Occasion    string
	Season      string
	Tags        []string
	IsPublic    bool
}

// UpdateInput はコーディネート更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name     *string
	ItemIDs  []string
	Occasion *string
	Tags     []string
	IsPublic *bool
}

// Detail はアイテム本体を展開したコーディネート。
type Detail struct {
	*model.Outfit
	Items []*model.ClothingItem `json:"items"`
}

// Service はコーディネートのサービス層。
type Service struct {
	outfits           repository.OutfitRepository
	clothing          repository.ClothingRepository
	recommendations   repository.RecommendationRepository
	generator         Generator
	sanitizer         *security.TextSanitizer
	frontendURL       string
	recommendationTTL time.Duration
	now               func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// ttlが0以下の場合はmodel.RecommendationTTLを使う。
func NewService(
	outfits repository.OutfitRepository,
	clothing repository.ClothingRepository,
	recommendations repository.RecommendationRepository,
	generator Generator,
	frontendURL string,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = model.RecommendationTTL
	}
	return &Service{
		outfits:           outfits,
		clothing:          clothing,
		recommendations:   recommendations,
		generator:         generator,
		sanitizer:         security.NewTextSanitizer(),
		frontendURL:       strings.TrimRight(frontendURL, "/"),
		recommendationTTL: ttl,
		now:               time.Now,
	}
}

// Save はコーディネートを保存する。所有していないアイテムが含まれる場合はBAD_REQUESTを返す。
func (s *Service) Save(ctx context.Context, userID string, in SaveInput) (*model.Outfit, error) {
	if err := s.checkOwnedItems(ctx, userID, in.ItemIDs); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &model.Outfit{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        in.Name,
		Description: s.sanitizer.Sanitize(in.Description),
		ItemIDs:     in.ItemIDs,
		Occasion:    in.Occasion,
		Season:      in.Season,
		Tags:        nonNil(in.Tags),
		IsPublic:    in.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.outfits.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create outfit: %w", err)
	}
	return o, nil
}

func (s *Service) checkOwnedItems(ctx context.Context, userID string, ids []string) error {
	owned, err := s.clothing.CountOwned(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("failed to count owned items: %w", err)
	}
	if owned != len(unique(ids)) {
		return model.NewBadRequestError("Some clothing items not found or access denied")
	}
	return nil
}

// List はユーザーのコーディネート一覧をアイテム付きで返す。
func (s *Service) List(ctx context.Context, userID string, page model.PageRequest) ([]*Detail, model.Pagination, error) {
	list, total, err := s.outfits.List(ctx, userID, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list outfits: %w", err)
	}

	var ids []string
	for _, o := range list {
		ids = append(ids, o.ItemIDs...)
	}
	byID, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	out := make([]*Detail, len(list))
	for i, o := range list {
		out[i] = populate(o, byID)
	}
	return out, model.NewPagination(total, page), nil
}

// Get は所有または公開のコーディネートをアイテム付きで返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*Detail, error) {
	o, err := s.outfits.FindAccessible(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find outfit: %w", err)
	}
	if o == nil {
		return nil, model.NewOwnedNotFoundError("Outfit")
	}
	byID, err := s.loadItems(ctx, o.ItemIDs)
	if err != nil {
		return nil, err
	}
	return populate(o, byID), nil
}

func (s *Service) loadItems(ctx context.Context, ids []string) (map[string]*model.ClothingItem, error) {
	byID := map[string]*model.ClothingItem{}
	if len(ids) == 0 {
		return byID, nil
	}
	items, err := s.clothing.FindByIDs(ctx, unique(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load outfit items: %w", err)
	}
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID, nil
}

// populate は保存順を保ったままアイテムを展開する。削除済みのアイテムは飛ばす。
func populate(o *model.Outfit, byID map[string]*model.ClothingItem) *Detail {
	items := make([]*model.ClothingItem, 0, len(o.ItemIDs))
	for _, id := range o.ItemIDs {
		if it, ok := byID[id]; ok {
			items = append(items, it)
		}
	}
	return &Detail{Outfit: o, Items: items}
}

// Update はコーディネートを更新する。
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*model.Outfit, error) {
	o, err := s.outfits.FindOwned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find outfit: %w", err)
	}
	if o == nil {
		return nil, model.NewOwnedNotFoundError("Outfit")
	}

	if in.ItemIDs != nil {
		if err := s.checkOwnedItems(ctx, userID, in.ItemIDs); err != nil {
			return nil, err
		}
		o.ItemIDs = in.ItemIDs
	}
	if in.Name != nil {
		o.Name = *in.Name
	}
	if in.Occasion != nil {
		o.Occasion = *in.Occasion
	}
	if in.Tags != nil {
		o.Tags = in.Tags
	}
	if in.IsPublic != nil {
		o.IsPublic = *in.IsPublic
	}
	o.UpdatedAt = s.now().UTC()

	if err := s.outfits.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update outfit: %w", err)
	}
	return o, nil
}

// Delete はコーディネートを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.outfits.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete outfit: %w", err)
	}
	if !deleted {
		return model.NewOwnedNotFoundError("Outfit")
	}
	return nil
}

// Rate は1から5の評価を保存する。
func (s *Service) Rate(ctx context.Context, userID, id string, rating float64) (*model.Outfit, error) {
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, model.NewInvalidRatingError()
	}
	o, err := s.outfits.SetRating(ctx, id, userID, rating)
	if err != nil {
		return nil, fmt.Errorf("failed to rate outfit: %w", err)
	}
	if o == nil {
		return nil, model.NewOwnedNotFoundError("Outfit")
	}
	return o, nil
}

// Share はコーディネートを公開し、共有URLを返す。
func (s *Service) Share(ctx context.Context, userID, id string) (string, error) {
	o, err := s.outfits.SetPublic(ctx, id, userID)
	if err != nil {
		return "", fmt.Errorf("failed to share outfit: %w", err)
	}
	if o == nil {
		return "", model.NewOwnedNotFoundError("Outfit")
	}
	return fmt.Sprintf("%s/outfits/%s", s.frontendURL, o.ID), nil
}

// RecordWear は着用回数を1増やす。
func (s *Service) RecordWear(ctx context.Context, userID, id string) (*model.Outfit, error) {
	o, err := s.outfits.IncrementWorn(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to record outfit wear: %w", err)
	}
	if o == nil {
		return nil, model.NewOwnedNotFoundError("Outfit")
	}
	return o, nil
}

// Recommendations は期限内のおすすめ一覧を返す。
func (s *Service) Recommendations(ctx context.Context, userID string, page model.PageRequest) ([]*model.OutfitRecommendation, model.Pagination, error) {
	recs, total, err := s.recommendations.ListActive(ctx, userID, s.now().UTC(), page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list recommendations: %w", err)
	}
	return recs, model.NewPagination(total, page), nil
}

// Feedback はおすすめへのフィードバックを保存する。
func (s *Service) Feedback(ctx context.Context, userID, id string, fb model.RecommendationFeedback) (*model.OutfitRecommendation, error) {
	if fb.Rating != nil && (*fb.Rating < model.MinRating || *fb.Rating > model.MaxRating) {
		return nil, model.NewInvalidRatingError()
	}
	fb.Comments = s.sanitizer.Sanitize(fb.Comments)
	now := s.now().UTC()
	fb.FeedbackDate = &now

	rec, err := s.recommendations.UpdateFeedback(ctx, id, userID, fb)
	if err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}
	if rec == nil {
		return nil, model.NewOwnedNotFoundError("Recommendation")
	}
	return rec, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
