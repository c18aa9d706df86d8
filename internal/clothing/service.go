// Package clothing は衣類アイテムの登録・分類・検索を提供する。
package clothing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
	"github.com/hitoshi/closetiq/internal/storage"
)

// 一覧と類似検索の既定件数
const (
	DefaultListLimit = 20
	similarLimit     = 5
)

// categoryFallbackNote は類似検索がカテゴリ一致に切り替わった場合の注記。
const categoryFallbackNote = "Using category-based similarity (AI service unavailable)"

// Classifier は画像分類と類似検索を行うAIエンジンのクライアント。
type Classifier interface {
	Classify(ctx context.Context, f aiclient.File) (*aiclient.Classification, error)
	FindSimilar(ctx context.Context, req aiclient.SimilarityRequest) (*aiclient.Result, error)
}

// ImageFetcher は保存済み画像をURLから取得する。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.FetchedImage, error)
}

// CreateInput はアイテム登録の入力。
type CreateInput struct {
	WardrobeID   string
	Name         string
	Category     string
	Color        string
	Brand        string
	Size         string
	Description  string
	Price        float64
	Notes        string
	UserTags     []string
	Image        *aiclient.File
	AutoClassify bool
}

// UpdateInput はアイテム更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name         *string
	Brand        *string
	Color        *string
	Size         *string
	Description  *string
	Category     *string
	Attributes   *model.ItemAttributes
	Price        *float64
	PurchaseDate *time.Time
	Notes        *string
	UserTags     []string
	IsFavorite   *bool
}

// ReclassifyResult は再分類の結果。エンジンが失敗した場合はErrorに理由が入る。
type ReclassifyResult struct {
	Item           *model.ClothingItem      `json:"item"`
	Classification *aiclient.Classification `json:"classification,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// SimilarItem はカテゴリ一致による類似アイテム。
type SimilarItem struct {
	*model.ClothingItem
	SimilarityScore float64 `json:"similarityScore"`
}

// SimilarResult は類似検索の結果。
// エンジンが応答した場合はEngineに本文が入り、そうでない場合はItemsとNoteが入る。
type SimilarResult struct {
	Engine json.RawMessage
	Items  []SimilarItem
	Note   string
}

// Service は衣類アイテムのサービス層。
type Service struct {
	clothing   repository.ClothingRepository
	wardrobes  repository.WardrobeRepository
	images     storage.ImageStore
	classifier Classifier
	fetcher    ImageFetcher
	sanitizer  *security.TextSanitizer
	now        func() time.Time
	rand       func() float64
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	clothing repository.ClothingRepository,
	wardrobes repository.WardrobeRepository,
	images storage.ImageStore,
	classifier Classifier,
	fetcher ImageFetcher,
) *Service {
	return &Service{
		clothing:   clothing,
		wardrobes:  wardrobes,
		images:     images,
		classifier: classifier,
		fetcher:    fetcher,
		sanitizer:  security.NewTextSanitizer(),
		now:        time.Now,
		rand:       rand.Float64,
	}
}

// Create はアイテムを登録し、ワードローブの末尾に追加する。
// 画像がある場合は保存し、AutoClassifyなら分類する。分類に失敗しても登録は続行する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.ClothingItem, error) {
	w, err := s.wardrobes.FindOwned(ctx, in.WardrobeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wardrobe: %w", err)
	}
	if w == nil {
		return nil, model.NewOwnedNotFoundError("Wardrobe")
	}

	now := s.now().UTC()
	item := &model.ClothingItem{
		ID:          uuid.New().String(),
		UserID:      userID,
		WardrobeID:  w.ID,
		Name:        in.Name,
		Brand:       in.Brand,
		Color:       in.Color,
		Size:        in.Size,
		Description: s.sanitizer.Sanitize(in.Description),
		Category:    in.Category,
		Attributes: model.ItemAttributes{
			Colors:    []string{},
			Patterns:  []string{},
			Materials: []string{},
			Season:    []string{},
			Occasion:  []string{},
			Style:     []string{},
		},
		AIClassification: model.DefaultClassification(in.Category),
		UserMetadata: model.UserMetadata{
			Price:    in.Price,
			Notes:    s.sanitizer.Sanitize(in.Notes),
			UserTags: nonNil(s.sanitizer.SanitizeAll(in.UserTags)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Color != "" {
		item.Attributes.Colors = []string{in.Color}
	}

	if in.Image != nil {
		if err := s.storeImage(ctx, item, in.Image); err != nil {
			return nil, err
		}
		if in.AutoClassify {
			s.applyClassification(ctx, item, *in.Image)
		}
	}

	if err := s.clothing.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create clothing item: %w", err)
	}
	if err := s.wardrobes.AddItem(ctx, w.ID, item.ID); err != nil {
		return nil, fmt.Errorf("failed to add item to wardrobe: %w", err)
	}

	slog.Info("clothing item created",
		slog.String("user_id", userID),
		slog.String("item_id", item.ID),
		slog.String("category", item.Category),
	)
	return item, nil
}

func (s *Service) storeImage(ctx context.Context, item *model.ClothingItem, img *aiclient.File) error {
	key := storage.ClothingKey(item.UserID, img.Filename)
	url, err := s.images.Put(ctx, key, img.ContentType, img.Data)
	if errors.Is(err, storage.ErrNotConfigured) {
		slog.Warn("image storage not configured, item saved without image",
			slog.String("item_id", item.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}
	item.ImageURL = url
	item.ImageKey = key
	return nil
}

// applyClassification はエンジンで分類し、結果をアイテムに反映する。
// 失敗時は既定スナップショット（確信度0.5）のままにする。
func (s *Service) applyClassification(ctx context.Context, item *model.ClothingItem, img aiclient.File) {
	cls, err := s.classifier.Classify(ctx, img)
	if err != nil {
		slog.Warn("classification failed, using default",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	item.AIClassification = toSnapshot(cls)
	mergeAttributes(&item.Attributes, cls.Attributes)
}

// List はユーザーのアイテム一覧を返す。
func (s *Service) List(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, model.Pagination, error) {
	items, total, err := s.clothing.List(ctx, userID, filter, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list clothing items: %w", err)
	}
	return items, model.NewPagination(total, page).WithHasMore(page.Offset(), len(items)), nil
}

// Get は所有者のアイテムを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.ClothingItem, error) {
	item, err := s.clothing.FindOwned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find clothing item: %w", err)
	}
	if item == nil {
		return nil, model.NewOwnedNotFoundError("Clothing item")
	}
	return item, nil
}

// Update はアイテムを更新する。
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*model.ClothingItem, error) {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	setString(&item.Name, in.Name)
	setString(&item.Brand, in.Brand)
	setString(&item.Color, in.Color)
	setString(&item.Size, in.Size)
	setString(&item.Category, in.Category)
	if in.Description != nil {
		item.Description = s.sanitizer.Sanitize(*in.Description)
	}
	if in.Attributes != nil {
		item.Attributes = *in.Attributes
	}
	meta := &item.UserMetadata
	if in.Price != nil {
		meta.Price = *in.Price
	}
	if in.PurchaseDate != nil {
		meta.PurchaseDate = in.PurchaseDate
	}
	if in.Notes != nil {
		meta.Notes = s.sanitizer.Sanitize(*in.Notes)
	}
	if in.UserTags != nil {
		meta.UserTags = s.sanitizer.SanitizeAll(in.UserTags)
	}
	if in.IsFavorite != nil {
		meta.IsFavorite = *in.IsFavorite
	}
	item.UpdatedAt = s.now().UTC()

	if err := s.clothing.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update clothing item: %w", err)
	}
	return item, nil
}

// Delete はアイテムを削除し、ワードローブから取り除く。画像の削除は失敗してもログのみとする。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	deleted, err := s.clothing.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete clothing item: %w", err)
	}
	if !deleted {
		return model.NewOwnedNotFoundError("Clothing item")
	}

	if err := s.wardrobes.RemoveItem(ctx, item.WardrobeID, id); err != nil {
		return fmt.Errorf("failed to remove item from wardrobe: %w", err)
	}
	if item.ImageKey != "" {
		if err := s.images.Delete(ctx, item.ImageKey); err != nil {
			slog.Warn("failed to delete item image",
				slog.String("item_id", id),
				slog.String("key", item.ImageKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Reclassify は保存済み画像を取得して分類し直す。
// 予測カテゴリが有効な値の場合のみカテゴリを置き換える。画像がない場合は仮の結果を返す。
func (s *Service) Reclassify(ctx context.Context, userID, id string) (*ReclassifyResult, error) {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if item.ImageURL == "" {
		return &ReclassifyResult{Item: item, Classification: s.placeholderClassification(item)}, nil
	}

	img, err := s.fetcher.Fetch(ctx, item.ImageURL)
	if err != nil {
		slog.Warn("failed to fetch item image",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
		return &ReclassifyResult{Item: item, Error: err.Error()}, nil
	}

	cls, err := s.classifier.Classify(ctx, aiclient.File{
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Data:        img.Data,
	})
	if err != nil {
		return &ReclassifyResult{Item: item, Error: classifyErrorMessage(err)}, nil
	}

	item.AIClassification = toSnapshot(cls)
	mergeAttributes(&item.Attributes, cls.Attributes)
	if model.IsValidCategory(cls.Classification.PredictedClass) {
		item.Category = cls.Classification.PredictedClass
	}
	item.UpdatedAt = s.now().UTC()
	if err := s.clothing.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update clothing item: %w", err)
	}
	return &ReclassifyResult{Item: item, Classification: cls}, nil
}

func (s *Service) placeholderClassification(item *model.ClothingItem) *aiclient.Classification {
	return &aiclient.Classification{
		Success: true,
		Classification: aiclient.ClassificationDetail{
			PredictedClass: item.Category,
			Confidence:     0.85,
			AllPredictions: json.RawMessage("[]"),
		},
		Attributes:   json.RawMessage("{}"),
		ImageQuality: json.RawMessage(`{"overall_score":0.5}`),
		ModelVersion: "1.0",
		Timestamp:    s.now().UTC().Format(time.RFC3339),
	}
}

func classifyErrorMessage(err error) string {
	var apiErr *model.APIError
	switch {
	case errors.Is(err, aiclient.ErrEngineUnavailable):
		return "AI classification service is not available"
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}

// Similar は類似アイテムを返す。エンジンが使えない場合は同カテゴリのアイテムで代替する。
func (s *Service) Similar(ctx context.Context, userID, id string) (*SimilarResult, error) {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	res, err := s.classifier.FindSimilar(ctx, aiclient.SimilarityRequest{ItemID: id, TopK: similarLimit})
	if err == nil && !res.Degraded {
		return &SimilarResult{Engine: res.Body}, nil
	}
	if err != nil {
		slog.Warn("similarity search failed, using category match",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
	}

	same, err := s.clothing.ListByCategory(ctx, userID, item.Category, id, similarLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list similar items: %w", err)
	}
	out := make([]SimilarItem, len(same))
	for i, it := range same {
		out[i] = SimilarItem{ClothingItem: it, SimilarityScore: s.rand()*0.3 + 0.7}
	}
	return &SimilarResult{Items: out, Note: categoryFallbackNote}, nil
}

// BulkUpdate は複数アイテムを一括更新し、更新件数を返す。
// 1件でも所有していないIDが含まれる場合はFORBIDDENを返す。
func (s *Service) BulkUpdate(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error) {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	owned, err := s.clothing.CountOwned(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned items: %w", err)
	}
	if owned != len(ids) {
		return 0, model.NewForbiddenError("Some items not found or access denied")
	}
	if u.UserTags != nil {
		u.UserTags = s.sanitizer.SanitizeAll(u.UserTags)
	}

	n, err := s.clothing.BulkUpdate(ctx, userID, ids, u)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update clothing items: %w", err)
	}
	return n, nil
}

// ToggleFavorite はお気に入りフラグを反転する。
func (s *Service) ToggleFavorite(ctx context.Context, userID, id string) (*model.ClothingItem, error) {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	item.UserMetadata.IsFavorite = !item.UserMetadata.IsFavorite
	item.UpdatedAt = s.now().UTC()
	if err := s.clothing.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update clothing item: %w", err)
	}
	return item, nil
}

// RecordWear は着用回数を1増やし最終着用日時を記録する。
func (s *Service) RecordWear(ctx context.Context, userID, id string) (*model.ClothingItem, error) {
	item, err := s.clothing.RecordWear(ctx, id, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record wear: %w", err)
	}
	if item == nil {
		return nil, model.NewOwnedNotFoundError("Clothing item")
	}
	return item, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
