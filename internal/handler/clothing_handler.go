package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/closetiq/internal/clothing"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
	"github.com/hitoshi/closetiq/internal/validation"
)

// ClothingServiceInterface は衣類ハンドラーが必要とするサービスインターフェース。
type ClothingServiceInterface interface {
	Create(ctx context.Context, userID string, in clothing.CreateInput) (*model.ClothingItem, error)
	List(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, model.Pagination, error)
	Get(ctx context.Context, userID, id string) (*model.ClothingItem, error)
	Update(ctx context.Context, userID, id string, in clothing.UpdateInput) (*model.ClothingItem, error)
	Delete(ctx context.Context, userID, id string) error
	Reclassify(ctx context.Context, userID, id string) (*clothing.ReclassifyResult, error)
	Similar(ctx context.Context, userID, id string) (*clothing.SimilarResult, error)
	BulkUpdate(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error)
	ToggleFavorite(ctx context.Context, userID, id string) (*model.ClothingItem, error)
	RecordWear(ctx context.Context, userID, id string) (*model.ClothingItem, error)
}

// ClothingHandler は衣類アイテムのHTTPハンドラー。
type ClothingHandler struct {
	service ClothingServiceInterface
}

// NewClothingHandler はClothingHandlerを生成する。
func NewClothingHandler(service ClothingServiceInterface) *ClothingHandler {
	return &ClothingHandler{service: service}
}

// createClothingForm はmultipartで送られるアイテム登録フォーム。
type createClothingForm struct {
	WardrobeID  string  `json:"wardrobeId" validate:"required,uuid"`
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Category    string  `json:"category" validate:"required,oneof=shirts_blouses tshirts_tops dresses pants_jeans shorts skirts jackets_coats sweaters shoes_sneakers shoes_formal bags_accessories"`
	Color       string  `json:"color" validate:"required,max=30"`
	Brand       string  `json:"brand" validate:"max=50"`
	Size        string  `json:"size" validate:"max=10"`
	Description string  `json:"description" validate:"max=500"`
	Price       float64 `json:"price" validate:"gte=0"`
	Notes       string  `json:"notes" validate:"max=1000"`
}

type attributesRequest struct {
	Colors       []string `json:"colors"`
	Patterns     []string `json:"patterns"`
	Materials    []string `json:"materials"`
	Season       []string `json:"season" validate:"omitempty,dive,oneof=spring summer fall winter all-season"`
	Occasion     []string `json:"occasion"`
	Style        []string `json:"style"`
	Fit          string   `json:"fit" validate:"omitempty,oneof=tight fitted regular loose oversized"`
	Length       string   `json:"length"`
	SleeveLength string   `json:"sleeveLength"`
	Neckline     string   `json:"neckline"`
}

type updateClothingRequest struct {
	Name         *string            `json:"name" validate:"omitempty,min=1,max=100"`
	Brand        *string            `json:"brand" validate:"omitempty,max=50"`
	Color        *string            `json:"color" validate:"omitempty,max=30"`
	Size         *string            `json:"size" validate:"omitempty,max=10"`
	Description  *string            `json:"description" validate:"omitempty,max=500"`
	Category     *string            `json:"category" validate:"omitempty,oneof=shirts_blouses tshirts_tops dresses pants_jeans shorts skirts jackets_coats sweaters shoes_sneakers shoes_formal bags_accessories"`
	Attributes   *attributesRequest `json:"attributes"`
	Price        *float64           `json:"price" validate:"omitempty,gte=0"`
	PurchaseDate *time.Time         `json:"purchaseDate"`
	Notes        *string            `json:"notes" validate:"omitempty,max=1000"`
	UserTags     []string           `json:"userTags"`
	IsFavorite   *bool              `json:"isFavorite"`
}

type bulkUpdateFields struct {
	Category   *string  `json:"category" validate:"omitempty,oneof=shirts_blouses tshirts_tops dresses pants_jeans shorts skirts jackets_coats sweaters shoes_sneakers shoes_formal bags_accessories"`
	Brand      *string  `json:"brand" validate:"omitempty,max=50"`
	Color      *string  `json:"color" validate:"omitempty,max=30"`
	IsFavorite *bool    `json:"isFavorite"`
	UserTags   []string `json:"userTags"`
}

type bulkUpdateRequest struct {
	ItemIDs []string          `json:"itemIds" validate:"required,min=1,dive,uuid"`
	Updates *bulkUpdateFields `json:"updates" validate:"required"`
}

// Create はアイテムを登録する。画像があれば保存し、autoClassifyがfalseでなければ分類する。
// POST /api/clothing
func (h *ClothingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	img, err := readOptionalImage(r, "image", security.MaxImageBytes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	form := createClothingForm{
		WardrobeID:  r.FormValue("wardrobeId"),
		Name:        strings.TrimSpace(r.FormValue("name")),
		Category:    r.FormValue("category"),
		Color:       strings.TrimSpace(r.FormValue("color")),
		Brand:       strings.TrimSpace(r.FormValue("brand")),
		Size:        strings.TrimSpace(r.FormValue("size")),
		Description: r.FormValue("description"),
		Notes:       r.FormValue("notes"),
	}
	if raw := r.FormValue("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			handleServiceError(w, model.NewValidationError([]model.FieldError{{
				Type:     "field",
				Path:     "price",
				Msg:      "price must be a number",
				Value:    raw,
				Location: validation.LocationBody,
			}}))
			return
		}
		form.Price = price
	}
	if err := validation.Struct(form, validation.LocationBody); err != nil {
		handleServiceError(w, err)
		return
	}

	item, err := h.service.Create(r.Context(), userID, clothing.CreateInput{
		WardrobeID:   form.WardrobeID,
		Name:         form.Name,
		Category:     form.Category,
		Color:        form.Color,
		Brand:        form.Brand,
		Size:         form.Size,
		Description:  form.Description,
		Price:        form.Price,
		Notes:        form.Notes,
		UserTags:     formTags(r),
		Image:        img,
		AutoClassify: r.FormValue("autoClassify") != "false",
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, item, "Clothing item added successfully")
}

// formTags はtagsまたはuserTagsフィールドの値を送信順に返す。空の値は除く。
func formTags(r *http.Request) []string {
	raw := append(append([]string{}, r.Form["tags"]...), r.Form["userTags"]...)
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// List はアイテム一覧を返す。
// GET /api/clothing
func (h *ClothingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := validation.ParsePagination(q, clothing.DefaultListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	filter := model.ClothingFilter{WardrobeID: q.Get("wardrobeId"), Category: q.Get("category")}
	if filter.WardrobeID != "" {
		if filter.WardrobeID, err = validation.ParseID(filter.WardrobeID); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	if raw := q.Get("isFavorite"); raw != "" {
		fav, err := strconv.ParseBool(raw)
		if err != nil {
			handleServiceError(w, model.NewBadRequestError("isFavorite must be true or false"))
			return
		}
		filter.IsFavorite = &fav
	}

	items, pg, err := h.service.List(r.Context(), userID, filter, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeList(w, "items", items, pg)
}

// Get はアイテムを返す。
// GET /api/clothing/{id}
func (h *ClothingHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withItem(w, r, func(ctx context.Context, userID, id string) (any, string, error) {
		item, err := h.service.Get(ctx, userID, id)
		return item, "", err
	})
}

// Update はアイテムを更新する。
// PUT /api/clothing/{id}
func (h *ClothingHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateClothingRequest
	if !decode(w, r, &req) {
		return
	}

	in := clothing.UpdateInput{
		Name:         req.Name,
		Brand:        req.Brand,
		Color:        req.Color,
		Size:         req.Size,
		Description:  req.Description,
		Category:     req.Category,
		Price:        req.Price,
		PurchaseDate: req.PurchaseDate,
		Notes:        req.Notes,
		UserTags:     req.UserTags,
		IsFavorite:   req.IsFavorite,
	}
	if a := req.Attributes; a != nil {
		in.Attributes = &model.ItemAttributes{
			Colors:       a.Colors,
			Patterns:     a.Patterns,
			Materials:    a.Materials,
			Season:       a.Season,
			Occasion:     a.Occasion,
			Style:        a.Style,
			Fit:          a.Fit,
			Length:       a.Length,
			SleeveLength: a.SleeveLength,
			Neckline:     a.Neckline,
		}
	}

	item, err := h.service.Update(r.Context(), userID, id, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, item, "Clothing item updated successfully")
}

// Delete はアイテムを削除する。
// DELETE /api/clothing/{id}
func (h *ClothingHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	writeMessage(w, "Clothing item deleted successfully")
}

// Classify は保存済み画像で再分類する。
// POST /api/clothing/{id}/classify
func (h *ClothingHandler) Classify(w http.ResponseWriter, r *http.Request) {
	h.withItem(w, r, func(ctx context.Context, userID, id string) (any, string, error) {
		res, err := h.service.Reclassify(ctx, userID, id)
		if err != nil {
			return nil, "", err
		}
		if res.Error != "" {
			return res, "Classification failed: " + res.Error, nil
		}
		return res, "Item reclassified successfully", nil
	})
}

// Similar は類似アイテムを返す。
// GET /api/clothing/{id}/similar
func (h *ClothingHandler) Similar(w http.ResponseWriter, r *http.Request) {
	h.withItem(w, r, func(ctx context.Context, userID, id string) (any, string, error) {
		res, err := h.service.Similar(ctx, userID, id)
		if err != nil {
			return nil, "", err
		}
		if res.Engine != nil {
			return map[string]any{"baseItem": id, "result": res.Engine}, "", nil
		}
		return map[string]any{"baseItem": id, "similarItems": res.Items, "note": res.Note}, "", nil
	})
}

// BulkUpdate は複数アイテムをまとめて更新する。
// PATCH /api/clothing/bulk-update
func (h *ClothingHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req bulkUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	u := req.Updates
	n, err := h.service.BulkUpdate(r.Context(), userID, req.ItemIDs, repository.ClothingBulkUpdate{
		Category:   u.Category,
		Brand:      u.Brand,
		Color:      u.Color,
		IsFavorite: u.IsFavorite,
		UserTags:   u.UserTags,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"modified": n, "matched": n}, fmt.Sprintf("Updated %d items", n))
}

// ToggleFavorite はお気に入りを切り替える。
// POST /api/clothing/{id}/favorite
func (h *ClothingHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.withItem(w, r, func(ctx context.Context, userID, id string) (any, string, error) {
		item, err := h.service.ToggleFavorite(ctx, userID, id)
		if err != nil {
			return nil, "", err
		}
		msg := "Removed from favorites"
		if item.UserMetadata.IsFavorite {
			msg = "Added to favorites"
		}
		return item, msg, nil
	})
}

// RecordWear は着用を記録する。
// POST /api/clothing/{id}/wear
func (h *ClothingHandler) RecordWear(w http.ResponseWriter, r *http.Request) {
	h.withItem(w, r, func(ctx context.Context, userID, id string) (any, string, error) {
		item, err := h.service.RecordWear(ctx, userID, id)
		return item, "Wear recorded successfully", err
	})
}

// withItem はユーザーIDとパスのIDを検証してからfnを呼び、結果を200で返す。
func (h *ClothingHandler) withItem(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, id string) (any, string, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	data, msg, err := fn(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, data, msg)
}
