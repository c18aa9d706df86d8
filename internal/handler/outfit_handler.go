package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/outfit"
	"github.com/hitoshi/closetiq/internal/validation"
)

// OutfitServiceInterface はコーディネートハンドラーが必要とするサービスインターフェース。
type OutfitServiceInterface interface {
	Generate(ctx context.Context, userID string, in outfit.GenerateInput) (*outfit.Recommendations, error)
	Save(ctx context.Context, userID string, in outfit.SaveInput) (*model.Outfit, error)
	List(ctx context.Context, userID string, page model.PageRequest) ([]*outfit.Detail, model.Pagination, error)
	Get(ctx context.Context, userID, id string) (*outfit.Detail, error)
	Update(ctx context.Context, userID, id string, in outfit.UpdateInput) (*model.Outfit, error)
	Delete(ctx context.Context, userID, id string) error
	Rate(ctx context.Context, userID, id string, rating float64) (*model.Outfit, error)
	Share(ctx context.Context, userID, id string) (string, error)
	RecordWear(ctx context.Context, userID, id string) (*model.Outfit, error)
	Recommendations(ctx context.Context, userID string, page model.PageRequest) ([]*model.OutfitRecommendation, model.Pagination, error)
	Feedback(ctx context.Context, userID, id string, fb model.RecommendationFeedback) (*model.OutfitRecommendation, error)
}

// OutfitHandler はコーディネートのHTTPハンドラー。
type OutfitHandler struct {
	service OutfitServiceInterface
}

// NewOutfitHandler はOutfitHandlerを生成する。
func NewOutfitHandler(service OutfitServiceInterface) *OutfitHandler {
	return &OutfitHandler{service: service}
}

type weatherContextRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Conditions  string   `json:"conditions"`
	WindSpeed   *float64 `json:"windSpeed"`
	Location    string   `json:"location"`
}

type generateRequest struct {
	Occasion            string                 `json:"occasion" validate:"required,oneof=work casual formal party date sport travel"`
	Season              string                 `json:"season" validate:"omitempty,oneof=spring summer fall winter"`
	Weather             string                 `json:"weather" validate:"omitempty,oneof=sunny cloudy rainy snowy hot cold mild"`
	Count               int                    `json:"count" validate:"omitempty,min=1,max=10"`
	Items               json.RawMessage        `json:"items"`
	ItemIDs             []string               `json:"itemIds"`
	WardrobeItems       json.RawMessage        `json:"wardrobeItems"`
	WeatherContext      *weatherContextRequest `json:"weather_context"`
	WeatherContextCamel *weatherContextRequest `json:"weatherContext"`
}

// itemIDs はitems、itemIds、wardrobeItemsの順に最初に値のあるものからIDを取り出す。
// itemsとwardrobeItemsの要素はID文字列か、_idまたはidを持つオブジェクトを受け付ける。
func (req generateRequest) itemIDs() []string {
	if ids := idsFromJSON(req.Items); len(ids) > 0 {
		return ids
	}
	if len(req.ItemIDs) > 0 {
		return req.ItemIDs
	}
	return idsFromJSON(req.WardrobeItems)
}

func (req generateRequest) weatherContext() *weatherContextRequest {
	if req.WeatherContext != nil {
		return req.WeatherContext
	}
	return req.WeatherContextCamel
}

func idsFromJSON(raw json.RawMessage) []string {
	var ids []string
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		var id string
		switch {
		case v.Type == gjson.String:
			id = v.String()
		case v.IsObject():
			id = v.Get("_id").String()
			if id == "" {
				id = v.Get("id").String()
			}
		}
		if id != "" {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

type saveOutfitRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=100"`
	Description string   `json:"description" validate:"max=500"`
	ItemIDs     []string `json:"items" validate:"required,min=1,dive,uuid"`
	Occasion    string   `json:"occasion" validate:"required,oneof=work casual formal party date sport travel"`
	Season      string   `json:"season" validate:"omitempty,oneof=spring summer fall winter"`
	Tags        []string `json:"tags" validate:"omitempty,dive,max=30"`
	IsPublic    bool     `json:"isPublic"`
}

type updateOutfitRequest struct {
	Name     *string  `json:"name" validate:"omitempty,min=1,max=100"`
	ItemIDs  []string `json:"items" validate:"omitempty,min=1,dive,uuid"`
	Occasion *string  `json:"occasion" validate:"omitempty,oneof=work casual formal party date sport travel"`
	Tags     []string `json:"tags" validate:"omitempty,dive,max=30"`
	IsPublic *bool    `json:"isPublic"`
}

type rateRequest struct {
	Rating float64 `json:"rating"`
}

type feedbackRequest struct {
	Liked    *bool  `json:"liked"`
	Rating   *int   `json:"rating"`
	Worn     *bool  `json:"worn"`
	Comments string `json:"comments" validate:"max=500"`
}

// generateResponse は生成結果のレスポンス。recommendationsをトップレベルに置く。
type generateResponse struct {
	Success         bool                    `json:"success"`
	Recommendations *outfit.Recommendations `json:"recommendations"`
}

// Generate はAIエンジンでコーディネートを生成する。
// POST /api/outfits/generate
func (h *OutfitHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}

	in := outfit.GenerateInput{
		Occasion: req.Occasion,
		Season:   req.Season,
		Weather:  req.Weather,
		Count:    req.Count,
		ItemIDs:  req.itemIDs(),
	}
	if wc := req.weatherContext(); wc != nil {
		in.WeatherContext = &model.WeatherContext{
			Temperature: wc.Temperature,
			Humidity:    wc.Humidity,
			Conditions:  wc.Conditions,
			WindSpeed:   wc.WindSpeed,
			Location:    wc.Location,
		}
	}

	recs, err := h.service.Generate(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, Recommendations: recs})
}

// Save はコーディネートを保存する。
// POST /api/outfits
func (h *OutfitHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req saveOutfitRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.service.Save(r.Context(), userID, outfit.SaveInput{
		Name:        req.Name,
		Description: req.Description,
		ItemIDs:     req.ItemIDs,
		Occasion:    req.Occasion,
		Season:      req.Season,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, o, "Outfit saved successfully")
}

// List はコーディネート一覧を返す。
// GET /api/outfits
func (h *OutfitHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	page, err := validation.ParsePagination(r.URL.Query(), outfit.DefaultListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	outfits, pg, err := h.service.List(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeList(w, "outfits", outfits, pg)
}

// Get はアイテムを展開したコーディネートを返す。
// GET /api/outfits/{id}
func (h *OutfitHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, o, "")
}

// Update はコーディネートを更新する。
// PUT /api/outfits/{id}
func (h *OutfitHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateOutfitRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.service.Update(r.Context(), userID, id, outfit.UpdateInput{
		Name:     req.Name,
		ItemIDs:  req.ItemIDs,
		Occasion: req.Occasion,
		Tags:     req.Tags,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, o, "Outfit updated successfully")
}

// Delete はコーディネートを削除する。
// DELETE /api/outfits/{id}
func (h *OutfitHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	writeMessage(w, "Outfit deleted successfully")
}

// Rate はコーディネートを評価する。
// POST /api/outfits/{id}/rate
func (h *OutfitHandler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rateRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.service.Rate(r.Context(), userID, id, req.Rating)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]float64{"rating": o.Rating}, "Outfit rated successfully")
}

// Share はコーディネートを公開し共有URLを返す。
// POST /api/outfits/{id}/share
func (h *OutfitHandler) Share(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	shareURL, err := h.service.Share(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"shareUrl": shareURL}, "Outfit shared successfully")
}

// RecordWear は着用を記録する。
// POST /api/outfits/{id}/wear
func (h *OutfitHandler) RecordWear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.service.RecordWear(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, o, "Wear recorded successfully")
}

// Recommendations は期限内のおすすめ一覧を返す。
// GET /api/outfits/recommendations
func (h *OutfitHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	page, err := validation.ParsePagination(r.URL.Query(), outfit.DefaultListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	recs, pg, err := h.service.Recommendations(r.Context(), userID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeList(w, "recommendations", recs, pg)
}

// Feedback はおすすめへのフィードバックを保存する。
// POST /api/outfits/recommendations/{id}/feedback
func (h *OutfitHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req feedbackRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.service.Feedback(r.Context(), userID, id, model.RecommendationFeedback{
		Liked:    req.Liked,
		Rating:   req.Rating,
		Worn:     req.Worn,
		Comments: req.Comments,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec, "Feedback recorded successfully")
}
