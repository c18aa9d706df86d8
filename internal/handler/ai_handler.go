package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/middleware"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/security"
)

// maxBatchImages はバッチ分類で受け付ける画像の最大枚数。
const maxBatchImages = 10

// AIEngine はAIプロキシハンドラーが必要とするエンジンクライアントのインターフェース。
type AIEngine interface {
	Classify(ctx context.Context, f aiclient.File) (*aiclient.Classification, error)
	ClassifyBatch(ctx context.Context, files []aiclient.File) (json.RawMessage, error)
	FindSimilar(ctx context.Context, req aiclient.SimilarityRequest) (*aiclient.Result, error)
	CheckCompatibility(ctx context.Context, req aiclient.CompatibilityRequest) (*aiclient.Result, error)
	AnalyzeAttributes(ctx context.Context, f aiclient.File) (*aiclient.Result, error)
	StyleRecommendations(ctx context.Context, req aiclient.StyleRequest) (*aiclient.Result, error)
	QueryKnowledge(ctx context.Context, req aiclient.KnowledgeRequest) (*aiclient.Result, error)
}

// AIHandler はAIエンジンへのプロキシHTTPハンドラー。
// エンジンの応答本文はそのまま返す。
type AIHandler struct {
	engine AIEngine
}

// NewAIHandler はAIHandlerを生成する。
func NewAIHandler(engine AIEngine) *AIHandler {
	return &AIHandler{engine: engine}
}

type similarityRequest struct {
	ItemID string `json:"item_id" validate:"required"`
	TopK   int    `json:"top_k" validate:"omitempty,min=1,max=50"`
}

type compatibilityRequest struct {
	Item1ID string `json:"item1_id" validate:"required"`
	Item2ID string `json:"item2_id" validate:"required"`
	Context string `json:"context"`
}

type styleRequest struct {
	BaseItemID string          `json:"base_item_id" validate:"required"`
	Context    json.RawMessage `json:"context"`
	Limit      int             `json:"limit" validate:"omitempty,min=1,max=50"`
}

type knowledgeRequest struct {
	Type   string          `json:"type" validate:"required"`
	Params json.RawMessage `json:"params"`
}

// rawOrNil は空のJSON値をnilにする。nilはリクエストから省かれる。
func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// writeRaw はエンジンの応答本文をそのまま書き込む。
func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

// writeResult はエンジンの結果を書き込む。縮退応答もそのまま返す。
func writeResult(w http.ResponseWriter, res *aiclient.Result, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRaw(w, res.Body)
}

// uploadError は画像読み込みエラーをレスポンスに変換する。
func uploadError(w http.ResponseWriter, err error, missing string) {
	if errors.Is(err, ErrNoImage) {
		handleServiceError(w, model.NewBadRequestError(missing))
		return
	}
	handleServiceError(w, err)
}

// Classify は画像1枚を分類する。
// POST /api/classify
func (h *AIHandler) Classify(w http.ResponseWriter, r *http.Request) {
	files, err := readImages(r, "image", security.MaxImageBytes, 1)
	if err != nil {
		uploadError(w, err, "No image file provided")
		return
	}
	cls, err := h.engine.Classify(r.Context(), files[0])
	if errors.Is(err, aiclient.ErrEngineUnavailable) {
		middleware.WriteAPIError(w, &model.APIError{
			Code:     model.ErrCodeAIUnavailable,
			Message:  "AI classification service is not available. Please ensure the Flask AI service is running.",
			Category: "upstream",
		})
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, cls, "Image classified successfully")
}

// ClassifyBatch は最大10枚の画像をまとめて分類する。
// POST /api/classify/batch
func (h *AIHandler) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	files, err := readImages(r, "images", security.MaxImageBytes, maxBatchImages)
	if err != nil {
		uploadError(w, err, "No image files provided")
		return
	}
	body, err := h.engine.ClassifyBatch(r.Context(), files)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRaw(w, body)
}

// FindSimilar は類似アイテムを検索する。
// POST /api/similarity/find
func (h *AIHandler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarityRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.FindSimilar(r.Context(), aiclient.SimilarityRequest{ItemID: req.ItemID, TopK: req.TopK})
	writeResult(w, res, err)
}

// CheckCompatibility は2アイテムの相性を判定する。
// POST /api/compatibility/check
func (h *AIHandler) CheckCompatibility(w http.ResponseWriter, r *http.Request) {
	var req compatibilityRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.CheckCompatibility(r.Context(), aiclient.CompatibilityRequest{
		Item1ID: req.Item1ID,
		Item2ID: req.Item2ID,
		Context: req.Context,
	})
	writeResult(w, res, err)
}

// AnalyzeAttributes は画像からアイテムの属性を推定する。
// POST /api/attributes/analyze
func (h *AIHandler) AnalyzeAttributes(w http.ResponseWriter, r *http.Request) {
	files, err := readImages(r, "image", security.MaxImageBytes, 1)
	if err != nil {
		uploadError(w, err, "No image file provided")
		return
	}
	res, err := h.engine.AnalyzeAttributes(r.Context(), files[0])
	writeResult(w, res, err)
}

// StyleRecommendations は基準アイテムに合うアイテムを推薦する。
// POST /api/recommendations/style
func (h *AIHandler) StyleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.StyleRecommendations(r.Context(), aiclient.StyleRequest{
		BaseItemID: req.BaseItemID,
		Context:    rawOrNil(req.Context),
		Limit:      req.Limit,
	})
	writeResult(w, res, err)
}

// QueryKnowledge はファッション知識グラフに問い合わせる。
// POST /api/knowledge/query
func (h *AIHandler) QueryKnowledge(w http.ResponseWriter, r *http.Request) {
	var req knowledgeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.QueryKnowledge(r.Context(), aiclient.KnowledgeRequest{
		Type:   req.Type,
		Params: rawOrNil(req.Params),
	})
	writeResult(w, res, err)
}
