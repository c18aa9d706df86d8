package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/closetiq/internal/model"
)

// エンジンのエンドポイント
const (
	PathClassify        = "/api/classify"
	PathClassifyBatch   = "/api/classify/batch"
	PathSimilarity      = "/api/similarity/search"
	PathCompatibility   = "/api/compatibility/check"
	PathAttributes      = "/api/attributes/analyze"
	PathStyle           = "/api/style/recommendations"
	PathKnowledge       = "/api/knowledge/query"
	PathGenerateOutfits = "/api/outfits/generate"
)

// 呼び出し箇所ごとのタイムアウト
const (
	classifyTimeout      = 30 * time.Second
	classifyBatchTimeout = 60 * time.Second
	lookupTimeout        = 15 * time.Second
	styleTimeout         = 20 * time.Second
	generateTimeout      = 30 * time.Second
)

// maxMockItems は代替レスポンスで返すアイテム数の上限。
const maxMockItems = 5

// Classification は画像分類結果をクライアント向けに整形したもの。
type Classification struct {
	Success          bool                 `json:"success"`
	Classification   ClassificationDetail `json:"classification"`
	Attributes       json.RawMessage      `json:"attributes"`
	ImageQuality     json.RawMessage      `json:"image_quality"`
	ProcessingTimeMs float64              `json:"processing_time_ms"`
	ModelVersion     string               `json:"model_version"`
	Timestamp        string               `json:"timestamp"`
}

// ClassificationDetail は予測カテゴリと確信度。
type ClassificationDetail struct {
	PredictedClass string          `json:"predicted_class"`
	Confidence     float64         `json:"confidence"`
	AllPredictions json.RawMessage `json:"all_predictions"`
}

// Classify は画像1枚をエンジンで分類する。
// エンジンのレスポンスにsuccessやclassificationがない場合はUPSTREAM_ERRORを返す。
func (c *Client) Classify(ctx context.Context, f File) (*Classification, error) {
	res, err := c.PostMultipart(ctx, PathClassify, "image", []File{f}, Policy{Timeout: classifyTimeout})
	if err != nil {
		return nil, err
	}
	return decodeClassification(res.Body, time.Now().UTC())
}

func decodeClassification(body []byte, now time.Time) (*Classification, error) {
	doc := gjson.ParseBytes(body)
	if !doc.Get("success").Bool() {
		reason := doc.Get("error").String()
		if reason == "" {
			reason = "Invalid AI response"
		}
		return nil, model.NewUpstreamError("AI service returned invalid response", reason)
	}
	cls := doc.Get("classification")
	if !cls.Exists() || cls.Type == gjson.Null {
		return nil, model.NewUpstreamError("No classification data received from AI service", "Missing classification data")
	}

	out := &Classification{
		Success: true,
		Classification: ClassificationDetail{
			PredictedClass: stringOr(cls.Get("predicted_class"), "unknown"),
			Confidence:     cls.Get("confidence").Float(),
			AllPredictions: rawOr(cls.Get("all_predictions"), "[]"),
		},
		Attributes:       rawOr(doc.Get("attributes"), "{}"),
		ImageQuality:     rawOr(doc.Get("image_quality"), `{"overall_score":0.5}`),
		ProcessingTimeMs: doc.Get("processing_time_ms").Float(),
		ModelVersion:     stringOr(doc.Get("model_version"), "1.0"),
		Timestamp:        stringOr(doc.Get("timestamp"), now.Format(time.RFC3339)),
	}
	return out, nil
}

// ClassifyBatch は複数画像をまとめて分類し、エンジンのレスポンスをそのまま返す。
func (c *Client) ClassifyBatch(ctx context.Context, files []File) (json.RawMessage, error) {
	res, err := c.PostMultipart(ctx, PathClassifyBatch, "images", files, Policy{Timeout: classifyBatchTimeout})
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// SimilarityRequest は類似アイテム検索のリクエスト。
type SimilarityRequest struct {
	ItemID string `json:"item_id"`
	TopK   int    `json:"top_k"`
}

// FindSimilar は類似アイテムを検索する。エンジン停止時は模擬結果を返す。
func (c *Client) FindSimilar(ctx context.Context, req SimilarityRequest) (*Result, error) {
	if req.TopK <= 0 {
		req.TopK = 5
	}
	return c.PostJSON(ctx, PathSimilarity, req, Policy{
		Timeout: lookupTimeout,
		Fallback: func() any {
			n := min(req.TopK, maxMockItems)
			items := make([]map[string]any, n)
			for i := range items {
				items[i] = map[string]any{
					"id":               fmt.Sprintf("item_%s_similar_%d", req.ItemID, i+1),
					"similarity_score": c.rand()*0.3 + 0.7,
					"name":             fmt.Sprintf("Similar Item %d", i+1),
					"category":         "clothing",
				}
			}
			return map[string]any{"success": true, "results": items, "total": n}
		},
	})
}

// CompatibilityRequest は2アイテムの相性判定のリクエスト。
type CompatibilityRequest struct {
	Item1ID string `json:"item1_id"`
	Item2ID string `json:"item2_id"`
	Context string `json:"context"`
}

// CheckCompatibility は2アイテムの相性を判定する。エンジン停止時は模擬結果を返す。
func (c *Client) CheckCompatibility(ctx context.Context, req CompatibilityRequest) (*Result, error) {
	if req.Context == "" {
		req.Context = "general"
	}
	return c.PostJSON(ctx, PathCompatibility, req, Policy{
		Timeout: lookupTimeout,
		Fallback: func() any {
			return map[string]any{
				"success": true,
				"compatibility": map[string]any{
					"compatible": c.rand() > 0.3,
					"score":      c.rand(),
					"reasons":    []string{"color harmony", "style matching"},
					"context":    req.Context,
				},
				"item1_id": req.Item1ID,
				"item2_id": req.Item2ID,
			}
		},
	})
}

// AnalyzeAttributes は画像からアイテムの属性を推定する。エンジン停止時は固定の属性を返す。
func (c *Client) AnalyzeAttributes(ctx context.Context, f File) (*Result, error) {
	return c.PostMultipart(ctx, PathAttributes, "image", []File{f}, Policy{
		Timeout: lookupTimeout,
		Fallback: func() any {
			return map[string]any{
				"success": true,
				"attributes": map[string]any{
					"color":     map[string]string{"primary": "blue", "secondary": "white"},
					"material":  "cotton",
					"pattern":   "solid",
					"style":     "casual",
					"fit":       "regular",
					"season":    []string{"spring", "summer"},
					"occasions": []string{"casual", "work"},
				},
			}
		},
	})
}

// StyleRequest は基準アイテムに合うアイテム推薦のリクエスト。
type StyleRequest struct {
	BaseItemID string `json:"base_item_id"`
	Context    any    `json:"context,omitempty"`
	Limit      int    `json:"limit"`
}

// StyleRecommendations は基準アイテムに合うアイテムを推薦する。エンジン停止時は模擬結果を返す。
func (c *Client) StyleRecommendations(ctx context.Context, req StyleRequest) (*Result, error) {
	if req.Limit <= 0 {
		req.Limit = 5
	}
	return c.PostJSON(ctx, PathStyle, req, Policy{
		Timeout: styleTimeout,
		Fallback: func() any {
			recs := make([]map[string]any, min(req.Limit, maxMockItems))
			for i := range recs {
				recs[i] = map[string]any{
					"id":         fmt.Sprintf("rec_%d", i+1),
					"name":       fmt.Sprintf("Recommended Item %d", i+1),
					"category":   "clothing",
					"confidence": c.rand()*0.3 + 0.7,
					"reason":     "Style matching",
				}
			}
			return map[string]any{
				"success":         true,
				"recommendations": recs,
				"base_item_id":    req.BaseItemID,
				"context":         req.Context,
			}
		},
	})
}

// KnowledgeRequest はファッション知識グラフへの問い合わせ。
type KnowledgeRequest struct {
	Type   string `json:"type"`
	Params any    `json:"params,omitempty"`
}

// QueryKnowledge は知識グラフに問い合わせる。エンジン停止時は固定のトレンドを返す。
func (c *Client) QueryKnowledge(ctx context.Context, req KnowledgeRequest) (*Result, error) {
	return c.PostJSON(ctx, PathKnowledge, req, Policy{
		Timeout: lookupTimeout,
		Fallback: func() any {
			return map[string]any{
				"success": true,
				"type":    req.Type,
				"results": []map[string]any{
					{"id": "result_1", "name": "Fashion Trend 1", "relevance": 0.9},
					{"id": "result_2", "name": "Fashion Trend 2", "relevance": 0.8},
				},
				"params": req.Params,
			}
		},
	})
}

func stringOr(r gjson.Result, def string) string {
	if s := r.String(); s != "" {
		return s
	}
	return def
}

func rawOr(r gjson.Result, def string) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return json.RawMessage(def)
	}
	return json.RawMessage(r.Raw)
}
