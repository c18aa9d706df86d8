package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/closetiq/internal/model"
)

// ErrUnknownResponseShape はコーディネート生成のレスポンスがどの形にも当てはまらない場合のエラー。
var ErrUnknownResponseShape = errors.New("unknown outfit response shape")

// ResponseShape はコーディネート生成レスポンスの形。
type ResponseShape int

const (
	// ShapeOutfits はoutfits配列を含むレスポンス。
	ShapeOutfits ResponseShape = iota + 1
	// ShapeSuccessOnly はsuccessフラグのみでoutfits配列を含まないレスポンス。
	ShapeSuccessOnly
)

// EngineItem はエンジンに送る正規化済みのアイテム。
type EngineItem struct {
	ID         string               `json:"_id"`
	Category   string               `json:"category"`
	Name       string               `json:"name"`
	Brand      string               `json:"brand"`
	Color      string               `json:"color"`
	Attributes EngineItemAttributes `json:"attributes"`
}

// EngineItemAttributes はエンジンが必須とするアイテム属性。
type EngineItemAttributes struct {
	Colors    []string `json:"colors"`
	Style     []string `json:"style"`
	Materials []string `json:"materials"`
	Patterns  []string `json:"patterns"`
}

// NewEngineItem は衣類アイテムをエンジン向けに正規化する。
// 空の属性は既定値で補う。
func NewEngineItem(item *model.ClothingItem) EngineItem {
	colors := []string{"unknown"}
	if item.Color != "" {
		colors = []string{item.Color}
	}
	return EngineItem{
		ID:       item.ID,
		Category: item.Category,
		Name:     item.Name,
		Brand:    item.Brand,
		Color:    item.Color,
		Attributes: EngineItemAttributes{
			Colors:    colors,
			Style:     orDefault(item.UserMetadata.UserTags, "casual"),
			Materials: orDefault(item.Attributes.Materials, "cotton"),
			Patterns:  orDefault(item.Attributes.Patterns, "solid"),
		},
	}
}

func orDefault(values []string, def string) []string {
	if len(values) == 0 {
		return []string{def}
	}
	return values
}

// GenerateRequest はコーディネート生成のリクエスト。
type GenerateRequest struct {
	UserID           string                `json:"user_id"`
	Occasion         string                `json:"occasion"`
	Season           string                `json:"season"`
	WeatherContext   *model.WeatherContext `json:"weather_context"`
	WardrobeItems    []EngineItem          `json:"wardrobe_items"`
	StylePreferences []string              `json:"style_preferences"`
	Count            int                   `json:"count"`
}

// EngineOutfit はエンジンが返したコーディネート1件。
// 欠けている値は呼び出し側で補う。
type EngineOutfit struct {
	ID           string
	Name         string
	Items        json.RawMessage
	OverallScore *float64
	Explanation  json.RawMessage
	Tags         []string
	Occasion     string
	Grade        string
	Scores       json.RawMessage
}

// ItemIDs はItemsのうち文字列の要素を返す。
func (o *EngineOutfit) ItemIDs() []string {
	var ids []string
	gjson.ParseBytes(o.Items).ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			ids = append(ids, v.String())
		}
		return true
	})
	return ids
}

// GenerateResult はコーディネート生成レスポンスをデコードしたもの。
type GenerateResult struct {
	Shape            ResponseShape
	Outfits          []EngineOutfit
	TotalGenerated   int
	AlgorithmInfo    json.RawMessage
	ProcessingTimeMs float64
}

// GenerateOutfits はエンジンにコーディネートを生成させる。
// 代替レスポンスはなく、接続拒否はErrEngineUnavailableになる。
func (c *Client) GenerateOutfits(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.StylePreferences == nil {
		req.StylePreferences = []string{}
	}
	res, err := c.PostJSON(ctx, PathGenerateOutfits, req, Policy{Timeout: generateTimeout})
	if err != nil {
		return nil, err
	}
	return DecodeGenerateResponse(res.Body)
}

// DecodeGenerateResponse はレスポンスの形を判別してデコードする。
func DecodeGenerateResponse(body []byte) (*GenerateResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrUnknownResponseShape)
	}
	doc := gjson.ParseBytes(body)

	result := &GenerateResult{
		AlgorithmInfo:    rawOr(doc.Get("algorithm_info"), "{}"),
		ProcessingTimeMs: doc.Get("processing_time_ms").Float(),
	}

	outfits := doc.Get("outfits")
	switch {
	case outfits.IsArray():
		result.Shape = ShapeOutfits
		for _, o := range outfits.Array() {
			result.Outfits = append(result.Outfits, decodeEngineOutfit(o))
		}
		result.TotalGenerated = int(doc.Get("total_generated").Int())
		if result.TotalGenerated == 0 {
			result.TotalGenerated = len(result.Outfits)
		}
	case doc.Get("success").Bool():
		result.Shape = ShapeSuccessOnly
		result.TotalGenerated = int(doc.Get("total_generated").Int())
	default:
		return nil, ErrUnknownResponseShape
	}
	return result, nil
}

func decodeEngineOutfit(o gjson.Result) EngineOutfit {
	out := EngineOutfit{
		ID:          o.Get("id").String(),
		Name:        o.Get("name").String(),
		Occasion:    o.Get("occasion").String(),
		Grade:       o.Get("grade").String(),
		Explanation: rawOr(o.Get("explanation"), "[]"),
		Scores:      rawOr(o.Get("scores"), "{}"),
	}
	if out.ID == "" {
		out.ID = o.Get("_id").String()
	}

	items := o.Get("item_ids")
	if !items.Exists() {
		items = o.Get("items")
	}
	out.Items = rawOr(items, "[]")

	if s := o.Get("overall_score"); s.Exists() && s.Float() != 0 {
		v := s.Float()
		out.OverallScore = &v
	}
	if tags := o.Get("tags"); tags.IsArray() {
		out.Tags = []string{}
		for _, t := range tags.Array() {
			out.Tags = append(out.Tags, t.String())
		}
	}
	return out
}
