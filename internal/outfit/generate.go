package outfit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/model"
)

// 生成の既定値
const (
	DefaultCount  = 5
	MaxCount      = 10
	DefaultSeason = "spring"
	defaultScore  = 0.8
	defaultGrade  = "B+"
)

// generateFailedMessage は生成失敗時にクライアントへ返すメッセージ。
const generateFailedMessage = "Failed to generate outfit recommendations"

// Generator はAIエンジンにコーディネートを生成させる。
type Generator interface {
	GenerateOutfits(ctx context.Context, req aiclient.GenerateRequest) (*aiclient.GenerateResult, error)
}

// GenerateInput はコーディネート生成の入力。
type GenerateInput struct {
	Occasion       string
	Season         string
	Weather        string
	Count          int
	ItemIDs        []string
	WeatherContext *model.WeatherContext
}

// GeneratedOutfit はクライアントに返す生成済みコーディネート。
type GeneratedOutfit struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Items          json.RawMessage       `json:"items"`
	Score          int                   `json:"score"`
	Explanation    json.RawMessage       `json:"explanation"`
	Tags           []string              `json:"tags"`
	Occasion       string                `json:"occasion"`
	WeatherContext *model.WeatherContext `json:"weatherContext"`
	Grade          string                `json:"grade"`
	Scores         json.RawMessage       `json:"scores"`
	OverallScore   float64               `json:"overall_score"`
}

// Recommendations は生成結果のレスポンス本体。
type Recommendations struct {
	Outfits          []GeneratedOutfit `json:"outfits"`
	Total            int               `json:"total"`
	AlgorithmInfo    json.RawMessage   `json:"algorithm_info"`
	ProcessingTimeMs float64           `json:"processing_time_ms"`
}

// Generate は所有アイテムからコーディネートを生成する。
// 他ユーザーのアイテムIDとUUIDでないIDは黙って除外し、1件も残らない場合はエンジンを呼ばずにエラーを返す。
// エンジン側の失敗はすべてUPSTREAM_ERRORにまとめる。
func (s *Service) Generate(ctx context.Context, userID string, in GenerateInput) (*Recommendations, error) {
	if len(in.ItemIDs) == 0 {
		return nil, model.NewNoClothingItemsError("No clothing items provided")
	}

	ids := validItemIDs(in.ItemIDs)
	if len(ids) == 0 {
		return nil, model.NewNoClothingItemsError("No valid clothing items found")
	}
	items, err := s.clothing.FindOwnedByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load clothing items: %w", err)
	}
	if len(items) == 0 {
		return nil, model.NewNoClothingItemsError("No valid clothing items found")
	}

	season := in.Season
	if season == "" {
		season = DefaultSeason
	}
	count := in.Count
	if count == 0 {
		count = DefaultCount
	}

	engineItems := make([]aiclient.EngineItem, len(items))
	for i, it := range items {
		engineItems[i] = aiclient.NewEngineItem(it)
	}

	start := s.now()
	res, err := s.generator.GenerateOutfits(ctx, aiclient.GenerateRequest{
		UserID:           userID,
		Occasion:         in.Occasion,
		Season:           season,
		WeatherContext:   in.WeatherContext,
		WardrobeItems:    engineItems,
		StylePreferences: []string{},
		Count:            count,
	})
	if err != nil {
		slog.Error("outfit generation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError(generateFailedMessage, failureDetails(err))
	}

	outfits := make([]GeneratedOutfit, len(res.Outfits))
	for i, o := range res.Outfits {
		outfits[i] = transform(o, i, in.Occasion, season, in.WeatherContext)
	}

	s.persist(ctx, userID, season, in.WeatherContext, res, outfits, s.now().Sub(start))

	return &Recommendations{
		Outfits:          outfits,
		Total:            len(outfits),
		AlgorithmInfo:    res.AlgorithmInfo,
		ProcessingTimeMs: res.ProcessingTimeMs,
	}, nil
}

// validItemIDs はUUIDとして解釈できるIDだけを返す。
// 1つでも不正な値が混ざると配列キャストごとクエリが失敗するため、問い合わせ前に落とす。
func validItemIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

// failureDetails はエンジンの応答本文、なければエラー文字列を返す。
func failureDetails(err error) any {
	var upErr *aiclient.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Details()
	}
	return err.Error()
}

func transform(o aiclient.EngineOutfit, i int, occasion, season string, weather *model.WeatherContext) GeneratedOutfit {
	out := GeneratedOutfit{
		ID:             o.ID,
		Name:           o.Name,
		Items:          o.Items,
		Explanation:    o.Explanation,
		Tags:           o.Tags,
		Occasion:       o.Occasion,
		WeatherContext: weather,
		Grade:          o.Grade,
		Scores:         o.Scores,
		OverallScore:   defaultScore,
	}
	if out.ID == "" {
		out.ID = fmt.Sprintf("outfit_%d", i)
	}
	if out.Name == "" {
		out.Name = fmt.Sprintf("%s Outfit %d", capitalize(occasion), i+1)
	}
	if o.OverallScore != nil {
		out.OverallScore = *o.OverallScore
	}
	out.Score = int(math.Round(out.OverallScore * 100))
	if out.Tags == nil {
		out.Tags = []string{occasion, season}
	}
	if out.Occasion == "" {
		out.Occasion = occasion
	}
	if out.Grade == "" {
		out.Grade = defaultGrade
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// persist は生成結果をおすすめとして保存する。保存の失敗はログのみとする。
func (s *Service) persist(ctx context.Context, userID, season string, weather *model.WeatherContext,
	res *aiclient.GenerateResult, outfits []GeneratedOutfit, elapsed time.Duration) {
	if len(outfits) == 0 {
		return
	}

	now := s.now().UTC()
	algorithm := gjson.GetBytes(res.AlgorithmInfo, "name").String()
	version := gjson.GetBytes(res.AlgorithmInfo, "version").String()
	recs := make([]*model.OutfitRecommendation, 0, len(outfits))
	for i, o := range outfits {
		recs = append(recs, &model.OutfitRecommendation{
			ID:                   uuid.New().String(),
			UserID:               userID,
			Occasion:             o.Occasion,
			Season:               season,
			WeatherContext:       weather,
			ItemIDs:              res.Outfits[i].ItemIDs(),
			CompatibilityScore:   o.OverallScore,
			AIReasoning:          reasoning(o.Explanation),
			RecommendationSource: model.RecommendationSourceAI,
			Metadata: model.RecommendationMetadata{
				GenerationTime: elapsed.Milliseconds(),
				ModelVersion:   version,
				Algorithm:      algorithm,
			},
			ExpiresAt: now.Add(s.recommendationTTL),
			CreatedAt: now,
		})
	}

	if err := s.recommendations.CreateBatch(ctx, recs); err != nil {
		slog.Warn("failed to store recommendations",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// reasoning は説明文の配列を1つの文字列にまとめる。文字列ならそのまま返す。
func reasoning(raw json.RawMessage) string {
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return doc.String()
	}
	parts := make([]string, 0, len(doc.Array()))
	for _, p := range doc.Array() {
		if p.String() != "" {
			parts = append(parts, p.String())
		}
	}
	return strings.Join(parts, " ")
}
