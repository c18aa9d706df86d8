package model

import "time"

// RecommendationTTL は生成されたおすすめの保持期間。
const RecommendationTTL = 7 * 24 * time.Hour

// WeatherContext はコーディネート生成時の気象条件。
type WeatherContext struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Conditions  string   `json:"conditions,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
	Location    string   `json:"location,omitempty"`
}

// RecommendationFeedback はおすすめに対するユーザーの反応。
type RecommendationFeedback struct {
	Liked        *bool      `json:"liked,omitempty"`
	Rating       *int       `json:"rating,omitempty"`
	Worn         *bool      `json:"worn,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	FeedbackDate *time.Time `json:"feedbackDate,omitempty"`
}

// RecommendationMetadata は生成処理のメタ情報。
type RecommendationMetadata struct {
	GenerationTime int64  `json:"generationTime"` // ミリ秒
	ModelVersion   string `json:"modelVersion,omitempty"`
	Algorithm      string `json:"algorithm,omitempty"`
}

// OutfitRecommendation はAIエンジンが生成したコーディネート提案の一時レコード。
// ExpiresAtを過ぎるとクリーンアップジョブが削除する。
type OutfitRecommendation struct {
	ID                   string                  `json:"id"`
	UserID               string                  `json:"userId"`
	Occasion             string                  `json:"occasion"`
	Season               string                  `json:"season"`
	WeatherContext       *WeatherContext         `json:"weatherContext,omitempty"`
	ItemIDs              []string                `json:"items"`
	CompatibilityScore   float64                 `json:"compatibilityScore"`
	AIReasoning          string                  `json:"aiReasoning"`
	RecommendationSource string                  `json:"recommendationSource"`
	UserFeedback         *RecommendationFeedback `json:"userFeedback,omitempty"`
	Metadata             RecommendationMetadata  `json:"metadata"`
	ExpiresAt            time.Time               `json:"expiresAt"`
	CreatedAt            time.Time               `json:"createdAt"`
}

// おすすめの生成元
const (
	RecommendationSourceAI      = "ai"
	RecommendationSourceUser    = "user"
	RecommendationSourceStylist = "stylist"
)
