package model

import "time"

// ClothingItem はユーザーが登録した衣類1点を表す。
// 画像、AI分類結果のスナップショット、ユーザー編集可能なメタデータを保持する。
type ClothingItem struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	WardrobeID       string           `json:"wardrobeId"`
	ImageURL         string           `json:"imageUrl"`
	ImageKey         string           `json:"-"` // オブジェクトストレージ上のキー
	Name             string           `json:"name"`
	Brand            string           `json:"brand"`
	Color            string           `json:"color"`
	Size             string           `json:"size,omitempty"`
	Description      string           `json:"description,omitempty"`
	Category         string           `json:"category"`
	Attributes       ItemAttributes   `json:"attributes"`
	AIClassification AIClassification `json:"aiClassification"`
	UserMetadata     UserMetadata     `json:"userMetadata"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ItemAttributes は衣類の属性。AI分類またはユーザー入力で埋まる。
type ItemAttributes struct {
	Colors       []string `json:"colors"`
	Patterns     []string `json:"patterns"`
	Materials    []string `json:"materials"`
	Season       []string `json:"season"`
	Occasion     []string `json:"occasion"`
	Style        []string `json:"style"`
	Fit          string   `json:"fit,omitempty"`
	Length       string   `json:"length,omitempty"`
	SleeveLength string   `json:"sleeveLength,omitempty"`
	Neckline     string   `json:"neckline,omitempty"`
}

// Prediction はカテゴリごとの分類確信度。
type Prediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// AIClassification は分類実行時点の結果スナップショット。
type AIClassification struct {
	Confidence     float64      `json:"confidence"`
	ModelVersion   string       `json:"modelVersion"`
	AllPredictions []Prediction `json:"allPredictions"`
	ProcessingTime int64        `json:"processingTime"` // ミリ秒
	QualityScore   float64      `json:"qualityScore"`
}

// UserMetadata はユーザーが編集するメタデータ。
// UserTagsは登録順を保持する。
type UserMetadata struct {
	Price        float64    `json:"price"`
	PurchaseDate *time.Time `json:"purchaseDate,omitempty"`
	Notes        string     `json:"notes"`
	UserTags     []string   `json:"userTags"`
	IsFavorite   bool       `json:"isFavorite"`
	TimesWorn    int        `json:"timesWorn"`
	LastWorn     *time.Time `json:"lastWorn,omitempty"`
}

// 衣類カテゴリ（閉じた列挙）
const (
	CategoryShirtsBlouses   = "shirts_blouses"
	CategoryTshirtsTops     = "tshirts_tops"
	CategoryDresses         = "dresses"
	CategoryPantsJeans      = "pants_jeans"
	CategoryShorts          = "shorts"
	CategorySkirts          = "skirts"
	CategoryJacketsCoats    = "jackets_coats"
	CategorySweaters        = "sweaters"
	CategoryShoesSneakers   = "shoes_sneakers"
	CategoryShoesFormal     = "shoes_formal"
	CategoryBagsAccessories = "bags_accessories"
)

// Categories は有効なカテゴリの一覧。
var Categories = []string{
	CategoryShirtsBlouses, CategoryTshirtsTops, CategoryDresses, CategoryPantsJeans,
	CategoryShorts, CategorySkirts, CategoryJacketsCoats, CategorySweaters,
	CategoryShoesSneakers, CategoryShoesFormal, CategoryBagsAccessories,
}

// IsValidCategory はカテゴリが列挙値に含まれるかを返す。
func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// DefaultClassification はAI分類が得られなかった場合の既定スナップショットを返す。
func DefaultClassification(category string) AIClassification {
	return AIClassification{
		Confidence:     0.5,
		ModelVersion:   "1.0.0",
		AllPredictions: []Prediction{{Category: category, Confidence: 0.5}},
		ProcessingTime: 0,
		QualityScore:   0.8,
	}
}

// ClothingFilter は衣類一覧の絞り込み条件。空文字・nilは条件なし。
type ClothingFilter struct {
	WardrobeID string
	Category   string
	IsFavorite *bool
}
