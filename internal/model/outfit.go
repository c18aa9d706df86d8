package model

import "time"

// Outfit はシーン向けにまとめた衣類アイテムの順序付き集合。
type Outfit struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ItemIDs     []string  `json:"items"`
	Occasion    string    `json:"occasion"`
	Season      string    `json:"season,omitempty"`
	Tags        []string  `json:"tags"`
	IsPublic    bool      `json:"isPublic"`
	Rating      float64   `json:"rating"`
	TimesWorn   int       `json:"timesWorn"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Occasions はコーディネートのシーン列挙。
var Occasions = []string{"work", "casual", "formal", "party", "date", "sport", "travel"}

// Seasons はコーディネート生成で指定できる季節。
var Seasons = []string{"spring", "summer", "fall", "winter"}

// MinRating と MaxRating はユーザー評価として受け付ける範囲。
const (
	MinRating = 1
	MaxRating = 5
)
