package model

import "time"

// Wardrobe はユーザーが所有する衣類アイテム参照の名前付きコレクション。
type Wardrobe struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ItemIDs     []string `json:"items"`
	IsDefault   bool     `json:"isDefault"`
	Visibility  string   `json:"visibility"`
	SharedWith  []string `json:"sharedWith"`
	Tags        []string `json:"tags"`
	// OwnerUsername は共有ワードローブ一覧でのみ埋まる。
	OwnerUsername string    `json:"ownerUsername,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// 公開範囲
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
	VisibilityShared  = "shared"
)

// Visibilities は有効な公開範囲の一覧。
var Visibilities = []string{VisibilityPrivate, VisibilityPublic, VisibilityShared}
