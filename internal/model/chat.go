package model

import "time"

// ChatSession はスタイル相談のチャットセッション。
type ChatSession struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	SessionType   string        `json:"sessionType"`
	Title         string        `json:"title"`
	Messages      []ChatMessage `json:"messages"`
	IsActive      bool          `json:"isActive"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastMessageAt time.Time     `json:"lastMessageAt"`
}

// ChatMessage はセッション内の1発言。
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// セッション種別
const (
	SessionTypeGeneral     = "general"
	SessionTypeStyleAdvice = "style_advice"
	SessionTypeOutfitHelp  = "outfit_help"
)

// 発言者ロール
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxChatMessageLength は保存する1メッセージの最大文字数。
const MaxChatMessageLength = 2000
