// Package realtime はチャット用のWebSocketチャネルを提供する。
// 同一ユーザーの複数接続をHubで束ね、入力中表示を他の接続へ中継する。
package realtime

import (
	"sync"
)

// イベント名
const (
	EventChatMessage     = "chat_message"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventMessageReceived = "message_received"
	EventAIResponse      = "ai_response"
	EventUserTyping      = "user_typing"
	EventChatError       = "chat_error"
)

// Envelope は送受信するイベントの共通形式。
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// sendBuffer は接続ごとの送信キューの長さ。
const sendBuffer = 16

// client は1本のWebSocket接続。
type client struct {
	userID string
	send   chan Envelope
}

// Hub はユーザーごとの接続を管理する。
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*client]struct{}
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*client]struct{})}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

// broadcastExcept はユーザーのexcept以外の接続へイベントを送る。
// 送信キューが詰まっている接続には送らない。
func (h *Hub) broadcastExcept(userID string, except *client, env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[userID] {
		if c == except {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}

// ConnectionCount はユーザーの接続数を返す。
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}
