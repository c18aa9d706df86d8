package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/closetiq/internal/auth"
	"github.com/hitoshi/closetiq/internal/chat"
	"github.com/hitoshi/closetiq/internal/middleware"
	"github.com/hitoshi/closetiq/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 * 1024
	maxContentLen  = 1000
)

const processFailedMessage = "Failed to process message"

// ChatSender はチャット発言の保存と返答生成のインターフェース。
type ChatSender interface {
	Send(ctx context.Context, userID, sessionID, content, sessionType string) (*chat.Exchange, error)
}

// chatMessage はchat_messageイベントのデータ。
type chatMessage struct {
	SessionID   string `json:"sessionId"`
	Content     string `json:"content"`
	SessionType string `json:"sessionType"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler は/ws/chatのWebSocketエンドポイント。
// 接続確立前にクエリのtokenまたはBearerトークンでユーザーを特定する。
type Handler struct {
	hub      *Hub
	chat     ChatSender
	verifier auth.TokenVerifier
	users    middleware.UserFinder
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler はHandlerを生成する。
// allowedOriginsが空の場合はOriginを検査しない。
func NewHandler(hub *Hub, sender ChatSender, verifier auth.TokenVerifier, users middleware.UserFinder, allowedOrigins []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		chat:     sender,
		verifier: verifier,
		users:    users,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}
	user, _, err := middleware.ResolveUser(r.Context(), h.verifier, h.users, token)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteAPIError(w, apiErr)
			return
		}
		h.logger.Error("websocket authentication failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{userID: user.ID, send: make(chan Envelope, sendBuffer)}
	h.hub.register(c)
	h.logger.Info("websocket connected", slog.String("user_id", user.ID))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, conn, c)
	}()

	h.readLoop(ctx, conn, c)

	h.hub.unregister(c)
	cancel()
	<-done
	conn.Close()
	h.logger.Info("websocket disconnected", slog.String("user_id", user.ID))
}

// readLoop は切断されるまでクライアントのイベントを処理する。
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}

		switch msg.Event {
		case EventChatMessage:
			h.handleChatMessage(ctx, c, msg.Data)
		case EventTypingStart, EventTypingStop:
			h.hub.broadcastExcept(c.userID, c, Envelope{
				Event: EventUserTyping,
				Data: map[string]any{
					"userId":   c.userID,
					"isTyping": msg.Event == EventTypingStart,
				},
			})
		default:
			h.emit(c, Envelope{Event: EventChatError, Data: errorData("Unknown event: " + msg.Event)})
		}
	}
}

func (h *Handler) handleChatMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var in chatMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		h.emit(c, Envelope{Event: EventChatError, Data: errorData("Invalid message payload")})
		return
	}
	content := strings.TrimSpace(in.Content)
	if in.SessionID == "" || content == "" || len([]rune(content)) > maxContentLen {
		h.emit(c, Envelope{Event: EventChatError, Data: errorData("sessionId and content (1-1000 characters) are required")})
		return
	}

	ex, err := h.chat.Send(ctx, c.userID, in.SessionID, content, in.SessionType)
	if err != nil {
		msg := processFailedMessage
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		} else {
			h.logger.Error("chat message failed",
				slog.String("user_id", c.userID),
				slog.String("session_id", in.SessionID),
				slog.String("error", err.Error()),
			)
		}
		h.emit(c, Envelope{Event: EventChatError, Data: errorData(msg)})
		return
	}

	h.emit(c, Envelope{Event: EventMessageReceived, Data: map[string]any{
		"sessionId": ex.SessionID,
		"message":   ex.UserMessage,
	}})
	h.emit(c, Envelope{Event: EventAIResponse, Data: map[string]any{
		"sessionId": ex.SessionID,
		"message":   ex.AIResponse,
	}})
}

// emit は自分の接続へイベントを送る。
func (h *Handler) emit(c *client, env Envelope) {
	select {
	case c.send <- env:
	default:
		h.logger.Warn("websocket send queue full", slog.String("user_id", c.userID))
	}
}

// writePump は送信キューの内容と定期的なpingを書き込む。
// 書き込みは常にこのゴルーチンだけが行う。
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case env := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func errorData(message string) map[string]string {
	return map[string]string{"message": message}
}
