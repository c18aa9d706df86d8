package chat

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hitoshi/closetiq/internal/model"
)

// historyWindow はOpenAIに送る直近メッセージ数。
const historyWindow = 10

// Responder はアシスタントの返答を生成する。
// historyは今回のユーザー発言を含む、古い順のメッセージ列。
type Responder interface {
	Reply(ctx context.Context, sessionType string, history []model.ChatMessage) string
}

var cannedReplies = map[string][]string{
	model.SessionTypeStyleAdvice: {
		"That's a great question about style! Based on current fashion trends, I'd recommend...",
		"For your style preferences, consider these combinations...",
		"Here are some styling tips that might help...",
	},
	model.SessionTypeOutfitHelp: {
		"Let me help you put together a great outfit! Based on what you've described...",
		"For that occasion, I'd suggest these combinations...",
		"Here are some outfit ideas that would work perfectly...",
	},
	model.SessionTypeGeneral: {
		"I'm here to help with all your fashion needs! What would you like to know?",
		"That's an interesting question! Let me share some insights...",
		"I'd be happy to help you with that fashion query...",
	},
}

// CannedResponder はセッション種別ごとの定型文から返答する。
type CannedResponder struct {
	pick func(n int) int
}

// NewCannedResponder はCannedResponderを生成する。
func NewCannedResponder() *CannedResponder {
	return &CannedResponder{pick: rand.IntN}
}

// Reply は定型文を1つ返す。未知の種別はgeneralとして扱う。
func (r *CannedResponder) Reply(_ context.Context, sessionType string, _ []model.ChatMessage) string {
	replies, ok := cannedReplies[sessionType]
	if !ok {
		replies = cannedReplies[model.SessionTypeGeneral]
	}
	return replies[r.pick(len(replies))]
}

var systemPrompts = map[string]string{
	model.SessionTypeStyleAdvice: "You are a personal stylist. Give concise, practical style advice based on current trends and the user's preferences.",
	model.SessionTypeOutfitHelp:  "You are a personal stylist. Help the user assemble outfits for the occasion they describe, naming concrete garments and colors.",
	model.SessionTypeGeneral:     "You are a friendly fashion assistant. Answer wardrobe and fashion questions concisely.",
}

// OpenAIResponder はOpenAIのチャット補完で返答する。失敗時は定型文を返す。
type OpenAIResponder struct {
	client   *openai.Client
	model    string
	fallback Responder
}

// NewOpenAIResponder はAPIキーとモデル名からOpenAIResponderを生成する。
func NewOpenAIResponder(apiKey, modelName string) *OpenAIResponder {
	return NewOpenAIResponderWithConfig(openai.DefaultConfig(apiKey), modelName)
}

// NewOpenAIResponderWithConfig は接続設定を指定してOpenAIResponderを生成する。
func NewOpenAIResponderWithConfig(cfg openai.ClientConfig, modelName string) *OpenAIResponder {
	return &OpenAIResponder{
		client:   openai.NewClientWithConfig(cfg),
		model:    modelName,
		fallback: NewCannedResponder(),
	}
}

// Reply はシステムプロンプトと直近の履歴を送り、最初の候補を返す。
func (r *OpenAIResponder) Reply(ctx context.Context, sessionType string, history []model.ChatMessage) string {
	prompt, ok := systemPrompts[sessionType]
	if !ok {
		prompt = systemPrompts[model.SessionTypeGeneral]
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
	})
	if err != nil {
		slog.Warn("chat completion failed, using canned reply", slog.String("error", err.Error()))
		return r.fallback.Reply(ctx, sessionType, history)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		slog.Warn("chat completion returned no content, using canned reply")
		return r.fallback.Reply(ctx, sessionType, history)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

// compile-time interface check
var (
	_ Responder = (*CannedResponder)(nil)
	_ Responder = (*OpenAIResponder)(nil)
)
