package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザーが入力した自由記述からHTMLを取り除く。
// チャットメッセージ、メモ、自己紹介、説明文の保存前に使う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// レスポンスはJSONで返すため、エスケープされた文字は元に戻す。
func (s *TextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

// SanitizeAll は各要素をサニタイズし、空になった要素を取り除く。
func (s *TextSanitizer) SanitizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean := s.Sanitize(v); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
