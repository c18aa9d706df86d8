// Package aiclient は画像分類・コーディネート生成を行う外部AIエンジンのクライアントを提供する。
// エンジンへの接続が拒否された場合は、呼び出し箇所ごとのPolicyに従って代替レスポンスを返す。
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/closetiq/internal/metrics"
)

const (
	// defaultTimeout はPolicyでタイムアウトを指定しない呼び出しの既定値。
	defaultTimeout = 30 * time.Second
	// maxResponseBytes はエンジンのレスポンスとして読み込む最大バイト数。
	maxResponseBytes = 10 << 20
)

// ErrEngineUnavailable はAIエンジンへの接続が拒否され、代替レスポンスもない場合のエラー。
var ErrEngineUnavailable = errors.New("ai engine unavailable")

// UpstreamError はAIエンジンが2xx以外のステータスを返した場合のエラー。
// Bodyにはエンジンのレスポンス本文をそのまま保持する。
type UpstreamError struct {
	Status int
	Body   json.RawMessage
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ai engine returned status %d", e.Status)
}

// Details はクライアントに返すためのエラー詳細を返す。
// 本文がJSONでない場合は文字列として返す。
func (e *UpstreamError) Details() any {
	if json.Valid(e.Body) {
		return e.Body
	}
	return string(e.Body)
}

// Policy は呼び出し箇所ごとのタイムアウトと代替レスポンスを定義する。
// Fallbackがnilの場合、接続拒否はErrEngineUnavailableになる。
type Policy struct {
	Timeout  time.Duration
	Fallback func() any
}

// Result はAIエンジン呼び出しの結果。
// Degradedがtrueの場合、Bodyは代替レスポンスをエンコードしたもの。
type Result struct {
	Body     json.RawMessage
	Degraded bool
}

// File はmultipartで転送する画像ファイル。
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client はAIエンジンのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
	timeout    time.Duration
	rand       func() float64 // 代替レスポンスのスコア生成用
}

// NewClient はClientの新しいインスタンスを生成する。
// timeoutはPolicyでタイムアウトを指定しない呼び出しに使う。
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, m metrics.MetricsCollector) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    m,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		rand:       rand.Float64,
	}
}

// PostJSON はpayloadをJSONとしてエンジンのpathへPOSTする。
func (c *Client) PostJSON(ctx context.Context, path string, payload any, p Policy) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, path, "application/json", body, p)
}

// PostMultipart はfilesをfieldという名前のmultipartパートとしてエンジンのpathへPOSTする。
func (c *Client) PostMultipart(ctx context.Context, path, field string, files []File, p Policy) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Filename))
		h.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create multipart part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write multipart part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return c.do(ctx, path, mw.FormDataContentType(), buf.Bytes(), p)
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte, p Policy) (*Result, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnRefused(err) {
			c.metrics.RecordAIRequest(path, metrics.OutcomeUnavailable, time.Since(start))
			return c.fallback(path, p)
		}
		c.metrics.RecordAIRequest(path, metrics.OutcomeError, time.Since(start))
		c.logger.Error("ai engine request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to call ai engine %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordAIRequest(path, metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("failed to read ai engine response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordAIRequest(path, metrics.OutcomeUpstream, time.Since(start))
		c.logger.Warn("ai engine returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: respBody}
	}

	c.metrics.RecordAIRequest(path, metrics.OutcomeSuccess, time.Since(start))
	return &Result{Body: respBody}, nil
}

func (c *Client) fallback(path string, p Policy) (*Result, error) {
	if p.Fallback == nil {
		c.logger.Warn("ai engine unavailable", slog.String("path", path))
		return nil, ErrEngineUnavailable
	}

	body, err := json.Marshal(p.Fallback())
	if err != nil {
		return nil, fmt.Errorf("failed to encode fallback: %w", err)
	}
	c.metrics.RecordAIFallback(path)
	c.logger.Warn("ai engine unavailable, returning fallback", slog.String("path", path))
	return &Result{Body: body, Degraded: true}, nil
}

// isConnRefused はエラーチェーンに接続拒否が含まれるかを判定する。
func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
