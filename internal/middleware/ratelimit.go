package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitGroup はレート制限グループ1つ分の設定を保持する。
type RateLimitGroup struct {
	Name    string        // メトリクス・ログ用のグループ名
	Limit   int           // ウィンドウ内の最大リクエスト数
	Window  time.Duration // 固定ウィンドウの長さ
	Message string        // 429時に返すメッセージ
}

// 既定のレート制限グループ名
const (
	GroupGeneral = "general"
	GroupAuth    = "auth"
	GroupUpload  = "upload"
	GroupAI      = "ai"
)

// DefaultRateLimitGroups は各グループの既定設定を返す。
// 上限値は設定値で上書きする。
func DefaultRateLimitGroups(general, authLimit, upload, ai int) map[string]RateLimitGroup {
	return map[string]RateLimitGroup{
		GroupGeneral: {
			Name:    GroupGeneral,
			Limit:   general,
			Window:  15 * time.Minute,
			Message: "Too many requests from this IP, please try again later.",
		},
		GroupAuth: {
			Name:    GroupAuth,
			Limit:   authLimit,
			Window:  15 * time.Minute,
			Message: "Too many authentication attempts, please try again later.",
		},
		GroupUpload: {
			Name:    GroupUpload,
			Limit:   upload,
			Window:  time.Hour,
			Message: "Too many upload requests, please try again later.",
		},
		GroupAI: {
			Name:    GroupAI,
			Limit:   ai,
			Window:  time.Hour,
			Message: "Too many AI requests, please try again later.",
		},
	}
}

// RateLimitRecorder はレート制限の発生を記録する。metrics.MetricsCollectorが満たす。
type RateLimitRecorder interface {
	RecordRateLimited(group string)
}

// windowEntry はIPごとの固定ウィンドウのカウンタ。
type windowEntry struct {
	count   int
	resetAt time.Time
}

// groupState はグループ1つ分のカウンタ表。
type groupState struct {
	cfg     RateLimitGroup
	mu      sync.Mutex
	entries map[string]*windowEntry
}

// RateLimiter はグループごとに独立したIP単位の固定ウィンドウ制限を管理する。
type RateLimiter struct {
	groups          map[string]*groupState
	cleanupInterval time.Duration
	recorder        RateLimitRecorder
	now             func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
// recorderはnilでもよい。
func NewRateLimiter(groups map[string]RateLimitGroup, cleanupInterval time.Duration, recorder RateLimitRecorder) *RateLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	rl := &RateLimiter{
		groups:          make(map[string]*groupState, len(groups)),
		cleanupInterval: cleanupInterval,
		recorder:        recorder,
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}
	for name, g := range groups {
		rl.groups[name] = &groupState{cfg: g, entries: make(map[string]*windowEntry)}
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware は指定グループのレート制限ミドルウェアを返す。
// 未登録のグループ名の場合は制限なしで通過させる。
func (rl *RateLimiter) Middleware(group string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		gs, ok := rl.groups[group]
		if !ok || gs.cfg.Limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, remaining, resetAt := rl.take(gs, ip)

			w.Header().Set("RateLimit-Limit", strconv.Itoa(gs.cfg.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(secondsUntil(rl.now(), resetAt)))

			if !allowed {
				if rl.recorder != nil {
					rl.recorder.RecordRateLimited(gs.cfg.Name)
				}
				slog.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("limit_type", gs.cfg.Name),
				)
				writeRateLimitResponse(w, secondsUntil(rl.now(), resetAt), gs.cfg.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// EntryCount は指定グループで管理されているIPエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) EntryCount(group string) int {
	gs, ok := rl.groups[group]
	if !ok {
		return 0
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.entries)
}

// take はカウンタを1つ進め、許可されたかどうかと残数、ウィンドウのリセット時刻を返す。
func (rl *RateLimiter) take(gs *groupState, ip string) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()

	gs.mu.Lock()
	defer gs.mu.Unlock()

	e, exists := gs.entries[ip]
	if !exists || !now.Before(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(gs.cfg.Window)}
		gs.entries[ip] = e
	}

	if e.count >= gs.cfg.Limit {
		return false, 0, e.resetAt
	}
	e.count++
	return true, gs.cfg.Limit - e.count, e.resetAt
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はウィンドウが終了したエントリを削除する。
func (rl *RateLimiter) cleanup() {
	now := rl.now()
	for _, gs := range rl.groups {
		gs.mu.Lock()
		for ip, e := range gs.entries {
			if !now.Before(e.resetAt) {
				delete(gs.entries, ip)
			}
		}
		gs.mu.Unlock()
	}
}

// clientIP はリクエスト元のIPを返す。
// X-Forwarded-For等の解釈はchiのRealIPミドルウェアに任せる。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func secondsUntil(now, t time.Time) int {
	sec := int(math.Ceil(t.Sub(now).Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはウィンドウがリセットされるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfterSec int, message string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Message: message,
	})
}
