package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/closetiq/internal/userdata"
)

// DatabaseHealthChecker はDB状態の確認に必要なインターフェース。
type DatabaseHealthChecker interface {
	Health(ctx context.Context) *userdata.Health
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db           DatabaseHealthChecker
	verifierMode string
	environment  string
	now          func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
// verifierModeはトークン検証方式（firebase、hmac）で、空の場合は未設定として扱う。
func NewHealthHandler(db DatabaseHealthChecker, verifierMode, environment string) *HealthHandler {
	return &HealthHandler{db: db, verifierMode: verifierMode, environment: environment, now: time.Now}
}

// Health はプロセスの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "closetiq backend is running",
		"timestamp":   h.now().UTC().Format(time.RFC3339),
		"version":     "1.0.0",
		"environment": h.environment,
	})
}

// Database はDBへの疎通と行数を返す。疎通できない場合は500を返す。
// GET /health/database
func (h *HealthHandler) Database(w http.ResponseWriter, r *http.Request) {
	health := h.db.Health(r.Context())
	status := http.StatusOK
	if !health.Connected {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{
		"success":   health.Connected,
		"database":  health,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Firebase はトークン検証の設定状態を返す。
// GET /health/firebase
func (h *HealthHandler) Firebase(w http.ResponseWriter, r *http.Request) {
	state := "connected"
	if h.verifierMode == "" {
		state = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"firebase": map[string]string{
			"status":   "healthy",
			"adminSDK": state,
			"mode":     h.verifierMode,
		},
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
