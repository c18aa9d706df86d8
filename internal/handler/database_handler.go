package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/closetiq/internal/userdata"
)

// UserDataServiceInterface はデータ管理ハンドラーが必要とするサービスインターフェース。
type UserDataServiceInterface interface {
	Overview(ctx context.Context, userID string) (*userdata.Overview, error)
	DetailedStats(ctx context.Context, userID string) (*userdata.DetailedStats, error)
	Export(ctx context.Context, userID string) (*userdata.Export, error)
	Health(ctx context.Context) *userdata.Health
}

// DatabaseHandler はユーザーデータの概要・集計・エクスポートのHTTPハンドラー。
type DatabaseHandler struct {
	service UserDataServiceInterface
	now     func() time.Time
}

// NewDatabaseHandler はDatabaseHandlerを生成する。
func NewDatabaseHandler(service UserDataServiceInterface) *DatabaseHandler {
	return &DatabaseHandler{service: service, now: time.Now}
}

// exportDocument はエクスポートファイルの本体。
type exportDocument struct {
	ExportedAt    time.Time `json:"exported_at"`
	FormatVersion string    `json:"format_version"`
	*userdata.Export
}

// Overview は所有データの件数と最新レコードを返す。
// GET /api/database/overview
func (h *DatabaseHandler) Overview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	ov, err := h.service.Overview(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, ov, "")
}

// DetailedStats はカテゴリ・シーン・月別の集計を返す。
// GET /api/database/stats/detailed
func (h *DatabaseHandler) DetailedStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	stats, err := h.service.DetailedStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}

// Export は所有データをJSONファイルとして返す。
// GET /api/database/export
func (h *DatabaseHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	exp, err := h.service.Export(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	now := h.now().UTC()
	filename := fmt.Sprintf("closetiq-export-%s-%s.json", userID, now.Format(time.DateOnly))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	writeJSON(w, http.StatusOK, exportDocument{
		ExportedAt:    now,
		FormatVersion: userdata.FormatVersion,
		Export:        exp,
	})
}

// Health はデータベースの状態を返す。接続できない場合は500になる。
// GET /api/database/health
func (h *DatabaseHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())
	if !health.Connected {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Database health check failed",
			"data":    health,
		})
		return
	}
	writeData(w, http.StatusOK, health, "")
}
