// Package handler はHTTPハンドラーとルーティングを提供する。
// レスポンスは {success, data?, message?} の共通形式で返す。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/middleware"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/validation"
	"github.com/hitoshi/closetiq/internal/weather"
)

// successResponse は成功時の共通レスポンス。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// listData はページング付き一覧のdata部。
type listData map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeData はdataを成功レスポンスとして書き込む。
func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, successResponse{Success: true, Message: message, Data: data})
}

// writeMessage はdataを持たない成功レスポンスを書き込む。
func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: message})
}

// writeList はkeyに一覧、paginationにページ情報を入れて書き込む。
func writeList(w http.ResponseWriter, key string, items any, pg model.Pagination) {
	writeData(w, http.StatusOK, listData{key: items, "pagination": pg}, "")
}

// handleServiceError はサービス層から返されたエラーをレスポンスに変換する。
// 想定外のエラーは内容をログにのみ残し、500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	var upstream *aiclient.UpstreamError
	switch {
	case errors.Is(err, aiclient.ErrEngineUnavailable):
		middleware.WriteAPIError(w, model.NewAIUnavailableError())
		return
	case errors.As(err, &upstream):
		middleware.WriteAPIError(w, model.NewUpstreamError("AI service error", upstream.Details()))
		return
	case errors.Is(err, weather.ErrNotConfigured):
		middleware.WriteAPIError(w, model.NewWeatherUnavailableError("API key not configured"))
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// requireUserID は認証済みユーザーIDを取り出す。取り出せない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError("Authentication required"))
		return "", false
	}
	return userID, true
}

// pathID はパスパラメータnameをUUIDとして検証する。不正な場合は400を書き込む。
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := validation.ParseID(chi.URLParam(r, name))
	if err != nil {
		handleServiceError(w, err)
		return "", false
	}
	return id, true
}

// decode はJSONボディをdstにデコードし検証する。失敗時はエラーレスポンスを書き込む。
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validation.DecodeJSON(r, dst); err != nil {
		handleServiceError(w, err)
		return false
	}
	return true
}

// notFound は未定義の/api/*ルートに404を返す。
func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"message": fmt.Sprintf("API route %s %s not found", r.Method, r.URL.RequestURI()),
	})
}

// ErrNoImage は必要な画像パートが含まれていない場合のエラー。
var ErrNoImage = errors.New("no image file provided")

// formOverhead は画像以外のフォームフィールドに許容するバイト数。
const formOverhead = 1 << 20

// readImages はmultipartフォームのfieldから画像ファイルを読み込む。
// 画像以外のContent-Typeやサイズ超過は400のAPIErrorになる。
// fieldが無い場合はErrNoImageを返す。
func readImages(r *http.Request, field string, maxBytes int64, maxFiles int) ([]aiclient.File, error) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes*int64(maxFiles)+formOverhead)
	}
	if err := r.ParseMultipartForm(maxBytes * int64(maxFiles)); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, ErrNoImage
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.NewBadRequestError("File too large")
		}
		return nil, model.NewBadRequestError("Invalid multipart form")
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, ErrNoImage
	}
	if len(headers) > maxFiles {
		return nil, model.NewBadRequestError(fmt.Sprintf("Too many files (max %d)", maxFiles))
	}

	files := make([]aiclient.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readImage(fh, maxBytes)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readImage(fh *multipart.FileHeader, maxBytes int64) (aiclient.File, error) {
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return aiclient.File{}, model.NewBadRequestError("Only image files are allowed")
	}
	if fh.Size > maxBytes {
		return aiclient.File{}, model.NewBadRequestError("File too large")
	}
	f, err := fh.Open()
	if err != nil {
		return aiclient.File{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return aiclient.File{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return aiclient.File{}, model.NewBadRequestError("File too large")
	}
	return aiclient.File{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

// readOptionalImage は画像1枚を読み込む。画像が無い場合はnilを返す。
func readOptionalImage(r *http.Request, field string, maxBytes int64) (*aiclient.File, error) {
	files, err := readImages(r, field, maxBytes, 1)
	if errors.Is(err, ErrNoImage) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &files[0], nil
}
