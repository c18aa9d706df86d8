package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/closetiq/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法、フィールド単位の検証エラーを含む。
type ErrorResponseBody struct {
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Code     string             `json:"code,omitempty"`
	Category string             `json:"category,omitempty"`
	Action   string             `json:"action,omitempty"`
	Errors   []model.FieldError `json:"errors,omitempty"`
	Details  any                `json:"details,omitempty"`
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeInvalidID, model.ErrCodeBadRequest,
		model.ErrCodeDuplicate, model.ErrCodeDefaultWardrobe, model.ErrCodeInvalidRating,
		model.ErrCodeNoClothingItems:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeAIUnavailable, model.ErrCodeWeatherUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success:  false,
		Message:  apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Errors:   apiErr.Errors,
		Details:  apiErr.Details,
	})
}

// WriteAPIError はエラーコードから導いたステータスでレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "Internal Server Error",
		Category: "system",
		Action:   "Please wait and retry.",
	})
}
