// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示するメッセージと原因カテゴリ、必要に応じて詳細情報を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, resource, upstream, system
	Action   string       // ユーザー向け対処方法
	Details  any          // 上流サービスのエラー本文など（任意）
	Errors   []FieldError // フィールド単位の検証エラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// FieldError はリクエストの1フィールドに対する検証エラーを表す。
type FieldError struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Msg      string `json:"msg"`
	Value    any    `json:"value,omitempty"`
	Location string `json:"location"`
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidID          = "INVALID_ID"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeDuplicate          = "DUPLICATE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeDefaultWardrobe    = "DEFAULT_WARDROBE"
	ErrCodeInvalidRating      = "INVALID_RATING"
	ErrCodeNoClothingItems    = "NO_CLOTHING_ITEMS"
	ErrCodeAIUnavailable      = "AI_SERVICE_UNAVAILABLE"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeWeatherUnavailable = "WEATHER_UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError はフィールド単位の検証エラーをまとめたエラーを生成する。
func NewValidationError(errs []FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Validation failed",
		Category: "validation",
		Errors:   errs,
	}
}

// NewInvalidIDError はパスパラメータのID形式が不正な場合のエラーを生成する。
func NewInvalidIDError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  "Validation failed",
		Category: "validation",
		Errors: []FieldError{{
			Type:     "field",
			Path:     "id",
			Msg:      "Invalid ID format",
			Value:    value,
			Location: "params",
		}},
	}
}

// NewBadRequestError は汎用の400エラーを生成する。
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBadRequest,
		Message:  message,
		Category: "validation",
	}
}

// NewDuplicateError は一意制約違反のエラーを生成する。
func NewDuplicateError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicate,
		Message:  fmt.Sprintf("%s already exists", field),
		Category: "validation",
		Action:   "Choose a different value and try again.",
	}
}

// NewUserExistsError は登録済みユーザーの再登録エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicate,
		Message:  "User already exists",
		Category: "auth",
		Action:   "Sign in with the existing account.",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError は権限エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// 他ユーザー所有のリソースも存在を漏らさないよう同じエラーになる。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Category: "resource",
	}
}

// NewOwnedNotFoundError は所有者スコープのリソースが見つからない場合のエラーを生成する。
func NewOwnedNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found or access denied", resource),
		Category: "resource",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewDefaultWardrobeError はデフォルトワードローブを削除しようとした場合のエラーを生成する。
func NewDefaultWardrobeError() *APIError {
	return &APIError{
		Code:     ErrCodeDefaultWardrobe,
		Message:  "Cannot delete default wardrobe",
		Category: "validation",
		Action:   "Mark another wardrobe as default first.",
	}
}

// NewInvalidRatingError は評価値が範囲外の場合のエラーを生成する。
func NewInvalidRatingError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  "Rating must be between 1 and 5",
		Category: "validation",
	}
}

// NewNoClothingItemsError はコーディネート生成対象のアイテムがない場合のエラーを生成する。
func NewNoClothingItemsError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNoClothingItems,
		Message:  message,
		Category: "validation",
		Action:   "Select at least one item from your wardrobe.",
	}
}

// NewAIUnavailableError はAIエンジンへの接続が拒否された場合のエラーを生成する。
func NewAIUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeAIUnavailable,
		Message:  "AI service is currently unavailable. Please try again later.",
		Category: "upstream",
		Action:   "Please wait and retry.",
	}
}

// NewUpstreamError は外部サービス呼び出し失敗のエラーを生成する。
// detailsには上流のエラー本文（取得できた場合）を格納する。
func NewUpstreamError(message string, details any) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  message,
		Category: "upstream",
		Details:  details,
	}
}

// NewWeatherUnavailableError は天気APIが利用できない場合のエラーを生成する。
func NewWeatherUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWeatherUnavailable,
		Message:  fmt.Sprintf("Weather service unavailable: %s", reason),
		Category: "upstream",
	}
}
