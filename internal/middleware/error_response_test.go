package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/closetiq/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := model.NewValidationError([]model.FieldError{{
		Type:     "field",
		Path:     "name",
		Msg:      "name is required",
		Location: "body",
	}})

	WriteErrorResponse(w, http.StatusBadRequest, apiErr)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if body.Message != "Validation failed" {
		t.Errorf("message = %q, want %q", body.Message, "Validation failed")
	}
	if len(body.Errors) != 1 || body.Errors[0].Path != "name" {
		t.Errorf("errors = %+v, want one error for path 'name'", body.Errors)
	}
}

// TestWriteErrorResponse_OmitsEmptyFields は任意フィールドが省略されることを検証する。
func TestWriteErrorResponse_OmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("Wardrobe"))

	var raw map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	for _, key := range []string{"errors", "details"} {
		if _, ok := raw[key]; ok {
			t.Errorf("key %q should be omitted, body = %v", key, raw)
		}
	}
	if raw["success"] != false {
		t.Errorf("success = %v, want false", raw["success"])
	}
}

// TestStatusForCode はエラーコードからHTTPステータスへの対応を検証する。
func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeInvalidID, http.StatusBadRequest},
		{model.ErrCodeDuplicate, http.StatusBadRequest},
		{model.ErrCodeDefaultWardrobe, http.StatusBadRequest},
		{model.ErrCodeInvalidRating, http.StatusBadRequest},
		{model.ErrCodeNoClothingItems, http.StatusBadRequest},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeUserNotFound, http.StatusUnauthorized},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeNotFound, http.StatusNotFound},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeAIUnavailable, http.StatusServiceUnavailable},
		{model.ErrCodeWeatherUnavailable, http.StatusServiceUnavailable},
		{model.ErrCodeUpstream, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusForCode(tt.code); got != tt.want {
				t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

// TestWriteInternalServerError は内部エラーの詳細を含まない500レスポンスを検証する。
func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Message != "Internal Server Error" {
		t.Errorf("message = %q, want %q", body.Message, "Internal Server Error")
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}

// TestRecoveryMiddleware_RecoversPanic はpanicが500レスポンスに変換されることを検証する。
func TestRecoveryMiddleware_RecoversPanic(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/wardrobes", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Success {
		t.Error("success = true, want false")
	}
}
