package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/weather"
)

func TestHandleServiceError_MapsKnownErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "APIErrorはコードに応じたステータス",
			err:        model.NewOwnedNotFoundError("Wardrobe"),
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeNotFound,
		},
		{
			name:       "ラップされたAPIError",
			err:        fmt.Errorf("wrapped: %w", model.NewInvalidRatingError()),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidRating,
		},
		{
			name:       "エンジン停止は503",
			err:        fmt.Errorf("classify: %w", aiclient.ErrEngineUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   model.ErrCodeAIUnavailable,
			wantMsg:    "AI service is currently unavailable. Please try again later.",
		},
		{
			name:       "エンジンの非2xxは500",
			err:        &aiclient.UpstreamError{Status: 422, Body: []byte(`{"error":"bad image"}`)},
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeUpstream,
			wantMsg:    "AI service error",
		},
		{
			name:       "天気APIキー未設定は503",
			err:        weather.ErrNotConfigured,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   model.ErrCodeWeatherUnavailable,
			wantMsg:    "Weather service unavailable: API key not configured",
		},
		{
			name:       "想定外のエラーは500",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeInternal,
			wantMsg:    "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleServiceError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
			}
		})
	}
}

func TestHandleServiceError_UpstreamDetailsPassThrough(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, &aiclient.UpstreamError{Status: 500, Body: []byte(`{"error":"model crashed"}`)})

	body := decodeBody(t, w)
	details, ok := body["details"].(map[string]any)
	require.True(t, ok, "details should be the upstream JSON body, got %v", body["details"])
	assert.Equal(t, "model crashed", details["error"])
}

func TestNotFound_IncludesMethodAndPath(t *testing.T) {
	w := httptest.NewRecorder()
	notFound(w, httptest.NewRequest(http.MethodGet, "/api/unknown?x=1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "API route GET /api/unknown?x=1 not found", body["message"])
}

func TestRequireUserID_WithoutUser_Returns401(t *testing.T) {
	w := httptest.NewRecorder()
	_, ok := requireUserID(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPathID_InvalidUUID_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	r := withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "not-a-uuid")
	_, ok := pathID(w, r, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidID, decodeBody(t, w)["code"])
}

func TestReadOptionalImage(t *testing.T) {
	t.Run("画像なしはnil", func(t *testing.T) {
		r := multipartRequest(t, "/", map[string][]string{"name": {"shirt"}})
		img, err := readOptionalImage(r, "image", 1<<20)
		require.NoError(t, err)
		assert.Nil(t, img)
		assert.Equal(t, "shirt", r.FormValue("name"))
	})

	t.Run("画像を読み込む", func(t *testing.T) {
		r := multipartRequest(t, "/", nil, multipartPart{"image", "a.png", "image/png", []byte("png-bytes")})
		img, err := readOptionalImage(r, "image", 1<<20)
		require.NoError(t, err)
		require.NotNil(t, img)
		assert.Equal(t, "a.png", img.Filename)
		assert.Equal(t, "image/png", img.ContentType)
		assert.Equal(t, []byte("png-bytes"), img.Data)
	})

	t.Run("画像以外は400", func(t *testing.T) {
		r := multipartRequest(t, "/", nil, multipartPart{"image", "a.txt", "text/plain", []byte("hello")})
		_, err := readOptionalImage(r, "image", 1<<20)
		var apiErr *model.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Only image files are allowed", apiErr.Message)
	})

	t.Run("サイズ超過は400", func(t *testing.T) {
		r := multipartRequest(t, "/", nil, multipartPart{"image", "big.jpg", "image/jpeg", make([]byte, 2048)})
		_, err := readOptionalImage(r, "image", 1024)
		var apiErr *model.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "File too large", apiErr.Message)
	})
}

func TestReadImages_TooManyFiles(t *testing.T) {
	parts := []multipartPart{
		{"images", "1.png", "image/png", []byte("1")},
		{"images", "2.png", "image/png", []byte("2")},
		{"images", "3.png", "image/png", []byte("3")},
	}
	r := multipartRequest(t, "/", nil, parts...)
	_, err := readImages(r, "images", 1<<20, 2)

	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Too many files (max 2)", apiErr.Message)
}
