package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/closetiq/internal/clothing"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
)

// mockClothingService はClothingServiceInterfaceのモック実装。
// 未設定のメソッドを呼ぶと埋め込みのnilインターフェースでpanicする。
type mockClothingService struct {
	ClothingServiceInterface
	createFn     func(ctx context.Context, userID string, in clothing.CreateInput) (*model.ClothingItem, error)
	listFn       func(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, model.Pagination, error)
	similarFn    func(ctx context.Context, userID, id string) (*clothing.SimilarResult, error)
	bulkUpdateFn func(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error)
	favoriteFn   func(ctx context.Context, userID, id string) (*model.ClothingItem, error)
}

func (m *mockClothingService) Create(ctx context.Context, userID string, in clothing.CreateInput) (*model.ClothingItem, error) {
	return m.createFn(ctx, userID, in)
}

func (m *mockClothingService) List(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, model.Pagination, error) {
	return m.listFn(ctx, userID, filter, page)
}

func (m *mockClothingService) Similar(ctx context.Context, userID, id string) (*clothing.SimilarResult, error) {
	return m.similarFn(ctx, userID, id)
}

func (m *mockClothingService) BulkUpdate(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error) {
	return m.bulkUpdateFn(ctx, userID, ids, u)
}

func (m *mockClothingService) ToggleFavorite(ctx context.Context, userID, id string) (*model.ClothingItem, error) {
	return m.favoriteFn(ctx, userID, id)
}

const testWardrobeID = "5e2d8a71-9c3b-4f06-b1d4-8a7e6c5f4b32"

func validClothingForm() map[string][]string {
	return map[string][]string{
		"wardrobeId": {testWardrobeID},
		"name":       {"  Linen Shirt "},
		"category":   {"shirts_blouses"},
		"color":      {"white"},
		"price":      {"39.5"},
		"tags":       {"summer", " ", "office"},
	}
}

func TestClothingHandler_Create_ParsesMultipartForm(t *testing.T) {
	var got clothing.CreateInput
	svc := &mockClothingService{
		createFn: func(ctx context.Context, userID string, in clothing.CreateInput) (*model.ClothingItem, error) {
			assert.Equal(t, testUserID, userID)
			got = in
			return &model.ClothingItem{ID: testItemID, Name: in.Name}, nil
		},
	}
	h := NewClothingHandler(svc)

	form := validClothingForm()
	form["autoClassify"] = []string{"false"}
	req := multipartRequest(t, "/api/clothing", form,
		multipartPart{"image", "shirt.jpg", "image/jpeg", []byte("jpeg-bytes")})
	w := httptest.NewRecorder()

	h.Create(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, testWardrobeID, got.WardrobeID)
	assert.Equal(t, "Linen Shirt", got.Name)
	assert.Equal(t, 39.5, got.Price)
	assert.Equal(t, []string{"summer", "office"}, got.UserTags)
	assert.False(t, got.AutoClassify)
	require.NotNil(t, got.Image)
	assert.Equal(t, "shirt.jpg", got.Image.Filename)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Clothing item added successfully", body["message"])
}

func TestClothingHandler_Create_WithoutImage_AutoClassifyDefaultsTrue(t *testing.T) {
	var got clothing.CreateInput
	svc := &mockClothingService{
		createFn: func(ctx context.Context, userID string, in clothing.CreateInput) (*model.ClothingItem, error) {
			got = in
			return &model.ClothingItem{ID: testItemID}, nil
		},
	}
	w := httptest.NewRecorder()
	NewClothingHandler(svc).Create(w, multipartRequest(t, "/api/clothing", validClothingForm()))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Nil(t, got.Image)
	assert.True(t, got.AutoClassify)
}

func TestClothingHandler_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string][]string)
		wantPath string
	}{
		{"名前なし", func(f map[string][]string) { delete(f, "name") }, "name"},
		{"不正なカテゴリ", func(f map[string][]string) { f["category"] = []string{"hats"} }, "category"},
		{"不正なワードローブID", func(f map[string][]string) { f["wardrobeId"] = []string{"abc"} }, "wardrobeId"},
		{"数値でない価格", func(f map[string][]string) { f["price"] = []string{"cheap"} }, "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validClothingForm()
			tt.mutate(form)
			w := httptest.NewRecorder()
			NewClothingHandler(&mockClothingService{}).Create(w, multipartRequest(t, "/api/clothing", form))

			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, model.ErrCodeValidation, body["code"])
			errs, ok := body["errors"].([]any)
			require.True(t, ok)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.wantPath, errs[0].(map[string]any)["path"])
		})
	}
}

func TestClothingHandler_List_PassesFilters(t *testing.T) {
	hasMore := true
	svc := &mockClothingService{
		listFn: func(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, model.Pagination, error) {
			assert.Equal(t, testWardrobeID, filter.WardrobeID)
			assert.Equal(t, "dresses", filter.Category)
			require.NotNil(t, filter.IsFavorite)
			assert.True(t, *filter.IsFavorite)
			assert.Equal(t, clothing.DefaultListLimit, page.Limit)
			return []*model.ClothingItem{{ID: testItemID}}, model.Pagination{Total: 21, Page: 1, Limit: 20, Pages: 2, HasMore: &hasMore}, nil
		},
	}
	req := withUserID(httptest.NewRequest(http.MethodGet,
		"/api/clothing?wardrobeId="+testWardrobeID+"&category=dresses&isFavorite=true", nil), testUserID)
	w := httptest.NewRecorder()

	NewClothingHandler(svc).List(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Len(t, data["items"], 1)
	pg := data["pagination"].(map[string]any)
	assert.Equal(t, true, pg["hasMore"])
	assert.Equal(t, float64(2), pg["pages"])
}

func TestClothingHandler_List_SecondPageOfTwelve(t *testing.T) {
	svc := &mockClothingService{
		listFn: func(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, model.Pagination, error) {
			assert.Equal(t, model.PageRequest{Page: 2, Limit: 5}, page)
			items := make([]*model.ClothingItem, 5)
			for i := range items {
				items[i] = &model.ClothingItem{ID: fmt.Sprintf("item-%d", page.Offset()+i)}
			}
			return items, model.NewPagination(12, page).WithHasMore(page.Offset(), len(items)), nil
		},
	}
	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/clothing?page=2&limit=5", nil), testUserID)
	w := httptest.NewRecorder()

	NewClothingHandler(svc).List(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]any)
	items := data["items"].([]any)
	require.Len(t, items, 5)
	assert.Equal(t, "item-5", items[0].(map[string]any)["id"])
	pg := data["pagination"].(map[string]any)
	assert.Equal(t, float64(12), pg["total"])
	assert.Equal(t, float64(2), pg["page"])
	assert.Equal(t, float64(5), pg["limit"])
	assert.Equal(t, float64(3), pg["pages"])
	assert.Equal(t, true, pg["hasMore"])
}

func TestClothingHandler_List_InvalidFavoriteFlag(t *testing.T) {
	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/clothing?isFavorite=maybe", nil), testUserID)
	w := httptest.NewRecorder()
	NewClothingHandler(&mockClothingService{}).List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClothingHandler_Similar(t *testing.T) {
	t.Run("エンジンの結果をそのまま返す", func(t *testing.T) {
		svc := &mockClothingService{
			similarFn: func(ctx context.Context, userID, id string) (*clothing.SimilarResult, error) {
				return &clothing.SimilarResult{Engine: json.RawMessage(`{"results":[{"id":"x"}]}`)}, nil
			},
		}
		req := withChiURLParam(withUserID(httptest.NewRequest(http.MethodGet, "/", nil), testUserID), "id", testItemID)
		w := httptest.NewRecorder()
		NewClothingHandler(svc).Similar(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		assert.Equal(t, testItemID, data["baseItem"])
		assert.Contains(t, data, "result")
	})

	t.Run("カテゴリ一致の代替結果", func(t *testing.T) {
		svc := &mockClothingService{
			similarFn: func(ctx context.Context, userID, id string) (*clothing.SimilarResult, error) {
				return &clothing.SimilarResult{
					Items: []clothing.SimilarItem{{ClothingItem: &model.ClothingItem{ID: "other"}, SimilarityScore: 0.8}},
					Note:  "fallback",
				}, nil
			},
		}
		req := withChiURLParam(withUserID(httptest.NewRequest(http.MethodGet, "/", nil), testUserID), "id", testItemID)
		w := httptest.NewRecorder()
		NewClothingHandler(svc).Similar(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		items := data["similarItems"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, 0.8, items[0].(map[string]any)["similarityScore"])
		assert.Equal(t, "fallback", data["note"])
	})
}

func TestClothingHandler_BulkUpdate(t *testing.T) {
	svc := &mockClothingService{
		bulkUpdateFn: func(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error) {
			assert.Equal(t, []string{testItemID}, ids)
			require.NotNil(t, u.IsFavorite)
			assert.True(t, *u.IsFavorite)
			return 1, nil
		},
	}
	req := jsonRequest(http.MethodPatch, "/api/clothing/bulk-update",
		`{"itemIds":["`+testItemID+`"],"updates":{"isFavorite":true}}`)
	w := httptest.NewRecorder()

	NewClothingHandler(svc).BulkUpdate(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "Updated 1 items", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["modified"])
	assert.Equal(t, float64(1), data["matched"])
}

func TestClothingHandler_BulkUpdate_ForeignItems_Returns403(t *testing.T) {
	svc := &mockClothingService{
		bulkUpdateFn: func(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error) {
			return 0, model.NewForbiddenError("Some items not found or access denied")
		},
	}
	req := jsonRequest(http.MethodPatch, "/api/clothing/bulk-update",
		`{"itemIds":["`+testItemID+`"],"updates":{"brand":"Uniqlo"}}`)
	w := httptest.NewRecorder()

	NewClothingHandler(svc).BulkUpdate(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestClothingHandler_ToggleFavorite_Message(t *testing.T) {
	svc := &mockClothingService{
		favoriteFn: func(ctx context.Context, userID, id string) (*model.ClothingItem, error) {
			item := &model.ClothingItem{ID: id}
			item.UserMetadata.IsFavorite = true
			return item, nil
		},
	}
	req := withChiURLParam(withUserID(httptest.NewRequest(http.MethodPost, "/", nil), testUserID), "id", testItemID)
	w := httptest.NewRecorder()

	NewClothingHandler(svc).ToggleFavorite(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Added to favorites", decodeBody(t, w)["message"])
}
