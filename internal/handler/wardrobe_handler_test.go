package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/wardrobe"
)

// mockWardrobeService はWardrobeServiceInterfaceのモック実装。
type mockWardrobeService struct {
	WardrobeServiceInterface
	createFn func(ctx context.Context, userID string, in wardrobe.CreateInput) (*model.Wardrobe, error)
	listFn   func(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error)
	getFn    func(ctx context.Context, userID, id string) (*wardrobe.Detail, error)
	deleteFn func(ctx context.Context, userID, id string) error
	shareFn  func(ctx context.Context, userID, id, username string) (*model.Wardrobe, error)
}

func (m *mockWardrobeService) Create(ctx context.Context, userID string, in wardrobe.CreateInput) (*model.Wardrobe, error) {
	return m.createFn(ctx, userID, in)
}

func (m *mockWardrobeService) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error) {
	return m.listFn(ctx, userID, page)
}

func (m *mockWardrobeService) Get(ctx context.Context, userID, id string) (*wardrobe.Detail, error) {
	return m.getFn(ctx, userID, id)
}

func (m *mockWardrobeService) Delete(ctx context.Context, userID, id string) error {
	return m.deleteFn(ctx, userID, id)
}

func (m *mockWardrobeService) Share(ctx context.Context, userID, id, username string) (*model.Wardrobe, error) {
	return m.shareFn(ctx, userID, id, username)
}

func TestWardrobeHandler_Create(t *testing.T) {
	svc := &mockWardrobeService{
		createFn: func(ctx context.Context, userID string, in wardrobe.CreateInput) (*model.Wardrobe, error) {
			assert.Equal(t, testUserID, userID)
			assert.Equal(t, "Summer", in.Name)
			assert.Equal(t, "public", in.Visibility)
			return &model.Wardrobe{ID: testItemID, UserID: userID, Name: in.Name, Visibility: in.Visibility}, nil
		},
	}
	w := httptest.NewRecorder()
	NewWardrobeHandler(svc).Create(w, jsonRequest(http.MethodPost, "/api/wardrobes", `{"name":"Summer","visibility":"public"}`))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "Wardrobe created successfully", body["message"])
	assert.Equal(t, "Summer", body["data"].(map[string]any)["name"])
}

func TestWardrobeHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"名前なし", `{"visibility":"public"}`},
		{"不正な公開範囲", `{"name":"A","visibility":"friends"}`},
		{"不正なJSON", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewWardrobeHandler(&mockWardrobeService{}).Create(w, jsonRequest(http.MethodPost, "/api/wardrobes", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestWardrobeHandler_List_Pagination(t *testing.T) {
	svc := &mockWardrobeService{
		listFn: func(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, model.Pagination, error) {
			assert.Equal(t, 2, page.Page)
			assert.Equal(t, 5, page.Limit)
			return []*model.Wardrobe{{ID: testItemID}}, model.Pagination{Page: 2, Limit: 5, Total: 6, Pages: 2}, nil
		},
	}
	w := httptest.NewRecorder()
	NewWardrobeHandler(svc).List(w, jsonRequest(http.MethodGet, "/api/wardrobes?page=2&limit=5", ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Len(t, data["wardrobes"], 1)
	assert.Equal(t, float64(6), data["pagination"].(map[string]any)["total"])
}

func TestWardrobeHandler_Get_InvalidID(t *testing.T) {
	w := httptest.NewRecorder()
	req := withChiURLParam(jsonRequest(http.MethodGet, "/", ""), "id", "not-a-uuid")
	NewWardrobeHandler(&mockWardrobeService{}).Get(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decodeBody(t, w)["code"])
}

func TestWardrobeHandler_Get_ExpandsItems(t *testing.T) {
	svc := &mockWardrobeService{
		getFn: func(ctx context.Context, userID, id string) (*wardrobe.Detail, error) {
			return &wardrobe.Detail{
				Wardrobe: &model.Wardrobe{ID: id, Name: "Work"},
				Items:    []*model.ClothingItem{{ID: "item-1", Name: "Oxford shirt"}},
			}, nil
		},
	}
	w := httptest.NewRecorder()
	NewWardrobeHandler(svc).Get(w, withChiURLParam(jsonRequest(http.MethodGet, "/", ""), "id", testItemID))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "Work", data["name"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Oxford shirt", items[0].(map[string]any)["name"])
}

func TestWardrobeHandler_Delete_DefaultWardrobe(t *testing.T) {
	svc := &mockWardrobeService{
		deleteFn: func(ctx context.Context, userID, id string) error {
			return model.NewDefaultWardrobeError()
		},
	}
	w := httptest.NewRecorder()
	NewWardrobeHandler(svc).Delete(w, withChiURLParam(jsonRequest(http.MethodDelete, "/", ""), "id", testItemID))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "DEFAULT_WARDROBE", body["code"])
	assert.Equal(t, "Cannot delete default wardrobe", body["message"])
}

func TestWardrobeHandler_Share(t *testing.T) {
	svc := &mockWardrobeService{
		shareFn: func(ctx context.Context, userID, id, username string) (*model.Wardrobe, error) {
			assert.Equal(t, "bob_99", username)
			return &model.Wardrobe{ID: id, SharedWith: []string{"bob-id"}}, nil
		},
	}
	w := httptest.NewRecorder()
	NewWardrobeHandler(svc).Share(w, withChiURLParam(jsonRequest(http.MethodPost, "/", `{"username":"bob_99"}`), "id", testItemID))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, testItemID, data["wardrobeId"])
	assert.Equal(t, []any{"bob-id"}, data["sharedWith"])
}
