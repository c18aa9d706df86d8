package clothing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/closetiq/internal/aiclient"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
	"github.com/hitoshi/closetiq/internal/storage"
)

// --- モック定義 ---

type mockClothingRepo struct {
	repository.ClothingRepository
	created      *model.ClothingItem
	updated      *model.ClothingItem
	findOwnedFn  func(ctx context.Context, id, userID string) (*model.ClothingItem, error)
	deleteFn     func(ctx context.Context, id, userID string) (bool, error)
	listByCatFn  func(ctx context.Context, userID, category, excludeID string, limit int) ([]*model.ClothingItem, error)
	countOwnedFn func(ctx context.Context, userID string, ids []string) (int, error)
	bulkUpdateFn func(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error)
	recordWearFn func(ctx context.Context, id, userID string, at time.Time) (*model.ClothingItem, error)
	listFn       func(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, int, error)
}

func (m *mockClothingRepo) Create(_ context.Context, item *model.ClothingItem) error {
	m.created = item
	return nil
}

func (m *mockClothingRepo) Update(_ context.Context, item *model.ClothingItem) error {
	m.updated = item
	return nil
}

func (m *mockClothingRepo) FindOwned(ctx context.Context, id, userID string) (*model.ClothingItem, error) {
	return m.findOwnedFn(ctx, id, userID)
}

func (m *mockClothingRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	return m.deleteFn(ctx, id, userID)
}

func (m *mockClothingRepo) ListByCategory(ctx context.Context, userID, category, excludeID string, limit int) ([]*model.ClothingItem, error) {
	return m.listByCatFn(ctx, userID, category, excludeID, limit)
}

func (m *mockClothingRepo) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	return m.countOwnedFn(ctx, userID, ids)
}

func (m *mockClothingRepo) BulkUpdate(ctx context.Context, userID string, ids []string, u repository.ClothingBulkUpdate) (int64, error) {
	return m.bulkUpdateFn(ctx, userID, ids, u)
}

func (m *mockClothingRepo) RecordWear(ctx context.Context, id, userID string, at time.Time) (*model.ClothingItem, error) {
	return m.recordWearFn(ctx, id, userID, at)
}

func (m *mockClothingRepo) List(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, int, error) {
	return m.listFn(ctx, userID, filter, page)
}

type mockWardrobeRepo struct {
	repository.WardrobeRepository
	owned   *model.Wardrobe
	added   []string
	removed []string
}

func (m *mockWardrobeRepo) FindOwned(_ context.Context, _, _ string) (*model.Wardrobe, error) {
	return m.owned, nil
}

func (m *mockWardrobeRepo) AddItem(_ context.Context, _, itemID string) error {
	m.added = append(m.added, itemID)
	return nil
}

func (m *mockWardrobeRepo) RemoveItem(_ context.Context, _, itemID string) error {
	m.removed = append(m.removed, itemID)
	return nil
}

type fakeImageStore struct {
	putErr  error
	deleted []string
}

func (f *fakeImageStore) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	return "https://images.example.com/" + key, nil
}

func (f *fakeImageStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeImageStore) TransformURL(_ context.Context, key string) (string, error) {
	return key, nil
}

type mockClassifier struct {
	classifyFn    func(ctx context.Context, f aiclient.File) (*aiclient.Classification, error)
	findSimilarFn func(ctx context.Context, req aiclient.SimilarityRequest) (*aiclient.Result, error)
	classifyCalls int
}

func (m *mockClassifier) Classify(ctx context.Context, f aiclient.File) (*aiclient.Classification, error) {
	m.classifyCalls++
	return m.classifyFn(ctx, f)
}

func (m *mockClassifier) FindSimilar(ctx context.Context, req aiclient.SimilarityRequest) (*aiclient.Result, error) {
	return m.findSimilarFn(ctx, req)
}

type fakeFetcher struct {
	img *security.FetchedImage
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*security.FetchedImage, error) {
	return f.img, f.err
}

type deps struct {
	clothing   *mockClothingRepo
	wardrobes  *mockWardrobeRepo
	images     *fakeImageStore
	classifier *mockClassifier
	fetcher    *fakeFetcher
}

func newDeps() *deps {
	return &deps{
		clothing:   &mockClothingRepo{},
		wardrobes:  &mockWardrobeRepo{owned: &model.Wardrobe{ID: "w-1", UserID: "user-1"}},
		images:     &fakeImageStore{},
		classifier: &mockClassifier{},
		fetcher:    &fakeFetcher{},
	}
}

func (d *deps) service() *Service {
	s := NewService(d.clothing, d.wardrobes, d.images, d.classifier, d.fetcher)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.rand = func() float64 { return 0.5 }
	return s
}

func engineClassification(class string, confidence float64) *aiclient.Classification {
	return &aiclient.Classification{
		Success: true,
		Classification: aiclient.ClassificationDetail{
			PredictedClass: class,
			Confidence:     confidence,
			AllPredictions: json.RawMessage(`{"dresses":0.1,"` + class + `":0.9}`),
		},
		Attributes:       json.RawMessage(`{"colors":["navy"],"patterns":"striped"}`),
		ImageQuality:     json.RawMessage(`{"overall_score":0.77}`),
		ProcessingTimeMs: 120,
		ModelVersion:     "2.1",
	}
}

func assertAPIError(t *testing.T, err error, code, message string) {
	t.Helper()
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "error = %v, want *model.APIError", err)
	assert.Equal(t, code, apiErr.Code)
	assert.Equal(t, message, apiErr.Message)
}

func testImage() *aiclient.File {
	return &aiclient.File{Filename: "shirt.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")}
}

// --- テストケース ---

func TestCreate_WardrobeNotOwned(t *testing.T) {
	d := newDeps()
	d.wardrobes.owned = nil

	_, err := d.service().Create(context.Background(), "user-1", CreateInput{WardrobeID: "w-9", Name: "Shirt"})
	assertAPIError(t, err, model.ErrCodeNotFound, "Wardrobe not found or access denied")
	assert.Nil(t, d.clothing.created)
}

func TestCreate_WithImageClassifies(t *testing.T) {
	d := newDeps()
	d.classifier.classifyFn = func(_ context.Context, f aiclient.File) (*aiclient.Classification, error) {
		assert.Equal(t, "shirt.jpg", f.Filename)
		return engineClassification(model.CategoryShirtsBlouses, 0.9), nil
	}

	item, err := d.service().Create(context.Background(), "user-1", CreateInput{
		WardrobeID:   "w-1",
		Name:         "Oxford",
		Category:     model.CategoryShirtsBlouses,
		Color:        "white",
		Image:        testImage(),
		AutoClassify: true,
	})
	require.NoError(t, err)

	assert.Contains(t, item.ImageURL, "closetiq/clothing/user-1/")
	assert.NotEmpty(t, item.ImageKey)
	assert.Equal(t, 0.9, item.AIClassification.Confidence)
	assert.Equal(t, "2.1", item.AIClassification.ModelVersion)
	assert.Equal(t, 0.77, item.AIClassification.QualityScore)
	assert.Equal(t, int64(120), item.AIClassification.ProcessingTime)
	require.Len(t, item.AIClassification.AllPredictions, 2)
	assert.Equal(t, model.CategoryShirtsBlouses, item.AIClassification.AllPredictions[0].Category)
	assert.Equal(t, []string{"white"}, item.Attributes.Colors)
	assert.Equal(t, []string{"striped"}, item.Attributes.Patterns)
	assert.Equal(t, []string{item.ID}, d.wardrobes.added)
	assert.Same(t, item, d.clothing.created)
}

func TestCreate_ClassificationFailureUsesDefault(t *testing.T) {
	d := newDeps()
	d.classifier.classifyFn = func(_ context.Context, _ aiclient.File) (*aiclient.Classification, error) {
		return nil, aiclient.ErrEngineUnavailable
	}

	item, err := d.service().Create(context.Background(), "user-1", CreateInput{
		WardrobeID:   "w-1",
		Name:         "Tee",
		Category:     model.CategoryTshirtsTops,
		Image:        testImage(),
		AutoClassify: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, item.AIClassification.Confidence)
	assert.Equal(t, model.CategoryTshirtsTops, item.AIClassification.AllPredictions[0].Category)
}

func TestCreate_AutoClassifyDisabled(t *testing.T) {
	d := newDeps()

	_, err := d.service().Create(context.Background(), "user-1", CreateInput{
		WardrobeID: "w-1",
		Name:       "Tee",
		Category:   model.CategoryTshirtsTops,
		Image:      testImage(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, d.classifier.classifyCalls)
}

func TestCreate_StorageNotConfigured(t *testing.T) {
	d := newDeps()
	d.images.putErr = storage.ErrNotConfigured

	item, err := d.service().Create(context.Background(), "user-1", CreateInput{
		WardrobeID: "w-1",
		Name:       "Tee",
		Category:   model.CategoryTshirtsTops,
		Image:      testImage(),
	})
	require.NoError(t, err)
	assert.Empty(t, item.ImageURL)
}

func TestList_HasMore(t *testing.T) {
	d := newDeps()
	d.clothing.listFn = func(_ context.Context, _ string, _ model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, int, error) {
		return make([]*model.ClothingItem, page.Limit), 45, nil
	}

	_, pg, err := d.service().List(context.Background(), "user-1", model.ClothingFilter{}, model.PageRequest{Page: 2, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 3, pg.Pages)
	require.NotNil(t, pg.HasMore)
	assert.True(t, *pg.HasMore)
}

func TestList_TwelveItemsPagedByFive(t *testing.T) {
	tests := []struct {
		page        int
		wantItems   int
		wantHasMore bool
	}{
		{page: 2, wantItems: 5, wantHasMore: true},
		{page: 3, wantItems: 2, wantHasMore: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			const total = 12
			d := newDeps()
			d.clothing.listFn = func(_ context.Context, _ string, _ model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, int, error) {
				n := min(page.Limit, max(total-page.Offset(), 0))
				return make([]*model.ClothingItem, n), total, nil
			}

			items, pg, err := d.service().List(context.Background(), "user-1", model.ClothingFilter{}, model.PageRequest{Page: tt.page, Limit: 5})
			require.NoError(t, err)
			assert.Len(t, items, tt.wantItems)
			assert.Equal(t, model.Pagination{Total: 12, Page: tt.page, Limit: 5, Pages: 3, HasMore: &tt.wantHasMore}, pg)
		})
	}
}

func TestDelete_PrunesWardrobeAndImage(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id, WardrobeID: "w-1", ImageKey: "k-1"}, nil
	}
	d.clothing.deleteFn = func(_ context.Context, _, _ string) (bool, error) { return true, nil }

	require.NoError(t, d.service().Delete(context.Background(), "user-1", "i-1"))
	assert.Equal(t, []string{"i-1"}, d.wardrobes.removed)
	assert.Equal(t, []string{"k-1"}, d.images.deleted)
}

func TestReclassify_UpdatesValidCategory(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id, Category: model.CategoryShorts, ImageURL: "https://images.example.com/a.jpg"}, nil
	}
	d.fetcher.img = &security.FetchedImage{Data: []byte("x"), ContentType: "image/jpeg", Filename: "a.jpg"}
	d.classifier.classifyFn = func(_ context.Context, _ aiclient.File) (*aiclient.Classification, error) {
		return engineClassification(model.CategoryPantsJeans, 0.8), nil
	}

	res, err := d.service().Reclassify(context.Background(), "user-1", "i-1")
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, model.CategoryPantsJeans, res.Item.Category)
	assert.Same(t, res.Item, d.clothing.updated)
}

func TestReclassify_UnknownClassKeepsCategory(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id, Category: model.CategoryShorts, ImageURL: "https://images.example.com/a.jpg"}, nil
	}
	d.fetcher.img = &security.FetchedImage{Data: []byte("x"), ContentType: "image/jpeg"}
	d.classifier.classifyFn = func(_ context.Context, _ aiclient.File) (*aiclient.Classification, error) {
		return engineClassification("unknown", 0.3), nil
	}

	res, err := d.service().Reclassify(context.Background(), "user-1", "i-1")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryShorts, res.Item.Category)
	assert.Equal(t, 0.3, res.Item.AIClassification.Confidence)
}

func TestReclassify_EngineDownReportsError(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id, ImageURL: "https://images.example.com/a.jpg"}, nil
	}
	d.fetcher.img = &security.FetchedImage{Data: []byte("x"), ContentType: "image/jpeg"}
	d.classifier.classifyFn = func(_ context.Context, _ aiclient.File) (*aiclient.Classification, error) {
		return nil, aiclient.ErrEngineUnavailable
	}

	res, err := d.service().Reclassify(context.Background(), "user-1", "i-1")
	require.NoError(t, err)
	assert.Equal(t, "AI classification service is not available", res.Error)
	assert.Nil(t, d.clothing.updated)
}

func TestReclassify_NoImage(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id, Category: model.CategoryDresses}, nil
	}

	res, err := d.service().Reclassify(context.Background(), "user-1", "i-1")
	require.NoError(t, err)
	require.NotNil(t, res.Classification)
	assert.Equal(t, 0.85, res.Classification.Classification.Confidence)
	assert.Equal(t, model.CategoryDresses, res.Classification.Classification.PredictedClass)
}

func TestSimilar_EngineResult(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id}, nil
	}
	d.classifier.findSimilarFn = func(_ context.Context, req aiclient.SimilarityRequest) (*aiclient.Result, error) {
		assert.Equal(t, 5, req.TopK)
		return &aiclient.Result{Body: json.RawMessage(`{"results":[]}`)}, nil
	}

	res, err := d.service().Similar(context.Background(), "user-1", "i-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(res.Engine))
	assert.Empty(t, res.Note)
}

func TestSimilar_FallsBackToCategory(t *testing.T) {
	tests := []struct {
		name string
		res  *aiclient.Result
		err  error
	}{
		{name: "degraded", res: &aiclient.Result{Body: json.RawMessage(`{}`), Degraded: true}},
		{name: "upstream error", err: &aiclient.UpstreamError{Status: 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
				return &model.ClothingItem{ID: id, Category: model.CategorySkirts}, nil
			}
			d.clothing.listByCatFn = func(_ context.Context, _, category, excludeID string, limit int) ([]*model.ClothingItem, error) {
				assert.Equal(t, model.CategorySkirts, category)
				assert.Equal(t, "i-1", excludeID)
				assert.Equal(t, 5, limit)
				return []*model.ClothingItem{{ID: "i-2"}, {ID: "i-3"}}, nil
			}
			d.classifier.findSimilarFn = func(_ context.Context, _ aiclient.SimilarityRequest) (*aiclient.Result, error) {
				return tt.res, tt.err
			}

			res, err := d.service().Similar(context.Background(), "user-1", "i-1")
			require.NoError(t, err)
			require.Len(t, res.Items, 2)
			assert.Equal(t, categoryFallbackNote, res.Note)
			for _, it := range res.Items {
				assert.GreaterOrEqual(t, it.SimilarityScore, 0.7)
				assert.Less(t, it.SimilarityScore, 1.0)
			}
		})
	}
}

func TestBulkUpdate_ForeignItem(t *testing.T) {
	d := newDeps()
	d.clothing.countOwnedFn = func(_ context.Context, _ string, _ []string) (int, error) { return 1, nil }

	_, err := d.service().BulkUpdate(context.Background(), "user-1", []string{"i-1", "i-2"}, repository.ClothingBulkUpdate{})
	assertAPIError(t, err, model.ErrCodeForbidden, "Some items not found or access denied")
}

func TestBulkUpdate(t *testing.T) {
	d := newDeps()
	d.clothing.countOwnedFn = func(_ context.Context, _ string, ids []string) (int, error) { return len(ids), nil }
	d.clothing.bulkUpdateFn = func(_ context.Context, _ string, ids []string, u repository.ClothingBulkUpdate) (int64, error) {
		assert.Equal(t, []string{"summer"}, u.UserTags)
		return int64(len(ids)), nil
	}

	n, err := d.service().BulkUpdate(context.Background(), "user-1", []string{"i-1", "i-2"},
		repository.ClothingBulkUpdate{UserTags: []string{"<i>summer</i>", "  "}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestToggleFavorite(t *testing.T) {
	d := newDeps()
	d.clothing.findOwnedFn = func(_ context.Context, id, _ string) (*model.ClothingItem, error) {
		return &model.ClothingItem{ID: id}, nil
	}

	item, err := d.service().ToggleFavorite(context.Background(), "user-1", "i-1")
	require.NoError(t, err)
	assert.True(t, item.UserMetadata.IsFavorite)
}

func TestRecordWear_NotOwned(t *testing.T) {
	d := newDeps()
	d.clothing.recordWearFn = func(_ context.Context, _, _ string, _ time.Time) (*model.ClothingItem, error) {
		return nil, nil
	}

	_, err := d.service().RecordWear(context.Background(), "user-1", "i-1")
	assertAPIError(t, err, model.ErrCodeNotFound, "Clothing item not found or access denied")
}
