package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/closetiq/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var userColumnNames = []string{
	"id", "firebase_uid", "email", "username", "display_name", "photo_url", "is_email_verified",
	"auth_provider", "profile", "preferences", "subscription", "settings", "is_active", "last_login", "created_at", "updated_at",
}

var wardrobeColumnNames = []string{
	"id", "user_id", "name", "description", "item_ids", "is_default",
	"visibility", "shared_with", "tags", "created_at", "updated_at",
}

var outfitColumnNames = []string{
	"id", "user_id", "name", "description", "item_ids", "occasion", "season", "tags", "is_public",
	"rating", "times_worn", "created_at", "updated_at",
}

var chatColumnNames = []string{
	"id", "user_id", "session_type", "title", "messages", "is_active", "created_at", "last_message_at",
}

var clothingColumnNames = []string{
	"id", "user_id", "wardrobe_id", "image_url", "image_key", "name", "brand", "color", "size", "description",
	"category", "attributes", "ai_classification", "user_metadata", "created_at", "updated_at",
}

// --- User ---

func TestPostgresUserRepo_FindByFirebaseUID_NotFound_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE firebase_uid = \$1`).
		WithArgs("fb-uid-1").
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	user, err := NewPostgresUserRepo(db).FindByFirebaseUID(context.Background(), "fb-uid-1")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepo_FindByID_DecodesJSONB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(userColumnNames).AddRow(
		"user-1", "fb-uid-1", "alice@example.com", "alice", "Alice", "", true,
		"firebase",
		[]byte(`{"gender":"female","stylePreferences":["minimal"]}`),
		[]byte(`{"favoriteColors":["navy"],"occasionPreferences":{"casual":true}}`),
		[]byte(`{"plan":"premium"}`),
		[]byte(`{"theme":"dark","language":"ja"}`),
		true, testNow, testNow, testNow,
	)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).WithArgs("user-1").WillReturnRows(rows)

	user, err := NewPostgresUserRepo(db).FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []string{"minimal"}, user.Profile.StylePreferences)
	assert.Equal(t, []string{"navy"}, user.Preferences.FavoriteColors)
	assert.Equal(t, []string{}, user.Preferences.DislikedColors)
	assert.True(t, user.Preferences.OccasionPreferences.Casual)
	assert.Equal(t, model.PlanPremium, user.Subscription.Plan)
	assert.Equal(t, "dark", user.Settings.Theme)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepo_Create_UniqueViolation_ReturnsDuplicateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Table: "users", Constraint: "users_username_key"})

	u := model.NewUser("user-1", "fb-uid-1", "alice@example.com", "alice", testNow)
	err = NewPostgresUserRepo(db).Create(context.Background(), u)

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "expected *model.APIError, got %v", err)
	assert.Equal(t, model.ErrCodeDuplicate, apiErr.Code)
	assert.Equal(t, "username already exists", apiErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepo_DeleteByID_NoRows_ReturnsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresUserRepo(db).DeleteByID(context.Background(), "missing")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Wardrobe ---

func TestPostgresWardrobeRepo_AddSharedUser_ReturnsUpdatedWardrobe(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(wardrobeColumnNames).AddRow(
		"w-1", "owner-1", "Summer", "", "{}", false,
		model.VisibilityShared, "{friend-1}", "{beach,light}", testNow, testNow,
	)
	mock.ExpectQuery(`UPDATE wardrobes w SET visibility = 'shared'`).
		WithArgs("w-1", "owner-1", "friend-1").
		WillReturnRows(rows)

	w, err := NewPostgresWardrobeRepo(db).AddSharedUser(context.Background(), "w-1", "owner-1", "friend-1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, model.VisibilityShared, w.Visibility)
	assert.Equal(t, []string{"friend-1"}, w.SharedWith)
	assert.Equal(t, []string{}, w.ItemIDs)
	assert.Equal(t, []string{"beach", "light"}, w.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWardrobeRepo_AddSharedUser_NotOwner_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE wardrobes w SET`).
		WithArgs("w-1", "intruder", "friend-1").
		WillReturnRows(sqlmock.NewRows(wardrobeColumnNames))

	w, err := NewPostgresWardrobeRepo(db).AddSharedUser(context.Background(), "w-1", "intruder", "friend-1")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestPostgresWardrobeRepo_ListShared_SetsOwnerUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	page := model.PageRequest{Page: 2, Limit: 5}
	mock.ExpectQuery(`SELECT count\(\*\) FROM wardrobes w WHERE w.user_id <> \$1`).
		WithArgs("me").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery(`JOIN users u ON u.id = w.user_id`).
		WithArgs("me", 5, 5).
		WillReturnRows(sqlmock.NewRows(append(wardrobeColumnNames, "username")).AddRow(
			"w-9", "other", "Office", "", "{}", false, model.VisibilityPublic, "{}", "{}", testNow, testNow, "bob",
		))

	list, total, err := NewPostgresWardrobeRepo(db).ListShared(context.Background(), "me", page)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].OwnerUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Clothing ---

func TestPostgresClothingRepo_List_AppliesFiltersAndPaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fav := true
	filter := model.ClothingFilter{Category: model.CategoryTshirtsTops, IsFavorite: &fav}
	page := model.PageRequest{Page: 3, Limit: 10, Sort: "name", Order: "asc"}

	mock.ExpectQuery(`SELECT count\(\*\) FROM clothing_items WHERE user_id = \$1 AND category = \$2 AND .+isFavorite.+ = \$3`).
		WithArgs("user-1", model.CategoryTshirtsTops, true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`ORDER BY name ASC, id LIMIT \$4 OFFSET \$5`).
		WithArgs("user-1", model.CategoryTshirtsTops, true, 10, 20).
		WillReturnRows(sqlmock.NewRows(clothingColumnNames).AddRow(
			"item-1", "user-1", "w-1", "https://cdn.example.com/a.jpg", "items/a.jpg", "Tee", "", "white", "M", "",
			model.CategoryTshirtsTops, []byte(`{"colors":["white"]}`), []byte(`{"confidence":0.9}`), []byte(`{"isFavorite":true}`),
			testNow, testNow,
		))

	items, total, err := NewPostgresClothingRepo(db).List(context.Background(), "user-1", filter, page)
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"white"}, items[0].Attributes.Colors)
	assert.Equal(t, []string{}, items[0].Attributes.Patterns)
	assert.True(t, items[0].UserMetadata.IsFavorite)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClothingRepo_List_UnknownSortFallsBackToCreatedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM clothing_items`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY created_at DESC, id`).
		WillReturnRows(sqlmock.NewRows(clothingColumnNames))

	_, _, err = NewPostgresClothingRepo(db).List(context.Background(), "user-1", model.ClothingFilter{},
		model.PageRequest{Page: 1, Limit: 20, Sort: "password; DROP TABLE users"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClothingRepo_BulkUpdate_NothingToSet_SkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	n, err := NewPostgresClothingRepo(db).BulkUpdate(context.Background(), "user-1", []string{"item-1"}, ClothingBulkUpdate{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClothingRepo_BulkUpdate_SetsFavoriteInMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	brand := "Uniqlo"
	fav := true
	mock.ExpectExec(`UPDATE clothing_items SET brand = \$3, user_metadata = jsonb_set\(user_metadata, '\{isFavorite\}', to_jsonb\(\$4::boolean\)\), updated_at = now\(\)`).
		WithArgs(sqlmock.AnyArg(), "user-1", brand, true).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewPostgresClothingRepo(db).BulkUpdate(context.Background(), "user-1", []string{"item-1", "item-2"},
		ClothingBulkUpdate{Brand: &brand, IsFavorite: &fav})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Outfit ---

func TestPostgresOutfitRepo_SetRating_ReturnsOutfit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE outfits SET rating = \$3`).
		WithArgs("o-1", "user-1", 3.5).
		WillReturnRows(sqlmock.NewRows(outfitColumnNames).AddRow(
			"o-1", "user-1", "Date night", "", "{i-1,i-2}", "date", "fall", "{}", false, 3.5, 0, testNow, testNow,
		))

	o, err := NewPostgresOutfitRepo(db).SetRating(context.Background(), "o-1", "user-1", 3.5)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 3.5, o.Rating)
	assert.Equal(t, []string{"i-1", "i-2"}, o.ItemIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutfitRepo_FindOwned_NotFound_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM outfits WHERE id = \$1 AND user_id = \$2`).
		WithArgs("o-1", "someone-else").
		WillReturnRows(sqlmock.NewRows(outfitColumnNames))

	o, err := NewPostgresOutfitRepo(db).FindOwned(context.Background(), "o-1", "someone-else")
	require.NoError(t, err)
	assert.Nil(t, o)
}

// --- Chat ---

func TestPostgresChatRepo_AppendMessages_ConcatenatesJSONB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	msgs := []model.ChatMessage{
		{Role: model.RoleUser, Content: "What goes with a navy blazer?", Timestamp: testNow},
		{Role: model.RoleAssistant, Content: "Try light chinos.", Timestamp: testNow},
	}
	stored := []byte(`[{"role":"user","content":"What goes with a navy blazer?","timestamp":"2026-03-01T12:00:00Z"},` +
		`{"role":"assistant","content":"Try light chinos.","timestamp":"2026-03-01T12:00:00Z"}]`)

	mock.ExpectQuery(`UPDATE chat_sessions SET messages = messages \|\| \$3::jsonb, last_message_at = \$4`).
		WithArgs("c-1", "user-1", sqlmock.AnyArg(), testNow).
		WillReturnRows(sqlmock.NewRows(chatColumnNames).AddRow(
			"c-1", "user-1", model.SessionTypeStyleAdvice, "Blazer", stored, true, testNow, testNow,
		))

	s, err := NewPostgresChatRepo(db).AppendMessages(context.Background(), "c-1", "user-1", msgs, testNow)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, model.RoleAssistant, s.Messages[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChatRepo_Delete_ReportsWhetherDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM chat_sessions`).WithArgs("c-1", "user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM chat_sessions`).WithArgs("c-2", "user-1").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresChatRepo(db)
	ok, err := repo.Delete(context.Background(), "c-1", "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(context.Background(), "c-2", "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Stats ---

func TestPostgresStatsRepo_Latest_SkipsEmptyCollections(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "name", "kind", "at"}
	mock.ExpectQuery(`FROM wardrobes`).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("w-1", "Main", "", testNow))
	mock.ExpectQuery(`FROM clothing_items`).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`FROM outfits`).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("o-1", "Work look", "work", testNow))
	mock.ExpectQuery(`FROM chat_sessions`).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols))

	la, err := NewPostgresStatsRepo(db).Latest(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, la.LatestWardrobe)
	assert.Equal(t, "Main", la.LatestWardrobe.Name)
	assert.Nil(t, la.LatestItem)
	require.NotNil(t, la.LatestOutfit)
	assert.Equal(t, "work", la.LatestOutfit.Kind)
	assert.Nil(t, la.LatestChat)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullableJSONB_NilPointer_ReturnsNil(t *testing.T) {
	v, err := nullableJSONB[model.WeatherContext](nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = nullableJSONB(&model.WeatherContext{Conditions: "Clear"})
	require.NoError(t, err)
	assert.Contains(t, string(v.([]byte)), `"conditions":"Clear"`)
}
