package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
	// Deactivate はアカウントを無効化する。データは削除しない。
	Deactivate(ctx context.Context, userID string) error
	UploadPicture(ctx context.Context, userID string, pic user.Picture) (*model.User, error)
	Settings(ctx context.Context, userID string) (*user.Settings, error)
	UpdateSettings(ctx context.Context, userID string, in user.SettingsUpdate) (*user.Settings, error)
	Stats(ctx context.Context, userID string) (*user.Stats, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type profileFieldsRequest struct {
	Age              *int     `json:"age" validate:"omitempty,min=13,max=120"`
	Gender           *string  `json:"gender" validate:"omitempty,oneof=male female non-binary prefer-not-to-say"`
	StylePreferences []string `json:"stylePreferences"`
	BodyType         *string  `json:"bodyType" validate:"omitempty,max=50"`
	Location         *string  `json:"location" validate:"omitempty,max=100"`
	Bio              *string  `json:"bio" validate:"omitempty,max=500"`
}

type preferencesRequest struct {
	FavoriteColors      []string                  `json:"favoriteColors"`
	DislikedColors      []string                  `json:"dislikedColors"`
	StylePersonality    string                    `json:"stylePersonality" validate:"omitempty,oneof=classic trendy casual formal bohemian minimalist edgy romantic"`
	OccasionPreferences model.OccasionPreferences `json:"occasionPreferences"`
}

func (p *preferencesRequest) toModel() *model.Preferences {
	if p == nil {
		return nil
	}
	return &model.Preferences{
		FavoriteColors:      p.FavoriteColors,
		DislikedColors:      p.DislikedColors,
		StylePersonality:    p.StylePersonality,
		OccasionPreferences: p.OccasionPreferences,
	}
}

// profileRequest はプロフィール更新のリクエスト。
// firebaseUid、email、createdAtなどの不変フィールドは定義せず読み捨てる。
type profileRequest struct {
	Username    *string               `json:"username" validate:"omitempty,min=3,max=30,username"`
	DisplayName *string               `json:"displayName" validate:"omitempty,max=100"`
	PhotoURL    *string               `json:"photoURL" validate:"omitempty,url"`
	Profile     *profileFieldsRequest `json:"profile"`
	Preferences *preferencesRequest   `json:"preferences"`
}

func (req profileRequest) toInput() user.ProfileUpdate {
	in := user.ProfileUpdate{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
		Preferences: req.Preferences.toModel(),
	}
	if p := req.Profile; p != nil {
		in.Profile = &user.ProfileFields{
			Age:              p.Age,
			Gender:           p.Gender,
			StylePreferences: p.StylePreferences,
			BodyType:         p.BodyType,
			Location:         p.Location,
			Bio:              p.Bio,
		}
	}
	return in
}

type settingsRequest struct {
	Preferences   *preferencesRequest `json:"preferences"`
	Notifications *user.Notifications `json:"notifications"`
	Theme         *string             `json:"theme" validate:"omitempty,oneof=light dark auto"`
	Language      *string             `json:"language" validate:"omitempty,min=2,max=5"`
}

// Profile はプロフィールを返す。
// GET /api/users/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	u, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": u}, "")
}

// UpdateProfile はプロフィールを更新する。
// PUT /api/users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.service.UpdateProfile(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, u, "Profile updated successfully")
}

// Deactivate はアカウントを無効化する。
// DELETE /api/users/profile
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, "Account deactivated successfully")
}

// UploadPicture はプロフィール画像をアップロードする。
// POST /api/users/profile/picture
func (h *UserHandler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	files, err := readImages(r, "picture", user.MaxPictureBytes, 1)
	if errors.Is(err, ErrNoImage) {
		handleServiceError(w, model.NewBadRequestError("No image file provided"))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	f := files[0]
	u, err := h.service.UploadPicture(r.Context(), userID, user.Picture{
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Data:        f.Data,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"profilePicture": u.Profile.ProfilePicture,
		"user":           u,
	}, "Profile picture uploaded successfully")
}

// Settings は設定を返す。
// GET /api/users/settings
func (h *UserHandler) Settings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	settings, err := h.service.Settings(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, settings, "")
}

// UpdateSettings は設定を更新する。
// PUT /api/users/settings
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if !decode(w, r, &req) {
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), userID, user.SettingsUpdate{
		Preferences:   req.Preferences.toModel(),
		Notifications: req.Notifications,
		Theme:         req.Theme,
		Language:      req.Language,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, settings, "Settings updated successfully")
}

// Stats は利用統計を返す。
// GET /api/users/stats
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}
