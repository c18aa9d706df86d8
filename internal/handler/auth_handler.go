package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/closetiq/internal/auth"
	"github.com/hitoshi/closetiq/internal/middleware"
	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register はトークンの主体と一致するユーザーを新規作成する。
	Register(ctx context.Context, claims *auth.Claims, in auth.RegisterInput) (*model.User, error)
	// Sync はトークンのクレームからユーザーを作成または更新する。
	Sync(ctx context.Context, claims *auth.Claims, in auth.SyncInput) (*model.User, bool, error)
	// CurrentUser はユーザーを取得する。
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	// DeleteAccount はユーザーと所有データを削除する。
	DeleteAccount(ctx context.Context, userID string) error
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileUpdater
}

// ProfileUpdater はプロフィール更新のインターフェース。UserServiceInterfaceの部分集合。
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileUpdater) *AuthHandler {
	return &AuthHandler{service: service, profiles: profiles}
}

type registerRequest struct {
	FirebaseUID string `json:"firebaseUid" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Username    string `json:"username" validate:"required,min=3,max=30,username"`
	DisplayName string `json:"displayName" validate:"omitempty,max=100"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
}

type syncRequest struct {
	Username    string `json:"username" validate:"omitempty,min=3,max=30,username"`
	DisplayName string `json:"displayName" validate:"omitempty,max=100"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
}

// Register は初回登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError("No authenticated user found"))
		return
	}
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.Register(r.Context(), claims, auth.RegisterInput{
		FirebaseUID: req.FirebaseUID,
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"user": u}, "User registered successfully")
}

// Sync はトークンのクレームとユーザーを同期する。
// POST /api/auth/sync
func (h *AuthHandler) Sync(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedError("No authenticated user found"))
		return
	}
	var req syncRequest
	if !decode(w, r, &req) {
		return
	}

	u, created, err := h.service.Sync(r.Context(), claims, auth.SyncInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeData(w, status, map[string]any{"user": u, "created": created}, "User synced successfully")
}

// Validate はトークンが有効であることを返す。
// GET /api/auth/validate
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())
	writeData(w, http.StatusOK, map[string]any{"firebaseUser": claims, "userId": userID}, "Token is valid")
}

// Me はログイン中のユーザーを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	u, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": u}, "")
}

// UpdateProfile はプロフィールを更新する。不変フィールドは無視する。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.profiles.UpdateProfile(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": u}, "Profile updated successfully")
}

// DeleteAccount はアカウントを削除する。
// DELETE /api/auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, "Account deleted successfully")
}
