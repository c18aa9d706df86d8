// Package auth はIDトークン検証とアカウントのライフサイクル管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
)

// RegisterInput は初回登録のリクエスト内容。
type RegisterInput struct {
	FirebaseUID string
	Email       string
	Username    string
	DisplayName string
	PhotoURL    string
}

// SyncInput はログイン時の同期リクエスト内容。空のフィールドはクレームの値で補う。
type SyncInput struct {
	Username    string
	DisplayName string
	PhotoURL    string
}

// Service はアカウントに関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo, now: time.Now}
}

// Register はトークンの主体と一致するユーザーを新規作成する。
// 登録済みのUIDまたはメールアドレスの場合はエラーを返す。
func (s *Service) Register(ctx context.Context, claims *Claims, in RegisterInput) (*model.User, error) {
	if in.FirebaseUID != claims.UID() {
		return nil, model.NewBadRequestError("Invalid Firebase user")
	}

	email := in.Email
	if email == "" {
		email = claims.Email
	}

	existing, err := s.userRepo.FindByFirebaseUID(ctx, claims.UID())
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing == nil && email != "" {
		existing, err = s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
	}
	if existing != nil {
		return nil, model.NewUserExistsError()
	}

	user := s.newUser(claims, email, in.Username)
	user.DisplayName = firstNonEmpty(in.DisplayName, claims.Name)
	user.PhotoURL = firstNonEmpty(in.PhotoURL, claims.Picture)

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("firebase_uid", user.FirebaseUID),
	)
	return user, nil
}

// Sync はトークンのクレームからユーザーを作成または更新する。
// 作成した場合はcreatedがtrueになる。
func (s *Service) Sync(ctx context.Context, claims *Claims, in SyncInput) (user *model.User, created bool, err error) {
	user, err = s.userRepo.FindByFirebaseUID(ctx, claims.UID())
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now().UTC()
	if user != nil {
		if claims.Email != "" {
			user.Email = claims.Email
		}
		user.DisplayName = firstNonEmpty(in.DisplayName, claims.Name, user.DisplayName)
		user.PhotoURL = firstNonEmpty(in.PhotoURL, claims.Picture, user.PhotoURL)
		user.IsEmailVerified = claims.EmailVerified
		user.LastLogin = now
		user.UpdatedAt = now
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	username := in.Username
	if username == "" {
		username, err = s.availableUsername(ctx, claims)
		if err != nil {
			return nil, false, err
		}
	}

	user = s.newUser(claims, claims.Email, username)
	user.DisplayName = firstNonEmpty(in.DisplayName, claims.Name)
	user.PhotoURL = firstNonEmpty(in.PhotoURL, claims.Picture)
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, err
	}

	slog.Info("user created on sync",
		slog.String("user_id", user.ID),
		slog.String("firebase_uid", user.FirebaseUID),
	)
	return user, true, nil
}

// CurrentUser はユーザーを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// DeleteAccount はユーザーを削除する。所有データはCASCADE削除される。
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	slog.Info("account deleted", slog.String("user_id", userID))
	return nil
}

func (s *Service) newUser(claims *Claims, email, username string) *model.User {
	user := model.NewUser(uuid.New().String(), claims.UID(), email, username, s.now().UTC())
	user.IsEmailVerified = claims.EmailVerified
	if claims.Firebase.SignInProvider == "google.com" {
		user.AuthProvider = model.AuthProviderGoogle
	}
	return user
}

var usernameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// availableUsername はメールアドレスのローカル部、なければuser_<uid先頭8文字>から
// 使用可能なユーザー名を組み立てる。既に使われている場合はUIDの一部を付け足す。
func (s *Service) availableUsername(ctx context.Context, claims *Claims) (string, error) {
	uidPart := claims.UID()
	if len(uidPart) > 8 {
		uidPart = uidPart[:8]
	}

	candidate := ""
	if local, _, ok := strings.Cut(claims.Email, "@"); ok {
		candidate = usernameInvalidChars.ReplaceAllString(local, "_")
	}
	if len(candidate) < 3 {
		candidate = "user_" + uidPart
	}
	if len(candidate) > 30 {
		candidate = candidate[:30]
	}

	taken, err := s.userRepo.FindByUsername(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("failed to check username: %w", err)
	}
	if taken == nil {
		return candidate, nil
	}

	suffix := "_" + uidPart
	if len(candidate)+len(suffix) > 30 {
		candidate = candidate[:30-len(suffix)]
	}
	return candidate + suffix, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
