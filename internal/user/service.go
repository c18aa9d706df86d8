// Package user はプロフィール・設定・統計などユーザー自身の情報管理を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
	"github.com/hitoshi/closetiq/internal/security"
	"github.com/hitoshi/closetiq/internal/storage"
)

// MaxPictureBytes はプロフィール画像の上限サイズ。
const MaxPictureBytes = 5 << 20

// Picture はアップロードされたプロフィール画像。
type Picture struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
// firebase_uid、メールアドレス、作成日時などの不変フィールドは受け付けない。
type ProfileUpdate struct {
	Username    *string
	DisplayName *string
	PhotoURL    *string
	Profile     *ProfileFields
	Preferences *model.Preferences
}

// ProfileFields はプロフィールのうちユーザーが編集できる項目。
type ProfileFields struct {
	Age              *int
	Gender           *string
	StylePreferences []string
	BodyType         *string
	Location         *string
	Bio              *string
}

// Notifications は通知設定。
type Notifications struct {
	Email           bool `json:"email"`
	Push            bool `json:"push"`
	Recommendations bool `json:"recommendations"`
}

// Privacy は公開設定。
type Privacy struct {
	ProfileVisibility string `json:"profileVisibility"`
	DataSharing       bool   `json:"dataSharing"`
}

// Settings は設定画面に返す内容。
type Settings struct {
	Preferences   model.Preferences  `json:"preferences"`
	Subscription  model.Subscription `json:"subscription"`
	Notifications Notifications      `json:"notifications"`
	Privacy       Privacy            `json:"privacy"`
	Theme         string             `json:"theme"`
	Language      string             `json:"language"`
}

// SettingsUpdate は設定更新の入力。nilのフィールドは変更しない。
type SettingsUpdate struct {
	Preferences   *model.Preferences
	Notifications *Notifications
	Theme         *string
	Language      *string
}

// Stats はユーザーの利用統計。
type Stats struct {
	TotalWardrobes int            `json:"totalWardrobes"`
	TotalItems     int            `json:"totalItems"`
	CategoryStats  map[string]int `json:"categoryStats"`
	AccountAge     int            `json:"accountAge"` // 日数
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo     repository.UserRepository
	wardrobeRepo repository.WardrobeRepository
	clothingRepo repository.ClothingRepository
	images       storage.ImageStore
	sanitizer    *security.TextSanitizer
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	wardrobeRepo repository.WardrobeRepository,
	clothingRepo repository.ClothingRepository,
	images storage.ImageStore,
) *Service {
	return &Service{
		userRepo:     userRepo,
		wardrobeRepo: wardrobeRepo,
		clothingRepo: clothingRepo,
		images:       images,
		sanitizer:    security.NewTextSanitizer(),
		now:          time.Now,
	}
}

// Profile はユーザーを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}
	return user, nil
}

// UpdateProfile はプロフィールを更新する。
// ユーザー名の重複はリポジトリがDUPLICATEとして返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	setString(&user.Username, in.Username)
	setString(&user.DisplayName, in.DisplayName)
	setString(&user.PhotoURL, in.PhotoURL)
	if p := in.Profile; p != nil {
		if p.Age != nil {
			user.Profile.Age = p.Age
		}
		setString(&user.Profile.Gender, p.Gender)
		setString(&user.Profile.BodyType, p.BodyType)
		setString(&user.Profile.Location, p.Location)
		if p.Bio != nil {
			user.Profile.Bio = s.sanitizer.Sanitize(*p.Bio)
		}
		if p.StylePreferences != nil {
			user.Profile.StylePreferences = p.StylePreferences
		}
	}
	if in.Preferences != nil {
		user.Preferences = normalizePreferences(*in.Preferences)
	}
	now := s.now().UTC()
	user.LastLogin = now
	user.UpdatedAt = now

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Deactivate はアカウントを無効化する。データは削除しない。
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.Deactivate(ctx, userID, s.now().UTC()); err != nil {
		return err
	}
	slog.Info("account deactivated", slog.String("user_id", userID))
	return nil
}

// UploadPicture はプロフィール画像を保存し、URLをプロフィールに記録する。
// 以前の画像は削除しない。
func (s *Service) UploadPicture(ctx context.Context, userID string, pic Picture) (*model.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.images.Put(ctx, storage.ProfileKey(userID, pic.Filename), pic.ContentType, pic.Data)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, model.NewBadRequestError("Image storage is not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upload profile picture: %w", err)
	}

	now := s.now().UTC()
	user.Profile.ProfilePicture = url
	user.LastLogin = now
	user.UpdatedAt = now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Settings はユーザー設定を返す。
func (s *Service) Settings(ctx context.Context, userID string) (*Settings, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return settingsOf(user), nil
}

// UpdateSettings はユーザー設定を更新する。
func (s *Service) UpdateSettings(ctx context.Context, userID string, in SettingsUpdate) (*Settings, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Preferences != nil {
		user.Preferences = normalizePreferences(*in.Preferences)
	}
	if n := in.Notifications; n != nil {
		user.Settings.EmailNotifications = n.Email
		user.Settings.PushNotifications = n.Push
	}
	setString(&user.Settings.Theme, in.Theme)
	setString(&user.Settings.Language, in.Language)
	user.UpdatedAt = s.now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return settingsOf(user), nil
}

func settingsOf(u *model.User) *Settings {
	return &Settings{
		Preferences:  u.Preferences,
		Subscription: u.Subscription,
		Notifications: Notifications{
			Email:           u.Settings.EmailNotifications,
			Push:            u.Settings.PushNotifications,
			Recommendations: true,
		},
		Privacy: Privacy{
			ProfileVisibility: "public",
			DataSharing:       false,
		},
		Theme:    u.Settings.Theme,
		Language: u.Settings.Language,
	}
}

// Stats はワードローブ数、アイテム数、カテゴリ別件数、登録からの日数を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	wardrobes, err := s.wardrobeRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count wardrobes: %w", err)
	}
	items, err := s.clothingRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count clothing items: %w", err)
	}
	counts, err := s.clothingRepo.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}

	categories := make(map[string]int, len(counts))
	for _, c := range counts {
		categories[c.Category] = c.Count
	}
	return &Stats{
		TotalWardrobes: wardrobes,
		TotalItems:     items,
		CategoryStats:  categories,
		AccountAge:     int(s.now().Sub(user.CreatedAt).Hours() / 24),
	}, nil
}

func normalizePreferences(p model.Preferences) model.Preferences {
	if p.FavoriteColors == nil {
		p.FavoriteColors = []string{}
	}
	if p.DislikedColors == nil {
		p.DislikedColors = []string{}
	}
	return p
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
