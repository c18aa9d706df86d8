package model

import "time"

// User はサービス利用ユーザーを表す。
// 外部IdP（Firebase）のUIDと1対1で紐付く。
type User struct {
	ID              string       `json:"id"`
	FirebaseUID     string       `json:"firebaseUid,omitempty"`
	Email           string       `json:"email"`
	Username        string       `json:"username"`
	DisplayName     string       `json:"displayName,omitempty"`
	PhotoURL        string       `json:"photoURL,omitempty"`
	IsEmailVerified bool         `json:"isEmailVerified"`
	AuthProvider    string       `json:"authProvider"`
	Profile         Profile      `json:"profile"`
	Preferences     Preferences  `json:"preferences"`
	Subscription    Subscription `json:"subscription"`
	Settings        UserSettings `json:"settings"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	LastLogin       time.Time    `json:"lastLogin"`
	IsActive        bool         `json:"isActive"`
}

// 認証プロバイダ
const (
	AuthProviderFirebase = "firebase"
	AuthProviderGoogle   = "google"
)

// Profile はユーザーの体型・スタイル等のプロフィール情報。
type Profile struct {
	Age              *int     `json:"age,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	StylePreferences []string `json:"stylePreferences"`
	BodyType         string   `json:"bodyType,omitempty"`
	Location         string   `json:"location,omitempty"`
	ProfilePicture   string   `json:"profilePicture,omitempty"`
	Bio              string   `json:"bio,omitempty"`
}

// OccasionPreferences はシーン別の好みフラグ。
type OccasionPreferences struct {
	Work   bool `json:"work"`
	Casual bool `json:"casual"`
	Formal bool `json:"formal"`
	Party  bool `json:"party"`
	Sport  bool `json:"sport"`
}

// Preferences は色やスタイルの好み。
type Preferences struct {
	FavoriteColors      []string            `json:"favoriteColors"`
	DislikedColors      []string            `json:"dislikedColors"`
	StylePersonality    string              `json:"stylePersonality,omitempty"`
	OccasionPreferences OccasionPreferences `json:"occasionPreferences"`
}

// Subscription は課金プラン情報。
type Subscription struct {
	Plan      string     `json:"plan"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// 課金プラン
const (
	PlanFree    = "free"
	PlanPremium = "premium"
	PlanPro     = "pro"
)

// UserSettings は通知・表示設定。
type UserSettings struct {
	EmailNotifications bool   `json:"emailNotifications"`
	PushNotifications  bool   `json:"pushNotifications"`
	Theme              string `json:"theme"`
	Language           string `json:"language"`
}

// NewUser は既定値を設定したUserを生成する。
// シーンの好みはcasualのみ有効、プランはfreeで作成される。
func NewUser(id, firebaseUID, email, username string, now time.Time) *User {
	return &User{
		ID:           id,
		FirebaseUID:  firebaseUID,
		Email:        email,
		Username:     username,
		AuthProvider: AuthProviderFirebase,
		Profile: Profile{
			StylePreferences: []string{},
		},
		Preferences: Preferences{
			FavoriteColors:      []string{},
			DislikedColors:      []string{},
			OccasionPreferences: OccasionPreferences{Casual: true},
		},
		Subscription: Subscription{Plan: PlanFree},
		Settings: UserSettings{
			EmailNotifications: true,
			PushNotifications:  true,
			Theme:              "auto",
			Language:           "en",
		},
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
		IsActive:  true,
	}
}
