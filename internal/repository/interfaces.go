// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/closetiq/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByFirebaseUID は外部IdPのUIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// 一意制約違反の場合はmodel.APIError（DUPLICATE）を返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーの可変フィールドを上書きする。
	Update(ctx context.Context, user *model.User) error

	// TouchLastLogin は最終ログイン日時を更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// Deactivate はユーザーを無効化する。レコードは削除しない。
	Deactivate(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有するワードローブ、アイテム、コーディネート、チャットはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// WardrobeRepository はワードローブの永続化インターフェース。
// 所有者スコープの操作は (id, user_id) の両方で絞り込み、他ユーザーのものはnilとして扱う。
type WardrobeRepository interface {
	// Create はワードローブを作成する。
	Create(ctx context.Context, w *model.Wardrobe) error

	// CountByUser はユーザーのワードローブ数を返す。
	CountByUser(ctx context.Context, userID string) (int, error)

	// FindOwned は所有者のワードローブを取得する。見つからない場合はnilを返す。
	FindOwned(ctx context.Context, id, userID string) (*model.Wardrobe, error)

	// FindAccessible は所有・公開・共有のいずれかで閲覧可能なワードローブを取得する。
	FindAccessible(ctx context.Context, id, userID string) (*model.Wardrobe, error)

	// ListByUser はユーザーのワードローブ一覧をデフォルト優先・新しい順で返す。
	ListByUser(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, int, error)

	// ListShared は他ユーザーの公開または自分に共有されたワードローブ一覧を返す。
	ListShared(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, int, error)

	// Update は名前・説明・公開範囲・タグ・デフォルトフラグを更新する。
	Update(ctx context.Context, w *model.Wardrobe) error

	// ClearDefault は指定ワードローブ以外のデフォルトフラグを外す。
	ClearDefault(ctx context.Context, userID, exceptID string) error

	// Delete は所有者のワードローブを削除する。削除できた場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// AddItem はアイテムIDを末尾に追加する。
	AddItem(ctx context.Context, wardrobeID, itemID string) error

	// RemoveItem はアイテムIDを取り除く。
	RemoveItem(ctx context.Context, wardrobeID, itemID string) error

	// AddSharedUser は共有先ユーザーを重複なく追加し、公開範囲をsharedにする。
	// 所有者でない場合はnilを返す。
	AddSharedUser(ctx context.Context, id, userID, targetUserID string) (*model.Wardrobe, error)
}

// ClothingBulkUpdate は一括更新で変更可能なフィールド。nilは変更しない。
type ClothingBulkUpdate struct {
	Category   *string
	Brand      *string
	Color      *string
	IsFavorite *bool
	UserTags   []string
}

// CategoryCount はカテゴリ別の件数。
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// ClothingRepository は衣類アイテムの永続化インターフェース。
type ClothingRepository interface {
	// Create はアイテムを作成する。
	Create(ctx context.Context, item *model.ClothingItem) error

	// FindOwned は所有者のアイテムを取得する。見つからない場合はnilを返す。
	FindOwned(ctx context.Context, id, userID string) (*model.ClothingItem, error)

	// FindOwnedByIDs は指定IDのうち所有者のものだけを返す。他ユーザーのIDは黙って除外される。
	FindOwnedByIDs(ctx context.Context, userID string, ids []string) ([]*model.ClothingItem, error)

	// FindByIDs は所有者を問わず指定IDのアイテムを返す。共有ワードローブの表示に使う。
	FindByIDs(ctx context.Context, ids []string) ([]*model.ClothingItem, error)

	// List はユーザーのアイテム一覧と総件数を返す。
	List(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, int, error)

	// ListByCategory は同カテゴリのアイテムを返す（excludeIDは除外）。
	ListByCategory(ctx context.Context, userID, category, excludeID string, limit int) ([]*model.ClothingItem, error)

	// Update はアイテムのフィールドを上書きする。
	Update(ctx context.Context, item *model.ClothingItem) error

	// Delete は所有者のアイテムを削除する。削除できた場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// CountOwned は指定IDのうち所有者のものの件数を返す。
	CountOwned(ctx context.Context, userID string, ids []string) (int, error)

	// BulkUpdate は所有者のアイテムを一括更新し、更新件数を返す。
	BulkUpdate(ctx context.Context, userID string, ids []string, u ClothingBulkUpdate) (int64, error)

	// RecordWear は着用回数を1増やし最終着用日時を記録する。
	RecordWear(ctx context.Context, id, userID string, at time.Time) (*model.ClothingItem, error)

	// ListImageKeysByWardrobe はワードローブ内アイテムの画像キーを返す。
	ListImageKeysByWardrobe(ctx context.Context, wardrobeID string) ([]string, error)

	// CountByUser はユーザーのアイテム数を返す。
	CountByUser(ctx context.Context, userID string) (int, error)

	// CategoryCounts はカテゴリ別件数を多い順に返す。
	CategoryCounts(ctx context.Context, userID string) ([]CategoryCount, error)
}

// OutfitRepository はコーディネートの永続化インターフェース。
type OutfitRepository interface {
	// Create はコーディネートを作成する。
	Create(ctx context.Context, o *model.Outfit) error

	// FindOwned は所有者のコーディネートを取得する。見つからない場合はnilを返す。
	FindOwned(ctx context.Context, id, userID string) (*model.Outfit, error)

	// FindAccessible は所有または公開のコーディネートを取得する。
	FindAccessible(ctx context.Context, id, userID string) (*model.Outfit, error)

	// List はユーザーのコーディネート一覧を新しい順で返す。
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.Outfit, int, error)

	// Update は名前・アイテム・シーン・タグ・公開フラグを更新する。
	Update(ctx context.Context, o *model.Outfit) error

	// Delete は所有者のコーディネートを削除する。削除できた場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// SetRating は評価を保存する。所有者でない場合はnilを返す。
	SetRating(ctx context.Context, id, userID string, rating float64) (*model.Outfit, error)

	// SetPublic は公開フラグを立てる。所有者でない場合はnilを返す。
	SetPublic(ctx context.Context, id, userID string) (*model.Outfit, error)

	// IncrementWorn は着用回数を1増やす。所有者でない場合はnilを返す。
	IncrementWorn(ctx context.Context, id, userID string) (*model.Outfit, error)

	// CountByUser はユーザーのコーディネート数を返す。
	CountByUser(ctx context.Context, userID string) (int, error)
}

// RecommendationRepository はAI生成のおすすめの永続化インターフェース。
type RecommendationRepository interface {
	// CreateBatch はおすすめをまとめて保存する。
	CreateBatch(ctx context.Context, recs []*model.OutfitRecommendation) error

	// ListActive は期限内のおすすめを新しい順で返す。
	ListActive(ctx context.Context, userID string, now time.Time, page model.PageRequest) ([]*model.OutfitRecommendation, int, error)

	// UpdateFeedback はフィードバックを保存する。所有者でない場合はnilを返す。
	UpdateFeedback(ctx context.Context, id, userID string, fb model.RecommendationFeedback) (*model.OutfitRecommendation, error)
}

// ChatRepository はチャットセッションの永続化インターフェース。
type ChatRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, s *model.ChatSession) error

	// FindOwned は所有者のセッションを取得する。見つからない場合はnilを返す。
	FindOwned(ctx context.Context, id, userID string) (*model.ChatSession, error)

	// List はセッション一覧を最終メッセージの新しい順で返す。メッセージ本文は含めない。
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.ChatSession, int, error)

	// AppendMessages はメッセージを末尾に追加しlast_message_atを更新する。
	// 所有者でない場合はnilを返す。
	AppendMessages(ctx context.Context, id, userID string, msgs []model.ChatMessage, at time.Time) (*model.ChatSession, error)

	// Delete は所有者のセッションを削除する。削除できた場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)
}

// UserDataCounts はユーザー所有データの件数。
type UserDataCounts struct {
	Wardrobes       int `json:"wardrobes"`
	ClothingItems   int `json:"clothing_items"`
	Outfits         int `json:"outfits"`
	ChatSessions    int `json:"chat_sessions"`
	Recommendations int `json:"recommendations"`
}

// LatestActivity は各コレクションの最新レコードの要約。存在しない場合はnil。
type LatestActivity struct {
	LatestWardrobe *ActivityEntry `json:"latest_wardrobe"`
	LatestItem     *ActivityEntry `json:"latest_item"`
	LatestOutfit   *ActivityEntry `json:"latest_outfit"`
	LatestChat     *ActivityEntry `json:"latest_chat"`
}

// ActivityEntry は最新レコードの要約。
type ActivityEntry struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Kind string    `json:"kind,omitempty"` // カテゴリ・シーン・セッション種別
	At   time.Time `json:"at"`
}

// OccasionCount はシーン別のコーディネート件数。
type OccasionCount struct {
	Occasion string `json:"occasion"`
	Count    int    `json:"count"`
}

// MonthlyActivity は月ごとのアイテム追加数。
type MonthlyActivity struct {
	Year       int `json:"year"`
	Month      int `json:"month"`
	ItemsAdded int `json:"items_added"`
}

// TableStats はデータベース全体の行数。
type TableStats struct {
	Users         int `json:"users"`
	Wardrobes     int `json:"wardrobes"`
	ClothingItems int `json:"clothing_items"`
	Outfits       int `json:"outfits"`
	ChatSessions  int `json:"chat_sessions"`
}

// StatsRepository は集計クエリのインターフェース。
type StatsRepository interface {
	// Ping はデータベース接続を確認する。
	Ping(ctx context.Context) error

	// UserCounts はユーザー所有データの件数を返す。
	UserCounts(ctx context.Context, userID string) (UserDataCounts, error)

	// Latest は各コレクションの最新レコードを返す。
	Latest(ctx context.Context, userID string) (LatestActivity, error)

	// OccasionCounts はシーン別コーディネート件数を多い順に返す。
	OccasionCounts(ctx context.Context, userID string) ([]OccasionCount, error)

	// MonthlyActivity は直近months か月のアイテム追加数を新しい月から返す。
	MonthlyActivity(ctx context.Context, userID string, months int) ([]MonthlyActivity, error)

	// TableStats はテーブルごとの全体行数を返す。
	TableStats(ctx context.Context) (TableStats, error)
}
