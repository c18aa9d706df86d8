// Package userdata はユーザー所有データの概要・集計・エクスポートとDB状態の確認を提供する。
package userdata

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/closetiq/internal/model"
	"github.com/hitoshi/closetiq/internal/repository"
)

// FormatVersion はエクスポート形式のバージョン。
const FormatVersion = "1.0"

// activityMonths は月別集計の対象月数。
const activityMonths = 12

// exportPageSize はエクスポート時に1回で読み込む件数。
const exportPageSize = 100

// Overview は所有データの件数と最新レコード。
type Overview struct {
	UserData       repository.UserDataCounts `json:"user_data"`
	RecentActivity repository.LatestActivity `json:"recent_activity"`
}

// DetailedStats はカテゴリ・シーン・月別の集計。
type DetailedStats struct {
	CategoryBreakdown []repository.CategoryCount   `json:"category_breakdown"`
	OccasionBreakdown []repository.OccasionCount   `json:"occasion_breakdown"`
	MonthlyActivity   []repository.MonthlyActivity `json:"monthly_activity"`
}

// Export はユーザーが所有する全データ。
type Export struct {
	User          *model.User           `json:"user"`
	Wardrobes     []*model.Wardrobe     `json:"wardrobes"`
	ClothingItems []*model.ClothingItem `json:"clothing_items"`
	Outfits       []*model.Outfit       `json:"outfits"`
	ChatSessions  []*model.ChatSession  `json:"chat_sessions"`
}

// Health はデータベースの状態。
type Health struct {
	Connected      bool                   `json:"connected"`
	Status         string                 `json:"status"`
	ResponseTimeMs int64                  `json:"response_time_ms"`
	Stats          *repository.TableStats `json:"stats,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// Service はユーザーデータ集計のサービス層。
type Service struct {
	stats     repository.StatsRepository
	users     repository.UserRepository
	wardrobes repository.WardrobeRepository
	clothing  repository.ClothingRepository
	outfits   repository.OutfitRepository
	chats     repository.ChatRepository
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	stats repository.StatsRepository,
	users repository.UserRepository,
	wardrobes repository.WardrobeRepository,
	clothing repository.ClothingRepository,
	outfits repository.OutfitRepository,
	chats repository.ChatRepository,
) *Service {
	return &Service{
		stats:     stats,
		users:     users,
		wardrobes: wardrobes,
		clothing:  clothing,
		outfits:   outfits,
		chats:     chats,
		now:       time.Now,
	}
}

// Overview は所有データの件数と各コレクションの最新レコードを返す。
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	counts, err := s.stats.UserCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := s.stats.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Overview{UserData: counts, RecentActivity: latest}, nil
}

// DetailedStats はカテゴリ別・シーン別件数と直近12か月の追加数を返す。
func (s *Service) DetailedStats(ctx context.Context, userID string) (*DetailedStats, error) {
	categories, err := s.clothing.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	occasions, err := s.stats.OccasionCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	monthly, err := s.stats.MonthlyActivity(ctx, userID, activityMonths)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []repository.CategoryCount{}
	}
	if occasions == nil {
		occasions = []repository.OccasionCount{}
	}
	return &DetailedStats{
		CategoryBreakdown: categories,
		OccasionBreakdown: occasions,
		MonthlyActivity:   monthly,
	}, nil
}

// Export は所有データをすべて読み込む。チャットはメッセージ本文を含む。
func (s *Service) Export(ctx context.Context, userID string) (*Export, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	wardrobes, err := collect(func(p model.PageRequest) ([]*model.Wardrobe, int, error) {
		return s.wardrobes.ListByUser(ctx, userID, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export wardrobes: %w", err)
	}
	items, err := collect(func(p model.PageRequest) ([]*model.ClothingItem, int, error) {
		return s.clothing.List(ctx, userID, model.ClothingFilter{}, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export clothing items: %w", err)
	}
	outfits, err := collect(func(p model.PageRequest) ([]*model.Outfit, int, error) {
		return s.outfits.List(ctx, userID, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export outfits: %w", err)
	}
	summaries, err := collect(func(p model.PageRequest) ([]*model.ChatSession, int, error) {
		return s.chats.List(ctx, userID, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export chat sessions: %w", err)
	}

	sessions := make([]*model.ChatSession, 0, len(summaries))
	for _, sum := range summaries {
		full, err := s.chats.FindOwned(ctx, sum.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to export chat session %s: %w", sum.ID, err)
		}
		if full != nil {
			sessions = append(sessions, full)
		}
	}

	return &Export{
		User:          user,
		Wardrobes:     wardrobes,
		ClothingItems: items,
		Outfits:       outfits,
		ChatSessions:  sessions,
	}, nil
}

// collect はページを順に読み、全件を返す。
func collect[T any](list func(model.PageRequest) ([]T, int, error)) ([]T, error) {
	out := []T{}
	for page := 1; ; page++ {
		batch, total, err := list(model.PageRequest{Page: page, Limit: exportPageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < exportPageSize || len(out) >= total {
			return out, nil
		}
	}
}

// Health はデータベースへの疎通と全体の行数を返す。
// 疎通できない場合もエラーにはせず、Statusにunhealthyを設定する。
func (s *Service) Health(ctx context.Context) *Health {
	start := s.now()
	if err := s.stats.Ping(ctx); err != nil {
		return &Health{Status: "unhealthy", Error: err.Error()}
	}
	h := &Health{
		Connected:      true,
		Status:         "healthy",
		ResponseTimeMs: s.now().Sub(start).Milliseconds(),
	}
	stats, err := s.stats.TableStats(ctx)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.Stats = &stats
	return h
}
