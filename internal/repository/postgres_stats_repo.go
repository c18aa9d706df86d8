package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStatsRepo はPostgreSQLを使用した集計リポジトリ。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// Ping はデータベース接続を確認する。
func (r *PostgresStatsRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// UserCounts はユーザー所有データの件数を返す。
func (r *PostgresStatsRepo) UserCounts(ctx context.Context, userID string) (UserDataCounts, error) {
	var c UserDataCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT
		     (SELECT count(*) FROM wardrobes WHERE user_id = $1),
		     (SELECT count(*) FROM clothing_items WHERE user_id = $1),
		     (SELECT count(*) FROM outfits WHERE user_id = $1),
		     (SELECT count(*) FROM chat_sessions WHERE user_id = $1),
		     (SELECT count(*) FROM outfit_recommendations WHERE user_id = $1)`,
		userID,
	).Scan(&c.Wardrobes, &c.ClothingItems, &c.Outfits, &c.ChatSessions, &c.Recommendations)
	if err != nil {
		return UserDataCounts{}, fmt.Errorf("failed to count user data: %w", err)
	}
	return c, nil
}

// latestQueries は各コレクションの最新1件を取得するクエリ。
var latestQueries = []struct {
	kind  string
	query string
}{
	{"wardrobe", `SELECT id, name, '', created_at FROM wardrobes WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`},
	{"item", `SELECT id, name, category, created_at FROM clothing_items WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`},
	{"outfit", `SELECT id, name, occasion, created_at FROM outfits WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`},
	{"chat", `SELECT id, title, session_type, last_message_at FROM chat_sessions WHERE user_id = $1 ORDER BY last_message_at DESC LIMIT 1`},
}

// Latest は各コレクションの最新レコードを返す。
func (r *PostgresStatsRepo) Latest(ctx context.Context, userID string) (LatestActivity, error) {
	var la LatestActivity
	targets := map[string]**ActivityEntry{
		"wardrobe": &la.LatestWardrobe,
		"item":     &la.LatestItem,
		"outfit":   &la.LatestOutfit,
		"chat":     &la.LatestChat,
	}

	for _, q := range latestQueries {
		e := &ActivityEntry{}
		err := r.db.QueryRowContext(ctx, q.query, userID).Scan(&e.ID, &e.Name, &e.Kind, &e.At)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return LatestActivity{}, fmt.Errorf("failed to find latest %s: %w", q.kind, err)
		}
		*targets[q.kind] = e
	}
	return la, nil
}

// OccasionCounts はシーン別コーディネート件数を多い順に返す。
func (r *PostgresStatsRepo) OccasionCounts(ctx context.Context, userID string) ([]OccasionCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT occasion, count(*) FROM outfits WHERE user_id = $1
		 GROUP BY occasion ORDER BY count(*) DESC, occasion`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count occasions: %w", err)
	}
	defer rows.Close()

	counts := []OccasionCount{}
	for rows.Next() {
		var c OccasionCount
		if err := rows.Scan(&c.Occasion, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan occasion count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// MonthlyActivity は直近months か月のアイテム追加数を新しい月から返す。
func (r *PostgresStatsRepo) MonthlyActivity(ctx context.Context, userID string, months int) ([]MonthlyActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT EXTRACT(YEAR FROM created_at)::int AS y, EXTRACT(MONTH FROM created_at)::int AS m, count(*)
		 FROM clothing_items WHERE user_id = $1
		 GROUP BY y, m ORDER BY y DESC, m DESC LIMIT $2`,
		userID, months,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly activity: %w", err)
	}
	defer rows.Close()

	activity := []MonthlyActivity{}
	for rows.Next() {
		var a MonthlyActivity
		if err := rows.Scan(&a.Year, &a.Month, &a.ItemsAdded); err != nil {
			return nil, fmt.Errorf("failed to scan monthly activity: %w", err)
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}

// TableStats はテーブルごとの全体行数を返す。
func (r *PostgresStatsRepo) TableStats(ctx context.Context) (TableStats, error) {
	var s TableStats
	err := r.db.QueryRowContext(ctx,
		`SELECT
		     (SELECT count(*) FROM users),
		     (SELECT count(*) FROM wardrobes),
		     (SELECT count(*) FROM clothing_items),
		     (SELECT count(*) FROM outfits),
		     (SELECT count(*) FROM chat_sessions)`,
	).Scan(&s.Users, &s.Wardrobes, &s.ClothingItems, &s.Outfits, &s.ChatSessions)
	if err != nil {
		return TableStats{}, fmt.Errorf("failed to collect table stats: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
