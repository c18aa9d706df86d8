package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/closetiq/internal/model"
)

const recommendationColumns = `id, user_id, occasion, season, weather_context, item_ids, compatibility_score,
	ai_reasoning, recommendation_source, user_feedback, metadata, expires_at, created_at`

// PostgresRecommendationRepo はPostgreSQLを使用したおすすめリポジトリ。
type PostgresRecommendationRepo struct {
	db *sql.DB
}

// NewPostgresRecommendationRepo はPostgresRecommendationRepoを生成する。
func NewPostgresRecommendationRepo(db *sql.DB) *PostgresRecommendationRepo {
	return &PostgresRecommendationRepo{db: db}
}

func scanRecommendation(row rowScanner) (*model.OutfitRecommendation, error) {
	rec := &model.OutfitRecommendation{}
	var weather, feedback, meta []byte
	var items pq.StringArray
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Occasion, &rec.Season, &weather, &items, &rec.CompatibilityScore,
		&rec.AIReasoning, &rec.RecommendationSource, &feedback, &meta, &rec.ExpiresAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ItemIDs = nonNil(items)
	if len(weather) > 0 {
		rec.WeatherContext = &model.WeatherContext{}
		if err := fromJSONB(weather, rec.WeatherContext); err != nil {
			return nil, err
		}
	}
	if len(feedback) > 0 {
		rec.UserFeedback = &model.RecommendationFeedback{}
		if err := fromJSONB(feedback, rec.UserFeedback); err != nil {
			return nil, err
		}
	}
	if err := fromJSONB(meta, &rec.Metadata); err != nil {
		return nil, err
	}
	return rec, nil
}

// nullableJSONB はnilポインタをSQLのNULLとしてエンコードする。
func nullableJSONB[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toJSONB(v)
}

// CreateBatch はおすすめを1トランザクションでまとめて保存する。
func (r *PostgresRecommendationRepo) CreateBatch(ctx context.Context, recs []*model.OutfitRecommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outfit_recommendations (`+recommendationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("failed to prepare recommendation insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		weather, err := nullableJSONB(rec.WeatherContext)
		if err != nil {
			return err
		}
		feedback, err := nullableJSONB(rec.UserFeedback)
		if err != nil {
			return err
		}
		meta, err := toJSONB(rec.Metadata)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			rec.ID, rec.UserID, rec.Occasion, rec.Season, weather, pq.Array(nonNil(rec.ItemIDs)), rec.CompatibilityScore,
			rec.AIReasoning, rec.RecommendationSource, feedback, meta, rec.ExpiresAt, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListActive は期限内のおすすめを新しい順で返す。
func (r *PostgresRecommendationRepo) ListActive(ctx context.Context, userID string, now time.Time, page model.PageRequest) ([]*model.OutfitRecommendation, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM outfit_recommendations WHERE user_id = $1 AND expires_at > $2`,
		userID, now,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count recommendations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recommendationColumns+` FROM outfit_recommendations
		 WHERE user_id = $1 AND expires_at > $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		userID, now, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	recs := []*model.OutfitRecommendation{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate recommendations: %w", err)
	}
	return recs, total, nil
}

// UpdateFeedback はフィードバックを保存する。所有者でない場合はnilを返す。
func (r *PostgresRecommendationRepo) UpdateFeedback(ctx context.Context, id, userID string, fb model.RecommendationFeedback) (*model.OutfitRecommendation, error) {
	b, err := toJSONB(fb)
	if err != nil {
		return nil, err
	}
	rec, err := scanRecommendation(r.db.QueryRowContext(ctx,
		`UPDATE outfit_recommendations SET user_feedback = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+recommendationColumns,
		id, userID, b,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendation feedback: %w", err)
	}
	return rec, nil
}

// compile-time interface check
var _ RecommendationRepository = (*PostgresRecommendationRepo)(nil)
