package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/closetiq/internal/model"
)

const outfitColumns = `id, user_id, name, description, item_ids, occasion, season, tags, is_public,
	rating, times_worn, created_at, updated_at`

// PostgresOutfitRepo はPostgreSQLを使用したコーディネートリポジトリ。
type PostgresOutfitRepo struct {
	db *sql.DB
}

// NewPostgresOutfitRepo はPostgresOutfitRepoを生成する。
func NewPostgresOutfitRepo(db *sql.DB) *PostgresOutfitRepo {
	return &PostgresOutfitRepo{db: db}
}

func scanOutfit(row rowScanner) (*model.Outfit, error) {
	o := &model.Outfit{}
	var items, tags pq.StringArray
	err := row.Scan(
		&o.ID, &o.UserID, &o.Name, &o.Description, &items, &o.Occasion, &o.Season, &tags, &o.IsPublic,
		&o.Rating, &o.TimesWorn, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ItemIDs = nonNil(items)
	o.Tags = nonNil(tags)
	return o, nil
}

// returningOne はUPDATE ... RETURNINGの結果を1件読む。該当行がなければnilを返す。
func (r *PostgresOutfitRepo) returningOne(ctx context.Context, op, query string, args ...any) (*model.Outfit, error) {
	o, err := scanOutfit(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return o, nil
}

// Create はコーディネートを作成する。
func (r *PostgresOutfitRepo) Create(ctx context.Context, o *model.Outfit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outfits (`+outfitColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.UserID, o.Name, o.Description, pq.Array(o.ItemIDs), o.Occasion, o.Season, pq.Array(nonNil(o.Tags)), o.IsPublic,
		o.Rating, o.TimesWorn, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outfit: %w", err)
	}
	return nil
}

// FindOwned は所有者のコーディネートを取得する。見つからない場合はnilを返す。
func (r *PostgresOutfitRepo) FindOwned(ctx context.Context, id, userID string) (*model.Outfit, error) {
	return r.returningOne(ctx, "find outfit",
		`SELECT `+outfitColumns+` FROM outfits WHERE id = $1 AND user_id = $2`, id, userID)
}

// FindAccessible は所有または公開のコーディネートを取得する。
func (r *PostgresOutfitRepo) FindAccessible(ctx context.Context, id, userID string) (*model.Outfit, error) {
	return r.returningOne(ctx, "find accessible outfit",
		`SELECT `+outfitColumns+` FROM outfits WHERE id = $1 AND (user_id = $2 OR is_public)`, id, userID)
}

// List はユーザーのコーディネート一覧を新しい順で返す。
func (r *PostgresOutfitRepo) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.Outfit, int, error) {
	total, err := r.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outfitColumns+` FROM outfits WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list outfits: %w", err)
	}
	defer rows.Close()

	outfits := []*model.Outfit{}
	for rows.Next() {
		o, err := scanOutfit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan outfit: %w", err)
		}
		outfits = append(outfits, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate outfits: %w", err)
	}
	return outfits, total, nil
}

// Update は名前・説明・アイテム・シーン・季節・タグ・公開フラグを更新する。
func (r *PostgresOutfitRepo) Update(ctx context.Context, o *model.Outfit) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outfits SET name = $3, description = $4, item_ids = $5, occasion = $6, season = $7,
		 tags = $8, is_public = $9, updated_at = $10
		 WHERE id = $1 AND user_id = $2`,
		o.ID, o.UserID, o.Name, o.Description, pq.Array(o.ItemIDs), o.Occasion, o.Season,
		pq.Array(nonNil(o.Tags)), o.IsPublic, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update outfit: %w", err)
	}
	return nil
}

// Delete は所有者のコーディネートを削除する。削除できた場合はtrueを返す。
func (r *PostgresOutfitRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM outfits WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete outfit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SetRating は評価を保存する。所有者でない場合はnilを返す。
func (r *PostgresOutfitRepo) SetRating(ctx context.Context, id, userID string, rating float64) (*model.Outfit, error) {
	return r.returningOne(ctx, "rate outfit",
		`UPDATE outfits SET rating = $3, updated_at = now() WHERE id = $1 AND user_id = $2 RETURNING `+outfitColumns,
		id, userID, rating)
}

// SetPublic は公開フラグを立てる。所有者でない場合はnilを返す。
func (r *PostgresOutfitRepo) SetPublic(ctx context.Context, id, userID string) (*model.Outfit, error) {
	return r.returningOne(ctx, "share outfit",
		`UPDATE outfits SET is_public = true, updated_at = now() WHERE id = $1 AND user_id = $2 RETURNING `+outfitColumns,
		id, userID)
}

// IncrementWorn は着用回数を1増やす。所有者でない場合はnilを返す。
func (r *PostgresOutfitRepo) IncrementWorn(ctx context.Context, id, userID string) (*model.Outfit, error) {
	return r.returningOne(ctx, "record outfit wear",
		`UPDATE outfits SET times_worn = times_worn + 1, updated_at = now() WHERE id = $1 AND user_id = $2 RETURNING `+outfitColumns,
		id, userID)
}

// CountByUser はユーザーのコーディネート数を返す。
func (r *PostgresOutfitRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM outfits WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outfits: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ OutfitRepository = (*PostgresOutfitRepo)(nil)
