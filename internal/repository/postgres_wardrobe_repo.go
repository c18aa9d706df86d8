package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/closetiq/internal/model"
)

const wardrobeColumns = `w.id, w.user_id, w.name, w.description, w.item_ids, w.is_default,
	w.visibility, w.shared_with, w.tags, w.created_at, w.updated_at`

// PostgresWardrobeRepo はPostgreSQLを使用したワードローブリポジトリ。
type PostgresWardrobeRepo struct {
	db *sql.DB
}

// NewPostgresWardrobeRepo はPostgresWardrobeRepoを生成する。
func NewPostgresWardrobeRepo(db *sql.DB) *PostgresWardrobeRepo {
	return &PostgresWardrobeRepo{db: db}
}

func scanWardrobe(row rowScanner, extra ...any) (*model.Wardrobe, error) {
	w := &model.Wardrobe{}
	var items, shared, tags pq.StringArray
	dest := []any{
		&w.ID, &w.UserID, &w.Name, &w.Description, &items, &w.IsDefault,
		&w.Visibility, &shared, &tags, &w.CreatedAt, &w.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	w.ItemIDs = nonNil(items)
	w.SharedWith = nonNil(shared)
	w.Tags = nonNil(tags)
	return w, nil
}

// Create はワードローブを作成する。
func (r *PostgresWardrobeRepo) Create(ctx context.Context, w *model.Wardrobe) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wardrobes (id, user_id, name, description, item_ids, is_default, visibility, shared_with, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.ID, w.UserID, w.Name, w.Description, pq.Array(nonNil(w.ItemIDs)), w.IsDefault,
		w.Visibility, pq.Array(nonNil(w.SharedWith)), pq.Array(nonNil(w.Tags)), w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wardrobe: %w", err)
	}
	return nil
}

// CountByUser はユーザーのワードローブ数を返す。
func (r *PostgresWardrobeRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM wardrobes WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wardrobes: %w", err)
	}
	return n, nil
}

// FindOwned は所有者のワードローブを取得する。見つからない場合はnilを返す。
func (r *PostgresWardrobeRepo) FindOwned(ctx context.Context, id, userID string) (*model.Wardrobe, error) {
	w, err := scanWardrobe(r.db.QueryRowContext(ctx,
		`SELECT `+wardrobeColumns+` FROM wardrobes w WHERE w.id = $1 AND w.user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wardrobe: %w", err)
	}
	return w, nil
}

// FindAccessible は所有・公開・共有のいずれかで閲覧可能なワードローブを取得する。
func (r *PostgresWardrobeRepo) FindAccessible(ctx context.Context, id, userID string) (*model.Wardrobe, error) {
	w, err := scanWardrobe(r.db.QueryRowContext(ctx,
		`SELECT `+wardrobeColumns+` FROM wardrobes w
		 WHERE w.id = $1 AND (w.user_id = $2 OR w.visibility = 'public' OR $2 = ANY(w.shared_with))`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find accessible wardrobe: %w", err)
	}
	return w, nil
}

// ListByUser はユーザーのワードローブ一覧をデフォルト優先・新しい順で返す。
func (r *PostgresWardrobeRepo) ListByUser(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, int, error) {
	total, err := r.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+wardrobeColumns+` FROM wardrobes w
		 WHERE w.user_id = $1
		 ORDER BY w.is_default DESC, w.created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wardrobes: %w", err)
	}
	defer rows.Close()

	wardrobes := []*model.Wardrobe{}
	for rows.Next() {
		w, err := scanWardrobe(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan wardrobe: %w", err)
		}
		wardrobes = append(wardrobes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate wardrobes: %w", err)
	}
	return wardrobes, total, nil
}

// ListShared は他ユーザーの公開または自分に共有されたワードローブ一覧を返す。
// 所有者のユーザー名を付与する。
func (r *PostgresWardrobeRepo) ListShared(ctx context.Context, userID string, page model.PageRequest) ([]*model.Wardrobe, int, error) {
	const cond = `w.user_id <> $1 AND (w.visibility = 'public' OR $1 = ANY(w.shared_with))`

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM wardrobes w WHERE `+cond, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count shared wardrobes: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+wardrobeColumns+`, u.username FROM wardrobes w
		 JOIN users u ON u.id = w.user_id
		 WHERE `+cond+`
		 ORDER BY w.created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list shared wardrobes: %w", err)
	}
	defer rows.Close()

	wardrobes := []*model.Wardrobe{}
	for rows.Next() {
		var owner string
		w, err := scanWardrobe(rows, &owner)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan shared wardrobe: %w", err)
		}
		w.OwnerUsername = owner
		wardrobes = append(wardrobes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate shared wardrobes: %w", err)
	}
	return wardrobes, total, nil
}

// Update は名前・説明・公開範囲・タグ・デフォルトフラグを更新する。
func (r *PostgresWardrobeRepo) Update(ctx context.Context, w *model.Wardrobe) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wardrobes SET name = $3, description = $4, visibility = $5, tags = $6, is_default = $7, updated_at = $8
		 WHERE id = $1 AND user_id = $2`,
		w.ID, w.UserID, w.Name, w.Description, w.Visibility, pq.Array(nonNil(w.Tags)), w.IsDefault, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update wardrobe: %w", err)
	}
	return nil
}

// ClearDefault は指定ワードローブ以外のデフォルトフラグを外す。
func (r *PostgresWardrobeRepo) ClearDefault(ctx context.Context, userID, exceptID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wardrobes SET is_default = false WHERE user_id = $1 AND id <> $2 AND is_default`,
		userID, exceptID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default wardrobe: %w", err)
	}
	return nil
}

// Delete は所有者のワードローブを削除する。削除できた場合はtrueを返す。
// 含まれるアイテムはCASCADE削除される。
func (r *PostgresWardrobeRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM wardrobes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete wardrobe: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// AddItem はアイテムIDを末尾に追加する。
func (r *PostgresWardrobeRepo) AddItem(ctx context.Context, wardrobeID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wardrobes SET item_ids = array_append(item_ids, $2::uuid), updated_at = now() WHERE id = $1`,
		wardrobeID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to add item to wardrobe: %w", err)
	}
	return nil
}

// RemoveItem はアイテムIDを取り除く。
func (r *PostgresWardrobeRepo) RemoveItem(ctx context.Context, wardrobeID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wardrobes SET item_ids = array_remove(item_ids, $2::uuid), updated_at = now() WHERE id = $1`,
		wardrobeID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove item from wardrobe: %w", err)
	}
	return nil
}

// AddSharedUser は共有先ユーザーを重複なく追加し、公開範囲をsharedにする。
// 所有者でない場合はnilを返す。
func (r *PostgresWardrobeRepo) AddSharedUser(ctx context.Context, id, userID, targetUserID string) (*model.Wardrobe, error) {
	w, err := scanWardrobe(r.db.QueryRowContext(ctx,
		`UPDATE wardrobes w SET visibility = 'shared',
		     shared_with = CASE WHEN $3::uuid = ANY(w.shared_with) THEN w.shared_with ELSE array_append(w.shared_with, $3::uuid) END,
		     updated_at = now()
		 WHERE w.id = $1 AND w.user_id = $2
		 RETURNING `+wardrobeColumns,
		id, userID, targetUserID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to share wardrobe: %w", err)
	}
	return w, nil
}

// compile-time interface check
var _ WardrobeRepository = (*PostgresWardrobeRepo)(nil)
