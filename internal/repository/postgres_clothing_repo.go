package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/closetiq/internal/model"
)

const clothingColumns = `id, user_id, wardrobe_id, image_url, image_key, name, brand, color, size, description,
	category, attributes, ai_classification, user_metadata, created_at, updated_at`

// clothingSortColumns は一覧のソートキーとカラムの対応。
var clothingSortColumns = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"category":  "category",
	"brand":     "brand",
}

// PostgresClothingRepo はPostgreSQLを使用した衣類アイテムリポジトリ。
type PostgresClothingRepo struct {
	db *sql.DB
}

// NewPostgresClothingRepo はPostgresClothingRepoを生成する。
func NewPostgresClothingRepo(db *sql.DB) *PostgresClothingRepo {
	return &PostgresClothingRepo{db: db}
}

func scanClothing(row rowScanner) (*model.ClothingItem, error) {
	it := &model.ClothingItem{}
	var attrs, ai, meta []byte
	err := row.Scan(
		&it.ID, &it.UserID, &it.WardrobeID, &it.ImageURL, &it.ImageKey, &it.Name, &it.Brand, &it.Color, &it.Size, &it.Description,
		&it.Category, &attrs, &ai, &meta, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSONB(attrs, &it.Attributes); err != nil {
		return nil, err
	}
	if err := fromJSONB(ai, &it.AIClassification); err != nil {
		return nil, err
	}
	if err := fromJSONB(meta, &it.UserMetadata); err != nil {
		return nil, err
	}
	it.Attributes.Colors = nonNil(it.Attributes.Colors)
	it.Attributes.Patterns = nonNil(it.Attributes.Patterns)
	it.Attributes.Materials = nonNil(it.Attributes.Materials)
	it.Attributes.Season = nonNil(it.Attributes.Season)
	it.Attributes.Occasion = nonNil(it.Attributes.Occasion)
	it.Attributes.Style = nonNil(it.Attributes.Style)
	it.UserMetadata.UserTags = nonNil(it.UserMetadata.UserTags)
	return it, nil
}

func (r *PostgresClothingRepo) queryItems(ctx context.Context, query string, args ...any) ([]*model.ClothingItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.ClothingItem{}
	for rows.Next() {
		it, err := scanClothing(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func clothingJSONB(it *model.ClothingItem) (attrs, ai, meta []byte, err error) {
	if attrs, err = toJSONB(it.Attributes); err != nil {
		return
	}
	if ai, err = toJSONB(it.AIClassification); err != nil {
		return
	}
	meta, err = toJSONB(it.UserMetadata)
	return
}

// Create はアイテムを作成する。
func (r *PostgresClothingRepo) Create(ctx context.Context, it *model.ClothingItem) error {
	attrs, ai, meta, err := clothingJSONB(it)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clothing_items (`+clothingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		it.ID, it.UserID, it.WardrobeID, it.ImageURL, it.ImageKey, it.Name, it.Brand, it.Color, it.Size, it.Description,
		it.Category, attrs, ai, meta, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert clothing item: %w", err)
	}
	return nil
}

// FindOwned は所有者のアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresClothingRepo) FindOwned(ctx context.Context, id, userID string) (*model.ClothingItem, error) {
	it, err := scanClothing(r.db.QueryRowContext(ctx,
		`SELECT `+clothingColumns+` FROM clothing_items WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find clothing item: %w", err)
	}
	return it, nil
}

// FindOwnedByIDs は指定IDのうち所有者のものだけを返す。他ユーザーのIDは黙って除外される。
func (r *PostgresClothingRepo) FindOwnedByIDs(ctx context.Context, userID string, ids []string) ([]*model.ClothingItem, error) {
	if len(ids) == 0 {
		return []*model.ClothingItem{}, nil
	}
	items, err := r.queryItems(ctx,
		`SELECT `+clothingColumns+` FROM clothing_items WHERE id = ANY($1::uuid[]) AND user_id = $2 ORDER BY created_at`,
		pq.Array(ids), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find owned clothing items: %w", err)
	}
	return items, nil
}

// FindByIDs は所有者を問わず指定IDのアイテムを返す。共有ワードローブの表示に使う。
func (r *PostgresClothingRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.ClothingItem, error) {
	if len(ids) == 0 {
		return []*model.ClothingItem{}, nil
	}
	items, err := r.queryItems(ctx,
		`SELECT `+clothingColumns+` FROM clothing_items WHERE id = ANY($1::uuid[]) ORDER BY created_at`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find clothing items: %w", err)
	}
	return items, nil
}

// List はユーザーのアイテム一覧と総件数を返す。
// ソートキーが未指定の場合は作成日時の降順。
func (r *PostgresClothingRepo) List(ctx context.Context, userID string, filter model.ClothingFilter, page model.PageRequest) ([]*model.ClothingItem, int, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	if filter.WardrobeID != "" {
		args = append(args, filter.WardrobeID)
		conds = append(conds, fmt.Sprintf("wardrobe_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.IsFavorite != nil {
		args = append(args, *filter.IsFavorite)
		conds = append(conds, fmt.Sprintf("COALESCE((user_metadata->>'isFavorite')::boolean, false) = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM clothing_items WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count clothing items: %w", err)
	}

	sortCol, ok := clothingSortColumns[page.Sort]
	if !ok {
		sortCol = "created_at"
	}
	order := "DESC"
	if page.Order == "asc" {
		order = "ASC"
	}

	args = append(args, page.Limit, page.Offset())
	items, err := r.queryItems(ctx,
		fmt.Sprintf(`SELECT %s FROM clothing_items WHERE %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
			clothingColumns, where, sortCol, order, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clothing items: %w", err)
	}
	return items, total, nil
}

// ListByCategory は同カテゴリのアイテムを返す（excludeIDは除外）。
func (r *PostgresClothingRepo) ListByCategory(ctx context.Context, userID, category, excludeID string, limit int) ([]*model.ClothingItem, error) {
	items, err := r.queryItems(ctx,
		`SELECT `+clothingColumns+` FROM clothing_items
		 WHERE user_id = $1 AND category = $2 AND id <> $3
		 ORDER BY created_at DESC LIMIT $4`,
		userID, category, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clothing items by category: %w", err)
	}
	return items, nil
}

// Update はアイテムのフィールドを上書きする。
func (r *PostgresClothingRepo) Update(ctx context.Context, it *model.ClothingItem) error {
	attrs, ai, meta, err := clothingJSONB(it)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE clothing_items SET image_url = $3, image_key = $4, name = $5, brand = $6, color = $7, size = $8,
		 description = $9, category = $10, attributes = $11, ai_classification = $12, user_metadata = $13, updated_at = $14
		 WHERE id = $1 AND user_id = $2`,
		it.ID, it.UserID, it.ImageURL, it.ImageKey, it.Name, it.Brand, it.Color, it.Size,
		it.Description, it.Category, attrs, ai, meta, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update clothing item: %w", err)
	}
	return nil
}

// Delete は所有者のアイテムを削除する。削除できた場合はtrueを返す。
func (r *PostgresClothingRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM clothing_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete clothing item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CountOwned は指定IDのうち所有者のものの件数を返す。
func (r *PostgresClothingRepo) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM clothing_items WHERE id = ANY($1::uuid[]) AND user_id = $2`,
		pq.Array(ids), userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned clothing items: %w", err)
	}
	return n, nil
}

// BulkUpdate は所有者のアイテムを一括更新し、更新件数を返す。
// 変更フィールドが1つもない場合は何もせず0を返す。
func (r *PostgresClothingRepo) BulkUpdate(ctx context.Context, userID string, ids []string, u ClothingBulkUpdate) (int64, error) {
	args := []any{pq.Array(ids), userID}
	var sets []string
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if u.Category != nil {
		add("category = $%d", *u.Category)
	}
	if u.Brand != nil {
		add("brand = $%d", *u.Brand)
	}
	if u.Color != nil {
		add("color = $%d", *u.Color)
	}
	meta := "user_metadata"
	if u.IsFavorite != nil {
		args = append(args, *u.IsFavorite)
		meta = fmt.Sprintf("jsonb_set(%s, '{isFavorite}', to_jsonb($%d::boolean))", meta, len(args))
	}
	if u.UserTags != nil {
		tags, err := toJSONB(u.UserTags)
		if err != nil {
			return 0, err
		}
		args = append(args, tags)
		meta = fmt.Sprintf("jsonb_set(%s, '{userTags}', $%d::jsonb)", meta, len(args))
	}
	if meta != "user_metadata" {
		sets = append(sets, "user_metadata = "+meta)
	}
	if len(sets) == 0 {
		return 0, nil
	}
	sets = append(sets, "updated_at = now()")

	result, err := r.db.ExecContext(ctx,
		`UPDATE clothing_items SET `+strings.Join(sets, ", ")+` WHERE id = ANY($1::uuid[]) AND user_id = $2`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update clothing items: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// RecordWear は着用回数を1増やし最終着用日時を記録する。所有者でない場合はnilを返す。
func (r *PostgresClothingRepo) RecordWear(ctx context.Context, id, userID string, at time.Time) (*model.ClothingItem, error) {
	it, err := scanClothing(r.db.QueryRowContext(ctx,
		`UPDATE clothing_items SET
		     user_metadata = jsonb_set(
		         jsonb_set(user_metadata, '{timesWorn}', to_jsonb(COALESCE((user_metadata->>'timesWorn')::int, 0) + 1)),
		         '{lastWorn}', to_jsonb($3::timestamptz)),
		     updated_at = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+clothingColumns,
		id, userID, at,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record wear: %w", err)
	}
	return it, nil
}

// ListImageKeysByWardrobe はワードローブ内アイテムの画像キーを返す。
func (r *PostgresClothingRepo) ListImageKeysByWardrobe(ctx context.Context, wardrobeID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT image_key FROM clothing_items WHERE wardrobe_id = $1 AND image_key <> ''`, wardrobeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list image keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan image key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CountByUser はユーザーのアイテム数を返す。
func (r *PostgresClothingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM clothing_items WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count clothing items: %w", err)
	}
	return n, nil
}

// CategoryCounts はカテゴリ別件数を多い順に返す。
func (r *PostgresClothingRepo) CategoryCounts(ctx context.Context, userID string) ([]CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, count(*) FROM clothing_items WHERE user_id = $1
		 GROUP BY category ORDER BY count(*) DESC, category`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	counts := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// compile-time interface check
var _ ClothingRepository = (*PostgresClothingRepo)(nil)
