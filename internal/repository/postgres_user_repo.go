package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/closetiq/internal/database"
	"github.com/hitoshi/closetiq/internal/model"
)

const userColumns = `id, firebase_uid, email, username, display_name, photo_url, is_email_verified,
	auth_provider, profile, preferences, subscription, settings, is_active, last_login, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var profile, prefs, sub, settings []byte
	err := row.Scan(
		&u.ID, &u.FirebaseUID, &u.Email, &u.Username, &u.DisplayName, &u.PhotoURL, &u.IsEmailVerified,
		&u.AuthProvider, &profile, &prefs, &sub, &settings, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSONB(profile, &u.Profile); err != nil {
		return nil, err
	}
	if err := fromJSONB(prefs, &u.Preferences); err != nil {
		return nil, err
	}
	if err := fromJSONB(sub, &u.Subscription); err != nil {
		return nil, err
	}
	if err := fromJSONB(settings, &u.Settings); err != nil {
		return nil, err
	}
	u.Profile.StylePreferences = nonNil(u.Profile.StylePreferences)
	u.Preferences.FavoriteColors = nonNil(u.Preferences.FavoriteColors)
	u.Preferences.DislikedColors = nonNil(u.Preferences.DislikedColors)
	return u, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by %s: %w", where, err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByFirebaseUID は外部IdPのUIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error) {
	return r.findOne(ctx, "firebase_uid", uid)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username", username)
}

func userJSONB(u *model.User) (profile, prefs, sub, settings []byte, err error) {
	if profile, err = toJSONB(u.Profile); err != nil {
		return
	}
	if prefs, err = toJSONB(u.Preferences); err != nil {
		return
	}
	if sub, err = toJSONB(u.Subscription); err != nil {
		return
	}
	settings, err = toJSONB(u.Settings)
	return
}

// Create はユーザーを作成する。
// 一意制約違反の場合はmodel.APIError（DUPLICATE）を返す。
func (r *PostgresUserRepo) Create(ctx context.Context, u *model.User) error {
	profile, prefs, sub, settings, err := userJSONB(u)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, u.FirebaseUID, u.Email, u.Username, u.DisplayName, u.PhotoURL, u.IsEmailVerified,
		u.AuthProvider, profile, prefs, sub, settings, u.IsActive, u.LastLogin, u.CreatedAt, u.UpdatedAt,
	)
	if field, ok := database.UniqueViolationField(err); ok {
		return model.NewDuplicateError(field)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はユーザーの可変フィールドを上書きする。
// firebase_uidとcreated_atは変更しない。
func (r *PostgresUserRepo) Update(ctx context.Context, u *model.User) error {
	profile, prefs, sub, settings, err := userJSONB(u)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, username = $3, display_name = $4, photo_url = $5,
		 is_email_verified = $6, profile = $7, preferences = $8, subscription = $9, settings = $10,
		 is_active = $11, last_login = $12, updated_at = $13
		 WHERE id = $1`,
		u.ID, u.Email, u.Username, u.DisplayName, u.PhotoURL,
		u.IsEmailVerified, profile, prefs, sub, settings,
		u.IsActive, u.LastLogin, u.UpdatedAt,
	)
	if field, ok := database.UniqueViolationField(err); ok {
		return model.NewDuplicateError(field)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// TouchLastLogin は最終ログイン日時を更新する。
func (r *PostgresUserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Deactivate はユーザーを無効化する。レコードは削除しない。
func (r *PostgresUserRepo) Deactivate(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = false, updated_at = $2 WHERE id = $1`, id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 所有するワードローブ、アイテム、コーディネート、チャットはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
