package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/closetiq/internal/model"
)

const chatColumns = `id, user_id, session_type, title, messages, is_active, created_at, last_message_at`

// PostgresChatRepo はPostgreSQLを使用したチャットセッションリポジトリ。
// メッセージはJSONB配列として1行に保持する。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

func scanChat(row rowScanner) (*model.ChatSession, error) {
	s := &model.ChatSession{}
	var msgs []byte
	err := row.Scan(&s.ID, &s.UserID, &s.SessionType, &s.Title, &msgs, &s.IsActive, &s.CreatedAt, &s.LastMessageAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSONB(msgs, &s.Messages); err != nil {
		return nil, err
	}
	if s.Messages == nil {
		s.Messages = []model.ChatMessage{}
	}
	return s, nil
}

// Create はセッションを作成する。
func (r *PostgresChatRepo) Create(ctx context.Context, s *model.ChatSession) error {
	if s.Messages == nil {
		s.Messages = []model.ChatMessage{}
	}
	msgs, err := toJSONB(s.Messages)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (`+chatColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.SessionType, s.Title, msgs, s.IsActive, s.CreatedAt, s.LastMessageAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat session: %w", err)
	}
	return nil
}

// FindOwned は所有者のセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindOwned(ctx context.Context, id, userID string) (*model.ChatSession, error) {
	s, err := scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chat_sessions WHERE id = $1 AND user_id = $2`, id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}
	return s, nil
}

// List はセッション一覧を最終メッセージの新しい順で返す。メッセージ本文は含めない。
func (r *PostgresChatRepo) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.ChatSession, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chat_sessions WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count chat sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, session_type, title, '[]'::jsonb, is_active, created_at, last_message_at
		 FROM chat_sessions WHERE user_id = $1
		 ORDER BY last_message_at DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.ChatSession{}
	for rows.Next() {
		s, err := scanChat(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate chat sessions: %w", err)
	}
	return sessions, total, nil
}

// AppendMessages はメッセージを末尾に追加しlast_message_atを更新する。
// 所有者でない場合はnilを返す。
func (r *PostgresChatRepo) AppendMessages(ctx context.Context, id, userID string, msgs []model.ChatMessage, at time.Time) (*model.ChatSession, error) {
	b, err := toJSONB(msgs)
	if err != nil {
		return nil, err
	}
	s, err := scanChat(r.db.QueryRowContext(ctx,
		`UPDATE chat_sessions SET messages = messages || $3::jsonb, last_message_at = $4
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+chatColumns,
		id, userID, b, at,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append chat messages: %w", err)
	}
	return s, nil
}

// Delete は所有者のセッションを削除する。削除できた場合はtrueを返す。
func (r *PostgresChatRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chat session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
