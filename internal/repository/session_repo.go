package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"caregiver-hub/internal/database"
	"caregiver-hub/internal/model"
)

const sessionColumns = `id, user_id, refresh_token_hash, ip, user_agent, expires_at, created_at`

type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s model.Session) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO user_sessions (id, user_id, refresh_token_hash, ip, user_agent, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.IP, s.UserAgent, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.IP, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) UpdateHash(ctx context.Context, id string, hash string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE user_sessions SET refresh_token_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update session hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// SwapHash replaces the stored hash only if it still equals oldHash, so two
// concurrent rotations of one refresh token cannot both succeed.
func (r *SessionRepository) SwapHash(ctx context.Context, id string, oldHash string, newHash string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE user_sessions SET refresh_token_hash = $3
		 WHERE id = $1 AND refresh_token_hash = $2`, id, oldHash, newHash)
	if err != nil {
		return fmt.Errorf("swap session hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]model.Session, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions
		 WHERE user_id = $1 AND expires_at > $2
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0)
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.IP, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) Delete(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`DELETE FROM user_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
