package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"caregiver-hub/internal/model"
	"caregiver-hub/internal/security"
)

// IssuedSession is a persisted session together with the only plaintext copy
// of its refresh token.
type IssuedSession struct {
	Session      model.Session
	RefreshToken string
}

// SessionLedger persists human refresh-token sessions. Only a hash of the
// current refresh token is stored; a token whose hash no longer matches is dead.
type SessionLedger struct {
	sessions SessionStore
	tx       Transactor
	hasher   *security.PasswordHasher
	signer   *security.TokenSigner
	ttl      time.Duration
	now      Clock
}

func NewSessionLedger(sessions SessionStore, tx Transactor, hasher *security.PasswordHasher, signer *security.TokenSigner, ttl time.Duration) *SessionLedger {
	return &SessionLedger{
		sessions: sessions,
		tx:       tx,
		hasher:   hasher,
		signer:   signer,
		ttl:      ttl,
		now:      systemClock,
	}
}

func (l *SessionLedger) SetClock(now Clock) {
	l.now = now
}

// Open inserts a session whose hash is the pending placeholder. The id is
// needed to sign the refresh token, which is then committed with CommitHash.
func (l *SessionLedger) Open(ctx context.Context, userID string, ip string, userAgent string) (model.Session, error) {
	now := l.now()
	session := model.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		RefreshTokenHash: model.PendingSessionHash,
		IP:               ip,
		UserAgent:        userAgent,
		ExpiresAt:        now.Add(l.ttl),
		CreatedAt:        now,
	}

	if err := l.sessions.Create(ctx, session); err != nil {
		return model.Session{}, err
	}
	return session, nil
}

func (l *SessionLedger) CommitHash(ctx context.Context, sessionID string, refreshToken string) error {
	hash, err := l.hasher.Hash(refreshToken)
	if err != nil {
		return err
	}
	return l.sessions.UpdateHash(ctx, sessionID, hash)
}

// Issue runs Open, signs the refresh token and commits its hash in one
// transaction, so no other reader ever sees the placeholder.
func (l *SessionLedger) Issue(ctx context.Context, userID string, ip string, userAgent string) (IssuedSession, error) {
	var issued IssuedSession
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		session, err := l.Open(ctx, userID, ip, userAgent)
		if err != nil {
			return err
		}

		token, err := l.signer.SignRefresh(userID, session.ID, session.ExpiresAt)
		if err != nil {
			return err
		}

		if err := l.CommitHash(ctx, session.ID, token); err != nil {
			return err
		}

		issued = IssuedSession{Session: session, RefreshToken: token}
		return nil
	})
	if err != nil {
		return IssuedSession{}, fmt.Errorf("issue session: %w", err)
	}
	return issued, nil
}

// Authenticate resolves a refresh token to its live session. Every failure is
// reported as model.ErrInvalidToken.
func (l *SessionLedger) Authenticate(ctx context.Context, refreshToken string) (model.Session, error) {
	claims, err := l.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return model.Session{}, model.ErrInvalidToken
	}

	session, err := l.sessions.FindByID(ctx, claims.SessionID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return model.Session{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.Session{}, err
	}

	if session.UserID != claims.Subject || session.ExpiredAt(l.now()) {
		return model.Session{}, model.ErrInvalidToken
	}

	if !l.hasher.Verify(refreshToken, session.RefreshTokenHash) {
		slog.Warn("refresh token does not match session", "session_id", session.ID, "user_id", session.UserID)
		return model.Session{}, model.ErrInvalidToken
	}

	return session, nil
}

// Rotate replaces the session's refresh token. The session keeps its id and
// expiry; the presented token stops verifying.
func (l *SessionLedger) Rotate(ctx context.Context, refreshToken string) (IssuedSession, error) {
	session, err := l.Authenticate(ctx, refreshToken)
	if err != nil {
		return IssuedSession{}, err
	}

	token, err := l.signer.SignRefresh(session.UserID, session.ID, session.ExpiresAt)
	if err != nil {
		return IssuedSession{}, err
	}

	hash, err := l.hasher.Hash(token)
	if err != nil {
		return IssuedSession{}, err
	}

	if err := l.sessions.SwapHash(ctx, session.ID, session.RefreshTokenHash, hash); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return IssuedSession{}, model.ErrInvalidToken
		}
		return IssuedSession{}, err
	}

	session.RefreshTokenHash = hash
	return IssuedSession{Session: session, RefreshToken: token}, nil
}

func (l *SessionLedger) List(ctx context.Context, userID string) ([]model.Session, error) {
	return l.sessions.ListActiveByUser(ctx, userID, l.now())
}

func (l *SessionLedger) Revoke(ctx context.Context, sessionID string, userID string) error {
	if !isID(sessionID) {
		return errNotFound("session not found", sessionID)
	}

	err := l.sessions.Delete(ctx, sessionID, userID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return errNotFound("session not found", sessionID)
	}
	return err
}

func (l *SessionLedger) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return l.sessions.DeleteAllForUser(ctx, userID)
}

func (l *SessionLedger) PurgeExpired(ctx context.Context) (int64, error) {
	return l.sessions.DeleteExpired(ctx, l.now())
}

// StartPurgeTicker deletes expired sessions every interval until ctx is done.
func (l *SessionLedger) StartPurgeTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.PurgeExpired(ctx)
			if err != nil {
				slog.Error("purge expired sessions failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("purged expired sessions", "count", removed)
			}
		}
	}
}
