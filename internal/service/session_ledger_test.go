package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregiver-hub/internal/model"
)

func TestSessionLedger_IssueCommitsRealHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.ledger.Issue(ctx, "user-1", "10.0.0.1", "agent")
	require.NoError(t, err)

	stored, err := env.store.Sessions().FindByID(ctx, issued.Session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, model.PendingSessionHash, stored.RefreshTokenHash)
	assert.True(t, env.hasher.Verify(issued.RefreshToken, stored.RefreshTokenHash))
	assert.Equal(t, env.clock.Now().Add(30*24*time.Hour), stored.ExpiresAt)
	assert.Equal(t, "10.0.0.1", stored.IP)
	assert.Equal(t, "agent", stored.UserAgent)

	session, err := env.ledger.Authenticate(ctx, issued.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, session.ID)
}

func TestSessionLedger_PlaceholderNeverAuthenticates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.ledger.Open(ctx, "user-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.PendingSessionHash, session.RefreshTokenHash)

	token, err := env.signer.SignRefresh("user-1", session.ID, session.ExpiresAt)
	require.NoError(t, err)

	_, err = env.ledger.Authenticate(ctx, token)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	require.NoError(t, env.ledger.CommitHash(ctx, session.ID, token))
	_, err = env.ledger.Authenticate(ctx, token)
	assert.NoError(t, err)
}

func TestSessionLedger_ExpiryBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.ledger.Issue(ctx, "user-1", "", "")
	require.NoError(t, err)

	env.clock.Set(issued.Session.ExpiresAt.Add(-time.Second))
	_, err = env.ledger.Authenticate(ctx, issued.RefreshToken)
	require.NoError(t, err)

	env.clock.Set(issued.Session.ExpiresAt)
	_, err = env.ledger.Authenticate(ctx, issued.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = env.ledger.Rotate(ctx, issued.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestSessionLedger_RejectsTokenForAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.ledger.Issue(ctx, "user-1", "", "")
	require.NoError(t, err)

	forged, err := env.signer.SignRefresh("user-2", issued.Session.ID, issued.Session.ExpiresAt)
	require.NoError(t, err)

	_, err = env.ledger.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestSessionLedger_RotateInvalidatesPreviousToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.ledger.Issue(ctx, "user-1", "", "")
	require.NoError(t, err)

	rotated, err := env.ledger.Rotate(ctx, issued.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, rotated.Session.ID)
	assert.Equal(t, issued.Session.ExpiresAt, rotated.Session.ExpiresAt)
	assert.NotEqual(t, issued.RefreshToken, rotated.RefreshToken)

	_, err = env.ledger.Authenticate(ctx, issued.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = env.ledger.Authenticate(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestSessionLedger_ConcurrentRotationHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.ledger.Issue(ctx, "user-1", "", "")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.ledger.Rotate(ctx, issued.RefreshToken); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestSessionLedger_ListRevokeAndPurge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.ledger.Issue(ctx, "user-1", "", "phone")
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.ledger.Issue(ctx, "user-1", "", "laptop")
	require.NoError(t, err)
	_, err = env.ledger.Issue(ctx, "user-2", "", "other")
	require.NoError(t, err)

	sessions, err := env.ledger.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.Session.ID, sessions[0].ID, "newest first")

	err = env.ledger.Revoke(ctx, first.Session.ID, "user-2")
	assertAPIError(t, err, "NOT_FOUND")

	err = env.ledger.Revoke(ctx, "abc", "user-1")
	assertAPIError(t, err, "NOT_FOUND")

	require.NoError(t, env.ledger.Revoke(ctx, first.Session.ID, "user-1"))
	_, err = env.ledger.Authenticate(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	env.clock.Advance(31 * 24 * time.Hour)
	removed, err := env.ledger.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = env.ledger.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSessionLedger_PurgeTickerStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.ledger.StartPurgeTicker(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purge ticker did not stop")
	}
}
