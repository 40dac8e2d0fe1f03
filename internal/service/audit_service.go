package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"caregiver-hub/internal/event"
	"caregiver-hub/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
	maxAuditPage      = 100000
	auditWriteTimeout = 5 * time.Second
)

// AuditService persists bus events and serves them back to administrators.
type AuditService struct {
	store AuditStore
	now   Clock
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: systemClock}
}

func (s *AuditService) SetClock(now Clock) {
	s.now = now
}

// Record stores one event. The event id doubles as the entry id, so replays
// are harmless.
func (s *AuditService) Record(ctx context.Context, e event.Event) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		occurredAt = s.now()
	}

	var payload json.RawMessage
	if e.Payload != nil {
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
	}

	return s.store.Append(ctx, model.AuditEntry{
		ID:         e.ID,
		Type:       string(e.Type),
		ActorID:    e.ActorID,
		Payload:    payload,
		OccurredAt: occurredAt.UTC(),
	})
}

// Run records events until the channel closes or ctx is done. Failed writes
// are logged and skipped.
func (s *AuditService) Run(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
			if err := s.Record(writeCtx, e); err != nil {
				slog.Error("failed to record audit event", "event_id", e.ID, "event_type", e.Type, "error", err)
			}
			cancel()
		}
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = defaultAuditLimit
	}
	if query.Limit > maxAuditLimit {
		query.Limit = maxAuditLimit
	}
	// Keeps (page-1)*limit far from int overflow.
	if query.Page > maxAuditPage {
		return nil, model.Meta{}, errBadRequest(fmt.Sprintf("page must not exceed %d", maxAuditPage), "page")
	}
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, model.Meta{}, errBadRequest("from must not be after to", "")
	}

	entries, total, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, model.Meta{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}

	return entries, model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}, nil
}
