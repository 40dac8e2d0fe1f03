package repository

import (
	"context"
	"fmt"
	"strings"

	"caregiver-hub/internal/database"
	"caregiver-hub/internal/model"
)

type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append is idempotent on the entry id.
func (r *AuditRepository) Append(ctx context.Context, entry model.AuditEntry) error {
	var payload []byte
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}

	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO audit_events (id, type, actor_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Type, entry.ActorID, payload, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query returns one page of entries, newest first, and the total match count.
// Page and Limit must already be normalized.
func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, int, error) {
	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if typ := strings.TrimSpace(query.Type); typ != "" {
		where = append(where, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, typ)
		argIdx++
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, fmt.Sprintf("actor_id = $%d", argIdx))
		args = append(args, actorID)
		argIdx++
	}
	if query.From != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", argIdx))
		args = append(args, *query.From)
		argIdx++
	}
	if query.To != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", argIdx))
		args = append(args, *query.To)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	conn := r.db.Conn(ctx)

	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM audit_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT id, type, actor_id, payload, occurred_at
		 FROM audit_events %s
		 ORDER BY occurred_at DESC, id
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.ActorID, &payload, &e.OccurredAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		if len(payload) > 0 {
			e.Payload = payload
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}
