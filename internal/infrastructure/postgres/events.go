package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecordEvent appends one tracking event plus its outbox notification in a
// single transaction. Rows for different ads (and even the same ad) are
// independent inserts, so concurrent recorders never contend on a hot row.
func (r *Repository) RecordEvent(ctx context.Context, traceID string, ev *domain.TrackingEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.RecordEventTx(ctx, tx, traceID, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordEventTx appends the event and outbox rows on the caller's
// transaction. The beacon ingester records through here so the event commits
// together with its processed_messages marker; commit and rollback stay with
// the caller.
func (r *Repository) RecordEventTx(ctx context.Context, tx pgx.Tx, traceID string, ev *domain.TrackingEvent) error {
	traceID = strings.TrimSpace(traceID)

	_, err := tx.Exec(ctx, `
		INSERT INTO tracking_events (id, ad_id, event_type, occurred_at, source_ip)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.AdID, string(ev.Type), ev.OccurredAt, ev.SourceIP)
	if err != nil {
		// the FK on ad_id is the existence check
		if pgCode(err) == pgForeignKeyViolation {
			return domain.ErrUnknownAd
		}
		return err
	}

	payload, _ := json.Marshal(map[string]any{
		"event_id":    ev.ID,
		"ad_id":       ev.AdID,
		"type":        ev.Type,
		"occurred_at": ev.OccurredAt.Format(time.RFC3339Nano),
	})
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		VALUES ($1, $2, $3, $4, NOW(), 'pending')
	`, uuid.New(), traceID, "ad."+string(ev.Type)+".recorded", payload)
	return err
}

// CountEvents counts events for (adID, typ) within the optional inclusive
// window. Missing ads simply count zero; existence checks belong to callers
// that need them.
func (r *Repository) CountEvents(ctx context.Context, adID uuid.UUID, typ domain.EventType, from, to *time.Time) (int64, error) {
	where := "WHERE ad_id = $1 AND event_type = $2"
	args := []any{adID, string(typ)}

	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}

	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tracking_events `+where, args...).Scan(&count)
	return count, err
}
