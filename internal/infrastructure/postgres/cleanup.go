package postgres

import (
	"context"
	"time"

	"github.com/adserve/adzone/internal/pkg/logger"
)

// StartCleanupWorker periodically prunes delivered outbox rows and aged
// idempotency markers. The tracking_events log itself is never touched.
func (r *Repository) StartCleanupWorker(ctx context.Context, interval, retainSent, retainInbox time.Duration) {
	go func() {
		log := logger.Logger.With().Str("component", "cleanup_worker").Logger()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.runCleanup(ctx, retainSent, retainInbox)
			}
		}
	}()
}

func (r *Repository) runCleanup(ctx context.Context, retainSent, retainInbox time.Duration) {
	log := logger.Logger.With().Str("component", "cleanup_worker").Logger()

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE status = 'sent'
		  AND occurred_at < NOW() - $1 * INTERVAL '1 second'
	`, retainSent.Seconds())
	if err != nil {
		log.Warn().Err(err).Msg("outbox prune failed")
	} else if tag.RowsAffected() > 0 {
		log.Info().Int64("rows", tag.RowsAffected()).Msg("pruned sent outbox rows")
	}

	tag, err = r.pool.Exec(ctx, `
		DELETE FROM processed_messages
		WHERE processed_at < NOW() - $1 * INTERVAL '1 second'
	`, retainInbox.Seconds())
	if err != nil {
		log.Warn().Err(err).Msg("processed_messages prune failed")
	} else if tag.RowsAffected() > 0 {
		log.Info().Int64("rows", tag.RowsAffected()).Msg("pruned processed message markers")
	}

	// dead rows are kept for operator inspection but not forever
	tag, err = r.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE status = 'dead'
		  AND occurred_at < NOW() - 30 * INTERVAL '1 day'
	`)
	if err != nil {
		log.Warn().Err(err).Msg("dead outbox prune failed")
	} else if tag.RowsAffected() > 0 {
		log.Info().Int64("rows", tag.RowsAffected()).Msg("pruned dead outbox rows")
	}
}
