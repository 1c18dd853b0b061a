package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ProcessOnce runs fn exactly once per (messageID, handlerName). The marker
// row and everything fn writes through the supplied transaction commit
// together: a crash or commit failure leaves neither behind, so a redelivery
// retries cleanly, and a committed marker proves fn's effects landed.
// A concurrent redelivery blocks on the uncommitted marker and then sees
// the conflict.
//
// Returns (false, nil) when the message was already processed.
func (r *Repository) ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(ctx context.Context, tx pgx.Tx) error) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_messages (message_id, handler_name)
		VALUES ($1, $2)
		ON CONFLICT (message_id, handler_name) DO NOTHING
	`, messageID, handlerName)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// duplicate delivery; ack without reprocessing
		return false, tx.Rollback(ctx)
	}

	if err := fn(ctx, tx); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}
