package postgres

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/adserve/adzone/internal/audit"
	"github.com/adserve/adzone/internal/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	outboxBatchSize   = 50
	outboxMaxAttempts = 12
	confirmWait       = 300 * time.Millisecond
)

// backoff: exponential with jitter, bounded between 5s and 30min
func computeNextRetry(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	sec := math.Pow(2, float64(attempt))
	if sec < 5 {
		sec = 5
	}
	if sec > 1800 {
		sec = 1800
	}

	d := time.Duration(sec) * time.Second
	j := time.Duration(rand.Int64N(int64(d/5))) - d/10
	return d + j
}

type outboxMessage struct {
	ID         int64
	MessageID  uuid.UUID
	TraceID    string
	RoutingKey string
	Payload    []byte
	Attempt    int
}

// StartOutboxWorker drains pending outbox rows to the tracking exchange.
// Recorded impression/click notifications reach downstream reporting
// consumers through here; the recorder itself never touches the broker.
func (r *Repository) StartOutboxWorker(ctx context.Context, rabbitURL, exchange string) {
	go func() {
		log := logger.Logger.With().Str("component", "outbox_worker").Logger()

		conn, err := amqp.Dial(rabbitURL)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect rabbitmq for outbox publishing")
			return
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			log.Error().Err(err).Msg("failed to open rabbitmq channel for outbox publishing")
			return
		}
		defer ch.Close()

		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			log.Error().Err(err).Str("exchange", exchange).Msg("exchange declare failed")
			return
		}

		// Publisher confirms + mandatory returns
		if err := ch.Confirm(false); err != nil {
			log.Error().Err(err).Msg("publisher confirm enable failed")
			return
		}
		confirmCh := ch.NotifyPublish(make(chan amqp.Confirmation, 100))
		returnCh := ch.NotifyReturn(make(chan amqp.Return, 100))

		// next_retry_at gates load, so polling can stay coarse
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		var lastErr string
		var lastAt time.Time

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				if err := r.publishOutboxBatch(ctx, ch, exchange, confirmCh, returnCh); err != nil {
					if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
						log.Warn().Err(err).Msg("outbox batch failed")
						lastErr = err.Error()
						lastAt = time.Now()
					}
				} else {
					lastErr = ""
				}
			}
		}
	}()
}

func (r *Repository) publishOutboxBatch(
	ctx context.Context,
	ch *amqp.Channel,
	exchange string,
	confirmCh <-chan amqp.Confirmation,
	returnCh <-chan amqp.Return,
) error {
	// Claim a batch inside a tx so parallel workers never double-publish.
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, message_id, trace_id, routing_key, payload, attempt
		FROM outbox
		WHERE status = 'pending'
		  AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC, occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, outboxBatchSize)
	if err != nil {
		return err
	}
	defer rows.Close()

	var messages []outboxMessage
	for rows.Next() {
		var m outboxMessage
		if err := rows.Scan(&m.ID, &m.MessageID, &m.TraceID, &m.RoutingKey, &m.Payload, &m.Attempt); err == nil {
			messages = append(messages, m)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(messages) == 0 {
		return tx.Commit(ctx)
	}

	// Commit the claim with next_retry_at nudged forward: the rows stay
	// pending, but no sibling worker re-claims them while we publish. Keeps
	// the lock window off the network path.
	inFlightUntil := time.Now().Add(15 * time.Second)
	for _, m := range messages {
		_, _ = tx.Exec(ctx, `UPDATE outbox SET next_retry_at = $2 WHERE id = $1`, m.ID, inFlightUntil)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log := logger.Logger.With().Str("component", "outbox_worker").Logger()
	auditLog := audit.New(logger.Logger)

	for _, m := range messages {
		// Drain stale notifications from earlier iterations
	DrainLoop:
		for {
			select {
			case <-returnCh:
				continue
			case <-confirmCh:
				continue
			default:
				break DrainLoop
			}
		}

		pub := amqp.Publishing{
			ContentType:   "application/json",
			Body:          m.Payload,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			MessageId:     m.MessageID.String(),
			CorrelationId: m.TraceID,
			AppId:         "adzone",
		}

		if err := ch.PublishWithContext(ctx, exchange, m.RoutingKey, true, false, pub); err != nil {
			r.failOutbox(ctx, m, "publish error: "+err.Error())
			continue
		}

		// Wait for the confirm; a mandatory Return usually arrives first
		// when the message is unroutable.
		var gotReturn, gotConfirm bool
		var conf amqp.Confirmation

		deadline := time.After(confirmWait * 2)
	WaitLoop:
		for !gotConfirm {
			select {
			case ret := <-returnCh:
				gotReturn = true
				r.failOutbox(ctx, m, "NO_ROUTE: "+ret.ReplyText+" rk="+ret.RoutingKey)
			case c := <-confirmCh:
				gotConfirm = true
				conf = c
			case <-deadline:
				r.failOutbox(ctx, m, "confirm/return timeout")
				break WaitLoop
			}
		}

		if gotReturn || !gotConfirm {
			continue
		}
		if !conf.Ack {
			r.failOutbox(ctx, m, "broker NACK")
			continue
		}

		_, _ = r.pool.Exec(ctx, `
			UPDATE outbox
			SET status = 'sent',
			    last_error = NULL
			WHERE id = $1
		`, m.ID)

		auditLog.OutboxMessageSent(ctx, m.MessageID.String(), m.RoutingKey)
		log.Info().
			Int64("outbox_id", m.ID).
			Str("message_id", m.MessageID.String()).
			Str("routing_key", m.RoutingKey).
			Msg("published")
	}

	return nil
}

func (r *Repository) failOutbox(ctx context.Context, m outboxMessage, errMsg string) {
	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	nextAttempt := m.Attempt + 1
	if nextAttempt >= outboxMaxAttempts {
		_, _ = r.pool.Exec(ctx, `
			UPDATE outbox
			SET status = 'dead',
			    attempt = $2,
			    last_error = $3
			WHERE id = $1
		`, m.ID, nextAttempt, errMsg)

		audit.New(logger.Logger).OutboxMessageDead(ctx, m.MessageID.String(), m.RoutingKey, nextAttempt)
		log.Error().
			Int64("outbox_id", m.ID).
			Str("message_id", m.MessageID.String()).
			Str("routing_key", m.RoutingKey).
			Int("attempt", nextAttempt).
			Msg("outbox moved to DEAD")
		return
	}

	delay := computeNextRetry(nextAttempt)
	_, _ = r.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt = $2,
		    next_retry_at = NOW() + $3 * INTERVAL '1 second',
		    last_error = $4
		WHERE id = $1
	`, m.ID, nextAttempt, delay.Seconds(), errMsg)

	log.Warn().
		Int64("outbox_id", m.ID).
		Str("message_id", m.MessageID.String()).
		Str("routing_key", m.RoutingKey).
		Int("attempt", nextAttempt).
		Dur("retry_in", delay).
		Msg("outbox publish failed; scheduled retry")
}
