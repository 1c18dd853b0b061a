package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/adserve/adzone/internal/contracts/event"
	"github.com/adserve/adzone/internal/domain"
	"github.com/adserve/adzone/internal/metrics"
	"github.com/adserve/adzone/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	beaconQueue     = "adzone.beacons"
	handlerName     = "beacon_ingester"
	envelopeVersion = 1
)

// EventStore records beacon events behind the processed_messages fence.
// ProcessOnce hands its transaction to fn; the ingester appends the event on
// that same transaction via RecordEventTx, so the dedupe marker and the event
// row commit or roll back together. The concrete implementation is the
// postgres repository.
type EventStore interface {
	ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(ctx context.Context, tx pgx.Tx) error) (bool, error)
	RecordEventTx(ctx context.Context, tx pgx.Tx, traceID string, ev *domain.TrackingEvent) error
}

// BeaconConsumer ingests impression/click beacons published by edge
// producers on the tracking exchange. Deliveries are at-least-once; the
// dedupe fence keys on the envelope message_id.
type BeaconConsumer struct {
	store EventStore
}

func NewBeaconConsumer(store EventStore) *BeaconConsumer {
	return &BeaconConsumer{store: store}
}

// Start binds the beacon queue and consumes until ctx is cancelled. Connection
// loss ends the goroutine; supervision is the caller's job.
func (c *BeaconConsumer) Start(ctx context.Context, rabbitURL, exchange string) error {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return err
	}
	q, err := ch.QueueDeclare(beaconQueue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return err
	}
	for _, rk := range []string{"ad.impression", "ad.click"} {
		if err := ch.QueueBind(q.Name, rk, exchange, false, nil); err != nil {
			conn.Close()
			return err
		}
	}
	if err := ch.Qos(20, 0, false); err != nil {
		conn.Close()
		return err
	}

	deliveries, err := ch.Consume(q.Name, handlerName, false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return err
	}

	go func() {
		defer conn.Close()
		log := logger.Logger.With().Str("component", "beacon_consumer").Logger()
		log.Info().Str("queue", q.Name).Msg("consuming")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("delivery channel closed")
					return
				}
				c.handle(ctx, d)
			}
		}
	}()
	return nil
}

func (c *BeaconConsumer) handle(ctx context.Context, d amqp.Delivery) {
	log := logger.Logger.With().
		Str("component", "beacon_consumer").
		Str("routing_key", d.RoutingKey).
		Logger()

	env, err := decodeBeacon(d)
	if err != nil {
		// poison: redelivery cannot fix a malformed body
		log.Warn().Err(err).Msg("dropping malformed beacon")
		_ = d.Ack(false)
		return
	}

	var typ domain.EventType
	switch d.RoutingKey {
	case "ad.impression":
		typ = domain.EventImpression
	case "ad.click":
		typ = domain.EventClick
	default:
		// binding mismatch; redelivery cannot fix it either
		log.Warn().Msg("dropping beacon with unexpected routing key")
		_ = d.Ack(false)
		return
	}

	msgID := messageID(d, env)
	ev := domain.TrackingEvent{
		ID:         uuid.New(),
		AdID:       uuid.MustParse(env.Payload.AdID),
		Type:       typ,
		OccurredAt: beaconTime(env),
		SourceIP:   env.Payload.SourceIP,
	}

	ran, err := c.store.ProcessOnce(ctx, msgID, handlerName, func(ctx context.Context, tx pgx.Tx) error {
		return c.store.RecordEventTx(ctx, tx, env.TraceID, &ev)
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAd) {
			// beacon for a deleted or never-existing ad; not retryable
			log.Warn().Str("ad_id", env.Payload.AdID).Msg("dropping beacon for unknown ad")
			_ = d.Ack(false)
			return
		}
		log.Error().Err(err).Str("message_id", msgID).Msg("beacon processing failed; requeueing")
		_ = d.Nack(false, true)
		return
	}

	if ran {
		metrics.EventsRecorded.WithLabelValues(string(typ), "broker").Inc()
	} else {
		log.Debug().Str("message_id", msgID).Msg("duplicate beacon skipped")
	}
	_ = d.Ack(false)
}

func decodeBeacon(d amqp.Delivery) (event.TrackingEnvelope[event.BeaconPayload], error) {
	var env event.TrackingEnvelope[event.BeaconPayload]
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return env, err
	}
	if env.Version != envelopeVersion {
		return env, errors.New("unsupported envelope version")
	}
	if _, err := uuid.Parse(env.Payload.AdID); err != nil {
		return env, errors.New("invalid ad_id")
	}
	return env, nil
}

// messageID prefers the envelope id, then the AMQP property, and finally
// hashes the body so even id-less producers get stable dedupe keys.
func messageID(d amqp.Delivery, env event.TrackingEnvelope[event.BeaconPayload]) string {
	if env.MessageID != "" {
		return env.MessageID
	}
	if d.MessageId != "" {
		return d.MessageId
	}
	sum := sha256.Sum256(d.Body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func beaconTime(env event.TrackingEnvelope[event.BeaconPayload]) time.Time {
	if env.Payload.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, env.Payload.Timestamp); err == nil {
			return t.UTC()
		}
	}
	return env.OccurredAt.UTC()
}
