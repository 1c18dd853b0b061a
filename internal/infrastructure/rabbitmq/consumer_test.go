package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/adserve/adzone/internal/contracts/event"
	"github.com/adserve/adzone/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEventStore mimics the repository fence: the marker is kept only when
// fn succeeds, and events appended by a failing fn are discarded, the same
// way a rolled-back transaction discards them.
type fakeEventStore struct {
	seen     map[string]bool
	events   []domain.TrackingEvent
	failures int // RecordEventTx errors to return before succeeding
}

func (f *fakeEventStore) ProcessOnce(ctx context.Context, msgID, handler string, fn func(ctx context.Context, tx pgx.Tx) error) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := msgID + "|" + handler
	if f.seen[key] {
		return false, nil
	}

	checkpoint := len(f.events)
	if err := fn(ctx, nil); err != nil {
		f.events = f.events[:checkpoint]
		return false, err
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeEventStore) RecordEventTx(_ context.Context, _ pgx.Tx, _ string, ev *domain.TrackingEvent) error {
	f.events = append(f.events, *ev)
	if f.failures > 0 {
		f.failures--
		return errors.New("insert failed")
	}
	return nil
}

type ackRecorder struct {
	acks     int
	nacks    int
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}
func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func beaconDelivery(t *testing.T, routingKey string, env event.TrackingEnvelope[event.BeaconPayload]) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return amqp.Delivery{RoutingKey: routingKey, Body: body}
}

func TestHandle_ImpressionBeacon(t *testing.T) {
	store := &fakeEventStore{}
	c := NewBeaconConsumer(store)

	adID := uuid.New()
	d := beaconDelivery(t, "ad.impression", event.TrackingEnvelope[event.BeaconPayload]{
		Version:    1,
		Producer:   "edge-pixel",
		MessageID:  "m-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:    event.BeaconPayload{AdID: adID.String(), SourceIP: "203.0.113.9"},
	})

	c.handle(context.Background(), d)

	require.Len(t, store.events, 1)
	assert.Equal(t, adID, store.events[0].AdID)
	assert.Equal(t, domain.EventImpression, store.events[0].Type)
	assert.Equal(t, "203.0.113.9", store.events[0].SourceIP)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), store.events[0].OccurredAt)
}

func TestHandle_DuplicateDeliveryCountsOnce(t *testing.T) {
	store := &fakeEventStore{}
	c := NewBeaconConsumer(store)

	d := beaconDelivery(t, "ad.click", event.TrackingEnvelope[event.BeaconPayload]{
		Version:   1,
		MessageID: "m-dup",
		Payload:   event.BeaconPayload{AdID: uuid.NewString()},
	})

	c.handle(context.Background(), d)
	c.handle(context.Background(), d)

	assert.Len(t, store.events, 1)
}

// A delivery whose transaction fails must leave no trace: no event, no
// dedupe marker. The broker redelivers it and the retry counts exactly once.
func TestHandle_RedeliveryAfterFailureCountsOnce(t *testing.T) {
	store := &fakeEventStore{failures: 1}
	c := NewBeaconConsumer(store)

	env := event.TrackingEnvelope[event.BeaconPayload]{
		Version:   1,
		MessageID: "m-retry",
		Payload:   event.BeaconPayload{AdID: uuid.NewString()},
	}

	first := beaconDelivery(t, "ad.impression", env)
	ack := &ackRecorder{}
	first.Acknowledger = ack
	c.handle(context.Background(), first)

	assert.Empty(t, store.events, "failed delivery must not keep its event")
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeued)

	redelivery := beaconDelivery(t, "ad.impression", env)
	redelivery.Redelivered = true
	c.handle(context.Background(), redelivery)
	c.handle(context.Background(), redelivery)

	assert.Len(t, store.events, 1)
}

func TestHandle_MalformedBodyIsDropped(t *testing.T) {
	store := &fakeEventStore{}
	c := NewBeaconConsumer(store)

	c.handle(context.Background(), amqp.Delivery{RoutingKey: "ad.impression", Body: []byte("{oops")})

	assert.Empty(t, store.events)
}

func TestHandle_UnexpectedRoutingKeyIsDropped(t *testing.T) {
	store := &fakeEventStore{}
	c := NewBeaconConsumer(store)

	d := beaconDelivery(t, "ad.conversion", event.TrackingEnvelope[event.BeaconPayload]{
		Version: 1,
		Payload: event.BeaconPayload{AdID: uuid.NewString()},
	})
	ack := &ackRecorder{}
	d.Acknowledger = ack
	c.handle(context.Background(), d)

	assert.Empty(t, store.events)
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestDecodeBeacon_RejectsBadVersionAndAdID(t *testing.T) {
	adID := uuid.NewString()

	_, err := decodeBeacon(amqp.Delivery{Body: mustJSON(event.TrackingEnvelope[event.BeaconPayload]{
		Version: 2, Payload: event.BeaconPayload{AdID: adID},
	})})
	assert.ErrorContains(t, err, "version")

	_, err = decodeBeacon(amqp.Delivery{Body: mustJSON(event.TrackingEnvelope[event.BeaconPayload]{
		Version: 1, Payload: event.BeaconPayload{AdID: "not-a-uuid"},
	})})
	assert.ErrorContains(t, err, "ad_id")
}

func TestMessageID_Fallbacks(t *testing.T) {
	env := event.TrackingEnvelope[event.BeaconPayload]{MessageID: "env-id"}
	assert.Equal(t, "env-id", messageID(amqp.Delivery{MessageId: "amqp-id"}, env))

	env.MessageID = ""
	assert.Equal(t, "amqp-id", messageID(amqp.Delivery{MessageId: "amqp-id"}, env))

	d := amqp.Delivery{Body: []byte(`{"a":1}`)}
	id1 := messageID(d, env)
	id2 := messageID(d, env)
	assert.Equal(t, id1, id2)
	assert.Contains(t, id1, "sha256:")

	d2 := amqp.Delivery{Body: []byte(`{"a":2}`)}
	assert.NotEqual(t, id1, messageID(d2, env))
}

func TestBeaconTime(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	env := event.TrackingEnvelope[event.BeaconPayload]{
		OccurredAt: occurred,
		Payload:    event.BeaconPayload{Timestamp: "2026-03-01T11:30:00Z"},
	}
	assert.Equal(t, time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC), beaconTime(env))

	env.Payload.Timestamp = ""
	assert.Equal(t, occurred, beaconTime(env))

	env.Payload.Timestamp = "garbage"
	assert.Equal(t, occurred, beaconTime(env))
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
