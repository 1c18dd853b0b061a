package audit

import (
	"context"

	appCtx "github.com/adserve/adzone/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// AdServed logs one successful ad selection.
func (l *Logger) AdServed(ctx context.Context, adID, zoneID uuid.UUID) {
	l.log.Debug().
		Str("action", "ad_served").
		Str("ad_id", adID.String()).
		Str("zone_id", zoneID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Ad served")
}

// EventRecorded logs a durably appended impression or click.
func (l *Logger) EventRecorded(ctx context.Context, eventID, adID uuid.UUID, eventType string) {
	l.log.Info().
		Str("action", "event_recorded").
		Str("event_id", eventID.String()).
		Str("ad_id", adID.String()).
		Str("event_type", eventType).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Tracking event recorded")
}

// EntityCreated logs creation of an advertiser, category, zone or ad.
func (l *Logger) EntityCreated(ctx context.Context, entity string, id uuid.UUID) {
	l.log.Info().
		Str("action", "entity_created").
		Str("entity", entity).
		Str("id", id.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Entity created")
}

// AdMutated logs an admin mutation on an ad (update/enable/disable/extend).
func (l *Logger) AdMutated(ctx context.Context, adID uuid.UUID, mutation string, actorID uuid.UUID) {
	l.log.Info().
		Str("action", "ad_mutated").
		Str("ad_id", adID.String()).
		Str("mutation", mutation).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Ad mutated")
}

// OutboxMessageSent logs when an outbox message is successfully published
func (l *Logger) OutboxMessageSent(ctx context.Context, messageID, routingKey string) {
	l.log.Debug().
		Str("action", "outbox_sent").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Msg("Outbox message sent")
}

// OutboxMessageDead logs when an outbox message is moved to dead status
func (l *Logger) OutboxMessageDead(ctx context.Context, messageID, routingKey string, retries int) {
	l.log.Error().
		Str("action", "outbox_dead").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Int("retries", retries).
		Msg("Outbox message moved to dead status")
}
