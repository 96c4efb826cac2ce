package events

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

const (
	SubjectFeedRevalidate = "ember.feed.revalidate"
	handlerTimeout        = 30 * time.Second
)

type EventHandler struct {
	service ports.FeedService
}

func NewEventHandler(service ports.FeedService) *EventHandler {
	return &EventHandler{service: service}
}

// Subscribe branche le handler sur la connexion NATS
func (h *EventHandler) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe(SubjectFeedRevalidate, h.HandleRevalidate)
}

// HandleRevalidate : le payload est l'id du village, vide pour le feed global
func (h *EventHandler) HandleRevalidate(msg *nats.Msg) {
	// Contexte de trace transmis par l'émetteur
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

	tracer := otel.Tracer("ember-service")
	ctx, span := tracer.Start(ctx, "process_feed_revalidate", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	q, err := domain.NewFeedQuery(strings.TrimSpace(string(msg.Data)))
	if err != nil {
		span.RecordError(err)
		slog.Error("❌ Invalid revalidate request", "payload", string(msg.Data), "error", err)
		return
	}
	span.SetAttributes(attribute.String("village_id", q.VillageID))

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.service.Revalidate(ctx, q); err != nil {
		span.RecordError(err)
		slog.Error("❌ Remote revalidation failed", "village_id", q.VillageID, "error", err)
		return
	}
	slog.Debug("✅ Remote revalidation done", "village_id", q.VillageID)
}

// HandleReconnect est le ReconnectHandler NATS : la connexion revient,
// toutes les sessions sont rafraîchies.
func (h *EventHandler) HandleReconnect(nc *nats.Conn) {
	slog.Info("🔌 NATS reconnected, revalidating feeds", "url", nc.ConnectedUrl())

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	h.service.RevalidateAll(ctx)
}
