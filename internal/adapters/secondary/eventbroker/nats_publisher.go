package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

const (
	SubjectFeedEvent     = "ember.feed.event"
	SubjectWebhookPrefix = "ember.webhook."
	SubjectPlayerState   = "ember.player.state"
)

type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{nc: nc}
}

// WebhookEventMessage est ce que les abonnés de ember.webhook.* reçoivent.
// Le token de notification n'est jamais diffusé.
type WebhookEventMessage struct {
	FID              int64  `json:"fid"`
	AppFID           int64  `json:"app_fid"`
	Event            string `json:"event"`
	NotificationsURL string `json:"notifications_url,omitempty"`
}

func (p *NatsPublisher) PublishFeedEvent(ctx context.Context, e domain.ActivityEvent) error {
	return p.publish(ctx, SubjectFeedEvent, e)
}

func (p *NatsPublisher) PublishWebhookEvent(ctx context.Context, e domain.VerifiedEvent) error {
	msg := WebhookEventMessage{
		FID:    e.FID,
		AppFID: e.AppFID,
		Event:  string(e.Event.Event),
	}
	if d := e.Event.NotificationDetails; d != nil {
		msg.NotificationsURL = d.URL
	}
	return p.publish(ctx, SubjectWebhookPrefix+string(e.Event.Event), msg)
}

func (p *NatsPublisher) PublishPlayerState(ctx context.Context, s domain.PlayerState) error {
	return p.publish(ctx, SubjectPlayerState, s)
}

func (p *NatsPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// Le trace id courant voyage dans les headers NATS
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	slog.Debug("📢 Publishing event", "subject", subject)
	return p.nc.PublishMsg(msg)
}
