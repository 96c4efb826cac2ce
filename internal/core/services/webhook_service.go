package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

type WebhookService struct {
	appURL     string
	verifier   ports.WebhookVerifier
	sender     ports.NotificationSender
	subs       ports.SubscriptionRepository
	deliveries ports.DeliveryRepository
	publisher  ports.EventPublisher
	now        func() time.Time
}

func NewWebhookService(
	appURL string,
	verifier ports.WebhookVerifier,
	sender ports.NotificationSender,
	subs ports.SubscriptionRepository,
	deliveries ports.DeliveryRepository,
	pub ports.EventPublisher,
) *WebhookService {
	return &WebhookService{
		appURL:     appURL,
		verifier:   verifier,
		sender:     sender,
		subs:       subs,
		deliveries: deliveries,
		publisher:  pub,
		now:        time.Now,
	}
}

func (s *WebhookService) HandleWebhook(ctx context.Context, body []byte) error {
	if s.appURL == "" {
		return domain.ErrAppURLMissing
	}

	// 1. Vérification de la signature (erreurs typées *domain.VerifyError)
	verified, err := s.verifier.Verify(ctx, body)
	if err != nil {
		return err
	}

	slog.Info("📨 Webhook event received", "event", verified.Event.Event, "fid", verified.FID, "app_fid", verified.AppFID)

	// 2. Diffusion (best effort)
	if err := s.publisher.PublishWebhookEvent(ctx, *verified); err != nil {
		slog.Error("❌ Failed to publish webhook event", "event", verified.Event.Event, "error", err)
	}

	// 3. Abonnements + notification de bienvenue
	switch verified.Event.Event {
	case domain.EventFrameAdded, domain.EventNotificationsEnabled:
		details := verified.Event.NotificationDetails
		if details == nil {
			return nil
		}
		replay := s.isRedelivery(ctx, verified, *details)
		s.subscribe(ctx, verified, *details)
		if replay {
			slog.Info("🔁 Webhook replayed, welcome already sent", "event", verified.Event.Event, "fid", verified.FID)
			return nil
		}
		if n, ok := domain.WelcomeNotification(verified.Event.Event); ok {
			s.notify(ctx, verified.FID, *details, n)
		}

	case domain.EventFrameRemoved, domain.EventNotificationsDisabled:
		s.unsubscribe(ctx, verified.FID)
	}

	return nil
}

// isRedelivery lit l'abonnement stocké. Une erreur de lecture vaut
// "événement nouveau".
func (s *WebhookService) isRedelivery(ctx context.Context, v *domain.VerifiedEvent, details domain.NotificationDetails) bool {
	stored, err := s.subs.Get(ctx, v.FID)
	if err != nil {
		slog.Error("❌ Failed to read notification subscription", "fid", v.FID, "error", err)
		return false
	}
	return stored.Redelivery(v.Event.Event, details)
}

func (s *WebhookService) subscribe(ctx context.Context, v *domain.VerifiedEvent, details domain.NotificationDetails) {
	sub := domain.NotificationSubscription{
		FID:       v.FID,
		AppFID:    v.AppFID,
		Event:     v.Event.Event,
		URL:       details.URL,
		Token:     details.Token,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.subs.Save(ctx, sub); err != nil {
		slog.Error("❌ Failed to save notification subscription", "fid", v.FID, "error", err)
	}
}

func (s *WebhookService) unsubscribe(ctx context.Context, fid int64) {
	if err := s.subs.Delete(ctx, fid); err != nil {
		slog.Error("❌ Failed to delete notification subscription", "fid", fid, "error", err)
	}
}

// notify envoie une notification. Les échecs sont journalisés, jamais
// remontés à l'appelant du webhook.
func (s *WebhookService) notify(ctx context.Context, fid int64, details domain.NotificationDetails, n domain.Notification) {
	if details.URL == "" || details.Token == "" {
		slog.Error("Missing notification configuration", "fid", fid)
		return
	}

	n = n.Truncated()
	now := s.now()
	delivery := domain.NotificationDelivery{
		ID:             uuid.NewString(),
		NotificationID: n.ID(now),
		FID:            fid,
		Title:          n.Title,
		Body:           n.Body,
		TargetURL:      s.appURL,
		Status:         domain.DeliverySent,
		CreatedAt:      now.UTC(),
	}

	res, err := s.sender.Send(ctx, details, delivery.NotificationID, n, s.appURL)
	switch {
	case err != nil:
		delivery.Status = domain.DeliveryFailed
		delivery.Error = err.Error()
		slog.Error("❌ Error sending notification", "fid", fid, "error", err)
	case !res.Success:
		delivery.Status = domain.DeliveryRejected
		delivery.Error = res.Message
		slog.Error("❌ Failed to send notification", "fid", fid, "message", res.Message)
	default:
		slog.Info("🔔 Notification sent", "fid", fid, "notification_id", delivery.NotificationID)
	}

	if res.InvalidToken {
		s.unsubscribe(ctx, fid)
	}

	if err := s.deliveries.Record(ctx, delivery); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("❌ Failed to record notification delivery", "notification_id", delivery.NotificationID, "error", err)
	}
}
