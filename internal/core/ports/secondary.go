package ports

import (
	"context"
	"image"
	"time"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

// --- DRIVEN (Ce dont le service a besoin) ---

// EventsAPI est l'API GraphQL Stoke Fire
type EventsAPI interface {
	FetchEvents(ctx context.Context, q domain.FeedQuery) ([]domain.ActivityEvent, error)
}

// WebhookVerifier décode et vérifie une enveloppe JFS.
// Toute erreur renvoyée est un *domain.VerifyError.
type WebhookVerifier interface {
	Verify(ctx context.Context, body []byte) (*domain.VerifiedEvent, error)
}

// AppKeyVerifier demande au hub si la clé est bien enregistrée pour le fid.
// Une erreur signifie "impossible de vérifier", pas "clé invalide".
type AppKeyVerifier interface {
	VerifyAppKey(ctx context.Context, fid int64, appKey string) (valid bool, appFID int64, err error)
}

type NotificationSender interface {
	Send(ctx context.Context, details domain.NotificationDetails, notificationID string, n domain.Notification, targetURL string) (domain.SendResult, error)
}

// --- PERSISTANCE ---

type SubscriptionRepository interface {
	Save(ctx context.Context, sub domain.NotificationSubscription) error
	Delete(ctx context.Context, fid int64) error
	Get(ctx context.Context, fid int64) (*domain.NotificationSubscription, error)
}

type DeliveryRepository interface {
	Record(ctx context.Context, d domain.NotificationDelivery) error
}

// --- MESSAGERIE ---

type EventPublisher interface {
	PublishFeedEvent(ctx context.Context, e domain.ActivityEvent) error
	PublishWebhookEvent(ctx context.Context, e domain.VerifiedEvent) error
	PublishPlayerState(ctx context.Context, s domain.PlayerState) error
}

// --- RENDU ---

// Scene est tout ce qu'il faut pour dessiner une frame PiP
type Scene struct {
	NowPlaying string
	Events     []domain.ActivityEvent
	Loading    bool
	Now        time.Time
}

type FramePainter interface {
	Paint(ctx context.Context, scene Scene) (image.Image, error)
}

// AvatarCache garde les photos de profil décodées, par URL
type AvatarCache interface {
	Purge()
	Len() int
}
