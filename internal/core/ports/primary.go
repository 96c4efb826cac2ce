package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

// --- DRIVING (Ce que le service expose) ---

type FeedService interface {
	// Status lit la session (créée au besoin) sans déclencher de fetch
	Status(ctx context.Context, q domain.FeedQuery) domain.FeedStatus

	// Revalidate refetch maintenant (focus client, trigger NATS), sauf si
	// un fetch récent tombe dans la fenêtre de dédoublonnage
	Revalidate(ctx context.Context, q domain.FeedQuery) (domain.FeedStatus, error)

	// RevalidateAll est appelé sur reconnexion réseau
	RevalidateAll(ctx context.Context)

	// EndSession jette l'accumulateur d'une session
	EndSession(ctx context.Context, q domain.FeedQuery) error
}

type WebhookService interface {
	// HandleWebhook vérifie le corps JFS puis traite l'événement.
	// Les erreurs de vérification sont des *domain.VerifyError.
	HandleWebhook(ctx context.Context, body []byte) error
}

type PlayerService interface {
	State() domain.PlayerState
	Next(ctx context.Context) domain.PlayerState
	Prev(ctx context.Context) domain.PlayerState
	TogglePlay(ctx context.Context) domain.PlayerState
	SetVolume(ctx context.Context, v float64) (domain.PlayerState, error)
	TrackEnded(ctx context.Context) domain.PlayerState
	TrackFailed(ctx context.Context) domain.PlayerState
}

type PiPService interface {
	// Frame renvoie la dernière image PNG
	Frame(ctx context.Context) ([]byte, error)

	// Subscribe reçoit chaque redessin en JPEG jusqu'à l'appel de cancel
	Subscribe() (<-chan []byte, func())
}
