package domain

import (
	"errors"
	"fmt"
	"time"
)

// --- ÉVÉNEMENTS WEBHOOK ---

type WebhookEventType string

const (
	EventFrameAdded            WebhookEventType = "frame_added"
	EventFrameRemoved          WebhookEventType = "frame_removed"
	EventNotificationsEnabled  WebhookEventType = "notifications_enabled"
	EventNotificationsDisabled WebhookEventType = "notifications_disabled"
)

func (t WebhookEventType) Valid() bool {
	switch t {
	case EventFrameAdded, EventFrameRemoved, EventNotificationsEnabled, EventNotificationsDisabled:
		return true
	}
	return false
}

// NotificationDetails est fourni par le client Farcaster : où et avec
// quel token envoyer les notifications.
type NotificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type WebhookEvent struct {
	Event               WebhookEventType     `json:"event"`
	NotificationDetails *NotificationDetails `json:"notificationDetails,omitempty"`
}

// VerifiedEvent est le résultat d'une vérification JFS réussie
type VerifiedEvent struct {
	FID    int64
	AppFID int64
	Event  WebhookEvent
}

// --- ERREURS DE VÉRIFICATION ---

// VerifyErrorKind classe les échecs de vérification. Le handler HTTP
// fait un switch exhaustif dessus.
type VerifyErrorKind int

const (
	InvalidData      VerifyErrorKind = iota + 1 // enveloppe, header ou signature invalides
	InvalidEventData                            // payload signé mais événement inconnu/mal formé
	InvalidAppKey                               // clé non enregistrée pour ce fid
	VerifyAppKey                                // le hub n'a pas pu répondre (réessayable)
)

func (k VerifyErrorKind) String() string {
	switch k {
	case InvalidData:
		return "invalid_data"
	case InvalidEventData:
		return "invalid_event_data"
	case InvalidAppKey:
		return "invalid_app_key"
	case VerifyAppKey:
		return "verify_app_key"
	default:
		return fmt.Sprintf("verify_error(%d)", int(k))
	}
}

type VerifyError struct {
	Kind VerifyErrorKind
	Err  error
}

func NewVerifyError(kind VerifyErrorKind, format string, args ...any) *VerifyError {
	return &VerifyError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// AsVerifyError extrait le VerifyError d'une chaîne d'erreurs
func AsVerifyError(err error) (*VerifyError, bool) {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// --- NOTIFICATIONS ---

const (
	NotificationTitleMax = 32
	NotificationBodyMax  = 128
)

type Notification struct {
	Tag   string
	Title string
	Body  string
}

// Truncated applique les limites Farcaster (en runes, pas en octets)
func (n Notification) Truncated() Notification {
	n.Title = truncateRunes(n.Title, NotificationTitleMax)
	n.Body = truncateRunes(n.Body, NotificationBodyMax)
	return n
}

// ID au format "<tag>-<unix ms>"
func (n Notification) ID(at time.Time) string {
	return fmt.Sprintf("%s-%d", n.Tag, at.UnixMilli())
}

// WelcomeNotification renvoie le message associé à un événement, ou false
// si l'événement n'en déclenche pas.
func WelcomeNotification(t WebhookEventType) (Notification, bool) {
	switch t {
	case EventFrameAdded:
		return Notification{
			Tag:   "welcomeEmberIsland",
			Title: "🌋 Welcome to Ember Island!",
			Body:  "Your journey begins! Discover Stoke Fire by @nbragg and check out @kelvinpraises' work. Visit /stokefire to keep your village warm!",
		}, true
	case EventNotificationsEnabled:
		return Notification{
			Tag:   "emberIslandNotifications",
			Title: "✨ Island Whispers Activated!",
			Body:  "Magic unfolds! Island secrets revealed. Adventure calls at /stokefire!",
		}, true
	}
	return Notification{}, false
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// NotificationSubscription est ce qu'on garde en Redis pour un fid.
// Event est le dernier événement qui l'a créée ou rafraîchie.
type NotificationSubscription struct {
	FID       int64
	AppFID    int64
	Event     WebhookEventType
	URL       string
	Token     string
	UpdatedAt time.Time
}

// Redelivery indique que l'événement a déjà été traité pour cet abonnement
// (même événement, même url, même token) : le client Farcaster a rejoué
// le webhook.
func (s *NotificationSubscription) Redelivery(event WebhookEventType, details NotificationDetails) bool {
	return s != nil && s.Event == event && s.URL == details.URL && s.Token == details.Token
}

type DeliveryStatus string

const (
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"   // transport / HTTP
	DeliveryRejected DeliveryStatus = "rejected" // réponse explicite du client Farcaster
)

// SendResult est la réponse interprétée du endpoint de notification
type SendResult struct {
	Success      bool
	Message      string
	InvalidToken bool
	RateLimited  bool
}

// NotificationDelivery est une ligne du journal d'envoi (Postgres)
type NotificationDelivery struct {
	ID             string
	NotificationID string
	FID            int64
	Title          string
	Body           string
	TargetURL      string
	Status         DeliveryStatus
	Error          string
	CreatedAt      time.Time
}
