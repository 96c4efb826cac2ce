package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidVillageID = errors.New("village id must be numeric")
	ErrSessionNotFound  = errors.New("feed session not found")
)

// GlobalFeed est la clé de la session non filtrée
const GlobalFeed = ""

const (
	GlobalFeedLimit  = 300
	VillageFeedLimit = 100
)

// DescriptionPreviewLen borne la description affichée dans le PiP
const DescriptionPreviewLen = 50

type Player struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	PFP      string `json:"pfp"`
}

// ActivityEvent est créé par le backend Stoke Fire. Le service ne fait
// que l'accumuler : aucune mutation, aucune suppression.
type ActivityEvent struct {
	ID          int64  `json:"id"`
	EventTime   int64  `json:"eventTime"` // Unix secondes
	EventType   string `json:"eventType"`
	PlayerID    int64  `json:"playerId"`
	VillageID   int64  `json:"villageId"`
	Description string `json:"description"`
	Player      Player `json:"player"`
}

func (e ActivityEvent) Time() time.Time {
	return time.Unix(e.EventTime, 0)
}

// Handle renvoie "@username"
func (e ActivityEvent) Handle() string {
	return "@" + e.Player.Username
}

// ShortDescription tronque à DescriptionPreviewLen runes + "..."
func (e ActivityEvent) ShortDescription() string {
	r := []rune(e.Description)
	if len(r) <= DescriptionPreviewLen {
		return e.Description
	}
	return string(r[:DescriptionPreviewLen]) + "..."
}

// FeedQuery identifie une session de feed. VillageID vide = feed global.
type FeedQuery struct {
	VillageID string
}

func (q FeedQuery) IsGlobal() bool {
	return q.VillageID == GlobalFeed
}

func (q FeedQuery) Limit() int {
	if q.IsGlobal() {
		return GlobalFeedLimit
	}
	return VillageFeedLimit
}

// NewFeedQuery valide l'id de village (token id décimal) avant qu'il ne
// soit injecté dans la requête GraphQL.
func NewFeedQuery(villageID string) (FeedQuery, error) {
	villageID = strings.TrimSpace(villageID)
	if villageID == "" {
		return FeedQuery{}, nil
	}
	for _, c := range villageID {
		if c < '0' || c > '9' {
			return FeedQuery{}, fmt.Errorf("%w: %q", ErrInvalidVillageID, villageID)
		}
	}
	return FeedQuery{VillageID: villageID}, nil
}

// FeedStatus est l'état exposé d'une session
type FeedStatus struct {
	VillageID string          `json:"villageId,omitempty"`
	Events    []ActivityEvent `json:"events"`
	IsLoading bool            `json:"isLoading"`
	IsError   bool            `json:"isError"`
	LastError string          `json:"lastError,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Recent renvoie au plus n événements, les plus récents d'abord
func (s FeedStatus) Recent(n int) []ActivityEvent {
	if len(s.Events) <= n {
		return s.Events
	}
	return s.Events[:n]
}
