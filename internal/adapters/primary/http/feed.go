package httpapi

import (
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

// Taille d'affichage des avatars dans la liste
const rowAvatarSize = 48

// feedRow est un événement prêt à afficher
type feedRow struct {
	ID        int64                `json:"id"`
	Handle    string               `json:"handle"`
	AvatarURL string               `json:"avatarUrl,omitempty"`
	TimeAgo   string               `json:"timeAgo"`
	Summary   []domain.SummarySpan `json:"summary"`
}

type feedResponse struct {
	domain.FeedStatus
	Rows []feedRow `json:"rows"`
}

func (s *Server) feedQuery(w http.ResponseWriter, r *http.Request) (domain.FeedQuery, bool) {
	q, err := domain.NewFeedQuery(r.URL.Query().Get("villageId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.FeedQuery{}, false
	}
	return q, true
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q, ok := s.feedQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.feedResponse(s.feed.Status(r.Context(), q)))
}

// handleRevalidate : le client a repris le focus. Une erreur upstream est
// portée par le statut (isError), pas par le code HTTP.
func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	q, ok := s.feedQuery(w, r)
	if !ok {
		return
	}
	status, _ := s.feed.Revalidate(r.Context(), q)
	writeJSON(w, http.StatusOK, s.feedResponse(status))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	q, ok := s.feedQuery(w, r)
	if !ok {
		return
	}
	err := s.feed.EndSession(r.Context(), q)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func (s *Server) feedResponse(status domain.FeedStatus) feedResponse {
	now := s.now()
	rows := make([]feedRow, len(status.Events))
	for i, e := range status.Events {
		rows[i] = feedRow{
			ID:        e.ID,
			Handle:    e.Handle(),
			AvatarURL: domain.AvatarURL(e.Player.PFP, rowAvatarSize),
			TimeAgo:   humanize.RelTime(e.Time(), now, "ago", "from now"),
			Summary:   domain.Summarize(e.Description),
		}
	}
	return feedResponse{FeedStatus: status, Rows: rows}
}
