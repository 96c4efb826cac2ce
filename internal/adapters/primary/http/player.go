package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.player.State())
}

func (s *Server) handlePlayerOp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var state domain.PlayerState
	switch r.PathValue("op") {
	case "next":
		state = s.player.Next(ctx)
	case "prev":
		state = s.player.Prev(ctx)
	case "toggle":
		state = s.player.TogglePlay(ctx)
	case "ended":
		state = s.player.TrackEnded(ctx)
	case "error":
		state = s.player.TrackFailed(ctx)
	default:
		writeError(w, http.StatusNotFound, "unknown player operation")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"volume\": number}")
		return
	}

	state, err := s.player.SetVolume(r.Context(), *req.Volume)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, domain.ErrInvalidVolume):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}
