package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <meta property="og:title" content="{{.Title}}">
  <meta property="og:description" content="{{.Description}}">
  {{- if .Embed}}
  <meta name="fc:frame" content="{{.Embed}}">
  {{- end}}
</head>
<body style="background: {{.Background}}; color: #ffffff;">
  <main id="app"></main>
</body>
</html>
`

type indexData struct {
	Title       string
	Description string
	Background  string
	Embed       string
}

type webhookResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := domain.BuildManifest(s.opts.AppURL, s.opts.Association)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = s.webhook.HandleWebhook(r.Context(), body)
	if err == nil {
		writeJSON(w, http.StatusOK, webhookResponse{Success: true})
		return
	}

	ve, ok := domain.AsVerifyError(err)
	if !ok {
		writeInternalError(w, r, err)
		return
	}

	switch ve.Kind {
	case domain.InvalidData, domain.InvalidEventData:
		writeError(w, http.StatusBadRequest, ve.Error())
	case domain.InvalidAppKey:
		writeError(w, http.StatusUnauthorized, ve.Error())
	case domain.VerifyAppKey:
		// Le hub n'a pas répondu : l'appelant peut réessayer
		writeError(w, http.StatusInternalServerError, ve.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Title:       domain.FrameName,
		Description: "Live Stoke Fire activity, music and notifications",
		Background:  domain.SplashBackgroundColor,
	}

	embed, err := domain.BuildFrameEmbed(s.opts.AppURL)
	switch {
	case err == nil:
		raw, err := json.Marshal(embed)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		data.Embed = string(raw)
	case errors.Is(err, domain.ErrAppURLMissing):
		// Page servie sans embed : la frame n'est juste pas partageable
	default:
		writeInternalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, data); err != nil {
		writeInternalError(w, r, err)
	}
}
