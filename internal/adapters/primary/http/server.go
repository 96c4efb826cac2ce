package httpapi

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AppURL         string
	Association    domain.AccountAssociation
	AllowedOrigins []string
}

// Server expose l'API HTTP de la frame (manifest, webhook, feed, lecteur, PiP)
type Server struct {
	feed    ports.FeedService
	webhook ports.WebhookService
	player  ports.PlayerService
	pip     ports.PiPService
	opts    Options
	now     func() time.Time
	index   *template.Template
}

func NewServer(feed ports.FeedService, webhook ports.WebhookService, player ports.PlayerService, pip ports.PiPService, opts Options) *Server {
	return &Server{
		feed:    feed,
		webhook: webhook,
		player:  player,
		pip:     pip,
		opts:    opts,
		now:     time.Now,
		index:   template.Must(template.New("index").Parse(indexHTML)),
	}
}

// Routes renvoie le mux nu (sans CORS ni tracing)
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /.well-known/farcaster.json", s.handleManifest)
	mux.HandleFunc("POST /api/webhook", s.handleWebhook)

	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("POST /api/feed/revalidate", s.handleRevalidate)
	mux.HandleFunc("DELETE /api/feed/session", s.handleEndSession)

	mux.HandleFunc("GET /api/player", s.handlePlayerState)
	mux.HandleFunc("POST /api/player/{op}", s.handlePlayerOp)
	mux.HandleFunc("PUT /api/player/volume", s.handleVolume)

	mux.HandleFunc("GET /api/pip/frame.png", s.handlePiPFrame)
	mux.HandleFunc("GET /api/pip/stream", s.handlePiPStream)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /{$}", s.handleIndex)

	return mux
}

// Handler est la chaîne complète : CORS puis OTEL à la racine
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Routes()

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "traceparent", "baggage"},
	})
	h = c.Handler(h)

	return otelhttp.NewHandler(h, "ember-http", otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))
}

// --- Helpers ---

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("❌ Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
