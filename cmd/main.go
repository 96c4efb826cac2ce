package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	// Drivers
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	// Instrumentation
	"github.com/exaring/otelpgx"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Interne
	"github.com/jupiterclapton/cenackle/services/ember-service/config"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/primary/events"
	grpc_adapter "github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/primary/grpc"
	httpapi "github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/primary/http"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/secondary/clients"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/secondary/render"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/adapters/secondary/security"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/services"
)

func main() {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	initLogger(cfg)
	// Pas de dump complet de cfg : clé Neynar et DSN Postgres
	slog.Info("🚀 Starting Ember Service",
		"env", cfg.Env,
		"app_url", cfg.AppURL,
		"events_api", cfg.EventsAPIURL,
		"hub", cfg.HubURL,
		"poll_interval", cfg.FeedPollInterval,
		"pip_size", fmt.Sprintf("%dx%d", cfg.PiPWidth, cfg.PiPHeight),
	)
	if cfg.AppURL == "" {
		slog.Warn("⚠️ APP_URL is not set: manifest and webhook will answer 500")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Télémétrie (Tracing)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// 3. Infrastructure: Redis (abonnements aux notifications)
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		slog.Error("Failed to instrument Redis", "error", err)
		os.Exit(1)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("✅ Connected to Redis")

	// 4. Infrastructure: Postgres (journal des notifications)
	dbConfig, err := pgxpool.ParseConfig(cfg.DBUrl)
	if err != nil {
		slog.Error("Unable to parse DB config", "error", err)
		os.Exit(1)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	deliveryRepo := repository.NewPostgresDeliveryRepo(dbPool)
	if err := deliveryRepo.EnsureSchema(ctx); err != nil {
		slog.Error("Unable to prepare database schema", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Postgres")

	subscriptionRepo := repository.NewRedisSubscriptionRepo(rdb)

	// 5. Clients HTTP sortants (tracés)
	httpClient := &http.Client{
		Timeout:   cfg.HTTPClientTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	eventsClient, err := clients.NewEventsClient(cfg.EventsAPIURL, httpClient)
	if err != nil {
		slog.Error("Unable to build events client", "error", err)
		os.Exit(1)
	}
	hubClient := clients.NewHubClient(cfg.HubURL, cfg.NeynarAPIKey, httpClient)
	notificationClient := clients.NewNotificationClient(httpClient)
	imageClient := clients.NewImageClient(httpClient)

	// 6. Infrastructure: Event Broker NATS
	nc, err := nats.Connect(cfg.NatsUrl,
		nats.Name(cfg.ServiceName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("🔌 NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		slog.Error("Unable to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	slog.Info("✅ Connected to NATS")

	publisher := eventbroker.NewNatsPublisher(nc)

	// 7. Initialisation du Core
	feedService := services.NewFeedService(eventsClient, publisher, services.FeedOptions{
		PollInterval:   cfg.FeedPollInterval,
		DedupeInterval: cfg.FeedDedupeInterval,
		SessionIdle:    cfg.FeedSessionIdle,
		WarnEvents:     cfg.FeedWarnEvents,
	})
	playerService := services.NewPlayerService(publisher, cfg.PlayerRetryDelay)
	defer playerService.Close()

	webhookService := services.NewWebhookService(
		cfg.AppURL,
		security.NewJFSVerifier(hubClient),
		notificationClient,
		subscriptionRepo,
		deliveryRepo,
		publisher,
	)

	avatarCache, err := render.NewImageCache(imageClient, cfg.PiPImageCacheSize, render.AvatarSize(cfg.PiPWidth))
	if err != nil {
		slog.Error("Unable to build avatar cache", "error", err)
		os.Exit(1)
	}
	painter, err := render.NewPainter(cfg.PiPWidth, cfg.PiPHeight, avatarCache)
	if err != nil {
		slog.Error("Unable to build PiP painter", "error", err)
		os.Exit(1)
	}
	pipService := services.NewPiPService(feedService, playerService, painter, avatarCache, cfg.PiPRedrawInterval)

	// 8. Consumer NATS (Driving Adapter - Async)
	eventHandler := events.NewEventHandler(feedService)
	if _, err := eventHandler.Subscribe(nc); err != nil {
		slog.Error("Failed to subscribe to NATS", "error", err)
		os.Exit(1)
	}
	// Retour du réseau : toutes les sessions sont rafraîchies
	nc.SetReconnectHandler(eventHandler.HandleReconnect)
	slog.Info("👂 Listening for events (NATS)", "subject", events.SubjectFeedRevalidate)

	// 9. Boucles de fond : poller du feed et rendu PiP
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		_ = feedService.Run(ctx)
	}()
	go func() {
		defer loops.Done()
		_ = pipService.Run(ctx)
	}()

	// 10. Serveur HTTP (Driving Adapter - Sync)
	api := httpapi.NewServer(feedService, webhookService, playerService, pipService, httpapi.Options{
		AppURL: cfg.AppURL,
		Association: domain.AccountAssociation{
			Header:    cfg.FarcasterHeader,
			Payload:   cfg.FarcasterPayload,
			Signature: cfg.FarcasterSignature,
		},
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("📡 Ember HTTP listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// 11. Serveur gRPC (health uniquement)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthAdapter := grpc_adapter.NewServer(cfg.IsLocal())
	healthAdapter.Register(grpcServer)
	healthAdapter.SetServing()

	go func() {
		slog.Info("📡 Ember gRPC health listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("🛑 Shutting down server...")

	healthAdapter.Shutdown()

	// Ferme les flux MJPEG avant de drainer le serveur HTTP
	cancel()
	loops.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	grpcServer.GracefulStop()
	slog.Info("👋 Server exited")
}

// --- Helpers ---

func initLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsLocal() {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.IsLocal() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
