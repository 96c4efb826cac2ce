package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

const (
	fetchTimeout     = 15 * time.Second
	pollConcurrency  = 4 // Sessions rafraîchies en parallèle à chaque tick
	defaultWarnLimit = 5000
)

type FeedOptions struct {
	PollInterval   time.Duration
	DedupeInterval time.Duration
	SessionIdle    time.Duration
	WarnEvents     int // Seuil de log sur la taille d'un accumulateur
}

type FeedService struct {
	api       ports.EventsAPI
	publisher ports.EventPublisher
	opts      FeedOptions
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*feedSession
	nextGen  uint64
	stopping bool // plus de fetch initial en arrière-plan
	inflight singleflight.Group
	wg       sync.WaitGroup
}

func NewFeedService(api ports.EventsAPI, pub ports.EventPublisher, opts FeedOptions) *FeedService {
	if opts.WarnEvents <= 0 {
		opts.WarnEvents = defaultWarnLimit
	}
	return &FeedService{
		api:       api,
		publisher: pub,
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*feedSession),
	}
}

// feedSession : une requête (globale ou village) et son accumulateur.
// gen distingue une session recréée après EndSession de la précédente.
type feedSession struct {
	query domain.FeedQuery
	acc   *Accumulator
	gen   uint64

	mu        sync.Mutex
	ended     bool
	resolved  bool // au moins un fetch terminé
	lastErr   error
	fetchedAt time.Time
	lastRead  time.Time
}

func (s *feedSession) status() domain.FeedStatus {
	events := s.acc.Snapshot()
	if events == nil {
		events = []domain.ActivityEvent{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.FeedStatus{
		VillageID: s.query.VillageID,
		Events:    events,
		IsLoading: !s.resolved,
		IsError:   s.lastErr != nil,
		FetchedAt: s.fetchedAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// flightKey : un fetch en vol n'est partagé qu'au sein d'une même session
func (s *feedSession) flightKey() string {
	return fmt.Sprintf("%s#%d", s.query.VillageID, s.gen)
}

func (s *feedSession) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.acc.Reset()
}

func (s *feedSession) fetchedWithin(now time.Time, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.fetchedAt.IsZero() && now.Sub(s.fetchedAt) < d
}

// session renvoie la session de q, créée au besoin. created indique une
// nouvelle session (qui n'a encore jamais été fetchée).
func (f *FeedService) session(q domain.FeedQuery) (s *feedSession, created bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[q.VillageID]
	if !ok {
		f.nextGen++
		s = &feedSession{query: q, acc: NewAccumulator(), gen: f.nextGen}
		f.sessions[q.VillageID] = s
		created = true
		slog.Debug("🆕 Feed session opened", "village_id", q.VillageID)
	}

	s.mu.Lock()
	s.lastRead = f.now()
	s.mu.Unlock()
	return s, created
}

func (f *FeedService) Status(ctx context.Context, q domain.FeedQuery) domain.FeedStatus {
	s, created := f.session(q)
	if created && f.track() {
		// Premier accès : on lance le fetch initial sans bloquer le lecteur
		bg := context.WithoutCancel(ctx)
		go func() {
			defer f.wg.Done()
			_, _ = f.revalidate(bg, s)
		}()
	}
	return s.status()
}

// track réserve une place dans wg, sauf si le poller s'arrête
func (f *FeedService) track() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopping {
		return false
	}
	f.wg.Add(1)
	return true
}

func (f *FeedService) Revalidate(ctx context.Context, q domain.FeedQuery) (domain.FeedStatus, error) {
	s, _ := f.session(q)
	return f.revalidate(ctx, s)
}

func (f *FeedService) revalidate(ctx context.Context, s *feedSession) (domain.FeedStatus, error) {
	_, err, _ := f.inflight.Do(s.flightKey(), func() (any, error) {
		// Dédoublonnage : un fetch terminé il y a moins de DedupeInterval suffit
		if s.fetchedWithin(f.now(), f.opts.DedupeInterval) {
			return nil, nil
		}
		return nil, f.fetch(ctx, s)
	})
	return s.status(), err
}

// fetch n'appelle Merge qu'après un décodage complet : un échec laisse
// l'accumulateur intact.
func (f *FeedService) fetch(ctx context.Context, s *feedSession) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
	defer cancel()

	events, err := f.api.FetchEvents(ctx, s.query)

	// Merge sous s.mu : end() ne peut pas s'intercaler entre le test et la fusion
	var fresh []domain.ActivityEvent
	s.mu.Lock()
	ended := s.ended
	s.resolved = true
	s.fetchedAt = f.now()
	s.lastErr = err
	if !ended && err == nil {
		fresh = s.acc.Merge(events)
	}
	s.mu.Unlock()

	if ended {
		// Session fermée pendant le fetch : rien à publier
		return nil
	}
	if err != nil {
		slog.Warn("⚠️ Feed fetch failed", "village_id", s.query.VillageID, "error", err)
		return err
	}

	size := s.acc.Len()
	slog.Debug("✅ Feed merged", "village_id", s.query.VillageID, "fetched", len(events), "new", len(fresh), "total", size)

	if size > f.opts.WarnEvents {
		slog.Warn("📈 Feed session keeps growing", "village_id", s.query.VillageID, "total", size)
	}

	for _, e := range fresh {
		if err := f.publisher.PublishFeedEvent(ctx, e); err != nil {
			slog.Error("❌ Failed to publish feed event", "event_id", e.ID, "error", err)
		}
	}
	return nil
}

func (f *FeedService) RevalidateAll(ctx context.Context) {
	for _, s := range f.snapshotSessions() {
		if _, err := f.revalidate(ctx, s); err != nil {
			slog.Debug("Revalidation failed", "village_id", s.query.VillageID, "error", err)
		}
	}
}

func (f *FeedService) EndSession(_ context.Context, q domain.FeedQuery) error {
	f.mu.Lock()
	s, ok := f.sessions[q.VillageID]
	delete(f.sessions, q.VillageID)
	f.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	s.end()
	slog.Info("🧹 Feed session ended", "village_id", q.VillageID)
	return nil
}

// Run poll toutes les sessions vivantes jusqu'à l'annulation de ctx
func (f *FeedService) Run(ctx context.Context) error {
	slog.Info("🔁 Feed poller started", "interval", f.opts.PollInterval)

	// La session globale sert le PiP : elle existe dès le démarrage
	if _, err := f.Revalidate(ctx, domain.FeedQuery{}); err != nil {
		slog.Warn("Initial feed fetch failed", "error", err)
	}

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.stopping = true
			f.mu.Unlock()
			f.wait()
			slog.Info("🛑 Feed poller stopped")
			return nil
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *FeedService) pollOnce(ctx context.Context) {
	f.expireIdle()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, s := range f.snapshotSessions() {
		g.Go(func() error {
			// Les erreurs sont portées par la session (isError), pas par le tick
			_, _ = f.revalidate(gctx, s)
			return nil
		})
	}
	_ = g.Wait()
}

// expireIdle ferme les sessions village non lues depuis SessionIdle.
// La session globale reste toujours ouverte.
func (f *FeedService) expireIdle() {
	if f.opts.SessionIdle <= 0 {
		return
	}
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, s := range f.sessions {
		if key == domain.GlobalFeed {
			continue
		}
		s.mu.Lock()
		idle := now.Sub(s.lastRead) > f.opts.SessionIdle
		s.mu.Unlock()
		if idle {
			delete(f.sessions, key)
			s.end()
			slog.Info("⌛ Feed session expired", "village_id", key)
		}
	}
}

func (f *FeedService) snapshotSessions() []*feedSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*feedSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

// wait attend les fetchs initiaux lancés en arrière-plan
func (f *FeedService) wait() {
	f.wg.Wait()
}
