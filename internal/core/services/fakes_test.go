package services

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

func event(id, at int64) domain.ActivityEvent {
	return domain.ActivityEvent{
		ID:          id,
		EventTime:   at,
		EventType:   "raid",
		Description: "stole 10 wood",
		Player:      domain.Player{ID: id, Username: "player"},
	}
}

// --- EventsAPI ---

type fakeEventsAPI struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
	err    error
	calls  atomic.Int32
	gate   chan struct{} // si non nil, chaque fetch attend un signal
}

func (f *fakeEventsAPI) FetchEvents(ctx context.Context, q domain.FeedQuery) ([]domain.ActivityEvent, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ActivityEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeEventsAPI) set(events []domain.ActivityEvent, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
	f.err = err
}

// --- EventPublisher ---

type fakePublisher struct {
	mu      sync.Mutex
	feed    []domain.ActivityEvent
	webhook []domain.VerifiedEvent
	player  []domain.PlayerState
	err     error
}

func (p *fakePublisher) PublishFeedEvent(_ context.Context, e domain.ActivityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feed = append(p.feed, e)
	return p.err
}

func (p *fakePublisher) PublishWebhookEvent(_ context.Context, e domain.VerifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.webhook = append(p.webhook, e)
	return p.err
}

func (p *fakePublisher) PublishPlayerState(_ context.Context, s domain.PlayerState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.player = append(p.player, s)
	return p.err
}

func (p *fakePublisher) feedEvents() []domain.ActivityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ActivityEvent(nil), p.feed...)
}

func (p *fakePublisher) playerStates() []domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PlayerState(nil), p.player...)
}

// --- Webhook ---

type fakeVerifier struct {
	verified *domain.VerifiedEvent
	err      error
}

func (v *fakeVerifier) Verify(_ context.Context, _ []byte) (*domain.VerifiedEvent, error) {
	return v.verified, v.err
}

type sentNotification struct {
	details        domain.NotificationDetails
	notificationID string
	notification   domain.Notification
	targetURL      string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentNotification
	result domain.SendResult
	err    error
}

func (s *fakeSender) Send(_ context.Context, details domain.NotificationDetails, id string, n domain.Notification, targetURL string) (domain.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentNotification{details: details, notificationID: id, notification: n, targetURL: targetURL})
	return s.result, s.err
}

type fakeSubscriptions struct {
	mu   sync.Mutex
	subs map[int64]domain.NotificationSubscription
	err  error
}

func newFakeSubscriptions() *fakeSubscriptions {
	return &fakeSubscriptions{subs: make(map[int64]domain.NotificationSubscription)}
}

func (r *fakeSubscriptions) Save(_ context.Context, sub domain.NotificationSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.subs[sub.FID] = sub
	return nil
}

func (r *fakeSubscriptions) Delete(_ context.Context, fid int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, fid)
	return r.err
}

func (r *fakeSubscriptions) Get(_ context.Context, fid int64) (*domain.NotificationSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	sub, ok := r.subs[fid]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

type fakeDeliveries struct {
	mu      sync.Mutex
	records []domain.NotificationDelivery
	err     error
}

func (r *fakeDeliveries) Record(_ context.Context, d domain.NotificationDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, d)
	return r.err
}

// --- PiP ---

type fakePainter struct {
	mu     sync.Mutex
	scenes []ports.Scene
	err    error
}

func (p *fakePainter) Paint(_ context.Context, scene ports.Scene) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.scenes = append(p.scenes, scene)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 0xFF, G: 0x6B, B: 0x35, A: 0xff})
	return img, nil
}

func (p *fakePainter) lastScene() (ports.Scene, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.scenes) == 0 {
		return ports.Scene{}, false
	}
	return p.scenes[len(p.scenes)-1], true
}

type fakeAvatarCache struct {
	purged atomic.Int32
}

func (c *fakeAvatarCache) Purge()   { c.purged.Add(1) }
func (c *fakeAvatarCache) Len() int { return 0 }

var errUpstream = errors.New("upstream down")
