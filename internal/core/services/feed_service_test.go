package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestFeed(api *fakeEventsAPI, opts FeedOptions) (*FeedService, *fakePublisher, *fakeClock) {
	pub := &fakePublisher{}
	clock := newFakeClock()
	f := NewFeedService(api, pub, opts)
	f.now = clock.Now
	return f, pub, clock
}

func TestFeedService_Revalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("merges and publishes new events", func(t *testing.T) {
		api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100), event(2, 200)}}
		f, pub, _ := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

		status, err := f.Revalidate(ctx, domain.FeedQuery{})
		require.NoError(t, err)

		assert.False(t, status.IsLoading)
		assert.False(t, status.IsError)
		assert.Equal(t, []int64{2, 1}, ids(status.Events))
		assert.Len(t, pub.feedEvents(), 2)
	})

	t.Run("fetches inside the dedupe window hit upstream once", func(t *testing.T) {
		api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
		f, _, clock := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

		_, err := f.Revalidate(ctx, domain.FeedQuery{})
		require.NoError(t, err)
		clock.Advance(2 * time.Second)
		_, err = f.Revalidate(ctx, domain.FeedQuery{})
		require.NoError(t, err)
		assert.Equal(t, int32(1), api.calls.Load())

		clock.Advance(4 * time.Second)
		_, err = f.Revalidate(ctx, domain.FeedQuery{})
		require.NoError(t, err)
		assert.Equal(t, int32(2), api.calls.Load())
	})

	t.Run("concurrent revalidations share one request", func(t *testing.T) {
		api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}, gate: make(chan struct{})}
		f, _, _ := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.Revalidate(ctx, domain.FeedQuery{VillageID: "7"})
			}()
		}

		require.Eventually(t, func() bool { return api.calls.Load() == 1 }, time.Second, time.Millisecond)
		close(api.gate)
		wg.Wait()

		assert.Equal(t, int32(1), api.calls.Load())
	})

	t.Run("a failed fetch leaves events untouched", func(t *testing.T) {
		api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100), event(2, 200)}}
		f, pub, clock := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

		_, err := f.Revalidate(ctx, domain.FeedQuery{})
		require.NoError(t, err)

		api.set(nil, errUpstream)
		clock.Advance(10 * time.Second)
		status, err := f.Revalidate(ctx, domain.FeedQuery{})
		require.ErrorIs(t, err, errUpstream)

		assert.True(t, status.IsError)
		assert.Equal(t, errUpstream.Error(), status.LastError)
		assert.Equal(t, []int64{2, 1}, ids(status.Events))
		assert.Len(t, pub.feedEvents(), 2)

		// Le retour de l'upstream efface le drapeau d'erreur
		api.set([]domain.ActivityEvent{event(3, 300)}, nil)
		clock.Advance(10 * time.Second)
		status, err = f.Revalidate(ctx, domain.FeedQuery{})
		require.NoError(t, err)
		assert.False(t, status.IsError)
		assert.Empty(t, status.LastError)
		assert.Equal(t, []int64{3, 2, 1}, ids(status.Events))
	})
}

func TestFeedService_Status(t *testing.T) {
	ctx := context.Background()
	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
	f, _, _ := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

	api.gate = make(chan struct{})
	status := f.Status(ctx, domain.FeedQuery{VillageID: "12"})
	assert.True(t, status.IsLoading)
	assert.Empty(t, status.Events)
	assert.NotNil(t, status.Events, "events serialize as [] not null")
	assert.Equal(t, "12", status.VillageID)

	close(api.gate)
	f.wait()

	status = f.Status(ctx, domain.FeedQuery{VillageID: "12"})
	assert.False(t, status.IsLoading)
	assert.Equal(t, []int64{1}, ids(status.Events))
	assert.Equal(t, int32(1), api.calls.Load(), "only the first read triggers a fetch")
}

func TestFeedService_EndSession(t *testing.T) {
	ctx := context.Background()
	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
	f, _, clock := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

	err := f.EndSession(ctx, domain.FeedQuery{VillageID: "3"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.Revalidate(ctx, domain.FeedQuery{VillageID: "3"})
	require.NoError(t, err)
	require.NoError(t, f.EndSession(ctx, domain.FeedQuery{VillageID: "3"}))

	// Une nouvelle session repart de zéro et refetch immédiatement
	api.set([]domain.ActivityEvent{event(2, 200)}, nil)
	clock.Advance(time.Second)
	status, err := f.Revalidate(ctx, domain.FeedQuery{VillageID: "3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(status.Events))
}

func TestFeedService_EndSessionDuringFetch(t *testing.T) {
	ctx := context.Background()
	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}, gate: make(chan struct{})}
	f, pub, _ := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})
	q := domain.FeedQuery{VillageID: "3"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.Revalidate(ctx, q)
	}()
	require.Eventually(t, func() bool { return api.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.EndSession(ctx, q))

	// La session recréée ne rejoint pas le fetch de l'ancienne
	var status domain.FeedStatus
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		status, err = f.Revalidate(ctx, q)
	}()
	require.Eventually(t, func() bool { return api.calls.Load() == 2 }, time.Second, time.Millisecond)
	close(api.gate)
	wg.Wait()

	require.NoError(t, err)
	assert.False(t, status.IsLoading)
	assert.Equal(t, []int64{1}, ids(status.Events))
	assert.Len(t, pub.feedEvents(), 1, "the ended session publishes nothing")
}

func TestFeedService_StatusAfterStop(t *testing.T) {
	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
	f, _, _ := newTestFeed(api, FeedOptions{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	require.Eventually(t, func() bool { return api.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	status := f.Status(context.Background(), domain.FeedQuery{VillageID: "5"})
	assert.True(t, status.IsLoading)
	f.wait()
	assert.Equal(t, int32(1), api.calls.Load(), "no background fetch once stopped")
}

func TestFeedService_ExpireIdle(t *testing.T) {
	ctx := context.Background()
	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
	f, _, clock := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second, SessionIdle: 30 * time.Minute})

	_, err := f.Revalidate(ctx, domain.FeedQuery{})
	require.NoError(t, err)
	_, err = f.Revalidate(ctx, domain.FeedQuery{VillageID: "9"})
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	f.expireIdle()

	sessions := f.snapshotSessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].query.IsGlobal(), "the global session never expires")
	assert.ErrorIs(t, f.EndSession(ctx, domain.FeedQuery{VillageID: "9"}), domain.ErrSessionNotFound)
}

func TestFeedService_RevalidateAll(t *testing.T) {
	ctx := context.Background()
	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
	f, _, clock := newTestFeed(api, FeedOptions{DedupeInterval: 5 * time.Second})

	for _, v := range []string{"", "1", "2"} {
		_, err := f.Revalidate(ctx, domain.FeedQuery{VillageID: v})
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), api.calls.Load())

	clock.Advance(time.Minute)
	f.RevalidateAll(ctx)
	assert.Equal(t, int32(6), api.calls.Load())
}

func TestFeedService_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &fakeEventsAPI{events: []domain.ActivityEvent{event(1, 100)}}
	f, _, _ := newTestFeed(api, FeedOptions{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return api.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	status := f.Status(context.Background(), domain.FeedQuery{})
	assert.Equal(t, []int64{1}, ids(status.Events))
}
