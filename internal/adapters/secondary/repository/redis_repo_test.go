package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

func newTestSubscriptionRepo(t *testing.T) (*RedisSubscriptionRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSubscriptionRepo(client), mr
}

func TestRedisSubscriptionRepo(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestSubscriptionRepo(t)

	sub := domain.NotificationSubscription{
		FID:       42,
		AppFID:    9152,
		Event:     domain.EventFrameAdded,
		URL:       "https://api.warpcast.com/v1/frame-notifications",
		Token:     "tok-1",
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	got, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got, "no subscription yet")

	require.NoError(t, repo.Save(ctx, sub))
	assert.Equal(t, 90*24*time.Hour, mr.TTL(subscriptionKey(42)))

	got, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sub, *got)

	// Un nouveau token remplace l'ancien
	sub.Event = domain.EventNotificationsEnabled
	sub.Token = "tok-2"
	require.NoError(t, repo.Save(ctx, sub))
	got, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Token)
	assert.Equal(t, domain.EventNotificationsEnabled, got.Event)

	require.NoError(t, repo.Delete(ctx, 42))
	got, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSubscriptionRepo_Unavailable(t *testing.T) {
	repo, mr := newTestSubscriptionRepo(t)
	mr.Close()

	_, err := repo.Get(context.Background(), 42)
	assert.Error(t, err)
}

func TestDecodeSubscription(t *testing.T) {
	sub := decodeSubscription(7, map[string]string{
		"app_fid":    "not-a-number",
		"url":        "https://x.example",
		"token":      "t",
		"updated_at": "yesterday",
	})
	assert.Equal(t, int64(7), sub.FID)
	assert.Zero(t, sub.AppFID, "corrupt app fid keeps the subscription")
	assert.True(t, sub.UpdatedAt.IsZero())
	assert.Empty(t, sub.Event)
	assert.Equal(t, "t", sub.Token)
}
