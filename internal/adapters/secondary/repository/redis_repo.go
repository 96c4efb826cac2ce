package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

type RedisSubscriptionRepo struct {
	client *redis.Client
	ttl    time.Duration // un token non rafraîchi depuis 90 jours est considéré mort
}

func NewRedisSubscriptionRepo(client *redis.Client) *RedisSubscriptionRepo {
	return &RedisSubscriptionRepo{
		client: client,
		ttl:    24 * 90 * time.Hour,
	}
}

func subscriptionKey(fid int64) string {
	return fmt.Sprintf("notif:fid:%d", fid)
}

// Save écrase l'abonnement du fid (un seul couple url/token par utilisateur)
func (r *RedisSubscriptionRepo) Save(ctx context.Context, sub domain.NotificationSubscription) error {
	key := subscriptionKey(sub.FID)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"app_fid", sub.AppFID,
		"event", string(sub.Event),
		"url", sub.URL,
		"token", sub.Token,
		"updated_at", sub.UpdatedAt.UTC().Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, r.ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSubscriptionRepo) Delete(ctx context.Context, fid int64) error {
	return r.client.Del(ctx, subscriptionKey(fid)).Err()
}

// Get renvoie nil, nil si le fid n'a pas d'abonnement
func (r *RedisSubscriptionRepo) Get(ctx context.Context, fid int64) (*domain.NotificationSubscription, error) {
	fields, err := r.client.HGetAll(ctx, subscriptionKey(fid)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeSubscription(fid, fields), nil
}

func decodeSubscription(fid int64, fields map[string]string) *domain.NotificationSubscription {
	sub := &domain.NotificationSubscription{
		FID:   fid,
		Event: domain.WebhookEventType(fields["event"]),
		URL:   fields["url"],
		Token: fields["token"],
	}
	if v, ok := fields["app_fid"]; ok {
		// Donnée corrompue : on garde l'abonnement, sans appFid
		sub.AppFID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["updated_at"]; ok {
		sub.UpdatedAt, _ = time.Parse(time.RFC3339, v)
	}
	return sub
}
