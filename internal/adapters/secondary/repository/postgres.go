package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

const deliveriesSchema = `
	CREATE TABLE IF NOT EXISTS notification_deliveries (
		id              UUID PRIMARY KEY,
		notification_id TEXT        NOT NULL,
		fid             BIGINT      NOT NULL,
		title           TEXT        NOT NULL,
		body            TEXT        NOT NULL,
		target_url      TEXT        NOT NULL,
		status          TEXT        NOT NULL,
		error           TEXT        NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS notification_deliveries_fid_idx
		ON notification_deliveries (fid, created_at DESC);
`

// PostgresDeliveryRepo est le journal des notifications envoyées
type PostgresDeliveryRepo struct {
	db *pgxpool.Pool
}

func NewPostgresDeliveryRepo(db *pgxpool.Pool) *PostgresDeliveryRepo {
	return &PostgresDeliveryRepo{db: db}
}

// EnsureSchema crée la table au démarrage (idempotent)
func (r *PostgresDeliveryRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, deliveriesSchema); err != nil {
		return fmt.Errorf("ensure deliveries schema: %w", err)
	}
	return nil
}

func (r *PostgresDeliveryRepo) Record(ctx context.Context, d domain.NotificationDelivery) error {
	query := `
		INSERT INTO notification_deliveries
			(id, notification_id, fid, title, body, target_url, status, error, created_at)
		VALUES
			(@id, @notification_id, @fid, @title, @body, @target_url, @status, @error, @created_at)
	`

	_, err := r.db.Exec(ctx, query, pgx.NamedArgs{
		"id":              d.ID,
		"notification_id": d.NotificationID,
		"fid":             d.FID,
		"title":           d.Title,
		"body":            d.Body,
		"target_url":      d.TargetURL,
		"status":          string(d.Status),
		"error":           d.Error,
		"created_at":      d.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}
