package storage

import (
	"context"
	"errors"
	"fmt"

	"linkgate/pkg/sentinel"
	"linkgate/pkg/storage/schema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema.Postgres); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const linkColumns = `id, slug, destination_url, is_active, identity_mode, button_label, button_color, category, image_url, description, created_at`

func (s *PostgresStore) Create(ctx context.Context, link *Link) error {
	query := `INSERT INTO links (` + linkColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, query, link.ID, link.Slug, link.DestinationURL, link.IsActive, string(link.IdentityMode),
		link.ButtonLabel, link.ButtonColor, link.Category, link.ImageURL, link.Description, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert link %s: %w", link.Slug, err)
	}
	return nil
}

func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE slug = $1`
	var link Link
	var mode string
	err := s.pool.QueryRow(ctx, query, slug).Scan(&link.ID, &link.Slug, &link.DestinationURL, &link.IsActive, &mode,
		&link.ButtonLabel, &link.ButtonColor, &link.Category, &link.ImageURL, &link.Description, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("link %s: %w", slug, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("select link %s: %w", slug, err)
	}
	link.IdentityMode = IdentityMode(mode)
	return &link, nil
}

func (s *PostgresStore) RecordVisit(ctx context.Context, visit Visit) (bool, error) {
	query := `INSERT INTO visits (slug, session_key, visited_at, user_agent, referer, browser, platform, mobile, bot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (slug, session_key) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, visit.Slug, HashSessionKey(visit.SessionKey), visit.At, visit.UserAgent, visit.Referer,
		visit.Device.Browser, visit.Device.Platform, visit.Device.Mobile, visit.Device.Bot)
	if err != nil {
		return false, fmt.Errorf("record visit %s: %w", visit.Slug, err)
	}
	return tag.RowsAffected() == 1, nil
}
