package postgres

import (
	"context"
	_ "embed"
	"errors"

	"github.com/adserve/adzone/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository implements domain.Store on top of pgx. Event appends are
// transactional with their outbox rows; everything else is single-statement.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema applies schema.sql. Safe to run on every startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ---- Advertisers ----

func (r *Repository) CreateAdvertiser(ctx context.Context, a *domain.Advertiser) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO advertisers (id, company_name, website_url, owner_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.CompanyName, a.WebsiteURL, a.OwnerUserID, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *Repository) GetAdvertiser(ctx context.Context, id uuid.UUID) (domain.Advertiser, error) {
	var a domain.Advertiser
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_name, website_url, owner_user_id, created_at, updated_at
		FROM advertisers
		WHERE id = $1
	`, id).Scan(&a.ID, &a.CompanyName, &a.WebsiteURL, &a.OwnerUserID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Advertiser{}, domain.ErrNotFound
	}
	return a, err
}

func (r *Repository) UpdateAdvertiser(ctx context.Context, a *domain.Advertiser) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE advertisers
		SET company_name = $2, website_url = $3, updated_at = NOW()
		WHERE id = $1
	`, a.ID, a.CompanyName, a.WebsiteURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetAdvertiserOwner(ctx context.Context, advertiserID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT owner_user_id FROM advertisers WHERE id = $1`, advertiserID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, domain.ErrNotFound
		}
		return uuid.UUID{}, err
	}
	return owner, nil
}

// ---- Categories ----

func (r *Repository) CreateCategory(ctx context.Context, c *domain.Category) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO categories (id, title, slug, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Title, c.Slug, c.Description, c.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return domain.ErrSlugTaken
	}
	return err
}

func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (domain.Category, error) {
	var c domain.Category
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, slug, description, created_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, domain.ErrNotFound
	}
	return c, err
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, slug, description, created_at
		FROM categories
		ORDER BY title ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- Zones ----

func (r *Repository) CreateZone(ctx context.Context, z *domain.Zone) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO zones (id, title, slug, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, z.ID, z.Title, z.Slug, z.Description, z.CreatedAt)
	return err
}

func (r *Repository) GetZone(ctx context.Context, id uuid.UUID) (domain.Zone, error) {
	var z domain.Zone
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, slug, description, created_at
		FROM zones
		WHERE id = $1
	`, id).Scan(&z.ID, &z.Title, &z.Slug, &z.Description, &z.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Zone{}, domain.ErrNotFound
	}
	return z, err
}

func (r *Repository) ListZones(ctx context.Context) ([]domain.Zone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, slug, description, created_at
		FROM zones
		ORDER BY title ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Zone
	for rows.Next() {
		var z domain.Zone
		if err := rows.Scan(&z.ID, &z.Title, &z.Slug, &z.Description, &z.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}
