package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adserve/adzone/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const adColumns = `id, title, target_url, kind, content, image_key,
	enabled, since, expires_on,
	advertiser_id, category_id, zone_id,
	created_at, updated_at`

func scanAd(row pgx.Row) (domain.Ad, error) {
	var ad domain.Ad
	var kind string
	err := row.Scan(
		&ad.ID, &ad.Title, &ad.TargetURL, &kind, &ad.Content, &ad.ImageKey,
		&ad.Enabled, &ad.Since, &ad.ExpiresOn,
		&ad.AdvertiserID, &ad.CategoryID, &ad.ZoneID,
		&ad.CreatedAt, &ad.UpdatedAt,
	)
	ad.Kind = domain.AdKind(kind)
	return ad, err
}

func (r *Repository) CreateAd(ctx context.Context, ad *domain.Ad) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ads (id, title, target_url, kind, content, image_key,
		                 enabled, since, expires_on,
		                 advertiser_id, category_id, zone_id,
		                 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, ad.ID, ad.Title, ad.TargetURL, string(ad.Kind), ad.Content, ad.ImageKey,
		ad.Enabled, ad.Since, ad.ExpiresOn,
		ad.AdvertiserID, ad.CategoryID, ad.ZoneID,
		ad.CreatedAt, ad.UpdatedAt)
	if pgCode(err) == pgForeignKeyViolation {
		return domain.ErrNotFound
	}
	return err
}

func (r *Repository) GetAd(ctx context.Context, id uuid.UUID) (domain.Ad, error) {
	ad, err := scanAd(r.pool.QueryRow(ctx, `SELECT `+adColumns+` FROM ads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ad{}, domain.ErrNotFound
	}
	return ad, err
}

// UpdateAd rewrites the mutable fields; updated_at is set server-side so
// every mutation path stamps it.
func (r *Repository) UpdateAd(ctx context.Context, ad *domain.Ad) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ads
		SET title = $2, target_url = $3, content = $4, image_key = $5,
		    enabled = $6, since = $7, expires_on = $8,
		    updated_at = NOW()
		WHERE id = $1
	`, ad.ID, ad.Title, ad.TargetURL, ad.Content, ad.ImageKey,
		ad.Enabled, ad.Since, ad.ExpiresOn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) SetAdEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ads SET enabled = $2, updated_at = NOW() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) ExtendAd(ctx context.Context, id uuid.UUID, expiresOn *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ads SET expires_on = $2, updated_at = NOW() WHERE id = $1
	`, id, expiresOn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// buildAdWhere turns an AdFilter into a WHERE clause with positional args,
// starting at $1.
func buildAdWhere(f domain.AdFilter) (string, []any) {
	where := ""
	var args []any
	and := func(cond string, v any) {
		args = append(args, v)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}

	if f.ZoneID != nil {
		and("zone_id = $%d", *f.ZoneID)
	}
	if f.CategoryID != nil {
		and("category_id = $%d", *f.CategoryID)
	}
	if f.AdvertiserID != nil {
		and("advertiser_id = $%d", *f.AdvertiserID)
	}
	if f.Enabled != nil {
		and("enabled = $%d", *f.Enabled)
	}
	return where, args
}

// FindAds returns every ad matching the filter, unpaginated. The serve path
// uses it with zone+enabled, a bounded set.
func (r *Repository) FindAds(ctx context.Context, f domain.AdFilter) ([]domain.Ad, error) {
	where, args := buildAdWhere(f)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM ads
		%s
		ORDER BY created_at ASC, id ASC
	`, adColumns, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ad)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ListAds pages through matching ads newest-first with a keyset cursor:
// WHERE (created_at, id) < (cursor.created_at, cursor.id) in DESC order.
func (r *Repository) ListAds(ctx context.Context, f domain.AdFilter, limit int, cursor *domain.KeysetCursor) ([]domain.Ad, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	where, args := buildAdWhere(f)

	if cursor != nil {
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM ads
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT %d
	`, adColumns, where, limit+1), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []domain.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}
