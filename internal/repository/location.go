package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/domain"
)

// LocationHistoryRepo stores sampled courier positions.
type LocationHistoryRepo struct {
	db *pgxpool.Pool
}

// NewLocationHistoryRepo creates a new LocationHistoryRepo.
func NewLocationHistoryRepo(db *pgxpool.Pool) *LocationHistoryRepo {
	return &LocationHistoryRepo{db: db}
}

// Append stores one sample.
func (r *LocationHistoryRepo) Append(ctx context.Context, p domain.LocationPing) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO courier_location_history (courier_id, lat, lng, recorded_at)
        VALUES ($1, $2, $3, $4)
    `, p.CourierID, p.Point.Lat, p.Point.Lng, p.RecordedAt)
	if err != nil {
		return fmt.Errorf("append location %s: %w", p.CourierID, err)
	}
	return nil
}

// Recent returns up to limit samples of one courier, newest first.
func (r *LocationHistoryRepo) Recent(ctx context.Context, courierID string, limit int) ([]domain.LocationPing, error) {
	rows, err := r.db.Query(ctx, `
        SELECT courier_id, lat, lng, recorded_at
        FROM courier_location_history
        WHERE courier_id = $1
        ORDER BY recorded_at DESC, id DESC
        LIMIT $2
    `, courierID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("recent locations %s: %w", courierID, err)
	}
	defer rows.Close()

	var out []domain.LocationPing
	for rows.Next() {
		var p domain.LocationPing
		if err := rows.Scan(&p.CourierID, &p.Point.Lat, &p.Point.Lng, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		p.RecordedAt = p.RecordedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return out, nil
}

// PruneBefore deletes samples recorded before cutoff and returns how many were removed.
func (r *LocationHistoryRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM courier_location_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune locations: %w", err)
	}
	return ct.RowsAffected(), nil
}
