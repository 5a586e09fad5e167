package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/domain"
)

// ReportRepo runs aggregate queries over deliveries and accounts.
type ReportRepo struct {
	db *pgxpool.Pool
}

// NewReportRepo creates a new ReportRepo.
func NewReportRepo(db *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{db: db}
}

// CountByStatus counts deliveries per status. An empty businessID counts all of them.
func (r *ReportRepo) CountByStatus(ctx context.Context, businessID string) (map[domain.Status]int64, error) {
	rows, err := r.db.Query(ctx, `
        SELECT status, count(*)
        FROM deliveries
        WHERE $1 = '' OR business_id = $1
        GROUP BY status
    `, businessID)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Status]int64, len(domain.Statuses()))
	for _, s := range domain.Statuses() {
		out[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return out, nil
}

// Trend buckets deliveries created in [from, to) by UTC day.
func (r *ReportRepo) Trend(ctx context.Context, businessID string, from, to time.Time) ([]domain.TrendBucket, error) {
	rows, err := r.db.Query(ctx, `
        SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
               count(*),
               count(*) FILTER (WHERE status = 'delivered'),
               COALESCE(sum(payment) FILTER (WHERE status = 'delivered'), 0)::float8
        FROM deliveries
        WHERE ($1 = '' OR business_id = $1) AND created_at >= $2 AND created_at < $3
        GROUP BY day
        ORDER BY day
    `, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("delivery trend: %w", err)
	}
	defer rows.Close()

	var out []domain.TrendBucket
	for rows.Next() {
		var b domain.TrendBucket
		if err := rows.Scan(&b.Day, &b.Created, &b.Delivered, &b.Revenue); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		b.Day = time.Date(b.Day.Year(), b.Day.Month(), b.Day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return out, nil
}

// Leaderboard returns couriers ordered by balance.
func (r *ReportRepo) Leaderboard(ctx context.Context, limit int) ([]domain.CourierAccount, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE role = 'courier'
        ORDER BY balance DESC, id
        LIMIT $1
    `, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	profiles, err := collectProfiles(rows)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CourierAccount, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, domain.CourierAccount{ID: p.ID, Email: p.Email, Name: p.Name, Balance: p.Balance})
	}
	return out, nil
}
