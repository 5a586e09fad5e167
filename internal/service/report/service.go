// Package report builds the overview aggregates for admins and businesses.
package report

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/visibility"
)

const (
	defaultWindow    = 30 * 24 * time.Hour
	maxWindow        = 366 * 24 * time.Hour
	leaderboardLimit = 10
)

type reportRepository interface {
	CountByStatus(ctx context.Context, businessID string) (map[domain.Status]int64, error)
	Trend(ctx context.Context, businessID string, from, to time.Time) ([]domain.TrendBucket, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.CourierAccount, error)
}

// Service computes overviews.
type Service struct {
	repo             reportRepository
	operationTimeout time.Duration
	now              func() time.Time
}

// NewService creates a report Service.
func NewService(r reportRepository, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{repo: r, operationTimeout: timeout, now: func() time.Time { return time.Now().UTC() }}
}

// Overview returns counts, the daily trend in [from, to) and, for admins,
// the courier leaderboard. Zero bounds default to the last 30 days.
func (s *Service) Overview(ctx context.Context, v visibility.Viewer, from, to time.Time) (domain.Overview, error) {
	var scope string
	switch v.Role {
	case domain.RoleAdmin:
	case domain.RoleBusiness:
		scope = v.ID
	default:
		return domain.Overview{}, fmt.Errorf("overview: %w", apperr.ErrForbidden)
	}

	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultWindow)
	}
	if !from.Before(to) {
		return domain.Overview{}, apperr.Invalid("from", "must be before to")
	}
	if to.Sub(from) > maxWindow {
		return domain.Overview{}, apperr.Invalid("from", "window longer than a year")
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	counts, err := s.repo.CountByStatus(ctx, scope)
	if err != nil {
		return domain.Overview{}, err
	}
	trend, err := s.repo.Trend(ctx, scope, from, to)
	if err != nil {
		return domain.Overview{}, err
	}

	out := domain.Overview{Counts: counts, Trend: trend}
	if v.Role == domain.RoleAdmin {
		if out.Leaderboard, err = s.repo.Leaderboard(ctx, leaderboardLimit); err != nil {
			return domain.Overview{}, err
		}
	}
	return out, nil
}
