package delivery

import (
	"strconv"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Filter narrows a repository listing.
type Filter struct {
	BusinessID string
	// CourierID restricts rows to those the courier holds or delivered,
	// plus unassigned posted rows inside CandidateBox when it is set.
	CourierID    string
	CandidateBox *geo.Box
	Statuses     []domain.Status
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// ListQuery is what a caller asks for.
type ListQuery struct {
	Statuses []domain.Status
	// Center overrides the courier's stored position.
	Center    *geo.Point
	RadiusKm  float64
	From      *time.Time
	To        *time.Time
	PageSize  int
	PageToken string
}

// Page is one slice of a listing.
type Page struct {
	Items         []domain.Delivery
	NextPageToken string
}

func (q ListQuery) window() (limit, offset int, err error) {
	limit = q.PageSize
	switch {
	case limit == 0:
		limit = defaultPageSize
	case limit < 0 || limit > maxPageSize:
		return 0, 0, apperr.Invalid("pageSize", "must be between 1 and "+strconv.Itoa(maxPageSize))
	}
	if q.PageToken != "" {
		offset, err = strconv.Atoi(q.PageToken)
		if err != nil || offset < 0 {
			return 0, 0, apperr.Invalid("pageToken", "malformed")
		}
	}
	return limit, offset, nil
}

func nextToken(got, limit, offset int) string {
	if got < limit {
		return ""
	}
	return strconv.Itoa(offset + limit)
}
