package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
)

const accountColumns = `id, email, COALESCE(role, ''), name, address, lat, lng, place_id, balance::float8`

// AccountRepo persists accounts.
type AccountRepo struct {
	db *pgxpool.Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{db: db}
}

// Get loads one account.
func (r *AccountRepo) Get(ctx context.Context, id string) (domain.Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if IsNotFound(err) {
			return domain.Profile{}, fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
		}
		return domain.Profile{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return p, nil
}

// EnsureExists creates a role-less account on first sign-in and returns the stored row.
func (r *AccountRepo) EnsureExists(ctx context.Context, id, email string) (domain.Profile, error) {
	row := r.db.QueryRow(ctx, `
        INSERT INTO accounts (id, email)
        VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE
            SET email = CASE WHEN accounts.email = '' THEN EXCLUDED.email ELSE accounts.email END
        RETURNING `+accountColumns, id, email)
	p, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("ensure account %s: %w", id, err)
	}
	return p, nil
}

// SetRole stores the onboarding profile only while the role is still unset.
func (r *AccountRepo) SetRole(ctx context.Context, p domain.Profile) error {
	lat, lng := splitPoint(p.Location)
	ct, err := r.db.Exec(ctx, `
        UPDATE accounts
        SET role = $2, name = $3, address = $4, lat = $5, lng = $6, place_id = $7, updated_at = now()
        WHERE id = $1 AND role IS NULL
    `, p.ID, string(p.Role), p.Name, p.Address, lat, lng, p.PlaceID)
	if err != nil {
		return fmt.Errorf("set role %s: %w", p.ID, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, p.ID); err != nil {
		return err
	}
	return fmt.Errorf("account %s already has a role: %w", p.ID, apperr.ErrConflict)
}

// ListByRole returns accounts of one role, oldest first.
func (r *AccountRepo) ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.Profile, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE role = $1
        ORDER BY created_at, id
        LIMIT $2 OFFSET $3
    `, string(role), limitOrAll(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list %s accounts: %w", role, err)
	}
	return collectProfiles(rows)
}

// FindByEmail looks an account up by case-insensitive email.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (domain.Profile, error) {
	row := r.db.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE lower(email) = lower($1)
        ORDER BY created_at, id
        LIMIT 1
    `, strings.TrimSpace(email))
	p, err := scanProfile(row)
	if err != nil {
		if IsNotFound(err) {
			return domain.Profile{}, fmt.Errorf("account %s: %w", email, apperr.ErrNotFound)
		}
		return domain.Profile{}, fmt.Errorf("find account %s: %w", email, err)
	}
	return p, nil
}

// Promote forces the admin role onto an existing account.
func (r *AccountRepo) Promote(ctx context.Context, id, name string) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE accounts
        SET role = 'admin', name = CASE WHEN $2 = '' THEN name ELSE $2 END,
            address = '', lat = NULL, lng = NULL, place_id = '', updated_at = now()
        WHERE id = $1
    `, id, name)
	if err != nil {
		return fmt.Errorf("promote %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Demote clears the role so the account goes back through onboarding.
func (r *AccountRepo) Demote(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `UPDATE accounts SET role = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("demote %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// InsertIfAbsent stores a full profile unless the id is taken. It reports whether a row was written.
func (r *AccountRepo) InsertIfAbsent(ctx context.Context, p domain.Profile) (bool, error) {
	lat, lng := splitPoint(p.Location)
	var role *string
	if p.Role != domain.RoleNone {
		s := string(p.Role)
		role = &s
	}
	ct, err := r.db.Exec(ctx, `
        INSERT INTO accounts (id, email, role, name, address, lat, lng, place_id, balance)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING
    `, p.ID, p.Email, role, p.Name, p.Address, lat, lng, p.PlaceID, p.Balance)
	if err != nil {
		return false, fmt.Errorf("insert account %s: %w", p.ID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// creditBalance adds amount to a courier balance.
func creditBalance(ctx context.Context, q querier, courierID string, amount float64) error {
	ct, err := q.Exec(ctx, `
        UPDATE accounts
        SET balance = balance + $2, updated_at = now()
        WHERE id = $1 AND role = 'courier'
    `, courierID, amount)
	if err != nil {
		return fmt.Errorf("credit courier %s: %w", courierID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("courier %s: %w", courierID, apperr.ErrNotFound)
	}
	return nil
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		p        domain.Profile
		role     string
		lat, lng *float64
	)
	if err := row.Scan(&p.ID, &p.Email, &role, &p.Name, &p.Address, &lat, &lng, &p.PlaceID, &p.Balance); err != nil {
		return domain.Profile{}, err
	}
	p.Role = domain.Role(role)
	if lat != nil && lng != nil {
		p.Location = &geo.Point{Lat: *lat, Lng: *lng}
	}
	return p, nil
}

func collectProfiles(rows pgx.Rows) ([]domain.Profile, error) {
	defer rows.Close()
	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func splitPoint(p *geo.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

// limitOrAll maps non-positive limits to "no limit".
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
