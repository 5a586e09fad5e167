package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/visibility"
)

const (
	maxNameLen  = 120
	maxListSize = 500
)

// Service resolves sessions and owns the one-time role choice.
type Service struct {
	repo             accountRepository
	operationTimeout time.Duration
	logger           logx.Logger
}

// NewService creates and configures an account Service.
func NewService(r accountRepository, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{repo: r, operationTimeout: timeout, logger: logger}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// OnboardInput is the role choice plus its role-specific fields.
type OnboardInput struct {
	Role     domain.Role
	Name     string
	Address  string
	Location *geo.Point
	PlaceID  string
}

// Resolve loads the caller account, creating a role-less one on first sign-in.
func (s *Service) Resolve(ctx context.Context, id auth.Identity) (domain.Session, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return domain.Session{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.repo.EnsureExists(ctx, id.Subject, id.Email)
	if err != nil {
		return domain.Session{}, err
	}
	acc, err := p.Account()
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{Account: acc}, nil
}

// Onboard sets the caller role. It succeeds once per account.
func (s *Service) Onboard(ctx context.Context, id auth.Identity, in OnboardInput) (domain.Account, error) {
	p, err := validateOnboard(id.Subject, in)
	if err != nil {
		return nil, err
	}
	p.Email = id.Email

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.repo.SetRole(ctx, p); err != nil {
		return nil, err
	}

	stored, err := s.repo.Get(ctx, id.Subject)
	if err != nil {
		return nil, err
	}
	acc, err := stored.Account()
	if err != nil {
		return nil, err
	}

	s.logger.Info("account onboarded",
		logx.String("event", "account_onboarded"),
		logx.String("account_id", id.Subject),
		logx.String("role", string(in.Role)),
	)
	return acc, nil
}

// Me returns the caller account.
func (s *Service) Me(ctx context.Context, accountID string) (domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return p.Account()
}

// ListCouriers lists courier accounts. Admin only.
func (s *Service) ListCouriers(ctx context.Context, v visibility.Viewer, limit, offset int) ([]domain.CourierAccount, error) {
	profiles, err := s.list(ctx, v, domain.RoleCourier, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CourierAccount, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, domain.CourierAccount{ID: p.ID, Email: p.Email, Name: p.Name, Balance: p.Balance})
	}
	return out, nil
}

// ListBusinesses lists business accounts. Admin only.
func (s *Service) ListBusinesses(ctx context.Context, v visibility.Viewer, limit, offset int) ([]domain.BusinessAccount, error) {
	profiles, err := s.list(ctx, v, domain.RoleBusiness, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BusinessAccount, 0, len(profiles))
	for _, p := range profiles {
		acc, err := p.Account()
		if err != nil {
			return nil, err
		}
		if b, ok := acc.(domain.BusinessAccount); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) list(ctx context.Context, v visibility.Viewer, role domain.Role, limit, offset int) ([]domain.Profile, error) {
	if v.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("listing %s accounts: %w", role, apperr.ErrForbidden)
	}
	if limit < 0 || limit > maxListSize {
		return nil, apperr.Invalid("limit", fmt.Sprintf("must be between 0 and %d", maxListSize))
	}
	if offset < 0 {
		return nil, apperr.Invalid("offset", "must be non-negative")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ListByRole(ctx, role, limit, offset)
}

// validateOnboard checks the role-specific fields and builds the profile to store.
func validateOnboard(accountID string, in OnboardInput) (domain.Profile, error) {
	if strings.TrimSpace(accountID) == "" {
		return domain.Profile{}, apperr.ErrUnauthorized
	}
	if in.Role == domain.RoleAdmin {
		return domain.Profile{}, fmt.Errorf("admin role is assigned by operators: %w", apperr.ErrForbidden)
	}
	if !in.Role.Valid() {
		return domain.Profile{}, apperr.Invalid("role", "must be business or courier")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Profile{}, apperr.Invalid("name", "required")
	}
	if len([]rune(name)) > maxNameLen {
		return domain.Profile{}, apperr.Invalid("name", fmt.Sprintf("at most %d characters", maxNameLen))
	}

	p := domain.Profile{ID: accountID, Role: in.Role, Name: name}
	if in.Role == domain.RoleCourier {
		return p, nil
	}

	p.Address = strings.TrimSpace(in.Address)
	if p.Address == "" {
		return domain.Profile{}, apperr.Invalid("address", "required")
	}
	if in.Location == nil || !in.Location.Valid() || *in.Location == (geo.Point{}) {
		return domain.Profile{}, apperr.Invalid("location", "address is not resolved to coordinates")
	}
	loc := *in.Location
	p.Location = &loc
	p.PlaceID = strings.TrimSpace(in.PlaceID)
	return p, nil
}
