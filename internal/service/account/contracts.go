package account

import (
	"context"

	"courier-dispatch/internal/domain"
)

// accountRepository defines storage operations required by the business layer.
type accountRepository interface {
	Get(ctx context.Context, id string) (domain.Profile, error)
	EnsureExists(ctx context.Context, id, email string) (domain.Profile, error)
	SetRole(ctx context.Context, p domain.Profile) error
	ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.Profile, error)
}
