// Package maintenance holds the idempotent data fix-ups run by operators.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

const maxAdmins = 1000

// AdminStore is the slice of the account repository init-admin needs.
type AdminStore interface {
	ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.Profile, error)
	FindByEmail(ctx context.Context, email string) (domain.Profile, error)
	Promote(ctx context.Context, id, name string) error
	Demote(ctx context.Context, id string) error
	InsertIfAbsent(ctx context.Context, p domain.Profile) (bool, error)
}

// AdminSpec describes the desired admin.
type AdminSpec struct {
	Email string
	Name  string
	// ID is used only when a new account has to be created; empty means a fresh UUID.
	ID string
}

// AdminOutcome reports what EnsureSingleAdmin changed.
type AdminOutcome struct {
	AdminID string
	Created bool
	Adopted bool
	Demoted []string
}

// EnsureSingleAdmin leaves exactly one admin account. With no admin it adopts
// the account registered under want.Email or creates one. With several it
// keeps the first (oldest) and sends the rest back to onboarding.
func EnsureSingleAdmin(ctx context.Context, store AdminStore, want AdminSpec, logger logx.Logger) (AdminOutcome, error) {
	if logger == nil {
		logger = logx.Nop()
	}
	want.Email = strings.TrimSpace(want.Email)
	if want.Email == "" {
		return AdminOutcome{}, apperr.Invalid("email", "required")
	}

	admins, err := store.ListByRole(ctx, domain.RoleAdmin, maxAdmins, 0)
	if err != nil {
		return AdminOutcome{}, fmt.Errorf("list admins: %w", err)
	}

	if len(admins) == 0 {
		return createOrAdopt(ctx, store, want, logger)
	}

	primary := admins[0]
	out := AdminOutcome{AdminID: primary.ID}
	if !strings.EqualFold(primary.Email, want.Email) {
		logger.Warn("requested admin email differs from kept admin",
			logx.String("account_id", primary.ID),
			logx.String("kept_email", primary.Email),
			logx.String("requested_email", want.Email),
		)
	}
	if err := store.Promote(ctx, primary.ID, want.Name); err != nil {
		return out, err
	}
	for _, extra := range admins[1:] {
		if err := store.Demote(ctx, extra.ID); err != nil {
			return out, err
		}
		out.Demoted = append(out.Demoted, extra.ID)
		logger.Warn("extra admin demoted", logx.String("account_id", extra.ID))
	}
	logger.Info("single admin ensured",
		logx.String("account_id", primary.ID),
		logx.Int("demoted", len(out.Demoted)),
	)
	return out, nil
}

func createOrAdopt(ctx context.Context, store AdminStore, want AdminSpec, logger logx.Logger) (AdminOutcome, error) {
	existing, err := store.FindByEmail(ctx, want.Email)
	switch {
	case err == nil:
		if err := store.Promote(ctx, existing.ID, want.Name); err != nil {
			return AdminOutcome{}, err
		}
		logger.Info("existing account adopted as admin", logx.String("account_id", existing.ID))
		return AdminOutcome{AdminID: existing.ID, Adopted: true}, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return AdminOutcome{}, fmt.Errorf("find %s: %w", want.Email, err)
	}

	id := want.ID
	if id == "" {
		id = uuid.NewString()
	}
	inserted, err := store.InsertIfAbsent(ctx, domain.Profile{
		ID:    id,
		Email: want.Email,
		Role:  domain.RoleAdmin,
		Name:  want.Name,
	})
	if err != nil {
		return AdminOutcome{}, err
	}
	if !inserted {
		// id занят аккаунтом с другим email
		if err := store.Promote(ctx, id, want.Name); err != nil {
			return AdminOutcome{}, err
		}
		logger.Info("existing account adopted as admin", logx.String("account_id", id))
		return AdminOutcome{AdminID: id, Adopted: true}, nil
	}
	logger.Info("admin created", logx.String("account_id", id))
	return AdminOutcome{AdminID: id, Created: true}, nil
}
