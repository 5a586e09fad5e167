package domain

import (
	"fmt"
	"strings"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/geo"
)

// Role discriminates account variants.
type Role string

// Known roles. RoleNone marks an account that has not been onboarded.
const (
	RoleNone     Role = ""
	RoleBusiness Role = "business"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	return r == RoleBusiness || r == RoleCourier || r == RoleAdmin
}

// ParseRole parses a wire role.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return RoleNone, apperr.Invalid("role", fmt.Sprintf("unknown role %q", raw))
	}
	return r, nil
}

// Account is one of PendingAccount, BusinessAccount, CourierAccount or AdminAccount.
type Account interface {
	AccountID() string
	AccountEmail() string
	Role() Role
	account()
}

// PendingAccount is an identity that signed in but has not picked a role yet.
type PendingAccount struct {
	ID    string
	Email string
}

// BusinessAccount posts deliveries.
type BusinessAccount struct {
	ID       string
	Email    string
	Name     string
	Address  string
	Location geo.Point
	PlaceID  string
}

// CourierAccount fulfils deliveries and accumulates a balance.
type CourierAccount struct {
	ID      string
	Email   string
	Name    string
	Balance float64
}

// AdminAccount observes everything and mutates nothing.
type AdminAccount struct {
	ID    string
	Email string
	Name  string
}

func (a PendingAccount) AccountID() string { return a.ID }
func (a PendingAccount) AccountEmail() string { return a.Email }
func (PendingAccount) Role() Role { return RoleNone }
func (PendingAccount) account() {}
func (a BusinessAccount) AccountID() string { return a.ID }
func (a BusinessAccount) AccountEmail() string { return a.Email }
func (BusinessAccount) Role() Role { return RoleBusiness }
func (BusinessAccount) account() {}
func (a CourierAccount) AccountID() string { return a.ID }
func (a CourierAccount) AccountEmail() string { return a.Email }
func (CourierAccount) Role() Role { return RoleCourier }
func (CourierAccount) account() {}
func (a AdminAccount) AccountID() string { return a.ID }
func (a AdminAccount) AccountEmail() string { return a.Email }
func (AdminAccount) Role() Role { return RoleAdmin }
func (AdminAccount) account() {}

// Profile is the flat persisted form of an account.
type Profile struct {
	ID       string
	Email    string
	Role     Role
	Name     string
	Address  string
	Location *geo.Point
	PlaceID  string
	Balance  float64
}

// Account converts the persisted form into its variant.
func (p Profile) Account() (Account, error) {
	switch p.Role {
	case RoleNone:
		return PendingAccount{ID: p.ID, Email: p.Email}, nil
	case RoleBusiness:
		b := BusinessAccount{ID: p.ID, Email: p.Email, Name: p.Name, Address: p.Address, PlaceID: p.PlaceID}
		if p.Location != nil {
			b.Location = *p.Location
		}
		return b, nil
	case RoleCourier:
		return CourierAccount{ID: p.ID, Email: p.Email, Name: p.Name, Balance: p.Balance}, nil
	case RoleAdmin:
		return AdminAccount{ID: p.ID, Email: p.Email, Name: p.Name}, nil
	default:
		return nil, fmt.Errorf("account %s: unknown role %q", p.ID, p.Role)
	}
}

// ProfileOf flattens an account for persistence.
func ProfileOf(a Account) Profile {
	switch v := a.(type) {
	case BusinessAccount:
		loc := v.Location
		return Profile{ID: v.ID, Email: v.Email, Role: RoleBusiness, Name: v.Name, Address: v.Address, Location: &loc, PlaceID: v.PlaceID}
	case CourierAccount:
		return Profile{ID: v.ID, Email: v.Email, Role: RoleCourier, Name: v.Name, Balance: v.Balance}
	case AdminAccount:
		return Profile{ID: v.ID, Email: v.Email, Role: RoleAdmin, Name: v.Name}
	default:
		return Profile{ID: a.AccountID(), Email: a.AccountEmail()}
	}
}

// DisplayName is the role-specific name, or the email for pending accounts.
func DisplayName(a Account) string {
	switch v := a.(type) {
	case BusinessAccount:
		return v.Name
	case CourierAccount:
		return v.Name
	case AdminAccount:
		return v.Name
	default:
		return a.AccountEmail()
	}
}
