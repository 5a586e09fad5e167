package domain

// Phase is the readiness of a signed-in caller.
type Phase int

// Session phases, in order.
const (
	PhaseUnauthenticated Phase = iota
	PhaseRolePending
	PhaseRoleKnown
)

func (p Phase) String() string {
	switch p {
	case PhaseRolePending:
		return "role_pending"
	case PhaseRoleKnown:
		return "role_known"
	default:
		return "unauthenticated"
	}
}

// Session is the resolved state of the current caller.
type Session struct {
	Account Account
}

// Phase derives readiness from the account variant.
func (s Session) Phase() Phase {
	switch s.Account.(type) {
	case nil:
		return PhaseUnauthenticated
	case PendingAccount:
		return PhaseRolePending
	default:
		return PhaseRoleKnown
	}
}

// Role is RoleNone until the account is onboarded.
func (s Session) Role() Role {
	if s.Account == nil {
		return RoleNone
	}
	return s.Account.Role()
}
