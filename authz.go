package orchestrator

// UserRecord is the minimal identity an Authorizer decides against. Surfaces
// own the real user model; the core only needs enough to gate resume/retry.
type UserRecord struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the user carries the named role.
func (u *UserRecord) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorizer decides whether a user may resume or retry a given step. Steps
// carry at most two: ResumeAuth (gates resuming a Suspend) and RetryAuth
// (gates retrying a Failed or Waiting step).
type Authorizer func(user *UserRecord) bool

// AllowAll is the default Authorizer: every user is permitted. Workflows and
// steps that don't name an explicit authorizer use this.
func AllowAll(*UserRecord) bool { return true }

// DenyAll permits no one; useful for steps that should only ever be retried
// by the scheduler, never a human action.
func DenyAll(*UserRecord) bool { return false }

// RequireRole builds an Authorizer permitting only users carrying role.
func RequireRole(role string) Authorizer {
	return func(u *UserRecord) bool { return u.HasRole(role) }
}
