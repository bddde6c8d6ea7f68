package access

// Decision is the outcome of comparing a subject to a permission request.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionAllowed
	DecisionDenied
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAllowed:
		return "allowed"
	case DecisionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Subject is what the guard knows about the caller's session.
type Subject struct {
	// Resolved is false while the session is still loading.
	Resolved bool
	// Authenticated is true when the session carries an identity.
	Authenticated bool
	Role          Role
}

// Pending is the subject of a session that has not been resolved yet.
func Pending() Subject {
	return Subject{}
}

// Anonymous is the subject of a resolved session without identity.
func Anonymous() Subject {
	return Subject{Resolved: true}
}

// Authenticated is the subject of a resolved session with the given role.
func Authenticated(role Role) Subject {
	return Subject{Resolved: true, Authenticated: true, Role: role}
}

// Evaluate is the guard's transition function. It never fails: a missing
// identity or an unlisted role is a denial.
func Evaluate(subject Subject, req PermissionRequest) Decision {
	if !subject.Resolved {
		return DecisionPending
	}
	if !subject.Authenticated {
		return DecisionDenied
	}
	if req.Contains(subject.Role) {
		return DecisionAllowed
	}
	return DecisionDenied
}
