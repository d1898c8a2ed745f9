package auth

// Status classifies the result of an auth operation.
type Status int

const (
	// StatusSuccess means the operation completed and the session is valid.
	StatusSuccess Status = iota
	// StatusExpired means the token is (or is about to be) past its
	// lifetime and needs a refresh.
	StatusExpired
	// StatusFailure means the operation failed; Message carries the
	// user-facing description.
	StatusFailure
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusExpired:
		return "Expired"
	case StatusFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Outcome is the classified result of login/verify/refresh. Failures are
// values, never panics, so they can cross component boundaries safely.
//
// Transient marks failures where the network, not the session, is at fault:
// background triggers retry those at their next firing instead of cascading
// to logout.
type Outcome struct {
	Status    Status
	Message   string
	Transient bool
}

// Success returns a successful outcome.
func Success() Outcome { return Outcome{Status: StatusSuccess} }

// Expired returns an expired outcome.
func Expired() Outcome { return Outcome{Status: StatusExpired} }

// Failure returns a failed outcome with a user-facing message.
func Failure(message string) Outcome {
	return Outcome{Status: StatusFailure, Message: message}
}

// TransientFailure returns a failed outcome that should be retried.
func TransientFailure(message string) Outcome {
	return Outcome{Status: StatusFailure, Message: message, Transient: true}
}

// SessionState is the auth cycle's state machine.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	Refreshing
	ExpiredState
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "Unauthenticated"
	case Authenticated:
		return "Authenticated"
	case Refreshing:
		return "Refreshing"
	case ExpiredState:
		return "Expired"
	default:
		return "Unknown"
	}
}
