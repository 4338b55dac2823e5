package domain

import (
	"errors"
	"strings"
)

// FailureKind classifies an error the way the operator sees it.
type FailureKind int

const (
	// KindValidation is a local check that failed before any network call.
	KindValidation FailureKind = iota + 1
	// KindBackend is a decoded non-2xx backend response.
	KindBackend
	// KindUnauthorized means the bearer token was rejected and the session ended.
	KindUnauthorized
	// KindTransport means the backend could not be reached or answered garbage.
	KindTransport
	// KindBusy means the same operation is already in flight.
	KindBusy
)

func (k FailureKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBackend:
		return "backend"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransport:
		return "transport"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Operator-facing messages shared by several components.
const (
	MsgConnectionFailed = "Could not connect to the server."
	MsgSessionExpired   = "Your session has expired. Please log in again."
	MsgBusy             = "Please wait for the current request to finish."
)

var (
	// ErrBusy is wrapped by every KindBusy failure.
	ErrBusy = errors.New("operation already in progress")
	// ErrUnauthorized is wrapped when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldError is a backend-reported validation failure tied to one attribute.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Failure is the error type every controller operation returns.
// Message is safe to show the operator as-is.
type Failure struct {
	Kind    FailureKind
	Message string
	Fields  []FieldError
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Validation builds a local validation failure.
func Validation(msg string) *Failure {
	return &Failure{Kind: KindValidation, Message: msg}
}

// Busy builds the failure returned for a rejected resubmission.
func Busy() *Failure {
	return &Failure{Kind: KindBusy, Message: MsgBusy, Err: ErrBusy}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}

// JoinFieldErrors renders every field error as "field: message", one per line.
func JoinFieldErrors(fields []FieldError) string {
	lines := make([]string, 0, len(fields))
	for _, fe := range fields {
		if fe.Field == "" {
			lines = append(lines, fe.Message)
			continue
		}
		lines = append(lines, fe.Field+": "+fe.Message)
	}
	return strings.Join(lines, "\n")
}
