package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an application error for callers and the HTTP layer.
type Kind string

const (
	KindConfiguration        Kind = "configuration"
	KindAuthentication       Kind = "authentication"
	KindNotFound             Kind = "not_found"
	KindPlanLimit            Kind = "plan_limit"
	KindSubscriptionRequired Kind = "subscription_required"
	KindExternalProvider     Kind = "external_provider"
	KindValidation           Kind = "validation"
	KindConflict             Kind = "conflict"
	KindForbidden            Kind = "forbidden"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrAuthentication       = errors.New("authentication failed")
	ErrNotFound             = errors.New("not found")
	ErrPlanLimit            = errors.New("plan limit reached")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrExternalProvider     = errors.New("external provider error")
	ErrValidation           = errors.New("invalid input")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
)

var sentinels = map[Kind]error{
	KindConfiguration:        ErrConfiguration,
	KindAuthentication:       ErrAuthentication,
	KindNotFound:             ErrNotFound,
	KindPlanLimit:            ErrPlanLimit,
	KindSubscriptionRequired: ErrSubscriptionRequired,
	KindExternalProvider:     ErrExternalProvider,
	KindValidation:           ErrValidation,
	KindConflict:             ErrConflict,
	KindForbidden:            ErrForbidden,
}

// Resources a plan limit applies to.
const (
	ResourceScans      = "scans"
	ResourceUsers      = "users"
	ResourceWorkspaces = "workspaces"
)

// Error is the structured error returned by the domain packages.
type Error struct {
	Kind     Kind
	Op       string // operation that failed, e.g. "usage.AssertCanScan"
	Message  string // human readable, safe to show to clients
	Resource string // set for plan limit errors
	Current  int64
	Limit    int64
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for the kind sentinels.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	return false
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func NotFound(op, message string) *Error {
	return New(KindNotFound, op, message)
}

func Configuration(op, message string) *Error {
	return New(KindConfiguration, op, message)
}

func Authentication(op, message string, err error) *Error {
	return Wrap(KindAuthentication, op, message, err)
}

func SubscriptionRequired(op, message string) *Error {
	return New(KindSubscriptionRequired, op, message)
}

func ExternalProvider(op, message string, err error) *Error {
	return Wrap(KindExternalProvider, op, message, err)
}

func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

func Conflict(op, message string) *Error {
	return New(KindConflict, op, message)
}

func Forbidden(op, message string) *Error {
	return New(KindForbidden, op, message)
}

// PlanLimit builds a limit error naming the exhausted resource.
func PlanLimit(op, resource, message string, current, limit int64) *Error {
	return &Error{
		Kind:     KindPlanLimit,
		Op:       op,
		Message:  message,
		Resource: resource,
		Current:  current,
		Limit:    limit,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// MessageOf returns the client facing message of err, falling back to def.
func MessageOf(err error, def string) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return def
}
