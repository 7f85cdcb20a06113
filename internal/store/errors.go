package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindUnavailable       Kind = "unavailable"
)

// Error is the structured error returned by every core operation. Fields
// carries the offending identifiers (turn_id, resource_id, from, to...).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Fields[k])
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare kind sentinels below, so errors.Is(err, ErrNotFound)
// holds for any NotFound error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

var (
	// ErrCodeTaken marks a lost race on the active-code unique index.
	ErrCodeTaken = errors.New("turn code already held by an active turn")
	// ErrDuplicateRequest marks a lost race on the create request id.
	ErrDuplicateRequest = errors.New("request id already used")
)

func Validation(message string, fields ...string) error {
	return &Error{Kind: KindValidation, Message: message, Fields: pairs(fields)}
}

func NotFound(entity, id string) error {
	return &Error{
		Kind:    KindNotFound,
		Message: entity + " not found",
		Fields:  map[string]string{entity + "_id": id},
	}
}

func InvalidTransition(turnID string, from, to string) error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("transition %s -> %s not allowed", from, to),
		Fields:  map[string]string{"turn_id": turnID, "from": from, "to": to},
	}
}

func Conflict(message string, fields ...string) error {
	return &Error{Kind: KindConflict, Message: message, Fields: pairs(fields)}
}

func ConflictErr(message string, cause error, fields ...string) error {
	return &Error{Kind: KindConflict, Message: message, Fields: pairs(fields), Err: cause}
}

func Unavailable(cause error) error {
	return &Error{Kind: KindUnavailable, Message: "backing store unavailable", Err: cause}
}

// KindOf reports the kind of err, or "" when err is not a core error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FieldsOf returns the structured identifiers attached to err.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func pairs(kv []string) map[string]string {
	if len(kv) < 2 {
		return nil
	}
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
