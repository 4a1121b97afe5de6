package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for the calling transport.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindInvalidTransition
	KindConflict
	KindAuthorization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "infrastructure"
	}
}

// Code names a specific expected domain failure.
type Code string

const (
	CodeInvalidInput            Code = "invalid_input"
	CodeInvalidTransition       Code = "invalid_transition"
	CodeEmptyAssignment         Code = "empty_assignment"
	CodeIncompleteTasks         Code = "incomplete_tasks"
	CodeNotAssigned             Code = "not_assigned"
	CodeUnknownItem             Code = "unknown_item"
	CodeMissingRequiredEvidence Code = "missing_required_evidence"
	CodeIssueNoteRequired       Code = "issue_note_required"
	CodeAlreadyInspected        Code = "already_inspected"
	CodeNotReadyForInspection   Code = "not_ready_for_inspection"
	CodeDuplicateOpenDeficiency Code = "duplicate_open_deficiency"
	CodeAlreadyResolved         Code = "already_resolved"
	CodeNoChecklistConfigured   Code = "no_checklist_configured"
	CodeConflict                Code = "conflict"
	CodeForbidden               Code = "forbidden"
	CodeNotFound                Code = "not_found"
)

var codeKinds = map[Code]Kind{
	CodeInvalidInput:            KindValidation,
	CodeInvalidTransition:       KindInvalidTransition,
	CodeEmptyAssignment:         KindValidation,
	CodeIncompleteTasks:         KindInvalidTransition,
	CodeNotAssigned:             KindAuthorization,
	CodeUnknownItem:             KindValidation,
	CodeMissingRequiredEvidence: KindValidation,
	CodeIssueNoteRequired:       KindValidation,
	CodeAlreadyInspected:        KindInvalidTransition,
	CodeNotReadyForInspection:   KindInvalidTransition,
	CodeDuplicateOpenDeficiency: KindInvalidTransition,
	CodeAlreadyResolved:         KindInvalidTransition,
	CodeNoChecklistConfigured:   KindValidation,
	CodeConflict:                KindConflict,
	CodeForbidden:               KindAuthorization,
	CodeNotFound:                KindNotFound,
}

// Error is the failure half of every lifecycle operation result. Expected
// domain conditions are always returned as *Error; anything else an operation
// returns is an infrastructure failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	// ItemIDs lists the offending checklist items for MissingRequiredEvidence.
	ItemIDs []int64
	// TaskIDs lists the non-terminal tasks for IncompleteTasks.
	TaskIDs []int64
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches on Code so callers can use errors.Is with the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput            = &Error{Kind: KindValidation, Code: CodeInvalidInput}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition, Code: CodeInvalidTransition}
	ErrEmptyAssignment         = &Error{Kind: KindValidation, Code: CodeEmptyAssignment}
	ErrIncompleteTasks         = &Error{Kind: KindInvalidTransition, Code: CodeIncompleteTasks}
	ErrNotAssigned             = &Error{Kind: KindAuthorization, Code: CodeNotAssigned}
	ErrUnknownItem             = &Error{Kind: KindValidation, Code: CodeUnknownItem}
	ErrMissingRequiredEvidence = &Error{Kind: KindValidation, Code: CodeMissingRequiredEvidence}
	ErrIssueNoteRequired       = &Error{Kind: KindValidation, Code: CodeIssueNoteRequired}
	ErrAlreadyInspected        = &Error{Kind: KindInvalidTransition, Code: CodeAlreadyInspected}
	ErrNotReadyForInspection   = &Error{Kind: KindInvalidTransition, Code: CodeNotReadyForInspection}
	ErrDuplicateOpenDeficiency = &Error{Kind: KindInvalidTransition, Code: CodeDuplicateOpenDeficiency}
	ErrAlreadyResolved         = &Error{Kind: KindInvalidTransition, Code: CodeAlreadyResolved}
	ErrNoChecklistConfigured   = &Error{Kind: KindValidation, Code: CodeNoChecklistConfigured}
	ErrConflict                = &Error{Kind: KindConflict, Code: CodeConflict}
	ErrForbidden               = &Error{Kind: KindAuthorization, Code: CodeForbidden}
	ErrNotFound                = &Error{Kind: KindNotFound, Code: CodeNotFound}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Kind: codeKinds[code], Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) *Error {
	return newError(CodeInvalidInput, format, args...)
}

func invalidTransition(entity string, id int64, from, event string) *Error {
	return newError(CodeInvalidTransition, "%s %d cannot %s while %s", entity, id, event, from)
}

func notFound(entity string, id int64) *Error {
	return newError(CodeNotFound, "%s %d not found", entity, id)
}

func forbidden(format string, args ...any) *Error {
	return newError(CodeForbidden, format, args...)
}

func conflict(entity string, id int64) *Error {
	return newError(CodeConflict, "%s %d was modified concurrently", entity, id)
}

func missingEvidence(itemIDs []int64) *Error {
	parts := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		parts[i] = fmt.Sprint(id)
	}
	e := newError(CodeMissingRequiredEvidence, "items %s lack required evidence", strings.Join(parts, ", "))
	e.ItemIDs = itemIDs
	return e
}

// KindOf classifies err. Errors that are not *Error are infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// AsError extracts the domain error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsConflict reports whether err is a lost compare-and-swap race that may be
// retried once with a fresh read.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
