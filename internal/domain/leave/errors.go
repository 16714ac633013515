package leave

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid request state transition")
	ErrNotCancellable    = errors.New("only pending requests can be cancelled")
	ErrRequestNotFound   = errors.New("leave request not found")
)

const (
	CodeLeaveTypeRequired   = "leave_type_required"
	CodeReasonRequired      = "reason_required"
	CodeContactRequired     = "contact_required"
	CodeContactInvalid      = "contact_invalid"
	CodeDocumentRequired    = "document_required"
	CodeInvalidDates        = "invalid_dates"
	CodeNoWorkingDays       = "no_working_days"
	CodeMaxDaysExceeded     = "max_days_exceeded"
	CodeNoticePeriod        = "notice_period"
	CodeInsufficientBalance = "insufficient_balance"
)

// ValidationError is the first failing local check of a draft request.
type ValidationError struct {
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ServerError is implemented by transport errors that carry the remote API's
// {error, details} body.
type ServerError interface {
	error
	ServerMessage() string
}

// SubmitError wraps a rejected submission with copy suitable for the user.
type SubmitError struct {
	Friendly string
	Err      error
}

func (e *SubmitError) Error() string {
	return e.Friendly
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// serverMessageRewrites is checked in order; the first matching phrase wins.
var serverMessageRewrites = []struct {
	patterns []string
	message  string
}{
	{[]string{"notice period", "advance notice", "days notice", "days' notice"}, "This leave type needs more advance notice. Please pick a later start date."},
	{[]string{"overlap"}, "You already have a leave request covering some of these dates."},
	{[]string{"insufficient balance", "insufficient leave balance", "not enough balance", "available balance", "exceeds balance"}, "You don't have enough leave balance for these dates."},
	{[]string{"minimum service", "service period", "min service"}, "You haven't completed the minimum service period required for this leave type."},
	{[]string{"max consecutive", "maximum consecutive", "maximum days", "max days", "maximum allowed", "maximum of"}, "The selected dates exceed the maximum days allowed for this leave type."},
}

// DescribeSubmitError turns a failed submission into a single user-facing
// message. Known server rule violations are rewritten; anything else falls
// back to a generic retry prompt.
func DescribeSubmitError(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrUnauthorized) {
		return "Your session has expired. Please sign in again."
	}
	var serr ServerError
	if errors.As(err, &serr) {
		msg := strings.ToLower(serr.ServerMessage())
		for _, rewrite := range serverMessageRewrites {
			for _, pattern := range rewrite.patterns {
				if strings.Contains(msg, pattern) {
					return rewrite.message
				}
			}
		}
		if trimmed := strings.TrimSpace(serr.ServerMessage()); trimmed != "" {
			return trimmed
		}
	}
	return "Failed to submit leave request. Please try again."
}
