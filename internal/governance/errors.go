package governance

import (
	"errors"
	"fmt"
)

// Category classifies why a governed call did not produce a result.
type Category string

const (
	CategoryBlocked          Category = "blocked"
	CategoryRejected         Category = "rejected"
	CategoryExpired          Category = "expired"
	CategoryExecutionFailure Category = "execution_failure"
)

// Error is returned when governance stops an action. Error() keeps the
// human-readable reason so log consumers matching on text still work.
type Error struct {
	Category Category
	Reason   string
	ToolName string
	Action   string
	Err      error // underlying cause, if any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.ToolName, e.Action, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnaudited is wrapped into the error returned when an action ran but
// its outcome could not be written to the audit log.
var ErrUnaudited = errors.New("action outcome not audited")

// CategoryOf classifies err. Errors not produced by governance are
// execution failures; nil has no category.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Category
	}
	return CategoryExecutionFailure
}

// IsBlocked reports whether err is a firewall, scope or schema denial.
func IsBlocked(err error) bool { return CategoryOf(err) == CategoryBlocked }

// IsRejected reports whether an approval was declined.
func IsRejected(err error) bool { return CategoryOf(err) == CategoryRejected }

// IsExpired reports whether an approval timed out.
func IsExpired(err error) bool { return CategoryOf(err) == CategoryExpired }
