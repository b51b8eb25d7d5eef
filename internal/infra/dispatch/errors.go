package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// maxReportedErrors bounds how many attempt failures end up in an aggregate message.
const maxReportedErrors = 3

var (
	// ErrNoCredentials is returned without any attempt when the pool is empty.
	ErrNoCredentials = errors.New("dispatch: no credentials configured")
	// ErrExhausted matches every *ExhaustedError that ran out of attempts.
	ErrExhausted = errors.New("dispatch: all attempts failed")
)

// ExhaustedError aggregates the failures of one dispatch.
// Ctx is set when the context ended the loop before the attempt budget did.
type ExhaustedError struct {
	Attempts int
	Errors   []error
	Ctx      error
}

func (e *ExhaustedError) Error() string {
	var sb strings.Builder
	if e.Ctx != nil {
		fmt.Fprintf(&sb, "dispatch canceled after %d attempts (%v)", e.Attempts, e.Ctx)
	} else {
		fmt.Fprintf(&sb, "all credentials unavailable after %d attempts", e.Attempts)
	}
	if msgs := e.Messages(); len(msgs) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(msgs, "; "))
	}
	return sb.String()
}

// Messages returns at most three underlying failure messages, oldest first.
func (e *ExhaustedError) Messages() []string {
	n := len(e.Errors)
	if n > maxReportedErrors {
		n = maxReportedErrors
	}
	out := make([]string, 0, n)
	for _, err := range e.Errors[:n] {
		out = append(out, err.Error())
	}
	return out
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted && e.Ctx == nil
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Ctx == nil {
		return e.Errors
	}
	return append(append([]error{}, e.Errors...), e.Ctx)
}
