package store

import (
	"context"
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
)

// Kind classifies store-level execution failures into the categories the
// agent maps to user-facing result strings.
type Kind int

const (
	KindNotFound Kind = iota
	KindSyntax
	KindExecution
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindSyntax:
		return "syntax"
	case KindExecution:
		return "execution"
	default:
		return "database"
	}
}

type ExecError struct {
	Kind Kind
	Err  error
}

func (e *ExecError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// classify maps a driver error to an ExecError. SQLite reports both missing
// tables and syntax errors under the generic SQLITE_ERROR code, so those two
// cases are distinguished by message; everything else goes by error type.
func classify(err error) *ExecError {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		message := strings.ToLower(sqliteErr.Error())
		switch {
		case strings.Contains(message, "no such table"):
			return &ExecError{Kind: KindNotFound, Err: err}
		case strings.Contains(message, "syntax error"):
			return &ExecError{Kind: KindSyntax, Err: err}
		default:
			return &ExecError{Kind: KindExecution, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ExecError{Kind: KindExecution, Err: err}
	}
	return &ExecError{Kind: KindDatabase, Err: err}
}
