package errors

import (
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Representation of errors in fhdeploy. These are divided by which
// stage of a deployment cycle went wrong, since that decides what
// happens next:
//  - resolution failures are retried by the next trigger;
//  - apply failures send us down the rollback path;
//  - rollback failures need a human;
//  - authentication failures never reach the orchestrator;
//  - state store failures risk a redundant re-apply.
type Error struct {
	Type Type
	// a message that can be printed out for the operator
	Help string `json:"help"`
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

type Type string

const (
	// Looking up the version for a reference failed
	Resolution Type = "resolution"
	// Activating a configuration failed
	Apply Type = "apply"
	// Reverting to the previous configuration failed; the system
	// may be in an inconsistent state
	Rollback Type = "rollback"
	// A webhook request could not be authenticated
	Authentication Type = "authentication"
	// Reading or writing the deployment record failed
	StateStore Type = "state-store"
	// The operator asked for something that can't happen with the
	// configuration supplied
	User Type = "user"
	// Something went wrong that isn't anyone's fault in particular
	Server Type = "server"
)

// Is reports whether err (or what it wraps) is an *Error of the
// given type.
func Is(err error, t Type) bool {
	if err, ok := pkgerrors.Cause(err).(*Error); ok && err.Type == t {
		return true
	}
	return false
}

// wireError is how an *Error travels over HTTP. Err becomes its
// message, so the daemon's errors can be shown by fhdeployctl.
type wireError struct {
	Type string `json:"type"`
	Help string `json:"help"`
	Err  string `json:"error,omitempty"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	w := wireError{Type: string(e.Type), Help: e.Help}
	if e.Err != nil {
		w.Err = e.Err.Error()
	}
	return json.Marshal(w)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var w wireError
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Type, e.Help, e.Err = Type(w.Type), w.Help, nil
	if w.Err != "" {
		e.Err = errors.New(w.Err)
	}
	return nil
}

// CoverAllError gives an untyped error a type and help text, for
// reporting it over HTTP.
func CoverAllError(err error) *Error {
	return &Error{
		Type: Server,
		Err:  err,
		Help: `Error: ` + err.Error() + `

We don't have a specific help message for the error above.

It would help us remedy this if you log an issue at

    https://github.com/fluxcd/fhdeploy/issues

saying what you were doing when you saw this, and quoting the message
at the top.
`,
	}
}
