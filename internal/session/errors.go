package session

import (
	"errors"
	"fmt"

	"github.com/zjrosen/fsync/internal/xmllog"
)

// Kinds of local failure. A *LocalError always wraps one of these, so
// callers can test the kind with errors.Is.
var (
	ErrNotOpened       = errors.New("session is not opened")
	ErrAlreadyOpened   = errors.New("session is already opened")
	ErrDisposed        = errors.New("session is disposed")
	ErrSessionAborted  = errors.New("session was aborted")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrProtocol        = errors.New("unexpected engine response")
	ErrStartup         = errors.New("engine did not start")
	ErrTimeout         = errors.New("timeout waiting for engine to respond")
	ErrAborted         = errors.New("operation aborted")
	ErrEngineExited    = errors.New("engine process terminated unexpectedly")
)

// RemoteError is a failure reported by the engine for the current command.
type RemoteError = xmllog.RemoteError

// LocalError is a failure detected on this side of the engine: a misuse of
// the session, a malformed response, a startup failure, a timeout or an abort.
type LocalError struct {
	Msg string
	Err error
}

func (e *LocalError) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Err.Error() + ": " + e.Msg
	}
}

func (e *LocalError) Unwrap() error {
	return e.Err
}

func localErrorf(kind error, format string, args ...any) *LocalError {
	return &LocalError{Msg: fmt.Sprintf(format, args...), Err: kind}
}

// IsRemote reports whether err carries a failure reported by the engine.
func IsRemote(err error) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr)
}

// normalize guarantees the caller sees either a *LocalError or a
// *RemoteError. Reader and process errors are wrapped as local errors.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var lerr *LocalError
	if errors.As(err, &lerr) {
		return err
	}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return err
	}
	var nf *xmllog.ElementNotFoundError
	if errors.As(err, &nf) {
		return &LocalError{Msg: nf.Error(), Err: ErrProtocol}
	}
	if errors.Is(err, xmllog.ErrSessionClosed) {
		return &LocalError{Err: fmt.Errorf("%w: %w", ErrEngineExited, err)}
	}
	return &LocalError{Err: err}
}
