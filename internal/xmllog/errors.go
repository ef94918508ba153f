package xmllog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLocked is returned when a reader is used while one of its child
	// readers is still open.
	ErrLocked = errors.New("log reader is locked by an open child reader")
	// ErrClosed is returned when a reader is used after Close.
	ErrClosed = errors.New("log reader is closed")
	// ErrNoElement is returned when an element operation is attempted while
	// the cursor is not on an opening tag.
	ErrNoElement = errors.New("log reader is not positioned on an element")
	// ErrSessionClosed is returned when the engine closes the session element
	// while a command is still expecting output.
	ErrSessionClosed = errors.New("engine closed the session unexpectedly")
)

// ElementNotFoundError reports that a scope ended before the expected element appeared.
type ElementNotFoundError struct {
	Tag string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found in engine log", e.Tag)
}

// RemoteError is a failure reported by the engine itself, either through a
// failure element or an unsuccessful result element.
type RemoteError struct {
	Messages []string
}

func (e *RemoteError) Error() string {
	if len(e.Messages) == 0 {
		return "engine reported a failure"
	}
	return strings.Join(e.Messages, "\n")
}

// Message returns the first (primary) message.
func (e *RemoteError) Message() string {
	if len(e.Messages) == 0 {
		return ""
	}
	return e.Messages[0]
}
