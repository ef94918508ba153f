package process

import (
	"strings"
	"sync"
)

// DefaultTrackerCapacity is the number of lines kept per stream.
const DefaultTrackerCapacity = 500

// Stream identifies which pipe a line came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// OutputTracker keeps the most recent console lines of the engine for
// diagnostics. It is written from the pipe readers and read from the
// caller's goroutine.
type OutputTracker struct {
	mu       sync.Mutex
	capacity int
	out      []string
	errOut   []string
}

// NewOutputTracker creates a tracker keeping at most capacity lines per stream.
func NewOutputTracker(capacity int) *OutputTracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	return &OutputTracker{capacity: capacity}
}

// Append records a line, evicting the oldest line of that stream when full.
func (t *OutputTracker) Append(line string, stream Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stream == StreamStderr {
		t.errOut = appendBounded(t.errOut, line, t.capacity)
	} else {
		t.out = appendBounded(t.out, line, t.capacity)
	}
}

func appendBounded(lines []string, line string, capacity int) []string {
	if len(lines) >= capacity {
		copy(lines, lines[len(lines)-capacity+1:])
		lines = lines[:capacity-1]
	}
	return append(lines, line)
}

// Output returns a copy of the retained stdout lines.
func (t *OutputTracker) Output() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.out...)
}

// ErrorOutput returns a copy of the retained stderr lines.
func (t *OutputTracker) ErrorOutput() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.errOut...)
}

// Combined joins stdout and then stderr lines for error messages.
func (t *OutputTracker) Combined() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := make([]string, 0, len(t.out)+len(t.errOut))
	lines = append(lines, t.out...)
	lines = append(lines, t.errOut...)
	return strings.Join(lines, "\n")
}

// Reset drops all retained lines.
func (t *OutputTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = nil
	t.errOut = nil
}
