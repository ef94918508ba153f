package process

// Status is where the engine process is in its lifecycle.
type Status int

const (
	StatusPending Status = iota // not started yet
	StatusRunning               // alive and reading commands
	StatusExited                // exited on its own
	StatusKilled                // force-terminated by Terminate or Close
)

var statusNames = [...]string{"pending", "running", "exited", "killed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// IsTerminal reports whether the process can no longer accept commands.
func (s Status) IsTerminal() bool {
	return s >= StatusExited
}
