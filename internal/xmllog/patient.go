package xmllog

import (
	"errors"
	"io"
	"time"
)

// DefaultPollInterval is how long the reader idles between checks for new log bytes.
const DefaultPollInterval = 50 * time.Millisecond

// Waiter decides what happens while the log has no new bytes.
type Waiter interface {
	// Wait idles for up to interval. A non-nil error stops reading; it is
	// returned unchanged from every later read.
	Wait(interval time.Duration) error
	// Touch records that new bytes were read.
	Touch()
}

// PatientReader reads a file that another process is still appending to.
// End of file means "nothing yet", so reads block until more bytes arrive
// or the waiter gives up.
type PatientReader struct {
	r        io.Reader
	waiter   Waiter
	interval time.Duration
}

// NewPatientReader wraps r. A non-positive interval uses DefaultPollInterval.
func NewPatientReader(r io.Reader, w Waiter, interval time.Duration) *PatientReader {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PatientReader{r: r, waiter: w, interval: interval}
}

// Read implements io.Reader.
func (p *PatientReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		n, err := p.r.Read(b)
		if n > 0 {
			p.waiter.Touch()
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if werr := p.waiter.Wait(p.interval); werr != nil {
			return 0, werr
		}
	}
}
