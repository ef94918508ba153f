package session

import (
	"time"

	"github.com/zjrosen/fsync/internal/xmllog"
)

// Element names the transfer commands report.
const (
	tagUpload   = "upload"
	tagDownload = "download"
	tagMkdir    = "mkdir"
	tagChmod    = "chmod"
	tagTouch    = "touch"
	tagRemoval  = "rm"
)

// Side names where a file lives.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideRemote {
		return "remote"
	}
	return "local"
}

func parseSide(s string) Side {
	if s == "remote" {
		return SideRemote
	}
	return SideLocal
}

// TransferEvent is the outcome of transferring one file. Side is where the
// source file lives.
type TransferEvent struct {
	FileName    string
	Destination string
	Side        Side
	Error       *RemoteError
	Chmod       *ChmodEvent
	Touch       *TouchEvent
	Removal     *RemovalEvent
}

// Err returns the transfer's own error, or the error of its chmod, touch or
// removal step.
func (e *TransferEvent) Err() error {
	switch {
	case e.Error != nil:
		return e.Error
	case e.Chmod != nil && e.Chmod.Error != nil:
		return e.Chmod.Error
	case e.Touch != nil && e.Touch.Error != nil:
		return e.Touch.Error
	case e.Removal != nil && e.Removal.Error != nil:
		return e.Removal.Error
	}
	return nil
}

// ChmodEvent is the permission change applied after a transfer.
type ChmodEvent struct {
	FileName        string
	FilePermissions *FilePermissions
	Error           *RemoteError
}

// TouchEvent is the timestamp change applied after a transfer.
type TouchEvent struct {
	FileName      string
	LastWriteTime time.Time
	Error         *RemoteError
}

// RemovalEvent is the removal of one file.
type RemovalEvent struct {
	FileName string
	Error    *RemoteError
}

// readEventResult fills dst from a result element under the cursor.
func readEventResult(r *xmllog.Reader, dst **RemoteError) (bool, error) {
	if !r.IsElement(xmllog.TagResult) {
		return false, nil
	}
	rerr, err := r.ResultError()
	if err != nil {
		return true, err
	}
	*dst = rerr
	return true, nil
}

func (s *Session) readTransferEvent(r *xmllog.Reader, side Side) (*TransferEvent, error) {
	ev := &TransferEvent{Side: side}
	err := s.eachNode(r, func(c *xmllog.Reader) error {
		if v, ok := c.Value("filename"); ok {
			ev.FileName = v
			return nil
		}
		if v, ok := c.Value("destination"); ok {
			ev.Destination = v
			return nil
		}
		_, err := readEventResult(c, &ev.Error)
		return err
	})
	return ev, err
}

func (s *Session) readChmodEvent(r *xmllog.Reader) (*ChmodEvent, error) {
	ev := &ChmodEvent{}
	err := s.eachNode(r, func(c *xmllog.Reader) error {
		if v, ok := c.Value("filename"); ok {
			ev.FileName = v
			return nil
		}
		if v, ok := c.Value("permissions"); ok {
			perms, err := ParsePermissions(v)
			if err != nil {
				return err
			}
			ev.FilePermissions = perms
			return nil
		}
		_, err := readEventResult(c, &ev.Error)
		return err
	})
	return ev, err
}

func (s *Session) readTouchEvent(r *xmllog.Reader) (*TouchEvent, error) {
	ev := &TouchEvent{}
	err := s.eachNode(r, func(c *xmllog.Reader) error {
		if v, ok := c.Value("filename"); ok {
			ev.FileName = v
			return nil
		}
		if v, ok := c.Value("modification"); ok {
			t, err := parseLogTime(v)
			if err != nil {
				return err
			}
			ev.LastWriteTime = t
			return nil
		}
		_, err := readEventResult(c, &ev.Error)
		return err
	})
	return ev, err
}

func (s *Session) readRemovalEvent(r *xmllog.Reader) (*RemovalEvent, error) {
	ev := &RemovalEvent{}
	err := s.eachNode(r, func(c *xmllog.Reader) error {
		if v, ok := c.Value("filename"); ok {
			ev.FileName = v
			return nil
		}
		_, err := readEventResult(c, &ev.Error)
		return err
	})
	return ev, err
}

// parseLogTime parses the engine's xs:dateTime timestamps. Timestamps
// without a zone are local time.
func parseLogTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.Local(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", v, time.Local)
	if err != nil {
		return time.Time{}, localErrorf(ErrProtocol, "invalid timestamp %q", v)
	}
	return t, nil
}

func orderError(tag, expected string) error {
	return localErrorf(ErrProtocol, "tag %s before tag %s", tag, expected)
}
