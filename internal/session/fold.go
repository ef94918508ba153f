package session

import (
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/xmllog"
)

// release closes r. A close error replaces *err only when there was none.
func (s *Session) release(r *xmllog.Reader, err *error) {
	cerr := r.Close()
	if cerr == nil {
		return
	}
	if *err == nil {
		*err = cerr
		return
	}
	s.logger.Debug(log.CatXML, "Error closing scope after failure", "error", cerr)
}

// withScope runs fn on a reader scoped to the element under parent's cursor.
func (s *Session) withScope(parent *xmllog.Reader, fn func(*xmllog.Reader) error) (err error) {
	child, err := parent.Child()
	if err != nil {
		return err
	}
	defer s.release(child, &err)
	return fn(child)
}

// withElement waits for tag, failing on any failure element met first, and
// runs fn on a reader scoped to it.
func (s *Session) withElement(parent *xmllog.Reader, tag string, fn func(*xmllog.Reader) error) (err error) {
	child, err := parent.WaitForElement(tag, xmllog.ThrowFailures)
	if err != nil {
		return err
	}
	defer s.release(child, &err)
	return fn(child)
}

// eachNode calls fn for every node inside the element under the cursor.
func (s *Session) eachNode(parent *xmllog.Reader, fn func(*xmllog.Reader) error) error {
	return s.withScope(parent, func(r *xmllog.Reader) error {
		for {
			ok, err := r.Read(0)
			if err != nil || !ok {
				return err
			}
			if err := fn(r); err != nil {
				return err
			}
		}
	})
}

// skip consumes the element under the cursor.
func (s *Session) skip(r *xmllog.Reader) error {
	return s.withScope(r, func(*xmllog.Reader) error { return nil })
}

// readGroup reads the group answering the last command. fold sees the group
// first; whatever it leaves is read with flags. The group is always consumed
// to its end so the next command reads its own group.
func (s *Session) readGroup(flags xmllog.ReadFlags, fold func(group *xmllog.Reader) error) (err error) {
	group, err := s.reader.WaitForGroup()
	if err != nil {
		return err
	}
	defer s.release(group, &err)

	if fold != nil {
		if err := fold(group); err != nil {
			return err
		}
	}
	return group.ReadToEnd(flags)
}

// foldTable maps element names inside a group to the step that folds them.
// Elements without a step are passed over.
type foldTable map[string]func(r *xmllog.Reader) error

func (t foldTable) fold(group *xmllog.Reader) error {
	for {
		ok, err := group.Read(0)
		if err != nil || !ok {
			return err
		}
		for tag, step := range t {
			if group.IsElement(tag) {
				if err := step(group); err != nil {
					return err
				}
				break
			}
		}
	}
}

// transferFold accumulates transfer events in log order. A chmod or touch
// element belongs to the transfer right before it. After a mkdir element
// they belong to the directory and are ignored.
type transferFold struct {
	s       *Session
	current *TransferEvent
	mkdir   bool
	// expected names the element chmod and touch must follow.
	expected string
	add      func(*TransferEvent)
}

func (f *transferFold) flush() {
	if f.current != nil {
		f.add(f.current)
		f.current = nil
	}
}

func (f *transferFold) transfer(side Side) func(*xmllog.Reader) error {
	return func(r *xmllog.Reader) error {
		f.flush()
		ev, err := f.s.readTransferEvent(r, side)
		if err != nil {
			return err
		}
		f.current = ev
		f.mkdir = false
		return nil
	}
}

func (f *transferFold) directory(r *xmllog.Reader) error {
	f.flush()
	f.mkdir = true
	return f.s.skip(r)
}

func (f *transferFold) chmod(r *xmllog.Reader) error {
	if f.mkdir {
		return f.s.skip(r)
	}
	if f.current == nil {
		return orderError(tagChmod, f.expected)
	}
	ev, err := f.s.readChmodEvent(r)
	if err != nil {
		return err
	}
	f.current.Chmod = ev
	return nil
}

func (f *transferFold) touch(r *xmllog.Reader) error {
	if f.mkdir {
		return f.s.skip(r)
	}
	if f.current == nil {
		return orderError(tagTouch, f.expected)
	}
	ev, err := f.s.readTouchEvent(r)
	if err != nil {
		return err
	}
	f.current.Touch = ev
	return nil
}

// removal attaches the first rm after a download to it. Downloading and
// deleting a folder also logs rm elements for directories, with no download
// before them; those and any later rm of the same transfer are skipped.
func (f *transferFold) removal(r *xmllog.Reader) error {
	if f.current == nil || f.current.Removal != nil {
		return f.s.skip(r)
	}
	ev, err := f.s.readRemovalEvent(r)
	if err != nil {
		return err
	}
	f.current.Removal = ev
	return nil
}
