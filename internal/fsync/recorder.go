package fsync

import (
	"context"
	"sync"

	"github.com/zjrosen/fsync/internal/history"
	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/session"
)

// Recorder buffers the transfers a session reports and writes them to the
// history store once the operation that caused them finishes. A nil store
// disables recording.
type Recorder struct {
	store  *history.Store
	logger *log.Logger

	mu      sync.Mutex
	pending []history.Entry
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *history.Store, logger *log.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Attach subscribes the recorder to the transfers of s.
func (r *Recorder) Attach(s *session.Session) {
	if r == nil || r.store == nil {
		return
	}
	id := s.ID()
	s.OnFileTransferred(func(ev *session.TransferEvent) {
		r.add(transferEntry(id, ev))
	})
}

// Removals buffers removals reported in an operation result.
func (r *Recorder) Removals(sessionID string, removals []*session.RemovalEvent) {
	if r == nil || r.store == nil {
		return
	}
	for _, ev := range removals {
		entry := history.Entry{
			SessionID: sessionID,
			Operation: history.OperationRemove,
			Side:      session.SideRemote.String(),
			FileName:  ev.FileName,
		}
		if ev.Error != nil {
			entry.Error = ev.Error.Error()
		}
		r.add(entry)
	}
}

// Flush writes the buffered entries under pair.
func (r *Recorder) Flush(ctx context.Context, pair string) error {
	if r == nil || r.store == nil {
		return nil
	}
	r.mu.Lock()
	entries := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		entries[i].Pair = pair
	}
	if err := r.store.Record(ctx, entries...); err != nil {
		r.logger.ErrorErr(log.CatHistory, "Failed to record history", err, "pair", pair, "entries", len(entries))
		return err
	}
	r.logger.Debug(log.CatHistory, "Recorded history", "pair", pair, "entries", len(entries))
	return nil
}

// Discard drops the buffered entries.
func (r *Recorder) Discard() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}

func (r *Recorder) add(entry history.Entry) {
	r.mu.Lock()
	r.pending = append(r.pending, entry)
	r.mu.Unlock()
}

func transferEntry(sessionID string, ev *session.TransferEvent) history.Entry {
	entry := history.Entry{
		SessionID:   sessionID,
		Operation:   history.OperationUpload,
		Side:        ev.Side.String(),
		FileName:    ev.FileName,
		Destination: ev.Destination,
	}
	if ev.Side == session.SideRemote {
		entry.Operation = history.OperationDownload
	}
	if err := ev.Err(); err != nil {
		entry.Error = err.Error()
	}
	return entry
}
