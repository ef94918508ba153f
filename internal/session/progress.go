package session

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/process"
	"github.com/zjrosen/fsync/internal/tracing"
)

// ProgressEvent reports transfer progress. A handler sets Cancel to ask the
// engine to stop the transfer in progress.
type ProgressEvent struct {
	Operation       string
	Side            Side
	Directory       string
	FileName        string
	FileProgress    float64
	OverallProgress float64
	CPS             int
	Cancel          bool
}

// enableProgress marks one operation as running. The returned release
// delivers every progress record still queued, including records scheduled
// while it delivers, before the operation returns.
func (s *Session) enableProgress() (release func()) {
	s.progressHandling++
	return func() {
		s.queue.Flush()
		s.progressHandling--
	}
}

// scheduleProgress runs on the engine's stdout goroutine.
func (s *Session) scheduleProgress(rec process.ProgressRecord) {
	s.gotOutput()
	s.queue.Schedule(func() { s.deliverProgress(rec) })
}

func (s *Session) deliverProgress(rec process.ProgressRecord) {
	if s.progressHandlers.empty() {
		return
	}
	if s.progressHandling == 0 {
		s.logger.Debug(log.CatSession, "Delivering progress after its operation", "file", rec.FileName)
	}

	ev := &ProgressEvent{
		Operation:       rec.Operation,
		Side:            parseSide(rec.Side),
		Directory:       rec.Directory,
		FileName:        rec.FileName,
		FileProgress:    rec.FileProgress,
		OverallProgress: rec.OverallProgress,
		CPS:             rec.CPS,
	}
	s.progressHandlers.emit(ev)

	if !ev.Cancel || s.process == nil {
		return
	}
	s.logger.Info(log.CatSession, "Cancelling transfer on request", "file", rec.FileName)
	if s.opCtx != nil {
		trace.SpanFromContext(s.opCtx).AddEvent(tracing.EventCancelled,
			trace.WithAttributes(attribute.String(tracing.AttrLocalPath, rec.FileName)))
	}
	if err := s.process.Interrupt(); err != nil {
		s.logger.ErrorErr(log.CatSession, "Failed to interrupt transfer", err)
	}
}
