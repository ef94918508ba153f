package session

// HandlerID identifies a registered event handler.
type HandlerID uint64

type handlerEntry[T any] struct {
	id HandlerID
	fn func(T)
}

// handlerList delivers an event to its handlers in registration order.
type handlerList[T any] struct {
	entries []handlerEntry[T]
}

func (l *handlerList[T]) add(id HandlerID, fn func(T)) {
	l.entries = append(l.entries, handlerEntry[T]{id: id, fn: fn})
}

func (l *handlerList[T]) remove(id HandlerID) bool {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *handlerList[T]) has(id HandlerID) bool {
	for _, e := range l.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

func (l *handlerList[T]) empty() bool {
	return len(l.entries) == 0
}

func (l *handlerList[T]) emit(v T) {
	// Handlers may remove themselves while running.
	entries := l.entries
	for _, e := range entries {
		e.fn(v)
	}
}

// OutputEvent is one console line printed by the engine.
type OutputEvent struct {
	Line   string
	Stderr bool
}

// OnOutputDataReceived registers fn for every console line the engine prints.
func (s *Session) OnOutputDataReceived(fn func(OutputEvent)) HandlerID {
	id := s.nextHandlerID()
	s.outputHandlers.add(id, fn)
	return id
}

// OnFileTransferred registers fn for every completed file transfer.
func (s *Session) OnFileTransferred(fn func(*TransferEvent)) HandlerID {
	id := s.nextHandlerID()
	s.transferHandlers.add(id, fn)
	return id
}

// OnFailed registers fn for every failure the engine reports.
func (s *Session) OnFailed(fn func(*RemoteError)) HandlerID {
	id := s.nextHandlerID()
	s.failedHandlers.add(id, fn)
	return id
}

// OnFileTransferProgress registers fn for transfer progress. Progress
// handlers can only be changed while the session is closed.
func (s *Session) OnFileTransferProgress(fn func(*ProgressEvent)) (HandlerID, error) {
	if err := s.checkNotOpened(); err != nil {
		return 0, err
	}
	id := s.nextHandlerID()
	s.progressHandlers.add(id, fn)
	return id, nil
}

// RemoveHandler unregisters the handler with id. Removing an unknown id is
// a no-op.
func (s *Session) RemoveHandler(id HandlerID) error {
	if s.progressHandlers.has(id) {
		if err := s.checkNotOpened(); err != nil {
			return err
		}
		s.progressHandlers.remove(id)
		return nil
	}
	if s.outputHandlers.remove(id) || s.transferHandlers.remove(id) {
		return nil
	}
	s.failedHandlers.remove(id)
	return nil
}

func (s *Session) nextHandlerID() HandlerID {
	s.handlerSeq++
	return s.handlerSeq
}
