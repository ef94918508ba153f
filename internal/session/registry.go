package session

// failureRecorder is implemented by every operation result.
type failureRecorder interface {
	addFailure(err error)
}

// Token identifies one registration in a ResultRegistry.
type Token uint64

// ResultRegistry tracks the results of operations in flight. A failure the
// engine reports is attached to all of them, since one fatal engine error can
// end several nested operations at once. It is used from the caller's
// goroutine only.
type ResultRegistry struct {
	next    Token
	results map[Token]failureRecorder
}

// NewResultRegistry creates an empty registry.
func NewResultRegistry() *ResultRegistry {
	return &ResultRegistry{results: make(map[Token]failureRecorder)}
}

// Register starts attaching failures to result.
func (r *ResultRegistry) Register(result failureRecorder) Token {
	r.next++
	r.results[r.next] = result
	return r.next
}

// Unregister stops attaching failures to the result registered under t.
func (r *ResultRegistry) Unregister(t Token) {
	delete(r.results, t)
}

// Attach adds err to every registered result.
func (r *ResultRegistry) Attach(err error) {
	for _, result := range r.results {
		result.addFailure(err)
	}
}

// Len returns the number of registered results.
func (r *ResultRegistry) Len() int {
	return len(r.results)
}
