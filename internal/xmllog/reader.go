// Package xmllog reads the XML log the engine writes while it runs.
//
// The log is one document rooted at a session element with one group per
// submitted command. Readers are positional cursors, not trees: a Reader is
// scoped to one element and a child Reader locks its parent until closed,
// so nested scopes always release the stream in order.
package xmllog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/zjrosen/fsync/internal/log"
)

// Element names shared by every command.
const (
	TagSession = "session"
	TagGroup   = "group"
	TagFailure = "failure"
	TagMessage = "message"
	TagResult  = "result"
)

// ReadFlags controls how Read treats failure elements.
type ReadFlags int

const (
	// ThrowFailures makes Read return a *RemoteError when it meets a failure
	// element. Without it the failure is reported to the failure handler only.
	ThrowFailures ReadFlags = 1 << iota
)

type nodeKind int

const (
	nodeNone nodeKind = iota
	nodeStart
	nodeEnd
	nodeText
)

type node struct {
	kind  nodeKind
	name  string
	attrs []xml.Attr
	text  string
	depth int
}

// document is the decoder state shared by a reader and all its scopes.
type document struct {
	dec       *xml.Decoder
	cur       node
	depth     int
	err       error
	onFailure func(*RemoteError)
	logger    *log.Logger
}

func (d *document) next() (node, error) {
	if d.err != nil {
		return node{}, d.err
	}
	for {
		tok, err := d.dec.Token()
		if err != nil {
			d.err = err
			d.cur = node{}
			return node{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			d.depth++
			d.cur = node{
				kind:  nodeStart,
				name:  t.Name.Local,
				attrs: append([]xml.Attr(nil), t.Attr...),
				depth: d.depth,
			}
			return d.cur, nil
		case xml.EndElement:
			d.cur = node{kind: nodeEnd, name: t.Name.Local, depth: d.depth}
			d.depth--
			return d.cur, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			d.cur = node{kind: nodeText, text: string(t), depth: d.depth}
			return d.cur, nil
		}
	}
}

// textUntilEnd concatenates the character data up to the end of the element
// opened at depth.
func (d *document) textUntilEnd(depth int) (string, error) {
	var b strings.Builder
	for {
		n, err := d.next()
		if err != nil {
			return "", err
		}
		switch {
		case n.kind == nodeEnd && n.depth == depth:
			return strings.TrimSpace(b.String()), nil
		case n.kind == nodeText:
			b.WriteString(n.text)
		}
	}
}

// messagesUntilEnd collects every message element up to the end of the
// element opened at depth.
func (d *document) messagesUntilEnd(depth int) ([]string, error) {
	var messages []string
	for {
		n, err := d.next()
		if err != nil {
			return nil, err
		}
		if n.kind == nodeEnd && n.depth == depth {
			return messages, nil
		}
		if n.kind == nodeStart && n.name == TagMessage {
			text, err := d.textUntilEnd(n.depth)
			if err != nil {
				return nil, err
			}
			messages = append(messages, text)
		}
	}
}

// Option configures a document reader.
type Option func(*document)

// WithFailureHandler registers fn to be told about every failure element,
// whether or not the read that met it throws.
func WithFailureHandler(fn func(*RemoteError)) Option {
	return func(d *document) {
		d.onFailure = fn
	}
}

// WithLogger sets the logger for reader diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(d *document) {
		d.logger = l
	}
}

// Reader is a cursor over the log, scoped to the document or to one element.
type Reader struct {
	doc     *document
	parent  *Reader
	child   *Reader
	depth   int
	scoped  bool
	session bool
	done    bool
	closed  bool
}

// New creates a document-level reader over r. Use a PatientReader for a log
// that is still being written.
func New(r io.Reader, opts ...Option) *Reader {
	doc := &document{dec: xml.NewDecoder(r)}
	for _, opt := range opts {
		opt(doc)
	}
	return &Reader{doc: doc}
}

func (r *Reader) usable() error {
	if r.closed {
		return ErrClosed
	}
	if r.child != nil {
		return ErrLocked
	}
	return nil
}

// Read advances to the next node inside this reader's scope. It returns
// false once the scope's closing tag has been consumed.
func (r *Reader) Read(flags ReadFlags) (bool, error) {
	if err := r.usable(); err != nil {
		return false, err
	}

	for {
		if r.done {
			return false, nil
		}

		n, err := r.doc.next()
		if err != nil {
			if errors.Is(err, io.EOF) && !r.scoped {
				r.done = true
				return false, nil
			}
			return false, err
		}

		if r.scoped && n.kind == nodeEnd && n.depth == r.depth {
			r.done = true
			if r.session {
				return false, ErrSessionClosed
			}
			return false, nil
		}

		if n.kind == nodeStart && n.name == TagFailure {
			rerr, err := r.readFailure(n.depth)
			if err != nil {
				return false, err
			}
			if flags&ThrowFailures != 0 {
				return false, rerr
			}
			continue
		}

		return true, nil
	}
}

func (r *Reader) readFailure(depth int) (*RemoteError, error) {
	messages, err := r.doc.messagesUntilEnd(depth)
	if err != nil {
		return nil, err
	}
	rerr := &RemoteError{Messages: messages}
	r.doc.logger.Debug(log.CatXML, "Engine reported failure", "message", rerr.Message())
	if r.doc.onFailure != nil {
		r.doc.onFailure(rerr)
	}
	return rerr, nil
}

// IsElement reports whether the cursor is on the opening tag of tag.
func (r *Reader) IsElement(tag string) bool {
	return r.doc.cur.kind == nodeStart && r.doc.cur.name == tag
}

// Attr returns an attribute of the current opening tag.
func (r *Reader) Attr(name string) (string, bool) {
	if r.doc.cur.kind != nodeStart {
		return "", false
	}
	for _, a := range r.doc.cur.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Value returns the value attribute of a leaf element such as
// <filename value="a.txt"/>, if the cursor is on one named tag.
func (r *Reader) Value(tag string) (string, bool) {
	if !r.IsElement(tag) {
		return "", false
	}
	return r.Attr("value")
}

// Text consumes the current element and returns its character data.
func (r *Reader) Text() (string, error) {
	if err := r.usable(); err != nil {
		return "", err
	}
	cur := r.doc.cur
	if cur.kind != nodeStart {
		return "", ErrNoElement
	}
	text, err := r.doc.textUntilEnd(cur.depth)
	if r.scoped && cur.depth == r.depth {
		r.done = true
	}
	return text, err
}

// ResultError consumes the current result element and returns the engine's
// error when it reports success="false", or nil when it succeeded.
func (r *Reader) ResultError() (*RemoteError, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	if !r.IsElement(TagResult) {
		return nil, ErrNoElement
	}
	success, _ := r.Attr("success")
	messages, err := r.doc.messagesUntilEnd(r.doc.cur.depth)
	if err != nil {
		return nil, err
	}
	if success != "false" {
		return nil, nil
	}
	return &RemoteError{Messages: messages}, nil
}

// Child opens a reader scoped to the element under the cursor. This reader
// is locked until the child is closed.
func (r *Reader) Child() (*Reader, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	if r.doc.cur.kind != nodeStart {
		return nil, ErrNoElement
	}
	c := &Reader{doc: r.doc, parent: r, depth: r.doc.cur.depth, scoped: true}
	r.child = c
	return c, nil
}

// SessionScope opens the long-lived reader over the session element. Its
// reads fail with ErrSessionClosed if the engine ends the session.
func (r *Reader) SessionScope() (*Reader, error) {
	if !r.IsElement(TagSession) {
		return nil, &ElementNotFoundError{Tag: TagSession}
	}
	c, err := r.Child()
	if err != nil {
		return nil, err
	}
	c.session = true
	return c, nil
}

// TryWaitForElement reads until the cursor is on tag. It returns false if
// the scope ended first.
func (r *Reader) TryWaitForElement(tag string, flags ReadFlags) (bool, error) {
	for {
		ok, err := r.Read(flags)
		if err != nil || !ok {
			return false, err
		}
		if r.IsElement(tag) {
			return true, nil
		}
	}
}

// WaitForElement reads until tag opens and returns a reader scoped to it.
func (r *Reader) WaitForElement(tag string, flags ReadFlags) (*Reader, error) {
	found, err := r.TryWaitForElement(tag, flags)
	if err != nil {
		return nil, err
	}
	if !found {
		r.doc.logger.Debug(log.CatXML, "Element not found", "tag", tag)
		return nil, &ElementNotFoundError{Tag: tag}
	}
	return r.Child()
}

// WaitForGroup waits for the group produced by the last submitted command.
func (r *Reader) WaitForGroup() (*Reader, error) {
	return r.WaitForElement(TagGroup, ThrowFailures)
}

// ReadToEnd discards the rest of this reader's scope.
func (r *Reader) ReadToEnd(flags ReadFlags) error {
	for {
		ok, err := r.Read(flags)
		if err != nil || !ok {
			return err
		}
	}
}

// Close releases the reader. A scoped reader first consumes the rest of its
// element, so the parent resumes after it. Closing is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}

	var err error
	if r.child != nil {
		err = r.child.Close()
	}
	if err == nil && r.scoped && !r.session && !r.done && r.doc.err == nil {
		err = r.ReadToEnd(0)
	}

	r.closed = true
	if r.parent != nil && r.parent.child == r {
		r.parent.child = nil
	}
	return err
}

// Err returns the sticky stream error, if any.
func (r *Reader) Err() error {
	return r.doc.err
}
