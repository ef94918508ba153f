package fsync

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/fsync/internal/session"
)

type styles struct {
	plain   lipgloss.Style
	prefix  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// newStyles colors output only when w is a color terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		plain:   r.NewStyle(),
		prefix:  r.NewStyle().Foreground(lipgloss.Color("#54A0FF")).Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("#73F59F")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#FF8787")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#BBBBBB")),
	}
}

// Printer writes user-facing lines, each tagged with a prefix. Safe for
// concurrent use; lines never interleave.
type Printer struct {
	mu     *sync.Mutex
	w      io.Writer
	styles styles
	prefix string
}

// NewPrinter writes to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{mu: &sync.Mutex{}, w: w, styles: newStyles(w)}
}

// With returns a printer sharing w whose lines start with "[prefix] ".
func (p *Printer) With(prefix string) *Printer {
	if p == nil {
		return nil
	}
	return &Printer{mu: p.mu, w: p.w, styles: p.styles, prefix: prefix}
}

func (p *Printer) line(style lipgloss.Style, format string, args ...any) {
	if p == nil {
		return
	}
	text := style.Render(fmt.Sprintf(format, args...))
	if p.prefix != "" {
		text = p.styles.prefix.Render("["+p.prefix+"]") + " " + text
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, text)
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	p.line(p.styles.plain, format, args...)
}

// Muted prints a de-emphasized line, such as engine output.
func (p *Printer) Muted(format string, args ...any) {
	p.line(p.styles.muted, format, args...)
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	p.line(p.styles.success, format, args...)
}

// Failure prints err as a failure line.
func (p *Printer) Failure(err error) {
	p.line(p.styles.failure, "FAILED: %v", err)
}

// Transfer prints the outcome of one transfer.
func (p *Printer) Transfer(ev *session.TransferEvent) {
	verb := "Upload"
	if ev.Side == session.SideRemote {
		verb = "Download"
	}
	if err := ev.Err(); err != nil {
		p.line(p.styles.failure, "%s of %s failed: %v", verb, ev.FileName, err)
		return
	}
	p.Success("%s of %s succeeded", verb, ev.FileName)
}

// Summary prints the counts of a synchronization.
func (p *Printer) Summary(res *session.SynchronizationResult) {
	p.Info("Uploads: %d Downloads: %d Removals: %d Failures: %d",
		len(res.Uploads), len(res.Downloads), len(res.Removals), len(res.Failures))
}

// Prompt prints text without a line break.
func (p *Printer) Prompt(text string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.w, text+" ")
}
