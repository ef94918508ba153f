package fsync

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zjrosen/fsync/internal/session"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf).With("site")

	p.Info("Uploading %s", "a.txt")
	p.Transfer(&session.TransferEvent{FileName: "a.txt", Side: session.SideLocal})
	p.Transfer(&session.TransferEvent{FileName: "b.txt", Side: session.SideRemote,
		Error: &session.RemoteError{Messages: []string{"No space left"}}})
	p.Failure(errors.New("boom"))
	p.Summary(&session.SynchronizationResult{Uploads: []*session.TransferEvent{{}}})

	assert.Equal(t, "[site] Uploading a.txt\n"+
		"[site] Upload of a.txt succeeded\n"+
		"[site] Download of b.txt failed: No space left\n"+
		"[site] FAILED: boom\n"+
		"[site] Uploads: 1 Downloads: 0 Removals: 0 Failures: 0\n", buf.String())
}

func TestPrinter_NilIsSilent(t *testing.T) {
	var p *Printer
	p.With("x").Info("ignored")
	p.Prompt(">")
}
