package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedLogger(buf *bytes.Buffer) *Logger {
	l := New(buf)
	l.now = func() time.Time { return time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC) }
	return l
}

func TestLogger_FormatsEntry(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf)

	l.Info(CatSession, "Opened session", "host", "example.com", "port", 22)

	require.Equal(t, "2025-12-06T10:45:00 [INFO] [session] Opened session host=example.com port=22\n", buf.String())
}

func TestLogger_OddFieldCountMarksMissingValue(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf)

	l.Debug(CatProcess, "Wrote command", "line")

	require.Contains(t, buf.String(), "line=<missing>")
}

func TestLogger_ErrorErrAppendsError(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf)

	l.ErrorErr(CatXML, "Read failed", errors.New("boom"))
	l.ErrorErr(CatXML, "Read failed", nil)

	require.Contains(t, buf.String(), "[ERROR] [xmllog] Read failed error=boom\n")
	require.Contains(t, buf.String(), "error=<nil>")
}

func TestLogger_MinLevelAndDisable(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf)

	l.SetMinLevel(LevelWarn)
	l.Info(CatConfig, "hidden")
	l.Warn(CatConfig, "shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	l.SetEnabled(false)
	l.Error(CatConfig, "dropped")
	require.Empty(t, buf.String())
}

func TestLogger_NilAndDiscardAreSafe(t *testing.T) {
	var l *Logger
	l.Info(CatSession, "nothing")
	l.SetEnabled(true)
	require.NoError(t, l.Close())
	_, ok := <-l.Listen(context.Background())
	require.False(t, ok)

	d := Discard()
	d.Error(CatSession, "nothing")
	require.NoError(t, d.Close())
}

func TestLogger_ListenReceivesEntries(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf)
	defer func() { _ = l.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := l.Listen(ctx)

	l.Warn(CatWatcher, "Change detected", "path", "a.txt")

	select {
	case ev := <-ch:
		require.Contains(t, ev.Payload, "[WARN] [watcher] Change detected path=a.txt")
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for log event")
	}
}

func TestLogger_ListenFiltersCategories(t *testing.T) {
	l := fixedLogger(&bytes.Buffer{})
	defer func() { _ = l.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := l.Listen(ctx, CatHistory)

	l.Info(CatSession, "Session opened")
	l.Info(CatHistory, "Recorded transfer")

	select {
	case ev := <-ch:
		require.Contains(t, ev.Payload, "[history] Recorded transfer")
		require.Equal(t, "history", string(ev.Topic))
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for log event")
	}
}

func TestOpen_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	l, err := Open(path)
	require.NoError(t, err)
	l.Info(CatSession, "first")
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	l.Info(CatSession, "second")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "first")
	require.Contains(t, string(data), "second")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelDebug,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, ParseLevel(in))
			require.NotEqual(t, "UNKNOWN", ParseLevel(in).String())
		})
	}
}
