package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "traces.jsonl")

	exporter, err := NewFileExporter(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "trace file should be created with parent dirs")
	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_AppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"existing":"data"}`+"\n"), 0o600))

	exporter, err := NewFileExporter(path)
	require.NoError(t, err)

	start := time.Now()
	stub := tracetest.SpanStub{
		Name:       SpanPrefixCommand + "ls",
		StartTime:  start,
		EndTime:    start.Add(120 * time.Millisecond),
		Status:     sdktrace.Status{Code: codes.Error, Description: "no such file"},
		Attributes: []attribute.KeyValue{attribute.String(AttrRemotePath, "/home/user/")},
		Events:     []sdktrace.Event{{Name: EventRemoteFailure, Time: start}},
	}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	require.NoError(t, exporter.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var rec SpanRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	require.Equal(t, "engine.command.ls", rec.Name)
	require.Equal(t, "ERROR", rec.Status)
	require.Equal(t, "no such file", rec.StatusMsg)
	require.InDelta(t, 120.0, rec.DurationMs, 0.001)
	require.Equal(t, "/home/user/", rec.Attributes[AttrRemotePath])
	require.Len(t, rec.Events, 1)
	require.Equal(t, EventRemoteFailure, rec.Events[0].Name)
}

func TestFileExporter_ExportAfterShutdownIsIgnored(t *testing.T) {
	exporter, err := NewFileExporter(filepath.Join(t.TempDir(), "traces.jsonl"))
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.Shutdown(context.Background()))

	stub := tracetest.SpanStub{Name: "late"}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
}

func TestFileExporter_ConcurrentExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileExporter(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				stub := tracetest.SpanStub{Name: "concurrent"}
				_ = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, exporter.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	require.Equal(t, 400, count)
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	require.NoError(t, err)
	require.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())

	_, span := StartCommand(context.Background(), p.Tracer(), "ls")
	require.False(t, span.SpanContext().IsValid())
	End(span, nil)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_RejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "carrier-pigeon"

	_, err := NewProvider(cfg)
	require.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_NoneExporterStillSamples(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "none"

	p, err := NewProvider(cfg, WithVersion("1.2.3"))
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := StartAction(context.Background(), p.Tracer(), "site", "sync-to-remote")
	require.True(t, span.SpanContext().IsValid())
	End(span, nil)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestExporters(t *testing.T) {
	require.Equal(t, []string{"file", "none", "otlp", "stdout"}, Exporters())
}

func TestNewProvider_FileExporterNeedsPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	_, err := NewProvider(cfg)
	require.ErrorContains(t, err, "file_path required")
}

func TestStartCommand_RecordsVerbAndOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	ctx, span := StartCommand(context.Background(), tracer, "put", attribute.String(AttrLocalPath, "/tmp/a"))
	require.NotEmpty(t, TraceID(ctx))
	End(span, errors.New("permission denied"))

	_, ok := StartCommand(context.Background(), tracer, "pwd")
	End(ok, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	failed := spans[0]
	require.Equal(t, "engine.command.put", failed.Name())
	require.Equal(t, codes.Error, failed.Status().Code)
	require.Contains(t, failed.Attributes(), attribute.String(AttrCommandVerb, "put"))
	require.Contains(t, failed.Attributes(), attribute.String(AttrLocalPath, "/tmp/a"))
	require.Len(t, failed.Events(), 1, "the error is recorded as an exception event")

	require.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	require.Empty(t, TraceID(context.Background()))
}
