package tracing

import (
	"bufio"
	"context"
	"encoding/json"
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
	"go.opentelemetry.io/otel/trace"
)

func readRecords(t *testing.T, path string) []SpanRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out []SpanRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r SpanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "nested", "dir", "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	_, err = os.Stat(tracePath)
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_WritesRecord(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	start := time.Now()
	stub := tracetest.SpanStub{
		Name:       SpanGenerate,
		SpanKind:   trace.SpanKindInternal,
		StartTime:  start,
		EndTime:    start.Add(250 * time.Millisecond),
		Status:     sdktrace.Status{Code: codes.Error, Description: "boom"},
		Attributes: []attribute.KeyValue{attribute.String(AttrThreadID, "t1"), attribute.Int(AttrChunks, 3)},
		Events:     []sdktrace.Event{{Name: EventFirstChunk, Time: start.Add(time.Millisecond)}},
	}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	require.NoError(t, exporter.Shutdown(context.Background()))

	records := readRecords(t, tracePath)
	require.Len(t, records, 1)
	r := records[0]
	require.Equal(t, SpanGenerate, r.Name)
	require.Equal(t, "INTERNAL", r.Kind)
	require.Equal(t, "ERROR", r.Status)
	require.Equal(t, "boom", r.StatusMsg)
	require.InDelta(t, 250.0, r.DurationMs, 0.001)
	require.Equal(t, "t1", r.Attributes[AttrThreadID])
	require.InDelta(t, 3, r.Attributes[AttrChunks], 0)
	require.Len(t, r.Events, 1)
	require.Equal(t, EventFirstChunk, r.Events[0].Name)
	require.Empty(t, r.Events[0].Attributes)
}

func TestFileExporter_Appends(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	require.NoError(t, os.WriteFile(tracePath, []byte(`{"name":"existing"}`+"\n"), 0600))

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)
	stub := tracetest.SpanStub{Name: "new", StartTime: time.Now(), EndTime: time.Now()}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	require.NoError(t, exporter.Shutdown(context.Background()))

	records := readRecords(t, tracePath)
	require.Len(t, records, 2)
	require.Equal(t, "existing", records[0].Name)
	require.Equal(t, "new", records[1].Name)
}

func TestFileExporter_ThreadSafe(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stub := tracetest.SpanStub{Name: "concurrent", StartTime: time.Now(), EndTime: time.Now()}
			_ = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
		}()
	}
	wg.Wait()
	require.NoError(t, exporter.Shutdown(context.Background()))

	require.Len(t, readRecords(t, tracePath), 10)
}

func TestFileExporter_AfterShutdown(t *testing.T) {
	exporter, err := NewFileExporter(filepath.Join(t.TempDir(), "traces.jsonl"))
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.Shutdown(context.Background()))

	stub := tracetest.SpanStub{Name: "late"}
	require.Error(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	require.NoError(t, exporter.ExportSpans(context.Background(), nil))
}

func TestSpanKindToString(t *testing.T) {
	require.Equal(t, "SERVER", spanKindToString(trace.SpanKindServer))
	require.Equal(t, "CLIENT", spanKindToString(trace.SpanKindClient))
	require.Equal(t, "UNSPECIFIED", spanKindToString(trace.SpanKindUnspecified))
}
