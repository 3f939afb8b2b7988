package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"resourcechassis/internal/entitymodel/demo"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, demo.EntityPerson, OpCreate, 201, 5*time.Millisecond)
	rec.Observe(ctx, demo.EntityPerson, OpCreate, 201, 7*time.Millisecond)
	rec.Observe(ctx, demo.EntityPerson, OpCreate, 400, time.Millisecond)

	if got := promtestutil.ToFloat64(rec.requests.WithLabelValues("person", "create", "201")); got != 2 {
		t.Fatalf("expected 2 created requests, got %v", got)
	}
	if got := promtestutil.CollectAndCount(rec.duration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, err := NewPrometheusMetricsRecorder(nil); err != nil {
		t.Fatalf("nil registerer: %v", err)
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "chassis_pipeline_metrics_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, demo.EntityPerson, OpDelete, 204, 2*time.Millisecond)
	rec.Observe(ctx, demo.EntityPerson, OpDelete, 404, 3*time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["person.delete"] != 5 {
		t.Fatalf("unexpected duration total %v", snap.DurationsMS)
	}
	if snap.Statuses["person.delete"]["204"] != 1 || snap.Statuses["person.delete"]["404"] != 1 {
		t.Fatalf("unexpected status counts %v", snap.Statuses)
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), "person.delete") {
		t.Fatalf("expected published expvar, got %v", published)
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), demo.EntityTag, OpGet)
	span.Stage(StageAuthenticating)
	span.Stage(StageResponding)
	span.End(200, nil)
	_, span = tracer.Start(context.Background(), demo.EntityTag, OpGet)
	span.End(500, errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != 200 || entries[1].Error != "boom" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	var decoded JSONTraceEntry
	line, _, _ := strings.Cut(buf.String(), "\n")
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.Entity != demo.EntityTag || decoded.Operation != OpGet || len(decoded.Stages) != 2 {
		t.Fatalf("unexpected decoded span %+v", decoded)
	}
}

func TestJSONTracerBoundsRetainedSpans(t *testing.T) {
	tracer := NewJSONTracer(nil)
	for i := 0; i < maxTraceEntries+6; i++ {
		_, span := tracer.Start(context.Background(), demo.EntityTag, OpList)
		span.End(200+i, nil)
	}
	entries := tracer.Entries()
	if len(entries) != maxTraceEntries {
		t.Fatalf("expected %d retained spans, got %d", maxTraceEntries, len(entries))
	}
	if entries[0].Status != 206 || entries[len(entries)-1].Status != 200+maxTraceEntries+5 {
		t.Fatalf("expected oldest spans dropped, got first=%d last=%d", entries[0].Status, entries[len(entries)-1].Status)
	}
}
