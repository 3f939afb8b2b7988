package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"resourcechassis/pkg/domain"
)

// MetricsRecorder observes the outcome of every pipeline operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, entity domain.EntityType, op Operation, status int, duration time.Duration)
}

// Tracer opens a span per pipeline operation.
type Tracer interface {
	Start(ctx context.Context, entity domain.EntityType, op Operation) (context.Context, TraceSpan)
}

// TraceSpan records the stages a request passed through.
type TraceSpan interface {
	Stage(stage Stage)
	End(status int, err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, domain.EntityType, Operation, int, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ domain.EntityType, _ Operation) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) Stage(Stage)    {}
func (noopSpan) End(int, error) {}

// PrometheusMetricsRecorder exports request counters and latency histograms.
type PrometheusMetricsRecorder struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the chassis collectors with reg.
// A nil registerer leaves the collectors unregistered.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chassis",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Resource pipeline requests by entity, operation and response status.",
		}, []string{"entity", "operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chassis",
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "Resource pipeline request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "operation"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.requests, r.duration} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register pipeline metrics: %w", err)
			}
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, entity domain.EntityType, op Operation, status int, duration time.Duration) {
	r.requests.WithLabelValues(string(entity), string(op), strconv.Itoa(status)).Inc()
	r.duration.WithLabelValues(string(entity), string(op)).Observe(duration.Seconds())
}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate timing and status counters via
// expvar for deployments without a metrics scraper. Totals are kept in
// milliseconds per entity operation.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	statuses  map[string]map[string]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Statuses    map[string]map[string]int64 `json:"statuses_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("chassis_pipeline_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		statuses:  make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for key, total := range r.durations {
		durations[key] = total
	}
	statuses := make(map[string]map[string]int64, len(r.statuses))
	for key, counts := range r.statuses {
		cpy := make(map[string]int64, len(counts))
		for status, count := range counts {
			cpy[status] = count
		}
		statuses[key] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Statuses:    statuses,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, entity domain.EntityType, op Operation, status int, duration time.Duration) {
	key := string(entity) + "." + string(op)
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	r.durations[key] += ms
	if _, ok := r.statuses[key]; !ok {
		r.statuses[key] = make(map[string]int64, 2)
	}
	r.statuses[key][strconv.Itoa(status)]++
	r.mu.Unlock()
}

// JSONTraceEntry represents a serialized span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Entity     domain.EntityType `json:"entity"`
	Operation  Operation         `json:"operation"`
	Stages     []Stage           `json:"stages"`
	Status     int               `json:"status"`
	DurationMS float64           `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
}

// maxTraceEntries bounds the spans a JSONTraceTracer retains; older spans are
// dropped first.
const maxTraceEntries = 1024

// JSONTraceTracer serializes spans to a writer and retains the most recent
// ones for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to the writer.
// The tracer retains the latest spans for later inspection via Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, entity domain.EntityType, op Operation) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{
		tracer:  t,
		entity:  entity,
		op:      op,
		started: time.Now().UTC(),
	}
}

type jsonTraceSpan struct {
	tracer  *JSONTraceTracer
	entity  domain.EntityType
	op      Operation
	stages  []Stage
	started time.Time
}

func (s *jsonTraceSpan) Stage(stage Stage) {
	s.stages = append(s.stages, stage)
}

func (s *jsonTraceSpan) End(status int, err error) {
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Entity:     s.entity,
		Operation:  s.op,
		Stages:     s.stages,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if over := len(s.tracer.entries) - maxTraceEntries; over > 0 {
		s.tracer.entries = append(s.tracer.entries[:0:0], s.tracer.entries[over:]...)
	}
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
