package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultExpvarName is the expvar variable that component recorders share
// when no name is given.
const DefaultExpvarName = "supplyledger_operations"

var expvarMu sync.Mutex

// ExpvarMetricsRecorder counts operations in an expvar.Map so they appear on
// /debug/vars. Counts live under "<component>.<operation>.<status>" and
// accumulated latency under "<component>.<operation>.ms". Recorders created
// with the same name share one map.
type ExpvarMetricsRecorder struct {
	vars      *expvar.Map
	component string
}

// ExpvarMetricsSnapshot is one component's view of the shared map.
type ExpvarMetricsSnapshot struct {
	Component   string                      `json:"component"`
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
}

// NewExpvarMetricsRecorder returns a recorder for component that writes into
// the map published as name.
func NewExpvarMetricsRecorder(name, component string) *ExpvarMetricsRecorder {
	if name == "" {
		name = DefaultExpvarName
	}
	if component == "" {
		component = "default"
	}
	return &ExpvarMetricsRecorder{vars: publishedMap(name), component: component}
}

// publishedMap reuses an already published map so repeated construction in
// one process does not panic in expvar.Publish.
func publishedMap(name string) *expvar.Map {
	expvarMu.Lock()
	defer expvarMu.Unlock()
	switch v := expvar.Get(name).(type) {
	case *expvar.Map:
		return v
	case nil:
		return expvar.NewMap(name)
	default:
		// name belongs to a different kind of variable; count privately.
		return new(expvar.Map).Init()
	}
}

// Observe records a ledger or registry operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	prefix := r.component + "." + operation + "."
	r.vars.Add(prefix+status, 1)
	r.vars.AddFloat(prefix+"ms", float64(duration)/float64(time.Millisecond))
}

// Snapshot decodes this component's keys from the shared map.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		Component:   r.component,
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]map[string]int64),
	}
	prefix := r.component + "."
	r.vars.Do(func(kv expvar.KeyValue) {
		rest, ok := strings.CutPrefix(kv.Key, prefix)
		if !ok {
			return
		}
		i := strings.LastIndexByte(rest, '.')
		if i <= 0 {
			return
		}
		op, field := rest[:i], rest[i+1:]
		switch v := kv.Value.(type) {
		case *expvar.Float:
			if field == "ms" {
				snap.DurationsMS[op] = v.Value()
			}
		case *expvar.Int:
			if snap.Results[op] == nil {
				snap.Results[op] = make(map[string]int64, 2)
			}
			snap.Results[op][field] = v.Value()
		}
	})
	return snap
}

// WriteJSON writes the whole shared map, every component included, as the
// JSON object expvar serves.
func (r *ExpvarMetricsRecorder) WriteJSON(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.vars.String())
	return err
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Component  string    `json:"component,omitempty"`
	Operation  string    `json:"operation"`
	Parent     string    `json:"parent,omitempty"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes one JSON line per finished span and keeps every
// entry for inspection. A single tracer can serve several components through
// ForComponent.
type JSONTraceTracer struct {
	mu       sync.Mutex
	entries  []JSONTraceEntry
	enc      *json.Encoder
	writeErr error
}

// NewJSONTracer returns a tracer writing to w. A nil w only keeps entries.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// ForComponent returns a Tracer whose spans are labelled with component.
func (t *JSONTraceTracer) ForComponent(component string) Tracer {
	return componentTracer{tracer: t, component: component}
}

// Start implements Tracer with no component label.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return t.start(ctx, "", operation)
}

// Entries returns a copy of the finished spans in completion order.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Err returns the first error hit while writing spans.
func (t *JSONTraceTracer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeErr
}

type spanContextKey struct{}

func (t *JSONTraceTracer) start(ctx context.Context, component, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		entry:     JSONTraceEntry{Component: component, Operation: operation},
		startedAt: time.Now(),
	}
	if parent, ok := ctx.Value(spanContextKey{}).(*jsonTraceSpan); ok {
		span.entry.Parent = parent.entry.Operation
	}
	return context.WithValue(ctx, spanContextKey{}, span), span
}

func (t *JSONTraceTracer) record(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc == nil {
		return
	}
	if err := t.enc.Encode(entry); err != nil && t.writeErr == nil {
		t.writeErr = err
	}
}

type componentTracer struct {
	tracer    *JSONTraceTracer
	component string
}

func (c componentTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return c.tracer.start(ctx, c.component, operation)
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	entry     JSONTraceEntry
	startedAt time.Time
	ended     atomic.Bool
}

// End records the span once; later calls are ignored.
func (s *jsonTraceSpan) End(err error) {
	if s.ended.Swap(true) {
		return
	}
	ended := time.Now()
	entry := s.entry
	entry.StartedAt = s.startedAt.UTC()
	entry.EndedAt = ended.UTC()
	entry.DurationMS = float64(ended.Sub(s.startedAt)) / float64(time.Millisecond)
	entry.Status = "success"
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.tracer.record(entry)
}
