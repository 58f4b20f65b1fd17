package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"supplyledger/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) count(prefix string) int {
	n := 0
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestLedgerObservability(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	log := &captureLogger{}

	ledger := newTestLedger(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(log),
		WithClock(fixedClock()),
	)
	if !audit.has(opInitializeToken, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == "TotalSem" && e.Entity == domain.EntityToken && e.Action == domain.ActionCreate && e.Timestamp.Equal(fixedClock().Now())
	}) {
		t.Fatalf("expected audit entry for initialize, got %+v", audit.entries)
	}

	if _, _, err := ledger.Transfer(ctx, alice, bob, amt(1)); err == nil {
		t.Fatalf("expected overdraft to fail")
	}
	if !audit.has(opTransfer, AuditStatusError, func(e AuditEntry) bool { return e.Actor == alice && e.Error != "" }) {
		t.Fatalf("expected audit error entry for transfer")
	}
	if !metrics.has(opTransfer, false) || !tracer.has(opTransfer, false) {
		t.Fatalf("expected failed transfer in metrics and traces")
	}
	if log.count("e:") != 1 {
		t.Fatalf("expected one error log, got %v", log.calls)
	}

	if _, _, err := ledger.Approve(ctx, deployer, bob, amt(5)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !metrics.has(opApprove, true) || !tracer.has(opApprove, true) {
		t.Fatalf("expected successful approve in metrics and traces")
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("every span must end: started %v ended %v", tracer.started, tracer.ended)
	}
}

func TestRegistryObservability(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	reg := newTestRegistry(t, WithAuditRecorder(audit))
	item, _, err := reg.CreateItem(ctx, alice, "crate", amt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !audit.has(opCreateItem, AuditStatusSuccess, func(e AuditEntry) bool { return e.EntityID == item.ID }) {
		t.Fatalf("expected create_item audit carrying the generated id")
	}
	if _, _, err := reg.Advance(ctx, item.ID, carol); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !audit.has(opAdvanceItem, AuditStatusError, func(e AuditEntry) bool { return e.EntityID == item.ID && e.Actor == carol }) {
		t.Fatalf("expected advance_item error audit")
	}
	if !audit.has(opGrantRole, AuditStatusSuccess, nil) || !audit.has(opInitializeRegistry, AuditStatusSuccess, nil) {
		t.Fatalf("expected registry setup audits")
	}
}

func TestRecordAuditIgnoresUnknownOperation(t *testing.T) {
	recorder := &captureAuditRecorder{}
	ledger := NewInMemoryLedger(nil, WithAuditRecorder(recorder))
	ledger.recordAuditSuccess(context.Background(), "unknown_operation", alice, "entity", time.Second)
	if len(recorder.entries) != 0 {
		t.Fatalf("expected no audit entries for unknown operation, got %d", len(recorder.entries))
	}
}

func TestNoopImplementations(t *testing.T) {
	var logger noopLogger
	logger.Debug("noop")
	logger.Info("noop")
	logger.Warn("noop")
	logger.Error("noop")

	var audit noopAuditRecorder
	audit.Record(context.Background(), AuditEntry{})

	var metrics noopMetricsRecorder
	metrics.Observe(context.Background(), "noop", true, 0)

	tracer := noopTracer{}
	ctx, span := tracer.Start(context.Background(), "op")
	if ctx == nil {
		t.Fatalf("expected context from tracer")
	}
	span.End(nil)
}

func TestNilOptionsAreIgnored(t *testing.T) {
	ledger := NewInMemoryLedger(nil, nil, WithLogger(nil), WithTracer(nil), WithMetricsRecorder(nil), WithAuditRecorder(nil), WithClock(nil))
	if _, _, err := ledger.Initialize(context.Background(), deployer, DefaultTokenParams()); err != nil {
		t.Fatalf("initialize with nil options: %v", err)
	}
}

func TestClockFuncNowNilFallsBackToUTCTime(t *testing.T) {
	got := ClockFunc(nil).Now()
	if got.IsZero() {
		t.Fatal("expected non-zero time from nil ClockFunc")
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %s", got.Location())
	}
}

func TestClockFuncNowDelegatesToFunction(t *testing.T) {
	expected := time.Date(2024, 7, 4, 12, 34, 56, 0, time.FixedZone("offset", -5*3600))
	fn := ClockFunc(func() time.Time { return expected })
	if got := fn.Now(); !got.Equal(expected.UTC()) || got.Location() != time.UTC {
		t.Fatalf("expected %s, got %s", expected.UTC(), got)
	}
}

type viewOnlyStore struct{}

func (viewOnlyStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, nil
}

func (viewOnlyStore) View(context.Context, func(domain.TransactionView) error) error { return nil }

func TestSelectNowFunc(t *testing.T) {
	clock := fixedClock()
	if got := selectNowFunc(viewOnlyStore{}, clock)(); !got.Equal(clock.Now()) {
		t.Fatalf("expected clock fallback, got %s", got)
	}
	got := selectNowFunc(viewOnlyStore{}, nil)()
	if got.Location() != time.UTC || time.Since(got) > time.Second {
		t.Fatalf("expected near-current UTC time, got %s", got)
	}
	if extractRulesEngine(viewOnlyStore{}) != nil {
		t.Fatal("expected nil for stores without RulesEngine provider")
	}
	ledger := NewInMemoryLedger(nil)
	if ledger.RulesEngine() == nil {
		t.Fatal("expected memory store to expose its engine")
	}
}
