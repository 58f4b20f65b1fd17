package core

import (
	"context"
	"time"

	"supplyledger/pkg/domain"
)

type rulesEngineProvider interface {
	RulesEngine() *domain.RulesEngine
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

type nowFuncSetter interface {
	SetNowFunc(func() time.Time)
}

// operationMeta maps audited operation names to the entity and action they touch.
var operationMeta = map[string]struct {
	entity domain.EntityType
	action domain.Action
}{
	opInitializeToken:    {domain.EntityToken, domain.ActionCreate},
	opTransfer:           {domain.EntityAccount, domain.ActionUpdate},
	opApprove:            {domain.EntityAllowance, domain.ActionUpdate},
	opTransferFrom:       {domain.EntityAccount, domain.ActionUpdate},
	opIncreaseAllowance:  {domain.EntityAllowance, domain.ActionUpdate},
	opDecreaseAllowance:  {domain.EntityAllowance, domain.ActionUpdate},
	opInitializeRegistry: {domain.EntityRegistry, domain.ActionCreate},
	opGrantRole:          {domain.EntityRole, domain.ActionCreate},
	opRevokeRole:         {domain.EntityRole, domain.ActionDelete},
	opCreateItem:         {domain.EntityItem, domain.ActionCreate},
	opAdvanceItem:        {domain.EntityItem, domain.ActionUpdate},
}

// service carries the store and observability plumbing shared by Ledger and Registry.
type service struct {
	store   domain.PersistentStore
	clock   Clock
	now     func() time.Time
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

func newService(store domain.PersistentStore, opts []ServiceOption) service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.clock != nil {
		if setter, ok := store.(nowFuncSetter); ok {
			setter.SetNowFunc(cfg.clock.Now)
		}
	}
	return service{
		store:   store,
		clock:   cfg.clock,
		now:     selectNowFunc(store, cfg.clock),
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
	}
}

// selectNowFunc prefers the store's clock so audit timestamps match record
// timestamps, then the configured clock, then the system clock.
func selectNowFunc(store domain.PersistentStore, clock Clock) func() time.Time {
	if provider, ok := store.(nowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

func extractRulesEngine(store domain.PersistentStore) *domain.RulesEngine {
	if provider, ok := store.(rulesEngineProvider); ok {
		return provider.RulesEngine()
	}
	return nil
}

// run executes fn in a store transaction wrapped with tracing, metrics,
// logging and auditing. entityID is read after fn returns so callers can fill
// it from inside the transaction.
func (s *service) run(ctx context.Context, op string, actor domain.Address, entityID *string, fn func(domain.Transaction) error) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	id := ""
	if entityID != nil {
		id = *entityID
	}
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "message", v.Message)
		}
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "actor", actor.String(), "entity_id", id, "error", err.Error())
		s.recordAuditError(ctx, op, actor, id, duration, err)
		return res, err
	}
	s.logger.Debug("operation committed", "operation", op, "actor", actor.String(), "entity_id", id, "duration_ms", duration.Milliseconds())
	s.recordAuditSuccess(ctx, op, actor, id, duration)
	return res, nil
}

func (s *service) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}

func (s *service) recordAuditSuccess(ctx context.Context, op string, actor domain.Address, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, actor, entityID, duration, nil)
}

func (s *service) recordAuditError(ctx context.Context, op string, actor domain.Address, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, actor, entityID, duration, err)
}

func (s *service) recordAudit(ctx context.Context, op string, actor domain.Address, entityID string, duration time.Duration, err error) {
	meta, ok := operationMeta[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
