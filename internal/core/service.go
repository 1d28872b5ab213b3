package core

import (
	"context"
	"strings"
	"time"

	blobcore "silatcore/internal/blob/core"
	"silatcore/internal/infra/persistence/memory"
	"silatcore/pkg/domain"
)

// Service exposes the transactional directory operations: member and branch
// repositories, catalog management, rename cascades, seeds, and backup.
type Service struct {
	store   PersistentStore
	blobs   blobcore.Store
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
	seedURL string
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger installs a logger; nil keeps the noop default.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit recorder.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSeedURL sets the remote catalog seed endpoint consulted by EnsureSeeded.
func WithSeedURL(url string) Option {
	return func(s *Service) {
		s.seedURL = url
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: noopLogger{},
		clock:  ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store using the
// given rules engine (nil installs the default invariant set).
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run executes fn within a store transaction, wrapped with tracing, metrics,
// audit, and logging. entityID is evaluated after a successful commit so
// callers can report generated identifiers.
func (s *Service) run(ctx context.Context, op string, entityID func() string, fn func(tx Transaction) error) (Result, error) {
	start := s.clock.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock.Now().Sub(start)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, duration)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
		s.recordAudit(ctx, op, "", AuditStatusError, err, duration)
		return res, err
	}
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "message", v.Message)
		}
	}
	id := ""
	if entityID != nil {
		id = entityID()
	}
	s.recordAudit(ctx, op, id, AuditStatusSuccess, nil, duration)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, status AuditStatus, err error, duration time.Duration) {
	if s.audit == nil {
		return
	}
	meta, ok := auditOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// RegisterMember persists a new member, generating a registration number when
// absent and defaulting the role to anggota.
func (s *Service) RegisterMember(ctx context.Context, member Member) (Member, Result, error) {
	var created Member
	res, err := s.run(ctx, "register_member", func() string { return created.ID }, func(tx Transaction) error {
		if strings.TrimSpace(member.ID) == "" {
			id, err := ReserveRegistrationNumber(tx, s.clock.Now())
			if err != nil {
				return err
			}
			member.ID = id
		}
		if member.Role == "" {
			member.Role = RoleAnggota
		}
		var err error
		created, err = tx.UpsertMember(member, "")
		return err
	})
	return created, res, err
}

// UpsertMember merges the incoming member onto the stored record found by
// previousID (identifier reassignment) or member.ID, appending when unknown.
func (s *Service) UpsertMember(ctx context.Context, member Member, previousID string) (Member, Result, error) {
	var saved Member
	res, err := s.run(ctx, "upsert_member", func() string { return saved.ID }, func(tx Transaction) error {
		var err error
		saved, err = tx.UpsertMember(member, previousID)
		return err
	})
	return saved, res, err
}

// UpdateMember mutates a member in place using the provided mutator.
func (s *Service) UpdateMember(ctx context.Context, id string, mutator func(*Member) error) (Member, Result, error) {
	var updated Member
	res, err := s.run(ctx, "update_member", func() string { return updated.ID }, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateMember(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteMember removes a member record. Only admins may delete.
func (s *Service) DeleteMember(ctx context.Context, actor Role, id string) (Result, error) {
	if actor != RoleAdmin {
		return Result{}, ErrPermission{Operation: "delete_member", Role: actor}
	}
	return s.run(ctx, "delete_member", func() string { return id }, func(tx Transaction) error {
		return tx.DeleteMember(id)
	})
}

// GetMember returns the member with the given registration number.
func (s *Service) GetMember(id string) (Member, error) {
	member, ok := s.store.GetMember(id)
	if !ok {
		return Member{}, ErrNotFound{Entity: EntityMember, ID: id}
	}
	return member, nil
}

// ListMembers returns all members in insertion order.
func (s *Service) ListMembers() []Member {
	return s.store.ListMembers()
}

// NextRegistrationNumber reserves and returns a fresh registration number.
// The underlying counter is persistent, so reserved numbers are never reissued
// even when member records are deleted.
func (s *Service) NextRegistrationNumber(ctx context.Context) (string, error) {
	var out string
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		out, err = ReserveRegistrationNumber(tx, s.clock.Now())
		return err
	})
	return out, err
}
