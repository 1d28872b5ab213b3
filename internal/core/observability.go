package core

import (
	"context"
	"time"

	"silatcore/pkg/domain"
)

// Logger abstracts structured leveled logging with printf-free key/value args.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span, recording the operation error if any.
type TraceSpan interface {
	End(err error)
}

// AuditStatus marks whether an audited operation committed or failed.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one audited mutation of the directory.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder persists audit entries. Implementations must not block commits.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Clock supplies the current time; overridable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the function's time.
func (f ClockFunc) Now() time.Time { return f() }

type auditMetadata struct {
	entity EntityType
	action Action
}

// auditOperations maps operation names to the entity/action pair recorded in
// audit entries. Operations absent from the map are not audited.
var auditOperations = map[string]auditMetadata{
	"register_member":   {entity: domain.EntityMember, action: domain.ActionCreate},
	"upsert_member":     {entity: domain.EntityMember, action: domain.ActionUpdate},
	"update_member":     {entity: domain.EntityMember, action: domain.ActionUpdate},
	"delete_member":     {entity: domain.EntityMember, action: domain.ActionDelete},
	"attach_photo":      {entity: domain.EntityMember, action: domain.ActionUpdate},
	"remove_photo":      {entity: domain.EntityMember, action: domain.ActionUpdate},
	"upsert_branch":     {entity: domain.EntityBranch, action: domain.ActionUpdate},
	"delete_branch":     {entity: domain.EntityBranch, action: domain.ActionDelete},
	"rename_branch":     {entity: domain.EntityBranch, action: domain.ActionUpdate},
	"rename_sub_branch": {entity: domain.EntityBranch, action: domain.ActionUpdate},
	"upsert_sub_branch": {entity: domain.EntityBranch, action: domain.ActionUpdate},
	"delete_sub_branch": {entity: domain.EntityBranch, action: domain.ActionUpdate},
	"save_positions":    {entity: domain.EntityPosition, action: domain.ActionUpdate},
	"rename_position":   {entity: domain.EntityPosition, action: domain.ActionUpdate},
	"delete_position":   {entity: domain.EntityPosition, action: domain.ActionDelete},
	"save_rank_levels":  {entity: domain.EntityRankLevel, action: domain.ActionUpdate},
	"rename_rank_level": {entity: domain.EntityRankLevel, action: domain.ActionUpdate},
	"delete_rank_level": {entity: domain.EntityRankLevel, action: domain.ActionDelete},
	"import_backup":     {entity: domain.EntityMember, action: domain.ActionUpdate},
	"ensure_seeded":     {entity: domain.EntityPosition, action: domain.ActionCreate},
}
