// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by silatcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityMember identifies a member record.
	EntityMember EntityType = "member"
	// EntityBranch identifies a branch record (including its sub-branches).
	EntityBranch EntityType = "branch"
	// EntityPosition identifies the positions catalog.
	EntityPosition EntityType = "position"
	// EntityRankLevel identifies the rank levels catalog.
	EntityRankLevel EntityType = "rank_level"
)

// Role enumerates the access levels a member can hold.
type Role string

// Canonical member roles. The Indonesian labels are the wire values the
// directory has always stored; they round-trip through spreadsheets and
// backups unchanged.
const (
	RoleAdmin    Role = "admin"
	RolePengurus Role = "pengurus"
	RoleAnggota  Role = "anggota"
)

// Status enumerates member lifecycle states.
type Status string

// Canonical member statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// Gender carries the display label stored on member records and in
// spreadsheet interchange.
type Gender string

// Canonical gender labels. Anything that is not exactly GenderFemale
// normalizes to GenderMale during bulk import.
const (
	GenderMale   Gender = "Laki-laki"
	GenderFemale Gender = "Perempuan"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a single person in the directory. The ID is the registration
// number (NIA) and doubles as the record identity; it is immutable once
// assigned unless an administrator explicitly reassigns it through the
// previous-ID upsert path.
//
// Position, RankName/RankPredicate, BranchName and SubBranchName are
// denormalized copies of catalog and directory labels, stored by value.
// Keeping them consistent under renames is the job of the cascade
// operations in internal/core.
type Member struct {
	Base
	Username      string  `json:"username"`
	PasswordHash  string  `json:"password_hash,omitempty"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Role          Role    `json:"role"`
	Position      string  `json:"position"`
	Status        Status  `json:"status"`
	Coach         bool    `json:"coach"`
	RankName      string  `json:"rank_name"`
	RankPredicate string  `json:"rank_predicate"`
	Gender        Gender  `json:"gender"`
	BranchName    string  `json:"branch_name"`
	SubBranchName string  `json:"sub_branch_name"`
	District      string  `json:"district"`
	PhotoKey      *string `json:"photo_key,omitempty"`
}

// RankLevel is a catalog entry describing a belt rank. Predicate is the
// default narrative label copied onto members at assignment time.
type RankLevel struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	Predicate string `json:"predicate"`
}

// SubBranch is a second-level organizational unit owned exclusively by its
// Branch. Coordinates are optional; map rendering skips sub-branches
// missing either one.
type SubBranch struct {
	ID        string   `json:"id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Leader    string   `json:"leader"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Branch is a first-level organizational unit. Code is a 2-digit display
// code and is not guaranteed globally unique across import sources; ID is
// the stable identity and is never reused.
type Branch struct {
	Base
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Leader      string      `json:"leader"`
	SubBranches []SubBranch `json:"sub_branches"`
}

// FindSubBranch returns the sub-branch with the given ID, if present.
func (b Branch) FindSubBranch(id string) (SubBranch, bool) {
	for _, sb := range b.SubBranches {
		if sb.ID == id {
			return sb, true
		}
	}
	return SubBranch{}, false
}

// Clone returns a deep copy of the branch, detaching the sub-branch slice.
func (b Branch) Clone() Branch {
	cp := b
	cp.SubBranches = append([]SubBranch(nil), b.SubBranches...)
	for i, sb := range cp.SubBranches {
		if sb.Latitude != nil {
			v := *sb.Latitude
			cp.SubBranches[i].Latitude = &v
		}
		if sb.Longitude != nil {
			v := *sb.Longitude
			cp.SubBranches[i].Longitude = &v
		}
	}
	return cp
}

// Clone returns a copy of the member, detaching pointer fields.
func (m Member) Clone() Member {
	cp := m
	if m.PhotoKey != nil {
		k := *m.PhotoKey
		cp.PhotoKey = &k
	}
	return cp
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation
// and audit.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
