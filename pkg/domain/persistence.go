package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	// UpsertMember looks up the record by previousID when given (identifier
	// reassignment), else by member.ID. Found records receive a shallow
	// merge: zero-valued incoming fields keep the stored value. Unknown IDs
	// append a new record.
	UpsertMember(member Member, previousID string) (Member, error)
	UpdateMember(id string, mutator func(*Member) error) (Member, error)
	DeleteMember(id string) error
	// UpsertBranch replaces the stored branch in place (full replace, not
	// merge) when branch.ID matches an existing record, otherwise assigns a
	// fresh ID and appends.
	UpsertBranch(branch Branch) (Branch, error)
	UpdateBranch(id string, mutator func(*Branch) error) (Branch, error)
	DeleteBranch(id string) error
	// SavePositions and SaveRankLevels perform whole-list overwrites; the
	// caller produces the complete intended list, including rename and
	// delete cases.
	SavePositions(positions []string) error
	SaveRankLevels(levels []RankLevel) error
	// NextSequence increments and returns the named persistent counter.
	// Counters survive record deletion, so N calls yield N distinct values
	// regardless of interleaved list mutations.
	NextSequence(key string) (int64, error)
	FindMember(id string) (Member, bool)
	FindBranch(id string) (Branch, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// cascade sweeps.
type TransactionView interface {
	ListMembers() []Member
	ListBranches() []Branch
	ListPositions() []string
	ListRankLevels() []RankLevel
	FindMember(id string) (Member, bool)
	FindBranch(id string) (Branch, bool)
	FindBranchByCode(code string) (Branch, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetMember(id string) (Member, bool)
	ListMembers() []Member
	GetBranch(id string) (Branch, bool)
	ListBranches() []Branch
	ListPositions() []string
	ListRankLevels() []RankLevel
}
