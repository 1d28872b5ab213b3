// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. It is also the canonical
// transaction engine: the sqlite and postgres stores wrap it and snapshot its
// state after every successful commit.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"silatcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Member aliases domain.Member for in-memory persistence operations.
	Member = domain.Member
	// Branch aliases domain.Branch.
	Branch = domain.Branch
	// SubBranch aliases domain.SubBranch.
	SubBranch = domain.SubBranch
	// RankLevel aliases domain.RankLevel.
	RankLevel = domain.RankLevel
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	members    []Member
	branches   []Branch
	positions  []string
	rankLevels []RankLevel
	counters   map[string]int64
}

// Snapshot captures a point-in-time clone of the store state. Slices keep
// their stored order: positions and rank levels are presentation-ordered
// catalogs, members and branches append in upsert order.
type Snapshot struct {
	Members    []Member         `json:"members"`
	Branches   []Branch         `json:"branches"`
	Positions  []string         `json:"positions"`
	RankLevels []RankLevel      `json:"rank_levels"`
	Counters   map[string]int64 `json:"counters"`
}

func newMemoryState() memoryState {
	return memoryState{counters: make(map[string]int64)}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		members:    make([]Member, 0, len(s.members)),
		branches:   make([]Branch, 0, len(s.branches)),
		positions:  append([]string(nil), s.positions...),
		rankLevels: append([]RankLevel(nil), s.rankLevels...),
		counters:   make(map[string]int64, len(s.counters)),
	}
	for _, m := range s.members {
		cloned.members = append(cloned.members, m.Clone())
	}
	for _, b := range s.branches {
		cloned.branches = append(cloned.branches, b.Clone())
	}
	for k, v := range s.counters {
		cloned.counters[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cl := state.clone()
	return Snapshot{
		Members:    cl.members,
		Branches:   cl.branches,
		Positions:  cl.positions,
		RankLevels: cl.rankLevels,
		Counters:   cl.counters,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, m := range s.Members {
		state.members = append(state.members, m.Clone())
	}
	for _, b := range s.Branches {
		state.branches = append(state.branches, b.Clone())
	}
	state.positions = append([]string(nil), s.Positions...)
	state.rankLevels = append([]RankLevel(nil), s.RankLevels...)
	for k, v := range s.Counters {
		state.counters[k] = v
	}
	return state
}

// migrateSnapshot normalizes snapshots produced by older payload shapes:
// nil slices become empty, duplicate member registration numbers collapse to
// the most recent record (import semantics are last-write-wins), and
// sub-branches missing IDs get fresh ones so the within-branch uniqueness
// invariant holds for legacy data.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Counters == nil {
		snapshot.Counters = map[string]int64{}
	}

	seen := make(map[string]int, len(snapshot.Members))
	members := make([]Member, 0, len(snapshot.Members))
	for _, m := range snapshot.Members {
		if m.ID == "" {
			continue
		}
		if idx, dup := seen[m.ID]; dup {
			members[idx] = m
			continue
		}
		seen[m.ID] = len(members)
		members = append(members, m)
	}
	snapshot.Members = members

	branches := make([]Branch, 0, len(snapshot.Branches))
	branchIDs := make(map[string]struct{}, len(snapshot.Branches))
	for _, b := range snapshot.Branches {
		if b.ID == "" {
			b.ID = newRandomID()
		}
		if _, dup := branchIDs[b.ID]; dup {
			continue
		}
		branchIDs[b.ID] = struct{}{}
		if b.SubBranches == nil {
			b.SubBranches = []SubBranch{}
		}
		subIDs := make(map[string]struct{}, len(b.SubBranches))
		for i := range b.SubBranches {
			if b.SubBranches[i].ID == "" {
				b.SubBranches[i].ID = newRandomID()
			}
			if _, dup := subIDs[b.SubBranches[i].ID]; dup {
				b.SubBranches[i].ID = newRandomID()
			}
			subIDs[b.SubBranches[i].ID] = struct{}{}
		}
		branches = append(branches, b)
	}
	snapshot.Branches = branches

	if snapshot.Positions == nil {
		snapshot.Positions = []string{}
	}
	if snapshot.RankLevels == nil {
		snapshot.RankLevels = []RankLevel{}
	}
	return snapshot
}

func newRandomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the mutated copy; blocking violations
// abort the commit, so no caller ever observes a partially applied cascade.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// GetMember returns the member with the given registration number.
func (s *Store) GetMember(id string) (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findMember(&s.state, id)
}

// ListMembers returns all members in stored order.
func (s *Store) ListMembers() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, 0, len(s.state.members))
	for _, m := range s.state.members {
		out = append(out, m.Clone())
	}
	return out
}

// GetBranch returns the branch with the given ID.
func (s *Store) GetBranch(id string) (Branch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findBranch(&s.state, id)
}

// ListBranches returns all branches in stored order.
func (s *Store) ListBranches() []Branch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Branch, 0, len(s.state.branches))
	for _, b := range s.state.branches {
		out = append(out, b.Clone())
	}
	return out
}

// ListPositions returns the ordered positions catalog.
func (s *Store) ListPositions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.state.positions...)
}

// ListRankLevels returns the ordered rank levels catalog.
func (s *Store) ListRankLevels() []RankLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RankLevel(nil), s.state.rankLevels...)
}

func findMember(state *memoryState, id string) (Member, bool) {
	for _, m := range state.members {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return Member{}, false
}

func findBranch(state *memoryState, id string) (Branch, bool) {
	for _, b := range state.branches {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return Branch{}, false
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindMember exposes member lookup within the transaction scope.
func (tx *transaction) FindMember(id string) (Member, bool) {
	return findMember(&tx.state, id)
}

// FindBranch exposes branch lookup within the transaction scope.
func (tx *transaction) FindBranch(id string) (Branch, bool) {
	return findBranch(&tx.state, id)
}

// UpsertMember inserts or merges a member record. When previousID is given
// the lookup uses it instead of member.ID, which supports explicit
// registration-number reassignment by an administrator.
func (tx *transaction) UpsertMember(member Member, previousID string) (Member, error) {
	if strings.TrimSpace(member.ID) == "" {
		return Member{}, fmt.Errorf("member registration number required")
	}
	lookup := member.ID
	if previousID != "" {
		lookup = previousID
	}
	idx := -1
	for i, existing := range tx.state.members {
		if existing.ID == lookup {
			idx = i
			break
		}
	}
	if idx < 0 {
		if _, clash := findMember(&tx.state, member.ID); clash {
			return Member{}, fmt.Errorf("member %q already exists", member.ID)
		}
		member.CreatedAt = tx.now
		member.UpdatedAt = tx.now
		tx.state.members = append(tx.state.members, member.Clone())
		tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionCreate, After: member.Clone()})
		return member.Clone(), nil
	}
	if member.ID != tx.state.members[idx].ID {
		if _, clash := findMember(&tx.state, member.ID); clash {
			return Member{}, fmt.Errorf("member %q already exists", member.ID)
		}
	}
	before := tx.state.members[idx].Clone()
	merged := mergeMember(tx.state.members[idx], member)
	merged.UpdatedAt = tx.now
	tx.state.members[idx] = merged.Clone()
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionUpdate, Before: before, After: merged.Clone()})
	return merged.Clone(), nil
}

// mergeMember shallow-merges incoming onto existing: zero-valued incoming
// fields keep the stored value. The coach flag follows the same rule, so an
// upsert can only raise it; clearing goes through UpdateMember.
func mergeMember(existing, incoming Member) Member {
	out := existing
	out.ID = incoming.ID
	if incoming.Username != "" {
		out.Username = incoming.Username
	}
	if incoming.PasswordHash != "" {
		out.PasswordHash = incoming.PasswordHash
	}
	if incoming.Name != "" {
		out.Name = incoming.Name
	}
	if incoming.Email != "" {
		out.Email = incoming.Email
	}
	if incoming.Role != "" {
		out.Role = incoming.Role
	}
	if incoming.Position != "" {
		out.Position = incoming.Position
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.Coach {
		out.Coach = true
	}
	if incoming.RankName != "" {
		out.RankName = incoming.RankName
	}
	if incoming.RankPredicate != "" {
		out.RankPredicate = incoming.RankPredicate
	}
	if incoming.Gender != "" {
		out.Gender = incoming.Gender
	}
	if incoming.BranchName != "" {
		out.BranchName = incoming.BranchName
	}
	if incoming.SubBranchName != "" {
		out.SubBranchName = incoming.SubBranchName
	}
	if incoming.District != "" {
		out.District = incoming.District
	}
	if incoming.PhotoKey != nil {
		k := *incoming.PhotoKey
		out.PhotoKey = &k
	}
	return out
}

// UpdateMember mutates a member using the provided mutator function.
func (tx *transaction) UpdateMember(id string, mutator func(*Member) error) (Member, error) {
	for i, existing := range tx.state.members {
		if existing.ID != id {
			continue
		}
		current := existing.Clone()
		before := existing.Clone()
		if err := mutator(&current); err != nil {
			return Member{}, err
		}
		current.ID = id
		current.UpdatedAt = tx.now
		tx.state.members[i] = current.Clone()
		tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
		return current.Clone(), nil
	}
	return Member{}, fmt.Errorf("member %q not found", id)
}

// DeleteMember removes a member record. Hard delete, no tombstone.
func (tx *transaction) DeleteMember(id string) error {
	for i, existing := range tx.state.members {
		if existing.ID != id {
			continue
		}
		before := existing.Clone()
		tx.state.members = append(tx.state.members[:i], tx.state.members[i+1:]...)
		tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionDelete, Before: before})
		return nil
	}
	return fmt.Errorf("member %q not found", id)
}

// UpsertBranch replaces an existing branch in place or appends a new one
// with a generated ID. Replacement is full, not a merge: the caller supplies
// the complete intended record including the sub-branch list.
func (tx *transaction) UpsertBranch(branch Branch) (Branch, error) {
	if branch.SubBranches == nil {
		branch.SubBranches = []SubBranch{}
	}
	for i := range branch.SubBranches {
		if branch.SubBranches[i].ID == "" {
			branch.SubBranches[i].ID = newRandomID()
		}
	}
	if branch.ID != "" {
		for i, existing := range tx.state.branches {
			if existing.ID != branch.ID {
				continue
			}
			before := existing.Clone()
			branch.CreatedAt = existing.CreatedAt
			branch.UpdatedAt = tx.now
			tx.state.branches[i] = branch.Clone()
			tx.recordChange(Change{Entity: domain.EntityBranch, Action: domain.ActionUpdate, Before: before, After: branch.Clone()})
			return branch.Clone(), nil
		}
	}
	if branch.ID == "" {
		branch.ID = newRandomID()
	}
	branch.CreatedAt = tx.now
	branch.UpdatedAt = tx.now
	tx.state.branches = append(tx.state.branches, branch.Clone())
	tx.recordChange(Change{Entity: domain.EntityBranch, Action: domain.ActionCreate, After: branch.Clone()})
	return branch.Clone(), nil
}

// UpdateBranch mutates a branch using the provided mutator function.
func (tx *transaction) UpdateBranch(id string, mutator func(*Branch) error) (Branch, error) {
	for i, existing := range tx.state.branches {
		if existing.ID != id {
			continue
		}
		current := existing.Clone()
		before := existing.Clone()
		if err := mutator(&current); err != nil {
			return Branch{}, err
		}
		current.ID = id
		current.UpdatedAt = tx.now
		if current.SubBranches == nil {
			current.SubBranches = []SubBranch{}
		}
		for j := range current.SubBranches {
			if current.SubBranches[j].ID == "" {
				current.SubBranches[j].ID = newRandomID()
			}
		}
		tx.state.branches[i] = current.Clone()
		tx.recordChange(Change{Entity: domain.EntityBranch, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
		return current.Clone(), nil
	}
	return Branch{}, fmt.Errorf("branch %q not found", id)
}

// DeleteBranch removes a branch and its sub-branches. Members referencing
// the branch by name are left untouched; retiring a branch is not a
// retroactive data scrub.
func (tx *transaction) DeleteBranch(id string) error {
	for i, existing := range tx.state.branches {
		if existing.ID != id {
			continue
		}
		before := existing.Clone()
		tx.state.branches = append(tx.state.branches[:i], tx.state.branches[i+1:]...)
		tx.recordChange(Change{Entity: domain.EntityBranch, Action: domain.ActionDelete, Before: before})
		return nil
	}
	return fmt.Errorf("branch %q not found", id)
}

// SavePositions overwrites the full positions catalog.
func (tx *transaction) SavePositions(positions []string) error {
	before := append([]string(nil), tx.state.positions...)
	tx.state.positions = append([]string(nil), positions...)
	tx.recordChange(Change{Entity: domain.EntityPosition, Action: domain.ActionUpdate, Before: before, After: append([]string(nil), positions...)})
	return nil
}

// SaveRankLevels overwrites the full rank levels catalog.
func (tx *transaction) SaveRankLevels(levels []RankLevel) error {
	before := append([]RankLevel(nil), tx.state.rankLevels...)
	tx.state.rankLevels = append([]RankLevel(nil), levels...)
	tx.recordChange(Change{Entity: domain.EntityRankLevel, Action: domain.ActionUpdate, Before: before, After: append([]RankLevel(nil), levels...)})
	return nil
}

// NextSequence increments and returns the named persistent counter. The
// counter lives in its own bucket and never rewinds when records are
// deleted, so generated identifiers cannot collide with earlier ones.
func (tx *transaction) NextSequence(key string) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, fmt.Errorf("sequence key required")
	}
	tx.state.counters[key]++
	return tx.state.counters[key], nil
}

// transactionView exposes a read-only snapshot of transactional state to
// rules and cascade sweeps.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListMembers returns all members within the snapshot.
func (v transactionView) ListMembers() []Member {
	out := make([]Member, 0, len(v.state.members))
	for _, m := range v.state.members {
		out = append(out, m.Clone())
	}
	return out
}

// ListBranches returns all branches within the snapshot.
func (v transactionView) ListBranches() []Branch {
	out := make([]Branch, 0, len(v.state.branches))
	for _, b := range v.state.branches {
		out = append(out, b.Clone())
	}
	return out
}

// ListPositions returns the ordered positions catalog in the snapshot.
func (v transactionView) ListPositions() []string {
	return append([]string(nil), v.state.positions...)
}

// ListRankLevels returns the ordered rank levels catalog in the snapshot.
func (v transactionView) ListRankLevels() []RankLevel {
	return append([]RankLevel(nil), v.state.rankLevels...)
}

// FindMember retrieves a member by registration number from the snapshot.
func (v transactionView) FindMember(id string) (Member, bool) {
	return findMember(v.state, id)
}

// FindBranch retrieves a branch by ID from the snapshot.
func (v transactionView) FindBranch(id string) (Branch, bool) {
	return findBranch(v.state, id)
}

// FindBranchByCode retrieves the first branch holding the display code.
// Codes are not guaranteed unique across import sources; callers needing
// strict identity use FindBranch.
func (v transactionView) FindBranchByCode(code string) (Branch, bool) {
	for _, b := range v.state.branches {
		if b.Code == code {
			return b.Clone(), true
		}
	}
	return Branch{}, false
}
