package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"silatcore/pkg/domain"
)

// stubState is the shared backing storage for the stub driver: one payload
// per bucket, mirroring the real state table.
type stubState struct {
	mu       sync.Mutex
	buckets  map[string][]byte
	failExec bool
}

func newStubDB() (*sql.DB, *stubState) {
	state := &stubState{buckets: map[string][]byte{}}
	return sql.OpenDB(stubConnector{state: state}), state
}

type stubConnector struct{ state *stubState }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return &stubConn{state: c.state}, nil
}

func (c stubConnector) Driver() driver.Driver { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) {
	return nil, fmt.Errorf("stub driver requires a connector")
}

type stubConn struct{ state *stubState }

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported by stub")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) Ping(context.Context) error { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	upper := strings.ToUpper(query)
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return driver.ResultNoRows, nil
	case strings.HasPrefix(upper, "INSERT INTO STATE"):
		if c.state.failExec {
			return nil, fmt.Errorf("exec failure injected")
		}
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.state.buckets[bucket] = append([]byte(nil), payload...)
		return driver.ResultNoRows, nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", query)
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToUpper(query), "FROM STATE") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	rows := &stubRows{}
	for bucket, payload := range c.state.buckets {
		rows.data = append(rows.data, [2]any{bucket, append([]byte(nil), payload...)})
	}
	return rows, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	data []([2]any)
	pos  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	dest[0] = r.data[r.pos][0]
	dest[1] = r.data[r.pos][1]
	r.pos++
	return nil
}

func TestRunInTransactionPersistsState(t *testing.T) {
	db, state := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpsertMember(domain.Member{Base: domain.Base{ID: "PSHT-2026-0007"}, Name: "Budi", Role: domain.RolePengurus}, "")
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	state.mu.Lock()
	payload := state.buckets["members"]
	state.mu.Unlock()
	var members []domain.Member
	if err := json.Unmarshal(payload, &members); err != nil {
		t.Fatalf("decode persisted members: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Budi" {
		t.Fatalf("expected persisted member Budi, got %v", members)
	}
}

func TestNewStoreHydratesFromExistingSnapshot(t *testing.T) {
	db, state := newStubDB()
	members, _ := json.Marshal([]domain.Member{{Base: domain.Base{ID: "m1"}, Name: "Sari"}})
	counters, _ := json.Marshal(map[string]int64{"nia": 9})
	state.buckets["members"] = members
	state.buckets["counters"] = counters

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	member, ok := store.GetMember("m1")
	if !ok || member.Name != "Sari" {
		t.Fatalf("expected hydrated member Sari, got %v (found %v)", member, ok)
	}
	var next int64
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		n, err := tx.NextSequence("nia")
		next = n
		return err
	}); err != nil {
		t.Fatalf("sequence transaction: %v", err)
	}
	if next != 10 {
		t.Fatalf("expected counter to resume at 10, got %d", next)
	}
}

func TestCorruptBucketDegradesToDefaults(t *testing.T) {
	db, state := newStubDB()
	state.buckets["members"] = []byte("{not json")

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore with corrupt bucket: %v", err)
	}
	if members := store.ListMembers(); len(members) != 0 {
		t.Fatalf("expected empty members after corrupt payload, got %d", len(members))
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, fmt.Errorf("open fail")
	})
	defer restore()
	if _, err := NewStore("", domain.NewRulesEngine()); err == nil || !strings.Contains(err.Error(), "open fail") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	db, state := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	userErr := errors.New("user fail")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return userErr }); !errors.Is(err, userErr) {
		t.Fatalf("expected user error to propagate, got %v", err)
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if len(state.buckets) != 0 {
		t.Fatalf("expected no persistence when user fn errors, got buckets %v", state.buckets)
	}
}

func TestRunInTransactionSurfacesPersistFailure(t *testing.T) {
	db, state := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	state.failExec = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.SavePositions([]string{"Ketua"})
	})
	if err == nil {
		t.Fatalf("expected persistence error when exec fails")
	}
	// The in-memory state rolls back so reads match what the caller was told.
	if positions := store.ListPositions(); len(positions) != 0 {
		t.Fatalf("expected in-memory state restored after persist failure, got positions %v", positions)
	}
}
