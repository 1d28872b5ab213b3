// Package sqlite persists the in-memory directory state to a single SQLite
// table as JSON blobs, one bucket per payload kind.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"silatcore/internal/infra/persistence/memory"
	"silatcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store snapshots the full state after every successful transaction. Reads
// are tolerant: a missing or corrupt bucket payload falls back to the zero
// value for that bucket with a logged warning, never an error, so a damaged
// store degrades to seeded defaults instead of refusing to start.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "silatcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketMembers    = "members"
	bucketBranches   = "branches"
	bucketPositions  = "positions"
	bucketRankLevels = "ranklevels"
	bucketCounters   = "counters"
)

var buckets = []string{bucketMembers, bucketBranches, bucketPositions, bucketRankLevels, bucketCounters}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := map[string][]byte{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	snapshot := memory.Snapshot{}
	decode := func(bucket string, dst any) {
		payload, ok := payloads[bucket]
		if !ok {
			return
		}
		if err := json.Unmarshal(payload, dst); err != nil {
			log.Printf("sqlite: corrupt %s payload, falling back to defaults: %v", bucket, err)
		}
	}
	decode(bucketMembers, &snapshot.Members)
	decode(bucketBranches, &snapshot.Branches)
	decode(bucketPositions, &snapshot.Positions)
	decode(bucketRankLevels, &snapshot.RankLevels)
	decode(bucketCounters, &snapshot.Counters)
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case bucketMembers:
			data, err = json.Marshal(snapshot.Members)
		case bucketBranches:
			data, err = json.Marshal(snapshot.Branches)
		case bucketPositions:
			data, err = json.Marshal(snapshot.Positions)
		case bucketRankLevels:
			data, err = json.Marshal(snapshot.RankLevels)
		case bucketCounters:
			data, err = json.Marshal(snapshot.Counters)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots state to SQLite if successful. The snapshot write is itself a
// single SQL transaction: a rejected write changes nothing on disk, and a
// failed snapshot restores the prior in-memory state so readers never see a
// mutation the caller was told did not apply.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	prev := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		s.ImportState(prev)
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
