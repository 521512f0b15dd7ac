// Package sqlstate persists the in-memory entity store to a SQL database as
// one JSON bucket per table. Reads are served from memory; every successful
// mutation writes the affected bucket through to the database.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"cloudmock/internal/infra/persistence/memory"
	"cloudmock/pkg/domain"
)

var _ domain.Store = (*Store)(nil)

// Dialect carries the statements that differ between SQL engines.
type Dialect struct {
	Name        string
	CreateTable string
	Upsert      string
	Select      string
	Reset       string
}

// bucket is the JSON payload stored per table.
type bucket struct {
	Rows   []domain.Record `json:"rows"`
	NextID int             `json:"next_id"`
}

// Store is a write-through SQL snapshot store.
type Store struct {
	*memory.Store
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

// Open ensures the state table exists and hydrates memory from it.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, dialect.CreateTable); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	snap, err := load(ctx, db, dialect)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	if err := mem.Import(ctx, snap); err != nil {
		return nil, err
	}
	return &Store{Store: mem, db: db, dialect: dialect}, nil
}

func load(ctx context.Context, db *sql.DB, dialect Dialect) (domain.Snapshot, error) {
	rows, err := db.QueryContext(ctx, dialect.Select)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := domain.Snapshot{
		Tables: make(map[domain.Table][]domain.Record),
		NextID: make(map[domain.Table]int),
	}
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var b bucket
		if err := json.Unmarshal(payload, &b); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
		}
		snap.Tables[domain.Table(name)] = b.Rows
		snap.NextID[domain.Table(name)] = b.NextID
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snap, nil
}

// Driver reports the dialect name.
func (s *Store) Driver() string { return s.dialect.Name }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Add inserts into memory and persists the table.
func (s *Store) Add(ctx context.Context, table domain.Table, rec domain.Record) (domain.Record, error) {
	out, err := s.Store.Add(ctx, table, rec)
	if err != nil {
		return domain.Record{}, err
	}
	return out, s.persist(ctx, table)
}

// Update merges into memory and persists the table.
func (s *Store) Update(ctx context.Context, table domain.Table, id int, patch json.RawMessage) (domain.Record, error) {
	out, err := s.Store.Update(ctx, table, id, patch)
	if err != nil {
		return domain.Record{}, err
	}
	return out, s.persist(ctx, table)
}

// Delete removes from memory and persists the table.
func (s *Store) Delete(ctx context.Context, table domain.Table, id int) error {
	if err := s.Store.Delete(ctx, table, id); err != nil {
		return err
	}
	return s.persist(ctx, table)
}

// Import replaces memory and rewrites every bucket.
func (s *Store) Import(ctx context.Context, snap domain.Snapshot) error {
	if err := s.Store.Import(ctx, snap); err != nil {
		return err
	}
	if err := s.truncate(ctx); err != nil {
		return err
	}
	tables := make([]domain.Table, 0, len(snap.Tables))
	for name := range snap.Tables {
		tables = append(tables, name)
	}
	return s.persist(ctx, tables...)
}

// Reset clears memory and the state table.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.Store.Reset(ctx); err != nil {
		return err
	}
	return s.truncate(ctx)
}

func (s *Store) truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, s.dialect.Reset); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, tables ...domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, name := range tables {
		rows, next := s.ExportTable(name)
		data, err := json.Marshal(bucket{Rows: rows, NextID: next})
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Upsert, string(name), data); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
