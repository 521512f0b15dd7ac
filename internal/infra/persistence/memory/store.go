// Package memory provides an in-memory implementation of the entity store
// used for tests and ephemeral mock sessions.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloudmock/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to domain.Store.
var _ domain.Store = (*Store)(nil)

type (
	// Record aliases domain.Record for in-memory persistence operations.
	Record = domain.Record
	// Table aliases domain.Table.
	Table = domain.Table
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
)

// table keeps rows in insertion order alongside an id index.
type table struct {
	order []int
	rows  map[int]Record
}

func newTable() *table {
	return &table{rows: make(map[int]Record)}
}

func (t *table) clone() *table {
	cp := &table{
		order: append([]int(nil), t.order...),
		rows:  make(map[int]Record, len(t.rows)),
	}
	for id, rec := range t.rows {
		cp.rows[id] = rec.Clone()
	}
	return cp
}

func (t *table) remove(id int) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

type memoryState struct {
	tables map[Table]*table
	nextID map[Table]int
}

func newMemoryState() memoryState {
	return memoryState{
		tables: make(map[Table]*table),
		nextID: make(map[Table]int),
	}
}

func (s *memoryState) table(name Table) *table {
	t, ok := s.tables[name]
	if !ok {
		t = newTable()
		s.tables[name] = t
	}
	return t
}

// allocate returns the next unused id for name, honouring a caller-supplied
// id only when it lies beyond every id handed out so far.
func (s *memoryState) allocate(name Table, requested int) int {
	t := s.table(name)
	if requested > 0 && requested >= s.nextID[name] {
		s.nextID[name] = requested + 1
		return requested
	}
	if s.nextID[name] < 1 {
		s.nextID[name] = 1
	}
	for {
		id := s.nextID[name]
		s.nextID[name]++
		if _, taken := t.rows[id]; !taken {
			return id
		}
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		Tables: make(map[Table][]Record, len(state.tables)),
		NextID: make(map[Table]int, len(state.nextID)),
	}
	for name, t := range state.tables {
		rows := make([]Record, 0, len(t.order))
		for _, id := range t.order {
			rows = append(rows, t.rows[id].Clone())
		}
		snap.Tables[name] = rows
	}
	for name, next := range state.nextID {
		snap.NextID[name] = next
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for name, rows := range snap.Tables {
		t := state.table(name)
		highest := 0
		for _, rec := range rows {
			if _, dup := t.rows[rec.ID]; dup || rec.ID <= 0 {
				continue
			}
			t.order = append(t.order, rec.ID)
			t.rows[rec.ID] = rec.Clone()
			if rec.ID > highest {
				highest = rec.ID
			}
		}
		state.nextID[name] = highest + 1
	}
	// Sequences never move backwards so ids stay unique across restores.
	for name, next := range snap.NextID {
		if next > state.nextID[name] {
			state.nextID[name] = next
		}
	}
	return state
}

// Store provides a mutex-guarded in-memory entity store.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// Driver reports the backend identifier.
func (s *Store) Driver() string { return "memory" }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// Get returns the record stored under id.
func (s *Store) Get(_ context.Context, name Table, id int) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tables[name]
	if !ok {
		return Record{}, false, nil
	}
	rec, ok := t.rows[id]
	if !ok {
		return Record{}, false, nil
	}
	return rec.Clone(), true, nil
}

// GetAll returns every record of a table in insertion order.
func (s *Store) GetAll(_ context.Context, name Table) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tables[name]
	if !ok {
		return []Record{}, nil
	}
	out := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id].Clone())
	}
	return out, nil
}

// Add inserts a record, assigning an id when absent or already taken.
func (s *Store) Add(_ context.Context, name Table, rec Record) (Record, error) {
	requested := rec.ID
	if requested == 0 {
		peeked, err := domain.PeekID(rec.Data)
		if err != nil {
			return Record{}, fmt.Errorf("memory add %s: %w", name, err)
		}
		requested = peeked
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.allocate(name, requested)
	data, err := domain.StampID(rec.Data, id)
	if err != nil {
		return Record{}, fmt.Errorf("memory add %s: %w", name, err)
	}
	stored := Record{ID: id, ParentID: rec.ParentID, Data: data}
	t := s.state.table(name)
	t.order = append(t.order, id)
	t.rows[id] = stored
	return stored.Clone(), nil
}

// Update merges patch onto an existing record.
func (s *Store) Update(_ context.Context, name Table, id int, patch json.RawMessage) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tables[name]
	if !ok {
		return Record{}, domain.NotFoundError{Table: name, ID: id}
	}
	current, ok := t.rows[id]
	if !ok {
		return Record{}, domain.NotFoundError{Table: name, ID: id}
	}
	merged, err := domain.MergePatch(current.Data, patch, id)
	if err != nil {
		return Record{}, fmt.Errorf("memory update %s %d: %w", name, id, err)
	}
	current.Data = merged
	t.rows[id] = current
	return current.Clone(), nil
}

// Delete removes a record; absent ids are ignored.
func (s *Store) Delete(_ context.Context, name Table, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.state.tables[name]; ok {
		t.remove(id)
	}
	return nil
}

// Export clones the current store state for external persistence.
func (s *Store) Export(context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state), nil
}

// ExportTable returns a copy of one table's rows and its next id.
func (s *Store) ExportTable(name Table) ([]Record, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tables[name]
	if !ok {
		return []Record{}, s.state.nextID[name]
	}
	rows := make([]Record, 0, len(t.order))
	for _, id := range t.order {
		rows = append(rows, t.rows[id].Clone())
	}
	return rows, s.state.nextID[name]
}

// Import replaces the store state with the provided snapshot.
func (s *Store) Import(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snap)
	return nil
}

// Reset drops every table and id sequence.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newMemoryState()
	return nil
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := newMemoryState()
	for name, t := range s.state.tables {
		cp.tables[name] = t.clone()
	}
	for name, next := range s.state.nextID {
		cp.nextID[name] = next
	}
	return &Store{state: cp}
}
