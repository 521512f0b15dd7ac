package domain

import (
	"context"
	"encoding/json"
)

// Record is one stored entity. Data holds the JSON encoding of the entity
// including its id; ParentID is non-zero for rows in child tables.
type Record struct {
	ID       int             `json:"id"`
	ParentID int             `json:"parent_id,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Store is the keyed multi-table entity store backing a mock session.
// Absent records are reported through the found flag rather than an error.
// No operation spans more than one record; callers sequence multi-table
// writes parent before children and tolerate partial state on failure.
type Store interface {
	// Get returns the record stored under id.
	Get(ctx context.Context, table Table, id int) (Record, bool, error)
	// GetAll returns every record of table in insertion order.
	GetAll(ctx context.Context, table Table) ([]Record, error)
	// Add inserts rec, assigning a fresh id when rec.ID is zero or already
	// taken. The returned record carries the assigned id in both ID and Data.
	Add(ctx context.Context, table Table, rec Record) (Record, error)
	// Update merges patch (a JSON object) onto the stored record. It returns
	// an error wrapping ErrNotFound when id is absent.
	Update(ctx context.Context, table Table, id int, patch json.RawMessage) (Record, error)
	// Delete removes the record. Deleting an absent id is a no-op.
	Delete(ctx context.Context, table Table, id int) error
	// Export captures every table and id sequence.
	Export(ctx context.Context) (Snapshot, error)
	// Import replaces the store contents with snap.
	Import(ctx context.Context, snap Snapshot) error
	// Reset drops all records and id sequences.
	Reset(ctx context.Context) error
	// Driver names the backend ("memory", "sqlite", "postgres").
	Driver() string
	Close() error
}

// Snapshot is a point-in-time copy of a store, suitable for JSON encoding.
type Snapshot struct {
	Tables map[Table][]Record `json:"tables"`
	NextID map[Table]int      `json:"next_id"`
}
