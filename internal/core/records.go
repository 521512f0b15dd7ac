package core

import (
	"context"
	"encoding/json"
	"fmt"

	"cloudmock/pkg/domain"
)

// Row pairs a decoded entity with its parent id.
type Row[T any] struct {
	ParentID int
	Value    T
}

func decode[T any](table domain.Table, rec domain.Record) (T, error) {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s %d: %w", table, rec.ID, err)
	}
	return v, nil
}

// Get loads and decodes one entity. Absence is reported through the bool.
func Get[T any](ctx context.Context, s *MockState, table domain.Table, id int) (T, bool, error) {
	var zero T
	rec, ok, err := s.Store.Get(ctx, table, id)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := decode[T](table, rec)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// GetChild loads an entity from a child table, treating a parent mismatch as absent.
func GetChild[T any](ctx context.Context, s *MockState, table domain.Table, parentID, id int) (T, bool, error) {
	var zero T
	rec, ok, err := s.Store.Get(ctx, table, id)
	if err != nil || !ok || rec.ParentID != parentID {
		return zero, false, err
	}
	v, err := decode[T](table, rec)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// GetAll decodes every entity of table in insertion order.
func GetAll[T any](ctx context.Context, s *MockState, table domain.Table) ([]T, error) {
	rows, err := GetRows[T](ctx, s, table)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Value)
	}
	return out, nil
}

// GetRows decodes every entity of table together with its parent id.
func GetRows[T any](ctx context.Context, s *MockState, table domain.Table) ([]Row[T], error) {
	recs, err := s.Store.GetAll(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]Row[T], 0, len(recs))
	for _, rec := range recs {
		v, err := decode[T](table, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, Row[T]{ParentID: rec.ParentID, Value: v})
	}
	return out, nil
}

// Children decodes the rows of table owned by parentID.
func Children[T any](ctx context.Context, s *MockState, table domain.Table, parentID int) ([]T, error) {
	rows, err := GetRows[T](ctx, s, table)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for _, r := range rows {
		if r.ParentID == parentID {
			out = append(out, r.Value)
		}
	}
	return out, nil
}

// ChildIDs lists record ids of table owned by parentID.
func ChildIDs(ctx context.Context, s *MockState, table domain.Table, parentID int) ([]int, error) {
	recs, err := s.Store.GetAll(ctx, table)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, rec := range recs {
		if rec.ParentID == parentID {
			ids = append(ids, rec.ID)
		}
	}
	return ids, nil
}

// Add encodes v and inserts it, returning the stored entity with its id.
func Add[T any](ctx context.Context, s *MockState, table domain.Table, v T) (T, error) {
	return AddChild(ctx, s, table, 0, v)
}

// AddChild inserts v into a child table under parentID.
func AddChild[T any](ctx context.Context, s *MockState, table domain.Table, parentID int, v T) (T, error) {
	var zero T
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", table, err)
	}
	rec, err := s.Store.Add(ctx, table, domain.Record{ParentID: parentID, Data: data})
	if err != nil {
		return zero, err
	}
	return decode[T](table, rec)
}

// Update merges patch (any JSON-encodable object) onto the stored entity.
func Update[T any](ctx context.Context, s *MockState, table domain.Table, id int, patch any) (T, error) {
	var zero T
	data, err := json.Marshal(patch)
	if err != nil {
		return zero, fmt.Errorf("encode %s patch: %w", table, err)
	}
	rec, err := s.Store.Update(ctx, table, id, data)
	if err != nil {
		return zero, err
	}
	return decode[T](table, rec)
}

// Put replaces the stored entity with v while keeping its id and parent.
func Put[T any](ctx context.Context, s *MockState, table domain.Table, id int, v T) (T, error) {
	return Update[T](ctx, s, table, id, v)
}

// Delete removes one record.
func Delete(ctx context.Context, s *MockState, table domain.Table, id int) error {
	return s.Store.Delete(ctx, table, id)
}

// DeleteChildren removes every record of table owned by parentID and returns
// the removed ids.
func DeleteChildren(ctx context.Context, s *MockState, table domain.Table, parentID int) ([]int, error) {
	ids, err := ChildIDs(ctx, s, table, parentID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := s.Store.Delete(ctx, table, id); err != nil {
			return ids, fmt.Errorf("delete %s %d: %w", table, id, err)
		}
	}
	return ids, nil
}
