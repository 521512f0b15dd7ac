package domain

import (
	"encoding/json"
	"fmt"
)

// StampID rewrites the top-level "id" member of a JSON object.
func StampID(data json.RawMessage, id int) (json.RawMessage, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	obj["id"] = json.RawMessage(fmt.Sprintf("%d", id))
	return json.Marshal(obj)
}

// PeekID reads the top-level numeric "id" member; zero when absent.
func PeekID(data json.RawMessage) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	var probe struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("record id: %w", err)
	}
	return probe.ID, nil
}

// MergePatch applies patch onto base one level deep: members present in patch
// replace those in base, including explicit nulls. The id member of base is
// preserved.
func MergePatch(base, patch json.RawMessage, id int) (json.RawMessage, error) {
	obj, err := decodeObject(base)
	if err != nil {
		return nil, err
	}
	changes, err := decodeObject(patch)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	for k, v := range changes {
		obj[k] = v
	}
	obj["id"] = json.RawMessage(fmt.Sprintf("%d", id))
	return json.Marshal(obj)
}

func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(data) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("record payload must be a JSON object: %w", err)
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	return obj, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	cp.Data = append(json.RawMessage(nil), r.Data...)
	return cp
}
