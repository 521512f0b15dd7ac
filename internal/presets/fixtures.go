package presets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FixturePopulator decodes a YAML seed document into a populator named
// fixtures:<name>. Top-level keys follow the MockContext JSON names; unknown
// keys are rejected up front so a typo fails at startup rather than seeding
// nothing.
func FixturePopulator(name string, doc []byte) (Populator, error) {
	seed, err := decodeFixture(doc)
	if err != nil {
		return Populator{}, fmt.Errorf("fixture %s: %w", name, err)
	}
	return Populator{
		ID:    "fixtures:" + name,
		Label: "Fixture " + name,
		Populate: func(mc *MockContext) error {
			mc.Merge(seed)
			return nil
		},
	}, nil
}

func decodeFixture(doc []byte) (MockContext, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return MockContext{}, fmt.Errorf("parse yaml: %w", err)
	}
	// Round trip through JSON so entity field names and time formats match
	// what the API serves.
	data, err := json.Marshal(raw)
	if err != nil {
		return MockContext{}, fmt.Errorf("normalise yaml: %w", err)
	}
	var seed MockContext
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return MockContext{}, err
	}
	return seed, nil
}

// LoadFixtureFiles reads each path into a name-keyed map; the name is the file
// base without its extension.
func LoadFixtureFiles(paths []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("fixture %s given twice", name)
		}
		out[name] = data
	}
	return out, nil
}
