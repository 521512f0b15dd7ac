// Package presets composes a mock session from a baseline handler set, extra
// handler sets that override it, and populators that seed the entity store.
package presets

import (
	"fmt"
	"sort"
	"strings"

	"cloudmock/internal/router"
)

// Kind groups preset ids. Ids are written "<group>:<name>".
type Kind string

const (
	KindBaseline  Kind = "baseline"
	KindExtra     Kind = "extra"
	KindPopulator Kind = "populator"
)

// Baseline is a complete API surface, normally the CRUD handler sets.
type Baseline struct {
	ID        string
	Label     string
	Factories []router.Factory
}

// Extra is one or more handler sets layered in front of the baseline.
// Factories answer in order.
type Extra struct {
	ID        string
	Label     string
	Factories []router.Factory
}

// Populator seeds entities into a MockContext before the session starts.
type Populator struct {
	ID       string
	Label    string
	Populate func(mc *MockContext) error
}

// Descriptor is the listing view of a registered preset.
type Descriptor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

// Registry holds every preset addressable by id.
type Registry struct {
	baselines  map[string]Baseline
	extras     map[string]Extra
	populators map[string]Populator
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		baselines:  make(map[string]Baseline),
		extras:     make(map[string]Extra),
		populators: make(map[string]Populator),
	}
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("preset id required")
	}
	if !strings.Contains(id, ":") {
		return fmt.Errorf("preset id %q must be <group>:<name>", id)
	}
	return nil
}

// RegisterBaseline adds b, failing on a duplicate id.
func (r *Registry) RegisterBaseline(b Baseline) error {
	if err := validID(b.ID); err != nil {
		return err
	}
	if _, exists := r.baselines[b.ID]; exists {
		return fmt.Errorf("baseline %s already registered", b.ID)
	}
	r.baselines[b.ID] = b
	return nil
}

// RegisterExtra adds e, failing on a duplicate id or a missing factory.
func (r *Registry) RegisterExtra(e Extra) error {
	if err := validID(e.ID); err != nil {
		return err
	}
	if len(e.Factories) == 0 {
		return fmt.Errorf("extra %s has no handler factory", e.ID)
	}
	for i, f := range e.Factories {
		if f == nil {
			return fmt.Errorf("extra %s factory %d is nil", e.ID, i)
		}
	}
	if _, exists := r.extras[e.ID]; exists {
		return fmt.Errorf("extra %s already registered", e.ID)
	}
	r.extras[e.ID] = e
	return nil
}

// RegisterPopulator adds p, failing on a duplicate id or a missing function.
func (r *Registry) RegisterPopulator(p Populator) error {
	if err := validID(p.ID); err != nil {
		return err
	}
	if p.Populate == nil {
		return fmt.Errorf("populator %s has no populate function", p.ID)
	}
	if _, exists := r.populators[p.ID]; exists {
		return fmt.Errorf("populator %s already registered", p.ID)
	}
	r.populators[p.ID] = p
	return nil
}

// Baseline resolves id (exact or plain suffix).
func (r *Registry) Baseline(id string) (Baseline, error) {
	key, err := resolve(r.baselines, KindBaseline, id)
	if err != nil {
		return Baseline{}, err
	}
	return r.baselines[key], nil
}

// Extra resolves id (exact or plain suffix).
func (r *Registry) Extra(id string) (Extra, error) {
	key, err := resolve(r.extras, KindExtra, id)
	if err != nil {
		return Extra{}, err
	}
	return r.extras[key], nil
}

// Populator resolves id (exact or plain suffix).
func (r *Registry) Populator(id string) (Populator, error) {
	key, err := resolve(r.populators, KindPopulator, id)
	if err != nil {
		return Populator{}, err
	}
	return r.populators[key], nil
}

// List returns every registered preset sorted by kind then id.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.baselines)+len(r.extras)+len(r.populators))
	for _, b := range r.baselines {
		out = append(out, Descriptor{ID: b.ID, Label: b.Label, Kind: KindBaseline})
	}
	for _, e := range r.extras {
		out = append(out, Descriptor{ID: e.ID, Label: e.Label, Kind: KindExtra})
	}
	for _, p := range r.populators {
		out = append(out, Descriptor{ID: p.ID, Label: p.Label, Kind: KindPopulator})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind == out[j].Kind {
			return out[i].ID < out[j].ID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// resolve accepts a full id or the plain name after its group, provided the
// plain name is unambiguous.
func resolve[T any](m map[string]T, kind Kind, id string) (string, error) {
	if _, ok := m[id]; ok {
		return id, nil
	}
	var matches []string
	if !strings.Contains(id, ":") {
		for key := range m {
			if key[strings.Index(key, ":")+1:] == id {
				matches = append(matches, key)
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("%w: %s %q", ErrUnknownPreset, kind, id)
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%w: %s %q is ambiguous: %s", ErrUnknownPreset, kind, id, strings.Join(matches, ", "))
	}
}
