package presets

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"cloudmock/internal/core"
	"cloudmock/internal/router"
)

// ErrUnknownPreset is returned when a selection names an id no registry holds.
var ErrUnknownPreset = errors.New("unknown preset")

// DefaultBaseline is used when a selection leaves Baseline empty.
const DefaultBaseline = "baseline:crud"

// Selection names the presets a session runs with. Ids may be given in full
// or by their plain name.
type Selection struct {
	Baseline   string   `json:"baseline" yaml:"baseline"`
	Extras     []string `json:"extras" yaml:"extras"`
	Populators []string `json:"populators" yaml:"populators"`
}

// Composition is the outcome of Compose: handler sets in dispatch order and
// the selection with every id resolved.
type Composition struct {
	Selection Selection
	Sets      []router.HandlerSet
}

type plan struct {
	selection  Selection
	baseline   Baseline
	extras     []Extra
	populators []Populator
}

func (r *Registry) plan(sel Selection) (plan, error) {
	if sel.Baseline == "" {
		sel.Baseline = DefaultBaseline
	}
	baseline, err := r.Baseline(sel.Baseline)
	if err != nil {
		return plan{}, err
	}
	pl := plan{selection: Selection{Baseline: baseline.ID}, baseline: baseline}
	for _, id := range sel.Extras {
		e, err := r.Extra(id)
		if err != nil {
			return plan{}, err
		}
		pl.extras = append(pl.extras, e)
		pl.selection.Extras = append(pl.selection.Extras, e.ID)
	}
	for _, id := range sel.Populators {
		p, err := r.Populator(id)
		if err != nil {
			return plan{}, err
		}
		pl.populators = append(pl.populators, p)
		pl.selection.Populators = append(pl.selection.Populators, p.ID)
	}
	return pl, nil
}

// Resolve expands every id in sel to its full form without building
// anything.
func (r *Registry) Resolve(sel Selection) (Selection, error) {
	pl, err := r.plan(sel)
	if err != nil {
		return Selection{}, err
	}
	return pl.selection, nil
}

// Compose instantiates the selected extras and baseline against state and
// seeds the store from the selected populators. Extras come first so they
// answer before the baseline does. The store is never touched when an id
// fails to resolve.
func (r *Registry) Compose(ctx context.Context, sel Selection, state *core.MockState) (Composition, error) {
	pl, err := r.plan(sel)
	if err != nil {
		return Composition{}, err
	}

	var sets []router.HandlerSet
	for _, e := range pl.extras {
		for _, f := range e.Factories {
			sets = append(sets, f(state))
		}
	}
	for _, f := range pl.baseline.Factories {
		sets = append(sets, f(state))
	}

	if len(pl.populators) > 0 {
		mc := NewMockContext(state.Clock.Now())
		for _, p := range pl.populators {
			if err := p.Populate(mc); err != nil {
				return Composition{}, fmt.Errorf("populator %s: %w", p.ID, err)
			}
		}
		if err := mc.Write(ctx, state); err != nil {
			return Composition{}, fmt.Errorf("seed store: %w", err)
		}
	}

	state.Log.WithFields(logrus.Fields{
		"baseline":   pl.selection.Baseline,
		"extras":     pl.selection.Extras,
		"populators": pl.selection.Populators,
	}).Info("presets composed")
	return Composition{Selection: pl.selection, Sets: sets}, nil
}
