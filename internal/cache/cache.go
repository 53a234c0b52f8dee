// Package cache stores discipline evaluation results keyed by
// tolerance-matched input vectors.
//
// A query matches a stored entry when, for every input variable,
// the normalized relative error ‖stored − query‖ / (1 + ‖query‖)
// is below the cache tolerance. Entries are scanned in reverse
// insertion order, so the most recently stored matching entry wins.
package cache

import (
	"fmt"
	"math"

	"github.com/san-kum/mdsolve/internal/core"
)

// Policy controls entry retention.
type Policy string

const (
	// PolicyLatest retains exactly one entry, overwritten on every add.
	PolicyLatest Policy = "latest"
	// PolicyFull retains one entry per distinct input set.
	PolicyFull Policy = "full"
)

// ParsePolicy validates a policy identifier.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyLatest, PolicyFull:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown cache policy: %s", s)
	}
}

// Entry pairs an input set with the outputs and partials computed for it.
// Outputs and Jac may each be nil until populated.
type Entry struct {
	Inputs  core.Values
	Outputs core.Values
	Jac     core.Jac
}

// Cache is an in-memory entry store for one discipline.
type Cache struct {
	inputVars   []core.Variable
	outputVars  []core.Variable
	dinputVars  []core.Variable
	doutputVars []core.Variable
	policy      Policy
	tol         float64
	entries     []*Entry
}

// Options configures a cache. Zero values fall back to the input/output
// variable lists, PolicyLatest and a 1e-9 tolerance.
type Options struct {
	DiffInputs  []core.Variable
	DiffOutputs []core.Variable
	Policy      Policy
	Tolerance   float64
}

// New builds a cache for the given variable lists.
func New(inputVars, outputVars []core.Variable, opts Options) *Cache {
	c := &Cache{
		inputVars:   inputVars,
		outputVars:  outputVars,
		dinputVars:  opts.DiffInputs,
		doutputVars: opts.DiffOutputs,
		policy:      opts.Policy,
		tol:         opts.Tolerance,
	}
	if c.dinputVars == nil {
		c.dinputVars = inputVars
	}
	if c.doutputVars == nil {
		c.doutputVars = outputVars
	}
	if c.policy == "" {
		c.policy = PolicyLatest
	}
	if c.tol == 0 {
		c.tol = 1e-9
	}
	return c
}

// Len returns the number of retained entries.
func (c *Cache) Len() int { return len(c.entries) }

// Tolerance returns the matching tolerance.
func (c *Cache) Tolerance() float64 { return c.tol }

func valuesMatch(vars []core.Variable, stored, query core.Values, tol float64) bool {
	if len(stored) == 0 || len(query) == 0 {
		return false
	}
	for _, vr := range vars {
		s, ok := stored[vr.Name]
		if !ok {
			return false
		}
		q, ok := query[vr.Name]
		if !ok || len(q) != len(s) {
			return false
		}
		diff, qn := 0.0, 0.0
		for i := range s {
			d := s[i] - q[i]
			diff += d * d
			qn += q[i] * q[i]
		}
		err := math.Sqrt(diff) / (1 + math.Sqrt(qn))
		if err >= tol {
			return false
		}
	}
	return true
}

// Exists returns the most recently inserted entry whose inputs match the
// query within tolerance, or nil.
func (c *Cache) Exists(inputs core.Values) *Entry {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if valuesMatch(c.inputVars, c.entries[i].Inputs, inputs, c.tol) {
			return c.entries[i]
		}
	}
	return nil
}

// Add stores outputs and/or partials under the given inputs. A matching
// existing entry is merged into; otherwise a new entry is created. Under
// PolicyLatest every other entry is discarded.
func (c *Cache) Add(inputs, outputs core.Values, jac core.Jac) {
	entry := c.Exists(inputs)
	isNew := entry == nil
	if isNew {
		entry = &Entry{Inputs: core.CopyValues(c.inputVars, inputs)}
	}

	if outputs != nil {
		entry.Outputs = core.CopyValues(c.outputVars, outputs)
	}
	if jac != nil {
		entry.Jac = core.CopyJac(c.dinputVars, c.doutputVars, jac)
	}

	switch c.policy {
	case PolicyFull:
		if isNew {
			c.entries = append(c.entries, entry)
		}
	case PolicyLatest:
		c.entries = []*Entry{entry}
	}
}

// Load returns copies of the outputs and partials stored for the given
// inputs. Either may be nil when absent.
func (c *Cache) Load(inputs core.Values) (core.Values, core.Jac) {
	entry := c.Exists(inputs)
	if entry == nil {
		return nil, nil
	}
	var outputs core.Values
	var jac core.Jac
	if entry.Outputs != nil {
		outputs = core.CopyValues(c.outputVars, entry.Outputs)
	}
	if entry.Jac != nil {
		jac = core.CopyJac(c.dinputVars, c.doutputVars, entry.Jac)
	}
	return outputs, jac
}

// LoadFromStore replaces the in-memory entries with those persisted in the
// store. Under PolicyLatest only the last persisted entry is kept.
func (c *Cache) LoadFromStore(store Store) error {
	entries, err := store.Load()
	if err != nil {
		return err
	}
	if c.policy == PolicyLatest && len(entries) > 1 {
		entries = entries[len(entries)-1:]
	}
	c.entries = entries
	return nil
}

// SaveToStore persists the current entries.
func (c *Cache) SaveToStore(store Store) error {
	return store.Save(c.entries)
}
