// Package discipline wraps user-supplied evaluation kernels with the
// bookkeeping an MDO study needs: input sanitization against declared
// variables, result caching, default-input warming, derivative
// approximation and evaluation telemetry.
package discipline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/mdsolve/internal/cache"
	"github.com/san-kum/mdsolve/internal/core"
)

// DiffMethod selects how partial derivatives are obtained.
type DiffMethod string

const (
	Analytic          DiffMethod = "analytic"
	ForwardDifference DiffMethod = "forward_difference"
	CentralDifference DiffMethod = "central_difference"
	ComplexStep       DiffMethod = "complex_step"
)

// ParseDiffMethod validates a method identifier.
func ParseDiffMethod(s string) (DiffMethod, error) {
	switch DiffMethod(s) {
	case Analytic, ForwardDifference, CentralDifference, ComplexStep:
		return DiffMethod(s), nil
	default:
		return "", fmt.Errorf("unknown differentiation method: %s", s)
	}
}

// DiffPolicy controls whether Differentiate evaluates the discipline first.
// Non-analytic methods always do, regardless of policy.
type DiffPolicy string

const (
	DiffAlways DiffPolicy = "always"
	DiffLazy   DiffPolicy = "lazy"
)

// Discipline owns a kernel, its cache and its evaluation state.
type Discipline struct {
	kernel      Kernel
	name        string
	inputVars   []core.Variable
	outputVars  []core.Variable
	diffInputs  []core.Variable
	diffOutputs []core.Variable

	cache  *cache.Cache
	method DiffMethod
	policy DiffPolicy
	eps    float64
	log    *zap.Logger

	defaults core.Values
	values   core.Values
	jac      core.Jac

	// Set while a derivative-approximation sweep drives nested
	// evaluations; suppresses default-input and cache updates.
	approximating bool

	nEval int
	nDiff int
}

// Options configures a discipline. Zero values fall back to: derivatives
// tracked for all inputs/outputs, analytic differentiation, always-evaluate
// policy, 1e-6 approximation step, latest-only caching at 1e-9 tolerance
// and a no-op logger.
type Options struct {
	DiffInputs     []core.Variable
	DiffOutputs    []core.Variable
	DiffMethod     DiffMethod
	DiffPolicy     DiffPolicy
	Eps            float64
	CachePolicy    cache.Policy
	CacheTolerance float64
	Logger         *zap.Logger
}

// New builds a discipline around a kernel.
func New(kernel Kernel, opts Options) (*Discipline, error) {
	d := &Discipline{
		kernel:      kernel,
		name:        kernel.Name(),
		inputVars:   kernel.Inputs(),
		outputVars:  kernel.Outputs(),
		diffInputs:  opts.DiffInputs,
		diffOutputs: opts.DiffOutputs,
		method:      opts.DiffMethod,
		policy:      opts.DiffPolicy,
		eps:         opts.Eps,
		log:         opts.Logger,
		defaults:    make(core.Values),
	}
	if len(d.inputVars) == 0 || len(d.outputVars) == 0 {
		return nil, fmt.Errorf("discipline %s: kernel must declare input and output variables", d.name)
	}
	if d.diffInputs == nil {
		d.diffInputs = d.inputVars
	}
	if d.diffOutputs == nil {
		d.diffOutputs = d.outputVars
	}
	if d.method == "" {
		d.method = Analytic
	}
	if _, err := ParseDiffMethod(string(d.method)); err != nil {
		return nil, fmt.Errorf("discipline %s: %w", d.name, err)
	}
	if d.policy == "" {
		d.policy = DiffAlways
	}
	if d.policy != DiffAlways && d.policy != DiffLazy {
		return nil, fmt.Errorf("discipline %s: unknown differentiation policy: %s", d.name, d.policy)
	}
	if d.eps == 0 {
		d.eps = 1e-6
	}
	if opts.CachePolicy != "" {
		if _, err := cache.ParsePolicy(string(opts.CachePolicy)); err != nil {
			return nil, fmt.Errorf("discipline %s: %w", d.name, err)
		}
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	d.cache = cache.New(d.inputVars, d.outputVars, cache.Options{
		DiffInputs:  d.diffInputs,
		DiffOutputs: d.diffOutputs,
		Policy:      opts.CachePolicy,
		Tolerance:   opts.CacheTolerance,
	})
	return d, nil
}

func (d *Discipline) Name() string                 { return d.name }
func (d *Discipline) Inputs() []core.Variable      { return d.inputVars }
func (d *Discipline) Outputs() []core.Variable     { return d.outputVars }
func (d *Discipline) DiffInputs() []core.Variable  { return d.diffInputs }
func (d *Discipline) DiffOutputs() []core.Variable { return d.diffOutputs }
func (d *Discipline) Cache() *cache.Cache          { return d.cache }
func (d *Discipline) Kernel() Kernel               { return d.kernel }

// EvalCount reports how many times the kernel was actually evaluated
// (cache hits excluded).
func (d *Discipline) EvalCount() int { return d.nEval }

// DiffCount reports how many times partials were actually computed.
func (d *Discipline) DiffCount() int { return d.nDiff }

// DefaultInputs returns a copy of the stored default input values.
func (d *Discipline) DefaultInputs() core.Values {
	return core.CopyValues(d.inputVars, d.defaults)
}

// AddDefaultInputs merges values for declared input variables into the
// stored defaults.
func (d *Discipline) AddDefaultInputs(vals core.Values) {
	d.defaults.Update(core.CopyValues(d.inputVars, vals))
}

// InputValues returns a copy of the input portion of the working value set.
func (d *Discipline) InputValues() core.Values {
	return core.CopyValues(d.inputVars, d.values)
}

// OutputValues returns a copy of the output portion of the working value set.
func (d *Discipline) OutputValues() core.Values {
	return core.CopyValues(d.outputVars, d.values)
}

// SetApproximation switches the discipline to a derivative-approximation
// method with the given step, forcing the always-evaluate policy.
func (d *Discipline) SetApproximation(method DiffMethod, eps float64) error {
	switch method {
	case ForwardDifference, CentralDifference, ComplexStep:
	default:
		return fmt.Errorf("discipline %s: %s is not an approximation method", d.name, method)
	}
	if method == ComplexStep {
		if _, ok := d.kernel.(ComplexKernel); !ok {
			return fmt.Errorf("discipline %s: complex step requires a complex-capable kernel", d.name)
		}
	}
	if eps <= 0 {
		return fmt.Errorf("discipline %s: approximation step must be positive, got %g", d.name, eps)
	}
	d.method = method
	d.eps = eps
	d.policy = DiffAlways
	return nil
}

// LoadCache restores the cache from a durable store.
func (d *Discipline) LoadCache(store cache.Store) error {
	return d.cache.LoadFromStore(store)
}

// SaveCache persists the cache to a durable store.
func (d *Discipline) SaveCache(store cache.Store) error {
	return d.cache.SaveToStore(store)
}

// sanitize merges caller-given values over the stored defaults (caller wins)
// and verifies every declared input variable.
func (d *Discipline) sanitize(inputs core.Values) error {
	d.values = make(core.Values)
	d.values.Update(d.DefaultInputs())
	d.values.Update(core.CopyValues(d.inputVars, inputs))
	if err := core.VerifyValues(d.inputVars, d.values); err != nil {
		d.log.Error("input verification failed", zap.String("discipline", d.name), zap.Error(err))
		return fmt.Errorf("discipline %s: %w", d.name, err)
	}
	return nil
}

// Evaluate executes the discipline for the given inputs, falling back to
// stored defaults for omitted variables. Outputs are cached and the inputs
// become the new defaults, except while a derivative-approximation sweep is
// running.
func (d *Discipline) Evaluate(inputs core.Values) (core.Values, error) {
	d.values, d.jac = nil, nil
	if err := d.sanitize(inputs); err != nil {
		return nil, err
	}

	cached, _ := d.cache.Load(d.values)
	hit := cached != nil
	if hit {
		d.values.Update(cached)
	} else {
		out, err := d.kernel.Evaluate(d.InputValues())
		if err != nil {
			return nil, fmt.Errorf("discipline %s: evaluate: %w", d.name, err)
		}
		d.values.Update(out)
	}

	if err := core.VerifyValues(d.outputVars, d.values); err != nil {
		d.log.Error("output verification failed", zap.String("discipline", d.name), zap.Error(err))
		return nil, fmt.Errorf("discipline %s: %w", d.name, err)
	}

	if !hit {
		d.nEval++
	}
	if !d.approximating {
		d.AddDefaultInputs(d.values)
		if !hit {
			d.cache.Add(d.values, d.values, nil)
		}
	}
	return d.OutputValues(), nil
}

// Differentiate computes the partial derivatives of the tracked outputs
// w.r.t. the tracked inputs at the given point. Non-analytic methods (and
// the always policy) evaluate the discipline first with the same inputs.
func (d *Discipline) Differentiate(inputs core.Values) (core.Jac, error) {
	d.values, d.jac = nil, nil

	policy := d.policy
	if d.method != Analytic {
		policy = DiffAlways
	}

	var baseOutputs core.Values
	if policy == DiffAlways {
		out, err := d.Evaluate(inputs)
		if err != nil {
			return nil, err
		}
		baseOutputs = out
	} else if err := d.sanitize(inputs); err != nil {
		return nil, err
	}

	_, cached := d.cache.Load(d.values)
	hit := cached != nil
	if hit {
		d.jac = cached
	} else {
		jac := core.NewJac(d.diffInputs, d.diffOutputs)
		if d.method == Analytic {
			k, ok := d.kernel.(AnalyticKernel)
			if !ok {
				return nil, fmt.Errorf("discipline %s: kernel does not implement analytic differentiation", d.name)
			}
			partial, err := k.Differentiate(d.InputValues(), d.OutputValues())
			if err != nil {
				return nil, fmt.Errorf("discipline %s: differentiate: %w", d.name, err)
			}
			jac.Update(partial)
		} else if err := d.approximateJac(jac, baseOutputs); err != nil {
			return nil, err
		}
		d.jac = jac
	}

	if err := core.VerifyJac(d.diffInputs, d.diffOutputs, d.jac); err != nil {
		d.log.Error("jacobian verification failed", zap.String("discipline", d.name), zap.Error(err))
		return nil, fmt.Errorf("discipline %s: %w", d.name, err)
	}

	if !hit {
		d.nDiff++
		d.cache.Add(d.values, nil, d.jac)
	}
	return core.CopyJac(d.diffInputs, d.diffOutputs, d.jac), nil
}
