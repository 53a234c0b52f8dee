package discipline

import (
	"fmt"

	"github.com/san-kum/mdsolve/internal/core"
)

// Kernel is the user-supplied evaluation function of a discipline. Evaluate
// receives a copy of the sanitized input values and must return a value for
// every declared output variable.
type Kernel interface {
	Name() string
	Inputs() []core.Variable
	Outputs() []core.Variable
	Evaluate(inputs core.Values) (core.Values, error)
}

// AnalyticKernel is implemented by kernels that supply their own partial
// derivatives. Differentiate receives the input and output values at the
// point being differentiated and returns blocks for the (output, input)
// pairs it has a dependency on; omitted pairs are treated as zero.
type AnalyticKernel interface {
	Kernel
	Differentiate(inputs, outputs core.Values) (core.Jac, error)
}

// ComplexKernel is implemented by kernels that can evaluate at complex
// inputs, enabling complex-step differentiation.
type ComplexKernel interface {
	EvaluateComplex(inputs core.ComplexValues) (core.ComplexValues, error)
}

// FuncKernel adapts plain functions to the kernel interfaces.
type FuncKernel struct {
	name    string
	inputs  []core.Variable
	outputs []core.Variable
	eval    func(core.Values) (core.Values, error)
	diff    func(inputs, outputs core.Values) (core.Jac, error)
	ceval   func(core.ComplexValues) (core.ComplexValues, error)
}

// NewFunc builds a kernel from an evaluation function.
func NewFunc(name string, inputs, outputs []core.Variable,
	eval func(core.Values) (core.Values, error)) *FuncKernel {
	return &FuncKernel{name: name, inputs: inputs, outputs: outputs, eval: eval}
}

// WithAnalytic attaches an analytic differentiation function.
func (f *FuncKernel) WithAnalytic(diff func(inputs, outputs core.Values) (core.Jac, error)) *FuncKernel {
	f.diff = diff
	return f
}

// WithComplex attaches a complex evaluation function.
func (f *FuncKernel) WithComplex(ceval func(core.ComplexValues) (core.ComplexValues, error)) *FuncKernel {
	f.ceval = ceval
	return f
}

func (f *FuncKernel) Name() string             { return f.name }
func (f *FuncKernel) Inputs() []core.Variable  { return f.inputs }
func (f *FuncKernel) Outputs() []core.Variable { return f.outputs }

func (f *FuncKernel) Evaluate(inputs core.Values) (core.Values, error) {
	return f.eval(inputs)
}

func (f *FuncKernel) Differentiate(inputs, outputs core.Values) (core.Jac, error) {
	if f.diff == nil {
		return nil, fmt.Errorf("kernel %s: no analytic differentiation provided", f.name)
	}
	return f.diff(inputs, outputs)
}

func (f *FuncKernel) EvaluateComplex(inputs core.ComplexValues) (core.ComplexValues, error) {
	if f.ceval == nil {
		return nil, fmt.Errorf("kernel %s: no complex evaluation provided", f.name)
	}
	return f.ceval(inputs)
}
