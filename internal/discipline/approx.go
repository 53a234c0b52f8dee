package discipline

import (
	"fmt"
	"math"

	"github.com/san-kum/mdsolve/internal/core"
)

// approximateJac fills jac by finite differencing or the complex step.
// The working value set is restored to the base point afterwards, so the
// sweep leaves no trace beyond the evaluation counters.
func (d *Discipline) approximateJac(jac core.Jac, baseOutputs core.Values) error {
	d.approximating = true
	defer func() { d.approximating = false }()

	baseInputs := d.InputValues()
	saved := d.values.Clone()

	var err error
	switch d.method {
	case ForwardDifference:
		err = d.forwardDifference(jac, baseInputs, baseOutputs)
	case CentralDifference:
		err = d.centralDifference(jac, baseInputs)
	case ComplexStep:
		err = d.complexStep(jac, baseInputs)
	default:
		err = fmt.Errorf("discipline %s: unknown differentiation method: %s", d.name, d.method)
	}

	d.values = saved
	return err
}

// relStep scales the base step by the perturbed component's magnitude, so
// large and small inputs see comparable relative perturbations.
func (d *Discipline) relStep(x float64) float64 {
	return d.eps * (1 + math.Abs(x))
}

func (d *Discipline) forwardDifference(jac core.Jac, inputs, outputs core.Values) error {
	for _, iv := range d.diffInputs {
		for i := 0; i < iv.Size; i++ {
			x := inputs[iv.Name][i]
			delta := d.relStep(x)

			pert := inputs.Clone()
			pert[iv.Name][i] = x + delta
			outP, err := d.Evaluate(pert)
			if err != nil {
				return err
			}

			for _, ov := range d.diffOutputs {
				block := jac.Block(ov.Name, iv.Name)
				for r := 0; r < ov.Size; r++ {
					block.Set(r, i, (outP[ov.Name][r]-outputs[ov.Name][r])/delta)
				}
			}
		}
	}
	return nil
}

func (d *Discipline) centralDifference(jac core.Jac, inputs core.Values) error {
	for _, iv := range d.diffInputs {
		for i := 0; i < iv.Size; i++ {
			x := inputs[iv.Name][i]
			delta := d.relStep(x)

			pert := inputs.Clone()
			pert[iv.Name][i] = x + delta
			outPlus, err := d.Evaluate(pert)
			if err != nil {
				return err
			}

			pert[iv.Name][i] = x - delta
			outMinus, err := d.Evaluate(pert)
			if err != nil {
				return err
			}

			for _, ov := range d.diffOutputs {
				block := jac.Block(ov.Name, iv.Name)
				for r := 0; r < ov.Size; r++ {
					block.Set(r, i, (outPlus[ov.Name][r]-outMinus[ov.Name][r])/(2*delta))
				}
			}
		}
	}
	return nil
}

func (d *Discipline) complexStep(jac core.Jac, inputs core.Values) error {
	kernel, ok := d.kernel.(ComplexKernel)
	if !ok {
		return fmt.Errorf("discipline %s: complex step requires a complex-capable kernel", d.name)
	}

	base := inputs.Complex()
	for _, iv := range d.diffInputs {
		for i := 0; i < iv.Size; i++ {
			pert := base.Clone()
			pert[iv.Name][i] += complex(0, d.eps)

			outP, err := kernel.EvaluateComplex(pert)
			if err != nil {
				return fmt.Errorf("discipline %s: complex evaluate: %w", d.name, err)
			}
			for _, ov := range d.diffOutputs {
				got, ok := outP[ov.Name]
				if !ok || len(got) != ov.Size {
					return fmt.Errorf("discipline %s: %w", d.name,
						&core.ValueError{Variable: ov.Name, Reason: "missing or mis-sized complex output"})
				}
				block := jac.Block(ov.Name, iv.Name)
				for r := 0; r < ov.Size; r++ {
					block.Set(r, i, imag(got[r])/d.eps)
				}
			}
		}
	}
	return nil
}
