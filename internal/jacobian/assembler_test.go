package jacobian

import (
	"math"
	"strings"
	"testing"

	"github.com/san-kum/mdsolve/internal/core"
)

// linearPartials builds the partials of the coupled system
//
//	y1 = 2*x1 + 0.5*y2
//	y2 = 3*x2 + 0.25*y1
//	f  = y1 + y2
//
// whose closed-form totals (det = 1 - 0.5*0.25 = 0.875) are
// df/dx1 = 2.5/0.875 and df/dx2 = 4.5/0.875.
func linearPartials() core.Jac {
	jac := core.Jac{}
	jac.SetScalar("y1", "x1", 2)
	jac.SetScalar("y1", "y2", 0.5)
	jac.SetScalar("y2", "x2", 3)
	jac.SetScalar("y2", "y1", 0.25)
	jac.SetScalar("f", "y1", 1)
	jac.SetScalar("f", "y2", 1)
	return jac
}

func scalars(names ...string) []core.Variable {
	vars := make([]core.Variable, len(names))
	for i, n := range names {
		vars[i] = core.Scalar(n)
	}
	return vars
}

func TestAssemblePartialLayout(t *testing.T) {
	var a Assembler
	inputs := scalars("x1", "y1", "y2")
	outputs := scalars("y1", "y2")

	m := a.AssemblePartial(inputs, outputs, linearPartials(), false)
	r, c := m.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("shape = (%d,%d), want (2,3)", r, c)
	}
	// Identity on the name match, supplied block elsewhere, zero for the
	// pair no partial was given for.
	if m.At(0, 1) != 1 {
		t.Errorf("dy1/dy1 = %g, want identity 1", m.At(0, 1))
	}
	if m.At(0, 2) != 0.5 {
		t.Errorf("dy1/dy2 = %g, want 0.5", m.At(0, 2))
	}
	if m.At(1, 0) != 0 {
		t.Errorf("dy2/dx1 = %g, want implicit zero", m.At(1, 0))
	}
}

func TestAssemblePartialResidualSign(t *testing.T) {
	var a Assembler
	couplings := scalars("y1", "y2")

	m := a.AssemblePartial(couplings, couplings, linearPartials(), true)
	if m.At(0, 0) != 1 || m.At(1, 1) != 1 {
		t.Error("residual diagonal must stay identity")
	}
	if m.At(0, 1) != -0.5 {
		t.Errorf("dR1/dy2 = %g, want -0.5", m.At(0, 1))
	}
	if m.At(1, 0) != -0.25 {
		t.Errorf("dR2/dy1 = %g, want -0.25", m.At(1, 0))
	}
}

func TestAssembleTotalDirect(t *testing.T) {
	var a Assembler
	inputs := scalars("x1", "x2")
	outputs := scalars("f")
	couplings := scalars("y1", "y2")

	total, err := a.AssembleTotal(inputs, outputs, couplings, linearPartials())
	if err != nil {
		t.Fatalf("AssembleTotal: %v", err)
	}

	const det = 0.875
	checkScalar(t, total, "f", "x1", 2.5/det)
	checkScalar(t, total, "f", "x2", 4.5/det)
}

func TestAssembleTotalAdjoint(t *testing.T) {
	var a Assembler
	// One input, three outputs: the adjoint path.
	inputs := scalars("x1")
	outputs := scalars("f", "y1", "y2")
	couplings := scalars("y1", "y2")

	partials := linearPartials()
	total, err := a.AssembleTotal(inputs, outputs, couplings, partials)
	if err != nil {
		t.Fatalf("AssembleTotal: %v", err)
	}

	const det = 0.875
	// With x2 absent, dy1/dx1 = 2/det and dy2/dx1 = 0.5/det.
	checkScalar(t, total, "f", "x1", 2.5/det)
	checkScalar(t, total, "y1", "x1", 2/det)
	checkScalar(t, total, "y2", "x1", 0.5/det)
}

func TestAssembleTotalDirectAdjointAgree(t *testing.T) {
	var a Assembler
	inputs := scalars("x1", "x2")
	couplings := scalars("y1", "y2")
	partials := linearPartials()

	// Two inputs, one output: direct.
	direct, err := a.AssembleTotal(inputs, scalars("f"), couplings, partials)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	// Two inputs, three outputs: adjoint. The extra outputs must not
	// change the totals of f.
	adjoint, err := a.AssembleTotal(inputs, scalars("f", "y1", "y2"), couplings, partials)
	if err != nil {
		t.Fatalf("adjoint: %v", err)
	}

	for _, in := range []string{"x1", "x2"} {
		d := direct.Block("f", in).At(0, 0)
		ad := adjoint.Block("f", in).At(0, 0)
		if math.Abs(d-ad) > 1e-12 {
			t.Errorf("df/d%s: direct %.15g vs adjoint %.15g", in, d, ad)
		}
	}
}

func TestAssembleTotalNoCouplings(t *testing.T) {
	var a Assembler
	partials := core.Jac{}
	partials.SetScalar("f", "x1", 7)

	total, err := a.AssembleTotal(scalars("x1"), scalars("f"), nil, partials)
	if err != nil {
		t.Fatalf("AssembleTotal: %v", err)
	}
	checkScalar(t, total, "f", "x1", 7)
}

func TestAssembleTotalSingularCoupling(t *testing.T) {
	var a Assembler
	// y1 = y2 and y2 = y1 makes dR/dY singular.
	partials := core.Jac{}
	partials.SetScalar("y1", "y2", 1)
	partials.SetScalar("y2", "y1", 1)
	partials.SetScalar("y1", "x1", 1)
	partials.SetScalar("f", "y1", 1)

	_, err := a.AssembleTotal(scalars("x1"), scalars("f"), scalars("y1", "y2"), partials)
	if err == nil {
		t.Fatal("singular coupling jacobian must fail")
	}
	if !strings.Contains(err.Error(), "singular") {
		t.Errorf("error should mention singularity, got %v", err)
	}
}

func checkScalar(t *testing.T, jac core.Jac, out, in string, want float64) {
	t.Helper()
	block := jac.Block(out, in)
	if block == nil {
		t.Fatalf("d%s/d%s missing", out, in)
	}
	if got := block.At(0, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("d%s/d%s = %.15g, want %.15g", out, in, got, want)
	}
}
