package polydiff_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	polydiff "github.com/mwhitt87/polydiff"
)

// TestSimplify_Idempotent verifies simplify(simplify(t)) == simplify(t) by
// structural equality across a spread of tree shapes.
func TestSimplify_Idempotent(t *testing.T) {
	y := polydiff.Var{Name: "y", Power: 1}
	trees := map[string]polydiff.Entity{
		"bare constant":     polydiff.C(7),
		"incidental vars":   polydiff.CV(2, polydiff.Var{Name: "z", Power: 2}, y, polydiff.Var{Name: "z", Power: 1}),
		"bare variable":     polydiff.V("x", 4),
		"zero power":        polydiff.V("x", 0),
		"like-term sum":     polydiff.SumOf(polydiff.V("x", 2), polydiff.V("x", 2), polydiff.C(1), polydiff.C(2)),
		"constant product":  polydiff.ProductOf(polydiff.C(2), polydiff.C(3)),
		"variable product":  polydiff.ProductOf(polydiff.V("x", 3), polydiff.V("x", 2)),
		"zero product":      polydiff.ProductOf(polydiff.C(0), polydiff.V("x", 3)),
		"nested sum":        polydiff.SumOf(polydiff.ProductOf(polydiff.V("x", 1), polydiff.V("x", 1)), polydiff.V("x", 2)),
		"product over sums": polydiff.ProductOf(polydiff.SumOf(polydiff.V("x", 1), polydiff.C(1)), polydiff.C(2)),
	}
	for name, tree := range trees {
		t.Run(name, func(t *testing.T) {
			once, err := tree.Simplify()
			require.NoError(t, err)
			twice, err := once.Simplify()
			require.NoError(t, err)
			assert.True(t, once.Equal(twice),
				"simplify not idempotent: %s vs %s", once.Render(), twice.Render())
		})
	}
}

// TestSum_MergeSoundness verifies that merging two like constants drops the
// term count by exactly one and sums the values.
func TestSum_MergeSoundness(t *testing.T) {
	vars := []polydiff.Var{{Name: "y", Power: 2}, {Name: "z", Power: 1}}
	a := polydiff.CV(2.5, vars...)
	b := polydiff.CV(4, vars...)

	s, err := polydiff.SumOf(a, b).Simplify()
	require.NoError(t, err)
	sum := s.(*polydiff.Sum)
	require.Len(t, sum.Terms, 1, "like constants must merge into one term")

	merged, ok := sum.Terms[0].(*polydiff.Constant)
	require.True(t, ok, "merged term must be a constant")
	assert.Equal(t, 6.5, merged.Value, "merged value must be the sum of the operands")
}

// TestZeroAbsorption verifies a product with a zero operand collapses so
// both operands render as zero.
func TestZeroAbsorption(t *testing.T) {
	cases := []polydiff.Entity{
		polydiff.ProductOf(polydiff.C(0), polydiff.V("x", 3)),
		polydiff.ProductOf(polydiff.V("x", 3), polydiff.C(0)),
		polydiff.ProductOf(polydiff.ProductOf(polydiff.C(0), polydiff.C(5)), polydiff.V("x", 1)),
	}
	for _, tree := range cases {
		s, err := tree.Simplify()
		require.NoError(t, err)
		p, ok := s.(*polydiff.Product)
		require.True(t, ok)
		assert.Equal(t, "0", p.First.Render())
		assert.Equal(t, "0", p.Second.Render())
	}
}

// TestConstant_Add_Incompatible verifies that adding constants with
// differing incidental sets fails with a typed error instead of producing
// a meaningless result.
func TestConstant_Add_Incompatible(t *testing.T) {
	a := polydiff.CV(2, polydiff.Var{Name: "y", Power: 1})
	b := polydiff.CV(3, polydiff.Var{Name: "z", Power: 1})

	_, err := a.Add(b)
	require.Error(t, err)
	var incompatible *polydiff.IncompatibleTermsError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, polydiff.KindConstant, incompatible.Kind)
}

// TestVariable_Add_Incompatible verifies the same for variable terms with
// differing exponents.
func TestVariable_Add_Incompatible(t *testing.T) {
	_, err := polydiff.V("x", 2).Add(polydiff.V("x", 3))
	var incompatible *polydiff.IncompatibleTermsError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, polydiff.KindVariable, incompatible.Kind)
}

// TestVariable_Add_RequiresSimplifiedOperands verifies that merging bare
// variable terms (no trailing constant yet) reports a kind mismatch rather
// than fabricating a coefficient.
func TestVariable_Add_RequiresSimplifiedOperands(t *testing.T) {
	_, err := polydiff.V("x", 2).Add(polydiff.V("x", 2))
	var mismatch *polydiff.KindMismatchError
	require.ErrorAs(t, err, &mismatch)
}

// TestVariableMismatch verifies the single-free-variable rule: a nested
// variable coefficient with a foreign name is an explicit error, not an
// abort.
func TestVariableMismatch(t *testing.T) {
	v := &polydiff.Variable{
		Active: polydiff.Var{Name: "x", Power: 2},
		Coeffs: []polydiff.Entity{polydiff.V("y", 1)},
	}

	_, err := v.Simplify()
	var mismatch *polydiff.VariableMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "x", mismatch.Want)
	assert.Equal(t, "y", mismatch.Got)

	// The error propagates through composite simplification and Diff.
	_, err = polydiff.SumOf(v.Clone(), polydiff.C(1)).Simplify()
	assert.True(t, errors.As(err, &mismatch))
	_, err = polydiff.Diff(polydiff.ProductOf(v.Clone(), polydiff.C(2)))
	assert.True(t, errors.As(err, &mismatch))
}

// TestFunctionCoefficients_AlwaysCompatible pins the documented
// over-approximation: function-kind coefficients never block a variable
// term merge.
func TestFunctionCoefficients_AlwaysCompatible(t *testing.T) {
	f1 := polydiff.SumOf(polydiff.V("x", 1), polydiff.C(1))
	f2 := polydiff.SumOf(polydiff.V("x", 1), polydiff.C(2))
	a := &polydiff.Variable{Active: polydiff.Var{Name: "x", Power: 2}, Coeffs: []polydiff.Entity{f1, polydiff.C(1)}}
	b := &polydiff.Variable{Active: polydiff.Var{Name: "x", Power: 2}, Coeffs: []polydiff.Entity{f2, polydiff.C(1)}}

	assert.True(t, a.CanMergeWith(b),
		"function coefficients are treated as always compatible")
}

// TestDiff_PowerRuleTable runs the power rule across a range of exponents.
func TestDiff_PowerRuleTable(t *testing.T) {
	cases := []struct {
		power int
		want  string
	}{
		{5, "5*x^4"},
		{3, "3*x^2"},
		{2, "2*x"},
		{1, "1"},
		{0, "0"},
		{-1, "-1*x^-2"},
	}
	for _, tc := range cases {
		d, err := polydiff.Diff(polydiff.V("x", tc.power))
		require.NoError(t, err, "power %d", tc.power)
		assert.Equal(t, tc.want, d.Render(), "d/dx(x^%d)", tc.power)
	}
}
