// Package polydiff builds symbolic expression trees for single-variable
// polynomial expressions and differentiates them by structural rewriting.
//
// Design goals:
//   - Closed set of node kinds with direct type-switch dispatch
//   - Pure simplification: Simplify returns a new normalized tree
//   - Deterministic, idempotent collapse of like terms and exponents
//   - Explicit error values instead of aborts on invariant violations
package polydiff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ============================================================
// Kinds and the Entity interface
// ============================================================

// Kind is a cheap runtime tag composite nodes use to decide whether two
// children are structurally comparable. Sum and Product both report
// KindFunction; only Constant and Variable terms can ever merge.
type Kind int

const (
	KindConstant Kind = iota
	KindVariable
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindVariable:
		return "variable"
	case KindFunction:
		return "function"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Entity is the contract shared by all node kinds. Render and Equal are
// pure; Simplify and Diff return new trees and never mutate the receiver.
type Entity interface {
	// Render produces the canonical infix string for the node. There is no
	// parenthesization: nested sums inside products render ambiguously.
	Render() string

	// Simplify returns the canonical reduced form of the node as a new
	// tree, simplifying children first. Idempotent by structural equality.
	Simplify() (Entity, error)

	// Diff returns a new tree for the symbolic derivative with respect to
	// the single active variable.
	Diff() (Entity, error)

	Kind() Kind
	Clone() Entity
	Equal(other Entity) bool

	toJSON() map[string]any
}

// Diff simplifies e, differentiates it, and simplifies the result.
func Diff(e Entity) (Entity, error) {
	s, err := e.Simplify()
	if err != nil {
		return nil, err
	}
	d, err := s.Diff()
	if err != nil {
		return nil, err
	}
	return d.Simplify()
}

// Simplify returns the canonical reduced form of e.
func Simplify(e Entity) (Entity, error) { return e.Simplify() }

// Render returns the infix rendering of e.
func Render(e Entity) string { return e.Render() }

// ============================================================
// Errors
// ============================================================

// IncompatibleTermsError reports an attempt to add two terms that are not
// like terms (CanMergeWith is false).
type IncompatibleTermsError struct {
	Kind Kind
	A, B string
}

func (e *IncompatibleTermsError) Error() string {
	return fmt.Sprintf("polydiff: cannot add %s terms %q and %q: not like terms", e.Kind, e.A, e.B)
}

// VariableMismatchError reports a nested variable whose name differs from
// the active differentiation variable. The model supports exactly one free
// variable.
type VariableMismatchError struct {
	Want, Got string
}

func (e *VariableMismatchError) Error() string {
	return fmt.Sprintf("polydiff: nested variable %q differs from active variable %q", e.Got, e.Want)
}

// KindMismatchError reports that the simplifier produced a node kind the
// merge logic did not expect. This is an internal invariant failure, not a
// caller mistake.
type KindMismatchError struct {
	Op   string
	Want Kind
	Got  Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("polydiff: %s: expected %s node, got %s", e.Op, e.Want, e.Got)
}

// ============================================================
// Var — name + integer power
// ============================================================

// Var is a named variable raised to an integer power. Ordering is by name
// only; the power plays no part in canonical sorting.
type Var struct {
	Name  string
	Power int
}

func (v Var) String() string {
	if v.Power == 1 {
		return v.Name
	}
	return v.Name + "^" + strconv.Itoa(v.Power)
}

// normalizeVars groups variables by name summing powers, then sorts by
// name. Entries whose power sums to zero are kept, not pruned.
func normalizeVars(vars []Var) []Var {
	if len(vars) == 0 {
		return nil
	}
	powers := make(map[string]int, len(vars))
	for _, v := range vars {
		powers[v.Name] += v.Power
	}
	names := make([]string, 0, len(powers))
	for name := range powers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Var, len(names))
	for i, name := range names {
		out[i] = Var{Name: name, Power: powers[name]}
	}
	return out
}

func cloneVars(vars []Var) []Var {
	if len(vars) == 0 {
		return nil
	}
	out := make([]Var, len(vars))
	copy(out, vars)
	return out
}

func varsEqual(a, b []Var) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// renderIsZero reports whether a node renders as the literal zero. Zero
// detection compares the full rendering, so values like 0.5 do not
// false-positive.
func renderIsZero(e Entity) bool { return e.Render() == "0" }

// ============================================================
// Constant — numeric value with incidental variables
// ============================================================

// Constant is a numeric coefficient together with incidental variables:
// symbolic factors that are not the differentiation variable and behave as
// constants under Diff.
type Constant struct {
	Value float64
	Vars  []Var
}

// C builds a bare constant with no incidental variables.
func C(value float64) *Constant { return &Constant{Value: value} }

// CV builds a constant carrying incidental variables.
func CV(value float64, vars ...Var) *Constant {
	return &Constant{Value: value, Vars: vars}
}

func (c *Constant) Kind() Kind { return KindConstant }

func (c *Constant) Render() string {
	if c.Value == 0 {
		return "0"
	}
	parts := make([]string, 0, len(c.Vars)+1)
	parts = append(parts, formatValue(c.Value))
	for _, v := range c.Vars {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "*")
}

func (c *Constant) Simplify() (Entity, error) {
	return &Constant{Value: c.Value, Vars: normalizeVars(c.Vars)}, nil
}

// Diff of a constant is always zero: incidental variables are not the
// differentiation variable by construction.
func (c *Constant) Diff() (Entity, error) { return C(0), nil }

func (c *Constant) Clone() Entity {
	return &Constant{Value: c.Value, Vars: cloneVars(c.Vars)}
}

func (c *Constant) Equal(other Entity) bool {
	o, ok := other.(*Constant)
	return ok && c.Value == o.Value && varsEqual(c.Vars, o.Vars)
}

// CanMergeWith reports whether two constants are like terms: their
// incidental-variable lists are structurally equal after normalization.
func (c *Constant) CanMergeWith(o *Constant) bool {
	return varsEqual(normalizeVars(c.Vars), normalizeVars(o.Vars))
}

// Add sums the values of two like constants. The incidental variables are
// carried over from the receiver.
func (c *Constant) Add(o *Constant) (*Constant, error) {
	if !c.CanMergeWith(o) {
		return nil, &IncompatibleTermsError{Kind: KindConstant, A: c.Render(), B: o.Render()}
	}
	return &Constant{Value: c.Value + o.Value, Vars: cloneVars(c.Vars)}, nil
}

// Mul multiplies the values and combines the incidental-variable lists by
// concatenating and normalizing, so operands with differing lists are
// handled uniformly.
func (c *Constant) Mul(o *Constant) *Constant {
	merged := make([]Var, 0, len(c.Vars)+len(o.Vars))
	merged = append(merged, c.Vars...)
	merged = append(merged, o.Vars...)
	return &Constant{Value: c.Value * o.Value, Vars: normalizeVars(merged)}
}

// ============================================================
// Variable — the term being differentiated
// ============================================================

// Variable represents (coefficients product) * active^power, where the
// active variable is the single differentiation variable for the whole
// expression.
type Variable struct {
	Active Var
	Coeffs []Entity
}

// V builds a bare variable term with an empty coefficient list.
func V(name string, power int) *Variable {
	return &Variable{Active: Var{Name: name, Power: power}}
}

func (v *Variable) Kind() Kind { return KindVariable }

func (v *Variable) Render() string {
	parts := make([]string, 0, len(v.Coeffs)+1)
	for _, co := range v.Coeffs {
		r := co.Render()
		if r == "0" {
			return "0"
		}
		if r == "1" || r == "" {
			continue
		}
		parts = append(parts, r)
	}
	if v.Active.Power != 0 {
		parts = append(parts, v.Active.String())
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, "*")
}

// Simplify folds nested variable coefficients into the active exponent,
// accumulates constant coefficients into one trailing constant, and keeps
// function coefficients verbatim. A variable term whose power folds to
// zero with no function coefficients collapses to its constant.
func (v *Variable) Simplify() (Entity, error) {
	power := v.Active.Power
	var constProd *Constant
	var funcs []Entity

	foldConstant := func(c *Constant) {
		if constProd == nil {
			constProd = c
			return
		}
		constProd = constProd.Mul(c)
	}

	for _, co := range v.Coeffs {
		sc, err := co.Simplify()
		if err != nil {
			return nil, err
		}
		switch sc.Kind() {
		case KindConstant:
			foldConstant(sc.(*Constant))
		case KindVariable:
			nested := sc.(*Variable)
			if nested.Active.Name != v.Active.Name {
				return nil, &VariableMismatchError{Want: v.Active.Name, Got: nested.Active.Name}
			}
			power += nested.Active.Power
			for _, nc := range nested.Coeffs {
				switch nc.Kind() {
				case KindConstant:
					foldConstant(nc.(*Constant))
				case KindFunction:
					funcs = append(funcs, nc)
				default:
					// A simplified variable term holds only function
					// coefficients plus one trailing constant.
					return nil, &KindMismatchError{Op: "variable collapse", Want: KindFunction, Got: nc.Kind()}
				}
			}
		case KindFunction:
			funcs = append(funcs, sc)
		}
	}

	if constProd == nil {
		constProd = C(1)
	}
	sc, err := constProd.Simplify()
	if err != nil {
		return nil, err
	}
	folded := sc.(*Constant)

	if power == 0 && len(funcs) == 0 {
		return folded, nil
	}
	coeffs := make([]Entity, 0, len(funcs)+1)
	coeffs = append(coeffs, funcs...)
	coeffs = append(coeffs, folded)
	return &Variable{Active: Var{Name: v.Active.Name, Power: power}, Coeffs: coeffs}, nil
}

// Diff applies the power rule: the old power is prepended as a new
// constant coefficient and the active power drops by one.
func (v *Variable) Diff() (Entity, error) {
	coeffs := make([]Entity, 0, len(v.Coeffs)+1)
	coeffs = append(coeffs, C(float64(v.Active.Power)))
	for _, co := range v.Coeffs {
		coeffs = append(coeffs, co.Clone())
	}
	return &Variable{
		Active: Var{Name: v.Active.Name, Power: v.Active.Power - 1},
		Coeffs: coeffs,
	}, nil
}

func (v *Variable) Clone() Entity {
	coeffs := make([]Entity, len(v.Coeffs))
	for i, co := range v.Coeffs {
		coeffs[i] = co.Clone()
	}
	return &Variable{Active: v.Active, Coeffs: coeffs}
}

func (v *Variable) Equal(other Entity) bool {
	o, ok := other.(*Variable)
	if !ok || v.Active != o.Active || len(v.Coeffs) != len(o.Coeffs) {
		return false
	}
	for i := range v.Coeffs {
		if !v.Coeffs[i].Equal(o.Coeffs[i]) {
			return false
		}
	}
	return true
}

func nonConstantCoeffs(coeffs []Entity) []Entity {
	var out []Entity
	for _, co := range coeffs {
		if co.Kind() != KindConstant {
			out = append(out, co)
		}
	}
	return out
}

// CanMergeWith reports whether two variable terms are like terms: the
// active variable matches in name and power, and the non-constant
// coefficients are pairwise compatible. Constant coefficients never block
// a merge. Function coefficients of equal kind are always treated as
// compatible, a deliberate over-approximation.
func (v *Variable) CanMergeWith(o *Variable) bool {
	if v.Active != o.Active {
		return false
	}
	a := nonConstantCoeffs(v.Coeffs)
	b := nonConstantCoeffs(o.Coeffs)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind() != b[i].Kind() {
			return false
		}
		if a[i].Kind() == KindVariable {
			if !a[i].(*Variable).CanMergeWith(b[i].(*Variable)) {
				return false
			}
		}
	}
	return true
}

// trailingConstant returns the last coefficient, which after
// simplification always holds the folded constant.
func trailingConstant(v *Variable) (*Constant, error) {
	if len(v.Coeffs) == 0 {
		return nil, &KindMismatchError{Op: "variable merge", Want: KindConstant, Got: KindVariable}
	}
	last := v.Coeffs[len(v.Coeffs)-1]
	c, ok := last.(*Constant)
	if !ok {
		return nil, &KindMismatchError{Op: "variable merge", Want: KindConstant, Got: last.Kind()}
	}
	return c, nil
}

// Add merges two like variable terms by summing their trailing constant
// coefficients. All other coefficients are copied from the receiver.
func (v *Variable) Add(o *Variable) (*Variable, error) {
	if !v.CanMergeWith(o) {
		return nil, &IncompatibleTermsError{Kind: KindVariable, A: v.Render(), B: o.Render()}
	}
	ca, err := trailingConstant(v)
	if err != nil {
		return nil, err
	}
	cb, err := trailingConstant(o)
	if err != nil {
		return nil, err
	}
	sum, err := ca.Add(cb)
	if err != nil {
		return nil, err
	}
	coeffs := make([]Entity, 0, len(v.Coeffs))
	for _, co := range v.Coeffs[:len(v.Coeffs)-1] {
		coeffs = append(coeffs, co.Clone())
	}
	coeffs = append(coeffs, sum)
	return &Variable{Active: v.Active, Coeffs: coeffs}, nil
}

// Mul multiplies two variable terms: both active powers and any
// variable-kind coefficients accumulate into the result's power, constant
// coefficients accumulate into one trailing constant, and function
// coefficients are copied through unchanged.
func (v *Variable) Mul(o *Variable) (*Variable, error) {
	power := v.Active.Power + o.Active.Power
	prod := C(1)
	var funcs []Entity

	absorb := func(coeffs []Entity) error {
		for _, co := range coeffs {
			switch co.Kind() {
			case KindConstant:
				prod = prod.Mul(co.(*Constant))
			case KindVariable:
				nested := co.(*Variable)
				if nested.Active.Name != v.Active.Name {
					return &VariableMismatchError{Want: v.Active.Name, Got: nested.Active.Name}
				}
				power += nested.Active.Power
			case KindFunction:
				funcs = append(funcs, co.Clone())
			}
		}
		return nil
	}
	if err := absorb(v.Coeffs); err != nil {
		return nil, err
	}
	if err := absorb(o.Coeffs); err != nil {
		return nil, err
	}

	coeffs := make([]Entity, 0, len(funcs)+1)
	coeffs = append(coeffs, funcs...)
	coeffs = append(coeffs, prod)
	return &Variable{Active: Var{Name: v.Active.Name, Power: power}, Coeffs: coeffs}, nil
}

// ============================================================
// Sum — additive combination
// ============================================================

// Sum is an ordered list of sub-expressions combined additively.
type Sum struct {
	Terms []Entity
}

// SumOf builds a sum over the given terms.
func SumOf(terms ...Entity) *Sum { return &Sum{Terms: terms} }

func (s *Sum) Kind() Kind { return KindFunction }

func (s *Sum) Render() string {
	parts := make([]string, 0, len(s.Terms))
	for _, t := range s.Terms {
		r := t.Render()
		if r == "0" || r == "" {
			continue
		}
		parts = append(parts, r)
	}
	return strings.Join(parts, " + ")
}

// canMerge dispatches like-term comparison by concrete kind. Function
// nodes never merge with each other.
func canMerge(a, b Entity) bool {
	switch av := a.(type) {
	case *Constant:
		bv, ok := b.(*Constant)
		return ok && av.CanMergeWith(bv)
	case *Variable:
		bv, ok := b.(*Variable)
		return ok && av.CanMergeWith(bv)
	}
	return false
}

func mergeTerms(a, b Entity) (Entity, error) {
	switch av := a.(type) {
	case *Constant:
		bv, ok := b.(*Constant)
		if !ok {
			return nil, &KindMismatchError{Op: "sum merge", Want: KindConstant, Got: b.Kind()}
		}
		return av.Add(bv)
	case *Variable:
		bv, ok := b.(*Variable)
		if !ok {
			return nil, &KindMismatchError{Op: "sum merge", Want: KindVariable, Got: b.Kind()}
		}
		return av.Add(bv)
	}
	return nil, &KindMismatchError{Op: "sum merge", Want: KindConstant, Got: a.Kind()}
}

// Simplify collapses the sum to a fixed point: as long as any two entries
// are like terms, the first such pair (in scan order) is removed and its
// merged sum is reinserted at the front. Each merge reduces the term count
// by one, so the loop terminates. The resulting order is an artifact of
// merge order and front insertion, not a canonical sort.
func (s *Sum) Simplify() (Entity, error) {
	terms := make([]Entity, len(s.Terms))
	for i, t := range s.Terms {
		st, err := t.Simplify()
		if err != nil {
			return nil, err
		}
		terms[i] = st
	}

	for {
		i, j, found := findMergeable(terms)
		if !found {
			break
		}
		merged, err := mergeTerms(terms[i], terms[j])
		if err != nil {
			return nil, err
		}
		// Swap-remove i, then j. If the last element landed in slot i the
		// second removal retargets there.
		last := len(terms) - 1
		terms[i] = terms[last]
		terms = terms[:last]
		if j == len(terms) {
			j = i
		}
		last = len(terms) - 1
		terms[j] = terms[last]
		terms = terms[:last]

		terms = append([]Entity{merged}, terms...)
	}
	return &Sum{Terms: terms}, nil
}

func findMergeable(terms []Entity) (int, int, bool) {
	for i := range terms {
		for j := range terms {
			if i == j || terms[i].Kind() != terms[j].Kind() {
				continue
			}
			if canMerge(terms[i], terms[j]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// Diff applies the sum rule: the receiver is simplified, every term is
// differentiated independently, and the resulting sum is simplified again.
func (s *Sum) Diff() (Entity, error) {
	simp, err := s.Simplify()
	if err != nil {
		return nil, err
	}
	ss := simp.(*Sum)
	dterms := make([]Entity, len(ss.Terms))
	for i, t := range ss.Terms {
		dt, err := t.Diff()
		if err != nil {
			return nil, err
		}
		dterms[i] = dt
	}
	return (&Sum{Terms: dterms}).Simplify()
}

func (s *Sum) Clone() Entity {
	terms := make([]Entity, len(s.Terms))
	for i, t := range s.Terms {
		terms[i] = t.Clone()
	}
	return &Sum{Terms: terms}
}

func (s *Sum) Equal(other Entity) bool {
	o, ok := other.(*Sum)
	if !ok || len(s.Terms) != len(o.Terms) {
		return false
	}
	for i := range s.Terms {
		if !s.Terms[i].Equal(o.Terms[i]) {
			return false
		}
	}
	return true
}

// ============================================================
// Product — multiplicative combination
// ============================================================

// Product combines exactly two sub-expressions multiplicatively.
type Product struct {
	First, Second Entity
}

// ProductOf builds a product of two sub-expressions.
func ProductOf(first, second Entity) *Product {
	return &Product{First: first, Second: second}
}

func (p *Product) Kind() Kind { return KindFunction }

func (p *Product) Render() string {
	f := p.First.Render()
	s := p.Second.Render()
	if f == "0" || s == "0" {
		return "0"
	}
	if f == "1" {
		return s
	}
	if s == "1" {
		return f
	}
	return f + "*" + s
}

// Simplify folds operands of equal term kind into First, leaving the
// multiplicative identity in Second. If either operand is zero, both
// become the constant zero.
func (p *Product) Simplify() (Entity, error) {
	first, err := p.First.Simplify()
	if err != nil {
		return nil, err
	}
	second, err := p.Second.Simplify()
	if err != nil {
		return nil, err
	}

	if first.Kind() == second.Kind() {
		switch a := first.(type) {
		case *Constant:
			first = a.Mul(second.(*Constant))
			second = C(1)
		case *Variable:
			m, err := a.Mul(second.(*Variable))
			if err != nil {
				return nil, err
			}
			first = m
			second = C(1)
		}
		// Function operands have no kind-specific product; they are left
		// as they are.
	}

	if renderIsZero(first) || renderIsZero(second) {
		first, second = C(0), C(0)
	}
	return &Product{First: first, Second: second}, nil
}

// Diff applies the product rule on the simplified operands:
// first*d(second) + second*d(first), simplified.
func (p *Product) Diff() (Entity, error) {
	simp, err := p.Simplify()
	if err != nil {
		return nil, err
	}
	sp := simp.(*Product)
	dFirst, err := sp.First.Diff()
	if err != nil {
		return nil, err
	}
	dSecond, err := sp.Second.Diff()
	if err != nil {
		return nil, err
	}
	sum := &Sum{Terms: []Entity{
		&Product{First: sp.First.Clone(), Second: dSecond},
		&Product{First: sp.Second.Clone(), Second: dFirst},
	}}
	return sum.Simplify()
}

func (p *Product) Clone() Entity {
	return &Product{First: p.First.Clone(), Second: p.Second.Clone()}
}

func (p *Product) Equal(other Entity) bool {
	o, ok := other.(*Product)
	return ok && p.First.Equal(o.First) && p.Second.Equal(o.Second)
}
