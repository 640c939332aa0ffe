// Copyright the go-heyvl authors
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package smt

import (
	"strings"
	"testing"

	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/quantity"
	"github.com/heylang/go-heyvl/pkg/vcgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encode a formula over the given closure into script text.
func encode(arena *ir.ExprArena, formula ir.ExprId, vars []ir.Param, toggles int, active []bool) string {
	ob := vcgen.Obligation{Name: "test", Formula: formula, Vars: vars}
	//
	return EncodeObligation(arena, ob, toggles, active).Text()
}

func TestEncode_ScalarDeclarations(t *testing.T) {
	arena := ir.NewArena()
	n := arena.Var("n", ir.SortInt)
	formula := arena.Le(n, arena.Int64(3))
	//
	text := encode(arena, formula, []ir.Param{{Name: "n", Sort: ir.SortInt}}, 0, nil)
	//
	assert.Contains(t, text, "(declare-const n Int)")
	assert.Contains(t, text, "(assert (not (<= n 3)))")
}

func TestEncode_QuantityDeclaresComponentAndTag(t *testing.T) {
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	formula := arena.Le(x, arena.One())
	//
	text := encode(arena, formula, []ir.Param{{Name: "x", Sort: ir.SortEUReal}}, 0, nil)
	//
	assert.Contains(t, text, "(declare-const x Real)")
	assert.Contains(t, text, "(declare-const x!inf Bool)")
	// Declared quantities carry the non-negativity side constraint.
	assert.Contains(t, text, "(assert (>= x 0.0))")
}

func TestEncode_ComparisonGuardsOnTag(t *testing.T) {
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	y := arena.Var("y", ir.SortEUReal)
	formula := arena.Le(x, y)
	//
	vars := []ir.Param{{Name: "x", Sort: ir.SortEUReal}, {Name: "y", Sort: ir.SortEUReal}}
	text := encode(arena, formula, vars, 0, nil)
	// x <= y holds when y is infinite, or both finite and components
	// compare.
	assert.Contains(t, text, "(or y!inf (and (not x!inf) (<= x y)))")
}

func TestEncode_InfinityLiteral(t *testing.T) {
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	formula := arena.Le(arena.Infinity(), x)
	//
	text := encode(arena, formula, []ir.Param{{Name: "x", Sort: ir.SortEUReal}}, 0, nil)
	// Infinity <= x reduces to x being infinite.
	assert.Contains(t, text, "(or x!inf (and (not true)")
}

func TestEncode_MultiplicationTagRule(t *testing.T) {
	// The infinite tag of a product requires the other operand non-zero,
	// making infinity times zero exactly zero.
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	y := arena.Var("y", ir.SortEUReal)
	formula := arena.Le(arena.Mul(x, y), arena.Zero())
	//
	vars := []ir.Param{{Name: "x", Sort: ir.SortEUReal}, {Name: "y", Sort: ir.SortEUReal}}
	text := encode(arena, formula, vars, 0, nil)
	//
	assert.Contains(t, text, "(and x!inf (or y!inf (distinct y 0.0)))")
	assert.Contains(t, text, "(and y!inf (or x!inf (distinct x 0.0)))")
	// Components of possibly infinite operands are guarded to zero.
	assert.Contains(t, text, "(ite x!inf 0.0 x)")
}

func TestEncode_MonusSaturates(t *testing.T) {
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	y := arena.Var("y", ir.SortEUReal)
	formula := arena.Le(arena.Monus(x, y), x)
	//
	vars := []ir.Param{{Name: "x", Sort: ir.SortEUReal}, {Name: "y", Sort: ir.SortEUReal}}
	text := encode(arena, formula, vars, 0, nil)
	// The component saturates at zero, and an infinite subtrahend forces
	// it there outright: under y!inf the guard on y alone would leave
	// x's component standing.
	assert.Contains(t, text,
		"(ite (or y!inf (<= (ite x!inf 0.0 x) (ite y!inf 0.0 y))) 0.0")
	// Infinite only when the minuend alone is infinite.
	assert.Contains(t, text, "(and x!inf (not y!inf))")
}

func TestEncode_MonusInfiniteSubtrahendIsZero(t *testing.T) {
	arena := ir.NewArena()
	y := arena.Var("y", ir.SortEUReal)
	formula := arena.Le(arena.One(), arena.Monus(arena.One(), y))
	//
	text := encode(arena, formula, []ir.Param{{Name: "y", Sort: ir.SortEUReal}}, 0, nil)
	// 1 monus y must collapse to zero whenever y is infinite, so the
	// component is conditioned on y's tag, not just the comparison.
	assert.Contains(t, text, "(ite (or y!inf (<= 1.0 (ite y!inf 0.0 y))) 0.0 (- 1.0 (ite y!inf 0.0 y)))")
	// And the result is never tagged infinite.
	assert.Contains(t, text, "(and false (not y!inf))")
}

func TestEncode_QuantifierRestrictsDomain(t *testing.T) {
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	y := arena.Var("y", ir.SortEUReal)
	closure := []ir.Param{{Name: "x", Sort: ir.SortEUReal}}
	// A quantity binder splits like a declaration, but its non-negativity
	// must be phrased inside the body, relative to the polarity.
	forall := arena.Forall(ir.Param{Name: "y", Sort: ir.SortEUReal}, arena.Le(y, x))
	text := encode(arena, forall, closure, 0, nil)
	assert.Contains(t, text, "(forall ((y Real) (y!inf Bool)) (=> (>= y 0.0)")
	//
	exists := arena.Exists(ir.Param{Name: "y", Sort: ir.SortEUReal}, arena.Le(x, y))
	text = encode(arena, exists, closure, 0, nil)
	assert.Contains(t, text, "(exists ((y Real) (y!inf Bool)) (and (>= y 0.0)")
}

func TestEncode_RationalLiterals(t *testing.T) {
	arena := ir.NewArena()
	x := arena.Var("x", ir.SortEUReal)
	half, err := quantity.FromString("1/2")
	require.NoError(t, err)
	//
	formula := arena.Le(x, arena.Quant(half))
	text := encode(arena, formula, []ir.Param{{Name: "x", Sort: ir.SortEUReal}}, 0, nil)
	//
	assert.Contains(t, text, "(/ 1.0 2.0)")
}

func TestEncode_EmbeddedIntegersConvert(t *testing.T) {
	arena := ir.NewArena()
	n := arena.Var("n", ir.SortInt)
	formula := arena.Le(arena.Embed(n), arena.One())
	//
	text := encode(arena, formula, []ir.Param{{Name: "n", Sort: ir.SortInt}}, 0, nil)
	//
	assert.Contains(t, text, "(to_real n)")
}

func TestEncode_TogglePinning(t *testing.T) {
	arena := ir.NewArena()
	formula := arena.Var("t!0", ir.SortBool)
	// All toggles active by default.
	text := encode(arena, formula, nil, 2, nil)
	assert.Contains(t, text, "(declare-const t!0 Bool)")
	assert.Contains(t, text, "(assert t!0)")
	assert.Contains(t, text, "(assert t!1)")
	// Deactivated toggles are pinned false.
	text = encode(arena, formula, nil, 2, []bool{true, false})
	assert.Contains(t, text, "(assert t!0)")
	assert.Contains(t, text, "(assert (not t!1))")
}

func TestEncode_DeterministicText(t *testing.T) {
	// Identical obligations must render identical scripts, since the
	// orchestrator's cache is keyed on the text.
	build := func() string {
		arena := ir.NewArena()
		x := arena.Var("x", ir.SortEUReal)
		y := arena.Var("y", ir.SortEUReal)
		formula := arena.Le(arena.Add(x, y), arena.Mul(x, y))
		vars := []ir.Param{{Name: "x", Sort: ir.SortEUReal}, {Name: "y", Sort: ir.SortEUReal}}
		//
		return encode(arena, formula, vars, 0, nil)
	}
	//
	assert.Equal(t, build(), build())
}

func TestScript_TextOnePerLine(t *testing.T) {
	arena := ir.NewArena()
	formula := arena.Bool(false)
	text := encode(arena, formula, nil, 0, nil)
	//
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		assert.True(t, strings.HasPrefix(line, "("))
		assert.True(t, strings.HasSuffix(line, ")"))
	}
}
