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
package vcgen

import (
	"testing"

	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/util/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, text string, opts Options) *Assembly {
	t.Helper()
	//
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(text)))
	require.Nil(t, err)
	//
	assembly, aerr := Assemble(program, program.Procedures[0], opts)
	require.NoError(t, aerr)
	//
	return assembly
}

func TestAssemble_StraightLineYieldsOneContract(t *testing.T) {
	assembly := assemble(t, `
		(proc p ((x EUReal)) wp (pre (+ x 1)) (post (+ x 1)) (body (skip)))`, Options{})
	//
	require.Len(t, assembly.Obligations, 1)
	ob := assembly.Obligations[0]
	assert.Equal(t, KindContract, ob.Kind)
	// pre >= computed, i.e. computed <= pre.  Both sides are x+1 here, so
	// the comparison folds to truth.
	arena := assembly.Arena
	assert.Equal(t, arena.Bool(true), ob.Formula)
}

func TestAssemble_ContractDirection(t *testing.T) {
	// Under wp the declared pre must dominate the computed one.
	wp := assemble(t, `
		(proc p ((x EUReal)) wp (pre 1) (post x) (body (skip)))`, Options{})
	//
	arena := wp.Arena
	x := arena.Var("x", ir.SortEUReal)
	assert.Equal(t, arena.Le(x, arena.One()), wp.Obligations[0].Formula)
	// Under wlp the comparison flips.
	wlp := assemble(t, `
		(proc p ((x EUReal)) wlp (pre 1) (post x) (body (skip)))`, Options{})
	//
	arena = wlp.Arena
	x = arena.Var("x", ir.SortEUReal)
	assert.Equal(t, arena.Le(arena.One(), x), wlp.Obligations[0].Formula)
}

func TestAssemble_LoopYieldsThreeObligations(t *testing.T) {
	assembly := assemble(t, `
		(proc p ((c Bool) (x EUReal)) wp
			(pre (+ x 1)) (post x)
			(body (while c (invariant (+ x 1)) (assign x (+ x 1)))))`, Options{})
	//
	require.Len(t, assembly.Obligations, 3)
	assert.Equal(t, KindMaintenance, assembly.Obligations[0].Kind)
	assert.Equal(t, KindSufficiency, assembly.Obligations[1].Kind)
	assert.Equal(t, KindContract, assembly.Obligations[2].Kind)
	// Loop obligations carry the loop's span, not the procedure's.
	assert.NotEqual(t, assembly.Obligations[0].Span, assembly.Obligations[2].Span)
	assert.Equal(t, assembly.Obligations[0].Span, assembly.Obligations[1].Span)
	// Names are unique.
	names := make(map[string]bool)
	for _, ob := range assembly.Obligations {
		names[ob.Name] = true
	}
	//
	assert.Len(t, names, 3)
}

func TestAssemble_HavocBindsByPolarity(t *testing.T) {
	// Under wp the computed pre sits on the dominated side, so a demonic
	// havoc (an infimum) binds existentially and an angelic one (a
	// supremum) universally.
	wp := assemble(t, `
		(proc p ((x EUReal)) wp (pre 0) (post x) (body (havoc x)))`, Options{})
	//
	arena := wp.Arena
	fresh := ir.Param{Name: "x!1", Sort: ir.SortEUReal}
	body := arena.Le(arena.Var("x!1", ir.SortEUReal), arena.Zero())
	assert.Equal(t, arena.Exists(fresh, body), wp.Obligations[0].Formula)
	assert.Empty(t, wp.Obligations[0].Vars)
	//
	co := assemble(t, `
		(proc p ((x EUReal)) wp (pre 0) (post x) (body (cohavoc x)))`, Options{})
	//
	arena = co.Arena
	body = arena.Le(arena.Var("x!1", ir.SortEUReal), arena.Zero())
	assert.Equal(t, arena.Forall(fresh, body), co.Obligations[0].Formula)
	// Under wlp the entailment flips, and the polarities flip with it.
	wlp := assemble(t, `
		(proc p ((x EUReal)) wlp (pre 0) (post x) (body (cohavoc x)))`, Options{})
	//
	arena = wlp.Arena
	body = arena.Le(arena.Zero(), arena.Var("x!1", ir.SortEUReal))
	assert.Equal(t, arena.Exists(fresh, body), wlp.Obligations[0].Formula)
}

func TestAssemble_ClosureIsSortedAndExcludesToggles(t *testing.T) {
	assembly := assemble(t, `
		(proc p ((z EUReal) (a Bool)) wp
			(pre (ite a z 0)) (post z)
			(body (assert a)))`, Options{Toggled: true})
	//
	ob := assembly.Obligations[0]
	require.Len(t, ob.Vars, 2)
	assert.Equal(t, "a", ob.Vars[0].Name)
	assert.Equal(t, "z", ob.Vars[1].Name)
	// Yet the toggle variable remains free in the formula itself.
	free := make(map[string]ir.Sort)
	assembly.Arena.FreeVars(ob.Formula, free)
	assert.Contains(t, free, "t!0")
}

func TestAssemble_StructuralErrorPropagates(t *testing.T) {
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(`
		(proc p ((c Bool)) wp (pre 1) (post 1) (body (while c (skip))))`)))
	require.Nil(t, err)
	//
	_, aerr := Assemble(program, program.Procedures[0], Options{})
	require.Error(t, aerr)
	//
	var serr *source.SyntaxError
	require.ErrorAs(t, aerr, &serr)
}
