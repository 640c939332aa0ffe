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
package calculus

import (
	"testing"

	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/quantity"
	"github.com/heylang/go-heyvl/pkg/util/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parse a single-procedure program and return it with a transformer.
func setup(t *testing.T, text string) (*ir.Procedure, *Transformer) {
	t.Helper()
	//
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(text)))
	require.Nil(t, err)
	//
	proc := program.Procedures[0]
	//
	return proc, NewTransformer(proc, Config{Program: program})
}

func pre(t *testing.T, tf *Transformer, stmt ir.Stmt, post ir.ExprId) ir.ExprId {
	t.Helper()
	//
	result, err := tf.Pre(stmt, post)
	require.NoError(t, err)
	//
	return result
}

func TestPre_SkipIsIdentity(t *testing.T) {
	proc, tf := setup(t, `(proc p ((x EUReal)) wp (pre 1) (post x) (body (skip)))`)
	//
	assert.Equal(t, proc.Post, pre(t, tf, proc.Body, proc.Post))
}

func TestPre_SequenceComposes(t *testing.T) {
	// Transforming a sequence must equal transforming its parts in turn.
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post x)
			(body (assign x (+ x 1)) (assign x (* x 2))))`)
	//
	seq := proc.Body.(*ir.Seq)
	inner := pre(t, tf, seq.Stmts[1], proc.Post)
	expected := pre(t, tf, seq.Stmts[0], inner)
	//
	assert.Equal(t, expected, pre(t, tf, proc.Body, proc.Post))
}

func TestPre_AssignSubstitutes(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post (+ x 1))
			(body (assign x (* x 2))))`)
	//
	arena := proc.Arena
	x := arena.Var("x", ir.SortEUReal)
	two := arena.Quant(quantity.FromUint64(2))
	expected := arena.Add(arena.Mul(x, two), arena.One())
	//
	assert.Equal(t, expected, pre(t, tf, proc.Body, proc.Post))
}

func TestPre_ProbChoiceIsConvexCombination(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post x)
			(body (prob 1/2 (assign x 1) (assign x 0))))`)
	//
	arena := proc.Arena
	half, qerr := quantity.FromString("1/2")
	require.NoError(t, qerr)
	//
	expected := arena.Add(arena.Mul(arena.Quant(half), arena.One()),
		arena.Mul(arena.Monus(arena.One(), arena.Quant(half)), arena.Zero()))
	assert.Equal(t, expected, pre(t, tf, proc.Body, proc.Post))
}

func TestPre_DemonTakesMin_AngelTakesMax(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post x)
			(body (demon (assign x 1) (assign x 2))))`)
	//
	arena := proc.Arena
	one := arena.One()
	two := arena.Quant(quantity.FromUint64(2))
	assert.Equal(t, arena.Min(one, two), pre(t, tf, proc.Body, proc.Post))
	//
	proc2, tf2 := setup(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post x)
			(body (angel (assign x 1) (assign x 2))))`)
	//
	arena2 := proc2.Arena
	assert.Equal(t, arena2.Max(arena2.One(), arena2.Quant(quantity.FromUint64(2))),
		pre(t, tf2, proc2.Body, proc2.Post))
}

func TestPre_AssertFailure(t *testing.T) {
	// A failing assert under wp yields infinity; under wlp and ert, zero.
	for _, tc := range []struct {
		direction string
		expected  func(arena *ir.ExprArena) ir.ExprId
	}{
		{"wp", func(arena *ir.ExprArena) ir.ExprId { return arena.Infinity() }},
		{"wlp", func(arena *ir.ExprArena) ir.ExprId { return arena.Zero() }},
		{"ert", func(arena *ir.ExprArena) ir.ExprId { return arena.Zero() }},
	} {
		proc, tf := setup(t, `(proc p () `+tc.direction+` (pre 1) (post 1) (body (assert false)))`)
		//
		assert.Equal(t, tc.expected(proc.Arena), pre(t, tf, proc.Body, proc.Post), tc.direction)
	}
}

func TestPre_AssumeFailure(t *testing.T) {
	// A failing assume is vacuous truth: infinity under wlp, zero
	// otherwise.
	for _, tc := range []struct {
		direction string
		expected  func(arena *ir.ExprArena) ir.ExprId
	}{
		{"wp", func(arena *ir.ExprArena) ir.ExprId { return arena.Zero() }},
		{"wlp", func(arena *ir.ExprArena) ir.ExprId { return arena.Infinity() }},
		{"ert", func(arena *ir.ExprArena) ir.ExprId { return arena.Zero() }},
	} {
		proc, tf := setup(t, `(proc p () `+tc.direction+` (pre 1) (post 1) (body (assume false)))`)
		//
		assert.Equal(t, tc.expected(proc.Arena), pre(t, tf, proc.Body, proc.Post), tc.direction)
	}
}

func TestPre_PassingCheckIsIdentity(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp (pre 1) (post x) (body (assert true) (assume true)))`)
	//
	assert.Equal(t, proc.Post, pre(t, tf, proc.Body, proc.Post))
}

func TestPre_TickCountsOnlyUnderErt(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((x EUReal)) ert (pre 1) (post x) (body (tick 3)))`)
	//
	arena := proc.Arena
	x := arena.Var("x", ir.SortEUReal)
	three := arena.Quant(quantity.FromUint64(3))
	assert.Equal(t, arena.Add(x, three), pre(t, tf, proc.Body, proc.Post))
	// Under wp the same statement is free.
	proc2, tf2 := setup(t, `
		(proc p ((x EUReal)) wp (pre 1) (post x) (body (tick 3)))`)
	//
	assert.Equal(t, proc2.Post, pre(t, tf2, proc2.Body, proc2.Post))
}

func TestPre_HavocIntroducesFreshVariable(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp (pre 1) (post (+ x 1)) (body (havoc x)))`)
	//
	result := pre(t, tf, proc.Body, proc.Post)
	//
	free := make(map[string]ir.Sort)
	proc.Arena.FreeVars(result, free)
	// The original x must be gone, replaced by a fresh instance.
	_, present := free["x"]
	assert.False(t, present)
	assert.Len(t, free, 1)
}

func TestPre_HavocResolutionRecorded(t *testing.T) {
	// Demonic and angelic havoc substitute the same fresh variable, but
	// must be told apart when the obligation is assembled.
	proc, tf := setup(t, `
		(proc p ((x EUReal)) wp (pre 1) (post x) (body (havoc x)))`)
	pre(t, tf, proc.Body, proc.Post)
	//
	require.Len(t, tf.Havocs(), 1)
	assert.Equal(t, ir.Param{Name: "x!1", Sort: ir.SortEUReal}, tf.Havocs()[0].Param)
	assert.False(t, tf.Havocs()[0].Angelic)
	//
	proc, tf = setup(t, `
		(proc p ((x EUReal)) wp (pre 1) (post x) (body (cohavoc x)))`)
	pre(t, tf, proc.Body, proc.Post)
	//
	require.Len(t, tf.Havocs(), 1)
	assert.True(t, tf.Havocs()[0].Angelic)
}

func TestPre_LoopUsesInvariant(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((c Bool) (x EUReal)) wp
			(pre 1) (post x)
			(body (while c (invariant (+ x 1)) (assign x (+ x 1)))))`)
	//
	arena := proc.Arena
	invariant := arena.Add(arena.Var("x", ir.SortEUReal), arena.One())
	// The loop's pre-expectation is the invariant itself.
	assert.Equal(t, invariant, pre(t, tf, proc.Body, proc.Post))
	// One summary, carrying guard, body pre and exit.
	require.Len(t, tf.Loops(), 1)
	summary := tf.Loops()[0]
	assert.Equal(t, invariant, summary.Invariant)
	assert.Equal(t, arena.Var("c", ir.SortBool), summary.Cond)
	assert.Equal(t, proc.Post, summary.Exit)
	// Body transformed against the invariant: (x+1)[x/x+1] = x+2.
	expected := arena.Add(arena.Add(arena.Var("x", ir.SortEUReal), arena.One()), arena.One())
	assert.Equal(t, expected, summary.BodyPre)
}

func TestPre_LoopWithoutInvariantRejected(t *testing.T) {
	proc, tf := setup(t, `
		(proc p ((c Bool)) wp (pre 1) (post 1) (body (while c (skip))))`)
	//
	_, err := tf.Pre(proc.Body, proc.Post)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invariant")
}

func TestPre_CallInstantiatesContract(t *testing.T) {
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(`
		(proc double ((y EUReal)) wp
			(pre (* 2 y))
			(post 1)
			(body (skip)))
		(proc caller ((z EUReal)) wp
			(pre (* 2 z))
			(post 1)
			(body (call double z)))`)))
	require.Nil(t, err)
	//
	caller := program.Procedure("caller")
	tf := NewTransformer(caller, Config{Program: program})
	//
	result, perr := tf.Pre(caller.Body, caller.Post)
	require.NoError(t, perr)
	// The callee's pre-expectation, with z for y.
	arena := caller.Arena
	expected := arena.Mul(arena.Quant(quantity.FromUint64(2)), arena.Var("z", ir.SortEUReal))
	assert.Equal(t, expected, result)
}

func TestPre_CallContractMismatchRejected(t *testing.T) {
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(`
		(proc callee ((y EUReal)) wp
			(pre y)
			(post (+ y 1))
			(body (skip)))
		(proc caller ((z EUReal)) wp
			(pre z)
			(post z)
			(body (call callee z)))`)))
	require.Nil(t, err)
	//
	caller := program.Procedure("caller")
	tf := NewTransformer(caller, Config{Program: program})
	//
	_, perr := tf.Pre(caller.Body, caller.Post)
	require.Error(t, perr)
}

func TestPre_CallDirectionMismatchRejected(t *testing.T) {
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(`
		(proc callee () wlp (pre 1) (post 1) (body (skip)))
		(proc caller () wp (pre 1) (post 1) (body (call callee)))`)))
	require.Nil(t, err)
	//
	caller := program.Procedure("caller")
	tf := NewTransformer(caller, Config{Program: program})
	//
	_, perr := tf.Pre(caller.Body, caller.Post)
	require.Error(t, perr)
}

func TestPre_ToggledGuardsChecks(t *testing.T) {
	proc, _ := setup(t, `
		(proc p ((c Bool) (x EUReal)) wp (pre 1) (post x) (body (assert c)))`)
	//
	tf := NewTransformer(proc, Config{Toggled: true})
	result := pre(t, tf, proc.Body, proc.Post)
	// The toggle variable must appear free in the transformed formula.
	free := make(map[string]ir.Sort)
	proc.Arena.FreeVars(result, free)
	assert.Contains(t, free, ToggleVar(0))
}

func TestSteps_RecordedPerStatement(t *testing.T) {
	proc, _ := setup(t, `
		(proc p ((x EUReal)) wp (pre 1) (post x) (body (assign x 1) (skip)))`)
	//
	tf := NewTransformer(proc, Config{Explain: ExplainSteps})
	pre(t, tf, proc.Body, proc.Post)
	//
	assert.NotEmpty(t, tf.Steps())
}
