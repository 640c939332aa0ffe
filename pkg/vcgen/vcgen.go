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

// Package vcgen decomposes a procedure's proof obligation into a sequence
// of independent closed formulas, one per solver query.  Splitting per loop
// keeps each query's quantifier structure shallow: a monolithic formula
// with nested fixpoints would be intractable for a first-order solver.
package vcgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heylang/go-heyvl/pkg/calculus"
	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/util/source"
)

// Kind distinguishes the three obligation shapes emitted per procedure.
type Kind uint8

const (
	// KindMaintenance states that a loop invariant propagates through one
	// body iteration.
	KindMaintenance Kind = iota
	// KindSufficiency states that a loop invariant, together with the loop
	// exit condition, establishes the continuation expectation.
	KindSufficiency
	// KindContract states that the declared pre-expectation dominates (or,
	// under wlp, is dominated by) the computed pre-expectation.
	KindContract
)

// String implementation for the Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindMaintenance:
		return "invariant maintenance"
	case KindSufficiency:
		return "invariant sufficiency"
	case KindContract:
		return "procedure contract"
	default:
		panic(fmt.Sprintf("unknown obligation kind: %d", k))
	}
}

// Obligation is one named, span-tagged closed formula, corresponding
// one-to-one with a solver query.
type Obligation struct {
	// Human-readable name, unique within the procedure.
	Name string
	Kind Kind
	// Span of the program element this obligation checks.
	Span source.Span
	// Calculus direction which produced this obligation.
	Direction ir.Direction
	// Boolean formula whose free variables are closed universally.
	Formula ir.ExprId
	// The universal closure, in deterministic order.
	Vars []ir.Param
}

// Assembly is the result of assembling one procedure: its obligations in
// dispatch order, plus any explain steps recorded along the way.
type Assembly struct {
	Proc        *ir.Procedure
	Arena       *ir.ExprArena
	Obligations []Obligation
	Steps       []calculus.Step
	// Whether formulas were instrumented with slicing toggles.
	Toggled bool
}

// Options configures obligation assembly.
type Options struct {
	// Explain controls recording of intermediate expectations.
	Explain calculus.ExplainMode
	// Toggled instruments assert/assume statements with slicing toggles.
	Toggled bool
}

// Assemble transforms a procedure and decomposes the result into
// independent obligations: one maintenance and one sufficiency obligation
// per annotated loop, then the final contract obligation.  Structural
// errors (e.g. a loop without an invariant) are returned as span-tagged
// errors and abort only this procedure.
func Assemble(program *ir.Program, proc *ir.Procedure, opts Options) (*Assembly, error) {
	arena := proc.Arena
	//
	transformer := calculus.NewTransformer(proc, calculus.Config{
		Program: program,
		Explain: opts.Explain,
		Toggled: opts.Toggled,
	})
	//
	computed, err := transformer.Pre(proc.Body, proc.Post)
	if err != nil {
		return nil, err
	}
	//
	assembly := &Assembly{
		Proc:    proc,
		Arena:   arena,
		Steps:   transformer.Steps(),
		Toggled: opts.Toggled,
	}
	havocs := transformer.Havocs()
	// Loop obligations first, in source order of discovery.
	for i, loop := range transformer.Loops() {
		span := proc.StmtSpans.Get(loop.Loop)
		//
		maintenance := arena.Implies(loop.Cond, entail(arena, proc.Direction, loop.Invariant, loop.BodyPre))
		sufficiency := arena.Implies(arena.Not(loop.Cond), entail(arena, proc.Direction, loop.Invariant, loop.Exit))
		//
		assembly.add(proc, KindMaintenance, i, span, maintenance, havocs)
		assembly.add(proc, KindSufficiency, i, span, sufficiency, havocs)
	}
	// Final contract obligation.
	contract := entail(arena, proc.Direction, proc.Pre, computed)
	assembly.add(proc, KindContract, -1, proc.Span, contract, havocs)
	//
	return assembly, nil
}

// entail renders "lhs dominates rhs" in the given calculus direction: under
// wp and ert the first operand must be at least the second, whilst wlp
// flips the comparison.
func entail(arena *ir.ExprArena, direction ir.Direction, lhs ir.ExprId, rhs ir.ExprId) ir.ExprId {
	if direction == ir.Wlp {
		return arena.Le(lhs, rhs)
	}
	//
	return arena.Le(rhs, lhs)
}

// add appends an obligation, binding its havoc'd variables and computing
// the universal closure of the rest.
func (p *Assembly) add(proc *ir.Procedure, kind Kind, index int, span source.Span,
	formula ir.ExprId, havocs []calculus.HavocVar) {
	name := kind.String()
	if index >= 0 {
		name = fmt.Sprintf("%s (loop %d)", name, index+1)
	}
	//
	formula = bindHavocs(p.Arena, proc.Direction, havocs, formula)
	//
	p.Obligations = append(p.Obligations, Obligation{
		Name:      name,
		Kind:      kind,
		Span:      span,
		Direction: proc.Direction,
		Formula:   formula,
		Vars:      closure(p.Arena, formula),
	})
}

// bindHavocs closes the fresh variables standing in for havoc'd values
// with explicit quantifiers.  Each variable denotes an extremum of the
// continuation expectation, so on the dominated side of the entailment a
// supremum needs a universal binder and an infimum an existential one;
// under wlp the entailment flips and the polarities swap with it.  The
// havoc list is innermost-first, so wrapping in order nests earlier
// statements further out, letting an inner witness depend on outer
// choices.
func bindHavocs(arena *ir.ExprArena, direction ir.Direction,
	havocs []calculus.HavocVar, formula ir.ExprId) ir.ExprId {
	if len(havocs) == 0 {
		return formula
	}
	//
	free := make(map[string]ir.Sort)
	arena.FreeVars(formula, free)
	//
	for _, hv := range havocs {
		if _, ok := free[hv.Name]; !ok {
			continue
		}
		//
		if (direction == ir.Wlp) == hv.Angelic {
			formula = arena.Exists(hv.Param, formula)
		} else {
			formula = arena.Forall(hv.Param, formula)
		}
	}
	//
	return formula
}

// closure computes the universal closure of a formula: every free
// variable, in lexicographic order for deterministic rendering.  Toggle
// variables are excluded, since the orchestrator pins their values
// per-query.
func closure(arena *ir.ExprArena, formula ir.ExprId) []ir.Param {
	free := make(map[string]ir.Sort)
	arena.FreeVars(formula, free)
	//
	vars := make([]ir.Param, 0, len(free))
	//
	for name, s := range free {
		if !strings.HasPrefix(name, "t!") {
			vars = append(vars, ir.Param{Name: name, Sort: s})
		}
	}
	//
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	//
	return vars
}
