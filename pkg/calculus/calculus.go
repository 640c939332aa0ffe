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

// Package calculus implements the backward-substitution predicate
// transformers at the heart of the verifier: given a statement and a
// post-expectation over the final state, it computes the corresponding
// pre-expectation over the initial state, under one of the three calculus
// directions (wp, wlp, ert).
//
// Annotated loops are never unrolled.  Instead, the transformer uses the
// user-supplied invariant as an opaque summary and records, for each loop,
// the data needed to assemble its side obligations (invariant maintenance
// and sufficiency); fixpoint validity is thereby deferred to the solver.
package calculus

import (
	"fmt"

	"github.com/heylang/go-heyvl/pkg/ir"
)

// LoopSummary captures everything needed to assemble the side obligations
// of one annotated loop: its invariant, guard, the loop body transformed
// against the invariant, and the continuation expectation at loop exit.
type LoopSummary struct {
	// The loop this summary originates from.
	Loop *ir.While
	// User-supplied invariant expectation.
	Invariant ir.ExprId
	// Loop guard.
	Cond ir.ExprId
	// One body iteration transformed with the invariant as post.
	BodyPre ir.ExprId
	// Continuation expectation at loop exit.
	Exit ir.ExprId
}

// Step records one intermediate pre-expectation for explain mode, tagged
// with the span of the statement which produced it.
type Step struct {
	Stmt ir.Stmt
	// Pre-expectation computed at this program point.
	Pre ir.ExprId
}

// ExplainMode controls which intermediate pre-expectations are recorded.
type ExplainMode uint8

const (
	// ExplainOff records nothing.
	ExplainOff ExplainMode = iota
	// ExplainSteps records the pre-expectation at every statement.
	ExplainSteps
	// ExplainCore records the pre-expectation at loop and call boundaries
	// only.
	ExplainCore
)

// Config supplies the (read-only) context a transformer operates in.
type Config struct {
	// Program supplies callee contracts for procedure calls; may be nil for
	// call-free procedures.
	Program *ir.Program
	// Explain controls intermediate expectation recording.
	Explain ExplainMode
	// Toggled enables slicing instrumentation: the contribution of each
	// assert/assume is guarded by a boolean toggle variable, so deactivated
	// elements fall back to their no-op semantics without perturbing the
	// statement positions or substitutions around them.
	Toggled bool
}

// ToggleVar returns the name of the boolean toggle variable guarding the
// assert/assume with a given identifier.
func ToggleVar(id int) string {
	return fmt.Sprintf("t!%d", id)
}

// Transformer computes pre-expectations for one procedure.  It is not safe
// for concurrent use; verification runs one transformer per procedure.
type Transformer struct {
	proc  *ir.Procedure
	arena *ir.ExprArena
	cfg   Config
	// Loop summaries, in the order loops were encountered (innermost
	// first, since transformation is bottom-up).
	loops []LoopSummary
	// Explain steps, in backward (computation) order.
	steps []Step
	// Fresh variables introduced for havocs, in backward encounter order
	// (innermost binder first).
	havocs []HavocVar
	// Fresh-name counter for havoc'd variables.
	fresh int
}

// HavocVar pairs the fresh variable standing in for a havoc'd value with
// the havoc's resolution.  The assembler closes these with explicit
// quantifiers rather than adding them to an obligation's universal
// closure.
type HavocVar struct {
	ir.Param
	Angelic bool
}

// NewTransformer constructs a transformer for a given procedure.
func NewTransformer(proc *ir.Procedure, cfg Config) *Transformer {
	return &Transformer{proc: proc, arena: proc.Arena, cfg: cfg}
}

// Loops returns the summaries of every annotated loop encountered so far.
func (t *Transformer) Loops() []LoopSummary {
	return t.loops
}

// Havocs returns the fresh variables introduced so far, innermost first.
func (t *Transformer) Havocs() []HavocVar {
	return t.havocs
}

// Steps returns the recorded explain steps, in backward order.
func (t *Transformer) Steps() []Step {
	return t.steps
}

// Pre computes the pre-expectation of a statement for a given
// post-expectation, by backward substitution.  Structural errors (missing
// loop invariant, unknown callee, contract mismatch) abort the procedure
// with a span-tagged error; guessing a default would be unsound.
func (t *Transformer) Pre(stmt ir.Stmt, post ir.ExprId) (ir.ExprId, error) {
	var (
		pre ir.ExprId
		err error
	)
	//
	switch s := stmt.(type) {
	case *ir.Skip:
		pre = post
	case *ir.Seq:
		// Compose right-to-left, threading each pre as the post of the
		// preceding statement.
		pre = post
		//
		for i := len(s.Stmts) - 1; i >= 0; i-- {
			if pre, err = t.Pre(s.Stmts[i], pre); err != nil {
				return ir.NoExpr, err
			}
		}
	case *ir.Assign:
		pre = t.arena.Subst(post, s.Var, s.Value)
	case *ir.Havoc:
		pre = t.havoc(s, post)
	case *ir.ProbChoice:
		pre, err = t.probChoice(s, post)
	case *ir.DemonChoice:
		pre, err = t.binaryChoice(s.Left, s.Right, post, t.arena.Min)
	case *ir.AngelChoice:
		pre, err = t.binaryChoice(s.Left, s.Right, post, t.arena.Max)
	case *ir.Assert:
		pre = t.arena.Ite(t.toggled(s.Id, s.Cond), post, t.assertFailure())
	case *ir.Assume:
		pre = t.arena.Ite(t.toggled(s.Id, s.Cond), post, t.assumeFailure())
	case *ir.Tick:
		pre = post
		// Only the runtime calculus observes cost.
		if t.proc.Direction == ir.Ert {
			pre = t.arena.Add(post, s.Amount)
		}
	case *ir.While:
		pre, err = t.loop(s, post)
	case *ir.Call:
		pre, err = t.call(s, post)
	default:
		panic(fmt.Sprintf("unknown statement variant: %T", stmt))
	}
	//
	if err != nil {
		return ir.NoExpr, err
	}
	//
	t.record(stmt, pre)
	//
	return pre, nil
}

// havoc renames the havoc'd variable to a fresh one, so that the incoming
// value is unconstrained.  The fresh variable stands for an extremum over
// the variable's domain (infimum for demonic havoc, supremum for angelic)
// and is closed with a quantifier of matching polarity when the enclosing
// obligation is assembled.
func (t *Transformer) havoc(s *ir.Havoc, post ir.ExprId) ir.ExprId {
	t.fresh++
	//
	name := fmt.Sprintf("%s!%d", s.Var, t.fresh)
	t.havocs = append(t.havocs, HavocVar{ir.Param{Name: name, Sort: s.Sort}, s.Angelic})
	//
	return t.arena.Subst(post, s.Var, t.arena.Var(name, s.Sort))
}

// probChoice computes the convex combination of the two branch transforms,
// weighted by the probability expression.
func (t *Transformer) probChoice(s *ir.ProbChoice, post ir.ExprId) (ir.ExprId, error) {
	left, err := t.Pre(s.Left, post)
	if err != nil {
		return ir.NoExpr, err
	}
	//
	right, err := t.Pre(s.Right, post)
	if err != nil {
		return ir.NoExpr, err
	}
	// The complementary probability uses saturating subtraction, keeping
	// the weight inside the quantity domain.
	complement := t.arena.Monus(t.arena.One(), s.Prob)
	//
	return t.arena.Add(t.arena.Mul(s.Prob, left), t.arena.Mul(complement, right)), nil
}

func (t *Transformer) binaryChoice(l ir.Stmt, r ir.Stmt, post ir.ExprId,
	merge func(ir.ExprId, ir.ExprId) ir.ExprId) (ir.ExprId, error) {
	left, err := t.Pre(l, post)
	if err != nil {
		return ir.NoExpr, err
	}
	//
	right, err := t.Pre(r, post)
	if err != nil {
		return ir.NoExpr, err
	}
	//
	return merge(left, right), nil
}

// loop uses the annotated invariant as an opaque summary: the resulting
// pre-expectation is the invariant itself, and the induction conditions are
// recorded for the assembler to emit as independent obligations.
func (t *Transformer) loop(s *ir.While, post ir.ExprId) (ir.ExprId, error) {
	if s.Invariant == ir.NoExpr {
		return ir.NoExpr, t.structuralError(s, "loop has no invariant annotation")
	}
	//
	bodyPre, err := t.Pre(s.Body, s.Invariant)
	if err != nil {
		return ir.NoExpr, err
	}
	//
	t.loops = append(t.loops, LoopSummary{
		Loop:      s,
		Invariant: s.Invariant,
		Cond:      s.Cond,
		BodyPre:   bodyPre,
		Exit:      post,
	})
	//
	return s.Invariant, nil
}

// call instantiates the callee's contract, without inlining.  The
// continuation must coincide with the instantiated post-expectation; the
// callee's own obligations are assembled separately.
func (t *Transformer) call(s *ir.Call, post ir.ExprId) (ir.ExprId, error) {
	var callee *ir.Procedure
	//
	if t.cfg.Program != nil {
		callee = t.cfg.Program.Procedure(s.Callee)
	}
	//
	if callee == nil {
		return ir.NoExpr, t.structuralError(s, fmt.Sprintf("call to unknown procedure \"%s\"", s.Callee))
	} else if len(s.Args) != len(callee.Params) {
		return ir.NoExpr, t.structuralError(s, fmt.Sprintf(
			"procedure \"%s\" expects %d arguments, given %d", s.Callee, len(callee.Params), len(s.Args)))
	} else if callee.Direction != t.proc.Direction {
		return ir.NoExpr, t.structuralError(s, fmt.Sprintf(
			"procedure \"%s\" is verified under %s, not %s", s.Callee, callee.Direction, t.proc.Direction))
	}
	// Instantiate the contract in the caller's arena.
	calleePre := t.arena.Import(callee.Arena, callee.Pre)
	calleePost := t.arena.Import(callee.Arena, callee.Post)
	//
	for i, param := range callee.Params {
		calleePre = t.arena.Subst(calleePre, param.Name, s.Args[i])
		calleePost = t.arena.Subst(calleePost, param.Name, s.Args[i])
	}
	// Hash-consing makes handle equality structural equality, so this
	// checks that the continuation is exactly the instantiated post.
	if calleePost != post {
		return ir.NoExpr, t.structuralError(s, fmt.Sprintf(
			"continuation of call to \"%s\" does not match its post-expectation", s.Callee))
	}
	//
	return calleePre, nil
}

// toggled guards a condition with its toggle variable when slicing
// instrumentation is enabled: a deactivated toggle renders the condition
// trivially true.
func (t *Transformer) toggled(id int, cond ir.ExprId) ir.ExprId {
	if !t.cfg.Toggled {
		return cond
	}
	//
	toggle := t.arena.Var(ToggleVar(id), ir.SortBool)
	//
	return t.arena.Implies(toggle, cond)
}

// assertFailure is the value a failing assert contributes.  Under wp the
// entailment requires the declared pre-expectation to dominate the computed
// one, so a reachable failure must blow up to infinity to be observable.
// Under wlp (dominated entailment) the failure value is zero, and under ert
// a failed assertion consumes no further cost.
func (t *Transformer) assertFailure() ir.ExprId {
	if t.proc.Direction == ir.Wp {
		return t.arena.Infinity()
	}
	//
	return t.arena.Zero()
}

// assumeFailure is the value an infeasible assume contributes: the neutral
// element of the enclosing entailment, so that infeasible paths impose no
// constraint.
func (t *Transformer) assumeFailure() ir.ExprId {
	if t.proc.Direction == ir.Wlp {
		return t.arena.Infinity()
	}
	//
	return t.arena.Zero()
}

func (t *Transformer) record(stmt ir.Stmt, pre ir.ExprId) {
	switch t.cfg.Explain {
	case ExplainOff:
		return
	case ExplainCore:
		switch stmt.(type) {
		case *ir.While, *ir.Call:
			// Recorded below
		default:
			return
		}
	}
	//
	t.steps = append(t.steps, Step{stmt, pre})
}

func (t *Transformer) structuralError(stmt ir.Stmt, msg string) error {
	return t.proc.StmtSpans.SyntaxError(stmt, msg)
}
