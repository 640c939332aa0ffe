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
package verifier

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/smt"
	"github.com/heylang/go-heyvl/pkg/util/sexp"
	"github.com/heylang/go-heyvl/pkg/util/source"
	"github.com/heylang/go-heyvl/pkg/vcgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is a scripted stand-in for a solver: each check-sat answer
// is decided from the text of the assertions in scope.
type fakeSession struct {
	decide func(script string) (smt.Result, string)
	model  *smt.Model
	scopes []string
	reason string
}

func (p *fakeSession) Send(cmds ...sexp.SExp) error {
	if len(p.scopes) == 0 {
		p.scopes = []string{""}
	}
	//
	for _, cmd := range cmds {
		p.scopes[len(p.scopes)-1] += cmd.String() + "\n"
	}
	//
	return nil
}

func (p *fakeSession) Push() error {
	p.scopes = append(p.scopes, "")
	return nil
}

func (p *fakeSession) Pop() error {
	p.scopes = p.scopes[:len(p.scopes)-1]
	return nil
}

func (p *fakeSession) CheckSat(_ context.Context, _ time.Duration) (smt.Result, error) {
	result, reason := p.decide(strings.Join(p.scopes, ""))
	p.reason = reason
	//
	return result, nil
}

func (p *fakeSession) Reason() string { return p.reason }

func (p *fakeSession) Model() (*smt.Model, error) {
	if p.model == nil {
		return nil, fmt.Errorf("no model scripted")
	}
	//
	return p.model, nil
}

func (p *fakeSession) Close() error { return nil }

func parse(t *testing.T, text string) *ir.Program {
	t.Helper()
	//
	program, err := ir.ParseProgram(source.NewFile("test.hey", []byte(text)))
	require.Nil(t, err)
	//
	return program
}

// newVerifier builds a verifier whose sessions all share one decide
// function.
func newVerifier(cfg Config, decide func(string) (smt.Result, string), model *smt.Model) *Verifier {
	cfg.NewSession = func() (smt.Session, error) {
		return &fakeSession{decide: decide, model: model}, nil
	}
	//
	return New(cfg)
}

func always(result smt.Result, reason string) func(string) (smt.Result, string) {
	return func(string) (smt.Result, string) { return result, reason }
}

func TestVerify_TriviallyCorrectProcedure(t *testing.T) {
	program := parse(t, `(proc p ((x EUReal)) wp (pre x) (post x) (body (skip)))`)
	v := newVerifier(Config{}, always(smt.ResUnsat, ""), nil)
	//
	result := v.VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusVerified, result.Status())
	require.Len(t, result.Procedures, 1)
	require.Len(t, result.Procedures[0].Obligations, 1)
	assert.Equal(t, StatusVerified, result.Procedures[0].Obligations[0].Status)
}

func TestVerify_FalseAssertionRefuted(t *testing.T) {
	program := parse(t, `(proc p ((x EUReal)) wp (pre 1) (post x) (body (assert false)))`)
	model := &smt.Model{Consistency: smt.Consistent}
	v := newVerifier(Config{}, always(smt.ResSat, ""), model)
	//
	result := v.VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusRefuted, result.Status())
	ob := result.Procedures[0].Obligations[0]
	assert.Equal(t, StatusRefuted, ob.Status)
	// The counterexample is carried along.
	assert.Same(t, model, ob.Model)
}

func TestVerify_NonInductiveInvariantRefutedOnMaintenance(t *testing.T) {
	program := parse(t, `
		(proc p ((c Bool) (x EUReal)) wp
			(pre (+ x 1)) (post x)
			(body (while c (invariant (+ x 1)) (assign x (+ x 1)))))`)
	// Refute the first query only; obligations are checked in assembly
	// order, so this is the invariant maintenance check.
	checks := 0
	decide := func(string) (smt.Result, string) {
		checks++
		if checks == 1 {
			return smt.ResSat, ""
		}
		//
		return smt.ResUnsat, ""
	}
	//
	v := newVerifier(Config{}, decide, &smt.Model{Consistency: smt.Consistent})
	result := v.VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusRefuted, result.Status())
	obs := result.Procedures[0].Obligations
	require.Len(t, obs, 3)
	assert.Equal(t, StatusRefuted, obs[0].Status)
	assert.Equal(t, vcgen.KindMaintenance, obs[0].Kind)
	assert.Equal(t, StatusVerified, obs[2].Status)
	// The failing loop obligation points at the loop, not the contract.
	assert.NotEqual(t, obs[0].Span, obs[2].Span)
}

func TestVerify_TimeoutDoesNotDisturbOthers(t *testing.T) {
	program := parse(t, `
		(proc slow ((a EUReal)) wp (pre (+ a 1)) (post a) (body (skip)))
		(proc fast ((b EUReal)) wp (pre (+ b 2)) (post b) (body (skip)))`)
	// The slow procedure's query mentions a; time it out.
	decide := func(script string) (smt.Result, string) {
		if strings.Contains(script, "declare-const a") {
			return smt.ResUnknown, "timeout"
		}
		//
		return smt.ResUnsat, ""
	}
	//
	v := newVerifier(Config{Workers: 2}, decide, nil)
	result := v.VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusTimedOut, result.Status())
	assert.Equal(t, StatusTimedOut, result.Procedures[0].Status)
	assert.Equal(t, StatusVerified, result.Procedures[1].Status)
}

func TestVerify_RefutationOutranksTimeout(t *testing.T) {
	program := parse(t, `
		(proc slow ((a EUReal)) wp (pre (+ a 1)) (post a) (body (skip)))
		(proc bad ((b EUReal)) wp (pre (+ b 2)) (post b) (body (skip)))`)
	//
	decide := func(script string) (smt.Result, string) {
		if strings.Contains(script, "declare-const a") {
			return smt.ResUnknown, "timeout"
		}
		//
		return smt.ResSat, ""
	}
	//
	v := newVerifier(Config{}, decide, nil)
	result := v.VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusRefuted, result.Status())
}

func TestVerify_UnknownReasonReported(t *testing.T) {
	program := parse(t, `(proc p ((x EUReal)) wp (pre x) (post x) (body (skip)))`)
	v := newVerifier(Config{}, always(smt.ResUnknown, "quantifiers"), nil)
	//
	result := v.VerifyProgram(context.Background(), program)
	//
	ob := result.Procedures[0].Obligations[0]
	assert.Equal(t, StatusUnknown, ob.Status)
	assert.Equal(t, "quantifiers", ob.Reason)
}

func TestVerify_UnknownCarriesCandidateModel(t *testing.T) {
	program := parse(t, `(proc p ((x EUReal)) wp (pre 1) (post x) (body (skip)))`)
	// An inconclusive solver can still volunteer an assignment; it is
	// attached to the result but flagged as a guess.
	model := &smt.Model{Consistency: smt.Dubious}
	v := newVerifier(Config{}, always(smt.ResUnknown, "incomplete quantifiers"), model)
	//
	result := v.VerifyProgram(context.Background(), program)
	//
	ob := result.Procedures[0].Obligations[0]
	assert.Equal(t, StatusUnknown, ob.Status)
	require.Same(t, model, ob.Model)
	assert.Equal(t, smt.Dubious, ob.Model.Consistency)
}

func TestVerify_CancellationIsNotATimeout(t *testing.T) {
	program := parse(t, `(proc p ((x EUReal)) wp (pre 1) (post x) (body (skip)))`)
	cfg := Config{NewSession: func() (smt.Session, error) {
		return &cancelledSession{}, nil
	}}
	//
	result := New(cfg).VerifyProgram(context.Background(), program)
	//
	ob := result.Procedures[0].Obligations[0]
	assert.Equal(t, StatusUnknown, ob.Status)
	assert.Equal(t, "canceled", ob.Reason)
	assert.Equal(t, StatusUnknown, result.Status())
}

// cancelledSession aborts every check with the context's cancellation.
type cancelledSession struct {
	fakeSession
}

func (p *cancelledSession) CheckSat(ctx context.Context, budget time.Duration) (smt.Result, error) {
	return smt.ResUnknown, fmt.Errorf("interrupted: %w", context.Canceled)
}

func TestVerify_MissingInvariantIsStructuralError(t *testing.T) {
	program := parse(t, `
		(proc broken ((c Bool)) wp (pre 1) (post 1) (body (while c (skip))))
		(proc fine ((x EUReal)) wp (pre x) (post x) (body (skip)))`)
	//
	v := newVerifier(Config{}, always(smt.ResUnsat, ""), nil)
	result := v.VerifyProgram(context.Background(), program)
	// The broken procedure reports its error; the other still verifies.
	assert.Error(t, result.Procedures[0].Err)
	assert.Equal(t, StatusVerified, result.Procedures[1].Status)
	assert.Equal(t, StatusUnknown, result.Status())
}

func TestVerify_SessionFailureIsInconclusive(t *testing.T) {
	program := parse(t, `
		(proc a ((x EUReal)) wp (pre (+ x 1)) (post x) (body (skip)))
		(proc b ((y EUReal)) wp (pre (+ y 2)) (post y) (body (skip)))`)
	// Sessions die on any query mentioning x; fresh sessions keep working.
	cfg := Config{}
	cfg.NewSession = func() (smt.Session, error) {
		decide := func(script string) (smt.Result, string) { return smt.ResUnsat, "" }
		return &crashingSession{fakeSession{decide: decide}}, nil
	}
	//
	result := New(cfg).VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusUnknown, result.Procedures[0].Status)
	// The second procedure runs on a relaunched session.
	assert.Equal(t, StatusVerified, result.Procedures[1].Status)
}

// crashingSession fails any check whose scope mentions x, taking the
// session down like a crashed solver.
type crashingSession struct {
	fakeSession
}

func (p *crashingSession) CheckSat(ctx context.Context, budget time.Duration) (smt.Result, error) {
	if strings.Contains(strings.Join(p.scopes, ""), "declare-const x") {
		return smt.ResUnknown, fmt.Errorf("broken pipe: %w", smt.ErrSessionDown)
	}
	//
	return p.fakeSession.CheckSat(ctx, budget)
}

func TestVerify_SlicingFindsResponsibleAssert(t *testing.T) {
	program := parse(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post x)
			(body
				(assert (<= x 1))
				(assert (<= x 2))
				(assert (<= x 3))))`)
	// Only the middle assert is responsible: the query fails exactly when
	// its toggle is active.
	decide := func(script string) (smt.Result, string) {
		if strings.Contains(script, "(assert t!1)") {
			return smt.ResSat, ""
		}
		//
		return smt.ResUnsat, ""
	}
	//
	v := newVerifier(Config{Slice: true}, decide, nil)
	result := v.VerifyProgram(context.Background(), program)
	//
	require.Equal(t, StatusRefuted, result.Status())
	ob := result.Procedures[0].Obligations[0]
	require.NotNil(t, ob.Slice)
	assert.Equal(t, []int{1}, ob.Slice.Active)
	assert.True(t, ob.Slice.Confirmed)
}

func TestVerify_SlicingRespectsIterationBound(t *testing.T) {
	program := parse(t, `
		(proc p ((x EUReal)) wp
			(pre 1) (post x)
			(body
				(assert (<= x 1))
				(assert (<= x 2))
				(assert (<= x 3))
				(assert (<= x 4))))`)
	//
	decide := func(script string) (smt.Result, string) {
		if strings.Contains(script, "(assert t!3)") {
			return smt.ResSat, ""
		}
		//
		return smt.ResUnsat, ""
	}
	// A single iteration cannot confirm minimality over four asserts.
	v := newVerifier(Config{Slice: true, MaxSliceIters: 1, Cache: NewCache()}, decide, nil)
	result := v.VerifyProgram(context.Background(), program)
	//
	ob := result.Procedures[0].Obligations[0]
	require.NotNil(t, ob.Slice)
	assert.False(t, ob.Slice.Confirmed)
}

func TestVerify_CacheShortCircuitsIdenticalQueries(t *testing.T) {
	program := parse(t, `
		(proc a ((x EUReal)) wp (pre (+ x 1)) (post x) (body (skip)))
		(proc b ((x EUReal)) wp (pre (+ x 1)) (post x) (body (skip)))`)
	//
	checks := 0
	decide := func(script string) (smt.Result, string) {
		checks++
		return smt.ResUnsat, ""
	}
	//
	v := newVerifier(Config{}, decide, nil)
	result := v.VerifyProgram(context.Background(), program)
	//
	assert.Equal(t, StatusVerified, result.Status())
	// Both procedures emit the identical obligation; one query suffices.
	assert.Equal(t, 1, checks)
}

func TestVerify_CancelledContextStops(t *testing.T) {
	program := parse(t, `(proc p ((x EUReal)) wp (pre x) (post x) (body (skip)))`)
	v := newVerifier(Config{}, always(smt.ResUnsat, ""), nil)
	//
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	//
	result := v.VerifyProgram(ctx, program)
	assert.NotEqual(t, StatusVerified, result.Status())
}
