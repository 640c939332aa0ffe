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

// Package verifier orchestrates solver queries for whole programs:
// procedures fan out across a worker pool, each worker holding its own
// solver session, and each obligation runs in its own assertion scope.
package verifier

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/heylang/go-heyvl/pkg/calculus"
	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/slicing"
	"github.com/heylang/go-heyvl/pkg/smt"
	"github.com/heylang/go-heyvl/pkg/vcgen"
)

// DefaultMaxSliceIters bounds the minimisation search when no explicit
// bound is configured.
const DefaultMaxSliceIters = 64

// Config for a verifier.  The zero value is usable: it runs single
// queries against a locally installed z3 with no timeout.
type Config struct {
	// Timeout per solver query; zero means unbounded.
	Timeout time.Duration
	// Workers is the number of procedures verified concurrently; zero
	// means one.
	Workers uint
	// Slice enables minimal-cause slicing of failing procedures.
	Slice bool
	// Explain controls recording of intermediate expectations.
	Explain calculus.ExplainMode
	// MaxSliceIters bounds the slicing search per obligation; zero picks
	// the default.
	MaxSliceIters uint
	// SolverPath is the solver executable; empty means "z3".
	SolverPath string
	// SolverArgs are passed to the solver verbatim.
	SolverArgs []string
	// NewSession overrides how solver sessions are created.  Leave nil to
	// launch SolverPath as a subprocess.
	NewSession func() (smt.Session, error)
	// Cache shares query outcomes across workers; nil gets a fresh one.
	Cache *Cache
}

// Verifier checks programs against their annotations.
type Verifier struct {
	cfg   Config
	cache *Cache
}

// New constructs a verifier, filling configuration defaults.
func New(cfg Config) *Verifier {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	//
	if cfg.MaxSliceIters == 0 {
		cfg.MaxSliceIters = DefaultMaxSliceIters
	}
	//
	if cfg.NewSession == nil {
		path, args := cfg.SolverPath, cfg.SolverArgs
		//
		if path == "" {
			path = "z3"
			//
			if len(args) == 0 {
				args = []string{"-in"}
			}
		}
		//
		cfg.NewSession = func() (smt.Session, error) {
			return smt.NewProcessSession(path, args)
		}
	}
	//
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache()
	}
	//
	return &Verifier{cfg, cache}
}

// verifyProcedure assembles and dispatches one procedure's obligations
// sequentially on the worker's session.
func (v *Verifier) verifyProcedure(ctx context.Context, program *ir.Program, proc *ir.Procedure,
	box *sessionBox) *ProcedureResult {
	start := time.Now()
	result := &ProcedureResult{Name: proc.Name}
	//
	assembly, err := vcgen.Assemble(program, proc, vcgen.Options{
		Explain: v.cfg.Explain,
		Toggled: v.cfg.Slice,
	})
	//
	if err != nil {
		result.Err = err
		result.Status = StatusUnknown
		result.Duration = time.Since(start)
		//
		return result
	}
	//
	result.Steps = assembly.Steps
	//
	for _, ob := range assembly.Obligations {
		if ctx.Err() != nil {
			result.Obligations = append(result.Obligations, ObligationResult{
				Name: ob.Name, Kind: ob.Kind, Span: ob.Span,
				Status: StatusUnknown, Reason: "canceled",
			})
			//
			continue
		}
		//
		obres := v.check(ctx, box, assembly, ob, nil)
		//
		if v.cfg.Slice && proc.Toggles > 0 && refutedOrUnknown(obres.Status) {
			obres.Slice = v.slice(ctx, box, assembly, ob, &obres)
		}
		//
		result.Obligations = append(result.Obligations, obres)
	}
	//
	result.aggregate()
	result.Duration = time.Since(start)
	//
	log.Debugf("procedure %s: %s (%d obligations, %0.3fs)",
		proc.Name, result.Status, len(result.Obligations), result.Duration.Seconds())
	//
	return result
}

// check runs one obligation query with the given toggle activation (nil
// meaning everything active) inside a fresh assertion scope.  Session
// failures are folded into an inconclusive result; the session is dropped
// so the next query gets a fresh one.
func (v *Verifier) check(ctx context.Context, box *sessionBox, assembly *vcgen.Assembly,
	ob vcgen.Obligation, active []bool) ObligationResult {
	result := ObligationResult{Name: ob.Name, Kind: ob.Kind, Span: ob.Span}
	//
	toggles := 0
	if assembly.Toggled {
		toggles = assembly.Proc.Toggles
	}
	//
	script := smt.EncodeObligation(assembly.Arena, ob, toggles, active)
	text := script.Text()
	//
	if entry, ok := v.cache.lookup(text); ok {
		result.Status = entry.status
		result.Model = entry.model
		//
		return result
	}
	//
	start := time.Now()
	answer, err := v.query(ctx, box, script, &result)
	result.Duration = time.Since(start)
	//
	if err != nil {
		box.drop()
		result.Status, result.Reason = classifyError(err)
		//
		return result
	}
	//
	switch answer {
	case smt.ResUnsat:
		result.Status = StatusVerified
	case smt.ResSat:
		result.Status = StatusRefuted
	default:
		result.Status = StatusUnknown
		//
		if timeoutReason(result.Reason) {
			result.Status = StatusTimedOut
		}
	}
	//
	v.cache.store(text, cached{result.Status, result.Model})
	//
	return result
}

// query performs the scoped solver dialogue for one script, filling in
// model and reason as available.
func (v *Verifier) query(ctx context.Context, box *sessionBox, script *smt.Script,
	result *ObligationResult) (smt.Result, error) {
	session, err := box.get()
	if err != nil {
		return smt.ResUnknown, err
	}
	//
	if err := session.Push(); err != nil {
		return smt.ResUnknown, err
	}
	//
	if err := session.Send(script.Commands...); err != nil {
		return smt.ResUnknown, err
	}
	//
	answer, err := session.CheckSat(ctx, v.cfg.Timeout)
	if err != nil {
		return smt.ResUnknown, err
	}
	//
	switch answer {
	case smt.ResSat:
		// A lost model downgrades the witness, not the verdict.
		if model, err := session.Model(); err == nil {
			result.Model = model
		} else {
			log.Debugf("counterexample lost: %v", err)
		}
	case smt.ResUnknown:
		result.Reason = session.Reason()
		// Some solvers still volunteer a candidate assignment; it is
		// usable for slicing but carries no guarantee.
		if model, err := session.Model(); err == nil {
			result.Model = model
		}
	}
	//
	if err := session.Pop(); err != nil {
		return answer, err
	}
	//
	return answer, nil
}

// slice searches for a minimal set of assert/assume statements which
// reproduces this obligation's failure.  An unknown outcome only counts
// as reproduced when the solver gives the same reason.
func (v *Verifier) slice(ctx context.Context, box *sessionBox, assembly *vcgen.Assembly,
	ob vcgen.Obligation, baseline *ObligationResult) *slicing.Result {
	reason := strings.TrimSpace(baseline.Reason)
	//
	probe := func(ctx context.Context, active []bool) (bool, error) {
		probed := v.check(ctx, box, assembly, ob, active)
		//
		if probed.Status != baseline.Status {
			return false, nil
		}
		//
		return baseline.Status != StatusUnknown || strings.TrimSpace(probed.Reason) == reason, nil
	}
	//
	result, err := slicing.Minimize(ctx, assembly.Proc.Toggles, v.cfg.MaxSliceIters, probe)
	if err != nil {
		log.Debugf("slicing %s aborted: %v", ob.Name, err)
		return nil
	}
	//
	return result
}

func refutedOrUnknown(status Status) bool {
	return status == StatusRefuted || status == StatusUnknown
}

// classifyError maps session failures onto result statuses.  An expired
// deadline or a budget-exhausted solver is a timeout; user cancellation
// and anything else (typically a crashed solver) is unknown.
func classifyError(err error) (Status, string) {
	if errors.Is(err, context.Canceled) {
		return StatusUnknown, "canceled"
	}
	//
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimedOut, err.Error()
	}
	//
	if errors.Is(err, smt.ErrSessionDown) && timeoutReason(err.Error()) {
		return StatusTimedOut, err.Error()
	}
	//
	return StatusUnknown, err.Error()
}

// timeoutReason recognises the reasons solvers give for running out of
// budget.
func timeoutReason(reason string) bool {
	reason = strings.ToLower(reason)
	//
	return strings.Contains(reason, "timeout") || strings.Contains(reason, "canceled") ||
		strings.Contains(reason, "resource limit") || strings.Contains(reason, "past budget")
}

// sessionBox lazily holds one worker's solver session, relaunching it
// after a failure.
type sessionBox struct {
	create  func() (smt.Session, error)
	session smt.Session
}

func (b *sessionBox) get() (smt.Session, error) {
	if b.session == nil {
		session, err := b.create()
		if err != nil {
			return nil, err
		}
		//
		b.session = session
	}
	//
	return b.session, nil
}

// drop discards the current session; the next get relaunches.
func (b *sessionBox) drop() {
	if b.session != nil {
		b.session.Close()
		b.session = nil
	}
}
