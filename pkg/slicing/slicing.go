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

// Package slicing minimises the set of program elements responsible for a
// failing query.  The search works over boolean activation vectors: a
// probe re-runs the query with a candidate subset active and reports
// whether the failure is still reproduced.  Deactivations which preserve
// the failure are kept, so the active set shrinks monotonically; the
// result is locally minimal, not globally minimum.
package slicing

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Probe re-runs a query with the given elements active, reporting whether
// the original failure was reproduced.  The active slice must not be
// retained or mutated.
type Probe func(ctx context.Context, active []bool) (bool, error)

// Result of a minimisation search.
type Result struct {
	// Identifiers of the elements still active.
	Active []int
	// Number of probes performed.
	Iterations uint
	// Confirmed is true when the search completed a full pass in which no
	// single remaining element could be removed.  It is false when the
	// iteration budget ran out first.
	Confirmed bool
}

// ErrBudget is reported by probes driven past their iteration budget; it
// never escapes Minimize.
type budgetExceeded struct{}

func (budgetExceeded) Error() string { return "iteration budget exceeded" }

// Minimize searches for a locally minimal subset of n elements whose
// activation reproduces the failure, spending at most maxIters probes.
// The zeroth probe, with everything active, is assumed to have already
// reproduced the failure; Minimize does not repeat it.  Candidate
// deactivations are tried coarse-to-fine, halving windows over the active
// set, with a final single-element fixpoint pass.  Ties between minimal
// slices go to the first found, which makes the result deterministic for
// a deterministic probe.
func Minimize(ctx context.Context, n int, maxIters uint, probe Probe) (*Result, error) {
	var (
		active = make([]bool, n)
		iters  uint
	)
	//
	for i := range active {
		active[i] = true
	}
	// bounded wraps the probe with the iteration budget.
	bounded := func(cand []bool) (bool, error) {
		if iters >= maxIters {
			return false, budgetExceeded{}
		}
		//
		iters++
		//
		return probe(ctx, cand)
	}
	//
	confirmed, err := minimise(active, bounded)
	//
	if _, out := err.(budgetExceeded); out {
		confirmed, err = false, nil
	}
	//
	if err != nil {
		return nil, err
	}
	//
	result := &Result{Iterations: iters, Confirmed: confirmed}
	//
	for i, on := range active {
		if on {
			result.Active = append(result.Active, i)
		}
	}
	//
	log.Debugf("slicing kept %d/%d elements after %d probes", len(result.Active), n, iters)
	//
	return result, nil
}

// minimise shrinks active in place, reporting whether local minimality was
// confirmed.
func minimise(active []bool, probe func([]bool) (bool, error)) (bool, error) {
	// Coarse passes deactivate shrinking windows of the remaining
	// elements.
	for window := len(active) / 2; window > 1; window /= 2 {
		if err := pass(active, window, probe); err != nil {
			return false, err
		}
	}
	// Fine passes run to fixpoint: removing one element can unlock
	// removing an earlier one.
	for {
		before := countActive(active)
		//
		if err := pass(active, 1, probe); err != nil {
			return false, err
		}
		//
		if countActive(active) == before {
			return true, nil
		}
	}
}

// pass attempts to deactivate each window of the given size over the
// currently active elements, keeping every deactivation which preserves
// the failure.
func pass(active []bool, window int, probe func([]bool) (bool, error)) error {
	indices := activeIndices(active)
	//
	for start := 0; start < len(indices); start += window {
		end := min(start+window, len(indices))
		candidate := clone(active)
		//
		for _, i := range indices[start:end] {
			// Skip elements already removed by an earlier window.
			if !active[i] {
				continue
			}
			//
			candidate[i] = false
		}
		//
		if same(candidate, active) {
			continue
		}
		//
		repro, err := probe(candidate)
		//
		if err != nil {
			return err
		} else if repro {
			copy(active, candidate)
		}
	}
	//
	return nil
}

func activeIndices(active []bool) []int {
	var indices []int
	//
	for i, on := range active {
		if on {
			indices = append(indices, i)
		}
	}
	//
	return indices
}

func countActive(active []bool) int {
	return len(activeIndices(active))
}

func clone(active []bool) []bool {
	candidate := make([]bool, len(active))
	copy(candidate, active)
	//
	return candidate
}

func same(a []bool, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	//
	return true
}
