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
	"time"

	"github.com/heylang/go-heyvl/pkg/calculus"
	"github.com/heylang/go-heyvl/pkg/slicing"
	"github.com/heylang/go-heyvl/pkg/smt"
	"github.com/heylang/go-heyvl/pkg/util/source"
	"github.com/heylang/go-heyvl/pkg/vcgen"
)

// Status of an obligation or procedure.
type Status uint8

const (
	// StatusVerified means every query was proved.
	StatusVerified Status = iota
	// StatusRefuted means some query has a counterexample.
	StatusRefuted
	// StatusUnknown means the solver gave up on some query.
	StatusUnknown
	// StatusTimedOut means some query exhausted its time budget.
	StatusTimedOut
)

// String implementation for fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusRefuted:
		return "refuted"
	case StatusUnknown:
		return "unknown"
	default:
		return "timed out"
	}
}

// severity orders statuses for aggregation: a refutation is a definite
// answer and outranks any inconclusive one.
func (s Status) severity() int {
	switch s {
	case StatusRefuted:
		return 3
	case StatusUnknown:
		return 2
	case StatusTimedOut:
		return 1
	default:
		return 0
	}
}

// ObligationResult is the outcome of a single solver query.
type ObligationResult struct {
	Name      string
	Kind      vcgen.Kind
	Span      source.Span
	Status    Status
	// Counterexample witness for refuted obligations.
	Model *smt.Model
	// Solver's reason for an inconclusive check.
	Reason string
	// Minimal responsible element set, when slicing ran.
	Slice    *slicing.Result
	Duration time.Duration
}

// ProcedureResult aggregates the outcomes of one procedure's obligations.
type ProcedureResult struct {
	Name        string
	Status      Status
	Obligations []ObligationResult
	// Intermediate pre-expectations recorded by the calculus, when explain
	// mode is on.
	Steps []calculus.Step
	// Structural error preventing verification (missing invariant,
	// mismatched call), in which case Obligations is empty.  Usually a
	// span-tagged source.SyntaxError.
	Err      error
	Duration time.Duration
}

// aggregate recomputes the procedure status from its obligations.  All
// obligations must be verified for the procedure to verify; otherwise the
// most severe failing status wins, ties going to the earliest obligation.
func (p *ProcedureResult) aggregate() {
	p.Status = StatusVerified
	//
	for _, ob := range p.Obligations {
		if ob.Status.severity() > p.Status.severity() {
			p.Status = ob.Status
		}
	}
}

// FileResult holds per-procedure results for one input program, in
// declaration order.
type FileResult struct {
	Procedures []*ProcedureResult
	Duration   time.Duration
}

// Status of the whole file, aggregated the same way procedures aggregate
// their obligations.  A structural error in any procedure reports unknown.
func (f *FileResult) Status() Status {
	status := StatusVerified
	//
	for _, proc := range f.Procedures {
		s := proc.Status
		if proc.Err != nil {
			s = StatusUnknown
		}
		//
		if s.severity() > status.severity() {
			status = s
		}
	}
	//
	return status
}
