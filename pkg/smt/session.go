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
	"context"
	"errors"
	"time"

	"github.com/heylang/go-heyvl/pkg/util/sexp"
)

// Result of a single satisfiability check.
type Result uint8

const (
	// ResUnsat indicates the negated obligation is unsatisfiable, proving
	// the obligation.
	ResUnsat Result = iota
	// ResSat indicates the negated obligation is satisfiable, refuting the
	// obligation with the solver's model as witness.
	ResSat
	// ResUnknown indicates the solver gave up; the reason is reported
	// alongside.
	ResUnknown
)

// String implementation for fmt.Stringer interface.
func (r Result) String() string {
	switch r {
	case ResUnsat:
		return "unsat"
	case ResSat:
		return "sat"
	default:
		return "unknown"
	}
}

// ErrSessionDown signals a session whose underlying solver has exited or
// been killed.  Every operation on a down session fails with an error
// wrapping this one; the caller must discard the session and open a fresh
// one.
var ErrSessionDown = errors.New("solver session down")

// Session is an incremental dialogue with a solver.  Sessions are not
// safe for concurrent use; each worker owns one.
type Session interface {
	// Send submits commands (declarations, assertions) to the solver
	// without requesting any answer.
	Send(cmds ...sexp.SExp) error
	// Push opens a new assertion scope.
	Push() error
	// Pop discards the most recent assertion scope.
	Pop() error
	// CheckSat determines satisfiability of the current assertions, giving
	// the solver at most the given budget.  An exhausted budget reports
	// ResUnknown with a timeout reason rather than an error.
	CheckSat(ctx context.Context, budget time.Duration) (Result, error)
	// Reason reports why the most recent check was inconclusive, or "".
	Reason() string
	// Model retrieves a satisfying assignment after a ResSat check.
	Model() (*Model, error)
	// Close terminates the session, releasing the solver.
	Close() error
}
