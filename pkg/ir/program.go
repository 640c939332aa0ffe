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
package ir

import (
	"fmt"

	"github.com/heylang/go-heyvl/pkg/util/source"
)

// Direction identifies which predicate-transformer calculus a procedure is
// verified under.
type Direction uint8

const (
	// Wp is the weakest pre-expectation calculus.
	Wp Direction = iota
	// Wlp is the weakest liberal pre-expectation calculus.
	Wlp
	// Ert is the expected-runtime calculus.
	Ert
)

// String implementation for the Stringer interface.
func (d Direction) String() string {
	switch d {
	case Wp:
		return "wp"
	case Wlp:
		return "wlp"
	case Ert:
		return "ert"
	default:
		panic(fmt.Sprintf("unknown direction: %d", d))
	}
}

// DirectionOf parses a calculus direction from its textual name.
func DirectionOf(name string) (Direction, bool) {
	switch name {
	case "wp":
		return Wp, true
	case "wlp":
		return Wlp, true
	case "ert":
		return Ert, true
	}
	//
	return Wp, false
}

// Procedure is one verification unit: a body statement together with its
// declared pre- and post-expectation and a calculus direction.  Procedures
// are constructed once by the upstream parser and consumed read-only by the
// calculus engine; each procedure exclusively owns its expression arena.
type Procedure struct {
	Name   string
	Params []Param
	// Declared pre-expectation (quantity-valued, over the initial state).
	Pre ExprId
	// Declared post-expectation (quantity-valued, over the final state).
	Post ExprId
	// Calculus under which the body is transformed.
	Direction Direction
	// Body statement.
	Body Stmt
	// Arena owning every expression reachable from this procedure.
	Arena *ExprArena
	// Spans of statements within the originating source text.
	StmtSpans *source.Map[Stmt]
	// Number of toggle-able statements (asserts/assumes) in the body,
	// i.e. one past the largest toggle identifier.
	Toggles int
	// Source span of each toggle-able statement, indexed by its toggle
	// identifier.
	ToggleSpans []source.Span
	// Span of the procedure declaration itself.
	Span source.Span
}

// Program is a collection of procedures verified together.  Procedures may
// call each other by name; the registry is read-only during verification.
type Program struct {
	Procedures []*Procedure
	// Source file the program was read from, for diagnostics.
	Source *source.File
}

// Procedure looks up a procedure by name.
func (p *Program) Procedure(name string) *Procedure {
	for _, proc := range p.Procedures {
		if proc.Name == name {
			return proc
		}
	}
	//
	return nil
}

// ParamSort looks up the sort of a given parameter, if it exists.
func (p *Procedure) ParamSort(name string) (Sort, bool) {
	for _, param := range p.Params {
		if param.Name == name {
			return param.Sort, true
		}
	}
	//
	return SortBool, false
}
