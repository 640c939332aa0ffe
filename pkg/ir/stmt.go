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

// Stmt is the closed set of statement variants consumed by the calculus
// engine.  The marker method seals the set so that dispatch over variants
// can be checked for exhaustiveness.
type Stmt interface {
	isStmt()
}

// Skip is the empty statement.
type Skip struct{}

// Seq is the sequential composition of zero or more statements.
type Seq struct {
	Stmts []Stmt
}

// Assign assigns the value of an expression to a variable.
type Assign struct {
	Var   string
	Sort  Sort
	Value ExprId
}

// Havoc assigns a nondeterministically chosen value to a variable.  The
// choice is demonic unless Angelic is set.
type Havoc struct {
	Var     string
	Sort    Sort
	Angelic bool
}

// ProbChoice executes the left branch with probability Prob, and the right
// branch with the complementary probability.  Prob is a quantity-valued
// expression over the current state.
type ProbChoice struct {
	Prob  ExprId
	Left  Stmt
	Right Stmt
}

// DemonChoice executes one of its two branches, chosen demonically.
type DemonChoice struct {
	Left  Stmt
	Right Stmt
}

// AngelChoice executes one of its two branches, chosen angelically.
type AngelChoice struct {
	Left  Stmt
	Right Stmt
}

// Assert checks a condition.  Id identifies this statement as a toggle-able
// element for slicing; identifiers are assigned in source order and are
// unique within a procedure.
type Assert struct {
	Id   int
	Cond ExprId
}

// Assume constrains execution to states satisfying a condition.  Like
// Assert, it carries a toggle identifier for slicing.
type Assume struct {
	Id   int
	Cond ExprId
}

// Tick accumulates quantity-valued cost.  Only the expected-runtime
// calculus observes it.
type Tick struct {
	Amount ExprId
}

// While is a loop annotated with a user-supplied invariant expectation.
// The invariant is mandatory: the calculus never unrolls loops nor computes
// fixpoints, so its absence (Invariant == NoExpr) is a structural error.
type While struct {
	Cond      ExprId
	Invariant ExprId
	Body      Stmt
}

// Call invokes another procedure, passing argument expressions for its
// parameters.  Callee contracts are opaque: the callee's own obligations
// are assembled separately.
type Call struct {
	Callee string
	Args   []ExprId
}

func (*Skip) isStmt()        {}
func (*Seq) isStmt()         {}
func (*Assign) isStmt()      {}
func (*Havoc) isStmt()       {}
func (*ProbChoice) isStmt()  {}
func (*DemonChoice) isStmt() {}
func (*AngelChoice) isStmt() {}
func (*Assert) isStmt()      {}
func (*Assume) isStmt()      {}
func (*Tick) isStmt()        {}
func (*While) isStmt()       {}
func (*Call) isStmt()        {}
