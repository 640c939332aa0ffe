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
	"math/big"
	"strings"

	"github.com/heylang/go-heyvl/pkg/quantity"
)

// ExprId is a stable integer handle identifying an expression within its
// owning arena.  Expressions form a DAG: nodes are hash-consed on
// construction, so structurally identical sub-expressions share one handle
// and handle equality coincides with structural equality.
type ExprId uint32

// NoExpr is the distinguished handle denoting the absence of an expression
// (e.g. a loop without an invariant annotation).
const NoExpr ExprId = ^ExprId(0)

// Op identifies the operator of an expression node.  The set of operators
// is closed, allowing exhaustive dispatch in the calculus and the encoder.
type Op uint8

const (
	// OpQuant is a literal quantity (EUReal).
	OpQuant Op = iota
	// OpIntLit is a literal integer.
	OpIntLit
	// OpBoolLit is a literal truth value.
	OpBoolLit
	// OpVar is a variable occurrence.
	OpVar
	// OpAdd is addition, closed over every numeric sort.
	OpAdd
	// OpSub is exact subtraction over Int/Real.  Quantities use OpMonus.
	OpSub
	// OpMul is multiplication, closed over every numeric sort.
	OpMul
	// OpMonus is subtraction saturating at zero (EUReal only).
	OpMonus
	// OpMin is the pointwise minimum of two operands.
	OpMin
	// OpMax is the pointwise maximum of two operands.
	OpMax
	// OpEmbed injects an Int/Real value into EUReal.
	OpEmbed
	// OpEq is equality over any matching sorts.
	OpEq
	// OpLe is (non-strict) comparison, yielding Bool.
	OpLe
	// OpLt is strict comparison, yielding Bool.
	OpLt
	// OpAnd is boolean conjunction.
	OpAnd
	// OpOr is boolean disjunction.
	OpOr
	// OpNot is boolean negation.
	OpNot
	// OpImplies is boolean implication.
	OpImplies
	// OpIte is a conditional over any sort.
	OpIte
	// OpForall is universal quantification of a boolean body.
	OpForall
	// OpExists is existential quantification of a boolean body.
	OpExists
)

// node is the (internal) representation of one expression in the arena.
type node struct {
	op   Op
	sort Sort
	// Operand handles, if any.
	kids []ExprId
	// Literal payloads.
	qty quantity.Quantity
	num *big.Int
	bit bool
	// Variable name (OpVar), or bound variable for quantifiers.
	name string
	// Bound variable sort for quantifiers.
	bound Sort
}

// ExprArena owns the expression DAG of one procedure.  Nodes are immutable
// once constructed and never shared across arenas.
type ExprArena struct {
	nodes []node
	// Hash-consing table mapping a canonical node key to its handle.
	lookup map[string]ExprId
}

// NewArena constructs an empty expression arena.
func NewArena() *ExprArena {
	return &ExprArena{lookup: make(map[string]ExprId)}
}

// Size returns the number of distinct nodes in this arena.
func (p *ExprArena) Size() int {
	return len(p.nodes)
}

// ====================================================================
// Constructors
// ====================================================================

// Quant constructs a literal quantity.
func (p *ExprArena) Quant(q quantity.Quantity) ExprId {
	return p.intern(node{op: OpQuant, sort: SortEUReal, qty: q})
}

// Zero constructs the zero quantity.
func (p *ExprArena) Zero() ExprId {
	return p.Quant(quantity.Zero())
}

// One constructs the unit quantity.
func (p *ExprArena) One() ExprId {
	return p.Quant(quantity.One())
}

// Infinity constructs the infinite quantity.
func (p *ExprArena) Infinity() ExprId {
	return p.Quant(quantity.Infinity())
}

// IntLit constructs a literal integer.
func (p *ExprArena) IntLit(v *big.Int) ExprId {
	return p.intern(node{op: OpIntLit, sort: SortInt, num: new(big.Int).Set(v)})
}

// Int64 constructs a literal integer from a machine integer.
func (p *ExprArena) Int64(v int64) ExprId {
	return p.IntLit(big.NewInt(v))
}

// Bool constructs a literal truth value.
func (p *ExprArena) Bool(b bool) ExprId {
	return p.intern(node{op: OpBoolLit, sort: SortBool, bit: b})
}

// Var constructs a variable occurrence of a given sort.
func (p *ExprArena) Var(name string, sort Sort) ExprId {
	return p.intern(node{op: OpVar, sort: sort, name: name})
}

// Add constructs the sum of two expressions of matching numeric sort.
func (p *ExprArena) Add(x ExprId, y ExprId) ExprId {
	sort := p.numeric(OpAdd, x, y)
	// Fold literals
	if a, b, ok := p.bothQuants(x, y); ok {
		return p.Quant(a.Add(b))
	} else if p.isZeroQuant(x) {
		return y
	} else if p.isZeroQuant(y) {
		return x
	}
	//
	return p.intern(node{op: OpAdd, sort: sort, kids: []ExprId{x, y}})
}

// Sub constructs the exact difference of two Int/Real expressions.
func (p *ExprArena) Sub(x ExprId, y ExprId) ExprId {
	sort := p.numeric(OpSub, x, y)
	if sort == SortEUReal {
		panic("exact subtraction is not closed over EUReal; use Monus")
	}
	//
	return p.intern(node{op: OpSub, sort: sort, kids: []ExprId{x, y}})
}

// Mul constructs the product of two expressions of matching numeric sort.
func (p *ExprArena) Mul(x ExprId, y ExprId) ExprId {
	sort := p.numeric(OpMul, x, y)
	// Fold literals
	if a, b, ok := p.bothQuants(x, y); ok {
		return p.Quant(a.Mul(b))
	} else if p.isOneQuant(x) {
		return y
	} else if p.isOneQuant(y) {
		return x
	} else if p.isZeroQuant(x) || p.isZeroQuant(y) {
		// Sound since infinity times zero is zero.
		return p.Zero()
	}
	//
	return p.intern(node{op: OpMul, sort: sort, kids: []ExprId{x, y}})
}

// Monus constructs the saturating difference of two quantities.
func (p *ExprArena) Monus(x ExprId, y ExprId) ExprId {
	p.require(SortEUReal, x, y)
	//
	if a, b, ok := p.bothQuants(x, y); ok {
		return p.Quant(a.Monus(b))
	} else if p.isZeroQuant(y) {
		return x
	}
	//
	return p.intern(node{op: OpMonus, sort: SortEUReal, kids: []ExprId{x, y}})
}

// Min constructs the pointwise minimum of two expressions.
func (p *ExprArena) Min(x ExprId, y ExprId) ExprId {
	sort := p.numeric(OpMin, x, y)
	//
	if a, b, ok := p.bothQuants(x, y); ok {
		return p.Quant(a.Min(b))
	} else if x == y {
		return x
	}
	//
	return p.intern(node{op: OpMin, sort: sort, kids: []ExprId{x, y}})
}

// Max constructs the pointwise maximum of two expressions.
func (p *ExprArena) Max(x ExprId, y ExprId) ExprId {
	sort := p.numeric(OpMax, x, y)
	//
	if a, b, ok := p.bothQuants(x, y); ok {
		return p.Quant(a.Max(b))
	} else if x == y {
		return x
	}
	//
	return p.intern(node{op: OpMax, sort: sort, kids: []ExprId{x, y}})
}

// Embed injects an Int/Real expression into the quantity domain.  The
// operand must be non-negative in every reachable state; this is a typing
// obligation discharged upstream.
func (p *ExprArena) Embed(x ExprId) ExprId {
	switch p.SortOf(x) {
	case SortInt, SortReal:
		return p.intern(node{op: OpEmbed, sort: SortEUReal, kids: []ExprId{x}})
	case SortEUReal:
		return x
	default:
		panic("embedding a boolean into EUReal")
	}
}

// Eq constructs an equality between two expressions of identical sort.
func (p *ExprArena) Eq(x ExprId, y ExprId) ExprId {
	p.require(p.SortOf(x), x, y)
	//
	if x == y {
		return p.Bool(true)
	}
	//
	return p.intern(node{op: OpEq, sort: SortBool, kids: []ExprId{x, y}})
}

// Le constructs a non-strict comparison between two numeric expressions.
func (p *ExprArena) Le(x ExprId, y ExprId) ExprId {
	p.numeric(OpLe, x, y)
	//
	if x == y {
		return p.Bool(true)
	}
	//
	return p.intern(node{op: OpLe, sort: SortBool, kids: []ExprId{x, y}})
}

// Lt constructs a strict comparison between two numeric expressions.
func (p *ExprArena) Lt(x ExprId, y ExprId) ExprId {
	p.numeric(OpLt, x, y)
	//
	if x == y {
		return p.Bool(false)
	}
	//
	return p.intern(node{op: OpLt, sort: SortBool, kids: []ExprId{x, y}})
}

// And constructs the conjunction of two conditions.
func (p *ExprArena) And(x ExprId, y ExprId) ExprId {
	p.require(SortBool, x, y)
	// Fold literals
	if b, ok := p.boolLit(x); ok {
		if b {
			return y
		}
		//
		return x
	} else if b, ok := p.boolLit(y); ok {
		if b {
			return x
		}
		//
		return y
	}
	//
	return p.intern(node{op: OpAnd, sort: SortBool, kids: []ExprId{x, y}})
}

// Or constructs the disjunction of two conditions.
func (p *ExprArena) Or(x ExprId, y ExprId) ExprId {
	p.require(SortBool, x, y)
	// Fold literals
	if b, ok := p.boolLit(x); ok {
		if b {
			return x
		}
		//
		return y
	} else if b, ok := p.boolLit(y); ok {
		if b {
			return y
		}
		//
		return x
	}
	//
	return p.intern(node{op: OpOr, sort: SortBool, kids: []ExprId{x, y}})
}

// Not constructs the negation of a condition.
func (p *ExprArena) Not(x ExprId) ExprId {
	p.require(SortBool, x)
	// Fold literals and double negations
	if b, ok := p.boolLit(x); ok {
		return p.Bool(!b)
	} else if p.nodes[x].op == OpNot {
		return p.nodes[x].kids[0]
	}
	//
	return p.intern(node{op: OpNot, sort: SortBool, kids: []ExprId{x}})
}

// Implies constructs the implication of two conditions.
func (p *ExprArena) Implies(x ExprId, y ExprId) ExprId {
	p.require(SortBool, x, y)
	// Fold literals
	if b, ok := p.boolLit(x); ok {
		if b {
			return y
		}
		//
		return p.Bool(true)
	} else if b, ok := p.boolLit(y); ok && b {
		return y
	}
	//
	return p.intern(node{op: OpImplies, sort: SortBool, kids: []ExprId{x, y}})
}

// Ite constructs a conditional whose branches have identical sort.
func (p *ExprArena) Ite(cond ExprId, then ExprId, orelse ExprId) ExprId {
	p.require(SortBool, cond)
	p.require(p.SortOf(then), then, orelse)
	// Fold literal conditions
	if b, ok := p.boolLit(cond); ok {
		if b {
			return then
		}
		//
		return orelse
	} else if then == orelse {
		return then
	}
	//
	return p.intern(node{op: OpIte, sort: p.SortOf(then), kids: []ExprId{cond, then, orelse}})
}

// Forall constructs a universally quantified condition.
func (p *ExprArena) Forall(v Param, body ExprId) ExprId {
	p.require(SortBool, body)
	return p.intern(node{op: OpForall, sort: SortBool, kids: []ExprId{body}, name: v.Name, bound: v.Sort})
}

// Exists constructs an existentially quantified condition.
func (p *ExprArena) Exists(v Param, body ExprId) ExprId {
	p.require(SortBool, body)
	return p.intern(node{op: OpExists, sort: SortBool, kids: []ExprId{body}, name: v.Name, bound: v.Sort})
}

// ====================================================================
// Accessors
// ====================================================================

// OpOf returns the operator of a given expression.
func (p *ExprArena) OpOf(e ExprId) Op {
	return p.nodes[e].op
}

// SortOf returns the sort of a given expression.
func (p *ExprArena) SortOf(e ExprId) Sort {
	return p.nodes[e].sort
}

// KidsOf returns the operand handles of a given expression.
func (p *ExprArena) KidsOf(e ExprId) []ExprId {
	return p.nodes[e].kids
}

// QuantOf returns the literal quantity held by an OpQuant node.
func (p *ExprArena) QuantOf(e ExprId) quantity.Quantity {
	return p.nodes[e].qty
}

// IntOf returns the literal value held by an OpIntLit node.
func (p *ExprArena) IntOf(e ExprId) *big.Int {
	return p.nodes[e].num
}

// BoolOf returns the literal value held by an OpBoolLit node.
func (p *ExprArena) BoolOf(e ExprId) bool {
	return p.nodes[e].bit
}

// NameOf returns the variable name of an OpVar node, or the bound variable
// of a quantifier.
func (p *ExprArena) NameOf(e ExprId) string {
	return p.nodes[e].name
}

// BoundSortOf returns the sort of the variable bound by a quantifier node.
func (p *ExprArena) BoundSortOf(e ExprId) Sort {
	return p.nodes[e].bound
}

// ====================================================================
// Substitution and free variables
// ====================================================================

// Subst returns the expression obtained by substituting every free
// occurrence of a given variable with a given expression.  Binders which
// shadow the variable block the substitution; substituting an expression
// whose free variables include a binder's name would capture them, so
// that panics rather than silently changing meaning.  Memoised per node,
// so shared sub-expressions are rewritten at most once.
func (p *ExprArena) Subst(e ExprId, name string, with ExprId) ExprId {
	free := make(map[string]Sort)
	p.FreeVars(with, free)
	//
	return p.subst(e, name, with, free, make(map[ExprId]ExprId))
}

func (p *ExprArena) subst(e ExprId, name string, with ExprId,
	withFree map[string]Sort, memo map[ExprId]ExprId) ExprId {
	if r, ok := memo[e]; ok {
		return r
	}
	//
	n := p.nodes[e]
	result := e
	//
	switch n.op {
	case OpVar:
		if n.name == name {
			if p.SortOf(with) != n.sort {
				panic(fmt.Sprintf("substituting %s expression for %s variable %s",
					p.SortOf(with), n.sort, name))
			}
			//
			result = with
		}
	case OpForall, OpExists:
		// Shadowed binders block substitution.
		if n.name != name {
			body := p.subst(n.kids[0], name, with, withFree, memo)
			if body != n.kids[0] {
				if _, captured := withFree[n.name]; captured {
					panic(fmt.Sprintf("substituting for %s under binder %s would capture",
						name, n.name))
				}
				//
				result = p.intern(node{op: n.op, sort: SortBool, kids: []ExprId{body},
					name: n.name, bound: n.bound})
			}
		}
	default:
		if len(n.kids) > 0 {
			kids := make([]ExprId, len(n.kids))
			changed := false
			//
			for i, k := range n.kids {
				kids[i] = p.subst(k, name, with, withFree, memo)
				changed = changed || kids[i] != k
			}
			//
			if changed {
				result = p.rebuild(n.op, kids)
			}
		}
	}
	//
	memo[e] = result
	//
	return result
}

// rebuild reconstructs a node with new operands, going through the public
// constructors so folding still applies.
func (p *ExprArena) rebuild(op Op, kids []ExprId) ExprId {
	switch op {
	case OpAdd:
		return p.Add(kids[0], kids[1])
	case OpSub:
		return p.Sub(kids[0], kids[1])
	case OpMul:
		return p.Mul(kids[0], kids[1])
	case OpMonus:
		return p.Monus(kids[0], kids[1])
	case OpMin:
		return p.Min(kids[0], kids[1])
	case OpMax:
		return p.Max(kids[0], kids[1])
	case OpEmbed:
		return p.Embed(kids[0])
	case OpEq:
		return p.Eq(kids[0], kids[1])
	case OpLe:
		return p.Le(kids[0], kids[1])
	case OpLt:
		return p.Lt(kids[0], kids[1])
	case OpAnd:
		return p.And(kids[0], kids[1])
	case OpOr:
		return p.Or(kids[0], kids[1])
	case OpNot:
		return p.Not(kids[0])
	case OpImplies:
		return p.Implies(kids[0], kids[1])
	case OpIte:
		return p.Ite(kids[0], kids[1], kids[2])
	default:
		panic(fmt.Sprintf("rebuilding leaf operator: %d", op))
	}
}

// FreeVars accumulates the free variables of an expression into a given
// map from name to sort.
func (p *ExprArena) FreeVars(e ExprId, into map[string]Sort) {
	p.freeVars(e, into, make(map[ExprId]bool), make(map[string]bool))
}

func (p *ExprArena) freeVars(e ExprId, into map[string]Sort, seen map[ExprId]bool, bound map[string]bool) {
	// The seen set is only valid while the bound set is empty, since a node
	// reachable both inside and outside a binder must be revisited.
	if len(bound) == 0 && seen[e] {
		return
	} else if len(bound) == 0 {
		seen[e] = true
	}
	//
	n := p.nodes[e]
	//
	switch n.op {
	case OpVar:
		if !bound[n.name] {
			into[n.name] = n.sort
		}
	case OpForall, OpExists:
		shadowed := bound[n.name]
		bound[n.name] = true
		p.freeVars(n.kids[0], into, seen, bound)
		//
		if !shadowed {
			delete(bound, n.name)
		}
	default:
		for _, k := range n.kids {
			p.freeVars(k, into, seen, bound)
		}
	}
}

// ====================================================================
// Rendering
// ====================================================================

// String renders an expression as a human-readable term, primarily for
// explain output and debugging.
func (p *ExprArena) String(e ExprId) string {
	var builder strings.Builder
	//
	p.write(&builder, e)
	//
	return builder.String()
}

func (p *ExprArena) write(builder *strings.Builder, e ExprId) {
	n := p.nodes[e]
	//
	switch n.op {
	case OpQuant:
		builder.WriteString(n.qty.String())
	case OpIntLit:
		builder.WriteString(n.num.String())
	case OpBoolLit:
		fmt.Fprintf(builder, "%t", n.bit)
	case OpVar:
		builder.WriteString(n.name)
	case OpForall, OpExists:
		fmt.Fprintf(builder, "(%s ((%s %s)) ", opSymbol(n.op), n.name, n.bound)
		p.write(builder, n.kids[0])
		builder.WriteString(")")
	default:
		fmt.Fprintf(builder, "(%s", opSymbol(n.op))
		//
		for _, k := range n.kids {
			builder.WriteString(" ")
			p.write(builder, k)
		}
		//
		builder.WriteString(")")
	}
}

func opSymbol(op Op) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpMonus:
		return "monus"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpEmbed:
		return "embed"
	case OpEq:
		return "="
	case OpLe:
		return "<="
	case OpLt:
		return "<"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	case OpImplies:
		return "=>"
	case OpIte:
		return "ite"
	case OpForall:
		return "forall"
	case OpExists:
		return "exists"
	default:
		panic(fmt.Sprintf("unknown operator: %d", op))
	}
}

// ====================================================================
// Internals
// ====================================================================

// intern returns the canonical handle for a given node, constructing it if
// no structurally identical node exists yet.
func (p *ExprArena) intern(n node) ExprId {
	key := n.key()
	//
	if id, ok := p.lookup[key]; ok {
		return id
	}
	//
	id := ExprId(len(p.nodes))
	p.nodes = append(p.nodes, n)
	p.lookup[key] = id
	//
	return id
}

// key produces the canonical hash-consing key of a node.
func (n *node) key() string {
	var builder strings.Builder
	//
	fmt.Fprintf(&builder, "%d:%d:%s", n.op, n.sort, n.name)
	//
	switch n.op {
	case OpQuant:
		builder.WriteString(n.qty.String())
	case OpIntLit:
		builder.WriteString(n.num.String())
	case OpBoolLit:
		fmt.Fprintf(&builder, "%t", n.bit)
	case OpForall, OpExists:
		fmt.Fprintf(&builder, "%d", n.bound)
	}
	//
	for _, k := range n.kids {
		fmt.Fprintf(&builder, ":%d", k)
	}
	//
	return builder.String()
}

// require checks that every given expression has the expected sort.
func (p *ExprArena) require(sort Sort, exprs ...ExprId) {
	for _, e := range exprs {
		if p.SortOf(e) != sort {
			panic(fmt.Sprintf("expected %s operand, found %s", sort, p.SortOf(e)))
		}
	}
}

// numeric checks that both operands share a numeric sort, returning it.
func (p *ExprArena) numeric(op Op, x ExprId, y ExprId) Sort {
	sort := p.SortOf(x)
	//
	if sort == SortBool {
		panic(fmt.Sprintf("boolean operand for %s", opSymbol(op)))
	} else if p.SortOf(y) != sort {
		panic(fmt.Sprintf("mixed operand sorts for %s: %s vs %s", opSymbol(op), sort, p.SortOf(y)))
	}
	//
	return sort
}

// Literal inspection helpers used for folding.

func (p *ExprArena) bothQuants(x ExprId, y ExprId) (quantity.Quantity, quantity.Quantity, bool) {
	if p.nodes[x].op == OpQuant && p.nodes[y].op == OpQuant {
		return p.nodes[x].qty, p.nodes[y].qty, true
	}
	//
	return quantity.Zero(), quantity.Zero(), false
}

func (p *ExprArena) isZeroQuant(e ExprId) bool {
	return p.nodes[e].op == OpQuant && p.nodes[e].qty.IsZero()
}

func (p *ExprArena) isOneQuant(e ExprId) bool {
	n := p.nodes[e]
	return n.op == OpQuant && !n.qty.IsInf() && n.qty.Cmp(quantity.One()) == 0
}

func (p *ExprArena) boolLit(e ExprId) (bool, bool) {
	if p.nodes[e].op == OpBoolLit {
		return p.nodes[e].bit, true
	}
	//
	return false, false
}
