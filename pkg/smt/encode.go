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

// Package smt encodes obligations into the solver's theory and manages
// solver sessions.  The quantity domain has no native solver
// representation: every EUReal term is encoded as a pair of a Real
// component and a boolean is-infinite tag.  The Real component of a pair
// is only meaningful when its tag is false, and every consumer in this
// package guards on the tag before using it; this keeps the encoding
// portable across solver back-ends.
package smt

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/heylang/go-heyvl/pkg/calculus"
	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/util/sexp"
	"github.com/heylang/go-heyvl/pkg/vcgen"
)

// InfSuffix is appended to an EUReal variable's name to form the name of
// its is-infinite tag.
const InfSuffix = "!inf"

// Script is the rendered SMT-LIB query for one obligation: declarations
// and assertions, ready to submit inside a push/pop scope.  The obligation
// formula is asserted negated, so an unsatisfiable script proves it.
type Script struct {
	Commands []sexp.SExp
}

// Text returns the canonical textual form of this script, one command per
// line.  This is the key used by the obligation cache.
func (p *Script) Text() string {
	var builder strings.Builder
	//
	for _, cmd := range p.Commands {
		builder.WriteString(cmd.String())
		builder.WriteString("\n")
	}
	//
	return builder.String()
}

// EncodeObligation renders an obligation as an SMT-LIB script.  The
// universal closure is skolemised away by the negation: closed variables
// become free constants, so a satisfying assignment is a counterexample to
// the obligation.  When the obligation was assembled with slicing
// instrumentation, active pins each toggle variable to a concrete value; a
// nil active set leaves every element active.
func EncodeObligation(arena *ir.ExprArena, ob vcgen.Obligation, toggles int, active []bool) *Script {
	e := &encoder{arena: arena, memo: make(map[ir.ExprId]pair)}
	script := &Script{}
	// Declare the skolemised closure.
	for _, v := range ob.Vars {
		script.Commands = append(script.Commands, declarations(v)...)
	}
	// Pin toggle variables.
	for id := 0; id < toggles; id++ {
		name := sexp.NewSymbol(calculus.ToggleVar(id))
		script.Commands = append(script.Commands,
			sexp.NewList(sexp.NewSymbol("declare-const"), name, sexp.NewSymbol("Bool")))
		//
		value := sexp.SExp(name)
		if active != nil && !active[id] {
			value = sexp.NewList(sexp.NewSymbol("not"), name)
		}
		//
		script.Commands = append(script.Commands, sexp.NewList(sexp.NewSymbol("assert"), value))
	}
	// Assert the negated formula.
	negated := sexp.NewList(sexp.NewSymbol("not"), e.boolTerm(ob.Formula))
	script.Commands = append(script.Commands, sexp.NewList(sexp.NewSymbol("assert"), negated))
	//
	return script
}

// declarations renders the constant declarations for one closed variable,
// including the non-negativity side constraint required of every declared
// quantity.
func declarations(v ir.Param) []sexp.SExp {
	name := sexp.NewSymbol(v.Name)
	//
	switch v.Sort {
	case ir.SortBool, ir.SortInt, ir.SortReal:
		return []sexp.SExp{
			sexp.NewList(sexp.NewSymbol("declare-const"), name, sexp.NewSymbol(v.Sort.String())),
		}
	case ir.SortEUReal:
		tag := sexp.NewSymbol(v.Name + InfSuffix)
		return []sexp.SExp{
			sexp.NewList(sexp.NewSymbol("declare-const"), name, sexp.NewSymbol("Real")),
			sexp.NewList(sexp.NewSymbol("declare-const"), tag, sexp.NewSymbol("Bool")),
			sexp.NewList(sexp.NewSymbol("assert"),
				sexp.NewList(sexp.NewSymbol(">="), name, sexp.NewSymbol("0.0"))),
		}
	default:
		panic(fmt.Sprintf("unknown sort: %d", v.Sort))
	}
}

// pair is the encoded form of one EUReal term.
type pair struct {
	// Real-valued component; only meaningful when inf is false.
	re sexp.SExp
	// Is-infinite tag.
	inf sexp.SExp
}

type encoder struct {
	arena *ir.ExprArena
	// Encoded EUReal terms, memoised per handle so DAG sharing is not
	// undone by the recursion.
	memo map[ir.ExprId]pair
}

var (
	symTrue  = sexp.NewSymbol("true")
	symFalse = sexp.NewSymbol("false")
	symZero  = sexp.NewSymbol("0.0")
)

// boolTerm encodes a Bool-sorted expression as a single solver term.
func (e *encoder) boolTerm(x ir.ExprId) sexp.SExp {
	arena := e.arena
	kids := arena.KidsOf(x)
	//
	switch arena.OpOf(x) {
	case ir.OpBoolLit:
		if arena.BoolOf(x) {
			return symTrue
		}
		//
		return symFalse
	case ir.OpVar:
		return sexp.NewSymbol(arena.NameOf(x))
	case ir.OpAnd:
		return list("and", e.boolTerm(kids[0]), e.boolTerm(kids[1]))
	case ir.OpOr:
		return list("or", e.boolTerm(kids[0]), e.boolTerm(kids[1]))
	case ir.OpNot:
		return list("not", e.boolTerm(kids[0]))
	case ir.OpImplies:
		return list("=>", e.boolTerm(kids[0]), e.boolTerm(kids[1]))
	case ir.OpIte:
		return list("ite", e.boolTerm(kids[0]), e.boolTerm(kids[1]), e.boolTerm(kids[2]))
	case ir.OpEq:
		return e.comparison("=", kids[0], kids[1])
	case ir.OpLe:
		return e.comparison("<=", kids[0], kids[1])
	case ir.OpLt:
		return e.comparison("<", kids[0], kids[1])
	case ir.OpForall:
		return e.quantifier("forall", x)
	case ir.OpExists:
		return e.quantifier("exists", x)
	default:
		panic(fmt.Sprintf("encoding %s as boolean", arena.String(x)))
	}
}

// comparison encodes a comparison, lifting it over the pair encoding when
// the operands are quantities.  The extended order makes infinity the
// maximum element: a <= b holds whenever b is infinite, and never when
// only a is.
func (e *encoder) comparison(op string, x ir.ExprId, y ir.ExprId) sexp.SExp {
	if e.arena.SortOf(x) == ir.SortBool {
		// Equality over booleans
		return list(op, e.boolTerm(x), e.boolTerm(y))
	} else if e.arena.SortOf(x) != ir.SortEUReal {
		return list(op, e.scalarTerm(x), e.scalarTerm(y))
	}
	//
	a, b := e.pairTerm(x), e.pairTerm(y)
	//
	switch op {
	case "<=":
		// b infinite, or both finite and the components compare.
		return list("or", b.inf,
			list("and", list("not", a.inf), list("<=", a.re, b.re)))
	case "<":
		return list("and", list("not", a.inf),
			list("or", b.inf, list("<", a.re, b.re)))
	default:
		return list("or",
			list("and", a.inf, b.inf),
			list("and", list("not", a.inf), list("not", b.inf), list("=", a.re, b.re)))
	}
}

func (e *encoder) quantifier(op string, x ir.ExprId) sexp.SExp {
	arena := e.arena
	name := arena.NameOf(x)
	binders := sexp.NewList()
	//
	body := e.boolTerm(arena.KidsOf(x)[0])
	//
	if arena.BoundSortOf(x) == ir.SortEUReal {
		// A quantity binder splits into its component and tag.
		binders.Append(sexp.NewList(sexp.NewSymbol(name), sexp.NewSymbol("Real")))
		binders.Append(sexp.NewList(sexp.NewSymbol(name+InfSuffix), sexp.NewSymbol("Bool")))
		// The component ranges over all reals, so the domain restriction
		// must be spelled out, relativised to the quantifier's polarity.
		nonneg := list(">=", sexp.NewSymbol(name), symZero)
		if op == "forall" {
			body = list("=>", nonneg, body)
		} else {
			body = list("and", nonneg, body)
		}
	} else {
		binders.Append(sexp.NewList(sexp.NewSymbol(name), sexp.NewSymbol(arena.BoundSortOf(x).String())))
	}
	//
	return list(op, binders, body)
}

// scalarTerm encodes an Int/Real-sorted expression as a single solver
// term.
func (e *encoder) scalarTerm(x ir.ExprId) sexp.SExp {
	arena := e.arena
	kids := arena.KidsOf(x)
	//
	switch arena.OpOf(x) {
	case ir.OpIntLit:
		return intTerm(arena.IntOf(x))
	case ir.OpVar:
		return sexp.NewSymbol(arena.NameOf(x))
	case ir.OpAdd:
		return list("+", e.scalarTerm(kids[0]), e.scalarTerm(kids[1]))
	case ir.OpSub:
		return list("-", e.scalarTerm(kids[0]), e.scalarTerm(kids[1]))
	case ir.OpMul:
		return list("*", e.scalarTerm(kids[0]), e.scalarTerm(kids[1]))
	case ir.OpMin:
		a, b := e.scalarTerm(kids[0]), e.scalarTerm(kids[1])
		return list("ite", list("<=", a, b), a, b)
	case ir.OpMax:
		a, b := e.scalarTerm(kids[0]), e.scalarTerm(kids[1])
		return list("ite", list("<=", a, b), b, a)
	case ir.OpIte:
		return list("ite", e.boolTerm(kids[0]), e.scalarTerm(kids[1]), e.scalarTerm(kids[2]))
	default:
		panic(fmt.Sprintf("encoding %s as scalar", arena.String(x)))
	}
}

// pairTerm encodes an EUReal-sorted expression as a (component, tag)
// pair, following the extended-real arithmetic rules.  Wherever a possibly
// infinite operand feeds a component, it is guarded to zero first, which
// both keeps components well-defined and makes infinity times zero come
// out as exactly zero.
func (e *encoder) pairTerm(x ir.ExprId) pair {
	if p, ok := e.memo[x]; ok {
		return p
	}
	//
	arena := e.arena
	kids := arena.KidsOf(x)
	//
	var p pair
	//
	switch arena.OpOf(x) {
	case ir.OpQuant:
		q := arena.QuantOf(x)
		if q.IsInf() {
			p = pair{symZero, symTrue}
		} else {
			p = pair{ratTerm(q.Rat()), symFalse}
		}
	case ir.OpVar:
		p = pair{sexp.NewSymbol(arena.NameOf(x)), sexp.NewSymbol(arena.NameOf(x) + InfSuffix)}
	case ir.OpEmbed:
		inner := e.scalarTerm(kids[0])
		if arena.SortOf(kids[0]) == ir.SortInt {
			inner = list("to_real", inner)
		}
		//
		p = pair{inner, symFalse}
	case ir.OpAdd:
		a, b := e.pairTerm(kids[0]), e.pairTerm(kids[1])
		p = pair{
			list("+", e.guard(a), e.guard(b)),
			list("or", a.inf, b.inf),
		}
	case ir.OpMul:
		a, b := e.pairTerm(kids[0]), e.pairTerm(kids[1])
		// Guarded components make the infinite-times-zero case exact.
		p = pair{
			list("*", e.guard(a), e.guard(b)),
			list("or",
				list("and", a.inf, e.nonzero(b)),
				list("and", b.inf, e.nonzero(a))),
		}
	case ir.OpMonus:
		a, b := e.pairTerm(kids[0]), e.pairTerm(kids[1])
		ga, gb := e.guard(a), e.guard(b)
		// An infinite subtrahend truncates everything to zero; the guard
		// alone would leave the minuend's component behind.
		p = pair{
			list("ite", list("or", b.inf, list("<=", ga, gb)), symZero, list("-", ga, gb)),
			list("and", a.inf, list("not", b.inf)),
		}
	case ir.OpMin:
		a, b := e.pairTerm(kids[0]), e.pairTerm(kids[1])
		ga, gb := e.guard(a), e.guard(b)
		p = pair{
			list("ite", a.inf, gb, list("ite", b.inf, ga, list("ite", list("<=", ga, gb), ga, gb))),
			list("and", a.inf, b.inf),
		}
	case ir.OpMax:
		a, b := e.pairTerm(kids[0]), e.pairTerm(kids[1])
		ga, gb := e.guard(a), e.guard(b)
		p = pair{
			list("ite", list("<=", ga, gb), gb, ga),
			list("or", a.inf, b.inf),
		}
	case ir.OpIte:
		cond := e.boolTerm(kids[0])
		a, b := e.pairTerm(kids[1]), e.pairTerm(kids[2])
		p = pair{
			list("ite", cond, a.re, b.re),
			list("ite", cond, a.inf, b.inf),
		}
	default:
		panic(fmt.Sprintf("encoding %s as quantity", arena.String(x)))
	}
	//
	e.memo[x] = p
	//
	return p
}

// guard returns the component of a pair, forced to zero when the tag is
// set.  Consumers must never read an unguarded component of a possibly
// infinite term.
func (e *encoder) guard(p pair) sexp.SExp {
	if p.inf == symFalse {
		return p.re
	}
	//
	return list("ite", p.inf, symZero, p.re)
}

// nonzero checks whether a pair denotes a non-zero quantity.
func (e *encoder) nonzero(p pair) sexp.SExp {
	return list("or", p.inf, list("distinct", p.re, symZero))
}

// ratTerm renders a non-negative rational as a Real-sorted term.
func ratTerm(r *big.Rat) sexp.SExp {
	if r.IsInt() {
		return sexp.NewSymbol(r.Num().String() + ".0")
	}
	//
	return list("/",
		sexp.NewSymbol(r.Num().String()+".0"),
		sexp.NewSymbol(r.Denom().String()+".0"))
}

// intTerm renders an integer literal, wrapping negatives per SMT-LIB
// syntax.
func intTerm(v *big.Int) sexp.SExp {
	if v.Sign() < 0 {
		return list("-", sexp.NewSymbol(new(big.Int).Neg(v).String()))
	}
	//
	return sexp.NewSymbol(v.String())
}

func list(head string, rest ...sexp.SExp) sexp.SExp {
	elements := append([]sexp.SExp{sexp.NewSymbol(head)}, rest...)
	return sexp.NewList(elements...)
}
