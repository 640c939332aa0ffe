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
	"github.com/heylang/go-heyvl/pkg/util/sexp"
	"github.com/heylang/go-heyvl/pkg/util/source"
)

// ParseProgram reads a program in its serialised S-expression form.  This
// is a deserialiser for the intermediate verification language, not a
// front-end: concrete surface syntax is handled by upstream tooling.  Each
// procedure has the shape
//
//	(proc name ((x Sort) ...) direction
//	    (pre expr) (post expr) (body stmt ...))
//
// Undeclared variables and sort mismatches are rejected here, so that the
// calculus engine can assume well-sorted input.
func ParseProgram(srcfile *source.File) (*Program, *source.SyntaxError) {
	terms, srcmap, err := sexp.ParseAll(srcfile)
	if err != nil {
		return nil, err
	}
	//
	program := &Program{Source: srcfile}
	//
	for _, term := range terms {
		p := &procParser{
			srcmap:  srcmap,
			arena:   NewArena(),
			env:     make(map[string]Sort),
			srcfile: srcfile,
		}
		//
		proc, err := p.parseProc(term)
		if err != nil {
			return nil, err
		} else if program.Procedure(proc.Name) != nil {
			return nil, srcmap.SyntaxError(term, fmt.Sprintf("duplicate procedure \"%s\"", proc.Name))
		}
		//
		program.Procedures = append(program.Procedures, proc)
	}
	//
	return program, nil
}

// noHint indicates no expected sort whilst parsing an expression.
const noHint = Sort(255)

// procParser holds the state accumulated whilst parsing one procedure.
type procParser struct {
	srcmap  *source.Map[sexp.SExp]
	srcfile *source.File
	arena   *ExprArena
	// Variables in scope, with their sorts.
	env map[string]Sort
	// Statement spans, keyed by statement value.
	spans *source.Map[Stmt]
	// Next toggle identifier to assign.
	toggles int
	// Span of each toggle-able statement, by identifier.
	toggleSpans []source.Span
}

func (p *procParser) parseProc(term sexp.SExp) (*Procedure, *source.SyntaxError) {
	list := term.AsList()
	if list == nil || !list.MatchHead(4, "proc") {
		return nil, p.error(term, "expected (proc name params direction ...)")
	}
	//
	name := list.Get(1).AsSymbol()
	if name == nil {
		return nil, p.error(list.Get(1), "expected procedure name")
	}
	//
	params, err := p.parseParams(list.Get(2))
	if err != nil {
		return nil, err
	}
	//
	dirSym := list.Get(3).AsSymbol()
	if dirSym == nil {
		return nil, p.error(list.Get(3), "expected calculus direction")
	}
	//
	direction, ok := DirectionOf(dirSym.Value)
	if !ok {
		return nil, p.error(list.Get(3), fmt.Sprintf("unknown calculus \"%s\"", dirSym.Value))
	}
	//
	p.spans = source.NewMap[Stmt](p.srcfile)
	//
	proc := &Procedure{
		Name:      name.Value,
		Params:    params,
		Direction: direction,
		Pre:       NoExpr,
		Post:      NoExpr,
		Arena:     p.arena,
		StmtSpans: p.spans,
		Span:      p.srcmap.Get(term),
	}
	// Remaining clauses: pre, post, body (in any order).
	for i := 4; i < list.Len(); i++ {
		clause := list.Get(i).AsList()
		if clause == nil || clause.Len() == 0 {
			return nil, p.error(list.Get(i), "expected (pre ...), (post ...) or (body ...)")
		}
		//
		switch clause.Head() {
		case "pre":
			if clause.Len() != 2 {
				return nil, p.error(clause, "malformed pre-expectation")
			}
			//
			proc.Pre, err = p.parseExpr(clause.Get(1), SortEUReal)
		case "post":
			if clause.Len() != 2 {
				return nil, p.error(clause, "malformed post-expectation")
			}
			//
			proc.Post, err = p.parseExpr(clause.Get(1), SortEUReal)
		case "body":
			proc.Body, err = p.parseSeq(clause.Elements[1:], clause)
		default:
			return nil, p.error(clause, fmt.Sprintf("unknown clause \"%s\"", clause.Head()))
		}
		//
		if err != nil {
			return nil, err
		}
	}
	// Check mandatory clauses are all present.
	switch {
	case proc.Pre == NoExpr:
		return nil, p.error(term, "procedure missing pre-expectation")
	case proc.Post == NoExpr:
		return nil, p.error(term, "procedure missing post-expectation")
	case proc.Body == nil:
		return nil, p.error(term, "procedure missing body")
	}
	//
	proc.Toggles = p.toggles
	proc.ToggleSpans = p.toggleSpans
	//
	return proc, nil
}

func (p *procParser) parseParams(term sexp.SExp) ([]Param, *source.SyntaxError) {
	list := term.AsList()
	if list == nil {
		return nil, p.error(term, "expected parameter list")
	}
	//
	params := make([]Param, list.Len())
	//
	for i, e := range list.Elements {
		pair := e.AsList()
		if pair == nil || pair.Len() != 2 || pair.Get(0).AsSymbol() == nil || pair.Get(1).AsSymbol() == nil {
			return nil, p.error(e, "expected (name Sort) parameter")
		}
		//
		name := pair.Get(0).AsSymbol().Value
		//
		sort, ok := SortOf(pair.Get(1).AsSymbol().Value)
		if !ok {
			return nil, p.error(pair.Get(1), fmt.Sprintf("unknown sort \"%s\"", pair.Get(1).AsSymbol().Value))
		} else if _, exists := p.env[name]; exists {
			return nil, p.error(pair.Get(0), fmt.Sprintf("duplicate variable \"%s\"", name))
		}
		//
		params[i] = Param{name, sort}
		p.env[name] = sort
	}
	//
	return params, nil
}

// ====================================================================
// Statements
// ====================================================================

func (p *procParser) parseSeq(elements []sexp.SExp, enclosing sexp.SExp) (Stmt, *source.SyntaxError) {
	stmts := make([]Stmt, len(elements))
	//
	for i, e := range elements {
		stmt, err := p.parseStmt(e)
		if err != nil {
			return nil, err
		}
		//
		stmts[i] = stmt
	}
	// Avoid needless nesting
	switch len(stmts) {
	case 0:
		stmt := &Skip{}
		p.putSpan(stmt, enclosing)
		//
		return stmt, nil
	case 1:
		return stmts[0], nil
	default:
		stmt := &Seq{stmts}
		p.putSpan(stmt, enclosing)
		//
		return stmt, nil
	}
}

func (p *procParser) parseStmt(term sexp.SExp) (Stmt, *source.SyntaxError) {
	list := term.AsList()
	if list == nil || list.Head() == "" {
		return nil, p.error(term, "expected statement")
	}
	//
	var (
		stmt Stmt
		err  *source.SyntaxError
	)
	//
	switch list.Head() {
	case "skip":
		stmt = &Skip{}
	case "seq":
		return p.parseSeq(list.Elements[1:], term)
	case "assign":
		stmt, err = p.parseAssign(list)
	case "havoc":
		stmt, err = p.parseHavoc(list, false)
	case "cohavoc":
		stmt, err = p.parseHavoc(list, true)
	case "prob":
		stmt, err = p.parseProbChoice(list)
	case "demon":
		stmt, err = p.parseBranches(list, false)
	case "angel":
		stmt, err = p.parseBranches(list, true)
	case "assert":
		stmt, err = p.parseCheck(list, true)
	case "assume":
		stmt, err = p.parseCheck(list, false)
	case "tick":
		stmt, err = p.parseTick(list)
	case "while":
		stmt, err = p.parseWhile(list)
	case "call":
		stmt, err = p.parseCall(list)
	default:
		return nil, p.error(term, fmt.Sprintf("unknown statement \"%s\"", list.Head()))
	}
	//
	if err != nil {
		return nil, err
	}
	//
	p.putSpan(stmt, term)
	//
	return stmt, nil
}

func (p *procParser) parseAssign(list *sexp.List) (Stmt, *source.SyntaxError) {
	if list.Len() != 3 || list.Get(1).AsSymbol() == nil {
		return nil, p.error(list, "expected (assign var expr)")
	}
	//
	name := list.Get(1).AsSymbol().Value
	//
	sort, ok := p.env[name]
	if !ok {
		return nil, p.error(list.Get(1), fmt.Sprintf("undeclared variable \"%s\"", name))
	}
	//
	value, err := p.parseExpr(list.Get(2), sort)
	if err != nil {
		return nil, err
	}
	//
	return &Assign{name, sort, value}, nil
}

func (p *procParser) parseHavoc(list *sexp.List, angelic bool) (Stmt, *source.SyntaxError) {
	if list.Len() != 2 && list.Len() != 3 {
		return nil, p.error(list, "expected (havoc var) or (havoc var Sort)")
	} else if list.Get(1).AsSymbol() == nil {
		return nil, p.error(list.Get(1), "expected variable name")
	}
	//
	name := list.Get(1).AsSymbol().Value
	//
	sort, declared := p.env[name]
	// A three-element havoc introduces a local variable.
	if list.Len() == 3 {
		sortSym := list.Get(2).AsSymbol()
		if sortSym == nil {
			return nil, p.error(list.Get(2), "expected sort")
		} else if declared {
			return nil, p.error(list.Get(1), fmt.Sprintf("duplicate variable \"%s\"", name))
		}
		//
		var ok bool
		if sort, ok = SortOf(sortSym.Value); !ok {
			return nil, p.error(list.Get(2), fmt.Sprintf("unknown sort \"%s\"", sortSym.Value))
		}
		//
		p.env[name] = sort
	} else if !declared {
		return nil, p.error(list.Get(1), fmt.Sprintf("undeclared variable \"%s\"", name))
	}
	//
	return &Havoc{name, sort, angelic}, nil
}

func (p *procParser) parseProbChoice(list *sexp.List) (Stmt, *source.SyntaxError) {
	if list.Len() != 4 {
		return nil, p.error(list, "expected (prob p stmt stmt)")
	}
	//
	prob, err := p.parseExpr(list.Get(1), SortEUReal)
	if err != nil {
		return nil, err
	}
	//
	left, err := p.parseStmt(list.Get(2))
	if err != nil {
		return nil, err
	}
	//
	right, err := p.parseStmt(list.Get(3))
	if err != nil {
		return nil, err
	}
	//
	return &ProbChoice{prob, left, right}, nil
}

func (p *procParser) parseBranches(list *sexp.List, angelic bool) (Stmt, *source.SyntaxError) {
	if list.Len() != 3 {
		return nil, p.error(list, fmt.Sprintf("expected (%s stmt stmt)", list.Head()))
	}
	//
	left, err := p.parseStmt(list.Get(1))
	if err != nil {
		return nil, err
	}
	//
	right, err := p.parseStmt(list.Get(2))
	if err != nil {
		return nil, err
	}
	//
	if angelic {
		return &AngelChoice{left, right}, nil
	}
	//
	return &DemonChoice{left, right}, nil
}

func (p *procParser) parseCheck(list *sexp.List, isAssert bool) (Stmt, *source.SyntaxError) {
	if list.Len() != 2 {
		return nil, p.error(list, fmt.Sprintf("expected (%s cond)", list.Head()))
	}
	//
	cond, err := p.parseExpr(list.Get(1), SortBool)
	if err != nil {
		return nil, err
	}
	// Assign the next toggle identifier in source order.
	id := p.toggles
	p.toggles++
	p.toggleSpans = append(p.toggleSpans, p.srcmap.Get(list))
	//
	if isAssert {
		return &Assert{id, cond}, nil
	}
	//
	return &Assume{id, cond}, nil
}

func (p *procParser) parseTick(list *sexp.List) (Stmt, *source.SyntaxError) {
	if list.Len() != 2 {
		return nil, p.error(list, "expected (tick amount)")
	}
	//
	amount, err := p.parseExpr(list.Get(1), SortEUReal)
	if err != nil {
		return nil, err
	}
	//
	return &Tick{amount}, nil
}

func (p *procParser) parseWhile(list *sexp.List) (Stmt, *source.SyntaxError) {
	if list.Len() < 2 {
		return nil, p.error(list, "expected (while cond (invariant expr) stmt ...)")
	}
	//
	cond, err := p.parseExpr(list.Get(1), SortBool)
	if err != nil {
		return nil, err
	}
	// The invariant clause is syntactically optional; its absence is
	// reported by the calculus engine as a structural error so that every
	// other procedure still verifies.
	invariant := NoExpr
	bodyStart := 2
	//
	if list.Len() > 2 {
		if clause := list.Get(2).AsList(); clause != nil && clause.MatchHead(2, "invariant") {
			if clause.Len() != 2 {
				return nil, p.error(clause, "malformed invariant")
			}
			//
			invariant, err = p.parseExpr(clause.Get(1), SortEUReal)
			if err != nil {
				return nil, err
			}
			//
			bodyStart = 3
		}
	}
	//
	body, err := p.parseSeq(list.Elements[bodyStart:], list)
	if err != nil {
		return nil, err
	}
	//
	return &While{cond, invariant, body}, nil
}

func (p *procParser) parseCall(list *sexp.List) (Stmt, *source.SyntaxError) {
	if list.Len() < 2 || list.Get(1).AsSymbol() == nil {
		return nil, p.error(list, "expected (call name args ...)")
	}
	//
	args := make([]ExprId, list.Len()-2)
	//
	for i := 2; i < list.Len(); i++ {
		arg, err := p.parseExpr(list.Get(i), noHint)
		if err != nil {
			return nil, err
		}
		//
		args[i-2] = arg
	}
	//
	return &Call{list.Get(1).AsSymbol().Value, args}, nil
}

// ====================================================================
// Expressions
// ====================================================================

// parseExpr parses an expression with an expected sort, or noHint when the
// context imposes none.  Numeric literals adopt the expected sort; Int and
// Real values are implicitly embedded into EUReal where a quantity is
// required.
func (p *procParser) parseExpr(term sexp.SExp, hint Sort) (ExprId, *source.SyntaxError) {
	e, err := p.parseRawExpr(term, hint)
	if err != nil {
		return NoExpr, err
	}
	//
	return p.coerce(e, hint, term)
}

func (p *procParser) parseRawExpr(term sexp.SExp, hint Sort) (ExprId, *source.SyntaxError) {
	if sym := term.AsSymbol(); sym != nil {
		return p.parseAtom(sym, term, hint)
	}
	//
	list := term.AsList()
	if list.Len() < 2 {
		return NoExpr, p.error(term, "malformed expression")
	}
	//
	switch list.Head() {
	case "+", "*", "monus", "min", "max", "-":
		return p.parseBinaryArith(list, hint)
	case "<=", "<", "=", ">=", ">":
		return p.parseComparison(list)
	case "and", "or", "=>":
		return p.parseConnective(list)
	case "not":
		if list.Len() != 2 {
			return NoExpr, p.error(term, "expected (not cond)")
		}
		//
		arg, err := p.parseExpr(list.Get(1), SortBool)
		if err != nil {
			return NoExpr, err
		}
		//
		return p.arena.Not(arg), nil
	case "ite":
		return p.parseIte(list, hint)
	case "embed":
		if list.Len() != 2 {
			return NoExpr, p.error(term, "expected (embed expr)")
		}
		//
		arg, err := p.parseExpr(list.Get(1), noHint)
		if err != nil {
			return NoExpr, err
		}
		//
		return p.arena.Embed(arg), nil
	default:
		return NoExpr, p.error(term, fmt.Sprintf("unknown operator \"%s\"", list.Head()))
	}
}

func (p *procParser) parseAtom(sym *sexp.Symbol, term sexp.SExp, hint Sort) (ExprId, *source.SyntaxError) {
	switch {
	case sym.Value == "true":
		return p.arena.Bool(true), nil
	case sym.Value == "false":
		return p.arena.Bool(false), nil
	case isNumeral(sym.Value):
		if hint == SortInt {
			v, ok := new(big.Int).SetString(sym.Value, 10)
			if !ok {
				return NoExpr, p.error(term, fmt.Sprintf("malformed integer \"%s\"", sym.Value))
			}
			//
			return p.arena.IntLit(v), nil
		}
		// Otherwise treat as a quantity
		q, err := quantity.FromString(sym.Value)
		if err != nil {
			return NoExpr, p.error(term, err.Error())
		}
		//
		return p.arena.Quant(q), nil
	case sym.Value == "oo" || sym.Value == "∞":
		return p.arena.Infinity(), nil
	default:
		sort, ok := p.env[sym.Value]
		if !ok {
			return NoExpr, p.error(term, fmt.Sprintf("undeclared variable \"%s\"", sym.Value))
		}
		//
		return p.arena.Var(sym.Value, sort), nil
	}
}

func (p *procParser) parseBinaryArith(list *sexp.List, hint Sort) (ExprId, *source.SyntaxError) {
	if list.Len() != 3 {
		return NoExpr, p.error(list, fmt.Sprintf("expected (%s expr expr)", list.Head()))
	}
	//
	lhs, rhs, err := p.parseAligned(list.Get(1), list.Get(2), hint)
	if err != nil {
		return NoExpr, err
	}
	//
	switch list.Head() {
	case "+":
		return p.arena.Add(lhs, rhs), nil
	case "*":
		return p.arena.Mul(lhs, rhs), nil
	case "monus":
		return p.arena.Monus(lhs, rhs), nil
	case "min":
		return p.arena.Min(lhs, rhs), nil
	case "max":
		return p.arena.Max(lhs, rhs), nil
	default:
		return p.arena.Sub(lhs, rhs), nil
	}
}

func (p *procParser) parseComparison(list *sexp.List) (ExprId, *source.SyntaxError) {
	if list.Len() != 3 {
		return NoExpr, p.error(list, fmt.Sprintf("expected (%s expr expr)", list.Head()))
	}
	//
	lhs, rhs, err := p.parseAligned(list.Get(1), list.Get(2), noHint)
	if err != nil {
		return NoExpr, err
	}
	//
	switch list.Head() {
	case "<=":
		return p.arena.Le(lhs, rhs), nil
	case "<":
		return p.arena.Lt(lhs, rhs), nil
	case ">=":
		return p.arena.Le(rhs, lhs), nil
	case ">":
		return p.arena.Lt(rhs, lhs), nil
	default:
		return p.arena.Eq(lhs, rhs), nil
	}
}

func (p *procParser) parseConnective(list *sexp.List) (ExprId, *source.SyntaxError) {
	if list.Len() < 3 {
		return NoExpr, p.error(list, fmt.Sprintf("expected (%s cond cond ...)", list.Head()))
	}
	//
	result, err := p.parseExpr(list.Get(1), SortBool)
	if err != nil {
		return NoExpr, err
	}
	//
	for i := 2; i < list.Len(); i++ {
		arg, err := p.parseExpr(list.Get(i), SortBool)
		if err != nil {
			return NoExpr, err
		}
		//
		switch list.Head() {
		case "and":
			result = p.arena.And(result, arg)
		case "or":
			result = p.arena.Or(result, arg)
		default:
			result = p.arena.Implies(result, arg)
		}
	}
	//
	return result, nil
}

func (p *procParser) parseIte(list *sexp.List, hint Sort) (ExprId, *source.SyntaxError) {
	if list.Len() != 4 {
		return NoExpr, p.error(list, "expected (ite cond expr expr)")
	}
	//
	cond, err := p.parseExpr(list.Get(1), SortBool)
	if err != nil {
		return NoExpr, err
	}
	//
	then, orelse, err := p.parseAligned(list.Get(2), list.Get(3), hint)
	if err != nil {
		return NoExpr, err
	}
	//
	return p.arena.Ite(cond, then, orelse), nil
}

// parseAligned parses two sibling operands, aligning their sorts: a literal
// adopts the sort of its sibling, and Int/Real operands are embedded when
// the sibling is a quantity.
func (p *procParser) parseAligned(lterm sexp.SExp, rterm sexp.SExp, hint Sort) (ExprId, ExprId, *source.SyntaxError) {
	lhs, err := p.parseRawExpr(lterm, hint)
	if err != nil {
		return NoExpr, NoExpr, err
	}
	// Let a known left sort inform literal parsing on the right.
	rhint := hint
	if rhint == noHint {
		rhint = p.arena.SortOf(lhs)
	}
	//
	rhs, err := p.parseRawExpr(rterm, rhint)
	if err != nil {
		return NoExpr, NoExpr, err
	}
	// Align mismatched sorts via embedding, if possible.
	lsort, rsort := p.arena.SortOf(lhs), p.arena.SortOf(rhs)
	//
	switch {
	case lsort == rsort:
		// Nothing to do
	case lsort == SortEUReal && (rsort == SortInt || rsort == SortReal):
		rhs = p.arena.Embed(rhs)
	case rsort == SortEUReal && (lsort == SortInt || lsort == SortReal):
		lhs = p.arena.Embed(lhs)
	default:
		return NoExpr, NoExpr, p.error(rterm, fmt.Sprintf("mismatched sorts %s and %s", lsort, rsort))
	}
	//
	return lhs, rhs, nil
}

// coerce embeds an expression into an expected sort where permitted.
func (p *procParser) coerce(e ExprId, hint Sort, term sexp.SExp) (ExprId, *source.SyntaxError) {
	sort := p.arena.SortOf(e)
	//
	if hint == noHint || sort == hint {
		return e, nil
	} else if hint == SortEUReal && (sort == SortInt || sort == SortReal) {
		return p.arena.Embed(e), nil
	}
	//
	return NoExpr, p.error(term, fmt.Sprintf("expected %s expression, found %s", hint, sort))
}

// ====================================================================
// Helpers
// ====================================================================

func (p *procParser) putSpan(stmt Stmt, term sexp.SExp) {
	p.spans.Put(stmt, p.srcmap.Get(term))
}

func (p *procParser) error(term sexp.SExp, msg string) *source.SyntaxError {
	return p.srcmap.SyntaxError(term, msg)
}

// isNumeral checks whether a symbol looks like a numeric literal, i.e. a
// natural number, decimal or rational.
func isNumeral(s string) bool {
	if s == "" {
		return false
	}
	//
	for _, c := range s {
		if (c < '0' || c > '9') && !strings.ContainsRune("./", c) {
			return false
		}
	}
	//
	return true
}
