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
package sexp

import (
	"strings"
)

// SExp is an S-Expression which is either a List of zero or more
// S-Expressions, or a Symbol.  S-Expressions are used in two places: reading
// intermediate verification programs from disk, and rendering SMT-LIB
// scripts for the solver.
type SExp interface {
	// AsList checks whether this S-Expression is a list and, if so, returns
	// it.  Otherwise, it returns nil.
	AsList() *List
	// AsSymbol checks whether this S-Expression is a symbol and, if so,
	// returns it.  Otherwise, it returns nil.
	AsSymbol() *Symbol
	// String generates a textual representation of this S-Expression.
	String() string
}

// List represents a list of zero or more S-Expressions.
type List struct {
	Elements []SExp
}

// NewList constructs a new list from a given array of S-Expressions.
func NewList(elements ...SExp) *List {
	return &List{elements}
}

// AsList implementation for the SExp interface.
func (l *List) AsList() *List { return l }

// AsSymbol implementation for the SExp interface.
func (l *List) AsSymbol() *Symbol { return nil }

// Len gets the number of elements in this list.
func (l *List) Len() int { return len(l.Elements) }

// Get the ith element of this list
func (l *List) Get(i int) SExp { return l.Elements[i] }

// Append a new S-Expression onto this list.
func (l *List) Append(element SExp) {
	l.Elements = append(l.Elements, element)
}

// Head returns the leading symbol of this list, or "" if the list is empty
// or does not start with a symbol.
func (l *List) Head() string {
	if len(l.Elements) == 0 {
		return ""
	} else if s := l.Elements[0].AsSymbol(); s != nil {
		return s.Value
	}
	//
	return ""
}

// MatchHead checks whether this list begins with a given symbol and has a
// given (minimum) number of elements.
func (l *List) MatchHead(n int, head string) bool {
	return len(l.Elements) >= n && l.Head() == head
}

// String implementation for the SExp interface.
func (l *List) String() string {
	var builder strings.Builder
	//
	builder.WriteString("(")
	//
	for i, e := range l.Elements {
		if i != 0 {
			builder.WriteString(" ")
		}

		builder.WriteString(e.String())
	}
	//
	builder.WriteString(")")
	//
	return builder.String()
}

// Symbol represents a terminating symbol, such as a name, number or
// operator.
type Symbol struct {
	Value string
}

// NewSymbol constructs a new symbol from a given string.
func NewSymbol(value string) *Symbol {
	return &Symbol{value}
}

// AsList implementation for the SExp interface.
func (s *Symbol) AsList() *List { return nil }

// AsSymbol implementation for the SExp interface.
func (s *Symbol) AsSymbol() *Symbol { return s }

// String implementation for the SExp interface.
func (s *Symbol) String() string {
	return s.Value
}
