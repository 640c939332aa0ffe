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

import "fmt"

// Sort identifies the type of value an expression evaluates to.  The set of
// sorts is fixed: program variables range over booleans, integers and reals,
// whilst expectations range over the extended non-negative reals (EUReal).
type Sort uint8

const (
	// SortBool is the sort of conditions.
	SortBool Sort = iota
	// SortInt is the sort of (unbounded) integer program variables.
	SortInt
	// SortReal is the sort of real-valued program variables.
	SortReal
	// SortEUReal is the sort of quantities, i.e. extended non-negative
	// reals.  This is the sort of every pre- and post-expectation.
	SortEUReal
)

// String implementation for the Stringer interface.
func (s Sort) String() string {
	switch s {
	case SortBool:
		return "Bool"
	case SortInt:
		return "Int"
	case SortReal:
		return "Real"
	case SortEUReal:
		return "EUReal"
	default:
		panic(fmt.Sprintf("unknown sort: %d", s))
	}
}

// SortOf parses a sort from its textual name.
func SortOf(name string) (Sort, bool) {
	switch name {
	case "Bool":
		return SortBool, true
	case "Int":
		return SortInt, true
	case "Real":
		return SortReal, true
	case "EUReal":
		return SortEUReal, true
	}
	//
	return SortBool, false
}

// Param describes a named, sorted variable, such as a procedure parameter
// or a havoc'd local.
type Param struct {
	Name string
	Sort Sort
}
