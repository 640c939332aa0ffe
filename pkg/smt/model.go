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
	"sort"
	"strings"

	"github.com/heylang/go-heyvl/pkg/util/source"
	"github.com/heylang/go-heyvl/pkg/util/sexp"
)

// Consistency qualifies how much a model can be trusted.  Solvers can
// produce candidate models even after an inconclusive check; those are
// reported but must not be presented as definite counterexamples.
type Consistency uint8

const (
	// Consistent models come from a definite sat answer.
	Consistent Consistency = iota
	// Dubious models come from an inconclusive check and may not satisfy
	// all assertions.
	Dubious
)

// Assignment is one variable binding within a model.
type Assignment struct {
	Name  string
	Value string
}

// Model is a satisfying assignment reported by the solver, used as the
// counterexample witness for refuted obligations.
type Model struct {
	Consistency Consistency
	Assignments []Assignment
}

// Lookup finds the value bound to a given name, or "" if unbound.
func (m *Model) Lookup(name string) string {
	for _, a := range m.Assignments {
		if a.Name == name {
			return a.Value
		}
	}
	//
	return ""
}

// String renders the model one binding per line, sorted by name.  Internal
// tag variables are folded into their quantity: a variable whose tag is
// set renders as "oo".
func (m *Model) String() string {
	var (
		builder strings.Builder
		tags    = make(map[string]string)
		names   []string
		values  = make(map[string]string)
	)
	//
	for _, a := range m.Assignments {
		if base, ok := strings.CutSuffix(a.Name, InfSuffix); ok {
			tags[base] = a.Value
		} else {
			names = append(names, a.Name)
			values[a.Name] = a.Value
		}
	}
	//
	sort.Strings(names)
	//
	for _, name := range names {
		value := values[name]
		if tags[name] == "true" {
			value = "oo"
		}
		//
		builder.WriteString("\t")
		builder.WriteString(name)
		builder.WriteString(" = ")
		builder.WriteString(value)
		builder.WriteString("\n")
	}
	//
	return builder.String()
}

// parseModel reads the solver's get-model response into assignments.  Both
// the legacy "(model (define-fun ...) ...)" shape and the bare list of
// define-funs are accepted; anything unrecognised is skipped rather than
// rejected, since model output differs across solvers.
func parseModel(text string, consistency Consistency) (*Model, error) {
	srcfile := source.NewFile("<model>", []byte(text))
	//
	node, _, err := sexp.Parse(srcfile)
	if err != nil {
		return nil, err
	}
	//
	model := &Model{Consistency: consistency}
	//
	outer := node.AsList()
	if outer == nil {
		return model, nil
	}
	//
	entries := outer.Elements
	if outer.Head() == "model" {
		entries = entries[1:]
	}
	//
	for _, entry := range entries {
		if l := entry.AsList(); l != nil && l.MatchHead(5, "define-fun") {
			name := l.Get(1).AsSymbol()
			// Skip functions with arguments.
			if args := l.Get(2).AsList(); name == nil || args == nil || args.Len() != 0 {
				continue
			}
			//
			model.Assignments = append(model.Assignments, Assignment{
				Name:  name.Value,
				Value: l.Get(4).String(),
			})
		}
	}
	//
	return model, nil
}
