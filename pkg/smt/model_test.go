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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModel_LegacyShape(t *testing.T) {
	model, err := parseModel(`(model
		(define-fun x () Real 3.0)
		(define-fun x!inf () Bool false))`, Consistent)
	require.NoError(t, err)
	//
	assert.Equal(t, Consistent, model.Consistency)
	assert.Equal(t, "3.0", model.Lookup("x"))
	assert.Equal(t, "false", model.Lookup("x!inf"))
	assert.Equal(t, "", model.Lookup("y"))
}

func TestParseModel_BareShape(t *testing.T) {
	model, err := parseModel(`(
		(define-fun n () Int 7))`, Consistent)
	require.NoError(t, err)
	//
	assert.Equal(t, "7", model.Lookup("n"))
}

func TestParseModel_SkipsFunctionsWithArguments(t *testing.T) {
	model, err := parseModel(`(model
		(define-fun f ((a Int)) Int a)
		(define-fun x () Real 1.0))`, Consistent)
	require.NoError(t, err)
	//
	require.Len(t, model.Assignments, 1)
	assert.Equal(t, "x", model.Assignments[0].Name)
}

func TestModel_StringFoldsInfiniteTags(t *testing.T) {
	model := &Model{
		Consistency: Consistent,
		Assignments: []Assignment{
			{"y", "2.0"},
			{"x", "0.0"},
			{"x!inf", "true"},
			{"y!inf", "false"},
		},
	}
	//
	rendered := model.String()
	assert.Contains(t, rendered, "x = oo")
	assert.Contains(t, rendered, "y = 2.0")
	assert.NotContains(t, rendered, "x!inf")
}

func TestParseModel_CompoundValues(t *testing.T) {
	model, err := parseModel(`(model
		(define-fun r () Real (/ 1.0 3.0)))`, Consistent)
	require.NoError(t, err)
	//
	assert.Equal(t, "(/ 1.0 3.0)", model.Lookup("r"))
}
