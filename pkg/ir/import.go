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

// Import copies an expression owned by another arena into this arena,
// returning its local handle.  This arises only at procedure calls, where a
// callee's contract is instantiated inside the caller; expression handles
// themselves are never shared across procedures.
func (p *ExprArena) Import(from *ExprArena, e ExprId) ExprId {
	if from == p {
		return e
	}
	//
	return p.importNode(from, e, make(map[ExprId]ExprId))
}

func (p *ExprArena) importNode(from *ExprArena, e ExprId, memo map[ExprId]ExprId) ExprId {
	if r, ok := memo[e]; ok {
		return r
	}
	//
	n := from.nodes[e]
	copied := n
	//
	if len(n.kids) > 0 {
		copied.kids = make([]ExprId, len(n.kids))
		//
		for i, k := range n.kids {
			copied.kids[i] = p.importNode(from, k, memo)
		}
	}
	//
	result := p.intern(copied)
	memo[e] = result
	//
	return result
}
