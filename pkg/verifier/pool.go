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
package verifier

import (
	"context"
	"sync"

	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/util"
)

// VerifyProgram checks every procedure of a program, fanning them out
// across the configured number of workers.  Each worker owns one solver
// session, so a stuck or killed solver in one procedure cannot disturb
// the others.  Results come back in declaration order regardless of
// completion order.
func (v *Verifier) VerifyProgram(ctx context.Context, program *ir.Program) *FileResult {
	var (
		stats   = util.NewPerfStats()
		n       = len(program.Procedures)
		results = make([]*ProcedureResult, n)
		jobs    = make(chan int, n)
		wg      sync.WaitGroup
	)
	//
	for i := 0; i < n; i++ {
		jobs <- i
	}
	//
	close(jobs)
	//
	workers := int(v.cfg.Workers)
	if workers > n {
		workers = n
	}
	//
	for w := 0; w < workers; w++ {
		wg.Add(1)
		//
		go func() {
			defer wg.Done()
			//
			box := &sessionBox{create: v.cfg.NewSession}
			defer box.drop()
			//
			for i := range jobs {
				results[i] = v.verifyProcedure(ctx, program, program.Procedures[i], box)
			}
		}()
	}
	//
	wg.Wait()
	stats.Log("verification")
	//
	return &FileResult{Procedures: results, Duration: stats.Elapsed()}
}
