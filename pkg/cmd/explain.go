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
package cmd

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heylang/go-heyvl/pkg/calculus"
	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/verifier"
)

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain [flags] program_file",
	Short: "Show the intermediate expectations computed at each program point.",
	Long: `Show, for each annotated program point, the intermediate
	quantity-valued expectation computed by the calculus, alongside the
	usual verification verdicts.  Intended for inline display by editors.`,
	Run: func(cmd *cobra.Command, args []string) {
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}

		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		//
		mode := calculus.ExplainSteps
		if GetFlag(cmd, "core") {
			mode = calculus.ExplainCore
		}
		//
		cfg := verifier.Config{
			Explain:    mode,
			Workers:    1,
			SolverPath: GetString(cmd, "solver"),
			SolverArgs: GetStringArray(cmd, "solver-arg"),
		}
		// Parse program
		program := readProgramFile(args[0])
		// Go!
		result := verifier.New(cfg).VerifyProgram(context.Background(), program)
		//
		for _, proc := range result.Procedures {
			reportSteps(program, proc)
		}
		//
		reportFileResult(program, result)
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().Bool("core", false, "only explain loops and calls")
}

// reportSteps prints each recorded program point with its computed
// pre-expectation, in source order.
func reportSteps(program *ir.Program, result *verifier.ProcedureResult) {
	proc := program.Procedure(result.Name)
	if proc == nil || len(result.Steps) == 0 {
		return
	}
	//
	fmt.Printf("%s:\n", result.Name)
	// Steps are recorded in transformation order, which runs backwards
	// through the body; print them the way the source reads.
	for i := len(result.Steps) - 1; i >= 0; i-- {
		step := result.Steps[i]
		line := program.Source.FindFirstEnclosingLine(proc.StmtSpans.Get(step.Stmt))
		//
		fmt.Printf("  line %d: %s\n", line.Number(), proc.Arena.String(step.Pre))
	}
}
