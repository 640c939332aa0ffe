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
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/heylang/go-heyvl/pkg/ir"
	"github.com/heylang/go-heyvl/pkg/util/source"
	"github.com/heylang/go-heyvl/pkg/verifier"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [flags] program_file",
	Short: "Verify each procedure of a given program.",
	Long: `Verify each procedure of a given program against its declared
	pre- and post-expectation, under its declared calculus (wp, wlp or ert).
	Procedures are checked concurrently, each against its own solver.`,
	Run: func(cmd *cobra.Command, args []string) {
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}

		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		//
		cfg := verifier.Config{
			Timeout:       time.Duration(GetUint(cmd, "timeout")) * time.Second,
			Workers:       GetUint(cmd, "workers"),
			Slice:         GetFlag(cmd, "slice"),
			MaxSliceIters: GetUint(cmd, "max-slice-iters"),
			SolverPath:    GetString(cmd, "solver"),
			SolverArgs:    GetStringArray(cmd, "solver-arg"),
		}
		// Parse program
		program := readProgramFile(args[0])
		// Go!
		result := verifier.New(cfg).VerifyProgram(context.Background(), program)
		//
		reportFileResult(program, result)
		//
		if result.Status() != verifier.StatusVerified {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Uint("timeout", 10, "per-query timeout in seconds (0 = unbounded)")
	verifyCmd.Flags().Uint("workers", uint(runtime.NumCPU()), "number of procedures verified concurrently")
	verifyCmd.Flags().Bool("slice", false, "minimise the cause of failing procedures")
	verifyCmd.Flags().Uint("max-slice-iters", verifier.DefaultMaxSliceIters,
		"bound on slicing iterations per obligation")
}

// reportFileResult prints per-procedure verdicts, with per-obligation
// detail for anything which did not verify.
func reportFileResult(program *ir.Program, result *verifier.FileResult) {
	for _, proc := range result.Procedures {
		reportProcedureResult(program, proc)
	}
	//
	fmt.Printf("%s: %s (%0.3fs)\n", program.Source.Filename(),
		colourStatus(result.Status()), result.Duration.Seconds())
}

func reportProcedureResult(program *ir.Program, result *verifier.ProcedureResult) {
	fmt.Printf("%s: %s\n", result.Name, colourStatus(result.Status))
	//
	if result.Err != nil {
		var serr *source.SyntaxError
		if errors.As(result.Err, &serr) {
			reportSyntaxError(serr)
		} else {
			fmt.Fprintln(os.Stderr, result.Err)
		}
		//
		return
	}
	//
	for _, ob := range result.Obligations {
		if ob.Status == verifier.StatusVerified {
			continue
		}
		//
		line := program.Source.FindFirstEnclosingLine(ob.Span)
		fmt.Printf("  %s (line %d): %s", ob.Name, line.Number(), colourStatus(ob.Status))
		//
		if ob.Reason != "" {
			fmt.Printf(" (%s)", ob.Reason)
		}
		//
		fmt.Println()
		//
		if ob.Model != nil {
			fmt.Print(ob.Model.String())
		}
		//
		reportSlice(program, result.Name, &ob)
	}
}

// reportSlice prints the statements found responsible for a failing
// obligation, by source line.
func reportSlice(program *ir.Program, procname string, ob *verifier.ObligationResult) {
	if ob.Slice == nil {
		return
	}
	//
	proc := program.Procedure(procname)
	qualifier := ""
	//
	if !ob.Slice.Confirmed {
		qualifier = " (not confirmed minimal)"
	}
	//
	fmt.Printf("  responsible statements%s:\n", qualifier)
	//
	for _, id := range ob.Slice.Active {
		span := proc.ToggleSpans[id]
		line := program.Source.FindFirstEnclosingLine(span)
		fmt.Printf("\tline %d: %s\n", line.Number(), line.String())
	}
}

// colourStatus renders a status word, coloured when stdout is a terminal.
func colourStatus(status verifier.Status) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return status.String()
	}
	//
	colour := "31" // red
	if status == verifier.StatusVerified {
		colour = "32" // green
	} else if status != verifier.StatusRefuted {
		colour = "33" // yellow
	}
	//
	return fmt.Sprintf("\033[%sm%s\033[0m", colour, status)
}
