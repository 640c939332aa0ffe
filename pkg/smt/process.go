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
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/heylang/go-heyvl/pkg/util/sexp"
	"github.com/heylang/go-heyvl/pkg/util/source"
)

// graceWindow is how long past the solver-side budget we wait for an
// answer before killing the process.  The solver is expected to honour its
// own timeout option; the deadline here is a backstop against solvers
// which ignore it.
const graceWindow = 2 * time.Second

// ProcessSession drives an external SMT-LIB solver (such as z3 or cvc5)
// over its standard streams in incremental mode.
type ProcessSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	reader *bufio.Reader
	// Reason given for the most recent inconclusive check.
	reason string
	// Trustworthiness of models fetched after the most recent check.
	consistency Consistency
	// Depth of open assertion scopes.
	depth uint
	down  bool
}

// NewProcessSession launches a solver and prepares it for incremental
// queries.  The given arguments are passed through verbatim; the solver
// must read SMT-LIB from stdin (for z3, pass "-in").
func NewProcessSession(path string, args []string) (*ProcessSession, error) {
	cmd := exec.Command(path, args...)
	//
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	//
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	// Discard solver chatter on stderr.
	cmd.Stderr = nil
	//
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching solver %s: %w", path, err)
	}
	//
	log.Debugf("launched solver %s (pid %d)", path, cmd.Process.Pid)
	//
	session := &ProcessSession{
		cmd:    cmd,
		stdin:  stdin,
		writer: bufio.NewWriter(stdin),
		reader: bufio.NewReader(stdout),
	}
	//
	if err := session.Send(
		sexp.NewList(sexp.NewSymbol("set-option"), sexp.NewSymbol(":print-success"), sexp.NewSymbol("false")),
		sexp.NewList(sexp.NewSymbol("set-option"), sexp.NewSymbol(":produce-models"), sexp.NewSymbol("true")),
	); err != nil {
		session.Close()
		return nil, err
	}
	//
	return session, nil
}

// Send implementation for the Session interface.
func (p *ProcessSession) Send(cmds ...sexp.SExp) error {
	if p.down {
		return fmt.Errorf("send: %w", ErrSessionDown)
	}
	//
	for _, cmd := range cmds {
		if _, err := p.writer.WriteString(cmd.String()); err != nil {
			return p.fail(err)
		}
		//
		if err := p.writer.WriteByte('\n'); err != nil {
			return p.fail(err)
		}
	}
	//
	return nil
}

// Push implementation for the Session interface.
func (p *ProcessSession) Push() error {
	if err := p.Send(sexp.NewList(sexp.NewSymbol("push"), sexp.NewSymbol("1"))); err != nil {
		return err
	}
	//
	p.depth++
	//
	return nil
}

// Pop implementation for the Session interface.
func (p *ProcessSession) Pop() error {
	if p.depth == 0 {
		panic("no assertion scope open")
	}
	//
	if err := p.Send(sexp.NewList(sexp.NewSymbol("pop"), sexp.NewSymbol("1"))); err != nil {
		return err
	}
	//
	p.depth--
	//
	return nil
}

// CheckSat implementation for the Session interface.  The budget is
// communicated to the solver via its timeout option, with a Go-side
// deadline as backstop; a check which exceeds either reports ResUnknown
// with a timeout reason.  Hitting the backstop kills the solver, taking
// the session down.
func (p *ProcessSession) CheckSat(ctx context.Context, budget time.Duration) (Result, error) {
	p.reason = ""
	//
	if budget > 0 {
		millis := fmt.Sprintf("%d", budget.Milliseconds())
		cmd := sexp.NewList(sexp.NewSymbol("set-option"), sexp.NewSymbol(":timeout"), sexp.NewSymbol(millis))
		//
		if err := p.Send(cmd); err != nil {
			return ResUnknown, err
		}
	}
	//
	if err := p.Send(sexp.NewList(sexp.NewSymbol("check-sat"))); err != nil {
		return ResUnknown, err
	} else if err := p.writer.Flush(); err != nil {
		return ResUnknown, p.fail(err)
	}
	//
	line, err := p.readLine(ctx, budget)
	//
	if err != nil {
		return ResUnknown, err
	}
	//
	switch line {
	case "sat":
		p.consistency = Consistent
		return ResSat, nil
	case "unsat":
		return ResUnsat, nil
	case "unknown":
		// A candidate model may still be on offer, but only as a guess.
		p.consistency = Dubious
		p.reason = p.reasonUnknown()
		return ResUnknown, nil
	default:
		return ResUnknown, p.fail(fmt.Errorf("unexpected solver answer %q", line))
	}
}

// Reason implementation for the Session interface.
func (p *ProcessSession) Reason() string {
	return p.reason
}

// Model implementation for the Session interface.
func (p *ProcessSession) Model() (*Model, error) {
	if p.down {
		return nil, fmt.Errorf("get-model: %w", ErrSessionDown)
	}
	//
	if err := p.Send(sexp.NewList(sexp.NewSymbol("get-model"))); err != nil {
		return nil, err
	} else if err := p.writer.Flush(); err != nil {
		return nil, p.fail(err)
	}
	//
	text, err := p.readBalanced()
	if err != nil {
		return nil, err
	}
	//
	model, serr := parseModel(text, p.consistency)
	if serr != nil {
		return nil, fmt.Errorf("malformed model: %s", serr)
	}
	//
	return model, nil
}

// Close implementation for the Session interface.
func (p *ProcessSession) Close() error {
	if !p.down {
		// A well-behaved solver exits on end-of-input.
		p.writer.WriteString("(exit)\n")
		p.writer.Flush()
		p.down = true
	}
	//
	p.stdin.Close()
	p.cmd.Process.Kill()
	//
	return p.cmd.Wait()
}

// reasonUnknown queries the solver for why it gave up.  A failure here is
// swallowed; the reason is advisory.
func (p *ProcessSession) reasonUnknown() string {
	cmd := sexp.NewList(sexp.NewSymbol("get-info"), sexp.NewSymbol(":reason-unknown"))
	//
	if err := p.Send(cmd); err != nil {
		return ""
	} else if err := p.writer.Flush(); err != nil {
		p.fail(err)
		return ""
	}
	//
	text, err := p.readBalanced()
	if err != nil {
		return ""
	}
	// Answer has the shape (:reason-unknown "...").
	node, _, serr := sexp.Parse(source.NewFile("<info>", []byte(text)))
	if serr != nil {
		return strings.TrimSpace(text)
	}
	//
	if l := node.AsList(); l != nil && l.Len() == 2 {
		return strings.Trim(l.Get(1).String(), "\"")
	}
	//
	return strings.TrimSpace(text)
}

// readLine reads one answer line, enforcing the backstop deadline.  The
// read runs in its own goroutine since reads on the solver's pipe cannot
// be interrupted directly.
func (p *ProcessSession) readLine(ctx context.Context, budget time.Duration) (string, error) {
	type answer struct {
		line string
		err  error
	}
	//
	ch := make(chan answer, 1)
	//
	go func() {
		line, err := p.reader.ReadString('\n')
		ch <- answer{strings.TrimSpace(line), err}
	}()
	//
	var expiry <-chan time.Time
	//
	if budget > 0 {
		timer := time.NewTimer(budget + graceWindow)
		defer timer.Stop()
		//
		expiry = timer.C
	}
	//
	select {
	case a := <-ch:
		if a.err != nil {
			return "", p.fail(a.err)
		}
		//
		return a.line, nil
	case <-expiry:
		p.kill()
		return "", fmt.Errorf("solver unresponsive past budget: %w", ErrSessionDown)
	case <-ctx.Done():
		p.kill()
		return "", ctx.Err()
	}
}

// readBalanced reads text until its parentheses balance, skipping anything
// before the first open paren.
func (p *ProcessSession) readBalanced() (string, error) {
	var (
		builder builderWithDepth
	)
	//
	for {
		b, err := p.reader.ReadByte()
		if err != nil {
			return "", p.fail(err)
		}
		//
		if builder.consume(b) {
			return builder.String(), nil
		}
	}
}

// fail marks this session as down and kills the solver.
func (p *ProcessSession) fail(err error) error {
	if !p.down {
		log.Debugf("solver session failed: %v", err)
		p.kill()
	}
	//
	return fmt.Errorf("%v: %w", err, ErrSessionDown)
}

func (p *ProcessSession) kill() {
	p.down = true
	p.cmd.Process.Kill()
}

// builderWithDepth accumulates bytes while tracking paren depth and string
// literals, so a full solver answer can be recognised without parsing it.
type builderWithDepth struct {
	builder  strings.Builder
	depth    int
	started  bool
	instring bool
}

// consume one byte, reporting whether the accumulated text is complete.
func (b *builderWithDepth) consume(c byte) bool {
	if !b.started {
		if c != '(' {
			return false
		}
		//
		b.started = true
	}
	//
	b.builder.WriteByte(c)
	//
	switch {
	case b.instring:
		if c == '"' {
			b.instring = false
		}
	case c == '"':
		b.instring = true
	case c == '(':
		b.depth++
	case c == ')':
		b.depth--
	}
	//
	return b.started && b.depth == 0
}

func (b *builderWithDepth) String() string {
	return b.builder.String()
}
