// Package interpreter symbolically evaluates a method's register-based
// bytecode instruction stream, producing value-node expressions that
// describe where each register's current value came from. It performs no
// real execution: arithmetic, casts, and array access all become inert
// BytecodeOp expressions: the only thing that matters for detection is
// which calls and primitives fed into which invocation arguments.
package interpreter

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kurogo/apkforensics/apkinfo"
	"github.com/kurogo/apkforensics/regstate"
	"github.com/kurogo/apkforensics/valuenode"
)

// Error kinds from the failure-boundary contract: format/semantic errors
// fail the current method evaluation; lookup errors likewise; register
// table bounds violations never reach here; they degrade silently inside
// regstate.Table itself.
var (
	ErrFormat   = errors.New("interpreter: malformed instruction")
	ErrSemantic = errors.New("interpreter: unknown mnemonic or unparsable literal")
	ErrLookup   = errors.New("interpreter: no concrete method implementation found")
)

// EvalError reports which instruction failed and why.
type EvalError struct {
	Mnemonic string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("interpreter: %s: %v", e.Mnemonic, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

func fail(mnemonic string, kind error) error {
	return &EvalError{Mnemonic: mnemonic, Err: kind}
}

// typeMapping maps a bytecode postfix (as it appears in a mnemonic, e.g.
// the "int" in "add-int") to its canonical Dalvik type descriptor.
var typeMapping = map[string]string{
	"int":     "I",
	"long":    "J",
	"short":   "S",
	"byte":    "B",
	"char":    "C",
	"boolean": "Z",
	"float":   "F",
	"double":  "D",
}

// Interpreter is the per-method evaluation state: a register table, a
// single-slot return value/type, and the backend used to resolve
// polymorphic dispatch. Never shared across goroutines or methods.
type Interpreter struct {
	table    *regstate.Table
	retValue valuenode.Node
	retType  string
	backend  apkinfo.Backend
}

// New builds an Interpreter over a sized register table with regCount
// registers, consulting backend for virtual/interface/super dispatch
// resolution. backend may be nil; invoke-virtual/-interface/-super then
// use the instruction's method signature as written.
func New(regCount int, backend apkinfo.Backend) *Interpreter {
	return &Interpreter{table: regstate.NewTable(regCount), backend: backend}
}

// Table exposes the underlying register table for inspection once
// evaluation completes.
func (it *Interpreter) Table() *regstate.Table { return it.table }

// RetValue returns the current single-slot return value (nil if none is
// pending, e.g. after being consumed by a move-result instruction).
func (it *Interpreter) RetValue() valuenode.Node { return it.retValue }

// RetType returns the pending return value's type, or "" if none.
func (it *Interpreter) RetType() string { return it.retType }

type handlerFunc func(it *Interpreter, instr []string) error

var dispatch = map[string]handlerFunc{}

func register(mnemonic string, h handlerFunc) {
	dispatch[mnemonic] = h
}

// Eval dispatches one instruction ([mnemonic, operand...]) through the
// immutable handler table built at init time. An unknown mnemonic is a
// semantic error; the caller (one method evaluation) should treat any
// returned error as fatal to that evaluation and move on to the next
// method.
func (it *Interpreter) Eval(instr []string) error {
	if len(instr) == 0 {
		return fail("", fmt.Errorf("%w: empty instruction", ErrFormat))
	}
	handler, ok := dispatch[instr[0]]
	if !ok {
		return fail(instr[0], fmt.Errorf("%w: %s", ErrSemantic, instr[0]))
	}
	return handler(it, instr)
}

// parseRegister parses a "vN" register operand into its index.
func parseRegister(operand string) (int, error) {
	if len(operand) < 2 || operand[0] != 'v' {
		return 0, fmt.Errorf("%w: not a register operand: %q", ErrFormat, operand)
	}
	n, err := strconv.Atoi(operand[1:])
	if err != nil {
		return 0, fmt.Errorf("%w: bad register index: %q", ErrFormat, operand)
	}
	return n, nil
}

// regObservation builds a fresh, call-free Observation wrapping value/typ.
func regObservation(value valuenode.Node, typ string) *regstate.Observation {
	return regstate.NewObservation(value, typ, nil)
}

// latestValue reads the current value node at idx, or nil if unwritten
// (register-table bounds/absence tolerance: callers treat nil as "no
// contribution" rather than failing the instruction).
func (it *Interpreter) latestValue(idx int) valuenode.Node {
	obs := it.table.Latest(idx)
	if obs == nil {
		return nil
	}
	return obs.Value()
}
