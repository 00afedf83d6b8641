// Package valuenode implements the expression DAG that the interpreter
// builds up while symbolically evaluating a method: primitives, method
// calls, and bytecode operations, each resolvable to a human-readable
// string describing where a register's value came from.
package valuenode

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is the polymorphic value-node interface. All three variants below
// are conceptually immutable after construction; equality is pointer
// identity, never value equality, mirroring the source's choice to
// override __eq__ to `self is value`.
type Node interface {
	children() []Node
	assemble(childStrs []string, evaluateArgs bool) string
}

// Primitive wraps a raw constant with an optional type hint from the set
// {I, B, S, J -> integer; Z -> boolean; F, D -> floating; L... or ""/nil
// -> reference/unknown}.
type Primitive struct {
	Value     string
	ValueType string // "" means no type hint (nil in the source)
}

// NewPrimitive constructs a Primitive value node.
func NewPrimitive(value, valueType string) *Primitive {
	return &Primitive{Value: value, ValueType: valueType}
}

func (p *Primitive) children() []Node { return nil }

func (p *Primitive) assemble(_ []string, evaluateArgs bool) string {
	if !evaluateArgs {
		return p.Value
	}
	return fmt.Sprint(EvaluateArgument(p.Value, p.ValueType))
}

func (p *Primitive) String() string { return p.Value }

// MethodCall represents one invocation: a fully-qualified method signature
// plus its ordered argument nodes.
type MethodCall struct {
	Method        string
	ArgumentNodes []Node
}

// NewMethodCall constructs a MethodCall value node.
func NewMethodCall(method string, args []Node) *MethodCall {
	return &MethodCall{Method: method, ArgumentNodes: args}
}

func (m *MethodCall) children() []Node { return m.ArgumentNodes }

func (m *MethodCall) assemble(argStrs []string, _ bool) string {
	return fmt.Sprintf("%s(%s)", m.Method, strings.Join(argStrs, ","))
}

// Arguments evaluates each argument node; Primitive children are coerced
// per their type hint, everything else is resolved recursively.
func (m *MethodCall) Arguments(evaluateArgs bool) []any {
	out := make([]any, len(m.ArgumentNodes))
	for i, raw := range m.ArgumentNodes {
		if p, ok := raw.(*Primitive); ok && evaluateArgs {
			out[i] = EvaluateArgument(p.Value, p.ValueType)
			continue
		}
		out[i] = Resolve(raw, evaluateArgs)
	}
	return out
}

// BytecodeOp represents a bytecode-level operation: a format template
// with positional placeholders {src0}..{srcN} and {data}, plus the
// operand nodes and an associated data literal.
type BytecodeOp struct {
	Format   string
	Operands []Node
	Data     any
}

// NewBytecodeOp constructs a BytecodeOp value node.
func NewBytecodeOp(format string, operands []Node, data any) *BytecodeOp {
	return &BytecodeOp{Format: format, Operands: operands, Data: data}
}

func (b *BytecodeOp) children() []Node { return b.Operands }

func (b *BytecodeOp) assemble(operandStrs []string, _ bool) string {
	out := b.Format
	for i, s := range operandStrs {
		out = strings.ReplaceAll(out, fmt.Sprintf("{src%d}", i), s)
	}
	return strings.ReplaceAll(out, "{data}", fmt.Sprint(b.Data))
}

// EvaluateArgument coerces a raw string argument per its bytecode type
// hint; a failed parse or unrecognized hint falls back to the raw string.
func EvaluateArgument(argument, typeHint string) any {
	switch typeHint {
	case "I", "B", "S", "J":
		if v, err := strconv.ParseInt(argument, 10, 64); err == nil {
			return v
		}
	case "Z":
		if v, err := strconv.ParseInt(argument, 10, 64); err == nil {
			return v != 0
		}
	case "F", "D":
		if v, err := strconv.ParseFloat(argument, 64); err == nil {
			return v
		}
	}
	return argument
}
