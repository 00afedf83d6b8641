package interpreter

import (
	"fmt"
	"strings"

	"github.com/kurogo/apkforensics/regstate"
	"github.com/kurogo/apkforensics/valuenode"
)

func init() {
	register("new-array", newArray)
	register("filled-new-array", filledNewArray)
	register("filled-new-array/range", filledNewArray)

	for _, m := range []string{"aget", "aget-object", "aget-boolean", "aget-byte", "aget-char", "aget-short"} {
		register(m, aget)
	}
	register("aget-wide", agetWide)

	for _, m := range []string{"aput", "aput-object", "aput-boolean", "aput-byte", "aput-char", "aput-short"} {
		register(m, aput)
	}
	register("aput-wide", aputWide)
}

// newArray evaluates `new-array dst, size, type`. The resolved expression
// only ever embeds the size operand; the type operand is recorded verbatim
// as the destination's type hint, never interpolated into the resolved
// string.
func newArray(it *Interpreter, instr []string) error {
	if len(instr) < 4 {
		return fail(instr[0], fmt.Errorf("%w: need dest, size, and type", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	sizeIdx, err := parseRegister(instr[2])
	if err != nil {
		return fail(instr[0], err)
	}
	elemType := instr[3]

	op := valuenode.NewBytecodeOp("new-array()[({src0})", []valuenode.Node{it.latestValue(sizeIdx)}, nil)
	it.table.Insert(dst, regObservation(op, elemType))
	return nil
}

// filledNewArray evaluates `filled-new-array {regs...}, type`. Unlike
// new-array, the element type is rendered literally into the resolved
// expression, and every populated register argument is included.
func filledNewArray(it *Interpreter, instr []string) error {
	if len(instr) < 2 {
		return fail(instr[0], fmt.Errorf("%w: missing array type", ErrFormat))
	}
	elemType := instr[len(instr)-1]
	regOperands := instr[1 : len(instr)-1]

	var operands []valuenode.Node
	var placeholders []string
	for _, r := range regOperands {
		idx, err := parseRegister(r)
		if err != nil {
			return fail(instr[0], err)
		}
		v := it.latestValue(idx)
		if v == nil {
			continue
		}
		placeholders = append(placeholders, fmt.Sprintf("{src%d}", len(operands)))
		operands = append(operands, v)
	}

	format := fmt.Sprintf("new-array()%s(%s)", elemType, strings.Join(placeholders, ","))
	it.retValue = valuenode.NewBytecodeOp(format, operands, nil)
	it.retType = elemType
	return nil
}

// aget evaluates the non-wide aget family: `aget(-kind) dst, array, index`.
// The element type hint is the array's own type with its leading '['
// stripped for the plain/object variants, or the postfix's canonical
// primitive type for the narrower typed variants.
func aget(it *Interpreter, instr []string) error {
	dst, arrayIdx, indexIdx, err := arrayTriple(instr)
	if err != nil {
		return err
	}
	arrayObs := it.table.Latest(arrayIdx)
	elemType := elementType(instr[0], arrayObs)

	op := valuenode.NewBytecodeOp("{src0}[{src1}]", []valuenode.Node{
		observationValue(arrayObs), it.latestValue(indexIdx),
	}, nil)
	it.table.Insert(dst, regObservation(op, elemType))
	return nil
}

func agetWide(it *Interpreter, instr []string) error {
	dst, arrayIdx, indexIdx, err := arrayTriple(instr)
	if err != nil {
		return err
	}
	arrayObs := it.table.Latest(arrayIdx)
	elemType := elementType(instr[0], arrayObs)

	op := valuenode.NewBytecodeOp("{src0}[{src1}]", []valuenode.Node{
		observationValue(arrayObs), it.latestValue(indexIdx),
	}, nil)
	obs := regObservation(op, elemType)
	it.table.Insert(dst, obs)
	it.table.Insert(dst+1, obs)
	return nil
}

// aput evaluates the non-wide aput family: `aput(-kind) value, array,
// index`. Unlike aget, this mutates the *array* register: a new
// observation is pushed describing "array[index]:value", preserving the
// array's original type.
func aput(it *Interpreter, instr []string) error {
	valueIdx, arrayIdx, indexIdx, err := arrayTriple(instr)
	if err != nil {
		return err
	}
	arrayObs := it.table.Latest(arrayIdx)

	format := "{src0}[{src1}]:{src2}"
	operands := []valuenode.Node{observationValue(arrayObs), it.latestValue(indexIdx), it.latestValue(valueIdx)}
	op := valuenode.NewBytecodeOp(format, operands, nil)
	it.table.Insert(arrayIdx, regObservation(op, arrayType(arrayObs)))
	return nil
}

// aputWide evaluates `aput-wide value, array, index`: the wide value
// register pair (value, value+1) is embedded as a tuple, while the
// bracketed index expression still refers to the single index register.
func aputWide(it *Interpreter, instr []string) error {
	valueIdx, arrayIdx, indexIdx, err := arrayTriple(instr)
	if err != nil {
		return err
	}
	arrayObs := it.table.Latest(arrayIdx)

	format := "{src0}[{src1}]:({src2}, {src3})"
	operands := []valuenode.Node{
		observationValue(arrayObs), it.latestValue(indexIdx),
		it.latestValue(valueIdx), it.latestValue(valueIdx + 1),
	}
	op := valuenode.NewBytecodeOp(format, operands, nil)
	it.table.Insert(arrayIdx, regObservation(op, arrayType(arrayObs)))
	return nil
}

func arrayTriple(instr []string) (a, b, c int, err error) {
	if len(instr) < 4 {
		return 0, 0, 0, fail(instr[0], fmt.Errorf("%w: need three register operands", ErrFormat))
	}
	a, err = parseRegister(instr[1])
	if err != nil {
		return 0, 0, 0, fail(instr[0], err)
	}
	b, err = parseRegister(instr[2])
	if err != nil {
		return 0, 0, 0, fail(instr[0], err)
	}
	c, err = parseRegister(instr[3])
	if err != nil {
		return 0, 0, 0, fail(instr[0], err)
	}
	return a, b, c, nil
}

func observationValue(obs *regstate.Observation) valuenode.Node {
	if obs == nil {
		return nil
	}
	return obs.Value()
}

func arrayType(obs *regstate.Observation) string {
	if obs == nil {
		return ""
	}
	return obs.Type()
}

// elementType derives an aget result register's type hint: the plain and
// -object variants reuse the array's element type (its own type with the
// leading '[' stripped); the narrower typed variants use the postfix's
// canonical primitive type.
func elementType(mnemonic string, arrayObs *regstate.Observation) string {
	dash := strings.Index(mnemonic, "-")
	if dash == -1 || mnemonic[dash+1:] == "object" {
		if arrayObs == nil {
			return ""
		}
		t := arrayObs.Type()
		if strings.HasPrefix(t, "[") {
			return t[1:]
		}
		return t
	}
	return typeMapping[mnemonic[dash+1:]]
}
