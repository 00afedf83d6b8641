package interpreter

import (
	"fmt"

	"github.com/kurogo/apkforensics/valuenode"
)

func init() {
	for _, m := range []string{"const", "const/4", "const/16", "const/high16"} {
		register(m, assignConst)
	}
	register("const-string", constString)
	register("const-string/jumbo", constString)
	register("const-class", constClass)
	register("new-instance", newInstance)
	register("move-exception", moveException)
	register("fill-array-data", fillArrayData)
}

// assignConst handles the const, const/4, const/16, const/high16 family: a
// small numeric literal assigned directly to a register.
func assignConst(it *Interpreter, instr []string) error {
	dst, value, err := destAndLiteral(instr)
	if err != nil {
		return err
	}
	it.table.Insert(dst, regObservation(valuenode.NewPrimitive(value, "I"), "I"))
	return nil
}

func constString(it *Interpreter, instr []string) error {
	dst, value, err := destAndLiteral(instr)
	if err != nil {
		return err
	}
	const t = "Ljava/lang/String;"
	it.table.Insert(dst, regObservation(valuenode.NewPrimitive(value, t), t))
	return nil
}

func constClass(it *Interpreter, instr []string) error {
	dst, class, err := destAndLiteral(instr)
	if err != nil {
		return err
	}
	it.table.Insert(dst, regObservation(valuenode.NewPrimitive(class, class), class))
	return nil
}

func newInstance(it *Interpreter, instr []string) error {
	dst, class, err := destAndLiteral(instr)
	if err != nil {
		return err
	}
	it.table.Insert(dst, regObservation(valuenode.NewPrimitive(class, class), class))
	return nil
}

func moveException(it *Interpreter, instr []string) error {
	if len(instr) < 2 {
		return fail(instr[0], fmt.Errorf("%w: missing destination register", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	const t = "Ljava/lang/Throwable;"
	it.table.Insert(dst, regObservation(valuenode.NewPrimitive("Exception", t), t))
	return nil
}

// fillArrayData marks the array register (the first operand) as holding
// array data embedded elsewhere in the method, without modeling the
// actual element values.
func fillArrayData(it *Interpreter, instr []string) error {
	if len(instr) < 2 {
		return fail(instr[0], fmt.Errorf("%w: missing array register", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	it.table.Insert(dst, regObservation(valuenode.NewBytecodeOp("Embedded-array-data()[]", nil, nil), ""))
	return nil
}

// destAndLiteral parses the common [mnemonic, "vN", literal] shape shared
// by const and new-instance style instructions.
func destAndLiteral(instr []string) (dst int, literal string, err error) {
	if len(instr) < 3 {
		return 0, "", fail(instr[0], fmt.Errorf("%w: need dest register and literal", ErrFormat))
	}
	dst, err = parseRegister(instr[1])
	if err != nil {
		return 0, "", fail(instr[0], err)
	}
	return dst, instr[2], nil
}
