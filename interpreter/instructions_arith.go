package interpreter

import (
	"fmt"
	"strings"

	"github.com/kurogo/apkforensics/valuenode"
)

func init() {
	for _, m := range []string{"neg-int", "neg-float", "not-int"} {
		register(m, negNot)
	}
	for _, m := range []string{"neg-long", "neg-double", "not-long"} {
		register(m, negNotWide)
	}

	for _, op := range []string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "ushr"} {
		for _, t := range []string{"int", "float"} {
			register(op+"-"+t, binop)
		}
		register(op+"-long", binopWide)
		register(op+"-double", binopWide)
		for _, t := range []string{"int", "long", "float", "double"} {
			register(op+"-"+t+"/2addr", binop2addr)
		}
	}
	register("add-int/lit8", binopLit)
	register("add-int/lit16", binopLit)
	register("sub-int/lit8", binopLit)
	register("sub-int/lit16", binopLit)
	register("mul-int/lit8", binopLit)
	register("mul-int/lit16", binopLit)
	register("div-int/lit8", binopLit)
	register("div-int/lit16", binopLit)
	register("rem-int/lit8", binopLit)
	register("rem-int/lit16", binopLit)
	register("and-int/lit8", binopLit)
	register("and-int/lit16", binopLit)
	register("or-int/lit8", binopLit)
	register("or-int/lit16", binopLit)
	register("xor-int/lit8", binopLit)
	register("xor-int/lit16", binopLit)
	register("shl-int/lit8", binopLit)
	register("shl-int/lit16", binopLit)
	register("shr-int/lit8", binopLit)
	register("shr-int/lit16", binopLit)
	register("ushr-int/lit8", binopLit)
	register("ushr-int/lit16", binopLit)
}

// postfixType extracts the type name after a mnemonic's first '-', up to
// the next '/' (if any): "add-int/2addr" -> "int".
func postfixType(mnemonic string) string {
	dash := strings.Index(mnemonic, "-")
	if dash == -1 {
		return ""
	}
	rest := mnemonic[dash+1:]
	if slash := strings.Index(rest, "/"); slash != -1 {
		rest = rest[:slash]
	}
	return rest
}

func negNot(it *Interpreter, instr []string) error {
	dst, src, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	op := valuenode.NewBytecodeOp("{src0}", []valuenode.Node{it.latestValue(src)}, nil)
	it.table.Insert(dst, regObservation(op, typeMapping[postfixType(instr[0])]))
	return nil
}

func negNotWide(it *Interpreter, instr []string) error {
	dst, src, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	t := typeMapping[postfixType(instr[0])]
	lowOp := valuenode.NewBytecodeOp("{src0}", []valuenode.Node{it.latestValue(src)}, nil)
	highOp := valuenode.NewBytecodeOp("{src0}", []valuenode.Node{it.latestValue(src + 1)}, nil)
	it.table.Insert(dst, regObservation(lowOp, t))
	it.table.Insert(dst+1, regObservation(highOp, t))
	return nil
}

// binop evaluates the non-2addr, non-wide, non-literal form:
// `op-type dst, src1, src2`.
func binop(it *Interpreter, instr []string) error {
	if len(instr) < 4 {
		return fail(instr[0], fmt.Errorf("%w: need dest and two src registers", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	src1, err := parseRegister(instr[2])
	if err != nil {
		return fail(instr[0], err)
	}
	src2, err := parseRegister(instr[3])
	if err != nil {
		return fail(instr[0], err)
	}
	op := valuenode.NewBytecodeOp("binop({src0}, {src1})", []valuenode.Node{it.latestValue(src1), it.latestValue(src2)}, nil)
	it.table.Insert(dst, regObservation(op, typeMapping[postfixType(instr[0])]))
	return nil
}

// binopWide evaluates the wide form: register pairs (src1, src1+1) and
// (src2, src2+1) combine low-with-low and high-with-high into the
// destination pair (dst, dst+1).
func binopWide(it *Interpreter, instr []string) error {
	if len(instr) < 4 {
		return fail(instr[0], fmt.Errorf("%w: need dest and two src registers", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	src1, err := parseRegister(instr[2])
	if err != nil {
		return fail(instr[0], err)
	}
	src2, err := parseRegister(instr[3])
	if err != nil {
		return fail(instr[0], err)
	}
	t := typeMapping[postfixType(instr[0])]
	lowOp := valuenode.NewBytecodeOp("binop({src0}, {src1})", []valuenode.Node{it.latestValue(src1), it.latestValue(src2)}, nil)
	highOp := valuenode.NewBytecodeOp("binop({src0}, {src1})", []valuenode.Node{it.latestValue(src1 + 1), it.latestValue(src2 + 1)}, nil)
	it.table.Insert(dst, regObservation(lowOp, t))
	it.table.Insert(dst+1, regObservation(highOp, t))
	return nil
}

// binop2addr evaluates `op-type/2addr dst, src2`, where dst is both the
// destination and the first operand: the prior value must be read before
// the new observation overwrites it.
func binop2addr(it *Interpreter, instr []string) error {
	dst, src2, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	firstOperand := it.latestValue(dst)
	op := valuenode.NewBytecodeOp("binop({src0}, {src1})", []valuenode.Node{firstOperand, it.latestValue(src2)}, nil)
	it.table.Insert(dst, regObservation(op, typeMapping[postfixType(instr[0])]))
	return nil
}

// binopLit evaluates `op-int/lit8|lit16 dst, src, literal`: the literal
// operand is a bare, type-less Primitive embedded verbatim.
func binopLit(it *Interpreter, instr []string) error {
	if len(instr) < 4 {
		return fail(instr[0], fmt.Errorf("%w: need dest, src register, and literal", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	src, err := parseRegister(instr[2])
	if err != nil {
		return fail(instr[0], err)
	}
	literal := valuenode.NewPrimitive(instr[3], "")
	op := valuenode.NewBytecodeOp("binop({src0}, {src1})", []valuenode.Node{it.latestValue(src), literal}, nil)
	it.table.Insert(dst, regObservation(op, typeMapping[postfixType(instr[0])]))
	return nil
}
