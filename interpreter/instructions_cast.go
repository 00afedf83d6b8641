package interpreter

import (
	"fmt"
	"strings"

	"github.com/kurogo/apkforensics/valuenode"
)

func init() {
	simple := []string{
		"int-to-float", "int-to-byte", "int-to-char", "int-to-short",
		"float-to-int",
	}
	simpleToWide := []string{
		"int-to-long", "int-to-double", "float-to-long", "float-to-double",
	}
	wideToSimple := []string{
		"long-to-int", "long-to-float", "double-to-int", "double-to-float",
	}
	wideToWide := []string{"long-to-double", "double-to-long"}

	for _, m := range simple {
		register(m, castSimple)
	}
	for _, m := range simpleToWide {
		register(m, castSimpleToWide)
	}
	for _, m := range wideToSimple {
		register(m, castWideToSimple)
	}
	for _, m := range wideToWide {
		register(m, castWideToWide)
	}
}

// destCastType extracts the destination type name from an "X-to-Y"
// mnemonic and maps it to its canonical descriptor.
func destCastType(mnemonic string) string {
	idx := strings.Index(mnemonic, "-to-")
	if idx == -1 {
		return ""
	}
	return typeMapping[mnemonic[idx+4:]]
}

func castSimple(it *Interpreter, instr []string) error {
	dst, src, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	op := valuenode.NewBytecodeOp("casting({src0})", []valuenode.Node{it.latestValue(src)}, nil)
	it.table.Insert(dst, regObservation(op, destCastType(instr[0])))
	return nil
}

// castSimpleToWide casts a single-register value into a wide result:
// both the destination register and its successor receive the same
// casting expression and type.
func castSimpleToWide(it *Interpreter, instr []string) error {
	dst, src, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	op := valuenode.NewBytecodeOp("casting({src0})", []valuenode.Node{it.latestValue(src)}, nil)
	t := destCastType(instr[0])
	obs := regObservation(op, t)
	it.table.Insert(dst, obs)
	it.table.Insert(dst+1, regObservation(op, t))
	return nil
}

// castWideToSimple casts a wide register pair down into a single
// destination register, embedding both source halves in the expression.
func castWideToSimple(it *Interpreter, instr []string) error {
	dst, src, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	op := valuenode.NewBytecodeOp("casting({src0}, {src1})", []valuenode.Node{
		it.latestValue(src), it.latestValue(src + 1),
	}, nil)
	it.table.Insert(dst, regObservation(op, destCastType(instr[0])))
	return nil
}

// castWideToWide casts a wide pair into another wide pair.
func castWideToWide(it *Interpreter, instr []string) error {
	dst, src, err := destAndSrcRegister(instr)
	if err != nil {
		return err
	}
	op := valuenode.NewBytecodeOp("casting({src0}, {src1})", []valuenode.Node{
		it.latestValue(src), it.latestValue(src + 1),
	}, nil)
	t := destCastType(instr[0])
	it.table.Insert(dst, regObservation(op, t))
	it.table.Insert(dst+1, regObservation(op, t))
	return nil
}

func destAndSrcRegister(instr []string) (dst, src int, err error) {
	if len(instr) < 3 {
		return 0, 0, fail(instr[0], fmt.Errorf("%w: need dest and src registers", ErrFormat))
	}
	dst, err = parseRegister(instr[1])
	if err != nil {
		return 0, 0, fail(instr[0], err)
	}
	src, err = parseRegister(instr[2])
	if err != nil {
		return 0, 0, fail(instr[0], err)
	}
	return dst, src, nil
}
