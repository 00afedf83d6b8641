package interpreter

import "fmt"

func init() {
	for _, m := range []string{
		"move", "move/from16", "move/16",
		"move-object", "move-object/from16", "move-object/16",
		"array-length",
	} {
		register(m, moveKind)
	}
	for _, m := range []string{"move-wide", "move-wide/from16", "move-wide/16"} {
		register(m, moveWideKind)
	}
}

// moveKind copies the source register's current observation verbatim
// (same pointer, not a value copy) into the destination register. This is
// what makes move-object's register aliasing observable: dest and source
// share the exact same Observation afterward.
func moveKind(it *Interpreter, instr []string) error {
	if len(instr) < 3 {
		return fail(instr[0], fmt.Errorf("%w: need dest and src registers", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	src, err := parseRegister(instr[2])
	if err != nil {
		return fail(instr[0], err)
	}
	if obs := it.table.Latest(src); obs != nil {
		it.table.Insert(dst, obs)
	}
	return nil
}

// moveWideKind copies the source register pair (src, src+1) into the
// destination pair (dst, dst+1), aliasing each half's Observation.
func moveWideKind(it *Interpreter, instr []string) error {
	if len(instr) < 3 {
		return fail(instr[0], fmt.Errorf("%w: need dest and src registers", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	src, err := parseRegister(instr[2])
	if err != nil {
		return fail(instr[0], err)
	}
	if obs := it.table.Latest(src); obs != nil {
		it.table.Insert(dst, obs)
	}
	if obs := it.table.Latest(src + 1); obs != nil {
		it.table.Insert(dst+1, obs)
	}
	return nil
}
