package interpreter

import (
	"fmt"
	"strings"

	"github.com/kurogo/apkforensics/valuenode"
)

func init() {
	register("invoke-virtual", invokeVirtual)
	register("invoke-virtual/range", invokeVirtual)
	register("invoke-interface", invokeInterface)
	register("invoke-interface/range", invokeInterface)
	register("invoke-super", invokeSuper)
	register("invoke-super/range", invokeSuper)
	register("invoke-direct", invokePlain)
	register("invoke-direct/range", invokePlain)
	register("invoke-static", invokePlain)
	register("invoke-static/range", invokePlain)
	register("invoke-polymorphic", invokePlain)
	register("invoke-polymorphic/range", invokePlain)
	register("invoke-custom", invokePlain)
	register("invoke-custom/range", invokePlain)

	register("move-result", moveResult)
	register("move-result-object", moveResult)
	register("move-result-wide", moveResultWide)
}

func invokeVirtual(it *Interpreter, instr []string) error {
	return it.invoke(instr, true, false)
}

func invokeInterface(it *Interpreter, instr []string) error {
	return it.invoke(instr, true, false)
}

func invokeSuper(it *Interpreter, instr []string) error {
	return it.invoke(instr, true, true)
}

func invokePlain(it *Interpreter, instr []string) error {
	return it.invoke(instr, false, false)
}

// invoke is the shared implementation behind every invoke-* mnemonic. regs
// are every operand between the mnemonic and the trailing method
// signature; the last element of instr is always the signature. When
// lookUp is set, the first register is the receiver and its runtime type
// drives a lookupImplement hierarchy walk to resolve the concrete method
// actually being called. Every consumed register accumulates the
// resulting MethodCall in its CalledBy list, and any register whose type
// is still unknown is back-filled from the signature (the receiver gets
// the resolved declaring class; the rest get their declared parameter
// type).
func (it *Interpreter) invoke(instr []string, lookUp, skipSelf bool) error {
	mnemonic := instr[0]
	if len(instr) < 2 {
		return fail(mnemonic, fmt.Errorf("%w: missing method signature", ErrFormat))
	}

	rest := instr[1:]
	signature := rest[len(rest)-1]
	regOperands := rest[:len(rest)-1]

	parsed, err := parseSignature(signature)
	if err != nil {
		return fail(mnemonic, err)
	}

	hasInstance := !strings.Contains(mnemonic, "static") && !strings.Contains(mnemonic, "custom")

	regIndices := make([]int, len(regOperands))
	for i, r := range regOperands {
		idx, err := parseRegister(r)
		if err != nil {
			return fail(mnemonic, err)
		}
		regIndices[i] = idx
	}

	resolvedSignature := parsed
	if lookUp && len(regIndices) > 0 {
		instanceType := ""
		if obs := it.table.Latest(regIndices[0]); obs != nil {
			instanceType = obs.Type()
		}
		resolvedStr, err := it.lookupImplement(instanceType, signature, skipSelf)
		if err != nil {
			return fail(mnemonic, err)
		}
		resolvedSignature, err = parseSignature(resolvedStr)
		if err != nil {
			return fail(mnemonic, err)
		}
	}

	paramTypes := parsed.paramTypes()
	argNodes := make([]valuenode.Node, 0, len(regIndices))
	for i, idx := range regIndices {
		obs := it.table.Latest(idx)
		if obs == nil {
			continue
		}
		switch {
		case hasInstance && i == 0:
			if obs.Type() == "" && resolvedSignature.class != "" {
				obs.SetType(resolvedSignature.class)
			}
		default:
			paramIdx := i
			if hasInstance {
				paramIdx--
			}
			if obs.Type() == "" && paramIdx >= 0 && paramIdx < len(paramTypes) {
				obs.SetType(paramTypes[paramIdx])
			}
		}
		argNodes = append(argNodes, obs.Value())
	}

	call := valuenode.NewMethodCall(resolvedSignature.String(), argNodes)
	for _, idx := range regIndices {
		if obs := it.table.Latest(idx); obs != nil {
			obs.AppendCall(call)
		}
	}

	retType := parsed.returnType()
	if retType != "" && retType != "V" {
		it.retValue = call
		it.retType = retType
	}

	return nil
}

func moveResult(it *Interpreter, instr []string) error {
	if len(instr) == 0 {
		return fail("", fmt.Errorf("%w: empty instruction", ErrFormat))
	}
	if len(instr) < 2 {
		return fail(instr[0], fmt.Errorf("%w: missing destination register", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	obs := regObservation(it.retValue, it.retType)
	it.table.Insert(dst, obs)
	it.retValue = nil
	it.retType = ""
	return nil
}

func moveResultWide(it *Interpreter, instr []string) error {
	if len(instr) < 2 {
		return fail(instr[0], fmt.Errorf("%w: missing destination register", ErrFormat))
	}
	dst, err := parseRegister(instr[1])
	if err != nil {
		return fail(instr[0], err)
	}
	obs := regObservation(it.retValue, it.retType)
	it.table.Insert(dst, obs)
	it.table.Insert(dst+1, obs)
	it.retValue = nil
	it.retType = ""
	return nil
}
