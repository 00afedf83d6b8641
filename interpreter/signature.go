package interpreter

import (
	"fmt"
	"strings"
)

// parsedSignature is a method signature split into its declaring class (may
// be empty if the signature omitted it), method name, and parameter/return
// descriptor.
type parsedSignature struct {
	class      string
	name       string
	descriptor string // "(args)ret"
}

// parseSignature splits "Lcls;->name(args)ret" or the class-less
// "name(args)ret" form. Returns an error if no "(" delimiting the
// parameter list can be found at all.
func parseSignature(signature string) (parsedSignature, error) {
	remainder := signature
	class := ""
	if idx := strings.Index(signature, "->"); idx != -1 {
		class = signature[:idx]
		remainder = signature[idx+2:]
	}

	parenIdx := strings.Index(remainder, "(")
	if parenIdx == -1 {
		return parsedSignature{}, fmt.Errorf("%w: unparsable method signature: %q", ErrFormat, signature)
	}

	return parsedSignature{
		class:      class,
		name:       remainder[:parenIdx],
		descriptor: remainder[parenIdx:],
	}, nil
}

func (s parsedSignature) String() string {
	if s.class == "" {
		return s.name + s.descriptor
	}
	return s.class + "->" + s.name + s.descriptor
}

// paramTypes parses descriptor's "(args)" portion into individual type
// descriptors, following the standard field-descriptor grammar: a single
// primitive letter, an L...; class type, or one or more leading '['
// array markers followed by either of those.
func (s parsedSignature) paramTypes() []string {
	open := strings.Index(s.descriptor, "(")
	closeIdx := strings.Index(s.descriptor, ")")
	if open == -1 || closeIdx == -1 || closeIdx < open {
		return nil
	}
	return splitDescriptors(s.descriptor[open+1 : closeIdx])
}

// returnType is everything after the closing paren.
func (s parsedSignature) returnType() string {
	closeIdx := strings.Index(s.descriptor, ")")
	if closeIdx == -1 || closeIdx+1 > len(s.descriptor) {
		return ""
	}
	return s.descriptor[closeIdx+1:]
}

// splitDescriptors tokenizes a concatenated run of field descriptors.
func splitDescriptors(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] == 'L' {
			semi := strings.IndexByte(s[i:], ';')
			if semi == -1 {
				i = len(s)
			} else {
				i += semi + 1
			}
		} else {
			i++
		}
		out = append(out, s[start:i])
	}
	return out
}

// getMethodPattern renders the canonical "class->name(args)ret" signature.
func getMethodPattern(class, name, descriptor string) string {
	return class + "->" + name + descriptor
}

// lookupImplement resolves which class in instanceType's hierarchy actually
// implements the method named by signature, starting the walk at
// instanceType itself (or, if skipSelf, at instanceType's direct
// superclasses/interfaces instead). The signature's own declaring-class
// portion is ignored for the walk: only its name and descriptor matter.
// Returns signature unchanged if instanceType is empty or the Interpreter
// has no backend (no hierarchy info to walk).
func (it *Interpreter) lookupImplement(instanceType, signature string, skipSelf bool) (string, error) {
	if instanceType == "" || it.backend == nil {
		return signature, nil
	}
	parsed, err := parseSignature(signature)
	if err != nil {
		return "", err
	}

	visited := map[string]bool{}
	var stack []string
	if skipSelf {
		stack = append(stack, it.backend.SuperclassRelationships(instanceType)...)
	} else {
		stack = append(stack, instanceType)
	}
	for _, c := range stack {
		visited[c] = true
	}

	for len(stack) > 0 {
		class := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if matches := it.backend.FindMethod(class, parsed.name, parsed.descriptor); len(matches) > 0 {
			return getMethodPattern(class, parsed.name, parsed.descriptor), nil
		}

		supers := it.backend.SuperclassRelationships(class)
		for i := len(supers) - 1; i >= 0; i-- {
			super := supers[i]
			if !visited[super] {
				visited[super] = true
				stack = append(stack, super)
			}
		}
	}

	return "", fmt.Errorf("%w: Instance type %q has no implementation of %s%s", ErrLookup, instanceType, parsed.name, parsed.descriptor)
}
