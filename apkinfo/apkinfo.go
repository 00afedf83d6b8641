// Package apkinfo defines the facade the interpreter and graph-building
// code consume to learn about an application's methods, its class
// hierarchy, and its call graph, without depending on any concrete
// disassembler. A Backend implementation (outside this module's scope)
// supplies the facts; GraphAdapter is the reference implementation of the
// stable-ordering and canonicalization rules every Backend must honor.
package apkinfo

import (
	"fmt"
	"regexp"
	"strings"
)

// Method is a canonical method handle: Lpkg/Class;->name(args)ret.
type Method struct {
	Class      string
	Name       string
	Descriptor string // "(args)ret", e.g. "(I)Ljava/lang/String;"
}

// String renders the canonical signature form.
func (m Method) String() string {
	return fmt.Sprintf("%s->%s%s", m.Class, m.Name, m.Descriptor)
}

// CalleeEdge is one (callee, stable-order) pair as returned by Lowerfunc.
type CalleeEdge struct {
	Callee Method
	Order  int
}

// Backend is the external collaborator this package is a facade over: a
// disassembler or pre-computed index that can enumerate methods, find
// methods by partial key, walk the class hierarchy, and yield the
// bytecode of a method. The only implementation in this module is
// GraphAdapter, built from a flat list of call edges; a Backend over a
// real APK is supplied by the out-of-scope APK parser.
type Backend interface {
	AllMethods() []Method
	AndroidAPIs() []Method
	CustomMethods() []Method
	FindMethod(class, name, descriptor string) []Method
	Upperfunc(m Method) []Method
	Lowerfunc(m Method) []CalleeEdge
	// MethodBytecode returns the instruction stream for m. Each
	// instruction is a mnemonic followed by its operands. The sequence
	// is lazy and finite; callers consume it once.
	MethodBytecode(m Method) func(yield func([]string) bool)
	Permissions() []string
	SuperclassRelationships(class string) []string
	SubclassRelationships(class string) []string
}

var whitespaceCollapse = regexp.MustCompile(`\s+`)

// CanonicalizeClass normalizes a class name to its slash-separated
// "Lpkg/Class;" form, trimming incidental whitespace. An already-wrapped
// name ("Lpkg/Class;" or a dotted "Lpkg.Class;") only has its dots
// converted to slashes; a bare slash-separated name ("pkg/Class") is
// wrapped as-is; a bare dotted name ("pkg.Class") has its dots converted
// to slashes before being wrapped.
func CanonicalizeClass(class string) string {
	class = strings.TrimSpace(class)
	if class == "" {
		return class
	}
	if strings.HasPrefix(class, "L") && strings.HasSuffix(class, ";") {
		return strings.ReplaceAll(class, ".", "/")
	}
	if strings.Contains(class, "/") && !strings.HasPrefix(class, "L") {
		return "L" + class + ";"
	}
	return "L" + strings.ReplaceAll(class, ".", "/") + ";"
}

// CanonicalizeDescriptor strips whitespace from a method descriptor
// ("(I Ljava/lang/String;)V" -> "(ILjava/lang/String;)V"), matching the
// adapter's tolerance for a whitespace-padded variant of the canonical
// form.
func CanonicalizeDescriptor(descriptor string) string {
	return whitespaceCollapse.ReplaceAllString(strings.TrimSpace(descriptor), "")
}

var externalPrefixes = []string{"Landroid/", "Ljava/", "Ljavax/", "Lkotlin/"}

// IsExternal reports whether class belongs to the Android framework or
// standard library, as opposed to the application's own custom code.
func IsExternal(class string) bool {
	for _, p := range externalPrefixes {
		if strings.HasPrefix(class, p) {
			return true
		}
	}
	return false
}
