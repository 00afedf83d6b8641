package apkinfo

import "sort"

// RawCall is one observed invocation edge before stable ordering is
// applied: the caller, the callee, and an optional byte offset (nil means
// "offset unknown").
type RawCall struct {
	Caller Method
	Callee Method
	Offset *int
}

// GraphAdapter is a reference Backend built directly from a flat list of
// observed call edges. It exists to exercise (and document) the stable
// per-caller ordering rule every real Backend must implement: entries
// with a known offset sort ascending by that offset; entries without one
// keep their original relative position and sort after any with an
// offset. Ties break on original insertion order.
type GraphAdapter struct {
	methods       map[string]Method
	calls         map[string][]CalleeEdge
	callers       map[string][]Method
	superRel      map[string][]string
	subRel        map[string][]string
	bytecode      map[string][][]string
	permissions   []string
	androidAPIs   map[string]bool
}

// NewGraphAdapter builds the method graph from rawCalls with the stable
// per-caller tie-break rule (offset-present-first ascending, then
// original insertion order).
func NewGraphAdapter(rawCalls []RawCall) *GraphAdapter {
	a := &GraphAdapter{
		methods:  map[string]Method{},
		calls:    map[string][]CalleeEdge{},
		callers:  map[string][]Method{},
		superRel: map[string][]string{},
		subRel:   map[string][]string{},
		bytecode: map[string][][]string{},
	}

	type indexedCall struct {
		idx    int
		offset *int
		callee Method
	}
	perCaller := map[string][]indexedCall{}
	callerOrder := []string{}

	for i, rc := range rawCalls {
		a.methods[rc.Caller.String()] = rc.Caller
		a.methods[rc.Callee.String()] = rc.Callee

		key := rc.Caller.String()
		if _, ok := perCaller[key]; !ok {
			callerOrder = append(callerOrder, key)
		}
		perCaller[key] = append(perCaller[key], indexedCall{idx: i, offset: rc.Offset, callee: rc.Callee})
	}

	for _, callerKey := range callerOrder {
		items := perCaller[callerKey]
		sort.SliceStable(items, func(i, j int) bool {
			oi, oj := items[i].offset, items[j].offset
			if (oi == nil) != (oj == nil) {
				return oi != nil // offset-present sorts first
			}
			if oi != nil && oj != nil && *oi != *oj {
				return *oi < *oj
			}
			return items[i].idx < items[j].idx
		})

		caller := a.methods[callerKey]
		for order, item := range items {
			a.calls[callerKey] = append(a.calls[callerKey], CalleeEdge{Callee: item.callee, Order: order})
			calleeKey := item.callee.String()
			known := false
			for _, c := range a.callers[calleeKey] {
				if c == caller {
					known = true
					break
				}
			}
			if !known {
				a.callers[calleeKey] = append(a.callers[calleeKey], caller)
			}
		}
	}

	return a
}

// SetSuperclassRelationships registers class -> direct superclasses/interfaces.
func (a *GraphAdapter) SetSuperclassRelationships(rel map[string][]string) {
	a.superRel = rel
}

// SetSubclassRelationships registers class -> direct subclasses.
func (a *GraphAdapter) SetSubclassRelationships(rel map[string][]string) {
	a.subRel = rel
}

// SetMethodBytecode registers the instruction stream for a method.
func (a *GraphAdapter) SetMethodBytecode(m Method, instructions [][]string) {
	a.bytecode[m.String()] = instructions
}

// SetPermissions registers the manifest-declared permission set.
func (a *GraphAdapter) SetPermissions(perms []string) { a.permissions = perms }

// SetAndroidAPIs marks the given methods as Android framework API
// surface (as opposed to merely external); AndroidAPIs() returns this
// subset.
func (a *GraphAdapter) SetAndroidAPIs(methods []Method) {
	a.androidAPIs = map[string]bool{}
	for _, m := range methods {
		a.androidAPIs[m.String()] = true
	}
}

func (a *GraphAdapter) AllMethods() []Method {
	out := make([]Method, 0, len(a.methods))
	for _, m := range a.methods {
		out = append(out, m)
	}
	return out
}

func (a *GraphAdapter) AndroidAPIs() []Method {
	var out []Method
	for _, m := range a.methods {
		if a.androidAPIs[m.String()] {
			out = append(out, m)
		}
	}
	return out
}

func (a *GraphAdapter) CustomMethods() []Method {
	var out []Method
	for _, m := range a.methods {
		if !IsExternal(m.Class) {
			out = append(out, m)
		}
	}
	return out
}

func (a *GraphAdapter) FindMethod(class, name, descriptor string) []Method {
	if class != "" {
		class = CanonicalizeClass(class)
	}
	if descriptor != "" {
		descriptor = CanonicalizeDescriptor(descriptor)
	}

	var out []Method
	for _, m := range a.methods {
		if class != "" && CanonicalizeClass(m.Class) != class {
			continue
		}
		if name != "" && m.Name != name {
			continue
		}
		if descriptor != "" && CanonicalizeDescriptor(m.Descriptor) != descriptor {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (a *GraphAdapter) Upperfunc(m Method) []Method {
	return a.callers[m.String()]
}

func (a *GraphAdapter) Lowerfunc(m Method) []CalleeEdge {
	return a.calls[m.String()]
}

func (a *GraphAdapter) MethodBytecode(m Method) func(yield func([]string) bool) {
	instructions := a.bytecode[m.String()]
	return func(yield func([]string) bool) {
		for _, instr := range instructions {
			if !yield(instr) {
				return
			}
		}
	}
}

func (a *GraphAdapter) Permissions() []string { return a.permissions }

func (a *GraphAdapter) SuperclassRelationships(class string) []string {
	return a.superRel[class]
}

func (a *GraphAdapter) SubclassRelationships(class string) []string {
	return a.subRel[class]
}
