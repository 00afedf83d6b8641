package valuenode

import "sync"

// recursionMarker is emitted in place of a child's resolved string when
// that child is an ancestor of itself in the current resolution — i.e.
// the DAG has a cycle, which can happen if a register is reassigned from
// a bytecode op whose operand was itself.
const recursionMarker = "<...recursion...>"

// cacheKey scopes a memoized string to the node and the evaluateArgs flag
// it was resolved under.
type cacheKey struct {
	node         Node
	evaluateArgs bool
}

var (
	cacheMu sync.Mutex
	cache   = map[cacheKey]string{}
)

type frame struct {
	node      Node
	children  []Node
	childStrs []string
}

// Resolve produces the human-readable expression for node, iteratively
// (no recursion, so a deep call chain never blows the stack) and with
// memoization keyed by node identity and evaluateArgs. evaluateArgs
// controls whether Primitive leaves are type-coerced or left as raw strings.
func Resolve(node Node, evaluateArgs bool) string {
	if node == nil {
		return ""
	}

	cacheMu.Lock()
	if v, ok := cache[cacheKey{node, evaluateArgs}]; ok {
		cacheMu.Unlock()
		return v
	}
	cacheMu.Unlock()

	stack := []frame{{node: node, children: node.children()}}
	onStack := map[Node]bool{node: true}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if len(top.childStrs) < len(top.children) {
			child := top.children[len(top.childStrs)]

			if onStack[child] {
				// Cycle: this child is one of our own ancestors.
				top.childStrs = append(top.childStrs, recursionMarker)
				continue
			}

			cacheMu.Lock()
			cached, ok := cache[cacheKey{child, evaluateArgs}]
			cacheMu.Unlock()
			if ok {
				top.childStrs = append(top.childStrs, cached)
				continue
			}

			onStack[child] = true
			stack = append(stack, frame{node: child, children: child.children()})
			continue
		}

		result := top.node.assemble(top.childStrs, evaluateArgs)

		cacheMu.Lock()
		cache[cacheKey{top.node, evaluateArgs}] = result
		cacheMu.Unlock()

		delete(onStack, top.node)
		stack = stack[:len(stack)-1]

		if len(stack) == 0 {
			return result
		}
		parent := &stack[len(stack)-1]
		parent.childStrs = append(parent.childStrs, result)
	}

	panic("valuenode: unreachable in Resolve")
}

// Forget evicts node (and only node, not its children) from the
// resolution cache. The source relies on a WeakValueDictionary to expire
// cache entries as nodes become unreachable; Go has no weak map, so
// callers that want bounded cache lifetime (e.g. one method evaluation)
// call Forget explicitly, or rely on ResetCache between evaluations.
func Forget(node Node) {
	cacheMu.Lock()
	delete(cache, cacheKey{node, false})
	delete(cache, cacheKey{node, true})
	cacheMu.Unlock()
}

// ResetCache clears the entire resolution cache. analysis.Session calls
// this once per EvaluateAll pass, after every method in the batch has
// been evaluated, since the cache has no other way to bound its size
// without a weak map.
func ResetCache() {
	cacheMu.Lock()
	cache = map[cacheKey]string{}
	cacheMu.Unlock()
}
