// Package regstate tracks, for one method evaluation, the sequence of
// observations each register has held: the value node currently in the
// register, its type hint, and every method call that has consumed it.
package regstate

import "github.com/kurogo/apkforensics/valuenode"

// Observation is one register state at a point in time: the value node it
// holds, its type hint (empty means unknown/reference), and the calls
// that have consumed it as an argument, in invocation order. Observations
// are append-only — mutating a register pushes a new Observation onto its
// stack rather than editing the old one.
type Observation struct {
	value      valuenode.Node
	calledBy   []*valuenode.MethodCall
	valueType  string
}

// NewObservation constructs an Observation. calledBy may be nil.
func NewObservation(value valuenode.Node, valueType string, calledBy *valuenode.MethodCall) *Observation {
	o := &Observation{value: value, valueType: valueType}
	if calledBy != nil {
		o.calledBy = append(o.calledBy, calledBy)
	}
	return o
}

// Value returns the value node this observation holds.
func (o *Observation) Value() valuenode.Node { return o.value }

// SetValue replaces the value node in place; it does not by itself create
// a new observation.
func (o *Observation) SetValue(v valuenode.Node) { o.value = v }

// Type returns the current type hint, possibly empty.
func (o *Observation) Type() string { return o.valueType }

// SetType sets the type hint.
func (o *Observation) SetType(t string) { o.valueType = t }

// AppendCall records that call consumed this observation as an argument.
func (o *Observation) AppendCall(call *valuenode.MethodCall) {
	o.calledBy = append(o.calledBy, call)
}

// CalledBy returns the calls that consumed this observation, in order.
func (o *Observation) CalledBy() []*valuenode.MethodCall { return o.calledBy }

// BearsObject reports whether the observation holds an object reference
// or has an unknown type: true iff the type hint is empty or begins with
// "L" (reference-like in Dalvik descriptor notation).
func (o *Observation) BearsObject() bool {
	return o.valueType == "" || (len(o.valueType) > 0 && o.valueType[0] == 'L')
}

// InvolvedCalls yields every MethodCall reachable (breadth-first,
// deduplicated) from any call this observation was passed to.
func (o *Observation) InvolvedCalls() []*valuenode.MethodCall {
	var out []*valuenode.MethodCall
	seen := map[*valuenode.MethodCall]bool{}
	for _, call := range o.calledBy {
		for _, c := range valuenode.PriorCalls(call) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
