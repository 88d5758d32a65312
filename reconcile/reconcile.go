// Package reconcile turns declarative node trees into instruction batches.
//
// A Reconciler remembers which nodes it has already mounted on a Runtime.
// Rendering a tree emits CreateNode and AppendChild only for new nodes and
// SetProperty only for property values that differ from the mounted ones,
// followed by ActivateRoots and CommitUpdates:
//
//	r := reconcile.NewReconciler()
//	batch := r.Render(reconcile.Root(reconcile.Cycle(reconcile.Const(110))))
//	err := rt.ApplyInstructions(batch)
package reconcile

import (
	"reflect"

	"github.com/cwbudde/algo-elem/engine"
)

// Reconciler tracks mounted nodes across renders. It is not safe for
// concurrent use.
type Reconciler struct {
	mounted map[int32]engine.Props
	// undo holds the mounted props each node had before the last Render; a
	// nil value means the node was not mounted.
	undo map[int32]engine.Props
}

// NewReconciler returns a reconciler with nothing mounted.
func NewReconciler() *Reconciler {
	return &Reconciler{
		mounted: make(map[int32]engine.Props),
		undo:    make(map[int32]engine.Props),
	}
}

// Render returns the batch that brings the runtime from the previously
// rendered state to roots. Subtrees are visited breadth first and each node
// once. Render assumes the batch will be applied; if the runtime rejects it,
// call Rollback before rendering again.
func (r *Reconciler) Render(roots ...*Node) []engine.Instruction {
	var creates, rest []engine.Instruction

	clear(r.undo)

	visited := make(map[int32]struct{})
	queue := append([]*Node(nil), roots...)

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if _, ok := visited[n.id]; ok {
			continue
		}

		visited[n.id] = struct{}{}

		prev, mounted := r.mounted[n.id]
		if !mounted {
			creates = append(creates, engine.Create(n.id, n.kind))

			for _, c := range n.children {
				rest = append(rest, engine.Append(n.id, c.id, c.outlet))
			}

			prev = engine.Props{}
		}

		for _, k := range n.props.Keys() {
			v := n.props[k]

			if old, ok := prev[k]; ok && reflect.DeepEqual(old, v) {
				continue
			}

			rest = append(rest, engine.Set(n.id, k, v))
		}

		if mounted {
			r.undo[n.id] = r.mounted[n.id]
		} else {
			r.undo[n.id] = nil
		}

		r.mounted[n.id] = n.props

		queue = append(queue, n.children...)
	}

	ids := make([]int32, len(roots))
	for i, n := range roots {
		ids[i] = n.id
	}

	out := make([]engine.Instruction, 0, len(creates)+len(rest)+2)
	out = append(out, creates...)
	out = append(out, rest...)
	out = append(out, engine.Activate(ids...), engine.Commit())

	return out
}

// Rollback restores the mounted set to its state before the last Render.
func (r *Reconciler) Rollback() {
	for id, props := range r.undo {
		if props == nil {
			delete(r.mounted, id)
		} else {
			r.mounted[id] = props
		}
	}

	clear(r.undo)
}

// Forget drops ids from the mounted set, typically the result of
// Runtime.GC, so that rendering them again recreates them.
func (r *Reconciler) Forget(ids []int32) {
	for _, id := range ids {
		delete(r.mounted, id)
	}
}

// Reset forgets every mounted node.
func (r *Reconciler) Reset() {
	clear(r.mounted)
	clear(r.undo)
}
