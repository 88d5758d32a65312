package engine

import (
	"errors"
	"slices"
)

// Edge connects a parent inlet to one output channel of a child node.
type Edge struct {
	Child  int32
	Outlet int
}

type nodeEntry struct {
	id       int32
	kind     string
	node     Node
	props    Props
	settings Settings
	children []Edge
	deps     []string
}

func (e *nodeEntry) clone() *nodeEntry {
	out := *e
	out.children = slices.Clone(e.children)

	return &out
}

func (e *nodeEntry) dependsOn(name string) bool {
	return slices.Contains(e.deps, name)
}

// graphTable is the control-side view of the graph. Only code holding the
// runtime mutex reads or writes it.
type graphTable struct {
	entries map[int32]*nodeEntry
	roots   []int32
}

func newGraphTable() *graphTable {
	return &graphTable{entries: make(map[int32]*nodeEntry)}
}

func (g *graphTable) sortedIDs() []int32 {
	ids := make([]int32, 0, len(g.entries))
	for id := range g.entries {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// reaches reports whether target is reachable from start by following child
// edges, start included.
func (g *graphTable) reaches(start, target int32) bool {
	seen := make(map[int32]struct{})
	stack := []int32{start}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == target {
			return true
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}

		e := g.entries[id]
		if e == nil {
			continue
		}

		for _, edge := range e.children {
			stack = append(stack, edge.Child)
		}
	}

	return false
}

// referenced reports whether any node or the root list points at id.
func (g *graphTable) referenced(id int32) bool {
	if slices.Contains(g.roots, id) {
		return true
	}

	for _, e := range g.entries {
		for _, edge := range e.children {
			if edge.Child == id {
				return true
			}
		}
	}

	return false
}

// reachable returns the set of nodes reachable from the active roots.
func (g *graphTable) reachable() map[int32]struct{} {
	seen := make(map[int32]struct{}, len(g.entries))
	stack := slices.Clone(g.roots)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[id]; ok {
			continue
		}

		e := g.entries[id]
		if e == nil {
			continue
		}

		seen[id] = struct{}{}

		for _, edge := range e.children {
			stack = append(stack, edge.Child)
		}
	}

	return seen
}

var errCycle = errors.New("graph contains cycle")

// evaluationOrder sorts the reachable nodes so every child precedes its
// parents (Kahn's algorithm). Ties are broken by node id so that identical
// tables always produce identical orders.
func (g *graphTable) evaluationOrder() ([]int32, error) {
	live := g.reachable()

	ids := make([]int32, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	pending := make(map[int32]int, len(ids))
	parents := make(map[int32][]int32, len(ids))

	for _, id := range ids {
		e := g.entries[id]
		pending[id] = len(e.children)

		for _, edge := range e.children {
			parents[edge.Child] = append(parents[edge.Child], id)
		}
	}

	queue := make([]int32, 0, len(ids))

	for _, id := range ids {
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int32, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		order = append(order, id)
		for _, p := range parents[id] {
			pending[p]--
			if pending[p] == 0 {
				queue = append(queue, p)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, errCycle
	}

	return order, nil
}

// NodeInfo describes one node of the control-side graph.
type NodeInfo struct {
	ID       int32
	Kind     string
	Props    Props
	Children []Edge
}

// GraphInfo is a deep copy of the control-side graph, nodes sorted by id.
type GraphInfo struct {
	Nodes []NodeInfo
	Roots []int32
}

// Graph returns a copy of the committed graph table.
func (r *Runtime[C]) Graph() GraphInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := GraphInfo{Roots: slices.Clone(r.graph.roots)}
	for _, id := range r.graph.sortedIDs() {
		e := r.graph.entries[id]
		info.Nodes = append(info.Nodes, NodeInfo{
			ID:       e.id,
			Kind:     e.kind,
			Props:    e.props.Clone(),
			Children: slices.Clone(e.children),
		})
	}

	return info
}

// GC deletes every node that is not reachable from the active roots and
// returns the deleted ids in ascending order.
func (r *Runtime[C]) GC() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	live := r.graph.reachable()

	var removed []int32

	for _, id := range r.graph.sortedIDs() {
		if _, ok := live[id]; ok {
			continue
		}

		delete(r.graph.entries, id)
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		r.log.Debug("engine: collected unreachable nodes", "count", len(removed))
	}

	return removed
}
