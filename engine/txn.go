package engine

import "slices"

// txn is a copy-on-write view of a committed graphTable. The entry map is
// copied up front; entries are cloned on their first edit so the committed
// table is never mutated by a batch that ends up discarded.
type txn struct {
	graph   *graphTable
	owned   map[int32]bool
	changed bool
}

func newTxn(base *graphTable) *txn {
	entries := make(map[int32]*nodeEntry, len(base.entries))
	for id, e := range base.entries {
		entries[id] = e
	}

	return &txn{
		graph: &graphTable{entries: entries, roots: slices.Clone(base.roots)},
		owned: make(map[int32]bool),
	}
}

func (t *txn) get(id int32) *nodeEntry {
	return t.graph.entries[id]
}

// edit returns a private copy of the entry that may be mutated.
func (t *txn) edit(id int32) *nodeEntry {
	e := t.graph.entries[id]
	if !t.owned[id] {
		e = e.clone()
		t.graph.entries[id] = e
		t.owned[id] = true
	}

	t.changed = true

	return e
}

func (t *txn) put(e *nodeEntry) {
	t.graph.entries[e.id] = e
	t.owned[e.id] = true
	t.changed = true
}

func (t *txn) remove(id int32) {
	delete(t.graph.entries, id)
	delete(t.owned, id)
	t.changed = true
}

func (t *txn) setRoots(roots []int32) {
	t.graph.roots = roots
	t.changed = true
}

func (t *txn) table() *graphTable {
	return t.graph
}
