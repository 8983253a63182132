package walk

import (
	"sort"

	"github.com/macho-tools/machoscan/internal/model"
)

type evalState int

const (
	stateUnknown evalState = iota
	stateInProgress
	stateDone
)

// Evaluate computes satisfaction and missing-dependency chains for every
// node reachable from the visited roots. It runs after traversal, over the
// now read-only graph topology.
//
// Satisfaction is a recursive property: a node holds iff every edge of every
// architecture view is excluded or resolves to a node that itself holds.
// Cycles are handled in two steps: the recursive pass treats an in-progress
// ancestor as optimistically satisfied, then a fixed-point settling pass
// re-derives each node's value from its edges until nothing changes, which
// corrects any node whose optimism a cycle later invalidated.
func (w *Walker) Evaluate() {
	state := make(map[*model.Node]evalState)
	for _, root := range w.roots {
		w.evalNode(root, state)
	}

	for changed := true; changed; {
		changed = false
		for _, node := range w.cache.Nodes() {
			if node.Satisfied == nil {
				continue
			}
			if v := w.edgesSatisfied(node); v != *node.Satisfied {
				node.SetSatisfied(v)
				changed = true
			}
		}
	}

	memo := make(map[*model.Node][]*model.Edge)
	guard := make(map[*model.Node]bool)
	for _, node := range w.cache.Nodes() {
		if node.Satisfied != nil {
			w.computeMissing(node, memo, guard)
		}
	}
}

func (w *Walker) evalNode(node *model.Node, state map[*model.Node]evalState) bool {
	if node.Pruned {
		// Leaf by policy, not by absence of dependencies.
		return true
	}
	switch state[node] {
	case stateDone:
		return node.IsSatisfied()
	case stateInProgress:
		// Cycle back into an ancestor: count the in-progress placeholder as
		// visited; the settling pass fixes the value if needed.
		return true
	}
	state[node] = stateInProgress

	// Depth first, so edgesSatisfied sees children with settled values.
	for _, view := range sortedViews(node) {
		for _, edge := range view.Dependencies {
			if edge.Target != nil && !edge.Excluded {
				w.evalNode(edge.Target, state)
			}
		}
	}

	node.SetSatisfied(w.edgesSatisfied(node))
	state[node] = stateDone
	return *node.Satisfied
}

// edgesSatisfied derives a node's satisfaction from its own flags and its
// edges' current target values. A binary that exists but could not be
// decoded contributes no dependencies and is conservatively unsatisfied; a
// node excluded on its own first visit can never fail the audit.
func (w *Walker) edgesSatisfied(node *model.Node) bool {
	if node.Excluded {
		return true
	}
	if !node.Parsed {
		return false
	}
	for _, view := range node.Arch {
		for _, edge := range view.Dependencies {
			if edge.Excluded {
				continue
			}
			if !edge.Resolved() || edge.Target == nil || !edge.Target.IsSatisfied() {
				return false
			}
		}
	}
	return true
}

// computeMissing collects, per node, the edges that are unresolved (those
// stay listed even when excluded, annotated as such) and the resolved edges
// whose target subtree is unsatisfied, with the target's own missing list
// attached to the edge so the chain reaches the ultimately missing leaf.
func (w *Walker) computeMissing(node *model.Node, memo map[*model.Node][]*model.Edge, guard map[*model.Node]bool) []*model.Edge {
	if missing, ok := memo[node]; ok {
		return missing
	}
	if guard[node] {
		return nil
	}
	guard[node] = true
	defer delete(guard, node)

	missing := []*model.Edge{}
	for _, view := range sortedViews(node) {
		for _, edge := range view.Dependencies {
			if !edge.Resolved() {
				missing = append(missing, edge)
				continue
			}
			if edge.Excluded || edge.Target == nil {
				continue
			}
			if !edge.Target.IsSatisfied() {
				edge.Missing = w.computeMissing(edge.Target, memo, guard)
				missing = append(missing, edge)
			}
		}
	}

	memo[node] = missing
	node.Missing = missing
	return missing
}

// Unsatisfied reports whether any root failed the audit.
func (w *Walker) Unsatisfied() bool {
	for _, root := range w.roots {
		if root.Satisfied != nil && !*root.Satisfied {
			return true
		}
	}
	return false
}

func sortedViews(node *model.Node) []*model.ArchView {
	names := make([]string, 0, len(node.Arch))
	for name := range node.Arch {
		names = append(names, name)
	}
	sort.Strings(names)
	views := make([]*model.ArchView, 0, len(names))
	for _, name := range names {
		views = append(views, node.Arch[name])
	}
	return views
}
