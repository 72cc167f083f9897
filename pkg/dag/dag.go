// Package dag provides the graph walks the workflow manager is built on.
// The task graph is implicit: edges are the parent relations derived
// from input bindings, and the whole graph is reached from a single root
// (the sink task whose outputs the caller wants).
package dag

import (
	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/task"
)

// Ancestors returns every task reachable from root via parent relations,
// root included. The order is deterministic: a depth-first walk that
// visits parents in input-declaration order and appends each task after
// its parents, so the result is also a topological order. The manager
// uses this discovery order to break admission ties.
func Ancestors(root *task.Base) []*task.Base {
	var result []*task.Base
	visited := make(map[*task.Base]struct{})
	var visit func(t *task.Base)
	visit = func(t *task.Base) {
		if _, ok := visited[t]; ok {
			return
		}
		visited[t] = struct{}{}
		for _, p := range t.Parents() {
			visit(p)
		}
		result = append(result, t)
	}
	visit(root)
	return result
}

// TopoOrder returns a topological ordering of Ancestors(root): parents
// always precede children. Useful for deterministic replay and
// debugging; the scheduler itself does not require it.
func TopoOrder(root *task.Base) []*task.Base {
	return Ancestors(root)
}

// DetectCycle looks for a cycle among the parent relations reachable
// from root. It returns the names of the tasks forming one cycle as a
// witness, or nil if the graph is acyclic.
func DetectCycle(root *task.Base) []dagapi.TaskName {
	visited := make(map[*task.Base]struct{})
	onPath := make(map[*task.Base]int)
	var path []*task.Base

	var visit func(t *task.Base) []dagapi.TaskName
	visit = func(t *task.Base) []dagapi.TaskName {
		if i, ok := onPath[t]; ok {
			// slice out the loop, closing it with a repeat of the entry task
			witness := make([]dagapi.TaskName, 0, len(path)-i+1)
			for _, w := range path[i:] {
				witness = append(witness, w.Name())
			}
			witness = append(witness, t.Name())
			return witness
		}
		if _, ok := visited[t]; ok {
			return nil
		}
		onPath[t] = len(path)
		path = append(path, t)
		for _, p := range t.Parents() {
			if witness := visit(p); witness != nil {
				return witness
			}
		}
		path = path[:len(path)-1]
		delete(onPath, t)
		visited[t] = struct{}{}
		return nil
	}
	return visit(root)
}
