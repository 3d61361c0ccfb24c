package health

import (
	"strings"

	"github.com/starford/tracelight/internal/graph"
)

type frame struct {
	node string
	succ []string
	next int
}

// FindCircularDeps reports the cycles of the traceability digraph.
// Conflicts links are not part of the digraph and never form cycles.
//
// The search is an iterative depth-first walk with an explicit stack and an
// on-stack set. Roots and successors are visited in ascending id order so
// the same graph always yields the same cycles. Each back-edge to a node
// still on the stack yields one cycle, reported as the stack path from that
// node to the current node, closed by repeating the first id. Nodes reached
// by an earlier walk, including every node of a reported cycle, are never
// used as fresh roots.
func (a *Analyzer) FindCircularDeps(v *graph.Views) [][]string {
	cycles := [][]string{}
	seen := make(map[string]struct{})
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	for _, root := range v.Nodes() {
		if visited[root] {
			continue
		}
		visited[root] = true
		onStack[root] = true
		stack := []frame{{node: root, succ: v.Successors(root)}}
		path := []string{root}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(top.succ) {
				delete(onStack, top.node)
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			next := top.succ[top.next]
			top.next++

			switch {
			case onStack[next]:
				cycle := closeCycle(path, next)
				key := strings.Join(cycle, "\x00")
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					cycles = append(cycles, cycle)
				}
			case !visited[next]:
				visited[next] = true
				onStack[next] = true
				stack = append(stack, frame{node: next, succ: v.Successors(next)})
				path = append(path, next)
			}
		}
	}
	return cycles
}

// closeCycle extracts the stack path starting at start and appends start
// again so the cycle begins and ends at the same id.
func closeCycle(path []string, start string) []string {
	i := len(path) - 1
	for i > 0 && path[i] != start {
		i--
	}
	cycle := make([]string, 0, len(path)-i+1)
	cycle = append(cycle, path[i:]...)
	return append(cycle, start)
}
