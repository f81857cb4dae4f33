package cycles

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/symbols"
)

// CycleExplainer reports manifests that include each other, using Tarjan's
// SCC algorithm over the include edges of a snapshot. The walker already
// terminates on cycles; this makes them visible.
type CycleExplainer struct{}

// New creates a new CycleExplainer.
func New() *CycleExplainer {
	return &CycleExplainer{}
}

func (e *CycleExplainer) Name() string {
	return "cycles"
}

// Explain returns one diagnostic per include cycle.
func (e *CycleExplainer) Explain(ctx context.Context, snap *symbols.Snapshot) ([]diag.Diagnostic, error) {
	graph, selfLoops := buildIncludeGraph(snap.Meta.Includes)

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			cycles = append(cycles, sortedMembers(scc))
		}
	}
	for _, m := range selfLoops {
		cycles = append(cycles, []string{m})
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })

	out := make([]diag.Diagnostic, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, diag.Diagnostic{
			Kind:    diag.KindIncludeCycle,
			Path:    c[0],
			Message: fmt.Sprintf("include cycle: %s -> %s", strings.Join(c, " -> "), c[0]),
		})
	}
	return out, ctx.Err()
}

// buildIncludeGraph turns edges into a sorted adjacency list and collects
// manifests that include themselves.
func buildIncludeGraph(edges []symbols.IncludeEdge) (map[string][]string, []string) {
	graph := make(map[string][]string)
	var selfLoops []string
	seenSelf := make(map[string]bool)
	for _, e := range edges {
		if _, ok := graph[e.To]; !ok {
			graph[e.To] = nil
		}
		if e.From == e.To {
			if !seenSelf[e.From] {
				seenSelf[e.From] = true
				selfLoops = append(selfLoops, e.From)
			}
			continue
		}
		graph[e.From] = append(graph[e.From], e.To)
	}
	for k := range graph {
		sort.Strings(graph[k])
	}
	return graph, selfLoops
}

// sortedMembers returns the members of an SCC in lexical order.
func sortedMembers(scc []string) []string {
	out := make([]string, len(scc))
	copy(out, scc)
	sort.Strings(out)
	return out
}

// tarjanSCC implements Tarjan's strongly connected components algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index    int
		stack    []string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlinks = make(map[string]int)
		sccs     [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				if lowlinks[w] < lowlinks[v] {
					lowlinks[v] = lowlinks[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlinks[v] {
					lowlinks[v] = indices[w]
				}
			}
		}

		// Root of an SCC
		if lowlinks[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for v := range graph {
		nodes = append(nodes, v)
	}
	sort.Strings(nodes)
	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}

	return sccs
}
