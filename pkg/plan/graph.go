package plan

import (
	"sort"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
)

// graph is the combined-edge DAG used for cycle detection and wave
// scheduling: edges come from depends_on, textual template references,
// and (for a join node) every config.sources entry.
type graph struct {
	nodes    []string
	edges    map[string][]string // node -> nodes it depends on
	children map[string][]string // node -> nodes that depend on it
}

func buildGraph(doc *document.Document, refs map[string][]string) *graph {
	g := &graph{
		edges:    make(map[string][]string),
		children: make(map[string][]string),
	}
	for name := range doc.Nodes {
		g.nodes = append(g.nodes, name)
		g.edges[name] = nil
	}
	// deterministic tie-breaking by node name; the document's mapping order
	// is not kept, so declaration order plays no part.
	sort.Strings(g.nodes)

	add := func(from, to string) {
		for _, existing := range g.edges[from] {
			if existing == to {
				return
			}
		}
		g.edges[from] = append(g.edges[from], to)
		g.children[to] = append(g.children[to], from)
	}

	for name, nd := range doc.Nodes {
		for _, dep := range nd.DependsOn {
			add(name, dep)
		}
		for _, ref := range refs[name] {
			root := rootOf(ref)
			if _, ok := doc.Nodes[root]; ok {
				add(name, root)
			}
		}
		if nd.Kind == document.KindJoin {
			sources, _ := nd.Config["sources"].([]any)
			for _, s := range sources {
				if src, ok := s.(string); ok {
					if _, ok := doc.Nodes[rootOf(src)]; ok {
						add(name, rootOf(src))
					}
				}
			}
		}
	}
	return g
}

// rootOf returns the leading identifier of a dotted/bracket-indexed
// reference token, e.g. "node1.body.id" -> "node1", "node1[0]" -> "node1".
func rootOf(tok string) string {
	for i, c := range tok {
		if c == '.' || c == '[' {
			return tok[:i]
		}
	}
	return tok
}

// topoWaves runs Kahn's algorithm over the combined graph, returning
// execution waves (groups of nodes whose dependencies are all already
// resolved, sorted by node name within a wave). Returns
// false if a cycle prevents full resolution.
func topoWaves(g *graph) ([][]string, bool) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = len(g.edges[n])
	}

	var waves [][]string
	remaining := len(g.nodes)
	for remaining > 0 {
		var wave []string
		for _, n := range g.nodes {
			if inDegree[n] == 0 {
				wave = append(wave, n)
			}
		}
		if len(wave) == 0 {
			return waves, false
		}
		sort.Strings(wave)
		for _, n := range wave {
			inDegree[n] = -1 // consumed
			remaining--
			for _, child := range g.children[n] {
				if inDegree[child] >= 0 {
					inDegree[child]--
				}
			}
		}
		waves = append(waves, wave)
	}
	return waves, true
}

// findSCCs reports every strongly-connected component of size > 1, plus
// any node with a self-edge, for the validator's cycle-detection pass
// (Tarjan's algorithm).
func findSCCs(g *graph) [][]string {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, ok := indices[w]; !ok {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sccs = append(sccs, scc)
			} else if len(scc) == 1 {
				// self-edge check
				for _, w := range g.edges[scc[0]] {
					if w == scc[0] {
						sccs = append(sccs, scc)
						break
					}
				}
			}
		}
	}

	for _, n := range g.nodes {
		if _, ok := indices[n]; !ok {
			strongconnect(n)
		}
	}
	return sccs
}
