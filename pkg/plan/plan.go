package plan

import (
	"fmt"
	"sort"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

// FanOutGroup is the sub-DAG between a split and its matching aggregate,
// instantiated once per surviving element of the split's source array at
// execution time (spec §4.5, §9 "implicit fan-out groups").
type FanOutGroup struct {
	Split     string   // the split node's name
	Aggregate string   // the matching aggregate node's name
	Members   []string // every node strictly between Split and Aggregate, in wave order
}

// Plan is the validated, scheduler-ready view of a Document: waves for
// dependency-ordered dispatch and the fan-out groups the executor must
// instantiate per element.
type Plan struct {
	Document *document.Document
	Waves    [][]string
	Groups   []*FanOutGroup
	// Deps is every node's full dependency set (depends_on, textual
	// template references and join sources), used by the executor's readiness check (spec
	// §4.6): a node becomes Ready only once every entry here is terminal.
	Deps map[string][]string
}

// NodeGroup returns the innermost fan-out group containing name, or nil if
// name is not part of any split/aggregate sub-DAG.
func (p *Plan) NodeGroup(name string) *FanOutGroup {
	var best *FanOutGroup
	for _, g := range p.Groups {
		for _, m := range g.Members {
			if m == name {
				if best == nil || len(g.Members) < len(best.Members) {
					best = g
				}
				break
			}
		}
	}
	return best
}

// detectFanOutGroups matches every split to its closing aggregate by
// propagating, in dependency-topological order, the stack of currently open
// split scopes each node sits inside. A node's stack is derived purely from
// its own depends_on predecessors' stacks (a split pushes itself, an
// aggregate pops the innermost one, everything else passes its stack
// through unchanged and — if non-empty — belongs to the member set of the
// split on top of it). Because the stack is per-node rather than a single
// global stack walked over a flattened wave order, two independent
// split/aggregate pipelines elsewhere in the document never share state:
// each is matched purely from its own subgraph's reachability. A second
// aggregate closing a split that another aggregate already closed is
// rejected explicitly via ErrSharedAggregate; two nested splits cannot close
// on one aggregate either, since the aggregate pops only the inner split and
// the outer one is then reported as a split without a matching aggregate.
func detectFanOutGroups(doc *document.Document) ([]*FanOutGroup, error) {
	order := declarationOrder(doc)

	stackAfter := make(map[string][]string, len(doc.Nodes))
	members := make(map[string][]string)
	closedBy := make(map[string]string) // split name -> the aggregate that closed it
	open := make(map[string]bool)

	for _, name := range order {
		nd := doc.Nodes[name]

		before, err := mergeOpenStacks(name, nd.DependsOn, stackAfter)
		if err != nil {
			return nil, err
		}

		switch nd.Kind {
		case document.KindSplit:
			open[name] = true
			next := make([]string, len(before)+1)
			copy(next, before)
			next[len(before)] = name
			stackAfter[name] = next

		case document.KindAggregate:
			if len(before) == 0 {
				return nil, &models.ValidationError{Node: name, Field: "kind", Message: "aggregate has no matching split"}
			}
			split := before[len(before)-1]
			if prev, dup := closedBy[split]; dup {
				return nil, &models.ValidationError{
					Node:    name,
					Field:   "kind",
					Message: fmt.Sprintf("split %q already closed by aggregate %q", split, prev),
					Err:     models.ErrSharedAggregate,
				}
			}
			open[split] = false
			closedBy[split] = name
			stackAfter[name] = before[:len(before)-1]

		default:
			stackAfter[name] = before
			if len(before) > 0 {
				top := before[len(before)-1]
				members[top] = append(members[top], name)
			}
		}
	}

	var unclosed []string
	for split, still := range open {
		if still {
			unclosed = append(unclosed, split)
		}
	}
	if len(unclosed) > 0 {
		sort.Strings(unclosed)
		return nil, &models.ValidationError{Field: "nodes", Message: fmt.Sprintf("split(s) without a matching aggregate: %v", unclosed)}
	}

	groups := make([]*FanOutGroup, 0, len(closedBy))
	for split, agg := range closedBy {
		groups = append(groups, &FanOutGroup{Split: split, Aggregate: agg, Members: members[split]})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Split < groups[j].Split })

	return groups, nil
}

// mergeOpenStacks computes a node's open-split stack from its dependencies'
// post-node stacks. A valid document's fan-out nesting is laminar (spec §9
// open question (b) already forbids two splits sharing one aggregate), so
// every dependency that has an opinion must agree on it; disagreement means
// name sits at an ill-defined fan-out depth (e.g. it depends on members of
// two unrelated split pipelines directly, with no join between them).
func mergeOpenStacks(name string, deps []string, stackAfter map[string][]string) ([]string, error) {
	var merged []string
	have := false
	for _, dep := range deps {
		s := stackAfter[dep]
		if !have {
			merged = s
			have = true
			continue
		}
		if !stackEqual(merged, s) {
			return nil, &models.ValidationError{
				Node:    name,
				Field:   "depends_on",
				Message: "node's dependencies disagree on enclosing fan-out scope",
			}
		}
	}
	return merged, nil
}

func stackEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// declarationOrder returns node names ordered by their position in the
// dependency graph (topological, deterministic), approximating the
// document's authored order for fan-out matching purposes: a split's
// members are whatever nodes transitively depend on it before the matching
// aggregate closes the group.
func declarationOrder(doc *document.Document) []string {
	var names []string
	for name := range doc.Nodes {
		names = append(names, name)
	}
	refs := map[string][]string{}
	for name, nd := range doc.Nodes {
		refs[name] = nil
		_ = nd
	}
	g := buildGraph(doc, refs)
	waves, ok := topoWaves(g)
	if !ok {
		return names
	}
	var order []string
	for _, w := range waves {
		order = append(order, w...)
	}
	return order
}
