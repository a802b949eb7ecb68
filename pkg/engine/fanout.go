package engine

import (
	"context"
	"sync"
	"time"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/environment"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor/handlers"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/plan"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/template"
)

// elementResult is one fan-out instance's outcome: either it survived (val,
// scope populated) or a filter member excluded it, or a member errored.
type elementResult struct {
	index    int
	survived bool
	value    any
	scope    template.Scope
}

// runGroup executes one split/...members.../aggregate fan-out group (spec
// §4.5, §9): the split runs once against the shared environment, its array
// elements are instantiated as independent overlay scopes running the
// group's members as a single linear chain in plan order (branches inside
// a group are not run as separate sub-DAGs), and the aggregate collects survivors in original index
// order regardless of which instance finished first.
func (r *run) runGroup(ctx context.Context, g *plan.FanOutGroup) {
	r.log.Node(g.Split, string(document.KindSplit)).Debug("fan-out group starting", "members", len(g.Members))
	splitOut := r.runNode(ctx, g.Split, nil)
	if splitOut.Status != models.NodeSuccess {
		for _, m := range g.Members {
			r.publishSkip(m, "upstream failure")
		}
		r.publishSkip(g.Aggregate, "upstream failure")
		return
	}

	arr, _ := splitOut.Value.([]any)
	itemName := handlers.ItemName(r.doc.Nodes[g.Split].Config)

	results := make([]elementResult, len(arr))
	var wg sync.WaitGroup
	memberErr := make(map[string]error)
	var memberErrMu sync.Mutex

	for i, item := range arr {
		i, item := i, item
		wg.Add(1)
		r.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-r.sem }()
			loopVars := map[string]any{
				itemName: item,
				"item":   item,
				"loop":   map[string]any{"index": i},
			}
			results[i] = r.runInstance(ctx, g, loopVars, i, &memberErrMu, memberErr)
		}()
	}
	wg.Wait()

	var elements []executor.ElementView
	for _, res := range results {
		if res.survived {
			elements = append(elements, executor.ElementView{Value: res.value, Scope: res.scope})
		}
	}

	for name, err := range memberErr {
		completed := time.Now()
		r.setProgress(name, models.NodeFailed, nil, &completed, err.Error())
	}
	for _, m := range g.Members {
		if _, failed := memberErr[m]; !failed {
			completed := time.Now()
			r.setProgress(m, models.NodeSuccess, nil, &completed, "")
		}
	}

	aggNd := r.doc.Nodes[g.Aggregate]
	aggScope := r.env.Scope(nil)
	aggCfg, err := r.tmpl.ExpandConfig(aggNd.Config, aggScope)
	if err != nil {
		r.fail(g.Aggregate, err)
		return
	}
	handler, err := r.reg.Get(aggNd.Kind)
	if err != nil {
		r.fail(g.Aggregate, err)
		return
	}
	val, err := handler.Execute(ctx, &executor.Request{
		NodeName: g.Aggregate,
		Node:     aggNd,
		Config:   aggCfg,
		Raw:      aggNd.Config,
		Scope:    aggScope,
		Engine:   r.tmpl,
		Adapters: r.ada,
		Elements: elements,
	})
	if err != nil {
		r.fail(g.Aggregate, &models.HandlerError{NodeKind: string(aggNd.Kind), Err: err})
		return
	}
	out := &environment.Output{Status: models.NodeSuccess, Value: val, Timestamp: time.Now()}
	r.env.Publish(g.Aggregate, out)
	completed := time.Now()
	r.setProgress(g.Aggregate, models.NodeSuccess, nil, &completed, "")
	r.log.Node(g.Aggregate, string(aggNd.Kind)).Debug("fan-out group finished", "surviving", len(elements), "total", len(arr))
}

// runInstance runs the group's member chain for one split element against
// an overlay scope: loopVars plus this instance's own member outputs,
// neither of which ever reach the shared Environment (the same member name
// executes once per element and cannot be stored under one global key). A
// Filter member returning false excludes the element from the aggregate
// without recording an error.
func (r *run) runInstance(ctx context.Context, g *plan.FanOutGroup, loopVars map[string]any, index int, mu *sync.Mutex, memberErr map[string]error) elementResult {
	scope := r.env.Scope(loopVars)
	var last any = loopVars["item"]

	for _, name := range g.Members {
		nd := r.doc.Nodes[name]
		memberScope, err := r.widenContext(nd, scope)
		if err != nil {
			mu.Lock()
			if _, ok := memberErr[name]; !ok {
				memberErr[name] = err
			}
			mu.Unlock()
			return elementResult{index: index, survived: false}
		}
		cfg, err := r.tmpl.ExpandConfig(nd.Config, memberScope)
		if err != nil {
			mu.Lock()
			if _, ok := memberErr[name]; !ok {
				memberErr[name] = err
			}
			mu.Unlock()
			return elementResult{index: index, survived: false}
		}
		handler, err := r.reg.Get(nd.Kind)
		if err != nil {
			mu.Lock()
			if _, ok := memberErr[name]; !ok {
				memberErr[name] = err
			}
			mu.Unlock()
			return elementResult{index: index, survived: false}
		}

		req := &executor.Request{
			NodeName: name,
			Node:     nd,
			Config:   cfg,
			Raw:      nd.Config,
			Scope:    memberScope,
			Engine:   r.tmpl,
			Adapters: r.ada,
		}
		val, err := handler.Execute(ctx, req)
		if err != nil {
			mu.Lock()
			if _, ok := memberErr[name]; !ok {
				memberErr[name] = &models.HandlerError{NodeKind: string(nd.Kind), Err: err}
			}
			mu.Unlock()
			return elementResult{index: index, survived: false}
		}

		if nd.Kind == document.KindFilter {
			keep, _ := val.(bool)
			if !keep {
				r.log.Node(name, string(nd.Kind)).Debug("fan-out element filtered out", "index", index)
				return elementResult{index: index, survived: false}
			}
			continue
		}

		last = val
		scope[name] = val
	}

	return elementResult{index: index, survived: true, value: last, scope: scope}
}
