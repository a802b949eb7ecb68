package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/adapters"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/environment"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor/handlers"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/plan"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/template"
)

// Engine runs a validated Plan to completion. It owns nothing per-execution;
// Run builds a fresh Environment and node-status table for every call, so a
// single Engine is safe to reuse (and to share) across concurrent runs.
type Engine struct {
	Registry *executor.Registry
	Adapters *adapters.Set
}

// New builds an Engine with every built-in handler registered. adapters may
// be nil, in which case handlers that need one (http, file, llm, script)
// fail with a clear "not configured" error rather than panicking.
func New(set *adapters.Set) *Engine {
	reg := executor.NewRegistry()
	handlers.RegisterAll(reg)
	return &Engine{Registry: reg, Adapters: set}
}

// run is the mutable state of a single execution, separated from Engine so
// Engine itself stays reusable and stateless between calls.
type run struct {
	plan    *plan.Plan
	doc     *document.Document
	env     *environment.Environment
	tmpl    *template.Engine
	reg     *executor.Registry
	ada     *adapters.Set
	sem     chan struct{}
	record  *models.ExecutionRecord
	log     Logger
	mu      sync.Mutex // guards record.Progress/Errors and skipped/chosen
	skipped map[string]string

	// groupBySplit maps a split node's name to its fan-out group, so
	// dispatch can recognize it and hand the whole group to runGroup.
	groupBySplit map[string]*plan.FanOutGroup
	// ownedByGroup marks every node (member or aggregate, never the split
	// itself) that runGroup executes internally, so dispatch skips them on
	// their own wave turn instead of running them a second time.
	ownedByGroup map[string]bool
}

// Run executes p to completion (or until ctx is cancelled / opts.Timeout
// elapses), resolving inputs against p.Document.Inputs first. A missing
// required input is returned as an error before any node runs; otherwise it
// always returns a populated ExecutionRecord, even when the run ends in
// failure or cancellation, since the record itself is the audit trail.
func (e *Engine) Run(ctx context.Context, p *plan.Plan, rawInputs map[string]any, opts *Options) (*models.ExecutionRecord, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	inputs, err := resolveInputs(p.Document, rawInputs)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rec := &models.ExecutionRecord{
		ID:           uuid.NewString(),
		WorkflowName: p.Document.Name,
		Status:       models.ExecutionRunning,
		StartedAt:    started,
		Inputs:       inputs,
		Outputs:      map[string]any{},
		Progress:     map[string]*models.NodeProgress{},
	}
	for name := range p.Document.Nodes {
		rec.Progress[name] = &models.NodeProgress{Status: models.NodePending}
	}

	groupBySplit := make(map[string]*plan.FanOutGroup, len(p.Groups))
	ownedByGroup := map[string]bool{}
	for _, g := range p.Groups {
		groupBySplit[g.Split] = g
		ownedByGroup[g.Aggregate] = true
		for _, m := range g.Members {
			ownedByGroup[m] = true
		}
	}

	r := &run{
		plan:         p,
		doc:          p.Document,
		env:          environment.New(inputs),
		tmpl:         template.New(),
		reg:          e.Registry,
		ada:          e.Adapters,
		sem:          make(chan struct{}, opts.maxParallelism()),
		record:       rec,
		log:          opts.logger(),
		skipped:      map[string]string{},
		groupBySplit: groupBySplit,
		ownedByGroup: ownedByGroup,
	}
	r.log = r.log.Execution(rec.ID, rec.WorkflowName)
	r.log.Info("execution started", "node_count", len(p.Document.Nodes))
	r.dispatch(ctx)

	r.finalize()
	completed := time.Now()
	rec.CompletedAt = &completed
	r.log.Info("execution finished", "status", rec.Status, "duration", completed.Sub(started))
	return rec, nil
}

// dispatch walks the plan's waves in order. Within a wave, independent nodes
// run concurrently behind r.sem; the wave boundary is the synchronization
// point a Route node's reachability pruning and a Failed node's skip
// propagation both rely on (every node in wave N-1 is terminal before wave N
// starts), mirroring the teacher's wave-based DAGExecutor.executeWave.
func (r *run) dispatch(ctx context.Context) {
	handledGroups := map[string]bool{} // group key: Split name, once executed

	for _, wave := range r.plan.Waves {
		if ctx.Err() != nil {
			r.skipRemaining("cancelled")
			return
		}

		var wg sync.WaitGroup
		for _, name := range wave {
			name := name
			if r.alreadyTerminal(name) {
				continue
			}

			if g, isSplit := r.groupBySplit[name]; isSplit {
				if handledGroups[g.Split] {
					continue
				}
				handledGroups[g.Split] = true
				if reason, skip := r.skipReason(name); skip {
					r.publishSkip(name, reason)
					for _, m := range g.Members {
						r.publishSkip(m, reason)
					}
					r.publishSkip(g.Aggregate, reason)
					continue
				}
				wg.Add(1)
				r.sem <- struct{}{}
				go func() {
					defer wg.Done()
					defer func() { <-r.sem }()
					r.runGroup(ctx, g)
				}()
				continue
			}
			if r.ownedByGroup[name] {
				// members and the aggregate run entirely inside runGroup,
				// scheduled off the split's own wave position.
				continue
			}

			if reason, skip := r.skipReason(name); skip {
				r.publishSkip(name, reason)
				continue
			}

			wg.Add(1)
			r.sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-r.sem }()
				r.runNode(ctx, name, nil)
			}()
		}
		wg.Wait()
	}
}

// skipReason reports whether name must be Skipped rather than dispatched:
// either an upstream dependency already resolved to something other than
// Success and name doesn't tolerate that (skip_errors=false), or a Route
// upstream pruned name as an unreached branch.
func (r *run) skipReason(name string) (string, bool) {
	r.mu.Lock()
	reason, explicit := r.skipped[name]
	r.mu.Unlock()
	if explicit {
		return reason, true
	}

	nd := r.doc.Nodes[name]
	for _, dep := range r.plan.Deps[name] {
		out, ok := r.env.Output(dep)
		if !ok || out.Status == models.NodeSuccess {
			continue
		}
		if nd.SkipErrors {
			continue
		}
		return "upstream failure", true
	}
	return "", false
}

func (r *run) alreadyTerminal(name string) bool {
	_, ok := r.env.Output(name)
	return ok
}

// runNode executes one ordinary (non-fan-out) node and publishes its
// terminal Output, recording progress under the single-writer-per-key
// discipline Environment.Publish requires. Every current caller passes nil
// loopVars; fan-out members run through runInstance instead.
func (r *run) runNode(ctx context.Context, name string, loopVars map[string]any) environment.Output {
	nd := r.doc.Nodes[name]
	nlog := r.log.Node(name, string(nd.Kind))
	now := time.Now()
	r.setProgress(name, models.NodeRunning, &now, nil, "")
	nlog.Debug("node started")

	scope, err := r.widenContext(nd, r.env.Scope(loopVars))
	if err != nil {
		return r.fail(name, err)
	}
	cfg, err := r.tmpl.ExpandConfig(nd.Config, scope)
	if err != nil {
		return r.fail(name, err)
	}

	handler, err := r.reg.Get(nd.Kind)
	if err != nil {
		return r.fail(name, err)
	}

	req := &executor.Request{
		NodeName: name,
		Node:     nd,
		Config:   cfg,
		Raw:      nd.Config,
		Scope:    scope,
		Engine:   r.tmpl,
		Adapters: r.ada,
	}
	if nd.Kind == document.KindJoin {
		req.Elements = r.joinElements(nd, scope)
	}

	val, err := handler.Execute(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", models.ErrExecutionCancelled, err)
		}
		return r.fail(name, &models.HandlerError{NodeKind: string(nd.Kind), Err: err})
	}

	out := environment.Output{Status: models.NodeSuccess, Value: val, Inputs: cfg, Timestamp: time.Now()}
	r.env.Publish(name, &out)
	completed := time.Now()
	r.setProgress(name, models.NodeSuccess, nil, &completed, "")
	nlog.Debug("node completed", "duration", completed.Sub(now))

	if nd.Kind == document.KindRoute {
		r.pruneRoutes(name, val)
	}
	return out
}

// joinElements builds one ElementView per config.sources entry for a join
// node (spec §4.5 join): each source is a node-name reference that is
// already terminal (the planner adds every source as a dependency), resolved
// against scope so a dotted path like "nodeA.field" works as well as a
// bare node name.
func (r *run) joinElements(nd *document.NodeDecl, scope map[string]any) []executor.ElementView {
	raw, _ := nd.Config["sources"].([]any)
	elements := make([]executor.ElementView, 0, len(raw))
	for _, s := range raw {
		name, ok := s.(string)
		if !ok {
			continue
		}
		val, err := r.tmpl.EvalExpr(name, scope)
		if err != nil {
			continue
		}
		elements = append(elements, executor.ElementView{Name: rootIdent(name), Value: val, Scope: scope})
	}
	return elements
}

// widenContext evaluates a node's optional config.context mapping (spec
// §4.4 llm: "a mapping of local names to source references used only to
// widen the environment view for this node's template expansion") against
// base and returns an overlay scope with those names bound on top of it.
// A node with no context config gets base back unchanged, so this is a
// no-op for every kind that doesn't declare one.
func (r *run) widenContext(nd *document.NodeDecl, base template.Scope) (template.Scope, error) {
	raw, ok := nd.Config["context"].(map[string]any)
	if !ok || len(raw) == 0 {
		return base, nil
	}

	widened := make(template.Scope, len(base)+len(raw))
	for k, v := range base {
		widened[k] = v
	}
	for local, ref := range raw {
		refStr, ok := ref.(string)
		if !ok {
			return nil, fmt.Errorf("context %q: source reference must be a string", local)
		}
		val, err := r.tmpl.EvalExpr(refStr, base)
		if err != nil {
			return nil, fmt.Errorf("context %q: %w", local, err)
		}
		widened[local] = val
	}
	return widened, nil
}

func (r *run) fail(name string, err error) environment.Output {
	out := environment.Output{Status: models.NodeFailed, Err: err, Timestamp: time.Now()}
	r.env.Publish(name, &out)
	completed := time.Now()
	r.setProgress(name, models.NodeFailed, nil, &completed, err.Error())
	r.log.Node(name, string(r.doc.Nodes[name].Kind)).Warn("node failed", "error", err.Error())
	return out
}

func (r *run) publishSkip(name, reason string) {
	out := environment.Output{Status: models.NodeSkipped, SkipReason: reason, Timestamp: time.Now()}
	r.env.Publish(name, &out)
	now := time.Now()
	r.setProgress(name, models.NodeSkipped, &now, &now, "")
	r.log.Node(name, string(r.doc.Nodes[name].Kind)).Debug("node skipped", "reason", reason)
}

func (r *run) setProgress(name string, status models.NodeStatus, started, completed *time.Time, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.record.Progress[name]
	p.Status = status
	if started != nil {
		p.StartedAt = started
	}
	if completed != nil {
		p.CompletedAt = completed
	}
	if errMsg != "" {
		p.Error = errMsg
	}
}

// pruneRoutes marks every node reachable only from a route's non-chosen
// branches (and not also reachable from the chosen branch) Skipped{"not
// taken"} (spec §4.5 route/conditional). The chosen branch is read back out
// of the node's own Success value, the shape handlers.Route.Execute returns.
func (r *run) pruneRoutes(routeName string, val any) {
	chosen, ok := handlers.ChosenTarget(val)
	if !ok {
		return
	}
	nd := r.doc.Nodes[routeName]
	raw, _ := nd.Config["routes"].([]any)

	chosenReach := r.reachableFrom(chosen)
	for _, entry := range raw {
		rm, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		target := ""
		if s, ok := rm["to"].(string); ok {
			target = s
		} else if s, ok := rm["then"].(string); ok {
			target = s
		}
		if target == "" || target == chosen {
			continue
		}
		for _, n := range r.reachableFrom(target) {
			if chosenReach[n] {
				continue
			}
			r.mu.Lock()
			if _, already := r.skipped[n]; !already {
				r.skipped[n] = "not taken"
			}
			r.mu.Unlock()
		}
	}
}

// reachableFrom returns every node reachable from start by following
// forward (dependent) edges, start included, using the document's
// declared depends_on graph.
func (r *run) reachableFrom(start string) map[string]bool {
	children := make(map[string][]string, len(r.doc.Nodes))
	for name, nd := range r.doc.Nodes {
		for _, dep := range nd.DependsOn {
			children[dep] = append(children[dep], name)
		}
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range children[n] {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return seen
}

// skipRemaining marks every node that hasn't reached a terminal state
// Skipped{reason}, used when the context is cancelled mid-execution (spec
// §5 cancellation).
func (r *run) skipRemaining(reason string) {
	for name := range r.doc.Nodes {
		if r.alreadyTerminal(name) {
			continue
		}
		// fan-out members record their terminal status in Progress only
		// (runGroup), never in the Environment.
		r.mu.Lock()
		done := r.record.Progress[name].Status.IsTerminal()
		r.mu.Unlock()
		if done {
			continue
		}
		r.publishSkip(name, reason)
	}
}

// finalize sweeps any node that never reached a terminal state (e.g. one
// whose dependency graph position was never visited because an earlier
// sibling wave never produced what it needed) into Skipped{"unreached"},
// assembles declared Outputs from the final Environment, and computes the
// overall ExecutionStatus.
func (r *run) finalize() {
	r.skipRemaining("unreached")

	outs := r.env.AllOutputs()
	for name, status := range outs {
		if status.Status == models.NodeFailed {
			r.mu.Lock()
			if r.record.Errors == nil {
				r.record.Errors = map[string]*models.NodeErrorRecord{}
			}
			msg := ""
			if status.Err != nil {
				msg = status.Err.Error()
			}
			r.record.Errors[name] = &models.NodeErrorRecord{
				Error:          msg,
				InputsSnapshot: status.Inputs,
				Timestamp:      status.Timestamp,
			}
			r.mu.Unlock()
		}
	}

	anySuccess, anyUnresolved := false, false
	names := make([]string, 0, len(r.doc.Outputs))
	for name := range r.doc.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		expr := r.doc.Outputs[name]
		root := rootIdent(expr)
		out, ok := outs[root]
		if !ok || out.Status != models.NodeSuccess {
			anyUnresolved = true
			continue
		}
		val, err := r.evalOutputExpr(expr)
		if err != nil {
			anyUnresolved = true
			continue
		}
		r.record.Outputs[name] = val
		anySuccess = true
	}

	switch {
	case len(names) == 0:
		r.record.Status = models.ExecutionCompleted
	case anySuccess && !anyUnresolved:
		r.record.Status = models.ExecutionCompleted
	case anySuccess && anyUnresolved:
		r.record.Status = models.ExecutionPartial
	default:
		r.record.Status = models.ExecutionFailed
	}
}

// evalOutputExpr renders a declared output's source expression (a bare node
// name, or a dotted reference into one) against the final environment scope.
func (r *run) evalOutputExpr(expr string) (any, error) {
	return r.tmpl.EvalExpr(expr, r.env.Scope(nil))
}

func rootIdent(tok string) string {
	for i, c := range tok {
		if c == '.' || c == '[' {
			return tok[:i]
		}
	}
	return tok
}
