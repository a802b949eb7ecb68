// Package engine implements the executor state machine and dispatch loop
// (spec §4.6): Pending->Ready->Running->{Success|Failed|Skipped} per node,
// a bounded worker pool processing dependency-ordered waves, fan-out group
// instancing, route-driven reachability pruning, and the failure/skip_errors
// policy that determines the final ExecutionRecord status. Grounded in the
// teacher's pkg/engine wave-based DAGExecutor (parallel dispatch per wave
// behind a semaphore, notifier events) but rebuilt around plan.Plan and
// environment.Environment instead of the teacher's Node/Edge workflow model.
package engine

import "time"

// Logger is the structured-logging surface the engine logs node-lifecycle
// transitions through (SPEC_FULL.md §2 "the executor and CLI log through
// it rather than fmt.Println"). It's satisfied structurally by
// *internal/infrastructure/logger.Logger without pkg/engine importing that
// package, which would otherwise cycle back through internal/config (which
// imports pkg/engine for DefaultMaxParallelism).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// Execution returns a logger scoped to one workflow run, and Node
	// narrows that further to one node within it, so every line the
	// dispatch loop emits after scoping carries execution_id/workflow
	// and node/kind without repeating them at each call site.
	Execution(id, workflow string) Logger
	Node(name, kind string) Logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})           {}
func (noopLogger) Info(string, ...interface{})            {}
func (noopLogger) Warn(string, ...interface{})            {}
func (noopLogger) Error(string, ...interface{})           {}
func (n noopLogger) Execution(string, string) Logger      { return n }
func (n noopLogger) Node(string, string) Logger           { return n }

// Options configures a single execution.
type Options struct {
	// MaxParallelism bounds concurrent node dispatch within a wave (spec
	// §4.6 "bounded worker pool (size max_parallelism, default e.g. 8)").
	MaxParallelism int

	// Timeout is the maximum duration for the entire execution (spec §5
	// cancellation trigger: "per-execution deadline").
	Timeout time.Duration

	// Logger receives node-lifecycle log lines. Defaults to a no-op when nil.
	Logger Logger
}

func (o *Options) logger() Logger {
	if o == nil || o.Logger == nil {
		return noopLogger{}
	}
	return o.Logger
}

// DefaultMaxParallelism is the worker pool size used when Options doesn't
// specify one, per spec §4.6.
const DefaultMaxParallelism = 8

func (o *Options) maxParallelism() int {
	if o == nil || o.MaxParallelism <= 0 {
		return DefaultMaxParallelism
	}
	return o.MaxParallelism
}
