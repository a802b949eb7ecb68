// Flow CLI - command-line entry point for the workflow engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/nelsonlove/seriesoftubes-sub001/internal/config"
	"github.com/nelsonlove/seriesoftubes-sub001/internal/infrastructure/logger"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/adapters"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/engine"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/plan"
)

const (
	version = "1.0.0"
	usage   = `Flow CLI - declarative workflow engine

USAGE:
    flow-cli <command> [options]

COMMANDS:
    run <document>        Execute a workflow document and print its execution record
    validate <document>   Validate a workflow document without executing it
    version                Show version information
    help                   Show this help message

RUN OPTIONS:
    -inputs k=v            Set an input value (repeatable); value is parsed as JSON
                            when possible, otherwise treated as a raw string
    -parallelism N          Max concurrent node dispatch within a wave (default: 8)
    -timeout DURATION       Execution deadline, e.g. 30s, 5m (default: none)

    The execution record prints pretty-indented JSON when stdout is a
    terminal and compact single-line JSON when it's piped or redirected.

VALIDATE OPTIONS:
    -format <format>        Error output format: text (default), json

EXIT CODES:
    0    completed
    2    partial
    3    failed
    64   validation error
    130  cancelled

EXAMPLES:
    flow-cli validate ./workflows/classify.yaml
    flow-cli run ./workflows/classify.yaml -inputs 'company={"rev":2000000}' -inputs threshold=1e6
    flow-cli run ./workflows/classify.yaml -parallelism 4 -timeout 2m

ENVIRONMENT VARIABLES:
    FLOW_LOG_LEVEL          Logging level: debug, info, warn, error (default: info)
    FLOW_LOG_FORMAT         Logging format: json, text (default: json)
    FLOW_MAX_PARALLELISM    Default -parallelism when not passed on the command line
    FLOW_TIMEOUT            Default -timeout when not passed on the command line
`
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	godotenv.Load()

	command := os.Args[1]
	switch command {
	case "run":
		os.Exit(handleRun(os.Args[2:]))
	case "validate":
		os.Exit(handleValidate(os.Args[2:]))
	case "version":
		fmt.Printf("flow-cli v%s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// inputFlags collects repeated -inputs k=v flags into a map.
type inputFlags map[string]any

func (f inputFlags) String() string { return "" }

func (f inputFlags) Set(raw string) error {
	k, v, ok := strings.Cut(raw, "=")
	if !ok {
		return fmt.Errorf("expected k=v, got %q", raw)
	}
	f[k] = parseInputValue(v)
	return nil
}

// parseInputValue tries to interpret v as a JSON value (number, boolean,
// object, array, quoted string); a value that doesn't parse as JSON is kept
// as the raw string, so "company" and "42" and "[1,2,3]" all work from the
// shell without the caller needing to quote JSON.
func parseInputValue(v string) any {
	var parsed any
	if err := json.Unmarshal([]byte(v), &parsed); err == nil {
		return parsed
	}
	return v
}

func handleRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	inputs := inputFlags{}
	fs.Var(inputs, "inputs", "input value as k=v (repeatable)")
	parallelism := fs.Int("parallelism", 0, "max concurrent node dispatch within a wave")
	timeoutFlag := fs.Duration("timeout", 0, "execution deadline")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: run requires a document path")
		return 1
	}
	path := fs.Arg(0)
	// flag parsing stops at the document path; parse the options after it.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log := logger.New(cfg.Logging)

	_, p, verr := loadAndValidate(path)
	if verr != nil {
		printValidationFailure(verr, "text")
		return 64
	}

	opts := &engine.Options{MaxParallelism: cfg.Engine.MaxParallelism, Timeout: cfg.Engine.Timeout, Logger: log}
	if *parallelism > 0 {
		opts.MaxParallelism = *parallelism
	}
	if *timeoutFlag > 0 {
		opts.Timeout = *timeoutFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var cancelled atomic.Bool
	go func() {
		if _, ok := <-sigCh; ok {
			cancelled.Store(true)
			log.Warn("cancellation requested, draining running nodes")
			cancel()
		}
	}()
	defer signal.Stop(sigCh)

	set := &adapters.Set{
		HTTP:   adapters.NewDefaultHTTP(30 * time.Second),
		FS:     adapters.NewDefaultFilesystem(),
		LLM:    adapters.UnconfiguredLLM{},
		Script: adapters.UnconfiguredScript{},
	}
	eng := engine.New(set)

	rec, err := eng.Run(ctx, p, inputs, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out, mErr := encodeRecord(rec)
	if mErr != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode execution record: %v\n", mErr)
		return 1
	}
	fmt.Println(string(out))

	if cancelled.Load() {
		return 130
	}
	return rec.ExitCode()
}

func handleValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	format := fs.String("format", "text", "error output format: text, json")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if *format != "text" && *format != "json" {
		fmt.Fprintf(os.Stderr, "Error: invalid -format %q (must be text or json)\n", *format)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: validate requires a document path")
		return 1
	}

	doc, _, verr := loadAndValidate(fs.Arg(0))
	if verr != nil {
		printValidationFailure(verr, *format)
		return 64
	}
	if *format == "json" {
		out, _ := json.Marshal(map[string]any{
			"valid": true, "name": doc.Name,
			"nodes": len(doc.Nodes), "inputs": len(doc.Inputs), "outputs": len(doc.Outputs),
		})
		fmt.Println(string(out))
		return 0
	}
	fmt.Printf("%s: valid (%d node(s), %d input(s), %d output(s))\n", doc.Name, len(doc.Nodes), len(doc.Inputs), len(doc.Outputs))
	return 0
}

// encodeRecord renders rec as pretty-indented JSON for an interactive
// terminal and compact single-line JSON for a pipe/redirect, the way a
// human-facing CLI and a scripted caller each want it (SPEC_FULL.md §3).
func encodeRecord(rec *models.ExecutionRecord) ([]byte, error) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return json.MarshalIndent(rec, "", "  ")
	}
	return json.Marshal(rec)
}

// loadAndValidate reads, parses and validates the document at path,
// returning either the Document+Plan or a failure already formatted for
// display (a file read error, a *models.ParseError or a
// models.ValidationErrors).
func loadAndValidate(path string) (*document.Document, *plan.Plan, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := document.Parse(text)
	if err != nil {
		return nil, nil, err
	}
	p, err := plan.Validate(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, p, nil
}

func printValidationFailure(err error, format string) {
	errs, ok := err.(models.ValidationErrors)
	if !ok {
		if format == "json" {
			out, _ := json.Marshal(map[string]any{"valid": false, "error": err.Error()})
			fmt.Fprintln(os.Stderr, string(out))
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	if format == "json" {
		type jsonErr struct {
			Node    string `json:"node,omitempty"`
			Field   string `json:"field,omitempty"`
			Message string `json:"message"`
		}
		out := make([]jsonErr, len(errs))
		for i, e := range errs {
			out[i] = jsonErr{Node: e.Node, Field: e.Field, Message: e.Message}
		}
		enc, _ := json.Marshal(map[string]any{"valid": false, "errors": out})
		fmt.Fprintln(os.Stderr, string(enc))
		return
	}

	fmt.Fprintf(os.Stderr, "%d validation error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  - %s\n", e.Error())
	}
}
