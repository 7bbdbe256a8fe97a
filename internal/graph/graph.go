// Package graph runs the per-turn routing state machine: a supervisor that
// decides whether wiki enrichment is needed, an optional wiki step that
// calls knowledge tools and loops back, and a terminal response step.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/gepeto/internal/prompt"
)

// Node names a step of the graph.
type Node string

const (
	NodeSupervisor    Node = "supervisor"
	NodeWikiAgent     Node = "wiki_agent"
	NodeFinalResponse Node = "final_response"

	nodeEnd Node = ""
)

// Writers recorded in the conversation ledger for agent-authored turns.
const (
	WriterSupervisor = "supervisor_agent"
	WriterWiki       = "wiki_agent"
	WriterResponse   = "response_agent"
)

// Defaults applied by New.
const (
	DefaultMaxSteps     = 6
	DefaultHistoryLimit = 6
)

// routeChoices is the classifier's closed output set.
var routeChoices = []string{string(NodeWikiAgent), string(NodeFinalResponse)}

// Graph executes turns. It holds no per-turn state and is safe for
// concurrent use.
type Graph struct {
	classifier   Classifier
	toolCaller   ToolCaller
	generator    Generator
	tools        Tools
	history      History
	prompts      prompt.Set
	historyLimit int
	log          zerolog.Logger
}

// Opts holds parameters for creating a Graph.
type Opts struct {
	Classifier   Classifier
	ToolCaller   ToolCaller
	Generator    Generator
	Tools        Tools
	History      History
	Prompts      prompt.Set
	// HistoryLimit is the number of recent turns fed into each prompt.
	// Zero feeds none; a negative value selects DefaultHistoryLimit.
	HistoryLimit int
	Logger       zerolog.Logger
}

// New creates a Graph.
func New(opts Opts) (*Graph, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("graph: classifier is required")
	}
	if opts.ToolCaller == nil {
		return nil, fmt.Errorf("graph: tool caller is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("graph: generator is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("graph: tools are required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("graph: history is required")
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	prompts := opts.Prompts
	if prompts == (prompt.Set{}) {
		prompts = prompt.Default()
	}
	return &Graph{
		classifier:   opts.Classifier,
		toolCaller:   opts.ToolCaller,
		generator:    opts.Generator,
		tools:        opts.Tools,
		history:      opts.History,
		prompts:      prompts,
		historyLimit: opts.HistoryLimit,
		log:          opts.Logger.With().Str("component", "graph").Logger(),
	}, nil
}

// Result is the outcome of a run. It is populated even when Run fails.
type Result struct {
	State State
	Path  []Node
}

// Steps is the number of nodes executed.
func (r Result) Steps() int {
	return len(r.Path)
}

// Run executes the graph from the supervisor until the terminal step
// completes. A run that would execute more than maxSteps nodes stops with
// ErrStepLimit; maxSteps <= 0 means DefaultMaxSteps. Steps run strictly in
// sequence and ctx is checked before each one.
func (g *Graph) Run(ctx context.Context, tc TurnContext, st State, maxSteps int) (Result, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	res := Result{State: st}
	log := g.log.With().Str("participant_id", tc.ParticipantID).Logger()

	for node := NodeSupervisor; node != nodeEnd; {
		if res.Steps() >= maxSteps {
			return res, fmt.Errorf("%w after %d steps", ErrStepLimit, res.Steps())
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("graph: before %s: %w", node, err)
		}

		start := time.Now()
		upd, next, err := g.step(ctx, node, tc, &res.State)
		res.Path = append(res.Path, node)
		if err != nil {
			return res, err
		}
		res.State.Apply(upd)

		log.Debug().
			Str("step", string(node)).
			Str("next", string(next)).
			Dur("elapsed", time.Since(start)).
			Msg("step complete")
		node = next
	}
	return res, nil
}

func (g *Graph) step(ctx context.Context, node Node, tc TurnContext, st *State) (Update, Node, error) {
	switch node {
	case NodeSupervisor:
		return g.supervisor(ctx, tc, st)
	case NodeWikiAgent:
		return g.wikiAgent(ctx, tc, st)
	case NodeFinalResponse:
		return g.finalResponse(ctx, tc, st)
	default:
		return Update{}, nodeEnd, fmt.Errorf("graph: unknown node %q", node)
	}
}
