package knowledge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// ToolExecutionError captures a single failed tool call. It never escapes the
// registry; its message becomes the call's result.
type ToolExecutionError struct {
	Name string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("Error calling %s: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// Request is one model-requested tool invocation.
type Request struct {
	Name string
	Args map[string]any
}

// Call is an executed request with its result.
type Call struct {
	Name   string
	Args   map[string]any
	Result string
}

// Registry maps tool identifiers to tools. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	tools map[ToolID]Tool
	order []ToolID
	log   zerolog.Logger
}

// RegistryOpts holds parameters for creating a Registry.
type RegistryOpts struct {
	Tools  []Tool
	Logger zerolog.Logger
}

// NewRegistry creates a Registry from a fixed tool list.
func NewRegistry(opts RegistryOpts) (*Registry, error) {
	if len(opts.Tools) == 0 {
		return nil, fmt.Errorf("knowledge: registry: at least one tool is required")
	}
	r := &Registry{
		tools: make(map[ToolID]Tool, len(opts.Tools)),
		log:   opts.Logger.With().Str("component", "knowledge").Logger(),
	}
	for _, t := range opts.Tools {
		if t == nil {
			return nil, fmt.Errorf("knowledge: registry: nil tool")
		}
		id := t.ID()
		if _, dup := r.tools[id]; dup {
			return nil, fmt.Errorf("knowledge: registry: duplicate tool %q", id)
		}
		r.tools[id] = t
		r.order = append(r.order, id)
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[ToolID(name)]
	return t, ok
}

// Specs lists the registered tools in registration order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, id := range r.order {
		specs = append(specs, Spec{
			Name:        string(id),
			Description: r.tools[id].Description(),
			Param:       ArgQuery,
		})
	}
	return specs
}

// InvokeRequestedTools runs each request in order. Unknown names are skipped.
// A failing or panicking tool yields an "Error calling ..." result and the
// batch continues.
func (r *Registry) InvokeRequestedTools(ctx context.Context, reqs []Request) []Call {
	calls := make([]Call, 0, len(reqs))
	for _, req := range reqs {
		tool, ok := r.Lookup(req.Name)
		if !ok {
			r.log.Debug().Str("tool", req.Name).Msg("skipping unknown tool")
			continue
		}
		result, err := r.run(ctx, tool, req)
		if err != nil {
			r.log.Warn().Err(err).Str("tool", req.Name).Msg("tool failed")
			result = err.Error()
		}
		calls = append(calls, Call{Name: req.Name, Args: req.Args, Result: result})
	}
	return calls
}

func (r *Registry) run(ctx context.Context, tool Tool, req Request) (result string, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		result, err = tool.Run(ctx, NormalizeArgs(req.Args))
	})
	if rec := pc.Recovered(); rec != nil {
		r.log.Error().Str("tool", req.Name).Str("stack", string(rec.Stack)).Msg("tool panicked")
		err = fmt.Errorf("panic: %v", rec.Value)
	}
	if err != nil {
		return "", &ToolExecutionError{Name: req.Name, Err: err}
	}
	return result, nil
}
