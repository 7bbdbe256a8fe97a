// Package knowledge holds the fixed registry of lookup tools the wiki step may
// call, and the batch invoker that turns model-requested calls into results.
package knowledge

import (
	"context"
	"fmt"
)

// ToolID names a registered tool. The set is closed: requests for any other
// name are dropped at the registry boundary.
type ToolID string

const (
	WikiSearchTool   ToolID = "minecraft_internet_search"
	RecipeSearchTool ToolID = "minecraft_recipe_search"
)

// Canonical argument keys, in preference order.
const (
	ArgTerm  = "term"
	ArgQuery = "query"
)

// Tool is one named lookup capability.
type Tool interface {
	ID() ToolID
	Description() string
	Run(ctx context.Context, in Input) (string, error)
}

// Input is a normalized tool argument. Query holds the extracted scalar when
// one could be found; Args always carries the original mapping.
type Input struct {
	Query string
	Args  map[string]any
}

// HasQuery reports whether a scalar query was extracted.
func (in Input) HasQuery() bool {
	return in.Query != ""
}

// NormalizeArgs extracts a single query value from a model-supplied argument
// mapping. "term" wins over "query"; a mapping with exactly one entry yields
// that entry's value; anything else passes through with an empty Query.
func NormalizeArgs(args map[string]any) Input {
	in := Input{Args: args}
	if v, ok := args[ArgTerm]; ok {
		in.Query = scalar(v)
		return in
	}
	if v, ok := args[ArgQuery]; ok {
		in.Query = scalar(v)
		return in
	}
	if len(args) == 1 {
		for _, v := range args {
			in.Query = scalar(v)
		}
	}
	return in
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Spec describes a tool to the tool-capable generation step. Every tool takes
// a single string parameter named query.
type Spec struct {
	Name        string
	Description string
	Param       string
}
