package graph

import (
	"context"

	"github.com/zulandar/gepeto/internal/knowledge"
	"github.com/zulandar/gepeto/internal/models"
)

// Prompt is what every generation capability receives: a system block and
// the ordered conversation after it.
type Prompt struct {
	System   string
	Messages []Message
}

// Classifier picks exactly one of choices. Implementations return the raw
// choice; the graph validates it.
type Classifier interface {
	Classify(ctx context.Context, p Prompt, choices []string) (string, error)
}

// ToolTurn is the outcome of a tool-capable generation call.
type ToolTurn struct {
	Text     string
	Requests []knowledge.Request
}

// ToolCaller generates with the given tools available and reports the
// calls the model requested.
type ToolCaller interface {
	GenerateWithTools(ctx context.Context, p Prompt, tools []knowledge.Spec) (ToolTurn, error)
}

// Generator produces plain text with no tools.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Tools is the knowledge registry as seen by the wiki step.
type Tools interface {
	Specs() []knowledge.Spec
	InvokeRequestedTools(ctx context.Context, reqs []knowledge.Request) []knowledge.Call
}

// History is the conversation ledger as seen by the graph.
type History interface {
	PutMessage(ctx context.Context, writer, writerType, content, participantID string) error
	GetRecentMessages(ctx context.Context, participantID string, limit int) ([]models.ConversationTurn, error)
}
