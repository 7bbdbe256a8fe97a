package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/zulandar/gepeto/internal/models"
)

func (g *Graph) supervisor(ctx context.Context, tc TurnContext, st *State) (Update, Node, error) {
	p := g.buildPrompt(ctx, tc, st, g.prompts.Supervisor)

	decision, err := g.classifier.Classify(ctx, p, routeChoices)
	if err != nil {
		return Update{}, nodeEnd, &GenerationError{Step: NodeSupervisor, Err: err}
	}

	var intent Intent
	next := Node(decision)
	switch next {
	case NodeWikiAgent:
		intent = IntentWikiSearch
	case NodeFinalResponse:
		intent = IntentFinalResponse
	default:
		return Update{}, nodeEnd, &RoutingError{Decision: decision}
	}

	g.persist(ctx, tc, WriterSupervisor, "Routing to "+decision)
	return Update{
		Intent:   intent,
		Messages: []Message{{Role: RoleAssistant, Content: decision}},
	}, next, nil
}

func (g *Graph) wikiAgent(ctx context.Context, tc TurnContext, st *State) (Update, Node, error) {
	p := g.buildPrompt(ctx, tc, st, g.prompts.Wiki)

	turn, err := g.toolCaller.GenerateWithTools(ctx, p, g.tools.Specs())
	if err != nil {
		return Update{}, nodeEnd, &GenerationError{Step: NodeWikiAgent, Err: err}
	}

	calls := g.tools.InvokeRequestedTools(ctx, turn.Requests)
	results := make([]string, len(calls))
	for i, c := range calls {
		results[i] = c.Result
	}
	joined := strings.TrimSpace(strings.Join(results, "\n"))

	upd := Update{
		Intent:      IntentWikiSearch,
		ToolCalls:   calls,
		WikiContext: &joined,
	}
	if joined != "" {
		upd.Messages = []Message{{Role: RoleAssistant, Content: joined}}
		g.persist(ctx, tc, WriterWiki, joined)
	}
	return upd, NodeSupervisor, nil
}

func (g *Graph) finalResponse(ctx context.Context, tc TurnContext, st *State) (Update, Node, error) {
	p := g.buildPrompt(ctx, tc, st, g.prompts.Response)

	text, err := g.generator.Generate(ctx, p)
	if err != nil {
		return Update{}, nodeEnd, &GenerationError{Step: NodeFinalResponse, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Update{}, nodeEnd, &GenerationError{Step: NodeFinalResponse, Err: errors.New("empty response")}
	}

	g.persist(ctx, tc, WriterResponse, text)
	return Update{
		Response: &text,
		Messages: []Message{{Role: RoleAssistant, Content: text}},
	}, nodeEnd, nil
}

// persist appends an agent turn. Failures are logged and the turn continues.
func (g *Graph) persist(ctx context.Context, tc TurnContext, writer, content string) {
	if err := g.history.PutMessage(ctx, writer, models.WriterAI, content, tc.ParticipantID); err != nil {
		g.log.Warn().Err(err).
			Str("participant_id", tc.ParticipantID).
			Str("writer", writer).
			Msg("persist turn failed")
	}
}
