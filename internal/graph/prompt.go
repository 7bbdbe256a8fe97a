package graph

import (
	"context"
	"strings"

	"github.com/zulandar/gepeto/internal/models"
)

const (
	defaultParticipantName = "Unknown"
	defaultDimension       = "overworld"
)

// buildPrompt assembles the prompt shared by every step: a system block with
// the participant's context and the step instruction, then recent history,
// then the in-flight messages.
func (g *Graph) buildPrompt(ctx context.Context, tc TurnContext, st *State, instruction string) Prompt {
	return Prompt{
		System:   systemBlock(tc, instruction),
		Messages: append(g.historyMessages(ctx, tc), st.Messages...),
	}
}

func systemBlock(tc TurnContext, instruction string) string {
	name := tc.ParticipantName
	if name == "" {
		name = defaultParticipantName
	}
	dim := tc.Dimension
	if dim == "" {
		dim = defaultDimension
	}
	loc := "unknown"
	if tc.Location != nil {
		loc = tc.Location.String()
	}

	var sb strings.Builder
	sb.WriteString("Player Name: " + name + "\n")
	sb.WriteString("Location: " + loc + "\n")
	sb.WriteString("Dimension: " + dim + "\n")
	if instruction != "" {
		sb.WriteString("\nSystem Prompt:\n" + instruction + "\n")
	}
	sb.WriteString("\nConversation History:\n")
	return sb.String()
}

// historyMessages loads recent turns for the participant. A store failure
// yields no history rather than failing the step.
func (g *Graph) historyMessages(ctx context.Context, tc TurnContext) []Message {
	turns, err := g.history.GetRecentMessages(ctx, tc.ParticipantID, g.historyLimit)
	if err != nil {
		g.log.Warn().Err(err).Str("participant_id", tc.ParticipantID).Msg("load history failed")
		return nil
	}

	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		if !tc.StartedAt.IsZero() && !t.CreatedAt.Before(tc.StartedAt) {
			continue
		}
		role := RoleAssistant
		if t.WriterType == models.WriterHuman {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: t.Content})
	}
	return msgs
}
