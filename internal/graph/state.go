package graph

import (
	"fmt"
	"time"

	"github.com/zulandar/gepeto/internal/knowledge"
)

// Role is the speaker of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the in-flight conversation.
type Message struct {
	Role    Role
	Content string
}

// Intent is the last routing decision.
type Intent string

const (
	IntentWikiSearch    Intent = "wiki_search"
	IntentFinalResponse Intent = "final_response"
)

// Location is a participant's in-world position.
type Location struct {
	X, Y, Z float64
}

func (l Location) String() string {
	return fmt.Sprintf("{x: %.1f, y: %.1f, z: %.1f}", l.X, l.Y, l.Z)
}

// TurnContext identifies who is speaking. It is fixed for the whole run.
type TurnContext struct {
	ParticipantID   string
	ParticipantName string
	Location        *Location // nil when the transport does not report one
	Dimension       string

	// StartedAt marks the turn start. History records created at or after
	// it belong to this turn and are already present in State.Messages.
	StartedAt time.Time
}

// State is the per-turn record threaded through every step. It is owned by
// a single turn and never shared.
type State struct {
	Query       string
	Messages    []Message
	Intent      Intent // empty until the supervisor has run
	ToolCalls   []knowledge.Call
	WikiContext *string
	Response    *string
}

// NewState builds the initial state for a query: the query itself plus a
// single user message.
func NewState(query string) State {
	return State{
		Query:    query,
		Messages: []Message{{Role: RoleUser, Content: query}},
	}
}

// Update is one step's contribution to State. Messages and ToolCalls are
// appended; Intent, WikiContext and Response overwrite when set.
type Update struct {
	Messages    []Message
	ToolCalls   []knowledge.Call
	Intent      Intent
	WikiContext *string
	Response    *string
}

// Apply merges u into s.
func (s *State) Apply(u Update) {
	s.Messages = append(s.Messages, u.Messages...)
	s.ToolCalls = append(s.ToolCalls, u.ToolCalls...)
	if u.Intent != "" {
		s.Intent = u.Intent
	}
	if u.WikiContext != nil {
		v := *u.WikiContext
		s.WikiContext = &v
	}
	if u.Response != nil {
		v := *u.Response
		s.Response = &v
	}
}

// ResponseText returns the final response, or "" when the terminal step has
// not run.
func (s *State) ResponseText() string {
	if s.Response == nil {
		return ""
	}
	return *s.Response
}
