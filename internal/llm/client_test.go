package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/gepeto/internal/graph"
	"github.com/zulandar/gepeto/internal/knowledge"
	"google.golang.org/genai"
)

// fakeModels records the last request and returns a canned response.
type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestClient(f *fakeModels) *Client {
	return newClient(f, ClientOpts{Temperature: 0.2, Logger: zerolog.Nop()})
}

var testPrompt = graph.Prompt{
	System:   "Player Name: Steve\n",
	Messages: []graph.Message{{Role: graph.RoleUser, Content: "how do I craft a torch"}},
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), ClientOpts{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	c := newTestClient(&fakeModels{})
	if c.model != DefaultModel {
		t.Errorf("model = %q", c.model)
	}
}

// ---------------------------------------------------------------------------
// Classify
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	f := &fakeModels{resp: textResponse(`{"route": "wiki_agent"}`)}
	c := newTestClient(f)

	got, err := c.Classify(context.Background(), testPrompt, []string{"wiki_agent", "final_response"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != "wiki_agent" {
		t.Errorf("route = %q", got)
	}

	cfg := f.config
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("mime = %q", cfg.ResponseMIMEType)
	}
	route := cfg.ResponseSchema.Properties[routeField]
	if route == nil || len(route.Enum) != 2 || route.Enum[1] != "final_response" {
		t.Fatalf("route schema = %+v", route)
	}
	if len(cfg.ResponseSchema.Required) != 1 || cfg.ResponseSchema.Required[0] != routeField {
		t.Errorf("required = %v", cfg.ResponseSchema.Required)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != testPrompt.System {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if f.model != DefaultModel {
		t.Errorf("model = %q", f.model)
	}
}

func TestClassify_PassesThroughOutOfEnum(t *testing.T) {
	c := newTestClient(&fakeModels{resp: textResponse(`{"route": "teleport"}`)})
	got, err := c.Classify(context.Background(), testPrompt, []string{"wiki_agent", "final_response"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != "teleport" {
		t.Errorf("route = %q, want raw value for the caller to reject", got)
	}
}

func TestClassify_InvalidJSON(t *testing.T) {
	c := newTestClient(&fakeModels{resp: textResponse("wiki_agent")})
	if _, err := c.Classify(context.Background(), testPrompt, nil); err == nil {
		t.Fatal("expected decode error")
	}
}

// ---------------------------------------------------------------------------
// GenerateWithTools
// ---------------------------------------------------------------------------

func TestGenerateWithTools(t *testing.T) {
	f := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{
				{FunctionCall: &genai.FunctionCall{Name: "minecraft_recipe_search", Args: map[string]any{"query": "torch"}}},
				{FunctionCall: &genai.FunctionCall{Name: "minecraft_internet_search", Args: map[string]any{"query": "coal"}}},
			}},
		}},
	}}
	c := newTestClient(f)

	specs := []knowledge.Spec{
		{Name: "minecraft_internet_search", Description: "wiki", Param: "query"},
		{Name: "minecraft_recipe_search", Description: "recipes", Param: "query"},
	}
	turn, err := c.GenerateWithTools(context.Background(), testPrompt, specs)
	if err != nil {
		t.Fatalf("GenerateWithTools: %v", err)
	}
	if len(turn.Requests) != 2 {
		t.Fatalf("requests = %+v", turn.Requests)
	}
	if turn.Requests[0].Name != "minecraft_recipe_search" || turn.Requests[0].Args["query"] != "torch" {
		t.Errorf("requests[0] = %+v", turn.Requests[0])
	}

	if len(f.config.Tools) != 1 {
		t.Fatalf("tools = %d", len(f.config.Tools))
	}
	decls := f.config.Tools[0].FunctionDeclarations
	if len(decls) != 2 || decls[0].Name != "minecraft_internet_search" {
		t.Fatalf("declarations = %+v", decls)
	}
	if decls[1].Parameters.Properties["query"].Type != genai.TypeString {
		t.Errorf("query param = %+v", decls[1].Parameters.Properties["query"])
	}
}

func TestGenerateWithTools_NoCalls(t *testing.T) {
	c := newTestClient(&fakeModels{resp: textResponse("nothing to look up")})
	turn, err := c.GenerateWithTools(context.Background(), testPrompt, nil)
	if err != nil {
		t.Fatalf("GenerateWithTools: %v", err)
	}
	if len(turn.Requests) != 0 || turn.Text != "nothing to look up" {
		t.Errorf("turn = %+v", turn)
	}
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func TestGenerate(t *testing.T) {
	f := &fakeModels{resp: textResponse("Place coal on a stick.")}
	c := newTestClient(f)
	got, err := c.Generate(context.Background(), testPrompt)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Place coal on a stick." {
		t.Errorf("got %q", got)
	}
	if f.config.Tools != nil || f.config.ResponseSchema != nil {
		t.Error("plain generation must not offer tools or a schema")
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeModels
		want string
	}{
		{"api error", &fakeModels{err: errors.New("quota")}, "quota"},
		{"nil response", &fakeModels{}, "no candidates"},
		{"no candidates", &fakeModels{resp: &genai.GenerateContentResponse{}}, "no candidates"},
		{"blocked", &fakeModels{resp: &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}}, "blocked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(tt.f).Generate(context.Background(), testPrompt)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Contents
// ---------------------------------------------------------------------------

func TestContents(t *testing.T) {
	got := Contents([]graph.Message{
		{Role: graph.RoleUser, Content: "old question"},
		{Role: graph.RoleAssistant, Content: "old answer"},
		{Role: graph.RoleUser, Content: "new question"},
		{Role: graph.RoleAssistant, Content: "wiki_agent"},
		{Role: graph.RoleAssistant, Content: "Torches need coal."},
		{Role: graph.RoleAssistant, Content: "  "},
	})
	if len(got) != 5 {
		t.Fatalf("contents = %d, want 5", len(got))
	}
	wantRoles := []string{
		string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser),
		string(genai.RoleModel), string(genai.RoleUser),
	}
	for i, r := range wantRoles {
		if got[i].Role != r {
			t.Errorf("contents[%d].Role = %q, want %q", i, got[i].Role, r)
		}
	}
	if len(got[3].Parts) != 2 {
		t.Errorf("consecutive model messages should merge, parts = %d", len(got[3].Parts))
	}
	if got[4].Parts[0].Text != continueText {
		t.Errorf("trailing user turn = %q", got[4].Parts[0].Text)
	}
}

func TestContents_Empty(t *testing.T) {
	got := Contents(nil)
	if len(got) != 1 || got[0].Role != string(genai.RoleUser) {
		t.Fatalf("contents = %+v", got)
	}
}

func TestContents_EndsOnUser(t *testing.T) {
	got := Contents([]graph.Message{{Role: graph.RoleUser, Content: "hi"}})
	if len(got) != 1 || got[0].Parts[0].Text != "hi" {
		t.Fatalf("contents = %+v", got)
	}
}
