// Package llm implements the classification and generation capabilities on
// top of the Gemini API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zulandar/gepeto/internal/graph"
	"github.com/zulandar/gepeto/internal/knowledge"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.0-flash"

	routeField = "route"
)

// contentGenerator is the slice of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client serves graph.Classifier, graph.ToolCaller and graph.Generator.
type Client struct {
	models      contentGenerator
	model       string
	temperature float32
	log         zerolog.Logger
}

var (
	_ graph.Classifier = (*Client)(nil)
	_ graph.ToolCaller = (*Client)(nil)
	_ graph.Generator  = (*Client)(nil)
)

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	APIKey      string
	Model       string // default gemini-2.0-flash
	Temperature float32
	Logger      zerolog.Logger
}

// New connects to the Gemini API.
func New(ctx context.Context, opts ClientOpts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return newClient(gc.Models, opts), nil
}

func newClient(models contentGenerator, opts ClientOpts) *Client {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		models:      models,
		model:       model,
		temperature: opts.Temperature,
		log:         opts.Logger.With().Str("component", "llm").Str("model", model).Logger(),
	}
}

// Classify asks for a JSON object whose route field is constrained to
// choices and returns the route verbatim.
func (c *Client) Classify(ctx context.Context, p graph.Prompt, choices []string) (string, error) {
	cfg := c.config(p)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			routeField: {
				Type:        genai.TypeString,
				Enum:        choices,
				Description: "Next step: wiki_agent if more context is necessary, final_response if ready to respond.",
			},
		},
		Required: []string{routeField},
	}

	resp, err := c.generate(ctx, p, cfg)
	if err != nil {
		return "", err
	}

	var out struct {
		Route string `json:"route"`
	}
	text := resp.Text()
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", fmt.Errorf("llm: classify: decode %q: %w", text, err)
	}
	return out.Route, nil
}

// GenerateWithTools offers tools as function declarations and returns the
// calls the model requested, in order.
func (c *Client) GenerateWithTools(ctx context.Context, p graph.Prompt, tools []knowledge.Spec) (graph.ToolTurn, error) {
	cfg := c.config(p)
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(tools))
		for i, t := range tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						t.Param: {Type: genai.TypeString},
					},
					Required: []string{t.Param},
				},
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.generate(ctx, p, cfg)
	if err != nil {
		return graph.ToolTurn{}, err
	}

	turn := graph.ToolTurn{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		if fc == nil {
			continue
		}
		turn.Requests = append(turn.Requests, knowledge.Request{Name: fc.Name, Args: fc.Args})
	}
	c.log.Debug().Int("tool_calls", len(turn.Requests)).Msg("tool generation complete")
	return turn, nil
}

// Generate returns the model's plain-text answer.
func (c *Client) Generate(ctx context.Context, p graph.Prompt) (string, error) {
	resp, err := c.generate(ctx, p, c.config(p))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (c *Client) config(p graph.Prompt) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if sys := strings.TrimSpace(p.System); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(p.System)}}
	}
	return cfg
}

func (c *Client) generate(ctx context.Context, p graph.Prompt, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, Contents(p.Messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("llm: generate: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("llm: generate: no candidates")
	}
	return resp, nil
}

// continueText closes a conversation that would otherwise end on a model
// turn.
const continueText = "Continue."

// Contents converts prompt messages to Gemini contents. Consecutive messages
// from the same role share one content; the result always ends on a user
// turn.
func Contents(msgs []graph.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		var c *genai.Content
		if m.Role == graph.RoleAssistant {
			c = genai.NewContentFromText(m.Content, genai.RoleModel)
		} else {
			c = genai.NewContentFromText(m.Content, genai.RoleUser)
		}
		if n := len(out); n > 0 && out[n-1].Role == c.Role {
			out[n-1].Parts = append(out[n-1].Parts, c.Parts...)
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 || out[len(out)-1].Role == string(genai.RoleModel) {
		out = append(out, genai.NewContentFromText(continueText, genai.RoleUser))
	}
	return out
}
