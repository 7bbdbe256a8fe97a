package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/gepeto/internal/knowledge"
	"github.com/zulandar/gepeto/internal/models"
	"github.com/zulandar/gepeto/internal/prompt"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// scriptedClassifier returns decisions in order, repeating the last one.
type scriptedClassifier struct {
	mu        sync.Mutex
	decisions []string
	err       error
	prompts   []Prompt
	choices   []string
}

func (c *scriptedClassifier) Classify(_ context.Context, p Prompt, choices []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	c.choices = choices
	if c.err != nil {
		return "", c.err
	}
	i := min(len(c.prompts)-1, len(c.decisions)-1)
	return c.decisions[i], nil
}

type fakeToolCaller struct {
	turn  ToolTurn
	err   error
	specs []knowledge.Spec
	calls int
}

func (f *fakeToolCaller) GenerateWithTools(_ context.Context, _ Prompt, tools []knowledge.Spec) (ToolTurn, error) {
	f.calls++
	f.specs = tools
	return f.turn, f.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []Prompt
}

func (f *fakeGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	return f.text, f.err
}

type cannedTool struct {
	id     knowledge.ToolID
	result string
	err    error
}

func (t *cannedTool) ID() knowledge.ToolID { return t.id }
func (t *cannedTool) Description() string  { return "canned" }
func (t *cannedTool) Run(context.Context, knowledge.Input) (string, error) {
	return t.result, t.err
}

// memHistory is an in-memory ledger with injectable failures.
type memHistory struct {
	mu     sync.Mutex
	turns  []models.ConversationTurn
	putErr error
	getErr error
	clock  time.Time
	limits []int
}

func (h *memHistory) PutMessage(_ context.Context, writer, writerType, content, pid string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.putErr != nil {
		return h.putErr
	}
	if h.clock.IsZero() {
		h.clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	h.clock = h.clock.Add(time.Second)
	h.turns = append(h.turns, models.ConversationTurn{
		ID:            uint(len(h.turns) + 1),
		Writer:        writer,
		WriterType:    writerType,
		ParticipantID: pid,
		Content:       content,
		CreatedAt:     h.clock,
	})
	return nil
}

func (h *memHistory) GetRecentMessages(_ context.Context, pid string, limit int) ([]models.ConversationTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limits = append(h.limits, limit)
	if h.getErr != nil {
		return nil, h.getErr
	}
	var out []models.ConversationTurn
	for _, t := range h.turns {
		if pid != "" && (t.Writer == pid || t.ParticipantID == pid) {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (h *memHistory) writers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var w []string
	for _, t := range h.turns {
		w = append(w, t.Writer)
	}
	return w
}

type harness struct {
	classifier *scriptedClassifier
	toolCaller *fakeToolCaller
	generator  *fakeGenerator
	history    *memHistory
	graph      *Graph
}

func newHarness(t *testing.T, decisions ...string) *harness {
	t.Helper()
	reg, err := knowledge.NewRegistry(knowledge.RegistryOpts{
		Tools: []knowledge.Tool{
			&cannedTool{id: knowledge.WikiSearchTool, result: "Torches need coal and a stick."},
			&cannedTool{id: knowledge.RecipeSearchTool, result: "torch: [coal, stick]"},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	h := &harness{
		classifier: &scriptedClassifier{decisions: decisions},
		toolCaller: &fakeToolCaller{turn: ToolTurn{Requests: []knowledge.Request{
			{Name: string(knowledge.WikiSearchTool), Args: map[string]any{"query": "torch"}},
			{Name: string(knowledge.RecipeSearchTool), Args: map[string]any{"query": "torch"}},
		}}},
		generator: &fakeGenerator{text: "  Place coal above a stick.  "},
		history:   &memHistory{},
	}
	h.graph, err = New(Opts{
		Classifier:   h.classifier,
		ToolCaller:   h.toolCaller,
		Generator:    h.generator,
		Tools:        reg,
		History:      h.history,
		HistoryLimit: DefaultHistoryLimit,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

var testTurn = TurnContext{ParticipantID: "P1", ParticipantName: "Steve", Dimension: "nether"}

func assertPath(t *testing.T, got []Node, want ...Node) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path = %v, want %v", got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// New tests
// ---------------------------------------------------------------------------

func TestNew_RequiresCapabilities(t *testing.T) {
	h := newHarness(t, "final_response")
	base := Opts{
		Classifier: h.classifier,
		ToolCaller: h.toolCaller,
		Generator:  h.generator,
		Tools:      h.graph.tools,
		History:    h.history,
	}
	tests := []struct {
		name   string
		mutate func(*Opts)
	}{
		{"classifier", func(o *Opts) { o.Classifier = nil }},
		{"tool caller", func(o *Opts) { o.ToolCaller = nil }},
		{"generator", func(o *Opts) { o.Generator = nil }},
		{"tools", func(o *Opts) { o.Tools = nil }},
		{"history", func(o *Opts) { o.History = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Fatalf("expected error without %s", tt.name)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	h := newHarness(t, "final_response")
	if h.graph.prompts != prompt.Default() {
		t.Error("expected default prompts")
	}

	g, err := New(Opts{
		Classifier:   h.classifier,
		ToolCaller:   h.toolCaller,
		Generator:    h.generator,
		Tools:        h.graph.tools,
		History:      h.history,
		HistoryLimit: -1,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.historyLimit != DefaultHistoryLimit {
		t.Errorf("historyLimit = %d, want %d", g.historyLimit, DefaultHistoryLimit)
	}
}

func TestRun_ZeroHistoryLimit(t *testing.T) {
	h := newHarness(t, "final_response")
	g, err := New(Opts{
		Classifier:   h.classifier,
		ToolCaller:   h.toolCaller,
		Generator:    h.generator,
		Tools:        h.graph.tools,
		History:      h.history,
		HistoryLimit: 0,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.history.PutMessage(context.Background(), "P1", models.WriterHuman, "earlier question", "P1")

	if _, err := g.Run(context.Background(), testTurn, NewState("hello"), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.history.limits) == 0 {
		t.Fatal("history never loaded")
	}
	for _, l := range h.history.limits {
		if l != 0 {
			t.Errorf("history limits = %v, want all 0", h.history.limits)
			break
		}
	}
	for _, p := range h.generator.prompts {
		for _, m := range p.Messages {
			if m.Content == "earlier question" {
				t.Fatal("history fed into prompt with limit 0")
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Run scenarios
// ---------------------------------------------------------------------------

func TestRun_DirectResponse(t *testing.T) {
	h := newHarness(t, "final_response")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("hello"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertPath(t, res.Path, NodeSupervisor, NodeFinalResponse)

	st := res.State
	if st.ResponseText() != "Place coal above a stick." {
		t.Errorf("response = %q", st.ResponseText())
	}
	if st.WikiContext != nil {
		t.Errorf("wiki_context = %q, want unset", *st.WikiContext)
	}
	if len(st.ToolCalls) != 0 {
		t.Errorf("tool_calls = %v, want empty", st.ToolCalls)
	}
	if st.Intent != IntentFinalResponse {
		t.Errorf("intent = %q", st.Intent)
	}
	if h.toolCaller.calls != 0 {
		t.Error("tool caller should not run")
	}

	wantMsgs := []Message{
		{RoleUser, "hello"},
		{RoleAssistant, "final_response"},
		{RoleAssistant, "Place coal above a stick."},
	}
	if len(st.Messages) != len(wantMsgs) {
		t.Fatalf("messages = %+v", st.Messages)
	}
	for i, m := range wantMsgs {
		if st.Messages[i] != m {
			t.Errorf("messages[%d] = %+v, want %+v", i, st.Messages[i], m)
		}
	}

	writers := h.history.writers()
	if strings.Join(writers, ",") != "supervisor_agent,response_agent" {
		t.Errorf("persisted writers = %v", writers)
	}
	if h.history.turns[0].Content != "Routing to final_response" {
		t.Errorf("supervisor turn = %q", h.history.turns[0].Content)
	}
	for _, turn := range h.history.turns {
		if turn.WriterType != models.WriterAI || turn.ParticipantID != "P1" {
			t.Errorf("turn %+v not attributed to P1 as ai", turn)
		}
	}
}

func TestRun_WikiThenResponse(t *testing.T) {
	h := newHarness(t, "wiki_agent", "final_response")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("how do I craft a torch"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertPath(t, res.Path, NodeSupervisor, NodeWikiAgent, NodeSupervisor, NodeFinalResponse)

	st := res.State
	wantCtx := "Torches need coal and a stick.\ntorch: [coal, stick]"
	if st.WikiContext == nil || *st.WikiContext != wantCtx {
		t.Fatalf("wiki_context = %v, want %q", st.WikiContext, wantCtx)
	}
	if len(st.ToolCalls) != 2 {
		t.Fatalf("tool_calls = %d, want 2", len(st.ToolCalls))
	}
	if st.ToolCalls[0].Name != string(knowledge.WikiSearchTool) {
		t.Errorf("tool_calls[0] = %+v", st.ToolCalls[0])
	}
	if st.ResponseText() == "" {
		t.Error("expected response")
	}
	if len(h.toolCaller.specs) != 2 {
		t.Errorf("tool specs offered = %d, want 2", len(h.toolCaller.specs))
	}

	// The second supervisor pass sees the wiki result in flight.
	second := h.classifier.prompts[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Content != wantCtx {
		t.Errorf("second supervisor pass last message = %q", last.Content)
	}

	writers := strings.Join(h.history.writers(), ",")
	if writers != "supervisor_agent,wiki_agent,supervisor_agent,response_agent" {
		t.Errorf("persisted writers = %s", writers)
	}
}

func TestRun_WikiWithoutToolCalls(t *testing.T) {
	h := newHarness(t, "wiki_agent", "final_response")
	h.toolCaller.turn = ToolTurn{Text: "no tools needed"}

	res, err := h.graph.Run(context.Background(), testTurn, NewState("hi"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.WikiContext == nil || *res.State.WikiContext != "" {
		t.Errorf("wiki_context = %v, want empty string", res.State.WikiContext)
	}
	for _, w := range h.history.writers() {
		if w == WriterWiki {
			t.Error("empty wiki result should not be persisted")
		}
	}
}

func TestRun_UnknownToolRequestDropped(t *testing.T) {
	h := newHarness(t, "wiki_agent", "final_response")
	h.toolCaller.turn = ToolTurn{Requests: []knowledge.Request{{Name: "teleport", Args: map[string]any{}}}}

	res, err := h.graph.Run(context.Background(), testTurn, NewState("hi"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.State.ToolCalls) != 0 {
		t.Errorf("tool_calls = %v", res.State.ToolCalls)
	}
}

func TestRun_StepLimit(t *testing.T) {
	h := newHarness(t, "wiki_agent")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("loop"), 6)
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("err = %v, want ErrStepLimit", err)
	}
	if res.Steps() != 6 {
		t.Errorf("steps = %d, want 6", res.Steps())
	}
	if res.State.Response != nil {
		t.Error("response must stay unset when the terminal step never ran")
	}
	if len(res.State.ToolCalls) != 6 {
		t.Errorf("tool_calls = %d, want 6 (three wiki rounds)", len(res.State.ToolCalls))
	}
}

func TestRun_StepLimitAllowsTwoRounds(t *testing.T) {
	h := newHarness(t, "wiki_agent", "wiki_agent", "final_response")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 6)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Steps() != 6 {
		t.Errorf("steps = %d, want 6", res.Steps())
	}
}

func TestRun_ToolCallsNeverShrink(t *testing.T) {
	h := newHarness(t, "wiki_agent", "wiki_agent", "final_response")
	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.State.ToolCalls) != 4 {
		t.Errorf("tool_calls = %d, want 4", len(res.State.ToolCalls))
	}
	// WikiContext keeps only the last round.
	if strings.Count(*res.State.WikiContext, "Torches") != 1 {
		t.Errorf("wiki_context should be overwritten, got %q", *res.State.WikiContext)
	}
}

func TestRun_RoutingError(t *testing.T) {
	h := newHarness(t, "maybe")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	var re *RoutingError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RoutingError", err)
	}
	if re.Decision != "maybe" {
		t.Errorf("decision = %q", re.Decision)
	}
	if res.State.Intent != "" {
		t.Errorf("intent = %q, want unset", res.State.Intent)
	}
	if len(h.history.turns) != 0 {
		t.Error("invalid routing must not be persisted")
	}
}

func TestRun_RoutingErrorNotCoerced(t *testing.T) {
	for _, d := range []string{"", "Final_Response", " wiki_agent", "wiki_search"} {
		h := newHarness(t, d)
		_, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
		var re *RoutingError
		if !errors.As(err, &re) {
			t.Errorf("decision %q: err = %v, want RoutingError", d, err)
		}
	}
}

func TestRun_ClassifierGenerationError(t *testing.T) {
	h := newHarness(t, "final_response")
	h.classifier.err = errors.New("quota exceeded")

	_, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want GenerationError", err)
	}
	if ge.Step != NodeSupervisor {
		t.Errorf("step = %s", ge.Step)
	}
}

func TestRun_ToolCallerGenerationError(t *testing.T) {
	h := newHarness(t, "wiki_agent")
	h.toolCaller.err = errors.New("503")

	_, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Step != NodeWikiAgent {
		t.Fatalf("err = %v, want GenerationError at wiki_agent", err)
	}
}

func TestRun_EmptyResponseIsGenerationError(t *testing.T) {
	h := newHarness(t, "final_response")
	h.generator.text = "   "

	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Step != NodeFinalResponse {
		t.Fatalf("err = %v, want GenerationError at final_response", err)
	}
	if res.State.Response != nil {
		t.Error("response must stay unset")
	}
}

func TestRun_ToolFailureDoesNotFailTurn(t *testing.T) {
	h := newHarness(t, "wiki_agent", "final_response")
	reg, _ := knowledge.NewRegistry(knowledge.RegistryOpts{
		Tools:  []knowledge.Tool{&cannedTool{id: knowledge.WikiSearchTool, err: errors.New("dns failure")}},
		Logger: zerolog.Nop(),
	})
	h.graph.tools = reg
	h.toolCaller.turn = ToolTurn{Requests: []knowledge.Request{
		{Name: string(knowledge.WikiSearchTool), Args: map[string]any{"query": "torch"}},
	}}

	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(*res.State.WikiContext, "Error calling minecraft_internet_search") {
		t.Errorf("wiki_context = %q", *res.State.WikiContext)
	}
	if res.State.ResponseText() == "" {
		t.Error("expected response")
	}
}

func TestRun_StoreWriteFailure(t *testing.T) {
	h := newHarness(t, "final_response")
	h.history.putErr = errors.New("disk full")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertPath(t, res.Path, NodeSupervisor, NodeFinalResponse)
	if res.State.ResponseText() == "" {
		t.Error("expected response despite store failure")
	}
}

func TestRun_StoreReadFailure(t *testing.T) {
	h := newHarness(t, "final_response")
	h.history.getErr = errors.New("connection reset")

	res, err := h.graph.Run(context.Background(), testTurn, NewState("q"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.ResponseText() == "" {
		t.Error("expected response")
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	h := newHarness(t, "final_response")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.graph.Run(ctx, testTurn, NewState("q"), 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Steps() != 0 {
		t.Errorf("steps = %d, want 0", res.Steps())
	}
}

func TestRun_ConcurrentTurnsIsolated(t *testing.T) {
	h := newHarness(t, "final_response")
	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc := TurnContext{ParticipantID: string(rune('A' + i))}
			res, err := h.graph.Run(context.Background(), tc, NewState(tc.ParticipantID), 0)
			if err != nil {
				t.Errorf("Run: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if r.State.Query != string(rune('A'+i)) || r.State.Messages[0].Content != r.State.Query {
			t.Errorf("turn %d state leaked: %+v", i, r.State)
		}
	}
}
