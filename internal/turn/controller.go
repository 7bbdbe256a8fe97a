// Package turn drives one chat event through the routing graph and posts
// the reply. A failed turn is logged and produces no reply.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/zulandar/gepeto/internal/chat"
	"github.com/zulandar/gepeto/internal/graph"
	"github.com/zulandar/gepeto/internal/models"
)

// Defaults applied by NewController.
const (
	DefaultTrigger      = "@gpt"
	DefaultSpeakerLabel = "<Gepeto>"
	DefaultMaxSteps     = graph.DefaultMaxSteps
	DefaultTimeout      = 60 * time.Second
)

// Abort reasons.
const (
	ReasonStepLimit = "step_limit"
	ReasonTimeout   = "timeout"
)

// TurnAbortedError reports a turn stopped by its step ceiling or its
// wall-clock budget.
type TurnAbortedError struct {
	Reason  string
	Steps   int
	Timeout time.Duration
}

func (e *TurnAbortedError) Error() string {
	if e.Reason == ReasonTimeout {
		return fmt.Sprintf("turn: aborted: no reply within %s (%d steps)", e.Timeout, e.Steps)
	}
	return fmt.Sprintf("turn: aborted: step limit reached after %d steps", e.Steps)
}

// Runner executes the routing graph.
type Runner interface {
	Run(ctx context.Context, tc graph.TurnContext, st graph.State, maxSteps int) (graph.Result, error)
}

// Recorder persists the inbound human message.
type Recorder interface {
	PutMessage(ctx context.Context, writer, writerType, content, participantID string) error
}

// Sink posts replies. Implementations serialize their own writes.
type Sink interface {
	Send(ctx context.Context, r chat.Reply) error
}

// Controller handles chat events. It holds no per-turn state and is safe
// for concurrent use.
type Controller struct {
	graph    Runner
	history  Recorder
	sink     Sink
	trigger  string
	label    string
	maxSteps int
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	Graph        Runner
	History      Recorder
	Sink         Sink
	Trigger      string        // message prefix addressing the bot, default "@gpt"
	SpeakerLabel string        // prepended to every reply, default "<Gepeto>"
	MaxSteps     int           // graph step ceiling, default 6
	Timeout      time.Duration // wall-clock budget per turn, default 60s
	Clock        func() time.Time
	Logger       zerolog.Logger
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("turn: graph is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("turn: history is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("turn: sink is required")
	}
	if opts.Trigger = strings.TrimSpace(opts.Trigger); opts.Trigger == "" {
		opts.Trigger = DefaultTrigger
	}
	if opts.SpeakerLabel == "" {
		opts.SpeakerLabel = DefaultSpeakerLabel
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		graph:    opts.Graph,
		history:  opts.History,
		sink:     opts.Sink,
		trigger:  opts.Trigger,
		label:    opts.SpeakerLabel,
		maxSteps: opts.MaxSteps,
		timeout:  opts.Timeout,
		now:      opts.Clock,
		log:      opts.Logger.With().Str("component", "turn").Logger(),
	}, nil
}

// Query returns the text after trigger, trimmed, and whether msg is
// addressed to the bot at all. A bare trigger yields no query.
func Query(msg, trigger string) (string, bool) {
	rest, ok := strings.CutPrefix(msg, trigger)
	if !ok {
		return "", false
	}
	q := strings.TrimSpace(rest)
	return q, q != ""
}

// Accepts reports whether evt carries a query for the bot.
func (c *Controller) Accepts(evt chat.Event) bool {
	_, ok := Query(evt.Message, c.trigger)
	return ok
}

// HandleEvent runs one turn for evt. Events without the trigger are
// ignored. Failures are logged, never returned or panicked.
func (c *Controller) HandleEvent(ctx context.Context, evt chat.Event) {
	log := c.log.With().
		Str("turn_id", uuid.NewString()).
		Str("participant_id", evt.Player.ID).
		Str("platform", evt.Platform).
		Logger()

	var pc panics.Catcher
	pc.Try(func() {
		c.logOutcome(log, c.handle(ctx, log, evt))
	})
	if r := pc.Recovered(); r != nil {
		log.Error().Interface("panic", r.Value).Str("stack", string(r.Stack)).Msg("turn panicked")
	}
}

func (c *Controller) logOutcome(log zerolog.Logger, err error) {
	var aborted *TurnAbortedError
	var routing *graph.RoutingError
	var gen *graph.GenerationError
	switch {
	case err == nil:
	case errors.Is(err, errIgnored):
	case errors.As(err, &aborted):
		log.Warn().Err(err).Str("reason", aborted.Reason).Int("steps", aborted.Steps).Msg("turn aborted")
	case errors.As(err, &routing):
		log.Error().Err(err).Str("decision", routing.Decision).Msg("turn failed: bad routing decision")
	case errors.As(err, &gen):
		log.Error().Err(err).Str("step", string(gen.Step)).Msg("turn failed: generation")
	default:
		log.Error().Err(err).Msg("turn failed")
	}
}

// errIgnored marks events that were not addressed to the bot.
var errIgnored = errors.New("turn: not addressed to the bot")

func (c *Controller) handle(ctx context.Context, log zerolog.Logger, evt chat.Event) error {
	query, ok := Query(evt.Message, c.trigger)
	if !ok {
		log.Debug().Msg("ignoring message without trigger")
		return errIgnored
	}
	if evt.Player.ID == "" {
		return fmt.Errorf("turn: event has no participant id")
	}

	start := c.now()
	tc := turnContext(evt, start)

	// The question is made durable before any generation happens.
	if err := c.history.PutMessage(ctx, evt.Player.ID, models.WriterHuman, query, evt.Player.ID); err != nil {
		log.Warn().Err(err).Msg("persist inbound message failed, continuing")
	}

	log.Info().Str("query", query).Msg("turn started")

	res, err := c.run(ctx, tc, graph.NewState(query))
	if err != nil {
		return err
	}

	reply := chat.Reply{ChannelID: evt.ChannelID, Label: c.label, Text: res.State.ResponseText()}
	if err := c.sink.Send(ctx, reply); err != nil {
		return fmt.Errorf("turn: send reply: %w", err)
	}

	log.Info().
		Int("steps", res.Steps()).
		Int("tool_calls", len(res.State.ToolCalls)).
		Dur("elapsed", c.now().Sub(start)).
		Msg("turn complete")
	return nil
}

type outcome struct {
	res graph.Result
	err error
}

// run executes the graph under the step ceiling and the wall-clock budget.
// On timeout the in-flight run is abandoned; its context is cancelled so it
// stops at its next step boundary.
func (c *Controller) run(ctx context.Context, tc graph.TurnContext, st graph.State) (graph.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		var o outcome
		var pc panics.Catcher
		pc.Try(func() {
			o.res, o.err = c.graph.Run(runCtx, tc, st, c.maxSteps)
		})
		if r := pc.Recovered(); r != nil {
			o.err = fmt.Errorf("turn: graph panicked: %v", r.Value)
		}
		done <- o
	}()

	select {
	case o := <-done:
		return o.res, c.classify(ctx, o)
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return graph.Result{}, fmt.Errorf("turn: cancelled: %w", ctx.Err())
		}
		return graph.Result{}, &TurnAbortedError{Reason: ReasonTimeout, Timeout: c.timeout}
	}
}

func (c *Controller) classify(ctx context.Context, o outcome) error {
	switch {
	case o.err == nil:
		if o.res.State.ResponseText() == "" {
			return &graph.GenerationError{Step: graph.NodeFinalResponse, Err: errors.New("empty response")}
		}
		return nil
	case errors.Is(o.err, graph.ErrStepLimit):
		return &TurnAbortedError{Reason: ReasonStepLimit, Steps: o.res.Steps()}
	case errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil:
		return &TurnAbortedError{Reason: ReasonTimeout, Steps: o.res.Steps(), Timeout: c.timeout}
	default:
		return o.err
	}
}

// turnContext builds the per-turn context from the event originator. The
// start time is truncated to milliseconds to match stored timestamp
// precision.
func turnContext(evt chat.Event, start time.Time) graph.TurnContext {
	tc := graph.TurnContext{
		ParticipantID:   evt.Player.ID,
		ParticipantName: evt.Player.Name,
		Dimension:       evt.Player.World,
		StartedAt:       start.Truncate(time.Millisecond),
	}
	if p := evt.Player.Position; p != nil {
		tc.Location = &graph.Location{X: p.X, Y: p.Y, Z: p.Z}
	}
	return tc
}
