package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	// PlatformConsole is the Event.Platform of console events.
	PlatformConsole = "console"

	consolePrompt = "> "
)

// Console is an Adapter over a line-oriented reader and writer, normally
// stdin and stdout. Every line is one message from a fixed player. The
// inbound channel closes at end of input.
type Console struct {
	in          io.Reader
	out         io.Writer
	player      Player
	interactive bool

	mu        sync.Mutex
	connected bool
	listening bool
	closed    bool
	cancel    context.CancelFunc
}

// ConsoleOpts holds parameters for creating a Console.
type ConsoleOpts struct {
	In     io.Reader // default os.Stdin
	Out    io.Writer // default os.Stdout
	Player Player    // who the operator speaks as; ID defaults to "console"
}

// NewConsole creates a Console. A prompt is printed only when In is a
// terminal.
func NewConsole(opts ConsoleOpts) *Console {
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	player := opts.Player
	if player.ID == "" {
		player.ID = PlatformConsole
	}
	if player.Name == "" {
		player.Name = player.ID
	}
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Console{in: in, out: out, player: player, interactive: interactive}
}

// Connect marks the console as connected.
func (c *Console) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("console: adapter already closed")
	}
	c.connected = true
	return nil
}

// Listen starts reading lines. Blank lines are skipped.
func (c *Console) Listen(ctx context.Context) (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, fmt.Errorf("console: not connected")
	}
	if c.listening {
		return nil, fmt.Errorf("console: already listening")
	}
	c.listening = true

	listenCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	events := make(chan Event)
	go c.read(listenCtx, events)
	return events, nil
}

func (c *Console) read(ctx context.Context, events chan<- Event) {
	defer close(events)
	scanner := bufio.NewScanner(c.in)
	for {
		c.prompt()
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		evt := Event{
			Platform:  PlatformConsole,
			ChannelID: PlatformConsole,
			Player:    c.player,
			Message:   line,
			Timestamp: time.Now(),
		}
		select {
		case events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Console) prompt() {
	if !c.interactive {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, consolePrompt)
}

// Send writes the formatted reply as one line.
func (c *Console) Send(ctx context.Context, r Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("console: not connected")
	}
	prefix := ""
	if c.interactive {
		prefix = "\r"
	}
	if _, err := fmt.Fprintln(c.out, prefix+FormatReply(r)); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

// Close stops delivering events. A read blocked on input is abandoned.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
