package turn

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/zulandar/gepeto/internal/chat"
)

// Handler processes chat events.
type Handler interface {
	Accepts(evt chat.Event) bool
	HandleEvent(ctx context.Context, evt chat.Event)
}

// Daemon is the listener process. It connects a chat adapter and hands each
// accepted event to the handler on its own goroutine, so the event source
// is never blocked by a running turn.
type Daemon struct {
	adapter chat.Adapter
	handler Handler
	log     zerolog.Logger

	dispatched atomic.Int64
	ignored    atomic.Int64
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Adapter chat.Adapter
	Handler Handler
	Logger  zerolog.Logger
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("turn: adapter is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("turn: handler is required")
	}
	return &Daemon{
		adapter: opts.Adapter,
		handler: opts.Handler,
		log:     opts.Logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Stats reports how many events were dispatched and ignored so far.
func (d *Daemon) Stats() (dispatched, ignored int64) {
	return d.dispatched.Load(), d.ignored.Load()
}

// Run connects the adapter and pumps events until ctx is cancelled or the
// adapter closes its event channel. In-flight turns are waited for before
// Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("turn: connect: %w", err)
	}
	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("turn: listen: %w", err)
	}
	d.log.Info().Msg("listening")

	var wg conc.WaitGroup
	defer func() {
		wg.Wait()
		dispatched, ignored := d.Stats()
		d.log.Info().Int64("turns", dispatched).Int64("ignored", ignored).Msg("stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("shutting down")
			if err := d.adapter.Close(); err != nil {
				d.log.Warn().Err(err).Msg("close adapter")
			}
			return nil

		case evt, ok := <-inbound:
			if !ok {
				// Turns still in flight reply through the adapter, so it
				// stays open until they finish.
				d.log.Info().Msg("inbound channel closed")
				wg.Wait()
				if err := d.adapter.Close(); err != nil {
					d.log.Warn().Err(err).Msg("close adapter")
				}
				return nil
			}
			if !d.handler.Accepts(evt) {
				d.ignored.Add(1)
				continue
			}
			d.dispatched.Add(1)
			wg.Go(func() {
				d.handler.HandleEvent(ctx, evt)
			})
		}
	}
}
