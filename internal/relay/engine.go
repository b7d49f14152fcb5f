package relay

// Relay run loop.
//
// Three tasks share one Dispatcher:
//   - the sampler ticker posts local vectors
//   - the network receiver (under its own supervisor) posts parsed messages
//   - the send loop drains the dispatcher into the wireless session
//
// Shutdown: stop the sampler, close the dispatcher so the sentinel reaches
// the send loop, then cancel the links so both supervisors stop.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/rcrelay/rcrelay/internal/control"
	"github.com/rcrelay/rcrelay/internal/input"
	"github.com/rcrelay/rcrelay/internal/supervisor"
)

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultRescanInterval = 5 * time.Second
	DefaultStatsInterval  = 30 * time.Second
)

// Sender writes one payload to the vehicle. ble.Session satisfies it.
type Sender interface {
	Send(payload []byte) error
	Connected() bool
}

// Config holds the engine's tunables. Zero values take the defaults.
type Config struct {
	PollInterval   time.Duration
	RescanInterval time.Duration
	StatsInterval  time.Duration
	AxisMap        control.AxisMap
	Frame          control.FrameFormat
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RescanInterval <= 0 {
		c.RescanInterval = DefaultRescanInterval
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.AxisMap == (control.AxisMap{}) {
		c.AxisMap = control.Mode2
	}
	return c
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(e *Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "relay"))
	}
}

// WithNormalizer overrides control.NewNormalizer().
func WithNormalizer(n control.Normalizer) func(e *Engine) {
	return func(e *Engine) {
		e.normalizer = n
	}
}

// WithLinks adds supervisors that run for the engine's lifetime.
func WithLinks(links ...*supervisor.Supervisor) func(e *Engine) {
	return func(e *Engine) {
		e.links = append(e.links, links...)
	}
}

// Engine wires the sampler, the dispatcher and the sender together.
type Engine struct {
	cfg        Config
	sampler    *input.Sampler
	normalizer control.Normalizer
	dispatcher *Dispatcher
	sender     Sender
	links      []*supervisor.Supervisor

	sent    atomic.Uint64
	dropped atomic.Uint64
	sampled atomic.Uint64

	logger *slog.Logger
}

// NewEngine builds an engine. sampler may be nil when no local input is
// wanted; network commands are still relayed.
func NewEngine(cfg Config, sampler *input.Sampler, d *Dispatcher, sender Sender, options ...func(e *Engine)) *Engine {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		sampler:    sampler,
		normalizer: control.NewNormalizer(),
		dispatcher: d,
		sender:     sender,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Sampled uint64
	Sent    uint64
	Dropped uint64
	Evicted uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Sampled: e.sampled.Load(),
		Sent:    e.sent.Load(),
		Dropped: e.dropped.Load(),
		Evicted: e.dispatcher.Dropped(),
	}
}

// Run relays until ctx is cancelled, then shuts down in order. It returns
// nil on a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	linkCtx, cancelLinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLinks()

	var links errgroup.Group
	for _, s := range e.links {
		links.Go(func() error { return s.Run(linkCtx) })
	}

	sendDone := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(sendDone)
		return e.sendLoop(linkCtx)
	})
	g.Go(func() error {
		e.sampleLoop(ctx)
		e.dispatcher.Close()
		return nil
	})
	g.Go(func() error {
		e.statsLoop(sendDone)
		return nil
	})

	err := g.Wait()
	cancelLinks()
	_ = links.Wait()

	st := e.Stats()
	e.logger.Info("relay stopped",
		slog.String("sent", humanize.Comma(int64(st.Sent))),
		slog.String("dropped", humanize.Comma(int64(st.Dropped+st.Evicted))))
	return err
}

func (e *Engine) sampleLoop(ctx context.Context) {
	if e.sampler == nil {
		<-ctx.Done()
		return
	}

	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	rescan := time.NewTicker(e.cfg.RescanInterval)
	defer rescan.Stop()

	absent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-rescan.C:
			if e.sampler.Detached() {
				e.sampler.Rescan()
			}
		case <-poll.C:
			r, err := e.sampler.Poll()
			switch {
			case errors.Is(err, input.ErrDeviceAbsent):
				if !absent {
					e.logger.Info("no local input device, relaying network input only", slog.String("reason", err.Error()))
					absent = true
				}
				continue
			case err != nil:
				e.logger.Warn("sample skipped", slog.String("error", err.Error()))
				continue
			}
			if absent {
				e.logger.Info("local input device present", slog.String("device", string(r.Device)))
				absent = false
			}

			e.sampled.Add(1)
			v := e.normalizer.Normalize(r.Sample, r.Calibration).Vector(e.cfg.AxisMap)
			if err := e.dispatcher.Post(control.Command{Source: control.SourceLocal, Vector: v}); err != nil {
				return
			}
		}
	}
}

// sendLoop is the only consumer of the dispatcher. It exits on the sentinel.
func (e *Engine) sendLoop(ctx context.Context) error {
	down := false
	for {
		cmd, err := e.dispatcher.Next(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		if !e.sender.Connected() {
			e.dropped.Add(1)
			if !down {
				e.logger.Info("wireless link down, dropping commands")
				down = true
			}
			continue
		}

		payload := e.cfg.Frame.Payload(cmd)
		if err := e.sender.Send(payload); err != nil {
			e.dropped.Add(1)
			e.logger.Warn("send failed", slog.String("command", cmd.String()), slog.String("error", err.Error()))
			down = true
			continue
		}
		if down {
			e.logger.Info("wireless link up, relaying")
			down = false
		}
		e.sent.Add(1)
		e.logger.Debug("sent", slog.String("command", cmd.String()), slog.Int("bytes", len(payload)))
	}
}

func (e *Engine) statsLoop(done <-chan struct{}) {
	t := time.NewTicker(e.cfg.StatsInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			st := e.Stats()
			attrs := []any{
				slog.String("sampled", humanize.Comma(int64(st.Sampled))),
				slog.String("sent", humanize.Comma(int64(st.Sent))),
				slog.String("dropped", humanize.Comma(int64(st.Dropped))),
				slog.String("evicted", humanize.Comma(int64(st.Evicted))),
			}
			for _, l := range e.links {
				attrs = append(attrs, slog.String(l.Name(), l.Status().String()))
			}
			e.logger.Info("relay stats", attrs...)
		}
	}
}
