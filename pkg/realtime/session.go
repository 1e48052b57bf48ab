// Package realtime orchestrates one live support conversation: it
// negotiates session credentials, opens the duplex event channel, pumps
// inbound events through classification into the transcript, and runs
// tool invocations through the dispatcher with write-back of results.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voltdesk/voltdesk/pkg/core"
	"github.com/voltdesk/voltdesk/pkg/realtime/classify"
	"github.com/voltdesk/voltdesk/pkg/realtime/protocol"
	"github.com/voltdesk/voltdesk/pkg/realtime/transcript"
	"github.com/voltdesk/voltdesk/pkg/tools"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateActive      State = "active"
	StateClosing     State = "closing"
	StateClosed      State = "closed"
	StateFailed      State = "failed"
)

const (
	defaultShutdownGrace   = 5 * time.Second
	defaultDeliveryRetries = 2
	defaultDeliveryBackoff = 100 * time.Millisecond
)

// ToolRunner executes one tool-invocation request. Satisfied by
// *tools.Dispatcher; a remote dispatcher can stand in behind the same
// interface.
type ToolRunner interface {
	Dispatch(ctx context.Context, req tools.Request) tools.Result
}

// Config tunes session behavior. The zero value is usable.
type Config struct {
	// ShutdownGrace bounds how long Stop waits for in-flight tool
	// dispatches before abandoning them.
	ShutdownGrace time.Duration

	// DeliveryRetries is how many times a failed result write-back is
	// retried before being recorded as a delivery failure.
	DeliveryRetries int

	// DeliveryBackoff is the pause between write-back retries.
	DeliveryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.DeliveryRetries <= 0 {
		c.DeliveryRetries = defaultDeliveryRetries
	}
	if c.DeliveryBackoff <= 0 {
		c.DeliveryBackoff = defaultDeliveryBackoff
	}
	return c
}

// Dependencies are the session's collaborators. Negotiator, Dialer and
// Runner are required; the rest default.
type Dependencies struct {
	Negotiator Negotiator
	Dialer     Dialer
	Runner     ToolRunner
	Transcript *transcript.Log
	Logger     *slog.Logger
}

// Session drives one conversation end to end. A session is single-use:
// once stopped or failed it cannot be restarted.
type Session struct {
	deps   Dependencies
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	channel Channel
	cancel  context.CancelFunc

	// seq issues correlation ids for fragments that arrive without one,
	// so ordering survives even when the upstream omits its ids.
	seq       int
	openSynth map[classify.Speaker]string

	inflight sync.WaitGroup
	pumpDone chan struct{}
	stopOnce sync.Once
}

func NewSession(deps Dependencies, config Config) (*Session, error) {
	if deps.Negotiator == nil {
		return nil, core.NewInvalidRequestError("session requires a negotiator")
	}
	if deps.Dialer == nil {
		return nil, core.NewInvalidRequestError("session requires a dialer")
	}
	if deps.Runner == nil {
		return nil, core.NewInvalidRequestError("session requires a tool runner")
	}
	if deps.Transcript == nil {
		deps.Transcript = transcript.NewLog()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{
		deps:      deps,
		config:    config.withDefaults(),
		logger:    deps.Logger,
		state:     StateIdle,
		openSynth: make(map[classify.Speaker]string),
		pumpDone:  make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the event pump ends, whether by remote close,
// transport failure or Stop.
func (s *Session) Done() <-chan struct{} {
	return s.pumpDone
}

// Transcript returns the session's transcript log.
func (s *Session) Transcript() *transcript.Log {
	return s.deps.Transcript
}

// Start negotiates credentials, opens the channel and begins pumping
// events. It returns once the session is active; the pump runs in the
// background until the channel ends or Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return core.NewInvalidRequestError(fmt.Sprintf("cannot start a session in state %q", state))
	}
	s.state = StateNegotiating
	s.mu.Unlock()

	info, err := s.deps.Negotiator.CreateSession(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	channel, err := s.deps.Dialer.Dial(ctx, info)
	if err != nil {
		s.fail(err)
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.state != StateNegotiating {
		// Stop raced Start; release the freshly opened channel.
		s.mu.Unlock()
		cancel()
		_ = channel.Close()
		return core.NewInvalidRequestError("session was stopped during negotiation")
	}
	s.channel = channel
	s.cancel = cancel
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Info("session active", "join_address", info.JoinAddress)
	go s.pump(pumpCtx, channel)
	return nil
}

// Stop ends the session. Safe to call multiple times and from any
// state; in-flight tool dispatches get a bounded grace period, then the
// session closes regardless.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		if prev == StateClosed || prev == StateFailed {
			s.mu.Unlock()
			return
		}
		s.state = StateClosing
		channel := s.channel
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if channel != nil {
			if err := channel.Close(); err != nil {
				s.logger.Warn("channel close failed", "error", err)
			}
			<-s.pumpDone
		}

		if !s.waitInflight(s.config.ShutdownGrace) {
			s.logger.Warn("abandoning in-flight tool dispatches after grace period",
				"grace", s.config.ShutdownGrace)
		}

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.logger.Info("session closed")
	})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.mu.Unlock()
	s.logger.Error("session failed", "error", err)
}

func (s *Session) waitInflight(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// pump is the session's single event loop. It owns classification and
// transcript writes; tool dispatches fan out to their own goroutines so
// a slow tool never stalls transcription.
func (s *Session) pump(ctx context.Context, channel Channel) {
	defer close(s.pumpDone)

	for ev := range channel.Events() {
		for _, event := range classify.Classify(ev) {
			s.handle(ctx, channel, event)
		}
	}

	err := channel.Err()
	s.mu.Lock()
	closing := s.state == StateClosing || s.state == StateClosed
	s.mu.Unlock()
	if closing {
		return
	}
	if err != nil {
		s.fail(err)
		return
	}

	// Orderly remote close.
	s.mu.Lock()
	if s.state == StateActive {
		s.state = StateClosed
	}
	s.mu.Unlock()
	s.logger.Info("channel ended")
}

func (s *Session) handle(ctx context.Context, channel Channel, event classify.Event) {
	switch e := event.(type) {
	case classify.SpeechDelta:
		id := s.correlationID(e.Speaker, e.CorrelationID, false)
		s.deps.Transcript.Upsert(e.Speaker, id, e.Text, false)
	case classify.SpeechFinal:
		id := s.correlationID(e.Speaker, e.CorrelationID, true)
		s.deps.Transcript.Upsert(e.Speaker, id, e.Text, true)
	case classify.ToolInvocation:
		if e.CallID == "" {
			s.logger.Error("tool invocation without call id is undispatchable", "tool", e.Name)
			return
		}
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			result := s.deps.Runner.Dispatch(ctx, tools.Request{
				CallID:    e.CallID,
				Name:      e.Name,
				Arguments: e.Arguments,
			})
			s.deliver(ctx, channel, result)
		}()
	case classify.Unrecognized:
		s.logger.Debug("unrecognized event", "kind", e.Kind)
	}
}

// correlationID returns the event's own id, or synthesizes one from the
// session sequence counter when the upstream omitted it. Consecutive
// id-less fragments from the same speaker share one synthetic id so the
// transcript still reconciles them into a single utterance; a final
// fragment closes that id.
func (s *Session) correlationID(speaker classify.Speaker, id string, isFinal bool) string {
	if id != "" {
		return id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	synth, ok := s.openSynth[speaker]
	if !ok {
		s.seq++
		synth = fmt.Sprintf("synth-%d", s.seq)
		s.openSynth[speaker] = synth
	}
	if isFinal {
		delete(s.openSynth, speaker)
	}
	return synth
}

// deliver writes a tool result back to the channel and prompts the
// model to continue. Each frame gets a bounded retry budget; a result
// that cannot be delivered is logged as a delivery failure and dropped,
// never re-dispatched.
func (s *Session) deliver(ctx context.Context, channel Channel, result tools.Result) {
	output := protocol.NewToolOutput(result.CallID, result.Output())
	if err := s.sendWithRetry(ctx, channel, output); err != nil {
		s.logger.Error("tool result delivery failed",
			"call_id", result.CallID, "error", core.NewDeliveryError(result.CallID, err))
		return
	}
	if err := s.sendWithRetry(ctx, channel, protocol.NewContinue()); err != nil {
		s.logger.Error("continuation delivery failed",
			"call_id", result.CallID, "error", core.NewDeliveryError(result.CallID, err))
	}
}

func (s *Session) sendWithRetry(ctx context.Context, channel Channel, frame any) error {
	var lastErr error
	for attempt := 0; attempt <= s.config.DeliveryRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr = channel.Send(ctx, frame); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.DeliveryBackoff):
		}
	}
	return lastErr
}
