package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voltdesk/voltdesk/pkg/core"
	"github.com/voltdesk/voltdesk/pkg/realtime/classify"
	"github.com/voltdesk/voltdesk/pkg/realtime/protocol"
	"github.com/voltdesk/voltdesk/pkg/tools"
)

type fakeChannel struct {
	events chan protocol.RawEvent

	mu      sync.Mutex
	frames  []any
	sendErr error
	err     error

	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan protocol.RawEvent, 16)}
}

func (f *fakeChannel) Send(ctx context.Context, frame any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeChannel) Events() <-chan protocol.RawEvent { return f.events }

func (f *fakeChannel) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeChannel) sentFrames() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.frames))
	copy(out, f.frames)
	return out
}

type fakeNegotiator struct {
	info SessionInfo
	err  error
}

func (f *fakeNegotiator) CreateSession(ctx context.Context) (SessionInfo, error) {
	return f.info, f.err
}

type fakeDialer struct {
	channel Channel
	err     error
}

func (f *fakeDialer) Dial(ctx context.Context, info SessionInfo) (Channel, error) {
	return f.channel, f.err
}

func newTestRegistry(t *testing.T, extra ...tools.Registration) *tools.Registry {
	t.Helper()
	regs := append([]tools.Registration{
		tools.Make("echo", "echoes its input", func(ctx context.Context, input struct {
			Value string `json:"value"`
		}) (any, error) {
			return map[string]any{"value": input.Value}, nil
		}),
	}, extra...)
	registry, err := tools.NewRegistry(regs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return registry
}

func newTestSession(t *testing.T, channel Channel, registry *tools.Registry) *Session {
	t.Helper()
	session, err := NewSession(Dependencies{
		Negotiator: &fakeNegotiator{info: SessionInfo{SessionToken: "tok", JoinAddress: "wss://example.test/live"}},
		Dialer:     &fakeDialer{channel: channel},
		Runner:     tools.NewDispatcher(registry, nil),
	}, Config{ShutdownGrace: time.Second, DeliveryRetries: 1, DeliveryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	session := newTestSession(t, channel, newTestRegistry(t))

	if got := session.State(); got != StateIdle {
		t.Fatalf("state=%q, want idle", got)
	}
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("state=%q, want active", got)
	}

	channel.events <- protocol.RawEvent{
		"type":    "conversation.item.input_audio_transcription.completed",
		"item_id": "item-1",
		"transcript": "my power bill looks wrong",
	}
	waitFor(t, "transcript entry", func() bool { return session.Transcript().Len() == 1 })

	session.Stop()
	if got := session.State(); got != StateClosed {
		t.Fatalf("state=%q, want closed", got)
	}

	entries := session.Transcript().Snapshot()
	if entries[0].Speaker != classify.SpeakerUser || entries[0].Partial {
		t.Fatalf("entry=%+v", entries[0])
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	session := newTestSession(t, channel, newTestRegistry(t))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	session.Stop()
	session.Stop()
	session.Stop()
	if got := session.State(); got != StateClosed {
		t.Fatalf("state=%q, want closed", got)
	}
}

func TestSessionStartWhileActiveRejected(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	session := newTestSession(t, channel, newTestRegistry(t))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer session.Stop()

	err := session.Start(context.Background())
	if err == nil {
		t.Fatal("second Start must fail")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrInvalidRequest {
		t.Fatalf("error = %v, want invalid_request_error", err)
	}
}

func TestSessionNegotiationFailure(t *testing.T) {
	t.Parallel()
	session, err := NewSession(Dependencies{
		Negotiator: &fakeNegotiator{err: core.NewTransportError("negotiate", errors.New("boom"))},
		Dialer:     &fakeDialer{channel: newFakeChannel()},
		Runner:     tools.NewDispatcher(newTestRegistry(t), nil),
	}, Config{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := session.Start(context.Background()); err == nil {
		t.Fatal("Start must surface the negotiation error")
	}
	if got := session.State(); got != StateFailed {
		t.Fatalf("state=%q, want failed", got)
	}
}

func TestSessionChannelErrorFailsSession(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	channel.err = core.NewTransportError("read", errors.New("connection reset"))
	session := newTestSession(t, channel, newTestRegistry(t))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	close(channel.events)
	waitFor(t, "failed state", func() bool { return session.State() == StateFailed })
}

func TestSessionToolWriteBack(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	session := newTestSession(t, channel, newTestRegistry(t))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer session.Stop()

	channel.events <- protocol.RawEvent{
		"type": "response.done",
		"response": map[string]any{
			"output": []any{
				map[string]any{
					"type":      "function_call",
					"name":      "echo",
					"call_id":   "call-1",
					"arguments": `{"value":"hi"}`,
				},
			},
		},
	}

	waitFor(t, "two outbound frames", func() bool { return len(channel.sentFrames()) == 2 })
	frames := channel.sentFrames()

	item, ok := frames[0].(protocol.ItemCreate)
	if !ok {
		t.Fatalf("frame[0] = %T, want ItemCreate", frames[0])
	}
	if item.Type != protocol.TypeItemCreate || item.Item.CallID != "call-1" {
		t.Fatalf("item=%+v", item)
	}
	if item.Item.Output != `{"value":"hi"}` {
		t.Fatalf("output=%q", item.Item.Output)
	}
	cont, ok := frames[1].(protocol.ResponseCreate)
	if !ok || cont.Type != protocol.TypeResponseCreate {
		t.Fatalf("frame[1] = %#v, want ResponseCreate", frames[1])
	}
}

func TestSessionConcurrentToolOrdering(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(t,
		tools.Make("slow_lookup", "", func(ctx context.Context, input struct{}) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return map[string]any{"tool": "slow"}, nil
		}),
		tools.Make("fast_lookup", "", func(ctx context.Context, input struct{}) (any, error) {
			return map[string]any{"tool": "fast"}, nil
		}),
	)
	channel := newFakeChannel()
	session := newTestSession(t, channel, registry)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer session.Stop()

	call := func(name, id string) protocol.RawEvent {
		return protocol.RawEvent{
			"type": "function_call",
			"name": name, "call_id": id, "arguments": "{}",
		}
	}
	channel.events <- call("slow_lookup", "call-slow")
	channel.events <- call("fast_lookup", "call-fast")

	waitFor(t, "four outbound frames", func() bool { return len(channel.sentFrames()) == 4 })

	var order []string
	for _, frame := range channel.sentFrames() {
		if item, ok := frame.(protocol.ItemCreate); ok {
			order = append(order, item.Item.CallID)
		}
	}
	if len(order) != 2 || order[0] != "call-fast" || order[1] != "call-slow" {
		t.Fatalf("delivery order=%v, want fast before slow", order)
	}
}

func TestSessionEmptyCallIDNotDispatched(t *testing.T) {
	t.Parallel()
	dispatched := make(chan struct{}, 1)
	registry := newTestRegistry(t,
		tools.Make("tracked", "", func(ctx context.Context, input struct{}) (any, error) {
			dispatched <- struct{}{}
			return nil, nil
		}),
	)
	channel := newFakeChannel()
	session := newTestSession(t, channel, registry)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer session.Stop()

	channel.events <- protocol.RawEvent{
		"type": "function_call",
		"name": "tracked", "arguments": "{}",
	}

	select {
	case <-dispatched:
		t.Fatal("invocation without call id must not be dispatched")
	case <-time.After(150 * time.Millisecond):
	}
	if got := len(channel.sentFrames()); got != 0 {
		t.Fatalf("frames=%d, want none", got)
	}
}

func TestSessionDeliveryFailureIsBounded(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	channel.sendErr = fmt.Errorf("write: broken pipe")
	session := newTestSession(t, channel, newTestRegistry(t))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	channel.events <- protocol.RawEvent{
		"type": "function_call",
		"name": "echo", "call_id": "call-1", "arguments": `{"value":"x"}`,
	}

	// Retries are bounded, so Stop must not hang behind delivery attempts.
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	session.Stop()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("stop took %s, delivery retries are unbounded", elapsed)
	}
	if got := session.State(); got != StateClosed {
		t.Fatalf("state=%q, want closed", got)
	}
}

func TestSessionSynthesizedCorrelationIDs(t *testing.T) {
	t.Parallel()
	channel := newFakeChannel()
	session := newTestSession(t, channel, newTestRegistry(t))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer session.Stop()

	// Id-less fragments of one utterance, then an id-less final.
	channel.events <- protocol.RawEvent{"type": "response.output_text.delta", "text": "let me check"}
	channel.events <- protocol.RawEvent{"type": "response.output_text.delta", "text": "let me check that bill"}
	channel.events <- protocol.RawEvent{"type": "response.done", "text": "let me check that bill for you"}

	waitFor(t, "single reconciled entry", func() bool {
		entries := session.Transcript().Snapshot()
		return len(entries) == 1 && !entries[0].Partial
	})
	entries := session.Transcript().Snapshot()
	if entries[0].Text != "let me check that bill for you" {
		t.Fatalf("text=%q", entries[0].Text)
	}

	// The next id-less utterance gets a fresh synthetic id.
	channel.events <- protocol.RawEvent{"type": "response.output_text.delta", "text": "anything else"}
	waitFor(t, "second entry", func() bool { return session.Transcript().Len() == 2 })
}
