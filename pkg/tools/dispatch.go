package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voltdesk/voltdesk/pkg/core"
)

const defaultToolTimeout = 8 * time.Second

// Request is one decoded tool-invocation request awaiting dispatch.
type Request struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

// Result is the outcome of a dispatch, always tagged with the originating
// call id so the model can associate cause and effect regardless of
// completion order.
type Result struct {
	CallID  string      `json:"call_id"`
	Success bool        `json:"success"`
	Payload any         `json:"payload,omitempty"`
	Error   *core.Error `json:"error,omitempty"`
}

// Output serializes the result for write-back onto the live channel.
func (r Result) Output() string {
	if r.Success {
		data, err := json.Marshal(r.Payload)
		if err != nil {
			data, _ = json.Marshal(map[string]any{
				"success": false,
				"error":   fmt.Sprintf("marshal tool payload: %v", err),
			})
		}
		return string(data)
	}
	data, _ := json.Marshal(map[string]any{
		"success":   false,
		"error":     r.Error.Message,
		"errorCode": strings.ToUpper(string(r.Error.Type)),
	})
	return string(data)
}

// Dispatcher validates and executes tool-invocation requests against a
// registry. Handler errors never cross the dispatcher boundary as raw
// errors; every path produces a Result.
type Dispatcher struct {
	registry       *Registry
	logger         *slog.Logger
	defaultTimeout time.Duration
}

func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:       registry,
		logger:         logger,
		defaultTimeout: defaultToolTimeout,
	}
}

// WithDefaultTimeout overrides the fallback timeout applied to
// registrations that do not declare their own.
func (d *Dispatcher) WithDefaultTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.defaultTimeout = timeout
	}
	return d
}

// Dispatch runs one request to completion. It never retries: retries, if
// desired, are the model's decision on the next turn.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	name := strings.TrimSpace(req.Name)

	reg, ok := d.registry.Lookup(name)
	if !ok {
		d.logger.Warn("dispatch of unknown tool", "tool", name, "call_id", req.CallID)
		return Result{
			CallID: req.CallID,
			Error:  core.NewToolError(core.ErrToolUnknown, req.CallID, fmt.Sprintf("tool %q is not registered", name)),
		}
	}

	args, err := parseArguments(req.Arguments)
	if err != nil {
		return Result{
			CallID: req.CallID,
			Error:  core.NewToolError(core.ErrToolInvalidArgs, req.CallID, fmt.Sprintf("invalid arguments for %q: %v", name, err)),
		}
	}
	if err := validateRequired(reg.InputSchema, args); err != nil {
		return Result{
			CallID: req.CallID,
			Error:  core.NewToolError(core.ErrToolInvalidArgs, req.CallID, err.Error()),
		}
	}

	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	normalized, err := json.Marshal(args)
	if err != nil {
		return Result{
			CallID: req.CallID,
			Error:  core.NewToolError(core.ErrToolInvalidArgs, req.CallID, fmt.Sprintf("invalid arguments for %q: %v", name, err)),
		}
	}

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := reg.Handler(callCtx, normalized)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil {
			// Session is stopping; the handler is cancelled cooperatively.
			return Result{
				CallID: req.CallID,
				Error:  core.NewToolError(core.ErrToolFailed, req.CallID, "tool execution cancelled"),
			}
		}
		d.logger.Warn("tool dispatch timed out", "tool", name, "call_id", req.CallID, "timeout", timeout)
		return Result{
			CallID: req.CallID,
			Error:  core.NewToolError(core.ErrToolTimeout, req.CallID, fmt.Sprintf("tool %q exceeded its %s timeout", name, timeout)),
		}
	case out := <-done:
		if out.err != nil {
			d.logger.Warn("tool handler failed", "tool", name, "call_id", req.CallID, "error", out.err)
			return Result{
				CallID: req.CallID,
				Error:  core.NewToolError(core.ErrToolFailed, req.CallID, out.err.Error()),
			}
		}
		return Result{CallID: req.CallID, Success: true, Payload: out.payload}
	}
}

// parseArguments accepts either an encoded object or a string containing
// one (the upstream sends both). A payload that cannot be parsed yields
// an error instead of propagating a decode panic upward.
func parseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, nil
	}
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if strings.TrimSpace(wrapped) == "" {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal([]byte(wrapped), &args); err != nil {
			return nil, fmt.Errorf("argument string is not an object: %w", err)
		}
		return args, nil
	}
	return nil, fmt.Errorf("arguments are not an object")
}

func validateRequired(schema *JSONSchema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, name := range schema.Required {
		value, present := args[name]
		if !present || value == nil {
			return fmt.Errorf("missing required argument %q", name)
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	return nil
}
