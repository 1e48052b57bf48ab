// Package protocol defines the wire-level frames exchanged with the
// upstream realtime service over the duplex event channel.
//
// Inbound events arrive in several envelope variants depending on the
// upstream's mood (the kind discriminator moves between "type", "event",
// "name" and "topic"; payloads nest under "item", "output", "content",
// "payload" or "message"). RawEvent therefore stays loosely typed and the
// classifier applies ordered extraction rules over it. Outbound frames are
// the small fixed set the engine writes and are fully typed.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawEvent is one decoded inbound frame. No shape invariants beyond
// "decodable as structured data"; unrecognized shapes are legal.
type RawEvent map[string]any

// DecodeRawEvent decodes an inbound text frame into a RawEvent.
//
// Array frames pick the first element carrying something useful
// (content, transcript, name or type), falling back to the first element.
// Non-JSON frames are wrapped as {"text": <raw>} rather than rejected.
func DecodeRawEvent(data []byte) (RawEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty event frame")
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return RawEvent{"text": trimmed}, nil
	}

	switch v := decoded.(type) {
	case map[string]any:
		return RawEvent(v), nil
	case []any:
		for _, elem := range v {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if m["content"] != nil || m["transcript"] != nil || m["name"] != nil || m["type"] != nil {
				return RawEvent(m), nil
			}
		}
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				return RawEvent(m), nil
			}
		}
		return RawEvent{}, nil
	case string:
		return RawEvent{"text": v}, nil
	default:
		return RawEvent{}, nil
	}
}

// String returns the first non-empty string value among the given keys.
func (e RawEvent) String(keys ...string) string {
	for _, key := range keys {
		if s, ok := e[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Bool returns true if any of the given keys holds a true value.
func (e RawEvent) Bool(keys ...string) bool {
	for _, key := range keys {
		if b, ok := e[key].(bool); ok && b {
			return true
		}
	}
	return false
}

// Map returns the nested object under key, if present.
func (e RawEvent) Map(key string) (map[string]any, bool) {
	m, ok := e[key].(map[string]any)
	return m, ok
}

// Slice returns the nested array under key, if present.
func (e RawEvent) Slice(key string) ([]any, bool) {
	s, ok := e[key].([]any)
	return s, ok
}

// Outbound frame kinds written by the orchestrator.
const (
	TypeItemCreate         = "conversation.item.create"
	TypeResponseCreate     = "response.create"
	ItemFunctionCallOutput = "function_call_output"
)

// FunctionCallOutput carries a serialized tool result back into the
// conversation, tagged with the originating call id.
type FunctionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ItemCreate wraps a conversation item for the upstream service.
type ItemCreate struct {
	Type string             `json:"type"`
	Item FunctionCallOutput `json:"item"`
}

// ResponseCreate asks the model to resume generation.
type ResponseCreate struct {
	Type string `json:"type"`
}

// NewToolOutput builds the write-back frame for a tool result.
func NewToolOutput(callID, output string) ItemCreate {
	return ItemCreate{
		Type: TypeItemCreate,
		Item: FunctionCallOutput{
			Type:   ItemFunctionCallOutput,
			CallID: callID,
			Output: output,
		},
	}
}

// NewContinue builds the generation-continuation frame sent immediately
// after a tool output.
func NewContinue() ResponseCreate {
	return ResponseCreate{Type: TypeResponseCreate}
}
