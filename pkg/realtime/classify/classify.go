// Package classify turns loosely-typed inbound events into the small set
// of semantic events the session state machine acts on.
//
// The upstream protocol is not contractually stable: the kind
// discriminator moves between several field names and the same semantic
// event appears under several event-name variants. Classification is
// therefore an ordered list of extraction rules plus case-insensitive
// substring matching against a small fixed pattern set, and it never
// fails — anything that matches nothing becomes Unrecognized.
package classify

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/voltdesk/voltdesk/pkg/realtime/protocol"
)

// Speaker identifies the side of the conversation an utterance belongs to.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Event is a classified semantic event.
type Event interface {
	classifiedEventType() string
}

// SpeechDelta is a partial utterance fragment still being transcribed.
type SpeechDelta struct {
	Speaker       Speaker
	CorrelationID string
	Text          string
}

func (e SpeechDelta) classifiedEventType() string { return "speech_delta" }

// SpeechFinal is a committed utterance.
type SpeechFinal struct {
	Speaker       Speaker
	CorrelationID string
	Text          string
}

func (e SpeechFinal) classifiedEventType() string { return "speech_final" }

// ToolInvocation is a function/tool call request embedded in the stream.
// CallID may be empty; the dispatcher rejects such requests as
// undispatchable rather than dropping them silently.
type ToolInvocation struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

func (e ToolInvocation) classifiedEventType() string { return "tool_invocation" }

// Unrecognized is an event that matched nothing. Dropped after logging.
type Unrecognized struct {
	Kind string
}

func (e Unrecognized) classifiedEventType() string { return "unrecognized" }

// Kind discriminator extraction order. The upstream carries the event
// kind under any of these keys; the first non-empty wins.
var kindKeys = []string{"type", "event", "name", "topic"}

// Event-name patterns, matched as case-insensitive substrings.
var (
	userDeltaPatterns = []string{"audio_transcription.delta"}
	userFinalPatterns = []string{"audio_transcription.completed", "audio_transcription.done"}

	assistantFinalPatterns = []string{"response.done", "response.output_item.done", "response.content_part"}
	assistantDeltaPatterns = []string{"output_text.delta", "audio_transcript.delta", "text.delta"}
)

// bareTokenRe matches protocol-tag-shaped strings (word characters, dots
// and hyphens only, no whitespace). Extracted "text" of this shape is a
// leaked tag, not spoken content.
var bareTokenRe = regexp.MustCompile(`^[\w.\-]+$`)

// Classify maps one raw event to its semantic events.
//
// A single raw event can legitimately carry both assistant text and a
// tool-invocation item (a completed response does exactly that), so the
// result is a slice. An event matching nothing yields a single
// Unrecognized entry, never an error.
func Classify(ev protocol.RawEvent) []Event {
	if len(ev) == 0 {
		return []Event{Unrecognized{}}
	}

	kind := ev.String(kindKeys...)
	var out []Event

	// The function-call scan runs regardless of the discriminator match:
	// a "response completed" event may carry a tool-invocation item and
	// ordinary assistant text at once, and both must surface.
	for _, call := range extractToolCalls(ev) {
		out = append(out, call)
	}

	text := sanitizeText(extractTranscript(ev), ev, kind)
	if text == "" {
		text = sanitizeText(extractText(ev), ev, kind)
	}

	switch {
	case matchesAny(kind, userDeltaPatterns), matchesAny(kind, userFinalPatterns):
		if text != "" {
			isFinal := matchesAny(kind, userFinalPatterns) || ev.Bool("is_final", "final")
			id := ev.String("item_id", "id")
			if isFinal {
				out = append(out, SpeechFinal{Speaker: SpeakerUser, CorrelationID: id, Text: text})
			} else {
				out = append(out, SpeechDelta{Speaker: SpeakerUser, CorrelationID: id, Text: text})
			}
		}
	case matchesAny(kind, assistantFinalPatterns):
		if text != "" {
			id := ev.String("item_id", "response_id", "id")
			out = append(out, SpeechFinal{Speaker: SpeakerAssistant, CorrelationID: id, Text: text})
		}
	case matchesAny(kind, assistantDeltaPatterns):
		if text != "" {
			id := ev.String("item_id", "response_id", "id")
			out = append(out, SpeechDelta{Speaker: SpeakerAssistant, CorrelationID: id, Text: text})
		}
	default:
		// Untyped transcript events default to assistant speech, final
		// only when the payload says so.
		if text != "" {
			id := ev.String("transcript_id", "item_id", "id", "sequence")
			if ev.Bool("is_final", "final", "committed") {
				out = append(out, SpeechFinal{Speaker: SpeakerAssistant, CorrelationID: id, Text: text})
			} else {
				out = append(out, SpeechDelta{Speaker: SpeakerAssistant, CorrelationID: id, Text: text})
			}
		}
	}

	if len(out) == 0 {
		return []Event{Unrecognized{Kind: kind}}
	}
	return out
}

func matchesAny(kind string, patterns []string) bool {
	if kind == "" {
		return false
	}
	lower := strings.ToLower(kind)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// sanitizeText rejects extracted strings that are the event's own
// kind/name tag rather than spoken content.
func sanitizeText(text string, ev protocol.RawEvent, kind string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if trimmed == strings.TrimSpace(kind) {
		return ""
	}
	for _, key := range kindKeys {
		if tag := strings.TrimSpace(ev.String(key)); tag != "" && trimmed == tag {
			return ""
		}
	}
	if bareTokenRe.MatchString(trimmed) {
		return ""
	}
	return trimmed
}

// extractTranscript prefers explicit transcripts under content[*].
func extractTranscript(ev protocol.RawEvent) string {
	content, ok := ev.Slice("content")
	if ok && len(content) > 0 {
		pieces := make([]string, 0, len(content))
		for _, item := range content {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := m["transcript"].(string); ok && strings.TrimSpace(s) != "" {
				pieces = append(pieces, strings.TrimSpace(s))
				continue
			}
			if s := extractText(protocol.RawEvent(m)); s != "" {
				pieces = append(pieces, s)
			}
		}
		if len(pieces) > 0 {
			return strings.Join(pieces, "\n")
		}
	}

	if s, ok := ev["transcript"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := ev["content"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return ""
}

// extractText is the generic fallback: well-known keys first, then the
// nested payload/message envelopes.
func extractText(ev protocol.RawEvent) string {
	if s, ok := ev["text"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := ev["transcript"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if m, ok := ev.Map("payload"); ok {
		if s := extractText(protocol.RawEvent(m)); s != "" {
			return s
		}
	}
	if m, ok := ev.Map("message"); ok {
		if s := extractText(protocol.RawEvent(m)); s != "" {
			return s
		}
	}
	return ""
}

// extractToolCalls scans for function/tool-call items in every shape the
// upstream has been seen to use.
func extractToolCalls(ev protocol.RawEvent) []ToolInvocation {
	var calls []ToolInvocation

	appendCall := func(m map[string]any) {
		call, ok := toolCallFromMap(m)
		if ok {
			calls = append(calls, call)
		}
	}

	if item, ok := ev.Map("item"); ok {
		if t, _ := item["type"].(string); t == "function_call" {
			appendCall(item)
		}
	}
	if output, ok := ev.Slice("output"); ok {
		for _, elem := range output {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t == "function_call" {
				appendCall(m)
			}
		}
	}
	if t, _ := ev["type"].(string); t == "function_call" {
		appendCall(ev)
	}
	if m, ok := ev.Map("tool_call"); ok {
		appendCall(m)
	}

	// response.done nests its output under response.output.
	if resp, ok := ev.Map("response"); ok {
		if output, ok := resp["output"].([]any); ok {
			for _, elem := range output {
				m, ok := elem.(map[string]any)
				if !ok {
					continue
				}
				if t, _ := m["type"].(string); t == "function_call" {
					appendCall(m)
				}
			}
		}
	}

	return calls
}

func toolCallFromMap(m map[string]any) (ToolInvocation, bool) {
	raw := protocol.RawEvent(m)
	name := raw.String("name", "tool")
	if name == "" {
		if fn, ok := raw.Map("function"); ok {
			name = protocol.RawEvent(fn).String("name")
		}
	}
	if name == "" {
		return ToolInvocation{}, false
	}

	callID := raw.String("call_id", "id", "tool_call_id")

	var args json.RawMessage
	switch v := m["arguments"].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			args = json.RawMessage(v)
		}
	case map[string]any:
		if data, err := json.Marshal(v); err == nil {
			args = data
		}
	}
	if args == nil {
		if v, ok := m["args"].(map[string]any); ok {
			if data, err := json.Marshal(v); err == nil {
				args = data
			}
		}
	}
	if args == nil {
		args = json.RawMessage(`{}`)
	}

	return ToolInvocation{CallID: callID, Name: name, Arguments: args}, true
}
