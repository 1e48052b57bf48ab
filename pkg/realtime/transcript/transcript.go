// Package transcript maintains the ordered, append-only view of a
// session's conversation as streaming fragments arrive.
package transcript

import (
	"sync"

	"github.com/voltdesk/voltdesk/pkg/realtime/classify"
)

// Entry is one line of conversation. Text is mutable while Partial is
// true; finalizing an entry makes it immutable.
type Entry struct {
	CorrelationID string
	Speaker       classify.Speaker
	Text          string
	Partial       bool
	Order         int
}

// Log reconciles possibly-partial fragments into an ordered transcript.
// The log holds the full session history in memory; it is not persisted
// and is discarded at session teardown.
//
// Safe for concurrent use: the event pump and tool handlers (the
// conversation-email tool snapshots the transcript) touch it from
// different goroutines.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

// Upsert applies one fragment.
//
// Scanning runs from most-recent backward for a matching
// (speaker, correlationID) pair:
//   - found and still partial: the same logical utterance grew; overwrite
//     text and the partial flag in place.
//   - found but already final: a new utterance reused the id (model-side
//     id recycling); append a new entry rather than merging unrelated
//     utterances.
//   - not found: append.
//
// A later partial update never reorders its entry.
func (l *Log) Upsert(speaker classify.Speaker, correlationID, text string, isFinal bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Speaker != speaker || l.entries[i].CorrelationID != correlationID {
			continue
		}
		if l.entries[i].Partial {
			l.entries[i].Text = text
			l.entries[i].Partial = !isFinal
			return
		}
		break
	}

	l.entries = append(l.entries, Entry{
		CorrelationID: correlationID,
		Speaker:       speaker,
		Text:          text,
		Partial:       !isFinal,
		Order:         len(l.entries),
	})
}

// Snapshot returns the entries in append order.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
