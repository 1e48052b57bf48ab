package transcript

import (
	"testing"

	"github.com/voltdesk/voltdesk/pkg/realtime/classify"
)

func TestUpsert_DeltasMergeIntoOneEntry(t *testing.T) {
	t.Parallel()
	log := NewLog()
	log.Upsert(classify.SpeakerUser, "item_1", "でん", false)
	log.Upsert(classify.SpeakerUser, "item_1", "電気料", false)
	log.Upsert(classify.SpeakerUser, "item_1", "電気料金について", false)

	snap := log.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("entries=%d, want 1", len(snap))
	}
	if snap[0].Text != "電気料金について" || !snap[0].Partial {
		t.Fatalf("entry=%+v", snap[0])
	}
}

func TestUpsert_FinalizedEntryIsImmutable(t *testing.T) {
	t.Parallel()
	log := NewLog()
	log.Upsert(classify.SpeakerUser, "item_1", "こんにちは", true)
	// Same id after finalization: a new utterance, never a mutation.
	log.Upsert(classify.SpeakerUser, "item_1", "ありがとうございます", false)
	log.Upsert(classify.SpeakerUser, "item_1", "ありがとうございました", true)

	snap := log.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("entries=%d, want 2", len(snap))
	}
	if snap[0].Text != "こんにちは" || snap[0].Partial {
		t.Fatalf("finalized entry mutated: %+v", snap[0])
	}
	if snap[1].Text != "ありがとうございました" || snap[1].Partial {
		t.Fatalf("entry=%+v", snap[1])
	}
}

func TestUpsert_SameIDDifferentSpeakersStaySeparate(t *testing.T) {
	t.Parallel()
	log := NewLog()
	log.Upsert(classify.SpeakerUser, "x", "user text", false)
	log.Upsert(classify.SpeakerAssistant, "x", "assistant text", false)

	snap := log.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("entries=%d, want 2", len(snap))
	}
}

func TestUpsert_PartialUpdateKeepsAppendOrder(t *testing.T) {
	t.Parallel()
	log := NewLog()
	log.Upsert(classify.SpeakerUser, "a", "first", false)
	log.Upsert(classify.SpeakerAssistant, "b", "second", true)
	log.Upsert(classify.SpeakerUser, "a", "first, updated", true)

	snap := log.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("entries=%d, want 2", len(snap))
	}
	if snap[0].CorrelationID != "a" || snap[0].Text != "first, updated" {
		t.Fatalf("entry 0 = %+v", snap[0])
	}
	if snap[1].CorrelationID != "b" {
		t.Fatalf("entry 1 = %+v", snap[1])
	}
	if snap[0].Order != 0 || snap[1].Order != 1 {
		t.Fatalf("orders = %d, %d", snap[0].Order, snap[1].Order)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	log := NewLog()
	log.Upsert(classify.SpeakerUser, "a", "original", false)
	snap := log.Snapshot()
	snap[0].Text = "mutated"
	if log.Snapshot()[0].Text != "original" {
		t.Fatal("snapshot must not alias internal state")
	}
}
