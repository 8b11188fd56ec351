package dialog

import "testing"

func tone(n int, amp int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func TestEchoFilterDetectsReplayedAudio(t *testing.T) {
	f := NewEchoFilter(16000)
	played := tone(1600, 20000)
	f.RecordPlayed(played)

	if !f.IsEcho(played[100:600]) {
		t.Fatal("expected a slice of the exact played audio to be flagged as echo")
	}
}

func TestEchoFilterIgnoresUnrelatedAudio(t *testing.T) {
	f := NewEchoFilter(16000)
	f.RecordPlayed(tone(1600, 20000))

	silence := make([]int16, 500)
	if f.IsEcho(silence) {
		t.Error("silence should not correlate with played tone")
	}
}

func TestEchoFilterClearForgetsHistory(t *testing.T) {
	f := NewEchoFilter(16000)
	played := tone(1600, 20000)
	f.RecordPlayed(played)
	f.Clear()

	if f.IsEcho(played[:500]) {
		t.Error("expected no echo match after Clear")
	}
}

func TestEchoFilterDisabled(t *testing.T) {
	f := NewEchoFilter(16000)
	played := tone(1600, 20000)
	f.RecordPlayed(played)
	f.SetEnabled(false)

	if f.IsEcho(played[:500]) {
		t.Error("expected disabled filter to never report echo")
	}
}
