package collector

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestPageBufferAppendAndSnapshot(t *testing.T) {
	buf := &PageBuffer[string]{}
	buf.Append("e1")
	buf.Append("e2")
	buf.Append("e3")

	got := buf.Snapshot()
	want := []string{"e1", "e2", "e3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPageBufferSnapshotIsACopy(t *testing.T) {
	buf := &PageBuffer[string]{}
	buf.Append("e1")

	snap := buf.Snapshot()
	buf.Clear()
	if len(snap) != 1 || snap[0] != "e1" {
		t.Error("snapshot mutated by a later clear")
	}
}

func TestPageBufferClearInPlace(t *testing.T) {
	buf := &PageBuffer[string]{}
	buf.Append("e1")
	buf.Append("e2")

	// An external holder keeps the same buffer pointer across the clear.
	held := buf
	buf.Clear()
	if held.Len() != 0 {
		t.Errorf("held reference shows %d events after clear", held.Len())
	}

	buf.Append("e4")
	if held.Len() != 1 {
		t.Errorf("held reference shows %d events after post-clear append", held.Len())
	}
}

func TestTrimBeforeLastMatch(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  []string
	}{
		{"match in middle", []string{"a", "NAV", "b", "NAV", "c"}, []string{"NAV", "c"}},
		{"match at start", []string{"NAV", "a", "b"}, []string{"NAV", "a", "b"}},
		{"match at end", []string{"a", "b", "NAV"}, []string{"NAV"}},
		{"no match clears", []string{"a", "b", "c"}, nil},
		{"empty buffer", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &PageBuffer[string]{}
			for _, item := range tt.items {
				buf.Append(item)
			}

			buf.TrimBeforeLastMatch(func(s string) bool { return s == "NAV" })

			got := buf.Snapshot()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("item %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCollectorDefaultPolicyClearsOnMainFrameNavigation(t *testing.T) {
	c := New[string](nil, nil)
	const id = proto.TargetTargetID("target-1")

	tp, fresh := c.track(id)
	if !fresh {
		t.Fatal("expected a fresh tracked page")
	}
	tp.buf.Append("e1")
	tp.buf.Append("e2")
	tp.buf.Append("e3")

	// Captured before navigation; must observe the in-place clear.
	held := c.Buffer(id)
	if held.Len() != 3 {
		t.Fatalf("expected 3 buffered events, got %d", held.Len())
	}

	c.onMainFrameNavigated(id)

	if held.Len() != 0 {
		t.Errorf("held buffer reference shows %d events after navigation", held.Len())
	}
	if got := c.Data(id); len(got) != 0 {
		t.Errorf("expected empty data after navigation, got %v", got)
	}
}

func TestCollectorDataForUntrackedPage(t *testing.T) {
	c := New[string](nil, nil)
	if got := c.Data("never-tracked"); len(got) != 0 {
		t.Errorf("expected empty data for untracked target, got %v", got)
	}
	if c.Buffer("never-tracked") != nil {
		t.Error("expected nil buffer for untracked target")
	}
}

func TestCollectorTrackIsIdempotent(t *testing.T) {
	c := New[string](nil, nil)
	const id = proto.TargetTargetID("target-1")

	tp1, fresh1 := c.track(id)
	tp2, fresh2 := c.track(id)
	if !fresh1 || fresh2 {
		t.Error("expected only the first track to be fresh")
	}
	if tp1 != tp2 {
		t.Error("re-tracking must return the existing entry")
	}
	if c.Tracked() != 1 {
		t.Errorf("expected 1 tracked page, got %d", c.Tracked())
	}
}

func TestCollectorUntrackDropsBuffer(t *testing.T) {
	c := New[string](nil, nil)
	const id = proto.TargetTargetID("target-1")

	tp, _ := c.track(id)
	tp.buf.Append("e1")

	c.untrack(id)

	if c.Tracked() != 0 {
		t.Errorf("expected 0 tracked pages, got %d", c.Tracked())
	}
	if c.Buffer(id) != nil {
		t.Error("expected buffer to be dropped on untrack")
	}
	// Untracking twice must be harmless.
	c.untrack(id)
}

func TestCollectorNavigationOnUntrackedTarget(t *testing.T) {
	c := New[string](nil, nil)
	// Must not panic or create state.
	c.onMainFrameNavigated("ghost")
	if c.Tracked() != 0 {
		t.Errorf("navigation on untracked target created state")
	}
}
