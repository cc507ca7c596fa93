package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscriber) (Event, bool) {
	t.Helper()
	select {
	case e, ok := <-sub:
		return e, ok
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no event delivered")
		return Event{}, false
	}
}

func nothingPending(t *testing.T, sub Subscriber) {
	t.Helper()
	select {
	case e := <-sub:
		t.Errorf("unexpected event %s", e.Name)
	default:
	}
}

func TestCategory(t *testing.T) {
	tests := map[string]string{
		"choice.selected":         "choice",
		"audio.playback_finished": "audio",
		"nodot":                   "nodot",
		"":                        "",
	}
	for name, want := range tests {
		if got := Category(name); got != want {
			t.Errorf("Category(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	base := SubscriberCount()
	a, b := Subscribe(), Subscribe("pace")
	if got := SubscriberCount(); got != base+2 {
		t.Fatalf("expected %d subscribers, got %d", base+2, got)
	}

	Unsubscribe(a)
	Unsubscribe(a)
	if got := SubscriberCount(); got != base+1 {
		t.Errorf("double unsubscribe changed count to %d", got)
	}
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
	Unsubscribe(b)
}

func TestCategoryFilter(t *testing.T) {
	Clear()
	all := Subscribe()
	defer Unsubscribe(all)
	choices := Subscribe("choice", "charge")
	defer Unsubscribe(choices)

	Emit("info", "pace.achieved", "", nil)
	Emit("info", "choice.presented", "", map[string]interface{}{"moment_id": "third"})
	Emit("info", "charge.complete", "", nil)

	for _, want := range []string{"pace.achieved", "choice.presented", "charge.complete"} {
		if e, _ := receive(t, all); e.Name != want {
			t.Errorf("unfiltered: expected %s, got %s", want, e.Name)
		}
	}
	for _, want := range []string{"choice.presented", "charge.complete"} {
		if e, _ := receive(t, choices); e.Name != want {
			t.Errorf("filtered: expected %s, got %s", want, e.Name)
		}
	}
	nothingPending(t, choices)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	Clear()
	sub := Subscribe("stats")
	defer Unsubscribe(sub)
	before := Dropped()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			Emit("info", "stats.changed", "", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}

	if got := Dropped() - before; got < 10 {
		t.Errorf("expected at least 10 drops, got %d", got)
	}
	if len(sub) != subscriberBuffer {
		t.Errorf("expected a full buffer of %d, got %d", subscriberBuffer, len(sub))
	}
}

func TestRecentEventsWindow(t *testing.T) {
	Clear()
	names := []string{"mission.started", "moment.started", "pace.sampled", "moment.completed", "pace.lost"}
	for _, n := range names {
		Emit("info", n, "", nil)
	}

	tests := []struct {
		name       string
		n          int
		categories []string
		want       []string
	}{
		{"last two", 2, nil, []string{"moment.completed", "pace.lost"}},
		{"more than held", 100, nil, names},
		{"zero means all", 0, nil, names},
		{"one category", 0, []string{"moment"}, []string{"moment.started", "moment.completed"}},
		{"category tail", 1, []string{"pace"}, []string{"pace.lost"}},
		{"no match", 5, []string{"audio"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecentEvents(tt.n, tt.categories...)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].Name != tt.want[i] {
					t.Errorf("event %d: expected %s, got %s", i, tt.want[i], got[i].Name)
				}
			}
		})
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	subs := []Subscriber{Subscribe(), Subscribe("audio"), Subscribe()}
	CloseAllSubscribers()

	for i, sub := range subs {
		if _, ok := receive(t, sub); ok {
			t.Errorf("subscriber %d still open", i)
		}
	}
	if got := SubscriberCount(); got != 0 {
		t.Errorf("expected no subscribers, got %d", got)
	}
	// already closed by shutdown
	Unsubscribe(subs[0])
}
