package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	op string
	id string
	rs string
}

type mockBackend struct {
	mu       sync.Mutex
	calls    []call
	playErr  error
	speakErr error
	ready    bool
	leadIn   time.Duration
}

func (b *mockBackend) record(c call) {
	b.mu.Lock()
	b.calls = append(b.calls, c)
	b.mu.Unlock()
}

func (b *mockBackend) Play(resource, playbackID string) error {
	b.record(call{op: "play", id: playbackID, rs: resource})
	return b.playErr
}

func (b *mockBackend) Stop(playbackID string) error {
	b.record(call{op: "stop", id: playbackID})
	return nil
}

func (b *mockBackend) Speak(text, utteranceID string, leadIn time.Duration) error {
	b.mu.Lock()
	b.leadIn = leadIn
	b.mu.Unlock()
	b.record(call{op: "speak", id: utteranceID, rs: text})
	return b.speakErr
}

func (b *mockBackend) StopSpeech(utteranceID string) error {
	b.record(call{op: "stop_speech", id: utteranceID})
	return nil
}

func (b *mockBackend) SpeechReady() bool { return b.ready }

func (b *mockBackend) last(op string) call {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.calls) - 1; i >= 0; i-- {
		if b.calls[i].op == op {
			return b.calls[i]
		}
	}
	return call{}
}

func (b *mockBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func TestPlaybackQueueIsFIFO(t *testing.T) {
	b := &mockBackend{}
	m := NewMixer(b, 0, nil)

	var done []string
	m.RequestPlayback("a", func() { done = append(done, "a") })
	m.RequestPlayback("b", func() { done = append(done, "b") })

	m.Pump()
	first := b.last("play")
	if first.rs != "a" {
		t.Fatalf("expected a to play first, got %q", first.rs)
	}

	// Output is held until a finishes.
	m.Pump()
	if b.count("play") != 1 {
		t.Fatal("second request must wait for the first to finish")
	}

	m.PlaybackFinished(first.id)
	m.Pump()
	second := b.last("play")
	if second.rs != "b" {
		t.Fatalf("expected b second, got %q", second.rs)
	}
	m.PlaybackFinished(second.id)

	if len(done) != 2 || done[0] != "a" || done[1] != "b" {
		t.Errorf("unexpected completion order %v", done)
	}
	if m.Busy() {
		t.Error("mixer should be idle")
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	b := &mockBackend{}
	m := NewMixer(b, 0, nil)

	fired := 0
	m.RequestPlayback("door", func() { fired++ })
	m.Pump()
	id := b.last("play").id

	m.PlaybackFinished("not-" + id)
	if fired != 0 {
		t.Fatal("unknown id must not complete playback")
	}
	m.PlaybackFinished(id)
	m.PlaybackFinished(id)
	if fired != 1 {
		t.Errorf("expected exactly one completion, got %d", fired)
	}
}

func TestCancelPlaybackDropsQueuedAndPlaying(t *testing.T) {
	b := &mockBackend{}
	m := NewMixer(b, 0, nil)

	fired := 0
	m.RequestPlayback("door", func() { fired++ })
	m.RequestPlayback("wind", nil)
	m.RequestPlayback("door", func() { fired++ })
	m.Pump()
	playing := b.last("play").id

	m.CancelPlayback("door")
	if b.last("stop").id != playing {
		t.Error("playing request should be stopped")
	}
	if m.Pending() != 1 {
		t.Errorf("expected only wind queued, got %d", m.Pending())
	}
	m.PlaybackFinished(playing)
	if fired != 0 {
		t.Errorf("cancelled callbacks fired %d times", fired)
	}

	m.Pump()
	if b.last("play").rs != "wind" {
		t.Errorf("expected wind to play after cancel, got %q", b.last("play").rs)
	}
}

func TestExclusiveBlocksPlayback(t *testing.T) {
	b := &mockBackend{}
	m := NewMixer(b, 0, nil)

	if !m.AcquireExclusive() {
		t.Fatal("idle mixer should grant exclusive output")
	}
	if m.AcquireExclusive() {
		t.Fatal("exclusive output must not be granted twice")
	}
	m.RequestPlayback("door", nil)
	m.Pump()
	if b.count("play") != 0 {
		t.Fatal("playback must wait for exclusive release")
	}

	m.Release()
	m.Pump()
	if b.count("play") != 1 {
		t.Fatal("playback should start after release")
	}
	if m.AcquireExclusive() {
		t.Error("exclusive must not be granted during playback")
	}
}

func TestSpeechCompletionRoutedByID(t *testing.T) {
	b := &mockBackend{ready: true}
	m := NewMixer(b, 0, nil)

	fired := 0
	m.Speak("hello", "start", func() { fired++ })
	u := b.last("speak")
	if u.rs != "hello" || u.id == "" || u.id == "start" {
		t.Fatalf("unexpected speak call %+v", u)
	}
	if b.leadIn != DefaultLeadIn {
		t.Errorf("expected default lead-in, got %v", b.leadIn)
	}

	m.SpeechFinished("start")
	if fired != 0 {
		t.Fatal("completion must match the backend utterance id")
	}
	m.SpeechFinished(u.id)
	if fired != 1 {
		t.Errorf("expected one completion, got %d", fired)
	}
}

func TestStopSpeechDropsCallback(t *testing.T) {
	b := &mockBackend{}
	m := NewMixer(b, 0, nil)

	fired := 0
	m.Speak("hello", "start", func() { fired++ })
	id := b.last("speak").id
	m.StopSpeech()
	m.SpeechFinished(id)

	if fired != 0 {
		t.Error("stopped speech must not complete")
	}
	if b.last("stop_speech").id != id {
		t.Error("backend speech should be stopped")
	}
}

func TestBackendFailureCompletes(t *testing.T) {
	b := &mockBackend{playErr: errors.New("device offline"), speakErr: errors.New("device offline")}
	m := NewMixer(b, 0, nil)

	played, spoken := 0, 0
	m.RequestPlayback("door", func() { played++ })
	m.Pump()
	m.Speak("hello", "start", func() { spoken++ })

	if played != 1 || spoken != 1 {
		t.Errorf("failed output should complete, played=%d spoken=%d", played, spoken)
	}
	if m.Busy() {
		t.Error("failed output must not hold the mixer")
	}
}

func TestFocusLostStopsOutputAndNotifies(t *testing.T) {
	b := &mockBackend{}
	m := NewMixer(b, 0, nil)

	var notified time.Time
	m.OnFocusLost(func(now time.Time) { notified = now })

	fired := 0
	m.RequestPlayback("door", func() { fired++ })
	m.Pump()
	playing := b.last("play").id
	m.Speak("hello", "start", func() { fired++ })

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.FocusLost(now)

	if !notified.Equal(now) {
		t.Error("focus handler not called")
	}
	if b.last("stop").id != playing || b.count("stop_speech") != 1 {
		t.Error("focus loss should stop playback and speech")
	}
	if m.Busy() {
		t.Error("focus loss should release output")
	}
	m.PlaybackFinished(playing)
	if fired != 0 {
		t.Error("interrupted output must not complete")
	}
}

func TestSimulatedBackendCompletes(t *testing.T) {
	sim := NewSimulated()
	sim.PlaybackDuration = 5 * time.Millisecond
	sim.PerCharacter = time.Millisecond
	m := NewMixer(sim, time.Millisecond, nil)
	sim.Attach(m)

	done := make(chan string, 2)
	m.RequestPlayback("door", func() { done <- "door" })
	m.Pump()

	select {
	case got := <-done:
		if got != "door" {
			t.Fatalf("unexpected completion %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("simulated playback did not complete")
	}

	if !m.AcquireExclusive() {
		t.Fatal("output should be free after playback")
	}
	m.Speak("hi", "start", func() { done <- "start" })
	select {
	case got := <-done:
		if got != "start" {
			t.Fatalf("unexpected completion %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("simulated speech did not complete")
	}
}
