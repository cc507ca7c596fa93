package audio

import (
	"sync"
	"time"
)

// Completer receives completion reports from a backend. Mixer implements it.
type Completer interface {
	PlaybackFinished(playbackID string)
	SpeechFinished(utteranceID string)
}

// Simulated is a Backend that produces no sound. Playback lasts a fixed
// duration and speech lasts in proportion to the text length.
type Simulated struct {
	PlaybackDuration time.Duration
	PerCharacter     time.Duration

	mu     sync.Mutex
	sink   Completer
	timers map[string]*time.Timer
}

// NewSimulated returns a simulated backend with short default durations.
func NewSimulated() *Simulated {
	return &Simulated{
		PlaybackDuration: 2 * time.Second,
		PerCharacter:     60 * time.Millisecond,
		timers:           make(map[string]*time.Timer),
	}
}

// Attach sets where completions are reported.
func (s *Simulated) Attach(sink Completer) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Simulated) Play(resource, playbackID string) error {
	s.schedule(playbackID, s.PlaybackDuration, false)
	return nil
}

func (s *Simulated) Stop(playbackID string) error {
	s.cancel(playbackID)
	return nil
}

func (s *Simulated) Speak(text, utteranceID string, leadIn time.Duration) error {
	s.schedule(utteranceID, leadIn+time.Duration(len(text))*s.PerCharacter, true)
	return nil
}

func (s *Simulated) StopSpeech(utteranceID string) error {
	s.cancel(utteranceID)
	return nil
}

// SpeechReady is always true.
func (s *Simulated) SpeechReady() bool { return true }

func (s *Simulated) schedule(id string, d time.Duration, speech bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		sink := s.sink
		s.mu.Unlock()
		if !live || sink == nil {
			return
		}
		if speech {
			sink.SpeechFinished(id)
		} else {
			sink.PlaybackFinished(id)
		}
	})
}

func (s *Simulated) cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}
