// Package audio arbitrates the single audio output between queued sound
// playback and speech.
package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/StrideQuest/internal/events"
)

// DefaultLeadIn is the silence played before each utterance.
const DefaultLeadIn = 500 * time.Millisecond

// Backend drives the output device. Completion is reported back through
// Mixer.PlaybackFinished and Mixer.SpeechFinished.
type Backend interface {
	Play(resource, playbackID string) error
	Stop(playbackID string) error
	Speak(text, utteranceID string, leadIn time.Duration) error
	StopSpeech(utteranceID string) error
	SpeechReady() bool
}

type request struct {
	resource   string
	onComplete func()
}

type active struct {
	id         string
	resource   string // playback only
	tag        string // caller's utterance id, speech only
	onComplete func()
}

// Mixer implements the playback and speech sides of the mission audio
// collaborator. Callbacks are always invoked without the mixer lock held.
type Mixer struct {
	mu        sync.Mutex
	backend   Backend
	leadIn    time.Duration
	queue     []request
	playing   *active
	speaking  *active
	exclusive bool

	onFocusLost func(now time.Time)
	log         *slog.Logger
}

// NewMixer creates a mixer over backend. leadIn <= 0 uses DefaultLeadIn.
func NewMixer(backend Backend, leadIn time.Duration, log *slog.Logger) *Mixer {
	if leadIn <= 0 {
		leadIn = DefaultLeadIn
	}
	if log == nil {
		log = slog.Default()
	}
	return &Mixer{
		backend: backend,
		leadIn:  leadIn,
		log:     log.With("component", "audio"),
	}
}

// OnFocusLost registers the handler called after focus loss tears down output.
func (m *Mixer) OnFocusLost(fn func(now time.Time)) {
	m.mu.Lock()
	m.onFocusLost = fn
	m.mu.Unlock()
}

// RequestPlayback queues resource behind earlier requests.
func (m *Mixer) RequestPlayback(resource string, onComplete func()) {
	m.mu.Lock()
	m.queue = append(m.queue, request{resource: resource, onComplete: onComplete})
	m.mu.Unlock()
}

// CancelPlayback drops queued requests for resource and stops it if playing.
// The dropped completion callbacks never fire.
func (m *Mixer) CancelPlayback(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.queue[:0]
	for _, r := range m.queue {
		if r.resource != resource {
			kept = append(kept, r)
		}
	}
	m.queue = kept

	if m.playing != nil && m.playing.resource == resource {
		if err := m.backend.Stop(m.playing.id); err != nil {
			m.log.Warn("stop playback failed", "resource", resource, "error", err)
		}
		m.playing = nil
		m.exclusive = false
	}
}

// AcquireExclusive claims the output. False while anything holds it.
func (m *Mixer) AcquireExclusive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exclusive || m.playing != nil {
		return false
	}
	m.exclusive = true
	return true
}

// Release gives the output back.
func (m *Mixer) Release() {
	m.mu.Lock()
	m.exclusive = false
	m.mu.Unlock()
}

// Pump starts the head of the queue when the output is free.
func (m *Mixer) Pump() {
	m.mu.Lock()
	if m.exclusive || m.playing != nil || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	head := m.queue[0]
	m.queue = m.queue[1:]
	p := &active{id: uuid.NewString(), resource: head.resource, onComplete: head.onComplete}
	m.playing = p
	m.exclusive = true
	err := m.backend.Play(p.resource, p.id)
	if err != nil {
		m.playing = nil
		m.exclusive = false
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error("playback failed", "resource", head.resource, "error", err)
		events.Emit("error", "audio.error", "playback failed", map[string]interface{}{
			"resource": head.resource,
			"error":    err.Error(),
		})
		// Complete anyway so a mission does not stall on a broken device.
		if head.onComplete != nil {
			head.onComplete()
		}
		return
	}
	events.Emit("debug", "audio.playback_started", "", map[string]interface{}{
		"resource":    p.resource,
		"playback_id": p.id,
	})
}

// PlaybackFinished is called by the backend when playback id ends.
// Unknown or cancelled ids are ignored.
func (m *Mixer) PlaybackFinished(playbackID string) {
	m.mu.Lock()
	p := m.playing
	if p == nil || p.id != playbackID {
		m.mu.Unlock()
		return
	}
	m.playing = nil
	m.exclusive = false
	m.mu.Unlock()

	events.Emit("debug", "audio.playback_finished", "", map[string]interface{}{
		"resource":    p.resource,
		"playback_id": p.id,
	})
	if p.onComplete != nil {
		p.onComplete()
	}
}

// Speak starts an utterance. The caller must hold exclusive output.
func (m *Mixer) Speak(text, utteranceID string, onComplete func()) {
	m.mu.Lock()
	u := &active{id: uuid.NewString(), tag: utteranceID, onComplete: onComplete}
	m.speaking = u
	err := m.backend.Speak(text, u.id, m.leadIn)
	if err != nil {
		m.speaking = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error("speech failed", "utterance", utteranceID, "error", err)
		events.Emit("error", "audio.error", "speech failed", map[string]interface{}{
			"utterance": utteranceID,
			"error":     err.Error(),
		})
		if onComplete != nil {
			onComplete()
		}
		return
	}
	events.Emit("debug", "audio.speech_started", "", map[string]interface{}{
		"utterance":    utteranceID,
		"utterance_id": u.id,
	})
}

// StopSpeech silences the current utterance and drops its callback.
func (m *Mixer) StopSpeech() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopSpeechLocked()
}

func (m *Mixer) stopSpeechLocked() {
	if m.speaking == nil {
		return
	}
	if err := m.backend.StopSpeech(m.speaking.id); err != nil {
		m.log.Warn("stop speech failed", "utterance", m.speaking.tag, "error", err)
	}
	m.speaking = nil
}

// SpeechFinished is called by the backend when utterance id ends.
func (m *Mixer) SpeechFinished(utteranceID string) {
	m.mu.Lock()
	u := m.speaking
	if u == nil || u.id != utteranceID {
		m.mu.Unlock()
		return
	}
	m.speaking = nil
	m.mu.Unlock()

	events.Emit("debug", "audio.speech_finished", "", map[string]interface{}{
		"utterance":    u.tag,
		"utterance_id": u.id,
	})
	if u.onComplete != nil {
		u.onComplete()
	}
}

// FocusLost stops all output, releases it and notifies the focus handler.
func (m *Mixer) FocusLost(now time.Time) {
	m.mu.Lock()
	if m.playing != nil {
		if err := m.backend.Stop(m.playing.id); err != nil {
			m.log.Warn("stop playback failed", "resource", m.playing.resource, "error", err)
		}
		m.playing = nil
	}
	m.stopSpeechLocked()
	m.exclusive = false
	fn := m.onFocusLost
	m.mu.Unlock()

	events.Emit("warn", "audio.focus_lost", "", nil)
	if fn != nil {
		fn(now)
	}
}

// SpeechReady reports whether the speech engine is initialized.
func (m *Mixer) SpeechReady() bool {
	return m.backend.SpeechReady()
}

// Pending returns the number of queued playback requests.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Busy reports whether anything holds the output.
func (m *Mixer) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exclusive || m.playing != nil || m.speaking != nil
}
