package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/StrideQuest/internal/events"
)

// AudioSink receives audio device reports. *audio.Mixer implements it.
type AudioSink interface {
	PlaybackFinished(playbackID string)
	SpeechFinished(utteranceID string)
	FocusLost(now time.Time)
}

type publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// AudioCommand is published to the audio device.
type AudioCommand struct {
	Cmd      string `json:"cmd"`
	ID       string `json:"id"`
	Resource string `json:"resource,omitempty"`
	Text     string `json:"text,omitempty"`
	LeadInMS int64  `json:"lead_in_ms,omitempty"`
}

// AudioReport is published by the audio device.
type AudioReport struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Ready bool   `json:"ready,omitempty"`
	Error string `json:"error,omitempty"`
}

// AudioDevice drives a networked audio player and speech engine. It
// implements the mixer's Backend.
type AudioDevice struct {
	pub          publisher
	commandTopic string
	log          *slog.Logger
	now          func() time.Time

	mu          sync.RWMutex
	sink        AudioSink
	speechReady bool
}

// NewAudioDevice creates a device publishing commands to commandTopic.
func NewAudioDevice(pub publisher, commandTopic string, log *slog.Logger) *AudioDevice {
	if log == nil {
		log = slog.Default()
	}
	return &AudioDevice{
		pub:          pub,
		commandTopic: commandTopic,
		log:          log.With("component", "audio_device"),
		now:          time.Now,
	}
}

// Attach sets where device reports are delivered.
func (d *AudioDevice) Attach(sink AudioSink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

func (d *AudioDevice) send(cmd AudioCommand) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", cmd.Cmd, err)
	}
	return d.pub.Publish(d.commandTopic, b, false)
}

func (d *AudioDevice) Play(resource, playbackID string) error {
	return d.send(AudioCommand{Cmd: "play", ID: playbackID, Resource: resource})
}

func (d *AudioDevice) Stop(playbackID string) error {
	return d.send(AudioCommand{Cmd: "stop", ID: playbackID})
}

func (d *AudioDevice) Speak(text, utteranceID string, leadIn time.Duration) error {
	return d.send(AudioCommand{Cmd: "speak", ID: utteranceID, Text: text, LeadInMS: leadIn.Milliseconds()})
}

func (d *AudioDevice) StopSpeech(utteranceID string) error {
	return d.send(AudioCommand{Cmd: "stop_speech", ID: utteranceID})
}

// SpeechReady reports the last speech_ready state from the device.
func (d *AudioDevice) SpeechReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.speechReady
}

// Handler consumes reports from the device's event topic.
func (d *AudioDevice) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var r AudioReport
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			d.log.Warn("dropping audio report", "error", err)
			return
		}
		d.handle(r)
	}
}

func (d *AudioDevice) handle(r AudioReport) {
	d.mu.Lock()
	sink := d.sink
	if r.Event == "speech_ready" {
		d.speechReady = r.Ready
	}
	d.mu.Unlock()

	switch r.Event {
	case "speech_ready":
		d.log.Info("speech engine state", "ready", r.Ready)
	case "playback_finished":
		if sink != nil {
			sink.PlaybackFinished(r.ID)
		}
	case "speech_finished":
		if sink != nil {
			sink.SpeechFinished(r.ID)
		}
	case "focus_lost":
		if sink != nil {
			sink.FocusLost(d.now())
		}
	case "error":
		events.Emit("error", "audio.error", r.Error, map[string]interface{}{"id": r.ID})
	default:
		d.log.Warn("unknown audio report", "event", r.Event)
	}
}
