package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/StrideQuest/internal/events"
)

// Topics names the fixed broker topics the engine uses. Sample topics are
// learned from registrations.
type Topics struct {
	Registration  string `yaml:"registration"`
	Heartbeat     string `yaml:"heartbeat"` // wildcard; the station id is the second to last level
	Choice        string `yaml:"choice"`
	AudioCommands string `yaml:"audio_commands"`
	AudioEvents   string `yaml:"audio_events"`
}

// DefaultTopics returns the stridequest/... topic layout.
func DefaultTopics() Topics {
	return Topics{
		Registration:  "stridequest/stations/register",
		Heartbeat:     "stridequest/stations/+/heartbeat",
		Choice:        "stridequest/input/choice",
		AudioCommands: "stridequest/audio/commands",
		AudioEvents:   "stridequest/audio/events",
	}
}

// Sample kinds.
const (
	SampleSteps = "steps"
	SampleSpeed = "speed"
)

// Sample is one reading from a sensor.
type Sample struct {
	Kind  string  `json:"kind"`
	Steps uint32  `json:"steps,omitempty"`
	MPS   float64 `json:"mps,omitempty"`
}

// ParseSample decodes a sample payload.
func ParseSample(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("invalid sample JSON: %w", err)
	}
	switch s.Kind {
	case SampleSteps, SampleSpeed:
		return s, nil
	case "":
		return Sample{}, fmt.Errorf("sample has no kind")
	}
	return Sample{}, fmt.Errorf("unknown sample kind %q", s.Kind)
}

// SampleSink consumes sensor samples. The return value reports whether the
// sample was used.
type SampleSink interface {
	OnStepDelta(steps uint32) bool
	OnSpeed(mps float64, now time.Time) bool
}

// subscriber is the part of Client a SampleSubscriber needs.
type subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// SampleSubscriber turns station registrations into sample subscriptions
// and forwards samples to the mission controller. Subscriptions are
// idempotent across reconnects.
type SampleSubscriber struct {
	mu         sync.RWMutex
	client     subscriber
	monitor    *Monitor
	sink       SampleSink
	log        *slog.Logger
	now        func() time.Time
	subscribed map[string]bool
}

// NewSampleSubscriber creates a subscriber feeding sink.
func NewSampleSubscriber(client subscriber, monitor *Monitor, sink SampleSink, log *slog.Logger) *SampleSubscriber {
	if log == nil {
		log = slog.Default()
	}
	return &SampleSubscriber{
		client:     client,
		monitor:    monitor,
		sink:       sink,
		log:        log.With("component", "samples"),
		now:        time.Now,
		subscribed: make(map[string]bool),
	}
}

// RegistrationHandler handles station registration messages.
func (s *SampleSubscriber) RegistrationHandler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		payload, err := ParseRegistration(msg.Payload())
		if err != nil {
			events.Emit("error", "sensor.error", "invalid registration", map[string]interface{}{
				"topic": msg.Topic(),
				"error": err.Error(),
			})
			return
		}
		if res := s.monitor.HandleRegistration(payload); !res.Valid {
			return
		}
		for _, reg := range payload.Sensors {
			if sensor := s.monitor.Registry().Get(reg.ID); sensor != nil {
				if err := s.SubscribeSensor(sensor); err != nil {
					s.log.Error("sample subscribe failed", "sensor_id", reg.ID, "error", err)
				}
			}
		}
	}
}

// HeartbeatHandler marks the station named in the topic as alive.
func (s *SampleSubscriber) HeartbeatHandler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if id := stationFromTopic(msg.Topic()); id != "" {
			s.monitor.Touch(id)
		}
	}
}

func stationFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// SubscribeSensor subscribes to a sensor's sample topic once.
func (s *SampleSubscriber) SubscribeSensor(sensor *RegisteredSensor) error {
	if sensor.SampleTopic == "" {
		return nil
	}

	s.mu.Lock()
	if s.subscribed[sensor.SampleTopic] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.client.Subscribe(sensor.SampleTopic, s.sampleHandler(sensor)); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed[sensor.SampleTopic] = true
	s.mu.Unlock()
	return nil
}

// SubscribeAll subscribes every registered sensor. Failures are reported
// and do not stop the remaining subscriptions.
func (s *SampleSubscriber) SubscribeAll() {
	for _, sensor := range s.monitor.Registry().All() {
		if err := s.SubscribeSensor(sensor); err != nil {
			events.Emit("error", "sensor.error", "failed to subscribe to sensor samples", map[string]interface{}{
				"sensor_id": sensor.ID,
				"topic":     sensor.SampleTopic,
				"error":     err.Error(),
			})
		}
	}
}

func (s *SampleSubscriber) sampleHandler(sensor *RegisteredSensor) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		s.monitor.Touch(sensor.StationID)

		sample, err := ParseSample(msg.Payload())
		if err != nil {
			s.log.Warn("dropping sample", "sensor_id", sensor.ID, "error", err)
			return
		}
		s.Deliver(sensor, sample)
	}
}

// Deliver forwards a sample if the sensor advertises the matching capability.
func (s *SampleSubscriber) Deliver(sensor *RegisteredSensor, sample Sample) bool {
	switch sample.Kind {
	case SampleSteps:
		if !sensor.Has(CapabilityStepCount) {
			s.log.Warn("sensor cannot count steps", "sensor_id", sensor.ID)
			return false
		}
		return s.sink.OnStepDelta(sample.Steps)
	case SampleSpeed:
		if !sensor.Has(CapabilitySpeed) {
			s.log.Warn("sensor cannot report speed", "sensor_id", sensor.ID)
			return false
		}
		return s.sink.OnSpeed(sample.MPS, s.now())
	}
	return false
}

// IsSubscribed returns true if the topic is already subscribed.
func (s *SampleSubscriber) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed[topic]
}

// SubscribedTopics returns a list of all subscribed topics.
func (s *SampleSubscriber) SubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	return topics
}

// ClearSubscriptions forgets subscriptions so they are renewed after a
// reconnect.
func (s *SampleSubscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}

// Resubscribe renews every registered sensor's sample topic. Client calls it
// after paho reconnects with a clean session.
func (s *SampleSubscriber) Resubscribe() {
	s.ClearSubscriptions()
	s.SubscribeAll()
}
