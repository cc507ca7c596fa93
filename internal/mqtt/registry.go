package mqtt

import (
	"slices"
	"sort"
	"sync"
)

// RegisteredSensor holds runtime information about a registered sensor.
type RegisteredSensor struct {
	ID           string
	StationID    string
	Type         string
	SampleTopic  string
	CommandTopic string
	Capabilities []string
}

func (s *RegisteredSensor) clone() *RegisteredSensor {
	cpy := *s
	cpy.Capabilities = slices.Clone(s.Capabilities)
	return &cpy
}

// Has reports whether the sensor advertises capability.
func (s *RegisteredSensor) Has(capability string) bool {
	return slices.Contains(s.Capabilities, capability)
}

// SensorRegistry maps sensor IDs to their topics and capabilities.
type SensorRegistry struct {
	mu      sync.RWMutex
	sensors map[string]*RegisteredSensor
}

// NewSensorRegistry creates an empty registry.
func NewSensorRegistry() *SensorRegistry {
	return &SensorRegistry{sensors: make(map[string]*RegisteredSensor)}
}

// Register adds or replaces a sensor.
func (r *SensorRegistry) Register(s *RegisteredSensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[s.ID] = s.clone()
}

// RegisterFromPayload registers every sensor of a station.
func (r *SensorRegistry) RegisterFromPayload(payload *RegistrationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range payload.Sensors {
		r.sensors[s.ID] = &RegisteredSensor{
			ID:           s.ID,
			StationID:    payload.Station.ID,
			Type:         s.Type,
			SampleTopic:  s.Topics.Samples,
			CommandTopic: s.Topics.Commands,
			Capabilities: slices.Clone(s.Capabilities),
		}
	}
}

// Unregister removes a sensor.
func (r *SensorRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sensors, id)
}

// Get returns a copy of the sensor, or nil if not found.
func (r *SensorRegistry) Get(id string) *RegisteredSensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sensors[id]; ok {
		return s.clone()
	}
	return nil
}

// BySampleTopic finds the sensor publishing on topic.
func (r *SensorRegistry) BySampleTopic(topic string) *RegisteredSensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sensors {
		if s.SampleTopic == topic {
			return s.clone()
		}
	}
	return nil
}

// WithCapability returns the sensors advertising capability, sorted by ID.
func (r *SensorRegistry) WithCapability(capability string) []*RegisteredSensor {
	var out []*RegisteredSensor
	for _, s := range r.All() {
		if s.Has(capability) {
			out = append(out, s)
		}
	}
	return out
}

// All returns copies of all sensors, sorted by ID.
func (r *SensorRegistry) All() []*RegisteredSensor {
	r.mu.RLock()
	out := make([]*RegisteredSensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes all sensors.
func (r *SensorRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors = make(map[string]*RegisteredSensor)
}
