package mqtt

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Sensor capabilities a station may advertise.
const (
	CapabilityStepCount   = "step_count"
	CapabilitySpeed       = "speed"
	CapabilityChoiceInput = "choice_input"
)

// RegistrationPayload is a v1 station registration message. A station is
// the wearable or phone that hosts one or more sensors.
type RegistrationPayload struct {
	Version int                  `json:"version"`
	Station StationInfo          `json:"station"`
	Sensors []SensorRegistration `json:"sensors"`
}

// StationInfo describes the registering station.
type StationInfo struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Firmware     string `json:"firmware"`
	UptimeMS     int64  `json:"uptime_ms"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// SensorRegistration describes a single sensor on the station.
type SensorRegistration struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Capabilities []string     `json:"capabilities"`
	Topics       SensorTopics `json:"topics"`
}

// SensorTopics names the topics a sensor publishes samples on and listens
// for commands on.
type SensorTopics struct {
	Samples  string `json:"samples"`
	Commands string `json:"commands,omitempty"`
}

// ParseRegistration decodes and checks the envelope of a registration.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}
	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}
	if payload.Station.ID == "" {
		return nil, fmt.Errorf("station.id is required")
	}
	return &payload, nil
}

// SensorSpec is an expected sensor from configuration.
type SensorSpec struct {
	Type         string
	Required     bool
	Capabilities []string
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ValidateRegistration checks a registration against the configured sensors.
// Sensors without a spec are accepted with a warning.
func ValidateRegistration(payload *RegistrationPayload, specs map[string]SensorSpec) *ValidationResult {
	result := &ValidationResult{Valid: true}

	byID := make(map[string]SensorRegistration, len(payload.Sensors))
	for _, s := range payload.Sensors {
		if s.ID == "" {
			result.fail("sensor with empty id")
			continue
		}
		if s.Topics.Samples == "" {
			result.fail("sensor %s: no samples topic", s.ID)
		}
		byID[s.ID] = s
	}

	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		spec := specs[id]
		reg, ok := byID[id]
		if !ok {
			if spec.Required {
				result.fail("required sensor missing: %s", id)
			}
			continue
		}
		if spec.Type != "" && reg.Type != spec.Type {
			result.fail("sensor %s: type mismatch (expected %s, got %s)", id, spec.Type, reg.Type)
		}
		for _, want := range spec.Capabilities {
			if !slices.Contains(reg.Capabilities, want) {
				result.fail("sensor %s: missing capability %s", id, want)
			}
		}
	}

	for _, s := range payload.Sensors {
		if _, ok := specs[s.ID]; !ok && s.ID != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized sensor: %s", s.ID))
		}
	}
	return result
}
