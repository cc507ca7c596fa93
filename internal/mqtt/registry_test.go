package mqtt

import (
	"testing"
)

func TestSensorRegistry_RegisterAndGet(t *testing.T) {
	registry := NewSensorRegistry()
	registry.Register(&RegisteredSensor{
		ID:           "pedometer",
		StationID:    "watch-01",
		Type:         "step_counter",
		SampleTopic:  "stridequest/stations/watch-01/pedometer",
		Capabilities: []string{CapabilityStepCount},
	})

	got := registry.Get("pedometer")
	if got == nil {
		t.Fatal("expected sensor, got nil")
	}
	if got.SampleTopic != "stridequest/stations/watch-01/pedometer" {
		t.Errorf("unexpected sample topic %s", got.SampleTopic)
	}
	if registry.Get("nonexistent") != nil {
		t.Error("expected nil for unknown sensor")
	}

	// Copies must not alias registry state.
	got.Capabilities[0] = "mutated"
	if !registry.Get("pedometer").Has(CapabilityStepCount) {
		t.Error("registry state was mutated through a copy")
	}
}

func TestSensorRegistry_RegisterFromPayload(t *testing.T) {
	registry := NewSensorRegistry()
	registry.RegisterFromPayload(&RegistrationPayload{
		Version: 1,
		Station: StationInfo{ID: "phone"},
		Sensors: []SensorRegistration{
			pedometer("phone"),
			{ID: "gps", Type: "location", Capabilities: []string{CapabilitySpeed},
				Topics: SensorTopics{Samples: "stridequest/stations/phone/gps", Commands: "stridequest/stations/phone/gps/cmd"}},
		},
	})

	gps := registry.Get("gps")
	if gps == nil || gps.StationID != "phone" || gps.CommandTopic != "stridequest/stations/phone/gps/cmd" {
		t.Fatalf("gps not registered correctly: %+v", gps)
	}
	if s := registry.BySampleTopic("stridequest/stations/phone/pedometer"); s == nil || s.ID != "pedometer" {
		t.Errorf("BySampleTopic did not find pedometer: %+v", s)
	}

	steps := registry.WithCapability(CapabilityStepCount)
	if len(steps) != 1 || steps[0].ID != "pedometer" {
		t.Errorf("expected only pedometer to count steps, got %d sensors", len(steps))
	}

	all := registry.All()
	if len(all) != 2 || all[0].ID != "gps" || all[1].ID != "pedometer" {
		t.Errorf("All should be sorted by id")
	}
}

func TestSensorRegistry_UnregisterAndClear(t *testing.T) {
	registry := NewSensorRegistry()
	registry.Register(&RegisteredSensor{ID: "a"})
	registry.Register(&RegisteredSensor{ID: "b"})

	registry.Unregister("a")
	if registry.Get("a") != nil {
		t.Error("a should be removed")
	}
	registry.Clear()
	if len(registry.All()) != 0 {
		t.Error("registry should be empty after Clear")
	}
}
