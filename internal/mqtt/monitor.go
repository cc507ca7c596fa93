package mqtt

import (
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/StrideQuest/internal/events"
)

// StationState tracks a registered station's health.
type StationState struct {
	StationID    string
	LastSeen     time.Time
	HeartbeatSec int
	Sensors      []string
	Connected    bool
}

// Monitor tracks station registration and liveness. The mission is ready
// to run while a connected station provides a step counter.
type Monitor struct {
	mu        sync.RWMutex
	stations  map[string]*StationState
	specs     map[string]SensorSpec
	registry  *SensorRegistry
	tolerance float64 // multiple of the heartbeat before a station is dropped
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewMonitor creates a monitor for the configured sensors.
func NewMonitor(specs map[string]SensorSpec, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0
	}
	return &Monitor{
		stations:  make(map[string]*StationState),
		specs:     specs,
		registry:  NewSensorRegistry(),
		tolerance: tolerance,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Registry returns the sensors known to the monitor.
func (m *Monitor) Registry() *SensorRegistry {
	return m.registry
}

// HandleRegistration validates a registration and, if valid, records the
// station and its sensors.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) *ValidationResult {
	result := ValidateRegistration(payload, m.specs)
	stationID := payload.Station.ID

	if !result.Valid {
		events.Emit("error", "sensor.error", "registration validation failed", map[string]interface{}{
			"station_id": stationID,
			"errors":     result.Errors,
		})
		return result
	}

	m.registry.RegisterFromPayload(payload)

	ids := make([]string, 0, len(payload.Sensors))
	for _, s := range payload.Sensors {
		ids = append(ids, s.ID)
	}

	m.mu.Lock()
	prev := m.stations[stationID]
	m.stations[stationID] = &StationState{
		StationID:    stationID,
		LastSeen:     m.now(),
		HeartbeatSec: payload.Station.HeartbeatSec,
		Sensors:      ids,
		Connected:    true,
	}
	m.mu.Unlock()

	for _, s := range payload.Sensors {
		events.Emit("info", "sensor.registered", "", map[string]interface{}{
			"station_id":   stationID,
			"sensor_id":    s.ID,
			"type":         s.Type,
			"capabilities": s.Capabilities,
			"reconnect":    prev != nil,
		})
	}
	if len(result.Warnings) > 0 {
		events.Emit("warn", "sensor.error", "registration warnings", map[string]interface{}{
			"station_id": stationID,
			"warnings":   result.Warnings,
		})
	}
	return result
}

// Touch records traffic from a station. A station that had timed out is
// marked connected again.
func (m *Monitor) Touch(stationID string) {
	m.mu.Lock()
	st, ok := m.stations[stationID]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.LastSeen = m.now()
	revived := !st.Connected
	st.Connected = true
	m.mu.Unlock()

	if revived {
		events.Emit("info", "sensor.connected", "", map[string]interface{}{
			"station_id": stationID,
		})
	}
}

// Ready reports whether a connected station provides a step counter.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.stations {
		if !st.Connected {
			continue
		}
		for _, id := range st.Sensors {
			if s := m.registry.Get(id); s != nil && s.Has(CapabilityStepCount) {
				return true
			}
		}
	}
	return false
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) checkHealth() {
	type lapse struct {
		id      string
		seen    time.Time
		timeout time.Duration
	}
	var lapsed []lapse

	m.mu.Lock()
	now := m.now()
	for id, st := range m.stations {
		if !st.Connected || st.HeartbeatSec <= 0 {
			continue
		}
		timeout := time.Duration(float64(st.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(st.LastSeen) > timeout {
			st.Connected = false
			lapsed = append(lapsed, lapse{id: id, seen: st.LastSeen, timeout: timeout})
		}
	}
	m.mu.Unlock()

	for _, l := range lapsed {
		events.Emit("warn", "sensor.disconnected", "heartbeat timeout", map[string]interface{}{
			"station_id":  l.id,
			"last_seen":   l.seen.Format(time.RFC3339),
			"timeout_sec": l.timeout.Seconds(),
		})
	}
}

// StationState returns a copy of a station's state, or nil.
func (m *Monitor) StationState(stationID string) *StationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.stations[stationID]
	if !ok {
		return nil
	}
	cpy := *st
	cpy.Sensors = append([]string{}, st.Sensors...)
	return &cpy
}

// ConnectedStations returns the IDs of connected stations, sorted.
func (m *Monitor) ConnectedStations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, st := range m.stations {
		if st.Connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
