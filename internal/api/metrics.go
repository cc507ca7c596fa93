package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/StrideQuest/internal/events"
	"github.com/AaronLay10/StrideQuest/internal/orchestrator"
	"github.com/AaronLay10/StrideQuest/internal/version"
)

func gauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler writes Prometheus text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.opts.Engine.Stats()
	ready := s.readiness()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}
	labels := fmt.Sprintf(`engine="%s",instance="%s",version="%s"`, s.opts.EngineID, hostname, version.Version)

	writeMetric("stridequest_uptime_seconds", "gauge",
		"Seconds since the engine started", time.Since(s.started).Seconds(), labels)
	writeMetric("stridequest_mission_running", "gauge",
		"Whether a mission is running (1) or not (0)", gauge(stats.State == orchestrator.StateRunning), labels)
	writeMetric("stridequest_steps_total", "counter",
		"Steps counted in the current run", stats.TotalSteps, labels)
	writeMetric("stridequest_intervals_completed", "gauge",
		"Intervals completed at challenge pace in the current run", stats.IntervalsCompleted, labels)
	writeMetric("stridequest_enemies_defeated", "gauge",
		"Enemies defeated in the current run", stats.EnemiesDefeated, labels)
	writeMetric("stridequest_weapon_charge_percent", "gauge",
		"Weapon charge percentage", stats.ChargePercent, labels)
	writeMetric("stridequest_events_total", "counter",
		"Events emitted since startup", events.TotalCount(), labels)
	writeMetric("stridequest_ready", "gauge",
		"Whether every configured dependency is ready (1) or not (0)", gauge(ready.Ready), labels)
	if ready.MQTT != nil {
		writeMetric("stridequest_mqtt_connected", "gauge",
			"Whether the MQTT broker is connected (1) or not (0)", gauge(*ready.MQTT), labels)
	}
	if ready.Postgres != nil {
		writeMetric("stridequest_postgres_connected", "gauge",
			"Whether PostgreSQL is reachable (1) or not (0)", gauge(*ready.Postgres), labels)
	}
	writeMetric("stridequest_ws_clients", "gauge",
		"Active WebSocket clients", events.SubscriberCount(), labels)
	writeMetric("stridequest_ws_dropped_events_total", "counter",
		"Events not delivered to a WebSocket client whose buffer was full", events.Dropped(), labels)
}
