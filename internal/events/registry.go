package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// mission
	"mission.loaded":              {},
	"mission.load_failed":         {},
	"mission.started":             {},
	"mission.completed":           {},
	"mission.ended":               {},
	"mission.reset":               {},
	"mission.transition_rejected": {},

	// moment
	"moment.started":   {},
	"moment.completed": {},
	"moment.restarted": {},
	"moment.missing":   {},

	// choice
	"choice.presented": {},
	"choice.selected":  {},
	"choice.rejected":  {},
	"choice.dismissed": {},

	// pace and charge
	"pace.sampled":    {},
	"pace.achieved":   {},
	"pace.lost":       {},
	"charge.complete": {},
	"charge.depleted": {},
	"stats.changed":   {},

	// loop
	"loop.started": {},
	"loop.stopped": {},

	// sensor
	"sensor.registered":   {},
	"sensor.connected":    {},
	"sensor.disconnected": {},
	"sensor.error":        {},

	// audio
	"audio.playback_started":  {},
	"audio.playback_finished": {},
	"audio.speech_started":    {},
	"audio.speech_finished":   {},
	"audio.focus_lost":        {},
	"audio.error":             {},

	// operator
	"operator.load":   {},
	"operator.choice": {},
	"operator.end":    {},
	"operator.reset":  {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate returns an error if event is not an allowlisted name.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
