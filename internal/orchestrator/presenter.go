package orchestrator

import (
	"github.com/AaronLay10/StrideQuest/internal/events"
	"github.com/AaronLay10/StrideQuest/internal/mission"
)

// EventPresenter publishes engine notifications as events. WebSocket
// clients render them.
type EventPresenter struct{}

func (EventPresenter) ChoicesChanged(momentID, description string, choices []mission.Choice) {
	items := make([]map[string]interface{}, 0, len(choices))
	for _, c := range choices {
		items = append(items, map[string]interface{}{
			"id":          c.ID,
			"description": c.Description,
			"icon":        c.IconName,
		})
	}
	events.Emit("info", "choice.presented", description, map[string]interface{}{
		"moment_id": momentID,
		"choices":   items,
	})
}

func (EventPresenter) ChoicesDismissed(momentID string) {
	events.Emit("info", "choice.dismissed", "", map[string]interface{}{
		"moment_id": momentID,
	})
}

// PaceCue is a no-op: the controller already emits pace and charge events.
func (EventPresenter) PaceCue(Cue) {}

func (EventPresenter) StatsChanged(s Stats) {
	events.Emit("debug", "stats.changed", "", map[string]interface{}{
		"steps":            s.TotalSteps,
		"intervals":        s.IntervalsCompleted,
		"pace":             s.Pace,
		"at_pace":          s.AtChallengePace,
		"charge_percent":   s.ChargePercent,
		"weapon_charged":   s.WeaponCharged,
		"enemies_defeated": s.EnemiesDefeated,
	})
}

// StateChanged is a no-op: state changes surface as mission.* events.
func (EventPresenter) StateChanged(from, to State) {}
