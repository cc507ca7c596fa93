package mission

import "time"

// FireChoiceID is the reserved choice id that needs a charged weapon.
const FireChoiceID = "fire"

// Choice count bounds for a choice moment.
const (
	MinChoices = 2
	MaxChoices = 3
)

// Outcome is the state mutation applied when a choice is selected.
type Outcome struct {
	DepletesCharge        bool
	IncrementsDefeatCount bool
}

// Choice is one selectable option inside a choice moment.
type Choice struct {
	ID                    string
	Description           string
	NextID                string
	Outcome               Outcome
	RequiresChargedWeapon bool
	Fragments             []string
	IconName              string
}

// ChoiceSpec holds the decoded fields of a choice moment.
type ChoiceSpec struct {
	Description     string
	TimeoutMinutes  float32
	DefaultChoiceID string
	Choices         []*Choice // document order
}

// Timeout returns the choice window as a duration.
func (s *ChoiceSpec) Timeout() time.Duration {
	return minutes(s.TimeoutMinutes)
}

// Lookup returns the choice with the given id, or nil.
func (s *ChoiceSpec) Lookup(id string) *Choice {
	for _, c := range s.Choices {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Eligible returns the choices that can be offered given the weapon state.
func (s *ChoiceSpec) Eligible(weaponCharged bool) []Choice {
	out := make([]Choice, 0, len(s.Choices))
	for _, c := range s.Choices {
		if c.RequiresChargedWeapon && !weaponCharged {
			continue
		}
		out = append(out, *c)
	}
	return out
}
