package mission

import (
	"encoding/xml"
	"math"
	"strconv"
	"strings"
)

// Parse decodes a mission document into a moment graph.
// Moment references are stored as written; they are not resolved here.
func Parse(data []byte) (*Graph, error) {
	var doc missionDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, parseErrorf("mission element could not be read: %v", err)
	}

	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, parseErrorf("mission name missing")
	}

	g := NewGraph(name, strings.TrimSpace(doc.StartID))
	for i := range doc.Moments {
		m, err := parseMoment(&doc.Moments[i])
		if err != nil {
			return nil, err
		}
		if !g.Add(m) {
			return nil, parseErrorf("duplicate moment id %q", m.ID)
		}
	}
	return g, nil
}

// ReadTitle returns the mission name without decoding the moments.
func ReadTitle(data []byte) (string, error) {
	var hdr missionHeader
	if err := xml.Unmarshal(data, &hdr); err != nil {
		return "", parseErrorf("mission element could not be read: %v", err)
	}
	name := strings.TrimSpace(hdr.Name)
	if name == "" {
		return "", parseErrorf("mission name missing")
	}
	return name, nil
}

func parseMoment(d *momentDoc) (*Moment, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return nil, parseErrorf("moment without id")
	}

	fragments, err := parseProgress(id, d.Progress)
	if err != nil {
		return nil, err
	}

	m := &Moment{
		ID:        id,
		Kind:      Kind(strings.TrimSpace(d.Type)),
		Fragments: fragments,
	}

	switch m.Kind {
	case KindTimer:
		length, err := parsePositive(id, "length_minutes", d.LengthMinutes)
		if err != nil {
			return nil, err
		}
		m.Timer = &TimerSpec{LengthMinutes: length}
	case KindSfx:
		uri, err := requiredText(id, "uri", d.URI)
		if err != nil {
			return nil, err
		}
		m.Sfx = &SfxSpec{URI: uri}
	case KindSpokenText:
		text, err := requiredText(id, "text_to_speak", d.TextToSpeak)
		if err != nil {
			return nil, err
		}
		m.SpokenText = &SpokenTextSpec{Text: text}
	case KindChoice:
		spec, err := parseChoiceSpec(id, d)
		if err != nil {
			return nil, err
		}
		m.Choice = spec
	case "":
		return nil, parseErrorf("moment %q has no type", id)
	default:
		return nil, parseErrorf("moment %q has invalid type %q", id, d.Type)
	}

	// Choice moments take their next moment from the selected choice.
	if m.Kind != KindChoice && d.Next != nil {
		m.Next = strings.TrimSpace(d.Next.ID)
	}
	return m, nil
}

func parseChoiceSpec(momentID string, d *momentDoc) (*ChoiceSpec, error) {
	description, err := requiredText(momentID, "description", d.Description)
	if err != nil {
		return nil, err
	}
	timeout, err := parsePositive(momentID, "timeout_length_minutes", d.TimeoutMinutes)
	if err != nil {
		return nil, err
	}

	if d.DefaultChoice == nil {
		return nil, parseErrorf("moment %q: default_choice could not be found", momentID)
	}
	defaultID := strings.TrimSpace(d.DefaultChoice.ID)
	if defaultID == "" {
		return nil, parseErrorf("moment %q: default_choice has no id", momentID)
	}
	if defaultID == FireChoiceID {
		return nil, parseErrorf("moment %q: default choice cannot be %q", momentID, FireChoiceID)
	}

	if n := len(d.Choices); n < MinChoices || n > MaxChoices {
		return nil, parseErrorf("moment %q: choice moments need %d to %d choices, got %d",
			momentID, MinChoices, MaxChoices, n)
	}

	spec := &ChoiceSpec{
		Description:     description,
		TimeoutMinutes:  timeout,
		DefaultChoiceID: defaultID,
	}
	for i := range d.Choices {
		c, err := parseChoice(momentID, &d.Choices[i])
		if err != nil {
			return nil, err
		}
		if spec.Lookup(c.ID) != nil {
			return nil, parseErrorf("moment %q: duplicate choice id %q", momentID, c.ID)
		}
		spec.Choices = append(spec.Choices, c)
	}

	if spec.Lookup(defaultID) == nil {
		return nil, parseErrorf("moment %q: default choice %q is not a declared choice", momentID, defaultID)
	}
	return spec, nil
}

func parseChoice(momentID string, d *choiceDoc) (*Choice, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return nil, parseErrorf("moment %q: choice without id", momentID)
	}
	where := momentID + "/" + id

	description, err := requiredText(where, "description", d.Description)
	if err != nil {
		return nil, err
	}

	if d.Outcome == nil {
		return nil, parseErrorf("moment %q: outcome could not be found", where)
	}
	deplete, err := parseFlag(where, "deplete_weapon", d.Outcome.DepleteWeapon)
	if err != nil {
		return nil, err
	}
	increment, err := parseFlag(where, "increment_enemies", d.Outcome.IncrementEnemies)
	if err != nil {
		return nil, err
	}

	fragments, err := parseProgress(where, d.Progress)
	if err != nil {
		return nil, err
	}

	if d.Icon == nil {
		return nil, parseErrorf("moment %q: icon could not be found", where)
	}
	icon := strings.TrimSpace(d.Icon.Name)
	if icon == "" {
		return nil, parseErrorf("moment %q: icon element has no name", where)
	}

	c := &Choice{
		ID:                    id,
		Description:           description,
		Outcome:               Outcome{DepletesCharge: deplete, IncrementsDefeatCount: increment},
		RequiresChargedWeapon: id == FireChoiceID,
		Fragments:             fragments,
		IconName:              icon,
	}
	if d.Next != nil {
		c.NextID = strings.TrimSpace(d.Next.ID)
	}
	return c, nil
}

func parseProgress(where string, docs []textDoc) ([]string, error) {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			return nil, parseErrorf("moment %q: fictional_progress is empty", where)
		}
		out = append(out, text)
	}
	return out, nil
}

func requiredText(where, tag string, d *textDoc) (string, error) {
	if d == nil {
		return "", parseErrorf("moment %q: %s could not be found", where, tag)
	}
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return "", parseErrorf("moment %q: %s is empty", where, tag)
	}
	return text, nil
}

func parsePositive(where, tag string, d *textDoc) (float32, error) {
	text, err := requiredText(where, tag, d)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, parseErrorf("moment %q: %s is not a number: %q", where, tag, text)
	}
	if !(v > 0) || math.IsInf(v, 0) {
		return 0, parseErrorf("moment %q: %s must be positive, got %v", where, tag, v)
	}
	if v >= MaxMinutes {
		return 0, parseErrorf("moment %q: %s %v exceeds %.0f minutes", where, tag, v, MaxMinutes)
	}
	return float32(v), nil
}

// parseFlag reads an optional boolean attribute; absent means false.
func parseFlag(where, attr, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, parseErrorf("moment %q: outcome %s is not a boolean: %q", where, attr, raw)
	}
	return v, nil
}
