package mission

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const sampleMission = `<?xml version="1.0" encoding="UTF-8"?>
<mission start_id="start" name="Outrun the Swarm">
  <moment id="start" type="spoken_text">
    <text_to_speak>Runner five, the swarm is moving. Get going.</text_to_speak>
    <next_moment id="second"/>
    <fictional_progress>You set off from the outpost.</fictional_progress>
  </moment>
  <moment id="second" type="timer">
    <length_minutes>0.5</length_minutes>
    <next_moment id="third"/>
  </moment>
  <moment id="third" type="choice">
    <description>A drone blocks the road.</description>
    <timeout_length_minutes>1</timeout_length_minutes>
    <default_choice id="other"/>
    <choice id="fire">
      <description>Fire the pulse rifle</description>
      <next_moment id="fourth"/>
      <outcome deplete_weapon="true" increment_enemies="true"/>
      <fictional_progress>The drone drops out of the sky.</fictional_progress>
      <icon name="icon_fire"/>
    </choice>
    <choice id="other">
      <description>Take the alley</description>
      <next_moment id="fourth"/>
      <outcome/>
      <fictional_progress>You slip down the alley.</fictional_progress>
      <icon name="icon_alley"/>
    </choice>
  </moment>
  <moment id="fourth" type="sfx">
    <uri>asset://sfx/door.ogg</uri>
    <fictional_progress>The gate slams behind you.</fictional_progress>
  </moment>
</mission>`

func TestParseSampleMission(t *testing.T) {
	g, err := Parse([]byte(sampleMission))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if g.Name != "Outrun the Swarm" {
		t.Errorf("expected mission name, got %q", g.Name)
	}
	if g.Len() != 4 {
		t.Errorf("expected 4 moments, got %d", g.Len())
	}
	if start := g.Start(); start == nil || start.ID != "start" {
		t.Fatalf("expected start moment, got %+v", start)
	}
	if links := g.DanglingLinks(); len(links) != 0 {
		t.Errorf("expected no dangling links, got %+v", links)
	}

	third := g.Moment("third")
	if third.Kind != KindChoice {
		t.Fatalf("expected choice moment, got %s", third.Kind)
	}
	if third.Choice.DefaultChoiceID != "other" {
		t.Errorf("expected default other, got %s", third.Choice.DefaultChoiceID)
	}
	if third.Choice.Timeout().Minutes() != 1 {
		t.Errorf("expected 1 minute timeout, got %v", third.Choice.Timeout())
	}

	fire := third.Choice.Lookup("fire")
	if fire == nil || !fire.RequiresChargedWeapon {
		t.Fatalf("expected fire choice to require a charged weapon")
	}
	if !fire.Outcome.DepletesCharge || !fire.Outcome.IncrementsDefeatCount {
		t.Errorf("fire outcome not decoded: %+v", fire.Outcome)
	}

	other := third.Choice.Lookup("other")
	if other.RequiresChargedWeapon {
		t.Error("other must not require a charged weapon")
	}
	if other.Outcome != (Outcome{}) {
		t.Errorf("absent outcome attributes should default to false, got %+v", other.Outcome)
	}
	if other.IconName != "icon_alley" {
		t.Errorf("expected icon_alley, got %s", other.IconName)
	}

	// Choice moments report no next id before selection.
	if third.NextID() != "" {
		t.Errorf("expected empty next id before selection, got %s", third.NextID())
	}

	if g.Moment("fourth").NextID() != "" {
		t.Error("fourth should be terminal")
	}
}

func TestParseRoundTripMixedMoments(t *testing.T) {
	const n = 12

	var b strings.Builder
	b.WriteString(`<mission start_id="m0" name="Round Trip">`)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%d", i)
		next := ""
		if i < n-1 {
			next = fmt.Sprintf(`<next_moment id="m%d"/>`, i+1)
		}
		progress := fmt.Sprintf(`<fictional_progress>fragment %d</fictional_progress>`, i)

		switch i % 4 {
		case 0:
			fmt.Fprintf(&b, `<moment id="%s" type="timer"><length_minutes>%d</length_minutes>%s%s</moment>`,
				id, i+1, next, progress)
		case 1:
			fmt.Fprintf(&b, `<moment id="%s" type="sfx"><uri>asset://sfx/%d.ogg</uri>%s%s</moment>`,
				id, i, next, progress)
		case 2:
			fmt.Fprintf(&b, `<moment id="%s" type="spoken_text"><text_to_speak>line %d</text_to_speak>%s%s</moment>`,
				id, i, next, progress)
		case 3:
			target := ""
			if i < n-1 {
				target = fmt.Sprintf(`<next_moment id="m%d"/>`, i+1)
			}
			fmt.Fprintf(&b, `<moment id="%s" type="choice">
				<description>choose %d</description>
				<timeout_length_minutes>2</timeout_length_minutes>
				<default_choice id="left"/>
				%s
				<choice id="left"><description>left</description>%s<outcome increment_enemies="true"/><icon name="l%d"/></choice>
				<choice id="right"><description>right</description>%s<outcome deplete_weapon="false"/><fictional_progress>went right</fictional_progress><icon name="r%d"/></choice>
				<choice id="fire"><description>fire</description>%s<outcome deplete_weapon="true"/><icon name="f%d"/></choice>
			</moment>`, id, i, progress, target, i, target, i, target, i)
		}
	}
	b.WriteString(`</mission>`)

	g, err := Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if g.Len() != n {
		t.Fatalf("expected %d moments, got %d", n, g.Len())
	}

	ids := g.IDs()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%d", i)
		if ids[i] != id {
			t.Errorf("expected document order %s at %d, got %s", id, i, ids[i])
		}
		m := g.Moment(id)
		if m == nil {
			t.Fatalf("moment %s missing", id)
		}

		want := fmt.Sprintf("fragment %d", i)
		if len(m.Fragments) != 1 || m.Fragments[0] != want {
			t.Errorf("%s: expected fragments [%s], got %v", id, want, m.Fragments)
		}

		wantNext := ""
		if i < n-1 {
			wantNext = fmt.Sprintf("m%d", i+1)
		}

		switch i % 4 {
		case 0:
			if m.Kind != KindTimer || m.Timer.LengthMinutes != float32(i+1) {
				t.Errorf("%s: bad timer %+v", id, m.Timer)
			}
		case 1:
			if m.Kind != KindSfx || m.Sfx.URI != fmt.Sprintf("asset://sfx/%d.ogg", i) {
				t.Errorf("%s: bad sfx %+v", id, m.Sfx)
			}
		case 2:
			if m.Kind != KindSpokenText || m.SpokenText.Text != fmt.Sprintf("line %d", i) {
				t.Errorf("%s: bad spoken text %+v", id, m.SpokenText)
			}
		case 3:
			if m.Kind != KindChoice || len(m.Choice.Choices) != 3 {
				t.Fatalf("%s: bad choice moment", id)
			}
			left := m.Choice.Lookup("left")
			if left.NextID != wantNext || !left.Outcome.IncrementsDefeatCount || left.Outcome.DepletesCharge {
				t.Errorf("%s: bad left choice %+v", id, left)
			}
			if left.IconName != fmt.Sprintf("l%d", i) {
				t.Errorf("%s: bad left icon %s", id, left.IconName)
			}
			right := m.Choice.Lookup("right")
			if len(right.Fragments) != 1 || right.Fragments[0] != "went right" {
				t.Errorf("%s: bad right fragments %v", id, right.Fragments)
			}
			fire := m.Choice.Lookup("fire")
			if !fire.RequiresChargedWeapon || !fire.Outcome.DepletesCharge {
				t.Errorf("%s: bad fire choice %+v", id, fire)
			}
			continue
		}
		if m.NextID() != wantNext {
			t.Errorf("%s: expected next %q, got %q", id, wantNext, m.NextID())
		}
	}
}

func choiceMoment(choices string, defaultID string) string {
	return `<mission start_id="c" name="x"><moment id="c" type="choice">
		<description>d</description>
		<timeout_length_minutes>1</timeout_length_minutes>
		<default_choice id="` + defaultID + `"/>` + choices + `</moment></mission>`
}

func choiceEl(id, icon string) string {
	return `<choice id="` + id + `"><description>` + id + `</description><outcome/>` + icon + `</choice>`
}

func TestParseRejects(t *testing.T) {
	a := choiceEl("a", `<icon name="ia"/>`)
	b := choiceEl("b", `<icon name="ib"/>`)
	c := choiceEl("c", `<icon name="ic"/>`)
	d := choiceEl("d", `<icon name="id"/>`)
	fire := choiceEl("fire", `<icon name="if"/>`)

	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ``},
		{"wrong root", `<quest name="x"/>`},
		{"missing name", `<mission start_id="a"><moment id="a" type="timer"><length_minutes>1</length_minutes></moment></mission>`},
		{"empty name", `<mission name="  " start_id="a"></mission>`},
		{"missing type", `<mission name="x"><moment id="a"><length_minutes>1</length_minutes></moment></mission>`},
		{"invalid type", `<mission name="x"><moment id="a" type="cutscene"/></mission>`},
		{"missing id", `<mission name="x"><moment type="timer"><length_minutes>1</length_minutes></moment></mission>`},
		{"duplicate id", `<mission name="x"><moment id="a" type="sfx"><uri>u</uri></moment><moment id="a" type="sfx"><uri>u</uri></moment></mission>`},
		{"timer missing length", `<mission name="x"><moment id="a" type="timer"/></mission>`},
		{"timer zero length", `<mission name="x"><moment id="a" type="timer"><length_minutes>0</length_minutes></moment></mission>`},
		{"timer negative length", `<mission name="x"><moment id="a" type="timer"><length_minutes>-2</length_minutes></moment></mission>`},
		{"timer length overflows", `<mission name="x"><moment id="a" type="timer"><length_minutes>1e30</length_minutes></moment></mission>`},
		{"timer bad length", `<mission name="x"><moment id="a" type="timer"><length_minutes>soon</length_minutes></moment></mission>`},
		{"sfx missing uri", `<mission name="x"><moment id="a" type="sfx"/></mission>`},
		{"spoken text empty", `<mission name="x"><moment id="a" type="spoken_text"><text_to_speak>  </text_to_speak></moment></mission>`},
		{"empty fictional progress", `<mission name="x"><moment id="a" type="sfx"><uri>u</uri><fictional_progress></fictional_progress></moment></mission>`},
		{"one choice", choiceMoment(a, "a")},
		{"four choices", choiceMoment(a+b+c+d, "a")},
		{"default not declared", choiceMoment(a+b, "z")},
		{"default is fire", choiceMoment(a+fire, "fire")},
		{"missing default", strings.Replace(choiceMoment(a+b, "a"), `<default_choice id="a"/>`, "", 1)},
		{"missing icon", choiceMoment(a+choiceEl("b", ""), "a")},
		{"empty icon name", choiceMoment(a+choiceEl("b", `<icon name=""/>`), "a")},
		{"duplicate choice", choiceMoment(a+a, "a")},
		{"missing outcome", choiceMoment(a+`<choice id="b"><description>b</description><icon name="ib"/></choice>`, "a")},
		{"bad outcome flag", choiceMoment(a+`<choice id="b"><description>b</description><outcome deplete_weapon="maybe"/><icon name="ib"/></choice>`, "a")},
		{"empty choice progress", choiceMoment(a+`<choice id="b"><description>b</description><outcome/><fictional_progress/><icon name="ib"/></choice>`, "a")},
		{"choice missing description", choiceMoment(a+`<choice id="b"><outcome/><icon name="ib"/></choice>`, "a")},
		{"choice timeout overflows", strings.Replace(choiceMoment(a+b, "a"), `<timeout_length_minutes>1</timeout_length_minutes>`, `<timeout_length_minutes>2e8</timeout_length_minutes>`, 1)},
		{"choice missing timeout", strings.Replace(choiceMoment(a+b, "a"), `<timeout_length_minutes>1</timeout_length_minutes>`, "", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatalf("expected parse error, got graph with %d moments", g.Len())
			}
			if g != nil {
				t.Error("expected no partial graph on failure")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T: %v", err, err)
			}
		})
	}
}

func TestParseAcceptsValidChoiceMoment(t *testing.T) {
	a := choiceEl("a", `<icon name="ia"/>`)
	fire := choiceEl("fire", `<icon name="if"/>`)

	g, err := Parse([]byte(choiceMoment(a+fire, "a")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(g.Moment("c").Choice.Choices); got != 2 {
		t.Errorf("expected 2 choices, got %d", got)
	}
}

func TestParseIsLinkUnaware(t *testing.T) {
	doc := `<mission start_id="nowhere" name="x">
		<moment id="a" type="timer"><length_minutes>1</length_minutes><next_moment id="ghost"/></moment>
	</mission>`

	g, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("dangling references must not fail parsing: %v", err)
	}
	if g.Moment("a").NextID() != "ghost" {
		t.Errorf("expected next id stored verbatim")
	}
	if len(g.DanglingLinks()) != 2 {
		t.Errorf("expected 2 dangling links, got %+v", g.DanglingLinks())
	}
}

func TestReadTitle(t *testing.T) {
	title, err := ReadTitle([]byte(sampleMission))
	if err != nil {
		t.Fatalf("read title failed: %v", err)
	}
	if title != "Outrun the Swarm" {
		t.Errorf("expected title, got %q", title)
	}

	for _, doc := range []string{``, `<mission start_id="a"/>`, `<mission name=""/>`, `<quest name="x"/>`} {
		if _, err := ReadTitle([]byte(doc)); err == nil {
			t.Errorf("expected error for %q", doc)
		}
	}
}
