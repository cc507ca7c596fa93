package mission

import "encoding/xml"

// Element layout of a mission document:
//
//	<mission start_id="..." name="...">
//	  <moment id="..." type="timer|sfx|spoken_text|choice">
//	    <next_moment id="..."/>
//	    <fictional_progress>...</fictional_progress>
//	    ...type specific children...
//	  </moment>
//	</mission>
type missionDoc struct {
	XMLName xml.Name    `xml:"mission"`
	StartID string      `xml:"start_id,attr"`
	Name    string      `xml:"name,attr"`
	Moments []momentDoc `xml:"moment"`
}

type momentDoc struct {
	ID       string    `xml:"id,attr"`
	Type     string    `xml:"type,attr"`
	Next     *refDoc   `xml:"next_moment"`
	Progress []textDoc `xml:"fictional_progress"`

	// timer
	LengthMinutes *textDoc `xml:"length_minutes"`
	// sfx
	URI *textDoc `xml:"uri"`
	// spoken_text
	TextToSpeak *textDoc `xml:"text_to_speak"`
	// choice
	Description    *textDoc    `xml:"description"`
	TimeoutMinutes *textDoc    `xml:"timeout_length_minutes"`
	DefaultChoice  *refDoc     `xml:"default_choice"`
	Choices        []choiceDoc `xml:"choice"`
}

type choiceDoc struct {
	ID          string      `xml:"id,attr"`
	Description *textDoc    `xml:"description"`
	Next        *refDoc     `xml:"next_moment"`
	Outcome     *outcomeDoc `xml:"outcome"`
	Progress    []textDoc   `xml:"fictional_progress"`
	Icon        *iconDoc    `xml:"icon"`
}

type refDoc struct {
	ID string `xml:"id,attr"`
}

type textDoc struct {
	Text string `xml:",chardata"`
}

type outcomeDoc struct {
	DepleteWeapon    string `xml:"deplete_weapon,attr"`
	IncrementEnemies string `xml:"increment_enemies,attr"`
}

type iconDoc struct {
	Name string `xml:"name,attr"`
}

// missionHeader decodes only the root attributes.
type missionHeader struct {
	XMLName xml.Name `xml:"mission"`
	Name    string   `xml:"name,attr"`
}
