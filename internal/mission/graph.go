package mission

import "sort"

// Graph is the moment table decoded from a mission document.
// The parser populates it once; afterwards only the current pointer moves.
type Graph struct {
	Name    string
	StartID string

	currentID string
	moments   map[string]*Moment
	order     []string
}

// NewGraph creates an empty graph for the named mission.
func NewGraph(name, startID string) *Graph {
	return &Graph{
		Name:    name,
		StartID: startID,
		moments: make(map[string]*Moment),
	}
}

// Add inserts a moment. Returns false if the id is already taken.
func (g *Graph) Add(m *Moment) bool {
	if _, exists := g.moments[m.ID]; exists {
		return false
	}
	g.moments[m.ID] = m
	g.order = append(g.order, m.ID)
	return true
}

// Moment returns the moment with the given id, or nil if not found.
func (g *Graph) Moment(id string) *Moment {
	return g.moments[id]
}

// Start returns the designated first moment, or nil if the start id does not resolve.
func (g *Graph) Start() *Moment {
	return g.moments[g.StartID]
}

// Len returns the number of moments.
func (g *Graph) Len() int {
	return len(g.moments)
}

// IDs returns moment ids in document order.
func (g *Graph) IDs() []string {
	return append([]string{}, g.order...)
}

// CurrentID returns the id of the current moment ("" before the mission starts).
func (g *Graph) CurrentID() string {
	return g.currentID
}

// Current returns the current moment, or nil.
func (g *Graph) Current() *Moment {
	if g.currentID == "" {
		return nil
	}
	return g.moments[g.currentID]
}

// SetCurrent moves the current pointer. Returns false if id does not resolve.
func (g *Graph) SetCurrent(id string) bool {
	if _, ok := g.moments[id]; !ok {
		return false
	}
	g.currentID = id
	return true
}

// ClearCurrent drops the current pointer.
func (g *Graph) ClearCurrent() {
	g.currentID = ""
}

// DanglingLink describes a moment reference that does not resolve.
type DanglingLink struct {
	From     string // moment id holding the reference ("" for the mission start)
	ChoiceID string // set when the reference is on a choice
	To       string
}

// DanglingLinks returns every start/next reference that does not resolve to a
// moment in the graph, sorted by source moment.
func (g *Graph) DanglingLinks() []DanglingLink {
	var out []DanglingLink
	if g.StartID == "" || g.moments[g.StartID] == nil {
		out = append(out, DanglingLink{To: g.StartID})
	}
	for _, id := range g.order {
		m := g.moments[id]
		if m.Kind == KindChoice {
			for _, c := range m.Choice.Choices {
				if c.NextID != "" && g.moments[c.NextID] == nil {
					out = append(out, DanglingLink{From: id, ChoiceID: c.ID, To: c.NextID})
				}
			}
			continue
		}
		if m.Next != "" && g.moments[m.Next] == nil {
			out = append(out, DanglingLink{From: id, To: m.Next})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}
