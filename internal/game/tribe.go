// Package game defines the world-state aggregate and its child
// entities: tribes, garrisons, diplomacy, requests, journeys, and the
// turn history log.
package game

// Schema versions for the JSON-encoded sub-documents stored inside
// relational columns (chiefs, research, turn actions). Bump when a
// field changes shape so old rows can be migrated explicitly.
const (
	ChiefSchemaVersion    = 1
	ResearchSchemaVersion = 1
	ActionSchemaVersion   = 1
)

// DiplomacyStatus describes the relation between two tribes.
type DiplomacyStatus uint8

const (
	DiplomacyNeutral DiplomacyStatus = iota
	DiplomacyPeace
	DiplomacyAlliance
	DiplomacyWar
)

// DiplomacyName returns a human-readable name for a diplomacy status.
func DiplomacyName(s DiplomacyStatus) string {
	switch s {
	case DiplomacyNeutral:
		return "neutral"
	case DiplomacyPeace:
		return "peace"
	case DiplomacyAlliance:
		return "alliance"
	case DiplomacyWar:
		return "war"
	default:
		return "unknown"
	}
}

// Chief is a leader assigned to a garrison.
type Chief struct {
	Name   string `json:"name"`
	Skill  int    `json:"skill"`
	Trait  string `json:"trait,omitempty"`
	Mounts int    `json:"mounts,omitempty"`
}

// Garrison is the force a tribe has stationed at one location. Garrisons
// are keyed by location key inside a tribe; the key must parse to a hex
// that exists in the same world.
type Garrison struct {
	Troops  int     `json:"troops"`
	Weapons int     `json:"weapons"`
	Chiefs  []Chief `json:"chiefs,omitempty"`
}

// Starting garrison composition, used both for fresh tribes and for the
// synthetic repair garrison materialized when a tribe has a known home
// location but no garrison rows at all.
const (
	StartingTroops  = 100
	StartingWeapons = 10
)

// Resources are a tribe's stockpiles.
type Resources struct {
	Food  int `json:"food"`
	Wood  int `json:"wood"`
	Stone int `json:"stone"`
	Iron  int `json:"iron"`
	Gold  int `json:"gold"`
}

// Research tracks a tribe's tech progress.
type Research struct {
	Level   int      `json:"level"`
	Points  int      `json:"points"`
	Known   []string `json:"known,omitempty"`
	Current string   `json:"current,omitempty"`
}

// Action is one queued order for the current turn. Kind-specific fields
// are explicit rather than a free-form payload so the relational
// round-trip is exhaustive.
type Action struct {
	Kind     string `json:"kind"`
	Target   string `json:"target,omitempty"`   // location key or tribe name, per kind
	Quantity int    `json:"quantity,omitempty"`
}

// Tribe is one playable faction. Identity is the tribe name, unique per
// world. A non-AI tribe may only exist while its owning player resolves
// to a known user; AI tribes are exempt.
type Tribe struct {
	Name   string `json:"name"`
	Player string `json:"player"`
	IsAI   bool   `json:"is_ai"`
	AIType string `json:"ai_type,omitempty"`

	// Display attributes.
	Color  string `json:"color,omitempty"`
	Banner string `json:"banner,omitempty"`

	// Home location key.
	Location string `json:"location"`

	// Garrisons keyed by location key.
	Garrisons map[string]*Garrison `json:"garrisons"`

	Resources Resources `json:"resources"`
	Research  Research  `json:"research"`

	// Diplomacy status per opposing tribe name. Undirected: both sides
	// of a relation carry the same status.
	Diplomacy map[string]DiplomacyStatus `json:"diplomacy,omitempty"`

	// Transient per-turn fields.
	Actions     []Action `json:"actions,omitempty"`
	LastResults []string `json:"last_results,omitempty"`
	Submitted   bool     `json:"submitted"`
}

// GarrisonAt returns the garrison at the given location key, or nil.
func (t *Tribe) GarrisonAt(key string) *Garrison {
	if t.Garrisons == nil {
		return nil
	}
	return t.Garrisons[key]
}

// TotalTroops sums troops across all garrisons.
func (t *Tribe) TotalTroops() int {
	total := 0
	for _, g := range t.Garrisons {
		total += g.Troops
	}
	return total
}
