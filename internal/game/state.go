package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/tribelands/server/internal/world"
)

// ChiefRequest is a pending request for a new garrison chief.
type ChiefRequest struct {
	ID        string `json:"id" db:"request_id"`
	Tribe     string `json:"tribe" db:"tribe"`
	ChiefName string `json:"chief_name" db:"chief_name"`
	Status    string `json:"status" db:"status"`
	Turn      int    `json:"turn" db:"turn"`
}

// AssetRequest is a pending request for equipment or mounts.
type AssetRequest struct {
	ID       string `json:"id" db:"request_id"`
	Tribe    string `json:"tribe" db:"tribe"`
	Asset    string `json:"asset" db:"asset"`
	Quantity int    `json:"quantity" db:"quantity"`
	Status   string `json:"status" db:"status"`
	Turn     int    `json:"turn" db:"turn"`
}

// Journey is an in-flight troop movement between two locations.
type Journey struct {
	ID         string `json:"id" db:"journey_id"`
	Tribe      string `json:"tribe" db:"tribe"`
	From       string `json:"from" db:"from_loc"` // location key
	To         string `json:"to" db:"to_loc"`     // location key
	Troops     int    `json:"troops" db:"troops"`
	Purpose    string `json:"purpose,omitempty" db:"purpose"`
	DepartTurn int    `json:"depart_turn" db:"depart_turn"`
	ArriveTurn int    `json:"arrive_turn" db:"arrive_turn"`
}

// DiplomaticProposal is a pending offer to change relations.
type DiplomaticProposal struct {
	ID       string          `json:"id" db:"proposal_id"`
	From     string          `json:"from" db:"from_tribe"`
	To       string          `json:"to" db:"to_tribe"`
	Proposed DiplomacyStatus `json:"proposed" db:"proposed"`
	Message  string          `json:"message,omitempty" db:"message"`
	Turn     int             `json:"turn" db:"turn"`
}

// TribeTurnRecord is one tribe's entry in a turn-history row.
type TribeTurnRecord struct {
	Actions []Action `json:"actions,omitempty"`
	Results []string `json:"results,omitempty"`
}

// TurnRecord is the history entry for one completed turn. History is
// append/merge-only: rewrites never delete past turns.
type TurnRecord struct {
	Turn    int                        `json:"turn"`
	Records map[string]TribeTurnRecord `json:"records"`
}

// Newsletter is one editorial dispatch shown to players.
type Newsletter struct {
	Turn        int       `json:"turn"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsletterState is the satellite newsletter document, persisted
// through the dual-write path rather than the relational child graph.
type NewsletterState struct {
	Newsletters []Newsletter `json:"newsletters"`
	Current     *Newsletter  `json:"currentNewsletter,omitempty"`
}

// TurnDeadline is the satellite deadline document (dual-write path).
type TurnDeadline struct {
	Deadline time.Time `json:"turnDeadline"`
}

// DiploMessage is one entry in the dual-written diplomatic message log.
type DiploMessage struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Body   string    `json:"body"`
	Turn   int       `json:"turn"`
	SentAt time.Time `json:"sent_at"`
}

// WorldState is the aggregate root: the full persisted state of one
// running game. It is read in full and rewritten in full on every
// mutation; there is no partial persistence of the tribe/hex graph.
type WorldState struct {
	Turn int `json:"turn"`

	// Map generation inputs, kept so the map can be regenerated.
	MapSeed     int64           `json:"map_seed"`
	GenSettings world.GenConfig `json:"gen_settings"`

	Hexes  []*world.Hex `json:"hexes"`
	Tribes []*Tribe     `json:"tribes"`

	ChiefRequests []*ChiefRequest       `json:"chief_requests,omitempty"`
	AssetRequests []*AssetRequest       `json:"asset_requests,omitempty"`
	Journeys      []*Journey            `json:"journeys,omitempty"`
	Proposals     []*DiplomaticProposal `json:"proposals,omitempty"`

	History []*TurnRecord `json:"history,omitempty"`

	StartingLocations []string `json:"starting_locations"`

	Suspended     bool   `json:"suspended"`
	SuspensionMsg string `json:"suspension_msg,omitempty"`

	// Satellite documents. Persisted via the dual-write manager, carried
	// on the aggregate for in-process consumers.
	Newsletter NewsletterState `json:"newsletter"`
	Deadline   TurnDeadline    `json:"deadline"`
}

// TribeByName returns the tribe with the given name, or nil.
func (ws *WorldState) TribeByName(name string) *Tribe {
	for _, t := range ws.Tribes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// HexAt returns the hex at the given coordinate, or nil.
func (ws *WorldState) HexAt(coord world.HexCoord) *world.Hex {
	for _, h := range ws.Hexes {
		if h.Coord == coord {
			return h
		}
	}
	return nil
}

// HistoryFor returns the history record for a turn, or nil.
func (ws *WorldState) HistoryFor(turn int) *TurnRecord {
	for _, rec := range ws.History {
		if rec.Turn == turn {
			return rec
		}
	}
	return nil
}

// NewWorldState builds a fresh default world: generated map, reserved
// starting locations, no tribes, turn zero.
func NewWorldState(cfg world.GenConfig) *WorldState {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		cfg.Seed = seed
	}
	m := world.Generate(cfg)

	hexes := make([]*world.Hex, 0, m.HexCount())
	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			if h := m.Get(world.HexCoord{Q: q, R: r}); h != nil {
				hexes = append(hexes, h)
			}
		}
	}

	return &WorldState{
		Turn:              0,
		MapSeed:           seed,
		GenSettings:       cfg,
		Hexes:             hexes,
		StartingLocations: world.PickStartingLocations(m, cfg.StartCount, seed),
	}
}

// NewID returns a fresh identifier for requests, journeys, and
// proposals.
func NewID() string {
	return uuid.NewString()
}
