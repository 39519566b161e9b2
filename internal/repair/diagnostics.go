package repair

import (
	"math/rand"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/world"
)

// KeyClass classifies the format of a garrison location key.
type KeyClass string

const (
	KeyCanonical KeyClass = "canonical" // three-digit offset groups
	KeyRawAxial  KeyClass = "raw-axial" // legacy signed integers, repairable
	KeyMalformed KeyClass = "malformed" // neither, unrepairable
)

// ClassifyKey reports which format a garrison key is in.
func ClassifyKey(key string) KeyClass {
	if _, err := world.ParseLocation(key); err == nil {
		return KeyCanonical
	}
	if _, ok := parseRawAxial(key); ok {
		return KeyRawAxial
	}
	return KeyMalformed
}

// Diagnostics is a read-only integrity report over a loaded world
// state, used to decide whether a repair is warranted. Producing it
// never mutates anything.
type Diagnostics struct {
	Garrisons  int              `json:"garrisons"`
	KeyClasses map[KeyClass]int `json:"key_classes"`

	// Coordinate range over parseable garrison keys.
	MinQ int `json:"min_q"`
	MaxQ int `json:"max_q"`
	MinR int `json:"min_r"`
	MaxR int `json:"max_r"`

	// Garrisons whose coordinates have no hex in this world.
	MissingHexes int `json:"missing_hexes"`

	// Sampled tribes whose home location has no garrison of theirs.
	SampledTribes     int `json:"sampled_tribes"`
	HomeMismatches    int `json:"home_mismatches"`
	FortifiedOutposts int `json:"fortified_outposts"`
}

// Diagnose builds the integrity report, sampling up to sampleSize tribes
// for the home-location consistency check.
func Diagnose(ws *game.WorldState, sampleSize int) Diagnostics {
	d := Diagnostics{KeyClasses: make(map[KeyClass]int)}

	hexes := world.Index(ws.Hexes, ws.GenSettings.Radius)
	first := true

	for _, t := range ws.Tribes {
		for key := range t.Garrisons {
			d.Garrisons++
			class := ClassifyKey(key)
			d.KeyClasses[class]++
			if class != KeyCanonical {
				continue
			}
			coord, _ := world.ParseLocation(key)
			if first {
				d.MinQ, d.MaxQ, d.MinR, d.MaxR = coord.Q, coord.Q, coord.R, coord.R
				first = false
			} else {
				if coord.Q < d.MinQ {
					d.MinQ = coord.Q
				}
				if coord.Q > d.MaxQ {
					d.MaxQ = coord.Q
				}
				if coord.R < d.MinR {
					d.MinR = coord.R
				}
				if coord.R > d.MaxR {
					d.MaxR = coord.R
				}
			}
			if hexes.Get(coord) == nil {
				d.MissingHexes++
			}
		}
	}

	for _, hex := range ws.Hexes {
		if hex.POI != nil && hex.POI.Fortified {
			d.FortifiedOutposts++
		}
	}

	// Sample tribes for home-location consistency.
	idx := rand.Perm(len(ws.Tribes))
	if sampleSize > len(idx) {
		sampleSize = len(idx)
	}
	for _, i := range idx[:sampleSize] {
		t := ws.Tribes[i]
		if t.Location == "" {
			continue
		}
		d.SampledTribes++
		if t.GarrisonAt(t.Location) == nil {
			d.HomeMismatches++
		}
	}
	return d
}
