// Package repair holds the idempotent data-integrity maintenance tools:
// ownership reconciliation for fortified points of interest, garrison
// coordinate backup/restore and correction, and read-only diagnostics.
// These run against a loaded world state; callers persist the result
// through the storage controller afterward.
package repair

import (
	"log/slog"
	"sort"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/world"
)

// garrisonsAt returns every tribe garrisoning the given hex, with the
// garrison itself.
func garrisonsAt(ws *game.WorldState, key string) []tribeGarrison {
	var out []tribeGarrison
	for _, t := range ws.Tribes {
		if g := t.GarrisonAt(key); g != nil {
			out = append(out, tribeGarrison{Tribe: t, Garrison: g})
		}
	}
	// Deterministic order: strongest first, name as tiebreak.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Garrison.Troops != out[j].Garrison.Troops {
			return out[i].Garrison.Troops > out[j].Garrison.Troops
		}
		return out[i].Tribe.Name < out[j].Tribe.Name
	})
	return out
}

type tribeGarrison struct {
	Tribe    *game.Tribe
	Garrison *game.Garrison
}

// ReconcileHexOwnership corrects the declared owner of one fortified
// point of interest against the garrisons actually holding the hex.
// Returns true if ownership changed.
//
// Zero garrisons leave an abandoned outpost untouched. A single
// garrison must own the hex. With multiple garrisons the incumbent
// keeps the hex if it still garrisons it; otherwise the strongest
// garrison takes over.
func ReconcileHexOwnership(ws *game.WorldState, hex *world.Hex) bool {
	if hex.POI == nil || !hex.POI.Fortified {
		return false
	}
	key, err := world.FormatLocation(hex.Coord.Q, hex.Coord.R)
	if err != nil {
		slog.Error("fortified hex out of coordinate range", "q", hex.Coord.Q, "r", hex.Coord.R, "error", err)
		return false
	}

	holders := garrisonsAt(ws, key)
	switch len(holders) {
	case 0:
		// Abandoned outpost; ownership is historical, not wrong.
		return false
	case 1:
		return transferOwnership(hex, holders[0].Tribe.Name, key)
	default:
		for _, h := range holders {
			if h.Tribe.Name == hex.POI.OwnerTribe {
				return false // incumbent still holds the hex
			}
		}
		return transferOwnership(hex, holders[0].Tribe.Name, key)
	}
}

func transferOwnership(hex *world.Hex, owner, key string) bool {
	if hex.POI.OwnerTribe == owner {
		return false
	}
	old := hex.POI.OwnerTribe
	hex.POI.OwnerTribe = owner
	// The identifier embeds the owner; regenerate it on every transfer.
	hex.POI.ID = world.NewPOIID(hex.POI.Kind, owner)
	slog.Info("ownership corrected", "location", key, "from", old, "to", owner)
	return true
}

// ReconcileAllOwnership runs ownership reconciliation over every
// fortified point of interest. Returns the number of corrections.
// Idempotent: a second pass over the result changes nothing.
func ReconcileAllOwnership(ws *game.WorldState) int {
	changed := 0
	for _, hex := range ws.Hexes {
		if ReconcileHexOwnership(ws, hex) {
			changed++
		}
	}
	if changed > 0 {
		slog.Info("ownership reconciliation complete", "corrections", changed)
	}
	return changed
}
