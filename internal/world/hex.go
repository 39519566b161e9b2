package world

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Terrain types for hex tiles.
type Terrain uint8

const (
	TerrainPlains   Terrain = iota // Open grassland — default start terrain
	TerrainForest                  // Dense woods
	TerrainMountain                // High peaks, defensive positions
	TerrainDesert                  // Arid wastes
	TerrainSwamp                   // Marshland
	TerrainTundra                  // Frozen steppe
	TerrainWater                   // Impassable
)

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainPlains:
		return "Plains"
	case TerrainForest:
		return "Forest"
	case TerrainMountain:
		return "Mountain"
	case TerrainDesert:
		return "Desert"
	case TerrainSwamp:
		return "Swamp"
	case TerrainTundra:
		return "Tundra"
	case TerrainWater:
		return "Water"
	default:
		return "Unknown"
	}
}

// POIKind categorizes a point of interest on a hex.
type POIKind uint8

const (
	POIRuin    POIKind = iota // Explorable ruin, difficulty-gated loot
	POIOutpost                // Fortified outpost, ownable by a tribe
	POIShrine                 // Minor bonus site
	POICache                  // One-shot resource cache
)

// POIKindName returns a human-readable name for a POI kind.
func POIKindName(k POIKind) string {
	switch k {
	case POIRuin:
		return "ruin"
	case POIOutpost:
		return "outpost"
	case POIShrine:
		return "shrine"
	case POICache:
		return "cache"
	default:
		return "unknown"
	}
}

// PointOfInterest is an optional feature on a hex. Fortified points can
// be owned by a tribe; ownership must agree with the garrison actually
// holding the hex (see the repair package for reconciliation).
type PointOfInterest struct {
	ID         string  `json:"id"`
	Kind       POIKind `json:"kind"`
	Difficulty int     `json:"difficulty"`
	Rarity     int     `json:"rarity"`
	Fortified  bool    `json:"fortified"`
	OwnerTribe string  `json:"owner_tribe,omitempty"`
}

// NewPOIID builds a point-of-interest identifier embedding the kind and
// the owning tribe (if any), so an identifier always names its owner.
// Ownership transfers regenerate the identifier with the new owner.
func NewPOIID(kind POIKind, owner string) string {
	short := uuid.NewString()[:8]
	if owner == "" {
		return fmt.Sprintf("%s-%s", POIKindName(kind), short)
	}
	slug := strings.ToLower(strings.ReplaceAll(owner, " ", "-"))
	return fmt.Sprintf("%s-%s-%s", POIKindName(kind), slug, short)
}

// Hex represents a single tile on the world map.
type Hex struct {
	Coord   HexCoord         `json:"coord"`
	Terrain Terrain          `json:"terrain"`
	POI     *PointOfInterest `json:"poi,omitempty"`
}
