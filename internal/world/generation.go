// Map generation using layered simplex noise. Generates elevation,
// rainfall, and temperature fields, derives terrain, then scatters
// points of interest and picks tribe starting locations.
package world

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds map generation parameters. The YAML tags allow an
// optional tuning file in the data directory to override the defaults.
type GenConfig struct {
	Radius      int     `yaml:"radius"`       // Hex grid radius (must be <= MaxAxial)
	Seed        int64   `yaml:"seed"`         // Random seed (0 = random)
	SeaLevel    float64 `yaml:"sea_level"`    // Elevation threshold for water (0.0–1.0)
	MountainLvl float64 `yaml:"mountain_lvl"` // Elevation threshold for mountains (0.0–1.0)
	POIChance   float64 `yaml:"poi_chance"`   // Per-land-hex probability of a point of interest
	StartCount  int     `yaml:"start_count"`  // Starting locations to reserve for tribes
}

// DefaultGenConfig returns the standard map used when a world is first
// created and no tuning file is present.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:      24,
		Seed:        0,
		SeaLevel:    0.25,
		MountainLvl: 0.72,
		POIChance:   0.04,
		StartCount:  16,
	}
}

// SmallTestConfig returns a tiny map for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius:      5,
		Seed:        42,
		SeaLevel:    0.30,
		MountainLvl: 0.75,
		POIChance:   0.10,
		StartCount:  4,
	}
}

// Generate creates a complete world map with terrain and points of
// interest. Deterministic for a fixed non-zero seed.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Radius > MaxAxial {
		cfg.Radius = MaxAxial
	}

	// Independent noise layers for elevation, rainfall, temperature.
	elevNoise := opensimplex.NewNormalized(seed)
	rainNoise := opensimplex.NewNormalized(seed + 1)
	tempNoise := opensimplex.NewNormalized(seed + 2)

	m := NewMap(cfg.Radius)
	rng := rand.New(rand.NewSource(seed + 100))

	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			coord := HexCoord{Q: q, R: r}
			if !inRadius(coord, cfg.Radius) {
				continue
			}

			// Hex axial → cartesian for noise sampling:
			// x = q + r*0.5, y = r * sqrt(3)/2
			x := float64(q) + float64(r)*0.5
			y := float64(r) * math.Sqrt(3.0) / 2.0

			elev := octaveNoise(elevNoise, x, y, 4, 0.08, 0.5)
			rain := octaveNoise(rainNoise, x, y, 3, 0.06, 0.5)
			temp := octaveNoise(tempNoise, x, y, 3, 0.05, 0.5)

			// Continental shaping: lower elevation toward the rim so the
			// map is ringed by water.
			distFromCenter := math.Sqrt(x*x+y*y) / float64(cfg.Radius)
			edgeFalloff := 1.0 - math.Pow(distFromCenter, 3.5)
			if edgeFalloff < 0 {
				edgeFalloff = 0
			}
			elev *= edgeFalloff

			temp = temp*0.6 + (1.0-math.Abs(y)/float64(cfg.Radius))*0.3 + (1.0-elev)*0.1

			hex := &Hex{
				Coord:   coord,
				Terrain: deriveTerrain(elev, rain, temp, cfg),
			}
			if hex.Terrain != TerrainWater && rng.Float64() < cfg.POIChance {
				hex.POI = rollPOI(rng)
			}
			m.Set(hex)
		}
	}

	return m
}

func inRadius(c HexCoord, radius int) bool {
	aq, ar, as := abs(c.Q), abs(c.R), abs(c.S())
	max := aq
	if ar > max {
		max = ar
	}
	if as > max {
		max = as
	}
	return max <= radius
}

// deriveTerrain determines terrain type from environmental parameters.
func deriveTerrain(elev, rain, temp float64, cfg GenConfig) Terrain {
	if elev < cfg.SeaLevel {
		return TerrainWater
	}
	if elev > cfg.MountainLvl {
		return TerrainMountain
	}
	if temp < 0.25 {
		return TerrainTundra
	}
	if rain < 0.25 && temp > 0.5 {
		return TerrainDesert
	}
	if rain > 0.7 && elev < 0.45 {
		return TerrainSwamp
	}
	if rain > 0.45 && elev > 0.45 {
		return TerrainForest
	}
	return TerrainPlains
}

// rollPOI picks a point-of-interest kind and stats. Outposts start
// fortified and unowned; the first tribe to garrison one claims it.
func rollPOI(rng *rand.Rand) *PointOfInterest {
	roll := rng.Float64()
	var kind POIKind
	switch {
	case roll < 0.35:
		kind = POIRuin
	case roll < 0.60:
		kind = POIOutpost
	case roll < 0.85:
		kind = POIShrine
	default:
		kind = POICache
	}
	return &PointOfInterest{
		ID:         NewPOIID(kind, ""),
		Kind:       kind,
		Difficulty: 1 + rng.Intn(10),
		Rarity:     1 + rng.Intn(5),
		Fortified:  kind == POIOutpost,
	}
}

// PickStartingLocations selects spread-out plains hexes as tribe start
// positions, returned as location keys. Deterministic for a fixed seed.
func PickStartingLocations(m *Map, count int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed + 200))

	var candidates []HexCoord
	for coord, hex := range m.Hexes {
		if hex.Terrain == TerrainPlains && hex.POI == nil {
			candidates = append(candidates, coord)
		}
	}
	// Map iteration order is random; sort for determinism before shuffling.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Q != candidates[j].Q {
			return candidates[i].Q < candidates[j].Q
		}
		return candidates[i].R < candidates[j].R
	})
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	minSpacing := m.Radius / 4
	if minSpacing < 2 {
		minSpacing = 2
	}

	var picked []HexCoord
	for _, c := range candidates {
		if len(picked) >= count {
			break
		}
		ok := true
		for _, p := range picked {
			if Distance(c, p) < minSpacing {
				ok = false
				break
			}
		}
		if ok {
			picked = append(picked, c)
		}
	}

	keys := make([]string, 0, len(picked))
	for _, c := range picked {
		keys = append(keys, c.Key())
	}
	return keys
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, hex := range m.Hexes {
		counts[hex.Terrain]++
	}
	return counts
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
