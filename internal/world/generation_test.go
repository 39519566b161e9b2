package world

import "testing"

func TestGenerate_Deterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)

	if a.HexCount() != b.HexCount() {
		t.Fatalf("hex counts differ: %d vs %d", a.HexCount(), b.HexCount())
	}
	for coord, ha := range a.Hexes {
		hb := b.Get(coord)
		if hb == nil {
			t.Fatalf("hex %v missing in second map", coord)
		}
		if ha.Terrain != hb.Terrain {
			t.Fatalf("terrain differs at %v: %v vs %v", coord, ha.Terrain, hb.Terrain)
		}
		if (ha.POI == nil) != (hb.POI == nil) {
			t.Fatalf("POI presence differs at %v", coord)
		}
	}
}

func TestGenerate_POIInvariants(t *testing.T) {
	m := Generate(SmallTestConfig())
	for coord, hex := range m.Hexes {
		if hex.POI == nil {
			continue
		}
		if hex.Terrain == TerrainWater {
			t.Errorf("POI on water at %v", coord)
		}
		if hex.POI.Fortified && hex.POI.Kind != POIOutpost {
			t.Errorf("fortified non-outpost at %v: kind=%v", coord, hex.POI.Kind)
		}
		if hex.POI.ID == "" {
			t.Errorf("POI without identifier at %v", coord)
		}
	}
}

func TestPickStartingLocations(t *testing.T) {
	cfg := SmallTestConfig()
	m := Generate(cfg)

	starts := PickStartingLocations(m, cfg.StartCount, cfg.Seed)
	seen := make(map[string]bool)
	for _, key := range starts {
		if seen[key] {
			t.Fatalf("duplicate starting location %q", key)
		}
		seen[key] = true

		coord, err := ParseLocation(key)
		if err != nil {
			t.Fatalf("starting location %q unparseable: %v", key, err)
		}
		hex := m.Get(coord)
		if hex == nil {
			t.Fatalf("starting location %q has no hex", key)
		}
		if hex.Terrain != TerrainPlains {
			t.Fatalf("starting location %q on %s, want plains", key, TerrainName(hex.Terrain))
		}
	}

	again := PickStartingLocations(m, cfg.StartCount, cfg.Seed)
	if len(again) != len(starts) {
		t.Fatalf("starting locations not deterministic: %d vs %d", len(again), len(starts))
	}
	for i := range starts {
		if starts[i] != again[i] {
			t.Fatalf("starting locations not deterministic at %d: %q vs %q", i, starts[i], again[i])
		}
	}
}
