package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/users"
	"github.com/tribelands/server/internal/world"
)

// smallTuning keeps the bootstrap world tiny so database-backed tests
// stay fast.
const smallTuning = `radius: 4
seed: 7
sea_level: 0.3
mountain_lvl: 0.75
poi_chance: 0.05
start_count: 2
`

// newTestController initializes a database-mode controller over a
// throwaway data directory.
func newTestController(t *testing.T) (*Controller, context.Context) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, tuningFile), []byte(smallTuning), 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}

	cfg := Config{
		DataDir:       dir,
		DSN:           filepath.Join(dir, "test.db"),
		AdminPassword: "secret",
	}
	c := NewController(cfg)
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if c.Mode() != ModeDatabase {
		t.Fatalf("mode=%s, want database", ModeName(c.Mode()))
	}
	t.Cleanup(func() { c.Close() })
	return c, ctx
}

// newFileModeController initializes a controller forced into file
// fallback by an unopenable DSN.
func newFileModeController(t *testing.T) (*Controller, context.Context, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		DataDir:       dir,
		DSN:           filepath.Join(dir, "missing", "nested", "test.db"),
		AdminPassword: "secret",
	}
	c := NewController(cfg)
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if c.Mode() != ModeFileFallback {
		t.Fatalf("mode=%s, want file-fallback", ModeName(c.Mode()))
	}
	t.Cleanup(func() { c.Close() })
	return c, ctx, dir
}

func createTestUsers(t *testing.T, ctx context.Context, c *Controller, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := c.CreateUser(ctx, users.New(name, "pw-"+name, false)); err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
	}
}

func mustKey(t *testing.T, q, r int) string {
	t.Helper()
	key, err := world.FormatLocation(q, r)
	if err != nil {
		t.Fatalf("format (%d, %d): %v", q, r, err)
	}
	return key
}

// fixtureState builds a small fully-populated aggregate whose every
// field should survive a relational round trip unchanged. Hexes are in
// (q, r) order and tribes in name order, matching the load order.
func fixtureState(t *testing.T) *game.WorldState {
	t.Helper()

	home := mustKey(t, 0, 0)       // 050.050
	second := mustKey(t, 0, 1)     // 050.051
	outpostKey := mustKey(t, 1, -1)

	hexes := []*world.Hex{
		{Coord: world.HexCoord{Q: -1, R: 0}, Terrain: world.TerrainForest},
		{Coord: world.HexCoord{Q: 0, R: 0}, Terrain: world.TerrainPlains},
		{Coord: world.HexCoord{Q: 0, R: 1}, Terrain: world.TerrainPlains},
		{Coord: world.HexCoord{Q: 1, R: -1}, Terrain: world.TerrainMountain, POI: &world.PointOfInterest{
			ID:         world.NewPOIID(world.POIOutpost, "Ashfolk"),
			Kind:       world.POIOutpost,
			Difficulty: 3,
			Rarity:     2,
			Fortified:  true,
			OwnerTribe: "Ashfolk",
		}},
		{Coord: world.HexCoord{Q: 1, R: 0}, Terrain: world.TerrainDesert},
	}

	ashfolk := &game.Tribe{
		Name:     "Ashfolk",
		Player:   "alice",
		Color:    "#8844aa",
		Banner:   "raven",
		Location: home,
		Garrisons: map[string]*game.Garrison{
			home: {Troops: 120, Weapons: 30, Chiefs: []game.Chief{
				{Name: "Orun", Skill: 4, Trait: "bold", Mounts: 2},
			}},
			outpostKey: {Troops: 40, Weapons: 10},
		},
		Resources: game.Resources{Food: 200, Wood: 80, Stone: 30, Iron: 12, Gold: 5},
		Research:  game.Research{Level: 2, Points: 45, Known: []string{"smelting"}, Current: "masonry"},
		Diplomacy: map[string]game.DiplomacyStatus{"Boarclan": game.DiplomacyWar},
		Actions: []game.Action{
			{Kind: "move", Target: second, Quantity: 20},
		},
		LastResults: []string{"raid repelled"},
		Submitted:   true,
	}
	boarclan := &game.Tribe{
		Name:     "Boarclan",
		Player:   "bob",
		Location: second,
		Garrisons: map[string]*game.Garrison{
			second: {Troops: 90, Weapons: 25},
		},
		Resources: game.Resources{Food: 150, Wood: 60},
		Research:  game.Research{Level: 1, Points: 10},
		Diplomacy: map[string]game.DiplomacyStatus{"Ashfolk": game.DiplomacyWar},
	}

	return &game.WorldState{
		Turn:    3,
		MapSeed: 987654321,
		GenSettings: world.GenConfig{
			Radius:      5,
			Seed:        987654321,
			SeaLevel:    0.3,
			MountainLvl: 0.75,
			POIChance:   0.05,
			StartCount:  2,
		},
		Hexes:  hexes,
		Tribes: []*game.Tribe{ashfolk, boarclan},
		ChiefRequests: []*game.ChiefRequest{
			{ID: "chief-req-01", Tribe: "Ashfolk", ChiefName: "Vala", Status: "pending", Turn: 3},
		},
		AssetRequests: []*game.AssetRequest{
			{ID: "asset-req-01", Tribe: "Boarclan", Asset: "mounts", Quantity: 4, Status: "pending", Turn: 3},
		},
		Journeys: []*game.Journey{
			{ID: "journey-01", Tribe: "Ashfolk", From: home, To: second,
				Troops: 20, Purpose: "scout", DepartTurn: 3, ArriveTurn: 4},
		},
		Proposals: []*game.DiplomaticProposal{
			{ID: "proposal-01", From: "Boarclan", To: "Ashfolk",
				Proposed: game.DiplomacyPeace, Message: "truce?", Turn: 3},
		},
		History: []*game.TurnRecord{
			{Turn: 1, Records: map[string]game.TribeTurnRecord{
				"Ashfolk": {Results: []string{"settled"}},
			}},
			{Turn: 2, Records: map[string]game.TribeTurnRecord{
				"Ashfolk":  {Actions: []game.Action{{Kind: "gather"}}, Results: []string{"gathered 20 wood"}},
				"Boarclan": {Results: []string{"settled"}},
			}},
		},
		StartingLocations: []string{home, second},
		Suspended:         true,
		SuspensionMsg:     "maintenance window",
		Newsletter: game.NewsletterState{
			Newsletters: []game.Newsletter{
				{Turn: 2, Title: "War Drums", Body: "Ashfolk and Boarclan clash.",
					PublishedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
			},
		},
		Deadline: game.TurnDeadline{
			Deadline: time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		},
	}
}
