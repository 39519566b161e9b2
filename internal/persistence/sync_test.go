package persistence

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tribelands/server/internal/game"
)

func TestSyncWorldState_RejectsOrphanTribes(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	ws := fixtureState(t)
	ws.Tribes = append(ws.Tribes,
		&game.Tribe{
			Name:      "Ghost",
			Player:    "nobody", // no such user
			Location:  mustKey(t, -1, 0),
			Garrisons: map[string]*game.Garrison{mustKey(t, -1, 0): {Troops: 10}},
			Diplomacy: map[string]game.DiplomacyStatus{},
		},
		&game.Tribe{
			Name:      "Warden",
			IsAI:      true, // AI tribes are exempt from ownership validation
			AIType:    "patrol",
			Location:  mustKey(t, 1, 0),
			Garrisons: map[string]*game.Garrison{mustKey(t, 1, 0): {Troops: 50, Weapons: 5}},
			Diplomacy: map[string]game.DiplomacyStatus{},
		},
	)

	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var names []string
	for _, tr := range got.Tribes {
		names = append(names, tr.Name)
	}
	want := []string{"Ashfolk", "Boarclan", "Warden"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tribes after rewrite (-want +got):\n%s", diff)
	}
}

func TestSyncWorldState_DiplomacyPairStoredOnce(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	// Both tribes in the fixture declare the same war against each other.
	if err := c.PersistWorldState(ctx, fixtureState(t), PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	var rows int
	if err := c.sql.conn.GetContext(ctx, &rows, "SELECT COUNT(*) FROM diplomacy"); err != nil {
		t.Fatalf("count diplomacy rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("diplomacy rows=%d, want 1 (one row per unordered pair)", rows)
	}

	// Both sides still read the relation back.
	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s := got.TribeByName("Ashfolk").Diplomacy["Boarclan"]; s != game.DiplomacyWar {
		t.Errorf("Ashfolk→Boarclan status=%s, want war", game.DiplomacyName(s))
	}
	if s := got.TribeByName("Boarclan").Diplomacy["Ashfolk"]; s != game.DiplomacyWar {
		t.Errorf("Boarclan→Ashfolk status=%s, want war", game.DiplomacyName(s))
	}
}

func TestSyncWorldState_HistoryNeverDeleted(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	if err := c.PersistWorldState(ctx, fixtureState(t), PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// A later writer that lost its in-memory history must not erase the
	// persisted log.
	ws, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ws.History = nil
	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("second persist: %v", err)
	}

	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.History) != 2 {
		t.Fatalf("history rows=%d, want 2 surviving the rewrite", len(got.History))
	}
	if got.HistoryFor(1) == nil || got.HistoryFor(2) == nil {
		t.Fatal("expected turns 1 and 2 in surviving history")
	}
}

func TestSyncWorldState_HistoryMergesUpdatedTurn(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	if err := c.PersistWorldState(ctx, fixtureState(t), PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	ws, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ws.HistoryFor(2).Records["Boarclan"] = game.TribeTurnRecord{Results: []string{"amended"}}
	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("second persist: %v", err)
	}

	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec := got.HistoryFor(2)
	if rec == nil {
		t.Fatal("turn 2 history missing")
	}
	if want := []string{"amended"}; !cmp.Equal(want, rec.Records["Boarclan"].Results) {
		t.Errorf("turn 2 Boarclan results=%v, want %v", rec.Records["Boarclan"].Results, want)
	}
}

func TestSyncWorldState_SkipsGarrisonWithoutHex(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	ws := fixtureState(t)
	ash := ws.TribeByName("Ashfolk")
	// (-1, -1) is a valid coordinate but has no hex in this world.
	ash.Garrisons[mustKey(t, -1, -1)] = &game.Garrison{Troops: 5}

	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	gotAsh := got.TribeByName("Ashfolk")
	if g := gotAsh.GarrisonAt(mustKey(t, -1, -1)); g != nil {
		t.Error("garrison without a backing hex survived the rewrite")
	}
	if g := gotAsh.GarrisonAt(mustKey(t, 0, 0)); g == nil {
		t.Error("valid garrison lost alongside the skipped one")
	}
}

func TestSyncWorldState_SkipsMalformedGarrisonKey(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	ws := fixtureState(t)
	ws.TribeByName("Boarclan").Garrisons["-3.4"] = &game.Garrison{Troops: 7}

	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	boar := got.TribeByName("Boarclan")
	if g := boar.GarrisonAt("-3.4"); g != nil {
		t.Error("raw-axial garrison key survived the rewrite")
	}
	if g := boar.GarrisonAt(mustKey(t, 0, 1)); g == nil {
		t.Error("valid garrison lost alongside the skipped one")
	}
}

func TestSyncWorldState_DeduplicatesRequestIDs(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	ws := fixtureState(t)
	ws.ChiefRequests = append(ws.ChiefRequests, &game.ChiefRequest{
		ID: "chief-req-01", Tribe: "Boarclan", ChiefName: "Twin", Status: "pending", Turn: 3,
	})

	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.ChiefRequests) != 1 {
		t.Fatalf("chief requests=%d, want 1 after dedupe", len(got.ChiefRequests))
	}
	if got.ChiefRequests[0].ChiefName != "Vala" {
		t.Errorf("kept request=%q, want the first occurrence", got.ChiefRequests[0].ChiefName)
	}
}

func TestSyncWorldState_SynthesizesHomeGarrison(t *testing.T) {
	c, ctx := newTestController(t)
	createTestUsers(t, ctx, c, "alice", "bob")

	ws := fixtureState(t)
	// A tribe with a home but no surviving garrison rows: every garrison
	// key points at a hex that does not exist, so the rewrite drops them
	// all and the loader materializes the default.
	boar := ws.TribeByName("Boarclan")
	boar.Garrisons = map[string]*game.Garrison{
		mustKey(t, -1, -1): {Troops: 90, Weapons: 25},
	}

	if err := c.PersistWorldState(ctx, ws, PersistOptions{}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := c.GetWorldState(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	g := got.TribeByName("Boarclan").GarrisonAt(mustKey(t, 0, 1))
	if g == nil {
		t.Fatal("no garrison materialized at home location")
	}
	if g.Troops != game.StartingTroops || g.Weapons != game.StartingWeapons {
		t.Errorf("synthetic garrison=%d/%d, want %d/%d",
			g.Troops, g.Weapons, game.StartingTroops, game.StartingWeapons)
	}
}
