package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/users"
	"github.com/tribelands/server/internal/world"
)

// hexBatchSize bounds the per-statement cost of the hex bulk insert.
const hexBatchSize = 500

// syncWorldState replaces the entire child graph of the world-state row
// in one transaction: ordered deletes, scalar update, then recreation of
// hexes, tribes, garrisons, diplomacy, requests, journeys, proposals,
// and an upsert of turn history. Turn history is never deleted.
//
// Individual bad records (missing hex, dangling tribe, duplicate id) are
// skipped and logged. A poisoned transaction aborts immediately: issuing
// further statements after one would silently discard work.
func (s *sqlStore) syncWorldState(ctx context.Context, ws *game.WorldState, known users.Set) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rewrite: %w", err)
	}
	defer tx.Rollback()

	var worldID int64
	if err := tx.GetContext(ctx, &worldID, "SELECT id FROM world_state LIMIT 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoWorldState
		}
		return fmt.Errorf("locate world row: %w", err)
	}

	if err := deleteChildren(ctx, tx, worldID); err != nil {
		return err
	}
	if err := updateWorldScalars(ctx, tx, worldID, ws); err != nil {
		return err
	}
	if err := insertHexes(ctx, tx, worldID, ws.Hexes); err != nil {
		return err
	}
	kept, err := upsertTribes(ctx, tx, worldID, ws.Tribes, known)
	if err != nil {
		return err
	}
	if err := insertDiplomacy(ctx, tx, worldID, ws.Tribes, kept); err != nil {
		return err
	}
	if err := insertRequests(ctx, tx, worldID, ws, kept); err != nil {
		return err
	}
	if err := upsertHistory(ctx, tx, worldID, ws.History); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rewrite: %w", err)
	}

	slog.Info("world state rewritten",
		"hexes", humanize.Comma(int64(len(ws.Hexes))),
		"tribes", len(kept),
		"turn", ws.Turn,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// deleteChildren clears the child collections in dependency order.
// Turn history is intentionally absent: history is append/merge-only.
func deleteChildren(ctx context.Context, tx *sqlx.Tx, worldID int64) error {
	stmts := []struct {
		what  string
		query string
	}{
		{"garrisons", "DELETE FROM garrisons WHERE tribe_id IN (SELECT id FROM tribes WHERE world_id = ?)"},
		{"tribes", "DELETE FROM tribes WHERE world_id = ?"},
		{"hexes", "DELETE FROM hexes WHERE world_id = ?"},
		{"chief requests", "DELETE FROM chief_requests WHERE world_id = ?"},
		{"asset requests", "DELETE FROM asset_requests WHERE world_id = ?"},
		{"journeys", "DELETE FROM journeys WHERE world_id = ?"},
		{"proposals", "DELETE FROM proposals WHERE world_id = ?"},
		{"diplomacy", "DELETE FROM diplomacy WHERE world_id = ?"},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, worldID); err != nil {
			return fmt.Errorf("delete %s: %w", st.what, err)
		}
	}
	return nil
}

func updateWorldScalars(ctx context.Context, tx *sqlx.Tx, worldID int64, ws *game.WorldState) error {
	settings, err := json.Marshal(ws.GenSettings)
	if err != nil {
		return fmt.Errorf("encode gen settings: %w", err)
	}
	starts, err := json.Marshal(ws.StartingLocations)
	if err != nil {
		return fmt.Errorf("encode starting locations: %w", err)
	}
	newsletter, err := json.Marshal(ws.Newsletter)
	if err != nil {
		return fmt.Errorf("encode newsletter: %w", err)
	}
	deadline, err := json.Marshal(ws.Deadline)
	if err != nil {
		return fmt.Errorf("encode deadline: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE world_state
		SET turn = ?, map_seed = ?, gen_settings_json = ?, starting_locations_json = ?,
		    suspended = ?, suspension_msg = ?, newsletter_json = ?, turn_deadline = ?
		WHERE id = ?`,
		ws.Turn, seedToString(ws.MapSeed), string(settings), string(starts),
		ws.Suspended, ws.SuspensionMsg, string(newsletter), string(deadline), worldID)
	if err != nil {
		return fmt.Errorf("update world scalars: %w", err)
	}
	return nil
}

// insertHexes recreates the hex rows in batches. A failed batch is
// logged and skipped, not retried, and later batches still run — unless
// the failure poisoned the transaction, which aborts the rewrite.
func insertHexes(ctx context.Context, tx *sqlx.Tx, worldID int64, hexes []*world.Hex) error {
	for from := 0; from < len(hexes); from += hexBatchSize {
		to := from + hexBatchSize
		if to > len(hexes) {
			to = len(hexes)
		}
		batch := hexes[from:to]

		query := `INSERT INTO hexes
			(world_id, q, r, terrain, poi_id, poi_kind, poi_difficulty, poi_rarity, poi_fortified, poi_owner)
			VALUES `
		args := make([]any, 0, len(batch)*10)
		for i, h := range batch {
			if i > 0 {
				query += ", "
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			if h.POI != nil {
				args = append(args, worldID, h.Coord.Q, h.Coord.R, int(h.Terrain),
					h.POI.ID, int(h.POI.Kind), h.POI.Difficulty, h.POI.Rarity, h.POI.Fortified, h.POI.OwnerTribe)
			} else {
				args = append(args, worldID, h.Coord.Q, h.Coord.R, int(h.Terrain),
					nil, nil, nil, nil, nil, nil)
			}
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if poisoned(err) {
				return fmt.Errorf("insert hex batch %d-%d: %w", from, to, err)
			}
			slog.Error("hex batch failed, skipped", "from", from, "to", to, "error", err)
		}
	}
	return nil
}

// upsertTribes recreates tribe and garrison rows. Non-AI tribes whose
// owning player is not a known user are skipped; AI tribes are exempt.
// Returns the set of tribe names actually present after the pass.
func upsertTribes(ctx context.Context, tx *sqlx.Tx, worldID int64, tribes []*game.Tribe, known users.Set) (map[string]bool, error) {
	kept := make(map[string]bool, len(tribes))

	for _, t := range tribes {
		if !t.IsAI && !known.Has(t.Player) {
			slog.Warn("tribe owner not a known user, skipped", "tribe", t.Name, "player", t.Player)
			continue
		}

		resources, _ := json.Marshal(t.Resources)
		research, _ := json.Marshal(t.Research)
		actions, _ := json.Marshal(t.Actions)
		results, _ := json.Marshal(t.LastResults)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO tribes
				(world_id, name, player, is_ai, ai_type, color, banner, location,
				 resources_json, research_json, actions_json, last_results_json, submitted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(world_id, name) DO UPDATE SET
				player = excluded.player, is_ai = excluded.is_ai, ai_type = excluded.ai_type,
				color = excluded.color, banner = excluded.banner, location = excluded.location,
				resources_json = excluded.resources_json, research_json = excluded.research_json,
				actions_json = excluded.actions_json, last_results_json = excluded.last_results_json,
				submitted = excluded.submitted`,
			worldID, t.Name, t.Player, t.IsAI, t.AIType, t.Color, t.Banner, t.Location,
			string(resources), string(research), string(actions), string(results), t.Submitted)
		if err != nil {
			if poisoned(err) {
				return nil, fmt.Errorf("upsert tribe %s: %w", t.Name, err)
			}
			slog.Error("tribe upsert failed, skipped", "tribe", t.Name, "error", err)
			continue
		}

		var tribeID int64
		if err := tx.GetContext(ctx, &tribeID,
			"SELECT id FROM tribes WHERE world_id = ? AND name = ?", worldID, t.Name); err != nil {
			if poisoned(err) {
				return nil, fmt.Errorf("resolve tribe %s: %w", t.Name, err)
			}
			slog.Error("tribe id lookup failed, garrisons skipped", "tribe", t.Name, "error", err)
			continue
		}
		kept[t.Name] = true

		if err := insertGarrisons(ctx, tx, worldID, tribeID, t); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// insertGarrisons resolves each garrison's location key back to a hex
// row and upserts. Garrisons whose key does not parse or whose hex does
// not exist are skipped with an error log.
func insertGarrisons(ctx context.Context, tx *sqlx.Tx, worldID, tribeID int64, t *game.Tribe) error {
	for key, g := range t.Garrisons {
		coord, err := world.ParseLocation(key)
		if err != nil {
			slog.Error("garrison location unparseable, skipped", "tribe", t.Name, "location", key, "error", err)
			continue
		}

		var hexID int64
		err = tx.GetContext(ctx, &hexID,
			"SELECT id FROM hexes WHERE world_id = ? AND q = ? AND r = ?", worldID, coord.Q, coord.R)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				slog.Error("garrison has no matching hex, skipped", "tribe", t.Name, "location", key)
				continue
			}
			if poisoned(err) {
				return fmt.Errorf("resolve hex for garrison %s/%s: %w", t.Name, key, err)
			}
			slog.Error("garrison hex lookup failed, skipped", "tribe", t.Name, "location", key, "error", err)
			continue
		}

		chiefs, _ := json.Marshal(g.Chiefs)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO garrisons (tribe_id, hex_id, troops, weapons, chiefs_json)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tribe_id, hex_id) DO UPDATE SET
				troops = excluded.troops, weapons = excluded.weapons, chiefs_json = excluded.chiefs_json`,
			tribeID, hexID, g.Troops, g.Weapons, string(chiefs))
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("upsert garrison %s/%s: %w", t.Name, key, err)
			}
			slog.Error("garrison upsert failed, skipped", "tribe", t.Name, "location", key, "error", err)
		}
	}
	return nil
}

// insertDiplomacy rebuilds relation rows from the tribes' bidirectional
// diplomacy maps. Each unordered pair is stored exactly once; self-pairs
// and pairs naming a tribe that was not recreated are skipped.
func insertDiplomacy(ctx context.Context, tx *sqlx.Tx, worldID int64, tribes []*game.Tribe, kept map[string]bool) error {
	seen := make(map[[2]string]bool)

	for _, t := range tribes {
		if !kept[t.Name] {
			continue
		}
		for other, status := range t.Diplomacy {
			if other == t.Name {
				slog.Warn("self diplomacy relation, skipped", "tribe", t.Name)
				continue
			}
			if !kept[other] {
				slog.Warn("diplomacy target not recreated, skipped", "tribe", t.Name, "target", other)
				continue
			}
			if seen[[2]string{t.Name, other}] || seen[[2]string{other, t.Name}] {
				continue
			}
			seen[[2]string{t.Name, other}] = true

			_, err := tx.ExecContext(ctx,
				"INSERT INTO diplomacy (world_id, from_tribe, to_tribe, status) VALUES (?, ?, ?, ?)",
				worldID, t.Name, other, int(status))
			if err != nil {
				if poisoned(err) {
					return fmt.Errorf("insert diplomacy %s→%s: %w", t.Name, other, err)
				}
				slog.Error("diplomacy insert failed, skipped", "from", t.Name, "to", other, "error", err)
			}
		}
	}
	return nil
}

// insertRequests recreates chief requests, asset requests, journeys, and
// proposals, skipping records whose tribe was not recreated and records
// with duplicate identifiers.
func insertRequests(ctx context.Context, tx *sqlx.Tx, worldID int64, ws *game.WorldState, kept map[string]bool) error {
	ids := make(map[string]bool)
	dup := func(id string) bool {
		if ids[id] {
			slog.Warn("duplicate record identifier, skipped", "id", id)
			return true
		}
		ids[id] = true
		return false
	}

	for _, r := range ws.ChiefRequests {
		if !kept[r.Tribe] {
			slog.Warn("chief request tribe not recreated, skipped", "id", r.ID, "tribe", r.Tribe)
			continue
		}
		if dup(r.ID) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chief_requests (request_id, world_id, tribe, chief_name, status, turn)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, worldID, r.Tribe, r.ChiefName, r.Status, r.Turn)
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("insert chief request %s: %w", r.ID, err)
			}
			slog.Error("chief request insert failed, skipped", "id", r.ID, "error", err)
		}
	}

	for _, r := range ws.AssetRequests {
		if !kept[r.Tribe] {
			slog.Warn("asset request tribe not recreated, skipped", "id", r.ID, "tribe", r.Tribe)
			continue
		}
		if dup(r.ID) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO asset_requests (request_id, world_id, tribe, asset, quantity, status, turn)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, worldID, r.Tribe, r.Asset, r.Quantity, r.Status, r.Turn)
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("insert asset request %s: %w", r.ID, err)
			}
			slog.Error("asset request insert failed, skipped", "id", r.ID, "error", err)
		}
	}

	for _, j := range ws.Journeys {
		if !kept[j.Tribe] {
			slog.Warn("journey tribe not recreated, skipped", "id", j.ID, "tribe", j.Tribe)
			continue
		}
		if dup(j.ID) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO journeys
				(journey_id, world_id, tribe, from_loc, to_loc, troops, purpose, depart_turn, arrive_turn)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, worldID, j.Tribe, j.From, j.To, j.Troops, j.Purpose, j.DepartTurn, j.ArriveTurn)
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("insert journey %s: %w", j.ID, err)
			}
			slog.Error("journey insert failed, skipped", "id", j.ID, "error", err)
		}
	}

	for _, p := range ws.Proposals {
		if !kept[p.From] || !kept[p.To] {
			slog.Warn("proposal tribe not recreated, skipped", "id", p.ID)
			continue
		}
		if dup(p.ID) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO proposals (proposal_id, world_id, from_tribe, to_tribe, proposed, message, turn)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, worldID, p.From, p.To, int(p.Proposed), p.Message, p.Turn)
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("insert proposal %s: %w", p.ID, err)
			}
			slog.Error("proposal insert failed, skipped", "id", p.ID, "error", err)
		}
	}
	return nil
}

// upsertHistory merges the turn history log: new turns insert, existing
// turns overwrite their per-tribe record payload.
func upsertHistory(ctx context.Context, tx *sqlx.Tx, worldID int64, history []*game.TurnRecord) error {
	for _, rec := range history {
		records, err := json.Marshal(rec.Records)
		if err != nil {
			slog.Error("turn record unencodable, skipped", "turn", rec.Turn, "error", err)
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO turn_history (world_id, turn, records_json)
			VALUES (?, ?, ?)
			ON CONFLICT(world_id, turn) DO UPDATE SET records_json = excluded.records_json`,
			worldID, rec.Turn, string(records))
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("upsert history turn %d: %w", rec.Turn, err)
			}
			slog.Error("history upsert failed, skipped", "turn", rec.Turn, "error", err)
		}
	}
	return nil
}

// syncTurn is the routine turn-advancement variant: world scalars,
// per-tribe scalars, each tribe's garrisons, and the current turn's
// history row. Hexes, requests, journeys, and diplomacy do not change
// during ordinary turn processing and are left untouched. For the
// fields it covers it must produce exactly what syncWorldState would.
func (s *sqlStore) syncTurn(ctx context.Context, ws *game.WorldState) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn sync: %w", err)
	}
	defer tx.Rollback()

	var worldID int64
	if err := tx.GetContext(ctx, &worldID, "SELECT id FROM world_state LIMIT 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoWorldState
		}
		return fmt.Errorf("locate world row: %w", err)
	}

	if err := updateWorldScalars(ctx, tx, worldID, ws); err != nil {
		return err
	}

	for _, t := range ws.Tribes {
		resources, _ := json.Marshal(t.Resources)
		research, _ := json.Marshal(t.Research)
		actions, _ := json.Marshal(t.Actions)
		results, _ := json.Marshal(t.LastResults)

		res, err := tx.ExecContext(ctx, `
			UPDATE tribes SET
				location = ?, resources_json = ?, research_json = ?,
				actions_json = ?, last_results_json = ?, submitted = ?
			WHERE world_id = ? AND name = ?`,
			t.Location, string(resources), string(research),
			string(actions), string(results), t.Submitted, worldID, t.Name)
		if err != nil {
			if poisoned(err) {
				return fmt.Errorf("update tribe %s: %w", t.Name, err)
			}
			slog.Error("tribe turn update failed, skipped", "tribe", t.Name, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			slog.Warn("tribe missing during turn sync, skipped", "tribe", t.Name)
			continue
		}

		var tribeID int64
		if err := tx.GetContext(ctx, &tribeID,
			"SELECT id FROM tribes WHERE world_id = ? AND name = ?", worldID, t.Name); err != nil {
			if poisoned(err) {
				return fmt.Errorf("resolve tribe %s: %w", t.Name, err)
			}
			slog.Error("tribe id lookup failed, garrisons skipped", "tribe", t.Name, "error", err)
			continue
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM garrisons WHERE tribe_id = ?", tribeID); err != nil {
			return fmt.Errorf("clear garrisons for %s: %w", t.Name, err)
		}
		if err := insertGarrisons(ctx, tx, worldID, tribeID, t); err != nil {
			return err
		}
	}

	if rec := ws.HistoryFor(ws.Turn); rec != nil {
		if err := upsertHistory(ctx, tx, worldID, []*game.TurnRecord{rec}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn sync: %w", err)
	}
	return nil
}
