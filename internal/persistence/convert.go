package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/world"
)

// Row shapes for the relational schema.

type worldRow struct {
	ID                    int64          `db:"id"`
	Turn                  int            `db:"turn"`
	MapSeed               string         `db:"map_seed"`
	GenSettingsJSON       string         `db:"gen_settings_json"`
	StartingLocationsJSON string         `db:"starting_locations_json"`
	Suspended             bool           `db:"suspended"`
	SuspensionMsg         string         `db:"suspension_msg"`
	NewsletterJSON        sql.NullString `db:"newsletter_json"`
	TurnDeadline          sql.NullString `db:"turn_deadline"`
	DiploMessagesJSON     sql.NullString `db:"diplo_messages_json"`
}

type hexRow struct {
	ID            int64          `db:"id"`
	WorldID       int64          `db:"world_id"`
	Q             int            `db:"q"`
	R             int            `db:"r"`
	Terrain       int            `db:"terrain"`
	POIID         sql.NullString `db:"poi_id"`
	POIKind       sql.NullInt64  `db:"poi_kind"`
	POIDifficulty sql.NullInt64  `db:"poi_difficulty"`
	POIRarity     sql.NullInt64  `db:"poi_rarity"`
	POIFortified  sql.NullBool   `db:"poi_fortified"`
	POIOwner      sql.NullString `db:"poi_owner"`
}

type tribeRow struct {
	ID              int64          `db:"id"`
	WorldID         int64          `db:"world_id"`
	Name            string         `db:"name"`
	Player          string         `db:"player"`
	IsAI            bool           `db:"is_ai"`
	AIType          string         `db:"ai_type"`
	Color           string         `db:"color"`
	Banner          string         `db:"banner"`
	Location        string         `db:"location"`
	ResourcesJSON   string         `db:"resources_json"`
	ResearchJSON    string         `db:"research_json"`
	ActionsJSON     sql.NullString `db:"actions_json"`
	LastResultsJSON sql.NullString `db:"last_results_json"`
	Submitted       bool           `db:"submitted"`
}

type garrisonRow struct {
	TribeID    int64          `db:"tribe_id"`
	Q          int            `db:"q"`
	R          int            `db:"r"`
	Troops     int            `db:"troops"`
	Weapons    int            `db:"weapons"`
	ChiefsJSON sql.NullString `db:"chiefs_json"`
}

type diplomacyRow struct {
	FromTribe string `db:"from_tribe"`
	ToTribe   string `db:"to_tribe"`
	Status    int    `db:"status"`
}

// Seed storage. The generation seed is stored as an arbitrary-precision
// decimal string; the aggregate exposes it as int64. Seeds a game can
// actually produce always fit, and anything that doesn't is corrupt
// data, not a value to truncate.

func seedToString(seed int64) string {
	return new(big.Int).SetInt64(seed).String()
}

func seedFromString(s string) (int64, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("map seed %q is not a decimal integer", s)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("map seed %q exceeds int64 range", s)
	}
	return n.Int64(), nil
}

// loadWorldState reads the single world row and all child collections
// and assembles the runtime aggregate. Satellite documents (newsletter,
// deadline) are overlaid by the caller through the dual-write mirror.
func loadWorldState(ctx context.Context, s *sqlStore) (*game.WorldState, error) {
	var wr worldRow
	if err := s.conn.GetContext(ctx, &wr, "SELECT * FROM world_state LIMIT 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoWorldState
		}
		return nil, fmt.Errorf("load world row: %w", err)
	}

	seed, err := seedFromString(wr.MapSeed)
	if err != nil {
		return nil, fmt.Errorf("load world row: %w", err)
	}

	ws := &game.WorldState{
		Turn:          wr.Turn,
		MapSeed:       seed,
		Suspended:     wr.Suspended,
		SuspensionMsg: wr.SuspensionMsg,
	}
	if err := json.Unmarshal([]byte(wr.GenSettingsJSON), &ws.GenSettings); err != nil {
		return nil, fmt.Errorf("decode gen settings: %w", err)
	}
	if err := json.Unmarshal([]byte(wr.StartingLocationsJSON), &ws.StartingLocations); err != nil {
		return nil, fmt.Errorf("decode starting locations: %w", err)
	}

	if err := loadHexes(ctx, s, wr.ID, ws); err != nil {
		return nil, err
	}
	if err := loadTribes(ctx, s, wr.ID, ws); err != nil {
		return nil, err
	}
	if err := loadDiplomacy(ctx, s, wr.ID, ws); err != nil {
		return nil, err
	}
	if err := loadRequests(ctx, s, wr.ID, ws); err != nil {
		return nil, err
	}
	if err := loadHistory(ctx, s, wr.ID, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func loadHexes(ctx context.Context, s *sqlStore, worldID int64, ws *game.WorldState) error {
	var rows []hexRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT * FROM hexes WHERE world_id = ? ORDER BY q, r", worldID)
	if err != nil {
		return fmt.Errorf("load hexes: %w", err)
	}

	ws.Hexes = make([]*world.Hex, 0, len(rows))
	for _, hr := range rows {
		h := &world.Hex{
			Coord:   world.HexCoord{Q: hr.Q, R: hr.R},
			Terrain: world.Terrain(hr.Terrain),
		}
		if hr.POIID.Valid {
			h.POI = &world.PointOfInterest{
				ID:         hr.POIID.String,
				Kind:       world.POIKind(hr.POIKind.Int64),
				Difficulty: int(hr.POIDifficulty.Int64),
				Rarity:     int(hr.POIRarity.Int64),
				Fortified:  hr.POIFortified.Bool,
				OwnerTribe: hr.POIOwner.String,
			}
		}
		ws.Hexes = append(ws.Hexes, h)
	}
	return nil
}

func loadTribes(ctx context.Context, s *sqlStore, worldID int64, ws *game.WorldState) error {
	var rows []tribeRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT * FROM tribes WHERE world_id = ? ORDER BY name", worldID)
	if err != nil {
		return fmt.Errorf("load tribes: %w", err)
	}

	for _, tr := range rows {
		t := &game.Tribe{
			Name:      tr.Name,
			Player:    tr.Player,
			IsAI:      tr.IsAI,
			AIType:    tr.AIType,
			Color:     tr.Color,
			Banner:    tr.Banner,
			Location:  tr.Location,
			Garrisons: make(map[string]*game.Garrison),
			Diplomacy: make(map[string]game.DiplomacyStatus),
			Submitted: tr.Submitted,
		}
		if err := json.Unmarshal([]byte(tr.ResourcesJSON), &t.Resources); err != nil {
			slog.Error("tribe resources undecodable, zeroed", "tribe", tr.Name, "error", err)
		}
		if err := json.Unmarshal([]byte(tr.ResearchJSON), &t.Research); err != nil {
			slog.Error("tribe research undecodable, zeroed", "tribe", tr.Name, "error", err)
		}
		if tr.ActionsJSON.Valid && tr.ActionsJSON.String != "" {
			if err := json.Unmarshal([]byte(tr.ActionsJSON.String), &t.Actions); err != nil {
				slog.Error("tribe actions undecodable, dropped", "tribe", tr.Name, "error", err)
			}
		}
		if tr.LastResultsJSON.Valid && tr.LastResultsJSON.String != "" {
			if err := json.Unmarshal([]byte(tr.LastResultsJSON.String), &t.LastResults); err != nil {
				slog.Error("tribe results undecodable, dropped", "tribe", tr.Name, "error", err)
			}
		}

		if err := loadGarrisons(ctx, s, tr.ID, t); err != nil {
			return err
		}
		if len(t.Garrisons) == 0 && t.Location != "" {
			materializeDefaultGarrison(t)
		}
		ws.Tribes = append(ws.Tribes, t)
	}
	return nil
}

func loadGarrisons(ctx context.Context, s *sqlStore, tribeID int64, t *game.Tribe) error {
	var rows []garrisonRow
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT g.tribe_id, h.q, h.r, g.troops, g.weapons, g.chiefs_json
		FROM garrisons g JOIN hexes h ON h.id = g.hex_id
		WHERE g.tribe_id = ?`, tribeID)
	if err != nil {
		return fmt.Errorf("load garrisons for %s: %w", t.Name, err)
	}

	for _, gr := range rows {
		key, err := world.FormatLocation(gr.Q, gr.R)
		if err != nil {
			slog.Error("garrison hex out of coordinate range, skipped",
				"tribe", t.Name, "q", gr.Q, "r", gr.R, "error", err)
			continue
		}
		g := &game.Garrison{Troops: gr.Troops, Weapons: gr.Weapons}
		if gr.ChiefsJSON.Valid && gr.ChiefsJSON.String != "" {
			if err := json.Unmarshal([]byte(gr.ChiefsJSON.String), &g.Chiefs); err != nil {
				slog.Error("garrison chiefs undecodable, dropped",
					"tribe", t.Name, "location", key, "error", err)
			}
		}
		t.Garrisons[key] = g
	}
	return nil
}

// materializeDefaultGarrison repairs a historical data gap: a tribe with
// a known home location but zero garrison rows gets a default starting
// garrison there. This is a repair, not a normal load path, and is
// logged as such so it never silently masks other data loss.
func materializeDefaultGarrison(t *game.Tribe) {
	t.Garrisons[t.Location] = &game.Garrison{
		Troops:  game.StartingTroops,
		Weapons: game.StartingWeapons,
	}
	slog.Warn("repair: materialized synthetic default garrison",
		"tribe", t.Name, "location", t.Location)
}

// loadDiplomacy folds the directional relation rows into each tribe's
// bidirectional diplomacy map: both the outgoing and the incoming side
// of a row contribute the opposite tribe's status.
func loadDiplomacy(ctx context.Context, s *sqlStore, worldID int64, ws *game.WorldState) error {
	var rows []diplomacyRow
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT from_tribe, to_tribe, status FROM diplomacy WHERE world_id = ?", worldID)
	if err != nil {
		return fmt.Errorf("load diplomacy: %w", err)
	}

	for _, dr := range rows {
		from := ws.TribeByName(dr.FromTribe)
		to := ws.TribeByName(dr.ToTribe)
		if from == nil || to == nil {
			slog.Warn("diplomacy row references unknown tribe, skipped",
				"from", dr.FromTribe, "to", dr.ToTribe)
			continue
		}
		from.Diplomacy[to.Name] = game.DiplomacyStatus(dr.Status)
		to.Diplomacy[from.Name] = game.DiplomacyStatus(dr.Status)
	}
	return nil
}

func loadRequests(ctx context.Context, s *sqlStore, worldID int64, ws *game.WorldState) error {
	err := s.conn.SelectContext(ctx, &ws.ChiefRequests, `
		SELECT request_id, tribe, chief_name, status, turn
		FROM chief_requests WHERE world_id = ? ORDER BY request_id`, worldID)
	if err != nil {
		return fmt.Errorf("load chief requests: %w", err)
	}
	err = s.conn.SelectContext(ctx, &ws.AssetRequests, `
		SELECT request_id, tribe, asset, quantity, status, turn
		FROM asset_requests WHERE world_id = ? ORDER BY request_id`, worldID)
	if err != nil {
		return fmt.Errorf("load asset requests: %w", err)
	}
	err = s.conn.SelectContext(ctx, &ws.Journeys, `
		SELECT journey_id, tribe, from_loc, to_loc, troops, purpose, depart_turn, arrive_turn
		FROM journeys WHERE world_id = ? ORDER BY journey_id`, worldID)
	if err != nil {
		return fmt.Errorf("load journeys: %w", err)
	}
	err = s.conn.SelectContext(ctx, &ws.Proposals, `
		SELECT proposal_id, from_tribe, to_tribe, proposed, message, turn
		FROM proposals WHERE world_id = ? ORDER BY proposal_id`, worldID)
	if err != nil {
		return fmt.Errorf("load proposals: %w", err)
	}
	return nil
}

func loadHistory(ctx context.Context, s *sqlStore, worldID int64, ws *game.WorldState) error {
	var rows []struct {
		Turn        int    `db:"turn"`
		RecordsJSON string `db:"records_json"`
	}
	err := s.conn.SelectContext(ctx, &rows,
		"SELECT turn, records_json FROM turn_history WHERE world_id = ? ORDER BY turn", worldID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	for _, hr := range rows {
		rec := &game.TurnRecord{Turn: hr.Turn}
		if err := json.Unmarshal([]byte(hr.RecordsJSON), &rec.Records); err != nil {
			slog.Error("turn history undecodable, skipped", "turn", hr.Turn, "error", err)
			continue
		}
		ws.History = append(ws.History, rec)
	}
	return nil
}
