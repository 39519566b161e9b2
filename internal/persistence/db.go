// Package persistence is the world-state store: a SQLite primary backend
// with a flat-file fallback, a relational↔aggregate converter, a bulk
// rewrite synchronizer, and a dual-write mirror for the satellite
// documents (newsletter, turn deadline, diplomatic messages).
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Transaction allowances. Full-state restores can be large, so the
// rewrite transaction gets a generous wall clock, with a little extra
// for acquiring the connection in the first place.
const (
	txTimeout      = 2 * time.Minute
	connectTimeout = txTimeout + 30*time.Second
)

// sqlStore wraps the SQLite connection for relational world storage.
type sqlStore struct {
	conn *sqlx.DB
}

// openSQL opens or creates the SQLite database named by the connection
// string and applies the schema.
func openSQL(dsn string) (*sqlStore, error) {
	conn, err := sqlx.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &sqlStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// healthCheck performs the trivial round trip used to decide between
// database and file-fallback mode at startup.
func (s *sqlStore) healthCheck(ctx context.Context) error {
	var one int
	if err := s.conn.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.conn.Close()
}

func (s *sqlStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		name TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		admin INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_state (
		id INTEGER PRIMARY KEY,
		turn INTEGER NOT NULL,
		map_seed TEXT NOT NULL,
		gen_settings_json TEXT NOT NULL,
		starting_locations_json TEXT NOT NULL,
		suspended INTEGER NOT NULL DEFAULT 0,
		suspension_msg TEXT NOT NULL DEFAULT '',
		newsletter_json TEXT,
		turn_deadline TEXT,
		diplo_messages_json TEXT
	);

	CREATE TABLE IF NOT EXISTS hexes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		world_id INTEGER NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		terrain INTEGER NOT NULL,
		poi_id TEXT,
		poi_kind INTEGER,
		poi_difficulty INTEGER,
		poi_rarity INTEGER,
		poi_fortified INTEGER,
		poi_owner TEXT,
		UNIQUE(world_id, q, r)
	);

	CREATE TABLE IF NOT EXISTS tribes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		world_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		player TEXT NOT NULL,
		is_ai INTEGER NOT NULL DEFAULT 0,
		ai_type TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		banner TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		resources_json TEXT NOT NULL,
		research_json TEXT NOT NULL,
		actions_json TEXT,
		last_results_json TEXT,
		submitted INTEGER NOT NULL DEFAULT 0,
		UNIQUE(world_id, name)
	);

	CREATE TABLE IF NOT EXISTS garrisons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tribe_id INTEGER NOT NULL,
		hex_id INTEGER NOT NULL,
		troops INTEGER NOT NULL,
		weapons INTEGER NOT NULL,
		chiefs_json TEXT,
		UNIQUE(tribe_id, hex_id)
	);

	CREATE TABLE IF NOT EXISTS diplomacy (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		world_id INTEGER NOT NULL,
		from_tribe TEXT NOT NULL,
		to_tribe TEXT NOT NULL,
		status INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chief_requests (
		request_id TEXT PRIMARY KEY,
		world_id INTEGER NOT NULL,
		tribe TEXT NOT NULL,
		chief_name TEXT NOT NULL,
		status TEXT NOT NULL,
		turn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS asset_requests (
		request_id TEXT PRIMARY KEY,
		world_id INTEGER NOT NULL,
		tribe TEXT NOT NULL,
		asset TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL,
		turn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journeys (
		journey_id TEXT PRIMARY KEY,
		world_id INTEGER NOT NULL,
		tribe TEXT NOT NULL,
		from_loc TEXT NOT NULL,
		to_loc TEXT NOT NULL,
		troops INTEGER NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		depart_turn INTEGER NOT NULL,
		arrive_turn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS proposals (
		proposal_id TEXT PRIMARY KEY,
		world_id INTEGER NOT NULL,
		from_tribe TEXT NOT NULL,
		to_tribe TEXT NOT NULL,
		proposed INTEGER NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		turn INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turn_history (
		world_id INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		records_json TEXT NOT NULL,
		UNIQUE(world_id, turn)
	);

	CREATE INDEX IF NOT EXISTS idx_hexes_world ON hexes(world_id);
	CREATE INDEX IF NOT EXISTS idx_tribes_world ON tribes(world_id);
	CREATE INDEX IF NOT EXISTS idx_garrisons_tribe ON garrisons(tribe_id);
	CREATE INDEX IF NOT EXISTS idx_diplomacy_world ON diplomacy(world_id);
	CREATE INDEX IF NOT EXISTS idx_history_world ON turn_history(world_id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// worldID returns the id of the single world-state row, or
// ErrNoWorldState.
func (s *sqlStore) worldID(ctx context.Context) (int64, error) {
	var id int64
	err := s.conn.GetContext(ctx, &id, "SELECT id FROM world_state LIMIT 1")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoWorldState
		}
		return 0, err
	}
	return id, nil
}

// worldCount reports how many world-state rows exist. Used at
// initialization to decide whether a default world must be created.
func (s *sqlStore) worldCount(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM world_state"); err != nil {
		return 0, err
	}
	return n, nil
}
