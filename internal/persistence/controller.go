package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/users"
)

// StorageMode selects the active backend. The mode is decided once at
// initialization and held for the process lifetime; the only exception
// is the scoped file-mode override used by maintenance workflows.
type StorageMode uint8

const (
	ModeUninitialized StorageMode = iota
	ModeDatabase
	ModeFileFallback
)

// ModeName returns a human-readable name for a storage mode.
func ModeName(m StorageMode) string {
	switch m {
	case ModeDatabase:
		return "database"
	case ModeFileFallback:
		return "file-fallback"
	default:
		return "uninitialized"
	}
}

// PersistOptions tunes a PersistWorldState call. SkipValidation is for
// bulk restores where tribe-ownership validation already happened
// upstream (the users were just loaded) and would wrongly reject valid
// tribes.
type PersistOptions struct {
	SkipValidation bool
}

// Controller owns backend selection and dispatches every read and write
// to the relational store or the file store according to its mode.
type Controller struct {
	cfg    Config
	mode   StorageMode
	sql    *sqlStore
	files  *fileStore
	mirror *mirror
}

// NewController builds an uninitialized controller. Call Initialize
// before any other operation.
func NewController(cfg Config) *Controller {
	files := newFileStore(cfg.DataDir)
	return &Controller{
		cfg:    cfg,
		mode:   ModeUninitialized,
		files:  files,
		mirror: &mirror{files: files},
	}
}

// Mode returns the active storage mode.
func (c *Controller) Mode() StorageMode {
	return c.mode
}

// BackupDir is where the repair tools keep their timestamped snapshots.
func (c *Controller) BackupDir() string {
	return c.cfg.DataDir
}

// Close releases the relational connection, if any.
func (c *Controller) Close() error {
	if c.sql != nil {
		return c.sql.Close()
	}
	return nil
}

// Initialize probes the relational store and settles the storage mode.
// On success it ensures the satellite files, a single world-state row,
// and a default admin user exist, then enters database mode. Any
// failure at any step falls back to file mode unconditionally — a
// partially initialized relational handle is never left active.
func (c *Controller) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.initDatabase(ctx); err != nil {
		slog.Error("relational store unavailable, falling back to file storage", "error", err)
		if c.sql != nil {
			c.sql.Close()
			c.sql = nil
			c.mirror.sql = nil
		}
		if err := c.files.ensureDefaults(); err != nil {
			return fmt.Errorf("file fallback init: %w", err)
		}
		c.mode = ModeFileFallback
		slog.Info("storage initialized", "mode", ModeName(c.mode), "dir", c.cfg.DataDir)
		return nil
	}

	c.mode = ModeDatabase
	slog.Info("storage initialized", "mode", ModeName(c.mode), "dsn", c.cfg.DSN)
	return nil
}

func (c *Controller) initDatabase(ctx context.Context) error {
	s, err := openSQL(c.cfg.DSN)
	if err != nil {
		return err
	}
	c.sql = s
	c.mirror.sql = s

	if err := s.healthCheck(ctx); err != nil {
		return err
	}
	if err := c.files.ensureDefaults(); err != nil {
		return fmt.Errorf("satellite files: %w", err)
	}

	n, err := s.worldCount(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		if err := c.bootstrapWorld(ctx); err != nil {
			return fmt.Errorf("bootstrap world: %w", err)
		}
	}
	return nil
}

// bootstrapWorld creates the default world and the default admin user in
// an empty database.
func (c *Controller) bootstrapWorld(ctx context.Context) error {
	slog.Info("no world state found, creating default world")

	admin := users.New(users.DefaultAdminName, c.cfg.AdminPassword, true)
	_, err := c.sql.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (name, password_hash, admin, created_at)
		VALUES (?, ?, ?, ?)`,
		admin.Name, admin.PasswordHash, admin.Admin, admin.CreatedAt)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	ws := game.NewWorldState(c.cfg.GenSettings())
	_, err = c.sql.conn.ExecContext(ctx, `
		INSERT INTO world_state
			(turn, map_seed, gen_settings_json, starting_locations_json, suspended, suspension_msg)
		VALUES (?, ?, '{}', '[]', 0, '')`,
		ws.Turn, seedToString(ws.MapSeed))
	if err != nil {
		return fmt.Errorf("create world row: %w", err)
	}

	known, err := c.userSet(ctx)
	if err != nil {
		return err
	}
	if err := c.sql.syncWorldState(ctx, ws, known); err != nil {
		return err
	}
	slog.Info("default world created",
		"hexes", len(ws.Hexes), "starting_locations", len(ws.StartingLocations))
	return nil
}

// GetWorldState loads the full aggregate from the active backend.
// Returns (nil, nil) when no world has been persisted yet.
func (c *Controller) GetWorldState(ctx context.Context) (*game.WorldState, error) {
	switch c.mode {
	case ModeDatabase:
		ws, err := loadWorldState(ctx, c.sql)
		if err != nil {
			if errors.Is(err, ErrNoWorldState) {
				return nil, nil
			}
			return nil, err
		}
		c.overlaySatellites(ctx, ws)
		return ws, nil

	case ModeFileFallback:
		doc, err := c.files.loadWorld()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		if doc.World == nil {
			return nil, nil
		}
		c.overlaySatellites(ctx, doc.World)
		return doc.World, nil

	default:
		return nil, errors.New("storage not initialized")
	}
}

// overlaySatellites fills the aggregate's satellite documents through
// the dual-write read path (primary preferred when well-typed).
func (c *Controller) overlaySatellites(ctx context.Context, ws *game.WorldState) {
	if ns, err := c.mirror.loadNewsletter(ctx); err == nil {
		ws.Newsletter = ns
	} else {
		slog.Warn("newsletter state unavailable", "error", err)
	}
	if td, err := c.mirror.loadDeadline(ctx); err == nil {
		ws.Deadline = td
	} else {
		slog.Warn("turn deadline unavailable", "error", err)
	}
}

// PersistWorldState writes the full aggregate through the active
// backend, then mirrors the satellite documents to both stores.
func (c *Controller) PersistWorldState(ctx context.Context, ws *game.WorldState, opts PersistOptions) error {
	switch c.mode {
	case ModeDatabase:
		known, err := c.userSet(ctx)
		if err != nil {
			return err
		}
		if err := c.sql.syncWorldState(ctx, ws, known); err != nil {
			if poisoned(err) {
				c.reconnect(ctx)
			}
			return fmt.Errorf("persist world state: %w", err)
		}

	case ModeFileFallback:
		doc, err := c.currentFileDoc()
		if err != nil {
			return err
		}
		if !opts.SkipValidation {
			dropOrphanTribes(ws, users.NewSet(doc.Users))
		}
		doc.World = ws
		if err := c.files.saveWorld(doc); err != nil {
			return fmt.Errorf("persist world state: %w", err)
		}

	default:
		return errors.New("storage not initialized")
	}

	if err := c.mirror.saveNewsletter(ctx, ws.Newsletter); err != nil {
		return err
	}
	if err := c.mirror.saveDeadline(ctx, ws.Deadline); err != nil {
		return err
	}
	return nil
}

// PersistTurn is the routine turn-advancement write: world and tribe
// scalars, garrisons, and the current turn's history row only. In file
// mode there is no cheaper path than a full document write.
func (c *Controller) PersistTurn(ctx context.Context, ws *game.WorldState) error {
	switch c.mode {
	case ModeDatabase:
		if err := c.sql.syncTurn(ctx, ws); err != nil {
			if poisoned(err) {
				c.reconnect(ctx)
			}
			return fmt.Errorf("persist turn: %w", err)
		}
		return nil
	default:
		return c.PersistWorldState(ctx, ws, PersistOptions{})
	}
}

// dropOrphanTribes removes non-AI tribes whose owning player does not
// resolve to a known user. File-mode counterpart of the rewrite-time
// skip; a dropped tribe is a warning, never a fatal error.
func dropOrphanTribes(ws *game.WorldState, known users.Set) {
	valid := ws.Tribes[:0]
	for _, t := range ws.Tribes {
		if !t.IsAI && !known.Has(t.Player) {
			slog.Warn("tribe owner not a known user, dropped", "tribe", t.Name, "player", t.Player)
			continue
		}
		valid = append(valid, t)
	}
	ws.Tribes = valid
}

func (c *Controller) currentFileDoc() (*worldDoc, error) {
	doc, err := c.files.loadWorld()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &worldDoc{}, nil
		}
		return nil, err
	}
	return doc, nil
}

// reconnect closes and reopens the relational connection after a
// poisoned transaction, which can otherwise contaminate subsequent use
// of the connection. If reopening fails the controller falls back to
// file mode for the rest of the process.
func (c *Controller) reconnect(ctx context.Context) {
	slog.Warn("resetting relational connection after poisoned transaction")
	c.sql.Close()

	s, err := openSQL(c.cfg.DSN)
	if err == nil {
		err = s.healthCheck(ctx)
	}
	if err != nil {
		slog.Error("relational reconnect failed, entering file fallback", "error", err)
		if s != nil {
			s.Close()
		}
		c.sql = nil
		c.mirror.sql = nil
		c.mode = ModeFileFallback
		return
	}
	c.sql = s
	c.mirror.sql = s
}

// RunFileMode executes fn against a controller view pinned to the file
// backend, regardless of the active mode. This is the scoped escape
// hatch for narrow maintenance workflows (e.g. seeding a synthetic AI
// user); it is not for ordinary reads or writes.
func (c *Controller) RunFileMode(fn func(*Controller) error) error {
	scoped := &Controller{
		cfg:    c.cfg,
		mode:   ModeFileFallback,
		files:  c.files,
		mirror: &mirror{files: c.files},
	}
	return fn(scoped)
}

// Satellite document operations (dual-write path).

func (c *Controller) SaveNewsletter(ctx context.Context, ns game.NewsletterState) error {
	return c.mirror.saveNewsletter(ctx, ns)
}

func (c *Controller) LoadNewsletter(ctx context.Context) (game.NewsletterState, error) {
	return c.mirror.loadNewsletter(ctx)
}

func (c *Controller) SaveDeadline(ctx context.Context, td game.TurnDeadline) error {
	return c.mirror.saveDeadline(ctx, td)
}

func (c *Controller) LoadDeadline(ctx context.Context) (game.TurnDeadline, error) {
	return c.mirror.loadDeadline(ctx)
}

func (c *Controller) SaveMessages(ctx context.Context, msgs []game.DiploMessage) error {
	return c.mirror.saveMessages(ctx, msgs)
}

func (c *Controller) LoadMessages(ctx context.Context) ([]game.DiploMessage, error) {
	return c.mirror.loadMessages(ctx)
}

// User CRUD. The transport layer manages accounts through these; the
// persistence layer itself only needs them for ownership validation.

func (c *Controller) CreateUser(ctx context.Context, u *users.User) error {
	switch c.mode {
	case ModeDatabase:
		_, err := c.sql.conn.ExecContext(ctx, `
			INSERT INTO users (name, password_hash, admin, created_at)
			VALUES (?, ?, ?, ?)`,
			u.Name, u.PasswordHash, u.Admin, u.CreatedAt)
		if err != nil {
			return fmt.Errorf("create user %s: %w", u.Name, err)
		}
		return nil
	case ModeFileFallback:
		doc, err := c.currentFileDoc()
		if err != nil {
			return err
		}
		for _, existing := range doc.Users {
			if existing.Name == u.Name {
				return fmt.Errorf("create user %s: already exists", u.Name)
			}
		}
		doc.Users = append(doc.Users, u)
		return c.files.saveWorld(doc)
	default:
		return errors.New("storage not initialized")
	}
}

func (c *Controller) GetUser(ctx context.Context, name string) (*users.User, error) {
	switch c.mode {
	case ModeDatabase:
		var u users.User
		err := c.sql.conn.GetContext(ctx, &u,
			"SELECT name, password_hash, admin, created_at FROM users WHERE name = ?", name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("get user %s: %w", name, err)
		}
		return &u, nil
	case ModeFileFallback:
		doc, err := c.currentFileDoc()
		if err != nil {
			return nil, err
		}
		for _, u := range doc.Users {
			if u.Name == name {
				return u, nil
			}
		}
		return nil, nil
	default:
		return nil, errors.New("storage not initialized")
	}
}

func (c *Controller) ListUsers(ctx context.Context) ([]*users.User, error) {
	switch c.mode {
	case ModeDatabase:
		var list []*users.User
		err := c.sql.conn.SelectContext(ctx, &list,
			"SELECT name, password_hash, admin, created_at FROM users ORDER BY name")
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		return list, nil
	case ModeFileFallback:
		doc, err := c.currentFileDoc()
		if err != nil {
			return nil, err
		}
		return doc.Users, nil
	default:
		return nil, errors.New("storage not initialized")
	}
}

func (c *Controller) DeleteUser(ctx context.Context, name string) error {
	switch c.mode {
	case ModeDatabase:
		_, err := c.sql.conn.ExecContext(ctx, "DELETE FROM users WHERE name = ?", name)
		if err != nil {
			return fmt.Errorf("delete user %s: %w", name, err)
		}
		return nil
	case ModeFileFallback:
		doc, err := c.currentFileDoc()
		if err != nil {
			return err
		}
		kept := doc.Users[:0]
		for _, u := range doc.Users {
			if u.Name != name {
				kept = append(kept, u)
			}
		}
		doc.Users = kept
		return c.files.saveWorld(doc)
	default:
		return errors.New("storage not initialized")
	}
}

func (c *Controller) userSet(ctx context.Context) (users.Set, error) {
	list, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return users.NewSet(list), nil
}
