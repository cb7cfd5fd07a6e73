// Package store persists map templates and training rewards in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"arena-server/internal/game"
	"arena-server/internal/telemetry"
)

// DB wraps the SQLite database connection. It implements game.MapStore.
type DB struct {
	conn   *sql.DB
	tracer trace.Tracer
}

var _ game.MapStore = (*DB)(nil)

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL lets the reward journal write while lookups read
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, tracer: telemetry.Tracer("arena-server/store")}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS map_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		grid TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS map_chains (
		chain_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		template_id TEXT NOT NULL REFERENCES map_templates(id),
		PRIMARY KEY (chain_id, position)
	);

	CREATE TABLE IF NOT EXISTS map_groups (
		group_id TEXT NOT NULL,
		template_id TEXT NOT NULL REFERENCES map_templates(id),
		PRIMARY KEY (group_id, template_id)
	);

	CREATE TABLE IF NOT EXISTS reward_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		round INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		side TEXT NOT NULL DEFAULT '',
		value INTEGER NOT NULL DEFAULT 0,
		session_time REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reward_events_session ON reward_events(session_id, round);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveTemplate inserts or replaces a template.
func (db *DB) SaveTemplate(ctx context.Context, t game.Template) error {
	if t.ID == "" || len(t.Rows) == 0 {
		return errors.New("template needs an id and rows")
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO map_templates (id, name, grid) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, grid = excluded.grid`,
		t.ID, t.Name, strings.Join(t.Rows, "\n"),
	)
	return err
}

// SaveChain replaces the ordered template list of a chain.
func (db *DB) SaveChain(ctx context.Context, id string, templateIDs []string) error {
	return db.replaceSet(ctx, "map_chains", "chain_id", id, templateIDs, true)
}

// SaveGroup replaces the template set of a group.
func (db *DB) SaveGroup(ctx context.Context, id string, templateIDs []string) error {
	return db.replaceSet(ctx, "map_groups", "group_id", id, templateIDs, false)
}

func (db *DB) replaceSet(ctx context.Context, table, key, id string, templateIDs []string, ordered bool) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+key+" = ?", id); err != nil {
		return err
	}
	for i, tid := range templateIDs {
		if ordered {
			_, err = tx.ExecContext(ctx, "INSERT INTO "+table+" ("+key+", position, template_id) VALUES (?, ?, ?)", id, i, tid)
		} else {
			_, err = tx.ExecContext(ctx, "INSERT INTO "+table+" ("+key+", template_id) VALUES (?, ?)", id, tid)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", table, tid, err)
		}
	}
	return tx.Commit()
}

// Template returns the raw grid of template id.
func (db *DB) Template(ctx context.Context, id string) (_ game.Template, err error) {
	ctx, span := db.tracer.Start(ctx, "store.Template", trace.WithAttributes(attribute.String("template.id", id)))
	defer func() { telemetry.End(span, err) }()

	t := game.Template{ID: id}
	var grid string
	err = db.conn.QueryRowContext(ctx, "SELECT name, grid FROM map_templates WHERE id = ?", id).Scan(&t.Name, &grid)
	if errors.Is(err, sql.ErrNoRows) {
		return t, game.ErrTemplateNotFound
	}
	if err != nil {
		return t, err
	}
	t.Rows = strings.Split(grid, "\n")
	return t, nil
}

// Chain returns the template ids of chain id in level order.
func (db *DB) Chain(ctx context.Context, id string) (_ []string, err error) {
	ctx, span := db.tracer.Start(ctx, "store.Chain", trace.WithAttributes(attribute.String("chain.id", id)))
	defer func() { telemetry.End(span, err) }()
	return db.ids(ctx, "SELECT template_id FROM map_chains WHERE chain_id = ? ORDER BY position", id)
}

// Group returns the template ids of group id.
func (db *DB) Group(ctx context.Context, id string) (_ []string, err error) {
	ctx, span := db.tracer.Start(ctx, "store.Group", trace.WithAttributes(attribute.String("group.id", id)))
	defer func() { telemetry.End(span, err) }()
	return db.ids(ctx, "SELECT template_id FROM map_groups WHERE group_id = ? ORDER BY template_id", id)
}

func (db *DB) ids(ctx context.Context, query, id string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			return nil, err
		}
		out = append(out, tid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, game.ErrTemplateNotFound
	}
	return out, nil
}

// Reward is one persisted training event.
type Reward struct {
	SessionID   string
	Round       int
	Kind        string
	EntityID    string
	Source      string
	Side        string
	Value       int
	SessionTime float64
	CreatedAt   time.Time
}

// InsertRewards writes a batch of rewards in one transaction.
func (db *DB) InsertRewards(ctx context.Context, batch []Reward) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reward_events
		(session_id, round, kind, entity_id, source, side, value, session_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.Round, r.Kind, r.EntityID, r.Source, r.Side,
			r.Value, r.SessionTime, created.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert reward %s: %w", r.Kind, err)
		}
	}
	return tx.Commit()
}

// RewardCounts returns the number of events per kind recorded for a session.
func (db *DB) RewardCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT kind, COUNT(*) FROM reward_events WHERE session_id = ? GROUP BY kind", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// RoundRewards returns the rewards of one session round in insertion order.
func (db *DB) RoundRewards(ctx context.Context, sessionID string, round int) ([]Reward, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT session_id, round, kind, entity_id, source, side, value, session_time
		FROM reward_events WHERE session_id = ? AND round = ? ORDER BY id`, sessionID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reward
	for rows.Next() {
		var r Reward
		if err := rows.Scan(&r.SessionID, &r.Round, &r.Kind, &r.EntityID, &r.Source, &r.Side, &r.Value, &r.SessionTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
