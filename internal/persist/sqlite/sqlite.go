// Package sqlite is a modernc.org/sqlite-backed persist.Backend, adapted
// from the teacher's internal/store/sqlite3: single-writer WAL-mode pool,
// goqu query building, table-prefix pattern. It stores one row per Thing
// UID holding an opaque JSON blob instead of the teacher's per-entity
// structured CRUD, and carries no field encryption (dropped per spec §1's
// persistent-state-encoding boundary).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	_ "modernc.org/sqlite"
	"github.com/worldline-go/types"

	"github.com/rakunlabs/splot/internal/persist"
	"github.com/rakunlabs/splot/internal/splotval"
)

var DefaultTablePrefix = "splot_"

// Config carries the sqlite backend's connection settings.
type Config struct {
	Datasource  string
	TablePrefix *string
}

// SQLite is a persist.Backend over a single-writer modernc.org/sqlite
// connection pool.
type SQLite struct {
	db    *sql.DB
	goqu  *goqu.Database
	table exp.IdentifierExpression
}

// New opens the database, switches it to WAL mode, and ensures the state
// table exists. Unlike the teacher's sqlite3.New, schema setup is an
// inline CREATE TABLE IF NOT EXISTS rather than a muz-driven migration
// run, since muz is not part of this module's dependency graph.
func New(ctx context.Context, cfg Config) (*SQLite, error) {
	if cfg.Datasource == "" {
		return nil, errors.New("sqlite datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	tableName := tablePrefix + "thing_state"
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		uid TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, tableName)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	slog.Info("connected to sqlite persist backend", "datasource", cfg.Datasource)

	return &SQLite{
		db:    db,
		goqu:  goqu.New("sqlite3", db),
		table: goqu.T(tableName),
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context, uid string) (map[string]splotval.Value, bool, error) {
	query, _, err := s.goqu.From(s.table).
		Select("state").
		Where(goqu.I("uid").Eq(uid)).
		ToSQL()
	if err != nil {
		return nil, false, fmt.Errorf("build load query: %w", err)
	}

	var blob string
	err = s.db.QueryRowContext(ctx, query).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state %q: %w", uid, err)
	}

	state, err := persist.DecodeStateJSON([]byte(blob))
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (s *SQLite) Delete(ctx context.Context, uid string) error {
	query, _, err := s.goqu.Delete(s.table).Where(goqu.I("uid").Eq(uid)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete state %q: %w", uid, err)
	}
	return nil
}

func (s *SQLite) save(ctx context.Context, uid string, state map[string]splotval.Value) error {
	blob, err := persist.EncodeStateJSON(state)
	if err != nil {
		return err
	}

	now := types.NewTime(time.Now().UTC())
	query, _, err := s.goqu.Insert(s.table).Rows(
		goqu.Record{
			"uid":        uid,
			"state":      string(blob),
			"updated_at": now,
		},
	).OnConflict(goqu.DoUpdate("uid", goqu.Record{
		"state":      string(blob),
		"updated_at": now,
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build save query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("save state %q: %w", uid, err)
	}
	return nil
}

// OnSave implements thing.PersistListener's non-blocking hook by running
// the save on its own goroutine with a background context, matching the
// fire-and-forget contract spec §4.10 describes for on_save.
func (s *SQLite) OnSave(uid string, state map[string]splotval.Value) {
	go func() {
		if err := s.save(context.Background(), uid, state); err != nil {
			slog.Error("persist sqlite: background save failed", "uid", uid, "error", err)
		}
	}()
}

// OnSaveBlocking implements thing.PersistListener's blocking hook.
func (s *SQLite) OnSaveBlocking(ctx context.Context, uid string, state map[string]splotval.Value) error {
	return s.save(ctx, uid, state)
}
