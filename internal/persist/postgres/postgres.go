// Package postgres is a pgx-backed persist.Backend, adapted from the
// teacher's internal/store/postgres: goqu query building over
// database/sql via the pgx stdlib driver, pooled connections. It stores
// one row per Thing UID holding an opaque JSON blob, with no field
// encryption (dropped per spec §1's persistent-state-encoding boundary)
// and no muz migration step (inline DDL instead, muz is not part of this
// module's dependency graph).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/worldline-go/types"

	"github.com/rakunlabs/splot/internal/persist"
	"github.com/rakunlabs/splot/internal/splotval"
)

var (
	DefaultTablePrefix = "splot_"

	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 3
	MaxOpenConns    = 3
)

// Config carries the postgres backend's connection settings.
type Config struct {
	Datasource      string
	Schema          string
	TablePrefix     *string
	ConnMaxLifetime *time.Duration
	MaxIdleConns    *int
	MaxOpenConns    *int
}

// Postgres is a persist.Backend over a pgx/database/sql connection pool.
type Postgres struct {
	db    *sql.DB
	goqu  *goqu.Database
	table exp.IdentifierExpression
}

func New(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.Datasource == "" {
		return nil, errors.New("postgres datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	connMaxLifetime := ConnMaxLifetime
	if cfg.ConnMaxLifetime != nil {
		connMaxLifetime = *cfg.ConnMaxLifetime
	}
	maxIdleConns := MaxIdleConns
	if cfg.MaxIdleConns != nil {
		maxIdleConns = *cfg.MaxIdleConns
	}
	maxOpenConns := MaxOpenConns
	if cfg.MaxOpenConns != nil {
		maxOpenConns = *cfg.MaxOpenConns
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	tableName := tablePrefix + "thing_state"
	if cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", cfg.Schema)); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
		tableName = cfg.Schema + "." + tableName
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		uid TEXT PRIMARY KEY,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, tableName)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	slog.Info("connected to postgres persist backend")

	return &Postgres{
		db:    db,
		goqu:  goqu.New("postgres", db),
		table: goqu.T(tableName),
	}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Load(ctx context.Context, uid string) (map[string]splotval.Value, bool, error) {
	query, _, err := p.goqu.From(p.table).
		Select("state").
		Where(goqu.I("uid").Eq(uid)).
		ToSQL()
	if err != nil {
		return nil, false, fmt.Errorf("build load query: %w", err)
	}

	var blob []byte
	err = p.db.QueryRowContext(ctx, query).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state %q: %w", uid, err)
	}

	state, err := persist.DecodeStateJSON(blob)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (p *Postgres) Delete(ctx context.Context, uid string) error {
	query, _, err := p.goqu.Delete(p.table).Where(goqu.I("uid").Eq(uid)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete state %q: %w", uid, err)
	}
	return nil
}

func (p *Postgres) save(ctx context.Context, uid string, state map[string]splotval.Value) error {
	blob, err := persist.EncodeStateJSON(state)
	if err != nil {
		return err
	}

	now := types.NewTime(time.Now().UTC())
	query, _, err := p.goqu.Insert(p.table).Rows(
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
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("save state %q: %w", uid, err)
	}
	return nil
}

// OnSave implements thing.PersistListener's non-blocking hook; the save
// runs on its own goroutine with a background context.
func (p *Postgres) OnSave(uid string, state map[string]splotval.Value) {
	go func() {
		if err := p.save(context.Background(), uid, state); err != nil {
			slog.Error("persist postgres: background save failed", "uid", uid, "error", err)
		}
	}()
}

// OnSaveBlocking implements thing.PersistListener's blocking hook.
func (p *Postgres) OnSaveBlocking(ctx context.Context, uid string, state map[string]splotval.Value) error {
	return p.save(ctx, uid, state)
}
