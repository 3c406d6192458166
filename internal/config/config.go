package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var Service = ""

// Config is the top-level SPLOT_-prefixed configuration loaded via chu,
// adapted from the teacher's internal/config/config.go: the LLM/provider
// and gateway-auth sections are dropped, and Persist/Server sections
// replace Store/Gateway for this runtime's domain.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Persist selects the persistent-state backend (C10) Things and
	// Technologies save their SAVABLE CONFIG/METADATA through.
	Persist Persist `cfg:"persist"`

	// Server configures the demo HTTP transport (internal/transport/http)
	// that exposes the Resource Link Manager's URI space.
	Server Server `cfg:"server"`

	// Remote configures the outbound klient.Client used to resolve
	// non-local resource URIs (internal/transport/http's RemoteFactory).
	Remote Remote `cfg:"remote"`

	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path"`
	Port     string `cfg:"port" default:"8080"`
	Host     string `cfg:"host"`
}

// Remote mirrors the proxy/TLS/retry knobs the teacher's http_request
// workflow node exposes on its outbound klient.Client.
type Remote struct {
	Scheme             string `cfg:"scheme" default:"http"`
	Proxy              string `cfg:"proxy"`
	InsecureSkipVerify bool   `cfg:"insecure_skip_verify"`
	Retry              bool   `cfg:"retry"`
}

// Persist configures exactly one of the three backends from
// internal/persist; Backend selects which one cmd/splotd's
// loadPersistBackend wires up.
type Persist struct {
	// Backend is one of "memory", "sqlite", "postgres". Empty means
	// "memory" (no durability across restarts).
	Backend string `cfg:"backend" default:"memory"`

	Postgres *PersistPostgres `cfg:"postgres"`
	SQLite   *PersistSQLite   `cfg:"sqlite"`
}

type PersistPostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`
}

type PersistSQLite struct {
	TablePrefix *string `cfg:"table_prefix"`
	Datasource  string  `cfg:"datasource" default:"file:splot.db"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("SPLOT_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
