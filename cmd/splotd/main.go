package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/splot/internal/config"
	"github.com/rakunlabs/splot/internal/persist"
	"github.com/rakunlabs/splot/internal/persist/memory"
	"github.com/rakunlabs/splot/internal/persist/postgres"
	"github.com/rakunlabs/splot/internal/persist/sqlite"
	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/tech"
	"github.com/rakunlabs/splot/internal/thing"
	"github.com/rakunlabs/splot/internal/trait"
	transporthttp "github.com/rakunlabs/splot/internal/transport/http"
)

var (
	name    = "splotd"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	backend, err := loadPersistBackend(ctx, cfg.Persist)
	if err != nil {
		return fmt.Errorf("failed to set up persist backend: %w", err)
	}
	defer backend.Close()

	sch := sched.New()
	go sch.Run(ctx)

	remoteFactory, err := transporthttp.NewRemoteFactory(cfg.Remote.Scheme, nil, transporthttp.ClientConfig{
		Proxy:              cfg.Remote.Proxy,
		InsecureSkipVerify: cfg.Remote.InsecureSkipVerify,
		Retry:              cfg.Remote.Retry,
	})
	if err != nil {
		return fmt.Errorf("failed to build remote resource link factory: %w", err)
	}

	registry := reslink.NewMapRegistry()
	technology := tech.New("loop", cfg.Server.Host, registry)
	manager := reslink.NewManager(registry, remoteFactory)

	if err := hostDemoThings(ctx, technology, backend, sch); err != nil {
		return fmt.Errorf("failed to host demo things: %w", err)
	}

	srv := transporthttp.New(cfg.Server, manager)
	slog.Info("starting splotd", "base_path", cfg.Server.BasePath, "host", cfg.Server.Host, "port", cfg.Server.Port)
	return srv.Start(ctx)
}

// hostDemoThings seeds a single onoff Thing and hosts it natively, wiring
// its persistence through backend and restoring any previously saved
// state. This is a placeholder for a real Technology's discovery of
// physical devices; splotd has none, so it hosts one example Thing for
// the demo transport to expose.
func hostDemoThings(ctx context.Context, technology *tech.Technology, backend persist.Backend, sch *sched.Scheduler) error {
	const uid = "lamp-1"

	lamp := thing.New(uid, sch, []trait.Trait{trait.NewOnOffTrait()})
	lamp.SetListener(backend)

	state, ok, err := backend.Load(ctx, uid)
	if err != nil {
		return fmt.Errorf("load persisted state for %q: %w", uid, err)
	}
	if ok {
		if err := lamp.InitWithPersistentState(state); err != nil {
			return fmt.Errorf("restore persisted state for %q: %w", uid, err)
		}
	}

	return technology.Host(lamp, true)
}

// loadPersistBackend selects the configured persist.Backend, defaulting to
// the non-durable in-memory backend, mirroring the teacher's storeType
// selector in internal/store/store.go.
func loadPersistBackend(ctx context.Context, cfg config.Persist) (persist.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, fmt.Errorf("persist.sqlite config is required when persist.backend is \"sqlite\"")
		}
		return sqlite.New(ctx, sqlite.Config{
			Datasource:  cfg.SQLite.Datasource,
			TablePrefix: cfg.SQLite.TablePrefix,
		})
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("persist.postgres config is required when persist.backend is \"postgres\"")
		}
		return postgres.New(ctx, postgres.Config{
			Datasource:      cfg.Postgres.Datasource,
			Schema:          cfg.Postgres.Schema,
			TablePrefix:     cfg.Postgres.TablePrefix,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		})
	default:
		return nil, fmt.Errorf("unknown persist backend %q", cfg.Backend)
	}
}
