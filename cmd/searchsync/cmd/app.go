package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	"github.com/Aman-CERP/searchsync/internal/docsync"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/gateway/elastic"
	"github.com/Aman-CERP/searchsync/internal/gateway/local"
	"github.com/Aman-CERP/searchsync/internal/lock"
	"github.com/Aman-CERP/searchsync/internal/schema"
	"github.com/Aman-CERP/searchsync/internal/source"
	"github.com/Aman-CERP/searchsync/internal/source/pgsource"
	"github.com/Aman-CERP/searchsync/internal/source/sqlsource"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

// counter is implemented by backends that can count documents.
type counter interface {
	Count(ctx context.Context, name string) (uint64, error)
}

// loadConfig resolves the project directory and loads its configuration.
func loadConfig() (*config.Config, string, error) {
	dir := configDir
	if dir == "" {
		root, err := config.FindProjectRoot(".")
		if err != nil {
			return nil, "", err
		}
		dir = root
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

func loadCompiler(cfg *config.Config, dir string) (*schema.Compiler, error) {
	reg, err := schema.LoadRegistry(config.ResolvePath(dir, cfg.Index.TypesFile))
	if err != nil {
		return nil, err
	}
	return schema.NewCompiler(reg), nil
}

// openGateway connects the configured backend and wraps it for tracing.
// The counter is the unwrapped backend.
func openGateway(cfg *config.Config, dir string) (gateway.Gateway, counter, error) {
	var inner interface {
		gateway.Gateway
		counter
	}

	switch cfg.Backend.Kind {
	case config.BackendLocal:
		b, err := local.Open(config.ResolvePath(dir, cfg.Backend.DataDir))
		if err != nil {
			return nil, nil, err
		}
		inner = b
	default:
		g, err := elastic.New(elastic.Config{
			Hosts:  cfg.Elasticsearch.Hosts,
			Scheme: cfg.Elasticsearch.Scheme,
		})
		if err != nil {
			return nil, nil, err
		}
		inner = g
	}

	return gateway.NewTraced(inner, otel.GetTracerProvider()), inner, nil
}

// closableSource is a record source holding a connection pool.
type closableSource interface {
	source.Source[source.Record]
	io.Closer
}

func openSource(ctx context.Context, cfg *config.Config, dir string) (closableSource, error) {
	table := source.Table{
		Name:     cfg.Source.Table,
		IDColumn: cfg.Source.IDColumn,
		OrderBy:  cfg.Source.OrderBy,
	}
	if table.Name == "" {
		return nil, serrors.ConfigError("source.table is not set", nil)
	}

	switch cfg.Source.Driver {
	case config.DriverPostgres:
		return pgsource.Connect(ctx, cfg.Source.DSN, table)
	default:
		// Plain file paths are relative to the project; URIs pass through.
		dsn := cfg.Source.DSN
		if dsn != "" && !strings.Contains(dsn, ":") {
			dsn = config.ResolvePath(dir, dsn)
		}
		return sqlsource.Open(cfg.Source.Driver, dsn, table)
	}
}

// syncEnv is a wired sync service plus the resources it holds.
type syncEnv struct {
	cfg     *config.Config
	dir     string
	svc     *docsync.Service[source.Record]
	gw      gateway.Gateway
	counter counter
	closers []io.Closer
}

// Close releases the source and the backend, in that order.
func (e *syncEnv) Close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			slog.Warn("close_failed", slog.String("error", err.Error()))
		}
	}
}

// openSync wires a sync service for the configured alias. renderer may be
// nil.
func openSync(ctx context.Context, cfg *config.Config, dir string, renderer ui.Renderer) (*syncEnv, error) {
	if err := cfg.RequireTarget(); err != nil {
		return nil, err
	}

	compiler, err := loadCompiler(cfg, dir)
	if err != nil {
		return nil, err
	}
	refresh, err := gateway.ParseRefreshPolicy(cfg.Elasticsearch.RefreshPolicy)
	if err != nil {
		return nil, err
	}

	gw, cnt, err := openGateway(cfg, dir)
	if err != nil {
		return nil, err
	}
	src, err := openSource(ctx, cfg, dir)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}
	env := &syncEnv{cfg: cfg, dir: dir, gw: gw, counter: cnt, closers: []io.Closer{src, gw}}

	env.svc, err = docsync.New(docsync.Deps[source.Record]{
		Compiler: compiler,
		TypeName: cfg.Index.Type,
		Alias:    cfg.Index.Alias,
		Gateway:  gw,
		Source:   src,
		Options: docsync.Options{
			Concurrency:     cfg.Elasticsearch.ConcurrencyLevel,
			PageSize:        cfg.Reindex.PageSize,
			BatchCeiling:    cfg.Reindex.BatchCeiling,
			RefreshInterval: cfg.Elasticsearch.RefreshInterval,
			Refresh:         refresh,
			RateLimit:       cfg.Reindex.RateLimit,
		},
		Guard:    lock.NewGuard(config.ResolvePath(dir, cfg.Reindex.LockDir)),
		Renderer: renderer,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// daemonConfig maps the daemon section onto the daemon package settings.
func daemonConfig(cfg *config.Config) daemon.Config {
	dc := daemon.DefaultConfig()
	if cfg.Daemon.SocketPath != "" {
		dc.SocketPath = cfg.Daemon.SocketPath
	}
	if cfg.Daemon.PIDPath != "" {
		dc.PIDPath = cfg.Daemon.PIDPath
	}
	dc.Timeout = cfg.DaemonTimeout()
	dc.Schedule = cfg.Daemon.Schedule
	return dc
}

// remoteSyncer forwards sync calls to a running daemon.
type remoteSyncer struct {
	client *daemon.Client
	alias  string
}

var _ daemon.Syncer = (*remoteSyncer)(nil)

func (r *remoteSyncer) Alias() string { return r.alias }

func (r *remoteSyncer) Upsert(ctx context.Context, id string) docsync.Outcome {
	return remoteOutcome(r.client.Upsert(ctx, id))
}

func (r *remoteSyncer) Delete(ctx context.Context, id string) docsync.Outcome {
	return remoteOutcome(r.client.Delete(ctx, id))
}

func (r *remoteSyncer) BatchDelete(ctx context.Context, ids []string) docsync.Outcome {
	return remoteOutcome(r.client.BatchDelete(ctx, ids))
}

func (r *remoteSyncer) Reindex(ctx context.Context, suffix string) (*docsync.ReindexResult, error) {
	reply, err := r.client.Reindex(ctx, suffix, true)
	if err != nil {
		var rpcErr *daemon.Error
		if errors.As(err, &rpcErr) && rpcErr.Code == daemon.ErrCodeReindexInProgress {
			return nil, serrors.ErrReindexInProgress
		}
		return nil, serrors.New(serrors.ErrCodeReindexFailed, "daemon reindex failed", err)
	}
	return reply.Result, nil
}

func remoteOutcome(res *daemon.OutcomeResult, err error) docsync.Outcome {
	if err != nil {
		return docsync.Outcome{Status: docsync.StatusAbsorbed, Failed: 1, Err: err}
	}
	o := res.Outcome
	if res.Error != "" {
		o.Err = errors.New(res.Error)
	}
	return o
}

// syncTarget returns the daemon when one is serving and remote is allowed,
// otherwise a locally wired service. The cleanup is never nil.
func syncTarget(ctx context.Context, allowRemote bool, renderer ui.Renderer) (daemon.Syncer, func(), error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if allowRemote {
		client := daemon.NewClient(daemonConfig(cfg))
		if client.IsRunning() {
			slog.Debug("using_daemon", slog.String("alias", cfg.Index.Alias))
			return &remoteSyncer{client: client, alias: cfg.Index.Alias}, func() {}, nil
		}
	}

	env, err := openSync(ctx, cfg, dir, renderer)
	if err != nil {
		return nil, nil, err
	}
	return env.svc, env.Close, nil
}

// shutdownGrace bounds how long CLI commands wait for the daemon to exit.
const shutdownGrace = 15 * time.Second
