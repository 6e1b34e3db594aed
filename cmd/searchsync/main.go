package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpfront/searchsync/internal/search"
	"github.com/helpfront/searchsync/internal/search/alias"
	"github.com/helpfront/searchsync/internal/search/elastic"
	"github.com/helpfront/searchsync/internal/search/reindex"
	"github.com/helpfront/searchsync/internal/search/synonyms"
	"github.com/helpfront/searchsync/internal/search/types"
	"github.com/helpfront/searchsync/pkg/config"
	"github.com/helpfront/searchsync/pkg/errors"
	"github.com/helpfront/searchsync/pkg/health"
	"github.com/helpfront/searchsync/pkg/kafka"
	"github.com/helpfront/searchsync/pkg/logger"
	"github.com/helpfront/searchsync/pkg/metrics"
	"github.com/helpfront/searchsync/pkg/postgres"
	"github.com/helpfront/searchsync/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	configPath string
	exitCode   int
)

var rootCmd = &cobra.Command{
	Use:           "searchsync",
	Short:         "Keep the search index consistent with the support platform database",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(errors.ExitFatal)
	}
	os.Exit(exitCode)
}

// app holds the wired collaborators a command needs. Optional backends
// (Redis, Kafka, Postgres) stay nil when unconfigured or unneeded.
type app struct {
	cfg      *config.Config
	eng      search.Engine
	registry *types.Registry
	loader   *synonyms.Loader
	compiled *synonyms.Compiled
	manager  *alias.Manager
	metrics  *metrics.Metrics
	pipeline *reindex.Pipeline

	pg      *postgres.Client
	rdb     *redis.Client
	runs    *kafka.Producer
	fails   *kafka.Producer
	closers []func()
}

func newApp(needDB bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a := &app{cfg: cfg}

	loc, err := time.LoadLocation(cfg.Sync.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", cfg.Sync.DefaultTimezone, err)
	}

	if needDB {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		a.pg = pg
		a.closers = append(a.closers, func() { pg.Close() })
		a.registry = types.NewRegistry(pg.DB, loc)
	} else {
		a.registry = types.NewRegistry(nil, loc)
	}

	a.metrics = metrics.New(prometheus.DefaultRegisterer)
	es := elastic.NewClient(cfg.Elasticsearch)
	a.eng = es
	a.loader = synonyms.NewLoader(cfg.Sync.SynonymDir)
	a.compiled, err = a.loader.Compile(cfg.Sync.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("compiling synonyms: %w", err)
	}

	var locks alias.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { rdb.Close() })
		locks = rdb
	}

	settings := search.Settings{
		Shards:   cfg.Elasticsearch.NumberOfShards,
		Replicas: cfg.Elasticsearch.NumberOfReplicas,
		Analysis: a.compiled.Analysis,
	}
	a.manager = alias.NewManager(a.eng, settings, locks, a.metrics)

	pipelineCfg := reindex.Config{Metrics: a.metrics}
	if len(cfg.Kafka.Brokers) > 0 {
		a.runs = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReindexEvents)
		a.fails = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentFailure)
		a.closers = append(a.closers, func() { a.runs.Close() }, func() { a.fails.Close() })
		pipelineCfg.Events = &eventRouter{runs: a.runs, failures: a.fails}
	}
	if a.rdb != nil {
		pipelineCfg.Checkpoints = a.rdb
	}
	a.pipeline = reindex.New(a.eng, pipelineCfg)

	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("elasticsearch", es.Ping)
		if a.pg != nil {
			checker.Register("postgres", a.pg.DB.PingContext)
		}
		if a.rdb != nil {
			checker.Register("redis", a.rdb.Ping)
		}
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker.Handler())
		a.closers = append(a.closers, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("metrics server shutdown failed", "error", err)
			}
		})
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// eventRouter sends run lifecycle events to one topic and per-document
// failure batches to another.
type eventRouter struct {
	runs     *kafka.Producer
	failures *kafka.Producer
}

func (r *eventRouter) Publish(ctx context.Context, event kafka.Event) error {
	return r.runs.Publish(ctx, event)
}

func (r *eventRouter) PublishBatch(ctx context.Context, events []kafka.Event) error {
	return r.failures.PublishBatch(ctx, events)
}
