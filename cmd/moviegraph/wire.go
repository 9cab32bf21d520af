package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	prom "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/smallnest/moviegraph/catalog"
	"github.com/smallnest/moviegraph/config"
	"github.com/smallnest/moviegraph/graph"
	"github.com/smallnest/moviegraph/llms/provider"
	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/observe"
	"github.com/smallnest/moviegraph/rag"
	ragstore "github.com/smallnest/moviegraph/rag/store"
	"github.com/smallnest/moviegraph/store"
	"github.com/smallnest/moviegraph/store/memory"
	"github.com/smallnest/moviegraph/store/postgres"
	"github.com/smallnest/moviegraph/store/redis"
	"github.com/smallnest/moviegraph/store/sqlite"
)

// deps builds the collaborators of a command. Tests replace them with in-memory fakes.
type deps struct {
	openGraph   func(ctx context.Context, cfg *config.Config) (rag.GraphStore, error)
	newEmbedder func(ctx context.Context, cfg *config.Config) (rag.Embedder, error)
	newLLM      func(ctx context.Context, cfg *config.Config) (rag.LanguageModel, error)
	openJournal func(ctx context.Context, cfg *config.Config) (store.Journal, error)
}

func defaultDeps() deps {
	return deps{
		openGraph:   openGraph,
		newEmbedder: provider.NewEmbedder,
		newLLM:      provider.NewLanguageModel,
		openJournal: openJournal,
	}
}

// openGraph connects to the configured graph database.
func openGraph(ctx context.Context, cfg *config.Config) (rag.GraphStore, error) {
	switch cfg.Graph.Backend {
	case "neo4j":
		db, err := ragstore.NewNeo4jStore(ctx, ragstore.Neo4jOptions{
			URI:      cfg.Graph.URI,
			User:     cfg.Graph.User,
			Password: cfg.Graph.Password,
			Database: cfg.Graph.Database,
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	case "falkordb":
		db, err := ragstore.NewFalkorDBStore(falkorDBURI(cfg.Graph.URI, cfg.Graph.Name))
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown graph backend %q", cfg.Graph.Backend)
}

// falkorDBURI appends the graph name to uri unless uri already names a graph.
func falkorDBURI(uri, name string) string {
	u, err := url.Parse(uri)
	if err != nil || strings.Trim(u.Path, "/") != "" || name == "" {
		return uri
	}
	u.Path = "/" + name
	return u.String()
}

// openJournal opens the configured query journal. The none backend returns nil.
func openJournal(ctx context.Context, cfg *config.Config) (store.Journal, error) {
	switch cfg.Journal.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.NewMemoryJournal(), nil
	case "sqlite":
		journal, err := sqlite.NewSqliteJournal(sqlite.SqliteOptions{Path: cfg.Journal.DSN})
		if err != nil {
			return nil, err
		}
		return journal, nil
	case "postgres":
		journal, err := postgres.NewPostgresJournal(ctx, postgres.PostgresOptions{ConnString: cfg.Journal.DSN})
		if err != nil {
			return nil, err
		}
		return journal, nil
	case "redis":
		opts, err := goredis.ParseURL(cfg.Journal.DSN)
		if err != nil {
			return nil, fmt.Errorf("journal.dsn: %w", err)
		}
		return redis.NewRedisJournal(redis.RedisOptions{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
			TTL:      cfg.Journal.TTL,
		}), nil
	}
	return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
}

// pipeline is an orchestrator with the observers started for it.
type pipeline struct {
	*rag.Orchestrator
	closers []func(context.Context) error
}

// Close stops the observers and releases the orchestrator's store and journal.
func (p *pipeline) Close(ctx context.Context) error {
	errs := []error{p.Orchestrator.Close(ctx)}
	for _, c := range p.closers {
		errs = append(errs, c(ctx))
	}
	return errors.Join(errs...)
}

// newPipeline wires an orchestrator from configuration. withMetrics starts the Prometheus
// endpoint when metrics.addr is set.
func (a *app) newPipeline(ctx context.Context, withMetrics bool) (*pipeline, error) {
	db, err := a.deps.openGraph(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	p := &pipeline{}
	fail := func(err error) (*pipeline, error) {
		for _, c := range p.closers {
			_ = c(ctx)
		}
		_ = db.Close(ctx)
		return nil, err
	}

	embedder, err := a.deps.newEmbedder(ctx, a.cfg)
	if err != nil {
		return fail(err)
	}
	llm, err := a.deps.newLLM(ctx, a.cfg)
	if err != nil {
		return fail(err)
	}

	opts := []rag.Option{
		rag.WithConfig(a.cfg.OrchestratorConfig()),
		rag.WithLogger(log.GetDefaultLogger()),
	}

	journal, err := a.deps.openJournal(ctx, a.cfg)
	if err != nil {
		return fail(fmt.Errorf("open journal: %w", err))
	}
	if journal != nil {
		opts = append(opts, rag.WithJournal(journal))
	}

	hooks, err := a.observers(ctx, p, withMetrics)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return fail(err)
	}
	opts = append(opts, rag.WithTraceHooks(hooks...))

	p.Orchestrator, err = rag.NewOrchestrator(db, embedder, llm, opts...)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return fail(err)
	}
	return p, nil
}

func (a *app) observers(ctx context.Context, p *pipeline, withMetrics bool) ([]graph.TraceHook, error) {
	var hooks []graph.TraceHook

	if a.cfg.Tracing.Enabled {
		tp := observe.NewTracerProvider(observe.NewLogExporter(log.GetDefaultLogger()))
		p.closers = append(p.closers, tp.Shutdown)
		hooks = append(hooks, observe.NewOTelBridge(tp))
	}

	if withMetrics && a.cfg.Metrics.Addr != "" {
		reg := prom.NewRegistry()
		metrics, err := observe.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, metrics)

		serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			log.Info("serving metrics on %s", a.cfg.Metrics.Addr)
			if err := observe.Serve(serveCtx, a.cfg.Metrics.Addr, reg); err != nil {
				log.Error("metrics endpoint: %v", err)
			}
		}()
		p.closers = append(p.closers, func(context.Context) error {
			cancel()
			<-done
			return nil
		})
	}
	return hooks, nil
}

// newCatalog opens the graph store and wraps it for maintenance jobs. The embedder is only
// built when withEmbedder is set.
func (a *app) newCatalog(ctx context.Context, withEmbedder bool) (*catalog.Catalog, rag.GraphStore, error) {
	db, err := a.deps.openGraph(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	var embedder rag.Embedder
	if withEmbedder {
		if embedder, err = a.deps.newEmbedder(ctx, a.cfg); err != nil {
			_ = db.Close(ctx)
			return nil, nil, err
		}
	}
	c := catalog.New(db, embedder, a.cfg.VectorIndex(),
		catalog.WithKeyProperty(a.cfg.Catalog.KeyProperty),
		catalog.WithConcurrency(a.cfg.Catalog.Concurrency),
		catalog.WithBatchSize(a.cfg.Catalog.BatchSize),
		catalog.WithLogger(log.GetDefaultLogger()),
	)
	return c, db, nil
}
