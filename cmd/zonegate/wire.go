package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"zonegate/internal/catalog"
	"zonegate/internal/config"
	"zonegate/internal/decision"
	"zonegate/internal/dialogue"
	"zonegate/internal/perception"
	"zonegate/internal/resolver"
	"zonegate/internal/session"
	"zonegate/internal/transparency"
	"zonegate/internal/usage"
)

// sources is the catalog side of the app: the three data sources plus
// whatever needs closing or stopping on exit.
type sources struct {
	vehicles dialogue.VehicleSource
	zones    dialogue.ZoneSource
	policies *catalog.PolicyCache
	dataset  *catalog.Dataset

	closers []func()
}

func (s *sources) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSources builds the configured catalog backend. With catalog.watch set
// the dataset file is reloaded on change and the policy cache purged.
func openSources(ctx context.Context, c *config.Config) (*sources, error) {
	ds, err := catalog.LoadDataset(c.Catalog.DatasetPath)
	if err != nil {
		return nil, err
	}
	src := &sources{dataset: ds}

	var (
		backend  catalog.PolicyGetter
		onReload func(*catalog.Dataset)
		mem      *catalog.MemoryCatalog
	)
	switch c.Catalog.Driver {
	case "sqlite":
		db, err := catalog.OpenSQLite(c.Catalog.SQLitePath)
		if err != nil {
			return nil, err
		}
		src.closers = append(src.closers, func() { db.Close() })
		empty, err := db.IsEmpty(ctx)
		if err != nil {
			src.Close()
			return nil, err
		}
		if empty || c.Catalog.DatasetPath != "" {
			if err := db.Seed(ctx, ds); err != nil {
				src.Close()
				return nil, err
			}
		}
		src.vehicles, src.zones, backend = db, db, db
		onReload = func(ds *catalog.Dataset) {
			if err := db.Seed(context.Background(), ds); err != nil {
				logger.Warn("Reseed after reload failed", zap.Error(err))
			}
		}
	default:
		mem = catalog.NewMemoryCatalog(ds)
		src.vehicles, src.zones, backend = mem, mem, mem
	}
	src.policies = catalog.NewPolicyCache(backend, c.GetPolicyCacheTTL())

	if c.Catalog.Watch && c.Catalog.DatasetPath != "" {
		w, err := catalog.NewWatcher(c.Catalog.DatasetPath, mem)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("dataset watcher: %w", err)
		}
		if onReload != nil {
			w.OnReload(onReload)
		}
		w.OnReload(func(*catalog.Dataset) { src.policies.Purge() })
		if err := w.Start(ctx); err != nil {
			w.Stop()
			src.Close()
			return nil, fmt.Errorf("dataset watcher: %w", err)
		}
		src.closers = append(src.closers, w.Stop)
	}
	return src, nil
}

// app is a fully wired dialogue engine.
type app struct {
	router   *dialogue.Router
	sessions *session.MemoryStore
	traces   *transparency.TraceStore
	usage    *usage.Tracker
	sources  *sources
}

func (a *app) Close() {
	if err := a.usage.Flush(); err != nil {
		logger.Warn("Saving token usage failed", zap.Error(err))
	}
	total := a.usage.Stats().Total
	logger.Info("Token usage",
		zap.Int64("calls", total.Calls),
		zap.Int64("input_tokens", total.Input),
		zap.Int64("output_tokens", total.Output))
	a.sources.Close()
}

func buildApp(ctx context.Context, c *config.Config) (*app, error) {
	if err := c.ValidateLLM(); err != nil {
		return nil, err
	}
	mention, err := resolver.ParseMatchPolicy(c.Dialogue.CarMentionPolicy)
	if err != nil {
		return nil, fmt.Errorf("dialogue.car_mention_policy: %w", err)
	}
	match, err := resolver.ParseMatchPolicy(c.Dialogue.ResolverMatchPolicy)
	if err != nil {
		return nil, fmt.Errorf("dialogue.resolver_match_policy: %w", err)
	}

	tracker, err := usage.NewTracker(c.LLM.UsagePath)
	if err != nil {
		return nil, err
	}
	gateway, err := perception.NewGatewayFromConfig(ctx, c.LLM)
	if err != nil {
		return nil, err
	}
	gateway.WithUsage(tracker)
	engine, err := decision.NewEngine()
	if err != nil {
		return nil, err
	}
	src, err := openSources(ctx, c)
	if err != nil {
		return nil, err
	}

	sessions := session.NewMemoryStore(c.GetSessionTTL())
	traces := transparency.NewTraceStore(c.Server.TraceHistory)
	router, err := dialogue.NewRouter(dialogue.Deps{
		Gateway:  gateway,
		Vehicles: src.vehicles,
		Zones:    src.zones,
		Policies: src.policies,
		Sessions: sessions,
		Engine:   engine,
	},
		dialogue.WithMaxTransitions(c.Dialogue.MaxStageTransitions),
		dialogue.WithDefaultLanguage(c.Dialogue.DefaultLanguage),
		dialogue.WithMentionPolicy(mention),
		dialogue.WithMatchPolicy(match),
		dialogue.WithObserver(traces),
	)
	if err != nil {
		src.Close()
		return nil, err
	}

	logger.Info("Dialogue engine ready",
		zap.String("catalog", c.Catalog.Driver),
		zap.String("primary_model", c.LLM.Primary.Model),
		zap.String("fallback_model", c.LLM.Fallback.Model))
	return &app{router: router, sessions: sessions, traces: traces, usage: tracker, sources: src}, nil
}
