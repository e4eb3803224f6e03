package main

import (
	"context"
	"errors"

	"conductor/internal/analysis"
	"conductor/internal/config"
	"conductor/internal/idempotency"
	"conductor/internal/logging"
	"conductor/internal/model"
	"conductor/internal/store"
	"conductor/internal/turn"
)

// app is the wired orchestrator shared by serve and turn.
type app struct {
	handler *turn.Handler
	cache   *idempotency.Cache
	models  *model.Registry
	traces  *store.TraceStore
}

// newApp validates c and builds every collaborator of the turn handler.
func newApp(ctx context.Context, c *config.Config, factory model.Factory) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cache:  idempotency.NewCache(c.Cache.MaxEntries, c.Cache.GetTTL()),
		models: model.NewRegistry(factory, 4),
	}

	deps := turn.Deps{
		Analysis: analysis.NewClient(analysis.Config{
			BaseURL:        c.Analysis.BaseURL,
			APIToken:       c.Analysis.APIToken,
			Timeout:        c.Analysis.GetTimeout(),
			Backoff:        c.Analysis.GetBackoff(),
			MinRetryBudget: c.Analysis.GetMinRetryBudget(),
		}),
		Cache: a.cache,
	}

	if c.Store.Enabled {
		ts, err := store.OpenTraceStore(c.Store.TraceDB)
		if err != nil {
			return nil, err
		}
		a.traces = ts
		deps.Traces = ts
	}

	a.handler = turn.NewHandler(handlerConfig(c), deps)
	a.applyModel(ctx, c)
	logging.Boot("conductor ready: analysis=%s model=%s traces=%v", c.Analysis.BaseURL, c.Model.Provider, c.Store.Enabled)
	return a, nil
}

func handlerConfig(c *config.Config) turn.Config {
	hc := turn.DefaultConfig()
	hc.Budget = c.Turn.GetBudget()
	hc.MaxToolRounds = c.Turn.MaxToolRounds
	hc.RecentMessages = c.Turn.RecentMessages
	return hc
}

// applyModel installs the configured model, or none when it is disabled or
// cannot be built. A broken model config degrades to deterministic routing.
func (a *app) applyModel(ctx context.Context, c *config.Config) {
	if !c.Model.Enabled() {
		a.handler.SetModel(nil, nil)
		return
	}
	pair, err := a.models.Get(ctx, model.Spec{
		Provider: c.Model.Provider,
		Model:    c.Model.Model,
		APIKey:   c.Model.APIKey,
		Timeout:  c.Model.GetTimeout(),
	})
	if err != nil {
		logging.Get(logging.CategoryModel).Error("model unavailable, continuing without it: %v", err)
		a.handler.SetModel(nil, nil)
		return
	}
	a.handler.SetModel(pair.Adapter, pair.Drafter)
}

// reload hot-applies the reloadable subset of c. Connection settings
// (server address, analysis endpoint, trace database) need a restart.
func (a *app) reload(ctx context.Context, c *config.Config) {
	a.handler.SetConfig(handlerConfig(c))
	a.cache.SetTTL(c.Cache.GetTTL())
	level := c.Logging.Level
	if c.Logging.DebugMode {
		level = "debug"
	}
	if err := logging.SetLevel(level); err != nil {
		logging.Get(logging.CategoryConfig).Warn("ignoring log level: %v", err)
	}
	logging.SetCategories(c.Logging.Categories)
	a.applyModel(ctx, c)
	logging.ConfigEvent("applied reloaded config: budget=%v max_tool_rounds=%d cache_ttl=%v model=%s",
		c.Turn.GetBudget(), c.Turn.MaxToolRounds, c.Cache.GetTTL(), c.Model.Provider)
}

func (a *app) Close() error {
	var errs []error
	if a.traces != nil {
		errs = append(errs, a.traces.Close())
	}
	return errors.Join(errs...)
}
