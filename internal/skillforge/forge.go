// Package skillforge runs the discovery pipeline: scout, deduplicate,
// evaluate, integrate and notify.
package skillforge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a-marczewski/skillforge/internal/config"
	"github.com/a-marczewski/skillforge/internal/logging"
	"github.com/a-marczewski/skillforge/internal/notify"
	"github.com/a-marczewski/skillforge/internal/skillforge/evaluate"
	"github.com/a-marczewski/skillforge/internal/skillforge/integrate"
	"github.com/a-marczewski/skillforge/internal/skillforge/scout"
)

// Option customizes a SkillForge.
type Option func(*SkillForge)

// WithRegistry replaces the default scout registry.
func WithRegistry(r scout.Registry) Option {
	return func(f *SkillForge) {
		f.registry = r
	}
}

// WithDispatcher sets where notifications for integrated skills are sent.
// Without one, notifications are skipped.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(f *SkillForge) {
		f.dispatcher = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *SkillForge) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the time source for run timestamps and freshness.
func WithClock(now func() time.Time) Option {
	return func(f *SkillForge) {
		if now != nil {
			f.now = now
		}
	}
}

// WithIntegrator replaces the integrator built from the configuration.
func WithIntegrator(i *integrate.Integrator) Option {
	return func(f *SkillForge) {
		f.integrator = i
	}
}

// SkillForge orchestrates forge runs. Runs are serialized.
type SkillForge struct {
	cfg        config.ForgeConfig
	registry   scout.Registry
	integrator *integrate.Integrator
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	mu sync.Mutex
}

// New creates a SkillForge for cfg. The configuration is validated when a
// run starts, not here.
func New(cfg config.ForgeConfig, opts ...Option) *SkillForge {
	f := &SkillForge{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.registry == nil {
		f.registry = NewRegistry(cfg, f.logger)
	}
	if f.integrator == nil {
		f.integrator = integrate.New(cfg.OutputDir,
			integrate.WithOverwrite(cfg.Overwrite),
			integrate.WithLogger(f.logger),
			integrate.WithClock(f.now))
	}
	return f
}

// NewRegistry returns the adapters available for cfg. ClawHub and
// HuggingFace are known sources without an adapter.
func NewRegistry(cfg config.ForgeConfig, logger *zap.Logger) scout.Registry {
	return scout.Registry{
		scout.SourceGitHub: scout.NewGitHubScout(scout.GitHubOptions{
			Token:   cfg.GitHub.Token,
			BaseURL: cfg.GitHub.BaseURL,
			Queries: cfg.GitHub.Queries,
			PerPage: cfg.GitHub.PerPage,
			Logger:  logger.Named("github"),
		}),
	}
}

// Config returns the forge settings.
func (f *SkillForge) Config() config.ForgeConfig {
	return f.cfg
}

// run carries per-run state between stages.
type run struct {
	id     string
	logger *zap.Logger
	stage  Stage
	report *ForgeReport
}

func (r *run) enter(s Stage) {
	logging.StageTransition(r.logger, r.id, r.stage.String(), s.String())
	r.stage = s
}

func (r *run) fail(stage Stage, subject string, err error) {
	r.report.Failures = append(r.report.Failures, Failure{
		Stage:   stage.String(),
		Subject: subject,
		Error:   err.Error(),
	})
}

// Forge executes one run. It returns an error only when the configuration is
// invalid or ctx is done before the integration stage; per-source and
// per-candidate failures are recorded in the report instead.
func (f *SkillForge) Forge(ctx context.Context) (*ForgeReport, error) {
	if !f.cfg.Enabled {
		f.logger.Info("SkillForge is disabled, skipping run")
		return emptyReport(), nil
	}
	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r := &run{
		id: uuid.NewString(),
		report: &ForgeReport{
			StartedAt: f.now().UTC(),
			Results:   []evaluate.EvalResult{},
		},
	}
	r.logger = f.logger.With(zap.String("run_id", r.id))
	r.report.RunID = r.id
	r.logger.Info("SkillForge run started", zap.Strings("sources", f.cfg.Sources))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(StageScouting)
	raw := f.scout(ctx, r)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(StageDeduplicating)
	rawCount := len(raw)
	dropped := 0
	for _, c := range raw {
		if c.Key() == "" {
			dropped++
			r.logger.Debug("Dropping candidate without a usable source URL",
				zap.String("name", c.Name),
				zap.String("source", c.Source),
				zap.String("source_url", c.SourceURL))
		}
	}
	unique := scout.Dedup(raw)
	r.report.Discovered = len(unique)
	r.logger.Info("Candidates discovered",
		zap.Int("raw", rawCount),
		zap.Int("unique", len(unique)),
		zap.Int("dropped_without_url", dropped))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(StageEvaluating)
	accepted := f.evaluate(r, unique)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.enter(StageIntegrating)
	f.integrate(ctx, r, accepted)

	r.enter(StageReporting)
	r.report.FinishedAt = f.now().UTC()
	r.logger.Info("SkillForge run finished",
		zap.Int("discovered", r.report.Discovered),
		zap.Int("evaluated", r.report.Evaluated),
		zap.Int("auto_integrated", r.report.AutoIntegrated),
		zap.Int("manual_review", r.report.ManualReview),
		zap.Int("skipped", r.report.Skipped),
		zap.Int("failures", len(r.report.Failures)))

	r.enter(StageDone)
	return r.report, nil
}

// scout runs every configured source concurrently and concatenates the
// results in configured order.
func (f *SkillForge) scout(ctx context.Context, r *run) []scout.Candidate {
	sources := f.cfg.Sources
	slots := make([][]scout.Candidate, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, name := range sources {
		src := scout.ParseSource(name)
		adapter, ok := f.registry.Lookup(src)
		if !ok {
			r.logger.Info("Source not implemented, skipping", zap.String("source", name))
			continue
		}

		g.Go(func() error {
			found, err := adapter.Discover(ctx)
			if err != nil {
				errs[i] = &scout.SourceError{Source: name, Err: err}
				return nil
			}
			for j := range found {
				if found[j].Source == "" {
					found[j].Source = src.String()
				}
			}
			slots[i] = found
			return nil
		})
	}
	// Workers never return errors; failures are kept per source.
	_ = g.Wait()

	var all []scout.Candidate
	for i, name := range sources {
		if errs[i] != nil {
			r.logger.Warn("Scout failed", zap.String("source", name), zap.Error(errs[i]))
			r.fail(StageScouting, name, errs[i])
			continue
		}
		r.logger.Debug("Scout finished", zap.String("source", name), zap.Int("candidates", len(slots[i])))
		all = append(all, slots[i]...)
	}
	return all
}

// evaluate scores every unique candidate once and returns the results
// eligible for integration.
func (f *SkillForge) evaluate(r *run, candidates []scout.Candidate) []evaluate.EvalResult {
	ev := evaluate.New(f.cfg.MinScore,
		evaluate.WithNow(f.now()),
		evaluate.WithDeniedLicenses(f.cfg.DeniedLicenses...))

	var accepted []evaluate.EvalResult
	for _, c := range candidates {
		res := ev.Evaluate(c)
		r.report.Results = append(r.report.Results, res)
		r.report.Evaluated++

		switch res.Recommendation {
		case evaluate.Auto:
			if f.cfg.AutoIntegrate {
				accepted = append(accepted, res)
			} else {
				r.report.ManualReview++
			}
		case evaluate.Manual:
			r.report.ManualReview++
		case evaluate.Skip:
			r.report.Skipped++
		}

		r.logger.Debug("Candidate evaluated",
			zap.String("name", c.Name),
			zap.Float64("score", res.Score),
			zap.Stringer("recommendation", res.Recommendation))
	}
	return accepted
}

// integrate reserves names in evaluation order, then writes in parallel.
func (f *SkillForge) integrate(ctx context.Context, r *run, accepted []evaluate.EvalResult) {
	if len(accepted) == 0 {
		return
	}

	f.integrator.Reset()

	plans := make([]integrate.Plan, 0, len(accepted))
	for _, res := range accepted {
		plan, err := f.integrator.Prepare(res, r.id)
		if err != nil {
			f.integrationFailed(r, res.Candidate.Name, err)
			continue
		}
		plans = append(plans, plan)
	}

	var integrated atomic.Int64
	done := make([]bool, len(plans))
	errs := make([]error, len(plans))

	var g errgroup.Group
	g.SetLimit(f.cfg.IntegrateWorkers)
	for i, plan := range plans {
		g.Go(func() error {
			if err := f.integrator.Commit(ctx, plan); err != nil {
				errs[i] = err
				return nil
			}
			integrated.Add(1)
			done[i] = true
			f.dispatcher.Enqueue(plan.Name)
			return nil
		})
	}
	_ = g.Wait()

	r.report.AutoIntegrated = int(integrated.Load())
	for i, plan := range plans {
		if done[i] {
			r.report.Integrated = append(r.report.Integrated, plan.Name)
			continue
		}
		f.integrationFailed(r, plan.Name, errs[i])
	}
}

func (f *SkillForge) integrationFailed(r *run, name string, err error) {
	var ie *integrate.IntegrationError
	if !errors.As(err, &ie) {
		err = &integrate.IntegrationError{Name: name, Err: err}
	}
	r.logger.Warn("Integration failed", zap.String("name", name), zap.Error(err))
	r.fail(StageIntegrating, name, err)
}
