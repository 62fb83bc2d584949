// Package generation runs generation cycles: validate the form, produce a
// batch through the remote service or the fallback oracle, and commit it to
// the session store exactly once.
package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/intelligence/synthesis"
	"github.com/turtacn/MolForge/pkg/errors"
)

// RemoteGenerator is the remote generation service. Returned molecules carry
// no ids; the coordinator assigns them.
type RemoteGenerator interface {
	Generate(ctx context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error)
}

// RemoteGeneratorFunc adapts a function to RemoteGenerator.
type RemoteGeneratorFunc func(ctx context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error)

// Generate calls f.
func (f RemoteGeneratorFunc) Generate(ctx context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
	return f(ctx, req)
}

// Metrics receives one observation per finished cycle.
type Metrics interface {
	ObserveCycle(source session.Source, outcome string, elapsed time.Duration)
}

// Cycle outcomes reported to Metrics.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeCancelled  = "cancelled"
	OutcomeInvalid    = "invalid"
)

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(session.Source, string, time.Duration) {}

// Config holds the cycle timings.
type Config struct {
	// FallbackLatency is the simulated delay before the oracle runs.
	FallbackLatency time.Duration
	// BannerTTL is how long a success banner stays up.
	BannerTTL time.Duration
	// RemoteTimeout bounds one remote generation call. Zero leaves it unbounded.
	RemoteTimeout time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{FallbackLatency: 2 * time.Second, BannerTTL: 3 * time.Second}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRemote routes cycles through the remote service instead of the oracle.
func WithRemote(r RemoteGenerator) Option {
	return func(c *Coordinator) { c.remote = r }
}

// WithMetrics sets the cycle metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Coordinator owns the submit → produce → commit workflow. At most one cycle
// is current; starting a new one supersedes the previous.
type Coordinator struct {
	store   *session.Store
	oracle  synthesis.Oracle
	remote  RemoteGenerator
	cfg     Config
	log     logging.Logger
	metrics Metrics
	newID   func() string

	mu         sync.Mutex
	current    *cycle
	bannerTask *Task
	closed     bool
}

// NewCoordinator builds a coordinator writing into store. Without WithRemote
// every cycle uses oracle after cfg.FallbackLatency.
func NewCoordinator(store *session.Store, oracle synthesis.Oracle, cfg Config, log logging.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Coordinator{
		store:   store,
		oracle:  oracle,
		cfg:     cfg,
		log:     log.Named("generation"),
		metrics: nopMetrics{},
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source reports which path new cycles take.
func (c *Coordinator) Source() session.Source {
	if c.remote != nil {
		return session.SourceRemote
	}
	return session.SourceOracle
}

// Store exposes the read side of the session store.
func (c *Coordinator) Store() session.Reader { return c.store }

// cycle is one in-flight generation.
type cycle struct {
	tok    session.Token
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time

	mu     sync.Mutex
	reason error
	task   *Task
}

func (cy *cycle) abort(reason error) {
	cy.mu.Lock()
	if cy.reason == nil {
		cy.reason = reason
	}
	task := cy.task
	cy.mu.Unlock()

	task.Cancel()
	cy.cancel()
}

func (cy *cycle) aborted() error {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	return cy.reason
}

// setTask attaches the fallback timer, cancelling it at once if the cycle was
// already aborted.
func (cy *cycle) setTask(t *Task) {
	cy.mu.Lock()
	cy.task = t
	aborted := cy.reason != nil
	cy.mu.Unlock()
	if aborted {
		t.Cancel()
	}
}

// Submit runs one generation cycle and returns when it has ended. A
// ValidationError leaves the store untouched. A cycle superseded by a newer
// Submit returns a GenerationSuperseded error and never commits.
func (c *Coordinator) Submit(ctx context.Context, req molecule.GenerationRequest) error {
	if err := req.Validate(); err != nil {
		c.metrics.ObserveCycle(c.Source(), OutcomeInvalid, 0)
		return err
	}

	cy, err := c.begin(ctx, req)
	if err != nil {
		return err
	}
	defer c.end(cy)

	c.log.Info("generation cycle started",
		logging.Uint64("cycle", cy.tok.Cycle()),
		logging.String("disease", req.TargetDisease.String()),
		logging.Int("count", req.NumMolecules),
		logging.String("source", string(c.Source())))

	var mols []molecule.Molecule
	if c.remote != nil {
		mols, err = c.runRemote(cy, req)
	} else {
		mols, err = c.runOracle(cy, req)
	}
	return c.finish(cy, req, mols, err)
}

// Retry resubmits the last submitted form.
func (c *Coordinator) Retry(ctx context.Context) error {
	req, ok := c.store.LastForm()
	if !ok {
		return errors.Validation("nothing to retry: no generation has been submitted")
	}
	return c.Submit(ctx, req)
}

// DismissBanner hides the current banner and stops its auto-clear timer.
func (c *Coordinator) DismissBanner() bool {
	c.mu.Lock()
	c.bannerTask.Cancel()
	c.bannerTask = nil
	c.mu.Unlock()
	return c.store.DismissBanner()
}

// Reset aborts any pending cycle and clears the session.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	if c.current != nil {
		c.current.abort(errors.New(errors.ErrCodeGenerationClosed, "session reset"))
		c.current = nil
	}
	c.bannerTask.Cancel()
	c.bannerTask = nil
	c.mu.Unlock()
	c.store.Reset()
}

// Close tears the coordinator down: the pending cycle is aborted, timers are
// stopped and later submissions are refused.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.current != nil {
		c.current.abort(errors.New(errors.ErrCodeGenerationClosed, "generation cancelled: view closed"))
	}
	c.bannerTask.Cancel()
	c.bannerTask = nil
}

func (c *Coordinator) begin(ctx context.Context, req molecule.GenerationRequest) (*cycle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New(errors.ErrCodeGenerationClosed, "generation coordinator is closed")
	}
	if c.current != nil {
		c.current.abort(errors.New(errors.ErrCodeGenerationSuperseded, "superseded by a newer generation request"))
	}
	c.bannerTask.Cancel()
	c.bannerTask = nil

	cctx, cancel := context.WithCancel(ctx)
	if c.remote != nil && c.cfg.RemoteTimeout > 0 {
		cctx, cancel = withTimeout(cctx, cancel, c.cfg.RemoteTimeout)
	}
	cy := &cycle{
		tok:    c.store.Begin(req),
		parent: ctx,
		ctx:    cctx,
		cancel: cancel,
		start:  time.Now(),
	}
	c.current = cy
	return cy, nil
}

func withTimeout(ctx context.Context, cancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, tcancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

func (c *Coordinator) end(cy *cycle) {
	cy.cancel()
	c.mu.Lock()
	if c.current == cy {
		c.current = nil
	}
	c.mu.Unlock()
}

func (c *Coordinator) runRemote(cy *cycle, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
	mols, err := c.remote.Generate(cy.ctx, req)
	if reason := cy.aborted(); reason != nil {
		return nil, reason
	}
	if cy.parent.Err() != nil {
		return nil, errors.Wrap(cy.parent.Err(), errors.ErrCodeGenerationClosed, "generation cancelled")
	}
	if err != nil {
		if errors.IsGeneration(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeGenerationFailed, "molecule generation failed")
	}
	if len(mols) < req.NumMolecules {
		return nil, errors.Newf(errors.ErrCodeGenerationFailed,
			"generation service returned %d of %d molecules", len(mols), req.NumMolecules)
	}
	return mols[:req.NumMolecules], nil
}

func (c *Coordinator) runOracle(cy *cycle, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
	var (
		mols []molecule.Molecule
		err  error
	)
	task := Schedule(c.cfg.FallbackLatency, func() {
		mols, err = c.synthesize(req)
	})
	cy.setTask(task)

	select {
	case <-task.Done():
	case <-cy.ctx.Done():
		task.Cancel()
		<-task.Done()
	}

	if reason := cy.aborted(); reason != nil {
		return nil, reason
	}
	if task.Cancelled() {
		return nil, errors.Wrap(cy.ctx.Err(), errors.ErrCodeGenerationClosed, "generation cancelled")
	}
	return mols, err
}

// synthesize calls the oracle and converts any failure, panics included, to
// an OracleError.
func (c *Coordinator) synthesize(req molecule.GenerationRequest) (mols []molecule.Molecule, err error) {
	defer func() {
		if r := recover(); r != nil {
			mols = nil
			err = errors.Newf(errors.ErrCodeOracleFailed, "fallback generator failed: %v", r)
		}
	}()
	if c.oracle == nil {
		return nil, errors.New(errors.ErrCodeOracleFailed, "no fallback generator configured")
	}
	mols, err = c.oracle.Synthesize(req.TargetDisease, req.NumMolecules, req.Constraints)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOracleFailed, "fallback generator failed")
	}
	if len(mols) != req.NumMolecules {
		return nil, errors.Newf(errors.ErrCodeOracleFailed,
			"fallback generator returned %d of %d molecules", len(mols), req.NumMolecules)
	}
	return mols, nil
}

func (c *Coordinator) finish(cy *cycle, req molecule.GenerationRequest, mols []molecule.Molecule, err error) error {
	source := c.Source()
	elapsed := time.Since(cy.start)
	fields := []logging.Field{
		logging.Uint64("cycle", cy.tok.Cycle()),
		logging.Duration("elapsed", elapsed),
	}

	switch {
	case errors.IsSuperseded(err):
		c.log.Debug("generation cycle superseded", fields...)
		c.metrics.ObserveCycle(source, OutcomeSuperseded, elapsed)
		return err
	case errors.IsCode(err, errors.ErrCodeGenerationClosed):
		c.store.Abandon(cy.tok)
		c.log.Info("generation cycle cancelled", fields...)
		c.metrics.ObserveCycle(source, OutcomeCancelled, elapsed)
		return err
	case err != nil:
		if !c.store.Fail(cy.tok, err) {
			return c.superseded(cy, fields, elapsed)
		}
		c.log.Error("generation cycle failed", append(fields, logging.Err(err), logging.Code(err))...)
		c.metrics.ObserveCycle(source, OutcomeFailed, elapsed)
		return err
	}

	mols = c.stamp(req, mols)
	msg := fmt.Sprintf("Generated %d molecules for %s", len(mols), req.TargetDisease.Label())
	if !c.store.Commit(cy.tok, mols, source, msg) {
		return c.superseded(cy, fields, elapsed)
	}
	c.scheduleBannerClear(cy)
	c.log.Info("generation cycle committed", append(fields, logging.Int("count", len(mols)))...)
	c.metrics.ObserveCycle(source, OutcomeSuccess, elapsed)
	return nil
}

func (c *Coordinator) superseded(cy *cycle, fields []logging.Field, elapsed time.Duration) error {
	c.log.Debug("generation result discarded: cycle no longer current", fields...)
	c.metrics.ObserveCycle(c.Source(), OutcomeSuperseded, elapsed)
	return errors.New(errors.ErrCodeGenerationSuperseded, "superseded by a newer generation request").
		WithDetail(fmt.Sprintf("cycle %d", cy.tok.Cycle()))
}

// stamp tags every molecule with the requested disease and a fresh id. Ids
// are never reused across cycles, even when a producer repeats a batch, so a
// detail view keyed by id always belongs to the batch on screen.
func (c *Coordinator) stamp(req molecule.GenerationRequest, mols []molecule.Molecule) []molecule.Molecule {
	out := make([]molecule.Molecule, len(mols))
	for i, m := range mols {
		m.TargetDisease = req.TargetDisease
		m.ID = c.newID()
		out[i] = m
	}
	return out
}

func (c *Coordinator) scheduleBannerClear(cy *cycle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.current != nil && c.current != cy) {
		return
	}
	tok := cy.tok
	c.bannerTask = Schedule(c.cfg.BannerTTL, func() {
		if c.store.ClearBanner(tok) {
			c.log.Debug("success banner cleared", logging.Uint64("cycle", tok.Cycle()))
		}
	})
}
