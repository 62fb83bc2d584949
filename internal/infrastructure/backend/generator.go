package backend

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/client"
	"github.com/turtacn/MolForge/pkg/errors"
)

// BreakerConfig tunes the generation circuit breaker. The breaker trips once
// MinRequests calls have been seen in the current interval and the failure
// ratio reaches FailureRatio.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig returns the standard breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// StateObserver is told about breaker transitions.
type StateObserver func(name string, from, to gobreaker.State)

// GeneratorOption configures a Generator.
type GeneratorOption func(*generatorOptions)

type generatorOptions struct {
	observers []StateObserver
}

// WithStateObserver adds a breaker transition callback.
func WithStateObserver(fn StateObserver) GeneratorOption {
	return func(o *generatorOptions) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// Generator calls POST /api/v1/generate through a circuit breaker.
type Generator struct {
	api     *client.GenerationClient
	breaker *gobreaker.CircuitBreaker
	log     logging.Logger
}

// NewGenerator wraps c's generation endpoint.
func NewGenerator(c *client.Client, cfg BreakerConfig, log logging.Logger, opts ...GeneratorOption) *Generator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	var o generatorOptions
	for _, opt := range opts {
		opt(&o)
	}
	d := DefaultBreakerConfig()
	if cfg.MinRequests == 0 {
		cfg.MinRequests = d.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = d.FailureRatio
	}

	g := &Generator{api: c.Generation(), log: log.Named("backend")}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
			for _, fn := range o.observers {
				fn(name, from, to)
			}
		},
	})
	return g
}

// countsAsSuccess keeps caller cancellations and rejected requests from
// tripping the breaker; only transport failures and 5xx count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *client.APIError
	if stderrors.As(err, &apiErr) {
		return !apiErr.IsServerError()
	}
	return errors.IsValidation(err)
}

// State returns the breaker state name.
func (g *Generator) State() string { return g.breaker.State().String() }

// Generate requests a batch for req. Returned molecules carry no ids.
func (g *Generator) Generate(ctx context.Context, req molecule.GenerationRequest) ([]molecule.Molecule, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.api.Generate(ctx, toGenerateRequest(req))
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "generation service unavailable (circuit open)")
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "generation request failed")
	}
	resp := out.(*client.GenerateResponse)
	if resp.NumGenerated > 0 && resp.NumGenerated != len(resp.Molecules) {
		g.log.Debug("generation response count mismatch",
			logging.Int("num_generated", resp.NumGenerated),
			logging.Int("molecules", len(resp.Molecules)))
	}
	return fromGenerated(req.TargetDisease, resp.Molecules), nil
}
