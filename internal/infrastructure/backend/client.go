// Package backend adapts the pkg/client SDK to the generation coordinator and
// the enrichment fetcher. Remote generation runs behind a circuit breaker and
// enrichment calls share an outbound rate limiter.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/client"
	"github.com/turtacn/MolForge/pkg/errors"
)

// Config describes the backend connection.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit is the enrichment request rate per second. Zero disables it.
	RateLimit float64
	Burst     int
	Breaker   BreakerConfig
}

// NewClient builds an SDK client from cfg, logging through log.
func NewClient(cfg Config, log logging.Logger) (*client.Client, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	opts := []client.Option{client.WithLogger(clientLogger{log: log.Named("client")})}
	if cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.Timeout))
	}
	if cfg.RetryMax >= 0 {
		opts = append(opts, client.WithRetryMax(cfg.RetryMax))
	}
	if cfg.RetryWaitMin > 0 && cfg.RetryWaitMax >= cfg.RetryWaitMin {
		opts = append(opts, client.WithRetryWait(cfg.RetryWaitMin, cfg.RetryWaitMax))
	}
	return client.NewClient(cfg.BaseURL, opts...)
}

// Probe reports whether the backend answers GET /health within timeout.
func Probe(ctx context.Context, c *client.Client, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := c.Health(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable,
			fmt.Sprintf("backend %s is unreachable", c.BaseURL()))
	}
	return nil
}

// clientLogger bridges the SDK's printf-style logger onto logging.Logger.
type clientLogger struct {
	log logging.Logger
}

func (l clientLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l clientLogger) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l clientLogger) Errorf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
