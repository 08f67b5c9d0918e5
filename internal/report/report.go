// Package report forwards proxy failures to an external error tracker.
package report

import (
	"fmt"
	"log/slog"

	"github.com/getsentry/raven-go"

	"imdb-proxy/internal/config"
)

// Reporter receives errors that produced a failure reply.
type Reporter interface {
	Report(err error, tags map[string]string)
	Close()
}

// Nop discards every report.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(error, map[string]string) {}

// Close implements Reporter.
func (Nop) Close() {}

// Sentry sends reports through a raven client.
type Sentry struct {
	client *raven.Client
	logger *slog.Logger
}

// New returns a Sentry reporter when report.sentry_dsn is set and Nop otherwise.
func New(cfg *config.Config, logger *slog.Logger, release string) (Reporter, error) {
	if cfg.Report.SentryDSN == "" {
		return Nop{}, nil
	}

	client, err := raven.New(cfg.Report.SentryDSN)
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	client.SetRelease(release)

	logger.Info("sentry error reporting enabled")
	return &Sentry{
		client: client,
		logger: logger.With("component", "sentry_reporter"),
	}, nil
}

// Report captures err asynchronously.
func (s *Sentry) Report(err error, tags map[string]string) {
	id := s.client.CaptureError(err, tags)
	s.logger.Debug("reported error", "event_id", id)
}

// Close waits for queued events and releases the client.
func (s *Sentry) Close() {
	s.client.Wait()
	s.client.Close()
}
