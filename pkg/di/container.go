// Package di provides dependency injection container
package di

import (
	"io"
	"log/slog"
	"os"

	"github.com/ssargent/datapak/pkg/config"  //nolint:depguard
	"github.com/ssargent/datapak/pkg/metrics" //nolint:depguard
	"github.com/ssargent/datapak/pkg/store"   //nolint:depguard
)

// StoreOpener opens a store. Tests replace it to inject failures.
type StoreOpener func(path string, opts store.Options) (*store.Store, error)

// LoggerFactory builds the logger for a run from its logging config.
type LoggerFactory func(cfg config.Logging) (*slog.Logger, error)

// Container holds all the dependencies for the application
type Container struct {
	storeOpener   StoreOpener
	loggerFactory LoggerFactory
	metrics       *metrics.Metrics
	stdout        io.Writer
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		storeOpener: store.Open,
		loggerFactory: func(cfg config.Logging) (*slog.Logger, error) {
			return cfg.NewLogger(os.Stderr)
		},
		metrics: metrics.New(),
		stdout:  os.Stdout,
	}
}

// OpenStore opens the store at path through the configured opener.
func (c *Container) OpenStore(path string, opts store.Options) (*store.Store, error) {
	return c.storeOpener(path, opts)
}

// NewLogger builds a logger for cfg.
func (c *Container) NewLogger(cfg config.Logging) (*slog.Logger, error) {
	return c.loggerFactory(cfg)
}

// GetMetrics returns the process-wide metrics registry
func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}

// Stdout is where summaries and listings are written.
func (c *Container) Stdout() io.Writer {
	return c.stdout
}

// SetStoreOpener allows overriding the store opener (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// SetLoggerFactory allows overriding the logger factory (for testing)
func (c *Container) SetLoggerFactory(factory LoggerFactory) {
	c.loggerFactory = factory
}

// SetMetrics allows overriding the metrics registry (for testing)
func (c *Container) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// SetStdout allows redirecting command output (for testing)
func (c *Container) SetStdout(w io.Writer) {
	c.stdout = w
}
