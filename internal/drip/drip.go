package drip

import (
	"context"
	"fmt"
	"time"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
)

// Config holds configuration for the drip campaign scheduler.
type Config struct {
	WorkerInterval time.Duration `mapstructure:"worker_interval"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		WorkerInterval: 24 * time.Hour,
	}
}

// Worker sends the fixed drip campaign: one pass over every stage, emailing
// entries whose signup age matches the stage offset and that have no tracking
// record for it yet. A stage is recorded only after its email is delivered.
type Worker struct {
	repo   dependency.Repository
	mailer dependency.Mailer
	c      *Config
	ctx    context.Context
	stop   context.CancelFunc
}

// New creates a new drip campaign worker.
func New(c *Config, repo dependency.Repository, mailer dependency.Mailer) *Worker {
	if c == nil {
		dc := DefaultConfig()
		c = &dc
	}
	if c.WorkerInterval == 0 {
		c.WorkerInterval = 24 * time.Hour
	}
	return &Worker{
		repo:   repo,
		mailer: mailer,
		c:      c,
	}
}

// Start starts the worker.
func (w *Worker) Start(ctx context.Context) error {
	if w.ctx != nil && w.stop != nil {
		return fmt.Errorf("drip worker already started")
	}
	w.ctx, w.stop = context.WithCancel(ctx)
	go w.worker(w.ctx)
	return nil
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() error {
	if w.stop == nil {
		return fmt.Errorf("drip worker already stopped or not started")
	}
	w.stop()
	w.stop = nil
	return nil
}
