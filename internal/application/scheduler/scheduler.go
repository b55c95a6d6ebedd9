// Package scheduler runs the authoritative deadline evaluator and the
// journal flush on cron entries.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Ticker applies due deadlines; it reports whether a tick was applied.
type Ticker interface {
	Tick(ctx context.Context) (bool, error)
}

// Flusher persists buffered journal entries.
type Flusher interface {
	Flush(ctx context.Context) error
}

type Config struct {
	TickSpec    string
	FlushSpec   string
	TickTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.TickSpec == "" {
		c.TickSpec = "@every 1s"
	}
	if c.FlushSpec == "" {
		c.FlushSpec = "@every 2s"
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 5 * time.Second
	}
	return c
}

type Scheduler struct {
	cfg      Config
	ticker   Ticker
	flusher  Flusher
	cron     *cron.Cron
	ticking  atomic.Bool
	flushing atomic.Bool
	ticks    atomic.Int64
	logger   zerolog.Logger
}

// New builds the scheduler. flusher may be nil.
func New(cfg Config, ticker Ticker, flusher Flusher, logger zerolog.Logger) (*Scheduler, error) {
	cfg = cfg.normalized()
	s := &Scheduler{
		cfg:     cfg,
		ticker:  ticker,
		flusher: flusher,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
	s.cron = cron.New(cron.WithLogger(cronLogger{logger: s.logger}))
	if _, err := s.cron.AddFunc(cfg.TickSpec, s.runTick); err != nil {
		return nil, fmt.Errorf("tick schedule %q: %w", cfg.TickSpec, err)
	}
	if flusher != nil {
		if _, err := s.cron.AddFunc(cfg.FlushSpec, s.runFlush); err != nil {
			return nil, fmt.Errorf("flush schedule %q: %w", cfg.FlushSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("tick", s.cfg.TickSpec).Str("flush", s.cfg.FlushSpec).Msg("scheduler started")
}

// Stop halts the cron, waits for running jobs and flushes once more.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	if s.flusher != nil {
		if err := s.flusher.Flush(ctx); err != nil {
			s.logger.Error().Err(err).Msg("final journal flush")
		}
	}
}

// Ticks is the number of applied ticks.
func (s *Scheduler) Ticks() int64 { return s.ticks.Load() }

// runTick skips when the previous tick is still running.
func (s *Scheduler) runTick() {
	if !s.ticking.CompareAndSwap(false, true) {
		return
	}
	defer s.ticking.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()
	applied, err := s.ticker.Tick(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("tick failed")
		return
	}
	if applied {
		s.ticks.Add(1)
	}
}

func (s *Scheduler) runFlush() {
	if !s.flushing.CompareAndSwap(false, true) {
		return
	}
	defer s.flushing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()
	if err := s.flusher.Flush(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("journal flush failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
