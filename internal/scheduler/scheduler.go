// Package scheduler drives the periodic expiration sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"payflow/internal/services"
)

// LockName is the redis key guarding the sweep across replicas.
const LockName = "payments:expiration-sweep"

type Config struct {
	Interval time.Duration
}

type Scheduler struct {
	cfg     Config
	sweeper services.ExpirationService
	rs      *redsync.Redsync // nil runs without cross-instance locking
	logger  *zap.Logger

	cron *cron.Cron
	job  cron.Job
}

func New(cfg Config, sweeper services.ExpirationService, rs *redsync.Redsync, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		sweeper: sweeper,
		rs:      rs,
		logger:  logger,
	}

	cronLogger := zapCronLogger{logger.Sugar()}
	s.cron = cron.New(cron.WithLogger(cronLogger))
	// A tick that arrives while the previous sweep is still running is dropped.
	s.job = cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).
		Then(cron.FuncJob(func() { s.Tick(context.Background()) }))
	return s
}

func (s *Scheduler) Start() error {
	if s.cfg.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	if _, err := s.cron.AddJob(fmt.Sprintf("@every %s", s.cfg.Interval), s.job); err != nil {
		return fmt.Errorf("schedule expiration sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("expiration scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Bool("distributed_lock", s.rs != nil))
	return nil
}

// Stop stops scheduling and waits for a running sweep, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("expiration scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("expiration scheduler stop timed out")
		return ctx.Err()
	}
}

// Tick runs one sweep bounded by the interval, holding the distributed lock
// when one is configured.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()

	if s.rs != nil {
		mutex := s.rs.NewMutex(LockName,
			redsync.WithExpiry(s.cfg.Interval),
			redsync.WithTries(1))
		if err := mutex.TryLockContext(ctx); err != nil {
			s.logger.Debug("expiration sweep held by another instance", zap.Error(err))
			return
		}
		defer func() {
			if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release expiration sweep lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	report, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		s.logger.Error("expiration sweep failed", zap.Error(err))
		return
	}
	s.logger.Debug("expiration sweep tick",
		zap.Duration("took", time.Since(start)),
		zap.Int("cancelled", report.Cancelled))
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
