// Package scheduler runs the recurring background jobs of the engine
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/amirphl/affiliate-engine/utils"
	"github.com/go-co-op/gocron"
	"gopkg.in/natefinch/lumberjack.v2"
)

const settlementJobTag = "settlement"

// SettlementScheduler triggers the settlement batch once a day at the configured UTC time
type SettlementScheduler struct {
	flow   businessflow.SettlementFlow
	cron   *gocron.Scheduler
	logger *log.Logger
	runAt  string

	logFile io.Closer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSettlementScheduler creates the scheduler. An empty SchedulerLogPath logs to stdout only.
func NewSettlementScheduler(flow businessflow.SettlementFlow, cfg config.SettlementConfig, logging config.LoggingConfig) (*SettlementScheduler, error) {
	if _, _, err := config.ParseRunAt(cfg.RunAt); err != nil {
		return nil, err
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	s := &SettlementScheduler{
		flow:  flow,
		cron:  cron,
		runAt: cfg.RunAt,
	}
	s.initLogger(logging)
	return s, nil
}

// initLogger writes scheduler lines to stdout and a rotating file
func (s *SettlementScheduler) initLogger(cfg config.LoggingConfig) {
	if cfg.SchedulerLogPath == "" {
		s.logger = log.New(os.Stdout, "settlement ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SchedulerLogPath), 0o755); err != nil {
		s.logger = log.Default()
		s.logger.Printf("settlement scheduler: failed to create log directory: %v", err)
		return
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.SchedulerLogPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	s.logFile = rotating
	s.logger = log.New(io.MultiWriter(os.Stdout, rotating), "settlement ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start registers the daily job and starts the cron loop. The returned func stops it.
func (s *SettlementScheduler) Start(parent context.Context) (func(), error) {
	s.ctx, s.cancel = context.WithCancel(parent)

	_, err := s.cron.Every(1).Day().At(s.runAt).Tag(settlementJobTag).Do(func() {
		s.run(businessflow.SettlementTriggerSchedule)
	})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("failed to schedule settlement job: %w", err)
	}

	s.cron.StartAsync()
	s.logger.Printf("scheduled daily at %s UTC, next run %s", s.runAt, s.NextRun().Format(time.RFC3339))

	return s.Stop, nil
}

// Stop cancels a running batch and stops the cron loop
func (s *SettlementScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.cron.Stop()
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

// RunNow executes one settlement pass immediately on the caller's goroutine. Cancelling ctx
// does not abort a pass that has started.
func (s *SettlementScheduler) RunNow(ctx context.Context) (*businessflow.SettlementReport, error) {
	report, err := s.flow.Run(context.WithoutCancel(ctx), utils.UTCNow(), businessflow.SettlementTriggerManual)
	if err == nil && report != nil {
		s.logger.Printf("manual run %d finished: settled=%d failed=%d", report.RunID, report.Settled, report.Failed)
	}
	return report, err
}

// NextRun reports when the daily job fires next
func (s *SettlementScheduler) NextRun() time.Time {
	_, next := s.cron.NextRun()
	return next
}

func (s *SettlementScheduler) run(trigger string) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := s.flow.Run(ctx, utils.UTCNow(), trigger)
	if err != nil {
		if businessflow.IsSettlementInProgress(err) {
			s.logger.Printf("skipped: another settlement run holds the lock")
			return
		}
		s.logger.Printf("run failed: %v", err)
		return
	}
	s.logger.Printf("run %d finished: scanned=%d settled=%d not_due=%d skipped=%d failed=%d",
		report.RunID, report.Scanned, report.Settled, report.NotDue, report.Skipped, report.Failed)
}
