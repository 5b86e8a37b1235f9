// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/amirphl/Hachiko/app/services"
	businessflow "github.com/amirphl/Hachiko/business_flow"
	"github.com/amirphl/Hachiko/repository"
	"github.com/amirphl/Hachiko/utils"
)

// SubscriptionScheduler periodically sweeps for due subscriptions and runs a
// delivery cycle for each one.
type SubscriptionScheduler struct {
	subscriptionRepo repository.SubscriptionRepository
	teamRepo         repository.TeamRepository
	teamCache        *services.TeamActivityCache
	deliveryFlow     businessflow.DeliveryFlow
	logger           *log.Logger
	interval         time.Duration
	sweepLimit       int
	taskTimeout      time.Duration

	db *gorm.DB
}

func NewSubscriptionScheduler(
	subscriptionRepo repository.SubscriptionRepository,
	teamRepo repository.TeamRepository,
	teamCache *services.TeamActivityCache,
	deliveryFlow businessflow.DeliveryFlow,
	db *gorm.DB,
	interval time.Duration,
	sweepLimit int,
	taskTimeout time.Duration,
	logDir string,
) *SubscriptionScheduler {
	if interval <= 0 {
		interval = utils.DefaultSweepInterval
	}
	if sweepLimit <= 0 {
		sweepLimit = 500
	}
	if taskTimeout <= 0 {
		taskTimeout = utils.DefaultTaskTimeout
	}

	s := &SubscriptionScheduler{
		subscriptionRepo: subscriptionRepo,
		teamRepo:         teamRepo,
		teamCache:        teamCache,
		deliveryFlow:     deliveryFlow,
		db:               db,
		interval:         interval,
		sweepLimit:       sweepLimit,
		taskTimeout:      taskTimeout,
	}
	s.initSchedulerLogger(logDir)
	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a
// size-rotated file under the log directory.
func (s *SubscriptionScheduler) initSchedulerLogger(logDir string) {
	if logDir == "" {
		logDir = "data"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		s.logger = log.Default()
		s.logger.Printf("scheduler: failed to create log directory %s: %v", logDir, err)
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "scheduler.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotated)
	// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
	s.logger = log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *SubscriptionScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *SubscriptionScheduler) runOnce(ctx context.Context) {
	due, dispatched := s.RunSweep(ctx, businessflow.ExecutionContextSweep)
	if due > 0 {
		s.logger.Printf("scheduler: sweep dispatched %d of %d due subscriptions", dispatched, due)
	}
}

// RunSweep performs one sweep: list due subscriptions, build the per-sweep
// context with the active-team set, and run each delivery cycle in its own
// goroutine under the cycle timeout. It returns the due and dispatched counts
// without waiting for the cycles to finish.
func (s *SubscriptionScheduler) RunSweep(ctx context.Context, executionContext string) (due, dispatched int) {
	now := utils.UTCNow()

	// The buffer widens the window so a due time landing just after this
	// tick is not left waiting a full interval.
	subscriptions, err := s.subscriptionRepo.FindDue(ctx, now.Add(utils.SchedulingBuffer), s.sweepLimit)
	if err != nil {
		s.logger.Printf("scheduler: find due subscriptions failed: %v", err)
		return 0, 0
	}
	if len(subscriptions) == 0 {
		return 0, 0
	}
	s.logger.Printf("scheduler: found %d due subscriptions", len(subscriptions))

	sweepCtx := businessflow.NewSweepContext(executionContext, s.activeTeams(ctx), now)

	for _, subscription := range subscriptions {
		sub := subscription
		dispatched++
		go func() {
			taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
			defer cancel()

			if _, err := s.deliveryFlow.Deliver(taskCtx, sweepCtx, sub.ID, businessflow.DeliverOptions{}); err != nil {
				s.logger.Printf("scheduler: delivery cycle failed for subscription id=%d: %v (request %s)", sub.ID, err, sweepCtx.RequestID)
			}
		}()
	}
	businessflow.RecordSweepDispatched(dispatched)
	return len(subscriptions), dispatched
}

// activeTeams builds the active-team set for one sweep, preferring the
// redis-backed cache and falling back to a direct query. A failure here only
// costs render fidelity, never the sweep itself.
func (s *SubscriptionScheduler) activeTeams(ctx context.Context) map[uint]struct{} {
	ids, ok := s.teamCache.Get(ctx)
	if !ok {
		var err error
		ids, err = s.teamRepo.ListActiveTeamIDs(ctx, utils.TeamActivityWindow)
		if err != nil {
			s.logger.Printf("scheduler: list active teams failed: %v", err)
			return nil
		}
		if err := s.teamCache.Put(ctx, ids); err != nil {
			s.logger.Printf("scheduler: cache active teams failed: %v", err)
		}
	}

	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
