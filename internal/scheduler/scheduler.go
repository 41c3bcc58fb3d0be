// Package scheduler drives periodic delivery: each tick sweeps duplicates,
// selects dispatchable notifications, claims them and hands them to the
// dispatcher on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ship-notification-service/internal/dispatch"
	"ship-notification-service/internal/models"
)

var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ship_notification_scheduler_tick_duration_seconds",
		Help:    "Duration of scheduler ticks that ran.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	ticksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ship_notification_scheduler_ticks_skipped_total",
		Help: "Ticks skipped because a previous run or another instance held the scheduler.",
	}, []string{"reason"})
)

// dispatchTimeout bounds one claimed dispatch once it is detached from the tick's context.
const dispatchTimeout = 30 * time.Second

type store interface {
	ListDispatchable(ctx context.Context, now time.Time, includeFailed bool, limit int) ([]models.Notification, error)
	ClaimForSending(ctx context.Context, id string, from models.Status) (bool, error)
}

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) dispatch.Outcome
}

// Lease guards a tick across instances. db.AdvisoryLease implements it.
type Lease interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

type Options struct {
	Interval    time.Duration
	BatchSize   int
	MaxWorkers  int
	RetryFailed bool
}

// Result summarises one tick.
type Result struct {
	Swept      int64
	Selected   int
	Claimed    int
	Sent       int
	Failed     int
	LostClaims int
}

type Scheduler struct {
	store      store
	sweeper    sweeper
	dispatcher dispatcher
	lease      Lease
	opts       Options
	logger     *logrus.Logger
	now        func() time.Time

	running atomic.Bool
}

func New(store store, sweeper sweeper, dispatcher dispatcher, opts Options, logger *logrus.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	return &Scheduler{
		store:      store,
		sweeper:    sweeper,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// SetLease promotes the single-flight guard to a cross-instance lease.
func (s *Scheduler) SetLease(l Lease) {
	s.lease = l
}

// Run ticks every Interval until ctx is cancelled, then waits for the running tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	s.logger.Infof("Scheduler started: interval=%s workers=%d retry_failed=%t", s.opts.Interval, s.opts.MaxWorkers, s.opts.RetryFailed)
	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			// a tick that overlaps the previous one is dropped inside Tick
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				if _, _, err := s.Tick(ctx); err != nil {
					s.logger.Errorf("Scheduler tick failed: %v", err)
				}
			}()
		}
	}
}

// Tick runs one scheduling pass. ran is false when the pass was skipped
// because a previous pass is still running or another instance holds the lease.
func (s *Scheduler) Tick(ctx context.Context) (res Result, ran bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		ticksSkipped.WithLabelValues("running").Inc()
		s.logger.Debug("Previous tick still running, skipping")
		return Result{}, false, nil
	}
	defer s.running.Store(false)

	if s.lease != nil {
		release, ok, err := s.lease.TryAcquire(ctx)
		if err != nil {
			return Result{}, false, err
		}
		if !ok {
			ticksSkipped.WithLabelValues("lease").Inc()
			s.logger.Debug("Scheduler lease held elsewhere, skipping")
			return Result{}, false, nil
		}
		defer release()
	}

	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	res.Swept, err = s.sweeper.Sweep(ctx)
	if err != nil {
		return res, true, fmt.Errorf("dedup sweep: %w", err)
	}

	batch, err := s.store.ListDispatchable(ctx, s.now(), s.opts.RetryFailed, s.opts.BatchSize)
	if err != nil {
		return res, true, fmt.Errorf("failed to select dispatchable notifications: %w", err)
	}
	res.Selected = len(batch)
	if len(batch) == 0 {
		return res, true, nil
	}

	var (
		claimed, sent, failed, lost atomic.Int32
		g                           errgroup.Group
	)
	g.SetLimit(s.opts.MaxWorkers)
	for _, n := range batch {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					s.logger.WithField("notification_id", n.ID).Errorf("Dispatch worker panicked: %v", r)
				}
			}()

			ok, err := s.store.ClaimForSending(ctx, n.ID, n.Status)
			if err != nil {
				s.logger.WithField("notification_id", n.ID).Errorf("Failed to claim notification: %v", err)
				return nil
			}
			if !ok {
				lost.Add(1)
				return nil
			}
			claimed.Add(1)
			n.Status = models.StatusSending

			// a claimed row must leave SENDING even when shutdown cancels ctx
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
			defer cancel()
			if out := s.dispatcher.Dispatch(dctx, n); out.Success {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Claimed = int(claimed.Load())
	res.Sent = int(sent.Load())
	res.Failed = int(failed.Load())
	res.LostClaims = int(lost.Load())
	s.logger.WithFields(logrus.Fields{
		"swept":    res.Swept,
		"selected": res.Selected,
		"sent":     res.Sent,
		"failed":   res.Failed,
	}).Info("Scheduler tick finished")
	return res, true, nil
}
