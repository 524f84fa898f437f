// Package scheduler takes chart snapshots of every property on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/candleview/internal/controller"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/notify"
	"github.com/dgnsrekt/candleview/internal/snapshot"
)

// TriggerSchedule marks snapshots taken by the cron job.
const TriggerSchedule = "schedule"

const defaultConcurrency = 2

// Snapshotter is the subset of the controller service used by a run.
type Snapshotter interface {
	ListProperties(ctx context.Context) ([]market.Property, error)
	TakeSnapshot(ctx context.Context, req controller.SnapshotRequest) (snapshot.Meta, error)
	PruneSnapshots(ctx context.Context) (int, error)
	Notify(ctx context.Context, message string) error
}

// Config controls what each run captures.
type Config struct {
	// Schedule is a cron expression; a leading seconds field is optional.
	Schedule    string
	Timeframe   string
	Format      string
	Concurrency int
}

// Result summarizes one run.
type Result struct {
	Saved  int
	Failed int
	Pruned int
}

// Scheduler runs snapshot batches on a cron schedule. Runs never overlap;
// a tick that arrives mid-run is skipped.
type Scheduler struct {
	cron   *cron.Cron
	svc    Snapshotter
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New registers the snapshot task. The returned scheduler is idle until Start.
func New(svc Snapshotter, cfg Config) (*Scheduler, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger{}),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		svc:    svc,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("register snapshot task: %w", err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("snapshot scheduler started", "schedule", s.cfg.Schedule)
}

// Stop stops the cron scheduler, cancels an in-flight run and waits for it.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	slog.Info("snapshot scheduler stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx, TriggerSchedule); err != nil {
		slog.Error("scheduled snapshot run failed", "error", err)
	}
}

// RunOnce snapshots every property, prunes old snapshots and sends a
// notification. A failed property does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (Result, error) {
	props, err := s.svc.ListProperties(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list properties: %w", err)
	}

	var saved, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range props {
		g.Go(func() error {
			meta, err := s.svc.TakeSnapshot(gctx, controller.SnapshotRequest{
				ChartRequest: controller.ChartRequest{
					PropertyID: p.ID,
					Timeframe:  s.cfg.Timeframe,
					Format:     s.cfg.Format,
				},
				Trigger: trigger,
			})
			if err != nil {
				failed.Add(1)
				slog.Warn("snapshot failed", "property", p.ID, "error", err)
				return nil
			}
			saved.Add(1)
			slog.Debug("snapshot taken", "property", p.ID, "snapshot", meta.ID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{Saved: int(saved.Load()), Failed: int(failed.Load())}, err
	}

	res := Result{Saved: int(saved.Load()), Failed: int(failed.Load())}
	pruned, err := s.svc.PruneSnapshots(ctx)
	if err != nil {
		slog.Warn("prune snapshots failed", "error", err)
	}
	res.Pruned = pruned

	if err := s.svc.Notify(ctx, notify.SnapshotMessage(res.Saved, res.Failed, trigger)); err != nil {
		slog.Warn("snapshot notification failed", "error", err)
	}
	slog.Info("snapshot run finished", "trigger", trigger, "saved", res.Saved, "failed", res.Failed, "pruned", res.Pruned)
	return res, nil
}
