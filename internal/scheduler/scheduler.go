// Package scheduler runs LeadPipe's periodic maintenance jobs.
//
// Jobs are scheduled with standard 5-field cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs dedup pruning at the top of every hour.
const DefaultPruneSchedule = "0 * * * *"

// DefaultPruneTimeout bounds a single prune run.
const DefaultPruneTimeout = 30 * time.Second

// InboundPruner forgets inbound message IDs recorded before a cutoff.
type InboundPruner interface {
	PruneInbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// SchedulePrune registers a job that removes dedup records older than retention.
func (s *Scheduler) SchedulePrune(expr string, pruner InboundPruner, retention time.Duration) error {
	if expr == "" {
		expr = DefaultPruneSchedule
	}
	if err := s.AddJob(expr, PruneJob(pruner, retention)); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", expr, err)
	}
	slog.Info("Scheduler.SchedulePrune: dedup pruning scheduled", "schedule", expr, "retention", retention)
	return nil
}

// PruneJob returns the task run by SchedulePrune.
func PruneJob(pruner InboundPruner, retention time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultPruneTimeout)
		defer cancel()
		n, err := pruner.PruneInbound(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Error("Scheduler.PruneJob: prune failed", "error", err)
			return
		}
		slog.Debug("Scheduler.PruneJob: pruned inbound records", "removed", n)
	}
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
