// Package dispatcher serializes scrape runs through a bounded queue.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Runner executes one scrape run.
type Runner interface {
	Run(ctx context.Context, runID string) (minutes.RunCounters, error)
}

// Dispatcher records submitted runs and feeds them, one at a time, to the
// runner.
type Dispatcher struct {
	queue  minutes.Queue
	runs   minutes.RunStore
	runner Runner
	ids    minutes.IDGenerator
	clock  minutes.Clock
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue minutes.Queue,
	runs minutes.RunStore,
	runner Runner,
	ids minutes.IDGenerator,
	clock minutes.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		runs:   runs,
		runner: runner,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("dispatcher"),
	}
}

// Submit stores a queued run and enqueues it. A run that cannot be enqueued
// is marked failed so it never lingers as queued.
func (d *Dispatcher) Submit(ctx context.Context, trigger minutes.RunTrigger) (minutes.Run, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return minutes.Run{}, fmt.Errorf("run id: %w", err)
	}
	run := minutes.Run{
		ID:        id,
		Status:    minutes.RunStatusQueued,
		Trigger:   trigger,
		Submitted: d.clock.Now(),
	}
	if err := d.runs.CreateRun(ctx, run); err != nil {
		return minutes.Run{}, fmt.Errorf("create run: %w", err)
	}
	item := minutes.QueueItem{RunID: id, Trigger: trigger, Submitted: run.Submitted.UnixNano()}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := d.runs.UpdateRun(markCtx, id, minutes.RunStatusFailed, "enqueue failed", minutes.RunCounters{}); uerr != nil {
			d.logger.Error("mark unqueued run failed", zap.String("run_id", id), zap.Error(uerr))
		}
		return minutes.Run{}, fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Info("run submitted", zap.String("run_id", id), zap.String("trigger", string(trigger)))
	return run, nil
}

// Run consumes queued runs until ctx ends. Runs execute sequentially.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		d.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		if _, err := d.runner.Run(ctx, item.RunID); err != nil {
			d.logger.Warn("run did not succeed", zap.String("run_id", item.RunID), zap.Error(err))
		}
	}
}
