package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/hiretrack/internal/metrics"
)

// Worker runs registered tasks on their own intervals until stopped.
type Worker struct {
	tasks  map[string]Task
	order  []string
	config Config
	logger *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		tasks:  make(map[string]Task),
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Register adds a task to the worker. Call this before Start().
func (w *Worker) Register(task Task) error {
	name := task.Name()
	if task.Interval() <= 0 {
		return fmt.Errorf("task %s: interval must be positive, got %v", name, task.Interval())
	}
	if _, exists := w.tasks[name]; exists {
		w.logger.Warn("Overwriting existing task", "task", name)
	} else {
		w.order = append(w.order, name)
	}
	w.tasks[name] = task
	w.logger.Debug("Registered task", "task", name, "interval", task.Interval())
	return nil
}

// Start launches one goroutine per registered task.
func (w *Worker) Start(ctx context.Context) {
	for _, name := range w.order {
		w.wg.Add(1)
		go w.runTask(ctx, w.tasks[name])
	}

	w.logger.Info("Worker started", "tasks", len(w.order))
}

// Stop signals all tasks to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some tasks may still be running")
	}
}

// runTask is the scheduling loop for a single task.
func (w *Worker) runTask(ctx context.Context, task Task) {
	defer w.wg.Done()

	logger := w.logger.With("task", task.Name())

	if w.config.RunOnStart {
		if stop := w.runOnce(ctx, task, logger); stop {
			return
		}
	}

	ticker := time.NewTicker(task.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Task stopping")
			return
		case <-ctx.Done():
			logger.Debug("Task stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			if stop := w.runOnce(ctx, task, logger); stop {
				return
			}
		}
	}
}

// runOnce executes one run of task under the task timeout. It reports
// whether the task failed permanently.
func (w *Worker) runOnce(ctx context.Context, task Task, logger *slog.Logger) bool {
	runCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := task.Run(runCtx)
	elapsed := time.Since(start)

	if err == nil {
		metrics.TaskCompleted(task.Name(), elapsed)
		logger.Debug("Task completed", "duration_ms", elapsed.Milliseconds())
		return false
	}

	metrics.TaskFailed(task.Name(), elapsed)
	if IsPermanent(err) {
		logger.Error("Task failed with permanent error, will not run again", "error", err)
		return true
	}
	logger.Error("Task failed", "error", err, "duration_ms", elapsed.Milliseconds())
	return false
}
