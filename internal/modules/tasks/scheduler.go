package tasks

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/domain"
	"github.com/mosaicfin/atrader/internal/modules/trading"
)

// Scheduler registers active tasks with a cron runner. Schedules are
// standard five-field cron expressions evaluated in market time.
type Scheduler struct {
	tasks    *TaskRepository
	executor *Executor
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

func NewScheduler(tasks *TaskRepository, executor *Executor, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		executor: executor,
		log:      log.With().Str("component", "scheduler").Logger(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start loads active tasks and begins running them. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron = cron.New(cron.WithLocation(trading.MarketLocation()))
	if err := s.registerLocked(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Int("tasks", len(s.entries)).Msg("scheduler started")
	return nil
}

// Reload re-reads the task table and replaces all registrations. Called
// after task definitions change.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}

	for taskID, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, taskID)
	}
	if err := s.registerLocked(ctx); err != nil {
		return err
	}
	s.log.Info().Int("tasks", len(s.entries)).Msg("scheduler reloaded")
	return nil
}

// Stop halts the cron runner and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) registerLocked(ctx context.Context) error {
	active, err := s.tasks.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, task := range active {
		task := task
		id, err := s.cron.AddFunc(task.Schedule, func() { s.run(task.TaskID) })
		if err != nil {
			// A bad expression disables one task, not the scheduler.
			s.log.Error().Err(err).
				Str("task_id", task.TaskID).
				Str("schedule", task.Schedule).
				Msg("invalid schedule, task not registered")
			continue
		}
		s.entries[task.TaskID] = id
	}
	return nil
}

func (s *Scheduler) run(taskID string) {
	ctx := context.Background()
	entry, err := s.executor.ExecuteByID(ctx, taskID)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("scheduled run failed")
		return
	}
	if entry.Status == domain.TaskLogFailed {
		s.log.Warn().
			Str("task_id", taskID).
			Str("error", entry.ErrorMessage).
			Msg("scheduled run reported failure")
	}
}
