package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/launcher"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
)

// cronParser accepts standard five-field expressions plus descriptors
// like @hourly. Task validation uses the same parser, so an expression
// that saved will also register.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpression reports whether the expression can be scheduled.
func ValidateCronExpression(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// Scheduler registers every active non-manual task with a cron runner and
// launches runs on schedule. Reload resynchronizes after task changes.
type Scheduler struct {
	cron     *cron.Cron
	tasks    repository.TaskRepository
	launcher *launcher.Launcher
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(tasks repository.TaskRepository, l *launcher.Launcher, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithParser(cronParser)),
		tasks:    tasks,
		launcher: l,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		entries:  map[string]cron.EntryID{},
	}
}

// Start loads scheduled tasks and begins firing them.
func (s *Scheduler) Start() error {
	if err := s.Reload(); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
	return nil
}

// Stop halts scheduling and waits for in-flight launches to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Reload re-reads scheduled tasks and replaces all registered entries.
// Called at startup and after any task mutation.
func (s *Scheduler) Reload() error {
	tasks, err := s.tasks.ListScheduled()
	if err != nil {
		return errors.Wrap(err, "list scheduled tasks")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for taskID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, taskID)
	}

	for _, task := range tasks {
		spec, err := ScheduleSpec(task)
		if err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("skipping task with invalid schedule")
			continue
		}

		task := task
		entryID, err := s.cron.AddFunc(spec, func() { s.fire(task) })
		if err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.ID).Str("spec", spec).Msg("failed to register task schedule")
			continue
		}
		s.entries[task.ID] = entryID
		s.logger.Debug().Str("task_id", task.ID).Str("spec", spec).Msg("task scheduled")
	}

	s.logger.Info().Int("tasks", len(s.entries)).Msg("schedule reloaded")
	return nil
}

func (s *Scheduler) fire(task models.Task) {
	ctx := context.Background()
	run, err := s.launcher.Launch(ctx, task.TenantID, task.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("scheduled run failed to launch")
		return
	}
	s.logger.Info().Str("task_id", task.ID).Str("run_id", run.ID).Msg("scheduled run launched")
}

// ScheduleSpec translates a task's fetch mode into a cron spec.
func ScheduleSpec(task models.Task) (string, error) {
	switch task.FetchMode {
	case models.FetchModeInterval:
		if task.FetchIntervalMinutes < 5 || task.FetchIntervalMinutes > 1440 {
			return "", errors.Errorf("interval %d out of range", task.FetchIntervalMinutes)
		}
		return fmt.Sprintf("@every %dm", task.FetchIntervalMinutes), nil
	case models.FetchModeDaily:
		hour, minute, err := ParseDailyAt(task.FetchDailyAt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case models.FetchModeCron:
		if err := ValidateCronExpression(task.CronExpression); err != nil {
			return "", errors.Wrap(err, "invalid cron expression")
		}
		return task.CronExpression, nil
	default:
		return "", errors.Errorf("fetch mode %q is not schedulable", task.FetchMode)
	}
}

// ParseDailyAt parses a daily schedule time in HH:MM.
func ParseDailyAt(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("invalid daily time %q, expected HH:MM", raw)
	}
	if _, err := fmt.Sscanf(raw, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, errors.Errorf("invalid daily time %q, expected HH:MM", raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.Errorf("daily time %q out of range", raw)
	}
	return hour, minute, nil
}
