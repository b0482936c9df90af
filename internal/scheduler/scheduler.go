// Package scheduler runs the periodic jobs. Each job gets either an interval
// or a cron trigger and a singleton guard so two ticks of the same job never
// overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/kumoarr/kumoarr/internal/events"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig contains configuration for a scheduled task.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Interval    time.Duration // used when Cron is empty
	Cron        string        // cron expression, overrides Interval
	Func        TaskFunc
	RunOnStart  bool // execute immediately on startup
}

// TaskInfo describes a scheduled task's current state.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Cron        string     `json:"cron,omitempty"`
	Interval    string     `json:"interval,omitempty"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	lastRun *time.Time
	running bool
}

// Scheduler manages the background jobs.
type Scheduler struct {
	gocron  gocron.Scheduler
	logger  zerolog.Logger
	bus     *events.Bus
	tasks   map[string]*taskEntry
	order   []string
	mu      sync.RWMutex
	enabled atomic.Bool
}

// New creates a scheduler.
func New(logger zerolog.Logger, bus *events.Bus) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		bus:    bus,
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// RegisterTask registers a scheduled task. Missed ticks are dropped rather
// than queued, so a slow run never stacks up behind itself.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}

	taskFunc := func() {
		s.executeTask(config.ID)
	}

	var definition gocron.JobDefinition
	if config.Cron != "" {
		definition = gocron.CronJob(config.Cron, false)
	} else {
		definition = gocron.DurationJob(config.Interval)
	}

	job, err := s.gocron.NewJob(
		definition,
		gocron.NewTask(taskFunc),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{
		config: config,
		job:    job,
	}
	s.order = append(s.order, config.ID)

	s.logger.Info().
		Str("id", config.ID).
		Str("name", config.Name).
		Str("cron", config.Cron).
		Dur("interval", config.Interval).
		Msg("Registered task")

	return nil
}

// executeTask runs a task and updates its state. A stopped scheduler turns
// pending ticks into no-ops; in-flight runs complete.
func (s *Scheduler) executeTask(taskID string) {
	if !s.enabled.Load() {
		return
	}

	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	startTime := time.Now()
	s.logger.Info().
		Str("id", taskID).
		Str("name", entry.config.Name).
		Msg("Starting task")
	s.bus.Publish(events.New(events.Info,
		fmt.Sprintf("job_started %s", taskID), map[string]any{"task": taskID}))

	ctx := context.Background()
	err := entry.config.Func(ctx)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &startTime
	s.mu.Unlock()

	duration := time.Since(startTime)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("id", taskID).
			Str("name", entry.config.Name).
			Dur("duration", duration).
			Msg("Task failed")
		s.bus.Publish(events.New(events.Error,
			fmt.Sprintf("job_failed %s: %v", taskID, err),
			map[string]any{"task": taskID, "duration_ms": duration.Milliseconds()}))
		return
	}
	s.logger.Info().
		Str("id", taskID).
		Str("name", entry.config.Name).
		Dur("duration", duration).
		Msg("Task completed")
	s.bus.Publish(events.New(events.Info,
		fmt.Sprintf("job_finished %s", taskID),
		map[string]any{"task": taskID, "duration_ms": duration.Milliseconds()}))
}

// Start starts the scheduler and fires any RunOnStart tasks.
func (s *Scheduler) Start() error {
	s.logger.Info().Msg("Starting scheduler")
	s.enabled.Store(true)
	s.gocron.Start()

	s.mu.RLock()
	tasksToRun := make([]string, 0)
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			tasksToRun = append(tasksToRun, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range tasksToRun {
		go s.executeTask(taskID)
	}

	return nil
}

// Stop stops the scheduler gracefully. Jobs already running finish.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.enabled.Store(false)
	return s.gocron.Shutdown()
}

// RunNow manually triggers a task.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if entry.running {
		return fmt.Errorf("task %q is already running", taskID)
	}

	go s.executeTask(taskID)
	return nil
}

// RunOnce executes every registered task sequentially, in registration
// order, for manual invocation.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.RLock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	s.mu.RUnlock()

	for _, id := range order {
		s.mu.RLock()
		entry := s.tasks[id]
		s.mu.RUnlock()
		if err := entry.config.Func(ctx); err != nil {
			return fmt.Errorf("task %q: %w", id, err)
		}
	}
	return nil
}

// ListTasks returns information about all registered tasks.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, id := range s.order {
		entry := s.tasks[id]
		info := TaskInfo{
			ID:          entry.config.ID,
			Name:        entry.config.Name,
			Description: entry.config.Description,
			Cron:        entry.config.Cron,
			LastRun:     entry.lastRun,
			Running:     entry.running,
		}
		if entry.config.Cron == "" {
			info.Interval = entry.config.Interval.String()
		}
		if nextRun, err := entry.job.NextRun(); err == nil {
			info.NextRun = &nextRun
		}
		tasks = append(tasks, info)
	}
	return tasks
}
