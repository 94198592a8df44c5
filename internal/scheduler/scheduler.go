// Package scheduler triggers batch runs on cron schedules inside the
// process. Overlapping executions of the same job are skipped; overlap
// across processes is harmless because event recording is idempotent.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrEmptySpec is returned by Add for a job without a schedule.
var ErrEmptySpec = errors.New("empty cron spec")

// Job is one scheduled unit of work.
type Job struct {
	Name    string
	Spec    string // 5- or 6-field cron expression, or a descriptor like @every 15m
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Entry describes a registered job.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Scheduler owns a cron instance and the context jobs run under.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	logger *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	entries map[cron.EntryID]Job
}

// New creates a scheduler. Times are evaluated in UTC.
func New(logger *slog.Logger) *Scheduler {
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{logger})),
		parser:  parser,
		logger:  logger,
		baseCtx: baseCtx,
		cancel:  cancel,
		entries: map[cron.EntryID]Job{},
	}
}

// Add registers a job. The spec is validated immediately.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		return fmt.Errorf("%w: %s", ErrEmptySpec, job.Name)
	}
	sched, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", job.Spec, job.Name, err)
	}

	id := s.cron.Schedule(sched, s.wrap(job))

	s.mu.Lock()
	s.entries[id] = job
	s.mu.Unlock()

	s.logger.Info("Job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

// wrap applies panic recovery and in-process overlap skipping.
func (s *Scheduler) wrap(job Job) cron.Job {
	l := cronLogger{s.logger}
	run := cron.FuncJob(func() {
		ctx := s.baseCtx
		if job.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, job.Timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Error("Scheduled job failed", "job", job.Name, "error", err, "elapsed", time.Since(start))
			return
		}
		s.logger.Info("Scheduled job finished", "job", job.Name, "elapsed", time.Since(start))
	})
	return cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)).Then(run)
}

// Entries lists registered jobs with their next activation.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.cron.Entries() {
		job, ok := s.entries[e.ID]
		if !ok {
			continue
		}
		out = append(out, Entry{Name: job.Name, Spec: job.Spec, Next: e.Next})
	}
	return out
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts new activations, cancels running jobs' context once ctx
// expires, and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
	s.logger.Info("Scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
