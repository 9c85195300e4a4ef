package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a single job on a cron spec.
type Scheduler struct {
	cron  *cron.Cron
	entry cron.EntryID
	spec  string
}

// New schedules job on spec, which accepts standard five-field expressions
// and descriptors like "@every 30m". An empty spec yields a nil Scheduler,
// whose methods are no-ops.
//
// Activations never overlap: a tick that fires while job is still running is
// skipped and logged at debug level. This only serialises job itself, so a job
// that hands work to a goroutine and returns has to supersede stale work on
// its own.
func New(spec string, job func(), log *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, nil
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: log.With(slog.String("spec", spec))})))
	id, err := c.AddFunc(spec, func() {
		log.Debug("scheduled job started", slog.String("spec", spec))
		job()
	})
	if err != nil {
		return nil, fmt.Errorf("add cron %q: %w", spec, err)
	}
	return &Scheduler{cron: c, entry: id, spec: spec}, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Next reports the upcoming activation, zero until started.
func (s *Scheduler) Next() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Spec returns the expression the scheduler was built with.
func (s *Scheduler) Spec() string {
	if s == nil {
		return ""
	}
	return s.spec
}

// cronLogger forwards cron's chatter to slog; "skip" is the only Info message
// the chain emits.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		msg = "scheduled job still running, skipping activation"
	}
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
