package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 30s"

// Scheduler runs the classifier on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	classifier *Classifier
	logger     *slog.Logger
	schedule   string
}

func NewScheduler(classifier *Classifier, logger *slog.Logger, schedule string) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{cron: c, classifier: classifier, logger: logger, schedule: schedule}
}

// Start registers the classification job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		s.logger.Error("failed to schedule health classifier", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled health classifier", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	decisions, err := s.classifier.Classify(ctx)
	if err != nil {
		s.logger.Error("health classifier run failed", "error", err)
		return
	}
	changed := 0
	for _, d := range decisions {
		if d.Changed {
			changed++
		}
	}
	s.logger.Info("health classifier run complete", "banks_observed", len(decisions), "changed", changed)
}
