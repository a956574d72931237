// Package scheduler runs fetch and process passes for users who enabled
// automatic relay.
package scheduler

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/pipeline"
)

const defaultTick = 5 * time.Minute

// Passes is the part of the pipeline the scheduler drives.
type Passes interface {
	Fetch(ctx context.Context, user *models.User, cfg *models.UserConfig, trigger string) (*pipeline.FetchReport, error)
	Process(ctx context.Context, user *models.User, cfg *models.UserConfig) (*pipeline.ProcessReport, error)
}

// SessionPurger drops expired web sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Scheduler struct {
	db       *gorm.DB
	passes   Passes
	sessions SessionPurger
	tick     time.Duration
	log      logging.Logger
	now      func() time.Time
}

// New creates a scheduler. sessions may be nil.
func New(database *gorm.DB, passes Passes, sessions SessionPurger, tick time.Duration, log logging.Logger) *Scheduler {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{
		db:       database,
		passes:   passes,
		sessions: sessions,
		tick:     tick,
		log:      log.WithComponent("scheduler"),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. The first round runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info("Scheduler started", logging.Duration("tick", s.tick))
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce handles every due user sequentially and returns how many ran.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s.sessions != nil {
		if n, err := s.sessions.PurgeExpired(ctx); err != nil {
			s.log.Warn("Failed to purge expired sessions", logging.Err(err))
		} else if n > 0 {
			s.log.Debug("Purged expired sessions", logging.Count(int(n)))
		}
	}

	due, err := db.DueAutoFetchConfigs(s.db, s.now())
	if err != nil {
		s.log.Error("Failed to load due configs", err)
		return 0
	}

	ran := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if s.runUser(ctx, &due[i]) {
			ran++
		}
	}
	return ran
}

func (s *Scheduler) runUser(ctx context.Context, cfg *models.UserConfig) bool {
	log := s.log.WithUserID(cfg.UserID)

	user, err := db.GetActiveUser(s.db, cfg.UserID)
	if err != nil {
		log.Warn("Skipping scheduled run, user unavailable", logging.Err(err))
		return false
	}

	// The interval restarts even when the run fails so a broken account is
	// retried once per interval, not once per tick.
	defer func() {
		if err := db.MarkAutoRun(s.db, cfg.UserID, s.now().UTC()); err != nil {
			log.Error("Failed to stamp scheduled run", err)
		}
	}()

	report, err := s.passes.Fetch(ctx, user, cfg, models.TriggerScheduled)
	if err != nil {
		if errors.Is(err, token.ErrReauthRequired) {
			log.Warn("Skipping scheduled run, user must sign in again", logging.Email(user.Email))
		} else {
			log.Warn("Scheduled fetch failed", logging.Err(err))
		}
		return false
	}

	if cfg.Recipient == "" {
		log.Debug("No recipient configured, fetched only", logging.Int("new", report.New))
		return true
	}
	if _, err := s.passes.Process(ctx, user, cfg); err != nil {
		log.Warn("Scheduled process failed", logging.Err(err))
	}
	return true
}
