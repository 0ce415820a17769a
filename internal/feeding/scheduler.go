// Package feeding triggers the tank feeder on demand and on daily schedules.
package feeding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aqua-backend/internal/models"
	"aqua-backend/internal/mqtt"
)

var (
	ErrFeedInProgress   = errors.New("a feed is already in progress")
	ErrScheduleNotFound = errors.New("feed schedule not found")
	ErrInvalidTime      = errors.New("hour must be 0-23 and minute 0-59")
)

// Feeder sends the feed command
type Feeder interface {
	Feed(ctx context.Context) error
}

// EventRecorder persists feed attempts
type EventRecorder interface {
	SaveFeedEvent(ctx context.Context, event models.FeedEvent) error
}

// Schedule is a daily feeding time in the server's local zone
type Schedule struct {
	ID        string    `json:"id"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
	Enabled   bool      `json:"enabled"`
	LastFired time.Time `json:"last_fired,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// Time formats the schedule as HH:MM
func (s Schedule) Time() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// ScheduleUpdate carries the fields to change; nil fields are kept
type ScheduleUpdate struct {
	Hour    *int  `json:"hour"`
	Minute  *int  `json:"minute"`
	Enabled *bool `json:"enabled"`
}

// Scheduler runs manual and scheduled feeds, one at a time
type Scheduler struct {
	feeder    Feeder
	recorders []EventRecorder
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	feeding atomic.Bool

	mu        sync.RWMutex
	schedules map[string]*Schedule
	lastFeed  *models.FeedEvent
	observers []func(models.FeedEvent)
}

// Option customises a Scheduler
type Option func(*Scheduler)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInterval sets how often schedules are checked
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRecorder adds a persistence target for feed events
func WithRecorder(r EventRecorder) Option {
	return func(s *Scheduler) { s.recorders = append(s.recorders, r) }
}

// NewScheduler creates a scheduler with no schedules
func NewScheduler(feeder Feeder, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		feeder:    feeder,
		interval:  time.Minute,
		now:       time.Now,
		logger:    logger.Named("feeding"),
		schedules: make(map[string]*Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnFeed registers fn to be called after every feed attempt
func (s *Scheduler) OnFeed(fn func(models.FeedEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// FeedNow feeds immediately. A feed already running yields ErrFeedInProgress.
func (s *Scheduler) FeedNow(ctx context.Context) error {
	return s.feed(ctx, models.FeedSourceManual, "")
}

// Feeding reports whether a feed command is in flight
func (s *Scheduler) Feeding() bool {
	return s.feeding.Load()
}

// LastFeed returns the most recent feed attempt
func (s *Scheduler) LastFeed() (models.FeedEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastFeed == nil {
		return models.FeedEvent{}, false
	}
	return *s.lastFeed, true
}

func (s *Scheduler) feed(ctx context.Context, source, scheduleID string) error {
	if !s.feeding.CompareAndSwap(false, true) {
		return ErrFeedInProgress
	}
	defer s.feeding.Store(false)

	err := s.feeder.Feed(ctx)

	event := models.FeedEvent{
		Timestamp:  s.now(),
		Source:     source,
		ScheduleID: scheduleID,
	}
	switch {
	case errors.Is(err, mqtt.ErrUnacknowledged):
		// the command left the process, so a retry could feed twice
		event.Unacknowledged = true
		s.logger.Warn("feed command not acknowledged", zap.String("source", source), zap.Error(err))
		err = nil
	case err != nil:
		event.Error = err.Error()
	}

	s.mu.Lock()
	s.lastFeed = &event
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, r := range s.recorders {
		if rerr := r.SaveFeedEvent(ctx, event); rerr != nil {
			s.logger.Error("failed to record feed event", zap.Error(rerr))
		}
	}
	for _, fn := range observers {
		fn(event)
	}

	if err != nil {
		s.logger.Warn("feed failed", zap.String("source", source), zap.Error(err))
		return err
	}
	s.logger.Info("fed", zap.String("source", source), zap.String("schedule_id", scheduleID))
	return nil
}

// Add creates a daily schedule
func (s *Scheduler) Add(hour, minute int, enabled bool) (Schedule, error) {
	if err := validateTime(hour, minute); err != nil {
		return Schedule{}, err
	}

	sched := &Schedule{
		ID:        uuid.NewString(),
		Hour:      hour,
		Minute:    minute,
		Enabled:   enabled,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.schedules[sched.ID] = sched
	s.mu.Unlock()

	s.logger.Info("schedule added", zap.String("id", sched.ID), zap.String("time", sched.Time()))
	return *sched, nil
}

// Update changes a schedule. Moving it to another time re-arms it for today.
func (s *Scheduler) Update(id string, upd ScheduleUpdate) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}

	hour, minute := sched.Hour, sched.Minute
	if upd.Hour != nil {
		hour = *upd.Hour
	}
	if upd.Minute != nil {
		minute = *upd.Minute
	}
	if err := validateTime(hour, minute); err != nil {
		return Schedule{}, err
	}

	if hour != sched.Hour || minute != sched.Minute {
		sched.LastFired = time.Time{}
	}
	sched.Hour, sched.Minute = hour, minute
	if upd.Enabled != nil {
		sched.Enabled = *upd.Enabled
	}
	return *sched, nil
}

// Remove deletes a schedule
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return ErrScheduleNotFound
	}
	delete(s.schedules, id)
	return nil
}

// List returns all schedules ordered by time of day
func (s *Scheduler) List() []Schedule {
	s.mu.RLock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Schedule) int {
		if c := (a.Hour*60 + a.Minute) - (b.Hour*60 + b.Minute); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Start checks schedules every interval until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting schedule loop", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial check
	s.RunDue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule loop shutting down")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue fires every enabled schedule matching the current minute that has
// not fired in this minute yet. It returns the ids that were fired.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	now := s.now()
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	var due []string
	for id, sched := range s.schedules {
		if !sched.Enabled || sched.Hour != now.Hour() || sched.Minute != now.Minute() {
			continue
		}
		if sched.LastFired.Equal(minute) {
			continue
		}
		sched.LastFired = minute
		due = append(due, id)
	}
	s.mu.Unlock()

	slices.Sort(due)
	for _, id := range due {
		if err := s.feed(ctx, models.FeedSourceSchedule, id); err != nil {
			s.logger.Warn("scheduled feed failed", zap.String("schedule_id", id), zap.Error(err))
		}
	}
	return due
}

func validateTime(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ErrInvalidTime
	}
	return nil
}
