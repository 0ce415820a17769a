package feeding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aqua-backend/internal/models"
	"aqua-backend/internal/mqtt"
)

type fakeFeeder struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeFeeder) Feed(context.Context) error {
	f.mu.Lock()
	f.calls++
	release, started := f.release, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return f.err
}

func (f *fakeFeeder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []models.FeedEvent
}

func (r *memoryRecorder) SaveFeedEvent(_ context.Context, e models.FeedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func at(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 1, hour, minute, second, 0, time.Local)
}

func TestFeedNowRecordsEvent(t *testing.T) {
	feeder := &fakeFeeder{}
	rec := &memoryRecorder{}
	clk := &clock{t: at(9, 0, 0)}
	s := NewScheduler(feeder, zaptest.NewLogger(t), WithClock(clk.now), WithRecorder(rec))

	var observed []models.FeedEvent
	s.OnFeed(func(e models.FeedEvent) { observed = append(observed, e) })

	require.NoError(t, s.FeedNow(context.Background()))

	assert.Equal(t, 1, feeder.count())
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.FeedSourceManual, rec.events[0].Source)
	assert.Empty(t, rec.events[0].Error)
	assert.Equal(t, rec.events, observed)

	last, ok := s.LastFeed()
	require.True(t, ok)
	assert.Equal(t, at(9, 0, 0), last.Timestamp)
}

func TestFeedNowSurfacesPublishError(t *testing.T) {
	notConnected := errors.New("not connected to MQTT broker")
	feeder := &fakeFeeder{err: notConnected}
	rec := &memoryRecorder{}
	s := NewScheduler(feeder, zaptest.NewLogger(t), WithRecorder(rec))

	err := s.FeedNow(context.Background())
	require.ErrorIs(t, err, notConnected)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notConnected.Error(), rec.events[0].Error)
	assert.False(t, s.Feeding())
}

func TestFeedNowMarksUnacknowledgedCommand(t *testing.T) {
	feeder := &fakeFeeder{err: fmt.Errorf("failed to publish feed command: %w", mqtt.ErrUnacknowledged)}
	rec := &memoryRecorder{}
	s := NewScheduler(feeder, zaptest.NewLogger(t), WithRecorder(rec))

	require.NoError(t, s.FeedNow(context.Background()))

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Unacknowledged)
	assert.Empty(t, rec.events[0].Error)

	last, ok := s.LastFeed()
	require.True(t, ok)
	assert.True(t, last.Unacknowledged)
}

func TestFeedNowRejectsConcurrentFeed(t *testing.T) {
	feeder := &fakeFeeder{release: make(chan struct{}), started: make(chan struct{})}
	s := NewScheduler(feeder, zaptest.NewLogger(t))

	done := make(chan error)
	go func() { done <- s.FeedNow(context.Background()) }()
	<-feeder.started

	assert.True(t, s.Feeding())
	require.ErrorIs(t, s.FeedNow(context.Background()), ErrFeedInProgress)

	close(feeder.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, feeder.count())
}

func TestScheduleCRUD(t *testing.T) {
	s := NewScheduler(&fakeFeeder{}, zaptest.NewLogger(t))

	evening, err := s.Add(18, 30, true)
	require.NoError(t, err)
	morning, err := s.Add(8, 5, false)
	require.NoError(t, err)
	assert.NotEqual(t, evening.ID, morning.ID)
	assert.Equal(t, "08:05", morning.Time())

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, morning.ID, list[0].ID, "schedules are ordered by time of day")

	enabled := true
	hour := 7
	updated, err := s.Update(morning.ID, ScheduleUpdate{Hour: &hour, Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Hour)
	assert.Equal(t, 5, updated.Minute)
	assert.True(t, updated.Enabled)

	bad := 24
	_, err = s.Update(morning.ID, ScheduleUpdate{Hour: &bad})
	require.ErrorIs(t, err, ErrInvalidTime)

	require.NoError(t, s.Remove(evening.ID))
	require.ErrorIs(t, s.Remove(evening.ID), ErrScheduleNotFound)
	_, err = s.Update("missing", ScheduleUpdate{})
	require.ErrorIs(t, err, ErrScheduleNotFound)
	assert.Len(t, s.List(), 1)
}

func TestAddValidatesTime(t *testing.T) {
	s := NewScheduler(&fakeFeeder{}, zaptest.NewLogger(t))

	tests := []struct {
		name         string
		hour, minute int
	}{
		{name: "hour too large", hour: 24, minute: 0},
		{name: "negative hour", hour: -1, minute: 0},
		{name: "minute too large", hour: 10, minute: 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(tt.hour, tt.minute, true)
			require.ErrorIs(t, err, ErrInvalidTime)
		})
	}
	assert.Empty(t, s.List())
}

func TestRunDueFiresOncePerMinute(t *testing.T) {
	feeder := &fakeFeeder{}
	clk := &clock{t: at(8, 29, 59)}
	s := NewScheduler(feeder, zaptest.NewLogger(t), WithClock(clk.now))

	sched, err := s.Add(8, 30, true)
	require.NoError(t, err)
	_, err = s.Add(8, 30, false)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Empty(t, s.RunDue(ctx))

	clk.set(at(8, 30, 0))
	assert.Equal(t, []string{sched.ID}, s.RunDue(ctx))

	// a second check inside the same minute must not feed twice
	clk.set(at(8, 30, 45))
	assert.Empty(t, s.RunDue(ctx))
	assert.Equal(t, 1, feeder.count())

	// next day, same minute
	clk.set(at(8, 30, 10).AddDate(0, 0, 1))
	assert.Equal(t, []string{sched.ID}, s.RunDue(ctx))
	assert.Equal(t, 2, feeder.count())
}

func TestStartChecksImmediatelyAndStops(t *testing.T) {
	feeder := &fakeFeeder{}
	clk := &clock{t: at(12, 0, 5)}
	s := NewScheduler(feeder, zaptest.NewLogger(t), WithClock(clk.now), WithInterval(10*time.Millisecond))
	_, err := s.Add(12, 0, true)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return feeder.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, feeder.count())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
