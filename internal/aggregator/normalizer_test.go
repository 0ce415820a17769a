package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aqua-backend/internal/models"
)

const (
	topicCombined  = "esp32/sensor/data"
	topicTemp      = "smart-aqua/temp"
	topicPH        = "smart-aqua/ph"
	topicTDS       = "smart-aqua/tds"
	topicTurbidity = "smart-aqua/turbidity"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestNormalizer(t *testing.T, historyLength int) (*Normalizer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	topics := NewTopics(topicCombined, topicTemp, topicPH, topicTDS, topicTurbidity)
	return NewNormalizer(topics, historyLength, zaptest.NewLogger(t), WithClock(clock.now)), clock
}

func TestNormalizerCombinedThenJSON(t *testing.T) {
	n, clock := newTestNormalizer(t, 1000)

	readings := n.Process(topicCombined, []byte("Temp: 25.0 C, TDS: 100.00 ppm, Turbidity: 5.00 %"))
	require.Len(t, readings, 3)

	clock.advance(time.Second)
	readings = n.Process(topicPH, []byte(`{"value": 7.1}`))
	require.Len(t, readings, 1)
	assert.Equal(t, models.MetricPH, readings[0].Metric)

	snap := n.Snapshot()
	assert.Equal(t, 25.0, snap.Temperature)
	assert.Equal(t, 100.0, snap.TDS)
	assert.Equal(t, 5.0, snap.Turbidity)
	assert.Equal(t, 7.1, snap.PH)
	assert.Equal(t, clock.t, snap.UpdatedAt)

	for _, m := range models.AllMetrics {
		assert.Len(t, n.History(m), 1, "metric %s", m)
	}
	assert.Equal(t, clock.t.UnixMilli(), n.History(models.MetricPH)[0].Timestamp)
}

func TestNormalizerCombinedCarriesPHForward(t *testing.T) {
	n, _ := newTestNormalizer(t, 1000)

	n.Process(topicCombined, []byte("Temp: 25.0 C, TDS: 100 ppm, Turbidity: 5 %, pH: 6.9"))
	first := n.Snapshot()

	readings := n.Process(topicCombined, []byte("Temp: 25.0 C, TDS: 100 ppm, Turbidity: 5 %"))
	second := n.Snapshot()

	assert.Len(t, readings, 3)
	assert.Equal(t, 6.9, second.PH)
	assert.Equal(t, first.Temperature, second.Temperature)
	assert.Equal(t, first.TDS, second.TDS)
	assert.Equal(t, first.Turbidity, second.Turbidity)
	assert.Len(t, n.History(models.MetricPH), 1)
	assert.Len(t, n.History(models.MetricTemperature), 2)
}

func TestNormalizerSingleMetricTopics(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		metric  models.Metric
		want    float64
	}{
		{topic: topicTemp, payload: `{"value": 24.5}`, metric: models.MetricTemperature, want: 24.5},
		{topic: topicPH, payload: "6.8", metric: models.MetricPH, want: 6.8},
		{topic: topicTDS, payload: `{"value": "210"}`, metric: models.MetricTDS, want: 210},
		{topic: topicTurbidity, payload: " 12.5 ", metric: models.MetricTurbidity, want: 12.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			n, _ := newTestNormalizer(t, 1000)

			readings := n.Process(tt.topic, []byte(tt.payload))
			require.Len(t, readings, 1)

			snap := n.Snapshot()
			assert.Equal(t, tt.want, snap.Value(tt.metric))
			for _, other := range models.AllMetrics {
				if other == tt.metric {
					assert.Len(t, n.History(other), 1)
					continue
				}
				assert.Zero(t, snap.Value(other), "metric %s should be untouched", other)
				assert.Empty(t, n.History(other))
			}
		})
	}
}

func TestNormalizerMalformedPayloadsLeaveStateUnchanged(t *testing.T) {
	payloads := []struct {
		topic   string
		payload string
	}{
		{topic: topicTemp, payload: "garbage"},
		{topic: topicPH, payload: "garbage"},
		{topic: topicCombined, payload: "garbage"},
		{topic: topicTDS, payload: `{"reading": 12}`},
		{topic: topicTDS, payload: `{"value": "abc"}`},
		{topic: topicTurbidity, payload: "NaN"},
		{topic: topicCombined, payload: "Temp: 25.0 C, TDS: 100.00 ppm"},
		{topic: "unrelated/topic", payload: "42"},
	}

	n, clock := newTestNormalizer(t, 1000)
	n.Process(topicCombined, []byte("Temp: 22 C, TDS: 150 ppm, Turbidity: 4 %, pH: 7.2"))
	before := n.Snapshot()
	beforeHistories := n.Histories()

	for _, p := range payloads {
		clock.advance(time.Second)
		assert.NotPanics(t, func() {
			assert.Empty(t, n.Process(p.topic, []byte(p.payload)), "topic %s payload %q", p.topic, p.payload)
		})
	}

	assert.Equal(t, before, n.Snapshot())
	assert.Equal(t, beforeHistories, n.Histories())
}

func TestNormalizerHistoryCap(t *testing.T) {
	n, clock := newTestNormalizer(t, 1000)

	start := clock.t
	for i := 0; i < 1001; i++ {
		n.Process(topicTemp, []byte("20"))
		clock.advance(time.Millisecond)
	}

	hist := n.History(models.MetricTemperature)
	require.Len(t, hist, 1000)
	assert.Equal(t, start.Add(time.Millisecond).UnixMilli(), hist[0].Timestamp)
	for i := 1; i < len(hist); i++ {
		assert.Less(t, hist[i-1].Timestamp, hist[i].Timestamp)
	}
	assert.Equal(t, 1000, n.HistoryCap())
}

func TestNormalizerHistorySince(t *testing.T) {
	n, clock := newTestNormalizer(t, 100)

	for i := 0; i < 10; i++ {
		n.Process(topicTDS, []byte("100"))
		clock.advance(time.Minute)
	}

	window := n.HistorySince(models.MetricTDS, clock.t.Add(-3*time.Minute))
	assert.Len(t, window, 3)
	assert.Nil(t, n.HistorySince(models.Metric("salinity"), clock.t))
	assert.Nil(t, n.History(models.Metric("salinity")))
}

func TestTopicsAll(t *testing.T) {
	topics := NewTopics(topicCombined, topicTemp, topicPH, topicTDS, "")

	assert.Equal(t, []string{topicCombined, topicTemp, topicPH, topicTDS}, topics.All())
}

func TestNormalizerRestore(t *testing.T) {
	n, _ := newTestNormalizer(t, 10)
	saved := models.Snapshot{Temperature: 24, PH: 7, TDS: 90, Turbidity: 3, UpdatedAt: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)}

	require.True(t, n.Restore(saved))
	assert.Equal(t, saved, n.Snapshot())
	assert.Empty(t, n.History(models.MetricTemperature))

	n.Process(topicPH, []byte("6.5"))
	assert.False(t, n.Restore(saved), "live data must not be overwritten")
	assert.Equal(t, 6.5, n.Snapshot().PH)
	assert.Equal(t, 24.0, n.Snapshot().Temperature)
}
