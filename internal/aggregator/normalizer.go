package aggregator

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"aqua-backend/internal/history"
	"aqua-backend/internal/models"
)

// Topics maps broker topics onto metrics
type Topics struct {
	Combined  string
	PerMetric map[string]models.Metric
}

// NewTopics builds the topic map from the configured topic names
func NewTopics(combined, temperature, ph, tds, turbidity string) Topics {
	return Topics{
		Combined: combined,
		PerMetric: map[string]models.Metric{
			temperature: models.MetricTemperature,
			ph:          models.MetricPH,
			tds:         models.MetricTDS,
			turbidity:   models.MetricTurbidity,
		},
	}
}

// All returns every configured telemetry topic, combined first
func (t Topics) All() []string {
	var topics []string
	if t.Combined != "" {
		topics = append(topics, t.Combined)
	}
	for _, m := range models.AllMetrics {
		for topic, metric := range t.PerMetric {
			if metric == m && topic != "" {
				topics = append(topics, topic)
			}
		}
	}
	return topics
}

// Normalizer turns raw telemetry payloads into the latest snapshot and
// per-metric history. Process is expected to be called from one goroutine;
// readers may call the accessors concurrently.
type Normalizer struct {
	logger *zap.Logger
	topics Topics
	now    func() time.Time

	mu        sync.RWMutex
	snapshot  models.Snapshot
	histories map[models.Metric]*history.Buffer[models.HistoryPoint]
}

// Option customises a Normalizer
type Option func(*Normalizer)

// WithClock overrides the wall clock used to stamp readings
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// NewNormalizer creates a normalizer keeping historyLength points per metric
func NewNormalizer(topics Topics, historyLength int, logger *zap.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		logger:    logger.Named("normalizer"),
		topics:    topics,
		now:       time.Now,
		histories: make(map[models.Metric]*history.Buffer[models.HistoryPoint], len(models.AllMetrics)),
	}
	for _, m := range models.AllMetrics {
		n.histories[m] = history.New[models.HistoryPoint](historyLength)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Process parses one inbound message and applies every reading it yields.
// Malformed payloads are logged and dropped, leaving state untouched.
func (n *Normalizer) Process(topic string, payload []byte) []models.Reading {
	now := n.now()

	var readings []models.Reading
	if topic == n.topics.Combined {
		c, err := ParseCombined(payload)
		if err != nil {
			n.logger.Warn("discarding combined sensor payload",
				zap.String("topic", topic), zap.ByteString("payload", payload), zap.Error(err))
			return nil
		}

		readings = []models.Reading{
			{Metric: models.MetricTemperature, Value: c.Temperature},
			{Metric: models.MetricTDS, Value: c.TDS},
			{Metric: models.MetricTurbidity, Value: c.Turbidity},
		}
		if c.HasPH {
			readings = append(readings, models.Reading{Metric: models.MetricPH, Value: c.PH})
		}
	} else if metric, ok := n.topics.PerMetric[topic]; ok {
		v, err := ParseScalar(payload)
		if err != nil {
			n.logger.Warn("discarding sensor payload",
				zap.String("topic", topic), zap.ByteString("payload", payload), zap.Error(err))
			return nil
		}
		readings = []models.Reading{{Metric: metric, Value: v}}
	} else {
		n.logger.Debug("ignoring message on non-telemetry topic", zap.String("topic", topic))
		return nil
	}

	for i := range readings {
		readings[i].Timestamp = now
		readings[i].Topic = topic
	}
	n.apply(readings, now)

	n.logger.Debug("applied readings", zap.String("topic", topic), zap.Int("count", len(readings)))
	return readings
}

func (n *Normalizer) apply(readings []models.Reading, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, r := range readings {
		n.snapshot = n.snapshot.With(r.Metric, r.Value)
		n.histories[r.Metric].Append(r.Point())
	}
	n.snapshot.UpdatedAt = now
}

// Restore seeds the snapshot from a previous run. It only applies while no
// reading has been processed yet.
func (n *Normalizer) Restore(snapshot models.Snapshot) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.snapshot.UpdatedAt.IsZero() {
		return false
	}
	n.snapshot = snapshot
	return true
}

// Snapshot returns a copy of the latest values
func (n *Normalizer) Snapshot() models.Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshot
}

// History returns the stored points of one metric, oldest first
func (n *Normalizer) History(metric models.Metric) []models.HistoryPoint {
	buf, ok := n.histories[metric]
	if !ok {
		return nil
	}
	return buf.Items()
}

// HistorySince returns the points of one metric recorded at or after since
func (n *Normalizer) HistorySince(metric models.Metric, since time.Time) []models.HistoryPoint {
	buf, ok := n.histories[metric]
	if !ok {
		return nil
	}
	cutoff := since.UnixMilli()
	return buf.Filter(func(p models.HistoryPoint) bool {
		return p.Timestamp >= cutoff
	})
}

// Histories returns a copy of every metric history
func (n *Normalizer) Histories() map[models.Metric][]models.HistoryPoint {
	out := make(map[models.Metric][]models.HistoryPoint, len(n.histories))
	for m, buf := range n.histories {
		out[m] = buf.Items()
	}
	return out
}

// HistoryCap returns the per-metric history capacity
func (n *Normalizer) HistoryCap() int {
	return n.histories[models.MetricTemperature].Cap()
}
