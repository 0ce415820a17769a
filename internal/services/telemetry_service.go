package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aqua-backend/internal/aggregator"
	"aqua-backend/internal/models"
)

const (
	sinkTimeout   = 5 * time.Second
	sinkQueueSize = 64
)

// ReadingSink receives every accepted batch of readings together with the
// snapshot they produced. Sinks must not modify the slice.
type ReadingSink interface {
	Name() string
	HandleReadings(ctx context.Context, readings []models.Reading, snapshot models.Snapshot) error
}

type sinkBatch struct {
	topic    string
	readings []models.Reading
	snapshot models.Snapshot
}

// sinkWorker delivers batches to one sink in order on its own goroutine
type sinkWorker struct {
	sink  ReadingSink
	queue chan sinkBatch
}

// TelemetryService is the only consumer of the adapter inbox. It feeds the
// normalizer and fans accepted readings out to the sinks. Each sink has its
// own bounded queue, so a stalled sink drops its own batches instead of
// backing up the inbox.
type TelemetryService struct {
	normalizer *aggregator.Normalizer
	inbox      <-chan models.RawMessage
	sinks      []ReadingSink
	queueSize  int
	logger     *zap.Logger
}

// NewTelemetryService creates the consumer for inbox
func NewTelemetryService(
	normalizer *aggregator.Normalizer,
	inbox <-chan models.RawMessage,
	logger *zap.Logger,
	sinks ...ReadingSink,
) *TelemetryService {
	return &TelemetryService{
		normalizer: normalizer,
		inbox:      inbox,
		sinks:      sinks,
		queueSize:  sinkQueueSize,
		logger:     logger.Named("telemetry"),
	}
}

// AddSink registers another sink. Call it before Start.
func (s *TelemetryService) AddSink(sink ReadingSink) {
	s.sinks = append(s.sinks, sink)
}

// Start drains the inbox until ctx is cancelled or the inbox is closed. It
// returns once every sink worker has stopped.
func (s *TelemetryService) Start(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	// cancel runs before the wait above and stops the workers
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := make([]string, 0, len(s.sinks))
	workers := make([]*sinkWorker, 0, len(s.sinks))
	for _, sink := range s.sinks {
		names = append(names, sink.Name())
		w := &sinkWorker{sink: sink, queue: make(chan sinkBatch, s.queueSize)}
		workers = append(workers, w)

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runSink(ctx, w)
		}()
	}

	s.logger.Info("starting", zap.Strings("sinks", names))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return

		case msg, ok := <-s.inbox:
			if !ok {
				s.logger.Info("inbox closed, shutting down")
				return
			}
			s.process(msg, workers)
		}
	}
}

func (s *TelemetryService) process(msg models.RawMessage, workers []*sinkWorker) {
	readings := s.normalizer.Process(msg.Topic, []byte(msg.Payload))
	if len(readings) == 0 {
		return
	}
	batch := sinkBatch{topic: msg.Topic, readings: readings, snapshot: s.normalizer.Snapshot()}

	for _, w := range workers {
		select {
		case w.queue <- batch:
		default:
			s.logger.Warn("sink queue full, dropping batch",
				zap.String("sink", w.sink.Name()), zap.String("topic", msg.Topic), zap.Int("readings", len(readings)))
		}
	}
}

func (s *TelemetryService) runSink(ctx context.Context, w *sinkWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-w.queue:
			sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
			err := w.sink.HandleReadings(sinkCtx, batch.readings, batch.snapshot)
			cancel()
			if err != nil {
				s.logger.Error("sink failed",
					zap.String("sink", w.sink.Name()), zap.String("topic", batch.topic), zap.Error(err))
			}
		}
	}
}
