package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/subscribers/internal/kafka"
	"github.com/jmehdipour/subscribers/internal/metrics"
	"github.com/jmehdipour/subscribers/internal/model"
	"go.uber.org/zap"
)

// Source is the Kafka side of the projector; *kafka.Consumer satisfies it.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Sink receives decoded signup events; repository.SignupsRepository satisfies it.
type Sink interface {
	InsertBatch(ctx context.Context, events []model.SignupEnvelope) error
}

// SignupProjector copies signup events from the outbox topic into the
// reporting store:
// - a fetcher goroutine pulls messages from Kafka,
// - the run loop buffers them and flushes by size or time,
// - offsets are committed only after the batch is written.
//
// Undecodable messages are committed with the batch they arrived in and
// otherwise dropped.
type SignupProjector struct {
	Source    Source
	Sink      Sink
	Log       *zap.Logger
	BatchSize int
	BatchWait time.Duration

	// FlushTimeout bounds the final flush on shutdown.
	FlushTimeout time.Duration
}

func NewSignupProjector(src Source, sink Sink, log *zap.Logger, batchSize int, batchWait time.Duration) *SignupProjector {
	return &SignupProjector{
		Source:       src,
		Sink:         sink,
		Log:          log,
		BatchSize:    batchSize,
		BatchWait:    batchWait,
		FlushTimeout: 5 * time.Second,
	}
}

func decodeEnvelope(value []byte) (model.SignupEnvelope, error) {
	// the outbox connector may publish the payload column as a JSON string
	if len(value) > 0 && value[0] == '"' {
		var inner string
		if err := json.Unmarshal(value, &inner); err != nil {
			return model.SignupEnvelope{}, err
		}
		value = []byte(inner)
	}

	var env model.SignupEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return model.SignupEnvelope{}, err
	}
	if env.EventID == "" || env.SubscriberID <= 0 {
		return model.SignupEnvelope{}, errors.New("envelope missing event_id or subscriber_id")
	}
	if src, ok := model.ParseSignupSource(string(env.Source)); ok {
		env.Source = src
	} else {
		env.Source = model.SourceForm
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}

// Run blocks until ctx is cancelled, then flushes what is buffered and
// waits for the fetcher to stop.
func (p *SignupProjector) Run(ctx context.Context) error {
	if p.Source == nil || p.Sink == nil {
		return errors.New("signup projector: source and sink are required")
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 500
	}
	if p.BatchWait <= 0 {
		p.BatchWait = time.Second
	}
	if p.FlushTimeout <= 0 {
		p.FlushTimeout = 5 * time.Second
	}

	msgCh := make(chan kafka.Message, p.BatchSize)
	fetchDone := make(chan struct{})
	go func() {
		defer close(fetchDone)
		p.fetch(ctx, msgCh)
	}()

	tick := time.NewTicker(p.BatchWait)
	defer tick.Stop()

	var (
		events  []model.SignupEnvelope
		pending []kafka.Message
	)

	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := p.Sink.InsertBatch(ctx, events); err != nil {
			// keep the buffer; the next tick retries
			p.Log.Error("signup batch insert failed", zap.Int("events", len(events)), zap.Error(err))
			return
		}
		if err := p.Source.Commit(ctx, pending...); err != nil {
			// rows are already written; redelivery is collapsed by event_id
			p.Log.Error("kafka commit failed", zap.Int("messages", len(pending)), zap.Error(err))
		}
		for _, e := range events {
			metrics.SignupsProjectedTotal.WithLabelValues(e.Source.String()).Inc()
		}
		p.Log.Debug("signups flushed", zap.Int("events", len(events)), zap.Int("messages", len(pending)))
		events = events[:0]
		pending = pending[:0]
	}

	for {
		// stop reading while a full batch is waiting to be written
		in := msgCh
		if len(pending) >= p.BatchSize {
			in = nil
		}

		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.FlushTimeout)
			flush(fctx)
			cancel()
			<-fetchDone
			return nil

		case m := <-in:
			pending = append(pending, m)
			env, err := decodeEnvelope(m.Value)
			if err != nil {
				p.Log.Warn("skipping bad signup envelope",
					zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
			} else {
				events = append(events, env)
			}
			if len(pending) >= p.BatchSize {
				flush(ctx)
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}

func (p *SignupProjector) fetch(ctx context.Context, out chan<- kafka.Message) {
	for {
		m, err := p.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}
