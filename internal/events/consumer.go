package events

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tier-cli/internal/resilience"
	"github.com/sells-group/tier-cli/internal/upstream"
)

// Handler processes one trigger. A nil return acknowledges the message.
type Handler func(ctx context.Context, t Trigger) error

// ConsumerConfig controls a stream consumer.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string

	BatchSize   int64
	Concurrency int
	// Block is how long a read waits for new entries. Negative means
	// return immediately.
	Block time.Duration
	// MaxDeliveries is the number of attempts before a trigger is
	// dead-lettered.
	MaxDeliveries int64
	// ReclaimIdle is how long a pending entry sits before another poll
	// claims it for redelivery. Negative means reclaim on the next poll.
	ReclaimIdle time.Duration

	// Terminal reports failures that redelivery cannot fix. Terminal
	// failures are acknowledged. Defaults to upstream.IsNotFound.
	Terminal func(error) bool
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Block == 0 {
		c.Block = 2 * time.Second
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	switch {
	case c.ReclaimIdle == 0:
		c.ReclaimIdle = time.Minute
	case c.ReclaimIdle < 0:
		c.ReclaimIdle = 0
	}
	if c.Terminal == nil {
		c.Terminal = upstream.IsNotFound
	}
	return c
}

// Stats counts what a consumer has done since it started.
type Stats struct {
	Processed    int64
	Failed       int64
	Terminal     int64
	DeadLettered int64
}

// Consumer reads triggers from a stream with a consumer group and hands
// them to a Handler. Failed triggers stay pending and are reclaimed after
// ReclaimIdle; triggers past MaxDeliveries go to the dead-letter stream.
type Consumer struct {
	rdb    redis.Cmdable
	cfg    ConsumerConfig
	handle Handler
	dlq    *DeadLetters

	processed, failed, terminal, deadLettered atomic.Int64
}

// NewConsumer returns a consumer. dlq may be nil, in which case exhausted
// triggers are logged and acknowledged.
func NewConsumer(rdb redis.Cmdable, cfg ConsumerConfig, dlq *DeadLetters, handle Handler) *Consumer {
	return &Consumer{rdb: rdb, cfg: cfg.withDefaults(), handle: handle, dlq: dlq}
}

// EnsureGroup creates the consumer group and stream if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return eris.Wrapf(err, "events: create group %s on %s", c.cfg.Group, c.cfg.Stream)
	}
	return nil
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Processed:    c.processed.Load(),
		Failed:       c.failed.Load(),
		Terminal:     c.terminal.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	log := zap.L().With(zap.String("component", "events.consumer"), zap.String("stream", c.cfg.Stream))
	log.Info("starting consumer",
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer),
		zap.Int("concurrency", c.cfg.Concurrency),
	)

	for {
		if ctx.Err() != nil {
			log.Info("consumer stopped", zap.Any("stats", c.Stats()))
			return nil
		}
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reclaims stale pending triggers, reads new ones, and processes both.
// It returns the number of messages handled.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	reclaimed, err := c.reclaim(ctx)
	if err != nil {
		return 0, err
	}

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, eris.Wrapf(err, "events: read %s", c.cfg.Stream)
	}

	msgs := reclaimed
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, m := range msgs {
		g.Go(func() error {
			c.process(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
	return len(msgs), nil
}

// reclaim claims pending entries idle for at least ReclaimIdle. Entries
// already delivered MaxDeliveries times are dead-lettered instead.
func (c *Consumer) reclaim(ctx context.Context) ([]redis.XMessage, error) {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "events: pending on %s", c.cfg.Stream)
	}

	var claim, exhausted []string
	counts := make(map[string]int64, len(pending))
	for _, p := range pending {
		if p.Idle < c.cfg.ReclaimIdle {
			continue
		}
		counts[p.ID] = p.RetryCount
		if p.RetryCount >= c.cfg.MaxDeliveries {
			exhausted = append(exhausted, p.ID)
		} else {
			claim = append(claim, p.ID)
		}
	}

	if len(exhausted) > 0 {
		msgs, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ReclaimIdle,
			Messages: exhausted,
		}).Result()
		if err != nil {
			return nil, eris.Wrap(err, "events: claim exhausted triggers")
		}
		for _, m := range msgs {
			c.deadLetter(ctx, m, counts[m.ID], eris.Errorf("events: delivery limit %d reached", c.cfg.MaxDeliveries))
		}
	}

	if len(claim) == 0 {
		return nil, nil
	}
	msgs, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ReclaimIdle,
		Messages: claim,
	}).Result()
	if err != nil {
		return nil, eris.Wrap(err, "events: claim pending triggers")
	}
	return msgs, nil
}

func (c *Consumer) process(ctx context.Context, m redis.XMessage) {
	log := zap.L().With(zap.String("message_id", m.ID))

	var t Trigger
	if err := decode(m, &t); err != nil {
		log.Error("undecodable trigger", zap.Error(err))
		c.deadLetter(ctx, m, 1, err)
		return
	}
	log = log.With(zap.String("crn", t.CRN), zap.String("kind", t.Kind))

	err := c.handle(ctx, t)
	switch {
	case err == nil:
		c.processed.Add(1)
		c.ack(ctx, m.ID)
	case c.cfg.Terminal(err):
		c.terminal.Add(1)
		log.Warn("trigger failed terminally, acknowledging", zap.Error(err))
		c.ack(ctx, m.ID)
	default:
		c.failed.Add(1)
		log.Error("trigger failed, leaving for redelivery",
			zap.String("error_type", resilience.Classify(err)),
			zap.Error(err),
		)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, m redis.XMessage, deliveries int64, cause error) {
	var t Trigger
	_ = decode(m, &t)

	entry := resilience.DLQEntry{
		ID:            m.ID,
		CRN:           t.CRN,
		Reason:        t.Kind,
		Error:         cause.Error(),
		ErrorType:     resilience.Classify(cause),
		DeliveryCount: deliveries,
		FailedAt:      time.Now().UTC(),
	}
	if c.dlq != nil {
		if err := c.dlq.Push(ctx, entry); err != nil {
			zap.L().Error("dead-letter failed, leaving pending", zap.String("message_id", m.ID), zap.Error(err))
			return
		}
	}
	c.deadLettered.Add(1)
	zap.L().Warn("trigger dead-lettered",
		zap.String("message_id", m.ID),
		zap.String("crn", t.CRN),
		zap.Int64("deliveries", deliveries),
	)
	c.ack(ctx, m.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		zap.L().Error("ack failed", zap.String("message_id", id), zap.Error(err))
	}
}
