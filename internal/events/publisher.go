package events

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Publisher appends recalculation triggers to a stream.
type Publisher struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

// NewPublisher returns a publisher for stream. A positive maxLen trims the
// stream approximately on each append.
func NewPublisher(rdb redis.Cmdable, stream string, maxLen int64) *Publisher {
	return &Publisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Publish enqueues one trigger and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, t Trigger) (string, error) {
	values, err := encode(t)
	if err != nil {
		return "", err
	}
	id, err := p.rdb.XAdd(ctx, p.args(values)).Result()
	if err != nil {
		return "", eris.Wrapf(err, "events: publish trigger for %s", t.CRN)
	}
	return id, nil
}

// PublishMany enqueues triggers in one pipeline and returns how many were
// appended.
func (p *Publisher) PublishMany(ctx context.Context, triggers []Trigger) (int, error) {
	if len(triggers) == 0 {
		return 0, nil
	}
	pipe := p.rdb.Pipeline()
	for _, t := range triggers {
		values, err := encode(t)
		if err != nil {
			return 0, err
		}
		pipe.XAdd(ctx, p.args(values))
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "events: publish %d triggers", len(triggers))
	}
	return len(cmds), nil
}

func (p *Publisher) args(values map[string]any) *redis.XAddArgs {
	a := &redis.XAddArgs{Stream: p.stream, Values: values}
	if p.maxLen > 0 {
		a.MaxLen = p.maxLen
		a.Approx = true
	}
	return a
}
