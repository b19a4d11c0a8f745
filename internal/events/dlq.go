package events

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-cli/internal/resilience"
)

// DeadLetters is the stream of triggers that exhausted their deliveries or
// could not be decoded.
type DeadLetters struct {
	rdb    redis.Cmdable
	stream string
}

// NewDeadLetters returns a dead-letter stream handle.
func NewDeadLetters(rdb redis.Cmdable, stream string) *DeadLetters {
	return &DeadLetters{rdb: rdb, stream: stream}
}

// Push appends entry to the dead-letter stream.
func (d *DeadLetters) Push(ctx context.Context, entry resilience.DLQEntry) error {
	values, err := encode(entry)
	if err != nil {
		return err
	}
	err = d.rdb.XAdd(ctx, &redis.XAddArgs{Stream: d.stream, Values: values}).Err()
	return eris.Wrapf(err, "events: dead-letter %s", entry.ID)
}

// Depth returns the number of dead-lettered triggers.
func (d *DeadLetters) Depth(ctx context.Context) (int64, error) {
	n, err := d.rdb.XLen(ctx, d.stream).Result()
	if err != nil {
		return 0, eris.Wrap(err, "events: dead-letter depth")
	}
	return n, nil
}

// List returns up to count entries, oldest first.
func (d *DeadLetters) List(ctx context.Context, count int64) ([]resilience.DLQEntry, error) {
	msgs, err := d.rdb.XRangeN(ctx, d.stream, "-", "+", count).Result()
	if err != nil {
		return nil, eris.Wrap(err, "events: list dead letters")
	}
	out := make([]resilience.DLQEntry, 0, len(msgs))
	for _, m := range msgs {
		var e resilience.DLQEntry
		if err := decode(m, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
