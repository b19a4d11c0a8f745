package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-cli/internal/model"
)

// Notifier publishes TierChanged messages.
type Notifier struct {
	rdb    redis.Cmdable
	stream string
	now    func() time.Time
}

// NewNotifier returns a notifier writing to stream.
func NewNotifier(rdb redis.Cmdable, stream string, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{rdb: rdb, stream: stream, now: now}
}

func (n *Notifier) Publish(ctx context.Context, crn string, calculationID uuid.UUID, tier model.Tier) error {
	values, err := encode(TierChanged{
		CRN:           crn,
		CalculationID: calculationID,
		Tier:          tier.String(),
		ProtectLevel:  string(tier.Protect),
		ChangeLevel:   int(tier.Change),
		OccurredAt:    n.now().UTC(),
	})
	if err != nil {
		return err
	}
	err = n.rdb.XAdd(ctx, &redis.XAddArgs{Stream: n.stream, Values: values}).Err()
	return eris.Wrapf(err, "events: notify tier change for %s", crn)
}

// RecentChanges returns up to count notifications, newest first.
func RecentChanges(ctx context.Context, rdb redis.Cmdable, stream string, count int64) ([]TierChanged, error) {
	msgs, err := rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "events: read %s", stream)
	}
	out := make([]TierChanged, 0, len(msgs))
	for _, m := range msgs {
		var tc TierChanged
		if err := decode(m, &tc); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, nil
}
