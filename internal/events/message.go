// Package events carries recalculation triggers and tier-change
// notifications over Redis streams.
package events

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-cli/internal/model"
)

// payloadField is the stream entry field holding the encoded message.
const payloadField = "payload"

// Trigger asks for one subject to be recalculated.
type Trigger struct {
	CRN         string    `json:"crn"`
	Kind        string    `json:"kind"`
	EventType   string    `json:"event_type,omitempty"`
	Description string    `json:"description,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewTrigger builds a trigger for crn from a recalculation source.
func NewTrigger(crn string, src model.RecalculationSource, at time.Time) Trigger {
	t := Trigger{CRN: crn, Kind: src.Kind(), RequestedAt: at.UTC()}
	switch s := src.(type) {
	case model.DomainEventRecalculation:
		t.EventType = s.Type
		t.Description = s.Description
	case model.OtherRecalculation:
		t.EventType = s.Type
	}
	return t
}

// Source converts the trigger back into a recalculation source.
func (t Trigger) Source() (model.RecalculationSource, error) {
	return model.SourceFromKind(t.Kind, t.EventType, t.Description)
}

// TierChanged is published after a calculation moves a subject's tier.
type TierChanged struct {
	CRN           string    `json:"crn"`
	CalculationID uuid.UUID `json:"calculation_id"`
	Tier          string    `json:"tier"`
	ProtectLevel  string    `json:"protect_level"`
	ChangeLevel   int       `json:"change_level"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "events: encode")
	}
	return map[string]any{payloadField: string(b)}, nil
}

func decode(msg redis.XMessage, v any) error {
	raw, ok := msg.Values[payloadField]
	if !ok {
		return eris.Errorf("events: message %s has no %s field", msg.ID, payloadField)
	}
	s, ok := raw.(string)
	if !ok {
		return eris.Errorf("events: message %s payload is %T", msg.ID, raw)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return eris.Wrapf(err, "events: decode message %s", msg.ID)
	}
	return nil
}
