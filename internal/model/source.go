package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Source kinds stored on each calculation.
const (
	KindFullRecalculation     = "FULL_RECALCULATION"
	KindLimitedRecalculation  = "LIMITED_RECALCULATION"
	KindOnDemandRecalculation = "ON_DEMAND_RECALCULATION"
	KindDomainEvent           = "DOMAIN_EVENT"
	KindOther                 = "OTHER"
)

// RecalculationSource says why a recalculation was requested.
type RecalculationSource interface {
	Kind() string
	ChangeReason() string
	sealed()
}

// FullRecalculation is a scheduled sweep over every subject.
type FullRecalculation struct{}

// LimitedRecalculation is a sweep over a named subset of subjects.
type LimitedRecalculation struct{}

// OnDemandRecalculation is an operator or API request for one subject.
type OnDemandRecalculation struct{}

// DomainEventRecalculation is triggered by an upstream domain event.
type DomainEventRecalculation struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// OtherRecalculation covers any other trigger, e.g. an override upload.
type OtherRecalculation struct {
	Type string `json:"type"`
}

func (FullRecalculation) Kind() string         { return KindFullRecalculation }
func (FullRecalculation) ChangeReason() string { return KindFullRecalculation }
func (FullRecalculation) sealed()              {}

func (LimitedRecalculation) Kind() string         { return KindLimitedRecalculation }
func (LimitedRecalculation) ChangeReason() string { return KindLimitedRecalculation }
func (LimitedRecalculation) sealed()              {}

func (OnDemandRecalculation) Kind() string         { return KindOnDemandRecalculation }
func (OnDemandRecalculation) ChangeReason() string { return KindOnDemandRecalculation }
func (OnDemandRecalculation) sealed()              {}

func (DomainEventRecalculation) Kind() string { return KindDomainEvent }
func (e DomainEventRecalculation) ChangeReason() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Type
}
func (DomainEventRecalculation) sealed() {}

func (OtherRecalculation) Kind() string           { return KindOther }
func (o OtherRecalculation) ChangeReason() string { return o.Type }
func (OtherRecalculation) sealed()                {}

// SourceFromKind rebuilds a source from its stored or queued parts.
func SourceFromKind(kind, eventType, description string) (RecalculationSource, error) {
	switch strings.ToUpper(kind) {
	case KindFullRecalculation:
		return FullRecalculation{}, nil
	case KindLimitedRecalculation:
		return LimitedRecalculation{}, nil
	case KindOnDemandRecalculation:
		return OnDemandRecalculation{}, nil
	case KindDomainEvent:
		if eventType == "" {
			return nil, eris.New("model: domain event source requires a type")
		}
		return DomainEventRecalculation{Type: eventType, Description: description}, nil
	case KindOther:
		return OtherRecalculation{Type: eventType}, nil
	default:
		return nil, eris.Errorf("model: unknown recalculation source %q", kind)
	}
}
