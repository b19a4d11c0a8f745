package model

import "time"

// Requirement categories that never establish a mandate for change.
const (
	RequirementUnpaidWork    = "W"
	RequirementOrderExtended = "W0"
)

// Conviction is a sentence recorded against a subject.
type Conviction struct {
	TerminationDate *time.Time    `json:"termination_date,omitempty"`
	SentenceCode    string        `json:"sentence_code"`
	Requirements    []Requirement `json:"requirements,omitempty"`
}

// Current reports whether the conviction has not been terminated.
func (c Conviction) Current() bool {
	return c.TerminationDate == nil
}

// Custodial reports whether the sentence type is a custodial one.
func (c Conviction) Custodial() bool {
	switch c.SentenceCode {
	case "NC", "SC":
		return true
	default:
		return false
	}
}

// Requirement is a condition attached to a community sentence.
type Requirement struct {
	MainCategory string `json:"main_category"`
	Restrictive  bool   `json:"restrictive"`
}

// Unpaid reports whether the requirement is unpaid work or an order extension.
func (r Requirement) Unpaid() bool {
	switch r.MainCategory {
	case RequirementUnpaidWork, RequirementOrderExtended:
		return true
	default:
		return false
	}
}
