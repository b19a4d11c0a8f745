package resilience

import (
	"time"
)

// Error classes recorded on dead-lettered work.
const (
	ClassTransient = "transient"
	ClassPermanent = "permanent"
)

// DLQEntry is a recalculation trigger that could not be processed.
type DLQEntry struct {
	ID            string    `json:"id"`
	CRN           string    `json:"crn"`
	Reason        string    `json:"reason"`
	Error         string    `json:"error"`
	ErrorType     string    `json:"error_type"`
	DeliveryCount int64     `json:"delivery_count"`
	FailedAt      time.Time `json:"failed_at"`
}

// Classify labels err as transient or permanent.
func Classify(err error) string {
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}
