package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Breakdown records the points each scoring rule contributed.
type Breakdown map[string]int

// Total sums every contribution.
func (b Breakdown) Total() int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

// Keys returns the rule names in sorted order.
func (b Breakdown) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProtectResult is the output of the protect calculation.
type ProtectResult struct {
	Level     ProtectLevel `json:"level"`
	Score     int          `json:"score"`
	Breakdown Breakdown    `json:"breakdown"`
}

// ChangeResult is the output of the change calculation.
type ChangeResult struct {
	Level     ChangeLevel `json:"level"`
	Score     int         `json:"score"`
	Breakdown Breakdown   `json:"breakdown"`
}

// TierCalculation is one immutable entry in a subject's tier history.
type TierCalculation struct {
	ID             uuid.UUID     `json:"calculation_id"`
	CRN            string        `json:"crn"`
	CreatedAt      time.Time     `json:"created_at"`
	Protect        ProtectResult `json:"protect"`
	Change         ChangeResult  `json:"change"`
	ChangeReason   string        `json:"change_reason"`
	Trigger        string        `json:"trigger"`
	IdempotencyKey string        `json:"-"`
}

// Tier returns the combined tier for the calculation.
func (c *TierCalculation) Tier() Tier {
	return Tier{Protect: c.Protect.Level, Change: c.Change.Level}
}

// SameLevels reports whether both levels match other's.
func (c *TierCalculation) SameLevels(other *TierCalculation) bool {
	if other == nil {
		return false
	}
	return c.Protect.Level == other.Protect.Level && c.Change.Level == other.Change.Level
}

// Summary projects the calculation onto its latest-tier summary row.
func (c *TierCalculation) Summary() TierSummary {
	return TierSummary{
		CRN:           c.CRN,
		CalculationID: c.ID,
		ProtectLevel:  c.Protect.Level,
		ChangeLevel:   c.Change.Level,
		CreatedAt:     c.CreatedAt,
	}
}

// TierSummary is the read-optimised latest tier for a subject.
type TierSummary struct {
	CRN           string       `json:"crn"`
	CalculationID uuid.UUID    `json:"calculation_id"`
	ProtectLevel  ProtectLevel `json:"protect_level"`
	ChangeLevel   ChangeLevel  `json:"change_level"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Tier returns the combined tier for the summary.
func (s TierSummary) Tier() Tier {
	return Tier{Protect: s.ProtectLevel, Change: s.ChangeLevel}
}

// IdempotencyKey derives a stable key for a calculation. anchor is the
// previous calculation id for engine results, or the upload batch id for
// overrides; two writers racing from the same anchor with the same result
// produce the same key.
func IdempotencyKey(crn, anchor string, p ProtectResult, c ChangeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d|%d|%d", crn, anchor, p.Level, p.Score, c.Level, c.Score)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
