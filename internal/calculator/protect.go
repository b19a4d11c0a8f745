// Package calculator holds the tier scoring rules. Every function here is
// pure and total: any combination of present or absent signals yields a
// result.
package calculator

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/tier-cli/internal/model"
)

// Protect breakdown rule names.
const (
	RuleRSRUsedOverRosh           = "RSR_USED_OVER_ROSH"
	RuleRoshUsedOverRSR           = "ROSH_USED_OVER_RSR"
	RuleRSRRoshEqual              = "RSR_ROSH_EQUAL"
	RuleMappa                     = "MAPPA"
	RuleComplexity                = "COMPLEXITY"
	RuleAdditionalFactorsForWomen = "ADDITIONAL_FACTORS_FOR_WOMEN"
)

var (
	rsrHigh   = decimal.NewFromInt(7)
	rsrMedium = decimal.NewFromInt(3)
)

// Protect scores risk signals into a protect level.
func Protect(risk model.RiskSignals) model.ProtectResult {
	breakdown := model.Breakdown{}

	rule, points := riskPoints(risk.RSR, risk.Rosh)
	breakdown[rule] = points

	if p := mappaPoints(risk.Mappa); p > 0 {
		breakdown[RuleMappa] = p
	}
	if p := complexityPoints(risk.ComplexityFactors); p > 0 {
		breakdown[RuleComplexity] = p
	}
	if risk.Female {
		if p := womenPoints(risk.AdditionalFactorsForWomen, risk.PreviousEnforcementActivity); p > 0 {
			breakdown[RuleAdditionalFactorsForWomen] = p
		}
	}

	score := breakdown.Total()
	return model.ProtectResult{
		Level:     model.ProtectLevelForScore(score),
		Score:     score,
		Breakdown: breakdown,
	}
}

// riskPoints takes the higher of the RSR and RoSH points. The rule name
// records which measure was used.
func riskPoints(rsr decimal.NullDecimal, rosh model.Rosh) (string, int) {
	r := rsrPoints(rsr)
	h := roshPoints(rosh)
	switch {
	case r > h:
		return RuleRSRUsedOverRosh, r
	case h > r:
		return RuleRoshUsedOverRSR, h
	default:
		return RuleRSRRoshEqual, r
	}
}

func rsrPoints(rsr decimal.NullDecimal) int {
	if !rsr.Valid {
		return 0
	}
	switch {
	case rsr.Decimal.GreaterThanOrEqual(rsrHigh):
		return 20
	case rsr.Decimal.GreaterThanOrEqual(rsrMedium):
		return 10
	default:
		return 0
	}
}

func roshPoints(rosh model.Rosh) int {
	switch rosh {
	case model.RoshVeryHigh:
		return 30
	case model.RoshHigh:
		return 20
	case model.RoshMedium:
		return 10
	default:
		return 0
	}
}

func mappaPoints(m model.Mappa) int {
	switch m {
	case model.MappaM2, model.MappaM3:
		return 30
	case model.MappaM1:
		return 5
	default:
		return 0
	}
}

func complexityPoints(factors []model.ComplexityFactor) int {
	seen := make(map[model.ComplexityFactor]struct{}, len(factors))
	for _, f := range factors {
		seen[f] = struct{}{}
	}
	return len(seen) * 2
}

func womenPoints(answers map[model.AdditionalFactor]string, breachOrRecall bool) int {
	subtotal := 0
	if isYes(answers[model.FactorParentingResponsibilities]) {
		subtotal++
	}
	// Impulsivity and temper control share a single point.
	if positive(answers[model.FactorImpulsivity]) || positive(answers[model.FactorTemperControl]) {
		subtotal++
	}

	points := subtotal * 2
	if breachOrRecall {
		points += 2
	}
	return points
}

func isYes(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "YES")
}

func positive(answer string) bool {
	a := strings.TrimSpace(answer)
	if isYes(a) {
		return true
	}
	n, err := strconv.Atoi(a)
	return err == nil && n > 0
}
