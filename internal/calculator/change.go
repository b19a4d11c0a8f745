package calculator

import (
	"github.com/sells-group/tier-cli/internal/model"
)

// Change breakdown rule names.
const (
	RuleNoMandateForChange = "NO_MANDATE_FOR_CHANGE"
	RuleNoValidAssessment  = "NO_VALID_ASSESSMENT"
	RuleOGRS               = "OGRS"
	RuleNeeds              = "NEEDS"
)

// Change scores need signals into a change level.
//
// A subject without a mandate is always level zero. A subject without a
// valid assessment defaults to level two.
func Change(needs model.NeedSignals) model.ChangeResult {
	if needs.HasNoMandate {
		return model.ChangeResult{
			Level:     model.ChangeZero,
			Breakdown: model.Breakdown{RuleNoMandateForChange: 0},
		}
	}
	if !needs.HasValidAssessment {
		return model.ChangeResult{
			Level:     model.ChangeTwo,
			Breakdown: model.Breakdown{RuleNoValidAssessment: 0},
		}
	}

	breakdown := model.Breakdown{
		RuleOGRS:  ogrsPoints(needs.OGRS),
		RuleNeeds: needsPoints(needs.Needs),
	}
	score := breakdown.Total()
	return model.ChangeResult{
		Level:     model.ChangeLevelForScore(score),
		Score:     score,
		Breakdown: breakdown,
	}
}

func ogrsPoints(ogrs *int) int {
	if ogrs == nil || *ogrs <= 0 {
		return 0
	}
	return *ogrs / 10
}

func needsPoints(needs map[model.Need]model.NeedSeverity) int {
	total := 0
	for need, severity := range needs {
		total += need.Weighting() * severity.Score()
	}
	return total
}
