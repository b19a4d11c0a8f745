package calculator

import (
	"github.com/sells-group/tier-cli/internal/model"
)

// HasNoMandate reports whether none of the current convictions gives a
// mandate for change. A current custodial sentence, or a current sentence
// with a non-restrictive requirement outside unpaid work, gives a mandate.
func HasNoMandate(convictions []model.Conviction) bool {
	for _, c := range convictions {
		if !c.Current() {
			continue
		}
		if c.Custodial() {
			return false
		}
		for _, r := range c.Requirements {
			if !r.Unpaid() && !r.Restrictive {
				return false
			}
		}
	}
	return true
}
