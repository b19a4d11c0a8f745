package upstream

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/model"
)

// ServiceDelius is the case-management service name. It is the
// authoritative identity source: a 404 from it means the subject is gone.
const ServiceDelius = "delius"

const dateLayout = "2006-01-02"

// TierDetails is the case-management view of a subject.
type TierDetails struct {
	Gender                      string              `json:"gender"`
	CurrentTier                 string              `json:"currentTier"`
	RSRScore                    decimal.NullDecimal `json:"rsrscore"`
	OGRSScore                   *int                `json:"ogrsscore"`
	Registrations               []Registration      `json:"registrations"`
	Convictions                 []DeliusConviction  `json:"convictions"`
	PreviousEnforcementActivity bool                `json:"previousEnforcementActivity"`
}

// Registration is a register entry such as a RoSH level or MAPPA category.
type Registration struct {
	Code  string `json:"code"`
	Level string `json:"level,omitempty"`
	Date  string `json:"date,omitempty"`
}

// DeliusConviction is a sentence as reported by case management.
type DeliusConviction struct {
	TerminationDate  *string             `json:"terminationDate"`
	SentenceTypeCode string              `json:"sentenceTypeCode"`
	Requirements     []DeliusRequirement `json:"requirements"`
}

// DeliusRequirement is a requirement attached to a sentence.
type DeliusRequirement struct {
	MainCategoryTypeCode string `json:"mainCategoryTypeCode"`
	Restrictive          bool   `json:"restrictive"`
}

// DeliusClient reads tier details from case management.
type DeliusClient struct {
	client *Client
}

// NewDeliusClient wraps an HTTP client for the case-management API.
func NewDeliusClient(c *Client) *DeliusClient {
	return &DeliusClient{client: c}
}

// TierDetails fetches the tier inputs held by case management for crn.
func (d *DeliusClient) TierDetails(ctx context.Context, crn string) (*TierDetails, error) {
	var out TierDetails
	if err := d.client.GetJSON(ctx, "/tier-details/"+url.PathEscape(crn), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Female reports whether the subject is recorded as female.
func (t *TierDetails) Female() bool {
	g := strings.ToUpper(strings.TrimSpace(t.Gender))
	return g == "FEMALE" || g == "F"
}

// Tier parses the tier case management currently holds. It returns nil when
// the field is empty or not a valid tier code.
func (t *TierDetails) Tier() *model.Tier {
	if strings.TrimSpace(t.CurrentTier) == "" {
		return nil
	}
	tier, err := model.ParseTier(t.CurrentTier)
	if err != nil {
		zap.L().Debug("upstream: ignoring unparseable current tier", zap.String("tier", t.CurrentTier))
		return nil
	}
	return &tier
}

// Risk maps registrations and scores onto risk signals. Women's additional
// factors come from the assessment and are filled in by the caller.
func (t *TierDetails) Risk() model.RiskSignals {
	risk := model.RiskSignals{
		RSR:                         t.RSRScore,
		Female:                      t.Female(),
		PreviousEnforcementActivity: t.PreviousEnforcementActivity,
	}

	// Latest registration wins for RoSH and MAPPA.
	regs := make([]Registration, len(t.Registrations))
	copy(regs, t.Registrations)
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].Date > regs[j].Date })

	for _, r := range regs {
		if rosh, ok := model.RoshFromRegisterCode(r.Code); ok {
			if risk.Rosh == model.RoshAbsent {
				risk.Rosh = rosh
			}
			continue
		}
		if r.Code == model.MappaRegisterCode {
			if m, ok := model.MappaFromLevelCode(r.Level); ok && risk.Mappa == model.MappaAbsent {
				risk.Mappa = m
			}
			continue
		}
		if f, ok := model.ComplexityFactorFromRegisterCode(r.Code); ok {
			risk.ComplexityFactors = append(risk.ComplexityFactors, f)
		}
	}
	return risk
}

// ConvictionList maps case-management sentences onto convictions. An
// unparseable termination date is treated as terminated.
func (t *TierDetails) ConvictionList() []model.Conviction {
	out := make([]model.Conviction, 0, len(t.Convictions))
	for _, c := range t.Convictions {
		conv := model.Conviction{SentenceCode: c.SentenceTypeCode}
		if c.TerminationDate != nil && *c.TerminationDate != "" {
			ts, err := time.Parse(dateLayout, *c.TerminationDate)
			if err != nil {
				ts = time.Time{}
			}
			conv.TerminationDate = &ts
		}
		for _, r := range c.Requirements {
			conv.Requirements = append(conv.Requirements, model.Requirement{
				MainCategory: r.MainCategoryTypeCode,
				Restrictive:  r.Restrictive,
			})
		}
		out = append(out, conv)
	}
	return out
}
