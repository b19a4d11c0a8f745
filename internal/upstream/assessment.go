package upstream

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sells-group/tier-cli/internal/model"
)

// ServiceAssessment is the risk and needs assessment service name.
const ServiceAssessment = "assessment"

// AssessmentSummary is the latest assessment held for a subject.
type AssessmentSummary struct {
	AssessmentID  string            `json:"assessmentId"`
	CompletedDate *time.Time        `json:"completedDate"`
	Status        string            `json:"status"`
	Needs         map[string]string `json:"needs"`
	Answers       map[string]string `json:"answers"`
}

// AssessmentClient reads assessment summaries.
type AssessmentClient struct {
	client *Client
}

// NewAssessmentClient wraps an HTTP client for the assessment API.
func NewAssessmentClient(c *Client) *AssessmentClient {
	return &AssessmentClient{client: c}
}

// Latest returns the latest assessment for crn, or nil when the subject has
// never been assessed.
func (a *AssessmentClient) Latest(ctx context.Context, crn string) (*AssessmentSummary, error) {
	var out AssessmentSummary
	err := a.client.GetJSON(ctx, "/assessments/crn/"+url.PathEscape(crn)+"/summary", &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Valid reports whether the assessment is complete and was completed within
// validity of now.
func (s *AssessmentSummary) Valid(now time.Time, validity time.Duration) bool {
	if s == nil || s.CompletedDate == nil {
		return false
	}
	if !strings.EqualFold(s.Status, "COMPLETE") {
		return false
	}
	return !s.CompletedDate.Before(now.Add(-validity))
}

// NeedSeverities maps the assessment's need answers. Unknown domains and
// severities are dropped.
func (s *AssessmentSummary) NeedSeverities() map[model.Need]model.NeedSeverity {
	if s == nil {
		return nil
	}
	out := make(map[model.Need]model.NeedSeverity, len(s.Needs))
	for k, v := range s.Needs {
		need, ok := model.ParseNeed(strings.ToUpper(k))
		if !ok {
			continue
		}
		sev, ok := model.ParseNeedSeverity(strings.ToUpper(v))
		if !ok {
			continue
		}
		out[need] = sev
	}
	return out
}

// AdditionalFactors maps the question answers scored for women.
func (s *AssessmentSummary) AdditionalFactors() map[model.AdditionalFactor]string {
	if s == nil {
		return nil
	}
	out := map[model.AdditionalFactor]string{}
	for ref, answer := range s.Answers {
		if f, ok := model.AdditionalFactorFromQuestion(ref); ok {
			out[f] = answer
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
