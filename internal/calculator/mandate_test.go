package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/tier-cli/internal/model"
)

func TestHasNoMandate(t *testing.T) {
	t.Parallel()

	terminated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		convictions []model.Conviction
		want        bool
	}{
		{name: "no convictions", want: true},
		{
			name:        "current custodial",
			convictions: []model.Conviction{{SentenceCode: "NC"}},
			want:        false,
		},
		{
			name:        "terminated custodial",
			convictions: []model.Conviction{{SentenceCode: "SC", TerminationDate: &terminated}},
			want:        true,
		},
		{
			name: "only restrictive requirement",
			convictions: []model.Conviction{{
				SentenceCode: "SP",
				Requirements: []model.Requirement{{MainCategory: "F", Restrictive: true}},
			}},
			want: true,
		},
		{
			name: "restrictive plus non-restrictive requirement",
			convictions: []model.Conviction{{
				SentenceCode: "SP",
				Requirements: []model.Requirement{
					{MainCategory: "F", Restrictive: true},
					{MainCategory: "X", Restrictive: false},
				},
			}},
			want: false,
		},
		{
			name: "unpaid work only",
			convictions: []model.Conviction{{
				SentenceCode: "SP",
				Requirements: []model.Requirement{
					{MainCategory: model.RequirementUnpaidWork},
					{MainCategory: model.RequirementOrderExtended},
				},
			}},
			want: true,
		},
		{
			name: "non-custodial without requirements",
			convictions: []model.Conviction{{
				SentenceCode: "SP",
			}},
			want: true,
		},
		{
			name: "terminated with qualifying requirement",
			convictions: []model.Conviction{{
				SentenceCode:    "SP",
				TerminationDate: &terminated,
				Requirements:    []model.Requirement{{MainCategory: "X"}},
			}},
			want: true,
		},
		{
			name: "one of several convictions qualifies",
			convictions: []model.Conviction{
				{SentenceCode: "SP", Requirements: []model.Requirement{{MainCategory: "W"}}},
				{SentenceCode: "SC"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HasNoMandate(tt.convictions))
		})
	}
}
