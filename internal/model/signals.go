package model

import (
	"github.com/shopspring/decimal"
)

// Rosh is the categorical Risk of Serious Harm level. The empty value means
// no RoSH registration was found.
type Rosh string

const (
	RoshAbsent   Rosh = ""
	RoshNone     Rosh = "NONE"
	RoshMedium   Rosh = "MEDIUM"
	RoshHigh     Rosh = "HIGH"
	RoshVeryHigh Rosh = "VERY_HIGH"
)

// RoshFromRegisterCode maps a case-management register code to a RoSH level.
func RoshFromRegisterCode(code string) (Rosh, bool) {
	switch code {
	case "RLRH":
		return RoshNone, true
	case "RMRH":
		return RoshMedium, true
	case "RHRH":
		return RoshHigh, true
	case "RVHR":
		return RoshVeryHigh, true
	default:
		return RoshAbsent, false
	}
}

// Mappa is the multi-agency public protection level. Empty means absent.
type Mappa string

const (
	MappaAbsent Mappa = ""
	MappaNone   Mappa = "NONE"
	MappaM1     Mappa = "M1"
	MappaM2     Mappa = "M2"
	MappaM3     Mappa = "M3"
)

// MappaRegisterCode is the register type code carrying a MAPPA level.
const MappaRegisterCode = "MAPP"

// MappaFromLevelCode maps a register level code ("M1", "M2", "M3") to a level.
func MappaFromLevelCode(code string) (Mappa, bool) {
	switch code {
	case "M1":
		return MappaM1, true
	case "M2":
		return MappaM2, true
	case "M3":
		return MappaM3, true
	case "M0", "NONE":
		return MappaNone, true
	default:
		return MappaAbsent, false
	}
}

// ComplexityFactor is a flagged risk category that adds fixed protect points.
type ComplexityFactor string

const (
	ComplexityVulnerabilityIssue       ComplexityFactor = "VULNERABILITY_ISSUE"
	ComplexityAdultAtRisk              ComplexityFactor = "ADULT_AT_RISK"
	ComplexityChildConcerns            ComplexityFactor = "CHILD_CONCERNS"
	ComplexityChildProtection          ComplexityFactor = "CHILD_PROTECTION"
	ComplexityRiskToChildren           ComplexityFactor = "RISK_TO_CHILDREN"
	ComplexityPublicInterest           ComplexityFactor = "PUBLIC_INTEREST"
	ComplexityMentalHealth             ComplexityFactor = "MENTAL_HEALTH"
	ComplexityAttemptedSuicideOrHarm   ComplexityFactor = "ATTEMPTED_SUICIDE_OR_SELF_HARM"
	ComplexityIntegratedOffenderMgmt   ComplexityFactor = "IOM_NOMINAL"
	ComplexityStreetGangs              ComplexityFactor = "STREET_GANGS"
	ComplexityTerrorism                ComplexityFactor = "TERRORISM"
	ComplexityHateCrime                ComplexityFactor = "HATE_CRIME"
	ComplexityDomesticAbusePerpetrator ComplexityFactor = "DOMESTIC_ABUSE_PERPETRATOR"
)

// ComplexityFactorFromRegisterCode maps a register code to a complexity factor.
func ComplexityFactorFromRegisterCode(code string) (ComplexityFactor, bool) {
	switch code {
	case "RVLN":
		return ComplexityVulnerabilityIssue, true
	case "RVAD":
		return ComplexityAdultAtRisk, true
	case "RCCO":
		return ComplexityChildConcerns, true
	case "RCPR":
		return ComplexityChildProtection, true
	case "RCHD":
		return ComplexityRiskToChildren, true
	case "RPIR":
		return ComplexityPublicInterest, true
	case "RMDO":
		return ComplexityMentalHealth, true
	case "ALSH":
		return ComplexityAttemptedSuicideOrHarm, true
	case "IIOM":
		return ComplexityIntegratedOffenderMgmt, true
	case "STRG":
		return ComplexityStreetGangs, true
	case "RTAO":
		return ComplexityTerrorism, true
	case "RHCR":
		return ComplexityHateCrime, true
	case "ADVP":
		return ComplexityDomesticAbusePerpetrator, true
	default:
		return "", false
	}
}

// AdditionalFactor is an assessment question scored only for women.
type AdditionalFactor string

const (
	FactorParentingResponsibilities AdditionalFactor = "PARENTING_RESPONSIBILITIES"
	FactorImpulsivity               AdditionalFactor = "IMPULSIVITY"
	FactorTemperControl             AdditionalFactor = "TEMPER_CONTROL"
)

// AdditionalFactorFromQuestion maps an assessment question reference.
func AdditionalFactorFromQuestion(ref string) (AdditionalFactor, bool) {
	switch ref {
	case "6.9":
		return FactorParentingResponsibilities, true
	case "11.2":
		return FactorImpulsivity, true
	case "11.4":
		return FactorTemperControl, true
	default:
		return "", false
	}
}

// RiskSignals are the normalized inputs to the protect calculation.
type RiskSignals struct {
	RSR                         decimal.NullDecimal         `json:"rsr"`
	Rosh                        Rosh                        `json:"rosh,omitempty"`
	Mappa                       Mappa                       `json:"mappa,omitempty"`
	ComplexityFactors           []ComplexityFactor          `json:"complexity_factors,omitempty"`
	Female                      bool                        `json:"female"`
	AdditionalFactorsForWomen   map[AdditionalFactor]string `json:"additional_factors_for_women,omitempty"`
	PreviousEnforcementActivity bool                        `json:"previous_enforcement_activity"`
}

// Need is an assessed criminogenic need domain.
type Need string

const (
	NeedAccommodation           Need = "ACCOMMODATION"
	NeedEducationTrainingEmploy Need = "EDUCATION_TRAINING_AND_EMPLOYABILITY"
	NeedRelationships           Need = "RELATIONSHIPS"
	NeedLifestyleAndAssociates  Need = "LIFESTYLE_AND_ASSOCIATES"
	NeedDrugMisuse              Need = "DRUG_MISUSE"
	NeedAlcoholMisuse           Need = "ALCOHOL_MISUSE"
	NeedThinkingAndBehaviour    Need = "THINKING_AND_BEHAVIOUR"
	NeedAttitudes               Need = "ATTITUDES"
)

// AllNeeds lists every need domain in a stable order.
var AllNeeds = []Need{
	NeedAccommodation,
	NeedEducationTrainingEmploy,
	NeedRelationships,
	NeedLifestyleAndAssociates,
	NeedDrugMisuse,
	NeedAlcoholMisuse,
	NeedThinkingAndBehaviour,
	NeedAttitudes,
}

// Weighting returns the multiplier applied to the domain's severity.
// Unknown domains weigh nothing.
func (n Need) Weighting() int {
	switch n {
	case NeedThinkingAndBehaviour, NeedAttitudes:
		return 2
	case NeedAccommodation, NeedEducationTrainingEmploy, NeedRelationships,
		NeedLifestyleAndAssociates, NeedDrugMisuse, NeedAlcoholMisuse:
		return 1
	default:
		return 0
	}
}

// ParseNeed validates a need domain name.
func ParseNeed(s string) (Need, bool) {
	n := Need(s)
	if n.Weighting() == 0 {
		return "", false
	}
	return n, true
}

// NeedSeverity is the assessed severity of a need domain.
type NeedSeverity string

const (
	SeverityNoNeed   NeedSeverity = "NO_NEED"
	SeverityStandard NeedSeverity = "STANDARD"
	SeveritySevere   NeedSeverity = "SEVERE"
)

// Score returns the points for the severity before weighting.
func (s NeedSeverity) Score() int {
	switch s {
	case SeveritySevere:
		return 2
	case SeverityStandard:
		return 1
	default:
		return 0
	}
}

// ParseNeedSeverity validates a severity name.
func ParseNeedSeverity(s string) (NeedSeverity, bool) {
	switch NeedSeverity(s) {
	case SeverityNoNeed, SeverityStandard, SeveritySevere:
		return NeedSeverity(s), true
	default:
		return "", false
	}
}

// NeedSignals are the normalized inputs to the change calculation.
type NeedSignals struct {
	OGRS               *int                  `json:"ogrs,omitempty"`
	Needs              map[Need]NeedSeverity `json:"needs,omitempty"`
	HasValidAssessment bool                  `json:"has_valid_assessment"`
	HasNoMandate       bool                  `json:"has_no_mandate"`
}
