package model

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ProtectLevel is the risk-of-harm band. A is the most severe.
type ProtectLevel string

const (
	ProtectA ProtectLevel = "A"
	ProtectB ProtectLevel = "B"
	ProtectC ProtectLevel = "C"
	ProtectD ProtectLevel = "D"
)

// ProtectLevelForScore maps a protect score onto its band.
func ProtectLevelForScore(score int) ProtectLevel {
	switch {
	case score >= 30:
		return ProtectA
	case score >= 20:
		return ProtectB
	case score >= 10:
		return ProtectC
	default:
		return ProtectD
	}
}

// Valid reports whether p is one of the four known bands.
func (p ProtectLevel) Valid() bool {
	switch p {
	case ProtectA, ProtectB, ProtectC, ProtectD:
		return true
	default:
		return false
	}
}

// ChangeLevel is the need-for-intervention band. Zero means the subject has
// no mandate for change.
type ChangeLevel int

const (
	ChangeZero  ChangeLevel = 0
	ChangeOne   ChangeLevel = 1
	ChangeTwo   ChangeLevel = 2
	ChangeThree ChangeLevel = 3
)

// ChangeLevelForScore maps a change score onto bands one to three. Level zero
// is only reachable through the mandate short-circuit.
func ChangeLevelForScore(score int) ChangeLevel {
	switch {
	case score >= 20:
		return ChangeThree
	case score >= 10:
		return ChangeTwo
	default:
		return ChangeOne
	}
}

// Valid reports whether c is a known change band.
func (c ChangeLevel) Valid() bool {
	switch c {
	case ChangeZero, ChangeOne, ChangeTwo, ChangeThree:
		return true
	default:
		return false
	}
}

func (c ChangeLevel) String() string {
	return fmt.Sprintf("%d", int(c))
}

// Tier combines a protect and a change level, e.g. "B2".
type Tier struct {
	Protect ProtectLevel `json:"protect_level"`
	Change  ChangeLevel  `json:"change_level"`
}

func (t Tier) String() string {
	return string(t.Protect) + t.Change.String()
}

// ParseTier parses a two-character tier code such as "A1" or "d0".
func ParseTier(s string) (Tier, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 2 {
		return Tier{}, eris.Errorf("model: invalid tier code %q", s)
	}

	t := Tier{Protect: ProtectLevel(code[:1])}
	if !t.Protect.Valid() {
		return Tier{}, eris.Errorf("model: invalid protect level in tier %q", s)
	}

	switch code[1] {
	case '0':
		t.Change = ChangeZero
	case '1':
		t.Change = ChangeOne
	case '2':
		t.Change = ChangeTwo
	case '3':
		t.Change = ChangeThree
	default:
		return Tier{}, eris.Errorf("model: invalid change level in tier %q", s)
	}
	return t, nil
}
