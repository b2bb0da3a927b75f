package types

// ------------------------
// PWM generator capability
// ------------------------

// Polarity selects which level the duty portion of the period drives.
type Polarity uint8

const (
	PolarityNormal Polarity = iota
	PolarityInversed
)

func (p Polarity) String() string {
	if p == PolarityInversed {
		return "inversed"
	}
	return "normal"
}

// PWMConfig is a full desired state for one generator output.
// Callers keep DutyNs <= PeriodNs; the driver does not re-validate.
type PWMConfig struct {
	PeriodNs uint64   `json:"period_ns"`
	DutyNs   uint64   `json:"duty_ns"`
	Polarity Polarity `json:"polarity"`
	Enabled  bool     `json:"enabled"`
}

// PWMState is the observed hardware state, best-effort, in time units.
type PWMState struct {
	PeriodNs uint64   `json:"period_ns"`
	DutyNs   uint64   `json:"duty_ns"`
	Polarity Polarity `json:"polarity"`
	Enabled  bool     `json:"enabled"`
}

// PWMInfo is published as Info.Detail for each generator (retained).
type PWMInfo struct {
	Base    uint64 `json:"base"`     // register window physical base
	ClockHz uint64 `json:"clock_hz"` // feeding counter clock rate
}
