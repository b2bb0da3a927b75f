package types

// Service configuration supplied on topic "config/pwm" or loaded from
// a YAML file by the daemon.

type ServiceConfig struct {
	Generators []Generator `json:"generators" yaml:"generators"`
}

// Generator describes one PWM controller instance to manage.
type Generator struct {
	ID      string  `json:"id" yaml:"id"`
	Base    uint64  `json:"base" yaml:"base"`           // physical base address (mmio backend)
	ClockHz uint64  `json:"clock_hz" yaml:"clock_hz"`   // counter clock rate
	Domain  string  `json:"domain,omitempty" yaml:"domain,omitempty"`
	Tuning  *Tuning `json:"tuning,omitempty" yaml:"tuning,omitempty"`
}

// Tuning overrides the driver's silicon-family timing constants.
// Zero fields keep the defaults. The defaults are tuned for one
// silicon family; other hardware must re-derive them.
type Tuning struct {
	GuardMarginNs     uint64 `json:"guard_margin_ns,omitempty" yaml:"guard_margin_ns,omitempty"`
	MinGuardPeriodUs  uint64 `json:"min_guard_period_us,omitempty" yaml:"min_guard_period_us,omitempty"`
	ResetPolls        int    `json:"reset_polls,omitempty" yaml:"reset_polls,omitempty"`
	ResetPollInterval uint64 `json:"reset_poll_interval_us,omitempty" yaml:"reset_poll_interval_us,omitempty"`
}
