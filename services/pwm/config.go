package pwm

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"pwmgen-go/drivers/imxpwm"
	"pwmgen-go/types"
)

// LoadFile reads and validates a service configuration from YAML.
func LoadFile(path string) (types.ServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.ServiceConfig{}, errors.Wrap(err, "read config")
	}
	var cfg types.ServiceConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return types.ServiceConfig{}, errors.Wrap(err, "parse config")
	}
	if err := Validate(cfg); err != nil {
		return types.ServiceConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service could not bring up.
func Validate(cfg types.ServiceConfig) error {
	if len(cfg.Generators) == 0 {
		return errors.New("no generators configured")
	}
	seen := map[string]bool{}
	for i := range cfg.Generators {
		g := cfg.Generators[i]
		if g.ID == "" {
			return errors.Errorf("generator %d: missing id", i)
		}
		if seen[g.ID] {
			return errors.Errorf("generator %q: duplicate id", g.ID)
		}
		seen[g.ID] = true
		if g.ClockHz == 0 {
			return errors.Errorf("generator %q: missing clock_hz", g.ID)
		}
		if g.Base%4 != 0 {
			return errors.Errorf("generator %q: base %#x not word aligned", g.ID, g.Base)
		}
	}
	return nil
}

// driverTuning maps the wire-format tuning overrides onto the driver's
// durations. Zero fields fall back to the driver defaults.
func driverTuning(t *types.Tuning) imxpwm.Tuning {
	if t == nil {
		return imxpwm.Tuning{}
	}
	return imxpwm.Tuning{
		GuardMargin:       time.Duration(t.GuardMarginNs) * time.Nanosecond,
		MinGuardPeriod:    time.Duration(t.MinGuardPeriodUs) * time.Microsecond,
		ResetPolls:        t.ResetPolls,
		ResetPollInterval: time.Duration(t.ResetPollInterval) * time.Microsecond,
	}
}
