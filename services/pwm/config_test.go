package pwm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pwmgen-go/drivers/imxpwm"
	"pwmgen-go/types"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm.yaml")
	doc := `
generators:
  - id: pwm0
    base: 0x53FB4000
    clock_hz: 66000000
  - id: backlight
    base: 0x53FB8000
    clock_hz: 66000000
    domain: display
    tuning:
      reset_polls: 8
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Generators) != 2 {
		t.Fatalf("generators = %d, want 2", len(cfg.Generators))
	}
	g := cfg.Generators[0]
	if g.ID != "pwm0" || g.Base != 0x53FB4000 || g.ClockHz != 66_000_000 {
		t.Fatalf("generator 0 = %+v", g)
	}
	b := cfg.Generators[1]
	if b.Domain != "display" || b.Tuning == nil || b.Tuning.ResetPolls != 8 {
		t.Fatalf("generator 1 = %+v", b)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	gen := func(id string, base, hz uint64) types.Generator {
		return types.Generator{ID: id, Base: base, ClockHz: hz}
	}
	cases := []struct {
		name    string
		cfg     types.ServiceConfig
		wantErr string
	}{
		{
			name:    "empty",
			cfg:     types.ServiceConfig{},
			wantErr: "no generators",
		},
		{
			name:    "missing id",
			cfg:     types.ServiceConfig{Generators: []types.Generator{gen("", 0x1000, 1)}},
			wantErr: "missing id",
		},
		{
			name: "duplicate id",
			cfg: types.ServiceConfig{Generators: []types.Generator{
				gen("a", 0x1000, 1), gen("a", 0x2000, 1),
			}},
			wantErr: "duplicate id",
		},
		{
			name:    "missing clock",
			cfg:     types.ServiceConfig{Generators: []types.Generator{gen("a", 0x1000, 0)}},
			wantErr: "missing clock_hz",
		},
		{
			name:    "unaligned base",
			cfg:     types.ServiceConfig{Generators: []types.Generator{gen("a", 0x1002, 1)}},
			wantErr: "not word aligned",
		},
		{
			name: "ok",
			cfg: types.ServiceConfig{Generators: []types.Generator{
				gen("a", 0x1000, 66_000_000), gen("b", 0, 32_768),
			}},
		},
	}
	for _, c := range cases {
		err := Validate(c.cfg)
		if c.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", c.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), c.wantErr) {
			t.Errorf("%s: err = %v, want %q", c.name, err, c.wantErr)
		}
	}
}

func TestDriverTuning(t *testing.T) {
	if got := driverTuning(nil); got != (imxpwm.Tuning{}) {
		t.Fatalf("nil tuning = %+v, want zero", got)
	}
	got := driverTuning(&types.Tuning{
		GuardMarginNs:     2_000,
		MinGuardPeriodUs:  5,
		ResetPolls:        7,
		ResetPollInterval: 100,
	})
	if got.GuardMargin != 2*time.Microsecond ||
		got.MinGuardPeriod != 5*time.Microsecond ||
		got.ResetPolls != 7 ||
		got.ResetPollInterval != 100*time.Microsecond {
		t.Fatalf("tuning = %+v", got)
	}
}
