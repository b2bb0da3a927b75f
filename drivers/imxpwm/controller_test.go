package imxpwm

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"

	"pwmgen-go/clock"
	"pwmgen-go/errcode"
	"pwmgen-go/mmio"
	"pwmgen-go/types"
)

// fakeWindow is a scripted register window. Control reads play out the
// software-reset protocol: while the reset bit is pending, swrPollsLeft
// more reads still see it set before it self-clears; swrStuck pins it
// forever.
type fakeWindow struct {
	cr, sr, period uint32
	sample         uint32
	counter        uint32
	fifoAvail      uint8

	swrStuck     bool
	swrPollsLeft int
	swrBusyReads int

	sampleWrites []uint32
	totalWrites  int
}

var _ mmio.Window = (*fakeWindow)(nil)

func (f *fakeWindow) Read32(off uint32) uint32 {
	switch off {
	case RegControl:
		if f.cr&crSWReset != 0 {
			f.swrBusyReads++
			if !f.swrStuck {
				if f.swrPollsLeft > 0 {
					f.swrPollsLeft--
				} else {
					f.cr &^= crSWReset
				}
			}
		}
		return f.cr
	case RegStatus:
		return StatusWord{FIFOAvail: f.fifoAvail}.Encode() | f.sr
	case RegSample:
		return f.sample
	case RegPeriod:
		return f.period
	case RegCounter:
		return f.counter
	}
	return 0
}

func (f *fakeWindow) Write32(off, v uint32) {
	f.totalWrites++
	switch off {
	case RegControl:
		f.cr = v
	case RegSample:
		f.sample = v
		f.sampleWrites = append(f.sampleWrites, v)
	case RegPeriod:
		f.period = v
	}
}

type countClock struct {
	hz       uint64
	enables  int
	disables int
	fail     bool
}

var _ clock.Clock = (*countClock)(nil)

func (c *countClock) Enable() error {
	if c.fail {
		return errors.New("gated")
	}
	c.enables++
	return nil
}

func (c *countClock) Disable() { c.disables++ }

func (c *countClock) Rate() physic.Frequency {
	return physic.Frequency(c.hz) * physic.Hertz
}

func (c *countClock) held() int { return c.enables - c.disables }

type warnLog struct {
	codes []errcode.Code
}

func (w *warnLog) hook(op string, code errcode.Code) {
	w.codes = append(w.codes, code)
}

func (w *warnLog) has(code errcode.Code) bool {
	for _, c := range w.codes {
		if c == code {
			return true
		}
	}
	return false
}

type rig struct {
	fake *fakeWindow
	ipg  *countClock
	per  *countClock
	warn *warnLog
	ctrl *Controller
}

func newRig(t *testing.T, hz uint64) *rig {
	t.Helper()
	r := &rig{
		fake: &fakeWindow{},
		ipg:  &countClock{hz: 66_000_000},
		per:  &countClock{hz: hz},
		warn: &warnLog{},
	}
	ctrl, err := New(Config{
		Window: r.fake,
		Clocks: clock.Pair{IPG: r.ipg, Per: r.per},
		Warn:   r.warn.hook,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.ctrl = ctrl
	return r
}

func (r *rig) apply(t *testing.T, cfg types.PWMConfig) {
	t.Helper()
	if err := r.ctrl.Apply(cfg); err != nil {
		t.Fatalf("Apply(%+v): %v", cfg, err)
	}
}

func TestNewReleasesClocksWhenIdle(t *testing.T) {
	r := newRig(t, 66_000_000)
	if r.per.held() != 0 || r.ipg.held() != 0 {
		t.Fatalf("clocks held after attach to idle hardware: per=%d ipg=%d",
			r.per.held(), r.ipg.held())
	}
}

func TestNewKeepsClocksWhenRunning(t *testing.T) {
	fake := &fakeWindow{cr: ControlWord{Enable: true, Prescaler: 1}.Encode()}
	ipg := &countClock{hz: 66_000_000}
	per := &countClock{hz: 66_000_000}
	if _, err := New(Config{Window: fake, Clocks: clock.Pair{IPG: ipg, Per: per}}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if per.held() != 1 || ipg.held() != 1 {
		t.Fatalf("running hardware should keep its clocks: per=%d ipg=%d",
			per.held(), ipg.held())
	}
}

func TestNewClockFailure(t *testing.T) {
	fake := &fakeWindow{}
	ipg := &countClock{hz: 66_000_000}
	per := &countClock{hz: 66_000_000, fail: true}
	_, err := New(Config{Window: fake, Clocks: clock.Pair{IPG: ipg, Per: per}})
	if errcode.Of(err) != errcode.ClockUnavailable {
		t.Fatalf("err = %v, want clock_unavailable", err)
	}
	if ipg.held() != 0 {
		t.Fatalf("ipg clock leaked on failed attach: held=%d", ipg.held())
	}
}

func TestApplyEnablesFromIdle(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})

	cr := DecodeControl(r.fake.cr)
	if !cr.Enable || cr.Prescaler != 1 || cr.ClockSource != ClockIPGHigh || cr.Output != OutputNormal {
		t.Fatalf("control word = %+v", cr)
	}
	if !cr.StopEnable || !cr.DozeEnable || !cr.WaitEnable || !cr.DebugEnable {
		t.Fatalf("low-power run bits missing: %+v", cr)
	}
	if r.fake.period != 5_000 {
		t.Fatalf("period register = %d, want 5000", r.fake.period)
	}
	if len(r.fake.sampleWrites) != 1 || r.fake.sampleWrites[0] != 1_000 {
		t.Fatalf("sample writes = %v, want [1000]", r.fake.sampleWrites)
	}
	if r.per.held() != 1 {
		t.Fatalf("per clock held = %d, want 1", r.per.held())
	}
	if len(r.warn.codes) != 0 {
		t.Fatalf("unexpected warnings: %v", r.warn.codes)
	}
}

func TestApplyInversedPolarity(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{
		PeriodNs: 5_002, DutyNs: 1_000,
		Polarity: types.PolarityInversed, Enabled: true,
	})
	if cr := DecodeControl(r.fake.cr); cr.Output != OutputInverted {
		t.Fatalf("output field = %d, want inverted", cr.Output)
	}
}

func TestApplyClockFailureLeavesRegistersAlone(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.per.fail = true
	err := r.ctrl.Apply(types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})
	if errcode.Of(err) != errcode.ClockUnavailable {
		t.Fatalf("err = %v, want clock_unavailable", err)
	}
	if r.fake.totalWrites != 0 {
		t.Fatalf("registers written on rejected request: %d writes", r.fake.totalWrites)
	}
	if r.ipg.held() != 0 {
		t.Fatalf("ipg clock leaked: held=%d", r.ipg.held())
	}
}

func TestApplyDisableReleasesClocks(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: false})

	if cr := DecodeControl(r.fake.cr); cr.Enable {
		t.Fatal("controller still enabled")
	}
	if r.per.held() != 0 || r.ipg.held() != 0 {
		t.Fatalf("clocks held after disable: per=%d ipg=%d", r.per.held(), r.ipg.held())
	}
}

func TestApplySameConfigIdempotent(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	cfg := types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true}
	r.apply(t, cfg)
	cr, pr := r.fake.cr, r.fake.period
	r.apply(t, cfg)

	if r.fake.cr != cr || r.fake.period != pr {
		t.Fatalf("re-apply changed registers: cr %#x->%#x pr %d->%d",
			cr, r.fake.cr, pr, r.fake.period)
	}
	want := []uint32{1_000, 1_000}
	if len(r.fake.sampleWrites) != 2 || r.fake.sampleWrites[0] != want[0] || r.fake.sampleWrites[1] != want[1] {
		t.Fatalf("sample writes = %v, want %v", r.fake.sampleWrites, want)
	}
	if len(r.warn.codes) != 0 {
		t.Fatalf("unexpected warnings: %v", r.warn.codes)
	}
}

func TestShrinkDutyGuardsOldValue(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})

	// Counter just ahead of the new threshold, inside the guard margin
	// (1500 cycles at 1 GHz), still under the old threshold.
	r.fake.counter = 150
	r.fake.fifoAvail = 1
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 200, Enabled: true})

	got := r.fake.sampleWrites
	if len(got) != 3 || got[1] != 1_000 || got[2] != 200 {
		t.Fatalf("sample writes = %v, want old value re-injected before 200", got)
	}
}

func TestShrinkSkipsGuardWhenCounterClear(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})

	// Counter already past the old threshold and well short of the
	// period end: the new value cannot race a falling edge.
	r.fake.counter = 2_000
	r.fake.fifoAvail = 1
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 200, Enabled: true})

	got := r.fake.sampleWrites
	if len(got) != 2 || got[1] != 200 {
		t.Fatalf("sample writes = %v, want plain [1000 200]", got)
	}
}

func TestGrowDutyNeverGuards(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})

	r.fake.counter = 150
	r.fake.fifoAvail = 1
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_200, Enabled: true})

	got := r.fake.sampleWrites
	if len(got) != 2 || got[1] != 1_200 {
		t.Fatalf("sample writes = %v, want plain [1000 1200]", got)
	}
}

func TestShrinkOnFastPeriodBlindRefill(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 902, DutyNs: 400, Enabled: true})
	r.apply(t, types.PWMConfig{PeriodNs: 902, DutyNs: 100, Enabled: true})

	// Sub-microsecond period: no time to race the counter, so the old
	// value is queued twice before the new one.
	got := r.fake.sampleWrites
	if len(got) != 4 || got[1] != 400 || got[2] != 400 || got[3] != 100 {
		t.Fatalf("sample writes = %v, want [400 400 400 100]", got)
	}
}

func TestResetTimeoutWarnsAndProceeds(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.fake.swrStuck = true
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})

	if !r.warn.has(errcode.Timeout) {
		t.Fatalf("warnings = %v, want timeout", r.warn.codes)
	}
	if r.fake.swrBusyReads < 5 {
		t.Fatalf("reset polled %d times, want the full budget", r.fake.swrBusyReads)
	}
	if cr := DecodeControl(r.fake.cr); !cr.Enable {
		t.Fatal("apply should ride through a stuck reset")
	}
	if len(r.fake.sampleWrites) != 1 {
		t.Fatalf("sample writes = %v", r.fake.sampleWrites)
	}
}

func TestResetCompletesWithinBudget(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.fake.swrPollsLeft = 2
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})
	if r.warn.has(errcode.Timeout) {
		t.Fatalf("reset cleared in time, warnings = %v", r.warn.codes)
	}
}

func TestFullFIFOWarnsAfterOnePeriod(t *testing.T) {
	r := newRig(t, 1_000_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_000, Enabled: true})

	r.fake.fifoAvail = FIFOSlots
	r.apply(t, types.PWMConfig{PeriodNs: 5_002, DutyNs: 1_200, Enabled: true})

	if !r.warn.has(errcode.NoFreeFIFOSlot) {
		t.Fatalf("warnings = %v, want no_free_fifo_slot", r.warn.codes)
	}
	got := r.fake.sampleWrites
	if got[len(got)-1] != 1_200 {
		t.Fatalf("sample writes = %v, want the new value queued regardless", got)
	}
}

func TestStateReadsBackExact(t *testing.T) {
	r := newRig(t, 66_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 1_000_000, DutyNs: 250_000, Enabled: true})

	st, err := r.ctrl.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	want := types.PWMState{PeriodNs: 1_000_000, DutyNs: 250_000, Enabled: true}
	if st != want {
		t.Fatalf("state = %+v, want %+v", st, want)
	}
	if r.per.held() != 1 {
		t.Fatalf("per clock held = %d after read, want 1", r.per.held())
	}
}

func TestStateDisabledServesCachedDuty(t *testing.T) {
	r := newRig(t, 66_000_000)
	r.apply(t, types.PWMConfig{PeriodNs: 1_000_000, DutyNs: 250_000, Enabled: false})

	// The sample register is not readable while disabled; junk it to
	// prove the cache is what gets reported.
	r.fake.sample = 0xFFFF

	st, err := r.ctrl.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Enabled {
		t.Fatal("state reports enabled")
	}
	if st.DutyNs != 250_000 || st.PeriodNs != 1_000_000 {
		t.Fatalf("state = %+v, want cached 250000/1000000", st)
	}
	if r.per.held() != 0 || r.per.enables != r.per.disables {
		t.Fatalf("clock bracket unbalanced: enables=%d disables=%d",
			r.per.enables, r.per.disables)
	}
}

func TestStateOutputOffKeepsLastPolarity(t *testing.T) {
	r := newRig(t, 66_000_000)
	r.apply(t, types.PWMConfig{
		PeriodNs: 1_000_000, DutyNs: 250_000,
		Polarity: types.PolarityInversed, Enabled: true,
	})

	w := DecodeControl(r.fake.cr)
	w.Output = OutputOff
	r.fake.cr = w.Encode()

	st, err := r.ctrl.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Polarity != types.PolarityInversed {
		t.Fatalf("polarity = %v, want last known inversed", st.Polarity)
	}
	if !r.warn.has(errcode.OutputDisconnected) {
		t.Fatalf("warnings = %v, want output_disconnected", r.warn.codes)
	}
}
