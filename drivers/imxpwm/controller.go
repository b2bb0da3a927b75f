package imxpwm

import (
	"runtime"
	"sync"
	"time"

	"pwmgen-go/clock"
	"pwmgen-go/errcode"
	"pwmgen-go/mmio"
	"pwmgen-go/types"
	"pwmgen-go/x/mathx"
	"pwmgen-go/x/timex"
)

// Tuning holds the timing constants of the erratum workaround and the
// reset protocol. The defaults are empirically tuned for one silicon
// family; a port to different hardware must re-derive them.
type Tuning struct {
	// GuardMargin covers the latency of one register write when
	// projecting the live counter forward.
	GuardMargin time.Duration
	// MinGuardPeriod is the shortest period the counter-snapshot
	// guard can safely race; faster waveforms get the blind
	// double-write fallback instead.
	MinGuardPeriod time.Duration
	// ResetPolls and ResetPollInterval bound the software-reset
	// completion loop.
	ResetPolls        int
	ResetPollInterval time.Duration
}

func DefaultTuning() Tuning {
	return Tuning{
		GuardMargin:       1500 * time.Nanosecond,
		MinGuardPeriod:    2 * time.Microsecond,
		ResetPolls:        5,
		ResetPollInterval: 200 * time.Microsecond,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.GuardMargin <= 0 {
		t.GuardMargin = d.GuardMargin
	}
	if t.MinGuardPeriod <= 0 {
		t.MinGuardPeriod = d.MinGuardPeriod
	}
	if t.ResetPolls <= 0 {
		t.ResetPolls = d.ResetPolls
	}
	if t.ResetPollInterval <= 0 {
		t.ResetPollInterval = d.ResetPollInterval
	}
	return t
}

// Config wires one controller instance.
type Config struct {
	Window mmio.Window
	Clocks clock.Pair
	Tuning Tuning
	// Warn receives degraded conditions (reset timeout, FIFO stall,
	// disconnected output). Operations continue past them; nil drops
	// them.
	Warn func(op string, code errcode.Code)
}

// Controller owns one generator's register window. All register
// traffic is serialised by the controller's lock; the window is not
// shared with anyone else.
type Controller struct {
	win  mmio.Window
	clks clock.Pair
	tun  Tuning
	warn func(op string, code errcode.Code)

	mu sync.Mutex
	// The sample register cannot be read back while the controller is
	// disabled, so the last committed value is cached. Written only
	// by Apply, read by State when disabled.
	cachedDuty   uint32
	lastPolarity types.Polarity
}

// New attaches to the controller and reconciles clock ownership once:
// if the generator is already running (e.g. enabled by the boot
// loader), the feeding clocks stay held so the waveform survives.
func New(cfg Config) (*Controller, error) {
	c := &Controller{
		win:  cfg.Window,
		clks: cfg.Clocks,
		tun:  cfg.Tuning.withDefaults(),
		warn: cfg.Warn,
	}
	if err := c.clks.Enable(); err != nil {
		return nil, &errcode.E{C: errcode.ClockUnavailable, Op: "attach", Err: err}
	}
	cr := DecodeControl(c.win.Read32(RegControl))
	if !cr.Enable {
		c.clks.Disable()
	}
	return c, nil
}

func (c *Controller) warnf(op string, code errcode.Code) {
	if c.warn != nil {
		c.warn(op, code)
	}
}

// currentPeriodNs derives the currently programmed output period from
// the hardware, ceiling-rounded.
func (c *Controller) currentPeriodNs(rateHz uint64) uint64 {
	pr := c.win.Read32(RegPeriod)
	if pr >= PeriodMax {
		pr = PeriodMax
	}
	cr := DecodeControl(c.win.Read32(RegControl))
	return cyclesToNs(uint64(pr)+2, cr.Prescaler, rateHz)
}

// softReset drives the software-reset protocol: request the
// self-clearing reset bit, then poll until it clears. Exhausting the
// poll budget is non-fatal; the caller proceeds with a warning since
// the counter state is then indeterminate.
func (c *Controller) softReset() {
	c.win.Write32(RegControl, ControlWord{SWReset: true}.Encode())
	for i := 0; i < c.tun.ResetPolls; i++ {
		time.Sleep(c.tun.ResetPollInterval)
		if !DecodeControl(c.win.Read32(RegControl)).SWReset {
			return
		}
	}
	c.warnf("reset", errcode.Timeout)
}

// waitFIFOSlot blocks until the sample FIFO has a free slot, giving
// the hardware one full output period to consume an entry. A still-
// full FIFO after that is genuine backpressure: warn and let the
// write queue anyway.
func (c *Controller) waitFIFOSlot(rateHz uint64) {
	avail := DecodeStatus(c.win.Read32(RegStatus)).FIFOAvail
	if avail != FIFOSlots {
		return
	}
	periodMs := timex.MsCeil(c.currentPeriodNs(rateHz))
	time.Sleep(time.Duration(periodMs) * time.Millisecond)

	if DecodeStatus(c.win.Read32(RegStatus)).FIFOAvail == avail {
		c.warnf("apply", errcode.NoFreeFIFOSlot)
	}
}

// spin busy-waits. Used only for sub-period settling where sleeping
// would overshoot by orders of magnitude.
func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

// commitSample writes the new sample value, working around the FIFO
// erratum: with an empty FIFO the hardware applies a new sample value
// immediately, mid-period; if the new value is below the live counter
// the output misses its falling edge and stays high for a whole
// period. When shrinking the duty on a running generator, re-inject
// the old value ahead of the new one so the hardware burns one dummy
// cycle at the old duty instead.
//
// The counter snapshot is only valid while nothing delays the
// following writes, so the whole decision runs on a pinned OS thread
// with no allocations or sleeps between snapshot and commit. User
// space cannot mask interrupts; pinning is the strongest bounded-
// latency primitive available here and is a documented limitation
// against the original timing contract.
func (c *Controller) commitSample(enabled bool, cyc Cycles, periodUs, periodNs, guardCycles uint64) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	avail := DecodeStatus(c.win.Read32(RegStatus)).FIFOAvail

	if cyc.Duty < c.cachedDuty && enabled {
		if periodUs < uint64(c.tun.MinGuardPeriod/time.Microsecond) {
			// Too fast to race the counter: best effort. Let the
			// FIFO drain, then fill two slots with the old value.
			spin(3 * time.Duration(periodNs))
			c.win.Write32(RegSample, c.cachedDuty)
			c.win.Write32(RegSample, c.cachedDuty)
		} else if avail < 2 {
			cnt := uint64(c.win.Read32(RegCounter))
			// If the counter plus one write latency crosses the new
			// duty threshold (still under the old one) or the period
			// end, the next write lands inside the erratum window.
			if (cnt+guardCycles >= uint64(cyc.Duty) && cnt < uint64(c.cachedDuty)) ||
				cnt+guardCycles >= uint64(cyc.Period) {
				c.win.Write32(RegSample, c.cachedDuty)
			}
		}
	}
	c.win.Write32(RegSample, cyc.Duty)
}

// Apply commits a full desired configuration. Atomic from the
// caller's point of view: a clock acquisition failure rejects the
// request with no register touched; degraded conditions along the way
// are warned and ridden through.
func (c *Controller) Apply(cfg types.PWMConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rateHz := c.clks.RateHz()
	cyc := toCycles(cfg.PeriodNs, cfg.DutyNs, rateHz)

	// A running generator needs FIFO headroom for the sample write; a
	// stopped one needs its clocks up and its counter in a known
	// state first.
	wasEnabled := DecodeControl(c.win.Read32(RegControl)).Enable
	if wasEnabled {
		c.waitFIFOSlot(rateHz)
	} else {
		if err := c.clks.Enable(); err != nil {
			return &errcode.E{C: errcode.ClockUnavailable, Op: "apply", Err: err}
		}
		c.softReset()
	}

	// Snapshot the still-current waveform; the erratum decision is
	// made against what the counter is doing now, not the new config.
	curNs := c.currentPeriodNs(rateHz)
	curUs := timex.UsCeil(curNs)
	guardCycles := mathx.ScaleFloor(rateHz, uint64(c.tun.GuardMargin), nsPerSec)

	c.commitSample(wasEnabled, cyc, curUs, curNs, guardCycles)

	c.win.Write32(RegPeriod, cyc.Period)

	// Cache unconditionally: the sample register is unreadable once
	// the generator is disabled.
	c.cachedDuty = cyc.Duty

	out := ControlWord{
		Prescaler:   cyc.Prescaler,
		ClockSource: ClockIPGHigh,
		StopEnable:  true,
		DozeEnable:  true,
		WaitEnable:  true,
		DebugEnable: true,
		Enable:      cfg.Enabled,
	}
	if cfg.Polarity == types.PolarityInversed {
		out.Output = OutputInverted
	}
	c.win.Write32(RegControl, out.Encode())
	c.lastPolarity = cfg.Polarity

	if !cfg.Enabled {
		c.clks.Disable()
	}
	return nil
}

// State reads back the observed configuration, best effort. The
// feeding clocks are held just for the duration of the read; register
// contents are not trustworthy while they are gated.
func (c *Controller) State() (types.PWMState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.clks.Enable(); err != nil {
		return types.PWMState{}, &errcode.E{C: errcode.ClockUnavailable, Op: "state", Err: err}
	}
	defer c.clks.Disable()

	rateHz := c.clks.RateHz()
	cr := DecodeControl(c.win.Read32(RegControl))

	var st types.PWMState
	st.Enabled = cr.Enable

	switch cr.Output {
	case OutputNormal:
		st.Polarity = types.PolarityNormal
		c.lastPolarity = st.Polarity
	case OutputInverted:
		st.Polarity = types.PolarityInversed
		c.lastPolarity = st.Polarity
	default:
		// Output disconnected: no polarity to report. Keep the last
		// known value and finish the read.
		st.Polarity = c.lastPolarity
		c.warnf("state", errcode.OutputDisconnected)
	}

	pr := c.win.Read32(RegPeriod)
	if pr >= PeriodMax {
		pr = PeriodMax
	}
	st.PeriodNs = cyclesToNs(uint64(pr)+2, cr.Prescaler, rateHz)

	duty := c.cachedDuty
	if st.Enabled {
		duty = c.win.Read32(RegSample)
	}
	st.DutyNs = cyclesToNs(uint64(duty), cr.Prescaler, rateHz)

	return st, nil
}
