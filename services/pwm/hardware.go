package pwm

import (
	"pwmgen-go/clock"
	"pwmgen-go/drivers/imxpwm"
	"pwmgen-go/errcode"
	"pwmgen-go/mmio"
	"pwmgen-go/types"
)

// windowSpan covers the register block through the counter register.
const windowSpan = 0x18

// ipgRateHz is the register interface clock rate. Only the counter
// clock rate affects waveform timing.
const ipgRateHz = 66_000_000

// Hardware resolves a configured generator to its register window and
// feeding clocks. Implementations exist for physical memory and for an
// in-memory simulation.
type Hardware interface {
	Window(g types.Generator) (mmio.Window, error)
	Clocks(g types.Generator) (clock.Pair, error)
}

// SimHardware backs every generator with an in-memory register window.
// Host development and tests.
type SimHardware struct{}

func (SimHardware) Window(g types.Generator) (mmio.Window, error) {
	return simPWM{mmio.NewSim()}, nil
}

func (SimHardware) Clocks(g types.Generator) (clock.Pair, error) {
	return fixedClocks(g), nil
}

// simPWM layers the one piece of peripheral behaviour the driver's
// reset protocol depends on over a plain storage window: the software
// reset bit completes instantly instead of sticking forever.
type simPWM struct {
	*mmio.Sim
}

func (w simPWM) Write32(off, v uint32) {
	if off == imxpwm.RegControl {
		cw := imxpwm.DecodeControl(v)
		cw.SWReset = false
		v = cw.Encode()
	}
	w.Sim.Write32(off, v)
}

// DevMemHardware maps each generator's register block out of physical
// address space. Root only; fails off Linux.
type DevMemHardware struct{}

func (DevMemHardware) Window(g types.Generator) (mmio.Window, error) {
	if g.Base == 0 {
		return nil, &errcode.E{C: errcode.WindowUnmapped, Op: "map", Msg: g.ID + ": no base address"}
	}
	w, err := mmio.OpenDevMem(g.Base, windowSpan)
	if err != nil {
		return nil, &errcode.E{C: errcode.WindowUnmapped, Op: "map", Err: err}
	}
	return w, nil
}

func (DevMemHardware) Clocks(g types.Generator) (clock.Pair, error) {
	return fixedClocks(g), nil
}

// fixedClocks models the generator's clock inputs as always-runnable
// fixed-rate clocks. Discovering and gating the real clock tree is a
// platform integration concern outside this service.
func fixedClocks(g types.Generator) clock.Pair {
	return clock.Pair{
		IPG: clock.NewFixed(g.ID+"-ipg", ipgRateHz),
		Per: clock.NewFixed(g.ID+"-per", g.ClockHz),
	}
}
