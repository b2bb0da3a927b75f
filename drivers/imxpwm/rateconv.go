package imxpwm

import "pwmgen-go/x/mathx"

const nsPerSec = 1_000_000_000

// Cycles is a waveform expressed in hardware counter units: the
// prescaler divider, the period register value and the sample
// register value. The silicon adds a fixed two-cycle offset to the
// period register, so the real period is Period+2 counter ticks.
type Cycles struct {
	Prescaler uint32
	Period    uint32
	Duty      uint32
}

// toCycles converts a desired period/duty in nanoseconds at clockHz
// into counter units. Pure, total: out-of-range values clamp rather
// than error. Downstream code trusts this conversion bit-for-bit:
//
//  1. periodRaw = floor(clockHz * periodNs / 1e9)
//  2. prescaler = periodRaw/65536 + 1, so the scaled period fits the
//     16-bit counter; capped at the 12-bit field maximum, past which
//     the period saturates instead
//  3. period    = periodRaw / prescaler, minus the silicon's 2-cycle
//     offset (clamped at 0)
//  4. duty      = floor(clockHz * dutyNs / 1e9) / prescaler
//
// The prescaler cap matters: the division must use the same divider
// the control register will carry, or the programmed waveform and the
// read-back would disagree.
func toCycles(periodNs, dutyNs, clockHz uint64) Cycles {
	periodRaw := mathx.ScaleFloor(clockHz, periodNs, nsPerSec)
	prescaler := mathx.Min(periodRaw/counterSpan+1, PrescalerMax)
	period := periodRaw / prescaler
	duty := mathx.ScaleFloor(clockHz, dutyNs, nsPerSec) / prescaler

	if period > 2 {
		period -= 2
	} else {
		period = 0
	}
	period = mathx.Min(period, PeriodMax)
	duty = mathx.Min(duty, period+2)
	if duty >= counterSpan {
		duty = counterSpan - 1
	}
	return Cycles{
		Prescaler: uint32(prescaler),
		Period:    uint32(period),
		Duty:      uint32(duty),
	}
}

// cyclesToNs converts a counter-unit count back to nanoseconds,
// rounding up so read-back never reports a weaker configuration than
// what is programmed.
func cyclesToNs(count uint64, prescaler uint32, clockHz uint64) uint64 {
	return mathx.ScaleCeil(count*uint64(prescaler), nsPerSec, clockHz)
}
