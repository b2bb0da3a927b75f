// Package imxpwm drives the PWM signal generator block found on
// i.MX27-generation SoCs: a 16-bit counter fed through a 12-bit
// prescaler, with the duty-cycle sample register buffered by a
// four-slot hardware FIFO.
//
// Limitations:
//   - When disabled the output is driven low independent of the
//     configured polarity.
package imxpwm

// Register offsets within the controller's window.
const (
	RegControl = 0x00 // PWMCR
	RegStatus  = 0x04 // PWMSR
	RegSample  = 0x0C // PWMSAR, FIFO-backed
	RegPeriod  = 0x10 // PWMPR
	RegCounter = 0x14 // PWMCNR, live counter position
)

// PeriodMax is the highest useful period register value; the all-ones
// value behaves identically to one less, so encoding clamps here.
const PeriodMax = 0xFFFE

// FIFOSlots is the sample FIFO depth.
const FIFOSlots = 4

// PrescalerMax is the largest divider the 12-bit field can hold
// (stored as value-1).
const PrescalerMax = 1 << 12

// counterSpan is the range a period must fit after prescaling.
const counterSpan = 1 << 16

// OutputControl is the 3-valued polarity/output field.
type OutputControl uint8

const (
	OutputNormal   OutputControl = 0 // duty portion drives high
	OutputInverted OutputControl = 1 // duty portion drives low
	OutputOff      OutputControl = 2 // pin disconnected from the counter
)

// ClockSource selects what feeds the prescaler.
type ClockSource uint8

const (
	ClockOff     ClockSource = 0
	ClockIPG     ClockSource = 1
	ClockIPGHigh ClockSource = 2
	ClockIPG32K  ClockSource = 3
)

// Control register bit positions.
const (
	crEnable      = 1 << 0
	crRepeatShift = 1
	crSWReset     = 1 << 3
	crPrescShift  = 4
	crPrescMask   = 0xFFF
	crClkSrcShift = 16
	crClkSrcMask  = 0x3
	crOutputShift = 18
	crOutputMask  = 0x3
	crHCounter    = 1 << 20
	crBCounter    = 1 << 21
	crDebugEn     = 1 << 22
	crWaitEn      = 1 << 23
	crDozeEn      = 1 << 24
	crStopEn      = 1 << 25
	crWatermkShft = 26
	crWatermkMask = 0x3
)

// Status register bit positions.
const (
	srFIFOAvMask = 0x7
	srFIFOEmpty  = 1 << 3
	srRollover   = 1 << 4
	srCompare    = 1 << 5
	srWriteErr   = 1 << 6
)

// ControlWord is the decoded PWMCR. Encode/Decode keep the bit-exact
// register contract in one place; nothing else masks raw words.
type ControlWord struct {
	Enable      bool
	Repeat      uint8  // sample repeat: 0..3 encoding 1x,2x,4x,8x
	SWReset     bool   // self-clearing software reset request
	Prescaler   uint32 // divider 1..4096, stored as value-1
	ClockSource ClockSource
	Output      OutputControl
	HCounter    bool // halve counter clock
	BCounter    bool // counter runs from an external source
	DebugEnable bool // keep running in debug mode
	WaitEnable  bool // keep running in wait mode
	DozeEnable  bool // keep running in doze mode
	StopEnable  bool // keep running in stop mode
	Watermark   uint8 // FIFO water mark: 0..3 encoding 1..4 empty slots
}

// Encode packs the word. A zero Prescaler is treated as 1 so that
// sparse literals (reset requests) stay valid.
func (w ControlWord) Encode() uint32 {
	presc := w.Prescaler
	if presc < 1 {
		presc = 1
	}
	if presc > PrescalerMax {
		presc = PrescalerMax
	}
	v := uint32(0)
	if w.Enable {
		v |= crEnable
	}
	v |= uint32(w.Repeat&0x3) << crRepeatShift
	if w.SWReset {
		v |= crSWReset
	}
	v |= ((presc - 1) & crPrescMask) << crPrescShift
	v |= uint32(w.ClockSource&crClkSrcMask) << crClkSrcShift
	v |= uint32(w.Output&crOutputMask) << crOutputShift
	if w.HCounter {
		v |= crHCounter
	}
	if w.BCounter {
		v |= crBCounter
	}
	if w.DebugEnable {
		v |= crDebugEn
	}
	if w.WaitEnable {
		v |= crWaitEn
	}
	if w.DozeEnable {
		v |= crDozeEn
	}
	if w.StopEnable {
		v |= crStopEn
	}
	v |= uint32(w.Watermark&crWatermkMask) << crWatermkShft
	return v
}

// DecodeControl unpacks a raw PWMCR value.
func DecodeControl(v uint32) ControlWord {
	return ControlWord{
		Enable:      v&crEnable != 0,
		Repeat:      uint8(v >> crRepeatShift & 0x3),
		SWReset:     v&crSWReset != 0,
		Prescaler:   v>>crPrescShift&crPrescMask + 1,
		ClockSource: ClockSource(v >> crClkSrcShift & crClkSrcMask),
		Output:      OutputControl(v >> crOutputShift & crOutputMask),
		HCounter:    v&crHCounter != 0,
		BCounter:    v&crBCounter != 0,
		DebugEnable: v&crDebugEn != 0,
		WaitEnable:  v&crWaitEn != 0,
		DozeEnable:  v&crDozeEn != 0,
		StopEnable:  v&crStopEn != 0,
		Watermark:   uint8(v >> crWatermkShft & crWatermkMask),
	}
}

// StatusWord is the decoded PWMSR.
type StatusWord struct {
	FIFOAvail      uint8 // occupied sample slots, 0..4
	FIFOEmpty      bool
	Rollover       bool
	Compare        bool
	FIFOWriteError bool // a write was dropped on a full FIFO
}

// DecodeStatus unpacks a raw PWMSR value.
func DecodeStatus(v uint32) StatusWord {
	return StatusWord{
		FIFOAvail:      uint8(v & srFIFOAvMask),
		FIFOEmpty:      v&srFIFOEmpty != 0,
		Rollover:       v&srRollover != 0,
		Compare:        v&srCompare != 0,
		FIFOWriteError: v&srWriteErr != 0,
	}
}

// Encode packs the word (used by simulations and tests).
func (w StatusWord) Encode() uint32 {
	v := uint32(w.FIFOAvail) & srFIFOAvMask
	if w.FIFOEmpty {
		v |= srFIFOEmpty
	}
	if w.Rollover {
		v |= srRollover
	}
	if w.Compare {
		v |= srCompare
	}
	if w.FIFOWriteError {
		v |= srWriteErr
	}
	return v
}
