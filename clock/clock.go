// Package clock models the feeding clocks of a memory-mapped
// peripheral: reference-counted enable/disable plus rate queries.
// Discovery of the real clock tree is the platform's problem; the
// driver only needs this capability surface.
package clock

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

// Clock is one gateable clock. Enable and Disable nest: the clock
// turns off only when every Enable has been matched by a Disable.
type Clock interface {
	Enable() error
	Disable()
	Rate() physic.Frequency
}

// Fixed is an always-runnable clock with a constant rate.
type Fixed struct {
	name string
	rate physic.Frequency

	mu   sync.Mutex
	refs int
}

func NewFixed(name string, hz uint64) *Fixed {
	return &Fixed{name: name, rate: physic.Frequency(hz) * physic.Hertz}
}

func (f *Fixed) Name() string { return f.name }

func (f *Fixed) Enable() error {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
	return nil
}

func (f *Fixed) Disable() {
	f.mu.Lock()
	if f.refs > 0 {
		f.refs--
	}
	f.mu.Unlock()
}

func (f *Fixed) Rate() physic.Frequency { return f.rate }

// Refs reports the current enable count (diagnostics and tests).
func (f *Fixed) Refs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs
}

// Pair is the two-clock bundle the controller consumes: the register
// interface clock (ipg) and the counter clock (per). Waveform timing
// derives from the per clock's rate.
type Pair struct {
	IPG Clock
	Per Clock
}

// Enable turns on both clocks in order, unwinding on failure so a
// half-enabled pair never escapes.
func (p Pair) Enable() error {
	if err := p.IPG.Enable(); err != nil {
		return errors.Wrap(err, "ipg clock")
	}
	if err := p.Per.Enable(); err != nil {
		p.IPG.Disable()
		return errors.Wrap(err, "per clock")
	}
	return nil
}

// Disable releases both clocks in reverse order.
func (p Pair) Disable() {
	p.Per.Disable()
	p.IPG.Disable()
}

// RateHz returns the counter clock rate in whole hertz.
func (p Pair) RateHz() uint64 {
	return uint64(p.Per.Rate() / physic.Hertz)
}
