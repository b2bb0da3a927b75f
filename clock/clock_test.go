package clock

import (
	"testing"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

// failClock fails Enable after a set number of successes.
type failClock struct {
	okLeft   int
	enables  int
	disables int
}

func (f *failClock) Enable() error {
	f.enables++
	if f.okLeft <= 0 {
		return errors.New("gate stuck")
	}
	f.okLeft--
	return nil
}
func (f *failClock) Disable() { f.disables++ }

func (f *failClock) Rate() physic.Frequency { return 0 }

func TestFixedRefCounting(t *testing.T) {
	c := NewFixed("per", 66_000_000)
	if c.Refs() != 0 {
		t.Fatalf("fresh clock refs = %d", c.Refs())
	}
	_ = c.Enable()
	_ = c.Enable()
	if c.Refs() != 2 {
		t.Fatalf("refs after two enables = %d, want 2", c.Refs())
	}
	c.Disable()
	c.Disable()
	c.Disable() // extra disable must not underflow
	if c.Refs() != 0 {
		t.Fatalf("refs after disables = %d, want 0", c.Refs())
	}
}

func TestFixedRate(t *testing.T) {
	c := NewFixed("per", 66_000_000)
	if got := uint64(c.Rate() / physic.Hertz); got != 66_000_000 {
		t.Fatalf("rate = %d Hz, want 66000000", got)
	}
}

func TestPairEnableUnwind(t *testing.T) {
	ipg := &failClock{okLeft: 1}
	per := &failClock{okLeft: 0} // will fail
	p := Pair{IPG: ipg, Per: per}

	if err := p.Enable(); err == nil {
		t.Fatal("expected enable failure")
	}
	if ipg.disables != 1 {
		t.Fatalf("ipg disables = %d, want 1 (unwind)", ipg.disables)
	}
}

func TestPairDisableOrder(t *testing.T) {
	ipg := NewFixed("ipg", 66_000_000)
	per := NewFixed("per", 66_000_000)
	p := Pair{IPG: ipg, Per: per}

	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	p.Disable()
	if ipg.Refs() != 0 || per.Refs() != 0 {
		t.Fatalf("refs after disable = ipg %d per %d", ipg.Refs(), per.Refs())
	}
}

func TestPairRateHz(t *testing.T) {
	p := Pair{IPG: NewFixed("ipg", 1), Per: NewFixed("per", 32_768)}
	if got := p.RateHz(); got != 32_768 {
		t.Fatalf("RateHz = %d, want 32768", got)
	}
}
