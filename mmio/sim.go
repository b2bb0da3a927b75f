package mmio

import "sync"

// Sim is a plain in-memory register window. It models storage only;
// peripheral behaviour (self-clearing bits, FIFO counts) belongs to
// the fakes scripted by driver tests.
type Sim struct {
	mu   sync.Mutex
	regs map[uint32]uint32
}

func NewSim() *Sim {
	return &Sim{regs: make(map[uint32]uint32)}
}

func (s *Sim) Read32(off uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[off]
}

func (s *Sim) Write32(off uint32, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[off] = v
}
