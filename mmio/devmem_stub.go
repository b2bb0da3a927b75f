//go:build !linux

package mmio

import "github.com/pkg/errors"

// DevMem is unavailable off Linux; use Sim for development.
type DevMem struct{}

func OpenDevMem(base uint64, size int) (*DevMem, error) {
	return nil, errors.Errorf("physical register windows unsupported on this platform (base %#x)", base)
}

func (d *DevMem) Read32(off uint32) uint32     { return 0 }
func (d *DevMem) Write32(off uint32, v uint32) {}
func (d *DevMem) Close() error                 { return nil }
