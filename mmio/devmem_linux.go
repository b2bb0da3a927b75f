//go:build linux

package mmio

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DevMem maps one peripheral register block through /dev/mem.
type DevMem struct {
	mapping []byte // page-aligned mmap region
	regs    []byte // register block within the mapping
}

// OpenDevMem maps size bytes of physical address space at base.
// base need not be page aligned; the mapping is widened to page
// boundaries and the returned window starts at base.
func OpenDevMem(base uint64, size int) (*DevMem, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open /dev/mem")
	}
	defer f.Close() // the mapping outlives the descriptor

	page := uint64(os.Getpagesize())
	aligned := base &^ (page - 1)
	skew := int(base - aligned)

	m, err := unix.Mmap(int(f.Fd()), int64(aligned), skew+size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %#x+%#x", aligned, skew+size)
	}
	return &DevMem{mapping: m, regs: m[skew : skew+size]}, nil
}

// Read32 performs a volatile-width load from the register block.
// Atomic ops keep the compiler from widening, tearing or elimination.
func (d *DevMem) Read32(off uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&d.regs[off])))
}

func (d *DevMem) Write32(off uint32, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&d.regs[off])), v)
}

// Close unmaps the register block. The window must not be used after.
func (d *DevMem) Close() error {
	if d.mapping == nil {
		return nil
	}
	m := d.mapping
	d.mapping, d.regs = nil, nil
	return unix.Munmap(m)
}
