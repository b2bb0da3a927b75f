// Package mmio provides 32-bit register window access for
// memory-mapped peripherals: a real /dev/mem mapping on Linux and an
// in-memory simulation for host development and tests.
package mmio

// Window is one peripheral's register block. Offsets are in bytes
// from the block base and must be 32-bit aligned. A Window has
// exactly one owner; serialisation is the owner's job.
type Window interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}
