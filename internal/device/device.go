// Package device defines the memory-access capability the controller drives
// and a deterministic simulator of a Micronova board.
package device

import "pellet_stove/internal/micronova"

// Device is implemented by micronova.Transport and by Simulator.
//
// Reads return the raw response: nil for a timeout, one byte for a
// sentinel-only reply, two or more bytes for status plus value.
// Writes are fire-and-forget.
type Device interface {
	ReadRAM(addr byte) []byte
	ReadEEPROM(addr byte) []byte
	WriteRAM(addr, value byte)
	WriteEEPROM(addr, value byte)
	IsReceiving() bool
}

var (
	_ Device = (*micronova.Transport)(nil)
	_ Device = (*Simulator)(nil)
)

// Read dispatches a read of the given kind.
func Read(d Device, k micronova.Kind, addr byte) []byte {
	if k == micronova.EEPROM {
		return d.ReadEEPROM(addr)
	}
	return d.ReadRAM(addr)
}
