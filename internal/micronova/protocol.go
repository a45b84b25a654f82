// Package micronova implements the Micronova stove-board serial protocol:
// two-byte read requests, four-byte checksummed write frames and the
// half-duplex turnaround between them.
package micronova

import "fmt"

// Kind selects the memory bank addressed by a transaction.
type Kind uint8

const (
	RAM Kind = iota
	EEPROM
)

func (k Kind) String() string {
	if k == EEPROM {
		return "EEPROM"
	}
	return "RAM"
}

// Command offsets OR'd into the first byte of every transaction.
const (
	OffsetRAMRead     byte = 0x00
	OffsetEEPROMRead  byte = 0x20
	OffsetRAMWrite    byte = 0x80
	OffsetEEPROMWrite byte = 0xA0
)

// Values written to the command register.
const (
	CommandPowerPlus    byte = 0x54
	CommandPowerMinus   byte = 0x50
	CommandShutdownStep byte = 0x5A

	// StartValue is written to the state register to begin ignition.
	StartValue byte = 0x01

	// StateOffByte is the single-byte reply of a board that is fully off.
	StateOffByte byte = 0x21
)

// MaxResponse bounds the bytes collected for a single read.
const MaxResponse = 64

// Registers maps the RAM addresses used by the controller. They differ
// between board models; PowerFeedback is 0x34 on some of them.
type Registers struct {
	State         byte
	AmbientTemp   byte
	PowerFeedback byte
	Command       byte
}

// DefaultRegisters returns the register map of the tested board.
func DefaultRegisters() Registers {
	return Registers{
		State:         0x21,
		AmbientTemp:   0x01,
		PowerFeedback: 0xB9,
		Command:       0x58,
	}
}

func readOffset(k Kind) byte {
	if k == EEPROM {
		return OffsetEEPROMRead
	}
	return OffsetRAMRead
}

func writeOffset(k Kind) byte {
	if k == EEPROM {
		return OffsetEEPROMWrite
	}
	return OffsetRAMWrite
}

// Checksum is the single-byte wraparound sum of a write frame.
func Checksum(dest, addr, value byte) byte {
	return byte((int(dest) + int(addr) + int(value)) % 256)
}

// ReadRequest builds the two bytes that ask the board for one address.
func ReadRequest(k Kind, addr byte) [2]byte {
	return [2]byte{readOffset(k), addr}
}

// WriteFrame builds the four-byte write frame for one address.
func WriteFrame(k Kind, addr, value byte) [4]byte {
	dest := writeOffset(k)
	return [4]byte{dest, addr, value, Checksum(dest, addr, value)}
}

// Value returns the authoritative byte of a multi-byte response (the last one).
// ok is false when the response carries no value byte.
func Value(resp []byte) (v byte, ok bool) {
	if len(resp) < 2 {
		return 0, false
	}
	return resp[len(resp)-1], true
}

// FormatResponse renders a response as "len=N [0]=0x.. [1]=0x..".
func FormatResponse(resp []byte) string {
	out := fmt.Sprintf("len=%d", len(resp))
	for i, b := range resp {
		out += fmt.Sprintf(" [%d]=0x%02X", i, b)
	}
	return out
}
