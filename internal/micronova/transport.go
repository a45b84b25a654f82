package micronova

import (
	"fmt"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/syncx"

	"go.bug.st/serial"
	"go.uber.org/atomic"
)

// Port is the subset of go.bug.st/serial.Port the transport drives.
// RTS drives the RS485 transceiver direction: asserted while transmitting.
type Port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SetRTS(rts bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Drain() error
	Close() error
}

// allow tests to override the OS port
var openPort = func(name string, mode *serial.Mode) (Port, error) { return serial.Open(name, mode) }

// Link defaults of the Micronova board.
const (
	DefaultBaudRate      = 1200
	DefaultLockWait      = 300 * time.Millisecond
	DefaultSettleDelay   = 120 * time.Millisecond
	DefaultCollectWindow = 50 * time.Millisecond
	DefaultBytePacing    = time.Millisecond
)

// Options tunes transaction timing.
type Options struct {
	LockWait      time.Duration
	SettleDelay   time.Duration
	CollectWindow time.Duration
	BytePacing    time.Duration
	Clock         clock.Clock
	Log           *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.LockWait <= 0 {
		o.LockWait = DefaultLockWait
	}
	if o.SettleDelay < 100*time.Millisecond {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.CollectWindow <= 0 {
		o.CollectWindow = DefaultCollectWindow
	}
	if o.BytePacing <= 0 {
		o.BytePacing = DefaultBytePacing
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	return o
}

// Transport runs read and write transactions over a half-duplex serial link.
// Each transaction holds the transport lock end to end.
type Transport struct {
	port Port
	opts Options
	mu   *syncx.TimedMutex
	rx   atomic.Bool
}

// Open opens the serial device at name (1200 baud, 8N2) and returns a
// transport in transmit mode.
func Open(name string, baud int, opts Options) (*Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := openPort(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", name, err)
	}
	t, err := NewTransport(port, opts)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewTransport wraps an already opened port.
func NewTransport(port Port, opts Options) (*Transport, error) {
	opts = opts.withDefaults()
	t := &Transport{
		port: port,
		opts: opts,
		mu:   syncx.NewTimedMutex(opts.LockWait),
	}
	if err := port.SetReadTimeout(opts.CollectWindow); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	t.transmitMode()
	return t, nil
}

// Close releases the serial port.
func (t *Transport) Close() error {
	return t.port.Close()
}

func (t *Transport) ReadRAM(addr byte) []byte    { return t.read(RAM, addr) }
func (t *Transport) ReadEEPROM(addr byte) []byte { return t.read(EEPROM, addr) }

func (t *Transport) WriteRAM(addr, value byte)    { t.write(RAM, addr, value) }
func (t *Transport) WriteEEPROM(addr, value byte) { t.write(EEPROM, addr, value) }

// IsReceiving reports whether the link is currently switched to receive.
func (t *Transport) IsReceiving() bool {
	return t.rx.Load()
}

// read returns the raw response bytes; nil means the transaction was
// skipped or nothing arrived, which callers treat as a stale read.
func (t *Transport) read(k Kind, addr byte) []byte {
	if !t.mu.TryLock() {
		t.opts.Log.Debugw("micronova_read_lock_timeout", "kind", k, "addr", addr)
		return nil
	}
	defer t.mu.Unlock()

	_ = t.port.ResetInputBuffer()
	req := ReadRequest(k, addr)
	if _, err := t.port.Write(req[:]); err != nil {
		t.opts.Log.Debugw("micronova_read_request_failed", "kind", k, "addr", addr, "err", err)
		return nil
	}
	_ = t.port.Drain()

	t.receiveMode()
	defer t.transmitMode()
	t.opts.Clock.Sleep(t.opts.SettleDelay)

	resp := make([]byte, 0, MaxResponse)
	buf := make([]byte, MaxResponse)
	for len(resp) < MaxResponse {
		n, err := t.port.Read(buf[:MaxResponse-len(resp)])
		if err != nil {
			t.opts.Log.Debugw("micronova_read_failed", "kind", k, "addr", addr, "err", err)
			break
		}
		if n == 0 {
			break
		}
		resp = append(resp, buf[:n]...)
	}
	if len(resp) == 0 {
		return nil
	}
	t.opts.Log.Debugw("micronova_read", "kind", k, "addr", addr, "resp", FormatResponse(resp))
	return resp
}

func (t *Transport) write(k Kind, addr, value byte) {
	if !t.mu.TryLock() {
		t.opts.Log.Debugw("micronova_write_lock_timeout", "kind", k, "addr", addr, "value", value)
		return
	}
	defer t.mu.Unlock()

	frame := WriteFrame(k, addr, value)
	for _, b := range frame {
		if _, err := t.port.Write([]byte{b}); err != nil {
			t.opts.Log.Debugw("micronova_write_failed", "kind", k, "addr", addr, "err", err)
			return
		}
		t.opts.Clock.Sleep(t.opts.BytePacing)
	}
	_ = t.port.Drain()
}

func (t *Transport) receiveMode() {
	_ = t.port.SetRTS(false)
	t.rx.Store(true)
}

func (t *Transport) transmitMode() {
	_ = t.port.SetRTS(true)
	t.rx.Store(false)
}
