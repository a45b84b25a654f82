package micronova

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pellet_stove/internal/clock"

	"go.bug.st/serial"
)

// fakePort records every call and replays queued read chunks.
type fakePort struct {
	mu        sync.Mutex
	writes    [][]byte
	rts       []bool
	reads     [][]byte
	readErr   error
	writeErr  error
	resets    int
	closed    bool
	rxAtWrite []bool
	rxNow     bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	cp := append([]byte(nil), b...)
	p.writes = append(p.writes, cp)
	p.rxAtWrite = append(p.rxAtWrite, p.rxNow)
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.reads) == 0 {
		return 0, nil
	}
	chunk := p.reads[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.reads[0] = chunk[n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) SetRTS(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rts = append(p.rts, v)
	p.rxNow = !v
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

func (p *fakePort) Drain() error { return nil }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func newTestTransport(t *testing.T, port *fakePort) (*Transport, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))
	tr, err := NewTransport(port, Options{Clock: clk})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return tr, clk
}

func TestTransport_ReadRAM_SendsRequestAndTurnsLineAround(t *testing.T) {
	t.Parallel()

	port := &fakePort{reads: [][]byte{{0x7F}, {0x04}}}
	tr, clk := newTestTransport(t, port)

	resp := tr.ReadRAM(0x21)
	if len(resp) != 2 || resp[0] != 0x7F || resp[1] != 0x04 {
		t.Fatalf("unexpected response % X", resp)
	}
	if len(port.writes) != 1 || port.writes[0][0] != 0x00 || port.writes[0][1] != 0x21 {
		t.Fatalf("unexpected request % X", port.writes)
	}
	if port.rxAtWrite[0] {
		t.Fatalf("request must be transmitted with the line in transmit mode")
	}
	// init -> transmit, read -> receive, back -> transmit
	wantRTS := []bool{true, false, true}
	if len(port.rts) != len(wantRTS) {
		t.Fatalf("RTS transitions = %v, want %v", port.rts, wantRTS)
	}
	for i := range wantRTS {
		if port.rts[i] != wantRTS[i] {
			t.Fatalf("RTS transitions = %v, want %v", port.rts, wantRTS)
		}
	}
	if tr.IsReceiving() {
		t.Fatalf("transport must return to transmit mode after a read")
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 1 || sleeps[0] < 100*time.Millisecond {
		t.Fatalf("expected one settle delay >= 100ms, got %v", sleeps)
	}
}

func TestTransport_ReadEEPROM_UsesEEPROMOffset(t *testing.T) {
	t.Parallel()

	port := &fakePort{reads: [][]byte{{0x10, 0xEE}}}
	tr, _ := newTestTransport(t, port)

	_ = tr.ReadEEPROM(0x10)
	if port.writes[0][0] != OffsetEEPROMRead {
		t.Fatalf("expected EEPROM offset, got %#x", port.writes[0][0])
	}
}

func TestTransport_ReadNoResponseIsStale(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	tr, _ := newTestTransport(t, port)
	if resp := tr.ReadRAM(0x21); resp != nil {
		t.Fatalf("expected nil for timeout, got % X", resp)
	}

	port.readErr = errors.New("io")
	if resp := tr.ReadRAM(0x21); resp != nil {
		t.Fatalf("expected nil for read error, got % X", resp)
	}
}

func TestTransport_ReadCapsAtMaxResponse(t *testing.T) {
	t.Parallel()

	big := make([]byte, 100)
	for i := range big {
		big[i] = byte(i)
	}
	port := &fakePort{reads: [][]byte{big}}
	tr, _ := newTestTransport(t, port)

	resp := tr.ReadRAM(0x01)
	if len(resp) != MaxResponse {
		t.Fatalf("expected %d bytes, got %d", MaxResponse, len(resp))
	}
}

func TestTransport_WriteRAM_SendsPacedChecksummedFrame(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	tr, clk := newTestTransport(t, port)

	tr.WriteRAM(0x58, CommandShutdownStep)

	if len(port.writes) != 4 {
		t.Fatalf("expected byte-at-a-time frame, got %d writes", len(port.writes))
	}
	want := WriteFrame(RAM, 0x58, CommandShutdownStep)
	for i, w := range port.writes {
		if len(w) != 1 || w[0] != want[i] {
			t.Fatalf("byte %d = % X, want %#x", i, w, want[i])
		}
	}
	for _, d := range clk.Sleeps() {
		if d != DefaultBytePacing {
			t.Fatalf("expected 1ms pacing, got %v", d)
		}
	}
	if len(clk.Sleeps()) != 4 {
		t.Fatalf("expected 4 pacing sleeps, got %d", len(clk.Sleeps()))
	}
}

func TestTransport_LockTimeoutSkipsTransaction(t *testing.T) {
	t.Parallel()

	port := &fakePort{reads: [][]byte{{0x00, 0x04}}}
	clk := clock.NewFake(time.Now())
	tr, err := NewTransport(port, Options{Clock: clk, LockWait: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if !tr.mu.TryLock() {
		t.Fatalf("could not hold transport lock")
	}
	defer tr.mu.Unlock()

	if resp := tr.ReadRAM(0x21); resp != nil {
		t.Fatalf("expected zero bytes on lock timeout, got % X", resp)
	}
	tr.WriteRAM(0x58, CommandPowerPlus)
	if len(port.writes) != 0 {
		t.Fatalf("expected write to be dropped, got % X", port.writes)
	}
}

func TestOpen_ConfiguresMicronovaLink(t *testing.T) {
	var gotMode *serial.Mode
	var gotName string
	orig := openPort
	openPort = func(name string, mode *serial.Mode) (Port, error) {
		gotName, gotMode = name, mode
		return &fakePort{}, nil
	}
	defer func() { openPort = orig }()

	tr, err := Open("/dev/ttyUSB0", 0, Options{Clock: clock.NewFake(time.Now())})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	if gotName != "/dev/ttyUSB0" {
		t.Fatalf("opened %q", gotName)
	}
	if gotMode.BaudRate != DefaultBaudRate || gotMode.DataBits != 8 ||
		gotMode.Parity != serial.NoParity || gotMode.StopBits != serial.TwoStopBits {
		t.Fatalf("unexpected mode %+v", gotMode)
	}
}

func TestOpen_WrapsPortError(t *testing.T) {
	orig := openPort
	openPort = func(string, *serial.Mode) (Port, error) { return nil, errors.New("busy") }
	defer func() { openPort = orig }()

	if _, err := Open("/dev/ttyS9", 1200, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
