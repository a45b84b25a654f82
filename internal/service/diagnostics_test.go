package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/device"
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/models"
)

type stubDevice struct {
	ram    map[byte][]byte
	eeprom map[byte][]byte
}

func (d *stubDevice) ReadRAM(addr byte) []byte     { return d.ram[addr] }
func (d *stubDevice) ReadEEPROM(addr byte) []byte  { return d.eeprom[addr] }
func (d *stubDevice) WriteRAM(addr, value byte)    {}
func (d *stubDevice) WriteEEPROM(addr, value byte) {}
func (d *stubDevice) IsReceiving() bool            { return true }

func TestDiagnosticsService_Probe(t *testing.T) {
	t.Parallel()

	dev := &stubDevice{
		ram:    map[byte][]byte{0x21: {0x00, 0x04}, 0x30: {0x21}},
		eeprom: map[byte][]byte{0x7F: {0x7F, 0x00, 0x2A}},
	}
	svc := NewDiagnosticsService(dev)

	tests := []struct {
		name      string
		kind      micronova.Kind
		addr      byte
		wantAddr  string
		wantValue *int
		wantLen   int
	}{
		{"ram value", micronova.RAM, 0x21, "0x21", intPtr(4), 2},
		{"ram sentinel only", micronova.RAM, 0x30, "0x30", nil, 1},
		{"ram timeout", micronova.RAM, 0x99, "0x99", nil, 0},
		{"eeprom last byte wins", micronova.EEPROM, 0x7F, "0x7F", intPtr(42), 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := svc.Probe(context.Background(), tt.kind, tt.addr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Kind != tt.kind.String() || res.Address != tt.wantAddr || len(res.Bytes) != tt.wantLen {
				t.Fatalf("result = %+v", res)
			}
			switch {
			case tt.wantValue == nil && res.Value != nil:
				t.Fatalf("value = %d, want none", *res.Value)
			case tt.wantValue != nil && (res.Value == nil || *res.Value != *tt.wantValue):
				t.Fatalf("value = %v, want %d", res.Value, *tt.wantValue)
			}
			if res.Rendered != micronova.FormatResponse(res.Bytes) {
				t.Fatalf("rendered = %q", res.Rendered)
			}
		})
	}
}

func TestDiagnosticsService_ProbeBusy(t *testing.T) {
	t.Parallel()

	svc := NewDiagnosticsService(&stubDevice{})
	if !svc.sem.TryAcquire(1) {
		t.Fatal("semaphore unexpectedly held")
	}
	defer svc.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := svc.Probe(ctx, micronova.RAM, 0x01); !errors.Is(err, ErrQueueBusy) {
		t.Fatalf("err = %v, want ErrQueueBusy", err)
	}
}

func TestDiagnosticsService_NoDevice(t *testing.T) {
	t.Parallel()

	if _, err := NewDiagnosticsService(nil).Probe(context.Background(), micronova.RAM, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestSimulatorService_NotSimulating(t *testing.T) {
	t.Parallel()

	svc := NewSimulatorService(nil)
	ctx := context.Background()
	for name, err := range map[string]error{
		"state":   svc.ForceState(ctx, 4),
		"power":   svc.ForcePower(ctx, 2),
		"ambient": svc.ForceAmbient(ctx, 20),
		"failure": svc.SetFailureMode(ctx, true),
	} {
		if !errors.Is(err, ErrNotSimulating) {
			t.Fatalf("%s: err = %v, want ErrNotSimulating", name, err)
		}
	}
}

func TestSimulatorService_DrivesSimulator(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))
	sim := device.NewSimulator(clk, micronova.DefaultRegisters(), nil)
	svc := NewSimulatorService(sim)
	ctx := context.Background()

	if err := svc.ForceState(ctx, int(models.StateWorking)); err != nil {
		t.Fatal(err)
	}
	if sim.State() != models.StateWorking {
		t.Fatalf("state = %v", sim.State())
	}
	if err := svc.ForcePower(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if sim.Power() != models.MaxPower {
		t.Fatalf("power = %d", sim.Power())
	}
	if err := svc.ForceState(ctx, 300); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if err := svc.ForceAmbient(ctx, 99); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func intPtr(v int) *int { return &v }
