package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"pellet_stove/internal/device"
	"pellet_stove/internal/micronova"
)

// DiagnosticsService reads arbitrary board addresses. Probes are serialized
// so a burst of requests cannot starve the poll loop of the line.
type DiagnosticsService struct {
	dev device.Device
	sem *semaphore.Weighted
}

func NewDiagnosticsService(dev device.Device) *DiagnosticsService {
	return &DiagnosticsService{dev: dev, sem: semaphore.NewWeighted(1)}
}

func (s *DiagnosticsService) Probe(ctx context.Context, kind micronova.Kind, addr byte) (ProbeResult, error) {
	if s.dev == nil {
		return ProbeResult{}, fmt.Errorf("probe: no device")
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrQueueBusy, err)
	}
	resp := device.Read(s.dev, kind, addr)
	s.sem.Release(1)

	res := ProbeResult{
		Kind:     kind.String(),
		Address:  fmt.Sprintf("0x%02X", addr),
		Bytes:    resp,
		Rendered: micronova.FormatResponse(resp),
	}
	if v, ok := micronova.Value(resp); ok {
		n := int(v)
		res.Value = &n
	}
	return res, nil
}
