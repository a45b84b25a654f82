package gating

import (
	"sync"

	"pellet_stove/internal/models"
)

// Panel is a Surface that remembers how each control should be rendered.
// Remote consumers (WebSocket, MQTT) read it when they publish status.
type Panel struct {
	mu       sync.RWMutex
	controls map[Control]models.ControlState
}

func NewPanel() *Panel {
	p := &Panel{controls: make(map[Control]models.ControlState, controlCount)}
	for _, c := range Controls() {
		p.controls[c] = models.ControlState{Enabled: true}
	}
	return p
}

func (p *Panel) DisableControl(c Control) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs := p.controls[c]
	cs.Enabled = false
	cs.Locked = true
	p.controls[c] = cs
}

func (p *Panel) EnableOnOff(on bool) {
	v := 0
	if on {
		v = 1
	}
	p.set(OnOff, models.ControlState{Enabled: true, Value: v})
}

func (p *Panel) EnablePower(level uint8) {
	p.set(Power, models.ControlState{Enabled: true, Value: int(level)})
}

func (p *Panel) EnableTimer() { p.set(Timer, models.ControlState{Enabled: true}) }

func (p *Panel) EnableScheduleApply() { p.set(ScheduleApply, models.ControlState{Enabled: true}) }

func (p *Panel) set(c Control, cs models.ControlState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controls[c] = cs
}

// State returns a copy keyed by control name.
func (p *Panel) State() map[string]models.ControlState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]models.ControlState, len(p.controls))
	for c, cs := range p.controls {
		out[c.String()] = cs
	}
	return out
}

var _ Surface = (*Panel)(nil)
