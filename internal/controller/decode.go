package controller

import (
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/models"
)

var stateCodes = map[byte]models.RunState{
	0x00: models.StateOff,
	0x01: models.StateStarting,
	0x02: models.StateLoadingFuel,
	0x03: models.StateFirePresent,
	0x04: models.StateWorking,
	0x06: models.StateFinalClean,
}

// Decode maps a state-register response to a RunState. ok is false for an
// empty response, which callers treat as a stale read.
func Decode(resp []byte) (state models.RunState, raw byte, ok bool) {
	switch len(resp) {
	case 0:
		return models.StateUndefined, 0, false
	case 1:
		if resp[0] == micronova.StateOffByte {
			return models.StateOff, resp[0], true
		}
		return models.StateUndefined, resp[0], true
	}
	raw = resp[len(resp)-1]
	if s, found := stateCodes[raw]; found {
		return s, raw, true
	}
	return models.StateUndefined, raw, true
}
