package model

import "time"

// WaterState is the logical level of the water-contact sensor.
type WaterState string

const (
	StateWet WaterState = "wet"
	StateDry WaterState = "dry"
)

// ParseWaterState accepts the names used on the wire by remote inputs.
func ParseWaterState(s string) (WaterState, bool) {
	switch s {
	case "wet", "WET", "on", "1", "true":
		return StateWet, true
	case "dry", "DRY", "off", "0", "false":
		return StateDry, true
	}
	return "", false
}

// Transition is emitted whenever the debounced water signal changes level.
type Transition struct {
	State  WaterState `json:"state"`
	At     time.Time  `json:"at"`
	Source string     `json:"source,omitempty"`
}
