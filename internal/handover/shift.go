package handover

import (
	"fmt"
	"strings"
)

// Shift is a 12 hour nursing shift.
type Shift string

const (
	ShiftDay   Shift = "dia"
	ShiftNight Shift = "noche"
)

type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func ParseShift(s string) (Shift, error) {
	switch Shift(strings.ToLower(strings.TrimSpace(s))) {
	case ShiftDay:
		return ShiftDay, nil
	case ShiftNight:
		return ShiftNight, nil
	}
	return "", fmt.Errorf("unknown shift %q", s)
}

func (s Shift) Window() Window {
	if s == ShiftNight {
		return Window{Start: "19:00", End: "07:00"}
	}
	return Window{Start: "07:00", End: "19:00"}
}

// Label is the upper-case name printed on the handover document.
func (s Shift) Label() string {
	if s == ShiftNight {
		return "NOCHE"
	}
	return "DÍA"
}
