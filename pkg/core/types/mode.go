package types

import (
	"fmt"
	"strings"
)

// Mode is the task context a session runs in. It selects gateway behavior
// and is recorded on every turn.
type Mode string

const (
	ModeGeneral          Mode = "general"
	ModeApplianceFixer   Mode = "appliance_fixer"
	ModeHomeworkTutor    Mode = "homework_tutor"
	ModeCookingAssistant Mode = "cooking_assistant"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeGeneral, ModeApplianceFixer, ModeHomeworkTutor, ModeCookingAssistant}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeGeneral, ModeApplianceFixer, ModeHomeworkTutor, ModeCookingAssistant:
		return true
	default:
		return false
	}
}

// ParseMode accepts a wire value ("general") or an enum spelling ("GENERAL").
func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fmt.Errorf("unsupported mode %q", raw)
	}
	return m, nil
}
