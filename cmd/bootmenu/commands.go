package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect requested by the gesture decoder
// or the engine. Commands are executed by runEffect on the input loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdVibrate pulses the haptic motor.
type CmdVibrate struct {
	Duration time.Duration
}

func (CmdVibrate) commandMarker() {}
func (c CmdVibrate) String() string {
	return fmt.Sprintf("CmdVibrate(ms=%d)", c.Duration.Milliseconds())
}

// CmdHighlight moves the menu highlight to an absolute row.
type CmdHighlight struct {
	Index int
}

func (CmdHighlight) commandMarker()   {}
func (c CmdHighlight) String() string { return fmt.Sprintf("CmdHighlight(index=%d)", c.Index) }

// CmdToggleText flips the text overlay visibility.
type CmdToggleText struct{}

func (CmdToggleText) commandMarker() {}
func (CmdToggleText) String() string { return "CmdToggleText()" }

// CmdReboot restarts the device immediately.
type CmdReboot struct{}

func (CmdReboot) commandMarker() {}
func (CmdReboot) String() string { return "CmdReboot()" }

// CmdSetLED writes a brightness value to /sys/class/leds/<name>/brightness.
type CmdSetLED struct {
	Name  string
	Value int
}

func (CmdSetLED) commandMarker() {}
func (c CmdSetLED) String() string {
	return fmt.Sprintf("CmdSetLED(name=%s value=%d)", c.Name, c.Value)
}

// CmdSetBacklight writes the panel brightness.
type CmdSetBacklight struct {
	Value int
}

func (CmdSetBacklight) commandMarker()   {}
func (c CmdSetBacklight) String() string { return fmt.Sprintf("CmdSetBacklight(value=%d)", c.Value) }
