package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// sysfsSink writes integer values to sysfs attributes below root.
// Tests point root at a temporary directory.
type sysfsSink struct {
	root      string
	vibrator  string
	backlight string
}

func newSysfsSink(cfg EffectsConfig) *sysfsSink {
	return &sysfsSink{
		root:      cfg.SysfsRoot,
		vibrator:  cfg.VibratorPath,
		backlight: cfg.BacklightPath,
	}
}

func (s *sysfsSink) write(rel string, value int) error {
	if rel == "" {
		return errSinkDisabled
	}
	path := rel
	if !filepath.IsAbs(rel) {
		path = filepath.Join(s.root, rel)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(value)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *sysfsSink) Vibrate(ms int) error { return s.write(s.vibrator, ms) }

func (s *sysfsSink) SetBacklight(v int) error { return s.write(s.backlight, v) }

func (s *sysfsSink) SetLED(name string, v int) error {
	if name == "" {
		return errSinkDisabled
	}
	return s.write(filepath.Join("class/leds", name, "brightness"), v)
}

// rebootNow flushes filesystems and restarts the machine.
func rebootNow() error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

// effectDisplay is the part of the display the effect runner may touch.
type effectDisplay interface {
	Selection() int
	SelectIndex(i int) int
	Item(i int) string
	ToggleText() bool
}

// Effects bundles the sinks a Command can be executed against.
type Effects struct {
	sink    *sysfsSink
	display effectDisplay
	reboot  func() error
	// pub, when set, hears about highlight moves made by touch rows.
	pub     Publisher
}

// runEffect executes a single Command. Failures are logged and otherwise
// absorbed; no effect is allowed to stop the input loop.
func runEffect(fx *Effects, cmd Command, logger *slog.Logger) {
	if fx == nil {
		logger.Warn("effect dropped, no sinks configured", "command", cmd.String())
		return
	}

	var err error
	switch c := cmd.(type) {
	case CmdVibrate:
		if fx.sink != nil {
			err = fx.sink.Vibrate(int(c.Duration.Milliseconds()))
		}

	case CmdHighlight:
		if fx.display != nil {
			prev := fx.display.Selection()
			sel := fx.display.SelectIndex(c.Index)
			logger.Debug("touch highlight", "row", c.Index, "selected", sel)
			if sel != prev && fx.pub != nil {
				fx.pub.Publish(eventSelectionChanged, wsSelectionChangedData{Selected: sel, Item: fx.display.Item(sel)})
			}
		}

	case CmdToggleText:
		if fx.display != nil {
			visible := fx.display.ToggleText()
			logger.Debug("text overlay toggled", "visible", visible)
		}

	case CmdReboot:
		logger.Warn("reboot requested from keypad")
		if fx.reboot != nil {
			err = fx.reboot()
		}

	case CmdSetLED:
		if fx.sink != nil {
			err = fx.sink.SetLED(c.Name, c.Value)
		}

	case CmdSetBacklight:
		if fx.sink != nil {
			err = fx.sink.SetBacklight(c.Value)
		}

	default:
		err = errUnknownCommand{cmd: cmd}
	}

	if err != nil && !errors.Is(err, errSinkDisabled) {
		logger.Warn("effect failed", "command", cmd.String(), "error", err)
	}
}

var errSinkDisabled = errors.New("sink disabled")

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
