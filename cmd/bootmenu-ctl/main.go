package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bendahl/uinput"
	evdev "github.com/holoplot/go-evdev"
)

// ============================================================================
// bootmenu-ctl - Virtual keypad for the boot menu
// ============================================================================
// Creates a uinput keyboard and taps keys on it. The boot menu picks the
// device up like any other keypad, so this drives a running menu over adb
// or a serial console.
//
// Usage:
//   bootmenu-ctl down
//   bootmenu-ctl -repeat 2 up
//   bootmenu-ctl select
//   bootmenu-ctl key KEY_VOLUMEDOWN
//
// Options:
//   -device PATH    uinput device node (default: /dev/uinput)
//   -name NAME      name of the virtual keyboard (default: bootmenu-ctl)
//   -settle MS      wait after creating the device (default: 500)
//   -repeat N       tap the key N times (default: 1)
//   -delay MS       pause between taps (default: 80)
// ============================================================================

type options struct {
	device string
	name   string
	settle time.Duration
	repeat int
	delay  time.Duration
}

func main() {
	opts := options{
		device: "/dev/uinput",
		name:   "bootmenu-ctl",
		settle: 500 * time.Millisecond,
		repeat: 1,
		delay:  80 * time.Millisecond,
	}

	args, err := parseOptions(os.Args[1:], &opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var code int

	switch args[0] {
	case "up":
		code = uinput.KeyUp

	case "down":
		code = uinput.KeyDown

	case "select", "enter":
		code = uinput.KeyEnter

	case "back", "log":
		code = uinput.KeyBack

	case "key":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: key requires a key name or code\n")
			os.Exit(1)
		}
		code, err = resolveKey(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := tapKey(opts, code); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

// parseOptions consumes leading options and returns the remaining arguments.
func parseOptions(args []string, opts *options) ([]string, error) {
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		name := strings.TrimLeft(args[0], "-")
		if name == "h" || name == "help" {
			return args, nil
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("-%s requires an argument", name)
		}
		val := args[1]

		switch name {
		case "device":
			opts.device = val
		case "name":
			opts.name = val
		case "settle", "delay", "repeat":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid -%s value: %q", name, val)
			}
			switch name {
			case "settle":
				opts.settle = time.Duration(n) * time.Millisecond
			case "delay":
				opts.delay = time.Duration(n) * time.Millisecond
			case "repeat":
				if n == 0 {
					return nil, fmt.Errorf("-repeat must be at least 1")
				}
				opts.repeat = n
			}
		default:
			return nil, fmt.Errorf("unknown option: %s", args[0])
		}
		args = args[2:]
	}
	return args, nil
}

// resolveKey accepts a kernel key name (KEY_VOLUMEUP, or just VOLUMEUP) or a
// numeric key code.
func resolveKey(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n > 0x2ff {
			return 0, fmt.Errorf("key code %d out of range", n)
		}
		return n, nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "KEY_") {
		name = "KEY_" + name
	}
	code, ok := evdev.KEYFromString[name]
	if !ok {
		return 0, fmt.Errorf("unknown key name: %s", s)
	}
	return int(code), nil
}

func tapKey(opts options, code int) error {
	kbd, err := uinput.CreateKeyboard(opts.device, []byte(opts.name))
	if err != nil {
		return fmt.Errorf("create virtual keyboard on %s: %w", opts.device, err)
	}
	defer kbd.Close()

	// Readers only see the device once it has been announced.
	time.Sleep(opts.settle)

	for i := 0; i < opts.repeat; i++ {
		if i > 0 {
			time.Sleep(opts.delay)
		}
		if err := kbd.KeyPress(code); err != nil {
			return fmt.Errorf("press key %d: %w", code, err)
		}
	}

	// Let the release reach the reader before the device disappears.
	time.Sleep(opts.delay)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `bootmenu-ctl - Drive the boot menu through a virtual keypad

Usage:
  bootmenu-ctl [options] <command> [args]

Options:
  -device PATH     uinput device node (default: /dev/uinput)
  -name NAME       virtual keyboard name (default: bootmenu-ctl)
  -settle MS       wait after creating the device (default: 500)
  -repeat N        tap the key N times (default: 1)
  -delay MS        pause between taps (default: 80)

Commands:
  up               Move the highlight up
  down             Move the highlight down
  select           Choose the highlighted entry
  back             Toggle the log text
  key <name|code>  Tap any key, e.g. KEY_VOLUMEUP or 115

Notes:
  The boot menu scans input devices when it starts. Unless it was given an
  explicit -devices list, start the menu after creating the keypad or keep
  a keypad alive with a long -settle.
`)
}
