package main

import "time"

// Linux input limits (from <linux/input-event-codes.h>)
const (
	keyMax = 0x2ff

	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Engine defaults
const (
	keyQueueCapacity = 256

	defaultFPS                 = 25
	defaultInstallFrames       = 7
	defaultIndeterminateFrames = 6
	defaultOverlayOffsetX      = 23
	defaultOverlayOffsetY      = 83

	// Lower bound on the progress ticker sleep so a slow redraw never turns
	// the ticker into a busy loop.
	minFrameDelay = 20 * time.Millisecond

	defaultCountdownSec = 10
	maxCountdownSec     = 600

	defaultTrackballThreshold = 3
	defaultTouchThresholdX    = 80
	defaultTouchThresholdY    = 80
	defaultTouchDebounceMS    = 200

	defaultNavPulseMS  = 20
	defaultBackPulseMS = 40
)

// Text overlay geometry
const (
	maxTextRows = 16
	maxTextCols = 48

	defaultFontSize = 22.0
	defaultFontDPI  = 72.0
)

// Boot handoff defaults
const (
	defaultThemeDir   = "/preinstall/bootmenu/themes"
	defaultScriptDir  = "/preinstall/bootmenu/script"
	defaultShell      = "/preinstall/bootmenu/binary/busybox"
	defaultSysfsRoot  = "/sys"
	defaultVibrator   = "class/timed_output/vibrator/enable"
	defaultBacklight  = "class/backlight/430_540_960_amoled_bl/brightness"
	defaultButtonLED  = "button-backlight"
	defaultKmsgPath   = "/dev/kmsg"
	defaultCmdline    = "/proc/cmdline"
	defaultFramebuf   = "/dev/fb0"
	defaultPropFile   = "/preinstall/bootmenu/config/bootmenu.prop"
	countdownHintText = "auto-boot in %ds.."
	tapHintText       = "Tap the screen for boot options"
	timeoutText       = "Boot selection timeout..."
)
