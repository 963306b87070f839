package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for bootmenu.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The legacy bootmenu.prop file (see config_prop.go) is
// layered on top of the defaults before the YAML file.
type Config struct {
	// Menu layout and countdown
	Menu MenuConfig `yaml:"menu"`

	// Boot targets, in menu order
	Targets []TargetConfig `yaml:"targets"`

	// Boot handoff
	Boot BootConfig `yaml:"boot"`

	// Drawing backend and theme
	Display DisplayConfig `yaml:"display"`

	// Input devices, keymap and gesture thresholds
	Input InputConfig `yaml:"input"`

	// Haptic pulse lengths
	Haptics HapticsConfig `yaml:"haptics"`

	// sysfs effect sinks
	Effects EffectsConfig `yaml:"effects"`

	// Read-only state mirror
	Mirror MirrorConfig `yaml:"mirror"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type MenuConfig struct {
	Headers      []string `yaml:"headers"`
	CountdownSec int      `yaml:"countdown_sec"` // 0 boots the default without showing the menu
	Default      string   `yaml:"default"`       // target id
	Style        string   `yaml:"style"`         // "list" or "buttons"
	MenuOnly     bool     `yaml:"menu_only"`     // ignore direct item shortcuts
}

// TargetConfig is one bootable system.
type TargetConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Adbd   int    `yaml:"adbd"`
	Init   int    `yaml:"init"`
	Script string `yaml:"script,omitempty"` // defaults to <script_dir>/boot_<id>.sh

	// Marker boots this target directly, without UI, when the file exists.
	// The file is removed first.
	Marker string `yaml:"marker,omitempty"`
	// VariantMarker, when present next to Marker, sets BOOTMENU_VARIANT=1
	// for the boot script.
	VariantMarker string `yaml:"variant_marker,omitempty"`
}

type BootConfig struct {
	Shell     string `yaml:"shell"`
	ScriptDir string `yaml:"script_dir"`
	TimeoutMS int    `yaml:"timeout_ms"` // 0 waits for the script indefinitely
	Cmdline   string `yaml:"cmdline"`    // source of androidboot.mode
	Bootmode  string `yaml:"bootmode,omitempty"`
	DryRun    bool   `yaml:"dry_run,omitempty"`
}

type DisplayConfig struct {
	Backend             string  `yaml:"backend"` // "fb", "mem" or "preview"
	Device              string  `yaml:"device"`
	ThemeDir            string  `yaml:"theme_dir"`
	Theme               string  `yaml:"theme"`
	FPS                 int     `yaml:"fps"`
	InstallFrames       int     `yaml:"install_frames"`
	IndeterminateFrames int     `yaml:"indeterminate_frames"`
	OverlayX            int     `yaml:"overlay_x"`
	OverlayY            int     `yaml:"overlay_y"`
	FontSize            float64 `yaml:"font_size"`
	Width               int     `yaml:"width"`  // mem and preview backends only
	Height              int     `yaml:"height"` // mem and preview backends only
	PreviewScale        int     `yaml:"preview_scale,omitempty"`
}

type InputConfig struct {
	Devices []string   `yaml:"devices,omitempty"` // empty: auto-detect
	Grab    bool       `yaml:"grab"`
	Keys    KeysConfig `yaml:"keys"`

	TrackballThreshold int              `yaml:"trackball_threshold"`
	TouchThresholdX    int              `yaml:"touch_threshold_x"`
	TouchThresholdY    int              `yaml:"touch_threshold_y"`
	GestureSelect      bool             `yaml:"gesture_select"`
	DebounceMS         int              `yaml:"debounce_ms"`
	Rows               []TouchRowConfig `yaml:"rows,omitempty"`
}

// KeysConfig maps key names (KEY_HOME, home, 102) to logical kinds.
type KeysConfig struct {
	Up        []string `yaml:"up"`
	Down      []string `yaml:"down"`
	Select    []string `yaml:"select"`
	ToggleLog []string `yaml:"toggle_log"`
	Reboot    []string `yaml:"reboot,omitempty"`
	// RebootChord keys must all be held for a reboot key to fire.
	RebootChord []string `yaml:"reboot_chord,omitempty"`
	// Items binds a key directly to the menu item at the same index.
	Items []string `yaml:"items,omitempty"`
}

type TouchRowConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type HapticsConfig struct {
	NavPulseMS  int `yaml:"nav_pulse_ms"`
	BackPulseMS int `yaml:"back_pulse_ms"`
}

type EffectsConfig struct {
	SysfsRoot     string `yaml:"sysfs_root"`
	VibratorPath  string `yaml:"vibrator"`
	BacklightPath string `yaml:"backlight"`
	ButtonLED     string `yaml:"button_led"`
	Brightness    int    `yaml:"brightness"`
	KeypadLight   int    `yaml:"keypad_light"`
}

type MirrorConfig struct {
	Listen string `yaml:"listen"` // empty disables the mirror
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Kmsg     bool   `yaml:"kmsg"`
	KmsgPath string `yaml:"kmsg_path"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Menu: MenuConfig{
			Headers:      []string{"   Boot Menu"},
			CountdownSec: defaultCountdownSec,
			Default:      "stock",
			Style:        string(MenuStyleList),
		},
		Targets: []TargetConfig{
			{ID: "stock", Name: "Stock System", Marker: "/preinstall/.stock_mode"},
			{ID: "second", Name: "Second System", Marker: "/preinstall/.second_mode"},
			{ID: "recovery", Name: "Custom Recovery", Marker: "/preinstall/.recovery_mode", VariantMarker: "/preinstall/.recovery_second"},
		},
		Boot: BootConfig{
			Shell:     defaultShell,
			ScriptDir: defaultScriptDir,
			Cmdline:   defaultCmdline,
		},
		Display: DisplayConfig{
			Backend:             "fb",
			Device:              defaultFramebuf,
			ThemeDir:            defaultThemeDir,
			Theme:               "default",
			FPS:                 defaultFPS,
			InstallFrames:       defaultInstallFrames,
			IndeterminateFrames: defaultIndeterminateFrames,
			OverlayX:            defaultOverlayOffsetX,
			OverlayY:            defaultOverlayOffsetY,
			FontSize:            defaultFontSize,
			Width:               540,
			Height:              960,
			PreviewScale:        1,
		},
		Input: InputConfig{
			Keys: KeysConfig{
				Up:        []string{"KEY_HOME", "KEY_VOLUMEUP", "KEY_UP"},
				Down:      []string{"KEY_MENU", "KEY_VOLUMEDOWN", "KEY_DOWN"},
				Select:    []string{"KEY_SEARCH", "KEY_END", "KEY_ENTER", "KEY_POWER"},
				ToggleLog: []string{"KEY_BACK"},
			},
			TrackballThreshold: defaultTrackballThreshold,
			TouchThresholdX:    defaultTouchThresholdX,
			TouchThresholdY:    defaultTouchThresholdY,
			DebounceMS:         defaultTouchDebounceMS,
		},
		Haptics: HapticsConfig{
			NavPulseMS:  defaultNavPulseMS,
			BackPulseMS: defaultBackPulseMS,
		},
		Effects: EffectsConfig{
			SysfsRoot:     defaultSysfsRoot,
			VibratorPath:  defaultVibrator,
			BacklightPath: defaultBacklight,
			ButtonLED:     defaultButtonLED,
			Brightness:    100,
			KeypadLight:   1,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Kmsg:     true,
			KmsgPath: defaultKmsgPath,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of base.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string, base Config) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := base

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values applied on top of the config file.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	Backend      *string
	Framebuffer  *string
	ThemeDir     *string
	Theme        *string
	CountdownSec *int
	Default      *string
	Style        *string
	Devices      *string
	Bootmode     *string
	DryRun       *bool
	MirrorListen *string
	LogLevel     *string
	Kmsg         *bool
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if
// it holds the zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Backend != nil {
		cfg.Display.Backend = *o.Backend
	}
	if o.Framebuffer != nil {
		cfg.Display.Device = *o.Framebuffer
	}
	if o.ThemeDir != nil {
		cfg.Display.ThemeDir = *o.ThemeDir
	}
	if o.Theme != nil {
		cfg.Display.Theme = *o.Theme
	}

	if o.CountdownSec != nil {
		cfg.Menu.CountdownSec = *o.CountdownSec
	}
	if o.Default != nil {
		cfg.Menu.Default = *o.Default
	}
	if o.Style != nil {
		cfg.Menu.Style = *o.Style
	}

	if o.Devices != nil {
		cfg.Input.Devices = splitList(*o.Devices)
	}

	if o.Bootmode != nil {
		cfg.Boot.Bootmode = *o.Bootmode
	}
	if o.DryRun != nil {
		cfg.Boot.DryRun = *o.DryRun
	}

	if o.MirrorListen != nil {
		cfg.Mirror.Listen = *o.MirrorListen
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.Kmsg != nil {
		cfg.Logging.Kmsg = *o.Kmsg
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, prop file, YAML file and flags are applied.
func (c *Config) Validate() error {
	// Menu
	if c.Menu.CountdownSec < 0 || c.Menu.CountdownSec > maxCountdownSec {
		return fmt.Errorf("menu.countdown_sec must be between 0 and %d", maxCountdownSec)
	}
	switch MenuStyle(c.Menu.Style) {
	case MenuStyleList, MenuStyleButtons:
	default:
		return fmt.Errorf("menu.style must be %q or %q", MenuStyleList, MenuStyleButtons)
	}

	// Targets
	if len(c.Targets) == 0 {
		return errors.New("targets must not be empty")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.ID == "" {
			return fmt.Errorf("targets[%d].id is empty", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("targets[%d].id %q is duplicated", i, t.ID)
		}
		seen[t.ID] = true
		if t.Name == "" {
			return fmt.Errorf("targets[%d].name is empty", i)
		}
	}
	if c.DefaultIndex() < 0 {
		return fmt.Errorf("menu.default %q does not name a target", c.Menu.Default)
	}

	// Boot
	if c.Boot.Shell == "" {
		return errors.New("boot.shell must not be empty")
	}
	if c.Boot.TimeoutMS < 0 {
		return errors.New("boot.timeout_ms must be >= 0")
	}

	// Display
	switch c.Display.Backend {
	case "fb":
		if c.Display.Device == "" {
			return errors.New("display.device must not be empty for the fb backend")
		}
	case "mem", "preview":
		if c.Display.Width <= 0 || c.Display.Height <= 0 {
			return errors.New("display.width and display.height must be > 0")
		}
	default:
		return fmt.Errorf("display.backend must be one of fb, mem, preview (got %q)", c.Display.Backend)
	}
	if c.Display.FPS <= 0 || c.Display.FPS > 1000/int(minFrameDelay/time.Millisecond) {
		return fmt.Errorf("display.fps must be between 1 and %d", 1000/int(minFrameDelay/time.Millisecond))
	}
	if c.Display.InstallFrames < 0 {
		return errors.New("display.install_frames must be >= 0")
	}
	if c.Display.IndeterminateFrames < 0 {
		return errors.New("display.indeterminate_frames must be >= 0")
	}
	if c.Display.FontSize < 0 {
		return errors.New("display.font_size must be >= 0")
	}

	// Input
	if c.Input.TrackballThreshold <= 0 {
		return errors.New("input.trackball_threshold must be > 0")
	}
	if c.Input.TouchThresholdX <= 0 || c.Input.TouchThresholdY <= 0 {
		return errors.New("input.touch_threshold_x and input.touch_threshold_y must be > 0")
	}
	if c.Input.DebounceMS < 0 {
		return errors.New("input.debounce_ms must be >= 0")
	}
	for i, r := range c.Input.Rows {
		if r.Min > r.Max {
			return fmt.Errorf("input.rows[%d]: min must be <= max", i)
		}
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Haptics
	if c.Haptics.NavPulseMS < 0 || c.Haptics.BackPulseMS < 0 {
		return errors.New("haptics pulse lengths must be >= 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// DefaultIndex returns the index of the default target, or -1.
func (c *Config) DefaultIndex() int {
	for i, t := range c.Targets {
		if t.ID == c.Menu.Default {
			return i
		}
	}
	return -1
}

// ItemNames returns the menu items in target order.
func (c *Config) ItemNames() []string {
	out := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = t.Name
	}
	return out
}

// ThemePath is the directory holding the theme bitmaps.
func (c *Config) ThemePath() string {
	dir := ExpandPath(c.Display.ThemeDir)
	if c.Display.Theme == "" {
		return dir
	}
	return filepath.Join(dir, c.Display.Theme)
}

// ToGestureConfig converts the input and haptics sections into decoder
// thresholds.
func (c *Config) ToGestureConfig() GestureConfig {
	rows := make([]TouchRow, 0, len(c.Input.Rows))
	for _, r := range c.Input.Rows {
		rows = append(rows, TouchRow{Min: int32(r.Min), Max: int32(r.Max)})
	}
	return GestureConfig{
		TrackballThreshold: int32(c.Input.TrackballThreshold),
		ThresholdX:         int32(c.Input.TouchThresholdX),
		ThresholdY:         int32(c.Input.TouchThresholdY),
		GestureSelect:      c.Input.GestureSelect,
		Debounce:           time.Duration(c.Input.DebounceMS) * time.Millisecond,
		NavPulse:           time.Duration(c.Haptics.NavPulseMS) * time.Millisecond,
		BackPulse:          time.Duration(c.Haptics.BackPulseMS) * time.Millisecond,
		Rows:               rows,
	}
}

// ToUIParams converts the display section into rendering parameters.
func (c *Config) ToUIParams() UIParams {
	return UIParams{
		FPS:                 c.Display.FPS,
		InstallFrames:       c.Display.InstallFrames,
		IndeterminateFrames: c.Display.IndeterminateFrames,
		OverlayX:            c.Display.OverlayX,
		OverlayY:            c.Display.OverlayY,
		Style:               MenuStyle(c.Menu.Style),
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
