package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "2.0.0"

func printVersion() {
	fmt.Printf("bootmenu v%s\n", version)
	fmt.Println("Countdown boot selection menu for framebuffer devices")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  bootmenu [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Shows a boot target menu with a countdown on the framebuffer, reads keys,")
	fmt.Println("  trackball and touch input from evdev devices and runs the boot script of")
	fmt.Println("  the chosen target (or the default one when the countdown expires).")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -prop string")
	fmt.Printf("        Legacy bootmenu.prop file, read before -config (default %q)\n", defaultPropFile)
	fmt.Println()
	fmt.Println("  -backend string")
	fmt.Println("        Display backend: fb, mem, preview (default \"fb\")")
	fmt.Println()
	fmt.Println("  -fb string")
	fmt.Printf("        Framebuffer device (default %q)\n", defaultFramebuf)
	fmt.Println()
	fmt.Println("  -theme-dir string, -theme string")
	fmt.Println("        Theme bitmap location (<theme-dir>/<theme>/*.png)")
	fmt.Println()
	fmt.Println("  -countdown int")
	fmt.Printf("        Seconds before the default target boots; 0 boots it without UI (default %d)\n", defaultCountdownSec)
	fmt.Println()
	fmt.Println("  -default string")
	fmt.Println("        Default target id (default \"stock\")")
	fmt.Println()
	fmt.Println("  -style string")
	fmt.Println("        Menu style: list, buttons (default \"list\")")
	fmt.Println()
	fmt.Println("  -devices string")
	fmt.Println("        Comma-separated input devices (default: auto-detect)")
	fmt.Println()
	fmt.Println("  -bootmode string")
	fmt.Println("        Override androidboot.mode from the kernel command line")
	fmt.Println()
	fmt.Println("  -dry-run")
	fmt.Println("        Log the boot command instead of running it")
	fmt.Println()
	fmt.Println("  -mirror-listen string")
	fmt.Println("        Serve the read-only state mirror on this address (e.g. 127.0.0.1:8089)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -kmsg")
	fmt.Println("        Also write log records to the kernel log (default true)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run on the device with defaults")
	fmt.Println("  bootmenu")
	fmt.Println()
	fmt.Println("  # Try a theme on the desktop (build with -tags preview)")
	fmt.Println("  bootmenu -backend preview -theme-dir ./themes -dry-run -kmsg=false")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "YAML config file")
		propPath     = flag.String("prop", defaultPropFile, "Legacy bootmenu.prop file")
		backend      = flag.String("backend", "fb", "Display backend: fb, mem, preview")
		framebuffer  = flag.String("fb", defaultFramebuf, "Framebuffer device")
		themeDir     = flag.String("theme-dir", defaultThemeDir, "Theme directory")
		theme        = flag.String("theme", "default", "Theme name")
		countdown    = flag.Int("countdown", defaultCountdownSec, "Countdown in seconds")
		defaultID    = flag.String("default", "stock", "Default target id")
		style        = flag.String("style", string(MenuStyleList), "Menu style: list, buttons")
		devices      = flag.String("devices", "", "Comma-separated input devices")
		bootmode     = flag.String("bootmode", "", "Override androidboot.mode")
		dryRun       = flag.Bool("dry-run", false, "Log the boot command instead of running it")
		mirrorListen = flag.String("mirror-listen", "", "State mirror listen address")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		kmsg         = flag.Bool("kmsg", true, "Also log to the kernel log")
		_            = flag.Bool("version", false, "Print version and exit")
		_            = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only flags given on the command line override the config file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			o.Backend = backend
		case "fb":
			o.Framebuffer = framebuffer
		case "theme-dir":
			o.ThemeDir = themeDir
		case "theme":
			o.Theme = theme
		case "countdown":
			o.CountdownSec = countdown
		case "default":
			o.Default = defaultID
		case "style":
			o.Style = style
		case "devices":
			o.Devices = devices
		case "bootmode":
			o.Bootmode = bootmode
		case "dry-run":
			o.DryRun = dryRun
		case "mirror-listen":
			o.MirrorListen = mirrorListen
		case "log-level":
			o.LogLevel = logLevelStr
		case "kmsg":
			o.Kmsg = kmsg
		}
	})

	cfg := DefaultConfig()

	// The prop file is skipped in bypass mode, which is only known from the
	// flag or the kernel command line at this point.
	mode := *bootmode
	if mode == "" {
		m, err := readBootmode(cfg.Boot.Cmdline)
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
		mode = m
	}
	if mode != propBypassMode && *propPath != "" {
		// The legacy file never stops the boot: bad values keep their
		// defaults and an unreadable file is skipped.
		warnings, err := LoadPropFile(*propPath, &cfg)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", *propPath, w)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
	}

	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	var kmsgW io.Writer
	if cfg.Logging.Kmsg {
		f, err := openKmsg(cfg.Logging.KmsgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		} else {
			defer f.Close()
			kmsgW = f
		}
	}
	logger := setupLogger(logLevel, kmsgW)

	if cfg.Boot.Bootmode != "" {
		mode = cfg.Boot.Bootmode
	}
	if skipBootmode(mode) {
		logger.Info("second init or charger mode, bootmenu disabled", "bootmode", mode)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bootmenu failed", "error", err)
		os.Exit(1)
	}
}

// run performs one boot: direct or disabled mode without UI, otherwise a
// menu session followed by the boot script of the chosen target.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	sink := newSysfsSink(cfg.Effects)
	booter := NewBooter(cfg.Boot, cfg.Targets, logger)
	items := cfg.ItemNames()
	defIdx := cfg.DefaultIndex()

	buttonLED := func(v int) {
		runEffect(&Effects{sink: sink}, CmdSetLED{Name: cfg.Effects.ButtonLED, Value: v}, logger)
	}
	buttonLED(cfg.Effects.KeypadLight)
	runEffect(&Effects{sink: sink}, CmdSetBacklight{Value: cfg.Effects.Brightness}, logger)

	if i, variant, ok := booter.DirectTarget(); ok {
		buttonLED(0)
		logger.Info("direct mode, skipping menu", "target", items[i], "variant", variant)
		return booter.Boot(ctx, i, variant)
	}

	if cfg.Menu.CountdownSec == 0 {
		buttonLED(0)
		logger.Info("menu disabled, booting default", "target", items[defIdx])
		return booter.Boot(ctx, defIdx, false)
	}

	if cfg.Display.Backend == "preview" && !previewAvailable {
		return errPreviewUnavailable
	}

	face := loadFace(cfg.Display.FontSize, defaultFontDPI, logger)

	var (
		backend Backend
		mem     *memBackend
	)
	switch cfg.Display.Backend {
	case "fb":
		fb, err := openFramebuffer(ExpandPath(cfg.Display.Device), face, cfg.ThemePath())
		if err != nil {
			return err
		}
		backend = fb
	default:
		mem = newMemBackend(cfg.Display.Width, cfg.Display.Height, face, cfg.ThemePath())
		backend = mem
	}

	display := NewDisplay(backend, cfg.ToUIParams(), logger)
	defer display.Close()
	display.SetBackground(IconInstalling)

	var (
		source EventSource
		inject *chanSource
	)
	if cfg.Display.Backend == "preview" {
		inject = newChanSource(64)
		source = inject
	} else if src, err := openEventSource(cfg.Input, logger); err != nil {
		// Without input the countdown still boots the default.
		logger.Error("no input devices, menu will time out", "error", err)
		inject = newChanSource(1)
		source = inject
	} else {
		source = src
	}
	defer source.Close()

	g, gctx := errgroup.WithContext(ctx)
	mirrorCtx, stopMirror := context.WithCancel(gctx)
	defer stopMirror()

	var pub Publisher = nopPublisher{}
	if cfg.Mirror.Listen != "" {
		mirror := NewMirror(logger, display.Snapshot, HubConfig{})
		pub = mirror
		g.Go(func() error {
			if err := mirror.Run(mirrorCtx, cfg.Mirror.Listen); err != nil {
				logger.Warn("state mirror stopped", "error", err)
			}
			return nil
		})
	}

	engine, err := NewEngine(display, source, sink, pub, EngineConfig{
		Gesture: cfg.ToGestureConfig(),
		Keys:    cfg.Input.Keys,
		FPS:     cfg.Display.FPS,
	}, logger)
	if err != nil {
		return err
	}

	session := MenuSession{
		Headers:   cfg.Menu.Headers,
		Items:     items,
		Initial:   defIdx,
		MenuOnly:  cfg.Menu.MenuOnly,
		Default:   defIdx,
		Countdown: time.Duration(cfg.Menu.CountdownSec) * time.Second,
	}

	var res Result
	if cfg.Display.Backend == "preview" {
		sessionCtx, endSession := context.WithCancel(gctx)
		previewCtx, closeWindow := context.WithCancel(gctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer closeWindow()
			res, err = engine.Run(sessionCtx, session)
		}()
		perr := runPreview(previewCtx, mem, inject, cfg.Display.PreviewScale)
		endSession()
		<-done
		closeWindow()
		if perr != nil {
			logger.Warn("preview window failed", "error", perr)
		}
	} else {
		res, err = engine.Run(gctx, session)
	}

	// The mirror flushes on the way out, so boot_chosen reaches clients
	// before g.Wait returns.
	stopMirror()
	if werr := g.Wait(); werr != nil {
		logger.Warn("background task failed", "error", werr)
	}
	if err != nil {
		return err
	}

	if res.Reason == ReasonCanceled {
		logger.Info("menu canceled, not booting")
		return nil
	}

	display.PrintLine(fmt.Sprintf("Booting %s...", items[res.Index]))
	logger.Info("booting", "target", items[res.Index], "reason", res.Reason.String())

	// Keep the bar moving while the script runs.
	display.ShowIndeterminate()
	tickCtx, stopTicker := context.WithCancel(ctx)
	go runProgressTicker(tickCtx, display, cfg.Display.FPS, nil)

	bootErr := booter.Boot(ctx, res.Index, false)
	stopTicker()
	buttonLED(0)
	return bootErr
}
