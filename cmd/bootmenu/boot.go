package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Booter hands control to a target's boot script.
type Booter struct {
	cfg     BootConfig
	targets []TargetConfig
	logger  *slog.Logger

	// exec runs the prepared command; tests replace it.
	exec func(cmd *exec.Cmd) ([]byte, error)
}

func NewBooter(cfg BootConfig, targets []TargetConfig, logger *slog.Logger) *Booter {
	return &Booter{
		cfg:     cfg,
		targets: targets,
		logger:  logger,
		exec:    func(cmd *exec.Cmd) ([]byte, error) { return cmd.CombinedOutput() },
	}
}

// scriptLine is the shell command line for t: "<script> <adbd> <init>".
func (b *Booter) scriptLine(t TargetConfig) string {
	script := t.Script
	if script == "" {
		script = filepath.Join(b.cfg.ScriptDir, "boot_"+t.ID+".sh")
	}
	return fmt.Sprintf("%s %d %d", ExpandPath(script), t.Adbd, t.Init)
}

// Boot runs the script of target i through the configured shell and waits
// for it. variant is exported to the script as BOOTMENU_VARIANT=1.
func (b *Booter) Boot(ctx context.Context, i int, variant bool) error {
	if i < 0 || i >= len(b.targets) {
		return fmt.Errorf("boot target %d out of range", i)
	}
	t := b.targets[i]
	line := b.scriptLine(t)

	if b.cfg.DryRun {
		b.logger.Info("dry run, not booting", "target", t.ID, "shell", b.cfg.Shell, "command", line)
		return nil
	}

	if b.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(b.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, ExpandPath(b.cfg.Shell), "sh", "-c", line)
	cmd.Env = append(os.Environ(), "BOOTMENU_TARGET="+t.ID)
	if variant {
		cmd.Env = append(cmd.Env, "BOOTMENU_VARIANT=1")
	}

	b.logger.Info("running boot script", "target", t.ID, "command", line)
	out, err := b.exec(cmd)
	b.logOutput(t.ID, out)
	if err != nil {
		return fmt.Errorf("boot %s: %w", t.ID, err)
	}
	return nil
}

func (b *Booter) logOutput(target string, out []byte) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			b.logger.Info("boot script", "target", target, "output", line)
		}
	}
}

// DirectTarget looks for a target marker file. The first marker found is
// removed and its target returned, along with whether the variant marker
// was present (that file is removed too).
func (b *Booter) DirectTarget() (index int, variant bool, ok bool) {
	for i, t := range b.targets {
		if t.Marker == "" || !fileExists(t.Marker) {
			continue
		}
		if err := os.Remove(t.Marker); err != nil {
			b.logger.Warn("remove boot marker failed", "path", t.Marker, "error", err)
		}
		if t.VariantMarker != "" && fileExists(t.VariantMarker) {
			variant = true
			if err := os.Remove(t.VariantMarker); err != nil {
				b.logger.Warn("remove boot marker failed", "path", t.VariantMarker, "error", err)
			}
		}
		return i, variant, true
	}
	return -1, false, false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readBootmode returns the androidboot.mode value from a kernel command
// line file, or "" if it is absent.
func readBootmode(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read kernel cmdline: %w", err)
	}
	for _, f := range strings.Fields(string(b)) {
		if v, ok := strings.CutPrefix(f, "androidboot.mode="); ok {
			return v, nil
		}
	}
	return "", nil
}

// skipBootmode reports whether the menu must stay out of the way: the
// device is charging, or the second init is already running.
func skipBootmode(mode string) bool {
	return mode == "charger" || mode == "bootmenu"
}

// propBypassMode skips reading the prop file.
const propBypassMode = "ap-bp-bypass"
