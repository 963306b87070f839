package main

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseProp(t *testing.T) {
	cfg := DefaultConfig()
	in := strings.Join([]string{
		"# bootmenu settings",
		"brightness=80",
		"keypad_light=0",
		"timeout=4",
		"theme=carbon",
		"default=recovery",
		"second_name=CyanogenMod 7.2",
		"second_adbd=1",
		"second_init=1",
		"stock_name=A very long system name that does not fit on one row",
		"no equals sign here",
		"unknown_key=5",
		"ghost_name=Nobody",
		"empty=",
		"",
	}, "\r\n")

	warnings, err := ParseProp(strings.NewReader(in), &cfg)
	if err != nil {
		t.Fatalf("ParseProp: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("got warnings %v, want none", warnings)
	}

	if cfg.Effects.Brightness != 80 || cfg.Effects.KeypadLight != 0 {
		t.Errorf("effects = %+v", cfg.Effects)
	}
	if cfg.Menu.CountdownSec != 4 {
		t.Errorf("countdown = %d, want 4", cfg.Menu.CountdownSec)
	}
	if cfg.Display.Theme != "carbon" {
		t.Errorf("theme = %q, want carbon", cfg.Display.Theme)
	}
	if cfg.Menu.Default != "recovery" {
		t.Errorf("default = %q, want recovery", cfg.Menu.Default)
	}

	second := cfg.Targets[1]
	if second.Name != "CyanogenMod 7.2" || second.Adbd != 1 || second.Init != 1 {
		t.Errorf("second target = %+v", second)
	}
	if n := len([]rune(cfg.Targets[0].Name)); n != maxPropName {
		t.Errorf("stock name length = %d, want %d", n, maxPropName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config invalid after prop file: %v", err)
	}
}

func TestParseProp_UnknownDefaultKept(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := ParseProp(strings.NewReader("default=windows\n"), &cfg); err != nil {
		t.Fatalf("ParseProp: %v", err)
	}
	if cfg.Menu.Default != "stock" {
		t.Errorf("default = %q, want stock", cfg.Menu.Default)
	}
}

func TestParseProp_BadIntegerKeepsDefault(t *testing.T) {
	cfg := DefaultConfig()
	want := cfg.Menu.CountdownSec

	warnings, err := ParseProp(strings.NewReader("theme=x\ntimeout=soon\n"), &cfg)
	if err != nil {
		t.Fatalf("ParseProp: %v", err)
	}
	if cfg.Menu.CountdownSec != want {
		t.Errorf("countdown = %d, want default %d", cfg.Menu.CountdownSec, want)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "line 2") {
		t.Errorf("got warnings %v, want one naming line 2", warnings)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config invalid after bad prop value: %v", err)
	}
}

func TestParseProp_LeadingInteger(t *testing.T) {
	cfg := DefaultConfig()
	warnings, err := ParseProp(strings.NewReader("timeout=10s\nsecond_adbd= 1 \n"), &cfg)
	if err != nil {
		t.Fatalf("ParseProp: %v", err)
	}
	if cfg.Menu.CountdownSec != 10 {
		t.Errorf("countdown = %d, want 10", cfg.Menu.CountdownSec)
	}
	if cfg.Targets[1].Adbd != 1 {
		t.Errorf("second adbd = %d, want 1", cfg.Targets[1].Adbd)
	}
	if len(warnings) != 1 {
		t.Errorf("got warnings %v, want one for the trailing text", warnings)
	}
}

func TestParseProp_TimeoutClamped(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"timeout=900\n", maxCountdownSec},
		{"timeout=-3\n", 0},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		warnings, err := ParseProp(strings.NewReader(tt.in), &cfg)
		if err != nil {
			t.Fatalf("%q: ParseProp: %v", tt.in, err)
		}
		if cfg.Menu.CountdownSec != tt.want {
			t.Errorf("%q: countdown = %d, want %d", tt.in, cfg.Menu.CountdownSec, tt.want)
		}
		if len(warnings) != 1 {
			t.Errorf("%q: got warnings %v, want one", tt.in, warnings)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%q: config invalid: %v", tt.in, err)
		}
	}
}

func TestLoadPropFile_Missing(t *testing.T) {
	cfg := DefaultConfig()
	_, err := LoadPropFile(filepath.Join(t.TempDir(), "bootmenu.prop"), &cfg)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want fs.ErrNotExist", err)
	}
}

func TestLoadPropFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bootmenu.prop", "timeout=0\n")
	cfg := DefaultConfig()
	if _, err := LoadPropFile(path, &cfg); err != nil {
		t.Fatalf("LoadPropFile: %v", err)
	}
	if cfg.Menu.CountdownSec != 0 {
		t.Errorf("countdown = %d, want 0", cfg.Menu.CountdownSec)
	}
}
