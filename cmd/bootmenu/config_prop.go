package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// maxPropName is the longest target name the prop file may set.
const maxPropName = 32

// LoadPropFile reads a legacy bootmenu.prop file into cfg. A missing file is
// reported as an fs.ErrNotExist error so callers can ignore it. Bad values
// never fail the load; they come back as warnings.
func LoadPropFile(path string, cfg *Config) ([]string, error) {
	f, err := os.Open(ExpandPath(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	warnings, err := ParseProp(f, cfg)
	if err != nil {
		return warnings, fmt.Errorf("%s: %w", path, err)
	}
	return warnings, nil
}

// ParseProp applies key=value lines to cfg. Lines starting with '#' and
// lines without '=' are skipped, as are unknown keys. A value that is not
// usable keeps the previous setting and is reported in warnings; only a read
// failure is an error.
func ParseProp(r io.Reader, cfg *Config) ([]string, error) {
	var warnings []string
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" || text[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		if w := applyProp(cfg, key, value); w != "" {
			warnings = append(warnings, fmt.Sprintf("line %d: %s", line, w))
		}
	}
	return warnings, sc.Err()
}

// applyProp sets one key and returns a warning, or "" when the value was
// taken as written.
func applyProp(cfg *Config, key, value string) string {
	switch key {
	case "brightness":
		return propInt(key, value, &cfg.Effects.Brightness)
	case "keypad_light":
		return propInt(key, value, &cfg.Effects.KeypadLight)
	case "timeout":
		w := propInt(key, value, &cfg.Menu.CountdownSec)
		switch {
		case cfg.Menu.CountdownSec < 0:
			cfg.Menu.CountdownSec = 0
			w = fmt.Sprintf("%s: %q clamped to 0", key, value)
		case cfg.Menu.CountdownSec > maxCountdownSec:
			cfg.Menu.CountdownSec = maxCountdownSec
			w = fmt.Sprintf("%s: %q clamped to %d", key, value, maxCountdownSec)
		}
		return w
	case "theme":
		cfg.Display.Theme = value
	case "default":
		// Unknown values keep the previous default.
		if cfg.targetByID(value) != nil {
			cfg.Menu.Default = value
		}
	default:
		id, field, ok := strings.Cut(key, "_")
		if !ok {
			return ""
		}
		t := cfg.targetByID(id)
		if t == nil {
			return ""
		}
		switch field {
		case "name":
			if r := []rune(value); len(r) > maxPropName {
				value = string(r[:maxPropName])
			}
			t.Name = value
		case "adbd":
			return propInt(key, value, &t.Adbd)
		case "init":
			return propInt(key, value, &t.Init)
		}
	}
	return ""
}

// propInt takes the leading integer of value, so "10s" reads as 10. Without
// one, dst keeps its value.
func propInt(key, value string, dst *int) string {
	s := strings.TrimSpace(value)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return fmt.Sprintf("%s: no integer in %q, keeping %d", key, value, *dst)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return fmt.Sprintf("%s: %q out of range, keeping %d", key, value, *dst)
	}
	*dst = n
	if end < len(s) {
		return fmt.Sprintf("%s: trailing text in %q ignored", key, value)
	}
	return ""
}

func (c *Config) targetByID(id string) *TargetConfig {
	for i := range c.Targets {
		if c.Targets[i].ID == id {
			return &c.Targets[i]
		}
	}
	return nil
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
