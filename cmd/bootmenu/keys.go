package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	evdev "github.com/holoplot/go-evdev"
)

// KeyKind is the logical meaning of a key event, independent of the physical
// input (key, trackball, touch) that produced it.
type KeyKind int

const (
	KeyRaw KeyKind = iota
	KeyUp
	KeyDown
	KeySelect
	KeyToggleLog
	KeyReboot
)

func (k KeyKind) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeySelect:
		return "select"
	case KeyToggleLog:
		return "toggle_log"
	case KeyReboot:
		return "reboot"
	default:
		return "raw"
	}
}

// KeyEvent is one logical key transition.
// Synthetic events come from the trackball or touch decoder and only ever
// carry a press.
type KeyEvent struct {
	Kind      KeyKind
	Code      evdev.EvCode
	Value     int32
	Synthetic bool
}

func (e KeyEvent) pressed() bool {
	return e.Value == evValuePress || e.Value == evValueRepeat
}

func (e KeyEvent) String() string {
	return fmt.Sprintf("KeyEvent(kind=%s code=%s value=%d synthetic=%v)", e.Kind, keyName(e.Code), e.Value, e.Synthetic)
}

// Keymap resolves hardware key codes to logical kinds and item shortcuts.
type Keymap struct {
	kinds map[evdev.EvCode]KeyKind
	items map[evdev.EvCode]int
}

// Kind returns the logical kind for code, or KeyRaw if it is not mapped.
func (m Keymap) Kind(code evdev.EvCode) KeyKind {
	if k, ok := m.kinds[code]; ok {
		return k
	}
	return KeyRaw
}

// Item returns the menu index bound to code as a direct shortcut.
func (m Keymap) Item(code evdev.EvCode) (int, bool) {
	i, ok := m.items[code]
	return i, ok
}

// buildKeymap resolves the configured key names. Later sections win when a
// code is listed twice.
func buildKeymap(cfg KeysConfig) (Keymap, error) {
	m := Keymap{
		kinds: make(map[evdev.EvCode]KeyKind),
		items: make(map[evdev.EvCode]int),
	}

	groups := []struct {
		field string
		names []string
		kind  KeyKind
	}{
		{"input.keys.up", cfg.Up, KeyUp},
		{"input.keys.down", cfg.Down, KeyDown},
		{"input.keys.select", cfg.Select, KeySelect},
		{"input.keys.toggle_log", cfg.ToggleLog, KeyToggleLog},
		{"input.keys.reboot", cfg.Reboot, KeyReboot},
	}
	for _, g := range groups {
		for _, name := range g.names {
			code, err := parseKeyCode(name)
			if err != nil {
				return Keymap{}, fmt.Errorf("%s: %w", g.field, err)
			}
			m.kinds[code] = g.kind
		}
	}

	for i, name := range cfg.Items {
		if name == "" {
			continue
		}
		code, err := parseKeyCode(name)
		if err != nil {
			return Keymap{}, fmt.Errorf("input.keys.items[%d]: %w", i, err)
		}
		m.items[code] = i
	}

	return m, nil
}

// parseKeyCode accepts "KEY_HOME", "home", "BTN_TOUCH" or a numeric code.
func parseKeyCode(name string) (evdev.EvCode, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, fmt.Errorf("empty key name")
	}
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		if n > keyMax {
			return 0, fmt.Errorf("key code %d out of range (max %d)", n, keyMax)
		}
		return evdev.EvCode(n), nil
	}

	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "KEY_") && !strings.HasPrefix(upper, "BTN_") {
		upper = "KEY_" + upper
	}
	code, ok := evdev.KEYFromString[upper]
	if !ok {
		return 0, fmt.Errorf("unknown key %q", name)
	}
	return code, nil
}

func keyName(code evdev.EvCode) string {
	if int(code) > keyMax {
		return strconv.Itoa(int(code))
	}
	return evdev.CodeName(evdev.EV_KEY, code)
}

// KeyTable records which hardware keys are currently held down.
// Only real key transitions are recorded.
type KeyTable struct {
	mu   sync.RWMutex
	held [keyMax + 1]bool
}

func (t *KeyTable) Set(code evdev.EvCode, down bool) {
	if int(code) > keyMax {
		return
	}
	t.mu.Lock()
	t.held[code] = down
	t.mu.Unlock()
}

func (t *KeyTable) Pressed(code evdev.EvCode) bool {
	if int(code) > keyMax {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.held[code]
}

// AllPressed reports whether every code in codes is held. An empty set is
// never considered pressed.
func (t *KeyTable) AllPressed(codes []evdev.EvCode) bool {
	if len(codes) == 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range codes {
		if int(c) > keyMax || !t.held[c] {
			return false
		}
	}
	return true
}
