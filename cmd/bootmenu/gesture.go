package main

import (
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// TouchRow is a vertical band of the touch panel bound to one menu row.
type TouchRow struct {
	Min int32
	Max int32
}

// GestureConfig holds the decoder thresholds.
type GestureConfig struct {
	TrackballThreshold int32
	ThresholdX         int32
	ThresholdY         int32
	GestureSelect      bool
	Debounce           time.Duration
	NavPulse           time.Duration
	BackPulse          time.Duration
	Rows               []TouchRow
}

// GestureState is the decoder's private accumulator set. It is owned by the
// input loop and never shared.
type GestureState struct {
	relSum int32

	x, y         int32
	baseX, baseY int32
	haveBase     bool
	// pending marks a frame that carries a position or starts a contact.
	// The kernel drops repeated axis values, so a contact landing on the
	// stored coordinates reports none and still needs a baseline.
	pending      bool

	contact bool
	// travel is set once a contact has moved past either threshold; such a
	// contact is never a tap.
	travel bool

	lastSynthetic time.Time
	lastRow       int
}

// DecodeResult is what one hardware event turned into.
type DecodeResult struct {
	Keys     []KeyEvent
	Commands []Command
}

// GestureDecoder turns raw evdev events into logical key events plus effect
// commands. It performs no I/O.
type GestureDecoder struct {
	cfg    GestureConfig
	keymap Keymap
	st     GestureState
}

func NewGestureDecoder(cfg GestureConfig, keymap Keymap) *GestureDecoder {
	if cfg.TrackballThreshold <= 0 {
		cfg.TrackballThreshold = defaultTrackballThreshold
	}
	if cfg.ThresholdX <= 0 {
		cfg.ThresholdX = defaultTouchThresholdX
	}
	if cfg.ThresholdY <= 0 {
		cfg.ThresholdY = defaultTouchThresholdY
	}
	return &GestureDecoder{
		cfg:    cfg,
		keymap: keymap,
		st:     GestureState{lastRow: -1},
	}
}

// State returns a copy of the accumulators.
func (d *GestureDecoder) State() GestureState { return d.st }

// Decode consumes one hardware event. textVisible tells the decoder whether
// the log overlay currently covers the screen, which changes what a tap means.
func (d *GestureDecoder) Decode(ev evdev.InputEvent, now time.Time, textVisible bool) DecodeResult {
	var res DecodeResult

	switch ev.Type {
	case evdev.EV_SYN:
		if ev.Code == evdev.SYN_REPORT {
			d.closeFrame(now, &res)
		}

	case evdev.EV_REL:
		if ev.Code == evdev.REL_Y {
			d.trackball(ev.Value, &res)
		}

	case evdev.EV_ABS:
		d.touchAxis(ev, now, textVisible, &res)

	case evdev.EV_KEY:
		d.st.relSum = 0
		if ev.Code == evdev.BTN_TOUCH {
			if ev.Value > 0 {
				d.touchBegin()
			} else {
				d.closeFrame(now, &res)
				d.touchEnd(now, textVisible, &res)
			}
		}
		res.Keys = append(res.Keys, KeyEvent{
			Kind:  d.keymap.Kind(ev.Code),
			Code:  ev.Code,
			Value: ev.Value,
		})

	default:
		// Anything else interrupts trackball motion.
		d.st.relSum = 0
	}

	return res
}

func (d *GestureDecoder) trackball(v int32, res *DecodeResult) {
	d.st.relSum += v
	switch {
	case d.st.relSum > d.cfg.TrackballThreshold:
		d.st.relSum = 0
		d.emit(res, KeyDown, evdev.KEY_DOWN, d.cfg.NavPulse)
	case d.st.relSum < -d.cfg.TrackballThreshold:
		d.st.relSum = 0
		d.emit(res, KeyUp, evdev.KEY_UP, d.cfg.NavPulse)
	}
}

func (d *GestureDecoder) touchAxis(ev evdev.InputEvent, now time.Time, textVisible bool, res *DecodeResult) {
	switch ev.Code {
	case evdev.ABS_MT_POSITION_X, evdev.ABS_X:
		d.st.x = ev.Value
		d.st.pending = true

	case evdev.ABS_MT_POSITION_Y, evdev.ABS_Y:
		d.st.y = ev.Value
		d.st.pending = true

	case evdev.ABS_MT_PRESSURE, evdev.ABS_PRESSURE:
		if ev.Value > 0 {
			d.touchBegin()
			d.closeFrame(now, res)
			return
		}
		d.closeFrame(now, res)
		d.touchEnd(now, textVisible, res)

	case evdev.ABS_MT_TRACKING_ID:
		if ev.Value >= 0 {
			d.touchBegin()
			return
		}
		d.closeFrame(now, res)
		d.touchEnd(now, textVisible, res)
	}
}

func (d *GestureDecoder) touchBegin() {
	if d.st.contact {
		return
	}
	d.st.contact = true
	d.st.travel = false
	d.st.haveBase = false
	d.st.pending = true
}

// closeFrame evaluates both axes of the positions reported since the last
// frame together, so a diagonal move is judged as one motion.
func (d *GestureDecoder) closeFrame(now time.Time, res *DecodeResult) {
	if !d.st.pending {
		return
	}
	d.st.pending = false

	// Panels that report positions without pressure or tracking ids still
	// count as touching while positions arrive.
	d.st.contact = true

	if !d.st.haveBase {
		d.settle()
		return
	}

	dx := d.st.x - d.st.baseX
	dy := d.st.y - d.st.baseY
	ax, ay := abs32(dx), abs32(dy)
	tx, ty := d.cfg.ThresholdX, d.cfg.ThresholdY

	if ax > tx || ay > ty {
		d.st.travel = true
	}

	switch {
	case ax > tx && ay <= ty:
		d.settle()
		if d.cfg.GestureSelect && d.debounced(now) {
			d.emit(res, KeySelect, evdev.KEY_ENTER, d.cfg.NavPulse)
		}

	case ay > ty && ax <= tx:
		d.settle()
		if !d.debounced(now) {
			return
		}
		if dy > 0 {
			d.emit(res, KeyDown, evdev.KEY_DOWN, d.cfg.NavPulse)
		} else {
			d.emit(res, KeyUp, evdev.KEY_UP, d.cfg.NavPulse)
		}
	}
}

// touchEnd handles contact loss. A contact that never travelled is a tap.
func (d *GestureDecoder) touchEnd(now time.Time, textVisible bool, res *DecodeResult) {
	if !d.st.contact {
		return
	}
	tap := !d.st.travel

	d.st.contact = false
	d.st.travel = false
	d.st.haveBase = false
	d.st.pending = false

	if !tap {
		return
	}

	if !textVisible {
		if d.debounced(now) {
			d.st.lastRow = -1
			d.emit(res, KeyToggleLog, evdev.KEY_BACK, d.cfg.BackPulse)
		}
		return
	}

	row := d.rowAt(d.st.y)
	if row < 0 || !d.debounced(now) {
		return
	}
	res.Commands = append(res.Commands, CmdHighlight{Index: row})
	if row == d.st.lastRow {
		d.emit(res, KeySelect, evdev.KEY_ENTER, d.cfg.NavPulse)
	} else if d.cfg.NavPulse > 0 {
		res.Commands = append(res.Commands, CmdVibrate{Duration: d.cfg.NavPulse})
	}
	d.st.lastRow = row
}

func (d *GestureDecoder) settle() {
	d.st.baseX = d.st.x
	d.st.baseY = d.st.y
	d.st.haveBase = true
}

// debounced reports whether a touch-synthesized event may fire at now, and
// records it if so.
func (d *GestureDecoder) debounced(now time.Time) bool {
	if d.cfg.Debounce > 0 && !d.st.lastSynthetic.IsZero() && now.Sub(d.st.lastSynthetic) < d.cfg.Debounce {
		return false
	}
	d.st.lastSynthetic = now
	return true
}

func (d *GestureDecoder) rowAt(y int32) int {
	for i, r := range d.cfg.Rows {
		if y >= r.Min && y <= r.Max {
			return i
		}
	}
	return -1
}

func (d *GestureDecoder) emit(res *DecodeResult, kind KeyKind, code evdev.EvCode, pulse time.Duration) {
	res.Keys = append(res.Keys, KeyEvent{
		Kind:      kind,
		Code:      code,
		Value:     evValuePress,
		Synthetic: true,
	})
	if pulse > 0 {
		res.Commands = append(res.Commands, CmdVibrate{Duration: pulse})
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
