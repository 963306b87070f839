package main

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ============================================================================
// Display state
// ============================================================================
//
// Display owns everything that ends up on screen. Each public mutator takes
// the lock, changes state and redraws before releasing it, so the panel never
// shows a mix of two states. The progress ticker shares the same lock.
//
// ============================================================================

// Icon selects the centered background image.
type Icon int

const (
	IconNone Icon = iota
	IconInstalling
)

// MenuStyle picks how the menu is laid out.
type MenuStyle string

const (
	// MenuStyleList draws the menu as a highlighted list at the top of the
	// screen whether or not the log overlay is shown.
	MenuStyleList MenuStyle = "list"
	// MenuStyleButtons draws large touch buttons, only while the overlay is
	// shown; until then a tap hint is displayed.
	MenuStyleButtons MenuStyle = "buttons"
)

type progressKind int

const (
	progressNone progressKind = iota
	progressIndeterminate
	progressDeterminate
)

func (k progressKind) String() string {
	switch k {
	case progressIndeterminate:
		return "indeterminate"
	case progressDeterminate:
		return "determinate"
	default:
		return "none"
	}
}

type progressState struct {
	kind       progressKind
	scopeStart float64
	scopeSize  float64
	value      float64
	start      time.Time
	duration   time.Duration
}

// total is the filled fraction of the whole bar.
func (p progressState) total() float64 {
	return p.scopeStart + p.value*p.scopeSize
}

type menuState struct {
	headers  []string
	items    []string
	selected int
	visible  bool
}

type countdownState struct {
	deadline time.Time
	shown    int
	active   bool
}

// UIParams are the static rendering parameters.
type UIParams struct {
	FPS                 int
	InstallFrames       int
	IndeterminateFrames int
	OverlayX            int
	OverlayY            int
	Style               MenuStyle
}

// Display is the render-state manager.
type Display struct {
	mu sync.Mutex

	backend Backend
	res     resources
	params  UIParams
	logger  *slog.Logger
	now     func() time.Time

	icon      Icon
	progress  progressState
	text      *textLog
	menu      menuState
	countdown countdownState

	textVisible     bool
	textEverVisible bool

	installFrame       int
	indeterminateFrame int

	// pagesIdentical is set when the last frame differs from the one before
	// it only in the progress bar, so a progress update may redraw just the
	// bar.
	pagesIdentical bool

	redraws int
}

// NewDisplay loads theme resources from the backend and sizes the text log
// to the panel.
func NewDisplay(b Backend, params UIParams, logger *slog.Logger) *Display {
	if params.FPS <= 0 {
		params.FPS = defaultFPS
	}
	if params.Style == "" {
		params.Style = MenuStyleList
	}

	cw, lh := b.TextMetrics()
	rows, cols := 0, 0
	if lh > 0 {
		rows = min(b.Height()/lh, maxTextRows)
	}
	if cw > 0 {
		cols = min(b.Width()/cw, maxTextCols-1)
	}

	d := &Display{
		backend: b,
		params:  params,
		logger:  logger,
		now:     time.Now,
		text:    newTextLog(rows, cols),
	}
	d.res = loadResources(b, &d.params, logger)
	return d
}

// ============================================================================
// Mutators
// ============================================================================

func (d *Display) SetBackground(icon Icon) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.icon = icon
	d.updateScreenLocked()
}

// StartMenu shows a menu. The initial selection is clamped into range.
func (d *Display) StartMenu(headers, items []string, initial int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.menu.headers = d.clipLines(headers)
	d.menu.items = d.clipLines(items)
	d.menu.selected = clampIndex(initial, len(d.menu.items))
	d.menu.visible = len(d.menu.items) > 0
	d.updateScreenLocked()
}

// MoveSelection moves the highlight by delta, clamped, and returns the new
// index. Nothing is redrawn if the clamped index did not change.
func (d *Display) MoveSelection(delta int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectLocked(d.menu.selected + delta)
}

// SelectIndex moves the highlight to i, clamped, and returns the new index.
func (d *Display) SelectIndex(i int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectLocked(i)
}

func (d *Display) selectLocked(i int) int {
	if !d.menu.visible {
		return d.menu.selected
	}
	i = clampIndex(i, len(d.menu.items))
	if i != d.menu.selected {
		d.menu.selected = i
		d.updateScreenLocked()
	}
	return d.menu.selected
}

func (d *Display) Selection() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.menu.selected
}

// Item returns the label of menu item i, or "" when out of range.
func (d *Display) Item(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.menu.items) {
		return ""
	}
	return d.menu.items[i]
}

func (d *Display) EndMenu() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.menu.visible {
		d.menu.visible = false
		d.updateScreenLocked()
	}
}

// MenuDrawn reports whether the menu is currently on screen and therefore
// accepting navigation.
func (d *Display) MenuDrawn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.menuDrawnLocked()
}

func (d *Display) menuDrawnLocked() bool {
	if !d.menu.visible {
		return false
	}
	return d.params.Style != MenuStyleButtons || d.textVisible
}

// ShowProgress appends a new determinate scope of the given portion after the
// previous one. The bar creeps through the scope over duration even without
// SetProgress calls.
func (d *Display) ShowProgress(portion float64, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.progress.scopeStart + d.progress.scopeSize
	if start > 1 {
		start = 1
	}
	portion = math.Max(0, math.Min(portion, 1-start))

	d.progress = progressState{
		kind:       progressDeterminate,
		scopeStart: start,
		scopeSize:  portion,
		start:      d.now(),
		duration:   duration,
	}
	d.updateProgressLocked()
}

// ShowIndeterminate switches the bar to the animated indeterminate style.
func (d *Display) ShowIndeterminate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress.kind = progressIndeterminate
	d.updateProgressLocked()
}

// SetProgress sets the fraction of the current scope. Values that would not
// move the bar by at least one pixel are ignored.
func (d *Display) SetProgress(fraction float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fraction = math.Max(0, math.Min(fraction, 1))
	if d.progress.kind != progressDeterminate || fraction <= d.progress.value {
		return
	}
	scale := float64(d.res.barWidth(d.backend)) * d.progress.scopeSize
	if int(d.progress.value*scale) == int(fraction*scale) {
		return
	}
	d.progress.value = fraction
	d.updateProgressLocked()
}

func (d *Display) ResetProgress() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress = progressState{}
	d.updateScreenLocked()
}

// Printf appends formatted text to the log. A newline or a full row starts
// the next row, evicting the oldest one.
func (d *Display) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.text.write(s) {
		d.updateScreenLocked()
	}
}

// PrintLine appends one line to the log.
func (d *Display) PrintLine(s string) {
	d.Printf("%s\n", s)
}

func (d *Display) SetTextVisible(visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setTextVisibleLocked(visible)
}

// ToggleText flips the overlay and returns the new visibility.
func (d *Display) ToggleText() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setTextVisibleLocked(!d.textVisible)
	return d.textVisible
}

func (d *Display) setTextVisibleLocked(visible bool) {
	d.textVisible = visible
	if visible {
		d.textEverVisible = true
	}
	d.updateScreenLocked()
}

func (d *Display) TextVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textVisible
}

func (d *Display) TextEverVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textEverVisible
}

// SetCountdown shows the remaining seconds until deadline. The ticker keeps
// the number current.
func (d *Display) SetCountdown(deadline time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.countdown = countdownState{
		deadline: deadline,
		shown:    secondsLeft(d.now(), deadline),
		active:   true,
	}
	d.updateScreenLocked()
}

// Countdown returns the seconds currently shown.
func (d *Display) Countdown() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countdown.shown, d.countdown.active
}

func (d *Display) ClearCountdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.countdown.active {
		return
	}
	d.countdown = countdownState{}
	d.updateScreenLocked()
}

// ============================================================================
// Ticker step
// ============================================================================

// Tick advances animations and timed progress. It redraws only when
// something moved and reports whether it did.
func (d *Display) Tick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	redraw := false

	// The overlay covers the animation and makes redraws expensive.
	if d.icon == IconInstalling && d.params.InstallFrames > 0 && !d.textVisible {
		d.installFrame = (d.installFrame + 1) % d.params.InstallFrames
		redraw = true
	}

	if d.progress.kind == progressIndeterminate && d.params.IndeterminateFrames > 0 && !d.textVisible {
		d.indeterminateFrame = (d.indeterminateFrame + 1) % d.params.IndeterminateFrames
		redraw = true
	}

	if d.progress.kind == progressDeterminate && d.progress.duration > 0 {
		p := float64(now.Sub(d.progress.start)) / float64(d.progress.duration)
		if p > 1 {
			p = 1
		}
		if p > d.progress.value {
			d.progress.value = p
			redraw = true
		}
	}

	if d.countdown.active {
		if s := secondsLeft(now, d.countdown.deadline); s != d.countdown.shown {
			d.countdown.shown = s
			// The countdown text lives outside the bar.
			d.pagesIdentical = false
			redraw = true
		}
	}

	if redraw {
		d.updateProgressLocked()
	}
	return redraw
}

// ============================================================================
// Snapshot
// ============================================================================

// DisplaySnapshot is a copy of the render state for observers and tests.
type DisplaySnapshot struct {
	Icon             Icon
	MenuVisible      bool
	MenuDrawn        bool
	Headers          []string
	Items            []string
	Selected         int
	TextVisible      bool
	TextEverVisible  bool
	ProgressKind     string
	ScopeStart       float64
	ScopeSize        float64
	Progress         float64
	CountdownSeconds int
	CountdownActive  bool
	Lines            []string
	PagesIdentical   bool
	InstallFrame     int
	Redraws          int
}

func (d *Display) Snapshot() DisplaySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DisplaySnapshot{
		Icon:             d.icon,
		MenuVisible:      d.menu.visible,
		MenuDrawn:        d.menuDrawnLocked(),
		Headers:          append([]string(nil), d.menu.headers...),
		Items:            append([]string(nil), d.menu.items...),
		Selected:         d.menu.selected,
		TextVisible:      d.textVisible,
		TextEverVisible:  d.textEverVisible,
		ProgressKind:     d.progress.kind.String(),
		ScopeStart:       d.progress.scopeStart,
		ScopeSize:        d.progress.scopeSize,
		Progress:         d.progress.value,
		CountdownSeconds: d.countdown.shown,
		CountdownActive:  d.countdown.active,
		Lines:            d.text.lines(),
		PagesIdentical:   d.pagesIdentical,
		InstallFrame:     d.installFrame,
		Redraws:          d.redraws,
	}
}

// Close releases the backend.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.res = resources{}
	return d.backend.Close()
}

// ============================================================================
// Redraw helpers (call with mu held)
// ============================================================================

func (d *Display) updateScreenLocked() {
	d.drawScreenLocked()
	d.flipLocked()
}

// updateProgressLocked redraws only the bar when the previous frame was
// otherwise identical, and the whole screen when it was not.
func (d *Display) updateProgressLocked() {
	if d.textVisible || !d.pagesIdentical {
		d.drawScreenLocked()
		d.pagesIdentical = true
	} else {
		d.drawProgressLocked()
	}
	d.flipLocked()
}

func (d *Display) flipLocked() {
	d.redraws++
	if err := d.backend.Flip(); err != nil {
		d.logger.Warn("display flip failed", "error", err)
	}
}

func (d *Display) clipLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	limit := d.text.cols - 1
	for _, l := range lines {
		r := []rune(l)
		if limit > 0 && len(r) > limit {
			r = r[:limit]
		}
		out = append(out, string(r))
	}
	return out
}

func clampIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// secondsLeft rounds up so the display reaches 0 only at the deadline.
func secondsLeft(now, deadline time.Time) int {
	rem := deadline.Sub(now)
	if rem <= 0 {
		return 0
	}
	return int((rem + time.Second - 1) / time.Second)
}

// ============================================================================
// Text log ring
// ============================================================================

// textLog is a fixed ring of rows. The row being written is always shown at
// the bottom; top is the oldest row still on screen.
type textLog struct {
	rows, cols    int
	buf           [][]rune
	row, col, top int
}

func newTextLog(rows, cols int) *textLog {
	t := &textLog{rows: rows, cols: cols}
	t.buf = make([][]rune, rows)
	for i := range t.buf {
		t.buf[i] = make([]rune, 0, max(cols, 0))
	}
	if rows > 0 {
		t.top = 1 % rows
	}
	return t
}

// write appends s and reports whether the log can hold text at all.
func (t *textLog) write(s string) bool {
	if t.rows <= 0 || t.cols <= 0 {
		return false
	}
	for _, r := range s {
		if r == '\n' || len(t.buf[t.row]) >= t.cols {
			t.row = (t.row + 1) % t.rows
			t.buf[t.row] = t.buf[t.row][:0]
			if t.row == t.top {
				t.top = (t.top + 1) % t.rows
			}
		}
		if r != '\n' {
			t.buf[t.row] = append(t.buf[t.row], r)
		}
	}
	return true
}

// lines returns the rows in display order, oldest first.
func (t *textLog) lines() []string {
	out := make([]string, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		out = append(out, string(t.buf[(i+t.top)%t.rows]))
	}
	return out
}
