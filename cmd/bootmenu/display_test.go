package main

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDisplay(t *testing.T, style MenuStyle) (*Display, *memBackend, *fakeClock) {
	t.Helper()
	b := newMemBackend(540, 960, nil, "")
	d := NewDisplay(b, UIParams{FPS: 25, Style: style}, testLogger())
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	d.now = clk.Now
	return d, b, clk
}

var testItems = []string{"Stock System", "Second System", "Custom Recovery"}

func TestDisplay_StartMenuClampsSelection(t *testing.T) {
	d, _, _ := newTestDisplay(t, MenuStyleList)

	d.StartMenu([]string{"Boot menu"}, testItems, 7)
	if got := d.Selection(); got != 2 {
		t.Errorf("Selection() = %d, want 2", got)
	}
	d.StartMenu(nil, testItems, -3)
	if got := d.Selection(); got != 0 {
		t.Errorf("Selection() = %d, want 0", got)
	}
	if !d.MenuDrawn() {
		t.Errorf("list menu not drawn")
	}
}

func TestDisplay_MoveSelectionRedrawsOnlyOnChange(t *testing.T) {
	d, b, _ := newTestDisplay(t, MenuStyleList)
	d.StartMenu(nil, testItems, 2)

	before := b.Flips()
	if got := d.MoveSelection(+1); got != 2 {
		t.Fatalf("MoveSelection(+1) at end = %d, want 2", got)
	}
	if b.Flips() != before {
		t.Errorf("flips = %d after clamped move, want %d", b.Flips(), before)
	}

	if got := d.MoveSelection(-1); got != 1 {
		t.Fatalf("MoveSelection(-1) = %d, want 1", got)
	}
	if b.Flips() != before+1 {
		t.Errorf("flips = %d after move, want %d", b.Flips(), before+1)
	}

	if got := d.SelectIndex(0); got != 0 {
		t.Errorf("SelectIndex(0) = %d, want 0", got)
	}
}

func TestDisplay_EndMenuStopsNavigation(t *testing.T) {
	d, _, _ := newTestDisplay(t, MenuStyleList)
	d.StartMenu(nil, testItems, 1)
	d.EndMenu()

	if d.MenuDrawn() {
		t.Errorf("menu still drawn after EndMenu")
	}
	if got := d.MoveSelection(+1); got != 1 {
		t.Errorf("MoveSelection after EndMenu = %d, want 1", got)
	}
}

func TestDisplay_ButtonsStyleNeedsText(t *testing.T) {
	d, _, _ := newTestDisplay(t, MenuStyleButtons)
	d.StartMenu(nil, testItems, 0)

	if d.MenuDrawn() {
		t.Fatalf("buttons drawn before the overlay was shown")
	}
	if !d.ToggleText() {
		t.Fatalf("ToggleText() = false, want true")
	}
	if !d.MenuDrawn() {
		t.Errorf("buttons not drawn with overlay shown")
	}
	if !d.TextEverVisible() {
		t.Errorf("TextEverVisible() = false after showing text")
	}
	d.ToggleText()
	if !d.TextEverVisible() {
		t.Errorf("TextEverVisible() reset by hiding text")
	}
}

func TestDisplay_SetProgressIgnoresSubPixelSteps(t *testing.T) {
	d, b, _ := newTestDisplay(t, MenuStyleList)
	d.ShowProgress(1, 0)

	d.SetProgress(0.5)
	flips := b.Flips()

	// Same, lower and sub-pixel values are ignored.
	d.SetProgress(0.5)
	d.SetProgress(0.4)
	d.SetProgress(0.501)
	if b.Flips() != flips {
		t.Errorf("flips = %d after no-op updates, want %d", b.Flips(), flips)
	}

	d.SetProgress(0.6)
	if b.Flips() != flips+1 {
		t.Errorf("flips = %d after real update, want %d", b.Flips(), flips+1)
	}
	if got := d.Snapshot().Progress; got != 0.6 {
		t.Errorf("progress = %v, want 0.6", got)
	}
}

func TestDisplay_PagesIdenticalTracking(t *testing.T) {
	d, _, _ := newTestDisplay(t, MenuStyleList)

	d.SetBackground(IconNone)
	if d.Snapshot().PagesIdentical {
		t.Fatalf("pages identical after full redraw")
	}

	d.ShowProgress(0.5, 0)
	if !d.Snapshot().PagesIdentical {
		t.Fatalf("pages not identical after progress redraw")
	}

	d.SetProgress(0.5)
	if !d.Snapshot().PagesIdentical {
		t.Errorf("progress-only redraw cleared pages identical")
	}

	d.StartMenu(nil, testItems, 0)
	if d.Snapshot().PagesIdentical {
		t.Errorf("pages identical after menu redraw")
	}
}

func TestDisplay_ShowProgressAppendsScopes(t *testing.T) {
	d, _, _ := newTestDisplay(t, MenuStyleList)

	d.ShowProgress(0.25, 0)
	d.ShowProgress(0.5, 0)
	s := d.Snapshot()
	if s.ScopeStart != 0.25 || s.ScopeSize != 0.5 {
		t.Errorf("scope = (%v, %v), want (0.25, 0.5)", s.ScopeStart, s.ScopeSize)
	}

	// The last scope is clipped to what is left of the bar.
	d.ShowProgress(0.9, 0)
	s = d.Snapshot()
	if s.ScopeStart != 0.75 || s.ScopeSize != 0.25 {
		t.Errorf("scope = (%v, %v), want (0.75, 0.25)", s.ScopeStart, s.ScopeSize)
	}

	d.ResetProgress()
	if got := d.Snapshot().ProgressKind; got != "none" {
		t.Errorf("progress kind after reset = %q, want none", got)
	}
}

func TestDisplay_TimedProgressCreeps(t *testing.T) {
	d, _, clk := newTestDisplay(t, MenuStyleList)
	d.ShowProgress(1, 10*time.Second)

	clk.Advance(5 * time.Second)
	if !d.Tick() {
		t.Fatalf("Tick() = false, want redraw")
	}
	if got := d.Snapshot().Progress; got != 0.5 {
		t.Errorf("progress = %v, want 0.5", got)
	}

	clk.Advance(20 * time.Second)
	d.Tick()
	if got := d.Snapshot().Progress; got != 1 {
		t.Errorf("progress = %v, want 1", got)
	}
	if d.Tick() {
		t.Errorf("Tick() = true with nothing left to animate")
	}
}

func TestDisplay_Countdown(t *testing.T) {
	d, _, clk := newTestDisplay(t, MenuStyleList)
	d.SetCountdown(clk.Now().Add(10 * time.Second))

	if s, active := d.Countdown(); s != 10 || !active {
		t.Fatalf("Countdown() = (%d, %v), want (10, true)", s, active)
	}

	clk.Advance(1500 * time.Millisecond)
	if !d.Tick() {
		t.Fatalf("Tick() = false after a second passed")
	}
	if s, _ := d.Countdown(); s != 9 {
		t.Errorf("Countdown() = %d, want 9", s)
	}

	clk.Advance(100 * time.Millisecond)
	if d.Tick() {
		t.Errorf("Tick() = true without a visible change")
	}

	d.ClearCountdown()
	if _, active := d.Countdown(); active {
		t.Errorf("countdown still active after ClearCountdown")
	}
}

func TestDisplay_TextRing(t *testing.T) {
	tl := newTextLog(3, 4)

	tl.write("a\nb\nc\n")
	if got, want := tl.lines(), []string{"b", "c", ""}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines() = %q, want %q", got, want)
	}

	// Long lines wrap onto the next row.
	tl = newTextLog(3, 4)
	tl.write("abcdef")
	if got, want := tl.lines(), []string{"", "abcd", "ef"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines() = %q, want %q", got, want)
	}

	if newTextLog(0, 0).write("x") {
		t.Errorf("write into empty log reported success")
	}
}

func TestDisplay_PrintLineAndClip(t *testing.T) {
	d, _, _ := newTestDisplay(t, MenuStyleList)
	d.PrintLine("Booting Stock System...")

	lines := d.Snapshot().Lines
	if got := lines[len(lines)-2]; got != "Booting Stock System..." {
		t.Errorf("last written row = %q, want the booting message", got)
	}

	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	d.StartMenu(nil, []string{string(long)}, 0)
	if n := len([]rune(d.Snapshot().Items[0])); n >= 200 {
		t.Errorf("item not clipped, %d runes", n)
	}
}

func TestDisplay_IndeterminateAnimates(t *testing.T) {
	b := newMemBackend(540, 960, nil, "")
	d := NewDisplay(b, UIParams{FPS: 25, IndeterminateFrames: 3}, testLogger())

	d.ShowIndeterminate()
	if got := d.Snapshot().ProgressKind; got != "indeterminate" {
		t.Fatalf("progress kind = %q, want indeterminate", got)
	}
	for i := 0; i < 3; i++ {
		if !d.Tick() {
			t.Fatalf("tick %d did not redraw", i)
		}
	}

	// The overlay hides the animation.
	d.SetTextVisible(true)
	if d.Tick() {
		t.Errorf("Tick() = true with text shown")
	}
}
