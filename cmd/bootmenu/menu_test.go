package main

import (
	"context"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

func TestClassify(t *testing.T) {
	m, err := buildKeymap(KeysConfig{
		Up:     []string{"KEY_VOLUMEUP"},
		Down:   []string{"KEY_VOLUMEDOWN"},
		Select: []string{"KEY_POWER"},
		Items:  []string{"KEY_1", "KEY_2"},
	})
	if err != nil {
		t.Fatalf("buildKeymap: %v", err)
	}

	tests := []struct {
		name string
		ev   KeyEvent
		want Action
	}{
		{"up press", KeyEvent{Kind: KeyUp, Code: evdev.KEY_VOLUMEUP, Value: 1}, ActNavigate{Delta: -1}},
		{"down repeat", KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 2}, ActNavigate{Delta: 1}},
		{"down release", KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 0}, ActNone{}},
		{"select", KeyEvent{Kind: KeySelect, Code: evdev.KEY_POWER, Value: 1}, ActSelect{}},
		{"item shortcut", KeyEvent{Code: evdev.KEY_2, Value: 1}, ActPassthrough{Index: 1}},
		{"synthetic shortcut ignored", KeyEvent{Code: evdev.KEY_2, Value: 1, Synthetic: true}, ActNone{}},
		{"unmapped", KeyEvent{Code: evdev.KEY_A, Value: 1}, ActNone{}},
		{"toggle log", KeyEvent{Kind: KeyToggleLog, Code: evdev.KEY_BACK, Value: 1}, ActNone{}},
	}

	for _, tt := range tests {
		if got := classify(tt.ev, m); got != tt.want {
			t.Errorf("%s: classify = %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestExitReasonString(t *testing.T) {
	cases := map[ExitReason]string{
		ReasonSelected: "selected",
		ReasonTimedOut: "timeout",
		ReasonCanceled: "canceled",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", r, got, want)
		}
	}
}

// newTestController wires a controller to a real in-memory display.
func newTestController(t *testing.T, style MenuStyle) (*MenuController, *Display, *KeyQueue, *recordingPublisher) {
	t.Helper()
	b := newMemBackend(540, 960, nil, "")
	d := NewDisplay(b, UIParams{FPS: 25, Style: style}, testLogger())
	m, err := buildKeymap(KeysConfig{
		Up:     []string{"KEY_VOLUMEUP"},
		Down:   []string{"KEY_VOLUMEDOWN"},
		Select: []string{"KEY_POWER"},
		Items:  []string{"KEY_1", "KEY_2", "KEY_3"},
	})
	if err != nil {
		t.Fatalf("buildKeymap: %v", err)
	}
	q := NewKeyQueue(16)
	pub := &recordingPublisher{}
	return NewMenuController(d, q, m, pub, testLogger()), d, q, pub
}

func runSession(t *testing.T, mc *MenuController, s MenuSession) <-chan Result {
	t.Helper()
	out := make(chan Result, 1)
	go func() { out <- mc.Run(context.Background(), s) }()
	return out
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for session result")
	}
	return Result{}
}

func TestMenuController_NavigateAndSelect(t *testing.T) {
	mc, d, q, pub := newTestController(t, MenuStyleList)
	ch := runSession(t, mc, MenuSession{Items: testItems, Initial: 0, Countdown: 5 * time.Second})

	waitUntil(t, time.Second, d.MenuDrawn, "menu not drawn")
	q.Push(KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 1})
	q.Push(KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 0})
	q.Push(KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 1})
	q.Push(KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 1})
	q.Push(KeyEvent{Kind: KeySelect, Code: evdev.KEY_POWER, Value: 1})

	res := waitResult(t, ch)
	if res.Index != 2 || res.Reason != ReasonSelected {
		t.Fatalf("got %+v, want index 2 selected", res)
	}
	if d.Snapshot().MenuVisible {
		t.Errorf("menu still visible after the session")
	}

	// The third down press was clamped and published nothing.
	if n := len(pub.ofType(eventSelectionChanged)); n != 2 {
		t.Errorf("selection_changed events = %d, want 2", n)
	}
	chosen := pub.ofType(eventBootChosen)
	if len(chosen) != 1 {
		t.Fatalf("boot_chosen events = %d, want 1", len(chosen))
	}
	if got := chosen[0].Data.(wsBootChosenData); got.Item != "Custom Recovery" || got.Reason != "selected" {
		t.Errorf("boot_chosen = %+v", got)
	}
}

func TestMenuController_TimeoutBootsDefault(t *testing.T) {
	mc, d, _, _ := newTestController(t, MenuStyleList)
	start := time.Now()
	ch := runSession(t, mc, MenuSession{Items: testItems, Initial: 0, Default: 1, Countdown: 150 * time.Millisecond})

	res := waitResult(t, ch)
	if res.Index != 1 || res.Reason != ReasonTimedOut {
		t.Fatalf("got %+v, want index 1 timeout", res)
	}
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("session ended after %v, before the countdown", elapsed)
	}

	s := d.Snapshot()
	if !s.TextVisible {
		t.Errorf("text not shown after timeout")
	}
	if s.CountdownActive {
		t.Errorf("countdown still active after timeout")
	}
	found := false
	for _, l := range s.Lines {
		if l == timeoutText {
			found = true
		}
	}
	if !found {
		t.Errorf("timeout message missing from log: %q", s.Lines)
	}
}

func TestMenuController_KeysDoNotExtendDeadline(t *testing.T) {
	mc, d, q, _ := newTestController(t, MenuStyleList)
	start := time.Now()
	ch := runSession(t, mc, MenuSession{Items: testItems, Default: 0, Countdown: 300 * time.Millisecond})

	waitUntil(t, time.Second, d.MenuDrawn, "menu not drawn")
	stop := time.After(250 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(20 * time.Millisecond):
			q.Push(KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 1})
		}
	}

	res := waitResult(t, ch)
	if res.Reason != ReasonTimedOut || res.Index != 0 {
		t.Fatalf("got %+v, want default by timeout", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("session ran %v, deadline was extended", elapsed)
	}
}

func TestMenuController_Passthrough(t *testing.T) {
	mc, d, q, _ := newTestController(t, MenuStyleList)
	ch := runSession(t, mc, MenuSession{Items: testItems, Countdown: 5 * time.Second})

	waitUntil(t, time.Second, d.MenuDrawn, "menu not drawn")
	q.Push(KeyEvent{Code: evdev.KEY_3, Value: 1})

	res := waitResult(t, ch)
	if res.Index != 2 || res.Reason != ReasonSelected {
		t.Fatalf("got %+v, want index 2 selected", res)
	}
}

func TestMenuController_MenuOnlyIgnoresShortcuts(t *testing.T) {
	mc, d, q, _ := newTestController(t, MenuStyleList)
	ch := runSession(t, mc, MenuSession{Items: testItems, Default: 0, MenuOnly: true, Countdown: 200 * time.Millisecond})

	waitUntil(t, time.Second, d.MenuDrawn, "menu not drawn")
	q.Push(KeyEvent{Code: evdev.KEY_3, Value: 1})

	res := waitResult(t, ch)
	if res.Index != 0 || res.Reason != ReasonTimedOut {
		t.Fatalf("got %+v, want default by timeout", res)
	}
}

func TestMenuController_ButtonsIgnoreKeysUntilShown(t *testing.T) {
	mc, d, q, _ := newTestController(t, MenuStyleButtons)
	ch := runSession(t, mc, MenuSession{Items: testItems, Countdown: 5 * time.Second})

	waitUntil(t, time.Second, func() bool { return d.Snapshot().MenuVisible }, "menu not started")
	q.Push(KeyEvent{Kind: KeySelect, Code: evdev.KEY_POWER, Value: 1})
	waitUntil(t, time.Second, func() bool { return q.Len() == 0 }, "key not consumed")

	select {
	case res := <-ch:
		t.Fatalf("session ended with %+v before the buttons were shown", res)
	case <-time.After(50 * time.Millisecond):
	}

	d.SetTextVisible(true)
	q.Push(KeyEvent{Kind: KeyDown, Code: evdev.KEY_VOLUMEDOWN, Value: 1})
	q.Push(KeyEvent{Kind: KeySelect, Code: evdev.KEY_POWER, Value: 1})

	res := waitResult(t, ch)
	if res.Index != 1 || res.Reason != ReasonSelected {
		t.Fatalf("got %+v, want index 1 selected", res)
	}
}

func TestMenuController_Cancel(t *testing.T) {
	mc, d, _, pub := newTestController(t, MenuStyleList)
	ctx, cancel := context.WithCancel(context.Background())

	out := make(chan Result, 1)
	go func() { out <- mc.Run(ctx, MenuSession{Items: testItems, Countdown: 10 * time.Second}) }()

	waitUntil(t, time.Second, d.MenuDrawn, "menu not drawn")
	cancel()

	res := waitResult(t, out)
	if res.Index != -1 || res.Reason != ReasonCanceled {
		t.Fatalf("got %+v, want canceled", res)
	}
	if got := pub.ofType(eventBootChosen)[0].Data.(wsBootChosenData); got.Reason != "canceled" {
		t.Errorf("boot_chosen reason = %q, want canceled", got.Reason)
	}
}
