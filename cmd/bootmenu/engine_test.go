package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

type engineHarness struct {
	engine  *Engine
	display *Display
	src     *chanSource
	pub     *recordingPublisher
	reboots atomic.Int32
}

func newEngineHarness(t *testing.T, mutate func(cfg *Config)) *engineHarness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Input.DebounceMS = 0
	cfg.Haptics = HapticsConfig{}
	if mutate != nil {
		mutate(&cfg)
	}

	b := newMemBackend(540, 960, nil, "")
	d := NewDisplay(b, UIParams{FPS: 50, Style: MenuStyle(cfg.Menu.Style)}, testLogger())
	src := newChanSource(16)
	pub := &recordingPublisher{}

	e, err := NewEngine(d, src, nil, pub, EngineConfig{
		Gesture: cfg.ToGestureConfig(),
		Keys:    cfg.Input.Keys,
		FPS:     50,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	h := &engineHarness{engine: e, display: d, src: src, pub: pub}
	e.effects.reboot = func() error {
		h.reboots.Add(1)
		return nil
	}
	return h
}

func (h *engineHarness) run(t *testing.T, ctx context.Context, s MenuSession) <-chan Result {
	t.Helper()
	out := make(chan Result, 1)
	go func() {
		res, err := h.engine.Run(ctx, s)
		if err != nil {
			t.Errorf("Engine.Run: %v", err)
		}
		out <- res
	}()
	waitUntil(t, time.Second, func() bool { return h.display.Snapshot().MenuVisible }, "menu not started")
	return out
}

func (h *engineHarness) press(code evdev.EvCode) {
	h.src.Inject(evKey(code, 1))
	h.src.Inject(evSyn())
	h.src.Inject(evKey(code, 0))
	h.src.Inject(evSyn())
}

func TestEngine_KeysSelectItem(t *testing.T) {
	h := newEngineHarness(t, nil)
	ch := h.run(t, context.Background(), MenuSession{Items: testItems, Countdown: 5 * time.Second})

	h.press(evdev.KEY_VOLUMEDOWN)
	h.press(evdev.KEY_POWER)

	res := waitResult(t, ch)
	if res.Index != 1 || res.Reason != ReasonSelected {
		t.Fatalf("got %+v, want index 1 selected", res)
	}
	if n := len(h.pub.ofType(eventMenuStarted)); n != 1 {
		t.Errorf("menu_started events = %d, want 1", n)
	}
}

func TestEngine_TrackballNavigates(t *testing.T) {
	h := newEngineHarness(t, nil)
	ch := h.run(t, context.Background(), MenuSession{Items: testItems, Initial: 2, Countdown: 5 * time.Second})

	h.src.Inject(evRel(-4))
	h.src.Inject(evSyn())
	h.press(evdev.KEY_ENTER)

	res := waitResult(t, ch)
	if res.Index != 1 {
		t.Fatalf("got %+v, want index 1", res)
	}
}

func TestEngine_TouchSlideAndTap(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Input.GestureSelect = true
	})
	ch := h.run(t, context.Background(), MenuSession{Items: testItems, Countdown: 5 * time.Second})

	// Tap with the overlay hidden toggles it.
	h.src.Inject(evKey(evdev.BTN_TOUCH, 1))
	h.src.Inject(evAbs(evdev.ABS_X, 100))
	h.src.Inject(evAbs(evdev.ABS_Y, 100))
	h.src.Inject(evSyn())
	h.src.Inject(evKey(evdev.BTN_TOUCH, 0))
	h.src.Inject(evSyn())
	waitUntil(t, time.Second, h.display.TextVisible, "tap did not show the log")

	// Slide down one row, then sideways to select.
	h.src.Inject(evKey(evdev.BTN_TOUCH, 1))
	h.src.Inject(evAbs(evdev.ABS_X, 120))
	h.src.Inject(evAbs(evdev.ABS_Y, 120))
	h.src.Inject(evSyn())
	h.src.Inject(evAbs(evdev.ABS_Y, 320))
	h.src.Inject(evSyn())
	h.src.Inject(evAbs(evdev.ABS_X, 420))
	h.src.Inject(evSyn())

	res := waitResult(t, ch)
	if res.Index != 1 || res.Reason != ReasonSelected {
		t.Fatalf("got %+v, want index 1 selected", res)
	}
}

func TestEngine_TouchRowPublishesSelection(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Input.Rows = []TouchRowConfig{{Min: 0, Max: 99}, {Min: 100, Max: 199}}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.run(t, ctx, MenuSession{Items: testItems, Countdown: 5 * time.Second})
	h.display.SetTextVisible(true)

	h.src.Inject(evAbs(evdev.ABS_MT_TRACKING_ID, 1))
	h.src.Inject(evAbs(evdev.ABS_MT_POSITION_X, 10))
	h.src.Inject(evAbs(evdev.ABS_MT_POSITION_Y, 150))
	h.src.Inject(evSyn())
	h.src.Inject(evAbs(evdev.ABS_MT_TRACKING_ID, -1))
	h.src.Inject(evSyn())

	waitUntil(t, time.Second, func() bool { return len(h.pub.ofType(eventSelectionChanged)) == 1 }, "row tap not published")
	ev := h.pub.ofType(eventSelectionChanged)[0]
	data, ok := ev.Data.(wsSelectionChangedData)
	if !ok || data.Selected != 1 || data.Item != testItems[1] {
		t.Errorf("got %+v, want selection 1 %q", ev.Data, testItems[1])
	}
	if sel := h.display.Selection(); sel != 1 {
		t.Errorf("selection = %d, want 1", sel)
	}

	cancel()
	waitResult(t, ch)
}

func TestEngine_ToggleLogKey(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.run(t, ctx, MenuSession{Items: testItems, Countdown: 5 * time.Second})

	h.press(evdev.KEY_BACK)
	waitUntil(t, time.Second, h.display.TextVisible, "back key did not show the log")
	h.press(evdev.KEY_BACK)
	waitUntil(t, time.Second, func() bool { return !h.display.TextVisible() }, "back key did not hide the log")

	cancel()
	if res := waitResult(t, ch); res.Reason != ReasonCanceled {
		t.Errorf("got %+v, want canceled", res)
	}
}

func TestEngine_RebootChord(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Input.Keys.Reboot = []string{"KEY_CAMERA"}
		cfg.Input.Keys.RebootChord = []string{"KEY_VOLUMEUP", "KEY_CAMERA"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.run(t, ctx, MenuSession{Items: testItems, Countdown: 5 * time.Second})

	// Camera alone does not reboot.
	h.press(evdev.KEY_CAMERA)

	// Volume up held, then camera.
	h.src.Inject(evKey(evdev.KEY_VOLUMEUP, 1))
	h.src.Inject(evKey(evdev.KEY_CAMERA, 1))
	h.src.Inject(evSyn())
	waitUntil(t, time.Second, func() bool { return h.reboots.Load() == 1 }, "chord did not reboot")

	time.Sleep(50 * time.Millisecond)
	if n := h.reboots.Load(); n != 1 {
		t.Errorf("reboots = %d, want 1", n)
	}

	cancel()
	waitResult(t, ch)
}

func TestEngine_SourceClosedStillTimesOut(t *testing.T) {
	h := newEngineHarness(t, nil)
	ch := h.run(t, context.Background(), MenuSession{Items: testItems, Default: 2, Countdown: 200 * time.Millisecond})

	h.src.Close()

	res := waitResult(t, ch)
	if res.Index != 2 || res.Reason != ReasonTimedOut {
		t.Fatalf("got %+v, want default by timeout", res)
	}
}

func TestEngine_OutOfRangeCodeNotQueued(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.engine.handleKey(KeyEvent{Code: keyMax + 1, Value: 1})
	if n := h.engine.queue.Len(); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestNewEngine_BadChord(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.Keys.RebootChord = []string{"KEY_NOPE"}
	_, err := NewEngine(nil, newChanSource(1), nil, nil, EngineConfig{Keys: cfg.Input.Keys}, testLogger())
	if err == nil {
		t.Fatalf("expected error for unknown chord key")
	}
}
