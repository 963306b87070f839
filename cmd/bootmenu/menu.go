package main

import (
	"context"
	"log/slog"
	"time"
)

// ==============================
// Actions
// ==============================

// Action is what a key means to a running menu session.
type Action interface {
	actionMarker()
}

// ActNavigate moves the highlight by Delta rows.
type ActNavigate struct {
	Delta int
}

// ActSelect chooses the highlighted item.
type ActSelect struct{}

// ActNone ignores the key.
type ActNone struct{}

// ActPassthrough chooses item Index directly.
type ActPassthrough struct {
	Index int
}

func (ActNavigate) actionMarker()    {}
func (ActSelect) actionMarker()      {}
func (ActNone) actionMarker()        {}
func (ActPassthrough) actionMarker() {}

// classify maps a queued key onto an Action. Releases never act.
func classify(ev KeyEvent, keymap Keymap) Action {
	if !ev.pressed() {
		return ActNone{}
	}
	switch ev.Kind {
	case KeyUp:
		return ActNavigate{Delta: -1}
	case KeyDown:
		return ActNavigate{Delta: +1}
	case KeySelect:
		return ActSelect{}
	}
	if !ev.Synthetic {
		if i, ok := keymap.Item(ev.Code); ok {
			return ActPassthrough{Index: i}
		}
	}
	return ActNone{}
}

// ==============================
// Session
// ==============================

// MenuSession describes one selection round.
type MenuSession struct {
	Headers  []string
	Items    []string
	Initial  int
	MenuOnly bool

	// Default is returned when the countdown expires.
	Default   int
	Countdown time.Duration
}

// ExitReason tells why a session ended.
type ExitReason int

const (
	ReasonSelected ExitReason = iota
	ReasonTimedOut
	ReasonCanceled
)

func (r ExitReason) String() string {
	switch r {
	case ReasonSelected:
		return "selected"
	case ReasonTimedOut:
		return "timeout"
	default:
		return "canceled"
	}
}

// Result is the outcome of a session. Index is -1 when canceled.
type Result struct {
	Index  int
	Reason ExitReason
}

// menuDisplay is the part of the display a session drives.
type menuDisplay interface {
	StartMenu(headers, items []string, initial int)
	MoveSelection(delta int) int
	Selection() int
	EndMenu()
	MenuDrawn() bool
	ShowProgress(portion float64, duration time.Duration)
	ResetProgress()
	SetCountdown(deadline time.Time)
	ClearCountdown()
	SetTextVisible(visible bool)
	PrintLine(s string)
}

// MenuController runs selection sessions against the key queue.
type MenuController struct {
	display menuDisplay
	queue   *KeyQueue
	keymap  Keymap
	pub     Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewMenuController(display menuDisplay, queue *KeyQueue, keymap Keymap, pub Publisher, logger *slog.Logger) *MenuController {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &MenuController{
		display: display,
		queue:   queue,
		keymap:  keymap,
		pub:     pub,
		logger:  logger,
		now:     time.Now,
	}
}

// Run shows the menu and waits for a choice. The deadline is fixed when the
// session starts; key presses do not extend it.
func (m *MenuController) Run(ctx context.Context, s MenuSession) Result {
	m.queue.Clear()
	m.display.StartMenu(s.Headers, s.Items, s.Initial)
	selected := m.display.Selection()

	deadline := m.now().Add(s.Countdown)
	m.display.ResetProgress()
	m.display.ShowProgress(1, s.Countdown)
	m.display.SetCountdown(deadline)

	m.pub.Publish(eventMenuStarted, wsMenuStartedData{
		Headers:  s.Headers,
		Items:    s.Items,
		Selected: selected,
		Deadline: deadline,
	})
	m.logger.Info("menu started", "items", len(s.Items), "selected", selected, "countdown", s.Countdown)

	res := m.wait(ctx, s, deadline)

	m.display.EndMenu()
	m.display.ClearCountdown()
	m.display.ResetProgress()

	if res.Reason == ReasonTimedOut {
		m.display.SetTextVisible(true)
		m.display.PrintLine(timeoutText)
		m.logger.Info("boot selection timeout", "default", res.Index)
	}

	item := ""
	if res.Index >= 0 && res.Index < len(s.Items) {
		item = s.Items[res.Index]
	}
	m.pub.Publish(eventBootChosen, wsBootChosenData{Index: res.Index, Item: item, Reason: res.Reason.String()})
	return res
}

func (m *MenuController) wait(ctx context.Context, s MenuSession, deadline time.Time) Result {
	for {
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			return Result{Index: s.Default, Reason: ReasonTimedOut}
		}

		ev, ok := m.queue.Pop(ctx, remaining)
		if !ok {
			if ctx.Err() != nil {
				return Result{Index: -1, Reason: ReasonCanceled}
			}
			continue
		}

		// Button layouts show nothing to navigate until the first tap.
		if !m.display.MenuDrawn() {
			m.logger.Debug("key ignored, menu not drawn", "key", ev.String())
			continue
		}

		switch a := classify(ev, m.keymap).(type) {
		case ActNavigate:
			// Touch rows may have moved the highlight behind our back.
			prev := m.display.Selection()
			if next := m.display.MoveSelection(a.Delta); next != prev {
				m.pub.Publish(eventSelectionChanged, wsSelectionChangedData{Selected: next, Item: s.Items[next]})
			}

		case ActSelect:
			return Result{Index: m.display.Selection(), Reason: ReasonSelected}

		case ActPassthrough:
			if !s.MenuOnly && a.Index >= 0 && a.Index < len(s.Items) {
				return Result{Index: a.Index, Reason: ReasonSelected}
			}

		case ActNone:
		}
	}
}
