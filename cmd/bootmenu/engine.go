package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Engine
// ============================================================================
//
// The engine owns every piece of runtime state and wires them together:
//
//   event source -> gesture decoder -> key queue -> menu controller
//                          |                              |
//                       effects                        display <- progress ticker
//
// Three goroutines run while a session is active: the session driver (the
// caller of Run), the progress ticker and the input loop. They share only the
// display lock and the queue lock.
//
// ============================================================================

// EngineConfig is the static engine setup.
type EngineConfig struct {
	Gesture GestureConfig
	Keys    KeysConfig
	FPS     int
}

type Engine struct {
	logger *slog.Logger

	display *Display
	queue   *KeyQueue
	decoder *GestureDecoder
	keymap  Keymap
	held    *KeyTable
	effects *Effects
	source  EventSource
	menu    *MenuController
	pub     Publisher

	rebootChord []evdev.EvCode
	fps         int
	now         func() time.Time
}

// NewEngine builds an engine around an already opened display and event
// source. sink may be nil when no sysfs effects are wanted.
func NewEngine(display *Display, source EventSource, sink *sysfsSink, pub Publisher, cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	keymap, err := buildKeymap(cfg.Keys)
	if err != nil {
		return nil, err
	}

	var chord []evdev.EvCode
	for i, name := range cfg.Keys.RebootChord {
		code, err := parseKeyCode(name)
		if err != nil {
			return nil, fmt.Errorf("input.keys.reboot_chord[%d]: %w", i, err)
		}
		chord = append(chord, code)
	}

	if pub == nil {
		pub = nopPublisher{}
	}

	queue := NewKeyQueue(keyQueueCapacity)
	e := &Engine{
		logger:  logger,
		display: display,
		queue:   queue,
		decoder: NewGestureDecoder(cfg.Gesture, keymap),
		keymap:  keymap,
		held:    &KeyTable{},
		effects: &Effects{
			sink:    sink,
			display: display,
			reboot:  rebootNow,
			pub:     pub,
		},
		source:      source,
		menu:        NewMenuController(display, queue, keymap, pub, logger),
		pub:         pub,
		rebootChord: chord,
		fps:         cfg.FPS,
		now:         time.Now,
	}
	return e, nil
}

// Run drives one menu session with the ticker and the input loop running
// alongside. It returns when the session ends or ctx is canceled.
func (e *Engine) Run(ctx context.Context, s MenuSession) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runProgressTicker(gctx, e.display, e.fps, e.pub)
		return nil
	})
	g.Go(func() error {
		return e.runInput(gctx)
	})

	res := e.menu.Run(gctx, s)
	cancel()

	if n := e.queue.Dropped(); n > 0 {
		e.logger.Debug("keys dropped on a full queue", "count", n)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}
	return res, nil
}

// runInput reads the event source until ctx is done. Losing every input
// device is not fatal: the countdown still boots the default.
func (e *Engine) runInput(ctx context.Context) error {
	for {
		ev, err := e.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errSourceClosed) {
				e.logger.Warn("input source closed, waiting for countdown")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		e.handleEvent(ev)
	}
}

// handleEvent decodes one hardware event, runs its effects and queues the
// resulting keys.
func (e *Engine) handleEvent(ev evdev.InputEvent) {
	res := e.decoder.Decode(ev, e.now(), e.display.TextVisible())

	for _, cmd := range res.Commands {
		runEffect(e.effects, cmd, e.logger)
	}
	for _, k := range res.Keys {
		e.handleKey(k)
	}
}

func (e *Engine) handleKey(k KeyEvent) {
	if int(k.Code) > keyMax {
		e.logger.Debug("key code out of range, not queued", "code", int(k.Code), "value", k.Value)
		return
	}
	if !k.Synthetic {
		e.held.Set(k.Code, k.pressed())
	}
	if !k.pressed() {
		return
	}

	if !e.queue.Push(k) {
		e.logger.Debug("key queue full, dropping", "key", k.String())
	}

	switch k.Kind {
	case KeyToggleLog:
		runEffect(e.effects, CmdToggleText{}, e.logger)

	case KeyReboot:
		if k.Synthetic {
			return
		}
		if len(e.rebootChord) > 0 && !e.held.AllPressed(e.rebootChord) {
			return
		}
		runEffect(e.effects, CmdReboot{}, e.logger)
	}
}
