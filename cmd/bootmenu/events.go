package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	evdev "github.com/holoplot/go-evdev"
)

// EventSource yields raw input events one at a time.
type EventSource interface {
	// Next blocks until an event is available, ctx is done or the source is
	// exhausted (errSourceClosed).
	Next(ctx context.Context) (evdev.InputEvent, error)
	Close() error
}

var errSourceClosed = errors.New("event source closed")

// ============================================================================
// evdev devices
// ============================================================================

// evdevSource merges several input devices into one stream. Each device is
// read by its own goroutine because ReadOne blocks.
type evdevSource struct {
	logger *slog.Logger
	devs   []*evdev.InputDevice

	events chan evdev.InputEvent
	done   chan struct{}
	idle   chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// openEventSource opens the configured devices, or every device that looks
// like a keypad, trackball or touch panel when none are configured.
func openEventSource(cfg InputConfig, logger *slog.Logger) (*evdevSource, error) {
	var devs []*evdev.InputDevice

	if len(cfg.Devices) > 0 {
		for _, p := range cfg.Devices {
			dev, err := evdev.Open(ExpandPath(p))
			if err != nil {
				closeDevices(devs)
				return nil, fmt.Errorf("open input device %s: %w", p, err)
			}
			devs = append(devs, dev)
		}
	} else {
		paths, err := evdev.ListDevicePaths()
		if err != nil {
			return nil, fmt.Errorf("list input devices: %w", err)
		}
		for _, p := range paths {
			dev, err := evdev.Open(p.Path)
			if err != nil {
				logger.Debug("skipping input device", "path", p.Path, "error", err)
				continue
			}
			if !usableDevice(dev) {
				dev.Close()
				continue
			}
			devs = append(devs, dev)
		}
	}

	if len(devs) == 0 {
		return nil, errors.New("no usable input devices found")
	}

	s := &evdevSource{
		logger: logger,
		devs:   devs,
		events: make(chan evdev.InputEvent, 64),
		done:   make(chan struct{}),
		idle:   make(chan struct{}),
	}

	for _, dev := range devs {
		name, _ := dev.Name()
		if cfg.Grab {
			if err := dev.Grab(); err != nil {
				logger.Warn("grab input device failed", "device", dev.Path(), "error", err)
			}
		}
		logger.Info("input device opened", "device", dev.Path(), "name", name)

		s.wg.Add(1)
		go s.read(dev)
	}

	go func() {
		s.wg.Wait()
		close(s.idle)
	}()

	return s, nil
}

// usableDevice keeps devices that report keys, vertical relative motion or
// absolute touch positions.
func usableDevice(dev *evdev.InputDevice) bool {
	for _, t := range dev.CapableTypes() {
		switch t {
		case evdev.EV_KEY:
			if len(dev.CapableEvents(evdev.EV_KEY)) > 0 {
				return true
			}
		case evdev.EV_REL:
			if slices.Contains(dev.CapableEvents(evdev.EV_REL), evdev.REL_Y) {
				return true
			}
		case evdev.EV_ABS:
			abs := dev.CapableEvents(evdev.EV_ABS)
			if slices.Contains(abs, evdev.ABS_MT_POSITION_X) || slices.Contains(abs, evdev.ABS_X) {
				return true
			}
		}
	}
	return false
}

func (s *evdevSource) read(dev *evdev.InputDevice) {
	defer s.wg.Done()
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("input device read failed", "device", dev.Path(), "error", err)
			}
			return
		}
		select {
		case s.events <- *ev:
		case <-s.done:
			return
		}
	}
}

func (s *evdevSource) Next(ctx context.Context) (evdev.InputEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return evdev.InputEvent{}, ctx.Err()
	case <-s.idle:
		// Every reader has exited; hand out what they queued before saying so.
		select {
		case ev := <-s.events:
			return ev, nil
		default:
			return evdev.InputEvent{}, errSourceClosed
		}
	}
}

// Close stops the readers. Closing a device unblocks its pending ReadOne.
func (s *evdevSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		closeDevices(s.devs)
	})
	return nil
}

func closeDevices(devs []*evdev.InputDevice) {
	for _, d := range devs {
		_ = d.Close()
	}
}

// ============================================================================
// Injected events
// ============================================================================

// chanSource is an EventSource fed by Inject. The preview window and tests
// use it in place of real devices.
type chanSource struct {
	events    chan evdev.InputEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newChanSource(buf int) *chanSource {
	return &chanSource{
		events: make(chan evdev.InputEvent, buf),
		done:   make(chan struct{}),
	}
}

// Inject queues ev, blocking while the buffer is full. It is a no-op after
// Close.
func (s *chanSource) Inject(ev evdev.InputEvent) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *chanSource) Next(ctx context.Context) (evdev.InputEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return evdev.InputEvent{}, ctx.Err()
	case <-s.done:
		select {
		case ev := <-s.events:
			return ev, nil
		default:
			return evdev.InputEvent{}, errSourceClosed
		}
	}
}

func (s *chanSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
