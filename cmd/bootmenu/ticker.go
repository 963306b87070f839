package main

import (
	"context"
	"time"
)

// tickerDisplay is what the progress ticker drives.
type tickerDisplay interface {
	Tick() bool
	Countdown() (seconds int, active bool)
}

// runProgressTicker advances animations, timed progress and the countdown
// until ctx is done. Each cycle sleeps for what is left of the 1/fps slice
// after the redraw, but never less than minFrameDelay. Countdown changes are
// published to pub.
func runProgressTicker(ctx context.Context, d tickerDisplay, fps int, pub Publisher) {
	if fps <= 0 {
		fps = defaultFPS
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	slice := time.Second / time.Duration(fps)

	timer := time.NewTimer(0)
	defer timer.Stop()

	lastShown, lastActive := -1, false

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		d.Tick()

		if s, active := d.Countdown(); active && (s != lastShown || !lastActive) {
			pub.Publish(eventCountdown, wsCountdownData{Seconds: s})
			lastShown, lastActive = s, true
		} else if !active {
			lastActive = false
		}

		delay := max(slice-time.Since(start), minFrameDelay)
		timer.Reset(delay)
	}
}
