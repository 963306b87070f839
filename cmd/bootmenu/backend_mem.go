package main

import (
	"image"
	"sync"

	"golang.org/x/image/font"
)

// memBackend renders into memory only. It backs headless runs and the
// preview window, and lets tests count flips.
type memBackend struct {
	*canvas

	mu    sync.Mutex
	front *image.RGBA
	flips int
}

func newMemBackend(w, h int, face font.Face, themeDir string) *memBackend {
	return &memBackend{
		canvas: newCanvas(w, h, face, themeDir),
		front:  image.NewRGBA(image.Rect(0, 0, w, h)),
	}
}

func (m *memBackend) Flip() error {
	m.mu.Lock()
	copy(m.front.Pix, m.img.Pix)
	m.flips++
	m.mu.Unlock()
	return nil
}

// Frame copies the last flipped frame into dst.
func (m *memBackend) Frame(dst []byte) {
	m.mu.Lock()
	copy(dst, m.front.Pix)
	m.mu.Unlock()
}

func (m *memBackend) Flips() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flips
}

func (m *memBackend) Close() error { return nil }
