//go:build preview

package main

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	evdev "github.com/holoplot/go-evdev"
)

const previewAvailable = true

// previewKeys maps desktop keys onto the hardware keys of the default keymap.
var previewKeys = map[ebiten.Key]evdev.EvCode{
	ebiten.KeyArrowUp:   evdev.KEY_UP,
	ebiten.KeyArrowDown: evdev.KEY_DOWN,
	ebiten.KeyEnter:     evdev.KEY_ENTER,
	ebiten.KeyEscape:    evdev.KEY_BACK,
	ebiten.KeyBackspace: evdev.KEY_BACK,
	ebiten.KeyDigit1:    evdev.KEY_1,
	ebiten.KeyDigit2:    evdev.KEY_2,
	ebiten.KeyDigit3:    evdev.KEY_3,
}

// previewGame shows the memory backend in a desktop window and turns
// keyboard and mouse input into evdev-shaped events, so the whole engine
// runs unchanged off-device.
type previewGame struct {
	ctx   context.Context
	mem   *memBackend
	src   *chanSource
	img   *ebiten.Image
	buf   []byte
	touch bool
}

// runPreview blocks on the window until it is closed or ctx is done. It must
// be called from the main goroutine.
func runPreview(ctx context.Context, mem *memBackend, src *chanSource, scale int) error {
	if scale <= 0 {
		scale = 1
	}
	g := &previewGame{
		ctx: ctx,
		mem: mem,
		src: src,
		buf: make([]byte, mem.Width()*mem.Height()*4),
	}
	ebiten.SetWindowTitle("bootmenu preview")
	ebiten.SetWindowSize(mem.Width()*scale, mem.Height()*scale)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(g)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

func (g *previewGame) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}

	for k, code := range previewKeys {
		if inpututil.IsKeyJustPressed(k) {
			g.emit(evdev.EV_KEY, code, evValuePress)
			g.emit(evdev.EV_SYN, evdev.SYN_REPORT, 0)
		}
		if inpututil.IsKeyJustReleased(k) {
			g.emit(evdev.EV_KEY, code, evValueRelease)
			g.emit(evdev.EV_SYN, evdev.SYN_REPORT, 0)
		}
	}

	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		g.emit(evdev.EV_ABS, evdev.ABS_MT_POSITION_X, int32(x))
		g.emit(evdev.EV_ABS, evdev.ABS_MT_POSITION_Y, int32(y))
		g.emit(evdev.EV_ABS, evdev.ABS_MT_PRESSURE, 1)
		g.emit(evdev.EV_SYN, evdev.SYN_REPORT, 0)
		g.touch = true
	} else if g.touch {
		g.emit(evdev.EV_ABS, evdev.ABS_MT_PRESSURE, 0)
		g.emit(evdev.EV_SYN, evdev.SYN_REPORT, 0)
		g.touch = false
	}
	return nil
}

func (g *previewGame) emit(t evdev.EvType, c evdev.EvCode, v int32) {
	g.src.Inject(evdev.InputEvent{
		Type:  t,
		Code:  c,
		Value: v,
	})
}

func (g *previewGame) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = ebiten.NewImage(g.mem.Width(), g.mem.Height())
	}
	g.mem.Frame(g.buf)
	g.img.WritePixels(g.buf)
	screen.DrawImage(g.img, nil)
}

func (g *previewGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.mem.Width(), g.mem.Height()
}
