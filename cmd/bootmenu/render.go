package main

import (
	"fmt"
	"image"
	"image/color"
)

var (
	colorBlack  = color.RGBA{0, 0, 0, 255}
	colorShade  = color.RGBA{0, 0, 0, 160}
	colorGreen  = color.RGBA{85, 170, 56, 255}
	colorWhite  = color.RGBA{200, 200, 200, 255}
	colorYellow = color.RGBA{255, 255, 0, 255}
	colorGrey   = color.RGBA{100, 100, 100, 255}
	colorGrey2  = color.RGBA{85, 85, 85, 255}
	colorGrey3  = color.RGBA{70, 70, 70, 255}
)

const buttonMargin = 70

// All draw*Locked functions render into the back buffer and expect d.mu to
// be held. None of them flip.

func (d *Display) screenRect() image.Rectangle {
	return image.Rect(0, 0, d.backend.Width(), d.backend.Height())
}

// drawBackgroundLocked clears the screen and draws the centered icon.
func (d *Display) drawBackgroundLocked(icon Icon) {
	d.pagesIdentical = false
	b := d.backend
	b.SetColor(colorBlack)
	b.Fill(d.screenRect())

	bg := d.res.background[icon]
	if bg == nil {
		return
	}
	sz := bg.Bounds().Size()
	b.Blit(bg, bg.Bounds(), image.Pt((b.Width()-sz.X)/2, (b.Height()-sz.Y)/2))
	if icon == IconInstalling {
		d.drawInstallOverlayLocked()
	}
}

// drawInstallOverlayLocked draws the current animation frame over the
// installing icon. The frame is assumed to cover the previous one.
func (d *Display) drawInstallOverlayLocked() {
	if d.installFrame >= len(d.res.overlay) {
		return
	}
	frame := d.res.overlay[d.installFrame]
	if frame == nil {
		return
	}
	d.backend.Blit(frame, frame.Bounds(), image.Pt(d.params.OverlayX, d.params.OverlayY))
}

func (d *Display) barRectLocked() image.Rectangle {
	b := d.backend
	sz := d.res.barSize(b)
	iconH := 0
	if bg := d.res.background[IconInstalling]; bg != nil {
		iconH = bg.Bounds().Dy()
	}
	dx := (b.Width() - sz.X) / 2
	dy := (3*b.Height() + iconH - 2*sz.Y) / 4
	return image.Rectangle{Min: image.Pt(dx, dy), Max: image.Pt(dx+sz.X, dy+sz.Y)}
}

// drawProgressLocked draws the bar and the animation overlay only.
func (d *Display) drawProgressLocked() {
	if d.icon == IconInstalling {
		d.drawInstallOverlayLocked()
	}
	if d.progress.kind == progressNone {
		return
	}

	b := d.backend
	r := d.barRectLocked()
	w := r.Dx()

	// Erase behind the bar in case this is a bar-only update.
	b.SetColor(colorBlack)
	b.Fill(r)

	switch d.progress.kind {
	case progressDeterminate:
		pos := int(d.progress.total() * float64(w))
		if pos > 0 {
			fill := image.Rect(r.Min.X, r.Min.Y, r.Min.X+pos, r.Max.Y)
			if d.res.progressFill != nil {
				b.Blit(d.res.progressFill, image.Rect(0, 0, pos, r.Dy()), fill.Min)
			} else {
				b.SetColor(colorGreen)
				b.Fill(fill)
			}
		}
		if pos < w-1 {
			empty := image.Rect(r.Min.X+pos, r.Min.Y, r.Max.X, r.Max.Y)
			if d.res.progressEmpty != nil {
				b.Blit(d.res.progressEmpty, image.Rect(pos, 0, w, r.Dy()), empty.Min)
			} else {
				b.SetColor(colorGrey3)
				b.Fill(empty)
			}
		}

	case progressIndeterminate:
		frame := d.indeterminateFrame
		if frame < len(d.res.indeterminate) && d.res.indeterminate[frame] != nil {
			img := d.res.indeterminate[frame]
			b.Blit(img, img.Bounds(), r.Min)
			return
		}
		b.SetColor(colorGrey3)
		b.Fill(r)
		seg := w / 4
		steps := max(d.params.IndeterminateFrames-1, 1)
		off := frame * (w - seg) / steps
		b.SetColor(colorGreen)
		b.Fill(image.Rect(r.Min.X+off, r.Min.Y, r.Min.X+off+seg, r.Max.Y))
	}
}

// drawScreenLocked redraws everything.
func (d *Display) drawScreenLocked() {
	d.drawBackgroundLocked(d.icon)
	d.drawProgressLocked()

	b := d.backend
	cw, lh := b.TextMetrics()

	if d.countdown.active {
		b.SetColor(colorYellow)
		msg := fmt.Sprintf(countdownHintText, d.countdown.shown)
		b.Text((b.Width()-len(msg)*cw)/2, b.Height()-2*lh, msg)
	}

	if d.textVisible {
		b.SetColor(colorShade)
		b.Fill(d.screenRect())
	}

	switch d.params.Style {
	case MenuStyleButtons:
		if !d.textVisible {
			b.SetColor(colorYellow)
			b.Text(cw, 2*lh, tapHintText)
			return
		}
		if d.menu.visible {
			d.drawMenuButtonsLocked()
			return
		}
		d.drawLogLocked(0)

	default:
		row := 0
		if d.menu.visible {
			row = d.drawMenuListLocked()
		}
		if d.textVisible {
			d.drawLogLocked(row)
		}
	}
}

// drawMenuListLocked draws headers and items top-down and returns the number
// of text rows used.
func (d *Display) drawMenuListLocked() int {
	b := d.backend
	cw, lh := b.TextMetrics()
	row := 0

	b.SetColor(colorYellow)
	for _, h := range d.menu.headers {
		b.Text(0, row*lh, h)
		row++
	}
	row++

	for i, item := range d.menu.items {
		y := row * lh
		if i == d.menu.selected {
			b.SetColor(colorGreen)
			b.Fill(image.Rect(0, y, b.Width(), y+lh))
			b.SetColor(colorBlack)
		} else {
			b.SetColor(colorWhite)
		}
		b.Text(cw, y, item)
		row++
	}
	return row + 1
}

// drawMenuButtonsLocked draws one framed button per item for touch panels.
func (d *Display) drawMenuButtonsLocked() {
	b := d.backend
	cw, lh := b.TextMetrics()
	w, h := b.Width(), b.Height()

	// Keep the countdown row visible.
	b.SetColor(colorBlack)
	b.Fill(image.Rect(0, 0, w, h-2*lh))

	b.SetColor(colorYellow)
	for i, hd := range d.menu.headers {
		b.Text(0, i*lh, hd)
	}
	b.SetColor(colorGreen)
	b.Text(0, (len(d.menu.headers)+1)*lh, " Please choose your boot preference")

	n := len(d.menu.items)
	top := (len(d.menu.headers) + 3) * lh
	bottom := h - 5*lh
	gap := lh
	bh := (bottom - top - gap*(n-1)) / max(n, 1)
	bh = max(min(bh, 5*lh), 2*lh)

	x0, x1 := buttonMargin, w-buttonMargin
	for i, item := range d.menu.items {
		y0 := top + i*(bh+gap)
		sel := i == d.menu.selected

		if sel {
			b.SetColor(colorWhite)
		} else {
			b.SetColor(colorGrey3)
		}
		b.Fill(image.Rect(x0-3, y0-3, x1+3, y0+bh+3))
		b.SetColor(colorGrey2)
		b.Fill(image.Rect(x0-2, y0-2, x1+2, y0+bh+2))
		if sel {
			b.SetColor(colorGreen)
		} else {
			b.SetColor(colorGrey)
		}
		b.Fill(image.Rect(x0, y0, x1, y0+bh))

		if sel {
			b.SetColor(colorBlack)
		} else {
			b.SetColor(colorWhite)
		}
		tx := (w - len([]rune(item))*cw) / 2
		b.Text(tx, y0+(bh-lh)/2, item)
	}

	b.SetColor(colorGrey3)
	b.Text(cw, h-4*lh, "** single tap - highlight **")
	b.Text(cw, h-3*lh, "** double tap - select    **")
}

// drawLogLocked draws the newest log rows that fit below startRow.
func (d *Display) drawLogLocked(startRow int) {
	b := d.backend
	_, lh := b.TextMetrics()
	if lh <= 0 {
		return
	}
	lines := d.text.lines()
	avail := b.Height()/lh - startRow
	if avail <= 0 {
		return
	}
	if len(lines) > avail {
		lines = lines[len(lines)-avail:]
	}
	b.SetColor(colorWhite)
	for i, l := range lines {
		b.Text(0, (startRow+i)*lh, l)
	}
}
