package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Backend is the drawing surface the display renders into. Drawing happens
// on a back buffer; Flip makes it visible.
type Backend interface {
	Width() int
	Height() int
	SetColor(c color.Color)
	Fill(r image.Rectangle)
	Blit(src image.Image, sr image.Rectangle, dp image.Point)
	Text(x, y int, s string)
	// TextMetrics returns the advance of one glyph and the line height.
	TextMetrics() (charWidth, lineHeight int)
	LoadSurface(name string) (image.Image, error)
	Flip() error
	Close() error
}

var errNoThemeDir = errors.New("no theme directory configured")

// canvas is the RGBA back buffer shared by every backend.
type canvas struct {
	img      *image.RGBA
	col      *image.Uniform
	face     font.Face
	themeDir string
}

func newCanvas(w, h int, face font.Face, themeDir string) *canvas {
	if face == nil {
		face = basicfont.Face7x13
	}
	return &canvas{
		img:      image.NewRGBA(image.Rect(0, 0, w, h)),
		col:      image.NewUniform(color.Black),
		face:     face,
		themeDir: themeDir,
	}
}

func (c *canvas) Width() int  { return c.img.Bounds().Dx() }
func (c *canvas) Height() int { return c.img.Bounds().Dy() }

func (c *canvas) SetColor(col color.Color) { c.col = image.NewUniform(col) }

func (c *canvas) Fill(r image.Rectangle) {
	op := draw.Src
	if _, _, _, a := c.col.RGBA(); a != 0xffff {
		op = draw.Over
	}
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), c.col, image.Point{}, op)
}

func (c *canvas) Blit(src image.Image, sr image.Rectangle, dp image.Point) {
	if src == nil {
		return
	}
	dr := image.Rectangle{Min: dp, Max: dp.Add(sr.Size())}
	draw.Draw(c.img, dr, src, sr.Min, draw.Over)
}

// Text draws s with its top-left corner at (x, y).
func (c *canvas) Text(x, y int, s string) {
	if s == "" {
		return
	}
	d := font.Drawer{
		Dst:  c.img,
		Src:  c.col,
		Face: c.face,
		Dot:  fixed.P(x, y+c.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func (c *canvas) TextMetrics() (int, int) {
	w := font.MeasureString(c.face, "M").Ceil()
	h := c.face.Metrics().Height.Ceil()
	return w, h
}

// LoadSurface reads <themeDir>/<name>.png.
func (c *canvas) LoadSurface(name string) (image.Image, error) {
	if c.themeDir == "" {
		return nil, errNoThemeDir
	}
	path := filepath.Join(c.themeDir, name+".png")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// fitSurface scales img down to fit within w x h, keeping the aspect ratio.
// Images that already fit are returned unchanged.
func fitSurface(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return img
	}
	scale := min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	dw := max(1, int(float64(b.Dx())*scale))
	dh := max(1, int(float64(b.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// loadFace builds the monospace face used for all text. It falls back to
// the built-in bitmap face when the outline font cannot be instantiated.
func loadFace(size, dpi float64, logger *slog.Logger) font.Face {
	if size <= 0 {
		return basicfont.Face7x13
	}
	ft, err := opentype.Parse(gomono.TTF)
	if err != nil {
		logger.Warn("parse builtin font failed, using bitmap font", "error", err)
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	if err != nil {
		logger.Warn("create font face failed, using bitmap font", "error", err)
		return basicfont.Face7x13
	}
	return face
}

// ============================================================================
// Theme resources
// ============================================================================

type resources struct {
	background    map[Icon]image.Image
	overlay       []image.Image
	indeterminate []image.Image
	progressEmpty image.Image
	progressFill  image.Image
}

// loadResources loads every themed image. Missing images are logged once
// and left nil; drawing code treats nil as "draw nothing" (or a plain
// rectangle for the progress bar). The overlay offset in params is shifted
// to account for the centered background.
func loadResources(b Backend, params *UIParams, logger *slog.Logger) resources {
	res := resources{background: make(map[Icon]image.Image)}

	load := func(name string) image.Image {
		img, err := b.LoadSurface(name)
		if err != nil {
			logger.Warn("missing bitmap", "name", name, "error", err)
			return nil
		}
		return img
	}

	if bg := load("icon_installing"); bg != nil {
		res.background[IconInstalling] = fitSurface(bg, b.Width(), b.Height())
	}
	res.progressEmpty = load("progress_empty")
	res.progressFill = load("progress_fill")

	for i := 0; i < params.InstallFrames; i++ {
		res.overlay = append(res.overlay, load(fmt.Sprintf("icon_installing_overlay%02d", i+1)))
	}
	for i := 0; i < params.IndeterminateFrames; i++ {
		res.indeterminate = append(res.indeterminate, load(fmt.Sprintf("indeterminate%02d", i+1)))
	}

	if bg := res.background[IconInstalling]; bg != nil && params.InstallFrames > 0 {
		params.OverlayX += (b.Width() - bg.Bounds().Dx()) / 2
		params.OverlayY += (b.Height() - bg.Bounds().Dy()) / 2
	}

	return res
}

// barSize is the progress bar size: the themed image if present, otherwise
// two thirds of the panel width.
func (r resources) barSize(b Backend) image.Point {
	if r.progressEmpty != nil {
		return r.progressEmpty.Bounds().Size()
	}
	return image.Pt(b.Width()*2/3, max(8, b.Height()/60))
}

func (r resources) barWidth(b Backend) int { return r.barSize(b).X }
