package main

import (
	"encoding/binary"
	"image/color"
	"strings"
	"testing"
	"unsafe"
)

func testScreeninfo(xres, yres, xvirt, yvirt, bpp, redOff, lineLength, smemLen int) (*fbVarScreeninfo, *fbFixScreeninfo) {
	var v fbVarScreeninfo
	for off, n := range map[int]int{0: xres, 4: yres, 8: xvirt, 12: yvirt, 24: bpp, 32: redOff} {
		binary.LittleEndian.PutUint32(v[off:], uint32(n))
	}
	var fix fbFixScreeninfo
	ulong := int(unsafe.Sizeof(uintptr(0)))
	binary.LittleEndian.PutUint32(fix[16+ulong:], uint32(smemLen))
	binary.LittleEndian.PutUint32(fix[16+ulong+24:], uint32(lineLength))
	return &v, &fix
}

func TestFbLayout_PaddedLines(t *testing.T) {
	// 540 pixels wide, but the driver pads each line to 576.
	v, fix := testScreeninfo(540, 960, 540, 1920, 32, 16, 576*4, 576*4*1920)

	g, err := fbLayout(v, fix)
	if err != nil {
		t.Fatalf("fbLayout: %v", err)
	}
	if g.stride != 576*4 {
		t.Errorf("stride = %d, want %d", g.stride, 576*4)
	}
	if g.size != 576*4*1920 {
		t.Errorf("size = %d, want %d", g.size, 576*4*1920)
	}
	if g.xres != 540 || g.yres != 960 || g.redOff != 16 {
		t.Errorf("got %+v", g)
	}
}

func TestFbLayout_FallsBackToVirtual(t *testing.T) {
	v, fix := testScreeninfo(320, 480, 0, 960, 16, 11, 0, 0)

	g, err := fbLayout(v, fix)
	if err != nil {
		t.Fatalf("fbLayout: %v", err)
	}
	if g.stride != 640 || g.size != 640*960 {
		t.Errorf("stride = %d size = %d, want 640 and %d", g.stride, g.size, 640*960)
	}
}

func TestFbLayout_Errors(t *testing.T) {
	tests := []struct {
		name string
		v    *fbVarScreeninfo
		fix  *fbFixScreeninfo
		want string
	}{
		{"zero size", nil, nil, "reports 0x0"},
		{"depth", nil, nil, "unsupported depth 24"},
		{"short line", nil, nil, "line length"},
		{"small memory", nil, nil, "bytes of video memory"},
	}
	tests[0].v, tests[0].fix = testScreeninfo(0, 0, 0, 0, 32, 0, 0, 0)
	tests[1].v, tests[1].fix = testScreeninfo(100, 100, 100, 100, 24, 0, 0, 0)
	tests[2].v, tests[2].fix = testScreeninfo(100, 100, 100, 100, 32, 0, 200, 0)
	tests[3].v, tests[3].fix = testScreeninfo(100, 100, 100, 100, 32, 0, 400, 400*50)

	for _, tt := range tests {
		_, err := fbLayout(tt.v, tt.fix)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want error containing %q", tt.name, err, tt.want)
		}
	}
}

func TestFbBackend_FlipHonoursStride(t *testing.T) {
	const stride = 16 // two 4-byte pixels plus 8 bytes of padding
	fb := &fbBackend{
		canvas: newCanvas(2, 2, nil, ""),
		mem:    make([]byte, stride*2),
		xres:   2,
		yres:   2,
		stride: stride,
		bpp:    32,
		redOff: 16,
	}
	fb.img.Set(0, 1, color.RGBA{R: 0xff, A: 0xff})

	if err := fb.Flip(); err != nil {
		t.Fatalf("Flip: %v", err)
	}

	// BGRA: red lands in byte 2 of the first pixel of line 1.
	if got := fb.mem[stride+2]; got != 0xff {
		t.Errorf("line 1 red = %#x, want 0xff", got)
	}
	if got := fb.mem[8+2]; got != 0 {
		t.Errorf("padding of line 0 = %#x, want untouched", got)
	}
}
