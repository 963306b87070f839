package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/image/font"
	"golang.org/x/sys/unix"
)

const (
	fbiogetVScreeninfo = 0x4600
	fbiogetFScreeninfo = 0x4602
)

// fbVarScreeninfo receives struct fb_var_screeninfo. The kernel writes the
// whole struct, so the buffer is oversized and only the leading fields are
// decoded.
type fbVarScreeninfo [160]byte

func (v *fbVarScreeninfo) u32(off int) int {
	return int(binary.LittleEndian.Uint32(v[off : off+4]))
}

// fbFixScreeninfo receives struct fb_fix_screeninfo. Its offsets shift with
// the size of unsigned long, which leads the struct after the id.
type fbFixScreeninfo [96]byte

func (f *fbFixScreeninfo) u32(off int) int {
	return int(binary.LittleEndian.Uint32(f[off : off+4]))
}

func (f *fbFixScreeninfo) smemLen() int { return f.u32(16 + int(unsafe.Sizeof(uintptr(0)))) }

// lineLength follows smem_len, type, type_aux, visual and three u16 pan
// steps, padded to four bytes.
func (f *fbFixScreeninfo) lineLength() int { return f.u32(16 + int(unsafe.Sizeof(uintptr(0))) + 24) }

// fbGeometry is the decoded layout of the mapped framebuffer.
type fbGeometry struct {
	xres, yres int
	bpp        int
	redOff     int
	stride     int
	size       int
}

// fbLayout decodes both screeninfo structs. Drivers may pad each line, so
// the stride comes from line_length and the mapping from smem_len; the
// virtual resolution is only a fallback for drivers that leave them zero.
func fbLayout(v *fbVarScreeninfo, fix *fbFixScreeninfo) (fbGeometry, error) {
	g := fbGeometry{
		xres:   v.u32(0),
		yres:   v.u32(4),
		bpp:    v.u32(24),
		redOff: v.u32(32),
	}
	xvirt, yvirt := v.u32(8), v.u32(12)
	if g.xres == 0 || g.yres == 0 {
		return g, fmt.Errorf("reports %dx%d", g.xres, g.yres)
	}
	if g.bpp != 32 && g.bpp != 16 {
		return g, fmt.Errorf("unsupported depth %d bpp", g.bpp)
	}
	xvirt = max(xvirt, g.xres)
	yvirt = max(yvirt, g.yres)

	row := g.xres * g.bpp / 8
	g.stride = fix.lineLength()
	if g.stride == 0 {
		g.stride = xvirt * g.bpp / 8
	}
	if g.stride < row {
		return g, fmt.Errorf("line length %d shorter than a %d byte row", g.stride, row)
	}

	g.size = fix.smemLen()
	if g.size == 0 {
		g.size = g.stride * yvirt
	}
	if g.size < g.stride*g.yres {
		return g, fmt.Errorf("%d bytes of video memory cannot hold %d lines of %d", g.size, g.yres, g.stride)
	}
	return g, nil
}

// fbBackend draws into an RGBA back buffer and converts it into the mapped
// framebuffer on Flip. 32bpp (BGRA or RGBA order) and RGB565 are supported.
type fbBackend struct {
	*canvas

	f      *os.File
	mem    []byte
	xres   int
	yres   int
	stride int
	bpp    int
	redOff int
}

func openFramebuffer(path string, face font.Face, themeDir string) (*fbBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open framebuffer %s: %w", path, err)
	}

	var info fbVarScreeninfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), fbiogetVScreeninfo, uintptr(unsafe.Pointer(&info[0])))
	if errno != 0 {
		f.Close()
		return nil, fmt.Errorf("FBIOGET_VSCREENINFO: %w", errno)
	}
	var fix fbFixScreeninfo
	_, _, errno = unix.Syscall(unix.SYS_IOCTL, f.Fd(), fbiogetFScreeninfo, uintptr(unsafe.Pointer(&fix[0])))
	if errno != 0 {
		f.Close()
		return nil, fmt.Errorf("FBIOGET_FSCREENINFO: %w", errno)
	}

	g, err := fbLayout(&info, &fix)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("framebuffer %s: %w", path, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, g.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap framebuffer: %w", err)
	}

	return &fbBackend{
		canvas: newCanvas(g.xres, g.yres, face, themeDir),
		f:      f,
		mem:    mem,
		xres:   g.xres,
		yres:   g.yres,
		stride: g.stride,
		bpp:    g.bpp,
		redOff: g.redOff,
	}, nil
}

func (fb *fbBackend) Flip() error {
	src := fb.img.Pix
	sstride := fb.img.Stride
	for y := 0; y < fb.yres; y++ {
		srow := src[y*sstride : y*sstride+fb.xres*4]
		drow := fb.mem[y*fb.stride:]
		switch fb.bpp {
		case 32:
			if fb.redOff == 0 {
				copy(drow[:fb.xres*4], srow)
				continue
			}
			for x := 0; x < fb.xres; x++ {
				drow[x*4+0] = srow[x*4+2]
				drow[x*4+1] = srow[x*4+1]
				drow[x*4+2] = srow[x*4+0]
				drow[x*4+3] = 0xff
			}
		case 16:
			for x := 0; x < fb.xres; x++ {
				r, g, b := srow[x*4], srow[x*4+1], srow[x*4+2]
				v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
				binary.LittleEndian.PutUint16(drow[x*2:], v)
			}
		}
	}
	return nil
}

func (fb *fbBackend) Close() error {
	var err error
	if fb.mem != nil {
		err = unix.Munmap(fb.mem)
		fb.mem = nil
	}
	if fb.f != nil {
		if cerr := fb.f.Close(); err == nil {
			err = cerr
		}
		fb.f = nil
	}
	return err
}
