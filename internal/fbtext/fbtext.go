// Package fbtext renders early diagnostic text onto the boot framebuffer.
// It draws into an in-memory RGBA image with gg and golang/freetype, then
// flushes pixel by pixel into the real framebuffer's wire format, since the
// boot framebuffer is essentially never RGBA itself.
package fbtext

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ultraos/hyper/internal/videomode"
)

// Canvas is a scratch RGBA buffer the size of one framebuffer, with a
// monospace-ish diagnostic font baked in.
type Canvas struct {
	ctx  *gg.Context
	font *truetype.Font
	mode videomode.Mode
}

// NewCanvas allocates a Canvas sized to mode.
func NewCanvas(mode videomode.Mode) (*Canvas, error) {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("fbtext: parsing embedded font: %w", err)
	}

	ctx := gg.NewContext(int(mode.Width), int(mode.Height))
	ctx.SetRGB(0, 0, 0)
	ctx.Clear()

	face := truetype.NewFace(f, &truetype.Options{Size: 16})
	ctx.SetFontFace(face)

	return &Canvas{ctx: ctx, font: f, mode: mode}, nil
}

// DrawLine renders one line of white diagnostic text at (x, baselineY).
func (c *Canvas) DrawLine(text string, x, baselineY float64) {
	c.ctx.SetColor(color.White)
	c.ctx.DrawString(text, x, baselineY)
}

// Clear resets the canvas to black, e.g. between boot stages.
func (c *Canvas) Clear() {
	c.ctx.SetRGB(0, 0, 0)
	c.ctx.Clear()
}

// Flush packs the RGBA backbuffer into dst using the framebuffer's native
// format and stride (in bytes). FormatAuto is packed like XRGB8888, i.e.
// the common Bochs BGRX byte layout QEMU and most firmware expose.
func (c *Canvas) Flush(dst []byte, stride int) error {
	img, ok := c.ctx.Image().(*image.RGBA)
	if !ok {
		return fmt.Errorf("fbtext: gg context image is not RGBA")
	}

	bpp := int(c.mode.Bpp) / 8
	width := int(c.mode.Width)
	height := int(c.mode.Height)

	needed := stride * height
	if len(dst) < needed {
		return fmt.Errorf("fbtext: destination buffer too small: have %d bytes, need %d", len(dst), needed)
	}

	pack, err := packerFor(c.mode.Format)
	if err != nil {
		return err
	}

	for y := 0; y < height; y++ {
		srcRow := img.Pix[y*img.Stride:]
		dstRow := dst[y*stride:]
		for x := 0; x < width; x++ {
			si := x * 4
			r, g, b := srcRow[si+0], srcRow[si+1], srcRow[si+2]
			pack(dstRow[x*bpp:x*bpp+bpp], r, g, b)
		}
	}
	return nil
}

type pixelPacker func(dst []byte, r, g, b byte)

func packerFor(f videomode.Format) (pixelPacker, error) {
	switch f {
	case videomode.FormatRGB888:
		return func(dst []byte, r, g, b byte) { dst[0], dst[1], dst[2] = r, g, b }, nil
	case videomode.FormatBGR888:
		return func(dst []byte, r, g, b byte) { dst[0], dst[1], dst[2] = b, g, r }, nil
	case videomode.FormatRGBX8888:
		return func(dst []byte, r, g, b byte) { dst[0], dst[1], dst[2], dst[3] = r, g, b, 0 }, nil
	case videomode.FormatXRGB8888, videomode.FormatAuto:
		return func(dst []byte, r, g, b byte) { dst[0], dst[1], dst[2], dst[3] = b, g, r, 0 }, nil
	default:
		return nil, fmt.Errorf("fbtext: unsupported framebuffer format %s", f)
	}
}
