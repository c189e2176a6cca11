// Package annotate overlays element indices on a screenshot so a multimodal
// model can refer to on-screen targets by number.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// referenceWidth is the screen width, in pixels, at which labels render at
// their native glyph size.
const referenceWidth = 360

const chipPadding = 2

// Options controls label size and palette. Zero sizes are derived from the
// screenshot width.
type Options struct {
	Scale     int
	Thickness int
	DarkMode  bool
}

type palette struct {
	box, chip, text color.Color
}

var (
	lightPalette = palette{
		box:  color.RGBA{R: 255, G: 59, B: 48, A: 255},
		chip: color.RGBA{R: 255, G: 250, B: 250, A: 255},
		text: color.RGBA{R: 10, G: 10, B: 10, A: 255},
	}
	darkPalette = palette{
		box:  color.RGBA{R: 255, G: 214, B: 10, A: 255},
		chip: color.RGBA{A: 255},
		text: color.RGBA{R: 255, G: 250, B: 250, A: 255},
	}
)

// Annotate returns a copy of src with every element outlined and labelled with
// its index. src itself is never modified; with no elements it is returned as is.
func Annotate(src image.Image, elems []schemas.Element, opts Options) image.Image {
	if len(elems) == 0 {
		return src
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	scale := opts.Scale
	if scale <= 0 {
		scale = max(1, bounds.Dx()/referenceWidth)
	}
	thickness := opts.Thickness
	if thickness <= 0 {
		thickness = scale
	}
	pal := lightPalette
	if opts.DarkMode {
		pal = darkPalette
	}

	for _, e := range elems {
		box := image.Rect(e.Box.X1, e.Box.Y1, e.Box.X2, e.Box.Y2).Add(bounds.Min)
		outline(dst, box, thickness, pal.box)
	}
	// Labels go on after every outline so no box is drawn over a number.
	for _, e := range elems {
		chip := renderChip(strconv.Itoa(e.Index), pal)
		size := chip.Bounds().Size().Mul(scale)
		at := labelRect(e.Box, size, bounds.Size()).Add(bounds.Min)
		draw.NearestNeighbor.Scale(dst, at, chip, chip.Bounds(), draw.Over, nil)
	}
	return dst
}

// AnnotateFile decodes the PNG at srcPath, annotates it, and writes the
// result to dstPath as PNG.
func AnnotateFile(srcPath, dstPath string, elems []schemas.Element, opts Options) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open screenshot: %w", err)
	}
	defer in.Close()

	src, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode screenshot %s: %w", filepath.Base(srcPath), err)
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create annotated screenshot: %w", err)
	}
	if err := png.Encode(out, Annotate(src, elems, opts)); err != nil {
		out.Close()
		return fmt.Errorf("encode annotated screenshot: %w", err)
	}
	return out.Close()
}

func outline(dst draw.Image, r image.Rectangle, thickness int, c color.Color) {
	fill := image.NewUniform(c)
	t := min(thickness, r.Dx(), r.Dy())
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, edge, fill, image.Point{}, draw.Src)
	}
}

// renderChip draws label at native glyph size on a solid background.
func renderChip(label string, pal palette) *image.RGBA {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil() + 2*chipPadding
	h := face.Height + 2*chipPadding
	chip := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(chip, chip.Bounds(), image.NewUniform(pal.chip), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  chip,
		Src:  image.NewUniform(pal.text),
		Face: face,
		Dot:  fixed.P(chipPadding, chipPadding+face.Ascent),
	}
	d.DrawString(label)
	return chip
}

// labelRect places a label of the given size just above the top-left corner
// of box. When that would leave the image at the top the label moves inside
// the box. It is clamped horizontally (and, for tiny images, vertically) to
// the image area. Coordinates are relative to the image origin.
func labelRect(box schemas.BoundingBox, size, img image.Point) image.Rectangle {
	x, y := box.X1, box.Y1-size.Y
	if y < 0 {
		y = box.Y1
	}
	if x+size.X > img.X {
		x = img.X - size.X
	}
	if y+size.Y > img.Y {
		y = img.Y - size.Y
	}
	x, y = max(x, 0), max(y, 0)
	return image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+size.X, y+size.Y)}
}
