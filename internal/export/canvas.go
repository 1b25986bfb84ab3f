package export

import (
	"image"
	"image/color"
	"math"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// canvas draws in logical units onto an RGBA image scaled by pixel ratio.
// With a nil dst it only measures, which is how the card height is found.
type canvas struct {
	dst   *image.RGBA
	scale float64

	regular, bold *opentype.Font
	faces         map[faceKey]font.Face
}

type faceKey struct {
	bold bool
	size float64
}

func newCanvas(dst *image.RGBA, scale float64, regular, bold *opentype.Font) *canvas {
	return &canvas{
		dst:     dst,
		scale:   scale,
		regular: regular,
		bold:    bold,
		faces:   make(map[faceKey]font.Face),
	}
}

func (c *canvas) face(bold bool, size float64) (font.Face, error) {
	key := faceKey{bold: bold, size: size}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}

	src := c.regular
	if bold {
		src = c.bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size * c.scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	c.faces[key] = f
	return f, nil
}

func (c *canvas) close() {
	for _, f := range c.faces {
		f.Close()
	}
}

// textWidth measures s in logical units; tracking is added after every rune
func (c *canvas) textWidth(f font.Face, s string, tracking float64) float64 {
	if tracking == 0 {
		return float64(font.MeasureString(f, s)) / 64 / c.scale
	}
	var w float64
	for _, r := range s {
		w += float64(font.MeasureString(f, string(r)))/64/c.scale + tracking
	}
	return w
}

// baseline returns where text sits inside a line box starting at top
func (c *canvas) baseline(f font.Face, top, lineHeight float64) float64 {
	m := f.Metrics()
	ascent := float64(m.Ascent) / 64 / c.scale
	descent := float64(m.Descent) / 64 / c.scale
	return top + (lineHeight-(ascent+descent))/2 + ascent
}

func (c *canvas) text(f font.Face, s string, x, baseline float64, col color.Color, tracking float64) {
	if c.dst == nil || s == "" {
		return
	}

	d := &font.Drawer{
		Dst:  c.dst,
		Src:  image.NewUniform(col),
		Face: f,
		Dot:  c.point(x, baseline),
	}
	if tracking == 0 {
		d.DrawString(s)
		return
	}
	for _, r := range s {
		d.DrawString(string(r))
		d.Dot.X += fixed.Int26_6(tracking * c.scale * 64)
	}
}

func (c *canvas) point(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{
		X: fixed.Int26_6(math.Round(x * c.scale * 64)),
		Y: fixed.Int26_6(math.Round(y * c.scale * 64)),
	}
}

// wrap breaks s into lines no wider than width. Words are never split.
func (c *canvas) wrap(f font.Face, s string, width float64) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if c.textWidth(f, candidate, 0) <= width {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
	}
	return append(lines, line)
}

// roundRect fills a rounded rectangle with src, which is addressed in
// device coordinates
func (c *canvas) roundRect(x, y, w, h, radius float64, src image.Image) {
	c.fill(x, y, w, h, src, func(z *vector.Rasterizer, ox, oy float32) {
		s := float32(c.scale)
		roundRectPath(z, ox, oy, float32(w)*s, float32(h)*s, float32(radius)*s)
	})
}

// stroke draws a straight line of the given logical thickness
func (c *canvas) stroke(x0, y0, x1, y1, thickness float64, col color.Color) {
	pad := thickness
	minX, minY := math.Min(x0, x1)-pad, math.Min(y0, y1)-pad
	w, h := math.Abs(x1-x0)+2*pad, math.Abs(y1-y0)+2*pad

	c.fill(minX, minY, w, h, image.NewUniform(col), func(z *vector.Rasterizer, ox, oy float32) {
		s := c.scale
		ax, ay := float32((x0-minX)*s)+ox, float32((y0-minY)*s)+oy
		bx, by := float32((x1-minX)*s)+ox, float32((y1-minY)*s)+oy

		dx, dy := bx-ax, by-ay
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			return
		}
		half := float32(thickness*s) / 2
		nx, ny := -dy/length*half, dx/length*half

		z.MoveTo(ax+nx, ay+ny)
		z.LineTo(bx+nx, by+ny)
		z.LineTo(bx-nx, by-ny)
		z.LineTo(ax-nx, ay-ny)
		z.ClosePath()
	})
}

// fill rasterizes the path built by build over the device rectangle that
// covers the logical box, with (ox, oy) the box origin inside it
func (c *canvas) fill(x, y, w, h float64, src image.Image, build func(z *vector.Rasterizer, ox, oy float32)) {
	if c.dst == nil || w <= 0 || h <= 0 {
		return
	}

	s := c.scale
	r := c.deviceRect(x, y, w, h)
	if !r.In(c.dst.Bounds()) {
		r = r.Intersect(c.dst.Bounds())
		if r.Empty() {
			return
		}
	}

	z := vector.NewRasterizer(r.Dx(), r.Dy())
	build(z, float32(x*s)-float32(r.Min.X), float32(y*s)-float32(r.Min.Y))
	z.Draw(c.dst, r, src, r.Min)
}

// deviceRect is the pixel rectangle covering a logical box
func (c *canvas) deviceRect(x, y, w, h float64) image.Rectangle {
	s := c.scale
	return image.Rect(
		int(math.Floor(x*s)), int(math.Floor(y*s)),
		int(math.Ceil((x+w)*s)), int(math.Ceil((y+h)*s)),
	)
}

func roundRectPath(z *vector.Rasterizer, x, y, w, h, r float32) {
	if r > w/2 {
		r = w / 2
	}
	if r > h/2 {
		r = h / 2
	}

	z.MoveTo(x+r, y)
	z.LineTo(x+w-r, y)
	z.QuadTo(x+w, y, x+w, y+r)
	z.LineTo(x+w, y+h-r)
	z.QuadTo(x+w, y+h, x+w-r, y+h)
	z.LineTo(x+r, y+h)
	z.QuadTo(x, y+h, x, y+h-r)
	z.LineTo(x, y+r)
	z.QuadTo(x, y, x+r, y)
	z.ClosePath()
}

// diagonalGradient is a 135 degree linear gradient across r
type diagonalGradient struct {
	r        image.Rectangle
	from, to color.RGBA
}

func (g diagonalGradient) ColorModel() color.Model { return color.RGBAModel }

func (g diagonalGradient) Bounds() image.Rectangle { return g.r }

func (g diagonalGradient) At(x, y int) color.Color {
	span := float64(g.r.Dx() + g.r.Dy())
	if span == 0 {
		return g.from
	}
	t := float64((x-g.r.Min.X)+(y-g.r.Min.Y)) / span
	t = math.Max(0, math.Min(1, t))

	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.RGBA{
		R: lerp(g.from.R, g.to.R),
		G: lerp(g.from.G, g.to.G),
		B: lerp(g.from.B, g.to.B),
		A: 255,
	}
}

// capitalize upper-cases the first letter of every word
func capitalize(s string) string {
	out := []rune(s)
	start := true
	for i, r := range out {
		if start {
			out[i] = unicode.ToUpper(r)
		}
		start = unicode.IsSpace(r) || r == '-'
	}
	return string(out)
}
