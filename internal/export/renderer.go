package export

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	apperrors "go-tonesense/internal/errors"
	"go-tonesense/internal/logger"
	"go-tonesense/pkg/models"
)

// Card geometry in logical units
const (
	LogicalWidth = 600
	PixelRatio   = 2

	padding     = 40
	contentW    = LogicalWidth - 2*padding
	swatchSize  = 36
	swatchGap   = 6
	pillGap     = 12
	pillPadX    = 16
	pillPadY    = 8
	brandDomain = "tonesense.app"
	dateLayout  = "1/2/2006"
)

var (
	white      = color.RGBA{255, 255, 255, 255}
	ink        = color.RGBA{0x1f, 0x29, 0x37, 0xff}
	muted      = color.RGBA{0x6b, 0x72, 0x80, 0xff}
	faint      = color.RGBA{0x9c, 0xa3, 0xaf, 0xff}
	pillFill   = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	ruleColor  = color.RGBA{0xe5, 0xe7, 0xeb, 0xff}
	brandFrom  = color.RGBA{0xeb, 0x44, 0x88, 0xff}
	brandTo    = color.RGBA{0xda, 0x22, 0x68, 0xff}
	crossColor = color.NRGBA{239, 68, 68, 179}
	edgeColor  = color.NRGBA{0, 0, 0, 16}
	fallback   = color.RGBA{0x80, 0x80, 0x80, 0xff}

	whitespace = regexp.MustCompile(`\s+`)
)

// Artifact is a rendered result card
type Artifact struct {
	PNG               []byte
	SuggestedFilename string
	Width, Height     int
}

// Clock supplies the footer date
type Clock func() time.Time

// Option configures a Renderer
type Option func(*Renderer)

// WithClock fixes the footer date source
func WithClock(clock Clock) Option {
	return func(r *Renderer) {
		r.now = clock
	}
}

// Renderer rasterizes an analysis result into a shareable PNG card
type Renderer struct {
	now Clock

	once          sync.Once
	regular, bold *opentype.Font
	loadErr       error
}

// NewRenderer creates a renderer using the Go font family
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) loadFonts() error {
	r.once.Do(func() {
		if r.regular, r.loadErr = opentype.Parse(goregular.TTF); r.loadErr != nil {
			return
		}
		r.bold, r.loadErr = opentype.Parse(gobold.TTF)
	})
	return r.loadErr
}

// Render draws the card for result. The result is only read.
func (r *Renderer) Render(result *models.AnalysisResult) (*Artifact, error) {
	if result == nil {
		return nil, apperrors.NewRenderError("no analysis result to export", nil)
	}
	if err := r.loadFonts(); err != nil {
		return nil, apperrors.NewRenderError("failed to load card fonts", err)
	}

	date := r.now().Format(dateLayout)

	measure := newCanvas(nil, PixelRatio, r.regular, r.bold)
	height, err := layout(measure, result, date)
	measure.close()
	if err != nil {
		return nil, apperrors.NewRenderError("failed to lay out card", err)
	}

	bounds := image.Rect(0, 0, LogicalWidth*PixelRatio, int(math.Ceil(height*PixelRatio)))
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(white), image.Point{}, draw.Src)

	c := newCanvas(dst, PixelRatio, r.regular, r.bold)
	defer c.close()
	if _, err := layout(c, result, date); err != nil {
		return nil, apperrors.NewRenderError("failed to draw card", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, apperrors.NewRenderError("failed to encode card", err)
	}

	filename := Filename(result.Season)
	logger.WithFields(logrus.Fields{
		"filename": filename,
		"width":    bounds.Dx(),
		"height":   bounds.Dy(),
		"bytes":    buf.Len(),
	}).Info("Result card rendered")

	return &Artifact{
		PNG:               buf.Bytes(),
		SuggestedFilename: filename,
		Width:             bounds.Dx(),
		Height:            bounds.Dy(),
	}, nil
}

// faces used by the card
type faces struct {
	brand, brandTag, tile  font.Face
	season, description    font.Face
	pillLabel, pillValue   font.Face
	hex, section, footnote font.Face
}

func loadFaces(c *canvas) (*faces, error) {
	f := &faces{}
	sizes := []struct {
		dst  *font.Face
		bold bool
		size float64
	}{
		{&f.brand, true, 20},
		{&f.brandTag, false, 11},
		{&f.season, true, 36},
		{&f.description, false, 14},
		{&f.pillLabel, false, 10},
		{&f.pillValue, true, 14},
		{&f.hex, true, 12},
		{&f.section, true, 13},
	}

	for _, s := range sizes {
		face, err := c.face(s.bold, s.size)
		if err != nil {
			return nil, err
		}
		*s.dst = face
	}
	f.tile = f.brand
	f.footnote = f.brandTag
	return f, nil
}

// layout walks the card top to bottom, drawing when the canvas has a
// destination, and returns the total height
func layout(c *canvas, res *models.AnalysisResult, date string) (float64, error) {
	f, err := loadFaces(c)
	if err != nil {
		return 0, err
	}

	top := float64(padding)

	// Header: brand tile and wordmark
	tile := c.deviceRect(padding, top, 40, 40)
	c.roundRect(padding, top, 40, 40, 12, diagonalGradient{r: tile, from: brandFrom, to: brandTo})
	tw := c.textWidth(f.tile, "T", 0)
	c.text(f.tile, "T", padding+(40-tw)/2, c.baseline(f.tile, top, 40), white, 0)

	wordTop := top + (40-(24+13.2))/2
	c.text(f.brand, "ToneSense", padding+52, c.baseline(f.brand, wordTop, 24), ink, 0)
	c.text(f.brandTag, "AI Color Analysis", padding+52, c.baseline(f.brandTag, wordTop+24, 13.2), faint, 0)
	top += 40 + 32

	// Season and description
	for _, line := range c.wrap(f.season, res.Season, contentW) {
		c.text(f.season, line, padding, c.baseline(f.season, top, 43.2), ink, 0)
		top += 43.2
	}
	top += 8

	if lines := c.wrap(f.description, res.SeasonDescription, contentW); len(lines) > 0 {
		for _, line := range lines {
			c.text(f.description, line, padding, c.baseline(f.description, top, 22.4), muted, 0)
			top += 22.4
		}
		top += 28
	}

	// Stat pills and the skin swatch
	top = statRow(c, f, res, top) + 28

	// Palettes
	top = palette(c, f, "YOUR BEST COLORS", res.BestColors, false, top) + 24
	top = palette(c, f, "COLORS TO AVOID", res.WorstColors, true, top) + 28

	// Footer
	c.roundRect(padding, top, contentW, 1, 0, image.NewUniform(ruleColor))
	top += 1 + 16
	base := c.baseline(f.footnote, top, 13.2)
	c.text(f.footnote, brandDomain, padding, base, faint, 0)
	c.text(f.footnote, date, padding+contentW-c.textWidth(f.footnote, date, 0), base, faint, 0)
	top += 13.2

	return top + padding, nil
}

func statRow(c *canvas, f *faces, res *models.AnalysisResult, top float64) float64 {
	const labelLine, valueLine = 12.0, 16.8
	height := pillPadY + labelLine + 2 + valueLine + pillPadY

	pills := []struct{ label, value string }{
		{"UNDERTONE", capitalize(res.Undertone.Classification)},
		{"DEPTH", capitalize(res.Depth.Level)},
		{"CONTRAST", capitalize(res.Contrast.Level)},
	}

	x := float64(padding)
	for _, p := range pills {
		lw := c.textWidth(f.pillLabel, p.label, 1)
		vw := c.textWidth(f.pillValue, p.value, 0)
		w := math.Max(lw, vw) + 2*pillPadX

		if x > padding && x+w > padding+contentW {
			x = padding
			top += height + pillGap
		}

		c.roundRect(x, top, w, height, 12, image.NewUniform(pillFill))
		c.text(f.pillLabel, p.label, x+(w-lw)/2, c.baseline(f.pillLabel, top+pillPadY, labelLine), faint, 1)
		c.text(f.pillValue, p.value, x+(w-vw)/2, c.baseline(f.pillValue, top+pillPadY+labelLine+2, valueLine), ink, 0)
		x += w + pillGap
	}

	hex := res.SkinColor.Hex
	hw := c.textWidth(f.hex, hex, 0)
	w := pillPadX + 24 + 8 + hw + pillPadX
	if x > padding && x+w > padding+contentW {
		x = padding
		top += height + pillGap
	}
	c.roundRect(x, top, w, height, 12, image.NewUniform(pillFill))

	sy := top + (height-24)/2
	c.roundRect(x+pillPadX, sy, 24, 24, 8, image.NewUniform(color.NRGBA{0, 0, 0, 26}))
	c.roundRect(x+pillPadX+1, sy+1, 22, 22, 7, image.NewUniform(ParseHex(hex)))
	c.text(f.hex, hex, x+pillPadX+32, c.baseline(f.hex, top, height), ink, 0)

	return top + height
}

func palette(c *canvas, f *faces, title string, colors []string, crossed bool, top float64) float64 {
	c.text(f.section, title, padding, c.baseline(f.section, top, 15.6), faint, 1)
	top += 15.6 + 10

	if len(colors) == 0 {
		return top
	}

	perRow := (contentW + swatchGap) / (swatchSize + swatchGap)
	step := float64(swatchSize + swatchGap)
	for i, hex := range colors {
		x := padding + float64(i%perRow)*step
		y := top + float64(i/perRow)*step

		c.roundRect(x, y, swatchSize, swatchSize, 8, image.NewUniform(edgeColor))
		c.roundRect(x+1, y+1, swatchSize-2, swatchSize-2, 7, image.NewUniform(ParseHex(hex)))

		if crossed {
			// A 28-unit bar through the center, turned 45 degrees
			cx, cy := x+swatchSize/2, y+swatchSize/2
			d := 14 / math.Sqrt2
			c.stroke(cx-d, cy-d, cx+d, cy+d, 2, crossColor)
		}
	}

	rows := (len(colors) + perRow - 1) / perRow
	return top + float64(rows)*step - swatchGap
}

// ParseHex reads #rgb or #rrggbb. Anything else renders as neutral grey.
func ParseHex(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// Slug lowercases season and replaces each whitespace run with a hyphen
func Slug(season string) string {
	return whitespace.ReplaceAllString(strings.ToLower(season), "-")
}

// Filename is the suggested download name for a season's card
func Filename(season string) string {
	slug := Slug(season)
	if slug == "" {
		slug = "result"
	}
	return "tonesense-" + slug + ".png"
}
