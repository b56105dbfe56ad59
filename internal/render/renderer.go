// Package render draws the geometry of a multilateration solve to an image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/roman-kulish/indoor-localization/internal/localization"
)

const (
	dpi             = 72.0
	defaultFontSize = 12.0
	defaultWidth    = 800
	defaultHeight   = 800
	defaultMargin   = 40
	infoBarHeight   = 60

	anchorRadius   = 5.0
	estimateRadius = 7.0
	dashLength     = 6.0
	minSpan        = 1.0 // meters
)

var (
	background    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	estimateColor = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	axisColor     = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// Config holds the visual configuration of a Renderer.
type Config struct {
	Width    int        `yaml:"width"`
	Height   int        `yaml:"height"`
	Margin   int        `yaml:"margin"`
	FontSize float64    `yaml:"fontSize"`
	Theme    ColorTheme `yaml:"theme"`
}

// Renderer draws anchors, their range circles and the estimated position.
// A Renderer is safe for concurrent use.
type Renderer struct {
	config Config
	font   *truetype.Font
}

// NewRenderer creates a renderer, zero config values are replaced by defaults.
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.Margin == 0 {
		config.Margin = defaultMargin
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}
	if config.Theme == "" {
		config.Theme = ClassicTheme
	}

	if err := config.Theme.Validate(); err != nil {
		return nil, err
	}
	if config.Width <= 2*config.Margin || config.Height <= 2*config.Margin+infoBarHeight {
		return nil, fmt.Errorf("image %dx%d is too small for margin %d", config.Width, config.Height, config.Margin)
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: parsedFont}, nil
}

// Render creates an image of the solve geometry.
func (r *Renderer) Render(g localization.Geometry) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	plot := image.Rect(
		r.config.Margin,
		r.config.Margin,
		r.config.Width-r.config.Margin,
		r.config.Height-r.config.Margin-infoBarHeight,
	)
	vp := newViewport(plot, g)

	ann, err := newAnnotator(img, r.font, r.config.FontSize)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	drawAxes(img, vp)

	palette := Palette(r.config.Theme, len(g.Anchors))
	for i, a := range g.Anchors {
		cx, cy := vp.toPixel(a.X, a.Y)
		dashedCircle(img, cx, cy, a.Range*vp.scale, palette[i])
	}
	for i, a := range g.Anchors {
		cx, cy := vp.toPixel(a.X, a.Y)
		fillCircle(img, cx, cy, anchorRadius, palette[i])

		label := fmt.Sprintf("%s (%s)", a.ID, humanize.SIWithDigits(a.Range, 1, "m"))
		if err = ann.label(label, int(cx+anchorRadius+2), int(cy-anchorRadius-2), palette[i]); err != nil {
			return nil, fmt.Errorf("drawing anchor label: %w", err)
		}
	}

	if g.Solution != nil {
		cx, cy := vp.toPixel(g.Solution.X, g.Solution.Y)
		fillDiamond(img, cx, cy, estimateRadius, estimateColor)
	}

	if err = ann.infoBar(r.info(g), r.config.Margin, plot.Max.Y+r.config.Margin/2); err != nil {
		return nil, fmt.Errorf("drawing info bar: %w", err)
	}

	return img, nil
}

func (r *Renderer) info(g localization.Geometry) []string {
	lines := []string{
		fmt.Sprintf("Device: %s; Solver: %s; Origin: %s", g.DeviceID, g.Solver, g.Origin),
	}

	switch {
	case g.Solution != nil:
		lines = append(lines, fmt.Sprintf("Estimate: (%.2f m, %.2f m); Residual: %s; Iterations: %d; Converged: %t",
			g.Solution.X, g.Solution.Y,
			humanize.SIWithDigits(g.Solution.Residual, 2, "m"),
			g.Solution.Iterations, g.Solution.Converged))
	case g.Failure != "":
		lines = append(lines, "Failure: "+g.Failure)
	}

	return lines
}

// viewport maps local metric coordinates to pixels, keeping the aspect ratio.
// Y grows north in meters and down in pixels.
type viewport struct {
	area         image.Rectangle
	cx, cy       float64
	scale        float64 // pixels per meter
	centerPixelX float64
	centerPixelY float64
}

func newViewport(area image.Rectangle, g localization.Geometry) viewport {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	extend := func(x, y, radius float64) {
		minX = math.Min(minX, x-radius)
		maxX = math.Max(maxX, x+radius)
		minY = math.Min(minY, y-radius)
		maxY = math.Max(maxY, y+radius)
	}

	for _, a := range g.Anchors {
		extend(a.X, a.Y, a.Range)
	}
	if g.Solution != nil {
		extend(g.Solution.X, g.Solution.Y, 0)
	}
	if math.IsInf(minX, 1) {
		extend(0, 0, minSpan)
	}

	spanX := math.Max(maxX-minX, minSpan)
	spanY := math.Max(maxY-minY, minSpan)
	scale := math.Min(float64(area.Dx())/spanX, float64(area.Dy())/spanY)

	return viewport{
		area:         area,
		cx:           (minX + maxX) / 2,
		cy:           (minY + maxY) / 2,
		scale:        scale,
		centerPixelX: float64(area.Min.X+area.Max.X) / 2,
		centerPixelY: float64(area.Min.Y+area.Max.Y) / 2,
	}
}

func (v viewport) toPixel(x, y float64) (float64, float64) {
	return v.centerPixelX + (x-v.cx)*v.scale, v.centerPixelY - (y-v.cy)*v.scale
}

// drawAxes draws the local X and Y axes through the projection origin when visible.
func drawAxes(img *image.RGBA, vp viewport) {
	ox, oy := vp.toPixel(0, 0)

	px, py := int(math.Round(ox)), int(math.Round(oy))
	if px >= vp.area.Min.X && px < vp.area.Max.X {
		for y := vp.area.Min.Y; y < vp.area.Max.Y; y++ {
			img.Set(px, y, axisColor)
		}
	}
	if py >= vp.area.Min.Y && py < vp.area.Max.Y {
		for x := vp.area.Min.X; x < vp.area.Max.X; x++ {
			img.Set(x, py, axisColor)
		}
	}
}

func dashedCircle(img *image.RGBA, cx, cy, radius float64, c color.Color) {
	if radius <= 0 || math.IsInf(radius, 0) || math.IsNaN(radius) {
		return
	}

	circumference := 2 * math.Pi * radius
	steps := int(math.Max(circumference, 16))
	for i := 0; i < steps; i++ {
		arc := float64(i) / float64(steps) * circumference
		if int(arc/dashLength)%2 == 1 {
			continue
		}
		theta := float64(i) / float64(steps) * 2 * math.Pi
		img.Set(int(math.Round(cx+radius*math.Cos(theta))), int(math.Round(cy+radius*math.Sin(theta))), c)
	}
}

func fillCircle(img *image.RGBA, cx, cy, radius float64, c color.Color) {
	const segments = 24

	z := vector.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	z.MoveTo(float32(cx+radius), float32(cy))
	for i := 1; i < segments; i++ {
		theta := float64(i) / segments * 2 * math.Pi
		z.LineTo(float32(cx+radius*math.Cos(theta)), float32(cy+radius*math.Sin(theta)))
	}
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

func fillDiamond(img *image.RGBA, cx, cy, radius float64, c color.Color) {
	z := vector.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	z.MoveTo(float32(cx), float32(cy-radius))
	z.LineTo(float32(cx+radius), float32(cy))
	z.LineTo(float32(cx), float32(cy+radius))
	z.LineTo(float32(cx-radius), float32(cy))
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
}

func newAnnotator(img *image.RGBA, f *truetype.Font, size float64) (*annotator, error) {
	if f == nil {
		return nil, fmt.Errorf("font required")
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) label(s string, x, y int, c color.Color) error {
	a.context.SetSrc(image.NewUniform(c))
	defer a.context.SetSrc(image.Black)

	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) infoBar(lines []string, x, y int) error {
	metrics := a.fontFace.Metrics()
	lineHeight := metrics.Ascent + metrics.Descent

	pt := freetype.Pt(x, y) // baseline of the first line
	pt.Y += metrics.Ascent / 2
	for _, line := range lines {
		if _, err := a.context.DrawString(line, pt); err != nil {
			return err
		}
		pt.Y += lineHeight + fixed.I(2)
	}
	return nil
}
