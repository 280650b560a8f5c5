// Package plot renders a trace as a PNG with a scope-like graticule and
// SI-formatted axis labels.
package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi      float64 = 72
	size     float64 = 12
	divX             = 12
	divY             = 8
	marginL          = 80
	marginR          = 16
	marginT          = 28
	marginB          = 28
	minWidth         = marginL + marginR + divX
)

var (
	background = image.NewUniform(color.RGBA{0, 0, 0, 255})
	gridColor  = color.RGBA{60, 60, 60, 255}
	traceColor = color.RGBA{255, 215, 0, 255}
)

// Plotter draws traces.
type Plotter struct {
	Width, Height int

	context *freetype.Context
}

// NewPlotter returns a Plotter for images of width x height pixels.
func NewPlotter(width, height int) (*Plotter, error) {
	if width < minWidth || height < marginT+marginB+divY {
		return nil, fmt.Errorf("image of %dx%d is too small", width, height)
	}
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)
	return &Plotter{Width: width, Height: height, context: context}, nil
}

// Render draws samples taken interval seconds apart.
func (p *Plotter) Render(samples []float64, interval float64, title string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	draw.Draw(img, img.Bounds(), background, image.Point{}, draw.Src)
	p.context.SetClip(img.Bounds())
	p.context.SetDst(img)

	area := image.Rect(marginL, marginT, p.Width-marginR, p.Height-marginB)
	lo, hi := yRange(samples)
	p.drawGrid(img, area, lo, hi, interval*float64(len(samples)))
	drawTrace(img, area, samples, lo, hi)

	info := fmt.Sprintf("%s samples", humanize.Comma(int64(len(samples))))
	if interval > 0 {
		info += ", " + si(1/interval, "Sa/s")
	}
	if title != "" {
		info = title + "   " + info
	}
	_, _ = p.context.DrawString(info, freetype.Pt(marginL, marginT-10))
	return img
}

// WritePNG renders samples and encodes the image to w.
func (p *Plotter) WritePNG(w io.Writer, samples []float64, interval float64, title string) error {
	return png.Encode(w, p.Render(samples, interval, title))
}

func (p *Plotter) drawGrid(img *image.RGBA, area image.Rectangle, lo, hi, span float64) {
	for i := 0; i <= divX; i++ {
		x := area.Min.X + i*(area.Dx()-1)/divX
		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		if i%2 == 0 && span > 0 {
			t := span * float64(i) / divX
			_, _ = p.context.DrawString(si(t, "s"), freetype.Pt(x-12, area.Max.Y+18))
		}
	}
	for i := 0; i <= divY; i++ {
		y := area.Min.Y + i*(area.Dy()-1)/divY
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		v := hi - (hi-lo)*float64(i)/divY
		_, _ = p.context.DrawString(si(v, "V"), freetype.Pt(4, y+4))
	}
}

// drawTrace draws the minimum to maximum of the samples falling in each
// pixel column, joined to the previous column.
func drawTrace(img *image.RGBA, area image.Rectangle, samples []float64, lo, hi float64) {
	n := len(samples)
	if n == 0 {
		return
	}
	w := area.Dx()
	toY := func(v float64) int {
		return area.Max.Y - 1 - int(math.Round((v-lo)/(hi-lo)*float64(area.Dy()-1)))
	}
	prev := math.NaN()
	for x := 0; x < w; x++ {
		i0 := x * n / w
		i1 := (x + 1) * n / w
		if i1 <= i0 {
			i1 = i0 + 1
		}
		mn, mx := samples[i0], samples[i0]
		for _, v := range samples[i0:i1] {
			mn, mx = math.Min(mn, v), math.Max(mx, v)
		}
		if !math.IsNaN(prev) {
			mn, mx = math.Min(mn, prev), math.Max(mx, prev)
		}
		prev = samples[i1-1]
		for y := toY(mx); y <= toY(mn); y++ {
			img.Set(area.Min.X+x, y, traceColor)
		}
	}
}

// yRange returns the displayed voltage range with a 5% margin.
func yRange(samples []float64) (lo, hi float64) {
	if len(samples) == 0 {
		return -1, 1
	}
	lo, hi = samples[0], samples[0]
	for _, v := range samples {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*0.05, 0.5)
	}
	return lo - pad, hi + pad
}

func si(v float64, unit string) string {
	f, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%0.2f %s%s", f, prefix, unit)
}
