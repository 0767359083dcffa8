package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	marginLeft   = 90
	marginRight  = 130
	marginTop    = 40
	marginBottom = 60
	tickLen      = 5
	colorbarW    = 20
	colorbarGap  = 20
)

var (
	fg   = color.White
	grey = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	face = basicfont.Face7x13
)

func plotArea(b image.Rectangle) image.Rectangle {
	return image.Rect(b.Min.X+marginLeft, b.Min.Y+marginTop, b.Max.X-marginRight, b.Max.Y-marginBottom)
}

// labeler draws axes, ticks and text around the plot area.
type labeler struct {
	img  *image.RGBA
	plot image.Rectangle
}

func (l labeler) text(s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  l.img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// verticalText draws s rotated 90 degrees counter-clockwise, centred on y.
func (l labeler) verticalText(s string, x, y int, c color.Color) {
	w, h := textWidth(s), face.Metrics().Height.Ceil()
	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{Dst: tmp, Src: image.NewUniform(c), Face: face, Dot: fixed.P(0, face.Metrics().Ascent.Ceil())}
	d.DrawString(s)

	top := y - w/2
	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < w; tx++ {
			if px := tmp.RGBAAt(tx, ty); px.A > 0 {
				l.img.SetRGBA(x+ty, top+(w-1-tx), px)
			}
		}
	}
}

func (l labeler) hline(x0, x1, y int) {
	for x := x0; x <= x1; x++ {
		l.img.Set(x, y, fg)
	}
}

func (l labeler) vline(x, y0, y1 int) {
	for y := y0; y <= y1; y++ {
		l.img.Set(x, y, fg)
	}
}

func (l labeler) frame() {
	p := l.plot
	l.hline(p.Min.X-1, p.Max.X, p.Min.Y-1)
	l.hline(p.Min.X-1, p.Max.X, p.Max.Y)
	l.vline(p.Min.X-1, p.Min.Y-1, p.Max.Y)
	l.vline(p.Max.X, p.Min.Y-1, p.Max.Y)
}

func (l labeler) titles(title, subtitle string) {
	y := l.plot.Min.Y - 12
	l.text(title, l.plot.Min.X, y, fg)
	l.text(subtitle, l.plot.Max.X-textWidth(subtitle), y, grey)
}

// timeAxis ticks every minute, labelled with the UTC wall time.
func (l labeler) timeAxis(duration float64, start time.Time) {
	p := l.plot
	if duration > 0 {
		for t := 0.0; t <= math.Round(duration); t += 60 {
			x := p.Min.X + int(t/duration*float64(p.Dx()))
			if x > p.Max.X {
				break
			}
			l.vline(x, p.Max.Y, p.Max.Y+tickLen)
			label := start.Add(time.Duration(t) * time.Second).UTC().Format("15:04")
			l.text(label, x-textWidth(label)/2, p.Max.Y+tickLen+14, fg)
		}
	}

	xlabel := fmt.Sprintf("Start time: %s UTC", start.UTC().Format("2006-01-02 15:04:05"))
	l.text(xlabel, p.Min.X+(p.Dx()-textWidth(xlabel))/2, p.Max.Y+tickLen+38, fg)
}

// freqAxis ticks the relative band [lo, hi] and labels absolute
// frequencies.
func (l labeler) freqAxis(lo, hi float64, base int) {
	p := l.plot
	if hi <= lo {
		return
	}
	step := niceStep((hi - lo) / 8)
	for f := math.Ceil(lo/step) * step; f <= hi; f += step {
		y := p.Max.Y - int((f-lo)/(hi-lo)*float64(p.Dy()))
		l.hline(p.Min.X-1-tickLen, p.Min.X-1, y)
		label := FormatFrequency(int(f) + base)
		l.text(label, p.Min.X-tickLen-4-textWidth(label), y+4, fg)
	}
	l.verticalText("Frequency, Hz", 8, p.Min.Y+p.Dy()/2, fg)
}

func (l labeler) colorbar(vmin, vmax float64, cmap func(float64) color.RGBA) {
	p := l.plot
	bar := image.Rect(p.Max.X+colorbarGap, p.Min.Y, p.Max.X+colorbarGap+colorbarW, p.Max.Y)
	for y := bar.Min.Y; y < bar.Max.Y; y++ {
		v := float64(bar.Max.Y-1-y) / float64(bar.Dy()-1)
		draw.Draw(l.img, image.Rect(bar.Min.X, y, bar.Max.X, y+1), image.NewUniform(cmap(v)), image.Point{}, draw.Src)
	}

	step := niceStep((vmax - vmin) / 7)
	for v := math.Ceil(vmin/step) * step; v <= vmax; v += step {
		y := bar.Max.Y - 1 - int((v-vmin)/(vmax-vmin)*float64(bar.Dy()-1))
		l.hline(bar.Max.X, bar.Max.X+tickLen, y)
		l.text(strconv.Itoa(int(v)), bar.Max.X+tickLen+3, y+4, fg)
	}
	l.verticalText("dB", bar.Max.X+40, p.Min.Y+p.Dy()/2, fg)
}

// niceStep rounds raw up to 1, 2, 2.5 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	if raw <= 0 {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		if raw <= m*mag {
			return m * mag
		}
	}
	return 10 * mag
}

// FormatFrequency formats hz with "." as the thousands separator.
func FormatFrequency(hz int) string {
	sign := ""
	if hz < 0 {
		sign, hz = "-", -hz
	}
	digits := strconv.Itoa(hz)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
