// Package render draws labelled spectrogram images from raw audio captures.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Config controls the spectrogram. BaseFreqHz is the receiver frequency the
// audio is relative to; MinFreqHz and MaxFreqHz may be given either absolute
// or relative to it.
type Config struct {
	Colormap   string
	NFFT       int
	NOverlap   int
	VMin       float64 // dB
	VMax       float64 // dB
	MinFreqHz  int
	MaxFreqHz  int
	BaseFreqHz int
	Title      string
	Subtitle   string
	Width      int
	Height     int
}

func (c *Config) setDefaults() {
	if c.NFFT <= 0 {
		c.NFFT = 16384
	}
	if c.NOverlap < 0 || c.NOverlap >= c.NFFT {
		c.NOverlap = c.NFFT / 2
	}
	if c.VMax <= c.VMin {
		c.VMin, c.VMax = 30, 100
	}
	if c.MaxFreqHz <= c.MinFreqHz {
		c.MinFreqHz, c.MaxFreqHz = c.BaseFreqHz+300, c.BaseFreqHz+2500
	}
	if c.Width <= 0 {
		c.Width = 1300
	}
	if c.Height <= 0 {
		c.Height = 800
	}
}

// Spectrogram renders PNG spectrograms.
type Spectrogram struct {
	cfg Config
}

// NewSpectrogram creates a renderer
func NewSpectrogram(cfg Config) *Spectrogram {
	cfg.setDefaults()
	return &Spectrogram{cfg: cfg}
}

// RenderFile decodes the WAV at wavPath and writes its spectrogram to
// pngPath. start labels the time axis.
func (s *Spectrogram) RenderFile(ctx context.Context, wavPath, pngPath string, start time.Time) error {
	samples, rate, err := ReadWAV(wavPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img := s.Render(samples, rate, start)

	out, err := os.Create(pngPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", pngPath, err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode %s: %w", pngPath, err)
	}
	return out.Close()
}

// ReadWAV returns the first channel of a PCM WAV file and its sample rate.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, errors.New("wav has no sample rate")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	samples := make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float64(buf.Data[i]))
	}
	return samples, buf.Format.SampleRate, nil
}

// Render draws the spectrogram of samples.
func (s *Spectrogram) Render(samples []float64, rate int, start time.Time) *image.RGBA {
	cfg := s.cfg
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	plot := plotArea(img.Bounds())
	lo, hi := s.relativeBand(rate)

	raster := s.raster(samples, rate, lo, hi)
	xdraw.NearestNeighbor.Scale(img, plot, raster, raster.Bounds(), draw.Src, nil)

	duration := float64(len(samples)) / float64(rate)
	l := labeler{img: img, plot: plot}
	l.frame()
	l.titles(cfg.Title, cfg.Subtitle)
	l.timeAxis(duration, start)
	l.freqAxis(lo, hi, cfg.BaseFreqHz)
	l.colorbar(cfg.VMin, cfg.VMax, s.colormap())
	return img
}

// relativeBand returns the displayed band relative to the base frequency,
// clamped to what the sample rate can represent.
func (s *Spectrogram) relativeBand(rate int) (float64, float64) {
	base := s.cfg.BaseFreqHz
	lo, hi := s.cfg.MinFreqHz, s.cfg.MaxFreqHz
	if lo >= base {
		lo, hi = lo-base, hi-base
	}
	nyquist := float64(rate) / 2
	return math.Max(0, float64(lo)), math.Min(nyquist, float64(hi))
}

// raster computes one pixel per STFT frame and frequency bin in [lo, hi],
// highest frequency on top.
func (s *Spectrogram) raster(samples []float64, rate int, lo, hi float64) *image.RGBA {
	nfft := s.cfg.NFFT
	step := nfft - s.cfg.NOverlap

	if len(samples) < nfft {
		padded := make([]float64, nfft)
		copy(padded, samples)
		samples = padded
	}
	frames := 1 + (len(samples)-nfft)/step

	binHz := float64(rate) / float64(nfft)
	firstBin := int(math.Ceil(lo / binHz))
	lastBin := int(math.Floor(hi / binHz))
	if lastBin < firstBin {
		lastBin = firstBin
	}
	rows := lastBin - firstBin + 1

	window := make([]float64, nfft)
	var windowPower float64
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(nfft))
		windowPower += window[i] * window[i]
	}
	scale := 1 / (float64(rate) * windowPower)

	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, nfft/2+1)
	cmap := s.colormap()
	span := s.cfg.VMax - s.cfg.VMin

	raster := image.NewRGBA(image.Rect(0, 0, frames, rows))
	for f := 0; f < frames; f++ {
		offset := f * step
		for i := range frame {
			frame[i] = samples[offset+i] * window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)

		for b := firstBin; b <= lastBin && b < len(coeffs); b++ {
			c := coeffs[b]
			psd := (real(c)*real(c) + imag(c)*imag(c)) * scale
			if b != 0 && b != nfft/2 {
				psd *= 2
			}
			db := s.cfg.VMin
			if psd > 0 {
				db = 10 * math.Log10(psd)
			}
			raster.Set(f, rows-1-(b-firstBin), cmap((db-s.cfg.VMin)/span))
		}
	}
	return raster
}

func (s *Spectrogram) colormap() func(float64) color.RGBA {
	if s.cfg.Colormap == "gray" || s.cfg.Colormap == "grey" {
		return gray
	}
	return jet
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func jet(v float64) color.RGBA {
	v = clamp01(v)
	channel := func(center float64) uint8 {
		return uint8(255 * clamp01(1.5-math.Abs(4*v-center)))
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}

func gray(v float64) color.RGBA {
	g := uint8(255 * clamp01(v))
	return color.RGBA{R: g, G: g, B: g, A: 255}
}
