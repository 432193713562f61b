// Package dsp implements the per-callback audio transform chain: source
// read sizing, rate conversion (tape/linear or WSOLA-style
// pitch-preserving), volume scaling, and clipping. Operates purely on
// caller-supplied []float32 slices — no locking, no allocation on the
// steady-state path once Chain's scratch buffers are sized.
package dsp

import (
	"math"

	"github.com/mellowtone/atkd/internal/pcmbuf"
)

const channels = pcmbuf.CanonicalChannels

// Mode selects the rate-conversion algorithm.
type Mode int

const (
	ModeTape Mode = iota
	ModePitchPreserving
)

// Source is anything the chain can pull canonical-rate frames from — the
// decoded buffer in production, a synthetic generator in tests.
type Source interface {
	Read(dst []float32) (framesRead int)
}

// Chain holds the working buffers for one playback session's DSP pipeline,
// pre-sized to the largest expected callback frame count so the hot path
// after the first callback never allocates.
type Chain struct {
	srcScratch  []float32 // source-rate frames pulled from Source
	hann        []float32 // cached Hann window for WSOLA
	hannLen     int
	wsolaSum    []float32 // WSOLA overlap-add accumulator, sized to maxFrames*channels
	wsolaWinSum []float32 // WSOLA window-weight accumulator, sized to maxFrames
}

// NewChain pre-sizes scratch buffers for a maximum callback size of
// maxFrames output frames at up to 4x rate (the top of the allowed rate
// range), so Process never grows them afterward.
func NewChain(maxFrames int) *Chain {
	maxSourceFrames := maxFrames*4 + 1024
	return &Chain{
		srcScratch:  make([]float32, maxSourceFrames*channels),
		wsolaSum:    make([]float32, maxFrames*channels),
		wsolaWinSum: make([]float32, maxFrames),
	}
}

// Process renders exactly outFrames of output (outFrames*channels float32
// samples) into out, pulling from src, resampling per rate/mode, then
// applying volume and clipping. Returns the number of source frames
// actually consumed from src, for the caller to advance any position
// tracking that isn't already owned by Source itself.
func (c *Chain) Process(out []float32, outFrames int, src Source, rate float64, mode Mode, volumePct int) (sourceFramesConsumed int) {
	if len(out) < outFrames*channels {
		panic("dsp: out buffer too small")
	}

	srcFrames := outFrames
	if rate != 1.0 {
		srcFrames = int(math.Round(float64(outFrames) * rate))
	}
	if srcFrames < 1 {
		srcFrames = 1
	}

	need := srcFrames * channels
	if cap(c.srcScratch) < need {
		c.srcScratch = make([]float32, need)
	}
	chunk := c.srcScratch[:need]

	got := src.Read(chunk)
	chunk = chunk[:got*channels]

	switch {
	case rate == 1.0:
		copyOrZeroPad(out, outFrames, chunk, got)
	case mode == ModeTape:
		c.tapeResample(out, outFrames, chunk, got)
	default:
		c.wsolaResample(out, outFrames, chunk, got)
	}

	vol := float32(volumePct) / 100.0
	for i := 0; i < outFrames*channels; i++ {
		out[i] = clip(out[i] * vol)
	}

	return got
}

func copyOrZeroPad(out []float32, outFrames int, chunk []float32, gotFrames int) {
	n := min(outFrames, gotFrames)
	copy(out[:n*channels], chunk[:n*channels])
	for i := n * channels; i < outFrames*channels; i++ {
		out[i] = 0
	}
}

// tapeResample linearly interpolates the source chunk to exactly outFrames
// output frames per channel. Changes pitch with speed, cheap and
// phase-coherent — "tape" mode per spec.
func (c *Chain) tapeResample(out []float32, outFrames int, chunk []float32, gotFrames int) {
	if gotFrames == 0 {
		for i := range out[:outFrames*channels] {
			out[i] = 0
		}
		return
	}

	step := float64(gotFrames-1) / float64(max(outFrames-1, 1))
	if gotFrames == 1 {
		step = 0
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= gotFrames-1 {
			i0 = gotFrames - 1
		}
		i1 := min(i0+1, gotFrames-1)
		frac := float32(pos - float64(i0))

		for ch := 0; ch < channels; ch++ {
			a := chunk[i0*channels+ch]
			b := chunk[i1*channels+ch]
			out[i*channels+ch] = a + (b-a)*frac
		}
	}
}

// wsolaResample implements the simplified WSOLA-style overlap-add stretch
// described in spec §4.2: Hann window of 1024 frames (or min(1024,
// gotFrames)), input hop = window/2, output hop scaled so the window grid
// maps source duration onto outFrames.
func (c *Chain) wsolaResample(out []float32, outFrames int, chunk []float32, gotFrames int) {
	for i := range out[:outFrames*channels] {
		out[i] = 0
	}
	if gotFrames == 0 {
		return
	}

	window := min(1024, gotFrames)
	c.ensureHann(window)
	hopIn := window / 2
	if hopIn < 1 {
		hopIn = 1
	}
	hopOut := int(math.Round(float64(hopIn) * float64(gotFrames) / float64(outFrames)))
	if hopOut < 1 {
		hopOut = 1
	}

	if cap(c.wsolaSum) < outFrames*channels {
		c.wsolaSum = make([]float32, outFrames*channels)
	}
	if cap(c.wsolaWinSum) < outFrames {
		c.wsolaWinSum = make([]float32, outFrames)
	}
	sum := c.wsolaSum[:outFrames*channels]
	winSum := c.wsolaWinSum[:outFrames]
	for i := range sum {
		sum[i] = 0
	}
	for i := range winSum {
		winSum[i] = 0
	}

	for i := 0; ; i++ {
		inStart := i * hopIn
		if inStart >= gotFrames {
			break
		}
		outStart := i * hopOut
		if outStart >= outFrames {
			break
		}

		segLen := min(window, gotFrames-inStart, outFrames-outStart)
		for j := 0; j < segLen; j++ {
			w := c.hann[j]
			winSum[outStart+j] += w
			for ch := 0; ch < channels; ch++ {
				sum[(outStart+j)*channels+ch] += chunk[(inStart+j)*channels+ch] * w
			}
		}
	}

	for f := 0; f < outFrames; f++ {
		if winSum[f] > 1e-8 {
			for ch := 0; ch < channels; ch++ {
				out[f*channels+ch] = sum[f*channels+ch] / winSum[f]
			}
		}
	}
}

func (c *Chain) ensureHann(window int) {
	if c.hannLen == window {
		return
	}
	c.hann = make([]float32, window)
	for i := 0; i < window; i++ {
		c.hann[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(window-1))))
	}
	c.hannLen = window
}

func clip(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
