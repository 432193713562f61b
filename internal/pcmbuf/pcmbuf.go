// Package pcmbuf holds the decoded PCM for one track: an
// immutable-after-load interleaved float32 array at the canonical output
// layout, plus a mutex-guarded frame cursor. Grounded on the teacher's
// cmd/transform.go decodeAllAudio (drain a decoder fully into memory) and
// zaf/resample usage (canonicalize sample rate before storing).
package pcmbuf

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"sync"

	soxr "github.com/zaf/resample"

	"github.com/mellowtone/atkd/internal/atkerr"
	"github.com/mellowtone/atkd/internal/decode"
)

const (
	// CanonicalRate is the fixed output sample rate every Buffer is stored at.
	CanonicalRate = 44100
	// CanonicalChannels is the fixed channel count every Buffer is stored at.
	CanonicalChannels = 2
)

// Buffer is the decoded sample array for one loaded track.
type Buffer struct {
	samples      []float32 // interleaved, CanonicalChannels per frame
	totalFrames  int
	sourceRate   int
	sourceChans  int

	mu     sync.Mutex
	cursor int // frame index
}

// Load decodes path fully into memory and canonicalizes it to
// CanonicalRate/CanonicalChannels.
func Load(path string) (*Buffer, error) {
	if !decode.Recognised(path) {
		return nil, atkerr.Unsupported(path)
	}

	d, err := decode.Open(path)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	rate, channels, bps := d.GetFormat()
	if rate <= 0 || channels <= 0 {
		return nil, atkerr.Decode(path, fmt.Errorf("invalid format: rate=%d channels=%d", rate, channels))
	}

	raw, _, err := drain(d, channels, bps)
	if err != nil {
		return nil, atkerr.Decode(path, err)
	}

	effectiveBPS := bps
	if rate != CanonicalRate {
		raw, err = resamplePCM16(raw, rate, CanonicalRate, channels)
		if err != nil {
			return nil, atkerr.Decode(path, fmt.Errorf("resample: %w", err))
		}
		effectiveBPS = 16 // soxr.I16 always emits 16-bit PCM
	}

	samples := toCanonicalFloat32(raw, channels, effectiveBPS)
	frames := len(samples) / CanonicalChannels

	return &Buffer{
		samples:     samples,
		totalFrames: frames,
		sourceRate:  rate,
		sourceChans: channels,
	}, nil
}

// drain reads every sample the decoder has to offer into one contiguous
// byte buffer, mirroring cmd/transform.go's decodeAllAudio.
func drain(d decode.Decoder, channels, bps int) ([]byte, int, error) {
	const chunkSamples = 4096
	bytesPerSample := bps / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	chunkBytes := chunkSamples * channels * bytesPerSample

	buf := make([]byte, chunkBytes)
	out := make([]byte, 0, chunkBytes*8)
	total := 0

	for {
		n, err := d.DecodeSamples(chunkSamples, buf)
		if n > 0 {
			out = append(out, buf[:n*channels*bytesPerSample]...)
			total += n
		}
		if err != nil {
			return out, total, nil // any decoder error ends the track; samples so far are kept
		}
		if n == 0 {
			break
		}
	}

	return out, total, nil
}

// resamplePCM16 resamples 16-bit interleaved PCM using the teacher's own
// SoXR binding (github.com/zaf/resample), as in cmd/transform.go.
func resamplePCM16(pcm []byte, fromRate, toRate, channels int) ([]byte, error) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)

	r, err := soxr.New(w, float64(fromRate), float64(toRate), channels, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, fmt.Errorf("new resampler: %w", err)
	}

	if _, err := r.Write(pcm); err != nil {
		r.Close()
		return nil, fmt.Errorf("resample write: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("resample close: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	return out.Bytes(), nil
}

// toCanonicalFloat32 widens packed little-endian signed PCM of bps bits
// (16 when bps is unset) to interleaved
// float32 in [-1, 1], upmixing mono to stereo or downmixing >2 channels by
// averaging, so every Buffer ends up at CanonicalChannels.
func toCanonicalFloat32(pcm []byte, channels, bps int) []float32 {
	bytesPerSample := bps / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	frameBytes := channels * bytesPerSample
	if frameBytes == 0 {
		return nil
	}
	frames := len(pcm) / frameBytes

	out := make([]float32, frames*CanonicalChannels)
	fullScale := float32(int64(1) << (bps - 1))
	for f := 0; f < frames; f++ {
		base := f * frameBytes
		chVals := make([]float32, channels)
		for c := 0; c < channels; c++ {
			off := base + c*bytesPerSample
			if off+bytesPerSample > len(pcm) {
				break
			}
			chVals[c] = float32(signedSample(pcm[off:off+bytesPerSample])) / fullScale
		}

		var l, r float32
		switch channels {
		case 1:
			l, r = chVals[0], chVals[0]
		case 2:
			l, r = chVals[0], chVals[1]
		default:
			var sum float32
			for _, v := range chVals {
				sum += v
			}
			avg := sum / float32(channels)
			l, r = avg, avg
		}

		out[f*2] = clamp1(l)
		out[f*2+1] = clamp1(r)
	}

	return out
}

func clamp1(v float32) float32 {
	return float32(math.Max(-1, math.Min(1, float64(v))))
}

// signedSample reads a little-endian signed PCM sample of 1-4 bytes.
func signedSample(b []byte) int64 {
	var v int64
	for i, by := range b {
		v |= int64(by) << (8 * i)
	}
	// sign-extend from the sample's own bit width
	bits := uint(len(b) * 8)
	shift := 64 - bits
	return (v << shift) >> shift
}

// TotalFrames returns the number of decoded frames.
func (b *Buffer) TotalFrames() int { return b.totalFrames }

// SourceFormat returns the sample rate/channel count the track was decoded
// from, before canonicalization — for logging only.
func (b *Buffer) SourceFormat() (rate, channels int) { return b.sourceRate, b.sourceChans }

// Cursor returns the current read position in frames.
func (b *Buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Seek clamps seconds to [0, total-1] frames and repositions the cursor.
func (b *Buffer) Seek(seconds float64) {
	frame := int(seconds * CanonicalRate)
	if frame < 0 {
		frame = 0
	}
	if b.totalFrames > 0 && frame > b.totalFrames-1 {
		frame = b.totalFrames - 1
	}
	b.mu.Lock()
	b.cursor = frame
	b.mu.Unlock()
}

// Reset moves the cursor back to frame 0.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.cursor = 0
	b.mu.Unlock()
}

// Read copies up to len(dst)/CanonicalChannels frames starting at the
// cursor into dst (interleaved float32) and advances the cursor by the same
// amount. Returns the number of frames copied; a short/zero read means
// end-of-track.
func (b *Buffer) Read(dst []float32) (framesRead int) {
	wantFrames := len(dst) / CanonicalChannels

	b.mu.Lock()
	start := b.cursor
	avail := b.totalFrames - start
	if avail < 0 {
		avail = 0
	}
	n := min(wantFrames, avail)
	if n > 0 {
		copy(dst[:n*CanonicalChannels], b.samples[start*CanonicalChannels:(start+n)*CanonicalChannels])
		b.cursor = start + n
	}
	b.mu.Unlock()

	return n
}

// PositionSeconds reports the cursor position in source-time seconds.
func (b *Buffer) PositionSeconds() float64 {
	return float64(b.Cursor()) / CanonicalRate
}

// DurationSeconds reports total track duration in seconds.
func (b *Buffer) DurationSeconds() float64 {
	return float64(b.totalFrames) / CanonicalRate
}
