// Package engine owns the PortAudio output device and the currently loaded
// decoded buffer, and exposes thread-safe transport operations to the
// session controller. Grounded on the teacher's pkg/audioplayer.Player:
// same atomic-scalar-for-volume/rate discipline, same brief-mutex-around-
// cursor-and-flags discipline, same OpenCallback pattern as
// internal/fileplayer.FilePlayer (but here the audio callback reads
// straight from an in-memory pcmbuf.Buffer via the DSP chain instead of
// draining a producer-filled ring buffer, since the whole track is already
// decoded by the time Play is called).
package engine

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/mellowtone/atkd/internal/dsp"
	"github.com/mellowtone/atkd/internal/pcmbuf"
)

// bytesPerFrame is the wire size of one output frame: 16-bit signed PCM,
// CanonicalChannels per frame. The teacher's own players (pkg/audioplayer,
// internal/fileplayer) only ever configure portaudio.SampleFmtInt16/24/32 —
// Int16 is used here as the narrowest of those, matching cmd/transform.go's
// own 16-bit PCM convention for decoded-to-device output.
const bytesPerFrame = channels * 2

const channels = pcmbuf.CanonicalChannels

// RateMode mirrors dsp.Mode at the engine's public API boundary.
type RateMode = dsp.Mode

const (
	RateModePitchPreserving = dsp.ModePitchPreserving
	RateModeTape            = dsp.ModeTape
)

// EndCallback is invoked exactly once when the audio callback reaches
// end-of-buffer while not paused. It must not block or call back into the
// engine — in practice it posts to a channel the session controller reads.
type EndCallback func()

// Engine owns one PortAudio stream and the track currently loaded into it.
type Engine struct {
	deviceIndex     int
	framesPerBuffer int

	stream  *portaudio.PaStream
	chain   *dsp.Chain
	scratch []float32 // float32 working buffer for one callback, pre-sized in New

	mu      sync.Mutex
	buf     *pcmbuf.Buffer
	active  bool // a render task should run
	playing bool // produce sound rather than silence

	volume atomic.Int64  // 0-100
	rate   atomic.Uint64 // float64 bits, [0.25, 4.0]
	mode   atomic.Int32  // dsp.Mode

	endCallback atomic.Pointer[EndCallback]
}

// New creates an Engine bound to deviceIndex, with framesPerBuffer as the
// PortAudio callback size.
func New(deviceIndex, framesPerBuffer int) *Engine {
	e := &Engine{
		deviceIndex:     deviceIndex,
		framesPerBuffer: framesPerBuffer,
		chain:           dsp.NewChain(framesPerBuffer),
		scratch:         make([]float32, framesPerBuffer*channels),
	}
	e.volume.Store(100)
	e.rate.Store(math.Float64bits(1.0))
	e.mode.Store(int32(dsp.ModePitchPreserving))
	return e
}

// SetEndCallback installs the end-of-track handler.
func (e *Engine) SetEndCallback(fn EndCallback) {
	e.endCallback.Store(&fn)
}

// Load stops the device, drops any existing buffer, decodes a new one and
// resets the cursor. No samples are pulled from a half-initialised buffer:
// the device is always stopped first.
func (e *Engine) Load(path string) error {
	if err := e.Stop(); err != nil {
		return err
	}

	buf, err := pcmbuf.Load(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.buf = buf
	e.mu.Unlock()

	rate, chans := buf.SourceFormat()
	slog.Info("track loaded", "path", path, "source_rate", rate, "source_channels", chans, "frames", buf.TotalFrames())
	return nil
}

// Play requires a loaded buffer; sets the cursor, marks active+playing, and
// starts the device if it isn't already running.
func (e *Engine) Play(startSeconds float64) error {
	e.mu.Lock()
	buf := e.buf
	e.mu.Unlock()
	if buf == nil {
		return fmt.Errorf("engine: no track loaded")
	}

	buf.Seek(startSeconds)

	e.mu.Lock()
	e.active = true
	e.playing = true
	e.mu.Unlock()

	if e.stream == nil {
		return e.start()
	}
	return nil
}

// Pause clears the playing flag; the device keeps running and the callback
// emits silence.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// Unpause sets playing and starts the device if it isn't running.
func (e *Engine) Unpause() error {
	e.mu.Lock()
	e.playing = true
	running := e.stream != nil
	e.mu.Unlock()

	if !running {
		return e.start()
	}
	return nil
}

// Stop clears active+playing, closes the device, and resets the cursor.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.active = false
	e.playing = false
	stream := e.stream
	e.stream = nil
	buf := e.buf
	e.mu.Unlock()

	if stream != nil {
		if err := stream.StopStream(); err != nil {
			slog.Warn("engine: stop stream failed", "error", err)
		}
		if err := stream.CloseCallback(); err != nil {
			slog.Warn("engine: close stream failed", "error", err)
		}
	}

	if buf != nil {
		buf.Reset()
	}
	return nil
}

// Seek repositions the cursor under the buffer's own lock.
func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	buf := e.buf
	e.mu.Unlock()
	if buf == nil {
		return fmt.Errorf("engine: no track loaded")
	}
	buf.Seek(seconds)
	return nil
}

// SetVolume clamps to [0, 100].
func (e *Engine) SetVolume(v int) {
	e.volume.Store(int64(clampInt(v, 0, 100)))
}

// Volume returns the current volume, [0, 100].
func (e *Engine) Volume() int {
	return int(e.volume.Load())
}

// SetRate clamps speed to [0.25, 4.0] and stores the rate mode.
func (e *Engine) SetRate(speed float64, mode RateMode) {
	speed = clampFloat(speed, 0.25, 4.0)
	e.rate.Store(math.Float64bits(speed))
	e.mode.Store(int32(mode))
}

// Rate returns the current playback rate.
func (e *Engine) Rate() float64 {
	return math.Float64frombits(e.rate.Load())
}

// CurrentPosition reports position in source-time seconds regardless of
// rate or mode.
func (e *Engine) CurrentPosition() float64 {
	e.mu.Lock()
	buf := e.buf
	e.mu.Unlock()
	if buf == nil {
		return 0
	}
	return buf.PositionSeconds()
}

// Duration reports the loaded track's total duration in seconds.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	buf := e.buf
	e.mu.Unlock()
	if buf == nil {
		return 0
	}
	return buf.DurationSeconds()
}

// IsPlaying reports whether the callback is currently producing sound.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// DeviceInfo describes one PortAudio output device.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices enumerates PortAudio devices with at least one output
// channel, via the PaDeviceInfo surface every PortAudio binding exposes.
func ListDevices() ([]DeviceInfo, error) {
	count, err := portaudio.GetDeviceCount()
	if err != nil {
		return nil, fmt.Errorf("engine: device count: %w", err)
	}

	devices := make([]DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info, err := portaudio.GetDeviceInfo(i)
		if err != nil {
			continue
		}
		if info.MaxOutputChannels <= 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:             i,
			Name:              info.Name,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}
	return devices, nil
}

// SetDeviceIndex changes the output device. If the stream is running, it is
// stopped and restarted against the new device.
func (e *Engine) SetDeviceIndex(idx int) error {
	e.mu.Lock()
	running := e.stream != nil
	wasPlaying := e.playing
	e.mu.Unlock()

	if running {
		if err := e.Stop(); err != nil {
			return err
		}
	}

	e.deviceIndex = idx

	if running {
		if err := e.start(); err != nil {
			return err
		}
		e.mu.Lock()
		e.active = true
		e.playing = wasPlaying
		e.mu.Unlock()
	}
	return nil
}

// DeviceIndex returns the currently configured output device index.
func (e *Engine) DeviceIndex() int {
	return e.deviceIndex
}

func (e *Engine) start() error {
	stream := &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  e.deviceIndex,
			ChannelCount: channels,
			SampleFormat: portaudio.SampleFmtInt16,
		},
		SampleRate: pcmbuf.CanonicalRate,
	}

	if err := stream.OpenCallback(e.framesPerBuffer, e.audioCallback); err != nil {
		return fmt.Errorf("engine: open stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("engine: start stream: %w", err)
	}

	e.mu.Lock()
	e.stream = stream
	e.mu.Unlock()
	return nil
}

// audioCallback runs on PortAudio's realtime thread. It locks briefly to
// read flags and snapshot the buffer reference, releases before running the
// DSP chain (which only touches its own scratch buffers and the buffer's
// own internally-locked cursor), then checks for end-of-track.
func (e *Engine) audioCallback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	e.mu.Lock()
	active := e.active
	playing := e.playing
	buf := e.buf
	e.mu.Unlock()

	n := int(frameCount)
	if cap(e.scratch) < n*channels {
		// PortAudio called with more frames than framesPerBuffer configured at
		// start() time; grow once rather than short-writing the callback.
		e.scratch = make([]float32, n*channels)
	}
	samples := e.scratch[:n*channels]

	if !active || buf == nil {
		writeSilenceAndFlush(output, samples)
		return portaudio.Continue
	}

	if !playing {
		writeSilenceAndFlush(output, samples)
		return portaudio.Continue
	}

	rate := e.Rate()
	mode := dsp.Mode(e.mode.Load())
	volume := e.Volume()

	consumed := e.chain.Process(samples, n, buf, rate, mode, volume)
	packInt16LE(output, samples)

	if consumed == 0 {
		e.mu.Lock()
		e.active = false
		e.playing = false
		e.mu.Unlock()

		if cb := e.endCallback.Load(); cb != nil {
			(*cb)()
		}
	}

	return portaudio.Continue
}

func writeSilenceAndFlush(output []byte, scratch []float32) {
	for i := range scratch {
		scratch[i] = 0
	}
	packInt16LE(output, scratch)
}

// packInt16LE quantizes clipped [-1, 1] float32 samples to signed 16-bit PCM.
func packInt16LE(output []byte, samples []float32) {
	for i, s := range samples {
		off := i * 2
		if off+2 > len(output) {
			break
		}
		v := int16(math.Round(float64(s) * 32767))
		binary.LittleEndian.PutUint16(output[off:off+2], uint16(v))
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
