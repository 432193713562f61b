package pcmbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(totalFrames int) *Buffer {
	samples := make([]float32, totalFrames*CanonicalChannels)
	for f := 0; f < totalFrames; f++ {
		samples[f*CanonicalChannels] = float32(f)
		samples[f*CanonicalChannels+1] = float32(f)
	}
	return &Buffer{
		samples:     samples,
		totalFrames: totalFrames,
		sourceRate:  CanonicalRate,
		sourceChans: CanonicalChannels,
	}
}

func TestReadAdvancesCursorAndShortReadsAtEnd(t *testing.T) {
	b := newTestBuffer(10)

	dst := make([]float32, 4*CanonicalChannels)
	n := b.Read(dst)
	require.Equal(t, 4, n)
	assert.Equal(t, 4, b.Cursor())

	dst = make([]float32, 100*CanonicalChannels)
	n = b.Read(dst)
	assert.Equal(t, 6, n, "a read past the end must return a short read")
	assert.Equal(t, 10, b.Cursor())

	n = b.Read(dst)
	assert.Equal(t, 0, n, "reading at end of buffer returns zero frames")
}

func TestSeekClampsToValidRange(t *testing.T) {
	b := newTestBuffer(44100) // exactly 1 second

	b.Seek(-5)
	assert.Equal(t, 0, b.Cursor())

	b.Seek(0.5)
	assert.Equal(t, 22050, b.Cursor())

	b.Seek(1000)
	assert.Equal(t, 44099, b.Cursor(), "seek must clamp to total-1 frames")
}

func TestResetReturnsCursorToZero(t *testing.T) {
	b := newTestBuffer(100)
	b.Seek(1.0)
	require.NotEqual(t, 0, b.Cursor())

	b.Reset()
	assert.Equal(t, 0, b.Cursor())
}

func TestPositionAndDurationSeconds(t *testing.T) {
	b := newTestBuffer(44100 * 2)
	assert.InDelta(t, 2.0, b.DurationSeconds(), 1e-9)

	b.Seek(1.0)
	assert.InDelta(t, 1.0, b.PositionSeconds(), 1e-9)
}

func TestSignedSampleSignExtends(t *testing.T) {
	assert.Equal(t, int64(-1), signedSample([]byte{0xff}))
	assert.Equal(t, int64(127), signedSample([]byte{0x7f}))
	assert.Equal(t, int64(-32768), signedSample([]byte{0x00, 0x80}))
	assert.Equal(t, int64(32767), signedSample([]byte{0xff, 0x7f}))
}

func TestToCanonicalFloat32MonoUpmix(t *testing.T) {
	pcm := []byte{0xff, 0x7f} // one mono 16-bit sample at full scale
	out := toCanonicalFloat32(pcm, 1, 16)

	require.Len(t, out, CanonicalChannels)
	assert.InDelta(t, 1.0, out[0], 1e-4)
	assert.InDelta(t, 1.0, out[1], 1e-4)
}
