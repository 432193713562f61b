// Package decode defines the common audio decoder interface and a
// format-dispatching factory, shaped after the teacher's pkg/decoders
// factory: open by extension, decode interleaved PCM samples on demand.
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mellowtone/atkd/internal/atkerr"
	"github.com/mellowtone/atkd/internal/decode/flac"
	"github.com/mellowtone/atkd/internal/decode/m4a"
	"github.com/mellowtone/atkd/internal/decode/mp3"
	"github.com/mellowtone/atkd/internal/decode/ogg"
	"github.com/mellowtone/atkd/internal/decode/opus"
	"github.com/mellowtone/atkd/internal/decode/wav"
)

// Decoder is the common interface every format package implements. Samples
// are frame-interleaved PCM; DecodeSamples mirrors the teacher's
// types.AudioDecoder shape (sample count in, sample count out, not bytes).
type Decoder interface {
	Open(fileName string) error
	Close() error
	// GetFormat returns sample rate (Hz), channel count, bits per sample.
	GetFormat() (rate, channels, bitsPerSample int)
	// DecodeSamples decodes up to `samples` frames into audio (PCM,
	// little-endian, bitsPerSample/8 bytes per channel sample). Returns the
	// number of samples actually decoded; 0 with a nil error means clean EOF.
	DecodeSamples(samples int, audio []byte) (int, error)
}

// Extensions lists the recognised audio extensions (case-insensitive): the
// spec §6 set plus ".fla", a short FLAC extension.
var Extensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".fla":  true,
	".wav":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
}

// Recognised reports whether path has a supported audio extension.
func Recognised(path string) bool {
	return Extensions[strings.ToLower(filepath.Ext(path))]
}

// Open picks a decoder by extension and opens path with it.
func Open(path string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Extensions[ext] {
		return nil, atkerr.Unsupported(ext)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, atkerr.NotFound(path)
		}
		return nil, atkerr.Decode(path, err)
	}

	var d Decoder
	switch ext {
	case ".mp3":
		d = mp3.NewDecoder()
	case ".flac", ".fla":
		d = flac.NewDecoder()
	case ".wav":
		d = wav.NewDecoder()
	case ".ogg":
		d = ogg.NewDecoder()
	case ".opus":
		d = opus.NewDecoder()
	case ".m4a", ".aac":
		d = m4a.NewDecoder()
	default:
		return nil, atkerr.Unsupported(ext)
	}

	if err := d.Open(path); err != nil {
		return nil, atkerr.Decode(path, fmt.Errorf("open: %w", err))
	}
	return d, nil
}
