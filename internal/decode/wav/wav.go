// Package wav adapts github.com/youpy/go-wav to decode.Decoder.
package wav

import (
	"fmt"
	"os"

	"github.com/youpy/go-wav"
)

// Decoder wraps wav.Reader, widening per-sample int values into packed
// little-endian PCM the way the teacher's pkg/decoders/wav does.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	bps      int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("wav: open: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("wav: read format: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("wav: unsupported audio format %d (only PCM)", format.AudioFormat)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)
	return nil
}

func (d *Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bps
}

func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("wav: decoder not initialized")
	}

	bytesPerSample := d.bps / 8
	total := 0

	for i := 0; i < samples; i++ {
		data, err := d.reader.ReadSamples(1)
		if err != nil {
			return total, err
		}
		if len(data) == 0 {
			return total, nil
		}

		for ch := 0; ch < d.channels; ch++ {
			if ch >= len(data[0].Values) {
				break
			}
			value := data[0].Values[ch]
			offset := (total*d.channels + ch) * bytesPerSample
			if offset+bytesPerSample > len(audio) {
				return total, nil
			}

			switch d.bps {
			case 8:
				audio[offset] = byte(value)
			case 16:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
			case 24:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
				audio[offset+2] = byte((value >> 16) & 0xFF)
			case 32:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
				audio[offset+2] = byte((value >> 16) & 0xFF)
				audio[offset+3] = byte((value >> 24) & 0xFF)
			default:
				return total, fmt.Errorf("wav: unsupported bits per sample %d", d.bps)
			}
		}
		total++
	}

	return total, nil
}
