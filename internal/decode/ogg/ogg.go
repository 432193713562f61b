// Package ogg adapts github.com/jfreymuth/oggvorbis (already an indirect
// dependency of the teacher's go.mod, pulled in transitively via
// github.com/jfreymuth/vorbis) to decode.Decoder. oggvorbis decodes directly
// to float32 samples, so DecodeSamples here packs them to 16-bit PCM to keep
// the same on-the-wire byte shape as the other decoders.
package ogg

import (
	"fmt"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

type Decoder struct {
	file     *os.File
	reader   *oggvorbis.Reader
	rate     int
	channels int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("ogg: open: %w", err)
	}

	reader, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("ogg: new reader: %w", err)
	}

	d.file = file
	d.reader = reader
	d.rate = reader.SampleRate()
	d.channels = reader.Channels()
	return nil
}

func (d *Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, 16
}

func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("ogg: decoder not initialized")
	}

	buf := make([]float32, samples*d.channels)
	n, err := d.reader.Read(buf)
	frames := n / d.channels

	for i := 0; i < frames*d.channels; i++ {
		v := buf[i]
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sample := int16(v * 32767)
		offset := i * 2
		if offset+2 > len(audio) {
			break
		}
		audio[offset] = byte(sample & 0xFF)
		audio[offset+1] = byte((sample >> 8) & 0xFF)
	}

	if err != nil && frames == 0 {
		return 0, err
	}
	return frames, nil
}
