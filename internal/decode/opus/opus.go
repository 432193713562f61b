// Package opus adapts github.com/drgolem/go-opus (already an indirect
// dependency of the teacher's go.mod) to decode.Decoder, following the same
// NewDecoder/Open/Close/GetFormat/DecodeSamples shape the same author uses
// in go-flac and go-mpg123.
package opus

import (
	"fmt"

	goopus "github.com/drgolem/go-opus/opus"
)

type Decoder struct {
	decoder  *goopus.OpusDecoder
	rate     int
	channels int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, 16
}

func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("opus: decoder not initialized")
	}
	return d.decoder.DecodeSamples(samples, audio)
}

func (d *Decoder) Open(fileName string) error {
	decoder, err := goopus.NewOpusFileDecoder()
	if err != nil {
		return fmt.Errorf("opus: create decoder: %w", err)
	}

	if err := decoder.Open(fileName); err != nil {
		decoder.Delete()
		return fmt.Errorf("opus: open %s: %w", fileName, err)
	}

	rate, channels := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	return nil
}

func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}
