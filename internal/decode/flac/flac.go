// Package flac adapts github.com/drgolem/go-flac to decode.Decoder.
package flac

import (
	"fmt"

	goflac "github.com/drgolem/go-flac/flac"
)

// Decoder wraps goflac.FlacDecoder, defaulting to 16-bit output.
type Decoder struct {
	decoder  *goflac.FlacDecoder
	rate     int
	channels int
	bps      int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, d.bps
}

func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("flac: decoder not initialized")
	}
	return d.decoder.DecodeSamples(samples, audio)
}

func (d *Decoder) Open(fileName string) error {
	decoder, err := goflac.NewFlacFrameDecoder(16)
	if err != nil {
		return fmt.Errorf("flac: create decoder: %w", err)
	}

	if err := decoder.Open(fileName); err != nil {
		decoder.Delete()
		return fmt.Errorf("flac: open %s: %w", fileName, err)
	}

	rate, channels, bps := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	d.bps = bps
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
