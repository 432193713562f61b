// Package m4a adapts github.com/llehouerou/go-m4a (MP4/M4A container
// demuxing) and github.com/llehouerou/go-aac (AAC frame decode) to
// decode.Decoder. Bare .aac files skip the m4a container step and feed the
// ADTS stream straight to the AAC decoder.
package m4a

import (
	"fmt"
	"os"
	"strings"

	"github.com/llehouerou/go-aac"
	"github.com/llehouerou/go-m4a"
)

type Decoder struct {
	file     *os.File
	demuxer  *m4a.Demuxer
	decoder  *aac.Decoder
	rate     int
	channels int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("m4a: open: %w", err)
	}
	d.file = file

	if strings.HasSuffix(strings.ToLower(fileName), ".aac") {
		decoder, err := aac.NewDecoder(file)
		if err != nil {
			file.Close()
			return fmt.Errorf("m4a: new aac decoder: %w", err)
		}
		d.decoder = decoder
		d.rate, d.channels = decoder.SampleRate(), decoder.Channels()
		return nil
	}

	demuxer, err := m4a.NewDemuxer(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("m4a: new demuxer: %w", err)
	}

	decoder, err := aac.NewDecoderFromConfig(demuxer.AudioConfig())
	if err != nil {
		file.Close()
		return fmt.Errorf("m4a: new aac decoder from config: %w", err)
	}

	d.demuxer = demuxer
	d.decoder = decoder
	d.rate, d.channels = demuxer.SampleRate(), demuxer.Channels()
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
	if d.decoder == nil {
		return 0, fmt.Errorf("m4a: decoder not initialized")
	}

	if d.demuxer != nil {
		frame, err := d.demuxer.NextFrame()
		if err != nil {
			return 0, err
		}
		return d.decoder.DecodeFrame(frame, audio)
	}

	return d.decoder.DecodeSamples(samples, audio)
}
