// Package loader decodes sample files into planar buffers that can be
// registered as shared resources.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for file extensions no decoder handles.
var ErrUnsupportedFormat = errors.New("loader: unsupported format")

// mp3Channels is fixed by the decoder, which always produces stereo.
const mp3Channels = 2

// Sample is a decoded file. Data is planar: channel c occupies
// Data[c*Frames:(c+1)*Frames].
type Sample struct {
	Channels   int
	Frames     int
	SampleRate float64
	Data       []float64
}

// File decodes the file at path, choosing the decoder by extension.
func File(path string) (Sample, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
	default:
		return Sample{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Sample{}, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	s, err := MP3(f)
	if err != nil {
		return Sample{}, fmt.Errorf("loader: %s: %w", path, err)
	}

	return s, nil
}

// MP3 decodes an MPEG-1/2 layer III stream.
func MP3(r io.Reader) (Sample, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return Sample{}, fmt.Errorf("mp3: %w", err)
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return Sample{}, fmt.Errorf("mp3: %w", err)
	}

	ch, data := planar16(pcm, mp3Channels)
	if len(data) == 0 {
		return Sample{}, errors.New("mp3: no audio frames")
	}

	return Sample{
		Channels:   ch,
		Frames:     len(data) / ch,
		SampleRate: float64(d.SampleRate()),
		Data:       data,
	}, nil
}

// planar16 converts interleaved little-endian signed 16-bit PCM into planar
// samples in [-1, 1). A trailing partial frame is dropped.
func planar16(pcm []byte, channels int) (int, []float64) {
	const bytesPerSample = 2

	frames := len(pcm) / (bytesPerSample * channels)
	out := make([]float64, frames*channels)

	for f := range frames {
		for c := range channels {
			off := (f*channels + c) * bytesPerSample
			v := int16(binary.LittleEndian.Uint16(pcm[off:]))
			out[c*frames+f] = float64(v) / 32768
		}
	}

	return channels, out
}
