package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// wavFormatPCM is the only WAVE format tag the decoder accepts.
const wavFormatPCM = 1

// ErrNotWAV is returned when a file does not carry a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// DecodeWAVFile reads the file at path and returns its 16-bit little-endian
// PCM data together with the sample rate and channel count.
//
// Only uncompressed PCM with 16 bits per sample is supported; anything else
// returns an error. Chunks other than "fmt " and "data" are skipped.
func DecodeWAVFile(path string) (pcm []byte, sampleRate, channels int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: read %q: %w", path, err)
	}
	return DecodeWAV(data)
}

// DecodeWAV parses a RIFF/WAVE byte stream. See [DecodeWAVFile].
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}

	var (
		haveFmt       bool
		bitsPerSample int
	)

	// Walk the chunk list. Chunks are word-aligned: a chunk with an odd size
	// is followed by one pad byte.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, 0, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: fmt chunk too small (%d bytes)", size)
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))

			if format != wavFormatPCM {
				return nil, 0, 0, fmt.Errorf("audio: unsupported WAVE format tag %d (want PCM)", format)
			}
			if bitsPerSample != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bitsPerSample)
			}
			if channels < 1 || channels > 2 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported channel count %d", channels)
			}
			if sampleRate <= 0 {
				return nil, 0, 0, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, 0, errors.New("audio: data chunk before fmt chunk")
			}
			pcm = data[body : body+size]
			return pcm, sampleRate, channels, nil
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	return nil, 0, 0, errors.New("audio: no data chunk found")
}
