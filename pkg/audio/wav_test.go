package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// encodeWAV builds a minimal RIFF/WAVE byte stream around 16-bit PCM samples.
func encodeWAV(samples []int16, sampleRate, channels int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	var buf bytes.Buffer
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1000, -1000, 32767, -32768, 42}
	data := encodeWAV(samples, 8000, 1)

	pcm, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
	if len(pcm) != len(samples)*2 {
		t.Fatalf("pcm length = %d, want %d", len(pcm), len(samples)*2)
	}
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if got != want {
			t.Errorf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	data := encodeWAV([]int16{1, 2, 3}, 16000, 1)

	// Splice a LIST chunk with an odd size (and its pad byte) between the
	// fmt and data chunks.
	extra := []byte("LIST")
	extra = binary.LittleEndian.AppendUint32(extra, 3)
	extra = append(extra, 'x', 'y', 'z', 0)

	spliced := append([]byte{}, data[:36]...)
	spliced = append(spliced, extra...)
	spliced = append(spliced, data[36:]...)
	binary.LittleEndian.PutUint32(spliced[4:], uint32(len(spliced)-8))

	pcm, rate, _, err := DecodeWAV(spliced)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || len(pcm) != 6 {
		t.Errorf("got rate %d, %d pcm bytes; want 16000, 6", rate, len(pcm))
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	t.Parallel()

	valid := encodeWAV([]int16{0, 0}, 16000, 1)

	nonPCM := append([]byte{}, valid...)
	binary.LittleEndian.PutUint16(nonPCM[20:], 3) // IEEE float format tag

	eightBit := append([]byte{}, valid...)
	binary.LittleEndian.PutUint16(eightBit[34:], 8)

	truncated := append([]byte{}, valid...)
	binary.LittleEndian.PutUint32(truncated[40:], 9999)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("JUNKJUNKJUNKJUNK")},
		{"non-pcm format", nonPCM},
		{"eight bit depth", eightBit},
		{"truncated data chunk", truncated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, _, err := DecodeWAV(tc.data); err == nil {
				t.Error("DecodeWAV succeeded, want error")
			}
		})
	}
}

func TestDecodeWAVNotWAV(t *testing.T) {
	t.Parallel()

	_, _, _, err := DecodeWAV([]byte("RIFFxxxxJUNKdata"))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}
