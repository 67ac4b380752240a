package audio

import (
	"math"
	"testing"
)

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	// Two frames: L=100 R=200 averages to 150, L=-32768 R=-32768 stays put.
	in := []byte{100, 0, 200, 0, 0x00, 0x80, 0x00, 0x80}
	out := StereoToMono(in)

	if len(out) != 4 {
		t.Fatalf("output length = %d, want 4", len(out))
	}
	if got := int16(out[0]) | int16(out[1])<<8; got != 150 {
		t.Errorf("frame 0 = %d, want 150", got)
	}
	if got := int16(out[2]) | int16(out[3])<<8; got != -32768 {
		t.Errorf("frame 1 = %d, want -32768", got)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	in := make([]byte, 8000*2)
	same := ResampleMono16(in, 16000, 16000)
	if len(same) != len(in) {
		t.Errorf("same-rate resample changed length: %d -> %d", len(in), len(same))
	}

	up := ResampleMono16(in, 8000, 16000)
	if len(up) != len(in)*2 {
		t.Errorf("upsample length = %d, want %d", len(up), len(in)*2)
	}

	down := ResampleMono16(in, 16000, 8000)
	if len(down) != len(in)/2 {
		t.Errorf("downsample length = %d, want %d", len(down), len(in)/2)
	}
}

func TestPCMToFloat64(t *testing.T) {
	t.Parallel()

	in := []byte{0, 0, 0xFF, 0x7F, 0x00, 0x80}
	out := PCMToFloat64(in)

	want := []float64{0, 32767.0 / 32768.0, -1}
	if len(out) != len(want) {
		t.Fatalf("length = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}
