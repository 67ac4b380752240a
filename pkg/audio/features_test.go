package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/evakess/callsense/internal/emotion"
)

// writeSineWAV synthesizes a mono sine tone and writes it to dir.
func writeSineWAV(t *testing.T, dir string, freq float64, sampleRate int, durationSec, amplitude float64) string {
	t.Helper()

	n := int(float64(sampleRate) * durationSec)
	samples := make([]int16, n)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		samples[i] = int16(v * 32767)
	}

	path := filepath.Join(dir, "tone.wav")
	if err := os.WriteFile(path, encodeWAV(samples, sampleRate, 1), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestExtractSineTone(t *testing.T) {
	t.Parallel()

	const freq = 220.0
	path := writeSineWAV(t, t.TempDir(), freq, DefaultSampleRate, 1.0, 0.5)

	f := NewFeatureExtractor(DefaultSampleRate).Extract(path)

	if math.Abs(f.PitchHz-freq) > 10 {
		t.Errorf("PitchHz = %v, want within 10 of %v", f.PitchHz, freq)
	}
	// A 0.5-amplitude sine has RMS amplitude/sqrt2.
	if math.Abs(f.Volume-0.5/math.Sqrt2) > 0.05 {
		t.Errorf("Volume = %v, want about %v", f.Volume, 0.5/math.Sqrt2)
	}
	// A sine crosses zero twice per cycle.
	if math.Abs(f.SpeechRate-2*freq) > 5 {
		t.Errorf("SpeechRate = %v, want about %v", f.SpeechRate, 2*freq)
	}
	if f.ProsodyVariance < 0 {
		t.Errorf("ProsodyVariance = %v, want >= 0", f.ProsodyVariance)
	}
}

func TestExtractResamplesInput(t *testing.T) {
	t.Parallel()

	const freq = 180.0
	path := writeSineWAV(t, t.TempDir(), freq, 8000, 1.0, 0.5)

	f := NewFeatureExtractor(DefaultSampleRate).Extract(path)

	if math.Abs(f.PitchHz-freq) > 10 {
		t.Errorf("PitchHz = %v after resampling, want within 10 of %v", f.PitchHz, freq)
	}
}

func TestExtractInvariants(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tones := []struct {
		name string
		freq float64
		amp  float64
	}{
		{"quiet low tone", 70, 0.02},
		{"loud high tone", 600, 0.9},
		{"near silence", 100, 0.001},
	}

	ex := NewFeatureExtractor(DefaultSampleRate)
	for _, tc := range tones {
		t.Run(tc.name, func(t *testing.T) {
			sub := filepath.Join(dir, tc.name)
			if err := os.MkdirAll(sub, 0o755); err != nil {
				t.Fatal(err)
			}
			f := ex.Extract(writeSineWAV(t, sub, tc.freq, DefaultSampleRate, 0.5, tc.amp))

			if f.PitchHz < 0 || f.PitchHz > 1000 {
				t.Errorf("PitchHz = %v, want within [0, 1000]", f.PitchHz)
			}
			if f.Volume < 0 || f.SpeechRate < 0 || f.ProsodyVariance < 0 {
				t.Errorf("negative descriptor: %+v", f)
			}
		})
	}
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	f := NewFeatureExtractor(0).Extract(filepath.Join(t.TempDir(), "missing.wav"))
	if f != (emotion.AudioFeatures{}) {
		t.Errorf("features = %+v, want all zero", f)
	}
}
