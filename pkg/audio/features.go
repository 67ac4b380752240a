package audio

import (
	"log/slog"
	"math"

	"github.com/evakess/callsense/internal/emotion"
)

const (
	// DefaultSampleRate is the target rate all clips are resampled to before
	// analysis.
	DefaultSampleRate = 16_000

	// frameSize and frameHop define the analysis windows for the pitch
	// contour. At 16 kHz a 1024-sample frame is 64 ms, long enough to span
	// two periods of the lowest pitch the tracker searches for.
	frameSize = 1024
	frameHop  = 512

	// pitchMinHz and pitchMaxHz bound the pitch search to the plausible
	// human range. pitchMaxHz also caps the reported mean pitch so the
	// extractor's output invariant (pitch ≤ 1000) holds by construction.
	pitchMinHz = 50.0
	pitchMaxHz = 1000.0

	// voicedRMSThreshold is the per-frame RMS energy (on [-1, 1] samples)
	// below which a frame is considered unvoiced and excluded from the
	// pitch contour.
	voicedRMSThreshold = 0.01
)

// FeatureExtractor derives [emotion.AudioFeatures] from an audio recording.
//
// The zero value is not usable; create instances with [NewFeatureExtractor].
// Safe for concurrent use: the extractor holds only immutable configuration.
type FeatureExtractor struct {
	sampleRate int
}

// NewFeatureExtractor returns an extractor that resamples every clip to
// sampleRate before analysis. A non-positive rate selects
// [DefaultSampleRate].
func NewFeatureExtractor(sampleRate int) *FeatureExtractor {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FeatureExtractor{sampleRate: sampleRate}
}

// Extract analyses the recording at path and returns its feature descriptors.
//
// Any decode or processing failure yields the all-zero AudioFeatures rather
// than an error: a degenerate-but-valid output the classifier maps to a
// neutral judgment. The extractor never fails its caller.
func (e *FeatureExtractor) Extract(path string) emotion.AudioFeatures {
	pcm, rate, channels, err := DecodeWAVFile(path)
	if err != nil {
		slog.Error("audio feature extraction failed", "path", path, "err", err)
		return emotion.AudioFeatures{}
	}
	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	pcm = ResampleMono16(pcm, rate, e.sampleRate)

	samples := PCMToFloat64(pcm)
	if len(samples) == 0 {
		slog.Warn("audio clip contains no samples", "path", path)
		return emotion.AudioFeatures{}
	}

	features := e.analyze(samples)
	slog.Info("extracted audio features",
		"path", path,
		"pitch_hz", features.PitchHz,
		"volume", features.Volume,
		"speech_rate", features.SpeechRate,
		"prosody_variance", features.ProsodyVariance,
	)
	return features
}

// analyze computes the four descriptors from normalised mono samples.
func (e *FeatureExtractor) analyze(samples []float64) emotion.AudioFeatures {
	voiced := e.pitchContour(samples)

	var pitch, variance float64
	if len(voiced) > 0 {
		pitch = mean(voiced)
		variance = populationVariance(voiced, pitch)
	}

	durationSec := float64(len(samples)) / float64(e.sampleRate)

	return emotion.AudioFeatures{
		PitchHz:         pitch,
		Volume:          rms(samples),
		SpeechRate:      float64(zeroCrossings(samples)) / durationSec,
		ProsodyVariance: variance,
	}
}

// pitchContour walks the signal in hops, keeps frames whose energy clears the
// voicing threshold, and estimates each voiced frame's pitch by normalised
// autocorrelation over the human pitch band.
func (e *FeatureExtractor) pitchContour(samples []float64) []float64 {
	var voiced []float64

	for start := 0; start+frameSize <= len(samples); start += frameHop {
		frame := samples[start : start+frameSize]
		if rms(frame) < voicedRMSThreshold {
			continue
		}
		if p, ok := e.framePitch(frame); ok {
			voiced = append(voiced, p)
		}
	}
	return voiced
}

// framePitch estimates the fundamental frequency of one frame. Returns false
// when no autocorrelation peak in the search band stands out from the frame's
// own energy, which filters unvoiced fricatives and noise bursts.
func (e *FeatureExtractor) framePitch(frame []float64) (float64, bool) {
	minLag := int(float64(e.sampleRate) / pitchMaxHz)
	maxLag := int(float64(e.sampleRate) / pitchMinHz)
	if maxLag >= len(frame) {
		maxLag = len(frame) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0, false
	}

	var energy float64
	for _, s := range frame {
		energy += s * s
	}
	if energy == 0 {
		return 0, false
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(frame); i++ {
			corr += frame[i] * frame[i+lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	// Periodicity check: the best peak must carry a meaningful share of the
	// frame's energy or the frame is treated as unvoiced.
	if bestLag == 0 || bestCorr/energy < 0.3 {
		return 0, false
	}

	pitch := float64(e.sampleRate) / float64(bestLag)
	if pitch < pitchMinHz || pitch > pitchMaxHz {
		return 0, false
	}
	return pitch, true
}

// rms returns the root-mean-square energy of samples, 0 for empty input.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// zeroCrossings counts sign changes between adjacent samples.
func zeroCrossings(samples []float64) int {
	count := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			count++
		}
	}
	return count
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// populationVariance matches the original analyzer's variance convention:
// a single voiced sample yields 0, not NaN.
func populationVariance(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}
