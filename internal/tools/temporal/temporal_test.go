package temporal

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/evakess/callsense/internal/emotion"
)

func judgment(e emotion.Type, i emotion.Intensity) emotion.Judgment {
	return emotion.Judgment{PrimaryEmotion: e, Intensity: i, Confidence: 0.8}
}

func TestTrackerTrend(t *testing.T) {
	t.Parallel()

	type entry struct {
		e emotion.Type
		i emotion.Intensity
	}
	tests := []struct {
		name    string
		entries []entry
		want    emotion.Trend
	}{
		{
			name: "empty history",
			want: emotion.Unknown,
		},
		{
			name:    "single entry",
			entries: []entry{{emotion.Panic, emotion.High}},
			want:    emotion.Unknown,
		},
		{
			name: "escalating distress",
			entries: []entry{
				{emotion.Fear, emotion.Low},
				{emotion.Distress, emotion.Medium},
				{emotion.Panic, emotion.Extreme},
			},
			want: emotion.Escalating,
		},
		{
			name: "deescalating distress",
			entries: []entry{
				{emotion.Panic, emotion.Extreme},
				{emotion.Fear, emotion.Low},
			},
			want: emotion.Deescalating,
		},
		{
			name: "equal intensities are stable",
			entries: []entry{
				{emotion.Fear, emotion.High},
				{emotion.Distress, emotion.High},
			},
			want: emotion.Stable,
		},
		{
			name: "no distress entries is stable",
			entries: []entry{
				{emotion.Neutral, emotion.Low},
				{emotion.Sadness, emotion.Extreme},
			},
			want: emotion.Stable,
		},
		{
			name: "one distress entry is stable",
			entries: []entry{
				{emotion.Neutral, emotion.Low},
				{emotion.Panic, emotion.High},
			},
			want: emotion.Stable,
		},
		{
			// Non-distress entries in between are ignored, not compared.
			name: "intermediate non-distress ignored",
			entries: []entry{
				{emotion.Fear, emotion.Low},
				{emotion.Anger, emotion.Extreme},
				{emotion.Panic, emotion.High},
			},
			want: emotion.Escalating,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := NewTracker()
			for i, e := range tc.entries {
				if err := tr.Add(judgment(e.e, e.i), float64(i)*10); err != nil {
					t.Fatalf("Add: %v", err)
				}
			}

			s := tr.Series()
			if s.Trend != tc.want {
				t.Errorf("Trend = %q, want %q", s.Trend, tc.want)
			}
			if len(s.History) != len(tc.entries) {
				t.Errorf("history length = %d, want %d", len(s.History), len(tc.entries))
			}
		})
	}
}

func TestTrackerAddRejectsInvalid(t *testing.T) {
	t.Parallel()

	tr := NewTracker()

	if err := tr.Add(judgment("bogus", emotion.High), 0); err == nil {
		t.Error("Add accepted invalid emotion")
	}
	if err := tr.Add(judgment(emotion.Fear, "severe"), 0); err == nil {
		t.Error("Add accepted invalid intensity")
	}
	if err := tr.Add(emotion.Judgment{PrimaryEmotion: emotion.Fear, Intensity: emotion.High, Confidence: 1.5}, 0); err == nil {
		t.Error("Add accepted out-of-range confidence")
	}
	if err := tr.Add(judgment(emotion.Fear, emotion.High), -1); err == nil {
		t.Error("Add accepted negative call time")
	}

	if got := len(tr.Series().History); got != 0 {
		t.Errorf("history length after rejected adds = %d, want 0", got)
	}
}

func TestTrackerReset(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	if err := tr.Add(judgment(emotion.Fear, emotion.High), 0); err != nil {
		t.Fatal(err)
	}
	tr.Reset()
	if got := len(tr.Series().History); got != 0 {
		t.Errorf("history length after Reset = %d, want 0", got)
	}
}

func TestToolHandlers(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	ts := Tools(tr)
	if len(ts) != 2 {
		t.Fatalf("Tools() returned %d tools, want 2", len(ts))
	}
	add, trend := ts[0], ts[1]

	out, err := add.Handler(context.Background(),
		`{"call_time": 12.5, "primary_emotion": "fear", "intensity": "high", "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("add handler: %v", err)
	}
	var res addResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode add result: %v", err)
	}
	if res.Status != "success" {
		t.Errorf("status = %q, want success", res.Status)
	}

	// Invalid entries surface as an error result, not a handler failure.
	out, err = add.Handler(context.Background(),
		`{"call_time": 0, "primary_emotion": "bogus", "intensity": "high", "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("add handler (invalid entry): %v", err)
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "error" || !strings.Contains(res.Message, "bogus") {
		t.Errorf("result = %+v, want error mentioning the bad emotion", res)
	}

	out, err = trend.Handler(context.Background(), "{}")
	if err != nil {
		t.Fatalf("trend handler: %v", err)
	}
	var series emotion.TemporalSeries
	if err := json.Unmarshal([]byte(out), &series); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if series.Trend != emotion.Unknown {
		t.Errorf("Trend = %q, want %q", series.Trend, emotion.Unknown)
	}
	if len(series.History) != 1 {
		t.Errorf("history length = %d, want 1", len(series.History))
	}
}
