package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/internal/engine"
)

// operatorLoop reads emergency messages from the terminal, runs both
// analyses per turn and prints the results plus the full session context.
// Returns nil when the operator types "exit" or input ends.
func (a *App) operatorLoop(ctx context.Context) error {
	fmt.Fprintln(a.out, "Emergency Response System")
	fmt.Fprintln(a.out, "Enter emergency messages (type 'exit' to quit):")

	// Reads run on their own goroutine so that context cancellation ends the
	// loop even while a terminal read is blocked.
	lines := make(chan string)
	scanner := bufio.NewScanner(a.in)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(a.out, "\nEmergency message: ")

		var text string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			text = l
		}

		line := strings.TrimSpace(text)
		if strings.EqualFold(line, "exit") {
			return nil
		}
		if line == "" {
			continue
		}

		fmt.Fprintln(a.out, "\n=== ANALYZING EMERGENCY MESSAGE ===")

		fmt.Fprintln(a.out, "\n[1/2] Running emotion analysis...")
		start := time.Now()
		res, err := a.engine.Analyze(ctx, engine.Input{Text: line})
		if err != nil {
			slog.Error("emotion analysis failed", "error", err)
			continue
		}
		fmt.Fprintf(a.out, "Emotion analysis completed in %.2f seconds\n", time.Since(start).Seconds())

		fmt.Fprintln(a.out, "\n[2/2] Running situation assessment...")
		start = time.Now()
		assessment, err := a.engine.AnalyzeSituation(ctx, line)
		if err != nil {
			slog.Error("situation analysis failed", "error", err)
			continue
		}
		fmt.Fprintf(a.out, "Situation assessment completed in %.2f seconds\n", time.Since(start).Seconds())

		a.printResults(res.Judgment, assessment)
		a.printContext()
	}
}

// printResults renders both analyses the way operators expect to read them.
func (a *App) printResults(j emotion.Judgment, s *emotion.SituationAssessment) {
	fmt.Fprintln(a.out, "\n=== ANALYSIS RESULTS ===")

	fmt.Fprintln(a.out, "\nEmotion Analysis:")
	fmt.Fprintf(a.out, "Primary emotion: %s\n", j.PrimaryEmotion)
	if j.SecondaryEmotion != "" {
		fmt.Fprintf(a.out, "Secondary emotion: %s\n", j.SecondaryEmotion)
	}
	fmt.Fprintf(a.out, "Intensity: %s\n", j.Intensity)
	fmt.Fprintf(a.out, "Confidence: %.2f\n", j.Confidence)
	fmt.Fprintf(a.out, "Reasoning: %s\n", j.Reasoning)

	fmt.Fprintln(a.out, "\nSituation Assessment:")
	fmt.Fprintf(a.out, "Emergency Category: %s\n", s.Category)
	fmt.Fprintf(a.out, "Severity Level: %s\n", s.Severity)
	fmt.Fprintln(a.out, "\nKey Details:")
	for _, d := range s.KeyDetails {
		fmt.Fprintf(a.out, "- %s\n", d)
	}
	fmt.Fprintln(a.out, "\nRequired Actions:")
	for _, act := range s.RequiredActions {
		fmt.Fprintf(a.out, "- %s\n", act)
	}
	fmt.Fprintln(a.out, "\nRequired Resources:")
	for _, r := range s.RequiredResources {
		fmt.Fprintf(a.out, "- %s\n", r)
	}
	fmt.Fprintf(a.out, "\nConfidence: %.2f\n", s.Confidence)
	fmt.Fprintf(a.out, "Reasoning: %s\n", s.Reasoning)
}

// printContext renders the full ordered session context log.
func (a *App) printContext() {
	fmt.Fprintln(a.out, "\n=== CURRENT CONTEXT ===")

	entries := a.store.Entries("")
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No context entries available")
		return
	}
	for i, entry := range entries {
		fmt.Fprintf(a.out, "\nEntry %d - %s (%s):\n", i+1, entry.Producer, entry.RecordedAt.Format(time.RFC3339))

		keys := make([]string, 0, len(entry.Payload))
		for k := range entry.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			switch v := entry.Payload[k].(type) {
			case []string:
				fmt.Fprintf(a.out, "  %s:\n", k)
				for _, item := range v {
					fmt.Fprintf(a.out, "    - %s\n", item)
				}
			case []any:
				fmt.Fprintf(a.out, "  %s:\n", k)
				for _, item := range v {
					fmt.Fprintf(a.out, "    - %v\n", item)
				}
			default:
				fmt.Fprintf(a.out, "  %s: %v\n", k, v)
			}
		}
	}
}
