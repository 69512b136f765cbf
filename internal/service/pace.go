package service

import (
	"fmt"
	"math"
)

// DefaultTargetMinutes is used when a session has no usable target.
const DefaultTargetMinutes = 5.5

// Pace grades an average active time per question against a target.
type Pace struct {
	Label string  `json:"pace_label"`
	Emoji string  `json:"pace_emoji"`
	Score int     `json:"score"`
	Ratio float64 `json:"ratio"`
}

// ComputePace maps (average active seconds, target minutes) to a pace grade.
// The score is 100 at ratio 1 and decays exponentially with distance from
// target; the 1.2 decay constant is part of the contract with stored reports.
func ComputePace(avgActiveSeconds, targetMinutes float64) Pace {
	if targetMinutes <= 0 {
		targetMinutes = DefaultTargetMinutes
	}
	if avgActiveSeconds <= 0 {
		return Pace{Label: "No questions", Emoji: "😴", Score: 0, Ratio: 0}
	}

	ratio := avgActiveSeconds / (targetMinutes * 60)

	var label, emoji string
	switch {
	case ratio < 0.5:
		label, emoji = "way too fast", "🚀"
	case ratio < 0.7:
		label, emoji = "fast", "🏃"
	case ratio < 0.9:
		label, emoji = "slightly fast", "⏩"
	case ratio < 1.1:
		label, emoji = "on target", "🎯"
	case ratio < 1.3:
		label, emoji = "a bit slow", "🐢"
	default:
		label, emoji = "slow", "🐌"
	}

	score := 100 * math.Exp(-1.2*math.Abs(ratio-1))
	score = math.Min(100, math.Max(0, score))

	return Pace{Label: label, Emoji: emoji, Score: int(math.Round(score)), Ratio: ratio}
}

// FormatMMSS renders a duration in seconds as mm:ss. Negative values clamp
// to 00:00.
func FormatMMSS(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := int(seconds) / 60
	secs := int(math.Round(seconds - float64(minutes*60)))
	if secs == 60 {
		minutes++
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
