package scripts

import (
	"math"
	"strings"
)

func countWords(content string) int {
	return len(strings.Fields(content))
}

// estimateDuration assumes a speaking rate of 150 words per minute.
func estimateDuration(words int) int {
	return max(10, int(float64(words)/2.5))
}

// estimateTokens approximates tokens when a provider reports no usage.
func estimateTokens(words int) int {
	return int(math.Ceil(float64(words) * 4 / 3))
}

func computeCost(tokens int, per1K float64) float64 {
	return roundTo(float64(tokens)/1000*per1K, 4)
}

// qualityScore rates readability from average sentence length.
func qualityScore(content string) float64 {
	words := countWords(content)
	sentences := strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
	if sentences == 0 {
		return 0.5
	}
	avg := float64(words) / float64(sentences)
	if avg >= 10 && avg <= 20 {
		return math.Min(1, 0.7+float64(words)/1000*0.3)
	}
	return math.Max(0.3, 0.7-math.Abs(avg-15)*0.02)
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
