package subtitles

import (
	"regexp"
	"strings"
)

// Speech-to-text models tend to emit channel credits and subscribe prompts
// over silence or music. Such cues never belong in a localized track.
var creditPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)subtitles? by`),
	regexp.MustCompile(`(?i)amara\.org`),
	regexp.MustCompile(`(?i)thanks? (you )?for watching`),
	regexp.MustCompile(`(?i)(like and )?subscribe to (my|our|the) channel`),
	regexp.MustCompile(`(?i)https?://`),
	regexp.MustCompile(`(?i)\bwww\.`),
	regexp.MustCompile(`字幕(由|制作|提供)`),
	regexp.MustCompile(`请不吝点赞`),
	regexp.MustCompile(`点赞.{0,4}订阅`),
}

// CleanStats reports the effects of cue cleanup.
type CleanStats struct {
	RemovedCues int
}

// Clean drops credit and blank cues, trims whitespace on every line, and
// renumbers the survivors from 1.
func Clean(cues []Cue) ([]Cue, CleanStats) {
	cleaned := make([]Cue, 0, len(cues))
	var stats CleanStats
	for _, cue := range cues {
		cue.Text = normalizeText(cue.Text)
		if cue.Text == "" || isCredit(cue.Text) {
			stats.RemovedCues++
			continue
		}
		cue.Index = len(cleaned) + 1
		cleaned = append(cleaned, cue)
	}
	return cleaned, stats
}

func isCredit(text string) bool {
	payload := strings.Join(strings.Fields(text), " ")
	for _, pattern := range creditPatterns {
		if pattern.MatchString(payload) {
			return true
		}
	}
	return false
}

func normalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}
