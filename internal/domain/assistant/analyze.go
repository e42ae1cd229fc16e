package assistant

import (
	"regexp"
	"strings"
)

const maxSuggestions = 3

var (
	listItemPattern = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)

	highUrgencyPattern = regexp.MustCompile(`(?i)(emergency|urgent|severe bleeding|heavy bleeding|difficulty breathing|can't breathe|knocked out|broken jaw|trauma|` +
		`urgence|saignement abondant|difficulté à respirer|dent cassée|` +
		`spoed|noodgeval|hevige bloeding|moeite met ademen)`)

	mediumUrgencyPattern = regexp.MustCompile(`(?i)(pain|swelling|swollen|ache|fever|abscess|bleeding|sensitive|` +
		`douleur|mal (?:à|a|aux) |gonflement|gonflé|fièvre|abcès|saigne|` +
		`pijn|zwelling|gezwollen|koorts|abces|bloedt|gevoelig)`)

	seeDentistPattern = regexp.MustCompile(`(?i)(see (?:a|your) dentist|visit (?:a|your) dentist|book an appointment|make an appointment|` +
		`consultez|prenez rendez-vous|` +
		`tandarts|maak een afspraak)`)
)

// ExtractSuggestions returns up to three bullet or numbered lines from text.
func ExtractSuggestions(text string) []string {
	out := []string{}
	for _, m := range listItemPattern.FindAllStringSubmatch(text, -1) {
		item := strings.TrimSpace(m[1])
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// ClassifyUrgency grades the patient's message. Emergency keywords are high
// and pain or swelling keywords are medium.
func ClassifyUrgency(text string) string {
	switch {
	case highUrgencyPattern.MatchString(text):
		return UrgencyHigh
	case mediumUrgencyPattern.MatchString(text):
		return UrgencyMedium
	}
	return UrgencyLow
}

// RecommendsDentist reports whether the reply should carry a visit
// recommendation.
func RecommendsDentist(urgency, reply string) bool {
	return urgency != UrgencyLow || seeDentistPattern.MatchString(reply)
}

func analyze(resp *ChatResponse, userMessage string) {
	resp.Suggestions = ExtractSuggestions(resp.Response)
	resp.Urgency = ClassifyUrgency(userMessage)
	resp.RecommendDentist = RecommendsDentist(resp.Urgency, resp.Response)
}
