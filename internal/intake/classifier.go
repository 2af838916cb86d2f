// Package intake turns free-text patient complaints into a coarse urgency
// level and a descriptive, diagnosis-free summary. Classification is
// deliberately keyword-based so it is deterministic and auditable.
package intake

import (
	"strings"
	"unicode/utf8"
)

// Urgency levels assigned to complaints.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

const summaryLimit = 800

var highMarkers = []string{
	"chest pain",
	"difficulty breathing",
	"shortness of breath",
	"unconscious",
	"seizure",
	"bleeding",
	"severe",
	"pregnant and bleeding",
}

var mediumMarkers = []string{
	"fever",
	"vomit",
	"vomiting",
	"pain",
	"injury",
	"diarrhea",
	"dizziness",
}

// Classifier triages complaint text by marker phrases. The zero value is
// ready to use.
type Classifier struct{}

// NewClassifier returns a keyword classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the urgency level and a capped, diagnosis-free summary
// for a complaint. Empty complaints come back low urgency with a generic
// summary.
func (c *Classifier) Classify(complaint string) (urgency, summary string) {
	text := strings.ToLower(complaint)

	urgency = UrgencyLow
	if containsAny(text, highMarkers) {
		urgency = UrgencyHigh
	} else if containsAny(text, mediumMarkers) {
		urgency = UrgencyMedium
	}

	trimmed := strings.TrimSpace(complaint)
	if trimmed == "" {
		trimmed = "Patient requested OPD consultation."
	}
	if utf8.RuneCountInString(trimmed) > summaryLimit {
		trimmed = string([]rune(trimmed)[:summaryLimit])
	}

	summary = "Patient-described concern: " + trimmed +
		"\n\nNote: This is a descriptive intake summary. No diagnosis is provided."
	return urgency, summary
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
