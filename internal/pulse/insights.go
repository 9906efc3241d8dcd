package pulse

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DedupMode selects how Insights detects an already-present advisory.
type DedupMode string

const (
	// DedupSubstring skips an advisory if any existing entry contains it.
	DedupSubstring DedupMode = "substring"
	// DedupExact skips an advisory only if an identical entry exists.
	DedupExact DedupMode = "exact"
)

// Advisory texts shown in the insights panel.
const (
	InsightServiceRequest   = "• Pulse completion is still suggested for Service Request Cases"
	InsightDifferentUpdater = "• Pulse was last updated by a different user. Check if the existing pulse can be improved with new info."
	InsightMandatoryMissing = "• Pulse is missing mandatory KCS fields. Fill in at least the Symptom and one Investigate field (Data Collected, Research or Research Internal)."
	InsightHowToRedirect    = "• Case is eligible for How-To Redirect process according to the current error categorization. Proceed with How-To redirect process."
)

// StaleInsight is the staleness advisory for the given threshold.
func StaleInsight(maxAge time.Duration) string {
	return fmt.Sprintf("• Pulse has not been updated in the last %d hours. Check if the existing pulse can be improved with new info.", int(maxAge.Hours()))
}

// Insights is an ordered, deduplicated list of advisories for one evaluation.
type Insights struct {
	mode  DedupMode
	items []string
}

// NewInsights returns an empty list. An empty mode means DedupSubstring.
func NewInsights(mode DedupMode) *Insights {
	if mode == "" {
		mode = DedupSubstring
	}
	return &Insights{mode: mode}
}

// Add appends insight unless it is already present. It reports whether the
// insight was added.
func (in *Insights) Add(insight string) bool {
	if in.contains(insight) {
		return false
	}
	in.items = append(in.items, insight)
	return true
}

func (in *Insights) contains(insight string) bool {
	if in.mode == DedupExact {
		return slices.Contains(in.items, insight)
	}
	for _, existing := range in.items {
		if strings.Contains(existing, insight) {
			return true
		}
	}
	return false
}

// Len returns the number of advisories.
func (in *Insights) Len() int {
	return len(in.items)
}

// List returns a copy of the advisories in insertion order.
func (in *Insights) List() []string {
	out := make([]string, len(in.items))
	copy(out, in.items)
	return out
}

// InsightsMarkdown renders advisories as a markdown bullet list, dropping the
// leading bullet glyph each advisory carries.
func InsightsMarkdown(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(strings.TrimPrefix(item, "•")))
		b.WriteString("\n")
	}
	return b.String()
}
