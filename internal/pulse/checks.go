package pulse

import (
	"slices"
	"strings"
	"time"
)

// Resolution error categories with special handling.
const (
	CategoryServiceRequest        = "service_request"
	CategoryCustomerPartnerIssue  = "customer_partner_issue"
	CategoryDatabaseInconsistency = "database_inconsistency"
	CategoryThirdPartyIssue       = "3party_partner_issue"

	SubcategoryHowTo      = "how_to_request"
	SubcategoryConsulting = "consulting_implementation_request"
)

// DefaultSystemAccount is the integration user that writes pulses on behalf of
// the case assistant. Its updates are not treated as another user's edits.
const DefaultSystemAccount = "INT_ISE2SN"

// DefaultStaleAfter is how old a pulse may get before the staleness advisory.
const DefaultStaleAfter = 48 * time.Hour

// UpdatedOnLayout is the backend timestamp format.
const UpdatedOnLayout = "2006-01-02 15:04:05"

// categoriesWithoutSubcategory have no applicable subcategory.
var categoriesWithoutSubcategory = []string{
	CategoryCustomerPartnerIssue,
	CategoryDatabaseInconsistency,
	CategoryThirdPartyIssue,
}

// howToSubcategories are eligible for the how-to redirect under customer_partner_issue.
var howToSubcategories = []string{SubcategoryHowTo, SubcategoryConsulting}

const (
	swarmMarker    = "-- swarm"
	kbaAttachedTag = " has been attached - "
	kbaRemovedTag  = " has been removed."
)

// CategorizationComplete reports whether the resolution error categorization is filled in.
func CategorizationComplete(category, subcategory string) bool {
	if subcategory != "" {
		return true
	}
	return slices.Contains(categoriesWithoutSubcategory, category)
}

// IsServiceRequest reports whether the case is exempt from mandatory pulse fields.
func IsServiceRequest(category string) bool {
	return category == CategoryServiceRequest
}

// HowToRedirectEligible reports whether the categorization qualifies for the how-to redirect.
func HowToRedirectEligible(category, subcategory string) bool {
	return category == CategoryCustomerPartnerIssue && slices.Contains(howToSubcategories, subcategory)
}

// SwarmDetected reports whether the internal research notes reference a swarm.
// The raw field is searched, wrapper included.
func SwarmDetected(r *Record) bool {
	if r == nil || r.ResearchInternal == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*r.ResearchInternal), swarmMarker)
}

// KBABalance replays attach and remove memos in order and returns the balance.
// A memo counts as an attach first; only non-attach memos can count as a removal.
func KBABalance(memos []string) int {
	balance := 0
	for _, memo := range memos {
		text := strings.ToLower(memo)
		if strings.Contains(text, kbaAttachedTag) {
			balance++
		} else if strings.Contains(text, kbaRemovedTag) {
			balance--
		}
	}
	return balance
}

// KBAAttached reports whether a knowledge article is currently attached.
func KBAAttached(memos []string) bool {
	return KBABalance(memos) > 0
}

// ParseUpdatedOn parses a backend timestamp as UTC.
func ParseUpdatedOn(s string) (time.Time, bool) {
	t, err := time.Parse(UpdatedOnLayout+" MST", strings.TrimSpace(s)+" UTC")
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Stale reports whether the record was last updated at least maxAge before now.
// The difference is absolute so clock skew in either direction counts.
// An unparsable timestamp is never stale.
func Stale(r *Record, now time.Time, maxAge time.Duration) bool {
	if r == nil {
		return false
	}
	updated, ok := ParseUpdatedOn(r.UpdatedOn)
	if !ok {
		return false
	}
	age := now.Sub(updated)
	if age < 0 {
		age = -age
	}
	return age >= maxAge
}

// UpdatedByOther reports whether someone other than the processor last touched
// the record. Writes by systemAccount are ignored.
func UpdatedByOther(r *Record, processor, systemAccount string) bool {
	if r == nil {
		return false
	}
	return r.UpdatedBy != processor && r.UpdatedBy != systemAccount
}
