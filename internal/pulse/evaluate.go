package pulse

import "time"

// Options tunes an evaluation pass. Zero values fall back to defaults.
type Options struct {
	Now           time.Time
	StaleAfter    time.Duration
	SystemAccount string
	Dedup         DedupMode
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.SystemAccount == "" {
		o.SystemAccount = DefaultSystemAccount
	}
	if o.Dedup == "" {
		o.Dedup = DedupSubstring
	}
	return o
}

// ViewModel is everything the widget shows for one case.
type ViewModel struct {
	CaseID     string       `json:"case_id"`
	CaseNumber string       `json:"case_number"`
	Pulse      LookupStatus `json:"pulse_status"`

	// PulseRequired is false for service requests.
	PulseRequired bool `json:"pulse_required"`

	Categorize  SectionResult `json:"categorize"`
	Investigate SectionResult `json:"investigate"`
	Resolution  SectionResult `json:"resolution"`

	CategorizeComplete     bool `json:"categorize_complete"`
	InvestigateComplete    bool `json:"investigate_complete"`
	CategorizationComplete bool `json:"categorization_complete"`

	SwarmDetected bool `json:"swarm_detected"`
	KBABalance    int  `json:"kba_balance"`
	KBAAttached   bool `json:"kba_attached"`

	Insights    []string  `json:"insights"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Sections returns the three section results in display order.
func (v *ViewModel) Sections() []SectionResult {
	return []SectionResult{v.Categorize, v.Investigate, v.Resolution}
}

// MandatoryComplete reports whether both mandatory sections are satisfied.
func (v *ViewModel) MandatoryComplete() bool {
	return v.CategorizeComplete && v.InvestigateComplete
}

// Evaluate runs the checklist over a case and its pulse lookup. It never
// fails: missing data degrades to zero scores and incomplete flags.
func Evaluate(c CaseSummary, lookup Lookup, opts Options) ViewModel {
	opts = opts.withDefaults()
	insights := NewInsights(opts.Dedup)

	var record *Record
	if lookup.Status == LookupFound {
		record = lookup.Record
	}

	vm := ViewModel{
		CaseID:        c.ID,
		CaseNumber:    c.Number,
		Pulse:         lookup.Status,
		PulseRequired: !IsServiceRequest(c.Category),
		Categorize:    ScoreCategorize(record),
		Investigate:   ScoreInvestigate(record),
		Resolution:    ScoreResolution(record),
		EvaluatedAt:   opts.Now,
	}

	if vm.PulseRequired {
		vm.CategorizeComplete = vm.Categorize.Complete
		vm.InvestigateComplete = vm.Investigate.Complete

		if Stale(record, opts.Now, opts.StaleAfter) {
			insights.Add(StaleInsight(opts.StaleAfter))
		}
		if UpdatedByOther(record, c.Processor, opts.SystemAccount) {
			insights.Add(InsightDifferentUpdater)
		}
		if !vm.MandatoryComplete() {
			insights.Add(InsightMandatoryMissing)
		}
	} else {
		vm.CategorizeComplete = true
		vm.InvestigateComplete = true
		insights.Add(InsightServiceRequest)
	}

	vm.CategorizationComplete = CategorizationComplete(c.Category, c.Subcategory)
	if HowToRedirectEligible(c.Category, c.Subcategory) {
		insights.Add(InsightHowToRedirect)
	}

	vm.SwarmDetected = SwarmDetected(record)
	vm.KBABalance = KBABalance(c.Memos)
	vm.KBAAttached = vm.KBABalance > 0
	vm.Insights = insights.List()

	return vm
}
