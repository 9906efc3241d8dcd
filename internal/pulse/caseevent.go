package pulse

// CaseSummary is the read-only view of a case the checklist needs.
type CaseSummary struct {
	ID          string   `json:"id"`
	Number      string   `json:"number"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Processor   string   `json:"processor"`
	Memos       []string `json:"memos"`
}

// CaseEvent is the payload the host delivers on case open and case update.
// Only the header and communication sections are read.
type CaseEvent struct {
	ID            string             `json:"id"`
	Headers       caseHeaders        `json:"headers"`
	Communication caseCommunications `json:"communication"`
}

type caseHeaders struct {
	Data struct {
		Number          string `json:"number"`
		Processor       string `json:"processor"`
		ResolutionError struct {
			Category    string `json:"category"`
			Subcategory string `json:"subcategory"`
		} `json:"resolutionError"`
	} `json:"data"`
}

type caseCommunications struct {
	Data struct {
		Memos []struct {
			Text string `json:"text"`
		} `json:"memos"`
	} `json:"data"`
}

// Summary flattens the event into a CaseSummary, keeping memo order.
func (e *CaseEvent) Summary() CaseSummary {
	h := e.Headers.Data
	memos := make([]string, 0, len(e.Communication.Data.Memos))
	for _, m := range e.Communication.Data.Memos {
		memos = append(memos, m.Text)
	}
	return CaseSummary{
		ID:          e.ID,
		Number:      h.Number,
		Category:    h.ResolutionError.Category,
		Subcategory: h.ResolutionError.Subcategory,
		Processor:   h.Processor,
		Memos:       memos,
	}
}
