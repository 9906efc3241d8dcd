package pulse

// Record is a pulse documentation record as stored by the case assistant backend.
// Text fields are nil when the backend omits them or sends null.
type Record struct {
	// Categorize section
	Symptom          *string `json:"symptom,omitempty"`
	Environment      *string `json:"environment,omitempty"`
	StepsToReproduce *string `json:"steps_to_reproduce,omitempty"`
	BusinessImpact   *string `json:"business_impact,omitempty"`
	CustomerContacts *string `json:"customer_contacts,omitempty"`

	// Investigate section
	DataCollected    *string `json:"data_collected,omitempty"`
	Research         *string `json:"research,omitempty"`
	ResearchInternal *string `json:"research_internal,omitempty"`

	// Resolution section
	Cause            *string `json:"cause,omitempty"`
	Solution         *string `json:"solution,omitempty"`
	SeeAlso          *string `json:"see_also,omitempty"`
	InternalMemoHTML *string `json:"internal_memo_html,omitempty"`

	// UpdatedOn is the backend timestamp "YYYY-MM-DD HH:MM:SS", UTC without a zone suffix
	UpdatedOn string `json:"sys_updated_on,omitempty"`

	// UpdatedBy is the user id of the last writer
	UpdatedBy string `json:"sys_updated_by,omitempty"`
}

// Field names as used on the wire.
const (
	FieldSymptom          = "symptom"
	FieldEnvironment      = "environment"
	FieldStepsToReproduce = "steps_to_reproduce"
	FieldBusinessImpact   = "business_impact"
	FieldCustomerContacts = "customer_contacts"
	FieldDataCollected    = "data_collected"
	FieldResearch         = "research"
	FieldResearchInternal = "research_internal"
	FieldCause            = "cause"
	FieldSolution         = "solution"
	FieldSeeAlso          = "see_also"
	FieldInternalMemoHTML = "internal_memo_html"
)

// TextFields lists every text field in section order.
var TextFields = []string{
	FieldSymptom, FieldEnvironment, FieldStepsToReproduce, FieldBusinessImpact, FieldCustomerContacts,
	FieldDataCollected, FieldResearch, FieldResearchInternal,
	FieldCause, FieldSolution, FieldSeeAlso, FieldInternalMemoHTML,
}

// Field returns the raw value of a named text field, or nil if absent or unknown.
func (r *Record) Field(name string) *string {
	if r == nil {
		return nil
	}
	if p := r.fieldPtr(name); p != nil {
		return *p
	}
	return nil
}

// SetField sets a named text field. It reports false for unknown names.
func (r *Record) SetField(name string, value *string) bool {
	p := r.fieldPtr(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}

func (r *Record) fieldPtr(name string) **string {
	switch name {
	case FieldSymptom:
		return &r.Symptom
	case FieldEnvironment:
		return &r.Environment
	case FieldStepsToReproduce:
		return &r.StepsToReproduce
	case FieldBusinessImpact:
		return &r.BusinessImpact
	case FieldCustomerContacts:
		return &r.CustomerContacts
	case FieldDataCollected:
		return &r.DataCollected
	case FieldResearch:
		return &r.Research
	case FieldResearchInternal:
		return &r.ResearchInternal
	case FieldCause:
		return &r.Cause
	case FieldSolution:
		return &r.Solution
	case FieldSeeAlso:
		return &r.SeeAlso
	case FieldInternalMemoHTML:
		return &r.InternalMemoHTML
	}
	return nil
}

// Merge copies every non-nil text field of patch onto r.
func (r *Record) Merge(patch *Record) {
	if patch == nil {
		return
	}
	for _, name := range TextFields {
		if v := patch.Field(name); v != nil {
			val := *v
			r.SetField(name, &val)
		}
	}
}

// LookupStatus describes the outcome of fetching a pulse for a case.
type LookupStatus string

const (
	LookupFound       LookupStatus = "found"       // record returned
	LookupNew         LookupStatus = "new"         // backend has no record for the case yet
	LookupUnavailable LookupStatus = "unavailable" // fetch failed
)

// Lookup is the result of a pulse fetch. Record is nil unless Status is LookupFound.
type Lookup struct {
	Status LookupStatus `json:"status"`
	Record *Record      `json:"record,omitempty"`
}

// Found wraps a fetched record.
func Found(r *Record) Lookup {
	return Lookup{Status: LookupFound, Record: r}
}

// NoRecord is the lookup for a case without a pulse.
func NoRecord() Lookup {
	return Lookup{Status: LookupNew}
}

// Unavailable is the lookup for a failed fetch.
func Unavailable() Lookup {
	return Lookup{Status: LookupUnavailable}
}
