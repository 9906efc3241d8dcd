package overlay

import (
	"fmt"

	"github.com/hpungsan/csm-companion/internal/pulse"
)

// Colors of the widget indicators.
const (
	ColorComplete = "PaleGreen"
	ColorPartial  = "Khaki"
	ColorMissing  = "LightCoral"
)

// Tooltips on incomplete mandatory sections.
const (
	hintCategorize  = "For KCS adoption, Symptom is mandatory"
	hintInvestigate = "For KCS adoption, at least one field must be filled"
	hintNotRequired = "For Service Request cases, Pulse is not mandatory"
)

// Indicator is one labelled status line.
type Indicator struct {
	Label string `json:"label"`
	Text  string `json:"text"`
	Color string `json:"color"`

	// Warning is a tooltip shown next to an unmet mandatory requirement.
	Warning string `json:"warning,omitempty"`
}

// Widget is the rendered state of the companion for one case.
type Widget struct {
	CaseID     string `json:"case_id"`
	CaseNumber string `json:"case_number"`
	Mode       Mode   `json:"mode"`
	Left       string `json:"left"`
	Top        string `json:"top"`
	Busy       bool   `json:"busy"`

	PulseRequired bool        `json:"pulse_required"`
	NotRequired   *Indicator  `json:"not_required,omitempty"`
	Sections      []Indicator `json:"sections"`

	Categorization Indicator `json:"categorization"`
	Swarm          Indicator `json:"swarm"`
	KBA            Indicator `json:"kba"`

	Insights []string `json:"insights"`
}

// BuildWidget lays out a view model.
func BuildWidget(vm *pulse.ViewModel, prefs Prefs, busy bool) Widget {
	w := Widget{
		CaseID:        vm.CaseID,
		CaseNumber:    vm.CaseNumber,
		Mode:          prefs.Mode,
		Left:          prefs.Left,
		Top:           prefs.Top,
		Busy:          busy,
		PulseRequired: vm.PulseRequired,
		Insights:      vm.Insights,
	}

	if vm.PulseRequired {
		w.Sections = []Indicator{
			sectionIndicator(vm.Categorize, !vm.CategorizeComplete, hintCategorize),
			sectionIndicator(vm.Investigate, !vm.InvestigateComplete, hintInvestigate),
			sectionIndicator(vm.Resolution, false, ""),
		}
	} else {
		w.NotRequired = &Indicator{Label: "Pulse", Text: "Pulse Not Required", Color: ColorComplete, Warning: hintNotRequired}
		w.Sections = []Indicator{}
	}

	w.Categorization = Indicator{Label: "Error Categorization", Text: "Incomplete", Color: ColorMissing}
	if vm.CategorizationComplete {
		w.Categorization.Text, w.Categorization.Color = "Complete", ColorComplete
	}

	w.Swarm = Indicator{Label: "Swarming", Text: "No Swarm Detected", Color: ColorPartial}
	if vm.SwarmDetected {
		w.Swarm.Text, w.Swarm.Color = "Swarm Created", ColorComplete
	}

	w.KBA = Indicator{Label: "KBA", Text: "KBA Not Detected", Color: ColorMissing}
	if vm.KBAAttached {
		w.KBA.Text, w.KBA.Color = "KBA Attached", ColorComplete
	}

	return w
}

func sectionIndicator(r pulse.SectionResult, warn bool, hint string) Indicator {
	ind := Indicator{
		Label: string(r.Section),
		Text:  fmt.Sprintf("%d/%d", r.Count, r.Max),
		Color: levelColor(r.Level()),
	}
	if warn {
		ind.Warning = hint
	}
	return ind
}

func levelColor(l pulse.Level) string {
	switch l {
	case pulse.LevelComplete:
		return ColorComplete
	case pulse.LevelPartial:
		return ColorPartial
	default:
		return ColorMissing
	}
}
