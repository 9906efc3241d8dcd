package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// StatusRunning marks an automation run that has not finished.
const StatusRunning = "RUNNING"

// ControlSelectbox is the runtime option control with predefined values.
const ControlSelectbox = "selectbox"

// Run is one automation execution for a case.
type Run struct {
	WorkflowID    string `json:"workflow_id"`
	AutomationID  string `json:"automation_id"`
	Name          string `json:"name,omitempty"`
	Component     string `json:"component,omitempty"`
	CorrelationID string `json:"incident_no,omitempty"`
	Status        string `json:"status"`
	StartedTS     string `json:"started_ts,omitempty"`
	CompletedTS   string `json:"completed_ts,omitempty"`
	Output        string `json:"output,omitempty"`
	ThumbUp       bool   `json:"thumb_up"`
	ThumbDown     bool   `json:"thumb_down"`
}

// Automation is an automation offered for a component.
type Automation struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Component   string             `json:"component"`
	Products    []string           `json:"products,omitempty"`
	Options     []AutomationOption `json:"options,omitempty"`
}

// AutomationOption declares a runtime option an automation accepts.
type AutomationOption struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Control  string   `json:"control"`
	Multi    bool     `json:"multi,omitempty"`
	Choices  []string `json:"choices,omitempty"`
	Required bool     `json:"required,omitempty"`
}

// RuntimeOption is an option value as captured by the automation form.
// Selectbox values are either {"value": ...} or [{"value": ...}, ...].
type RuntimeOption struct {
	Option  OptionRef       `json:"option"`
	Control string          `json:"control,omitempty"`
	Value   string          `json:"value,omitempty"`
	Values  json.RawMessage `json:"values,omitempty"`
}

// OptionRef names the option a runtime value is for.
type OptionRef struct {
	Name string `json:"name"`
}

// ExecuteOption is an option as sent to the execute endpoint.
type ExecuteOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// ExecuteRequest is the execute endpoint payload.
type ExecuteRequest struct {
	ID         string          `json:"id"`
	IncidentNo string          `json:"incident_no"`
	Component  string          `json:"component"`
	Options    []ExecuteOption `json:"options"`
}

// FeedbackRequest is the feedback endpoint payload.
type FeedbackRequest struct {
	AutomationID string `json:"automation_id"`
	WorkflowID   string `json:"workflow_id"`
	ThumbUp      bool   `json:"thumb_up"`
	ThumbDown    bool   `json:"thumb_down"`
}

// HistoryData returns the automation runs for a case, running ones first and
// the rest newest first.
func (c *Client) HistoryData(ctx context.Context, correlationID string) ([]Run, error) {
	if correlationID == "" {
		return nil, errors.NewInvalidRequest("correlation_id is required")
	}
	var runs []Run
	if err := c.geRequest(ctx, http.MethodGet, "/automations/history/"+url.PathEscape(correlationID), nil, &runs); err != nil {
		return nil, err
	}
	SortHistory(runs)
	return runs, nil
}

// SortHistory orders runs: RUNNING first, then by completed_ts descending.
// Runs whose completion time cannot be parsed go last. The sort is stable.
func SortHistory(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		aRunning, bRunning := a.Status == StatusRunning, b.Status == StatusRunning
		if aRunning != bRunning {
			return aRunning
		}
		if aRunning {
			return false
		}
		at, aok := parseTimestamp(a.CompletedTS)
		bt, bok := parseTimestamp(b.CompletedTS)
		switch {
		case aok && bok:
			return at.After(bt)
		case aok != bok:
			return aok
		default:
			return false
		}
	})
}

var timestampLayouts = []string{time.RFC3339Nano, pulse.UpdatedOnLayout}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AvailableAutomations lists automations for a component, optionally filtered
// by product.
func (c *Client) AvailableAutomations(ctx context.Context, component, product string) ([]Automation, error) {
	if component == "" {
		return nil, errors.NewInvalidRequest("component is required")
	}
	path := "/automations/" + url.PathEscape(component)
	if product != "" {
		path += "?product=" + url.QueryEscape(product)
	}
	var automations []Automation
	if err := c.geRequest(ctx, http.MethodGet, path, nil, &automations); err != nil {
		return nil, err
	}
	return automations, nil
}

// ExecuteAutomation starts an automation for a case and returns the new run.
func (c *Client) ExecuteAutomation(ctx context.Context, automationID, correlationID, component string, options []RuntimeOption) (*Run, error) {
	if automationID == "" || correlationID == "" {
		return nil, errors.NewInvalidRequest("automation_id and correlation_id are required")
	}
	shaped, err := ShapeOptions(options)
	if err != nil {
		return nil, err
	}
	var run Run
	err = c.geRequest(ctx, http.MethodPost, "/automation/execute", ExecuteRequest{
		ID:         automationID,
		IncidentNo: correlationID,
		Component:  component,
		Options:    shaped,
	}, &run)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ShapeOptions converts form values into execute options. A single selectbox
// value gives one value, a multi selectbox gives every selected value, and
// any other control gives its text or "".
func ShapeOptions(options []RuntimeOption) ([]ExecuteOption, error) {
	out := make([]ExecuteOption, 0, len(options))
	for _, opt := range options {
		values := []string{opt.Value}
		if opt.Control == ControlSelectbox {
			v, err := selectboxValues(opt.Values)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("option %s: %v", opt.Option.Name, err))
			}
			values = v
		}
		out = append(out, ExecuteOption{Name: opt.Option.Name, Values: values})
	}
	return out, nil
}

type selectValue struct {
	Value string `json:"value"`
}

func selectboxValues(raw json.RawMessage) ([]string, error) {
	var single selectValue
	if err := json.Unmarshal(raw, &single); err == nil && single.Value != "" {
		return []string{single.Value}, nil
	}
	var multi []selectValue
	if err := json.Unmarshal(raw, &multi); err != nil {
		return nil, fmt.Errorf("selectbox values must be an object or a list")
	}
	values := make([]string, 0, len(multi))
	for _, v := range multi {
		values = append(values, v.Value)
	}
	return values, nil
}

// DecodeRuntimeOptions accepts form options as a JSON list or as an object
// keyed by option; object entries are taken in key order.
func DecodeRuntimeOptions(raw json.RawMessage) ([]RuntimeOption, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var list []RuntimeOption
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var keyed map[string]RuntimeOption
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, errors.NewInvalidRequest("options must be a list or an object")
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	list = make([]RuntimeOption, 0, len(keys))
	for _, k := range keys {
		list = append(list, keyed[k])
	}
	return list, nil
}

// AddFeedback records a vote on a run. nil clears both thumbs.
func (c *Client) AddFeedback(ctx context.Context, automationID, workflowID string, vote *bool) (json.RawMessage, error) {
	if automationID == "" || workflowID == "" {
		return nil, errors.NewInvalidRequest("automation_id and workflow_id are required")
	}
	req := FeedbackRequest{AutomationID: automationID, WorkflowID: workflowID}
	if vote != nil {
		req.ThumbUp = *vote
		req.ThumbDown = !*vote
	}
	var out json.RawMessage
	if err := c.geRequest(ctx, http.MethodPost, "/automation/feedback", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
