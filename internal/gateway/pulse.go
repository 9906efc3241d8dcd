package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// GetPulse fetches the pulse record of a case. An empty result set means the
// case has no pulse yet. Any failure is logged and reported as unavailable.
func (c *Client) GetPulse(ctx context.Context, caseID string) pulse.Lookup {
	var raw json.RawMessage
	if err := c.caRequest(ctx, http.MethodGet, pulsePath(caseID), nil, &raw); err != nil {
		c.log.Error("pulse fetch failed", "case_id", caseID, "error", err)
		return pulse.Unavailable()
	}
	var records []*pulse.Record
	if err := json.Unmarshal(raw, &records); err != nil || records == nil {
		c.log.Warn("unexpected pulse response", "case_id", caseID, "body", string(raw))
		return pulse.Unavailable()
	}
	if len(records) == 0 {
		return pulse.NoRecord()
	}
	if records[0] == nil {
		return pulse.Unavailable()
	}
	return pulse.Found(records[0])
}

// UpdatePulse posts a partial record and returns the backend response.
func (c *Client) UpdatePulse(ctx context.Context, caseID string, patch *pulse.Record) (json.RawMessage, error) {
	if caseID == "" {
		return nil, errors.NewInvalidRequest("case_id is required")
	}
	if patch == nil {
		return nil, errors.NewInvalidRequest("pulse data is required")
	}
	var out json.RawMessage
	if err := c.caRequest(ctx, http.MethodPost, pulsePath(caseID), patch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func pulsePath(caseID string) string {
	return "/case/pulse/" + url.PathEscape(caseID)
}

// Evaluate fetches the pulse of the event's case and runs the checklist.
func (c *Client) Evaluate(ctx context.Context, ev *pulse.CaseEvent, opts pulse.Options) (pulse.ViewModel, error) {
	if ev == nil || ev.ID == "" {
		return pulse.ViewModel{}, errors.NewInvalidRequest("case event with an id is required")
	}
	summary := ev.Summary()
	return pulse.Evaluate(summary, c.GetPulse(ctx, summary.ID), opts), nil
}
