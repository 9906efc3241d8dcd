package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/gateway"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	gw  *gateway.Client
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(gw *gateway.Client, cfg *config.Config) *Handlers {
	return &Handlers{gw: gw, cfg: cfg}
}

// Request types for each tool

// PulseGetRequest represents the arguments for pulse_get.
type PulseGetRequest struct {
	CaseID string `json:"case_id"`
}

// PulseUpdateRequest represents the arguments for pulse_update.
type PulseUpdateRequest struct {
	CaseID string        `json:"case_id"`
	Pulse  *pulse.Record `json:"pulse"`
}

// PulseEvaluateRequest represents the arguments for pulse_evaluate.
type PulseEvaluateRequest struct {
	Event *pulse.CaseEvent `json:"event"`
	Pulse *pulse.Record    `json:"pulse,omitempty"`
}

// AutomationHistoryRequest represents the arguments for automation_history.
type AutomationHistoryRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// AutomationListRequest represents the arguments for automation_list.
type AutomationListRequest struct {
	Component string `json:"component"`
	Product   string `json:"product,omitempty"`
}

// AutomationExecuteRequest represents the arguments for automation_execute.
type AutomationExecuteRequest struct {
	AutomationID  string          `json:"automation_id"`
	CorrelationID string          `json:"correlation_id"`
	Component     string          `json:"component"`
	Options       json.RawMessage `json:"options,omitempty"`
}

// AutomationFeedbackRequest represents the arguments for automation_feedback.
type AutomationFeedbackRequest struct {
	AutomationID string `json:"automation_id"`
	WorkflowID   string `json:"workflow_id"`
	Vote         *bool  `json:"vote,omitempty"`
}

// AnalyticsSendRequest represents the arguments for analytics_send.
type AnalyticsSendRequest struct {
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QuickviewOpenRequest represents the arguments for quickview_open.
type QuickviewOpenRequest struct {
	URL string `json:"url"`
}

// Handler implementations

// HandlePulseGet handles the pulse_get tool call.
func (h *Handlers) HandlePulseGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PulseGetRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArgs(arg{"case_id", input.CaseID}); err != nil {
		return errorResult(err), nil
	}

	return successResult(h.gw.GetPulse(ctx, input.CaseID))
}

// HandlePulseUpdate handles the pulse_update tool call.
func (h *Handlers) HandlePulseUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PulseUpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.gw.UpdatePulse(ctx, input.CaseID, input.Pulse)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePulseEvaluate handles the pulse_evaluate tool call.
func (h *Handlers) HandlePulseEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PulseEvaluateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	opts := h.cfg.PulseOptions()
	if input.Pulse != nil {
		if input.Event == nil || input.Event.ID == "" {
			return errorResult(errors.NewInvalidRequest("case event with an id is required")), nil
		}
		return successResult(pulse.Evaluate(input.Event.Summary(), pulse.Found(input.Pulse), opts))
	}

	result, err := h.gw.Evaluate(ctx, input.Event, opts)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAutomationHistory handles the automation_history tool call.
func (h *Handlers) HandleAutomationHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AutomationHistoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArgs(arg{"correlation_id", input.CorrelationID}); err != nil {
		return errorResult(err), nil
	}

	result, err := h.gw.HistoryData(ctx, input.CorrelationID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"runs": result})
}

// HandleAutomationList handles the automation_list tool call.
func (h *Handlers) HandleAutomationList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AutomationListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArgs(arg{"component", input.Component}); err != nil {
		return errorResult(err), nil
	}

	result, err := h.gw.AvailableAutomations(ctx, input.Component, input.Product)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"automations": result})
}

// HandleAutomationExecute handles the automation_execute tool call.
func (h *Handlers) HandleAutomationExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AutomationExecuteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArgs(arg{"automation_id", input.AutomationID}, arg{"correlation_id", input.CorrelationID}); err != nil {
		return errorResult(err), nil
	}

	options, err := gateway.DecodeRuntimeOptions(input.Options)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.gw.ExecuteAutomation(ctx, input.AutomationID, input.CorrelationID, input.Component, options)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAutomationFeedback handles the automation_feedback tool call.
func (h *Handlers) HandleAutomationFeedback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AutomationFeedbackRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.gw.AddFeedback(ctx, input.AutomationID, input.WorkflowID, input.Vote)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTemplatesGet handles the templates_get tool call.
func (h *Handlers) HandleTemplatesGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates := h.gw.Templates(ctx)
	return successResult(map[string]any{
		"available": templates != nil,
		"templates": templates,
	})
}

// HandleAnalyticsSend handles the analytics_send tool call.
func (h *Handlers) HandleAnalyticsSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyticsSendRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArgs(arg{"action", input.Action}); err != nil {
		return errorResult(err), nil
	}

	if err := h.gw.SendAnalytics(ctx, input.Action, input.Metadata); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"sent": true})
}

// HandleQuickviewOpen handles the quickview_open tool call.
func (h *Handlers) HandleQuickviewOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QuickviewOpenRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireArgs(arg{"url", input.URL}); err != nil {
		return errorResult(err), nil
	}

	if err := h.gw.OpenQuickView(ctx, input.URL); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"opened": input.URL})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	cErr := errors.As(err)
	errorObj := map[string]any{
		"code":    cErr.Code,
		"message": cErr.Message,
		"status":  cErr.Status,
	}
	switch cErr.Code {
	case errors.ErrInternal:
		errorObj["message"] = "an internal error occurred"
	case errors.ErrInvalidRequest, errors.ErrNotFound:
		// Upstream bodies and bridge causes stay out of tool output
		if cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
