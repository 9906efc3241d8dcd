package mcp

import "github.com/mark3labs/mcp-go/mcp"

var pulseGetToolDef = mcp.NewTool("pulse_get",
	mcp.WithDescription("Fetch the pulse record of a case. Status is found, new (no pulse yet) or unavailable."),
	mcp.WithString("case_id", mcp.Required(), mcp.Description("Case id as known to the case assistant backend")),
)

var pulseUpdateToolDef = mcp.NewTool("pulse_update",
	mcp.WithDescription("Write pulse fields for a case. Only the fields given are changed. Values are stored as rich text, e.g. \"<p>text</p>\"."),
	mcp.WithString("case_id", mcp.Required(), mcp.Description("Case id")),
	mcp.WithObject("pulse", mcp.Required(), mcp.Description("Pulse fields keyed by name (symptom, environment, steps_to_reproduce, business_impact, customer_contacts, data_collected, research, research_internal, cause, solution, see_also, internal_memo_html)")),
)

var pulseEvaluateToolDef = mcp.NewTool("pulse_evaluate",
	mcp.WithDescription("Run the pulse checklist for a case event. Fetches the pulse unless one is given."),
	mcp.WithObject("event", mcp.Required(), mcp.Description("Case event with id, headers and communication sections")),
	mcp.WithObject("pulse", mcp.Description("Pulse record to evaluate instead of fetching one")),
)

var automationHistoryToolDef = mcp.NewTool("automation_history",
	mcp.WithDescription("List automation runs for a case, running first, then most recently completed."),
	mcp.WithString("correlation_id", mcp.Required(), mcp.Description("Incident or case number the runs were started for")),
)

var automationListToolDef = mcp.NewTool("automation_list",
	mcp.WithDescription("List automations available for a component."),
	mcp.WithString("component", mcp.Required(), mcp.Description("Component, e.g. HAN-DB")),
	mcp.WithString("product", mcp.Description("Optional product filter")),
)

var automationExecuteToolDef = mcp.NewTool("automation_execute",
	mcp.WithDescription("Start an automation for a case. Returns the run with its workflow id."),
	mcp.WithString("automation_id", mcp.Required(), mcp.Description("Automation id")),
	mcp.WithString("correlation_id", mcp.Required(), mcp.Description("Incident or case number")),
	mcp.WithString("component", mcp.Required(), mcp.Description("Component")),
	mcp.WithArray("options", mcp.Description("Runtime options: [{option:{name}, control, value, values}]"),
		mcp.Items(map[string]any{"type": "object"})),
)

var automationFeedbackToolDef = mcp.NewTool("automation_feedback",
	mcp.WithDescription("Rate an automation run. Omit vote to clear the rating."),
	mcp.WithString("automation_id", mcp.Required(), mcp.Description("Automation id")),
	mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow id of the run")),
	mcp.WithBoolean("vote", mcp.Description("true for thumbs up, false for thumbs down")),
)

var templatesGetToolDef = mcp.NewTool("templates_get",
	mcp.WithDescription("List the host's case templates, in document order. Empty when the host is too old."),
)

var analyticsSendToolDef = mcp.NewTool("analytics_send",
	mcp.WithDescription("Send a usage event for the case assistant view."),
	mcp.WithString("action", mcp.Required(), mcp.Description("Action name")),
	mcp.WithObject("metadata", mcp.Description("Optional event metadata")),
)

var quickviewOpenToolDef = mcp.NewTool("quickview_open",
	mcp.WithDescription("Open a URL in the host's quick view window."),
	mcp.WithString("url", mcp.Required(), mcp.Description("http or https URL")),
)
