package mcp

import (
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/gateway"
)

const instructions = "Companion tools for support cases: read and score the case pulse, " +
	"run guided engineering automations, fetch templates from the host and open quick views."

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolGroup is the unit disabled_types switches off. Tool names are
// "<type>_<action>".
type toolGroup struct {
	typ   string
	tools []toolEntry
}

// toolGroups lists every tool in registration order.
var toolGroups = []toolGroup{
	{typ: "pulse", tools: []toolEntry{
		{pulseGetToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandlePulseGet }},
		{pulseUpdateToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandlePulseUpdate }},
		{pulseEvaluateToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandlePulseEvaluate }},
	}},
	{typ: "automation", tools: []toolEntry{
		{automationHistoryToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutomationHistory }},
		{automationListToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutomationList }},
		{automationExecuteToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutomationExecute }},
		{automationFeedbackToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAutomationFeedback }},
	}},
	{typ: "templates", tools: []toolEntry{
		{templatesGetToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplatesGet }},
	}},
	{typ: "analytics", tools: []toolEntry{
		{analyticsSendToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalyticsSend }},
	}},
	{typ: "quickview", tools: []toolEntry{
		{quickviewOpenToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleQuickviewOpen }},
	}},
}

// KnownTypes lists all valid type names.
var KnownTypes = func() []string {
	types := make([]string, 0, len(toolGroups))
	for _, g := range toolGroups {
		types = append(types, g.typ)
	}
	return types
}()

// AllToolNames returns every tool name in registration order.
func AllToolNames() []string {
	var names []string
	for _, g := range toolGroups {
		for _, e := range g.tools {
			names = append(names, e.def.Name)
		}
	}
	return names
}

// ValidateDisabledTools returns the names that are not tools.
func ValidateDisabledTools(names []string) []string {
	return unknownNames(names, AllToolNames())
}

// ValidateDisabledTypes returns the names that are not tool types.
func ValidateDisabledTypes(names []string) []string {
	return unknownNames(names, KnownTypes)
}

func unknownNames(names, known []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if !slices.Contains(known, name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool returns the prefix before the first underscore
// ("pulse_get" is "pulse").
func GetTypeForTool(toolName string) string {
	typ, _, ok := strings.Cut(toolName, "_")
	if !ok {
		return ""
	}
	return typ
}

// ExpandTypesToTools returns the tool names of the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	tools := make([]string, 0)
	for _, g := range toolGroups {
		if !slices.Contains(types, g.typ) {
			continue
		}
		for _, e := range g.tools {
			tools = append(tools, e.def.Name)
		}
	}
	return tools
}

// disabledTools merges cfg.DisabledTypes and cfg.DisabledTools into one set.
func disabledTools(cfg *config.Config) map[string]bool {
	disabled := make(map[string]bool)
	for _, name := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[name] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	return disabled
}

// NewServer creates the MCP server with every tool that is not disabled.
func NewServer(gw *gateway.Client, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"companion",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	h := NewHandlers(gw, cfg)
	disabled := disabledTools(cfg)
	for _, g := range toolGroups {
		for _, e := range g.tools {
			if disabled[e.def.Name] {
				continue
			}
			s.AddTool(e.def, e.handler(h))
		}
	}
	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(gw *gateway.Client, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(gw, cfg, version))
}
