package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/csm-companion/internal/errors"
)

// decode unmarshals MCP request arguments into a typed struct.
// A malformed argument set is an INVALID_REQUEST.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("invalid arguments: %v", err))
	}
	return result, nil
}

// arg is a named string argument checked by requireArgs.
type arg struct {
	name  string
	value string
}

// requireArgs fails on the first blank argument.
func requireArgs(args ...arg) error {
	for _, a := range args {
		if strings.TrimSpace(a.value) == "" {
			return errors.NewInvalidRequest(a.name + " is required")
		}
	}
	return nil
}
