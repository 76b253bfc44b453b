package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SetGoal returns a handler that replaces the focus goal. An empty goal
// clears it.
func SetGoal(e Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		goal, ok := req.GetArguments()["goal"].(string)
		if !ok {
			return mcp.NewToolResultError("goal is required"), nil
		}

		if err := e.UpdateGoal(ctx, goal); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to save goal: %s", err)), nil
		}

		goal = strings.TrimSpace(goal)
		if goal == "" {
			return mcp.NewToolResultText("Focus goal cleared. Pages will not be classified until a goal is set."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Focus goal set to %q. Cached decisions were cleared.", goal)), nil
	}
}
