package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neoromantics/focus/internal/decision"
)

// CheckURL returns a handler that runs the decision pipeline for a page.
func CheckURL(e Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		url, _ := args["url"].(string)
		if strings.TrimSpace(url) == "" {
			return mcp.NewToolResultError("url is required"), nil
		}
		html, _ := args["html"].(string)

		d := e.CheckURL(ctx, url, html)
		return mcp.NewToolResultText(formatDecision(url, d)), nil
	}
}

func formatDecision(url string, d decision.Decision) string {
	var b strings.Builder

	verdict := "✅ allowed"
	if d.ShouldWarn {
		verdict = "⚠️ distraction"
	}
	fmt.Fprintf(&b, "%s: %s\n", url, verdict)
	fmt.Fprintf(&b, "Reason: %s\n", d.Reason)
	fmt.Fprintf(&b, "Source: %s", d.Source)
	if d.Cached {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n")
	if d.Confidence != nil {
		fmt.Fprintf(&b, "Confidence: %.0f%%\n", *d.Confidence*100)
	}
	if d.CurrentTask != "" {
		fmt.Fprintf(&b, "Goal: %s\n", d.CurrentTask)
	}
	if d.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", d.Error)
	}
	return b.String()
}
