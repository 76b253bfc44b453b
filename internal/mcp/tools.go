package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neoromantics/focus/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// check_url: Run the distraction pipeline for a page
	s.AddTool(
		mcp.NewTool("check_url",
			mcp.WithDescription("Decide whether a page distracts from the current focus goal. Block and allow lists are checked first, then cached decisions, then the classifier when page HTML is given."),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("Absolute URL of the page"),
			),
			mcp.WithString("html",
				mcp.Description("Page HTML. Without it, pages not decided by the lists or cache are allowed."),
			),
		),
		handlers.CheckURL(deps.Engine),
	)

	// set_goal: Change the focus goal
	s.AddTool(
		mcp.NewTool("set_goal",
			mcp.WithDescription("Set the focus goal pages are judged against. Clears every cached decision."),
			mcp.WithString("goal",
				mcp.Required(),
				mcp.Description("What the user is working on. Empty clears the goal."),
			),
		),
		handlers.SetGoal(deps.Engine),
	)

	// start_flight: Begin a focus session
	s.AddTool(
		mcp.NewTool("start_flight",
			mcp.WithDescription("Start a focus flight. Each distraction warning shown during the flight counts as turbulence; too much turbulence forces a failed landing."),
		),
		handlers.StartFlight(deps.Engine),
	)

	// end_flight: Land the focus session
	s.AddTool(
		mcp.NewTool("end_flight",
			mcp.WithDescription("End the current flight. Flights shorter than the minimum duration are discarded."),
			mcp.WithString("forced_outcome",
				mcp.Description("Record this outcome instead of grading by turbulence"),
				mcp.Enum("perfect", "delayed", "fail"),
			),
			mcp.WithBoolean("skip_duration_check",
				mcp.Description("Record the flight even if it is shorter than the minimum duration"),
			),
		),
		handlers.EndFlight(deps.Engine),
	)

	// dispute_turbulence: Forgive the latest warning
	s.AddTool(
		mcp.NewTool("dispute_turbulence",
			mcp.WithDescription("Remove the most recent turbulence from the current flight when a warning was wrong."),
		),
		handlers.DisputeTurbulence(deps.Engine),
	)

	// focus_status: Goal, flight and history overview
	s.AddTool(
		mcp.NewTool("focus_status",
			mcp.WithDescription("Show the focus goal, the current flight, recent flight history and counters."),
			mcp.WithNumber("history_limit",
				mcp.Description("Number of past flights to list (default: 5)"),
			),
		),
		handlers.FocusStatus(deps.Engine),
	)
}
