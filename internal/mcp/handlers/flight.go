package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neoromantics/focus/internal/flight"
)

// StartFlight returns a handler that begins a focus flight.
func StartFlight(e Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := e.StartFlight(ctx)
		if errors.Is(err, flight.ErrFlightInProgress) {
			return mcp.NewToolResultError(fmt.Sprintf("A flight is already in progress (%s, turbulence %d/%d).",
				res.Flight.ID, res.Flight.Turbulence, res.Flight.Limit)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to start flight: %s", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "🛫 Flight %s started\n", res.Flight.ID)
		if res.Flight.Goal != "" {
			fmt.Fprintf(&b, "Goal: %s\n", res.Flight.Goal)
		}
		fmt.Fprintf(&b, "Turbulence limit: %d", res.Flight.Limit)
		return mcp.NewToolResultText(b.String()), nil
	}
}

// EndFlight returns a handler that lands the active flight.
func EndFlight(e Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		var opts flight.EndOptions
		if o, ok := args["forced_outcome"].(string); ok && o != "" {
			switch outcome := flight.Outcome(o); outcome {
			case flight.OutcomePerfect, flight.OutcomeDelayed, flight.OutcomeFail:
				opts.ForcedOutcome = outcome
			default:
				return mcp.NewToolResultError(fmt.Sprintf("Invalid forced_outcome %q", o)), nil
			}
		}
		opts.SkipDurationCheck, _ = args["skip_duration_check"].(bool)

		res, err := e.EndFlight(ctx, opts)
		if errors.Is(err, flight.ErrNoFlight) {
			return mcp.NewToolResultError("No flight in progress."), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to end flight: %s", err)), nil
		}

		if res.TooShort {
			return mcp.NewToolResultText(fmt.Sprintf("Flight discarded: %s is shorter than the minimum duration.",
				formatMs(res.DurationMs))), nil
		}
		r := res.Record
		return mcp.NewToolResultText(fmt.Sprintf("%s Landed %s after %s with %d turbulence.",
			outcomeIcon(r.Outcome), r.Outcome, formatMs(r.DurationMs), r.Turbulence)), nil
	}
}

// DisputeTurbulence returns a handler that forgives the latest turbulence.
func DisputeTurbulence(e Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := e.DisputeTurbulence(ctx)
		switch {
		case errors.Is(err, flight.ErrNoFlight):
			return mcp.NewToolResultError("No flight in progress."), nil
		case errors.Is(err, flight.ErrNoTurbulence):
			return mcp.NewToolResultError("The current flight has no turbulence to dispute."), nil
		case err != nil:
			return mcp.NewToolResultError(fmt.Sprintf("Failed to dispute turbulence: %s", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Turbulence forgiven. Now %d/%d.", snap.Turbulence, snap.Limit)), nil
	}
}

// FocusStatus returns a handler that summarizes the goal, flight and history.
func FocusStatus(e Engine) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := 5
		if n, ok := req.GetArguments()["history_limit"].(float64); ok && n >= 0 {
			limit = int(n)
		}

		cfg := e.Config()
		status := e.FlightStatus()

		var b strings.Builder
		goal := cfg.CurrentTask
		if goal == "" {
			goal = "(none)"
		}
		fmt.Fprintf(&b, "Goal: %s\n", goal)
		fmt.Fprintf(&b, "Checking: %s | API key: %s | Cached decisions: %d\n",
			onOff(cfg.Enabled), presence(cfg.HasAPIKey), cfg.CacheSize)

		f := status.Flight
		if f.Active {
			fmt.Fprintf(&b, "\n🛫 Flight %s in progress for %s\n", f.ID, formatMs(f.DurationMs))
			fmt.Fprintf(&b, "Turbulence: %d/%d\n", f.Turbulence, f.Limit)
		} else {
			b.WriteString("\nNo flight in progress.\n")
		}

		if len(status.History) > 0 && limit > 0 {
			fmt.Fprintf(&b, "\nRecent flights:\n")
			for i, r := range status.History {
				if i >= limit {
					break
				}
				fmt.Fprintf(&b, "%s %s: %s, %s, turbulence %d\n",
					outcomeIcon(r.Outcome), r.ID, r.Outcome, formatMs(r.DurationMs), r.Turbulence)
			}
		}

		if len(cfg.Stats) > 0 {
			fmt.Fprintf(&b, "\nPages analyzed: %d | Warnings: %d | Went back: %d | Continued: %d\n",
				cfg.Stats["pagesAnalyzed"], cfg.Stats["warningsShown"],
				cfg.Stats["timesWentBack"], cfg.Stats["timesContinued"])
		}

		return mcp.NewToolResultText(b.String()), nil
	}
}

func outcomeIcon(o flight.Outcome) string {
	switch o {
	case flight.OutcomePerfect:
		return "✅"
	case flight.OutcomeDelayed:
		return "⏱️"
	case flight.OutcomeFail:
		return "❌"
	default:
		return "❓"
	}
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func presence(b bool) string {
	if b {
		return "configured"
	}
	return "missing"
}
