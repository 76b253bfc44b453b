package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/engine"
	"github.com/neoromantics/focus/internal/flight"
)

type fakeEngine struct {
	decision   decision.Decision
	goal       string
	goalErr    error
	startRes   flight.StartResult
	startErr   error
	endOpts    flight.EndOptions
	endRes     flight.EndResult
	endErr     error
	disputeErr error
	status     engine.FlightStatus
	config     engine.ConfigView
}

func (f *fakeEngine) CheckURL(context.Context, string, string) decision.Decision { return f.decision }

func (f *fakeEngine) UpdateGoal(_ context.Context, goal string) error {
	f.goal = goal
	return f.goalErr
}

func (f *fakeEngine) StartFlight(context.Context) (flight.StartResult, error) {
	return f.startRes, f.startErr
}

func (f *fakeEngine) EndFlight(_ context.Context, opts flight.EndOptions) (flight.EndResult, error) {
	f.endOpts = opts
	return f.endRes, f.endErr
}

func (f *fakeEngine) DisputeTurbulence(context.Context) (flight.Snapshot, error) {
	return flight.Snapshot{Active: true, Turbulence: 1, Limit: 5}, f.disputeErr
}

func (f *fakeEngine) FlightStatus() engine.FlightStatus { return f.status }

func (f *fakeEngine) Config() engine.ConfigView { return f.config }

func makeReq(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	return r.Content[0].(mcp.TextContent).Text
}

func TestCheckURL_WhenMissingURL_ReturnsError(t *testing.T) {
	t.Parallel()
	result, err := CheckURL(&fakeEngine{})(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "url is required")
}

func TestCheckURL_FormatsDecision(t *testing.T) {
	t.Parallel()
	conf := 0.92
	e := &fakeEngine{decision: decision.Decision{
		ShouldWarn:  true,
		Reason:      "Streaming video unrelated to the goal",
		Source:      decision.SourceAI,
		Confidence:  &conf,
		CurrentTask: "Write thesis",
	}}

	result, err := CheckURL(e)(context.Background(), makeReq(map[string]any{"url": "https://netflix.com"}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "distraction")
	assert.Contains(t, text, "Source: ai")
	assert.Contains(t, text, "Confidence: 92%")
	assert.Contains(t, text, "Goal: Write thesis")
}

func TestSetGoal(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{}

	result, err := SetGoal(e)(context.Background(), makeReq(map[string]any{"goal": " Learn Go "}))
	require.NoError(t, err)
	assert.Equal(t, " Learn Go ", e.goal)
	assert.Contains(t, resultText(t, result), `"Learn Go"`)

	result, err = SetGoal(e)(context.Background(), makeReq(map[string]any{"goal": ""}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "cleared")

	result, err = SetGoal(e)(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSetGoal_WhenSaveFails_ReturnsError(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{goalErr: errors.New("disk full")}

	result, err := SetGoal(e)(context.Background(), makeReq(map[string]any{"goal": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "disk full")
}

func TestStartFlight(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{startRes: flight.StartResult{Flight: flight.Snapshot{Active: true, ID: "flight-1", Goal: "Ship it", Limit: 5}}}

	result, err := StartFlight(e)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "flight-1 started")
	assert.Contains(t, text, "Goal: Ship it")

	e.startErr = flight.ErrFlightInProgress
	result, err = StartFlight(e)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already in progress")
}

func TestEndFlight(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{endRes: flight.EndResult{TooShort: true, DurationMs: 60_000}}

	result, err := EndFlight(e)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "1m0s")

	e.endRes = flight.EndResult{Record: &flight.Record{Outcome: flight.OutcomeFail, DurationMs: 600_000, Turbulence: 5}}
	result, err = EndFlight(e)(context.Background(), makeReq(map[string]any{
		"forced_outcome":      "fail",
		"skip_duration_check": true,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Landed fail after 10m0s with 5 turbulence")
	assert.Equal(t, flight.EndOptions{ForcedOutcome: flight.OutcomeFail, SkipDurationCheck: true}, e.endOpts)

	result, err = EndFlight(e)(context.Background(), makeReq(map[string]any{"forced_outcome": "crashed"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	e.endErr = flight.ErrNoFlight
	result, err = EndFlight(e)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No flight in progress")
}

func TestDisputeTurbulence(t *testing.T) {
	t.Parallel()

	result, err := DisputeTurbulence(&fakeEngine{})(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "1/5")

	result, err = DisputeTurbulence(&fakeEngine{disputeErr: flight.ErrNoTurbulence})(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no turbulence")
}

func TestFocusStatus(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{
		config: engine.ConfigView{
			CurrentTask: "Write thesis",
			Enabled:     true,
			HasAPIKey:   true,
			CacheSize:   3,
			Stats:       map[string]int64{"pagesAnalyzed": 12, "warningsShown": 2},
		},
		status: engine.FlightStatus{
			Flight: flight.Snapshot{Active: true, ID: "flight-9", Turbulence: 2, Limit: 5, DurationMs: 90_000},
			History: []flight.Record{
				{ID: "flight-8", Outcome: flight.OutcomePerfect, DurationMs: 1_500_000},
				{ID: "flight-7", Outcome: flight.OutcomeDelayed, DurationMs: 600_000, Turbulence: 2},
			},
		},
	}

	result, err := FocusStatus(e)(context.Background(), makeReq(map[string]any{"history_limit": float64(1)}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Goal: Write thesis")
	assert.Contains(t, text, "Cached decisions: 3")
	assert.Contains(t, text, "Turbulence: 2/5")
	assert.Contains(t, text, "flight-8")
	assert.NotContains(t, text, "flight-7")
	assert.Contains(t, text, "Pages analyzed: 12")
}

func TestFocusStatus_Idle(t *testing.T) {
	t.Parallel()
	result, err := FocusStatus(&fakeEngine{})(context.Background(), makeReq(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Goal: (none)")
	assert.Contains(t, text, "No flight in progress")
}
