package handlers

import (
	"context"

	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/engine"
	"github.com/neoromantics/focus/internal/flight"
)

// Engine is the subset of engine operations exposed as tools.
type Engine interface {
	CheckURL(ctx context.Context, rawURL, html string) decision.Decision
	UpdateGoal(ctx context.Context, goal string) error
	StartFlight(ctx context.Context) (flight.StartResult, error)
	EndFlight(ctx context.Context, opts flight.EndOptions) (flight.EndResult, error)
	DisputeTurbulence(ctx context.Context) (flight.Snapshot, error)
	FlightStatus() engine.FlightStatus
	Config() engine.ConfigView
}
