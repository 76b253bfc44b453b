// Package dispatch maps extension message actions to engine operations.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/engine"
	"github.com/neoromantics/focus/internal/flight"
)

// Action names a message sent by the extension.
type Action string

const (
	ActionCheckURL           Action = "checkUrl"
	ActionTaskUpdated        Action = "taskUpdated"
	ActionBlockListUpdated   Action = "blockListUpdated"
	ActionAllowListUpdated   Action = "allowListUpdated"
	ActionAllowedURLsUpdated Action = "allowedUrlsUpdated"
	ActionAPIKeyUpdated      Action = "apiKeyUpdated"
	ActionSetEnabled         Action = "setExtensionEnabled"
	ActionGetConfig          Action = "getConfig"
	ActionGetStats           Action = "getStats"
	ActionWarningShown       Action = "warningShown"
	ActionUserWentBack       Action = "userWentBack"
	ActionUserContinued      Action = "userContinued"
	ActionAllowCurrentURL    Action = "allowCurrentUrl"
	ActionAddToAllowList     Action = "addToAllowList"
	ActionStartFlight        Action = "startFlight"
	ActionEndFlight          Action = "endFlight"
	ActionDisputeTurbulence  Action = "disputeTurbulence"
	ActionGetFlightStatus    Action = "getFlightStatus"
	ActionTest               Action = "test"
)

var (
	// ErrUnknownAction is returned by Dispatch for actions with no handler.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidRequest marks a request whose fields cannot be used.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is one message. Only the fields its action reads need be set.
type Request struct {
	Action            Action   `json:"action"`
	URL               string   `json:"url,omitempty"`
	HTML              string   `json:"html,omitempty"`
	Task              string   `json:"task,omitempty"`
	BlockList         []string `json:"blockList,omitempty"`
	AllowList         []string `json:"allowList,omitempty"`
	AllowedURLs       []string `json:"allowedUrls,omitempty"`
	APIKey            *string  `json:"apiKey,omitempty"`
	Enabled           *bool    `json:"enabled,omitempty"`
	Hostname          string   `json:"hostname,omitempty"`
	FromWarning       bool     `json:"fromWarning,omitempty"`
	ForcedOutcome     string   `json:"forcedOutcome,omitempty"`
	SkipDurationCheck bool     `json:"skipDurationCheck,omitempty"`
}

// Engine is the set of operations the handlers need.
type Engine interface {
	CheckURL(ctx context.Context, rawURL, html string) decision.Decision
	UpdateGoal(ctx context.Context, goal string) error
	UpdateBlockList(ctx context.Context, list []string) ([]string, error)
	UpdateAllowList(ctx context.Context, list []string) ([]string, error)
	UpdateAllowedURLs(ctx context.Context, list []string) ([]string, error)
	AddHostToAllowList(ctx context.Context, host string) ([]string, error)
	UpdateAPIKey(ctx context.Context, key string) error
	ReloadSettings(ctx context.Context) error
	SetEnabled(ctx context.Context, enabled bool) error
	Config() engine.ConfigView
	Stats() map[string]int64
	WarningShown(ctx context.Context, rawURL string) (flight.TurbulenceResult, error)
	UserWentBack(ctx context.Context, rawURL string)
	UserContinued(ctx context.Context, rawURL string)
	AllowCurrentURL(ctx context.Context, rawURL string, fromWarning bool) (engine.AllowResult, error)
	StartFlight(ctx context.Context) (flight.StartResult, error)
	EndFlight(ctx context.Context, opts flight.EndOptions) (flight.EndResult, error)
	DisputeTurbulence(ctx context.Context) (flight.Snapshot, error)
	FlightStatus() engine.FlightStatus
}

// Handler serves one action.
type Handler func(ctx context.Context, req Request) (any, error)

// Table maps actions to handlers.
type Table map[Action]Handler

// NewTable builds the handler table over e.
func NewTable(e Engine) Table {
	return Table{
		ActionCheckURL:           CheckURL(e),
		ActionTaskUpdated:        TaskUpdated(e),
		ActionBlockListUpdated:   BlockListUpdated(e),
		ActionAllowListUpdated:   AllowListUpdated(e),
		ActionAllowedURLsUpdated: AllowedURLsUpdated(e),
		ActionAPIKeyUpdated:      APIKeyUpdated(e),
		ActionSetEnabled:         SetEnabled(e),
		ActionGetConfig:          GetConfig(e),
		ActionGetStats:           GetStats(e),
		ActionWarningShown:       WarningShown(e),
		ActionUserWentBack:       UserWentBack(e),
		ActionUserContinued:      UserContinued(e),
		ActionAllowCurrentURL:    AllowCurrentURL(e),
		ActionAddToAllowList:     AddToAllowList(e),
		ActionStartFlight:        StartFlight(e),
		ActionEndFlight:          EndFlight(e),
		ActionDisputeTurbulence:  DisputeTurbulence(e),
		ActionGetFlightStatus:    GetFlightStatus(e),
		ActionTest:               Test(),
	}
}

// Dispatch runs the handler for req.Action. Handler errors other than
// ErrInvalidRequest become a Failure reply; only unknown actions and
// unusable requests are returned as errors.
func (t Table) Dispatch(ctx context.Context, req Request) (any, error) {
	h, ok := t[req.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	reply, err := h(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		slog.Warn("action failed", "action", string(req.Action), "error", err)
		return Failure{Error: err.Error()}, nil
	}
	return reply, nil
}
