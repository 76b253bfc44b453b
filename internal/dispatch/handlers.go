package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/neoromantics/focus/internal/engine"
	"github.com/neoromantics/focus/internal/flight"
)

// Ack is the plain success reply.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Failure reports an operation that did not happen.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type listReply struct {
	Success     bool     `json:"success"`
	BlockList   []string `json:"blockList,omitempty"`
	AllowList   []string `json:"allowList,omitempty"`
	AllowedURLs []string `json:"allowedUrls,omitempty"`
}

type enabledReply struct {
	Success bool `json:"success"`
	Enabled bool `json:"enabled"`
}

type configReply struct {
	Config engine.ConfigView `json:"config"`
}

type statsReply struct {
	Stats map[string]int64 `json:"stats"`
}

type warningReply struct {
	Success bool `json:"success"`
	flight.TurbulenceResult
}

type allowReply struct {
	Success bool `json:"success"`
	engine.AllowResult
}

type startReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	flight.StartResult
}

type endReply struct {
	Success bool `json:"success"`
	flight.EndResult
}

type disputeReply struct {
	Success bool            `json:"success"`
	Flight  flight.Snapshot `json:"flight"`
}

var ack = Ack{Success: true}

func CheckURL(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		return e.CheckURL(ctx, req.URL, req.HTML), nil
	}
}

func TaskUpdated(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		if err := e.UpdateGoal(ctx, req.Task); err != nil {
			return nil, err
		}
		return ack, nil
	}
}

func BlockListUpdated(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		list, err := e.UpdateBlockList(ctx, req.BlockList)
		if err != nil {
			return nil, err
		}
		return listReply{Success: true, BlockList: list}, nil
	}
}

func AllowListUpdated(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		list, err := e.UpdateAllowList(ctx, req.AllowList)
		if err != nil {
			return nil, err
		}
		return listReply{Success: true, AllowList: list}, nil
	}
}

func AllowedURLsUpdated(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		list, err := e.UpdateAllowedURLs(ctx, req.AllowedURLs)
		if err != nil {
			return nil, err
		}
		return listReply{Success: true, AllowedURLs: list}, nil
	}
}

// APIKeyUpdated stores the key when one is sent, otherwise it only reloads
// settings written by another process.
func APIKeyUpdated(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		var err error
		if req.APIKey != nil {
			err = e.UpdateAPIKey(ctx, *req.APIKey)
		} else {
			err = e.ReloadSettings(ctx)
		}
		if err != nil {
			return nil, err
		}
		return ack, nil
	}
}

// SetEnabled only enables on an explicit true.
func SetEnabled(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		enabled := req.Enabled != nil && *req.Enabled
		if err := e.SetEnabled(ctx, enabled); err != nil {
			return nil, err
		}
		return enabledReply{Success: true, Enabled: enabled}, nil
	}
}

func GetConfig(e Engine) Handler {
	return func(context.Context, Request) (any, error) {
		return configReply{Config: e.Config()}, nil
	}
}

func GetStats(e Engine) Handler {
	return func(context.Context, Request) (any, error) {
		return statsReply{Stats: e.Stats()}, nil
	}
}

func WarningShown(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		res, err := e.WarningShown(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return warningReply{Success: true, TurbulenceResult: res}, nil
	}
}

func UserWentBack(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		e.UserWentBack(ctx, req.URL)
		return ack, nil
	}
}

func UserContinued(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		e.UserContinued(ctx, req.URL)
		return ack, nil
	}
}

func AllowCurrentURL(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		res, err := e.AllowCurrentURL(ctx, req.URL, req.FromWarning)
		if err != nil {
			return nil, err
		}
		return allowReply{Success: true, AllowResult: res}, nil
	}
}

func AddToAllowList(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		list, err := e.AddHostToAllowList(ctx, req.Hostname)
		if err != nil {
			return nil, err
		}
		return listReply{Success: true, AllowList: list}, nil
	}
}

// StartFlight reports an already active flight as a failure carrying the
// current state.
func StartFlight(e Engine) Handler {
	return func(ctx context.Context, _ Request) (any, error) {
		res, err := e.StartFlight(ctx)
		switch {
		case errors.Is(err, flight.ErrFlightInProgress):
			return startReply{Error: err.Error(), StartResult: res}, nil
		case err != nil:
			return nil, err
		}
		return startReply{Success: true, StartResult: res}, nil
	}
}

func EndFlight(e Engine) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		opts := flight.EndOptions{SkipDurationCheck: req.SkipDurationCheck}
		switch o := flight.Outcome(req.ForcedOutcome); o {
		case "", flight.OutcomePerfect, flight.OutcomeDelayed, flight.OutcomeFail:
			opts.ForcedOutcome = o
		default:
			return nil, fmt.Errorf("%w: forcedOutcome %q", ErrInvalidRequest, req.ForcedOutcome)
		}

		res, err := e.EndFlight(ctx, opts)
		if err != nil {
			return nil, err
		}
		if res.TooShort {
			return endReply{EndResult: res}, nil
		}
		return endReply{Success: true, EndResult: res}, nil
	}
}

func DisputeTurbulence(e Engine) Handler {
	return func(ctx context.Context, _ Request) (any, error) {
		snap, err := e.DisputeTurbulence(ctx)
		if err != nil {
			return nil, err
		}
		return disputeReply{Success: true, Flight: snap}, nil
	}
}

func GetFlightStatus(e Engine) Handler {
	return func(context.Context, Request) (any, error) {
		return e.FlightStatus(), nil
	}
}

func Test() Handler {
	return func(context.Context, Request) (any, error) {
		return Ack{Success: true, Message: "Background script responding!"}, nil
	}
}
