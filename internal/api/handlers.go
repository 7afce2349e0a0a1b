// File: internal/api/handlers.go
// ============================================
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"paper-trading-bot/internal/engine"
	"paper-trading-bot/internal/strategy"
)

// Control actions accepted by POST /api/agent/control.
const (
	ActionStart         = "start"
	ActionStop          = "stop"
	ActionReset         = "reset"
	ActionRecreate      = "recreate"
	ActionReloadSymbols = "reload_symbols"
	ActionLiquidate     = "liquidate"
	ActionSellAll       = "sell_all"
	ActionSetStrategy   = "set_strategy"
)

// ControlOptions are the optional arguments of a control action.
type ControlOptions struct {
	StartingCash *float64 `json:"startingCash,omitempty"`
	Strategy     string   `json:"strategy,omitempty"`
}

type ControlRequest struct {
	Action  string         `json:"action"`
	Options ControlOptions `json:"options"`
}

type ControlResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var errInvalidStrategy = errors.New("invalid strategy")

// Control runs one lifecycle or trading action against the engine.
func (s *Server) Control(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	status, err := s.dispatch(r, action, req.Options)
	switch {
	case errors.Is(err, errInvalidStrategy):
		writeError(w, http.StatusBadRequest, "invalid_strategy", req.Options.Strategy)
		return
	case errors.Is(err, errUnknownAction):
		writeError(w, http.StatusBadRequest, "invalid_action", req.Action)
		return
	case err != nil:
		s.log.Warn("control action failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}

	s.log.Info("control action", zap.String("action", action), zap.String("status", status))
	writeJSON(w, http.StatusOK, ControlResponse{OK: true, Status: status})
}

var errUnknownAction = errors.New("unknown action")

func (s *Server) dispatch(r *http.Request, action string, opts ControlOptions) (string, error) {
	ctx := r.Context()
	eng := s.host.Engine()

	switch action {
	case ActionStart:
		// the backfill must not die with the request
		if err := eng.Start(s.base); err != nil {
			return "", err
		}
		return "running", nil

	case ActionStop:
		return "stopped", eng.Stop(ctx)

	case ActionReset:
		var name strategy.Name
		if opts.Strategy != "" {
			n, err := parseStrategy(opts.Strategy)
			if err != nil {
				return "", err
			}
			name = n
		}
		if err := eng.Reset(ctx, opts.StartingCash); err != nil {
			return "", err
		}
		if name != 0 {
			if err := eng.SetStrategy(ctx, name); err != nil {
				return "", err
			}
		}
		return "reset", nil

	case ActionRecreate:
		return "recreated", s.host.Recreate(ctx, engine.RecreateOptions{StartingCash: opts.StartingCash})

	case ActionReloadSymbols:
		return "symbols_reloaded", s.host.Recreate(ctx, engine.RecreateOptions{})

	case ActionLiquidate, ActionSellAll:
		return "liquidated", eng.LiquidateAll(ctx)

	case ActionSetStrategy:
		name, err := parseStrategy(opts.Strategy)
		if err != nil {
			return "", err
		}
		return "strategy_set", eng.SetStrategy(ctx, name)
	}
	return "", errUnknownAction
}

func parseStrategy(s string) (strategy.Name, error) {
	name, err := strategy.ParseName(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidStrategy, err)
	}
	return name, nil
}

// State returns the current snapshot.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	snap, err := s.host.Engine().Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Stream pushes the snapshot as server-sent events, once immediately and
// then on every interval until the client goes away.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	push := func() bool {
		snap, err := s.host.Engine().Snapshot(ctx)
		if errors.Is(err, engine.ErrClosed) {
			// replaced by a recreate between lookup and call
			snap, err = s.host.Engine().Snapshot(ctx)
		}
		if err != nil {
			return false
		}
		data, err := json.Marshal(snap)
		if err != nil {
			s.log.Warn("snapshot encode failed", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !push() {
		return
	}
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{OK: false, Error: code, Details: details})
}
