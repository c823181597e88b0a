// Package admission implements the admission controller: it composes the
// pressure sensor, the rolling-window limiter, and the daily quota check
// into a single Admit decision, evaluated in that strict order with
// first-denial-wins semantics.
package admission

import (
	"context"
	"fmt"

	"github.com/wisbric/resumeforge/internal/quota"
)

// EndpointClass determines which window cap applies to a request.
type EndpointClass string

const (
	ClassDefault  EndpointClass = "default"
	ClassLLM      EndpointClass = "llm"
	ClassIdentity EndpointClass = "identity"
)

// DenialReason identifies which check rejected a request.
type DenialReason string

const (
	DeniedNone       DenialReason = ""
	DeniedPressure   DenialReason = "pressure"
	DeniedWindow     DenialReason = "window"
	DeniedDailyQuota DenialReason = "daily_quota"
)

// Decision is the outcome of an Admit call.
type Decision struct {
	Allowed bool
	Reason  DenialReason
}

// WindowCaps holds the per-endpoint-class request caps applied within
// the rolling window.
type WindowCaps struct {
	Default  int
	LLM      int
	Identity int
}

// DefaultWindowCaps returns the spec's defaults: 100 default-endpoint
// requests, 50 LLM-endpoint requests, 20 identity-endpoint requests.
func DefaultWindowCaps() WindowCaps {
	return WindowCaps{Default: 100, LLM: 50, Identity: 20}
}

func (c WindowCaps) capFor(class EndpointClass) int {
	switch class {
	case ClassLLM:
		return c.LLM
	case ClassIdentity:
		return c.Identity
	default:
		return c.Default
	}
}

// PressureSensor is the subset of *pressure.Sensor the controller needs.
type PressureSensor interface {
	IsUnderPressure() bool
}

// WindowChecker is the subset of *quota.WindowLimiter the controller needs.
type WindowChecker interface {
	CheckWindow(ctx context.Context, prefix, key string, limit int) (quota.WindowResult, error)
}

// DailyChecker is the subset of *quota.Store the controller needs.
type DailyChecker interface {
	CheckDaily(ctx context.Context, principalID, apiKind string) (bool, int, error)
}

// Controller composes the three admission checks.
type Controller struct {
	sensor     PressureSensor
	window     WindowChecker
	daily      DailyChecker
	windowCaps WindowCaps
}

// New builds an admission Controller.
func New(sensor PressureSensor, window WindowChecker, daily DailyChecker, caps WindowCaps) *Controller {
	return &Controller{sensor: sensor, window: window, daily: daily, windowCaps: caps}
}

// Admit evaluates, in strict order: memory pressure, rolling-window
// request cap, then (only for requests that name an apiKind) daily
// quota. The first failing check wins; later checks are not evaluated.
// apiKind is empty for endpoints that don't consume LLM quota (e.g.
// Status, Cancel). The window check consumes a slot atomically as part
// of the check itself (see WindowChecker.CheckWindow), so a request that
// passes the window but is later denied by the daily quota has still
// spent its window slot.
func (c *Controller) Admit(ctx context.Context, principalID string, class EndpointClass, apiKind string) (Decision, error) {
	if c.sensor.IsUnderPressure() {
		return Decision{Allowed: false, Reason: DeniedPressure}, nil
	}

	windowResult, err := c.window.CheckWindow(ctx, string(class), principalID, c.windowCaps.capFor(class))
	if err != nil {
		return Decision{}, fmt.Errorf("checking window: %w", err)
	}
	if !windowResult.Allowed {
		return Decision{Allowed: false, Reason: DeniedWindow}, nil
	}

	if apiKind != "" {
		allowed, _, err := c.daily.CheckDaily(ctx, principalID, apiKind)
		if err != nil {
			return Decision{}, fmt.Errorf("checking daily quota: %w", err)
		}
		if !allowed {
			return Decision{Allowed: false, Reason: DeniedDailyQuota}, nil
		}
	}

	return Decision{Allowed: true}, nil
}
