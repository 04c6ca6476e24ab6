package model

import (
	"time"
)

// Action describes what the reconciler did, or would have done, for a
// single configuration item.
type Action string

const (
	// ActionNoOp means both script kinds matched; nothing to do.
	ActionNoOp Action = "noop"
	// ActionWritten means drift was found and the item was rewritten and
	// persisted.
	ActionWritten Action = "written"
	// ActionLoggedOnly means drift was found but the run was log-only.
	ActionLoggedOnly Action = "logged_only"
	// ActionFailed means the item could not be reconciled.
	ActionFailed Action = "failed"
)

// IsValid reports whether the action is one of the defined values.
func (a Action) IsValid() bool {
	switch a {
	case ActionNoOp, ActionWritten, ActionLoggedOnly, ActionFailed:
		return true
	default:
		return false
	}
}

// ItemResult captures the reconciliation outcome for one configuration item.
// Details holds the unified diff of drifted script content, when any.
type ItemResult struct {
	ItemName         string
	DiscoveryDrift   bool
	RemediationDrift bool
	Action           Action
	Message          string
	Details          string
	Error            error
	Duration         time.Duration
	Timestamp        time.Time
}

// Drifted reports whether either script kind diverged.
func (r ItemResult) Drifted() bool {
	return r.DiscoveryDrift || r.RemediationDrift
}
