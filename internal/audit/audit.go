// Package audit records one row per reconciled item: what state each script
// kind was in and what the run did about it.
package audit

import (
	"time"

	"github.com/scriptsync/scriptsync/internal/model"
)

// Markers recorded in the per-kind info columns.
const (
	MarkerInSync    = "in sync"
	MarkerCorrected = "drift corrected"
	MarkerDetected  = "drift detected"
	MarkerError     = "Error"
)

// Entry is one audit row.
type Entry struct {
	RunID           string
	Timestamp       time.Time
	ItemName        string
	DiscoveryInfo   string
	RemediationInfo string
}

// Recorder receives one entry per reconciled item.
type Recorder interface {
	Record(entry Entry) error
}

// FromResult derives the audit row for an item result. A failed item gets
// the generic error marker in both columns since nothing can be said about
// either script kind.
func FromResult(runID string, result model.ItemResult) Entry {
	return Entry{
		RunID:           runID,
		Timestamp:       result.Timestamp,
		ItemName:        result.ItemName,
		DiscoveryInfo:   marker(result, result.DiscoveryDrift),
		RemediationInfo: marker(result, result.RemediationDrift),
	}
}

func marker(result model.ItemResult, drifted bool) string {
	switch {
	case result.Action == model.ActionFailed:
		return MarkerError
	case !drifted:
		return MarkerInSync
	case result.Action == model.ActionWritten:
		return MarkerCorrected
	default:
		return MarkerDetected
	}
}
