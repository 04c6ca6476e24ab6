package model

import (
	"time"
)

// RunSummary aggregates item results for one reconciliation run.
type RunSummary struct {
	RunID      string
	LogOnly    bool
	TotalItems int
	InSync     int
	Written    int
	LoggedOnly int
	Failed     int
	Duration   time.Duration
	Results    []ItemResult
}

// Add appends a result and updates counters.
func (s *RunSummary) Add(result ItemResult) {
	s.Results = append(s.Results, result)
	s.TotalItems++
	switch result.Action {
	case ActionNoOp:
		s.InSync++
	case ActionWritten:
		s.Written++
	case ActionLoggedOnly:
		s.LoggedOnly++
	case ActionFailed:
		s.Failed++
	}
}

// AllInSync reports whether every item matched without action.
func (s *RunSummary) AllInSync() bool {
	return s.InSync == s.TotalItems
}

// ExitCode maps the run outcome to a process exit code: 3 when any item
// failed, 1 when drift was found but only logged, 0 otherwise.
func (s *RunSummary) ExitCode() int {
	if s.Failed > 0 {
		return 3
	}
	if s.LoggedOnly > 0 {
		return 1
	}
	return 0
}
