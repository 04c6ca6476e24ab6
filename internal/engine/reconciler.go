// Package engine orchestrates drift detection and reconciliation across a
// set of configuration items.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptsync/scriptsync/internal/audit"
	"github.com/scriptsync/scriptsync/internal/checkout"
	"github.com/scriptsync/scriptsync/internal/logger"
	"github.com/scriptsync/scriptsync/internal/model"
	"github.com/scriptsync/scriptsync/internal/script"
	"github.com/scriptsync/scriptsync/internal/sdm"
	"github.com/scriptsync/scriptsync/internal/store"
	"github.com/scriptsync/scriptsync/pkg/diff"
	syncerrors "github.com/scriptsync/scriptsync/pkg/errors"
)

const (
	defaultParallel    = 4
	defaultItemTimeout = 30 * time.Second
)

// Options configures a reconciliation run.
type Options struct {
	// Apply writes corrected documents back to the service. When false the
	// run only reports drift.
	Apply         bool
	Parallel      int
	ItemTimeout   time.Duration
	SigningBanner string
	// Engine names the script engine recorded on created script bodies.
	Engine   string
	Logger   *logger.Logger
	Recorder audit.Recorder
}

// Reconciler compares repository scripts against the copies embedded in
// configuration items and corrects divergence.
type Reconciler struct {
	service store.Service
	ws      *checkout.Workspace
	opts    Options
}

// New builds a Reconciler.
func New(service store.Service, ws *checkout.Workspace, opts Options) (*Reconciler, error) {
	if service == nil {
		return nil, fmt.Errorf("store service is required")
	}
	if ws == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if opts.Parallel <= 0 {
		opts.Parallel = defaultParallel
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}
	if opts.Engine == "" {
		opts.Engine = "PowerShell"
	}
	return &Reconciler{service: service, ws: ws, opts: opts}, nil
}

// Run reconciles the named items and returns the run summary. Per-item
// failures are recorded and do not stop the batch; only a failed item fetch
// aborts the run outright.
func (r *Reconciler) Run(ctx context.Context, names []string) (*model.RunSummary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.opts.Logger.WithFields(map[string]any{"run_id": runID})

	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.ItemTimeout)
	items, err := r.service.Items(fetchCtx, store.Filter{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetching configuration items: %w", err)
	}
	log.WithFields(map[string]any{"fetched": len(items), "requested": len(names)}).Info("reconciliation started")

	pool := make(chan struct{}, r.opts.Parallel)
	results := make([]model.ItemResult, len(names))
	var wg sync.WaitGroup

	for idx, name := range names {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()

			select {
			case pool <- struct{}{}:
				defer func() { <-pool }()
			case <-ctx.Done():
				results[idx] = r.finish(runID, model.ItemResult{
					ItemName: name,
					Action:   model.ActionFailed,
					Error:    syncerrors.NewTimeoutError("await worker", ctx.Err()),
					Message:  "run cancelled before item started",
				}, time.Now())
				return
			}

			results[idx] = r.reconcileItem(ctx, runID, items, name)
		}(idx, name)
	}
	wg.Wait()

	summary := &model.RunSummary{RunID: runID, LogOnly: !r.opts.Apply}
	for _, result := range results {
		summary.Add(result)
	}
	summary.Duration = time.Since(start)

	log.WithFields(map[string]any{
		"total":       summary.TotalItems,
		"in_sync":     summary.InSync,
		"written":     summary.Written,
		"logged_only": summary.LoggedOnly,
		"failed":      summary.Failed,
	}).Info("reconciliation finished")
	return summary, nil
}

// reconcileItem runs the full pipeline for one item: locate, extract,
// normalize, compare, and correct or report.
func (r *Reconciler) reconcileItem(ctx context.Context, runID string, items []store.Item, name string) model.ItemResult {
	start := time.Now()
	log := r.opts.Logger.WithFields(map[string]any{"item": name})

	fail := func(err error, msg string) model.ItemResult {
		log.Error(err, msg)
		return r.finish(runID, model.ItemResult{
			ItemName: name,
			Action:   model.ActionFailed,
			Error:    err,
			Message:  msg,
		}, start)
	}

	if err := ctx.Err(); err != nil {
		return fail(syncerrors.NewTimeoutError("start item", err), "run cancelled")
	}

	item, ok := store.FindByName(items, name)
	if !ok {
		return fail(syncerrors.NewItemNotFoundError(name), "configuration item not found")
	}

	locals := make(map[script.Kind]script.Raw, 2)
	for _, kind := range script.Kinds() {
		raw, err := r.ws.ReadScript(name, kind)
		if err != nil {
			return fail(syncerrors.NewExtractionError(name, err), "reading repository script")
		}
		locals[kind] = raw
	}

	// A document that cannot be parsed or has no script setting still gets
	// compared: its scripts count as absent, so any repository content is
	// drift against an empty baseline.
	var extractionErr error
	remotes := make(map[script.Kind]string, 2)
	pkg, err := sdm.Parse(item.PackageXML)
	if err != nil {
		extractionErr = syncerrors.NewExtractionError(name, err)
		log.Warn("package document unreadable, comparing against empty baseline")
	} else {
		for _, kind := range script.Kinds() {
			body, present, err := pkg.Script(kind)
			if err != nil {
				extractionErr = syncerrors.NewExtractionError(name, err)
				log.Warn("script setting unreadable, comparing against empty baseline")
				pkg = nil
				break
			}
			if present {
				remotes[kind] = body
			}
		}
	}

	result := model.ItemResult{ItemName: name}
	updates := make(map[script.Kind]string, 2)
	details := make([]string, 0, 2)
	for _, kind := range script.Kinds() {
		local := script.Normalize(locals[kind], r.opts.SigningBanner)
		remote := script.Normalize(script.Raw(remotes[kind]), r.opts.SigningBanner)
		if local.Equal(remote) {
			continue
		}
		updates[kind] = string(locals[kind])
		details = append(details, diff.Unified(
			[]byte(remote.Text()), []byte(local.Text()),
			kind.String()+" (service)", kind.String()+" (repository)",
		))
		switch kind {
		case script.Discovery:
			result.DiscoveryDrift = true
		case script.Remediation:
			result.RemediationDrift = true
		}
		log.WithFields(map[string]any{
			"kind":       kind.String(),
			"local_sum":  local.Sum()[:12],
			"remote_sum": remote.Sum()[:12],
		}).Debug("drift detected")
	}
	result.Details = strings.Join(details, "\n")

	if !result.Drifted() {
		result.Action = model.ActionNoOp
		result.Message = "scripts match"
		log.Debug("scripts match")
		return r.finish(runID, result, start)
	}

	if !r.opts.Apply {
		result.Action = model.ActionLoggedOnly
		result.Message = "drift detected: " + driftedKinds(result)
		log.Info(result.Message)
		return r.finish(runID, result, start)
	}

	if pkg == nil {
		return fail(extractionErr, "cannot rewrite unreadable package document")
	}

	// Once the write begins the item is carried to completion even if the
	// batch is cancelled; only its own deadline applies.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ItemTimeout)
	defer cancel()

	next, err := pkg.WithScripts(updates, r.opts.Engine)
	if err != nil {
		return fail(syncerrors.NewWriteError(name, err), "rewriting package document")
	}
	xmlText, err := next.XML()
	if err != nil {
		return fail(syncerrors.NewWriteError(name, err), "serializing package document")
	}

	updated := item
	updated.PackageXML = xmlText
	updated.Revision = item.Revision + 1

	if err := r.service.Persist(writeCtx, updated); err != nil {
		return fail(syncerrors.NewPersistError(name, err), "persisting corrected item")
	}

	result.Action = model.ActionWritten
	result.Message = "drift corrected: " + driftedKinds(result)
	log.WithFields(map[string]any{"revision": updated.Revision}).Info(result.Message)
	return r.finish(runID, result, start)
}

// finish stamps timing on a result and appends its audit row.
func (r *Reconciler) finish(runID string, result model.ItemResult, start time.Time) model.ItemResult {
	result.Duration = time.Since(start)
	result.Timestamp = time.Now()

	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.Record(audit.FromResult(runID, result)); err != nil {
			r.opts.Logger.Error(err, "recording audit entry")
		}
	}
	return result
}

func driftedKinds(result model.ItemResult) string {
	kinds := make([]string, 0, 2)
	if result.DiscoveryDrift {
		kinds = append(kinds, "discovery")
	}
	if result.RemediationDrift {
		kinds = append(kinds, "remediation")
	}
	return strings.Join(kinds, ", ")
}
