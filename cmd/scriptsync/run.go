package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/scriptsync/scriptsync/internal/audit"
	"github.com/scriptsync/scriptsync/internal/checkout"
	"github.com/scriptsync/scriptsync/internal/config"
	"github.com/scriptsync/scriptsync/internal/engine"
	"github.com/scriptsync/scriptsync/internal/logger"
	"github.com/scriptsync/scriptsync/internal/model"
	"github.com/scriptsync/scriptsync/internal/store"
)

type runOptions struct {
	ConfigPath string
	Apply      bool
	Verbose    bool
	JSON       bool
}

// Swappable for tests.
var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
	stdoutWriter io.Writer = os.Stdout
)

// runReconcile drives the whole pipeline and returns the process exit code:
// 0 in sync or corrected, 1 drift logged, 2 configuration error, 3 run or
// item failure.
func runReconcile(opts runOptions) int {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error parsing configuration: %v\n", err)
		return 2
	}

	level := "info"
	if opts.Verbose || cfg.Settings.Verbose {
		level = "debug"
	}

	log, err := logger.New(logger.Options{Level: level, HumanReadable: !opts.JSON})
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error creating logger: %v\n", err)
		return 3
	}

	token, err := cfg.Service.ResolveToken()
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error resolving service token: %v\n", err)
		return 2
	}

	syncer, err := checkout.New(checkout.Options{
		URL:             cfg.Repo.URL,
		Branch:          cfg.Repo.Branch,
		Dir:             cfg.Repo.Destination,
		Depth:           cfg.Repo.Depth,
		DiscoveryFile:   cfg.Scripts.DiscoveryFile,
		RemediationFile: cfg.Scripts.RemediationFile,
		Logger:          log,
	})
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error configuring checkout: %v\n", err)
		return 2
	}

	ctx := context.Background()

	sync, err := syncer.Sync(ctx)
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error syncing repository: %v\n", err)
		return 3
	}

	names, err := resolveItems(cfg, sync.Workspace)
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error listing configuration items: %v\n", err)
		return 3
	}
	if len(names) == 0 {
		log.Warn("no configuration items to reconcile")
		return 0
	}

	service, err := store.NewAdminService(store.AdminServiceOptions{
		BaseURL:            cfg.Service.BaseURL,
		Token:              token,
		Timeout:            cfg.Service.RequestTimeout(),
		RetryMax:           cfg.Service.RetryMax,
		InsecureSkipVerify: cfg.Service.InsecureSkipVerify,
		Logger:             log,
	})
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error creating service client: %v\n", err)
		return 2
	}

	var recorder audit.Recorder
	if cfg.Audit.Path != "" {
		recorder = audit.NewTrail(cfg.Audit.Path)
	}

	reconciler, err := engine.New(service, sync.Workspace, engine.Options{
		Apply:         opts.Apply && !cfg.Settings.LogOnly,
		Parallel:      cfg.Settings.Parallel,
		ItemTimeout:   cfg.Settings.ItemTimeout(),
		SigningBanner: cfg.Scripts.SigningBanner,
		Engine:        cfg.Scripts.Engine,
		Logger:        log,
		Recorder:      recorder,
	})
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error creating reconciler: %v\n", err)
		return 3
	}

	summary, err := reconciler.Run(ctx, names)
	if err != nil {
		fmt.Fprintf(stderrWriter, "Error running reconciliation: %v\n", err)
		return 3
	}

	if opts.JSON {
		printJSONSummary(summary)
	} else {
		printRunSummary(summary)
		if opts.Verbose {
			printDriftDetails(summary)
		}
	}

	return summary.ExitCode()
}

// resolveItems returns the item names for this run: the configured subset
// when one is given, otherwise every item directory in the workspace. A
// configured name without a matching directory is reconciled anyway and
// fails on its own, rather than being skipped silently.
func resolveItems(cfg *config.Config, ws *checkout.Workspace) ([]string, error) {
	if len(cfg.Items) > 0 {
		return cfg.Items, nil
	}
	return ws.Items()
}

func printRunSummary(summary *model.RunSummary) {
	entries := make([]audit.Entry, 0, len(summary.Results))
	for _, result := range summary.Results {
		entries = append(entries, audit.FromResult(summary.RunID, result))
	}
	audit.RenderTable(stdoutWriter, entries)

	fmt.Fprintf(stdoutWriter, "\nSummary:\n")
	fmt.Fprintf(stdoutWriter, "  Total:       %d\n", summary.TotalItems)
	fmt.Fprintf(stdoutWriter, "  In sync:     %d\n", summary.InSync)
	fmt.Fprintf(stdoutWriter, "  Corrected:   %d\n", summary.Written)
	fmt.Fprintf(stdoutWriter, "  Drift found: %d\n", summary.LoggedOnly)
	fmt.Fprintf(stdoutWriter, "  Failed:      %d\n", summary.Failed)
	fmt.Fprintf(stdoutWriter, "  Duration:    %s\n", summary.Duration.String())

	if summary.AllInSync() {
		fmt.Fprintln(stdoutWriter, "\nAll items in sync - no changes needed")
	} else if summary.LoggedOnly > 0 {
		fmt.Fprintln(stdoutWriter, "\nDrift detected - run 'scriptsync apply' to correct")
	}
}

func printDriftDetails(summary *model.RunSummary) {
	hasDetails := false
	for _, result := range summary.Results {
		if result.Details == "" {
			continue
		}
		if !hasDetails {
			fmt.Fprintln(stdoutWriter, "\nDrift Details:")
			fmt.Fprintln(stdoutWriter, strings.Repeat("=", 80))
			hasDetails = true
		}
		fmt.Fprintf(stdoutWriter, "\n--- Item: %s ---\n", result.ItemName)
		fmt.Fprintln(stdoutWriter, result.Details)
	}
}

func printJSONSummary(summary *model.RunSummary) {
	type jsonResult struct {
		Item             string  `json:"item"`
		Action           string  `json:"action"`
		DiscoveryDrift   bool    `json:"discovery_drift"`
		RemediationDrift bool    `json:"remediation_drift"`
		Message          string  `json:"message,omitempty"`
		Details          string  `json:"details,omitempty"`
		Error            string  `json:"error,omitempty"`
		Duration         float64 `json:"duration_seconds"`
		Timestamp        string  `json:"timestamp"`
	}

	type jsonSummary struct {
		RunID      string       `json:"run_id"`
		LogOnly    bool         `json:"log_only"`
		TotalItems int          `json:"total_items"`
		InSync     int          `json:"in_sync"`
		Written    int          `json:"written"`
		LoggedOnly int          `json:"logged_only"`
		Failed     int          `json:"failed"`
		Duration   float64      `json:"duration_seconds"`
		Results    []jsonResult `json:"results"`
	}

	out := jsonSummary{
		RunID:      summary.RunID,
		LogOnly:    summary.LogOnly,
		TotalItems: summary.TotalItems,
		InSync:     summary.InSync,
		Written:    summary.Written,
		LoggedOnly: summary.LoggedOnly,
		Failed:     summary.Failed,
		Duration:   summary.Duration.Seconds(),
		Results:    make([]jsonResult, len(summary.Results)),
	}

	for i, result := range summary.Results {
		jr := jsonResult{
			Item:             result.ItemName,
			Action:           string(result.Action),
			DiscoveryDrift:   result.DiscoveryDrift,
			RemediationDrift: result.RemediationDrift,
			Message:          result.Message,
			Details:          result.Details,
			Duration:         result.Duration.Seconds(),
			Timestamp:        result.Timestamp.Format(time.RFC3339),
		}
		if result.Error != nil {
			jr.Error = result.Error.Error()
		}
		out.Results[i] = jr
	}

	encoder := json.NewEncoder(stdoutWriter)
	encoder.SetIndent("", "  ")
	encoder.Encode(out)
}
