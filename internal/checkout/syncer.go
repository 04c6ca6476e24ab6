// Package checkout keeps a local clone of the script repository aligned
// with its remote branch and exposes the result as a per-item workspace.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/codeGROOVE-dev/retry"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/scriptsync/scriptsync/internal/logger"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	defaultFetchTimeout = 2 * time.Minute
)

// Options configures a Syncer. Everything the sync needs arrives here;
// nothing is read from process environment.
type Options struct {
	URL             string
	Branch          string
	Dir             string
	Depth           int
	FetchTimeout    time.Duration
	DiscoveryFile   string
	RemediationFile string
	Logger          *logger.Logger
}

// Syncer aligns a local checkout with the remote branch.
type Syncer struct {
	opts Options
}

// New validates options and builds a Syncer.
func New(opts Options) (*Syncer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("repository URL is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("checkout directory is required")
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &Syncer{opts: opts}, nil
}

// SyncResult reports what a sync produced. Diagnostics carry non-fatal
// notes worth surfacing alongside a successful sync.
type SyncResult struct {
	Branch      string
	Head        string
	Diagnostics []string
	Workspace   *Workspace
}

// Sync clones the repository on first use, otherwise fetches and hard
// resets to the remote branch head so local state always mirrors the
// remote. Partial local edits never survive a sync.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{Branch: s.opts.Branch}

	repo, err := git.PlainOpen(s.opts.Dir)
	switch {
	case err == nil:
		if err := s.refresh(ctx, repo, result); err != nil {
			return nil, err
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		repo, err = s.clone(ctx, result)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("opening checkout %s: %w", s.opts.Dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving checkout head: %w", err)
	}
	result.Head = head.Hash().String()

	result.Workspace = NewWorkspace(s.opts.Dir, s.opts.DiscoveryFile, s.opts.RemediationFile)

	s.opts.Logger.WithFields(map[string]any{
		"branch": result.Branch,
		"head":   result.Head,
	}).Info("checkout synced")
	return result, nil
}

func (s *Syncer) clone(ctx context.Context, result *SyncResult) (*git.Repository, error) {
	// A stale non-repository directory blocks cloning; replace it.
	if info, err := os.Stat(s.opts.Dir); err == nil && info.IsDir() {
		if err := os.RemoveAll(s.opts.Dir); err != nil {
			return nil, fmt.Errorf("clearing stale checkout directory: %w", err)
		}
		result.Diagnostics = append(result.Diagnostics, "replaced non-repository checkout directory")
	}

	cloneOpts := &git.CloneOptions{
		URL:           s.opts.URL,
		ReferenceName: plumbing.NewBranchReferenceName(s.opts.Branch),
		SingleBranch:  true,
	}
	if s.opts.Depth > 0 {
		cloneOpts.Depth = s.opts.Depth
	}

	var repo *git.Repository
	err := retry.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()

		cloned, err := git.PlainCloneContext(cctx, s.opts.Dir, false, cloneOpts)
		if err != nil {
			// A failed clone can leave a partial directory behind that
			// would poison the next attempt.
			_ = os.RemoveAll(s.opts.Dir)
			return err
		}
		repo = cloned
		return nil
	}, retry.Attempts(maxRetries), retry.Delay(initialBackoff), retry.MaxDelay(maxBackoff))
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", s.opts.URL, err)
	}

	result.Diagnostics = append(result.Diagnostics, "cloned fresh checkout")
	return repo, nil
}

func (s *Syncer) refresh(ctx context.Context, repo *git.Repository, result *SyncResult) error {
	upToDate := false
	err := retry.Do(func() error {
		fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()

		err := repo.FetchContext(fctx, &git.FetchOptions{RemoteName: "origin", Force: true})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			upToDate = true
			return nil
		}
		return err
	}, retry.Attempts(maxRetries), retry.Delay(initialBackoff), retry.MaxDelay(maxBackoff))
	if err != nil {
		return fmt.Errorf("fetching %s: %w", s.opts.URL, err)
	}
	if upToDate {
		result.Diagnostics = append(result.Diagnostics, "already up to date")
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", s.opts.Branch), true)
	if err != nil {
		return fmt.Errorf("resolving origin/%s: %w", s.opts.Branch, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	local := plumbing.NewBranchReferenceName(s.opts.Branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: local, Force: true}); err != nil {
		// The local branch may not exist yet when the checkout was created
		// on a different branch; create it at the remote head.
		if err := wt.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Branch: local, Create: true, Force: true}); err != nil {
			return fmt.Errorf("checking out %s: %w", s.opts.Branch, err)
		}
	}

	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: remoteRef.Hash()}); err != nil {
		return fmt.Errorf("resetting to origin/%s: %w", s.opts.Branch, err)
	}

	return nil
}
