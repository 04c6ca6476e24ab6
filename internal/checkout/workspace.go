package checkout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scriptsync/scriptsync/internal/script"
)

const (
	defaultDiscoveryFile   = "DiscoveryScript.ps1"
	defaultRemediationFile = "RemediationScript.ps1"
)

// Workspace views a synced checkout as one directory per configuration
// item, each holding the item's discovery and remediation scripts.
type Workspace struct {
	dir             string
	discoveryFile   string
	remediationFile string
}

// NewWorkspace wraps a checkout directory. Empty file names fall back to
// the conventional PowerShell script names.
func NewWorkspace(dir, discoveryFile, remediationFile string) *Workspace {
	if discoveryFile == "" {
		discoveryFile = defaultDiscoveryFile
	}
	if remediationFile == "" {
		remediationFile = defaultRemediationFile
	}
	return &Workspace{
		dir:             dir,
		discoveryFile:   discoveryFile,
		remediationFile: remediationFile,
	}
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Items lists the configuration item directories in the workspace, sorted
// by name. Hidden directories such as .git are excluded.
func (w *Workspace) Items() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("listing workspace %s: %w", w.dir, err)
	}

	items := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		items = append(items, entry.Name())
	}
	return items, nil
}

// ReadScript reads the raw script of the given kind from an item's
// directory. The configured file name is tried first, then the bare kind
// name. A missing script file is an error: the repository contract
// guarantees both files, so absence means the checkout cannot be trusted
// for this item.
func (w *Workspace) ReadScript(item string, kind script.Kind) (script.Raw, error) {
	preferred := filepath.Join(w.dir, item, w.fileFor(kind))
	data, err := os.ReadFile(preferred)
	if err == nil {
		return script.Raw(data), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading %s: %w", preferred, err)
	}

	fallback := filepath.Join(w.dir, item, kind.String())
	data, err = os.ReadFile(fallback)
	if err == nil {
		return script.Raw(data), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading %s: %w", fallback, err)
	}

	return "", fmt.Errorf("item %s has no %s file (looked for %s)", item, kind, preferred)
}

func (w *Workspace) fileFor(kind script.Kind) string {
	if kind == script.Discovery {
		return w.discoveryFile
	}
	return w.remediationFile
}
