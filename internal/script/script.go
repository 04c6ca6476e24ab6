// Package script defines the two script kinds carried by a configuration
// item and the normalization rules used to compare their content.
package script

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Kind identifies which embedded script body an operation targets.
type Kind int

const (
	// Discovery is the script that evaluates compliance state.
	Discovery Kind = iota
	// Remediation is the script that corrects a non-compliant state.
	Remediation
)

// String returns the script kind name as it appears in package documents
// and workspace file names.
func (k Kind) String() string {
	switch k {
	case Discovery:
		return "DiscoveryScript"
	case Remediation:
		return "RemediationScript"
	default:
		return "UnknownScript"
	}
}

// Kinds returns both script kinds in a stable order.
func Kinds() []Kind {
	return []Kind{Discovery, Remediation}
}

// Raw is unprocessed script text as read from the checkout or extracted from
// a package document. Raw carries no equality API; all comparison goes
// through Normalize so the two sides are always judged by the same rules.
type Raw string

// Canonical is the normalized form of a script together with the digest of
// that form. Normalize is the only constructor.
type Canonical struct {
	text string
	sum  [sha256.Size]byte
}

// Normalize converts raw script text into its canonical comparison form:
// line endings unified, everything from the earliest signing-banner line on
// discarded, each line trimmed, blank lines dropped. The result is stable
// under re-normalization.
func Normalize(raw Raw, banner string) Canonical {
	lines := splitLines(string(raw))

	if banner != "" {
		for i, line := range lines {
			if strings.Contains(line, banner) {
				lines = lines[:i]
				break
			}
		}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		kept = append(kept, trimmed)
	}

	text := strings.Join(kept, "\n")
	return Canonical{text: text, sum: sha256.Sum256([]byte(text))}
}

// Equal reports whether two canonical scripts have identical content. Two
// empty canonicals are equal.
func (c Canonical) Equal(other Canonical) bool {
	return c.sum == other.sum
}

// Empty reports whether normalization produced no content at all.
func (c Canonical) Empty() bool {
	return c.text == ""
}

// Text returns the canonical script text.
func (c Canonical) Text() string {
	return c.text
}

// Sum returns the hex digest of the canonical text.
func (c Canonical) Sum() string {
	return hex.EncodeToString(c.sum[:])
}

// splitLines breaks script text into lines regardless of which line-ending
// flavor produced it.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}
