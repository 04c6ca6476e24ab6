package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnifiedIdenticalContent(t *testing.T) {
	t.Parallel()

	body := []byte("Get-BitLockerVolume\nif ($true) { }\n")
	require.Empty(t, Unified(body, body, "service", "repository"))
}

func TestUnifiedSingleLineChange(t *testing.T) {
	t.Parallel()

	before := []byte("Get-BitLockerVolume\nEnable-BitLocker\nexit 0\n")
	after := []byte("Get-BitLockerVolume\nEnable-BitLocker -MountPoint C:\nexit 0\n")

	out := Unified(before, after, "service", "repository")
	require.Contains(t, out, "--- service")
	require.Contains(t, out, "+++ repository")
	require.Contains(t, out, "-Enable-BitLocker\n")
	require.Contains(t, out, "+Enable-BitLocker -MountPoint C:\n")
}

func TestUnifiedKeepsContextLines(t *testing.T) {
	t.Parallel()

	before := []byte("line1\nline2\nline3\nline4\n")
	after := []byte("line1\nchanged\nline3\nline4\n")

	out := Unified(before, after, "a", "b")
	require.Contains(t, out, " line1\n")
	require.Contains(t, out, " line4\n")
	require.Contains(t, out, "-line2\n")
	require.Contains(t, out, "+changed\n")
}

func TestUnifiedEmptyBefore(t *testing.T) {
	t.Parallel()

	out := Unified(nil, []byte("Write-Output ready\n"), "service", "repository")
	require.Contains(t, out, "+Write-Output ready")
	require.NotContains(t, out, "-Write-Output")
}

func TestUnifiedNoTrailingNewline(t *testing.T) {
	t.Parallel()

	out := Unified([]byte("old"), []byte("new"), "a", "b")
	require.Contains(t, out, "-old")
	require.Contains(t, out, "+new")
}

func TestUnifiedTruncatesHugeDiffs(t *testing.T) {
	t.Parallel()

	var before, after strings.Builder
	for i := 0; i < maxLines+500; i++ {
		before.WriteString("before line\n")
		after.WriteString("after line\n")
	}

	out := Unified([]byte(before.String()), []byte(after.String()), "a", "b")
	require.Contains(t, out, truncateMessage)
	require.LessOrEqual(t, strings.Count(out, "\n"), maxLines+2)
}
