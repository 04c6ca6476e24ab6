package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/scriptsync/scriptsync/internal/checkout"
	"github.com/scriptsync/scriptsync/internal/config"
)

func swapOutputs(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()

	origOut, origErr, origExit := stdoutWriter, stderrWriter, osExit
	t.Cleanup(func() {
		stdoutWriter, stderrWriter, osExit = origOut, origErr, origExit
	})

	stdout = &bytes.Buffer{}
	stderr = &bytes.Buffer{}
	stdoutWriter = stdout
	stderrWriter = stderr
	return stdout, stderr
}

func digestXML(discoveryBody, remediationBody string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<DesiredConfigurationDigest xmlns="http://schemas.microsoft.com/SystemsCenterConfigurationManager/2009/07/10/DesiredConfiguration">
  <OperatingSystem AuthoringScopeId="ScopeId_F7878AE1" LogicalName="OperatingSystem_2b9a4d0e" Version="7">
    <Settings>
      <RootComplexSetting>
        <SimpleSetting LogicalName="ScriptSetting_a81c" DataType="String">
          <Annotation xmlns="http://schemas.microsoft.com/SystemsCenterConfigurationManager/2009/06/14/Rules">
            <DisplayName Text="Script" />
          </Annotation>
          <ScriptDiscoverySource Is64Bit="true">
            <DiscoveryScriptBody ScriptType="PowerShell">%s</DiscoveryScriptBody>
            <RemediationScriptBody ScriptType="PowerShell">%s</RemediationScriptBody>
          </ScriptDiscoverySource>
        </SimpleSetting>
      </RootComplexSetting>
    </Settings>
  </OperatingSystem>
</DesiredConfigurationDigest>`, discoveryBody, remediationBody)
}

// commitScripts seeds a git repository with one item's scripts. PlainInit
// leaves HEAD on master, so fixture configs pin that branch.
func commitScripts(t *testing.T, dir, discovery, remediation string) {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	if err != nil {
		repo, err = git.PlainInit(dir, false)
	}
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	files := map[string]string{
		"Check BitLocker Status/DiscoveryScript.ps1":   discovery,
		"Check BitLocker Status/RemediationScript.ps1": remediation,
	}
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err = wt.Add(path)
		require.NoError(t, err)
	}

	_, err = wt.Commit("seed scripts", &git.CommitOptions{
		Author: &object.Signature{Name: "fixture", Email: "fixture@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

type adminStub struct {
	mu         sync.Mutex
	digest     string
	version    int
	patches    []map[string]any
	patchPaths []string
	auths      []string
}

func (s *adminStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auths = append(s.auths, r.Header.Get("Authorization"))

		switch r.Method {
		case http.MethodGet:
			payload := map[string]any{
				"value": []map[string]any{{
					"CI_ID":                101,
					"LocalizedDisplayName": "Check BitLocker Status",
					"SDMPackageVersion":    s.version,
					"SDMPackageXML":        s.digest,
				}},
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(payload)
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			s.patches = append(s.patches, body)
			s.patchPaths = append(s.patchPaths, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func writeRunConfig(t *testing.T, baseURL, origin, destination, auditPath string) string {
	t.Helper()

	content := fmt.Sprintf(`version: "1.0"
name: lab-baseline-sync
service:
  base_url: %s
  token: test-token
repo:
  url: %s
  destination: %s
  branch: master
settings:
  parallel: 2
audit:
  path: %s
`, baseURL, origin, destination, auditPath)

	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunReconcileConfigParseError(t *testing.T) {
	_, stderr := swapOutputs(t)

	code := runReconcile(runOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "Error parsing configuration")
}

func TestRunReconcileTokenEnvMissing(t *testing.T) {
	_, stderr := swapOutputs(t)

	content := `version: "1.0"
name: lab-baseline-sync
service:
  base_url: https://siteserver.example.com/AdminService
  token_env: SCRIPTSYNC_TOKEN_NOT_SET_IN_TESTS
repo:
  url: https://git.example.com/baselines.git
  destination: /var/lib/scriptsync/checkout
`
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	code := runReconcile(runOptions{ConfigPath: path})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "Error resolving service token")
}

func TestRunReconcileCheckReportsDrift(t *testing.T) {
	stdout, stderr := swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker -MountPoint C:\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	auditPath := filepath.Join(t.TempDir(), "audit", "trail.csv")
	cfgPath := writeRunConfig(t, server.URL, origin, filepath.Join(t.TempDir(), "checkout"), auditPath)

	code := runReconcile(runOptions{ConfigPath: cfgPath, Apply: false})
	require.Equal(t, 1, code, stderr.String())

	require.Empty(t, stub.patches)
	require.Contains(t, stub.auths, "Bearer test-token")

	out := stdout.String()
	require.Contains(t, out, "Check BitLocker Status")
	require.Contains(t, out, "drift detected")
	require.Contains(t, out, "run 'scriptsync apply' to correct")
	require.NotContains(t, out, "Drift Details:")

	trail, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	require.Contains(t, string(trail), "RunId,Timestamp,ItemName")
	require.Contains(t, string(trail), "drift detected")
}

func TestRunReconcileApplyCorrectsDrift(t *testing.T) {
	stdout, stderr := swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker -MountPoint C:\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	auditPath := filepath.Join(t.TempDir(), "audit", "trail.csv")
	cfgPath := writeRunConfig(t, server.URL, origin, filepath.Join(t.TempDir(), "checkout"), auditPath)

	code := runReconcile(runOptions{ConfigPath: cfgPath, Apply: true})
	require.Equal(t, 0, code, stderr.String())

	require.Len(t, stub.patches, 1)
	require.Equal(t, "/wmi/SMS_ConfigurationItem(101)", stub.patchPaths[0])
	require.Equal(t, float64(8), stub.patches[0]["SDMPackageVersion"])

	patched, ok := stub.patches[0]["SDMPackageXML"].(string)
	require.True(t, ok)
	require.Contains(t, patched, "Enable-BitLocker -MountPoint C:")
	require.Contains(t, patched, "Get-BitLockerVolume")

	out := stdout.String()
	require.Contains(t, out, "drift corrected")
	require.Contains(t, out, "Corrected:   1")

	trail, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	require.Contains(t, string(trail), "drift corrected")
}

func TestRunReconcileVerbosePrintsDriftDetails(t *testing.T) {
	stdout, stderr := swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker -MountPoint C:\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	cfgPath := writeRunConfig(t, server.URL, origin, filepath.Join(t.TempDir(), "checkout"), filepath.Join(t.TempDir(), "trail.csv"))

	code := runReconcile(runOptions{ConfigPath: cfgPath, Verbose: true})
	require.Equal(t, 1, code, stderr.String())

	out := stdout.String()
	require.Contains(t, out, "Drift Details:")
	require.Contains(t, out, "--- Item: Check BitLocker Status ---")
	require.Contains(t, out, "-Enable-BitLocker\n")
	require.Contains(t, out, "+Enable-BitLocker -MountPoint C:")
}

func TestRunReconcileInSyncExitsZero(t *testing.T) {
	stdout, stderr := swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	cfgPath := writeRunConfig(t, server.URL, origin, filepath.Join(t.TempDir(), "checkout"), filepath.Join(t.TempDir(), "trail.csv"))

	code := runReconcile(runOptions{ConfigPath: cfgPath, Apply: false})
	require.Equal(t, 0, code, stderr.String())
	require.Empty(t, stub.patches)
	require.Contains(t, stdout.String(), "All items in sync - no changes needed")
}

func TestRunReconcileJSONOutput(t *testing.T) {
	stdout, stderr := swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker -MountPoint C:\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	cfgPath := writeRunConfig(t, server.URL, origin, filepath.Join(t.TempDir(), "checkout"), filepath.Join(t.TempDir(), "trail.csv"))

	code := runReconcile(runOptions{ConfigPath: cfgPath, Apply: false, JSON: true})
	require.Equal(t, 1, code, stderr.String())

	var decoded struct {
		RunID      string `json:"run_id"`
		LogOnly    bool   `json:"log_only"`
		TotalItems int    `json:"total_items"`
		LoggedOnly int    `json:"logged_only"`
		Results    []struct {
			Item             string `json:"item"`
			Action           string `json:"action"`
			RemediationDrift bool   `json:"remediation_drift"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.NotEmpty(t, decoded.RunID)
	require.True(t, decoded.LogOnly)
	require.Equal(t, 1, decoded.TotalItems)
	require.Equal(t, 1, decoded.LoggedOnly)
	require.Len(t, decoded.Results, 1)
	require.Equal(t, "Check BitLocker Status", decoded.Results[0].Item)
	require.Equal(t, "logged_only", decoded.Results[0].Action)
	require.True(t, decoded.Results[0].RemediationDrift)
}

func TestRunCheckExitsWithDriftCode(t *testing.T) {
	_, _ = swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker -MountPoint C:\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	cfgPath := writeRunConfig(t, server.URL, origin, filepath.Join(t.TempDir(), "checkout"), filepath.Join(t.TempDir(), "trail.csv"))

	var exitCode int
	osExit = func(code int) { exitCode = code }

	require.NoError(t, runCheck(runOptions{ConfigPath: cfgPath}))
	require.Equal(t, 1, exitCode)
}

func TestRunReconcileLogOnlySettingDowngradesApply(t *testing.T) {
	_, stderr := swapOutputs(t)

	origin := t.TempDir()
	commitScripts(t, origin, "Get-BitLockerVolume\n", "Enable-BitLocker -MountPoint C:\n")

	stub := &adminStub{digest: digestXML("Get-BitLockerVolume", "Enable-BitLocker"), version: 7}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	content := fmt.Sprintf(`version: "1.0"
name: lab-baseline-sync
service:
  base_url: %s
  token: test-token
repo:
  url: %s
  destination: %s
  branch: master
settings:
  log_only: true
`, server.URL, origin, filepath.Join(t.TempDir(), "checkout"))
	cfgPath := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	code := runReconcile(runOptions{ConfigPath: cfgPath, Apply: true})
	require.Equal(t, 1, code, stderr.String())
	require.Empty(t, stub.patches)
}

func TestResolveItems(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Audit Local Admins"), 0o755))
	ws := checkout.NewWorkspace(root, "", "")

	cfg := &config.Config{}
	names, err := resolveItems(cfg, ws)
	require.NoError(t, err)
	require.Equal(t, []string{"Audit Local Admins"}, names)

	cfg.Items = []string{"Check BitLocker Status"}
	names, err = resolveItems(cfg, ws)
	require.NoError(t, err)
	require.Equal(t, []string{"Check BitLocker Status"}, names)
}
