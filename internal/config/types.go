package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSigningBanner marks the start of an Authenticode signature
	// block in a PowerShell script.
	DefaultSigningBanner = "# SIG # Begin signature block"
	// DefaultEngine is the script engine recorded on created script bodies.
	DefaultEngine = "PowerShell"
	// DefaultDiscoveryFile is the discovery script file name inside an
	// item's checkout directory.
	DefaultDiscoveryFile = "DiscoveryScript.ps1"
	// DefaultRemediationFile is the remediation script file name inside an
	// item's checkout directory.
	DefaultRemediationFile = "RemediationScript.ps1"

	defaultBranch         = "main"
	defaultParallel       = 4
	defaultTimeoutSeconds = 30
	defaultRetryMax       = 3
)

// Config represents the full scriptsync configuration document.
type Config struct {
	Version     string        `yaml:"version" validate:"required,semver"`
	Name        string        `yaml:"name" validate:"required,min=1,max=100"`
	Description string        `yaml:"description,omitempty"`
	Service     ServiceConfig `yaml:"service"`
	Repo        RepoConfig    `yaml:"repo"`
	Scripts     ScriptsConfig `yaml:"scripts,omitempty"`
	Items       []string      `yaml:"items,omitempty" validate:"omitempty,dive,min=1,max=256"`
	Settings    Settings      `yaml:"settings,omitempty"`
	Audit       AuditConfig   `yaml:"audit,omitempty"`
}

// ServiceConfig points at the management service's REST endpoint.
type ServiceConfig struct {
	BaseURL            string `yaml:"base_url" validate:"required,url"`
	Token              string `yaml:"token,omitempty"`
	TokenEnv           string `yaml:"token_env,omitempty"`
	Timeout            int    `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=3600"`
	RetryMax           int    `yaml:"retry_max,omitempty" validate:"min=0,max=10"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`

	retryMaxSet bool
}

// UnmarshalYAML distinguishes an explicit retry_max of zero from an absent
// key so the default applies only when the key is missing.
func (s *ServiceConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawService ServiceConfig
	var temp rawService
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*s = ServiceConfig(temp)
	s.retryMaxSet = hasYAMLKey(value, "retry_max")
	return nil
}

// ResolveToken returns the bearer token for the service, reading the
// configured environment variable when token_env is set. The environment is
// only ever read, never written.
func (s ServiceConfig) ResolveToken() (string, error) {
	if s.Token != "" {
		return s.Token, nil
	}
	if s.TokenEnv != "" {
		token := os.Getenv(s.TokenEnv)
		if token == "" {
			return "", fmt.Errorf("environment variable %s is empty or unset", s.TokenEnv)
		}
		return token, nil
	}
	return "", nil
}

// RequestTimeout returns the per-request deadline for service calls.
func (s ServiceConfig) RequestTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// RepoConfig points at the git repository holding the authoritative
// scripts. The URL is not constrained to http forms; scp-style git remotes
// and local paths are accepted.
type RepoConfig struct {
	URL         string `yaml:"url" validate:"required"`
	Branch      string `yaml:"branch,omitempty"`
	Destination string `yaml:"destination" validate:"required"`
	Depth       int    `yaml:"depth,omitempty" validate:"omitempty,min=0"`
}

// ScriptsConfig controls how script content is read and compared.
type ScriptsConfig struct {
	SigningBanner   string `yaml:"signing_banner,omitempty"`
	Engine          string `yaml:"engine,omitempty" validate:"omitempty,oneof=PowerShell VBScript JScript"`
	DiscoveryFile   string `yaml:"discovery_file,omitempty"`
	RemediationFile string `yaml:"remediation_file,omitempty"`

	bannerSet bool
}

// UnmarshalYAML keeps track of whether signing_banner was present, so an
// explicit empty banner disables signature stripping instead of falling
// back to the default marker.
func (s *ScriptsConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawScripts ScriptsConfig
	var temp rawScripts
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*s = ScriptsConfig(temp)
	s.bannerSet = hasYAMLKey(value, "signing_banner")
	return nil
}

// Settings holds global execution parameters.
type Settings struct {
	Parallel int  `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=32"`
	Timeout  int  `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=3600"`
	LogOnly  bool `yaml:"log_only,omitempty"`
	Verbose  bool `yaml:"verbose,omitempty"`
}

// ItemTimeout returns the per-item deadline.
func (s Settings) ItemTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// AuditConfig controls the persistent audit trail.
type AuditConfig struct {
	Path string `yaml:"path,omitempty"`
}

func applyDefaults(cfg *Config) {
	if cfg.Repo.Branch == "" {
		cfg.Repo.Branch = defaultBranch
	}
	if !cfg.Scripts.bannerSet {
		cfg.Scripts.SigningBanner = DefaultSigningBanner
	}
	if cfg.Scripts.Engine == "" {
		cfg.Scripts.Engine = DefaultEngine
	}
	if cfg.Scripts.DiscoveryFile == "" {
		cfg.Scripts.DiscoveryFile = DefaultDiscoveryFile
	}
	if cfg.Scripts.RemediationFile == "" {
		cfg.Scripts.RemediationFile = DefaultRemediationFile
	}
	if cfg.Settings.Parallel == 0 {
		cfg.Settings.Parallel = defaultParallel
	}
	if cfg.Settings.Timeout == 0 {
		cfg.Settings.Timeout = defaultTimeoutSeconds
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = defaultTimeoutSeconds
	}
	if !cfg.Service.retryMaxSet {
		cfg.Service.RetryMax = defaultRetryMax
	}
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		k := node.Content[i]
		if strings.EqualFold(k.Value, key) {
			return true
		}
	}
	return false
}
