package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	syncerrors "github.com/scriptsync/scriptsync/pkg/errors"
)

func baseConfig() *Config {
	cfg := &Config{
		Version: "1.0",
		Name:    "validator-tests",
		Service: ServiceConfig{BaseURL: "https://cm01.corp.example.com/AdminService"},
		Repo: RepoConfig{
			URL:         "https://git.corp.example.com/compliance/ci-scripts.git",
			Destination: "/tmp/checkout",
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidateConfigAcceptsBaseline(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateConfig(baseConfig()))
}

func TestValidateConfigRejectsNil(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(nil)
	var validationErr *syncerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateConfigRejectsDuplicateItems(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Items = []string{"Check BitLocker Status", "Audit Local Admins", "Check BitLocker Status"}

	err := ValidateConfig(cfg)
	var validationErr *syncerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "items[2]", validationErr.Field)
	require.Contains(t, validationErr.Message, "duplicate item name")
}

func TestValidateConfigRejectsTokenAndTokenEnv(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Service.Token = "abc"
	cfg.Service.TokenEnv = "SCRIPTSYNC_TOKEN"

	err := ValidateConfig(cfg)
	var validationErr *syncerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Message, "mutually exclusive")
}

func TestValidateConfigRejectsBadServiceURL(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Service.BaseURL = "not a url"

	err := ValidateConfig(cfg)
	var validationErr *syncerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Field, "baseurl")
}

func TestValidateConfigRejectsParallelOutOfRange(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Settings.Parallel = 64

	err := ValidateConfig(cfg)
	var validationErr *syncerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Field, "parallel")
}

func TestValidateConfigRejectsUnknownEngine(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Scripts.Engine = "Bash"

	err := ValidateConfig(cfg)
	var validationErr *syncerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Field, "engine")
}

func TestResolveToken(t *testing.T) {
	t.Run("inline token wins", func(t *testing.T) {
		t.Parallel()
		svc := ServiceConfig{Token: "inline"}
		token, err := svc.ResolveToken()
		require.NoError(t, err)
		require.Equal(t, "inline", token)
	})

	t.Run("token read from environment", func(t *testing.T) {
		t.Setenv("SCRIPTSYNC_TEST_TOKEN", "from-env")
		svc := ServiceConfig{TokenEnv: "SCRIPTSYNC_TEST_TOKEN"}
		token, err := svc.ResolveToken()
		require.NoError(t, err)
		require.Equal(t, "from-env", token)
	})

	t.Run("unset environment variable is an error", func(t *testing.T) {
		svc := ServiceConfig{TokenEnv: "SCRIPTSYNC_TEST_TOKEN_UNSET"}
		_, err := svc.ResolveToken()
		require.Error(t, err)
	})

	t.Run("no token configured", func(t *testing.T) {
		t.Parallel()
		token, err := ServiceConfig{}.ResolveToken()
		require.NoError(t, err)
		require.Equal(t, "", token)
	})
}
