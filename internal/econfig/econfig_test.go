package econfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "dolt", cfg.DoltExecutablePath)
	require.Equal(t, "origin", cfg.DoltRemoteName)
	require.Equal(t, 60, int(cfg.DoltCommandTimeout.Seconds()))
	require.True(t, cfg.DMMSUseManifest)
	require.Equal(t, "auto", string(cfg.DMMSInitMode))
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("DOLT_REMOTE_NAME", "upstream")
	t.Setenv("DOLT_COMMAND_TIMEOUT", "120")
	t.Setenv("DMMS_INIT_MODE", "manual")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "upstream", cfg.DoltRemoteName)
	require.Equal(t, 120, int(cfg.DoltCommandTimeout.Seconds()))
	require.Equal(t, "manual", string(cfg.DMMSInitMode))
}

func TestParseBool(t *testing.T) {
	require.True(t, ParseBool("true", false))
	require.False(t, ParseBool("false", true))
	require.Equal(t, true, ParseBool("", true))
	require.Equal(t, true, ParseBool("not-a-bool", true))
}
