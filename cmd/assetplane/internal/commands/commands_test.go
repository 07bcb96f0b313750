package commands

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestServerCmdTagDefaultsMatchConstants(t *testing.T) {
	var cli struct {
		Server ServerCmd `cmd:""`
	}

	parser, err := kong.New(&cli, Vars())
	require.NoError(t, err)

	_, err = parser.Parse([]string{"server"})
	require.NoError(t, err)

	require.Equal(t, defaultListen, cli.Server.Listen)
	require.Equal(t, defaultFanOutLimit, cli.Server.FanOutLimit)
	require.Equal(t, defaultTenantTimeoutSeconds, cli.Server.TenantTimeout)
}

func TestApplyFileConfig_FileFillsDefaults(t *testing.T) {
	s := &ServerCmd{
		Listen:        defaultListen,
		FanOutLimit:   defaultFanOutLimit,
		TenantTimeout: defaultTenantTimeoutSeconds,
	}

	s.applyFileConfig(&fileConfig{
		Listen:               "0.0.0.0:9090",
		DatabaseURL:          "postgres://app@db/directory",
		ServiceRole:          "app_rw",
		FanOutLimit:          4,
		TenantTimeoutSeconds: 30,
	})

	require.Equal(t, "0.0.0.0:9090", s.Listen)
	require.Equal(t, "postgres://app@db/directory", s.DatabaseURL)
	require.Equal(t, "app_rw", s.ServiceRole)
	require.Equal(t, 4, s.FanOutLimit)
	require.Equal(t, 30, s.TenantTimeout)
}

func TestApplyFileConfig_FlagsWin(t *testing.T) {
	s := &ServerCmd{
		Listen:        "10.0.0.1:8443",
		DatabaseURL:   "postgres://flag@db/directory",
		ServiceRole:   "flag_role",
		FanOutLimit:   16,
		TenantTimeout: 5,
	}

	s.applyFileConfig(&fileConfig{
		Listen:               "0.0.0.0:9090",
		DatabaseURL:          "postgres://file@db/directory",
		ServiceRole:          "file_role",
		FanOutLimit:          4,
		TenantTimeoutSeconds: 30,
	})

	require.Equal(t, "10.0.0.1:8443", s.Listen)
	require.Equal(t, "postgres://flag@db/directory", s.DatabaseURL)
	require.Equal(t, "flag_role", s.ServiceRole)
	require.Equal(t, 16, s.FanOutLimit)
	require.Equal(t, 5, s.TenantTimeout)
}
