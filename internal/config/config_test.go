package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
host: irc.test.net
port: 6900
sid: "9S2"
server_name: services.test.net
password: linkpass
`))
	require.NoError(t, err)

	assert.Equal(t, AuthPassword, cfg.AuthMethod)
	assert.Equal(t, DefaultProtoctl, cfg.Protoctl)
	assert.NotEmpty(t, cfg.Description)
	assert.Equal(t, "irc.test.net:6900", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		Host:       "irc.test.net",
		Port:       6900,
		SID:        "9S2",
		ServerName: "services.test.net",
	}

	t.Run("password auth requires a password", func(t *testing.T) {
		cfg := base
		cfg.AuthMethod = AuthPassword
		require.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
		cfg.Password = "linkpass"
		require.NoError(t, cfg.Validate())
	})

	t.Run("certificate auth requires keypair paths", func(t *testing.T) {
		cfg := base
		cfg.AuthMethod = AuthCertFP
		require.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
		cfg.CertFile = "client.crt"
		cfg.KeyFile = "client.key"
		require.NoError(t, cfg.Validate())
	})

	t.Run("sid must be three characters", func(t *testing.T) {
		cfg := base
		cfg.AuthMethod = AuthPassword
		cfg.Password = "linkpass"
		cfg.SID = "9S"
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown auth method", func(t *testing.T) {
		cfg := base
		cfg.AuthMethod = "carrier-pigeon"
		require.Error(t, cfg.Validate())
	})
}
