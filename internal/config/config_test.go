// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doorkeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, ":4300", cfg.Server.ListenAddr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.MetricsAddr)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, uint8(1), cfg.Protocol.Tag)
	assert.Equal(t, uint16(0), cfg.Protocol.Subjects.Login)
	assert.Equal(t, uint16(7), cfg.Protocol.Subjects.AddUserFailed)
	assert.True(t, cfg.Auth.AllowAddUser)
	assert.True(t, cfg.Auth.AllowAddUserWhenAuthenticated)
	assert.Equal(t, "md5", cfg.Auth.HashAlgorithm)

	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing default file falls back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.yaml")
		cfg, err := config.Load(path, false, nil)
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.yaml")
		_, err := config.Load(path, true, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.yaml")
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  listen_addr: ":5000"
  log_format: text
database:
  url: postgres://localhost/doorkeep
auth:
  hash_algorithm: sha1
  allow_add_user: false
`)
		cfg, err := config.Load(path, true, nil)
		require.NoError(t, err)

		assert.Equal(t, ":5000", cfg.Server.ListenAddr)
		assert.Equal(t, "text", cfg.Server.LogFormat)
		assert.Equal(t, "postgres://localhost/doorkeep", cfg.Database.URL)
		assert.Equal(t, auth.AlgorithmSHA1, cfg.Algorithm())
		assert.False(t, cfg.Auth.AllowAddUser)

		// Untouched keys keep their defaults.
		assert.Equal(t, "127.0.0.1:9100", cfg.Server.MetricsAddr)
		assert.Equal(t, uint8(1), cfg.Protocol.Tag)
	})

	t.Run("file can remap subject codes", func(t *testing.T) {
		path := writeConfigFile(t, `
protocol:
  tag: 9
  subjects:
    login: 10
    logout: 11
    add_user: 12
    login_success: 13
    login_failed: 14
    logout_success: 15
    add_user_success: 16
    add_user_failed: 17
`)
		cfg, err := config.Load(path, true, nil)
		require.NoError(t, err)

		assert.Equal(t, uint8(9), cfg.Protocol.Tag)
		subjects := cfg.ProtocolSubjects()
		assert.Equal(t, uint16(10), subjects.Login)
		assert.Equal(t, uint16(17), subjects.AddUserFailed)
		assert.NoError(t, subjects.Validate())
	})

	t.Run("flags override file values", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  listen_addr: ":5000"
`)
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("listen-addr", "", "")
		flags.String("database-url", "", "")
		require.NoError(t, flags.Parse([]string{
			"--listen-addr=:6000",
			"--database-url=postgres://flag/db",
		}))

		cfg, err := config.Load(path, true, flags)
		require.NoError(t, err)

		assert.Equal(t, ":6000", cfg.Server.ListenAddr)
		assert.Equal(t, "postgres://flag/db", cfg.Database.URL)
	})

	t.Run("unset flags do not clobber file values", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  listen_addr: ":5000"
`)
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("listen-addr", "", "")
		require.NoError(t, flags.Parse(nil))

		cfg, err := config.Load(path, true, flags)
		require.NoError(t, err)
		assert.Equal(t, ":5000", cfg.Server.ListenAddr)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := writeConfigFile(t, "server: [not a map")
		_, err := config.Load(path, true, nil)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{
			name:   "empty listen addr",
			mutate: func(c *config.Config) { c.Server.ListenAddr = "" },
			errMsg: "listen_addr",
		},
		{
			name:   "unknown log format",
			mutate: func(c *config.Config) { c.Server.LogFormat = "xml" },
			errMsg: "log_format",
		},
		{
			name: "subject collision",
			mutate: func(c *config.Config) {
				c.Protocol.Subjects.AddUserFailed = c.Protocol.Subjects.Login
			},
			errMsg: "assigned to both",
		},
		{
			name:   "unknown hash algorithm",
			mutate: func(c *config.Config) { c.Auth.HashAlgorithm = "crc32" },
			errMsg: "unsupported hash algorithm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestHandlerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.AllowAddUser = false
	cfg.Auth.AllowAddUserWhenAuthenticated = false

	hc := cfg.HandlerConfig()
	assert.Equal(t, uint8(1), hc.Tag)
	assert.False(t, hc.AllowAddUser)
	assert.False(t, hc.AllowAddUserWhenAuthenticated)
	assert.Equal(t, cfg.ProtocolSubjects(), hc.Subjects)
}
