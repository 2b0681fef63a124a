// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package config loads and validates process configuration.
package config

import (
	"errors"
	"io/fs"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/protocol"
)

// DefaultPath is where the config file is looked up when --config is unset.
const DefaultPath = "doorkeep.yaml"

// Config is the full process configuration.
type Config struct {
	Server   Server   `koanf:"server"`
	Database Database `koanf:"database"`
	Protocol Protocol `koanf:"protocol"`
	Auth     Auth     `koanf:"auth"`
}

// Server holds listener and logging settings.
type Server struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`
}

// Database holds the connection settings for the user store.
type Database struct {
	URL string `koanf:"url"`
}

// Protocol holds the envelope tag and subject codes. These must agree
// between client and server deployments; there is no negotiation.
type Protocol struct {
	Tag      uint8    `koanf:"tag"`
	Subjects Subjects `koanf:"subjects"`
}

// Subjects mirrors protocol.Subjects as configuration keys.
type Subjects struct {
	Login          uint16 `koanf:"login"`
	Logout         uint16 `koanf:"logout"`
	AddUser        uint16 `koanf:"add_user"`
	LoginSuccess   uint16 `koanf:"login_success"`
	LoginFailed    uint16 `koanf:"login_failed"`
	LogoutSuccess  uint16 `koanf:"logout_success"`
	AddUserSuccess uint16 `koanf:"add_user_success"`
	AddUserFailed  uint16 `koanf:"add_user_failed"`
}

// Auth holds the account-creation policy and the hash algorithm selector.
type Auth struct {
	AllowAddUser                  bool   `koanf:"allow_add_user"`
	AllowAddUserWhenAuthenticated bool   `koanf:"allow_add_user_when_authenticated"`
	HashAlgorithm                 string `koanf:"hash_algorithm"`
}

// Default returns the configuration matching the original deployment
// settings: tag 1, subjects 0 through 7, account creation allowed, MD5.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:  ":4300",
			MetricsAddr: "127.0.0.1:9100",
			LogFormat:   "json",
		},
		Protocol: Protocol{
			Tag: 1,
			Subjects: Subjects{
				Login:          0,
				Logout:         1,
				AddUser:        2,
				LoginSuccess:   3,
				LoginFailed:    4,
				LogoutSuccess:  5,
				AddUserSuccess: 6,
				AddUserFailed:  7,
			},
		},
		Auth: Auth{
			AllowAddUser:                  true,
			AllowAddUserWhenAuthenticated: true,
			HashAlgorithm:                 string(auth.AlgorithmMD5),
		},
	}
}

// flagKeys maps CLI flag names onto configuration keys for posflag merging.
var flagKeys = map[string]string{
	"listen-addr":  "server.listen_addr",
	"metrics-addr": "server.metrics_addr",
	"log-format":   "server.log_format",
	"database-url": "database.url",
}

// Load reads configuration in ascending precedence: built-in defaults, the
// YAML file at path, then any set CLI flags. A missing file is an error
// only when the path was given explicitly.
func Load(path string, explicit bool, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			// Defaults alone are a valid deployment.
		default:
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Only flags the user actually set participate; an untouched flag
		// must not shadow file or default values with its zero default.
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			mapped, ok := flagKeys[key]
			if !ok || !flags.Changed(key) {
				return "", nil
			}
			return mapped, value
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.listen_addr cannot be empty")
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.Server.LogFormat).
			Errorf("server.log_format must be json or text")
	}
	if err := c.ProtocolSubjects().Validate(); err != nil {
		return err
	}
	if _, err := auth.ParseAlgorithm(c.Auth.HashAlgorithm); err != nil {
		return err
	}
	return nil
}

// ProtocolSubjects converts the configured subject codes.
func (c Config) ProtocolSubjects() protocol.Subjects {
	return protocol.Subjects{
		Login:          c.Protocol.Subjects.Login,
		Logout:         c.Protocol.Subjects.Logout,
		AddUser:        c.Protocol.Subjects.AddUser,
		LoginSuccess:   c.Protocol.Subjects.LoginSuccess,
		LoginFailed:    c.Protocol.Subjects.LoginFailed,
		LogoutSuccess:  c.Protocol.Subjects.LogoutSuccess,
		AddUserSuccess: c.Protocol.Subjects.AddUserSuccess,
		AddUserFailed:  c.Protocol.Subjects.AddUserFailed,
	}
}

// HandlerConfig builds the protocol handler configuration.
func (c Config) HandlerConfig() protocol.Config {
	return protocol.Config{
		Tag:                           c.Protocol.Tag,
		Subjects:                      c.ProtocolSubjects(),
		AllowAddUser:                  c.Auth.AllowAddUser,
		AllowAddUserWhenAuthenticated: c.Auth.AllowAddUserWhenAuthenticated,
	}
}

// Algorithm returns the parsed hash algorithm. Call after Validate.
func (c Config) Algorithm() auth.Algorithm {
	alg, err := auth.ParseAlgorithm(c.Auth.HashAlgorithm)
	if err != nil {
		// Validate rejects unknown algorithms before this is reachable.
		return auth.AlgorithmMD5
	}
	return alg
}
