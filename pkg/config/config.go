// Package config implements the daemon's secondary, environment-variable
// configuration layer: path overrides for container deployments where
// templating CLI flags is awkward. Flags set on the command line always
// win over these; these win over the built-in defaults.
//
// Grounded on api/pkg/config/cli_config.go's envconfig+godotenv pairing.
package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvConfig mirrors the subset of cmd/vdbridged's flags that make sense
// to template via environment rather than argv: one field per spec.md §6
// path-valued flag, SPEC_FULL.md's supplemental log/introspect settings,
// and the -d, -f, -o and -X settings.
type EnvConfig struct {
	HostPort        string `envconfig:"VDBRIDGED_HOST_PORT"`
	AgentSocket     string `envconfig:"VDBRIDGED_AGENT_SOCKET"`
	UinputDevice    string `envconfig:"VDBRIDGED_UINPUT_DEVICE"`
	LogFile         string `envconfig:"VDBRIDGED_LOG_FILE"`
	IntrospectAddr  string `envconfig:"VDBRIDGED_INTROSPECT_ADDR"`
	DebugLevel      int    `envconfig:"VDBRIDGED_DEBUG_LEVEL" default:"0"`
	FakeUinput      bool   `envconfig:"VDBRIDGED_FAKE_UINPUT" default:"false"`
	SingleShot      bool   `envconfig:"VDBRIDGED_SINGLE_SHOT" default:"false"`
	DisableSession  bool   `envconfig:"VDBRIDGED_DISABLE_SESSION" default:"false"`
}

// Load reads a .env file if present (ignored if absent — the same
// best-effort semantics as LoadCliConfig) and processes VDBRIDGED_*
// environment variables into an EnvConfig.
func Load() (EnvConfig, error) {
	_ = godotenv.Load()

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}
