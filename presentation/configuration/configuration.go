// Package configuration resolves and reads the client configuration file.
package configuration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ppn/infrastructure/settings"
)

// Configuration is the on-disk client configuration: tunnel settings plus
// the credential source.
type Configuration struct {
	settings.Settings

	// OAuthToken is a fixed bearer token. TokenFile takes precedence when
	// both are set.
	OAuthToken string `json:"OAuthToken,omitempty"`
	// TokenFile is re-read on every authentication pass.
	TokenFile string `json:"TokenFile,omitempty"`
}

// Default returns a configuration with every tunable at its default.
// Endpoints and credentials still have to be filled in.
func Default() Configuration {
	return Configuration{
		Settings: settings.Settings{
			ServiceType: "ppn",
			Dataplane:   settings.DataplaneBridge,
			CipherSuite: "chacha20-poly1305",
			Reattempt: settings.ReattemptPolicy{
				MaxAttempts: settings.DefaultMaxReattempts,
				Delay:       settings.HumanReadableDuration(settings.DefaultReattemptDelay),
			},
			KeepAliveInterval: settings.HumanReadableDuration(5 * time.Minute),
		},
	}
}

type Resolver interface {
	Resolve() (string, error)
}

const pathEnv = "PPN_CONFIG"

type clientResolver struct {
}

func NewClientResolver() Resolver {
	return clientResolver{}
}

// Resolve prefers the PPN_CONFIG override and falls back to the system path.
func (clientResolver) Resolve() (string, error) {
	if path := os.Getenv(pathEnv); path != "" {
		return path, nil
	}
	return filepath.Join(string(os.PathSeparator), "etc", "ppn", "client_configuration.json"), nil
}

type Manager struct {
	resolver Resolver
}

func NewManager(resolver Resolver) *Manager {
	return &Manager{resolver: resolver}
}

func (m *Manager) Configuration() (*Configuration, error) {
	path, err := m.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file %s does not exist", path)
		}
		return nil, err
	}

	conf := Default()
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	conf.Settings = conf.Settings.Normalized()
	if err := conf.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	if conf.OAuthToken == "" && conf.TokenFile == "" {
		return nil, fmt.Errorf("configuration %s names no credential source", path)
	}
	return &conf, nil
}

// Write persists conf at the resolved path, creating the directory on first
// use.
func (m *Manager) Write(conf Configuration) error {
	path, err := m.resolver.Resolve()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
