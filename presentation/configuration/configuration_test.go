package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ppn/infrastructure/settings"
)

type fixedResolver struct {
	path string
}

func (r fixedResolver) Resolve() (string, error) {
	return r.path, nil
}

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client_configuration.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write configuration: %v", err)
	}
	return NewManager(fixedResolver{path: path})
}

func TestConfigurationAppliesDefaults(t *testing.T) {
	manager := writeConfig(t, `{
		"AuthURL": "https://auth.example.com/v1/auth",
		"EgressURL": "https://egress.example.com/v1/addegress",
		"TokenFile": "/run/ppn/token"
	}`)

	conf, err := manager.Configuration()
	if err != nil {
		t.Fatalf("expected configuration to load, got %v", err)
	}
	if conf.Dataplane != settings.DataplaneBridge {
		t.Fatalf("expected default dataplane %q, got %q", settings.DataplaneBridge, conf.Dataplane)
	}
	if conf.Reattempt.MaxAttempts != settings.DefaultMaxReattempts {
		t.Fatalf("expected %d reattempts, got %d", settings.DefaultMaxReattempts, conf.Reattempt.MaxAttempts)
	}
	if conf.KeepAliveInterval.Duration() != 5*time.Minute {
		t.Fatalf("expected 5m keep-alive, got %v", conf.KeepAliveInterval.Duration())
	}
}

func TestConfigurationOverridesDefaults(t *testing.T) {
	manager := writeConfig(t, `{
		"AuthURL": "https://auth.example.com/v1/auth",
		"EgressURL": "https://egress.example.com/v1/addegress",
		"Dataplane": "ipsec",
		"CipherSuite": "aes256-gcm",
		"Reattempt": {"MaxAttempts": 6, "Delay": "250ms"},
		"OAuthToken": "ya29.test"
	}`)

	conf, err := manager.Configuration()
	if err != nil {
		t.Fatalf("expected configuration to load, got %v", err)
	}
	if conf.Dataplane != settings.DataplaneIpSec {
		t.Fatalf("expected ipsec dataplane, got %q", conf.Dataplane)
	}
	if conf.CipherSuite != "aes256-gcm" {
		t.Fatalf("expected aes256-gcm, got %q", conf.CipherSuite)
	}
	if conf.Reattempt.MaxAttempts != 6 {
		t.Fatalf("expected 6 reattempts, got %d", conf.Reattempt.MaxAttempts)
	}
	if conf.Reattempt.DelayDuration() != 250*time.Millisecond {
		t.Fatalf("expected 250ms delay, got %v", conf.Reattempt.DelayDuration())
	}
}

func TestConfigurationRejectsMissingEndpoints(t *testing.T) {
	manager := writeConfig(t, `{"OAuthToken": "ya29.test"}`)

	if _, err := manager.Configuration(); err == nil {
		t.Fatal("expected error for configuration without endpoints")
	}
}

func TestConfigurationRejectsMissingCredentials(t *testing.T) {
	manager := writeConfig(t, `{
		"AuthURL": "https://auth.example.com/v1/auth",
		"EgressURL": "https://egress.example.com/v1/addegress"
	}`)

	_, err := manager.Configuration()
	if err == nil {
		t.Fatal("expected error for configuration without credentials")
	}
	if !strings.Contains(err.Error(), "credential") {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestConfigurationMissingFile(t *testing.T) {
	manager := NewManager(fixedResolver{path: filepath.Join(t.TempDir(), "missing.json")})

	if _, err := manager.Configuration(); err == nil {
		t.Fatal("expected error for missing configuration file")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "client_configuration.json")
	manager := NewManager(fixedResolver{path: path})

	conf := Default()
	conf.AuthURL = "https://auth.example.com/v1/auth"
	conf.EgressURL = "https://egress.example.com/v1/addegress"
	conf.OAuthToken = "ya29.test"
	if err := manager.Write(conf); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}

	loaded, err := manager.Configuration()
	if err != nil {
		t.Fatalf("expected round trip to load, got %v", err)
	}
	if loaded.AuthURL != conf.AuthURL {
		t.Fatalf("expected %q, got %q", conf.AuthURL, loaded.AuthURL)
	}
}

func TestClientResolverHonorsEnvOverride(t *testing.T) {
	t.Setenv(pathEnv, "/tmp/ppn/override.json")

	path, err := NewClientResolver().Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != "/tmp/ppn/override.json" {
		t.Fatalf("expected override path, got %q", path)
	}
}
