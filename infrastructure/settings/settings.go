package settings

import "fmt"

type Settings struct {
	// AuthURL is the authentication endpoint.
	AuthURL string `json:"AuthURL"`
	// EgressURL is the egress-provisioning endpoint.
	EgressURL string `json:"EgressURL"`
	// ServiceType names the subscription tier sent with every auth request.
	ServiceType string    `json:"ServiceType"`
	Dataplane   Dataplane `json:"Dataplane"`
	// CipherSuite is "chacha20-poly1305" (default) or "aes256-gcm".
	CipherSuite       string                `json:"CipherSuite"`
	Reattempt         ReattemptPolicy       `json:"Reattempt"`
	KeepAliveInterval HumanReadableDuration `json:"KeepAliveInterval"`
	MeteredNetwork    bool                  `json:"MeteredNetwork"`
}

func (s Settings) Validate() error {
	if s.AuthURL == "" {
		return fmt.Errorf("AuthURL is required")
	}
	if s.EgressURL == "" {
		return fmt.Errorf("EgressURL is required")
	}
	if err := s.Dataplane.Validate(); err != nil {
		return err
	}
	switch s.CipherSuite {
	case "", "chacha20-poly1305", "aes256-gcm":
	default:
		return fmt.Errorf("unknown cipher suite %q", s.CipherSuite)
	}
	return nil
}

// Normalized returns a copy with defaults applied to every unset field.
func (s Settings) Normalized() Settings {
	s.Reattempt = s.Reattempt.Normalized()
	if s.KeepAliveInterval <= 0 {
		s.KeepAliveInterval = HumanReadableDuration(DefaultKeepAliveInterval)
	}
	if s.CipherSuite == "" {
		s.CipherSuite = "chacha20-poly1305"
	}
	if s.Dataplane == "" {
		s.Dataplane = DataplaneBridge
	}
	return s
}
