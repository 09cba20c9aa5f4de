package settings

import "time"

// ReattemptPolicy governs the bounded datapath reconnect loop. The zero
// value is not usable; call Normalized to apply defaults.
type ReattemptPolicy struct {
	// MaxAttempts is the total number of datapath attempts before giving up.
	MaxAttempts int `json:"MaxAttempts"`
	// Delay is the fixed pause before each reconnect attempt.
	Delay HumanReadableDuration `json:"Delay"`
}

func (p ReattemptPolicy) Normalized() ReattemptPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxReattempts
	}
	if p.Delay <= 0 {
		p.Delay = HumanReadableDuration(DefaultReattemptDelay)
	}
	return p
}

func (p ReattemptPolicy) DelayDuration() time.Duration { return p.Delay.Duration() }

// PreferIpv6 reports whether reconnect attempt number attempt (1-based)
// should use the IPv6 egress address when both families are available. The
// first half of the budget stays on IPv6, the rest falls back to IPv4.
func (p ReattemptPolicy) PreferIpv6(attempt int) bool {
	return attempt <= p.MaxAttempts/2
}
