package settings

import "time"

const (
	// DefaultReattemptDelay is the fixed backoff between datapath reconnect
	// attempts.
	DefaultReattemptDelay = 500 * time.Millisecond
	// DefaultMaxReattempts is the total attempt budget before the session
	// gives up on the datapath. The budget is split evenly between address
	// families when the egress offers both.
	DefaultMaxReattempts = 4
	// DefaultKeepAliveInterval paces the control-plane session timer.
	DefaultKeepAliveInterval = 5 * time.Minute
)
