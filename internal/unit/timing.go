package unit

import "time"

const (
	// WaitScan is the worker liveness TTL / master scan interval.
	WaitScan = 60 * time.Second
	// WaitIdle is the master's sleep between empty polls.
	WaitIdle = 3 * time.Second
)

// IdleTime is the BRPOP timeout units and the master's probe use so they
// yield well before the liveness TTL (WaitScan) expires.
func IdleTime() time.Duration {
	return WaitScan / 2
}
