package ratelimit

import "fmt"

// Window kinds used in limiter keys. Limits are keyed by client network
// address, so authenticated and guest traffic from one address share a
// budget.
const (
	WindowDay      = "day"
	WindowHour     = "hour"
	WindowGenerate = "gen"
)

// AddressKey builds a limiter key for a client address and window kind.
func AddressKey(addr, windowKind string) string {
	if addr == "" || windowKind == "" {
		return ""
	}
	return fmt.Sprintf("ip:%s:%s", addr, windowKind)
}
