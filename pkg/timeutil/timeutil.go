package timeutil

import "time"

// Now returns the current UTC time. Centralized so call sites stay
// consistent about the zone used for persisted timestamps.
func Now() time.Time {
	return time.Now().UTC()
}
