package params

import "time"

// WindowTime converts a permit validity bound (Unix seconds) to time.Time.
// The zero bound and MaxUint48 both mean "unbounded" and map to the zero
// time.
func WindowTime(ts uint64) time.Time {
	if ts == 0 || ts >= MaxUint48 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}
