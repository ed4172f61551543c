package token

import "time"

// DefaultDailyQuota is the number of successful relays a record may
// authorize within its calendar day. Earlier deployments of this
// service disagreed on the value (100, 10 and 50 were all observed in
// production); 100 is what the primary deployment ran with and is now
// the one documented default. Override with RELAY_DAILY_QUOTA.
const DefaultDailyQuota = 100

// Policy is the pure validity predicate for token records. No side
// effects, no I/O; validity is recomputed on every check and never
// cached.
type Policy struct {
	Limit int
}

// NewPolicy returns a Policy with the given daily quota, falling back
// to DefaultDailyQuota for non-positive limits.
func NewPolicy(limit int) Policy {
	if limit <= 0 {
		limit = DefaultDailyQuota
	}
	return Policy{Limit: limit}
}

// IsValid reports whether record may authorize another relay as of the
// given day: issued today and under quota. A record issued at 23:59:59
// is valid for under a second; one issued at 00:00:01 for nearly a
// day. That asymmetry is intentional - quota is tied to the calendar
// day, not to time since issue.
func (p Policy) IsValid(record *Record, today time.Time) bool {
	if record == nil {
		return false
	}
	return record.IssuedOn.Equal(DateOf(today)) && record.Counter < p.Limit
}
