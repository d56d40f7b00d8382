package domain

import (
	"fmt"
	"sync"
	"time"
)

// TimestampLayout renders millisecond precision followed by the zone
// abbreviation, e.g. "2024-01-01T00:00:00.500 UTC".
const TimestampLayout = "2006-01-02T15:04:05.000 MST"

// Clock formats event timestamps in one fixed zone. The zone is loaded on
// first use and cached for the lifetime of the Clock.
type Clock struct {
	zone string
	now  func() time.Time

	once sync.Once
	loc  *time.Location
	err  error
}

// NewClock returns a Clock for the named IANA zone ("" means UTC).
func NewClock(zone string) *Clock {
	if zone == "" {
		zone = "UTC"
	}
	return &Clock{zone: zone, now: time.Now}
}

// WithNow replaces the wall-clock source. Used by tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	c.now = now
	return c
}

// Location returns the cached zone, loading it on the first call.
func (c *Clock) Location() (*time.Location, error) {
	c.once.Do(func() {
		c.loc, c.err = time.LoadLocation(c.zone)
		if c.err != nil {
			c.err = fmt.Errorf("loading timezone %q: %w", c.zone, c.err)
		}
	})
	return c.loc, c.err
}

// Format renders t in the clock's zone. If the zone cannot be loaded it
// falls back to UTC so that formatting never fails.
func (c *Clock) Format(t time.Time) string {
	loc, err := c.Location()
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

// Now formats the current wall-clock time.
func (c *Clock) Now() string {
	return c.Format(c.now())
}
