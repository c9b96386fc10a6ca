package service

import "time"

// SystemClock reports wall-clock time in the operating time zone.
type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc}
}

func (c SystemClock) Now() time.Time { return time.Now().In(c.loc) }

func (c SystemClock) Location() *time.Location { return c.loc }
