package risk

import "time"

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NowUTC is the default wall clock.
var NowUTC Clock = realClock{}
