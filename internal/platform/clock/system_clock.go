package clock

import "time"

// SystemClock reads UTC wall-clock time; audit entries are stamped with it.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
