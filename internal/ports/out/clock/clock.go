package clock

import "time"

// Clock stamps audit entries and drives expiry checks.
type Clock interface {
	Now() time.Time
}
