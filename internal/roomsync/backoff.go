package roomsync

import "time"

const DefaultReconnectDelay = 1000 * time.Millisecond

// Backoff computes the delay before recovery attempt n (starting at 1).
// The zero value is a fixed DefaultReconnectDelay.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration // 0 means no cap
	Multiplier float64       // <= 1 means fixed delay
}

func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Initial: d, Max: d, Multiplier: 1}
}

func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = DefaultReconnectDelay
	}
	if b.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * b.Multiplier)
			if b.Max > 0 && d >= b.Max {
				return b.Max
			}
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
