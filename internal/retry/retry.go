package retry

import "time"

// Policy runs an operation up to MaxAttempts times with a fixed Delay
// between failed attempts. Every unreliable network step (archive fetch,
// DNS query, subnet lookup) shares this loop instead of hand-rolling it.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// Sleep is swapped out in tests. nil means time.Sleep.
	Sleep func(time.Duration)
}

// Do invokes op until it succeeds or MaxAttempts is exhausted, sleeping
// Delay between attempts. At most MaxAttempts calls and exactly one fewer
// sleeps are performed. Returns the last error on exhaustion.
func (p Policy) Do(op func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt < attempts {
			sleep(p.Delay)
		}
	}
	return err
}
