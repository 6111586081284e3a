package retry

import (
	"errors"
	"testing"
	"time"
)

func TestDoStopsAfterFirstSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 5, Delay: time.Second, Sleep: func(time.Duration) {
		t.Fatal("Do slept after a successful attempt")
	}}

	err := p.Do(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("Do made %d attempts, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	slept := 0
	p := Policy{MaxAttempts: 4, Delay: 250 * time.Millisecond, Sleep: func(d time.Duration) {
		if d != 250*time.Millisecond {
			t.Fatalf("Do slept %s, want 250ms", d)
		}
		slept++
	}}

	err := p.Do(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("Do made %d attempts, want 3", calls)
	}
	if slept != 2 {
		t.Fatalf("Do slept %d times, want 2", slept)
	}
}

func TestDoBoundsAttemptsAndDelays(t *testing.T) {
	wantErr := errors.New("still down")
	calls := 0
	slept := 0
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond, Sleep: func(time.Duration) { slept++ }}

	err := p.Do(func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do returned %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("Do made %d attempts, want 3", calls)
	}
	if slept != 2 {
		t.Fatalf("Do slept %d times, want exactly attempts-1 = 2", slept)
	}
}

func TestDoTreatsZeroAttemptsAsOne(t *testing.T) {
	calls := 0
	err := Policy{Sleep: func(time.Duration) {}}.Do(func() error {
		calls++
		return errors.New("nope")
	})
	if err == nil {
		t.Fatal("Do returned nil, want error")
	}
	if calls != 1 {
		t.Fatalf("Do made %d attempts, want 1", calls)
	}
}
