package backoff

import (
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	strategy := Exponential{}
	base := 100 * time.Millisecond
	max := time.Minute

	previous := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		delay := strategy.Delay(attempt, base, max, 2.0, 0)
		want := time.Duration(float64(base) * Pow(2.0, attempt))
		if delay != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, delay, want)
		}
		if delay <= previous && attempt > 0 {
			t.Errorf("attempt %d: delay %v did not grow past %v", attempt, delay, previous)
		}
		previous = delay
	}
}

func TestExponentialCapsAtMax(t *testing.T) {
	strategy := Exponential{}
	delay := strategy.Delay(20, time.Second, 5*time.Second, 2.0, 0)
	if delay != 5*time.Second {
		t.Errorf("delay = %v, want cap 5s", delay)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	strategy := Exponential{}
	base := 100 * time.Millisecond
	max := time.Minute

	for i := 0; i < 100; i++ {
		delay := strategy.Delay(2, base, max, 2.0, 0.5)
		lower := 400 * time.Millisecond
		upper := 600 * time.Millisecond
		if delay < lower || delay > upper {
			t.Fatalf("jittered delay %v outside [%v, %v]", delay, lower, upper)
		}
	}
}

func TestExponentialNegativeAttempt(t *testing.T) {
	strategy := Exponential{}
	if delay := strategy.Delay(-1, time.Second, time.Minute, 2.0, 0); delay != time.Second {
		t.Errorf("negative attempt should behave as attempt 0, got %v", delay)
	}
}

func TestConstantDelay(t *testing.T) {
	strategy := Constant{}

	for attempt := 0; attempt < 5; attempt++ {
		if delay := strategy.Delay(attempt, 200*time.Millisecond, time.Minute, 0, 0); delay != 200*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want 200ms", attempt, delay)
		}
	}

	if delay := strategy.Delay(0, time.Minute, time.Second, 0, 0); delay != time.Second {
		t.Errorf("constant delay must respect max, got %v", delay)
	}
}

func TestDecorrelatedBounds(t *testing.T) {
	strategy := Decorrelated{}
	base := 100 * time.Millisecond
	max := 10 * time.Second

	if delay := strategy.Delay(0, base, max, 0, 0); delay != base {
		t.Errorf("attempt 0 must return base, got %v", delay)
	}

	for i := 0; i < 100; i++ {
		delay := strategy.Delay(3, base, max, 0, 0)
		if delay < base || delay > max {
			t.Fatalf("delay %v outside [%v, %v]", delay, base, max)
		}
	}
}

func TestClampJitter(t *testing.T) {
	if got := clampJitter(-0.5); got != 0 {
		t.Errorf("clampJitter(-0.5) = %v", got)
	}
	if got := clampJitter(1.5); got != 1 {
		t.Errorf("clampJitter(1.5) = %v", got)
	}
	if got := clampJitter(0.3); got != 0.3 {
		t.Errorf("clampJitter(0.3) = %v", got)
	}
}

func TestPow(t *testing.T) {
	tests := []struct {
		base     float64
		exponent int
		want     float64
	}{
		{2, 0, 1},
		{2, 1, 2},
		{2, 10, 1024},
		{3, 3, 27},
		{1.5, 2, 2.25},
	}

	for _, tt := range tests {
		if got := Pow(tt.base, tt.exponent); got != tt.want {
			t.Errorf("Pow(%v, %d) = %v, want %v", tt.base, tt.exponent, got, tt.want)
		}
	}
}
