package core

import (
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffInitial = 30 * time.Second
	defaultBackoffMax     = 30 * time.Minute
)

// BackoffPolicy returns the delay before the given retry attempt (1-based).
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter spreads each delay by +/- Jitter * delay.
	Jitter float64
	// Rand returns values in [0,1). Defaults to math/rand.
	Rand func() float64
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	max := b.Max
	if max <= 0 {
		max = defaultBackoffMax
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	delay := float64(initial)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(max) {
			delay = float64(max)
			break
		}
	}
	if b.Jitter > 0 {
		random := b.Rand
		if random == nil {
			random = rand.Float64
		}
		delay += delay * b.Jitter * (random()*2 - 1)
	}
	if delay > float64(max) {
		delay = float64(max)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ScheduleBackoff walks a fixed list of delays, repeating the last one.
type ScheduleBackoff struct {
	Steps []time.Duration
}

func (b ScheduleBackoff) NextDelay(attempt int) time.Duration {
	if len(b.Steps) == 0 {
		return defaultBackoffInitial
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(b.Steps) {
		return b.Steps[len(b.Steps)-1]
	}
	return b.Steps[attempt-1]
}

// BackoffFromConfig picks ScheduleBackoff when a schedule is configured.
func BackoffFromConfig(cfg BackoffConfig) BackoffPolicy {
	if len(cfg.Schedule) > 0 {
		return ScheduleBackoff{Steps: append([]time.Duration(nil), cfg.Schedule...)}
	}
	return ExponentialBackoff{
		Initial:    cfg.Initial,
		Max:        cfg.Max,
		Multiplier: cfg.Multiplier,
		Jitter:     cfg.Jitter,
	}
}
