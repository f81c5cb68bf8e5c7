// Package retry provides the backoff policies that bound how often a failed delivery
// is re-attempted before it is routed to the dead-letter topic.
//
// Two interchangeable policies are provided. Only one is active per dispatcher:
//
//	Exponential: delay_1 = Initial, delay_n = min(delay_n-1 * Multiplier, MaxInterval),
//	             stop once the sum of handed-out delays reaches MaxElapsed
//	Fixed:       constant Delay, at most MaxAttempts deliveries in total
package retry

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Policy produces a fresh Backoff for every delivery.
type Policy interface {
	// Start begins the retry budget of one delivery.
	Start() Backoff

	// Validate reports an invalid configuration.
	Validate() error

	// String describes the policy for logs.
	String() string
}

// Backoff is the per-delivery retry budget. It is not safe for concurrent use;
// the dispatcher owns one per in-flight delivery.
type Backoff interface {
	// Next returns the delay before the next attempt, or false once the budget is exhausted.
	Next() (time.Duration, bool)
}

// Exponential grows the delay geometrically and caps the total time spent waiting.
type Exponential struct {
	Initial     time.Duration // Delay before the first retry
	Multiplier  float64       // Growth factor per retry (e.g., 2.0 doubles)
	MaxInterval time.Duration // Cap on a single delay
	MaxElapsed  time.Duration // Budget on the sum of delays
}

// DefaultExponential returns 1s → 2s → 4s → 8s, then stop (10s elapsed budget).
func DefaultExponential() Exponential {
	return Exponential{
		Initial:     time.Second,
		Multiplier:  2.0,
		MaxInterval: 30 * time.Second,
		MaxElapsed:  10 * time.Second,
	}
}

// Start implements Policy.
func (p Exponential) Start() Backoff {
	return &exponentialBackoff{policy: p}
}

// Validate implements Policy.
func (p Exponential) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Initial, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&p.Multiplier, validation.Required, validation.Min(1.0)),
		validation.Field(&p.MaxInterval, validation.Required, validation.Min(p.Initial)),
		validation.Field(&p.MaxElapsed, validation.Required),
	)
}

// String implements Policy.
func (p Exponential) String() string {
	return fmt.Sprintf("exponential(initial=%v, multiplier=%.1f, maxInterval=%v, maxElapsed=%v)",
		p.Initial, p.Multiplier, p.MaxInterval, p.MaxElapsed)
}

type exponentialBackoff struct {
	policy  Exponential
	current time.Duration
	elapsed time.Duration
}

func (b *exponentialBackoff) Next() (time.Duration, bool) {
	if b.elapsed >= b.policy.MaxElapsed {
		return 0, false
	}

	if b.current == 0 {
		b.current = b.policy.Initial
	} else {
		b.current = time.Duration(float64(b.current) * b.policy.Multiplier)
	}
	if b.current > b.policy.MaxInterval {
		b.current = b.policy.MaxInterval
	}

	b.elapsed += b.current
	return b.current, true
}

// Fixed waits a constant delay and bounds the number of deliveries.
type Fixed struct {
	Delay       time.Duration // Delay between attempts
	MaxAttempts int           // Total deliveries of one record, including the first
}

// DefaultFixed returns 2s between attempts, 3 attempts in total.
func DefaultFixed() Fixed {
	return Fixed{
		Delay:       2 * time.Second,
		MaxAttempts: 3,
	}
}

// Start implements Policy.
func (p Fixed) Start() Backoff {
	return &fixedBackoff{policy: p}
}

// Validate implements Policy.
func (p Fixed) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Delay, validation.Min(time.Duration(0))),
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
	)
}

// String implements Policy.
func (p Fixed) String() string {
	return fmt.Sprintf("fixed(delay=%v, maxAttempts=%d)", p.Delay, p.MaxAttempts)
}

type fixedBackoff struct {
	policy  Fixed
	retries int
}

func (b *fixedBackoff) Next() (time.Duration, bool) {
	if b.retries >= b.policy.MaxAttempts-1 {
		return 0, false
	}
	b.retries++
	return b.policy.Delay, true
}

// maxScheduleLines bounds Schedule for policies with very large budgets.
const maxScheduleLines = 50

// Schedule returns a human-readable description of the retry schedule of one delivery.
//
// Example output for DefaultFixed():
//
//	Retry Schedule (fixed(delay=2s, maxAttempts=3)):
//	  Attempt 1: immediately
//	  Attempt 2: after 2s
//	  Attempt 3: after 2s
//	  → Dead-letter
func Schedule(p Policy) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Retry Schedule (%s):\n", p)
	sb.WriteString("  Attempt 1: immediately\n")

	backoff := p.Start()
	for attempt := 2; attempt <= maxScheduleLines; attempt++ {
		delay, ok := backoff.Next()
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "  Attempt %d: after %v\n", attempt, delay)
	}
	sb.WriteString("  → Dead-letter\n")
	return sb.String()
}
