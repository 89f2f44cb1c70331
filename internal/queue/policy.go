package queue

import (
	"fmt"
	"time"

	"github.com/phrazzld/kbase-api/internal/config"
)

// BackoffType selects how retry delays grow.
type BackoffType string

// Backoff strategies.
const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Backoff is the delay applied before a failed job becomes ready again.
type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

// After returns the delay following the given attempt (1-based).
func (b Backoff) After(attempt int) time.Duration {
	if b.Type != BackoffExponential || attempt <= 1 {
		return b.Delay
	}
	return b.Delay * time.Duration(int64(1)<<uint(attempt-1))
}

// RateLimit is a global admission budget for jobs started per window.
// A zero Max disables admission control.
type RateLimit struct {
	Max    int
	Window time.Duration
}

// Policy is the static configuration of one queue.
type Policy struct {
	Workers         int
	MaxAttempts     int
	Backoff         Backoff
	KeepCompleted   int
	KeepFailed      int
	Timeout         time.Duration
	RateLimit       RateLimit
	DefaultPriority int
}

// Policies holds the policy of every queue.
type Policies map[Name]Policy

// DefaultPolicies returns the production policies.
func DefaultPolicies() Policies {
	return Policies{
		FileProcessing: {
			Workers:         2,
			MaxAttempts:     3,
			Backoff:         Backoff{Type: BackoffExponential, Delay: 2 * time.Second},
			KeepCompleted:   100,
			KeepFailed:      500,
			DefaultPriority: 1,
		},
		WebScraping: {
			Workers:         2,
			MaxAttempts:     3,
			Backoff:         Backoff{Type: BackoffExponential, Delay: 2 * time.Second},
			KeepCompleted:   100,
			KeepFailed:      500,
			DefaultPriority: 2,
		},
		OpenAIChat: {
			Workers:         4,
			MaxAttempts:     2,
			Backoff:         Backoff{Type: BackoffExponential, Delay: time.Second},
			KeepCompleted:   1000,
			KeepFailed:      1000,
			Timeout:         30 * time.Second,
			RateLimit:       RateLimit{Max: 50, Window: time.Minute},
			DefaultPriority: 5,
		},
	}
}

// PoliciesFromConfig converts the configured per-queue sections.
func PoliciesFromConfig(cfg config.QueueConfig) Policies {
	return Policies{
		FileProcessing: policyFromConfig(cfg.FileProcessing),
		WebScraping:    policyFromConfig(cfg.WebScraping),
		OpenAIChat:     policyFromConfig(cfg.OpenAIChat),
	}
}

func policyFromConfig(c config.QueuePolicyConfig) Policy {
	return Policy{
		Workers:     c.Workers,
		MaxAttempts: c.MaxAttempts,
		Backoff: Backoff{
			Type:  BackoffType(c.BackoffType),
			Delay: time.Duration(c.BackoffDelayMS) * time.Millisecond,
		},
		KeepCompleted: c.KeepCompleted,
		KeepFailed:    c.KeepFailed,
		Timeout:       time.Duration(c.TimeoutMS) * time.Millisecond,
		RateLimit: RateLimit{
			Max:    c.RateLimitMax,
			Window: time.Duration(c.RateLimitWindowSec) * time.Second,
		},
		DefaultPriority: c.DefaultPriority,
	}
}

// Get returns the policy of a queue.
func (p Policies) Get(name Name) (Policy, error) {
	pol, ok := p[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidQueue, name)
	}
	return pol, nil
}
