// Package retrybackoff provides exponential backoff with jitter. The LLM
// router uses it to retry provider calls.
package retrybackoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64
}

// Compute calculates the backoff duration for a given attempt number
// (1-indexed). base = InitialMs * Factor^(attempt-1); jitter is added up to
// base*Jitter, and the total is clamped to MaxMs.
func Compute(policy Policy, attempt int) time.Duration {
	return computeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter, not security sensitive
}

func computeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// LLMPolicy implements the "2^attempt seconds" retry schedule used by the
// LLM router: 1s, 2s, 4s, 8s, ... capped at 32s, with 10% jitter.
func LLMPolicy() Policy {
	return Policy{
		InitialMs: 1000,
		MaxMs:     32000,
		Factor:    2,
		Jitter:    0.1,
	}
}

// DispatchPolicy is a quick, short-lived backoff (200ms doubling, capped at
// 2s) sized for tool-module dispatch. toolregistry's Dispatch makes a single
// attempt and does not use it.
func DispatchPolicy() Policy {
	return Policy{
		InitialMs: 200,
		MaxMs:     2000,
		Factor:    2,
		Jitter:    0.1,
	}
}
