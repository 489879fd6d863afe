package oracle

import "time"

// MaxRetriesCap bounds MaxRetries regardless of configuration.
const MaxRetriesCap = 10

// RetryConfig controls how a failed window is retried. Delays are in milliseconds.
type RetryConfig struct {
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
	BackoffType  string `json:"backoff_type" yaml:"backoff_type"` // fixed, linear, exponential, fibonacci
	InitialDelay int    `json:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelay     int    `json:"max_delay_ms" yaml:"max_delay_ms"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		BackoffType:  "exponential",
		InitialDelay: 1000,
		MaxDelay:     60000,
	}
}

// retries returns MaxRetries clamped to [0, MaxRetriesCap].
func (r RetryConfig) retries() int {
	return min(max(r.MaxRetries, 0), MaxRetriesCap)
}

// CalculateBackoff returns the delay before retry number attempt (1-based).
func CalculateBackoff(retry *RetryConfig, attempt int) time.Duration {
	if retry == nil {
		return time.Second
	}

	var delayMs int
	switch retry.BackoffType {
	case "fixed":
		delayMs = retry.InitialDelay
	case "linear":
		delayMs = linearBackoff(retry.InitialDelay, attempt)
	case "fibonacci":
		delayMs = fibonacciBackoff(retry.InitialDelay, attempt)
	default:
		delayMs = exponentialBackoff(retry.InitialDelay, attempt, retry.MaxDelay)
	}

	if retry.MaxDelay > 0 && delayMs > retry.MaxDelay {
		delayMs = retry.MaxDelay
	}
	if delayMs < 0 {
		delayMs = 0
	}

	return time.Duration(delayMs) * time.Millisecond
}

func fibonacciBackoff(initial int, attempt int) int {
	if attempt <= 1 {
		return initial
	}
	// 1, 1, 2, 3, 5, 8, 13, 21...
	a, b := 1, 1
	for i := 2; i < attempt; i++ {
		a, b = b, a+b
	}
	return initial * b
}

// exponentialBackoff doubles per attempt and stops growing once ceiling is reached.
func exponentialBackoff(initial int, attempt int, ceiling int) int {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if ceiling > 0 && delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

func linearBackoff(initial int, attempt int) int {
	if attempt < 1 {
		attempt = 1
	}
	return initial * attempt
}
