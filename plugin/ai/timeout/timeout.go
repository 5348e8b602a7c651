// Package timeout defines centralized timeout constants for upstream calls.
package timeout

import "time"

// Upstream call timeout constants.
const (
	// WeatherTimeout is the timeout for one Open-Meteo forecast request.
	WeatherTimeout = 10 * time.Second

	// MandiTimeout is the timeout for one data.gov.in price request.
	MandiTimeout = 15 * time.Second

	// LLMTimeout is the timeout for one chat completion attempt.
	LLMTimeout = 30 * time.Second

	// DiseaseTimeout is the timeout for one disease model call.
	DiseaseTimeout = 30 * time.Second

	// RequestTimeout bounds the handling of one assistant request end to end.
	RequestTimeout = 60 * time.Second

	// ShutdownTimeout is how long the HTTP server drains in-flight requests.
	ShutdownTimeout = 10 * time.Second

	// MaxRetries is the number of attempts for a retried upstream call.
	MaxRetries = 3

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
