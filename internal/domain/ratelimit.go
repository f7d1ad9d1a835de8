package domain

import (
	"fmt"
	"time"
)

// CallKind identifies the model provider capability being called
type CallKind string

const (
	CallKindCompletion CallKind = "completion"
	CallKindEmbedding  CallKind = "embedding"
)

// QuotaLimit names the governor limit that refused a call
type QuotaLimit string

const (
	LimitMinuteRequests   QuotaLimit = "minute_requests"
	LimitHourRequests     QuotaLimit = "hour_requests"
	LimitDayRequests      QuotaLimit = "day_requests"
	LimitDailyCost        QuotaLimit = "daily_cost"
	LimitMonthlyCost      QuotaLimit = "monthly_cost"
	LimitTokensPerRequest QuotaLimit = "tokens_per_request"
)

// Reason returns the operator-facing description of the limit
func (l QuotaLimit) Reason() string {
	switch l {
	case LimitMinuteRequests:
		return "per-minute request cap reached"
	case LimitHourRequests:
		return "hourly request cap reached"
	case LimitDayRequests:
		return "daily request cap reached"
	case LimitDailyCost:
		return "daily cost cap reached"
	case LimitMonthlyCost:
		return "monthly cost cap reached"
	case LimitTokensPerRequest:
		return "request exceeds max tokens per request"
	}
	return string(l)
}

// RetryAfter is how long a caller should wait before the limit can pass
// again. Zero means waiting does not help.
func (l QuotaLimit) RetryAfter() time.Duration {
	switch l {
	case LimitMinuteRequests:
		return time.Minute
	case LimitHourRequests:
		return time.Hour
	case LimitDayRequests, LimitDailyCost, LimitMonthlyCost:
		return 24 * time.Hour
	}
	return 0
}

// HaltsSweep reports whether every later call in the same window is certain
// to be denied too. Token-size denials are specific to one request.
func (l QuotaLimit) HaltsSweep() bool {
	return l != LimitTokensPerRequest
}

// Preset is a named rate and cost policy
type Preset string

const (
	PresetStrict   Preset = "strict"
	PresetBalanced Preset = "balanced"
	PresetGenerous Preset = "generous"
	PresetCustom   Preset = "custom"
)

// RateLimitPolicy bounds how often and how expensively the provider is called.
// MaxRequestsPerHour of 0 disables the hourly window.
type RateLimitPolicy struct {
	Preset               Preset  `json:"preset"`
	MaxRequestsPerMinute int     `json:"max_requests_per_minute"`
	MaxRequestsPerHour   int     `json:"max_requests_per_hour"`
	MaxRequestsPerDay    int     `json:"max_requests_per_day"`
	DailyLimitUSD        float64 `json:"daily_limit_usd"`
	MonthlyLimitUSD      float64 `json:"monthly_limit_usd"`
	MaxTokensPerRequest  int     `json:"max_tokens_per_request"`
	FreeTier             bool    `json:"free_tier"`
}

var presetPolicies = map[Preset]RateLimitPolicy{
	PresetStrict: {
		Preset:               PresetStrict,
		MaxRequestsPerMinute: 5,
		MaxRequestsPerHour:   50,
		MaxRequestsPerDay:    200,
		DailyLimitUSD:        1,
		MonthlyLimitUSD:      10,
		MaxTokensPerRequest:  2048,
	},
	PresetBalanced: {
		Preset:               PresetBalanced,
		MaxRequestsPerMinute: 20,
		MaxRequestsPerHour:   300,
		MaxRequestsPerDay:    1000,
		DailyLimitUSD:        5,
		MonthlyLimitUSD:      50,
		MaxTokensPerRequest:  4096,
	},
	PresetGenerous: {
		Preset:               PresetGenerous,
		MaxRequestsPerMinute: 60,
		MaxRequestsPerHour:   0,
		MaxRequestsPerDay:    5000,
		DailyLimitUSD:        20,
		MonthlyLimitUSD:      200,
		MaxTokensPerRequest:  8192,
	},
}

// PresetPolicy returns the numeric limits of a named preset
func PresetPolicy(p Preset) (RateLimitPolicy, error) {
	policy, ok := presetPolicies[p]
	if !ok {
		return RateLimitPolicy{}, NewDomainErrorWithCause(ErrCodeValidation, "invalid rate limit preset", fmt.Errorf("unknown preset %q", p))
	}
	return policy, nil
}

// FreeTierPolicy is the strict preset with the free tier flag set
func FreeTierPolicy() RateLimitPolicy {
	p := presetPolicies[PresetStrict]
	p.FreeTier = true
	return p
}

// ParsePreset validates a preset name. Custom is accepted only as a marker and
// has no numeric values of its own.
func ParsePreset(s string) (Preset, error) {
	p := Preset(s)
	switch p {
	case PresetStrict, PresetBalanced, PresetGenerous, PresetCustom:
		return p, nil
	}
	return "", ErrInvalidPreset
}

// ValidateRateLimitPolicy checks that every limit is non-negative and that the
// always-on windows are enabled
func ValidateRateLimitPolicy(p RateLimitPolicy) error {
	if p.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("max requests per minute must be positive")
	}
	if p.MaxRequestsPerHour < 0 {
		return fmt.Errorf("max requests per hour cannot be negative")
	}
	if p.MaxRequestsPerDay <= 0 {
		return fmt.Errorf("max requests per day must be positive")
	}
	if p.DailyLimitUSD < 0 || p.MonthlyLimitUSD < 0 {
		return fmt.Errorf("cost limits cannot be negative")
	}
	if p.MaxTokensPerRequest <= 0 {
		return fmt.Errorf("max tokens per request must be positive")
	}
	return nil
}
