package governor

import (
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/metrics"
)

// Prices are the estimated USD prices per 1K tokens of each call kind
type Prices struct {
	CompletionPer1K float64
	EmbeddingPer1K  float64
}

// DefaultPrices approximate gpt-4o-mini output and ada-002 pricing
func DefaultPrices() Prices {
	return Prices{
		CompletionPer1K: 0.0006,
		EmbeddingPer1K:  0.0001,
	}
}

func (p Prices) cost(kind domain.CallKind, tokens int) float64 {
	per1K := p.CompletionPer1K
	if kind == domain.CallKindEmbedding {
		per1K = p.EmbeddingPer1K
	}
	return float64(tokens) / 1000 * per1K
}

// Decision is the outcome of one admission request
type Decision struct {
	Allowed bool
	Limit   domain.QuotaLimit
	CostUSD float64
}

// Reason describes a denial
func (d Decision) Reason() string {
	if d.Allowed {
		return ""
	}
	return d.Limit.Reason()
}

// Usage is a point-in-time view of the governor's windows
type Usage struct {
	Policy          domain.RateLimitPolicy `json:"policy"`
	MinuteRequests  int                    `json:"minute_requests"`
	HourRequests    int                    `json:"hour_requests"`
	DayRequests     int                    `json:"day_requests"`
	DailySpendUSD   float64                `json:"daily_spend_usd"`
	MonthlySpendUSD float64                `json:"monthly_spend_usd"`
	Denied          int64                  `json:"denied"`
}

// LimitsUpdate changes individual policy fields; nil fields are left alone
type LimitsUpdate struct {
	MaxRequestsPerMinute *int     `json:"max_requests_per_minute,omitempty"`
	MaxRequestsPerHour   *int     `json:"max_requests_per_hour,omitempty"`
	MaxRequestsPerDay    *int     `json:"max_requests_per_day,omitempty"`
	DailyLimitUSD        *float64 `json:"daily_limit_usd,omitempty"`
	MonthlyLimitUSD      *float64 `json:"monthly_limit_usd,omitempty"`
	MaxTokensPerRequest  *int     `json:"max_tokens_per_request,omitempty"`
}

// counter is a fixed wall-clock window. A request belongs to the window whose
// start equals the request time truncated to the window's granularity.
type counter struct {
	start time.Time
	count int
	usd   float64
}

func (c *counter) roll(start time.Time) {
	if !c.start.Equal(start) {
		c.start = start
		c.count = 0
		c.usd = 0
	}
}

// Governor admits or denies provider calls against the active rate and cost
// policy. It is safe for concurrent use; a denied call consumes nothing.
type Governor struct {
	mu     sync.Mutex
	policy domain.RateLimitPolicy
	prices Prices
	now    func() time.Time

	minute counter
	hour   counter
	day    counter
	month  counter
	denied int64
}

// Option configures a Governor
type Option func(*Governor)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// WithPrices sets the per-1K-token prices used for cost estimates
func WithPrices(p Prices) Option {
	return func(g *Governor) {
		g.prices = p
	}
}

// New creates a Governor with the given policy
func New(policy domain.RateLimitPolicy, opts ...Option) (*Governor, error) {
	g := &Governor{
		prices: DefaultPrices(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.SetPolicy(policy); err != nil {
		return nil, err
	}
	return g, nil
}

// Admit decides whether a call of the given kind and size may go out now. An
// allowed call is counted in the current minute, hour and day windows and its
// estimated cost is added to the daily and monthly spend.
func (g *Governor) Admit(kind domain.CallKind, estimatedTokens int) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollLocked()
	p := g.policy
	cost := g.prices.cost(kind, estimatedTokens)

	deny := func(limit domain.QuotaLimit) Decision {
		g.denied++
		metrics.Get().RecordAdmission(string(kind), false, string(limit), 0)
		return Decision{Allowed: false, Limit: limit}
	}

	switch {
	case estimatedTokens > p.MaxTokensPerRequest:
		return deny(domain.LimitTokensPerRequest)
	case g.minute.count >= p.MaxRequestsPerMinute:
		return deny(domain.LimitMinuteRequests)
	case p.MaxRequestsPerHour > 0 && g.hour.count >= p.MaxRequestsPerHour:
		return deny(domain.LimitHourRequests)
	case g.day.count >= p.MaxRequestsPerDay:
		return deny(domain.LimitDayRequests)
	case p.DailyLimitUSD > 0 && g.day.usd+cost > p.DailyLimitUSD:
		return deny(domain.LimitDailyCost)
	case p.MonthlyLimitUSD > 0 && g.month.usd+cost > p.MonthlyLimitUSD:
		return deny(domain.LimitMonthlyCost)
	}

	g.minute.count++
	g.hour.count++
	g.day.count++
	g.day.usd += cost
	g.month.usd += cost
	metrics.Get().RecordAdmission(string(kind), true, "", cost)

	return Decision{Allowed: true, CostUSD: cost}
}

// Acquire is Admit returning a *domain.QuotaDeniedError on denial
func (g *Governor) Acquire(kind domain.CallKind, estimatedTokens int) error {
	d := g.Admit(kind, estimatedTokens)
	if d.Allowed {
		return nil
	}
	return &domain.QuotaDeniedError{Kind: kind, Limit: d.Limit}
}

// ClampTokens bounds a completion's max tokens to the per-request limit
func (g *Governor) ClampTokens(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return min(n, g.policy.MaxTokensPerRequest)
}

// Policy returns the active policy
func (g *Governor) Policy() domain.RateLimitPolicy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy
}

// SetPolicy replaces the whole policy, as when syncing from the settings
// snapshot. A free-tier policy is normalized to the strict preset.
func (g *Governor) SetPolicy(p domain.RateLimitPolicy) error {
	if p.FreeTier {
		p = domain.FreeTierPolicy()
	}
	if err := domain.ValidateRateLimitPolicy(p); err != nil {
		return domain.ValidationError("invalid rate limit policy", err)
	}
	if p.Preset == "" {
		p.Preset = domain.PresetCustom
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
	return nil
}

// ApplyPreset atomically replaces every numeric field with the preset's
// values. Only strict may be applied while the free tier is on.
func (g *Governor) ApplyPreset(preset domain.Preset) error {
	policy, err := domain.PresetPolicy(preset)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.policy.FreeTier {
		if preset != domain.PresetStrict {
			return domain.ErrFreeTierOverride
		}
		g.policy = domain.FreeTierPolicy()
		return nil
	}
	g.policy = policy
	return nil
}

// UpdateLimits changes individual fields and moves the policy to custom
func (g *Governor) UpdateLimits(u LimitsUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.policy.FreeTier {
		return domain.ErrFreeTierOverride
	}

	next := g.policy
	if u.MaxRequestsPerMinute != nil {
		next.MaxRequestsPerMinute = *u.MaxRequestsPerMinute
	}
	if u.MaxRequestsPerHour != nil {
		next.MaxRequestsPerHour = *u.MaxRequestsPerHour
	}
	if u.MaxRequestsPerDay != nil {
		next.MaxRequestsPerDay = *u.MaxRequestsPerDay
	}
	if u.DailyLimitUSD != nil {
		next.DailyLimitUSD = *u.DailyLimitUSD
	}
	if u.MonthlyLimitUSD != nil {
		next.MonthlyLimitUSD = *u.MonthlyLimitUSD
	}
	if u.MaxTokensPerRequest != nil {
		next.MaxTokensPerRequest = *u.MaxTokensPerRequest
	}
	if next == g.policy {
		return nil
	}
	if err := domain.ValidateRateLimitPolicy(next); err != nil {
		return domain.ValidationError("invalid rate limit policy", err)
	}
	next.Preset = domain.PresetCustom
	g.policy = next
	return nil
}

// SetFreeTier switches the free tier on or off. Turning it on forces the
// strict preset; turning it off keeps strict until an administrator changes it.
func (g *Governor) SetFreeTier(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if enabled {
		g.policy = domain.FreeTierPolicy()
		return
	}
	g.policy.FreeTier = false
}

// Usage returns the current window counts and spend
func (g *Governor) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollLocked()
	return Usage{
		Policy:          g.policy,
		MinuteRequests:  g.minute.count,
		HourRequests:    g.hour.count,
		DayRequests:     g.day.count,
		DailySpendUSD:   g.day.usd,
		MonthlySpendUSD: g.month.usd,
		Denied:          g.denied,
	}
}

// String renders the policy for logs
func (g *Governor) String() string {
	p := g.Policy()
	return fmt.Sprintf("preset=%s minute=%d hour=%d day=%d daily_usd=%.2f monthly_usd=%.2f max_tokens=%d free_tier=%t",
		p.Preset, p.MaxRequestsPerMinute, p.MaxRequestsPerHour, p.MaxRequestsPerDay,
		p.DailyLimitUSD, p.MonthlyLimitUSD, p.MaxTokensPerRequest, p.FreeTier)
}

func (g *Governor) rollLocked() {
	now := g.now().UTC()
	g.minute.roll(now.Truncate(time.Minute))
	g.hour.roll(now.Truncate(time.Hour))
	g.day.roll(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	g.month.roll(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))
}
