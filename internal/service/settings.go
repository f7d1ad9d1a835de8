package service

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/governor"
)

// SettingsService reads and writes the admin-owned workflow settings
type SettingsService struct {
	repo     SettingsRepository
	defaults domain.WorkflowSettings
	freeTier bool
}

// NewSettingsService creates a SettingsService. defaults is used until an
// administrator saves settings.
func NewSettingsService(repo SettingsRepository, defaults domain.WorkflowSettings) *SettingsService {
	return &SettingsService{repo: repo, defaults: defaults}
}

// WithFreeTier pins the free tier on for every snapshot when enabled,
// whatever the stored settings say
func (s *SettingsService) WithFreeTier(enabled bool) *SettingsService {
	s.freeTier = enabled
	return s
}

// Snapshot returns the current settings
func (s *SettingsService) Snapshot(ctx context.Context) (domain.WorkflowSettings, error) {
	settings := s.defaults
	stored, err := s.repo.Get(ctx)
	switch {
	case err == nil:
		settings = *stored
	case !domain.IsNotFound(err):
		return domain.WorkflowSettings{}, fmt.Errorf("load workflow settings: %w", err)
	}

	if s.freeTier && !settings.RateLimit.FreeTier {
		settings.RateLimit = domain.FreeTierPolicy()
	}
	return settings, nil
}

// Save validates and stores settings
func (s *SettingsService) Save(ctx context.Context, settings domain.WorkflowSettings) error {
	if err := domain.ValidateWorkflowSettings(settings); err != nil {
		return domain.ValidationError(err.Error(), err)
	}
	return s.repo.Save(ctx, settings)
}

// PolicyGovernor is the administrative surface of the rate and cost governor
type PolicyGovernor interface {
	Policy() domain.RateLimitPolicy
	ApplyPreset(preset domain.Preset) error
	UpdateLimits(u governor.LimitsUpdate) error
	SetFreeTier(enabled bool)
	Usage() governor.Usage
}

// GovernorService applies administrator policy changes to the governor and
// persists them with the workflow settings, so the next sweep keeps them
type GovernorService struct {
	governor PolicyGovernor
	settings *SettingsService
}

// NewGovernorService creates a GovernorService
func NewGovernorService(g PolicyGovernor, settings *SettingsService) *GovernorService {
	return &GovernorService{governor: g, settings: settings}
}

// Usage returns the governor's current windows and spend
func (s *GovernorService) Usage() governor.Usage {
	return s.governor.Usage()
}

// ApplyPreset switches to a named preset
func (s *GovernorService) ApplyPreset(ctx context.Context, preset domain.Preset) (domain.RateLimitPolicy, error) {
	if err := s.governor.ApplyPreset(preset); err != nil {
		return domain.RateLimitPolicy{}, err
	}
	return s.persist(ctx)
}

// UpdateLimits changes individual limits, moving the policy to custom
func (s *GovernorService) UpdateLimits(ctx context.Context, u governor.LimitsUpdate) (domain.RateLimitPolicy, error) {
	if err := s.governor.UpdateLimits(u); err != nil {
		return domain.RateLimitPolicy{}, err
	}
	return s.persist(ctx)
}

// SetFreeTier switches the free tier on or off. It cannot be switched off
// while the settings pin it on.
func (s *GovernorService) SetFreeTier(ctx context.Context, enabled bool) (domain.RateLimitPolicy, error) {
	if !enabled && s.settings.freeTier {
		return s.governor.Policy(), domain.ErrFreeTierPinned
	}
	s.governor.SetFreeTier(enabled)
	return s.persist(ctx)
}

func (s *GovernorService) persist(ctx context.Context) (domain.RateLimitPolicy, error) {
	policy := s.governor.Policy()

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return policy, err
	}
	settings.RateLimit = policy
	if err := s.settings.Save(ctx, settings); err != nil {
		return policy, fmt.Errorf("persist rate limit policy: %w", err)
	}

	log.Printf("governor: policy changed to preset=%s free_tier=%t", policy.Preset, policy.FreeTier)
	return policy, nil
}
