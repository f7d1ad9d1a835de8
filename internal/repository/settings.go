package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// SettingsRepository stores the single row of admin workflow settings
type SettingsRepository struct {
	db dbtx
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: pool}
}

func (r *SettingsRepository) Get(ctx context.Context) (*domain.WorkflowSettings, error) {
	var s domain.WorkflowSettings
	var teamID *string
	err := r.db.QueryRow(ctx,
		`SELECT confidence_threshold, complexity_threshold, min_resolution_score, article_approval_required,
		        auto_learn_enabled, auto_response_enabled, escalation_enabled, escalation_team_id, rate_limit
		 FROM ai_workflow_settings WHERE id = 1`,
	).Scan(&s.ConfidenceThreshold, &s.ComplexityThreshold, &s.MinResolutionScore, &s.ArticleApprovalRequired,
		&s.AutoLearnEnabled, &s.AutoResponseEnabled, &s.EscalationEnabled, &teamID, &s.RateLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, err
	}
	s.EscalationTeamID = derefString(teamID)
	return &s, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s domain.WorkflowSettings) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_workflow_settings (id, confidence_threshold, complexity_threshold, min_resolution_score,
		     article_approval_required, auto_learn_enabled, auto_response_enabled, escalation_enabled,
		     escalation_team_id, rate_limit, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (id) DO UPDATE SET
		     confidence_threshold = EXCLUDED.confidence_threshold,
		     complexity_threshold = EXCLUDED.complexity_threshold,
		     min_resolution_score = EXCLUDED.min_resolution_score,
		     article_approval_required = EXCLUDED.article_approval_required,
		     auto_learn_enabled = EXCLUDED.auto_learn_enabled,
		     auto_response_enabled = EXCLUDED.auto_response_enabled,
		     escalation_enabled = EXCLUDED.escalation_enabled,
		     escalation_team_id = EXCLUDED.escalation_team_id,
		     rate_limit = EXCLUDED.rate_limit,
		     updated_at = now()`,
		s.ConfidenceThreshold, s.ComplexityThreshold, s.MinResolutionScore, s.ArticleApprovalRequired,
		s.AutoLearnEnabled, s.AutoResponseEnabled, s.EscalationEnabled, nullableString(s.EscalationTeamID), s.RateLimit,
	)
	return err
}
