package domain

import "fmt"

// WorkflowSettings is an immutable snapshot of the admin-owned AI workflow
// settings. A sweep or a scoring call reads it once and uses it throughout.
type WorkflowSettings struct {
	ConfidenceThreshold     float64         `json:"confidence_threshold"`
	ComplexityThreshold     int             `json:"complexity_threshold"`
	MinResolutionScore      int             `json:"min_resolution_score"`
	ArticleApprovalRequired bool            `json:"article_approval_required"`
	AutoLearnEnabled        bool            `json:"auto_learn_enabled"`
	AutoResponseEnabled     bool            `json:"auto_response_enabled"`
	EscalationEnabled       bool            `json:"escalation_enabled"`
	EscalationTeamID        string          `json:"escalation_team_id,omitempty"`
	RateLimit               RateLimitPolicy `json:"rate_limit"`
}

// DefaultWorkflowSettings returns the settings used when no admin row exists
func DefaultWorkflowSettings() WorkflowSettings {
	policy, _ := PresetPolicy(PresetBalanced)
	return WorkflowSettings{
		ConfidenceThreshold:     0.7,
		ComplexityThreshold:     70,
		MinResolutionScore:      60,
		ArticleApprovalRequired: false,
		AutoLearnEnabled:        true,
		AutoResponseEnabled:     false,
		EscalationEnabled:       true,
		RateLimit:               policy,
	}
}

// ValidateWorkflowSettings validates a WorkflowSettings snapshot
func ValidateWorkflowSettings(s WorkflowSettings) error {
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	if s.ComplexityThreshold < 0 || s.ComplexityThreshold > 100 {
		return fmt.Errorf("complexity threshold must be between 0 and 100")
	}
	if s.MinResolutionScore < 0 || s.MinResolutionScore > 100 {
		return fmt.Errorf("min resolution score must be between 0 and 100")
	}
	if err := ValidateRateLimitPolicy(s.RateLimit); err != nil {
		return err
	}
	return nil
}

// TicketScore is the decision engine's verdict on an incoming ticket
type TicketScore struct {
	Confidence         float64        `json:"confidence"`
	Complexity         int            `json:"complexity"`
	KnowledgeRefs      []ArticleMatch `json:"knowledge_refs"`
	RequiresEscalation bool           `json:"requires_escalation"`
	SuggestedTeam      string         `json:"suggested_team,omitempty"`
	ShouldAutoRespond  bool           `json:"should_auto_respond"`
}

// IncomingTicket is a ticket awaiting triage
type IncomingTicket struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
}
