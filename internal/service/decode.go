package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// decodeModelJSON decodes a model response into out. Surrounding markdown
// fences are tolerated; anything else that is not a single JSON object of the
// expected shape is a MalformedResponseError.
func decodeModelJSON(raw string, out any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return domain.NewMalformedResponse("empty response", raw)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(out); err != nil {
		return domain.NewMalformedResponse(fmt.Sprintf("invalid JSON: %v", err), raw)
	}
	if dec.More() {
		return domain.NewMalformedResponse("trailing data after JSON object", raw)
	}
	return nil
}

type extractionResponse struct {
	Patterns *[]domain.ExtractedPattern `json:"patterns"`
}

func parseExtraction(raw, defaultCategory string) ([]domain.ExtractedPattern, error) {
	var resp extractionResponse
	if err := decodeModelJSON(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Patterns == nil {
		return nil, domain.NewMalformedResponse("missing patterns field", raw)
	}

	patterns := *resp.Patterns
	if len(patterns) > maxPatternsPerBatch {
		patterns = patterns[:maxPatternsPerBatch]
	}

	out := make([]domain.ExtractedPattern, 0, len(patterns))
	for i, p := range patterns {
		p.Pattern = strings.TrimSpace(p.Pattern)
		p.Resolution = strings.TrimSpace(p.Resolution)
		p.Category = strings.TrimSpace(p.Category)
		if p.Pattern == "" {
			return nil, domain.NewMalformedResponse(fmt.Sprintf("pattern %d has no description", i), raw)
		}
		if p.Resolution == "" {
			return nil, domain.NewMalformedResponse(fmt.Sprintf("pattern %d has no resolution", i), raw)
		}
		if p.Frequency < 1 || p.Frequency > 10 {
			return nil, domain.NewMalformedResponse(fmt.Sprintf("pattern %d frequency %d out of range 1-10", i, p.Frequency), raw)
		}
		if p.SuccessRate < 0 || p.SuccessRate > 100 {
			return nil, domain.NewMalformedResponse(fmt.Sprintf("pattern %d successRate %d out of range 0-100", i, p.SuccessRate), raw)
		}
		if p.Category == "" {
			p.Category = defaultCategory
		}
		out = append(out, p)
	}
	return out, nil
}

func parseArticleDraft(raw string) (*domain.ArticleDraft, error) {
	var draft domain.ArticleDraft
	if err := decodeModelJSON(raw, &draft); err != nil {
		return nil, err
	}

	draft.Title = strings.TrimSpace(draft.Title)
	draft.Summary = strings.TrimSpace(draft.Summary)
	draft.Category = strings.TrimSpace(draft.Category)
	draft.Difficulty = strings.ToLower(strings.TrimSpace(draft.Difficulty))

	if err := domain.ValidateArticleDraft(&draft); err != nil {
		return nil, domain.NewMalformedResponse(err.Error(), raw)
	}
	return &draft, nil
}
