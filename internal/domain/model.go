package domain

// CompletionRequest is one prompt sent to the completion model
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
	JSON        bool // ask the provider for a JSON object response
}

// EstimateTokens approximates the token count of text at four characters per
// token, the same ratio used for cost accounting
func EstimateTokens(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}
