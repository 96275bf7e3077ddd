// internal/workers/replies/draft-replies/models.go
package draftreplies

import "strings"

// Tones
const (
	ToneProfessional = "professional"
	ToneFriendly     = "friendly"
	ToneGrateful     = "grateful"
	ToneBrief        = "brief"
)

// NormalizeTone maps an empty or unknown tone onto professional.
func NormalizeTone(tone string) string {
	switch t := strings.ToLower(strings.TrimSpace(tone)); t {
	case ToneProfessional, ToneFriendly, ToneGrateful, ToneBrief:
		return t
	default:
		return ToneProfessional
	}
}

// Input is the variable set of a reply-draft job.
type Input struct {
	BusinessID string `json:"businessId"`
	ReviewID   string `json:"reviewId"`
	Tone       string `json:"tone"`
}

type Suggestions struct {
	Option1   string `json:"option1"`
	Option2   string `json:"option2"`
	Tone      string `json:"tone"`
	WordCount [2]int `json:"word_count"`
}

type Output struct {
	ReviewID    string      `json:"reviewId,omitempty"`
	Suggestions Suggestions `json:"suggestions"`
	Fallback    bool        `json:"fallback,omitempty"`
}

// wordCountRange returns the inclusive [min, max] word count of the options.
func wordCountRange(options ...string) [2]int {
	var r [2]int
	for i, o := range options {
		n := len(strings.Fields(o))
		if i == 0 || n < r[0] {
			r[0] = n
		}
		if n > r[1] {
			r[1] = n
		}
	}
	return r
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type draftPair struct {
	Option1 string `json:"option1"`
	Option2 string `json:"option2"`
}
