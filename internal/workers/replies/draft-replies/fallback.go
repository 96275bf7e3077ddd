// internal/workers/replies/draft-replies/fallback.go
package draftreplies

import (
	"strings"

	"review-workers/internal/models"
)

type ratingBand int

const (
	bandNegative ratingBand = iota
	bandMixed
	bandPositive
)

func bandFor(rating int) ratingBand {
	switch {
	case rating <= 2:
		return bandNegative
	case rating == 3:
		return bandMixed
	default:
		return bandPositive
	}
}

// fallbackTemplates are indexed by tone, then rating band. {name} is replaced
// with the reviewer's first name or "there".
var fallbackTemplates = map[string]map[ratingBand][2]string{
	ToneProfessional: {
		bandPositive: {
			"Hello {name}, thank you for your kind review. We are pleased you had a good experience and look forward to serving you again.",
			"Thank you for taking the time to share your feedback, {name}. We appreciate your support and hope to welcome you back soon.",
		},
		bandMixed: {
			"Hello {name}, thank you for your feedback. We are always working to improve and would welcome the chance to make your next visit better.",
			"Thank you for your review, {name}. We appreciate your honest comments and will share them with our team.",
		},
		bandNegative: {
			"Hello {name}, we are sorry your experience did not meet expectations. Please contact us directly so we can make this right.",
			"Thank you for letting us know, {name}. We take this seriously and would appreciate the opportunity to resolve it with you.",
		},
	},
	ToneFriendly: {
		bandPositive: {
			"Hi {name}! Thanks so much for the great review. We loved having you and can't wait to see you again!",
			"Thanks, {name}! Reviews like yours make our day. See you next time!",
		},
		bandMixed: {
			"Hi {name}, thanks for the honest feedback! We'd love another chance to make your visit a great one.",
			"Thanks for stopping by, {name}! We hear you and we're working on it. Hope to see you again soon.",
		},
		bandNegative: {
			"Hi {name}, we're really sorry about your experience. Please reach out to us so we can make it up to you.",
			"Sorry to hear this, {name}. That's not what we want for anyone. Give us a shout and we'll sort it out.",
		},
	},
	ToneGrateful: {
		bandPositive: {
			"Hi {name}, we are truly grateful for your wonderful review. Your support means the world to our whole team.",
			"Thank you so much, {name}! We are grateful customers like you choose us and we appreciate your kind words.",
		},
		bandMixed: {
			"Hi {name}, we are grateful you took the time to share your thoughts. Your feedback helps us get better.",
			"Thank you, {name}, for your thoughtful review. We appreciate you and hope to exceed expectations next time.",
		},
		bandNegative: {
			"Hi {name}, thank you for telling us about your experience. We are grateful for the chance to improve and would like to make it right.",
			"We appreciate your candid feedback, {name}. Please contact us so we can thank you properly and fix this.",
		},
	},
	ToneBrief: {
		bandPositive: {
			"Thanks, {name}! We appreciate it.",
			"Thank you for the kind review, {name}!",
		},
		bandMixed: {
			"Thanks for the feedback, {name}. We'll do better.",
			"Thank you, {name}. We appreciate your input.",
		},
		bandNegative: {
			"Sorry, {name}. Please contact us so we can help.",
			"We apologize, {name}. Let's make this right.",
		},
	},
}

// fallbackSuggestions returns deterministic template replies for review.
func fallbackSuggestions(review *models.Review, tone string) Suggestions {
	tpl := fallbackTemplates[tone][bandFor(review.Rating)]
	name := firstName(review.Author)
	o1 := strings.ReplaceAll(tpl[0], "{name}", name)
	o2 := strings.ReplaceAll(tpl[1], "{name}", name)
	return Suggestions{
		Option1:   o1,
		Option2:   o2,
		Tone:      tone,
		WordCount: wordCountRange(o1, o2),
	}
}

func firstName(author string) string {
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
