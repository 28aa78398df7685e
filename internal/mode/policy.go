package mode

import (
	"fmt"
	"strings"

	"github.com/abhisek/pathway/internal/model"
)

// AnswerPolicy decides which of several answers to the same question is
// authoritative for scoring.
type AnswerPolicy string

const (
	// FirstWins scores the earliest answer; later ones are kept but ignored.
	FirstWins AnswerPolicy = "first-wins"

	// LastWins scores the most recent answer.
	LastWins AnswerPolicy = "last-wins"
)

// DefaultAnswerPolicy is used when none is configured.
const DefaultAnswerPolicy = FirstWins

// ParseAnswerPolicy parses a policy name. Empty selects the default.
func ParseAnswerPolicy(s string) (AnswerPolicy, error) {
	switch p := AnswerPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultAnswerPolicy, nil
	case FirstWins, LastWins:
		return p, nil
	}
	return "", fmt.Errorf("unknown answer policy %q (want %s or %s)", s, FirstWins, LastWins)
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (p *AnswerPolicy) UnmarshalText(b []byte) error {
	v, err := ParseAnswerPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Answers folds the ordered log into the authoritative answer per question.
func (p AnswerPolicy) Answers(log []model.Interaction) map[string]model.Interaction {
	out := make(map[string]model.Interaction)
	for _, in := range log {
		if in.EventType != model.EventAnswer {
			continue
		}
		if _, seen := out[in.Payload.QuestionID]; seen && p != LastWins {
			continue
		}
		out[in.Payload.QuestionID] = in
	}
	return out
}

// NormalizeAnswer trims surrounding whitespace from a submitted answer.
func NormalizeAnswer(s string) string {
	return strings.TrimSpace(s)
}

// CheckAnswer reports whether answer matches the question's key after
// normalization. Matching is exact otherwise.
func CheckAnswer(q model.Question, answer string) bool {
	return NormalizeAnswer(answer) == NormalizeAnswer(q.CorrectAnswer)
}
