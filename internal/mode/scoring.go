package mode

import (
	"slices"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

// scoreQuestions scores a task one point per question, using the answer
// the policy selects for each.
func scoreQuestions(t *model.Task, policy AnswerPolicy) (*TaskScore, error) {
	bank := t.Content.QuestionBank()
	if len(bank) == 0 {
		return nil, apperr.Evaluation("task "+t.ID+" has no scorable questions", nil)
	}
	answers := policy.Answers(t.Interactions)

	domains := make(map[string]model.Tally)
	comps := make(map[string]model.Tally)
	out := &TaskScore{MaxScore: float64(len(bank))}
	for _, q := range bank {
		in, answered := answers[q.ID]
		tally := model.Tally{Total: 1}
		if answered && CheckAnswer(q, in.Payload.Answer) {
			tally.Correct = 1
			out.Score++
		}

		domain := q.Domain
		if domain == "" {
			domain = t.Content.PrimaryDomain()
		}
		domains[domain] = domains[domain].Add(tally)

		codes := slices.Clone(q.Competencies)
		if answered {
			codes = append(codes, in.Payload.Competencies...)
		}
		slices.Sort(codes)
		for _, c := range slices.Compact(codes) {
			comps[c] = comps[c].Add(tally)
		}
	}

	out.DomainScores = make(map[string]float64, len(domains))
	for d, tally := range domains {
		out.DomainScores[d] = tally.Ratio() * 100
	}
	if len(comps) > 0 {
		out.Competencies = comps
	}
	return out, nil
}

// answeredAll reports whether every question in the bank has an answer.
func answeredAll(t *model.Task) bool {
	bank := t.Content.QuestionBank()
	if len(bank) == 0 {
		return false
	}
	seen := make(map[string]bool)
	for _, in := range t.Interactions {
		if in.EventType == model.EventAnswer {
			seen[in.Payload.QuestionID] = true
		}
	}
	for _, q := range bank {
		if !seen[q.ID] {
			return false
		}
	}
	return true
}

// countEvents counts interactions of the given type.
func countEvents(t *model.Task, et model.EventType) int {
	n := 0
	for _, in := range t.Interactions {
		if in.EventType == et {
			n++
		}
	}
	return n
}

// metaNumber reads a numeric metadata value. Values decoded from JSON come
// back as float64.
func metaNumber(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// weighted applies a scenario's domain weight; missing domains weigh 1.
func weighted(sc *model.Scenario, domain string, raw float64) float64 {
	if w, ok := sc.ModeData.DomainWeights[domain]; ok && w > 0 {
		return raw * w
	}
	return raw
}
