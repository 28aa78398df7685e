package mode

import (
	"math"
	"slices"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

// Program metadata keys written by the strategies.
const (
	MetaPoints             = "points"
	MetaBadge              = "badge"
	MetaPassed             = "passed"
	MetaPassingThreshold   = "passing_threshold"
	MetaCredentialEligible = "credential_eligible"
	MetaDeadline           = "deadline"
	MetaShuffleSeed        = "shuffle_seed"
	MetaTurns              = "turns"
)

const (
	defaultMaxAttempts     = 3
	defaultStructuredPoint = 10
)

// Structured is the problem-solving mode: tasks are worked in order and each
// question may be retried until solved or out of attempts.
type Structured struct {
	sc *model.Scenario
}

// NewStructured binds the structured rules to sc.
func NewStructured(sc *model.Scenario) Strategy {
	return &Structured{sc: sc}
}

func (s *Structured) Mode() model.Mode          { return model.ModeStructured }
func (s *Structured) Scenario() *model.Scenario { return s.sc }
func (s *Structured) Sequential() bool          { return true }

func (s *Structured) Initialize(StartOptions) (*Plan, error) {
	if len(s.sc.TaskTemplates) == 0 {
		return nil, apperr.Validation("scenario %q has no tasks", s.sc.ID)
	}
	order := make([]int, len(s.sc.TaskTemplates))
	for i := range order {
		order[i] = i
	}
	return &Plan{TaskOrder: order, Metadata: map[string]any{MetaPoints: 0}}, nil
}

// IsTaskComplete holds once every question is solved or has used up its
// attempts.
func (s *Structured) IsTaskComplete(t *model.Task) bool {
	bank := t.Content.QuestionBank()
	if len(bank) == 0 {
		return false
	}
	limit := t.Content.MaxAttempts
	if limit <= 0 {
		limit = defaultMaxAttempts
	}

	attempts := make(map[string]int)
	solved := make(map[string]bool)
	for _, in := range t.Interactions {
		if in.EventType != model.EventAnswer {
			continue
		}
		attempts[in.Payload.QuestionID]++
		if q, ok := t.Content.FindQuestion(in.Payload.QuestionID); ok && CheckAnswer(q, in.Payload.Answer) {
			solved[q.ID] = true
		}
	}
	return !slices.ContainsFunc(bank, func(q model.Question) bool {
		return !solved[q.ID] && attempts[q.ID] < limit
	})
}

func (s *Structured) ScoreTask(t *model.Task, policy AnswerPolicy) (*TaskScore, error) {
	out, err := scoreQuestions(t, policy)
	if err != nil {
		return nil, err
	}
	out.Extra = map[string]any{"hints": countEvents(t, model.EventHint)}
	return out, nil
}

// AdjustScore keeps the computed score; feedback is informational here.
func (s *Structured) AdjustScore(*TaskScore, *model.Feedback) {}

func (s *Structured) WeightDomain(domain string, raw float64) float64 {
	return weighted(s.sc, domain, raw)
}

// OnTaskComplete awards points in proportion to the task percentage.
func (s *Structured) OnTaskComplete(p *model.Program, _ *model.Task, ts *TaskScore) map[string]any {
	per := s.sc.ModeData.Rewards.PointsPerTask
	if per <= 0 {
		per = defaultStructuredPoint
	}
	earned := math.Round(float64(per) * ts.Percentage() / 100)
	return map[string]any{MetaPoints: metaNumber(p.Metadata, MetaPoints) + earned}
}

func (s *Structured) OnProgramComplete(p *model.Program, agg Aggregate) map[string]any {
	rw := s.sc.ModeData.Rewards
	points := metaNumber(p.Metadata, MetaPoints) + float64(rw.CompletionBonus)
	if agg.MaxScore > 0 && agg.Score == agg.MaxScore {
		points += float64(rw.PerfectBonus)
	}
	return map[string]any{
		MetaPoints: points,
		MetaBadge:  string(AccuracyRarity(agg.Percentage / 100)),
	}
}
