package mode

import (
	"math"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

const (
	defaultMinTurns          = 3
	defaultExploratoryPoints = 5
)

// Exploratory is the open-ended dialogue mode. Tasks may be visited in any
// order and complete after enough turns of conversation.
type Exploratory struct {
	sc *model.Scenario
}

// NewExploratory binds the exploratory rules to sc.
func NewExploratory(sc *model.Scenario) Strategy {
	return &Exploratory{sc: sc}
}

func (s *Exploratory) Mode() model.Mode          { return model.ModeExploratory }
func (s *Exploratory) Scenario() *model.Scenario { return s.sc }
func (s *Exploratory) Sequential() bool          { return false }

func (s *Exploratory) Initialize(StartOptions) (*Plan, error) {
	if len(s.sc.TaskTemplates) == 0 {
		return nil, apperr.Validation("scenario %q has no tasks", s.sc.ID)
	}
	order := make([]int, len(s.sc.TaskTemplates))
	for i := range order {
		order[i] = i
	}
	return &Plan{TaskOrder: order, Metadata: map[string]any{MetaPoints: 0, MetaTurns: 0}}, nil
}

func minTurns(t *model.Task) int {
	if t.Content.MinTurns > 0 {
		return t.Content.MinTurns
	}
	return defaultMinTurns
}

func (s *Exploratory) IsTaskComplete(t *model.Task) bool {
	return countEvents(t, model.EventMessage) >= minTurns(t)
}

// ScoreTask rates engagement out of 100. Reaching the minimum number of
// turns earns half; twice the minimum earns full marks. Each hint costs
// five points.
func (s *Exploratory) ScoreTask(t *model.Task, _ AnswerPolicy) (*TaskScore, error) {
	turns := countEvents(t, model.EventMessage)
	hints := countEvents(t, model.EventHint)

	engagement := math.Min(1, float64(turns)/float64(2*minTurns(t))) * 100
	engagement = math.Max(0, engagement-5*float64(hints))

	out := &TaskScore{
		Score:    engagement,
		MaxScore: 100,
		Extra:    map[string]any{MetaTurns: turns, "hints": hints, "engagement": engagement},
	}
	s.fillDomains(t, out)
	return out, nil
}

// AdjustScore blends engagement evenly with the analyst's quality rating.
func (s *Exploratory) AdjustScore(ts *TaskScore, fb *model.Feedback) {
	if fb == nil || fb.Quality == nil {
		return
	}
	q := math.Max(0, math.Min(1, *fb.Quality))
	ts.Score = 0.5*ts.Score + 0.5*q*100
	ts.Extra["quality"] = q
	for d := range ts.DomainScores {
		ts.DomainScores[d] = ts.Percentage()
	}
}

func (s *Exploratory) fillDomains(t *model.Task, ts *TaskScore) {
	domains := t.Content.Domains
	if len(domains) == 0 {
		domains = []string{t.Content.PrimaryDomain()}
	}
	ts.DomainScores = make(map[string]float64, len(domains))
	for _, d := range domains {
		ts.DomainScores[d] = ts.Percentage()
	}
}

// WeightDomain leaves exploratory domains unweighted.
func (s *Exploratory) WeightDomain(_ string, raw float64) float64 {
	return raw
}

// OnTaskComplete awards reflection points and counts turns.
func (s *Exploratory) OnTaskComplete(p *model.Program, _ *model.Task, ts *TaskScore) map[string]any {
	per := s.sc.ModeData.Rewards.PointsPerTask
	if per <= 0 {
		per = defaultExploratoryPoints
	}
	return map[string]any{
		MetaPoints: metaNumber(p.Metadata, MetaPoints) + float64(per),
		MetaTurns:  metaNumber(p.Metadata, MetaTurns) + metaNumber(ts.Extra, MetaTurns),
	}
}

func (s *Exploratory) OnProgramComplete(p *model.Program, _ Aggregate) map[string]any {
	return map[string]any{
		MetaPoints: metaNumber(p.Metadata, MetaPoints) + float64(s.sc.ModeData.Rewards.CompletionBonus),
	}
}
