package mode

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/abhisek/pathway/internal/apperr"
	"github.com/abhisek/pathway/internal/model"
)

const defaultPassingThreshold = 60.0

// Assessment is the timed test mode. Tasks may be answered in any order,
// optionally shuffled, and the program passes against a threshold.
type Assessment struct {
	sc *model.Scenario
}

var _ AttemptGuard = (*Assessment)(nil)

// NewAssessment binds the assessment rules to sc.
func NewAssessment(sc *model.Scenario) Strategy {
	return &Assessment{sc: sc}
}

func (s *Assessment) Mode() model.Mode          { return model.ModeAssessment }
func (s *Assessment) Scenario() *model.Scenario { return s.sc }
func (s *Assessment) Sequential() bool          { return false }

// Threshold returns the passing percentage.
func (s *Assessment) Threshold() float64 {
	if t := s.sc.ModeData.PassingThreshold; t > 0 {
		return t
	}
	return defaultPassingThreshold
}

func (s *Assessment) Initialize(opts StartOptions) (*Plan, error) {
	n := len(s.sc.TaskTemplates)
	if n == 0 {
		return nil, apperr.Validation("scenario %q has no tasks", s.sc.ID)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	meta := map[string]any{MetaPassingThreshold: s.Threshold()}
	if s.sc.ModeData.ShuffleTasks {
		seed := opts.Seed
		if seed == 0 {
			seed = uint64(opts.Now.UnixNano())
		}
		rng := rand.New(rand.NewPCG(seed, seed>>1|1))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		meta[MetaShuffleSeed] = strconv.FormatUint(seed, 10)
	}
	if limit := s.sc.ModeData.TimeLimit; limit > 0 {
		meta[MetaDeadline] = opts.Now.Add(limit).UTC().Format(time.RFC3339)
	}
	return &Plan{TaskOrder: order, Metadata: meta}, nil
}

// CheckAttempt rejects attempts after the time limit has run out.
func (s *Assessment) CheckAttempt(p *model.Program, _ *model.Task, now time.Time) error {
	limit := s.sc.ModeData.TimeLimit
	if limit <= 0 || !now.After(p.StartedAt.Add(limit)) {
		return nil
	}
	err := apperr.InvalidState("program", p.ID, string(p.Status), "answer past the time limit of")
	err.Metadata["deadline"] = p.StartedAt.Add(limit).UTC().Format(time.RFC3339)
	return err
}

// IsTaskComplete holds once every question has at least one answer.
func (s *Assessment) IsTaskComplete(t *model.Task) bool {
	return answeredAll(t)
}

func (s *Assessment) ScoreTask(t *model.Task, policy AnswerPolicy) (*TaskScore, error) {
	return scoreQuestions(t, policy)
}

// AdjustScore keeps the computed score; assessments are scored on answers
// alone.
func (s *Assessment) AdjustScore(*TaskScore, *model.Feedback) {}

func (s *Assessment) WeightDomain(domain string, raw float64) float64 {
	return weighted(s.sc, domain, raw)
}

func (s *Assessment) OnTaskComplete(*model.Program, *model.Task, *TaskScore) map[string]any {
	return nil
}

// OnProgramComplete records pass/fail and credential eligibility. A
// credential requires a pass within the time limit.
func (s *Assessment) OnProgramComplete(p *model.Program, agg Aggregate) map[string]any {
	passed := agg.Percentage >= s.Threshold()
	inTime := true
	if limit := s.sc.ModeData.TimeLimit; limit > 0 {
		inTime = !p.LastActivityAt.After(p.StartedAt.Add(limit))
	}
	return map[string]any{
		MetaPassed:             passed,
		MetaPassingThreshold:   s.Threshold(),
		MetaCredentialEligible: passed && inTime,
	}
}
