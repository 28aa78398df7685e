package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/text/language"

	"github.com/abhisek/pathway/internal/model"
)

// Prepare fills defaults, canonicalizes language tags and validates sc.
func Prepare(sc *model.Scenario) error {
	if sc.Status == "" {
		sc.Status = model.ScenarioActive
	}
	if err := normalizeLanguages(sc); err != nil {
		return fmt.Errorf("scenario %q: %w", sc.ID, err)
	}
	for i := range sc.TaskTemplates {
		t := &sc.TaskTemplates[i]
		if t.Type == "" {
			t.Type = model.TaskQuestion
			if len(t.QuestionBank()) == 0 {
				t.Type = model.TaskConversation
			}
		}
	}
	return Validate(sc)
}

// Validate checks the structural rules a scenario must satisfy. It returns
// every violation found, joined.
func Validate(sc *model.Scenario) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if sc.ID == "" {
		add("id is required")
	}
	if !sc.Mode.Valid() {
		add("unknown mode %q", sc.Mode)
	}
	if sc.Status != model.ScenarioActive && sc.Status != model.ScenarioArchived {
		add("unknown status %q", sc.Status)
	}
	if len(sc.Title) == 0 {
		add("title is required")
	}
	if t := sc.ModeData.PassingThreshold; t < 0 || t > 100 {
		add("passing_threshold %v is outside 0-100", t)
	}
	for d, w := range sc.ModeData.DomainWeights {
		if w < 0 {
			add("domain %q has negative weight %v", d, w)
		}
	}
	for code, kind := range sc.ModeData.Competencies {
		if !kind.Valid() {
			add("competency %q has unknown kind %q", code, kind)
		}
	}

	needsBank := sc.Mode == model.ModeStructured || sc.Mode == model.ModeAssessment
	keys := make(map[string]bool)
	for i, t := range sc.TaskTemplates {
		if t.Key == "" {
			add("task %d: key is required", i)
		} else if keys[t.Key] {
			add("task %d: duplicate key %q", i, t.Key)
		}
		keys[t.Key] = true

		bank := t.QuestionBank()
		if needsBank && len(bank) == 0 {
			add("task %q: %s tasks need questions or a scoring_key", t.Key, sc.Mode)
		}
		qids := make(map[string]bool)
		for _, q := range bank {
			if q.ID == "" {
				add("task %q: question id is required", t.Key)
			} else if qids[q.ID] {
				add("task %q: duplicate question id %q", t.Key, q.ID)
			}
			qids[q.ID] = true
			if q.CorrectAnswer == "" {
				add("task %q question %q: answer is required", t.Key, q.ID)
			}
			for _, c := range q.Competencies {
				if _, ok := sc.ModeData.Competencies[c]; !ok && len(sc.ModeData.Competencies) > 0 {
					add("task %q question %q: undeclared competency %q", t.Key, q.ID, c)
				}
			}
		}
		if t.MinTurns < 0 || t.MaxAttempts < 0 {
			add("task %q: min_turns and max_attempts must not be negative", t.Key)
		}
	}
	return errors.Join(errs...)
}

func normalizeLanguages(sc *model.Scenario) error {
	var err error
	if sc.Title, err = canonicalText(sc.Title); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	if sc.Description, err = canonicalText(sc.Description); err != nil {
		return fmt.Errorf("description: %w", err)
	}
	if sc.Objectives != nil {
		objectives := make(map[string][]string, len(sc.Objectives))
		for k, v := range sc.Objectives {
			tag, err := canonicalTag(k)
			if err != nil {
				return fmt.Errorf("objectives: %w", err)
			}
			objectives[tag] = v
		}
		sc.Objectives = objectives
	}
	for i := range sc.TaskTemplates {
		t := &sc.TaskTemplates[i]
		if t.Title, err = canonicalText(t.Title); err != nil {
			return fmt.Errorf("task %q title: %w", t.Key, err)
		}
		if t.Instructions, err = canonicalText(t.Instructions); err != nil {
			return fmt.Errorf("task %q instructions: %w", t.Key, err)
		}
		for j := range t.Questions {
			q := &t.Questions[j]
			if q.Prompt, err = canonicalText(q.Prompt); err != nil {
				return fmt.Errorf("task %q question %q: %w", t.Key, q.ID, err)
			}
		}
	}
	return nil
}

func canonicalText(in model.LocalizedText) (model.LocalizedText, error) {
	if in == nil {
		return nil, nil
	}
	out := make(model.LocalizedText, len(in))
	for k, v := range in {
		tag, err := canonicalTag(k)
		if err != nil {
			return nil, err
		}
		if _, dup := out[tag]; dup {
			return nil, fmt.Errorf("language %q given twice", tag)
		}
		out[tag] = v
	}
	return out, nil
}

func canonicalTag(s string) (string, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q: %w", s, err)
	}
	return tag.String(), nil
}

// MatchLanguage picks the best available language of text for the
// preferred tag, falling back to English.
func MatchLanguage(text model.LocalizedText, preferred string) string {
	if len(text) == 0 {
		return model.DefaultLanguage
	}
	if _, ok := text[preferred]; ok {
		return preferred
	}
	want, err := language.Parse(preferred)
	if err != nil {
		return model.DefaultLanguage
	}
	var (
		avail []language.Tag
		names []string
	)
	for _, k := range slices.Sorted(maps.Keys(text)) {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		avail = append(avail, tag)
		names = append(names, k)
	}
	if len(avail) == 0 {
		return model.DefaultLanguage
	}
	_, idx, conf := language.NewMatcher(avail).Match(want)
	if conf == language.No {
		return model.DefaultLanguage
	}
	return names[idx]
}
