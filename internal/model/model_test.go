package model

import (
	"testing"
	"time"
)

func TestLocalizedTextGet(t *testing.T) {
	text := LocalizedText{"en": "Fractions", "de": "Brüche", "ar": "كسور"}

	tests := []struct {
		lang string
		want string
	}{
		{"de", "Brüche"},
		{"fr", "Fractions"},
		{"en", "Fractions"},
	}
	for _, tt := range tests {
		if got := text.Get(tt.lang); got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}

	noEnglish := LocalizedText{"fr": "Bonjour", "de": "Hallo"}
	if got := noEnglish.Get("es"); got != "Hallo" {
		t.Errorf("fallback = %q, want first sorted language", got)
	}
	if got := LocalizedText(nil).Get("en"); got != "" {
		t.Errorf("nil text = %q, want empty", got)
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskPending, TaskActive, true},
		{TaskActive, TaskCompleted, true},
		{TaskPending, TaskCompleted, false},
		{TaskCompleted, TaskActive, false},
		{TaskActive, TaskPending, false},
		{TaskCompleted, TaskCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestQuestionBankFromScoringKey(t *testing.T) {
	tmpl := TaskTemplate{Key: "q1", ScoringKey: "42", Domains: []string{"arithmetic"}}

	bank := tmpl.QuestionBank()
	if len(bank) != 1 {
		t.Fatalf("bank size = %d, want 1", len(bank))
	}
	if bank[0].ID != "q1" || bank[0].CorrectAnswer != "42" || bank[0].Domain != "arithmetic" {
		t.Errorf("implicit question = %+v", bank[0])
	}

	if got := (TaskTemplate{Key: "chat"}).QuestionBank(); got != nil {
		t.Errorf("conversation bank = %v, want nil", got)
	}
	if d := (TaskTemplate{}).PrimaryDomain(); d != "general" {
		t.Errorf("PrimaryDomain = %q, want general", d)
	}
}

func TestTaskTemplateCloneIsDeep(t *testing.T) {
	orig := TaskTemplate{
		Key:     "t",
		Title:   LocalizedText{"en": "Title"},
		Domains: []string{"a"},
		Questions: []Question{{
			ID:           "q",
			Options:      []string{"x", "y"},
			Competencies: []string{"K1"},
		}},
	}

	c := orig.Clone()
	c.Title["en"] = "changed"
	c.Domains[0] = "b"
	c.Questions[0].Options[0] = "z"
	c.Questions[0].Competencies[0] = "S1"

	if orig.Title["en"] != "Title" || orig.Domains[0] != "a" {
		t.Error("clone shares title or domains with the original")
	}
	if orig.Questions[0].Options[0] != "x" || orig.Questions[0].Competencies[0] != "K1" {
		t.Error("clone shares question slices with the original")
	}
}

func TestScenarioCloneIsDeep(t *testing.T) {
	orig := &Scenario{
		ID:            "s",
		Title:         LocalizedText{"en": "Title"},
		Objectives:    map[string][]string{"en": {"one"}},
		TaskTemplates: []TaskTemplate{{Key: "t", Domains: []string{"a"}}},
		ModeData: ModeData{
			DomainWeights: map[string]float64{"a": 1},
			Competencies:  map[string]CompetencyKind{"K1": Knowledge},
		},
	}

	c := orig.Clone()
	c.Title["en"] = "changed"
	c.Objectives["en"][0] = "two"
	c.TaskTemplates[0].Domains[0] = "b"
	c.ModeData.DomainWeights["a"] = 2
	c.ModeData.Competencies["K1"] = Skill

	if orig.Title["en"] != "Title" || orig.Objectives["en"][0] != "one" {
		t.Error("clone shares localized maps with the original")
	}
	if orig.TaskTemplates[0].Domains[0] != "a" {
		t.Error("clone shares task templates with the original")
	}
	if orig.ModeData.DomainWeights["a"] != 1 || orig.ModeData.Competencies["K1"] != Knowledge {
		t.Error("clone shares mode data with the original")
	}
}

func TestProgramTouchIsMonotonic(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	p := &Program{LastActivityAt: t0, UpdatedAt: t0}

	p.Touch(t0.Add(-time.Minute))
	if !p.LastActivityAt.Equal(t0) {
		t.Errorf("LastActivityAt moved back to %v", p.LastActivityAt)
	}

	p.Touch(t0.Add(time.Minute))
	if !p.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v, want advanced", p.UpdatedAt)
	}
}

func TestTallyRatio(t *testing.T) {
	if r := (Tally{}).Ratio(); r != 0 {
		t.Errorf("empty ratio = %v", r)
	}
	sum := Tally{Correct: 1, Total: 2}.Add(Tally{Correct: 2, Total: 2})
	if sum.Ratio() != 0.75 {
		t.Errorf("ratio = %v, want 0.75", sum.Ratio())
	}
}
