// Package report renders programs and evaluations for the terminal.
package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/pathway/internal/engine"
	"github.com/abhisek/pathway/internal/lifecycle"
	"github.com/abhisek/pathway/internal/mode"
	"github.com/abhisek/pathway/internal/model"
	"github.com/abhisek/pathway/internal/ui/theme"
)

const timeFormat = "2006-01-02 15:04"

// Renderer renders reports. Plain output carries no styling.
type Renderer struct {
	Plain bool
	Width int
}

func (r Renderer) style(s lipgloss.Style, text string) string {
	if r.Plain {
		return text
	}
	return s.Render(text)
}

func (r Renderer) width() int {
	if r.Width <= 0 {
		return 60
	}
	return r.Width
}

// Status renders one program with its tasks and outcome.
func (r Renderer) Status(rep *engine.Report) string {
	p := rep.Program
	lang := lifecycle.Language(p)

	title := p.ScenarioID
	if rep.Scenario != nil {
		if t := rep.Scenario.Title.Get(lang); t != "" {
			title = t
		}
	}

	var b strings.Builder
	b.WriteString(r.style(theme.Title, title) + "\n")
	fmt.Fprintf(&b, "%s %s  %s %s  %s %s\n",
		r.style(theme.Label, "mode"), p.Mode,
		r.style(theme.Label, "status"), r.style(theme.Status(string(p.Status)), string(p.Status)),
		r.style(theme.Label, "started"), p.StartedAt.Local().Format(timeFormat))
	fmt.Fprintf(&b, "%s %s\n", r.style(theme.Label, "program"), p.ID)

	done := 0.0
	if p.TotalTaskCount > 0 {
		done = float64(p.CompletedTaskCount) / float64(p.TotalTaskCount)
	}
	b.WriteString("\n" + r.bar(fmt.Sprintf("%d/%d tasks", p.CompletedTaskCount, p.TotalTaskCount), done) + "\n\n")

	b.WriteString(r.style(theme.Heading, "Tasks") + "\n")
	for _, t := range rep.Tasks {
		marker := " "
		if p.IsActive() && t.TaskIndex == p.CurrentTaskIndex {
			marker = ">"
		}
		name := t.Content.Title.Get(lang)
		if name == "" {
			name = t.Content.Key
		}
		score := ""
		if ev, ok := rep.Evaluations[t.ID]; ok {
			score = fmt.Sprintf("%.1f / %.1f", ev.Score, ev.MaxScore)
		}
		fmt.Fprintf(&b, "%s %d. %-28s %s %s\n",
			marker, t.TaskIndex+1, truncate(name, 28),
			r.style(theme.Status(string(t.Status)), fmt.Sprintf("%-10s", t.Status)), score)
		fmt.Fprintf(&b, "     %s\n", r.style(theme.Hint, t.ID))
	}

	if rep.Summary != nil {
		b.WriteString("\n" + r.summary(rep.Summary, p) + "\n")
	}
	return b.String()
}

func (r Renderer) summary(ev *model.Evaluation, p *model.Program) string {
	var b strings.Builder
	b.WriteString(r.style(theme.Heading, "Outcome") + "\n")
	fmt.Fprintf(&b, "%s %.1f / %.1f (%.0f%%)  %s\n",
		r.style(theme.Label, "score"), ev.Score, ev.MaxScore, ev.Percentage(),
		r.style(theme.Performance(ev.Metadata.Performance), string(ev.Metadata.Performance)))

	for _, d := range slices.Sorted(maps.Keys(ev.DomainScores)) {
		b.WriteString(r.bar(d, ev.DomainScores[d]/100) + "\n")
	}
	for _, k := range []model.CompetencyKind{model.Knowledge, model.Skill, model.Attitude} {
		if v, ok := ev.Metadata.KSA[k]; ok {
			b.WriteString(r.bar(string(k), v/100) + "\n")
		}
	}

	var extras []string
	if v, ok := p.Metadata[mode.MetaPoints]; ok {
		extras = append(extras, fmt.Sprintf("points %v", v))
	}
	if v, ok := p.Metadata[mode.MetaBadge].(string); ok {
		extras = append(extras, "badge "+mode.Rarity(v).DisplayName())
	}
	if v, ok := p.Metadata[mode.MetaPassed]; ok {
		if passed, _ := v.(bool); passed {
			extras = append(extras, "passed")
		} else {
			extras = append(extras, "not passed")
		}
	}
	if len(extras) > 0 {
		b.WriteString(r.style(theme.Hint, strings.Join(extras, " · ")) + "\n")
	}
	if ev.Feedback != nil && ev.Feedback.Summary != "" {
		b.WriteString(ev.Feedback.Summary + "\n")
	}

	if r.Plain {
		return b.String()
	}
	return theme.Card.Render(strings.TrimRight(b.String(), "\n"))
}

// Programs renders a program list.
func (r Renderer) Programs(list []*model.Program) string {
	if len(list) == 0 {
		return "No programs found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-20s  %-12s  %-10s  %-6s  %s\n",
		"ID", "Scenario", "Mode", "Status", "Tasks", "Started")
	b.WriteString(strings.Repeat("─", 104) + "\n")
	for _, p := range list {
		fmt.Fprintf(&b, "%-36s  %-20s  %-12s  %s  %-6s  %s\n",
			p.ID, truncate(p.ScenarioID, 20), p.Mode,
			r.style(theme.Status(string(p.Status)), fmt.Sprintf("%-10s", p.Status)),
			fmt.Sprintf("%d/%d", p.CompletedTaskCount, p.TotalTaskCount),
			p.StartedAt.Local().Format(timeFormat))
	}
	return b.String()
}

// Evaluation renders a single task or program evaluation.
func (r Renderer) Evaluation(ev *model.Evaluation) string {
	var b strings.Builder
	target := "program " + ev.ProgramID
	if ev.Metadata.TargetType == model.TargetTask {
		target = "task " + ev.TaskID
	}
	fmt.Fprintf(&b, "%s %s\n", r.style(theme.Heading, string(ev.EvaluationType)), target)
	fmt.Fprintf(&b, "%s %.1f / %.1f (%.0f%%)  %s\n",
		r.style(theme.Label, "score"), ev.Score, ev.MaxScore, ev.Percentage(),
		r.style(theme.Performance(ev.Metadata.Performance), string(ev.Metadata.Performance)))
	for _, d := range slices.Sorted(maps.Keys(ev.DomainScores)) {
		b.WriteString(r.bar(d, ev.DomainScores[d]/100) + "\n")
	}
	if fb := ev.Feedback; fb != nil {
		if fb.Summary != "" {
			b.WriteString(fb.Summary + "\n")
		}
		for _, s := range fb.Strengths {
			b.WriteString("  + " + s + "\n")
		}
		for _, s := range fb.Improvements {
			b.WriteString("  - " + s + "\n")
		}
	}
	return b.String()
}

// bar draws a labelled horizontal bar for a fraction in [0, 1].
func (r Renderer) bar(label string, fraction float64) string {
	fraction = min(max(fraction, 0), 1)
	label = fmt.Sprintf("%-16s", truncate(label, 16))
	pct := fmt.Sprintf(" %3d%%", int(fraction*100+0.5))

	width := r.width() - lipgloss.Width(label) - lipgloss.Width(pct) - 1
	width = max(width, 4)
	filled := int(float64(width)*fraction + 0.5)

	if r.Plain {
		return label + " " + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + pct
	}
	return r.style(theme.Label, label) + " " +
		theme.BarFilled.Render(strings.Repeat(" ", filled)) +
		theme.BarEmpty.Render(strings.Repeat(" ", width-filled)) +
		r.style(theme.Hint, pct)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
