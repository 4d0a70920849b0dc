package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

const barWidth = 20

// bar draws a horizontal bar for value on a 0..limit scale.
func bar(value, limit float64, width int) string {
	if limit <= 0 || width <= 0 {
		return ""
	}
	filled := int(value/limit*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (p *Printer) scoreStyle(score float64) string {
	text := fmt.Sprintf("%.1f", score)
	switch models.BandFor(score) {
	case models.ScoreExcellent:
		return p.render(successStyle, text)
	case models.ScoreGood:
		return p.render(warningStyle, text)
	default:
		return p.render(errorStyle, text)
	}
}

func categoryLabel(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (p *Printer) list(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", p.render(sectionStyle, title))
	for _, it := range items {
		fmt.Fprintf(b, "  • %s\n", it)
	}
}

// FeedbackReport renders a feedback report.
func (p *Printer) FeedbackReport(f *models.Feedback) string {
	var b strings.Builder
	fmt.Fprintln(&b, p.render(titleStyle, "Simulation feedback"))
	fmt.Fprintf(&b, "Overall score: %s / 10  %s\n", p.scoreStyle(f.OverallScore), bar(f.OverallScore, 10, barWidth))

	if len(f.ScoresByCategory) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Scores by category"))
		keys := make([]string, 0, len(f.ScoresByCategory))
		for k := range f.ScoresByCategory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := f.ScoresByCategory[k]
			fmt.Fprintf(&b, "  %-24s %s %s\n", categoryLabel(k), bar(v, 10, barWidth), p.scoreStyle(v))
		}
	}

	if f.TalkRatio != nil {
		fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Talk ratio"))
		fmt.Fprintf(&b, "  You     %s %.0f%%\n", bar(f.TalkRatio.Seller, 100, barWidth), f.TalkRatio.Seller)
		fmt.Fprintf(&b, "  Client  %s %.0f%%\n", bar(f.TalkRatio.Client, 100, barWidth), f.TalkRatio.Client)
	}

	p.list(&b, "Strengths", f.Strengths)
	p.list(&b, "Areas for improvement", f.AreasForImprovement)
	p.list(&b, "Suggestions", f.Suggestions)

	if len(f.TimelineEvents) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Timeline"))
		for _, e := range f.TimelineEvents {
			fmt.Fprintf(&b, "  %-6s %s %s\n", e.Timestamp, p.scoreStyle(e.Score), e.Description)
			if e.Suggestion != "" {
				fmt.Fprintf(&b, "         %s\n", p.render(mutedStyle, "→ "+e.Suggestion))
			}
		}
	}

	if s := f.StructureAnalysis; s != nil && len(s.Phases) > 0 {
		fmt.Fprintf(&b, "\n%s (%.0f of %.0f min)\n", p.render(sectionStyle, "Conversation structure"), s.TotalTime, s.TargetTotalTime)
		for _, ph := range s.Phases {
			mark := "○"
			if ph.Completed {
				mark = "●"
			}
			fmt.Fprintf(&b, "  %s %-22s %.1f / %.1f min\n", mark, ph.Name, ph.Duration, ph.TargetTime)
		}
	}

	if r := f.RelationshipMetrics; r != nil {
		fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Relationship"))
		fmt.Fprintf(&b, "  Trust index         %s %s\n", bar(r.TrustIndex, 10, barWidth), p.scoreStyle(r.TrustIndex))
		fmt.Fprintf(&b, "  Referral potential  %s %s\n", bar(r.ReferralPotential, 10, barWidth), p.scoreStyle(r.ReferralPotential))
		p.list(&b, "Trust factors", r.TrustFactors)
		p.list(&b, "Referral actions", r.ReferralActions)
	}

	if f.PersuasionScore > 0 || len(f.Analogies) > 0 || len(f.Storytelling) > 0 {
		fmt.Fprintf(&b, "\n%s  %s\n", p.render(sectionStyle, "Persuasion"), p.scoreStyle(f.PersuasionScore))
		for _, a := range f.Analogies {
			fmt.Fprintf(&b, "  analogy (%.1f): %s\n", a.ImpactScore, a.Text)
		}
		for _, s := range f.Storytelling {
			fmt.Fprintf(&b, "  story: %s\n", s.Summary)
		}
	}

	if m := f.BrilliantMoment; m != nil {
		fmt.Fprintf(&b, "\n%s\n  [%s] %s\n  %s\n", p.render(sectionStyle, "Brilliant moment"), m.Timestamp, m.Description, p.render(mutedStyle, m.Impact))
	}

	if a := f.AdaptiveAnalysis; a != nil {
		fmt.Fprintf(&b, "\n%s  %.1f → %.1f\n", p.render(sectionStyle, "Adaptive difficulty"), a.InitialDifficulty, a.FinalDifficulty)
		for _, r := range a.Reactions {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", r.Timestamp, r.Trigger, r.Reaction)
		}
	}
	return b.String()
}

// Dashboard renders the dashboard statistics.
func (p *Printer) Dashboard(user models.User, stats *models.DashboardStats) string {
	var b strings.Builder
	name := user.Name
	if name == "" {
		name = user.Email
	}
	fmt.Fprintln(&b, p.render(titleStyle, "Dashboard"))
	if name != "" {
		fmt.Fprintf(&b, "Welcome back, %s\n", name)
	}
	fmt.Fprintf(&b, "\nSimulations: %d   Average score: %s\n", stats.TotalSimulations, p.scoreStyle(stats.AverageScore))

	fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Scores by methodology"))
	rubrics := []struct {
		name  string
		score float64
	}{
		{"SPIN", stats.ScoresByRubric.SPIN},
		{"BANT", stats.ScoresByRubric.BANT},
		{"Challenger", stats.ScoresByRubric.Challenger},
		{"General", stats.ScoresByRubric.General},
	}
	for _, r := range rubrics {
		fmt.Fprintf(&b, "  %-12s %s %s\n", r.name, bar(r.score, 10, barWidth), p.scoreStyle(r.score))
	}

	d := stats.FeedbackDistribution
	total := float64(d.Strengths + d.Average + d.Weaknesses)
	fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Feedback distribution"))
	for _, row := range []struct {
		name  string
		count int
	}{{"Strengths", d.Strengths}, {"Average", d.Average}, {"Weaknesses", d.Weaknesses}} {
		fmt.Fprintf(&b, "  %-12s %s %d\n", row.name, bar(float64(row.count), total, barWidth), row.count)
	}

	if len(stats.RecentSessions) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.render(sectionStyle, "Recent sessions"))
		for _, s := range stats.RecentSessions {
			fmt.Fprintf(&b, "  #%-6d %-30s %s  %s\n", s.ConversationID, s.Name, p.scoreStyle(s.Score), p.render(mutedStyle, s.CreatedAt.Format("2006-01-02")))
		}
	}
	return b.String()
}

// Sectors renders the sector list.
func (p *Printer) Sectors(sectors []models.Sector) string {
	var b strings.Builder
	for _, s := range sectors {
		fmt.Fprintf(&b, "%-12s %s", s.Code, s.Name)
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s", p.render(mutedStyle, s.Description))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Plans renders the subscription plans.
func (p *Printer) Plans() string {
	var b strings.Builder
	for _, pl := range models.Plans {
		fmt.Fprintf(&b, "%-8s €%s/month, billed €%s per %s", pl.Name, pl.MonthlyPrice.StringFixed(2), pl.BilledAmount.StringFixed(2), pl.BillingCycle)
		if s := pl.AnnualSavings(); s.IsPositive() {
			fmt.Fprintf(&b, "  %s", p.render(successStyle, "save €"+s.StringFixed(0)+" a year"))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
