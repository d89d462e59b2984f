package formatters

import (
	"fmt"
	"strconv"
	"time"

	"atsbeaters/internal/catalog"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
)

// excerptLen caps the input shown in history listings
const excerptLen = 80

var renderers = []struct {
	dataType string
	render   func(document, any) error
}{
	{"Analysis", renderResultValue},
	{"Keywords", renderResultValue},
	{"ATSReport", renderResultValue},
	{"Quantified", renderResultValue},
	{"Text", renderResultValue},
	{"Envelope", renderEnvelope},
	{"HistoryEntry", renderHistoryEntry},
	{"History", renderHistory},
	{"User", renderUser},
	{"Plans", renderPlans},
	{"FAQ", renderFAQ},
	{"Sample", renderSample},
}

func renderResultValue(d document, data any) error {
	r, ok := data.(results.Result)
	if !ok {
		return fmt.Errorf("expected a task result, got %T", data)
	}
	renderResult(d, r, true)
	return nil
}

func renderEnvelope(d document, data any) error {
	env, ok := data.(results.Envelope)
	if !ok {
		return fmt.Errorf("expected Envelope, got %T", data)
	}
	if env.Result == nil {
		d.Paragraph("No result.")
		return nil
	}
	renderResult(d, env.Result, true)
	return nil
}

// renderResult writes r; titled is false when the caller already wrote
// a heading for it
func renderResult(d document, r results.Result, titled bool) {
	switch v := r.(type) {
	case results.Analysis:
		if titled {
			d.Title("Resume Analysis")
		}
		d.Field("ATS Score", fmt.Sprintf("%d/100", v.Score))
		if v.SuggestedJobField != "" {
			d.Field("Suggested Field", v.SuggestedJobField)
		}
		d.Section("Strengths")
		d.Bullets(v.Strengths)
		d.Section("Weaknesses")
		d.Bullets(v.Weaknesses)
		d.Section("Formatting Issues")
		d.Bullets(v.FormattingIssues)
		d.Section("Missing Keywords")
		d.Bullets(v.MissingKeywords)
		d.Section("Power Sentence Rewrites")
		rewrites := make([]string, len(v.PowerSentenceRewrites))
		for i, p := range v.PowerSentenceRewrites {
			rewrites[i] = fmt.Sprintf("%s -> %s", p.Original, p.Improved)
		}
		d.Bullets(rewrites)
		d.Section("Callback Improvement")
		d.Paragraph(v.CallbackImprovement)
	case results.Keywords:
		if titled {
			d.Title("Keyword Extraction")
		}
		d.Section("Hard Skills")
		d.Bullets(v.HardSkills)
		d.Section("Soft Skills")
		d.Bullets(v.SoftSkills)
		d.Section("Priority Keywords")
		d.Bullets(v.PriorityKeywords)
		d.Section("Industry Terms")
		d.Bullets(v.IndustryTerms)
	case results.ATSReport:
		if titled {
			d.Title("ATS Compatibility Check")
		}
		d.Field("Parse Score", fmt.Sprintf("%d/100", v.ParseScore))
		d.Field("Structure", v.StructureRating)
		d.Field("Fonts", v.FontCheck)
		d.Section("Issues")
		d.Bullets(v.Issues)
	case results.Quantified:
		if titled {
			d.Title("Quantified Achievements")
		}
		items := make([]string, len(v))
		for i, b := range v {
			items[i] = fmt.Sprintf("%s -> %s", b.Original, b.Quantified)
		}
		d.Numbered(items)
	case results.Text:
		d.Paragraph(string(v))
	}
}

func renderHistoryEntry(d document, data any) error {
	entry, ok := data.(session.HistoryEntry)
	if !ok {
		return fmt.Errorf("expected HistoryEntry, got %T", data)
	}
	d.Title(tasks.Label(entry.Type))
	d.Field("ID", entry.ID)
	d.Field("Saved", formatMillis(entry.Timestamp))
	d.Section("Input")
	d.Paragraph(entry.Input)
	d.Section("Result")
	if entry.Result.Result == nil {
		d.Paragraph("No result.")
		return nil
	}
	renderResult(d, entry.Result.Result, false)
	return nil
}

func renderHistory(d document, data any) error {
	history, ok := data.([]session.HistoryEntry)
	if !ok {
		return fmt.Errorf("expected []HistoryEntry, got %T", data)
	}
	d.Title("History")
	if len(history) == 0 {
		d.Paragraph("No saved results yet.")
		return nil
	}
	items := make([]string, len(history))
	for i, h := range history {
		items[i] = fmt.Sprintf("%s  %s  %s%s  %q",
			h.ID, formatMillis(h.Timestamp), tasks.Label(h.Type), scoreSuffix(h.Result), excerpt(h.Input))
	}
	d.Bullets(items)
	return nil
}

func renderUser(d document, data any) error {
	user, ok := data.(*session.User)
	if !ok {
		return fmt.Errorf("expected *User, got %T", data)
	}
	if user == nil {
		d.Paragraph("Not logged in.")
		return nil
	}
	d.Title(user.Name)
	d.Field("Email", user.Email)
	d.Field("Tier", string(user.Tier))
	d.Field("Credits", strconv.Itoa(user.Credits))
	d.Field("Joined", formatMillis(user.JoinedAt))
	d.Field("Saved results", strconv.Itoa(len(user.History)))
	if user.Gated() {
		d.Paragraph("No credits left on the free tier. Run `atsbeaters upgrade pro` to continue.")
	}
	return nil
}

func renderPlans(d document, data any) error {
	plans, ok := data.([]session.Plan)
	if !ok {
		return fmt.Errorf("expected []Plan, got %T", data)
	}
	d.Title("Professional Plans")
	for _, p := range plans {
		heading := fmt.Sprintf("%s (%s) %s", p.Title, p.Tier, p.Price)
		if p.Popular {
			heading += " [most popular]"
		}
		d.Section(heading)
		d.Bullets(p.Features)
	}
	return nil
}

func renderFAQ(d document, data any) error {
	entries, ok := data.([]catalog.FAQEntry)
	if !ok {
		return fmt.Errorf("expected []FAQEntry, got %T", data)
	}
	d.Title("Frequently Asked Questions")
	for _, e := range entries {
		d.Section(e.Question)
		d.Paragraph(e.Answer)
	}
	return nil
}

func renderSample(d document, data any) error {
	s, ok := data.(catalog.Sample)
	if !ok {
		return fmt.Errorf("expected Sample, got %T", data)
	}
	d.Title(s.Title)
	d.Paragraph(s.Resume)
	return nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func scoreSuffix(env results.Envelope) string {
	switch v := env.Result.(type) {
	case results.Analysis:
		return fmt.Sprintf(" (score %d)", v.Score)
	case results.ATSReport:
		return fmt.Sprintf(" (parse %d)", v.ParseScore)
	}
	return ""
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "..."
}
