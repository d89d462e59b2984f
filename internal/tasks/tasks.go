// Package tasks is the static dispatch table that binds every task id to its
// inputs, prompt, result shape and model class.
package tasks

import (
	"fmt"
	"sort"
	"strings"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
)

// Task ids
const (
	AnalyzeResume        = "analyze-resume"
	FullRewrite          = "full-rewrite"
	QuickRewrite         = "quick-rewrite"
	CoverLetter          = "cover-letter"
	ExtractKeywords      = "extract-keywords"
	ATSCheck             = "ats-check"
	QuantifyAchievements = "quantify-achievements"
	GenerateSummary      = "generate-summary"
	OptimizeSkills       = "optimize-skills"

	// PhotoEdit is the image task. It has no text prompt builder.
	PhotoEdit = "photo-edit"
)

// Template placeholders for prompt overrides
const (
	PlaceholderInput   = "{{input}}"
	PlaceholderContext = "{{context}}"
)

// Input describes one user-supplied text field
type Input struct {
	Name     string
	Label    string
	Optional bool
}

// Definition is one row of the dispatch table
type Definition struct {
	ID         string
	Label      string
	Title      string
	Action     string
	Inputs     []Input
	Shape      results.Shape
	ModelClass string

	build func(in []string) string
}

// RequiredInputs counts the inputs that must be non-blank
func (d Definition) RequiredInputs() int {
	n := 0
	for _, in := range d.Inputs {
		if !in.Optional {
			n++
		}
	}
	return n
}

// Validate checks the number of inputs and that required ones are non-blank
func (d Definition) Validate(inputs ...string) error {
	if len(inputs) > len(d.Inputs) {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("%s takes at most %d input(s), got %d", d.ID, len(d.Inputs), len(inputs)), nil)
	}
	for i, spec := range d.Inputs {
		if spec.Optional {
			continue
		}
		if i >= len(inputs) || strings.TrimSpace(inputs[i]) == "" {
			return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
				fmt.Sprintf("%s requires %s", d.ID, strings.ToLower(spec.Label)), nil).
				WithContext("task", d.ID).
				WithContext("input", spec.Name)
		}
	}
	return nil
}

// BuildPrompt renders the default prompt. It is pure and does not validate.
func (d Definition) BuildPrompt(inputs ...string) string {
	return d.build(padInputs(inputs, len(d.Inputs)))
}

// BuildPromptWith renders a user-supplied template, falling back to the
// default prompt when the template is blank.
func (d Definition) BuildPromptWith(template string, inputs ...string) string {
	if strings.TrimSpace(template) == "" {
		return d.BuildPrompt(inputs...)
	}
	in := padInputs(inputs, 2)
	return strings.NewReplacer(PlaceholderInput, in[0], PlaceholderContext, in[1]).Replace(template)
}

func padInputs(inputs []string, n int) []string {
	if len(inputs) >= n {
		return inputs
	}
	out := make([]string, n)
	copy(out, inputs)
	return out
}

var resumeInput = Input{Name: "resume", Label: "Resume Content"}

var table = map[string]Definition{
	AnalyzeResume: {
		ID:         AnalyzeResume,
		Label:      "Resume Analysis",
		Title:      "Resume Auditor",
		Action:     "Run Analysis",
		Inputs:     []Input{{Name: "resume", Label: "Paste Resume Content"}},
		Shape:      results.ShapeAnalysis,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Analyze this resume for ATS compatibility: " + in[0]
		},
	},
	FullRewrite: {
		ID:     FullRewrite,
		Label:  "Full Rewrite",
		Title:  "ATS Overhaul",
		Action: "Complete Rewrite",
		Inputs: []Input{
			{Name: "resume", Label: "Paste Resume"},
			{Name: "context", Label: "Specific Goals or Job Desc", Optional: true},
		},
		Shape:      results.ShapeText,
		ModelClass: config.ModelClassPro,
		build: func(in []string) string {
			var b strings.Builder
			b.WriteString("Rewrite the following resume to be highly ATS-optimized. \n")
			b.WriteString("Use strong action verbs, quantify achievements, and integrate relevant keywords.\n")
			if strings.TrimSpace(in[1]) != "" {
				b.WriteString("Use this analysis context: " + in[1] + "\n")
			}
			b.WriteString("\nResume Content:\n")
			b.WriteString(in[0])
			return b.String()
		},
	},
	QuickRewrite: {
		ID:         QuickRewrite,
		Label:      "Quick Optimize",
		Title:      "Rapid Optimizer",
		Action:     "Flash Rewrite",
		Inputs:     []Input{{Name: "content", Label: "Content Snippet"}},
		Shape:      results.ShapeText,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Quickly optimize this resume content for ATS systems. Improve verbs and keywords. \nContent: " + in[0]
		},
	},
	CoverLetter: {
		ID:     CoverLetter,
		Label:  "Cover Letter",
		Title:  "Cover Letter Sculptor",
		Action: "Craft Letter",
		Inputs: []Input{
			{Name: "resume", Label: "Your Resume"},
			{Name: "job", Label: "Job Description"},
		},
		Shape:      results.ShapeText,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Generate a professional cover letter based on this resume and job description.\n" +
				"Resume: " + in[0] + "\n" +
				"Job Description: " + in[1]
		},
	},
	ExtractKeywords: {
		ID:         ExtractKeywords,
		Label:      "Market Keywords",
		Title:      "Market Insight",
		Action:     "Extract Intelligence",
		Inputs:     []Input{{Name: "job", Label: "Job Description"}},
		Shape:      results.ShapeKeywords,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Extract keywords and skills from this job description: " + in[0]
		},
	},
	ATSCheck: {
		ID:         ATSCheck,
		Label:      "ATS Health",
		Title:      "Health Scanner",
		Action:     "Scan Compliance",
		Inputs:     []Input{resumeInput},
		Shape:      results.ShapeATS,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Check if this resume formatting parses correctly in ATS (fonts, tables, characters): " + in[0]
		},
	},
	QuantifyAchievements: {
		ID:         QuantifyAchievements,
		Label:      "Metrics Builder",
		Title:      "Metric Lab",
		Action:     "Inject Metrics",
		Inputs:     []Input{{Name: "bullets", Label: "Weak Bullets"}},
		Shape:      results.ShapeQuantifier,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Transform these weak bullet points into strong achievement statements with metrics: " + in[0]
		},
	},
	GenerateSummary: {
		ID:         GenerateSummary,
		Label:      "Summary Gen",
		Title:      "Identity Generator",
		Action:     "Design Summary",
		Inputs:     []Input{{Name: "background", Label: "Background/Highlights"}},
		Shape:      results.ShapeText,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Create a compelling 3-4 sentence professional summary based on this resume: " + in[0]
		},
	},
	OptimizeSkills: {
		ID:         OptimizeSkills,
		Label:      "Skills Studio",
		Title:      "Skills Architect",
		Action:     "Rebuild Section",
		Inputs:     []Input{{Name: "skills", Label: "Raw Skills"}},
		Shape:      results.ShapeText,
		ModelClass: config.ModelClassText,
		build: func(in []string) string {
			return "Optimize this skills section for ATS relevance and readability. Categorize them logically.\n" +
				"Skills/Content: " + in[0]
		},
	},
}

// order is the menu order of the text tasks
var order = []string{
	AnalyzeResume, FullRewrite, QuickRewrite, CoverLetter, ExtractKeywords,
	ATSCheck, QuantifyAchievements, GenerateSummary, OptimizeSkills,
}

// Lookup returns the definition of a text task
func Lookup(id string) (Definition, bool) {
	d, ok := table[id]
	return d, ok
}

// MustLookup returns the definition or an UNKNOWN_TASK error
func MustLookup(id string) (Definition, error) {
	d, ok := table[id]
	if !ok {
		return Definition{}, apperrors.NewValidationError(apperrors.ErrCodeUnknownTask,
			fmt.Sprintf("unknown task %q (known: %s)", id, strings.Join(IDs(), ", ")), nil)
	}
	return d, nil
}

// All returns the text task definitions in menu order
func All() []Definition {
	out := make([]Definition, 0, len(order))
	for _, id := range order {
		out = append(out, table[id])
	}
	return out
}

// IDs returns the text task ids in menu order
func IDs() []string {
	return append([]string(nil), order...)
}

// Label returns a display label for any task id, including photo-edit
func Label(id string) string {
	if id == PhotoEdit {
		return "Headshot AI"
	}
	if d, ok := table[id]; ok {
		return d.Label
	}
	return id
}

// Known reports whether id is a text task or the image task
func Known(id string) bool {
	_, ok := table[id]
	return ok || id == PhotoEdit
}

// ByShape groups the text task ids by result shape, sorted
func ByShape() map[results.Shape][]string {
	out := make(map[results.Shape][]string)
	for id, d := range table {
		out[d.Shape] = append(out[d.Shape], id)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// PhotoPrompt builds the image edit instruction
func PhotoPrompt(instruction string) string {
	return "Edit this professional headshot: " + strings.TrimSpace(instruction) + "."
}
