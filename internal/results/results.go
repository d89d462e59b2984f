// Package results defines the typed outcomes of every task.
//
// A Result is a closed sum type: one variant per result shape. The shape a
// task produces is fixed by the task table, and Decode refuses provider
// output that does not match the declared shape.
package results

import (
	"encoding/json"
	"fmt"
)

// Shape identifies one result variant
type Shape string

const (
	ShapeAnalysis   Shape = "analysis"
	ShapeKeywords   Shape = "keywords"
	ShapeATS        Shape = "ats"
	ShapeQuantifier Shape = "quantifier"
	ShapeText       Shape = "text"
)

// Shapes lists every shape, structured ones first
var Shapes = []Shape{ShapeAnalysis, ShapeKeywords, ShapeATS, ShapeQuantifier, ShapeText}

// Structured reports whether the shape is requested as schema-constrained JSON
func (s Shape) Structured() bool {
	return s != ShapeText
}

// Valid reports whether s is a known shape
func (s Shape) Valid() bool {
	for _, known := range Shapes {
		if s == known {
			return true
		}
	}
	return false
}

// Result is implemented only by the variants in this package
type Result interface {
	Shape() Shape
	sealed()
}

// RewritePair is a weak sentence and its stronger replacement
type RewritePair struct {
	Original string `json:"original"`
	Improved string `json:"improved"`
}

// Analysis is the full resume audit
type Analysis struct {
	Score                 int           `json:"score"`
	FormattingIssues      []string      `json:"formattingIssues"`
	MissingKeywords       []string      `json:"missingKeywords"`
	PowerSentenceRewrites []RewritePair `json:"powerSentenceRewrites"`
	CallbackImprovement   string        `json:"callbackImprovement"`
	Strengths             []string      `json:"strengths"`
	Weaknesses            []string      `json:"weaknesses"`
	SuggestedJobField     string        `json:"suggestedJobField"`
}

// Keywords is the job description keyword extraction
type Keywords struct {
	HardSkills       []string `json:"hardSkills"`
	SoftSkills       []string `json:"softSkills"`
	PriorityKeywords []string `json:"priorityKeywords"`
	IndustryTerms    []string `json:"industryTerms"`
}

// ATSReport is the formatting compatibility check
type ATSReport struct {
	ParseScore      int      `json:"parseScore"`
	Issues          []string `json:"issues"`
	StructureRating string   `json:"structureRating"`
	FontCheck       string   `json:"fontCheck"`
}

// QuantifiedBullet is one bullet point rewritten with metrics
type QuantifiedBullet struct {
	Original   string `json:"original"`
	Quantified string `json:"quantified"`
}

// Quantified is the achievement quantifier output
type Quantified []QuantifiedBullet

// Text is a free-text result (rewrites, cover letters, summaries, skills)
type Text string

func (Analysis) Shape() Shape   { return ShapeAnalysis }
func (Keywords) Shape() Shape   { return ShapeKeywords }
func (ATSReport) Shape() Shape  { return ShapeATS }
func (Quantified) Shape() Shape { return ShapeQuantifier }
func (Text) Shape() Shape       { return ShapeText }

func (Analysis) sealed()   {}
func (Keywords) sealed()   {}
func (ATSReport) sealed()  {}
func (Quantified) sealed() {}
func (Text) sealed()       {}

// Empty returns the empty default for a shape. Callers that want to keep
// going after a MalformedResponse use this explicitly.
func Empty(shape Shape) Result {
	switch shape {
	case ShapeAnalysis:
		return Analysis{}
	case ShapeKeywords:
		return Keywords{}
	case ShapeATS:
		return ATSReport{}
	case ShapeQuantifier:
		return Quantified{}
	default:
		return Text("")
	}
}

// Envelope is the self-describing JSON form of a Result, used in history
type Envelope struct {
	Result Result
}

type envelopeJSON struct {
	Shape Shape           `json:"shape"`
	Data  json.RawMessage `json:"data"`
}

// Wrap puts a result in an envelope
func Wrap(r Result) Envelope {
	return Envelope{Result: r}
}

// Shape returns the wrapped result's shape, or "" when empty
func (e Envelope) Shape() Shape {
	if e.Result == nil {
		return ""
	}
	return e.Result.Shape()
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Result == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(e.Result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{Shape: e.Result.Shape(), Data: data})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		e.Result = nil
		return nil
	}
	var raw envelopeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r, err := unmarshalShape(raw.Shape, raw.Data)
	if err != nil {
		return err
	}
	e.Result = r
	return nil
}

// unmarshalShape decodes data into the variant for shape without schema checks
func unmarshalShape(shape Shape, data []byte) (Result, error) {
	switch shape {
	case ShapeAnalysis:
		var v Analysis
		err := json.Unmarshal(data, &v)
		return v, err
	case ShapeKeywords:
		var v Keywords
		err := json.Unmarshal(data, &v)
		return v, err
	case ShapeATS:
		var v ATSReport
		err := json.Unmarshal(data, &v)
		return v, err
	case ShapeQuantifier:
		var v Quantified
		err := json.Unmarshal(data, &v)
		return v, err
	case ShapeText:
		var v string
		err := json.Unmarshal(data, &v)
		return Text(v), err
	default:
		return nil, fmt.Errorf("unknown result shape %q", shape)
	}
}
