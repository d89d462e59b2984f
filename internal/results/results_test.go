package results

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "atsbeaters/internal/errors"
)

const validAnalysis = `{
  "score": 72,
  "formattingIssues": ["Uses a two-column table"],
  "missingKeywords": ["Kubernetes"],
  "powerSentenceRewrites": [{"original": "Worked on APIs", "improved": "Built 12 REST APIs"}],
  "callbackImprovement": "+35%",
  "strengths": ["Clear layout"],
  "weaknesses": ["Few metrics"],
  "suggestedJobField": "Backend Engineering"
}`

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"fence with tag", "```javascript\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding space", "  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}

func TestDecodeAnalysis(t *testing.T) {
	r, err := Decode(ShapeAnalysis, "```json\n"+validAnalysis+"\n```")
	require.NoError(t, err)

	a, ok := r.(Analysis)
	require.True(t, ok, "expected Analysis, got %T", r)
	assert.Equal(t, 72, a.Score)
	assert.Equal(t, "Backend Engineering", a.SuggestedJobField)
	require.Len(t, a.PowerSentenceRewrites, 1)
	assert.Equal(t, "Built 12 REST APIs", a.PowerSentenceRewrites[0].Improved)
}

func TestDecodeQuantifier(t *testing.T) {
	r, err := Decode(ShapeQuantifier, `[{"original":"Led team","quantified":"Led a team of 8 to ship 3 releases"}]`)
	require.NoError(t, err)

	q, ok := r.(Quantified)
	require.True(t, ok)
	require.Len(t, q, 1)
	assert.Equal(t, "Led team", q[0].Original)
}

func TestDecodeTextPassesThrough(t *testing.T) {
	r, err := Decode(ShapeText, "")
	require.NoError(t, err)
	assert.Equal(t, Text(""), r)

	r, err = Decode(ShapeText, "```not json```")
	require.NoError(t, err)
	assert.Equal(t, Text("```not json```"), r)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		raw   string
	}{
		{"empty analysis", ShapeAnalysis, ""},
		{"empty object for analysis", ShapeAnalysis, "{}"},
		{"not json", ShapeKeywords, "here are your keywords"},
		{"wrong root type", ShapeQuantifier, `{"original":"a","quantified":"b"}`},
		{"missing required", ShapeATS, `{"parseScore":80,"issues":[],"structureRating":"Good"}`},
		{"wrong field type", ShapeATS, `{"parseScore":"high","issues":[],"structureRating":"Good","fontCheck":"ok"}`},
		{"bullet missing quantified", ShapeQuantifier, `[{"original":"a"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(tt.shape, tt.raw)
			assert.Nil(t, r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedResponse))
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAIResponseMalformed))
		})
	}
}

func TestDecodeMalformedCarriesFieldErrors(t *testing.T) {
	_, err := Decode(ShapeKeywords, `{"hardSkills":["Go"]}`)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ShapeKeywords, ve.Shape)
	assert.NotEmpty(t, ve.Errors)
}

func TestDecodeUnknownShape(t *testing.T) {
	_, err := Decode(Shape("poem"), "{}")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
}

func TestEveryStructuredShapeHasSchema(t *testing.T) {
	for _, s := range Shapes {
		_, ok := SchemaDocument(s)
		assert.Equal(t, s.Structured(), ok, "shape %s", s)
		if s.Structured() {
			_, err := compiledSchema(s)
			assert.NoError(t, err, "shape %s", s)
		}
	}
}

func TestEmptyMatchesShape(t *testing.T) {
	for _, s := range Shapes {
		assert.Equal(t, s, Empty(s).Shape())
	}
}

func roundTripResults(t *testing.T) []Result {
	t.Helper()
	analysis, err := Decode(ShapeAnalysis, validAnalysis)
	require.NoError(t, err)

	return []Result{
		analysis,
		Keywords{
			HardSkills:       []string{"Go", "PostgreSQL"},
			SoftSkills:       []string{"Mentoring"},
			PriorityKeywords: []string{"Kubernetes"},
			IndustryTerms:    []string{"SaaS"},
		},
		ATSReport{
			ParseScore:      88,
			Issues:          []string{"Header in a text box"},
			StructureRating: "Good",
			FontCheck:       "Arial is safe",
		},
		Quantified{{Original: "Led a team", Quantified: "Led a team of 6 engineers"}},
		Text("Dear hiring manager"),
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	for _, r := range roundTripResults(t) {
		t.Run(string(r.Shape()), func(t *testing.T) {
			data, err := json.Marshal(Wrap(r))
			require.NoError(t, err)

			var env Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			assert.Equal(t, r, env.Result)
			assert.Equal(t, r.Shape(), env.Shape())
		})
	}
}

func TestStructuredResultRoundTrip(t *testing.T) {
	for _, r := range roundTripResults(t) {
		if !r.Shape().Structured() {
			continue
		}
		t.Run(string(r.Shape()), func(t *testing.T) {
			data, err := json.Marshal(r)
			require.NoError(t, err)

			back, err := unmarshalShape(r.Shape(), data)
			require.NoError(t, err)
			assert.Equal(t, r, back)

			decoded, err := Decode(r.Shape(), string(data))
			require.NoError(t, err, "a marshalled result passes its own schema")
			assert.Equal(t, r, decoded)
		})
	}
}

func TestDecodeIntegralFloatScores(t *testing.T) {
	r, err := Decode(ShapeATS, `{"parseScore": 85.0, "issues": [], "structureRating": "Good", "fontCheck": "ok"}`)
	require.NoError(t, err)
	assert.Equal(t, 85, r.(ATSReport).ParseScore)

	doc := strings.Replace(validAnalysis, `"score": 72`, `"score": 72.0`, 1)
	r, err = Decode(ShapeAnalysis, doc)
	require.NoError(t, err)
	assert.Equal(t, 72, r.(Analysis).Score)

	_, err = Decode(ShapeATS, `{"parseScore": 85.5, "issues": [], "structureRating": "Good", "fontCheck": "ok"}`)
	assert.True(t, errors.Is(err, ErrMalformedResponse), "fractional scores stay invalid")
}

func TestEnvelopeNull(t *testing.T) {
	data, err := json.Marshal(Envelope{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte("null"), &env))
	assert.Nil(t, env.Result)
}
