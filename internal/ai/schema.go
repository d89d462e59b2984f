package ai

import (
	"google.golang.org/genai"

	"atsbeaters/internal/results"
)

func stringArray() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}

// responseSchema returns the provider-side schema for a structured shape,
// or nil for free text.
func responseSchema(shape results.Shape) *genai.Schema {
	switch shape {
	case results.ShapeAnalysis:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"score":            {Type: genai.TypeInteger},
				"formattingIssues": stringArray(),
				"missingKeywords":  stringArray(),
				"powerSentenceRewrites": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"original": {Type: genai.TypeString},
							"improved": {Type: genai.TypeString},
						},
						Required: []string{"original", "improved"},
					},
				},
				"callbackImprovement": {Type: genai.TypeString},
				"strengths":           stringArray(),
				"weaknesses":          stringArray(),
				"suggestedJobField":   {Type: genai.TypeString},
			},
			Required: []string{"score", "formattingIssues", "missingKeywords", "powerSentenceRewrites",
				"callbackImprovement", "strengths", "weaknesses", "suggestedJobField"},
		}
	case results.ShapeKeywords:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"hardSkills":       stringArray(),
				"softSkills":       stringArray(),
				"priorityKeywords": stringArray(),
				"industryTerms":    stringArray(),
			},
			Required: []string{"hardSkills", "softSkills", "priorityKeywords", "industryTerms"},
		}
	case results.ShapeATS:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"parseScore":      {Type: genai.TypeInteger},
				"issues":          stringArray(),
				"structureRating": {Type: genai.TypeString},
				"fontCheck":       {Type: genai.TypeString},
			},
			Required: []string{"parseScore", "issues", "structureRating", "fontCheck"},
		}
	case results.ShapeQuantifier:
		return &genai.Schema{
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"original":   {Type: genai.TypeString},
					"quantified": {Type: genai.TypeString},
				},
				Required: []string{"original", "quantified"},
			},
		}
	default:
		return nil
	}
}

// generateConfig builds the request config for a shape
func generateConfig(shape results.Shape, temperature *float32) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if schema := responseSchema(shape); schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}
	if temperature != nil && *temperature > 0 {
		t := *temperature
		cfg.Temperature = &t
	}
	return cfg
}
