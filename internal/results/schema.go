package results

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const rewritePairSchema = `{
  "type": "object",
  "properties": {
    "original": {"type": "string"},
    "improved": {"type": "string"}
  },
  "required": ["original", "improved"]
}`

// schemaDocs holds one JSON Schema per structured shape. The required lists
// mirror the response schemas sent to the provider.
var schemaDocs = map[Shape]string{
	ShapeAnalysis: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "score": {"type": "integer", "minimum": 0, "maximum": 100},
    "formattingIssues": {"type": "array", "items": {"type": "string"}},
    "missingKeywords": {"type": "array", "items": {"type": "string"}},
    "powerSentenceRewrites": {"type": "array", "items": ` + rewritePairSchema + `},
    "callbackImprovement": {"type": "string"},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "suggestedJobField": {"type": "string"}
  },
  "required": ["score", "formattingIssues", "missingKeywords", "powerSentenceRewrites",
               "callbackImprovement", "strengths", "weaknesses", "suggestedJobField"]
}`,
	ShapeKeywords: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "hardSkills": {"type": "array", "items": {"type": "string"}},
    "softSkills": {"type": "array", "items": {"type": "string"}},
    "priorityKeywords": {"type": "array", "items": {"type": "string"}},
    "industryTerms": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["hardSkills", "softSkills", "priorityKeywords", "industryTerms"]
}`,
	ShapeATS: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "parseScore": {"type": "integer", "minimum": 0, "maximum": 100},
    "issues": {"type": "array", "items": {"type": "string"}},
    "structureRating": {"type": "string"},
    "fontCheck": {"type": "string"}
  },
  "required": ["parseScore", "issues", "structureRating", "fontCheck"]
}`,
	ShapeQuantifier: `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "original": {"type": "string"},
      "quantified": {"type": "string"}
    },
    "required": ["original", "quantified"]
  }
}`,
}

var (
	compileOnce sync.Once
	compiled    map[Shape]*gojsonschema.Schema
	compileErr  error
)

// SchemaDocument returns the JSON Schema text for a structured shape
func SchemaDocument(shape Shape) (string, bool) {
	doc, ok := schemaDocs[shape]
	return doc, ok
}

func compiledSchema(shape Shape) (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[Shape]*gojsonschema.Schema, len(schemaDocs))
		for s, doc := range schemaDocs {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
			if err != nil {
				compileErr = fmt.Errorf("failed to compile %s schema: %w", s, err)
				return
			}
			compiled[s] = schema
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	schema, ok := compiled[shape]
	if !ok {
		return nil, fmt.Errorf("no schema for shape %q", shape)
	}
	return schema, nil
}
