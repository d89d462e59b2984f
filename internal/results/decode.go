package results

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "atsbeaters/internal/errors"
)

// ErrMalformedResponse matches any decode failure via errors.Is
var ErrMalformedResponse = apperrors.NewAIError(apperrors.ErrCodeAIResponseMalformed, "malformed AI response", nil)

// FieldError is a single schema violation at a JSON path
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects the schema violations of one document
type ValidationError struct {
	Shape  Shape
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s response failed schema validation:", ve.Shape)
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, " %d. %s: %s;", i+1, err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// CleanJSONBlock strips a markdown code fence from around a JSON payload
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// skip a language tag on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			first := text[:idx]
			if len(first) < 20 && !strings.ContainsAny(first, " {[") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// Decode turns raw provider text into the Result variant for shape.
//
// Text results pass through unchanged. Structured results are unfenced,
// validated against the shape's JSON Schema, then unmarshalled. Empty or
// invalid output is reported as AI_RESPONSE_MALFORMED.
func Decode(shape Shape, raw string) (Result, error) {
	if shape == ShapeText {
		return Text(raw), nil
	}
	if !shape.Valid() {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown result shape %q", shape), nil)
	}

	body := CleanJSONBlock(raw)
	if body == "" {
		return nil, malformed(shape, "empty response", nil)
	}
	if !json.Valid([]byte(body)) {
		return nil, malformed(shape, "response is not valid JSON", nil)
	}

	if err := Validate(shape, body); err != nil {
		return nil, malformed(shape, "response does not match schema", err)
	}

	normalized, err := integralNumbers(body)
	if err != nil {
		return nil, malformed(shape, "failed to read response numbers", err)
	}

	r, err := unmarshalShape(shape, normalized)
	if err != nil {
		return nil, malformed(shape, "failed to unmarshal response", err)
	}
	return r, nil
}

// Validate checks a JSON document against the schema for shape
func Validate(shape Shape, document string) error {
	schema, err := compiledSchema(shape)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Shape: shape, Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}

// integralNumbers rewrites whole-valued floats such as 85.0 or 1e2 as plain
// integers. The schema accepts them as integers, so the score fields must too.
func integralNumbers(document string) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(document))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeNumber(v))
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumber(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeNumber(e)
		}
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return t
		}
		f, err := t.Float64()
		if err == nil && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
			return json.Number(strconv.FormatInt(int64(f), 10))
		}
	}
	return v
}

func malformed(shape Shape, message string, cause error) error {
	return apperrors.NewAIError(apperrors.ErrCodeAIResponseMalformed, message, cause).
		WithContext("shape", string(shape))
}
