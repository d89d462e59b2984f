package ai

import (
	"context"
	"strings"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/tasks"
)

// Gateway is the only path from the app to the model provider
type Gateway interface {
	RunTextTask(ctx context.Context, req TextRequest) (Output, error)
	EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ImageOutput, error)
}

// TextRequest is one text generation call. A structured Shape asks the
// provider for schema-constrained JSON and decodes the reply.
type TextRequest struct {
	Task   string
	Prompt string
	System string
	Shape  results.Shape
	Model  string
}

// Output is a decoded text task result
type Output struct {
	Result results.Result
	Raw    string
	Model  string
	Usage  *TokenUsage
}

// ImageOutput is the first image returned by an edit
type ImageOutput struct {
	Data     []byte
	MIMEType string
	Model    string
	Usage    *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Sentinels for errors.Is
var (
	ErrMalformedResponse = results.ErrMalformedResponse
	ErrNoImageReturned   = apperrors.NewAIError(apperrors.ErrCodeAINoImageReturned, "no image returned", nil)
)

// BuildTextRequest resolves prompts and model for a task. User prompts
// resolve file > config > built-in; system prompts are only set when the
// task enables them.
func BuildTextRequest(cfg *config.Config, def tasks.Definition, inputs ...string) (TextRequest, error) {
	if err := def.Validate(inputs...); err != nil {
		return TextRequest{}, err
	}

	opCfg := cfg.GetTaskConfig(def.ID, def.ModelClass)
	loaded := cfg.LoadedPromptsFor(def.ID)

	template := resolvePrompt(loaded.User, opCfg.Prompts.User, "")
	req := TextRequest{
		Task:   def.ID,
		Prompt: def.BuildPromptWith(template, inputs...),
		Shape:  def.Shape,
		Model:  opCfg.Model,
	}
	if opCfg.UseSystemPrompts != nil && *opCfg.UseSystemPrompts {
		req.System = resolvePrompt(loaded.System, opCfg.Prompts.System, DefaultSystemPrompt)
	}
	return req, nil
}

func (r TextRequest) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest, "prompt is empty", nil).
			WithContext("task", r.Task)
	}
	if !r.Shape.Valid() {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidRequest, "unknown result shape", nil).
			WithContext("shape", string(r.Shape))
	}
	return nil
}

// resolvePrompt selects the correct prompt string based on a clear priority order:
// 1. A prompt loaded from a file.
// 2. A prompt defined directly in the configuration.
// 3. A hardcoded default prompt.
func resolvePrompt(loadedFromFile, fromConfig, fromDefault string) string {
	if loadedFromFile != "" {
		return loadedFromFile
	}
	if fromConfig != "" {
		return fromConfig
	}
	return fromDefault
}
