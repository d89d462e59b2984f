package ai

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/tasks"
)

const tracerName = "atsbeaters.ai.gemini"

// modelsAPI is the subset of genai.Models the provider calls
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// Recorder receives per-call telemetry
type Recorder interface {
	RecordAIRequest(ctx context.Context, task, model string, duration time.Duration, inputTokens, outputTokens int64, err error)
	RecordRateLimitWait(ctx context.Context, task string, wait time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAIRequest(context.Context, string, string, time.Duration, int64, int64, error) {
}
func (nopRecorder) RecordRateLimitWait(context.Context, string, time.Duration) {}

// GeminiProvider runs the calls of one task against Gemini
type GeminiProvider struct {
	task           string
	models         modelsAPI
	config         config.OperationAIConfig
	circuitBreaker *AICircuitBreaker
	modelBreaker   *ModelCircuitBreaker
	limiter        *LimiterManager
	recorder       Recorder
	backoff        func(attempt int) time.Duration
	logger         *apperrors.Logger
}

// newGeminiProvider wires one task's provider. limiter and recorder may be nil.
func newGeminiProvider(task string, models modelsAPI, cfg config.OperationAIConfig, limiter *LimiterManager, recorder Recorder, logger *apperrors.Logger) *GeminiProvider {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &GeminiProvider{
		task:           task,
		models:         models,
		config:         cfg,
		circuitBreaker: NewAICircuitBreaker(task, cfg.CircuitBreaker, logger),
		modelBreaker:   NewModelCircuitBreaker(task, cfg.CircuitBreaker, logger),
		limiter:        limiter,
		recorder:       recorder,
		backoff:        retryBackoff,
		logger:         logger,
	}
}

// RunTextTask generates text for req and decodes it into the task's shape
func (g *GeminiProvider) RunTextTask(ctx context.Context, req TextRequest) (Output, error) {
	if err := req.validate(); err != nil {
		return Output{}, err
	}
	model := g.modelFor(req.Model)

	genCfg := generateConfig(req.Shape, g.config.Temperature)
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, usage, err := g.generate(ctx, model, genai.Text(req.Prompt), genCfg,
		attribute.String("ai.shape", string(req.Shape)),
		attribute.Int("input.prompt_length", len(req.Prompt)),
	)
	if err != nil {
		return Output{}, err
	}

	raw := responseText(resp)
	result, err := results.Decode(req.Shape, raw)
	if err != nil {
		g.logger.LogError(err, "Provider returned a malformed response",
			"task", g.task, "model", model, "response_length", len(raw))
		return Output{}, err
	}

	return Output{Result: result, Raw: raw, Model: model, Usage: usage}, nil
}

// EditImage sends an image plus instruction and returns the first image part
func (g *GeminiProvider) EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ImageOutput, error) {
	if len(image) == 0 {
		return ImageOutput{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "image is empty", nil)
	}
	if strings.TrimSpace(instruction) == "" {
		return ImageOutput{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "edit instruction is empty", nil)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	model := g.modelFor("")

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(tasks.PhotoPrompt(instruction)),
		}, genai.RoleUser),
	}

	resp, usage, err := g.generate(ctx, model, contents, &genai.GenerateContentConfig{},
		attribute.Int("input.image_bytes", len(image)),
		attribute.String("input.image_mime", mimeType),
	)
	if err != nil {
		return ImageOutput{}, err
	}

	if part := firstInlineImage(resp); part != nil {
		out := ImageOutput{Data: part.Data, MIMEType: part.MIMEType, Model: model, Usage: usage}
		if out.MIMEType == "" {
			out.MIMEType = "image/png"
		}
		return out, nil
	}

	return ImageOutput{}, apperrors.NewAIError(apperrors.ErrCodeAINoImageReturned,
		"the model did not return an edited image", nil).WithContext("model", model)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

func firstInlineImage(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData
		}
	}
	return nil
}

func (g *GeminiProvider) modelFor(requested string) string {
	if requested != "" {
		return requested
	}
	return g.config.Model
}

// generate runs one provider call behind the limiter, timeout, breaker and retry
func (g *GeminiProvider) generate(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	genCfg *genai.GenerateContentConfig,
	spanAttributes ...attribute.KeyValue,
) (*genai.GenerateContentResponse, *TokenUsage, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gemini."+g.task)
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.task", g.task),
		attribute.String("ai.model", model),
	)
	if g.config.Temperature != nil {
		span.SetAttributes(attribute.Float64("ai.temperature", float64(*g.config.Temperature)))
	}
	span.SetAttributes(spanAttributes...)

	waited, err := g.limiter.Wait(ctx, g.task)
	if waited > 0 {
		g.recorder.RecordRateLimitWait(ctx, g.task, waited)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limit wait aborted")
		return nil, nil, err
	}

	if g.config.Timeout != nil && *g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *g.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, g.task, func() (*genai.GenerateContentResponse, error) {
			return g.models.GenerateContent(ctx, model, contents, genCfg)
		})
	})
	duration := time.Since(start)

	usage := extractTokenUsage(resp)
	var in, out int64
	if usage != nil {
		in, out = usage.InputTokens, usage.OutputTokens
	}

	if err != nil {
		wrapped := g.wrapProviderError(ctx, err)
		g.recorder.RecordAIRequest(ctx, g.task, model, duration, in, out, wrapped)
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, wrapped
	}

	g.recorder.RecordAIRequest(ctx, g.task, model, duration, in, out, nil)
	if usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}
	span.SetAttributes(attribute.Bool("success", true))
	return resp, usage, nil
}

func (g *GeminiProvider) wrapProviderError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewAIError(apperrors.ErrCodeAITimeout,
			fmt.Sprintf("%s timed out", g.task), err)
	}
	return apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
		"Failed to generate content for "+g.task, err)
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	Class       string `json:"class,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{Name: g.config.Model}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.ExecuteModel(func() (*genai.Model, error) {
		return g.models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"task", g.task,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

const modelCheckTimeout = 10 * time.Second

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.GetStats(),
		"model_operations": g.modelBreaker.GetModelStats(),
		"overall_healthy":  g.circuitBreaker.IsHealthy() && g.modelBreaker.IsModelHealthy(),
	}
}

// retryBackoff is exponential with up to 10% jitter, capped at 30 seconds
func retryBackoff(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitter := time.Duration(0)
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return min(baseDelay+jitter, 30*time.Second)
}

// executeWithRetry executes an AI operation with retry logic and exponential backoff
func (g *GeminiProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	maxRetries := 0
	if g.config.MaxRetries != nil {
		maxRetries = *g.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(g.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"total_attempts", maxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed: %w", operation, lastErr)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		switch genaiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
