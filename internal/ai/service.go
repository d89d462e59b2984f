package ai

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/tasks"
)

// Service implements Gateway with one GeminiProvider per task, built on
// first use so each task keeps its own breaker and config.
type Service struct {
	config    *config.Config
	logger    *errors.Logger
	limiter   *LimiterManager
	recorder  Recorder
	newModels func(ctx context.Context, apiKey string) (modelsAPI, error)

	mu        sync.Mutex
	providers map[string]*GeminiProvider
	clients   map[string]modelsAPI
}

var _ Gateway = (*Service)(nil)

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithRecorder sends call telemetry to r
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// withModels replaces the genai client factory
func withModels(factory func(ctx context.Context, apiKey string) (modelsAPI, error)) ServiceOption {
	return func(s *Service) { s.newModels = factory }
}

// NewService creates the gateway. The API key is checked per task on first use.
func NewService(cfg *config.Config, logger *errors.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg.AI.Provider != "" && cfg.AI.Provider != "gemini" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.AI.Provider), nil)
	}

	s := &Service{
		config:    cfg,
		logger:    logger,
		limiter:   NewLimiterManager(cfg.AI.RateLimit, logger),
		recorder:  nopRecorder{},
		newModels: newGenaiModels,
		providers: make(map[string]*GeminiProvider),
		clients:   make(map[string]modelsAPI),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Debug("Initializing AI service",
		"provider", "gemini",
		"model", cfg.AI.ModelFor(config.ModelClassText),
		"pro_model", cfg.AI.ModelFor(config.ModelClassPro),
		"image_model", cfg.AI.ModelFor(config.ModelClassImage),
		"timeout", cfg.AI.Timeout,
		"max_retries", cfg.AI.MaxRetries,
		"rate_limit", cfg.AI.RateLimit.Enabled)

	return s, nil
}

// newGenaiModels builds a genai client with an instrumented transport
func newGenaiModels(ctx context.Context, apiKey string) (modelsAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// RunTextTask routes the request to its task's provider
func (s *Service) RunTextTask(ctx context.Context, req TextRequest) (Output, error) {
	class := config.ModelClassText
	if def, ok := tasks.Lookup(req.Task); ok {
		class = def.ModelClass
	}
	p, err := s.provider(ctx, req.Task, class)
	if err != nil {
		return Output{}, err
	}
	return p.RunTextTask(ctx, req)
}

// EditImage routes to the photo-edit provider
func (s *Service) EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ImageOutput, error) {
	p, err := s.provider(ctx, tasks.PhotoEdit, config.ModelClassImage)
	if err != nil {
		return ImageOutput{}, err
	}
	return p.EditImage(ctx, image, mimeType, instruction)
}

// ModelInfo checks the text, pro and image models
func (s *Service) ModelInfo(ctx context.Context) ([]*ModelInfo, error) {
	probes := []struct {
		task  string
		class string
	}{
		{tasks.AnalyzeResume, config.ModelClassText},
		{tasks.FullRewrite, config.ModelClassPro},
		{tasks.PhotoEdit, config.ModelClassImage},
	}

	infos := make([]*ModelInfo, 0, len(probes))
	for _, probe := range probes {
		p, err := s.provider(ctx, probe.task, probe.class)
		if err != nil {
			return nil, err
		}
		info := p.GetModelInfo(ctx)
		info.Class = probe.class
		infos = append(infos, info)
	}
	return infos, nil
}

// Stats reports breaker and limiter state for tasks used so far
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	breakers := make(map[string]any, len(s.providers))
	for task, p := range s.providers {
		breakers[task] = p.GetCircuitBreakerStats()
	}
	return map[string]any{
		"circuit_breakers": breakers,
		"rate_limiter":     s.limiter.GetStats(),
	}
}

// Close stops background work
func (s *Service) Close() error {
	s.limiter.Close()
	return nil
}

func (s *Service) provider(ctx context.Context, task, class string) (*GeminiProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.providers[task]; ok {
		return p, nil
	}

	opCfg := s.config.GetTaskConfig(task, class)
	if opCfg.APIKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			"Gemini API key is not set (use GEMINI_API_KEY, ATSBEATERS_AI_APIKEY or Vault)", nil).
			WithContext("task", task)
	}

	models, ok := s.clients[opCfg.APIKey]
	if !ok {
		var err error
		models, err = s.newModels(ctx, opCfg.APIKey)
		if err != nil {
			return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
		}
		s.clients[opCfg.APIKey] = models
	}

	p := newGeminiProvider(task, models, opCfg, s.limiter, s.recorder, s.logger)
	s.providers[task] = p
	return p, nil
}

// SetAPIKey swaps the global key and drops cached providers so a rotated
// secret takes effect on the next call. Task-level keys are kept.
func (s *Service) SetAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.AI.APIKey = apiKey
	s.providers = make(map[string]*GeminiProvider)
	s.clients = make(map[string]modelsAPI)
}
