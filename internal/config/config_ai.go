package config

import "time"

// Default Gemini models, one per model class
const (
	DefaultTextModel  = "gemini-3-flash-preview"
	DefaultProModel   = "gemini-3-pro-preview"
	DefaultImageModel = "gemini-2.5-flash-image"
)

// Model classes a task can ask for
const (
	ModelClassText  = "text"
	ModelClassPro   = "pro"
	ModelClassImage = "image"
)

// AIConfig holds AI service configuration
type AIConfig struct {
	Provider         string        `mapstructure:"provider"`
	Model            string        `mapstructure:"model"`
	ProModel         string        `mapstructure:"proModel"`
	ImageModel       string        `mapstructure:"imageModel"`
	Timeout          time.Duration `mapstructure:"timeout"`
	APIKey           string        `mapstructure:"apiKey"`
	MaxRetries       int           `mapstructure:"maxRetries"`
	Temperature      float32       `mapstructure:"temperature"`
	UseSystemPrompts bool          `mapstructure:"useSystemPrompts"`
	SystemPrompt     string        `mapstructure:"systemPrompt"`
	SystemPromptFile string        `mapstructure:"systemPromptFile"`

	// RecoverMalformed replaces an unparseable structured response with the
	// empty result for its shape instead of failing the task
	RecoverMalformed bool `mapstructure:"recoverMalformed"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rateLimit"`

	// Tasks holds per-task overrides keyed by task id (analyze-resume, photo-edit, ...)
	Tasks map[string]OperationAIConfig `mapstructure:"tasks"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// RateLimitConfig holds client-side rate limiting for provider calls
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requestsPerMin"`
	BurstCapacity  int  `mapstructure:"burstCapacity"`
}

// OperationAIConfig holds AI configuration for a single task
type OperationAIConfig struct {
	Provider         string                `mapstructure:"provider"`
	Model            string                `mapstructure:"model"`
	Timeout          *time.Duration        `mapstructure:"timeout"`
	APIKey           string                `mapstructure:"apiKey"`
	MaxRetries       *int                  `mapstructure:"maxRetries"`
	Temperature      *float32              `mapstructure:"temperature"`
	UseSystemPrompts *bool                 `mapstructure:"useSystemPrompts"`
	Prompts          PromptConfig          `mapstructure:"prompts"`
	CircuitBreaker   *CircuitBreakerConfig `mapstructure:"circuitBreaker"`
	RateLimit        RateLimitConfig       `mapstructure:"-"`
}

// PromptConfig holds configuration for customizable prompts.
// User templates may reference {{input}} and {{context}}.
type PromptConfig struct {
	System     string `mapstructure:"system"`
	SystemFile string `mapstructure:"systemFile"`
	User       string `mapstructure:"user"`
	UserFile   string `mapstructure:"userFile"`
}

// ModelFor returns the configured model for a model class
func (a AIConfig) ModelFor(class string) string {
	switch class {
	case ModelClassPro:
		if a.ProModel != "" {
			return a.ProModel
		}
		return DefaultProModel
	case ModelClassImage:
		if a.ImageModel != "" {
			return a.ImageModel
		}
		return DefaultImageModel
	default:
		if a.Model != "" {
			return a.Model
		}
		return DefaultTextModel
	}
}

// applyOperationDefaults applies global defaults to task-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig, modelClass string) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.ModelFor(modelClass)
	}
	if opCfg.Timeout == nil {
		timeout := c.AI.Timeout
		opCfg.Timeout = &timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		retries := c.AI.MaxRetries
		opCfg.MaxRetries = &retries
	}
	if opCfg.Temperature == nil {
		temperature := c.AI.Temperature
		opCfg.Temperature = &temperature
	}
	if opCfg.UseSystemPrompts == nil {
		useSystem := c.AI.UseSystemPrompts
		opCfg.UseSystemPrompts = &useSystem
	}
	if opCfg.CircuitBreaker == nil {
		cb := c.AI.CircuitBreaker
		opCfg.CircuitBreaker = &cb
	}
	if opCfg.Prompts.System == "" {
		opCfg.Prompts.System = c.AI.SystemPrompt
	}
	if opCfg.Prompts.SystemFile == "" {
		opCfg.Prompts.SystemFile = c.AI.SystemPromptFile
	}
	opCfg.RateLimit = c.AI.RateLimit
}

// GetTaskConfig returns the AI configuration for a task with fallback to the
// global config. modelClass picks the default model when the task sets none.
func (c *Config) GetTaskConfig(task, modelClass string) OperationAIConfig {
	config := c.AI.Tasks[task]
	c.applyOperationDefaults(&config, modelClass)
	return config
}
