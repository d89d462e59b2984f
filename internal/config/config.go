package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment overrides (ATSBEATERS_AI_APIKEY, ...)
const EnvPrefix = "ATSBEATERS"

// Config holds all application configuration
// API Key Precedence Order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (ATSBEATERS_AI_APIKEY, GEMINI_API_KEY)
// 4. Default values - Lowest priority
type Config struct {
	AI            AIConfig            `mapstructure:"ai"`
	Session       SessionConfig       `mapstructure:"session"`
	App           AppConfig           `mapstructure:"app"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Export        ExportConfig        `mapstructure:"export"`
	Mail          MailConfig          `mapstructure:"mail"`
	Watch         WatchConfig         `mapstructure:"watch"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`

	loadedPrompts map[string]LoadedPrompts
}

// SessionConfig selects where the signed-in user record is persisted
type SessionConfig struct {
	Backend     string `mapstructure:"backend"` // "file", "memory" or "postgres"
	DataDir     string `mapstructure:"dataDir"`
	DatabaseURL string `mapstructure:"databaseURL"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
	MaxFileSize      int64    `mapstructure:"maxFileSize"`
	MaxImageSize     int64    `mapstructure:"maxImageSize"`
}

// FetchConfig configures job description retrieval from URLs
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"userAgent"`
	MaxBytes  int64         `mapstructure:"maxBytes"`
}

// ExportConfig configures PDF rendering
type ExportConfig struct {
	ChromePath    string        `mapstructure:"chromePath"`
	RenderTimeout time.Duration `mapstructure:"renderTimeout"`
	FontFamily    string        `mapstructure:"fontFamily"`
	FontSizePt    int           `mapstructure:"fontSizePt"`
}

// MailConfig configures report delivery over SMTP
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WatchConfig configures the file watching command
type WatchConfig struct {
	DebounceDelay time.Duration `mapstructure:"debounceDelay"`
	// VaultPollInterval enables API key rotation while watching when Vault is enabled
	VaultPollInterval time.Duration `mapstructure:"vaultPollInterval"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"serviceName"`
	ServiceVersion  string              `mapstructure:"serviceVersion"`
	ServiceInstance string              `mapstructure:"serviceInstance"`
	ConsoleOutput   bool                `mapstructure:"consoleOutput"`
	SampleRate      float64             `mapstructure:"sampleRate"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
	CustomMetrics   CustomMetricsConfig `mapstructure:"customMetrics"`
	Console         ConsoleConfig       `mapstructure:"console"`
	Prometheus      PrometheusConfig    `mapstructure:"prometheus"`
	OTLP            OTLPConfig          `mapstructure:"otlp"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// CustomMetricsConfig holds fine-grained custom metrics configuration
type CustomMetricsConfig struct {
	AIOperations    AIOperationsMetricsConfig `mapstructure:"aiOperations"`
	BusinessMetrics BusinessMetricsConfig     `mapstructure:"businessMetrics"`
}

// AIOperationsMetricsConfig holds AI operation metrics configuration
type AIOperationsMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackDuration   bool `mapstructure:"trackDuration"`
	TrackTokenUsage bool `mapstructure:"trackTokenUsage"`
	TrackRateLimits bool `mapstructure:"trackRateLimits"`
}

// BusinessMetricsConfig holds business metrics configuration
type BusinessMetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PrometheusConfig configures the Prometheus textfile written at exit.
// A CLI has no scrape endpoint, so metrics are handed to the node exporter
// textfile collector instead.
type PrometheusConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TextfilePath string `mapstructure:"textfilePath"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// LoadConfig loads configuration from environment variables and a config file.
// An explicit configFile overrides the search paths.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/atsbeaters/")
		v.AddConfigPath("$HOME/.atsbeaters")
		v.AddConfigPath(".")
	}

	verbose := v.GetString("app.logLevel") == "debug"
	logf := func(format string, args ...any) {
		if verbose {
			log.Printf("[CONFIG] "+format, args...)
		}
	}

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logf("No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		logf("Loaded config file: %s", configFileUsed)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyFallbacks()
	if verbose {
		config.logConfigurationSources(configFileUsed)
	}

	if err := config.validatePromptFiles(); err != nil {
		return nil, fmt.Errorf("prompt file validation failed: %w", err)
	}

	if err := config.loadPromptsFromFiles(); err != nil {
		return nil, fmt.Errorf("failed to load custom prompts from files: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", DefaultTextModel)
	v.SetDefault("ai.proModel", DefaultProModel)
	v.SetDefault("ai.imageModel", DefaultImageModel)
	v.SetDefault("ai.timeout", 90*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxRetries", 2)
	// zero temperature and no system prompt leave sampling to the model
	v.SetDefault("ai.temperature", 0)
	v.SetDefault("ai.useSystemPrompts", false)
	v.SetDefault("ai.recoverMalformed", true)

	v.SetDefault("ai.circuitBreaker.enabled", true)
	v.SetDefault("ai.circuitBreaker.maxRequests", 3)
	v.SetDefault("ai.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.minRequests", 3)
	v.SetDefault("ai.circuitBreaker.failureThreshold", 0.6)

	v.SetDefault("ai.rateLimit.enabled", false)
	v.SetDefault("ai.rateLimit.requestsPerMin", 30)
	v.SetDefault("ai.rateLimit.burstCapacity", 5)

	// Session
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.dataDir", defaultDataDir())
	v.SetDefault("session.databaseURL", "")

	// App Configuration
	v.SetDefault("app.logLevel", "warn")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 1024*1024)    // 1MB
	v.SetDefault("app.maxImageSize", 10*1024*1024) // 10MB

	// Fetch
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.userAgent", "Mozilla/5.0 (compatible; ATSBeaters/1.0)")
	v.SetDefault("fetch.maxBytes", 5*1024*1024)

	// Export
	v.SetDefault("export.chromePath", "")
	v.SetDefault("export.renderTimeout", 60*time.Second)
	v.SetDefault("export.fontFamily", "Arial")
	v.SetDefault("export.fontSizePt", 11)

	// Mail
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")

	// Watch
	v.SetDefault("watch.debounceDelay", 500*time.Millisecond)
	v.SetDefault("watch.vaultPollInterval", 5*time.Minute)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.smtp", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "atsbeaters")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackRateLimits", true)
	v.SetDefault("observability.customMetrics.businessMetrics.enabled", true)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.textfilePath", "")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "atsbeaters")
	}
	return ".atsbeaters"
}

// Validate checks if the configuration is valid. A missing API key is not an
// error here: account and catalog commands work offline, and the AI commands
// check for the key when they build a gateway.
func (c *Config) Validate() error {
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI maxRetries must not be negative")
	}

	switch c.Session.Backend {
	case "file":
		if c.Session.DataDir == "" {
			return fmt.Errorf("session dataDir is required for the file backend")
		}
	case "memory":
	case "postgres":
		if c.Session.DatabaseURL == "" {
			return fmt.Errorf("session databaseURL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be 'file', 'memory' or 'postgres')", c.Session.Backend)
	}

	validFormats := make(map[string]bool)
	for _, format := range c.App.SupportedFormats {
		validFormats[format] = true
	}
	if !validFormats[c.App.DefaultFormat] {
		return fmt.Errorf("invalid default format: %s", c.App.DefaultFormat)
	}

	if c.AI.RateLimit.Enabled && c.AI.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("AI rateLimit requestsPerMin must be positive when enabled")
	}

	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		return fmt.Errorf("mail host and from are required when mail is enabled")
	}

	return nil
}

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	// GEMINI_API_KEY is what the Gemini SDK docs tell people to export
	if c.AI.APIKey == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.AI.APIKey = key
		}
	}

	if c.Export.ChromePath == "" {
		c.Export.ChromePath = os.Getenv("CHROME_PATH")
	}

	if c.Observability.ServiceInstance == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.Observability.ServiceInstance = fmt.Sprintf("%s-%s", c.Observability.ServiceName, hostname)
		} else {
			c.Observability.ServiceInstance = fmt.Sprintf("%s-1", c.Observability.ServiceName)
		}
	}

	if c.App.LogLevel == "debug" && c.Observability.Enabled && !c.Observability.ConsoleOutput && !c.Observability.OTLP.Enabled {
		c.Observability.ConsoleOutput = true
	}
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		EnvPrefix + "_AI_APIKEY",
		EnvPrefix + "_AI_MODEL",
		EnvPrefix + "_SESSION_BACKEND",
		EnvPrefix + "_APP_LOGLEVEL",
		EnvPrefix + "_VAULT_ENABLED",
		"GEMINI_API_KEY",
		"CHROME_PATH",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if strings.Contains(strings.ToLower(envVar), "key") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Printf("[CONFIG] AI Provider: %s", c.AI.Provider)
	log.Printf("[CONFIG] AI Models: text=%s pro=%s image=%s", c.AI.Model, c.AI.ProModel, c.AI.ImageModel)
	if c.AI.APIKey != "" {
		log.Println("[CONFIG] AI API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] AI API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Session Backend: %s", c.Session.Backend)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	for task, op := range c.AI.Tasks {
		log.Printf("[CONFIG] Task %s - Provider: %s, Model: %s", task, op.Provider, op.Model)
	}
}
