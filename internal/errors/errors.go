package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeAI         ErrorType = "ai"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeSession    ErrorType = "session"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"cause,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code, so that
// package-level sentinels can be matched with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// newAppError is an unexported helper to create AppError instances
func newAppError(typ ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:    typ,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error constructors for different types
func NewValidationError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, code, message, cause)
}

func NewIOError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeIO, code, message, cause)
}

func NewAIError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeAI, code, message, cause)
}

func NewNetworkError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, code, message, cause)
}

func NewConfigError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeConfig, code, message, cause)
}

func NewSessionError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeSession, code, message, cause)
}

func NewInternalError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, code, message, cause)
}

// WithContext adds context to an error
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// Logger wraps slog with application-specific methods
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a new structured logger writing JSON to stderr.
// Command results go to stdout, so logs must stay off it.
func NewLogger(level slog.Level) *Logger {
	return NewLoggerWithWriter(os.Stderr, level)
}

// NewLoggerWithWriter creates a structured logger writing to w
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)
	logger := slog.New(handler)

	return &Logger{logger: logger}
}

// LogError logs an application error with appropriate level and context
func (l *Logger) LogError(err error, message string, args ...any) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		logArgs := []any{
			"error_type", appErr.Type,
			"error_code", appErr.Code,
			"error_message", appErr.Message,
		}
		if appErr.Cause != nil {
			logArgs = append(logArgs, "error_cause", appErr.Cause.Error())
		}

		for key, value := range appErr.Context {
			logArgs = append(logArgs, key, value)
		}

		logArgs = append(logArgs, args...)

		l.logger.Error(message, logArgs...)
	} else {
		logArgs := append([]any{"error", err.Error()}, args...)
		l.logger.Error(message, logArgs...)
	}
}

func (l *Logger) Info(message string, args ...any) {
	l.logger.Info(message, args...)
}

func (l *Logger) Debug(message string, args ...any) {
	l.logger.Debug(message, args...)
}

func (l *Logger) Warn(message string, args ...any) {
	l.logger.Warn(message, args...)
}

// With returns a logger that always includes the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// New creates a new logger instance
func New(level string) (*Logger, error) {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return NewLogger(slogLevel), nil
}

// ParseLevel converts a config log level into a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// Common error codes
const (
	ErrCodeFileNotFound    = "FILE_NOT_FOUND"
	ErrCodeFileNotReadable = "FILE_NOT_READABLE"
	ErrCodeFileWriteFailed = "FILE_WRITE_FAILED"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeUnknownTask     = "UNKNOWN_TASK"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidConfig   = "INVALID_CONFIG"
	ErrCodeMissingAPIKey   = "MISSING_API_KEY"

	ErrCodeAIServiceFailed     = "AI_SERVICE_FAILED"
	ErrCodeAITimeout           = "AI_TIMEOUT"
	ErrCodeAIResponseMalformed = "AI_RESPONSE_MALFORMED"
	ErrCodeAINoImageReturned   = "AI_NO_IMAGE_RETURNED"
	ErrCodeRateLimited         = "RATE_LIMITED"

	ErrCodeNetworkTimeout = "NETWORK_TIMEOUT"
	ErrCodeFetchFailed    = "FETCH_FAILED"

	ErrCodeStoreFailed    = "STORE_FAILED"
	ErrCodeCorruptSession = "CORRUPT_SESSION"
	ErrCodeInvalidEmail   = "INVALID_EMAIL"
	ErrCodeInvalidTier    = "INVALID_TIER"
	ErrCodeGateBlocked    = "GATE_BLOCKED"
	ErrCodeBusy           = "WORKSPACE_BUSY"
	ErrCodeNotFound       = "NOT_FOUND"
)
