package apiclient

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger is the structured logging surface used by the client. *slog.Logger
// satisfies it directly.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig selects which client events are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogRateLimit bool
	// RequestIDGen produces lifecycle request ids; UUID v4 when nil.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled configuration with every category on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogRateLimit: true,
		RequestIDGen: uuid.NewString,
	}
}

// NewSimpleLogger returns a text logger on stderr at debug level.
func NewSimpleLogger() Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

func (c *Client) logRequest(msg string, kv ...any) {
	if c.debugEnabled() && c.debug.LogRequests {
		c.logger.Debug(msg, kv...)
	}
}

func (c *Client) logRetry(msg string, kv ...any) {
	if c.debugEnabled() && c.debug.LogRetries {
		c.logger.Info(msg, kv...)
	}
}

func (c *Client) logCache(msg string, kv ...any) {
	if c.debugEnabled() && c.debug.LogCache {
		c.logger.Debug(msg, kv...)
	}
}

func (c *Client) logRateLimit(msg string, kv ...any) {
	if c.debugEnabled() && c.debug.LogRateLimit {
		c.logger.Warn(msg, kv...)
	}
}

func (c *Client) logFailure(msg string, kv ...any) {
	if c.debugEnabled() {
		c.logger.Error(msg, kv...)
	}
}
