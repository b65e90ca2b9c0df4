package agentloop

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/martinemde/agentd/toolbox"
)

// SessionConfig holds the knobs of the agent loop. Zero values are filled in
// by DefaultSessionConfig or the env loader.
type SessionConfig struct {
	// MaxTurns bounds LLM calls per session. The bound is checked before each
	// call, so a session configured with N turns makes at most N requests.
	MaxTurns int `env:"AGENTD_MAX_TURNS" envDefault:"20"`

	// TurnTimeout is the wall-clock budget of a single turn: the streaming
	// request plus the tool round it triggers.
	TurnTimeout time.Duration `env:"AGENTD_TURN_TIMEOUT" envDefault:"5m"`

	// PermissionMode selects the gate policy for the session.
	PermissionMode toolbox.Mode `env:"AGENTD_PERMISSION_MODE" envDefault:"ask"`

	// SystemPrompt is sent with every request. Not env-loaded; hosts compose
	// it per session.
	SystemPrompt string `env:"-"`

	// CacheToolResults memoizes results of read-only tools in the reasoning
	// tier, keyed by tool name plus normalized input.
	CacheToolResults bool `env:"AGENTD_CACHE_TOOL_RESULTS" envDefault:"true"`

	EnableLoopDetection bool `env:"AGENTD_LOOP_DETECTION" envDefault:"true"`
	LoopDetectionWindow int  `env:"AGENTD_LOOP_WINDOW" envDefault:"10"`

	// Per-tool output limits applied before a result enters the history.
	// Nil maps fall back to the built-in defaults.
	ToolOutputLimits map[string]int `env:"-"`
	ToolLineLimits   map[string]int `env:"-"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTurns:            20,
		TurnTimeout:         5 * time.Minute,
		PermissionMode:      toolbox.ModeAsk,
		CacheToolResults:    true,
		EnableLoopDetection: true,
		LoopDetectionWindow: 10,
	}
}

// SessionConfigFromEnv loads configuration from AGENTD_* variables, falling
// back to the defaults above.
func SessionConfigFromEnv() (SessionConfig, error) {
	var cfg SessionConfig
	if err := env.Parse(&cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("load session config: %w", err)
	}
	return cfg, nil
}
