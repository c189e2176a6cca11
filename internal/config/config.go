// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Device() DeviceConfig
	Agent() AgentConfig
	LLM() LLMConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg LoggerConfig `mapstructure:"logger" yaml:"logger"`
	DeviceCfg DeviceConfig `mapstructure:"device" yaml:"device"`
	AgentCfg  AgentConfig  `mapstructure:"agent" yaml:"agent"`
	LLMCfg    LLMConfig    `mapstructure:"llm" yaml:"llm"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Device() DeviceConfig { return c.DeviceCfg }
func (c *Config) Agent() AgentConfig   { return c.AgentCfg }
func (c *Config) LLM() LLMConfig       { return c.LLMCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	// Color is "auto" (color only on a terminal), "always" or "never".
	Color  string      `mapstructure:"color" yaml:"color"`
	Colors ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DeviceConfig selects and tunes the Android debug bridge connection.
type DeviceConfig struct {
	ADBPath string `mapstructure:"adb_path" yaml:"adb_path"`
	// Serial pins a device; empty means "the only attached device".
	Serial          string `mapstructure:"serial" yaml:"serial"`
	RemoteDir       string `mapstructure:"remote_dir" yaml:"remote_dir"`
	SwipeDurationMs int    `mapstructure:"swipe_duration_ms" yaml:"swipe_duration_ms"`
}

// AgentConfig holds settings for the round loop.
type AgentConfig struct {
	MaxRounds       int              `mapstructure:"max_rounds" yaml:"max_rounds"`
	ArtifactDir     string           `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	DecisionTimeout time.Duration    `mapstructure:"decision_timeout" yaml:"decision_timeout"`
	Extraction      ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Annotation      AnnotationConfig `mapstructure:"annotation" yaml:"annotation"`
}

// ExtractionConfig tunes element deduplication, in pixels.
type ExtractionConfig struct {
	ContainmentTolerance int `mapstructure:"containment_tolerance" yaml:"containment_tolerance"`
	MinCenterDistance    int `mapstructure:"min_center_distance" yaml:"min_center_distance"`
}

// AnnotationConfig tunes the labelled screenshot. Zero values are derived
// from the image size.
type AnnotationConfig struct {
	LabelScale   int  `mapstructure:"label_scale" yaml:"label_scale"`
	BoxThickness int  `mapstructure:"box_thickness" yaml:"box_thickness"`
	DarkMode     bool `mapstructure:"dark_mode" yaml:"dark_mode"`
}

// LLMProvider defines the supported decision service providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
	ProviderQwen   LLMProvider = "qwen"
)

// LLMConfig selects the decision service and its generation parameters.
type LLMConfig struct {
	Provider          LLMProvider    `mapstructure:"provider" yaml:"provider"`
	Temperature       float32        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int            `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute float64        `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetries        int            `mapstructure:"max_retries" yaml:"max_retries"`
	OpenAI            LLMModelConfig `mapstructure:"openai" yaml:"openai"`
	Gemini            LLMModelConfig `mapstructure:"gemini" yaml:"gemini"`
	Qwen              LLMModelConfig `mapstructure:"qwen" yaml:"qwen"`
}

// LLMModelConfig defines the configuration for a single provider.
type LLMModelConfig struct {
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"-"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// USD per 1000 tokens, used only for the cost estimate in the logs.
	PromptPricePer1K     float64 `mapstructure:"prompt_price_per_1k" yaml:"prompt_price_per_1k"`
	CompletionPricePer1K float64 `mapstructure:"completion_price_per_1k" yaml:"completion_price_per_1k"`
}

// Selected returns the model configuration of the active provider.
func (l LLMConfig) Selected() (LLMModelConfig, error) {
	switch l.Provider {
	case ProviderOpenAI:
		return l.OpenAI, nil
	case ProviderGemini:
		return l.Gemini, nil
	case ProviderQwen:
		return l.Qwen, nil
	default:
		return LLMModelConfig{}, fmt.Errorf("unsupported llm.provider %q (supported: %s, %s, %s)",
			l.Provider, ProviderOpenAI, ProviderGemini, ProviderQwen)
	}
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mobilepilot")
	v.SetDefault("logger.log_file", "mobilepilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.color", "auto")
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.serial", "")
	v.SetDefault("device.remote_dir", "/sdcard")
	v.SetDefault("device.swipe_duration_ms", 400)

	// -- Agent --
	v.SetDefault("agent.max_rounds", 7)
	v.SetDefault("agent.artifact_dir", "task")
	v.SetDefault("agent.decision_timeout", "120s")
	v.SetDefault("agent.extraction.containment_tolerance", 10)
	v.SetDefault("agent.extraction.min_center_distance", 30)
	v.SetDefault("agent.annotation.label_scale", 0)
	v.SetDefault("agent.annotation.box_thickness", 0)
	v.SetDefault("agent.annotation.dark_mode", false)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.max_retries", 1)
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.prompt_price_per_1k", 0.01)
	v.SetDefault("llm.openai.completion_price_per_1k", 0.03)
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.qwen.model", "qwen-vl-max")
	v.SetDefault("llm.qwen.endpoint", "https://dashscope.aliyuncs.com/compatible-mode/v1")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials come from the conventional vendor variables when not set in the file.
	_ = v.BindEnv("llm.openai.api_key", "MOBILEPILOT_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.gemini.api_key", "MOBILEPILOT_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.qwen.api_key", "MOBILEPILOT_LLM_QWEN_API_KEY", "DASHSCOPE_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.AgentCfg.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("error expanding agent.artifact_dir: %w", err)
	}
	cfg.AgentCfg.ArtifactDir = dir

	if cfg.LoggerCfg.LogFile != "" {
		logFile, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("error expanding logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return c.DeviceCfg.Validate()
}

// Validate checks the adb settings.
func (d *DeviceConfig) Validate() error {
	if d.ADBPath == "" {
		return fmt.Errorf("device.adb_path must not be empty")
	}
	if d.SwipeDurationMs <= 0 {
		return fmt.Errorf("device.swipe_duration_ms must be a positive integer")
	}
	return nil
}

// Validate checks the round loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be a positive integer")
	}
	if a.ArtifactDir == "" {
		return fmt.Errorf("artifact_dir must not be empty")
	}
	if a.DecisionTimeout <= 0 {
		return fmt.Errorf("decision_timeout must be a positive duration")
	}
	if a.Extraction.ContainmentTolerance < 0 || a.Extraction.MinCenterDistance < 0 {
		return fmt.Errorf("extraction tolerances must not be negative")
	}
	return nil
}

// Validate checks the provider selection and its credentials.
func (l *LLMConfig) Validate() error {
	model, err := l.Selected()
	if err != nil {
		return err
	}
	if model.Model == "" {
		return fmt.Errorf("llm.%s.model is required", l.Provider)
	}
	if model.APIKey == "" {
		return fmt.Errorf("llm.%s.api_key is required but not found", l.Provider)
	}
	if l.MaxRetries < 0 || l.MaxRetries > 1 {
		return fmt.Errorf("max_retries must be 0 or 1")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// ResolveConfigFile reports the config file that will be read, if any,
// expanding a leading ~ in explicit paths.
func ResolveConfigFile(explicit string) (string, error) {
	if explicit == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			return "config.yaml", nil
		}
		return "", nil
	}
	return homedir.Expand(explicit)
}
