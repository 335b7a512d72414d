// Package config handles loading scout settings and writing scout.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for scout.yaml.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Research ResearchConfig `mapstructure:"research" yaml:"research"`
}

// LLMConfig selects the model backend and its generation parameters.
type LLMConfig struct {
	Provider         string  `mapstructure:"provider" yaml:"provider"` // openai | anthropic | perplexity | groq | gemini
	Model            string  `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL          string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	FailureThreshold int     `mapstructure:"failure_threshold" yaml:"failure_threshold"`

	OpenAIAPIKey     string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key,omitempty"`
	PerplexityAPIKey string `mapstructure:"perplexity_api_key" yaml:"perplexity_api_key,omitempty"`
	GroqAPIKey       string `mapstructure:"groq_api_key" yaml:"groq_api_key,omitempty"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key" yaml:"gemini_api_key,omitempty"`
}

// SearchConfig controls the web search engine and page extraction.
type SearchConfig struct {
	Engine              string `mapstructure:"engine" yaml:"engine"` // duckduckgo | brave
	BraveAPIKey         string `mapstructure:"brave_api_key" yaml:"brave_api_key,omitempty"`
	MaxResults          int    `mapstructure:"max_results" yaml:"max_results"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	MaxContentChars     int    `mapstructure:"max_content_chars" yaml:"max_content_chars"`
	UserAgent           string `mapstructure:"user_agent" yaml:"user_agent"`
}

// StorageConfig locates the session database and the report directory.
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	ReportDir    string `mapstructure:"report_dir" yaml:"report_dir"`
	EventLog     bool   `mapstructure:"event_log" yaml:"event_log"`
}

// ResearchConfig holds the pipeline tunables.
type ResearchConfig struct {
	Questions           QuestionCounts `mapstructure:"questions" yaml:"questions"`
	DefaultDepth        string         `mapstructure:"default_depth" yaml:"default_depth"`
	DefaultMaxSources   int            `mapstructure:"default_max_sources" yaml:"default_max_sources"`
	ResultsPerQuery     int            `mapstructure:"results_per_query" yaml:"results_per_query"`
	QuestionQueries     int            `mapstructure:"question_queries" yaml:"question_queries"`
	ContentPreviewChars int            `mapstructure:"content_preview_chars" yaml:"content_preview_chars"`
}

// QuestionCounts maps each research depth to the number of questions requested.
type QuestionCounts struct {
	Quick    int `mapstructure:"quick" yaml:"quick"`
	Standard int `mapstructure:"standard" yaml:"standard"`
	Deep     int `mapstructure:"deep" yaml:"deep"`
}

// ErrInvalidConfig is returned by Validate when settings cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

const (
	configName = "scout"
	configType = "yaml"

	// DotEnvFile is read from the working directory when present.
	DotEnvFile = ".env"
)

// Known providers and engines.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
	ProviderGroq       = "groq"
	ProviderGemini     = "gemini"

	EngineDuckDuckGo = "duckduckgo"
	EngineBrave      = "brave"
)

// DefaultModels is used when llm.model is empty.
var DefaultModels = map[string]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderAnthropic:  "claude-3-5-sonnet-latest",
	ProviderPerplexity: "sonar",
	ProviderGroq:       "llama-3.1-8b-instant",
	ProviderGemini:     "gemini-2.0-flash",
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"llm.provider":           "AI_PROVIDER",
	"llm.model":              "AI_MODEL",
	"llm.base_url":           "LLM_BASE_URL",
	"llm.temperature":        "TEMPERATURE",
	"llm.max_tokens":         "MAX_TOKENS",
	"llm.openai_api_key":     "OPENAI_API_KEY",
	"llm.anthropic_api_key":  "ANTHROPIC_API_KEY",
	"llm.perplexity_api_key": "PERPLEXITY_API_KEY",
	"llm.groq_api_key":       "GROQ_API_KEY",
	"llm.gemini_api_key":     "GEMINI_API_KEY",
	"search.engine":          "SEARCH_ENGINE",
	"search.brave_api_key":   "BRAVE_API_KEY",
	"search.max_results":     "MAX_SEARCH_RESULTS",
	"storage.database_path":  "DATABASE_PATH",
	"storage.report_dir":     "REPORT_OUTPUT_DIR",
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:         ProviderOpenAI,
			Temperature:      0.7,
			MaxTokens:        4000,
			TimeoutSeconds:   120,
			FailureThreshold: 2,
		},
		Search: SearchConfig{
			Engine:              EngineDuckDuckGo,
			MaxResults:          10,
			FetchTimeoutSeconds: 10,
			MaxContentChars:     10000,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join("data", "research.db"),
			ReportDir:    "reports",
			EventLog:     true,
		},
		Research: ResearchConfig{
			Questions: QuestionCounts{
				Quick:    3,
				Standard: 5,
				Deep:     8,
			},
			DefaultDepth:        "standard",
			DefaultMaxSources:   5,
			ResultsPerQuery:     3,
			QuestionQueries:     3,
			ContentPreviewChars: 1500,
		},
	}
}

// Load resolves the configuration. Precedence, highest first: process
// environment, the .env file in the working directory, the config file,
// defaults. An explicit configFile must exist; otherwise scout.yaml is
// looked up in the working directory and $HOME/.config/scout.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := applyDotEnv(v, DotEnvFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg as YAML to path, creating parent directories.
func WriteConfig(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate reports the first set of problems that would prevent a research
// run. A nil result means the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderPerplexity, ProviderGroq, ProviderGemini:
		if c.APIKey() == "" {
			problems = append(problems, fmt.Sprintf("%s is required for provider %q", apiKeyEnv(c.LLM.Provider), c.LLM.Provider))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown AI provider %q", c.LLM.Provider))
	}

	switch c.Search.Engine {
	case EngineDuckDuckGo:
	case EngineBrave:
		if c.Search.BraveAPIKey == "" {
			problems = append(problems, "BRAVE_API_KEY is required for search engine \"brave\"")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown search engine %q", c.Search.Engine))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		problems = append(problems, "max_tokens must be positive")
	}
	q := c.Research.Questions
	if q.Quick <= 0 || q.Standard <= 0 || q.Deep <= 0 {
		problems = append(problems, "question counts must be positive for every depth")
	}
	if c.Storage.DatabasePath == "" {
		problems = append(problems, "database path is empty")
	}
	if c.Storage.ReportDir == "" {
		problems = append(problems, "report directory is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		return c.LLM.OpenAIAPIKey
	case ProviderAnthropic:
		return c.LLM.AnthropicAPIKey
	case ProviderPerplexity:
		return c.LLM.PerplexityAPIKey
	case ProviderGroq:
		return c.LLM.GroqAPIKey
	case ProviderGemini:
		return c.LLM.GeminiAPIKey
	}
	return ""
}

// ModelName returns llm.model, or the provider default when unset.
func (c *Config) ModelName() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	return DefaultModels[c.LLM.Provider]
}

// QuestionCount returns the number of questions for depth.
func (c *Config) QuestionCount(depth string) (int, bool) {
	switch depth {
	case "quick":
		return c.Research.Questions.Quick, true
	case "standard":
		return c.Research.Questions.Standard, true
	case "deep":
		return c.Research.Questions.Deep, true
	}
	return 0, false
}

// DataDir is the directory holding the database and the event log.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Storage.DatabasePath)
}

func apiKeyEnv(provider string) string {
	return envBindings["llm."+provider+"_api_key"]
}

// setDefaults registers every field of def so that env bindings and
// Unmarshal see the complete key set.
func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("llm.provider", def.LLM.Provider)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.base_url", def.LLM.BaseURL)
	v.SetDefault("llm.temperature", def.LLM.Temperature)
	v.SetDefault("llm.max_tokens", def.LLM.MaxTokens)
	v.SetDefault("llm.timeout_seconds", def.LLM.TimeoutSeconds)
	v.SetDefault("llm.failure_threshold", def.LLM.FailureThreshold)
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.perplexity_api_key", "")
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.gemini_api_key", "")

	v.SetDefault("search.engine", def.Search.Engine)
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("search.max_results", def.Search.MaxResults)
	v.SetDefault("search.fetch_timeout_seconds", def.Search.FetchTimeoutSeconds)
	v.SetDefault("search.max_content_chars", def.Search.MaxContentChars)
	v.SetDefault("search.user_agent", def.Search.UserAgent)

	v.SetDefault("storage.database_path", def.Storage.DatabasePath)
	v.SetDefault("storage.report_dir", def.Storage.ReportDir)
	v.SetDefault("storage.event_log", def.Storage.EventLog)

	v.SetDefault("research.questions.quick", def.Research.Questions.Quick)
	v.SetDefault("research.questions.standard", def.Research.Questions.Standard)
	v.SetDefault("research.questions.deep", def.Research.Questions.Deep)
	v.SetDefault("research.default_depth", def.Research.DefaultDepth)
	v.SetDefault("research.default_max_sources", def.Research.DefaultMaxSources)
	v.SetDefault("research.results_per_query", def.Research.ResultsPerQuery)
	v.SetDefault("research.question_queries", def.Research.QuestionQueries)
	v.SetDefault("research.content_preview_chars", def.Research.ContentPreviewChars)
}

// applyDotEnv copies values from a .env file for variables the process
// environment does not already define.
func applyDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	dot := viper.New()
	dot.SetConfigFile(path)
	dot.SetConfigType("env")
	if err := dot.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for key, env := range envBindings {
		if _, set := os.LookupEnv(env); set {
			continue
		}
		if dot.IsSet(env) {
			v.Set(key, dot.Get(env))
		}
	}
	return nil
}
