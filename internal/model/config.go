package model

import "time"

// Config is the complete runtime configuration
type Config struct {
	RulesDir   string           `mapstructure:"rules_dir" yaml:"rules_dir"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Preprocess PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess"`
	Slots      SlotsConfig      `mapstructure:"slots" yaml:"slots"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Sheet      SheetConfig      `mapstructure:"sheet" yaml:"sheet"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig controls recognizer dispatch
type EngineConfig struct {
	Workers            int                      `mapstructure:"workers" yaml:"workers"`
	RecognizerTimeout  time.Duration            `mapstructure:"recognizer_timeout" yaml:"recognizer_timeout"`
	RecognizerTimeouts map[string]time.Duration `mapstructure:"recognizer_timeouts" yaml:"recognizer_timeouts,omitempty"`
}

// PreprocessConfig lists the text preprocessing steps, applied in order
type PreprocessConfig struct {
	Steps []string `mapstructure:"steps" yaml:"steps"`
}

// SlotsConfig controls slot filling
type SlotsConfig struct {
	LLMTimeout time.Duration `mapstructure:"llm_timeout" yaml:"llm_timeout"`
}

// LLMConfig selects the optional slot-filling model
type LLMConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"` // "openai", "anthropic", "ollama", "" (disabled)
	Model         string  `mapstructure:"model" yaml:"model"`
	APIKey        string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL       string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout       int     `mapstructure:"timeout" yaml:"timeout"` // seconds
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	HTTPProxy     string  `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy    string  `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy       string  `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"` // comma-separated hosts that bypass the proxies
}

// SheetConfig controls the spreadsheet-backed recognizer
type SheetConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheDir string        `mapstructure:"cache_dir" yaml:"cache_dir,omitempty"` // "" keeps parsed sheets in memory only
}

// WatchConfig controls automatic rule reload
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// MetricsConfig controls the Prometheus endpoint of long-running commands
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		RulesDir: "./rules",
		Engine: EngineConfig{
			Workers:           4,
			RecognizerTimeout: 500 * time.Millisecond,
			RecognizerTimeouts: map[string]time.Duration{
				"sheet": 5 * time.Second,
			},
		},
		Preprocess: PreprocessConfig{
			Steps: []string{"space"},
		},
		Slots: SlotsConfig{
			LLMTimeout: 2 * time.Second,
		},
		LLM: LLMConfig{
			Timeout:       30,
			MaxTokens:     300,
			RatePerSecond: 2,
			Burst:         4,
		},
		Sheet: SheetConfig{
			Enabled:  true,
			CacheTTL: 10 * time.Minute,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
