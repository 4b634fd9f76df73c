// Package config loads resolveco's runtime configuration from three
// layers — a YAML file, environment variables (optionally loaded from a
// .env file), and CLI flags — with flags taking precedence over env,
// env over file, and file over built-in defaults.
//
// Grounded on the teacher's internal/app config_file.go/config_env.go
// split (file config overlays onto a flag-populated struct only where
// the flag is still at its default), generalized here onto
// github.com/spf13/viper + github.com/spf13/cobra + github.com/joho/
// godotenv, the stack blackcoderx-falcon's cmd/falcon/main.go uses for
// the same file/env/flag layering.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AdaptersConfig holds the Source Adapters' (C2) credentials and limits.
type AdaptersConfig struct {
	PlacesAPIKey      string
	PlacesBaseURL     string
	SearchAPIKey      string
	SearchBaseURL     string
	B2BAPIKey         string
	B2BBaseURL        string
	DirectoryBaseURL  string
	EmailVerifyAPIKey  string
	EmailVerifyBaseURL string
	MaxParallelVerify int
	UserAgent         string
}

// ThresholdsConfig holds the scoring cutoffs C6/C8 accept against.
type ThresholdsConfig struct {
	DomainAcceptScore  int
	ContactValidScore  int
	ContactAcceptScore int
}

// RoutingConfig holds C9/C7's time and step budgets.
type RoutingConfig struct {
	Concurrency        int
	RowDeadline        time.Duration
	ContactMaxSteps    int
	ContactBudgetLimit float64
	ContactDeadline    time.Duration
}

// LLMConfig selects and configures the LLM Judge's (C4) model backend.
type LLMConfig struct {
	Provider string // "openai" or "gemini"
	BaseURL  string
	APIKey   string
	Model    string
}

// CacheConfig holds the on-disk HTTP/LLM cache directories and the
// retention limits `resolveco cache gc` enforces against them.
type CacheConfig struct {
	HTTPDir      string
	LLMDir       string
	MaxAge       time.Duration
	HTTPMaxBytes int64
	HTTPMaxCount int
	LLMMaxBytes  int64
	LLMMaxCount  int
}

// Config is resolveco's full runtime configuration.
type Config struct {
	Adapters   AdaptersConfig
	Thresholds ThresholdsConfig
	Routing    RoutingConfig
	LLM        LLMConfig
	Cache      CacheConfig

	JobsDBPath string
}

// SetDefaults installs conservative defaults on v before any file, env,
// or flag value is read, so an unconfigured field never comes back zero
// in a way that disables a safety limit.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("adapters.maxParallelVerify", 5)
	v.SetDefault("adapters.userAgent", "resolveco/1.0 (+https://github.com/resolveco/resolveco)")

	v.SetDefault("thresholds.domainAcceptScore", 70)
	v.SetDefault("thresholds.contactValidScore", 50)
	v.SetDefault("thresholds.contactAcceptScore", 80)

	v.SetDefault("routing.concurrency", 10)
	v.SetDefault("routing.rowDeadline", "90s")
	v.SetDefault("routing.contactMaxSteps", 5)
	v.SetDefault("routing.contactBudgetLimit", 0.50)
	v.SetDefault("routing.contactDeadline", "20s")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")

	v.SetDefault("cache.httpDir", ".resolveco-cache/http")
	v.SetDefault("cache.llmDir", ".resolveco-cache/judge")
	v.SetDefault("cache.maxAge", "168h")
	v.SetDefault("cache.httpMaxBytes", int64(0))
	v.SetDefault("cache.httpMaxCount", 0)
	v.SetDefault("cache.llmMaxBytes", int64(0))
	v.SetDefault("cache.llmMaxCount", 0)

	v.SetDefault("jobsDBPath", "resolveco.db")
}

// New builds a viper instance reading (in ascending precedence) a YAML
// config file, RESOLVECO_-prefixed environment variables (a key's dots
// become underscores, e.g. RESOLVECO_LLM_MODEL for llm.model), and any
// flags later bound to it via BindFlags. A missing default resolveco.yaml
// is not an error: file config is optional, per the teacher's
// LoadConfigFile treating a missing file as "use defaults/env/flags
// only". A config file named by cfgFile that cannot be read is an error.
func New(cfgFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("RESOLVECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("resolveco")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// BindFlags binds cmd's flags into v so a flag explicitly set on the
// command line outranks the env/file/default values already loaded.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	return v.BindPFlags(cmd.Flags())
}

// Load reads every section of Config out of v.
func Load(v *viper.Viper) Config {
	return Config{
		Adapters: AdaptersConfig{
			PlacesAPIKey:      v.GetString("adapters.placesApiKey"),
			PlacesBaseURL:     v.GetString("adapters.placesBaseUrl"),
			SearchAPIKey:      v.GetString("adapters.searchApiKey"),
			SearchBaseURL:     v.GetString("adapters.searchBaseUrl"),
			B2BAPIKey:         v.GetString("adapters.b2bApiKey"),
			B2BBaseURL:        v.GetString("adapters.b2bBaseUrl"),
			DirectoryBaseURL:  v.GetString("adapters.directoryBaseUrl"),
			EmailVerifyAPIKey:  v.GetString("adapters.emailVerifyApiKey"),
			EmailVerifyBaseURL: v.GetString("adapters.emailVerifyBaseUrl"),
			MaxParallelVerify: v.GetInt("adapters.maxParallelVerify"),
			UserAgent:         v.GetString("adapters.userAgent"),
		},
		Thresholds: ThresholdsConfig{
			DomainAcceptScore:  v.GetInt("thresholds.domainAcceptScore"),
			ContactValidScore:  v.GetInt("thresholds.contactValidScore"),
			ContactAcceptScore: v.GetInt("thresholds.contactAcceptScore"),
		},
		Routing: RoutingConfig{
			Concurrency:        v.GetInt("routing.concurrency"),
			RowDeadline:        v.GetDuration("routing.rowDeadline"),
			ContactMaxSteps:    v.GetInt("routing.contactMaxSteps"),
			ContactBudgetLimit: v.GetFloat64("routing.contactBudgetLimit"),
			ContactDeadline:    v.GetDuration("routing.contactDeadline"),
		},
		LLM: LLMConfig{
			Provider: v.GetString("llm.provider"),
			BaseURL:  v.GetString("llm.baseUrl"),
			APIKey:   v.GetString("llm.apiKey"),
			Model:    v.GetString("llm.model"),
		},
		Cache: CacheConfig{
			HTTPDir:      v.GetString("cache.httpDir"),
			LLMDir:       v.GetString("cache.llmDir"),
			MaxAge:       v.GetDuration("cache.maxAge"),
			HTTPMaxBytes: v.GetInt64("cache.httpMaxBytes"),
			HTTPMaxCount: v.GetInt("cache.httpMaxCount"),
			LLMMaxBytes:  v.GetInt64("cache.llmMaxBytes"),
			LLMMaxCount:  v.GetInt("cache.llmMaxCount"),
		},
		JobsDBPath: v.GetString("jobsDBPath"),
	}
}

// Validate performs minimal schema validation for required settings,
// matching the teacher's ValidateConfig's "required field" checks.
func Validate(cfg Config) error {
	if cfg.LLM.Model == "" {
		return fmt.Errorf("config: llm.model is required")
	}
	if cfg.Routing.Concurrency <= 0 {
		return fmt.Errorf("config: routing.concurrency must be positive")
	}
	if cfg.Thresholds.DomainAcceptScore < 0 || cfg.Thresholds.DomainAcceptScore > 100 {
		return fmt.Errorf("config: thresholds.domainAcceptScore must be within 0-100")
	}
	if cfg.Thresholds.ContactValidScore < 0 || cfg.Thresholds.ContactValidScore > 100 {
		return fmt.Errorf("config: thresholds.contactValidScore must be within 0-100")
	}
	return nil
}
