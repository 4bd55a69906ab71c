package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Data       DataConfig
	Categories []CategoryConfig
	LLM        LLMConfig
	Assistant  AssistantConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type DataConfig struct {
	Source      string
	Path        string
	Table       string
	PeriodField string
	TotalField  string
	// SuppliedTotal divides by the published total column instead of the
	// sum of the configured categories.
	SuppliedTotal bool
}

type CategoryConfig struct {
	Key   string
	Label string
}

type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	TopP        float32
	MaxTokens   int
	TimeoutSec  int
}

type AssistantConfig struct {
	Enabled        bool
	KnowledgeBase  []string
	MaxMessageLen  int
	CacheTTLMinute int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/traffiq")

	return load(v)
}

// LoadFile reads an explicit config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("TRAFFIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Data.Source {
	case "json", "csv", "sqlite":
	default:
		return fmt.Errorf("invalid data source %q: must be json, csv or sqlite", c.Data.Source)
	}
	if c.Data.Source == "sqlite" && c.Data.Table == "" {
		return fmt.Errorf("data.table is required for the sqlite source")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one violation category must be configured")
	}
	for i, cat := range c.Categories {
		if cat.Key == "" {
			return fmt.Errorf("category %d has an empty key", i)
		}
	}
	return nil
}

// CategoryKeys returns the configured keys in canonical order.
func (c *Config) CategoryKeys() []string {
	keys := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		keys[i] = cat.Key
	}
	return keys
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("data.source", "json")
	v.SetDefault("data.path", "./data/viola.json")
	v.SetDefault("data.periodField", "month")
	v.SetDefault("data.totalField", "mjmw_lmkhlft_lmrwry_total_traffic_violations")
	v.SetDefault("data.suppliedTotal", false)

	v.SetDefault("categories", DefaultCategories())

	v.SetDefault("llm.baseURL", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "mixtral-8x7b-32768")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.topP", 0.9)
	v.SetDefault("llm.maxTokens", 500)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("assistant.enabled", true)
	v.SetDefault("assistant.knowledgeBase", DefaultKnowledgeBase())
	v.SetDefault("assistant.maxMessageLen", 2000)
	v.SetDefault("assistant.cacheTTLMinute", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

// DefaultCategories is the Qatar traffic violation taxonomy as published by
// the national open data portal.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Key: "lsr_lzy_d_lrdr_over_speed_radar", Label: "Over Speed (Radar)"},
		{Key: "mkhlft_qt_lshr_ldwy_y_passing_traffic_signal_violations", Label: "Traffic Signal"},
		{Key: "mkhlft_lrshdt_walt_ltnbyh_guidlines_and_alarm_signals_violations", Label: "Guidelines & Alarms"},
		{Key: "mkhlft_llwht_lm_dny_metallic_plates_violations", Label: "Metallic Plates"},
		{Key: "mkhlft_ltjwz_overtaking_violations", Label: "Overtaking"},
		{Key: "mkhlft_tsjyl_w_dm_tjdyd_lstmr_registration_and_form_non_renewal_violations", Label: "Registration"},
		{Key: "mkhlft_rkhs_lqyd_driving_licenses_violations", Label: "Licenses"},
		{Key: "mkhlft_lhrk_lmrwry_traffic_movement_violations", Label: "Traffic Movement"},
		{Key: "mkhlft_qw_d_wltzmt_lwqwf_wlntzr_stand_and_wait_rules_and_obligations_violations", Label: "Parking"},
		{Key: "khr_other", Label: "Other"},
	}
}

func DefaultKnowledgeBase() []string {
	return []string{
		"Qatar recorded a 15% decrease in traffic accidents in urban areas after implementing smart traffic systems.",
		"Recent policy changes require mandatory defensive driving courses for new license applicants in Qatar.",
		"Traffic safety indicators show peak accident times between 7-9 AM and 4-6 PM in major Qatar cities.",
		"New traffic policy focuses on reducing accidents through AI-powered traffic management and stricter enforcement.",
		"Qatar's road safety campaign resulted in 25% reduction in pedestrian accidents in residential areas.",
	}
}
