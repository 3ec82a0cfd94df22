package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the backend reads from the environment.
// A local .env file is honored in development; real deployments set
// the variables directly.
type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	DatabaseURL string `mapstructure:"database_url"`
	RedisAddr   string `mapstructure:"redis_addr"`

	JWTSecret string `mapstructure:"jwt_secret"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	RoutingAPIURL string `mapstructure:"routing_api_url"`
	RoutingAPIKey string `mapstructure:"routing_api_key"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	DefaultSearchRadiusKm float64 `mapstructure:"default_search_radius_km"`
}

func loadConfig() (*Config, error) {
	// Best effort: missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("routing_api_url", "https://maps.googleapis.com/maps/api/distancematrix/json")
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("default_search_radius_km", 10.0)

	// AutomaticEnv alone does not populate Unmarshal, so bind each key.
	for _, key := range []string{
		"listen_addr", "environment", "log_level",
		"database_url", "redis_addr", "jwt_secret",
		"gemini_api_key", "gemini_model",
		"routing_api_url", "routing_api_key",
		"cors_origins", "default_search_radius_km",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "your_secret_key_please_change_in_production"
	}

	return &cfg, nil
}
