package main

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.ListenAddr == "" {
		t.Error("listen addr should have a default")
	}
	if cfg.JWTSecret == "" {
		t.Error("jwt secret should fall back to the development default")
	}
	if cfg.GeminiModel == "" {
		t.Error("gemini model should have a default")
	}
	if cfg.DefaultSearchRadiusKm <= 0 {
		t.Errorf("default search radius = %v", cfg.DefaultSearchRadiusKm)
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q", cfg.JWTSecret)
	}
	if cfg.GeminiModel != "gemini-2.5-pro" {
		t.Errorf("gemini model = %q", cfg.GeminiModel)
	}
}
