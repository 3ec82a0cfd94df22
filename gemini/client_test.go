package gemini

import (
	"context"
	"testing"
)

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestGenerateContentOnNilGenerator(t *testing.T) {
	var g *Generator
	if _, err := g.GenerateContent(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for uninitialized generator")
	}
}

func TestModelOnNilGenerator(t *testing.T) {
	var g *Generator
	if got := g.Model(); got != "" {
		t.Fatalf("expected empty model name, got %q", got)
	}
}
