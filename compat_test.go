package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// stubGenerator returns a canned response or error for every prompt.
type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestCompatibilityScore(t *testing.T) {
	viewer := []string{"cleanlinessLevel: very_clean", "sleepSchedule: early_bird"}
	candidate := []string{"moderate_cleanliness", "balanced_social"}

	cases := []struct {
		name     string
		response string
		err      error
		want     int
	}{
		{"bare number", "85", nil, 85},
		{"number inside prose", "I'd say about 72% compatible.", nil, 72},
		{"no number at all", "these two would get along great", nil, 0},
		{"overshoot clamps to 100", "150", nil, 100},
		{"generator failure", "", errors.New("deadline exceeded"), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scorer := NewCompatibilityScorer(&stubGenerator{response: tc.response, err: tc.err}, zap.NewNop())
			got := scorer.Score(context.Background(), viewer, candidate)
			if got != tc.want {
				t.Errorf("Score() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCompatibilityScoreWithoutGenerator(t *testing.T) {
	scorer := NewCompatibilityScorer(nil, zap.NewNop())
	if got := scorer.Score(context.Background(), []string{"a"}, []string{"b"}); got != 0 {
		t.Errorf("expected 0 without a generator, got %d", got)
	}
}

func TestCompatibilityPromptContainsBothTagSets(t *testing.T) {
	stub := &stubGenerator{response: "50"}
	scorer := NewCompatibilityScorer(stub, zap.NewNop())
	scorer.Score(context.Background(), []string{"cleanlinessLevel: very_clean"}, []string{"night_owl"})

	if len(stub.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(stub.prompts))
	}
	prompt := stub.prompts[0]
	if !strings.Contains(prompt, "cleanlinessLevel: very_clean") {
		t.Error("prompt missing viewer tags")
	}
	if !strings.Contains(prompt, "night_owl") {
		t.Error("prompt missing candidate tags")
	}
}

func TestClampScore(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{-5, 0}, {0, 0}, {55, 55}, {100, 100}, {250, 100},
	} {
		if got := clampScore(tc.in); got != tc.want {
			t.Errorf("clampScore(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
