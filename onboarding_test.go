package main

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestAssistantReply(t *testing.T) {
	history := []chatTurn{
		{Role: "assistant", Content: "Hi! Tell me about your ideal living situation."},
		{Role: "user", Content: "Quiet, clean, early mornings."},
	}

	t.Run("relays the model reply", func(t *testing.T) {
		stub := &stubGenerator{response: "Early bird, noted! How do you feel about pets?"}
		got := assistantReply(context.Background(), stub, history)
		if got != stub.response {
			t.Errorf("reply = %q", got)
		}
		if !strings.Contains(stub.prompts[0], "Quiet, clean, early mornings.") {
			t.Error("prompt should include the conversation history")
		}
	})

	t.Run("canned line on failure", func(t *testing.T) {
		stub := &stubGenerator{err: errors.New("unavailable")}
		if got := assistantReply(context.Background(), stub, history); got != onboardingFallbackReply {
			t.Errorf("reply = %q, want fallback", got)
		}
	})

	t.Run("canned line without generator", func(t *testing.T) {
		if got := assistantReply(context.Background(), nil, history); got != onboardingFallbackReply {
			t.Errorf("reply = %q, want fallback", got)
		}
	})
}

func TestExtractSemanticTags(t *testing.T) {
	t.Run("splits and trims", func(t *testing.T) {
		stub := &stubGenerator{response: "very_clean, night_owl , loves_pets,,quiet_home"}
		got := extractSemanticTags(context.Background(), stub, "transcript")
		want := []string{"very_clean", "night_owl", "loves_pets", "quiet_home"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("tags = %v, want %v", got, want)
		}
	})

	t.Run("defaults on failure", func(t *testing.T) {
		stub := &stubGenerator{err: errors.New("quota")}
		got := extractSemanticTags(context.Background(), stub, "transcript")
		if !reflect.DeepEqual(got, defaultSemanticTags) {
			t.Errorf("tags = %v, want defaults", got)
		}
	})

	t.Run("defaults on empty output", func(t *testing.T) {
		stub := &stubGenerator{response: " , ,"}
		got := extractSemanticTags(context.Background(), stub, "transcript")
		if !reflect.DeepEqual(got, defaultSemanticTags) {
			t.Errorf("tags = %v, want defaults", got)
		}
	})
}

func TestPreferenceProfileTags(t *testing.T) {
	t.Run("structured skips unanswered attributes", func(t *testing.T) {
		p := &PreferenceProfile{
			Type:             PreferencesStructured,
			CleanlinessLevel: "very_clean",
			SleepSchedule:    "early_bird",
		}
		want := []string{"cleanlinessLevel: very_clean", "sleepSchedule: early_bird"}
		if got := p.Tags(); !reflect.DeepEqual(got, want) {
			t.Errorf("tags = %v, want %v", got, want)
		}
	})

	t.Run("conversational passes semantic tags through", func(t *testing.T) {
		p := &PreferenceProfile{
			Type:         PreferencesConversational,
			SemanticTags: []string{"night_owl", "loves_pets"},
		}
		if got := p.Tags(); !reflect.DeepEqual(got, p.SemanticTags) {
			t.Errorf("tags = %v", got)
		}
	})

	t.Run("nil profile", func(t *testing.T) {
		var p *PreferenceProfile
		if got := p.Tags(); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})
}
