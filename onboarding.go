package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Conversational onboarding: instead of the fixed questionnaire the user
// chats with an assistant, and the transcript is reduced to semantic
// preference tags at the end.

const onboardingSystemPrompt = `You are a friendly roommate matching assistant helping someone find their perfect roommate. Ask engaging questions about their lifestyle, preferences, and living habits. Keep responses conversational, warm, and under 100 words. Focus on: cleanliness habits, social preferences, sleep schedule, pets, noise tolerance, guests, and daily routines. After 4-5 exchanges, wrap up naturally.`

const onboardingFallbackReply = "I'm having trouble connecting right now. Let's try a different approach."

// defaultSemanticTags is the safety net when tag extraction fails: a
// neutral profile beats an empty one.
var defaultSemanticTags = []string{"moderate_cleanliness", "balanced_social", "normal_schedule"}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// POST /onboarding/chat - one assistant turn for the running conversation.
func onboardingChatHandler(generator textGenerator) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			History []chatTurn `json:"history"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if len(req.History) == 0 {
			writeError(w, http.StatusBadRequest, "missing_history")
			return
		}

		reply := assistantReply(r.Context(), generator, req.History)
		writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
	})
}

func assistantReply(ctx context.Context, generator textGenerator, history []chatTurn) string {
	if generator == nil {
		return onboardingFallbackReply
	}

	var b strings.Builder
	b.WriteString(onboardingSystemPrompt)
	for _, turn := range history {
		b.WriteString("\n\n")
		switch turn.Role {
		case "user":
			b.WriteString("User: " + turn.Content)
		case "assistant":
			b.WriteString("Assistant: " + turn.Content)
		default:
			b.WriteString(turn.Content)
		}
	}

	reply, err := generator.GenerateContent(ctx, b.String())
	if err != nil {
		logger.Debug("onboarding assistant turn failed", zap.Error(err))
		return onboardingFallbackReply
	}
	return reply
}

// POST /onboarding/preferences - reduce the transcript to semantic tags and
// save them as the viewer's conversational preference profile.
func onboardingPreferencesHandler(db *sql.DB, generator textGenerator) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			Transcript string `json:"transcript"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if strings.TrimSpace(req.Transcript) == "" {
			writeError(w, http.StatusBadRequest, "missing_transcript")
			return
		}

		userID := r.Context().Value(userIDKey).(int)
		tags := extractSemanticTags(r.Context(), generator, req.Transcript)

		prefs := &PreferenceProfile{
			Type:         PreferencesConversational,
			Summary:      req.Transcript,
			SemanticTags: tags,
		}

		_, err := db.Exec(`
			INSERT INTO profiles (user_id, preferences, is_complete)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (user_id) DO UPDATE SET
				preferences = EXCLUDED.preferences,
				is_complete = TRUE
		`, userID, marshalOrNull(prefs))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "profile_save_error")
			logger.Error("saving conversational preferences", zap.Int("user_id", userID), zap.Error(err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"semanticTags": tags})
	})
}

func extractSemanticTags(ctx context.Context, generator textGenerator, transcript string) []string {
	if generator == nil {
		return defaultSemanticTags
	}

	prompt := `You are a roommate matching assistant. Based on the conversation, extract key lifestyle preferences and return them as comma-separated values. Focus on: cleanliness level, social style, sleep schedule, pet preference, noise tolerance, guest frequency, and any other relevant lifestyle factors. Return only the comma-separated values without explanations.

Based on this conversation about roommate preferences, extract the key lifestyle traits: ` + transcript

	raw, err := generator.GenerateContent(ctx, prompt)
	if err != nil {
		logger.Debug("semantic tag extraction failed", zap.Error(err))
		return defaultSemanticTags
	}

	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return defaultSemanticTags
	}
	return tags
}
