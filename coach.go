package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// The conflict coach watches the tail of a conversation and, when it sees
// tension building, suggests a de-escalating reply.

const coachWindowSize = 3

// CoachAdvice is the model's verdict over the recent messages. A nil
// advice means "no analysis available", which clients treat as no conflict.
type CoachAdvice struct {
	HasConflict         bool   `json:"hasConflict"`
	ConflictLevel       string `json:"conflictLevel"` // "low" | "medium" | "high"
	Suggestion          string `json:"suggestion"`
	RecommendedResponse string `json:"recommendedResponse"`
	TargetUser          int    `json:"targetUser"`
}

// POST /chats/coach?peer_id=123
// Runs conflict analysis over the last few messages with the peer.
func chatCoachHandler(db *sql.DB, generator textGenerator) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(int)

		peerID, err := strconv.Atoi(r.URL.Query().Get("peer_id"))
		if err != nil || peerID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_peer_id")
			return
		}

		// Read-only fetch: analyzing a conversation is not the same as the
		// viewer opening it, so the unread state stays as it was.
		msgs, err := getChatMessages(db, userID, peerID, coachWindowSize, nil, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "chat_query_error")
			logger.Error("loading messages for coach", zap.Int("user_id", userID), zap.Error(err))
			return
		}
		if len(msgs) == 0 {
			writeJSON(w, http.StatusOK, map[string]interface{}{"advice": nil})
			return
		}

		advice := analyzeConflict(r.Context(), generator, userID, peerID, msgs)
		writeJSON(w, http.StatusOK, map[string]interface{}{"advice": advice})
	})
}

func analyzeConflict(ctx context.Context, generator textGenerator, userID, peerID int, msgs []ChatMessage) *CoachAdvice {
	if generator == nil {
		return nil
	}

	var transcript strings.Builder
	// msgs arrive newest first; replay oldest first for the prompt.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Fprintf(&transcript, "User %d: %s\n", m.From, m.Body)
	}

	prompt := fmt.Sprintf(`You are a roommate conflict mediator. Analyze the following recent chat messages between user %d and user %d for signs of conflict or rising tension.

%s
Respond with ONLY a JSON object with these exact fields:
{"hasConflict": boolean, "conflictLevel": "low"|"medium"|"high", "suggestion": "brief advice for defusing the situation", "recommendedResponse": "a suggested message the user could send", "targetUser": %d}`,
		userID, peerID, transcript.String(), userID)

	raw, err := generator.GenerateContent(ctx, prompt)
	if err != nil {
		logger.Debug("conflict analysis failed", zap.Error(err))
		return nil
	}

	advice, err := parseCoachAdvice(raw)
	if err != nil {
		logger.Debug("conflict analysis unparseable", zap.Error(err))
		return nil
	}
	return advice
}

// parseCoachAdvice tolerates the two failure shapes models actually
// produce: fenced code blocks around the JSON, and prose around a JSON
// object. Anything else is an error.
func parseCoachAdvice(raw string) (*CoachAdvice, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var advice CoachAdvice
	if err := json.Unmarshal([]byte(cleaned), &advice); err == nil {
		return &advice, nil
	}

	// Fallback: extract the outermost brace pair.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &advice); err != nil {
		return nil, err
	}
	return &advice, nil
}
