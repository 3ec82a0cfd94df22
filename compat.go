package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"
)

// textGenerator is the single capability this backend needs from the
// hosted language model.
type textGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// CompatibilityScorer turns two preference tag sets into a 0-100 lifestyle
// compatibility percentage via the language model. The upstream is free
// text and unreliable, so Score has a strict post-condition: it always
// returns an integer in [0,100] and never an error. Anything that goes
// wrong scores 0.
type CompatibilityScorer struct {
	generator textGenerator
	logger    *zap.Logger
}

func NewCompatibilityScorer(generator textGenerator, logger *zap.Logger) *CompatibilityScorer {
	return &CompatibilityScorer{generator: generator, logger: logger}
}

var firstNumberRe = regexp.MustCompile(`\d+`)

func (s *CompatibilityScorer) Score(ctx context.Context, viewerTags, candidateTags []string) int {
	if s == nil || s.generator == nil {
		return 0
	}

	prompt := buildCompatibilityPrompt(viewerTags, candidateTags)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Debug("compatibility scoring failed", zap.Error(err))
		return 0
	}

	match := firstNumberRe.FindString(raw)
	if match == "" {
		s.logger.Debug("no number in compatibility response",
			zap.String("response", raw))
		return 0
	}

	percentage, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return clampScore(percentage)
}

func buildCompatibilityPrompt(viewerTags, candidateTags []string) string {
	viewerJSON, _ := json.Marshal(emptyIfNil(viewerTags))
	candidateJSON, _ := json.Marshal(emptyIfNil(candidateTags))

	return fmt.Sprintf(`
Compare these two roommate preference profiles and provide a compatibility percentage (0-100):

User Preferences: %s
Lister Preferences: %s

Consider compatibility factors like:
- Cleanliness levels
- Social preferences
- Sleep schedules
- Pet preferences
- Noise tolerance
- Guest policies

Respond with ONLY a number between 0-100 representing the compatibility percentage.
`, viewerJSON, candidateJSON)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
