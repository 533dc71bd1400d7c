package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	FallbackMatchRate    = 0.5
	FallbackProjectScore = 3.0
)

type CVAssessment struct {
	MatchRate float64
	Feedback  string
}

type ProjectAssessment struct {
	Score    float64
	Feedback string
}

type cvResponse struct {
	MatchRate *float64 `json:"match_rate"`
	Feedback  *string  `json:"feedback"`
}

type projectResponse struct {
	Score    *float64 `json:"score"`
	Feedback *string  `json:"feedback"`
}

// ParseCVResponse never fails. A response that is not a JSON object with an
// in-range match_rate and a feedback string yields FallbackMatchRate with the
// raw text as feedback.
func ParseCVResponse(raw string) (CVAssessment, bool) {
	var resp cvResponse
	if err := decodeJSON(raw, &resp); err == nil &&
		resp.MatchRate != nil && *resp.MatchRate >= 0 && *resp.MatchRate <= 1 &&
		resp.Feedback != nil && strings.TrimSpace(*resp.Feedback) != "" {
		return CVAssessment{MatchRate: *resp.MatchRate, Feedback: strings.TrimSpace(*resp.Feedback)}, true
	}

	return CVAssessment{MatchRate: FallbackMatchRate, Feedback: fallbackFeedback(raw)}, false
}

// ParseProjectResponse is ParseCVResponse for the project score in [1, 5].
func ParseProjectResponse(raw string) (ProjectAssessment, bool) {
	var resp projectResponse
	if err := decodeJSON(raw, &resp); err == nil &&
		resp.Score != nil && *resp.Score >= 1 && *resp.Score <= 5 &&
		resp.Feedback != nil && strings.TrimSpace(*resp.Feedback) != "" {
		return ProjectAssessment{Score: *resp.Score, Feedback: strings.TrimSpace(*resp.Feedback)}, true
	}

	return ProjectAssessment{Score: FallbackProjectScore, Feedback: fallbackFeedback(raw)}, false
}

func decodeJSON(raw string, target interface{}) error {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return errors.New("no JSON object in response")
	}

	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// extractJSON strips markdown code fences and returns the outermost JSON
// object, or "" when there is none.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}

	return text[start : end+1]
}

// fallbackFeedback keeps the raw response so a reviewer can see what the model
// said. An empty response still needs non-empty feedback.
func fallbackFeedback(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "The model returned an empty response."
	}
	return raw
}
