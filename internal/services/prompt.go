package services

import (
	"fmt"
	"strings"

	"alfredoptarigan/cv-screening/internal/models"
)

var (
	CVContextTypes      = []models.DocumentType{models.DocumentTypeJobDescription, models.DocumentTypeScoringRubric}
	ProjectContextTypes = []models.DocumentType{models.DocumentTypeCaseStudy, models.DocumentTypeScoringRubric}
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildCVEvaluationPrompt creates prompt for CV evaluation
func (pb *PromptBuilder) BuildCVEvaluationPrompt(cvText, jobTitle, context string) string {
	return fmt.Sprintf(`You are an expert HR recruiter evaluating a candidate's CV for the position of %s.

CONTEXT (Job Requirements and Scoring Criteria):
%s

CANDIDATE CV:
%s

Evaluate the CV against the context above. Consider:
1. Technical Skills Match (Weight: 40%%) - Alignment with the job requirements
2. Experience Level (Weight: 25%%) - Years of experience and project complexity
3. Relevant Achievements (Weight: 20%%) - Impact of past work
4. Cultural/Collaboration Fit (Weight: 15%%) - Communication, learning mindset, teamwork

Return ONLY a JSON object in this exact format:
{
  "match_rate": <number between 0.0 and 1.0, where 1.0 is a perfect match>,
  "feedback": "<3-5 sentences explaining strengths and gaps>"
}`,
		jobTitle, context, cvText)
}

// BuildProjectEvaluationPrompt creates prompt for project report evaluation
func (pb *PromptBuilder) BuildProjectEvaluationPrompt(projectText, jobTitle, context string) string {
	return fmt.Sprintf(`You are an expert technical evaluator assessing a candidate's project report for the position of %s.

CONTEXT (Case Study Requirements and Scoring Criteria):
%s

PROJECT REPORT:
%s

Evaluate the project report against the context above. Consider:
1. Correctness (Weight: 30%%) - Requirements fulfilled
2. Code Quality & Structure (Weight: 25%%) - Clean, modular, tested
3. Resilience & Error Handling (Weight: 20%%) - Retries, failures, long-running work
4. Documentation & Explanation (Weight: 15%%) - Setup instructions, trade-offs
5. Creativity/Bonus (Weight: 10%%) - Extra features beyond requirements

Return ONLY a JSON object in this exact format:
{
  "score": <number between 1.0 and 5.0, where 5.0 is excellent>,
  "feedback": "<3-5 sentences on what was done well and what could be improved>"
}`,
		jobTitle, context, projectText)
}

// BuildSummaryPrompt creates prompt for the overall summary
func (pb *PromptBuilder) BuildSummaryPrompt(jobTitle string, cv CVAssessment, project ProjectAssessment) string {
	return fmt.Sprintf(`You are an expert hiring manager making a final assessment of a candidate for a %s position.

CV EVALUATION:
- Match Rate: %.2f (out of 1.0)
- Feedback: %s

PROJECT EVALUATION:
- Score: %.2f (out of 5.0)
- Feedback: %s

Provide a concise overall summary (3-5 sentences) that includes:
- Key strengths of the candidate
- Main areas for improvement or concerns
- Hiring recommendation

Return ONLY the summary text, no JSON. Be specific and actionable.`,
		jobTitle, cv.MatchRate, cv.Feedback, project.Score, project.Feedback)
}

func (pb *PromptBuilder) CVRetrievalQuery(jobTitle string) string {
	return "CV evaluation for " + jobTitle
}

func (pb *PromptBuilder) ProjectRetrievalQuery(jobTitle string) string {
	return "Project evaluation for " + jobTitle
}

// FormatContext joins retrieved chunks. With no results it says so explicitly
// so the model knows the context is missing.
func FormatContext(results []SearchResult, docTypes []models.DocumentType) string {
	if len(results) == 0 {
		names := make([]string, len(docTypes))
		for i, t := range docTypes {
			names[i] = string(t)
		}
		return "No relevant context found for " + strings.Join(names, ", ")
	}

	parts := make([]string, 0, len(results))
	for _, result := range results {
		parts = append(parts, strings.TrimSpace(result.Text))
	}

	return strings.Join(parts, "\n\n")
}
