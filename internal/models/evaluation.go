package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EvaluationStatus string

const (
	StatusQueued     EvaluationStatus = "queued"
	StatusProcessing EvaluationStatus = "processing"
	StatusCompleted  EvaluationStatus = "completed"
	StatusFailed     EvaluationStatus = "failed"
)

const (
	MaxJobTitleLength = 255
	DefaultMaxRetries = 3
)

const (
	StepStarted          = "started"
	StepCVEvaluated      = "cv_evaluated"
	StepProjectEvaluated = "project_evaluated"
	StepSummaryGenerated = "summary_generated"
	StepCompleted        = "completed"
	StepFailed           = "failed"
	StepRequeued         = "requeued"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidResult     = errors.New("invalid evaluation result")
)

// EvaluationResult is the complete outcome of a job. Every field is required.
type EvaluationResult struct {
	CVMatchRate     float64
	CVFeedback      string
	ProjectScore    float64
	ProjectFeedback string
	OverallSummary  string
}

func (r EvaluationResult) Validate() error {
	var errs []error
	if r.CVMatchRate < 0 || r.CVMatchRate > 1 {
		errs = append(errs, fmt.Errorf("cv_match_rate %.3f outside [0, 1]", r.CVMatchRate))
	}
	if r.ProjectScore < 1 || r.ProjectScore > 5 {
		errs = append(errs, fmt.Errorf("project_score %.3f outside [1, 5]", r.ProjectScore))
	}
	if strings.TrimSpace(r.CVFeedback) == "" {
		errs = append(errs, errors.New("cv_feedback is empty"))
	}
	if strings.TrimSpace(r.ProjectFeedback) == "" {
		errs = append(errs, errors.New("project_feedback is empty"))
	}
	if strings.TrimSpace(r.OverallSummary) == "" {
		errs = append(errs, errors.New("overall_summary is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidResult, errors.Join(errs...))
	}
	return nil
}

type EvaluationJob struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"-"`
	JobID             string            `gorm:"type:text;not null;uniqueIndex" json:"id"`
	JobTitle          string            `gorm:"type:text;not null" json:"job_title"`
	CVDocumentID      uuid.UUID         `gorm:"column:cv_document_id;type:uuid;not null;index" json:"cv_document_id"`
	ProjectDocumentID uuid.UUID         `gorm:"type:uuid;not null;index" json:"project_document_id"`
	Status            EvaluationStatus  `gorm:"type:text;not null;default:'queued';index" json:"status"`
	CVMatchRate       *float64          `gorm:"column:cv_match_rate;type:decimal(3,2)" json:"cv_match_rate,omitempty"`
	CVFeedback        *string           `gorm:"column:cv_feedback;type:text" json:"cv_feedback,omitempty"`
	ProjectScore      *float64          `gorm:"type:decimal(3,2)" json:"project_score,omitempty"`
	ProjectFeedback   *string           `gorm:"type:text" json:"project_feedback,omitempty"`
	OverallSummary    *string           `gorm:"type:text" json:"overall_summary,omitempty"`
	ErrorMessage      *string           `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount        int               `gorm:"not null;default:0" json:"retry_count"`
	ProcessingSteps   datatypes.JSONMap `json:"processing_steps,omitempty"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	UserID            *uuid.UUID        `gorm:"type:uuid;index" json:"user_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	// Relations
	CVDocument      *Document `gorm:"foreignKey:CVDocumentID" json:"-"`
	ProjectDocument *Document `gorm:"foreignKey:ProjectDocumentID" json:"-"`
}

func (EvaluationJob) TableName() string {
	return "evaluation_jobs"
}

func (j *EvaluationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.JobID == "" {
		j.JobID = uuid.NewString()
	}
	return nil
}

// NewEvaluationJob builds a queued job after checking the title and that the
// documents play the roles they are referenced as.
func NewEvaluationJob(jobTitle string, cvDoc, projectDoc *Document, userID *uuid.UUID) (*EvaluationJob, error) {
	title := strings.TrimSpace(jobTitle)
	if title == "" {
		return nil, fmt.Errorf("%w: job_title is required", ErrValidation)
	}
	if len(title) > MaxJobTitleLength {
		return nil, fmt.Errorf("%w: job_title must be at most %d characters", ErrValidation, MaxJobTitleLength)
	}
	if cvDoc == nil || projectDoc == nil {
		return nil, fmt.Errorf("%w: both cv and project_report documents are required", ErrValidation)
	}
	if cvDoc.DocumentType != DocumentTypeCV {
		return nil, fmt.Errorf("%w: cv document must have type %q, got %q", ErrValidation, DocumentTypeCV, cvDoc.DocumentType)
	}
	if projectDoc.DocumentType != DocumentTypeProjectReport {
		return nil, fmt.Errorf("%w: project document must have type %q, got %q", ErrValidation, DocumentTypeProjectReport, projectDoc.DocumentType)
	}

	return &EvaluationJob{
		ID:                uuid.New(),
		JobID:             uuid.NewString(),
		JobTitle:          title,
		CVDocumentID:      cvDoc.ID,
		ProjectDocumentID: projectDoc.ID,
		Status:            StatusQueued,
		UserID:            userID,
		ProcessingSteps:   datatypes.JSONMap{},
	}, nil
}

func (j *EvaluationJob) StartProcessing(now time.Time) error {
	if j.Status != StatusQueued {
		return j.transitionError(StatusProcessing)
	}

	j.Status = StatusProcessing
	j.StartedAt = &now
	j.CompletedAt = nil
	j.ErrorMessage = nil
	// Milestones of earlier attempts stay in the trail.
	delete(j.ProcessingSteps, StepCompleted)
	j.RecordStep(StepStarted, now)
	return nil
}

func (j *EvaluationJob) Complete(result EvaluationResult, now time.Time) error {
	if j.Status != StatusProcessing {
		return j.transitionError(StatusCompleted)
	}
	if err := result.Validate(); err != nil {
		return err
	}

	j.Status = StatusCompleted
	j.CVMatchRate = &result.CVMatchRate
	j.CVFeedback = &result.CVFeedback
	j.ProjectScore = &result.ProjectScore
	j.ProjectFeedback = &result.ProjectFeedback
	j.OverallSummary = &result.OverallSummary
	j.ErrorMessage = nil
	j.CompletedAt = &now
	j.RetryCount = 0
	j.RecordStep(StepCompleted, now)
	return nil
}

func (j *EvaluationJob) Fail(message string, now time.Time) error {
	if j.Status != StatusProcessing {
		return j.transitionError(StatusFailed)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: failure message is required", ErrValidation)
	}

	j.Status = StatusFailed
	j.ErrorMessage = &message
	j.CompletedAt = &now
	j.clearResult()
	j.RecordStep(StepFailed, now)
	return nil
}

func (j *EvaluationJob) CanRetry(maxRetries int) bool {
	return j.Status == StatusFailed && j.RetryCount < maxRetries
}

// Requeue moves a failed job back to queued for another attempt and counts
// the attempt against maxRetries.
func (j *EvaluationJob) Requeue(maxRetries int, now time.Time) error {
	if j.Status != StatusFailed {
		return j.transitionError(StatusQueued)
	}
	if !j.CanRetry(maxRetries) {
		return fmt.Errorf("%w: job %s exhausted %d retries", ErrInvalidTransition, j.JobID, maxRetries)
	}

	j.Status = StatusQueued
	j.RetryCount++
	j.ErrorMessage = nil
	j.CompletedAt = nil
	j.RecordStep(StepRequeued, now)
	return nil
}

func (j *EvaluationJob) RecordStep(step string, now time.Time) {
	if j.ProcessingSteps == nil {
		j.ProcessingSteps = datatypes.JSONMap{}
	}
	j.ProcessingSteps[step] = isoTime(now)
}

// Result returns the stored outcome, or nil unless the job completed.
func (j *EvaluationJob) Result() *EvaluationResult {
	if j.Status != StatusCompleted {
		return nil
	}
	return &EvaluationResult{
		CVMatchRate:     derefFloat(j.CVMatchRate),
		CVFeedback:      derefString(j.CVFeedback),
		ProjectScore:    derefFloat(j.ProjectScore),
		ProjectFeedback: derefString(j.ProjectFeedback),
		OverallSummary:  derefString(j.OverallSummary),
	}
}

func (j *EvaluationJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func (j *EvaluationJob) clearResult() {
	j.CVMatchRate = nil
	j.CVFeedback = nil
	j.ProjectScore = nil
	j.ProjectFeedback = nil
	j.OverallSummary = nil
}

func (j *EvaluationJob) transitionError(to EvaluationStatus) error {
	return fmt.Errorf("%w: job %s cannot move from %s to %s", ErrInvalidTransition, j.JobID, j.Status, to)
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
