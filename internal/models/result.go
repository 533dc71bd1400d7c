package models

import (
	"time"

	"gorm.io/datatypes"
)

type DocumentResponse struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	DocumentType DocumentType `json:"document_type"`
	FileSize     int64        `json:"file_size"`
	Checksum     string       `json:"checksum"`
	Processed    bool         `json:"processed"`
	CreatedAt    time.Time    `json:"created_at"`
}

func NewDocumentResponse(doc *Document) DocumentResponse {
	return DocumentResponse{
		ID:           doc.ID.String(),
		Filename:     doc.Filename,
		DocumentType: doc.DocumentType,
		FileSize:     doc.FileSize,
		Checksum:     doc.Checksum,
		Processed:    doc.Processed,
		CreatedAt:    doc.CreatedAt,
	}
}

type UploadResponse struct {
	Message   string             `json:"message"`
	Documents []DocumentResponse `json:"documents"`
}

type EvaluateRequest struct {
	JobTitle          string `json:"job_title"`
	CVDocumentID      string `json:"cv_document_id"`
	ProjectDocumentID string `json:"project_document_id"`
}

type EvaluateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ResultResponse struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	JobTitle        string            `json:"job_title"`
	Result          *EvaluationData   `json:"result,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	RetryCount      int               `json:"retry_count"`
	ProcessingSteps datatypes.JSONMap `json:"processing_steps,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

type EvaluationData struct {
	CVMatchRate     float64 `json:"cv_match_rate"`
	CVFeedback      string  `json:"cv_feedback"`
	ProjectScore    float64 `json:"project_score"`
	ProjectFeedback string  `json:"project_feedback"`
	OverallSummary  string  `json:"overall_summary"`
}

func NewResultResponse(job *EvaluationJob) ResultResponse {
	response := ResultResponse{
		ID:              job.JobID,
		Status:          string(job.Status),
		JobTitle:        job.JobTitle,
		RetryCount:      job.RetryCount,
		ProcessingSteps: job.ProcessingSteps,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}

	if result := job.Result(); result != nil {
		response.Result = &EvaluationData{
			CVMatchRate:     result.CVMatchRate,
			CVFeedback:      result.CVFeedback,
			ProjectScore:    result.ProjectScore,
			ProjectFeedback: result.ProjectFeedback,
			OverallSummary:  result.OverallSummary,
		}
	}

	if job.Status == StatusFailed {
		response.ErrorMessage = job.ErrorMessage
	}

	return response
}
