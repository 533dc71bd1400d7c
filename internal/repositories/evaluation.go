package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/cv-screening/internal/models"
)

type EvaluationRepository interface {
	Create(ctx context.Context, job *models.EvaluationJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EvaluationJob, error)
	FindByJobID(ctx context.Context, jobID string) (*models.EvaluationJob, error)
	SaveTransition(ctx context.Context, job *models.EvaluationJob, from models.EvaluationStatus) error
	FindStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]models.EvaluationJob, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, job *models.EvaluationJob) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create evaluation job: %w", err)
	}
	return nil
}

func (r *evaluationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.EvaluationJob, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *evaluationRepository) FindByJobID(ctx context.Context, jobID string) (*models.EvaluationJob, error) {
	return r.findOne(ctx, "job_id = ?", jobID)
}

func (r *evaluationRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.EvaluationJob, error) {
	var job models.EvaluationJob
	if err := r.db.WithContext(ctx).Where(query, arg).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("evaluation job %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find evaluation job: %w", err)
	}
	return &job, nil
}

// SaveTransition persists the job's lifecycle fields only if the stored status
// still equals from. A worker that lost a race gets ErrInvalidTransition.
func (r *evaluationRepository) SaveTransition(ctx context.Context, job *models.EvaluationJob, from models.EvaluationStatus) error {
	job.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).Model(&models.EvaluationJob{}).
		Where("id = ? AND status = ?", job.ID, from).
		Updates(map[string]interface{}{
			"status":           job.Status,
			"cv_match_rate":    job.CVMatchRate,
			"cv_feedback":      job.CVFeedback,
			"project_score":    job.ProjectScore,
			"project_feedback": job.ProjectFeedback,
			"overall_summary":  job.OverallSummary,
			"error_message":    job.ErrorMessage,
			"retry_count":      job.RetryCount,
			"processing_steps": job.ProcessingSteps,
			"started_at":       job.StartedAt,
			"completed_at":     job.CompletedAt,
			"updated_at":       job.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to save evaluation job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s is no longer %s", models.ErrInvalidTransition, job.JobID, from)
	}

	return nil
}

// FindStaleQueued returns queued jobs untouched since olderThan, oldest first.
func (r *evaluationRepository) FindStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]models.EvaluationJob, error) {
	var jobs []models.EvaluationJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusQueued, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find stale queued jobs: %w", err)
	}

	return jobs, nil
}
