package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
)

const msgLLMTimeout = "LLM evaluation request exceeded timeout limit"

type EvaluatorService interface {
	EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error
}

type EvaluatorOptions struct {
	Timeout            time.Duration
	MaxRetries         int
	ContextLimit       int
	MaxTokens          int
	Temperature        float32
	SummaryTemperature float32
}

type evaluatorService struct {
	evalRepo      repositories.EvaluationRepository
	docRepo       repositories.DocumentRepository
	llm           LLMClient
	index         SimilarityIndex
	promptBuilder *PromptBuilder
	opts          EvaluatorOptions
}

func NewEvaluatorService(
	evalRepo repositories.EvaluationRepository,
	docRepo repositories.DocumentRepository,
	llm LLMClient,
	index SimilarityIndex,
	opts EvaluatorOptions,
) EvaluatorService {
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = 10
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &evaluatorService{
		evalRepo:      evalRepo,
		docRepo:       docRepo,
		llm:           llm,
		index:         index,
		promptBuilder: NewPromptBuilder(),
		opts:          opts,
	}
}

// EvaluateCandidate runs one full attempt for the job: CV, project report,
// then summary. Any failure marks the job failed and is returned so the task
// runner can decide on another attempt, which starts over from the CV.
func (e *evaluatorService) EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error {
	job, err := e.evalRepo.FindByID(ctx, evalID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Permanent(err)
		}
		return fmt.Errorf("failed to get evaluation: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{"job_id": job.JobID, "job_title": job.JobTitle})

	switch job.Status {
	case models.StatusCompleted:
		log.Info("Evaluation already completed, skipping")
		return nil
	case models.StatusProcessing:
		log.Error("❌ Evaluation is already being processed by another worker")
		return Permanent(fmt.Errorf("%w: job %s is already processing", models.ErrInvalidTransition, job.JobID))
	case models.StatusFailed:
		if !job.CanRetry(e.opts.MaxRetries) {
			return Permanent(fmt.Errorf("%w: job %s failed %d times", ErrRetriesExhausted, job.JobID, job.RetryCount+1))
		}
		if err := job.Requeue(e.opts.MaxRetries, time.Now()); err != nil {
			return Permanent(err)
		}
		if err := e.save(ctx, job, models.StatusFailed); err != nil {
			return err
		}
		log.WithField("retry_count", job.RetryCount).Info("🔁 Retrying failed evaluation")
	}

	if err := job.StartProcessing(time.Now()); err != nil {
		return Permanent(err)
	}
	if err := e.save(ctx, job, models.StatusQueued); err != nil {
		return err
	}

	log.Info("🔄 Starting evaluation")

	result, err := e.runPipeline(ctx, job)
	if err == nil {
		err = job.Complete(*result, time.Now())
	}
	if err != nil {
		return e.fail(ctx, job, err)
	}

	if err := e.save(context.WithoutCancel(ctx), job, models.StatusProcessing); err != nil {
		return err
	}

	log.Info("✅ Evaluation completed successfully")
	return nil
}

func (e *evaluatorService) fail(ctx context.Context, job *models.EvaluationJob, cause error) error {
	log := logrus.WithFields(logrus.Fields{"job_id": job.JobID})
	log.WithError(cause).Error("❌ Evaluation failed")

	if err := job.Fail(cause.Error(), time.Now()); err != nil {
		log.WithError(err).Error("❌ Failed to mark evaluation as failed")
		return errors.Join(cause, err)
	}

	if err := e.save(context.WithoutCancel(ctx), job, models.StatusProcessing); err != nil {
		log.WithError(err).Error("❌ Failed to persist evaluation failure")
		return errors.Join(cause, err)
	}

	return cause
}

// save persists the job if its stored status is still from. Losing that race
// is never worth retrying.
func (e *evaluatorService) save(ctx context.Context, job *models.EvaluationJob, from models.EvaluationStatus) error {
	if err := e.evalRepo.SaveTransition(ctx, job, from); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return Permanent(err)
		}
		return err
	}
	return nil
}

// recordStep persists a milestone. A failed milestone write is logged and
// otherwise ignored.
func (e *evaluatorService) recordStep(ctx context.Context, job *models.EvaluationJob, step string) {
	job.RecordStep(step, time.Now())
	if err := e.evalRepo.SaveTransition(ctx, job, models.StatusProcessing); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"job_id": job.JobID, "step": step}).Warn("⚠️  Failed to record processing step")
	}
}

func (e *evaluatorService) runPipeline(ctx context.Context, job *models.EvaluationJob) (*models.EvaluationResult, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	cvDoc, projectDoc, err := e.loadDocuments(ctx, job)
	if err != nil {
		return nil, err
	}

	cvResult, err := e.evaluateCV(ctx, job, cvDoc)
	if err != nil {
		return nil, err
	}
	e.recordStep(ctx, job, models.StepCVEvaluated)

	projectResult, err := e.evaluateProject(ctx, job, projectDoc)
	if err != nil {
		return nil, err
	}
	e.recordStep(ctx, job, models.StepProjectEvaluated)

	summary, err := e.generateSummary(ctx, job, cvResult, projectResult)
	if err != nil {
		return nil, err
	}
	e.recordStep(ctx, job, models.StepSummaryGenerated)

	return &models.EvaluationResult{
		CVMatchRate:     cvResult.MatchRate,
		CVFeedback:      cvResult.Feedback,
		ProjectScore:    projectResult.Score,
		ProjectFeedback: projectResult.Feedback,
		OverallSummary:  summary,
	}, nil
}

func (e *evaluatorService) loadDocuments(ctx context.Context, job *models.EvaluationJob) (*models.Document, *models.Document, error) {
	docs, err := e.docRepo.FindByIDs(ctx, []uuid.UUID{job.CVDocumentID, job.ProjectDocumentID})
	if err != nil {
		return nil, nil, err
	}

	var cvDoc, projectDoc *models.Document
	for i := range docs {
		switch docs[i].ID {
		case job.CVDocumentID:
			cvDoc = &docs[i]
		case job.ProjectDocumentID:
			projectDoc = &docs[i]
		}
	}

	if cvDoc == nil {
		return nil, nil, fmt.Errorf("CV document %s: %w", job.CVDocumentID, repositories.ErrNotFound)
	}
	if projectDoc == nil {
		return nil, nil, fmt.Errorf("project document %s: %w", job.ProjectDocumentID, repositories.ErrNotFound)
	}

	if !cvDoc.Processed {
		return nil, nil, fmt.Errorf("%w: CV document %s", ErrDocumentNotReady, cvDoc.ID)
	}
	if !projectDoc.Processed {
		return nil, nil, fmt.Errorf("%w: project document %s", ErrDocumentNotReady, projectDoc.ID)
	}

	return cvDoc, projectDoc, nil
}

func (e *evaluatorService) evaluateCV(ctx context.Context, job *models.EvaluationJob, cvDoc *models.Document) (CVAssessment, error) {
	if !cvDoc.HasText() {
		return CVAssessment{}, errors.New("CV document text extraction failed or returned empty content")
	}

	ragContext, err := e.retrieveContext(ctx, e.promptBuilder.CVRetrievalQuery(job.JobTitle), CVContextTypes)
	if err != nil {
		return CVAssessment{}, err
	}

	prompt := e.promptBuilder.BuildCVEvaluationPrompt(*cvDoc.ExtractedText, job.JobTitle, ragContext)
	logrus.WithField("job_id", job.JobID).Debugf("📝 CV evaluation prompt length: %d characters", len(prompt))

	response, err := e.complete(ctx, prompt, e.opts.Temperature)
	if err != nil {
		return CVAssessment{}, err
	}

	result, ok := ParseCVResponse(response)
	if !ok {
		logrus.WithField("job_id", job.JobID).Warn("⚠️  CV evaluation response was not valid JSON, using fallback match rate")
	}
	return result, nil
}

func (e *evaluatorService) evaluateProject(ctx context.Context, job *models.EvaluationJob, projectDoc *models.Document) (ProjectAssessment, error) {
	if !projectDoc.HasText() {
		return ProjectAssessment{}, errors.New("project document text extraction failed or returned empty content")
	}

	ragContext, err := e.retrieveContext(ctx, e.promptBuilder.ProjectRetrievalQuery(job.JobTitle), ProjectContextTypes)
	if err != nil {
		return ProjectAssessment{}, err
	}

	prompt := e.promptBuilder.BuildProjectEvaluationPrompt(*projectDoc.ExtractedText, job.JobTitle, ragContext)
	logrus.WithField("job_id", job.JobID).Debugf("📝 Project evaluation prompt length: %d characters", len(prompt))

	response, err := e.complete(ctx, prompt, e.opts.Temperature)
	if err != nil {
		return ProjectAssessment{}, err
	}

	result, ok := ParseProjectResponse(response)
	if !ok {
		logrus.WithField("job_id", job.JobID).Warn("⚠️  Project evaluation response was not valid JSON, using fallback score")
	}
	return result, nil
}

func (e *evaluatorService) generateSummary(ctx context.Context, job *models.EvaluationJob, cv CVAssessment, project ProjectAssessment) (string, error) {
	prompt := e.promptBuilder.BuildSummaryPrompt(job.JobTitle, cv, project)

	response, err := e.complete(ctx, prompt, e.opts.SummaryTemperature)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(response)
	if summary == "" {
		return "", errors.New("LLM returned an empty overall summary")
	}

	return summary, nil
}

func (e *evaluatorService) retrieveContext(ctx context.Context, query string, docTypes []models.DocumentType) (string, error) {
	embedding, err := e.llm.Embed(ctx, query)
	if err != nil {
		return "", timeoutOr(ctx, fmt.Errorf("failed to generate embedding: %w", err))
	}

	results, err := e.index.Search(ctx, embedding, e.opts.ContextLimit, docTypes...)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	return FormatContext(results, docTypes), nil
}

func (e *evaluatorService) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	response, err := e.llm.Complete(ctx, prompt, temperature, e.opts.MaxTokens)
	if err != nil {
		return "", timeoutOr(ctx, fmt.Errorf("LLM evaluation failed: %w", err))
	}
	return response, nil
}

// timeoutOr reports the evaluation deadline in place of err once it has
// passed.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msgLLMTimeout, ctx.Err())
	}
	return err
}
