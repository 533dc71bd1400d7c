package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-screening/internal/models"
	"alfredoptarigan/cv-screening/internal/repositories"
	"alfredoptarigan/cv-screening/internal/testutil"
)

func fastWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Concurrency:  2,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func startWorker(t *testing.T, opts WorkerOptions, evalRepo repositories.EvaluationRepository) Worker {
	t.Helper()

	broker := NewMemoryBroker(10)
	w := NewWorker(broker, evalRepo, opts)
	t.Cleanup(func() {
		w.Stop()
		broker.Close()
	})
	return w
}

func TestWorker_RunsEnqueuedTasks(t *testing.T) {
	w := startWorker(t, fastWorkerOptions(), nil)

	var mu sync.Mutex
	var seen []uuid.UUID
	w.Register(TaskExtractText, func(ctx context.Context, id uuid.UUID) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, w.Start(context.Background()))

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, w.Enqueue(context.Background(), TaskExtractText, id))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(ids)
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, ids, seen)
	mu.Unlock()
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	w := startWorker(t, fastWorkerOptions(), nil)

	var calls atomic.Int32
	done := make(chan struct{})
	w.Register(TaskGenerateEmbeddings, func(ctx context.Context, id uuid.UUID) error {
		if calls.Add(1) < 3 {
			return errors.New("temporary failure")
		}
		close(done)
		return nil
	})
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Enqueue(context.Background(), TaskGenerateEmbeddings, uuid.New()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never succeeded")
	}
	assert.EqualValues(t, 3, calls.Load())
}

func TestWorker_Handle(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantCalls int32
	}{
		{"success", nil, 1},
		{"permanent failure", Permanent(errors.New("bad input")), 1},
		{"exhausts attempts", errors.New("keeps failing"), 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWorker(NewMemoryBroker(1), nil, fastWorkerOptions()).(*worker)

			var calls atomic.Int32
			w.Register(TaskEvaluate, func(ctx context.Context, id uuid.UUID) error {
				calls.Add(1)
				return tc.err
			})

			var acked, nacked int
			w.handle(context.Background(), 1, Delivery{
				Task: Task{Name: TaskEvaluate, ID: uuid.New()},
				Ack:  func() error { acked++; return nil },
				Nack: func(bool) error { nacked++; return nil },
			})

			assert.Equal(t, tc.wantCalls, calls.Load())
			assert.Equal(t, 1, acked)
			assert.Zero(t, nacked)
		})
	}
}

func TestWorker_StopDuringBackoffRequeues(t *testing.T) {
	opts := fastWorkerOptions()
	opts.InitialDelay = time.Hour
	opts.MaxDelay = time.Hour
	w := NewWorker(NewMemoryBroker(1), nil, opts).(*worker)

	attempted := make(chan struct{}, 1)
	w.Register(TaskEvaluate, func(ctx context.Context, id uuid.UUID) error {
		attempted <- struct{}{}
		return errors.New("retry me")
	})

	requeued := make(chan bool, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		w.handle(context.Background(), 1, Delivery{
			Task: Task{Name: TaskEvaluate, ID: uuid.New()},
			Ack:  func() error { t.Error("unexpected ack"); return nil },
			Nack: func(requeue bool) error { requeued <- requeue; return nil },
		})
	}()

	<-attempted
	w.Stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("handle did not return after stop")
	}
	assert.True(t, <-requeued)
}

func TestWorker_UnknownTaskIsPermanent(t *testing.T) {
	w := NewWorker(NewMemoryBroker(1), nil, fastWorkerOptions())

	err := w.Run(context.Background(), "resize_image", uuid.New())
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWorker_EnqueueAfterStop(t *testing.T) {
	w := NewWorker(NewMemoryBroker(1), nil, fastWorkerOptions())
	require.NoError(t, w.Start(context.Background()))
	w.Stop()

	err := w.Enqueue(context.Background(), TaskEvaluate, uuid.New())
	assert.ErrorIs(t, err, ErrWorkerStopped)
}

func TestWorker_Backoff(t *testing.T) {
	w := NewWorker(NewMemoryBroker(1), nil, WorkerOptions{
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
	}).(*worker)

	assert.Equal(t, 2*time.Second, w.backoff(1))
	assert.Equal(t, 4*time.Second, w.backoff(2))
	assert.Equal(t, 8*time.Second, w.backoff(3))
	assert.Equal(t, 10*time.Second, w.backoff(4))
	assert.Equal(t, 10*time.Second, w.backoff(20))
}

func TestWorker_RequeuesStaleJobs(t *testing.T) {
	db := testutil.NewDB(t)
	evalRepo := repositories.NewEvaluationRepository(db)
	docRepo := repositories.NewDocumentRepository(db)
	ctx := context.Background()

	newDoc := func(docType models.DocumentType) *models.Document {
		doc := &models.Document{
			Filename: "f.pdf", StoredFilename: uuid.NewString() + ".pdf", ContentType: "application/pdf",
			FileSize: 1, FilePath: "/tmp/f.pdf", DocumentType: docType, Checksum: uuid.NewString(),
		}
		require.NoError(t, docRepo.Create(ctx, doc))
		return doc
	}
	job, err := models.NewEvaluationJob("SRE", newDoc(models.DocumentTypeCV), newDoc(models.DocumentTypeProjectReport), nil)
	require.NoError(t, err)
	require.NoError(t, evalRepo.Create(ctx, job))

	opts := fastWorkerOptions()
	opts.PollInterval = 10 * time.Millisecond
	opts.StaleAfter = -time.Minute
	w := startWorker(t, opts, evalRepo)

	picked := make(chan uuid.UUID, 10)
	w.Register(TaskEvaluate, func(ctx context.Context, id uuid.UUID) error {
		select {
		case picked <- id:
		default:
		}
		return nil
	})
	require.NoError(t, w.Start(ctx))

	select {
	case id := <-picked:
		assert.Equal(t, job.ID, id)
	case <-time.After(time.Second):
		t.Fatal("stale job was never re-enqueued")
	}
}

func TestInlineQueue(t *testing.T) {
	q := NewInlineQueue()
	var got []string

	q.Register(TaskExtractText, func(ctx context.Context, id uuid.UUID) error {
		got = append(got, TaskExtractText)
		return q.Enqueue(ctx, TaskGenerateEmbeddings, id)
	})
	q.Register(TaskGenerateEmbeddings, func(ctx context.Context, id uuid.UUID) error {
		got = append(got, TaskGenerateEmbeddings)
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), TaskExtractText, uuid.New()))
	assert.Equal(t, []string{TaskExtractText, TaskGenerateEmbeddings}, got)

	err := q.Enqueue(context.Background(), TaskEvaluate, uuid.New())
	assert.True(t, IsPermanent(err))
}
