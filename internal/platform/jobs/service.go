package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	JobHolidayRefresh   = "holiday_refresh"
	JobCachePrune       = "cache_prune"
	JobIdempotencyPurge = "idempotency_purge"
	JobAuditPurge       = "audit_purge"

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunFunc func(context.Context) (any, error)

// RunRecorder persists job runs. A nil recorder means runs are only logged.
type RunRecorder interface {
	Start(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Observer interface {
	JobRun(job, status string)
}

type Service struct {
	Recorder RunRecorder
	Observer Observer
	queue    chan job
	wg       sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

func New(recorder RunRecorder, observer Observer) *Service {
	return &Service{
		Recorder: recorder,
		Observer: observer,
		queue:    make(chan job, 128),
	}
}

// Start runs the worker until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Schedule enqueues run every interval until ctx is done. A non-positive
// interval disables the job.
func (s *Service) Schedule(ctx context.Context, jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		slog.Info("job disabled", "jobType", jobType)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, run)
			}
		}
	}()
}

// Wait blocks until the worker and schedulers have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType string, run RunFunc) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.Recorder != nil {
		id, err := s.Recorder.Start(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
		runID = id
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	slog.Info("job run finished", "jobType", j.Type, "status", status, "durationMs", time.Since(started).Milliseconds())
	if s.Observer != nil {
		s.Observer.JobRun(j.Type, status)
	}

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil || details == nil {
			detailsJSON = []byte("{}")
		}
		if updErr := s.Recorder.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return details, err
}

type PostgresRecorder struct {
	DB *pgxpool.Pool
}

func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{DB: db}
}

func (r *PostgresRecorder) Start(ctx context.Context, jobType string) (string, error) {
	runID := uuid.NewString()
	_, err := r.DB.Exec(ctx, `
    INSERT INTO job_runs (id, job_type, status)
    VALUES ($1,$2,$3)
  `, runID, jobType, "running")
	if err != nil {
		return "", err
	}
	return runID, nil
}

func (r *PostgresRecorder) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := r.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
