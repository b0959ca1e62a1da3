package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"absence/internal/platform/querier"
)

const (
	JobApprovalReminder = "approval_reminder"
	JobIdempotencyPurge = "idempotency_purge"
)

// RunFunc performs one job run and returns details recorded with it.
type RunFunc func(ctx context.Context) (any, error)

type Service struct {
	DB        querier.Querier
	queue     chan job
	schedules []schedule
	log       *slog.Logger
	wg        sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	job
	interval time.Duration
}

func New(db querier.Querier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:    db,
		queue: make(chan job, 128),
		log:   logger,
	}
}

// Every registers a periodic job. Non-positive intervals disable it.
func (s *Service) Every(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		s.log.Info("job disabled", "jobType", jobType)
		return
	}
	s.schedules = append(s.schedules, schedule{job: job{Type: jobType, Run: run}, interval: interval})
}

// Start runs the worker and the registered schedules until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
	for _, sch := range s.schedules {
		sch := sch
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick(ctx, sch)
		}()
	}
}

// Wait blocks until every goroutine started by Start has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType string, run RunFunc) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		s.log.Warn("job queue full", "jobType", jobType)
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
				s.log.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) tick(ctx context.Context, sch schedule) {
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sch.Type, sch.Run)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status)
      VALUES ($1,$2)
      RETURNING id::text
    `, j.Type, "running").Scan(&runID); err != nil {
			s.log.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		s.log.Warn("job details marshal failed", "jobType", j.Type, "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id::text = $3
    `, status, detailsJSON, runID); updErr != nil {
			s.log.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	s.log.Debug("job run finished", "jobType", j.Type, "status", status)
	return details, err
}
