package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// JobStatus is the lifecycle state of an asynchronous job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
)

var (
	// ErrUnknownJob is returned when polling a job ID that was never
	// issued or has been pruned.
	ErrUnknownJob = errors.New("unknown job")

	// ErrQueueFull is returned when the submission queue is at capacity.
	ErrQueueFull = errors.New("submission queue full")

	// ErrRateLimited is returned when submission exceeds the configured
	// rate.
	ErrRateLimited = errors.New("submission rate limit exceeded")

	// ErrServiceClosed is returned after Close.
	ErrServiceClosed = errors.New("service closed")
)

// ServiceConfig configures the asynchronous submission service.
type ServiceConfig struct {
	// Workers is the worker pool size (default: 4).
	Workers int

	// QueueSize is the submission queue capacity (default: 64).
	QueueSize int

	// RateLimit is the sustained submission rate per second
	// (default: 10).
	RateLimit rate.Limit

	// RateBurst is the submission burst size (default: 20).
	RateBurst int

	// CompletedTTL is how long finished jobs stay pollable
	// (default: 15m).
	CompletedTTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.CompletedTTL == 0 {
		c.CompletedTTL = 15 * time.Minute
	}
}

type job struct {
	id         string
	request    Request
	status     JobStatus
	result     *Result
	finishedAt time.Time
}

// Service wraps an Orchestrator with a bounded worker pool for
// asynchronous submission. Synchronous processing is passed straight
// through.
type Service struct {
	orch    *Orchestrator
	config  ServiceConfig
	logger  *zap.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex
	jobs   map[string]*job
	closed bool

	queue  chan *job
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewService creates the service and starts its worker pool.
func NewService(orch *Orchestrator, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	s := &Service{
		orch:    orch,
		config:  cfg,
		logger:  logger,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		jobs:    make(map[string]*job),
		queue:   make(chan *job, cfg.QueueSize),
		stop:    make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Info("orchestration service started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize),
	)
	return s
}

// ProcessRequest runs one request synchronously, blocking until the full
// pipeline completes.
func (s *Service) ProcessRequest(ctx context.Context, req Request) Result {
	return s.orch.ProcessRequest(ctx, req)
}

// SubmitAsync enqueues a request for the worker pool and returns its job
// ID immediately.
func (s *Service) SubmitAsync(req Request) (string, error) {
	if !s.limiter.Allow() {
		return "", ErrRateLimited
	}

	j := &job{
		id:      uuid.NewString(),
		request: req,
		status:  JobQueued,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrServiceClosed
	}
	s.pruneLocked()
	s.jobs[j.id] = j
	s.mu.Unlock()

	select {
	case s.queue <- j:
	default:
		s.mu.Lock()
		delete(s.jobs, j.id)
		s.mu.Unlock()
		return "", ErrQueueFull
	}

	s.logger.Debug("job submitted", zap.String("job_id", j.id))
	return j.id, nil
}

// PollResult reports a job's status and, once completed, its result.
func (s *Service) PollResult(jobID string) (JobStatus, *Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return "", nil, ErrUnknownJob
	}
	return j.status, j.result, nil
}

// Close drains the worker pool. Queued jobs that have not started are
// abandoned in queued state.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	s.logger.Info("orchestration service stopped")
}

func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case j := <-s.queue:
			s.setStatus(j, JobRunning, nil)
			result := s.orch.ProcessRequest(context.Background(), j.request)
			s.setStatus(j, JobCompleted, &result)
			s.logger.Debug("job completed",
				zap.Int("worker", id),
				zap.String("job_id", j.id),
				zap.String("session_id", result.SessionID),
				zap.Bool("success", result.Success),
			)
		}
	}
}

func (s *Service) setStatus(j *job, status JobStatus, result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.status = status
	j.result = result
	if status == JobCompleted {
		j.finishedAt = time.Now()
	}
}

// pruneLocked drops completed jobs past their TTL. Caller holds mu.
func (s *Service) pruneLocked() {
	cutoff := time.Now().Add(-s.config.CompletedTTL)
	for id, j := range s.jobs {
		if j.status == JobCompleted && j.finishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
