// Package worker provides an asynchronous worker pool that runs memory
// extraction off the conversation hot path.
//
// Jobs are hints. The extraction queue in the store is the source of truth,
// and a dropped job is picked up by the next queue drain.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/mnemo/pkg/logger"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 2 * time.Minute
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	SessionID string
	TurnIndex int

	// QueueID is the extraction queue row the job was created for.
	QueueID int64
}

// Handler processes a single job.
type Handler func(ctx context.Context, job Job) error

// Config is the configuration options for the worker pool.
type Config struct {
	// Handler runs each job. Required.
	Handler Handler

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single job (defaults to 2 minutes).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes extraction jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed channel.
	mu     sync.RWMutex
	closed bool

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Handler == nil {
		return nil, errors.New("worker pool requires a handler")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: log,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Debug("job not queued, pool closed", "session_id", job.SessionID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"session_id", job.SessionID,
			"turn_index", job.TurnIndex,
		)
		return true
	default:
		p.logger.Warn("job not queued, queue full, job dropped",
			"session_id", job.SessionID,
			"turn_index", job.TurnIndex,
		)
		return false
	}
}

// Stats returns how many jobs finished successfully and how many failed.
func (p *Pool) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("extraction worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := p.config.Handler(ctx, job); err != nil {
		p.failed.Add(1)
		p.logger.Error("async extraction failed",
			"session_id", job.SessionID,
			"queue_id", job.QueueID,
			"error", err,
		)
		return
	}

	p.processed.Add(1)
}
