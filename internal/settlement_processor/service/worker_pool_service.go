package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/cryptofund-settlement/internal/domain/shared"
)

// WorkerPoolReconcileService implements the ReconcileService interface
type WorkerPoolReconcileService struct {
	baseService ReconcileService
	pool        *ants.Pool
	logger      *slog.Logger
	// Use a mutex to protect access to the results map
	mu      sync.Mutex
	results map[string]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolReconcileService(
	baseService ReconcileService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolReconcileService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolReconcileService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		results:     make(map[string]chan error),
	}, nil
}

// ProcessCallback submits a callback to the worker pool for processing.
func (s *WorkerPoolReconcileService) ProcessCallback(ctx context.Context, callback *shared.PaymentCallback) error {
	logger := s.logger
	if callback.CorrelationID != "" {
		logger = s.logger.With("correlation_id", callback.CorrelationID)
	}

	logger.Info("Submitting payment callback to worker pool",
		"payment_id", callback.PaymentID,
		"raw_status", callback.Status,
	)

	// Create a channel to receive the result of the callback processing
	resultChan := make(chan error, 1)

	paymentID := callback.PaymentID
	s.mu.Lock()
	s.results[paymentID] = resultChan
	s.mu.Unlock()

	// Create a copy of the callback to avoid data races
	callbackCopy := *callback

	err := s.pool.Submit(func() {
		err := s.baseService.ProcessCallback(ctx, &callbackCopy)

		resultChan <- err

		s.mu.Lock()
		delete(s.results, paymentID)
		close(resultChan)
		s.mu.Unlock()
	})

	if err != nil {
		// If we couldn't submit the task to the pool, remove the result channel
		s.mu.Lock()
		delete(s.results, paymentID)
		close(resultChan)
		s.mu.Unlock()

		logger.Error("Failed to submit payment callback to worker pool",
			"payment_id", callback.PaymentID,
			"error", err,
		)
		return err
	}

	// Wait for the result from the worker
	return <-resultChan
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolReconcileService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolReconcileService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolReconcileService) Capacity() int {
	return s.pool.Cap()
}
